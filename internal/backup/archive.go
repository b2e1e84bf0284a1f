package backup

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// packArchive frames the msgpack manifest and gzip payload into a single
// blob: a 4-byte big-endian manifest length, the manifest, then the payload.
// Framing (rather than a second object upload) keeps each backup a single
// atomic unit in the bucket.
func packArchive(manifest, payload []byte) []byte {
	buf := make([]byte, 4+len(manifest)+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(manifest)))
	copy(buf[4:], manifest)
	copy(buf[4+len(manifest):], payload)
	return buf
}

// unpackArchive reverses packArchive.
func unpackArchive(archive []byte) (manifestBytes, payload []byte, err error) {
	if len(archive) < 4 {
		return nil, nil, fmt.Errorf("archive too short")
	}
	manifestLen := binary.BigEndian.Uint32(archive[:4])
	if uint32(len(archive)-4) < manifestLen {
		return nil, nil, fmt.Errorf("archive truncated")
	}
	manifestBytes = archive[4 : 4+manifestLen]
	payload = archive[4+manifestLen:]
	return manifestBytes, payload, nil
}

func newBytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
