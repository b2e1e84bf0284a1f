package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finhub/internal/crypto"
)

func TestGzipGunzip_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "database.db")
	require.NoError(t, os.WriteFile(src, []byte("sqlite magic header and rows"), 0o644))

	gz := filepath.Join(dir, "database.db.gz")
	require.NoError(t, gzipFile(src, gz))

	restored := filepath.Join(dir, "restored.db")
	require.NoError(t, gunzipFile(gz, restored))

	got, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, "sqlite magic header and rows", string(got))
}

func TestChecksumFile_StableForSameContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.db")
	b := filepath.Join(dir, "b.db")
	require.NoError(t, os.WriteFile(a, []byte("identical content"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("identical content"), 0o644))

	sumA, err := checksumFile(a)
	require.NoError(t, err)
	sumB, err := checksumFile(b)
	require.NoError(t, err)
	assert.Equal(t, sumA, sumB)
	assert.Contains(t, sumA, "sha256:")
}

func TestChecksumFile_DiffersForDifferentContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.db")
	b := filepath.Join(dir, "b.db")
	require.NoError(t, os.WriteFile(a, []byte("content one"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("content two"), 0o644))

	sumA, err := checksumFile(a)
	require.NoError(t, err)
	sumB, err := checksumFile(b)
	require.NoError(t, err)
	assert.NotEqual(t, sumA, sumB)
}

func TestArchiveEncryption_RoundTrip(t *testing.T) {
	vault, err := crypto.NewVault("a-32-byte-or-longer-encryption-key!!")
	require.NoError(t, err)

	manifestBytes := []byte(`{"checksum":"sha256:deadbeef"}`)
	payload := []byte("gzip bytes go here")
	archive := packArchive(manifestBytes, payload)

	encrypted, err := vault.EncryptBytes(archive)
	require.NoError(t, err)
	assert.NotEqual(t, archive, encrypted)

	decrypted, err := vault.DecryptBytes(encrypted)
	require.NoError(t, err)

	gotManifest, gotPayload, err := unpackArchive(decrypted)
	require.NoError(t, err)
	assert.Equal(t, manifestBytes, gotManifest)
	assert.Equal(t, payload, gotPayload)
}
