package backup

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/finhub/internal/crypto"
)

const keyPrefix = "finhub-backup-"

// manifest describes one backup archive: the source database's checksum and
// size, so Restore can verify integrity before it overwrites anything.
type manifest struct {
	Timestamp   time.Time `msgpack:"timestamp"`
	SourceSize  int64     `msgpack:"source_size"`
	Checksum    string    `msgpack:"checksum"`
	Compression string    `msgpack:"compression"`
}

// Service runs the nightly backup described in §7: gzip the live SQLite
// file, encrypt the archive with the same vault that protects credential
// material at rest, upload it, and rotate anything past the retention
// window.
type Service struct {
	client      *Client
	vault       *crypto.Vault
	dbPath      string
	stagingDir  string
	retentionDays int
	log         zerolog.Logger
}

// NewService builds a backup Service. stagingDir holds the transient
// gzip/encrypt working files and is cleaned up after every run.
func NewService(client *Client, vault *crypto.Vault, dbPath, stagingDir string, retentionDays int, log zerolog.Logger) *Service {
	return &Service{
		client:        client,
		vault:         vault,
		dbPath:        dbPath,
		stagingDir:    stagingDir,
		retentionDays: retentionDays,
		log:           log.With().Str("component", "backup_service").Logger(),
	}
}

// Run performs one full backup cycle: archive, encrypt, upload, rotate.
func (s *Service) Run(ctx context.Context) error {
	start := time.Now()

	if err := os.MkdirAll(s.stagingDir, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(s.stagingDir)

	info, err := os.Stat(s.dbPath)
	if err != nil {
		return fmt.Errorf("stat database: %w", err)
	}

	checksum, err := checksumFile(s.dbPath)
	if err != nil {
		return fmt.Errorf("checksum database: %w", err)
	}

	gzPath := filepath.Join(s.stagingDir, "database.db.gz")
	if err := gzipFile(s.dbPath, gzPath); err != nil {
		return fmt.Errorf("gzip database: %w", err)
	}

	m := manifest{
		Timestamp:   start.UTC(),
		SourceSize:  info.Size(),
		Checksum:    checksum,
		Compression: "gzip",
	}
	manifestBytes, err := msgpack.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	gzBytes, err := os.ReadFile(gzPath)
	if err != nil {
		return fmt.Errorf("read gzip archive: %w", err)
	}

	archive := packArchive(manifestBytes, gzBytes)
	encrypted, err := s.vault.EncryptBytes(archive)
	if err != nil {
		return fmt.Errorf("encrypt archive: %w", err)
	}

	timestamp := start.Format("2006-01-02-150405")
	key := fmt.Sprintf("%s%s.db.enc", keyPrefix, timestamp)

	if err := s.client.Upload(ctx, key, newBytesReader(encrypted), int64(len(encrypted))); err != nil {
		return fmt.Errorf("upload backup: %w", err)
	}

	s.log.Info().
		Str("key", key).
		Int64("encrypted_bytes", int64(len(encrypted))).
		Dur("duration_ms", time.Since(start)).
		Msg("backup completed")

	if err := s.Rotate(ctx); err != nil {
		s.log.Error().Err(err).Msg("backup rotation failed")
	}

	return nil
}

// Rotate deletes backups older than the retention window, always keeping at
// least the 3 most recent regardless of age.
func (s *Service) Rotate(ctx context.Context) error {
	const minKeep = 3

	objects, err := s.client.List(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}
	if len(objects) <= minKeep {
		return nil
	}
	if s.retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for _, obj := range objects[minKeep:] {
		ts, ok := timestampFromKey(obj.Key)
		if !ok || !ts.Before(cutoff) {
			continue
		}
		if err := s.client.Delete(ctx, obj.Key); err != nil {
			s.log.Error().Err(err).Str("key", obj.Key).Msg("failed to delete expired backup")
			continue
		}
		deleted++
	}

	s.log.Info().Int("deleted", deleted).Int("remaining", len(objects)-deleted).Msg("backup rotation complete")
	return nil
}

// Restore downloads the named backup object, decrypts and decompresses it,
// verifies its checksum against the embedded manifest, and writes the
// result to destPath. It never touches the live database path directly so
// an operator can inspect the restored file before swapping it in.
func (s *Service) Restore(ctx context.Context, key, destPath string) error {
	encrypted, err := s.client.download(ctx, key)
	if err != nil {
		return fmt.Errorf("download backup %s: %w", key, err)
	}

	archive, err := s.vault.DecryptBytes(encrypted)
	if err != nil {
		return fmt.Errorf("decrypt backup: %w", err)
	}

	manifestBytes, payload, err := unpackArchive(archive)
	if err != nil {
		return fmt.Errorf("unpack backup: %w", err)
	}

	var m manifest
	if err := msgpack.Unmarshal(manifestBytes, &m); err != nil {
		return fmt.Errorf("unmarshal manifest: %w", err)
	}

	gzPath := filepath.Join(s.stagingDir, "restore.db.gz")
	if err := os.MkdirAll(s.stagingDir, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.Remove(gzPath)
	if err := os.WriteFile(gzPath, payload, 0o600); err != nil {
		return fmt.Errorf("write staged archive: %w", err)
	}

	if err := gunzipFile(gzPath, destPath); err != nil {
		return fmt.Errorf("gunzip backup: %w", err)
	}

	checksum, err := checksumFile(destPath)
	if err != nil {
		return fmt.Errorf("checksum restored file: %w", err)
	}
	if checksum != m.Checksum {
		os.Remove(destPath)
		return fmt.Errorf("checksum mismatch: manifest has %s, restored file has %s", m.Checksum, checksum)
	}

	s.log.Info().Str("key", key).Str("dest", destPath).Msg("backup restored")
	return nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

func gzipFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	gw := gzip.NewWriter(dst)
	if _, err := io.Copy(gw, src); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}

func gunzipFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	gr, err := gzip.NewReader(src)
	if err != nil {
		return err
	}
	defer gr.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, gr)
	return err
}
