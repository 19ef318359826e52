// Package reliability snapshots the price store to object storage.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aristath/frontier/internal/database"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

const (
	archivePrefix   = "frontier-backup-"
	metadataFile    = "backup-metadata.json"
	timestampLayout = "2006-01-02-150405"
)

// Uploader is the part of manager.Uploader the backup uses.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// BackupMetadata describes one archive
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Key       string             `json:"key"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes a single database inside the archive
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupService writes a consistent copy of a database into a tar.gz
// archive and uploads it under bucket/prefix.
type BackupService struct {
	db       *database.DB
	uploader Uploader
	bucket   string
	prefix   string
	stageDir string
	now      func() time.Time
	log      zerolog.Logger
}

// NewBackupService creates a backup service. stageDir holds the
// temporary snapshot; an empty value uses the OS temp directory.
func NewBackupService(db *database.DB, uploader Uploader, bucket, prefix, stageDir string, log zerolog.Logger) *BackupService {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &BackupService{
		db:       db,
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
		stageDir: stageDir,
		now:      time.Now,
		log:      log.With().Str("service", "backup").Logger(),
	}
}

// CreateAndUpload snapshots the database, verifies the copy, and uploads
// the archive. The staging directory is always removed.
func (s *BackupService) CreateAndUpload(ctx context.Context) (*BackupMetadata, error) {
	startTime := time.Now()

	if s.stageDir != "" {
		if err := os.MkdirAll(s.stageDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create staging directory: %w", err)
		}
	}
	staging, err := os.MkdirTemp(s.stageDir, "backup-staging-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	timestamp := s.now().UTC()
	metadata := BackupMetadata{
		Timestamp: timestamp,
		Key:       s.prefix + archivePrefix + timestamp.Format(timestampLayout) + ".tar.gz",
	}

	dbFile := s.db.Name() + ".db"
	dbPath := filepath.Join(staging, dbFile)
	if err := s.snapshot(ctx, dbPath); err != nil {
		return nil, err
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	checksum, err := calculateChecksum(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate checksum: %w", err)
	}
	metadata.Databases = append(metadata.Databases, DatabaseMetadata{
		Name:      s.db.Name(),
		Filename:  dbFile,
		SizeBytes: info.Size(),
		Checksum:  checksum,
	})

	if err := writeMetadata(filepath.Join(staging, metadataFile), metadata); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}

	archivePath := filepath.Join(staging, "archive.tar.gz")
	if err := createArchive(archivePath, staging, []string{dbFile, metadataFile}); err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(metadata.Key),
		Body:        archive,
		ContentType: aws.String("application/gzip"),
	}); err != nil {
		return nil, fmt.Errorf("failed to upload backup to s3://%s/%s: %w", s.bucket, metadata.Key, err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("key", metadata.Key).
		Int64("size_bytes", info.Size()).
		Msg("Backup uploaded")

	return &metadata, nil
}

// snapshot copies the live database with VACUUM INTO and checks the copy.
func (s *BackupService) snapshot(ctx context.Context, path string) error {
	if _, err := s.db.Conn().ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("VACUUM INTO failed for %s: %w", s.db.Name(), err)
	}

	copyDB, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer copyDB.Close()

	var result string
	if err := copyDB.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("snapshot integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("snapshot integrity check failed: %s", result)
	}
	return nil
}

// calculateChecksum returns the SHA256 of a file
func calculateChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

// createArchive packs the named files of sourceDir into a tar.gz
func createArchive(archivePath, sourceDir string, names []string) (err error) {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		if cerr := archiveFile.Close(); err == nil {
			err = cerr
		}
	}()

	gzipWriter := gzip.NewWriter(archiveFile)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, name := range names {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzipWriter.Close()
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tarWriter, file)
	return err
}
