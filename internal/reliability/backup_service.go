// Package reliability snapshots the SQLite databases into an S3 bucket.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/finz/cashflow-risk/internal/database"
	"github.com/rs/zerolog"
)

const (
	archivePrefix    = "backup-"
	archiveSuffix    = ".tar.gz"
	archiveLayout    = "2006-01-02-150405"
	metadataFile     = "backup-metadata.json"
	backupFormat     = "1"
	minBackupsToKeep = 3
)

// ObjectStore is the subset of the S3 client backups need
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// BackupMetadata is written into every archive next to the database copies
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Format    string             `json:"format"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes one database copy inside an archive
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo describes an archive stored in the bucket
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupService archives the SQLite databases and uploads them to a bucket.
// A Postgres ledger has no local file and is not part of the archive.
type BackupService struct {
	client    ObjectStore
	bucket    string
	prefix    string
	dataDir   string
	databases map[string]*database.DB
	now       func() time.Time
	log       zerolog.Logger
}

// NewBackupService creates a backup service; nil databases are skipped
func NewBackupService(
	client ObjectStore,
	bucket, prefix, dataDir string,
	databases map[string]*database.DB,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		client:    client,
		bucket:    bucket,
		prefix:    strings.Trim(prefix, "/"),
		dataDir:   dataDir,
		databases: databases,
		now:       time.Now,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

func (s *BackupService) key(name string) string {
	return path.Join(s.prefix, "backups", name)
}

func (s *BackupService) databaseNames() []string {
	names := make([]string, 0, len(s.databases))
	for name, db := range s.databases {
		if db != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// CreateAndUploadBackup snapshots every database with VACUUM INTO, packs the
// copies and their checksums into a tar.gz and uploads it. Returns the object key.
func (s *BackupService) CreateAndUploadBackup(ctx context.Context) (string, error) {
	s.log.Info().Msg("Starting backup")
	startTime := time.Now()

	stagingDir, err := os.MkdirTemp(s.dataDir, "backup-staging-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	names := s.databaseNames()
	if len(names) == 0 {
		return "", fmt.Errorf("no databases to back up")
	}

	metadata := BackupMetadata{
		Timestamp: s.now().UTC(),
		Format:    backupFormat,
		Databases: make([]DatabaseMetadata, 0, len(names)),
	}
	files := make([]string, 0, len(names)+1)

	for _, name := range names {
		filename := name + ".db"
		dest := filepath.Join(stagingDir, filename)

		if err := snapshot(ctx, s.databases[name], dest); err != nil {
			return "", fmt.Errorf("failed to back up %s: %w", name, err)
		}

		info, err := os.Stat(dest)
		if err != nil {
			return "", fmt.Errorf("failed to stat %s backup: %w", name, err)
		}
		checksum, err := fileChecksum(dest)
		if err != nil {
			return "", fmt.Errorf("failed to checksum %s backup: %w", name, err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      name,
			Filename:  filename,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
		files = append(files, filename)
	}

	if err := writeMetadata(filepath.Join(stagingDir, metadataFile), metadata); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}
	files = append(files, metadataFile)

	archiveName := archivePrefix + metadata.Timestamp.Format(archiveLayout) + archiveSuffix
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, stagingDir, files); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	info, err := archive.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat archive: %w", err)
	}

	key := s.key(archiveName)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          archive,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/gzip"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload backup: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("key", key).
		Int64("size_bytes", info.Size()).
		Int("databases", len(names)).
		Msg("Backup completed successfully")

	return key, nil
}

// ListBackups lists archives in the bucket, newest first
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	prefix := s.key(archivePrefix)
	now := s.now()
	var backups []BackupInfo

	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list backups: %w", err)
		}

		for _, obj := range out.Contents {
			if obj.Key == nil {
				continue
			}
			ts, ok := parseArchiveTimestamp(path.Base(*obj.Key))
			if !ok {
				s.log.Warn().Str("key", *obj.Key).Msg("Failed to parse timestamp from backup key")
				continue
			}
			var size int64
			if obj.Size != nil {
				size = *obj.Size
			}
			backups = append(backups, BackupInfo{
				Key:       *obj.Key,
				Timestamp: ts,
				SizeBytes: size,
				AgeHours:  int64(now.Sub(ts).Hours()),
			})
		}

		if out.IsTruncated == nil || !*out.IsTruncated || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes archives older than retentionDays.
// The newest three are always kept and a retention of 0 keeps everything.
func (s *BackupService) RotateOldBackups(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= minBackupsToKeep {
		s.log.Debug().Int("count", len(backups)).Msg("Too few backups to rotate")
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, backup := range backups[minBackupsToKeep:] {
		if !backup.Timestamp.Before(cutoff) {
			continue
		}
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(backup.Key),
		})
		if err != nil {
			s.log.Error().Err(err).Str("key", backup.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")
	return deleted, nil
}

func parseArchiveTimestamp(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, archiveSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, archivePrefix), archiveSuffix)
	ts, err := time.Parse(archiveLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// snapshot writes a consistent copy of a live database to dest
func snapshot(ctx context.Context, db *database.DB, dest string) error {
	_, err := db.ExecContext(ctx, "VACUUM INTO ?", dest)
	return err
}

func fileChecksum(filePath string) (string, error) {
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

func writeMetadata(filePath string, metadata BackupMetadata) error {
	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

func createArchive(archivePath, sourceDir string, files []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, name := range files {
		if err := addFile(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzipWriter.Close()
}

func addFile(tw *tar.Writer, filePath, name string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, file)
	return err
}
