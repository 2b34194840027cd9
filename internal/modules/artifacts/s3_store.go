package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ObjectAPI is the subset of the S3 client the store reads with
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader is the subset of the S3 upload manager used for artifact blobs
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Config configures the bucket artifacts are stored in.
// Endpoint is set for S3-compatible stores such as MinIO or R2.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store keeps artifact blobs under <prefix>/artifacts/<version>.msgpack and
// publishes the newest version by rewriting <prefix>/LATEST after the blob upload.
type S3Store struct {
	client   ObjectAPI
	uploader Uploader
	bucket   string
	prefix   string
	breaker  *gobreaker.CircuitBreaker
	log      zerolog.Logger
}

// NewS3Client builds an S3 client and upload manager from cfg
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, *manager.Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return client, manager.NewUploader(client), nil
}

// NewS3Store creates an artifact store over an S3 bucket
func NewS3Store(client ObjectAPI, uploader Uploader, bucket, prefix string, log zerolog.Logger) *S3Store {
	l := log.With().Str("repo", "s3_artifacts").Str("bucket", bucket).Logger()
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "s3-artifacts",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			// A missing object is an answer, not an outage
			var nsk *types.NoSuchKey
			return err == nil || errors.As(err, &nsk)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})
	return &S3Store{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		breaker:  breaker,
		log:      l,
	}
}

func (s *S3Store) key(parts ...string) string {
	return path.Join(append([]string{s.prefix}, parts...)...)
}

func (s *S3Store) blobKey(version string) string {
	return s.key("artifacts", version+".msgpack")
}

// Save uploads the artifact blob, then advances LATEST if this version is newer
func (s *S3Store) Save(ctx context.Context, artifact *ModelArtifact) (string, error) {
	payload, err := Encode(artifact)
	if err != nil {
		return "", err
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.blobKey(artifact.Version)),
			Body:        bytes.NewReader(payload),
			ContentType: aws.String("application/msgpack"),
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact %s: %w", artifact.Version, err)
	}

	current, err := s.latestVersion(ctx)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	if current >= artifact.Version {
		s.log.Warn().Str("version", artifact.Version).Str("latest", current).Msg("Newer artifact already published, leaving LATEST unchanged")
		return artifact.Version, nil
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.key("LATEST")),
			Body:        strings.NewReader(artifact.Version),
			ContentType: aws.String("text/plain"),
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish artifact %s: %w", artifact.Version, err)
	}

	s.log.Info().Str("version", artifact.Version).Int("bytes", len(payload)).Msg("Saved model artifact")
	return artifact.Version, nil
}

// LoadLatest follows the LATEST pointer to the published artifact
func (s *S3Store) LoadLatest(ctx context.Context) (*ModelArtifact, error) {
	version, err := s.latestVersion(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := s.get(ctx, s.blobKey(version))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", version, err)
	}
	return Decode(payload)
}

func (s *S3Store) latestVersion(ctx context.Context) (string, error) {
	b, err := s.get(ctx, s.key("LATEST"))
	if err != nil {
		return "", err
	}
	version := strings.TrimSpace(string(b))
	if version == "" {
		return "", &domain.DataNotFoundError{What: "trained model"}
	}
	return version, nil
}

func (s *S3Store) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, &domain.DataNotFoundError{What: "trained model"}
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	return out.([]byte), nil
}
