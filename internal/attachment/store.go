// Package attachment keeps transient transfer archives in an S3 bucket.
package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/matheus3301/wpplink/internal/config"
	"github.com/matheus3301/wpplink/internal/linksync"
	"github.com/matheus3301/wpplink/internal/store"
	"go.uber.org/zap"
)

const keyPrefix = "transfer/"

// MaxPayloadSize caps downloads so a hostile key cannot exhaust memory.
const MaxPayloadSize = 512 << 20

var (
	ErrWrongCDN        = errors.New("attachment: archive is on another cdn")
	ErrInvalidKey      = errors.New("attachment: invalid key")
	ErrPayloadTooLarge = errors.New("attachment: payload too large")
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Tracker remembers uploads so the janitor can delete them later.
type Tracker interface {
	RecordTransfer(ctx context.Context, t store.Transfer) error
}

// Store implements linksync.Attachments.
type Store struct {
	client  S3API
	bucket  string
	cdn     uint32
	logger  *zap.Logger
	tracker Tracker
	now     func() time.Time
}

var _ linksync.Attachments = (*Store)(nil)

func NewStore(client S3API, bucket string, cdn uint32, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, bucket: bucket, cdn: cdn, logger: logger, now: time.Now}
}

// WithTracker records every successful upload in t.
func (s *Store) WithTracker(t Tracker) *Store {
	s.tracker = t
	return s
}

// NewS3Client builds an S3 client from the storage section. Static
// credentials win over the default chain when both keys are set; a custom
// endpoint switches to path-style addressing.
func NewS3Client(ctx context.Context, cfg config.StorageConfig) (*s3.Client, error) {
	var loaders []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loaders = append(loaders, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("attachment: load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Upload stores payload under a fresh random key.
func (s *Store) Upload(ctx context.Context, payload []byte) (linksync.TransferArchive, error) {
	key := keyPrefix + uuid.NewString()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return linksync.TransferArchive{}, fmt.Errorf("attachment: s3 put %s: %w", key, err)
	}
	s.logger.Info("uploaded transfer archive", zap.String("key", key), zap.Int("bytes", len(payload)))
	if s.tracker != nil {
		t := store.Transfer{Key: key, CDN: s.cdn, UploadedAt: s.now().UnixMilli()}
		if err := s.tracker.RecordTransfer(ctx, t); err != nil {
			s.logger.Warn("failed to track transfer archive", zap.String("key", key), zap.Error(err))
		}
	}
	return linksync.TransferArchive{CDN: s.cdn, Key: key}, nil
}

// Download fetches the payload ta points at.
func (s *Store) Download(ctx context.Context, ta linksync.TransferArchive) ([]byte, error) {
	if ta.CDN != s.cdn {
		return nil, fmt.Errorf("%w: %d", ErrWrongCDN, ta.CDN)
	}
	if !validKey(ta.Key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, ta.Key)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ta.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("attachment: s3 get %s: %w", ta.Key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(out.Body, MaxPayloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("attachment: read %s: %w", ta.Key, err)
	}
	if len(data) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	s.logger.Info("downloaded transfer archive", zap.String("key", ta.Key), zap.Int("bytes", len(data)))
	return data, nil
}

// Delete removes an uploaded archive. Deleting a missing key succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("attachment: s3 delete %s: %w", key, err)
	}
	return nil
}

func validKey(key string) bool {
	if len(key) <= len(keyPrefix) || key[:len(keyPrefix)] != keyPrefix {
		return false
	}
	_, err := uuid.Parse(key[len(keyPrefix):])
	return err == nil
}
