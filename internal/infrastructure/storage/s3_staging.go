package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	infraconfig "github.com/invsync/backend/internal/infrastructure/config"
)

const stagingPrefix = "staging/"

// S3StagingStore keeps staging buffers in an S3-compatible bucket
// (AWS S3, MinIO, RustFS), so multiple instances share the same
// staged files.
type S3StagingStore struct {
	client *s3.Client
	bucket string
	logger *zap.Logger
}

// S3StagingOption configures an S3StagingStore.
type S3StagingOption func(*S3StagingStore)

// WithLogger sets the store's logger.
func WithLogger(logger *zap.Logger) S3StagingOption {
	return func(s *S3StagingStore) { s.logger = logger }
}

// NewS3StagingStore creates an S3-backed staging store from config.
func NewS3StagingStore(cfg *infraconfig.StorageConfig, opts ...S3StagingOption) (*S3StagingStore, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("storage credentials are required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if cfg.UseSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid storage endpoint: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})

	store := &S3StagingStore{client: client, bucket: cfg.Bucket, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// EnsureBucket creates the bucket if it does not exist. Called once at
// startup.
func (s *S3StagingStore) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("check bucket: %w", err)
	}

	s.logger.Info("creating staging bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Put uploads the buffer, replacing any previous one for the source.
func (s *S3StagingStore) Put(ctx context.Context, source string, data []byte) (StagedFile, error) {
	key := stagingKey(source)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return StagedFile{}, fmt.Errorf("stage %s: %w", source, err)
	}
	return StagedFile{
		Key:        key,
		Source:     source,
		Size:       int64(len(data)),
		UploadedAt: time.Now().UTC(),
	}, nil
}

// Get downloads the staged buffer for the source.
func (s *S3StagingStore) Get(ctx context.Context, source string) ([]byte, StagedFile, error) {
	key := stagingKey(source)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, StagedFile{}, fmt.Errorf("%w: %s", ErrNotStaged, source)
		}
		return nil, StagedFile{}, fmt.Errorf("read staged %s: %w", source, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, StagedFile{}, fmt.Errorf("read staged %s: %w", source, err)
	}

	file := StagedFile{Key: key, Source: source, Size: int64(len(data))}
	if out.LastModified != nil {
		file.UploadedAt = out.LastModified.UTC()
	}
	return data, file, nil
}

// Delete removes the staged buffer. Missing objects are not an error.
func (s *S3StagingStore) Delete(ctx context.Context, source string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(stagingKey(source)),
	})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("delete staged %s: %w", source, err)
	}
	return nil
}

// List returns all staged buffers under the staging prefix.
func (s *S3StagingStore) List(ctx context.Context) ([]StagedFile, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(stagingPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("list staged files: %w", err)
	}

	var files []StagedFile
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		source := strings.TrimSuffix(strings.TrimPrefix(key, stagingPrefix), ".csv")
		file := StagedFile{Key: key, Source: source, Size: aws.ToInt64(obj.Size)}
		if obj.LastModified != nil {
			file.UploadedAt = obj.LastModified.UTC()
		}
		files = append(files, file)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Source < files[j].Source })
	return files, nil
}

func isNoSuchKey(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	// Some S3-compatible services report the code without a typed error.
	return strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "NotFound")
}

var _ StagingStore = (*S3StagingStore)(nil)
