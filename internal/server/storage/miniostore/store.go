// Package miniostore implements object storage over the native MinIO client.
package miniostore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrijs2005/materialkeeper/internal/logging"
	"github.com/dmitrijs2005/materialkeeper/internal/server/storage"
)

var tracer = otel.Tracer("materialkeeper/storage/minio")

type minioAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (*minio.Object, error)
	CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	PresignedPutObject(ctx context.Context, bucket, key string, expires time.Duration) (*url.URL, error)
}

// Options configures the MinIO client. Endpoint is host:port without scheme.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Store is a bucket-scoped MinIO object store.
type Store struct {
	client minioAPI
	bucket string
}

// New connects to MinIO and creates the bucket when it is missing.
func New(ctx context.Context, opts Options, log logging.Logger) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	s := &Store{client: client, bucket: opts.Bucket}
	if err := s.ensureBucket(ctx, opts.Region, log); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context, region string, log logging.Logger) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	log.Info(ctx, "creating bucket", "bucket", s.bucket)
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (s *Store) HeadObject(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	ctx, span := startSpan(ctx, "minio.stat_object", key)
	defer span.End()

	oi, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, fail(span, "stat object", key, err)
	}

	size := oi.Size
	span.SetAttributes(attribute.Int64("size_bytes", size))
	return &storage.ObjectInfo{Size: &size, ContentType: oi.ContentType, ETag: oi.ETag}, nil
}

func (s *Store) GetObjectBytes(ctx context.Context, key string) ([]byte, error) {
	ctx, span := startSpan(ctx, "minio.get_object", key)
	defer span.End()

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fail(span, "get object", key, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fail(span, "read object", key, err)
	}
	span.SetAttributes(attribute.Int("size_bytes", len(data)))
	return data, nil
}

func (s *Store) CopyObject(ctx context.Context, src, dst, contentType string) error {
	ctx, span := startSpan(ctx, "minio.copy_object", dst)
	defer span.End()
	span.SetAttributes(attribute.String("source_key", src))

	dstOpts := minio.CopyDestOptions{Bucket: s.bucket, Object: dst}
	if contentType != "" {
		dstOpts.ReplaceMetadata = true
		dstOpts.UserMetadata = map[string]string{"Content-Type": contentType}
	}
	if _, err := s.client.CopyObject(ctx, dstOpts, minio.CopySrcOptions{Bucket: s.bucket, Object: src}); err != nil {
		return fail(span, "copy object", src, err)
	}
	return nil
}

func (s *Store) DeleteObject(ctx context.Context, key string) error {
	ctx, span := startSpan(ctx, "minio.remove_object", key)
	defer span.End()

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fail(span, "remove object", key, err)
	}
	return nil
}

// CreatePresignedPutURL returns a URL the client can PUT the object to.
// MinIO does not sign the content type, so contentType is not enforced.
func (s *Store) CreatePresignedPutURL(ctx context.Context, key, _ string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, ttl)
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}
	return u.String(), nil
}

func startSpan(ctx context.Context, name, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("object_key", key)))
}

func fail(span trace.Span, op, key string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	if isNotFound(err) {
		return fmt.Errorf("%s %s: %w", op, key, storage.ErrObjectNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound" || resp.StatusCode == http.StatusNotFound
}
