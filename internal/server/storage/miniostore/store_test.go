package miniostore

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/materialkeeper/internal/logging"
	"github.com/dmitrijs2005/materialkeeper/internal/server/storage"
)

type fakeMinio struct {
	minioAPI

	exists  bool
	made    bool
	stat    minio.ObjectInfo
	err     error
	copyDst minio.CopyDestOptions
	copySrc minio.CopySrcOptions
	removed string
}

func (f *fakeMinio) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return f.exists, f.err
}

func (f *fakeMinio) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	f.made = true
	return nil
}

func (f *fakeMinio) StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return f.stat, f.err
}

func (f *fakeMinio) GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (*minio.Object, error) {
	return nil, f.err
}

func (f *fakeMinio) CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error) {
	f.copyDst, f.copySrc = dst, src
	return minio.UploadInfo{}, f.err
}

func (f *fakeMinio) RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error {
	f.removed = key
	return f.err
}

func (f *fakeMinio) PresignedPutObject(ctx context.Context, bucket, key string, expires time.Duration) (*url.URL, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &url.URL{Scheme: "http", Host: "minio:9000", Path: "/" + bucket + "/" + key}, nil
}

func TestEnsureBucket(t *testing.T) {
	fake := &fakeMinio{exists: false}
	s := &Store{client: fake, bucket: "b"}
	require.NoError(t, s.ensureBucket(context.Background(), "us-east-1", logging.Nop()))
	assert.True(t, fake.made)

	fake = &fakeMinio{exists: true}
	s = &Store{client: fake, bucket: "b"}
	require.NoError(t, s.ensureBucket(context.Background(), "us-east-1", logging.Nop()))
	assert.False(t, fake.made)
}

func TestHeadObject(t *testing.T) {
	fake := &fakeMinio{stat: minio.ObjectInfo{Size: 42, ContentType: "text/plain", ETag: "abc"}}
	s := &Store{client: fake, bucket: "b"}

	info, err := s.HeadObject(context.Background(), "tmp/k")
	require.NoError(t, err)
	require.NotNil(t, info.Size)
	assert.Equal(t, int64(42), *info.Size)
	assert.Equal(t, "text/plain", info.ContentType)
	assert.Equal(t, "abc", info.ETag)
}

func TestHeadObject_NotFound(t *testing.T) {
	cases := []error{
		minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound},
		minio.ErrorResponse{Code: "NotFound"},
		minio.ErrorResponse{StatusCode: http.StatusNotFound},
	}
	for _, cause := range cases {
		s := &Store{client: &fakeMinio{err: cause}, bucket: "b"}
		_, err := s.HeadObject(context.Background(), "tmp/k")
		assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	}

	s := &Store{client: &fakeMinio{err: minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}}, bucket: "b"}
	_, err := s.HeadObject(context.Background(), "tmp/k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestGetObjectBytes_Error(t *testing.T) {
	s := &Store{client: &fakeMinio{err: minio.ErrorResponse{Code: "NoSuchKey"}}, bucket: "b"}
	_, err := s.GetObjectBytes(context.Background(), "k")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestCopyObject(t *testing.T) {
	fake := &fakeMinio{}
	s := &Store{client: fake, bucket: "b"}

	require.NoError(t, s.CopyObject(context.Background(), "tmp/k", "materials/k.pdf", "application/pdf"))
	assert.Equal(t, "tmp/k", fake.copySrc.Object)
	assert.Equal(t, "materials/k.pdf", fake.copyDst.Object)
	assert.True(t, fake.copyDst.ReplaceMetadata)
	assert.Equal(t, "application/pdf", fake.copyDst.UserMetadata["Content-Type"])

	fake.err = errors.New("boom")
	assert.Error(t, s.CopyObject(context.Background(), "tmp/k", "materials/k.pdf", ""))
}

func TestDeleteObject(t *testing.T) {
	fake := &fakeMinio{}
	s := &Store{client: fake, bucket: "b"}

	require.NoError(t, s.DeleteObject(context.Background(), "tmp/k"))
	assert.Equal(t, "tmp/k", fake.removed)
}

func TestCreatePresignedPutURL(t *testing.T) {
	s := &Store{client: &fakeMinio{}, bucket: "b"}

	u, err := s.CreatePresignedPutURL(context.Background(), "tmp/k", "text/plain", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/b/tmp/k", u)
}
