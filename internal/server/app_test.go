package server

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/materialkeeper/internal/logging"
	"github.com/dmitrijs2005/materialkeeper/internal/server/config"
	"github.com/dmitrijs2005/materialkeeper/internal/server/storage/s3store"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	return c
}

func TestNewObjectStore_S3(t *testing.T) {
	c := testConfig()
	c.StorageBackend = config.StorageS3

	st, err := NewObjectStore(context.Background(), c, logging.Nop())
	require.NoError(t, err)
	assert.IsType(t, &s3store.Store{}, st)
}

func TestNewObjectStore_UnknownBackend(t *testing.T) {
	c := testConfig()
	c.StorageBackend = "ftp"

	_, err := NewObjectStore(context.Background(), c, logging.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown storage backend "ftp"`)
}

func TestMinioEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		useSSL     bool
		wantHost   string
		wantSecure bool
	}{
		{"http url", "http://127.0.0.1:9000/", false, "127.0.0.1:9000", false},
		{"https url", "https://minio.local", false, "minio.local", true},
		{"bare host", "minio:9000/", false, "minio:9000", false},
		{"bare host with ssl flag", "minio:9000", true, "minio:9000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, secure, err := minioEndpoint(tt.raw, tt.useSSL)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantSecure, secure)
		})
	}
}

func TestOpenDB_PingFails(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(string) (*sql.DB, error) { return db, nil }

	_, _, err = OpenDB(context.Background(), testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db ping error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenDB_OpenFails(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(string) (*sql.DB, error) { return nil, errors.New("bad dsn") }

	_, _, err := OpenDB(context.Background(), testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db init error")
}
