//go:build integration

// Package storagetest - общий набор проверок для клиентов хранилища блобов
// и контейнер MinIO, на котором они запускаются.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"

	"filevault/internal/domain"
	"filevault/internal/storage"
)

const (
	Bucket = "filevault-test"
	Region = "us-east-1"

	minioImage = "minio/minio:RELEASE.2024-01-16T16-07-38Z"
)

// Server - адрес и учётные данные запущенного MinIO
type Server struct {
	Endpoint  string
	AccessKey string
	SecretKey string
}

// StartMinio запускает MinIO и создаёт тестовый бакет
func StartMinio(t *testing.T) Server {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION is not set")
	}

	ctx := context.Background()

	container, err := tcminio.Run(ctx, minioImage,
		tcminio.WithUsername("filevault"),
		tcminio.WithPassword("filevault-secret"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	srv := Server{
		Endpoint:  endpoint,
		AccessKey: container.Username,
		SecretKey: container.Password,
	}

	mc, err := minio.New(srv.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(srv.AccessKey, srv.SecretKey, ""),
		Region: Region,
	})
	require.NoError(t, err)
	require.NoError(t, mc.MakeBucket(ctx, Bucket, minio.MakeBucketOptions{Region: Region}))

	return srv
}

// KeyLister возвращает ключи объектов бакета с префиксом
type KeyLister func(ctx context.Context, prefix string) ([]string, error)

// Pinger - клиент хранилища с проверкой доступности
type Pinger interface {
	storage.Store
	Ping(ctx context.Context) error
}

// RunStoreTests проверяет контракт storage.Store на настоящем хранилище
func RunStoreTests(t *testing.T, store Pinger, list KeyLister) {
	ctx := context.Background()

	requireNoObjects := func(t *testing.T, owner string) {
		t.Helper()
		keys, err := list(ctx, "files/"+owner+"/")
		require.NoError(t, err)
		assert.Empty(t, keys)
	}

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, store.Ping(ctx))
	})

	t.Run("put and get", func(t *testing.T) {
		data := bytes.Repeat([]byte("filevault "), 300)

		blob, err := store.Put(ctx, storage.PutInput{
			OwnerScope:   "owner-roundtrip",
			Body:         bytes.NewReader(data),
			ContentType:  "text/plain",
			DeclaredName: "notes.txt",
			MaxBytes:     int64(len(data)),
		})
		require.NoError(t, err)
		assert.EqualValues(t, len(data), blob.BytesWritten)
		assert.True(t, strings.HasPrefix(blob.BlobID, "files/owner-roundtrip/"), blob.BlobID)
		assert.True(t, strings.HasSuffix(blob.BlobID, "-notes.txt"), blob.BlobID)

		obj, err := store.Get(ctx, blob.BlobID)
		require.NoError(t, err)
		defer obj.Close()

		got, err := io.ReadAll(obj)
		require.NoError(t, err)
		assert.Equal(t, data, got)
		assert.EqualValues(t, blob.BytesWritten, obj.ContentLength)
		assert.Equal(t, "text/plain", obj.ContentType)
	})

	t.Run("over limit leaves no object", func(t *testing.T) {
		_, err := store.Put(ctx, storage.PutInput{
			OwnerScope:   "owner-small-over",
			Body:         bytes.NewReader(make([]byte, 1025)),
			ContentType:  "application/octet-stream",
			DeclaredName: "big.bin",
			MaxBytes:     1024,
		})
		require.ErrorIs(t, err, domain.ErrPayloadTooLarge)

		var tooLarge *domain.PayloadTooLargeError
		require.True(t, errors.As(err, &tooLarge))
		assert.EqualValues(t, 1024, tooLarge.Limit)

		requireNoObjects(t, "owner-small-over")
	})

	t.Run("over limit after the first part leaves no object", func(t *testing.T) {
		limit := int64(storage.PartSize + 1)

		_, err := store.Put(ctx, storage.PutInput{
			OwnerScope:   "owner-multipart-over",
			Body:         bytes.NewReader(make([]byte, storage.PartSize+4096)),
			ContentType:  "application/octet-stream",
			DeclaredName: "huge.bin",
			MaxBytes:     limit,
		})
		require.ErrorIs(t, err, domain.ErrPayloadTooLarge)

		requireNoObjects(t, "owner-multipart-over")
	})

	t.Run("exactly the limit is stored", func(t *testing.T) {
		blob, err := store.Put(ctx, storage.PutInput{
			OwnerScope:   "owner-exact",
			Body:         bytes.NewReader(make([]byte, 1024)),
			DeclaredName: "exact.bin",
			MaxBytes:     1024,
		})
		require.NoError(t, err)
		assert.EqualValues(t, 1024, blob.BytesWritten)

		obj, err := store.Get(ctx, blob.BlobID)
		require.NoError(t, err)
		defer obj.Close()
		assert.EqualValues(t, 1024, obj.ContentLength)
	})

	t.Run("missing blob", func(t *testing.T) {
		_, err := store.Get(ctx, "files/nobody/missing.bin")
		assert.ErrorIs(t, err, domain.ErrBlobNotFound)

		err = store.Delete(ctx, "files/nobody/missing.bin")
		assert.ErrorIs(t, err, domain.ErrBlobNotFound)
	})

	t.Run("delete twice", func(t *testing.T) {
		blob, err := store.Put(ctx, storage.PutInput{
			OwnerScope:   "owner-delete",
			Body:         strings.NewReader("bye"),
			DeclaredName: "bye.txt",
			MaxBytes:     1024,
		})
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, blob.BlobID))

		_, err = store.Get(ctx, blob.BlobID)
		assert.ErrorIs(t, err, domain.ErrBlobNotFound)
		assert.ErrorIs(t, store.Delete(ctx, blob.BlobID), domain.ErrBlobNotFound)

		requireNoObjects(t, "owner-delete")
	})
}
