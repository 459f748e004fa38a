package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filevault/internal/domain"
	"filevault/internal/metrics"
	"filevault/internal/storage"
)

func TestUploadService_PNG(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	file, err := env.uploader.Upload(context.Background(), UploadRequest{
		OwnerID:      "user-1",
		Body:         bytes.NewReader(make([]byte, 10240)),
		ContentType:  "image/png",
		DeclaredName: "photo.png",
		DeclaredSize: 10240,
	})
	require.NoError(t, err)

	assert.EqualValues(t, 10240, file.SizeBytes)
	assert.Equal(t, "image/png", file.ContentType)
	assert.Equal(t, "user-1", file.OwnerID)
	assert.Equal(t, "photo.png", file.OriginalName)
	assert.NotEmpty(t, file.ID)
	assert.True(t, env.store.Has(file.StorageName))
	env.requireConsistent(t, "user-1")
}

func TestUploadService_KeepsDeclaredName(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	file, err := env.uploader.Upload(context.Background(), UploadRequest{
		OwnerID:      "user-1",
		Body:         bytes.NewReader([]byte("draft")),
		ContentType:  "text/plain",
		DeclaredName: "  notes v2 .txt ",
	})
	require.NoError(t, err)
	assert.Equal(t, "  notes v2 .txt ", file.OriginalName)

	dl, err := env.files.Retrieve(context.Background(), "user-1", file.ID)
	require.NoError(t, err)
	defer dl.Body.Close()
	assert.Equal(t, "  notes v2 .txt ", dl.DisplayName)
}

func TestUploadService_SizeMeasuredNotDeclared(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	file, err := env.uploader.Upload(context.Background(), UploadRequest{
		OwnerID:      "user-1",
		Body:         bytes.NewReader(make([]byte, 300)),
		DeclaredName: "a.bin",
		DeclaredSize: 5,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 300, file.SizeBytes)
	assert.Equal(t, "application/octet-stream", file.ContentType)
}

func TestUploadService_SizeBoundary(t *testing.T) {
	const limit = 1024

	t.Run("exactly the limit", func(t *testing.T) {
		env := newTestEnv(t, UploadLimits{MaxUploadBytes: limit})

		file, err := env.uploader.Upload(context.Background(), UploadRequest{
			OwnerID:      "user-1",
			Body:         sizedReader(limit),
			DeclaredName: "edge.bin",
			DeclaredSize: -1,
		})
		require.NoError(t, err)
		assert.EqualValues(t, limit, file.SizeBytes)
	})

	t.Run("one byte over while streaming", func(t *testing.T) {
		env := newTestEnv(t, UploadLimits{MaxUploadBytes: limit})

		_, err := env.uploader.Upload(context.Background(), UploadRequest{
			OwnerID:      "user-1",
			Body:         sizedReader(limit + 1),
			DeclaredName: "edge.bin",
			DeclaredSize: -1,
		})
		require.ErrorIs(t, err, domain.ErrPayloadTooLarge)

		var tooLarge *domain.PayloadTooLargeError
		require.ErrorAs(t, err, &tooLarge)
		assert.EqualValues(t, limit, tooLarge.Limit)
		assert.Zero(t, env.repo.Len())
		assert.Zero(t, env.store.Len())
	})

	t.Run("declared size over the limit is rejected before writing", func(t *testing.T) {
		env := newTestEnv(t, UploadLimits{MaxUploadBytes: limit})

		_, err := env.uploader.Upload(context.Background(), UploadRequest{
			OwnerID:      "user-1",
			Body:         sizedReader(10),
			DeclaredName: "edge.bin",
			DeclaredSize: limit + 1,
		})
		require.ErrorIs(t, err, domain.ErrPayloadTooLarge)
		assert.Zero(t, env.store.Puts())
	})
}

func TestUploadService_TwentyFiveMegabytes(t *testing.T) {
	env := newTestEnv(t, UploadLimits{MaxUploadBytes: 20 << 20})

	_, err := env.uploader.Upload(context.Background(), UploadRequest{
		OwnerID:      "user-1",
		Body:         sizedReader(25 << 20),
		ContentType:  "video/mp4",
		DeclaredName: "movie.mp4",
		DeclaredSize: -1,
	})

	require.ErrorIs(t, err, domain.ErrPayloadTooLarge)
	assert.Zero(t, env.repo.Len())
	assert.Zero(t, env.store.Len())
	assert.Equal(t, 1.0, env.counter(t, "filevault_uploads_total", map[string]string{"result": metrics.ResultRejected}))
}

func TestUploadService_Validation(t *testing.T) {
	limits := UploadLimits{
		MaxUploadBytes: testMaxUpload,
		AllowedTypes:   []string{"image/png", "application/pdf"},
	}

	tests := []struct {
		name    string
		req     UploadRequest
		wantErr error
	}{
		{
			name:    "missing owner",
			req:     UploadRequest{Body: bytes.NewReader(nil), ContentType: "image/png", DeclaredName: "a.png"},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "missing body",
			req:     UploadRequest{OwnerID: "u1", ContentType: "image/png", DeclaredName: "a.png"},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "blank name",
			req:     UploadRequest{OwnerID: "u1", Body: bytes.NewReader(nil), ContentType: "image/png", DeclaredName: "  "},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "name is not utf-8",
			req:     UploadRequest{OwnerID: "u1", Body: bytes.NewReader([]byte("x")), ContentType: "image/png", DeclaredName: "bad\xff\xfe.png"},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "name with nul byte",
			req:     UploadRequest{OwnerID: "u1", Body: bytes.NewReader([]byte("x")), ContentType: "image/png", DeclaredName: "nul\x00.png"},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "type not allowed",
			req:     UploadRequest{OwnerID: "u1", Body: bytes.NewReader(nil), ContentType: "text/html", DeclaredName: "a.html"},
			wantErr: domain.ErrUnsupportedType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, limits)

			_, err := env.uploader.Upload(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Zero(t, env.store.Puts())
			assert.Zero(t, env.repo.Len())
		})
	}
}

func TestUploadService_AllowListIgnoresParameters(t *testing.T) {
	env := newTestEnv(t, UploadLimits{MaxUploadBytes: testMaxUpload, AllowedTypes: []string{"text/plain"}})

	file, err := env.uploader.Upload(context.Background(), UploadRequest{
		OwnerID:      "u1",
		Body:         bytes.NewReader([]byte("hello")),
		ContentType:  "Text/Plain; charset=utf-8",
		DeclaredName: "notes.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, "Text/Plain; charset=utf-8", file.ContentType, "content type is stored verbatim")
}

func TestUploadService_BlobWriteFailure(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	env.store.FailPut = errors.New("connection reset")

	_, err := env.uploader.Upload(context.Background(), UploadRequest{
		OwnerID:      "u1",
		Body:         bytes.NewReader([]byte("data")),
		DeclaredName: "a.txt",
	})

	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.True(t, domain.IsRetryable(err))
	assert.NotErrorIs(t, err, domain.ErrOrphanedResource)
	assert.Zero(t, env.repo.Len())
}

func TestUploadService_RollbackOnMetadataFailure(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	env.repo.FailCreate = errors.New("database is down")

	_, err := env.uploader.Upload(context.Background(), UploadRequest{
		OwnerID:      "u1",
		Body:         bytes.NewReader([]byte("data")),
		DeclaredName: "a.txt",
	})
	require.Error(t, err)

	var opErr *domain.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.False(t, opErr.Orphaned)
	assert.True(t, opErr.Retryable)
	assert.NotErrorIs(t, err, domain.ErrOrphanedResource)

	assert.Equal(t, 1, env.store.Puts())
	assert.Equal(t, 1, env.store.Deletes())
	assert.Zero(t, env.store.Len(), "blob must be removed")
	assert.Zero(t, env.repo.Len())
	assert.Equal(t, 1.0, env.counter(t, "filevault_uploads_total", map[string]string{"result": metrics.ResultRolledBack}))
}

func TestUploadService_OrphanWhenRollbackFails(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	env.repo.FailCreate = errors.New("database is down")
	env.store.FailDelete = errors.New("store is down")

	_, err := env.uploader.Upload(context.Background(), UploadRequest{
		OwnerID:      "u1",
		Body:         bytes.NewReader([]byte("data")),
		DeclaredName: "a.txt",
	})

	require.ErrorIs(t, err, domain.ErrOrphanedResource)

	var opErr *domain.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.True(t, opErr.Orphaned)
	assert.NotEmpty(t, opErr.BlobID)
	assert.True(t, env.store.Has(opErr.BlobID))
	assert.Zero(t, env.repo.Len())
	assert.Equal(t, 1.0, env.counter(t, "filevault_orphaned_blobs_total", nil))
}

func TestUploadService_CancelledBeforeWrite(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.uploader.Upload(ctx, UploadRequest{
		OwnerID:      "u1",
		Body:         bytes.NewReader([]byte("data")),
		DeclaredName: "a.txt",
	})

	require.Error(t, err)
	assert.Zero(t, env.store.Len())
	assert.Zero(t, env.repo.Len())
}

// cancellingStore отменяет контекст запроса сразу после записи блоба
type cancellingStore struct {
	storage.Store
	cancel context.CancelFunc
}

func (s cancellingStore) Put(ctx context.Context, in storage.PutInput) (*domain.BlobInfo, error) {
	info, err := s.Store.Put(ctx, in)
	s.cancel()
	return info, err
}

func TestUploadService_CancelledAfterWrite(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uploader := NewUploadService(env.repo, cancellingStore{Store: env.store, cancel: cancel}, defaultLimits(), nil, env.uploader.log)

	_, err := uploader.Upload(ctx, UploadRequest{
		OwnerID:      "u1",
		Body:         bytes.NewReader([]byte("data")),
		DeclaredName: "a.txt",
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, env.store.Deletes())
	assert.Zero(t, env.store.Len())
	assert.Zero(t, env.repo.Len())
}

func TestUploadService_BatchIsIndependent(t *testing.T) {
	env := newTestEnv(t, UploadLimits{MaxUploadBytes: 100})

	src := &sliceSource{reqs: []UploadRequest{
		{OwnerID: "u1", Body: sizedReader(10), DeclaredName: "one.bin"},
		{OwnerID: "u1", Body: sizedReader(101), DeclaredName: "big.bin"},
		{OwnerID: "u1", Body: sizedReader(20), DeclaredName: "three.bin"},
	}}

	results, err := env.uploader.UploadBatch(context.Background(), src, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, domain.ErrPayloadTooLarge)
	assert.Nil(t, results[1].File)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "big.bin", results[1].Name)

	assert.Equal(t, 2, env.repo.Len())
	env.requireConsistent(t, "u1")
}

func TestUploadService_BatchLimit(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	src := &sliceSource{reqs: []UploadRequest{
		{OwnerID: "u1", Body: sizedReader(1), DeclaredName: "a"},
		{OwnerID: "u1", Body: sizedReader(1), DeclaredName: "b"},
		{OwnerID: "u1", Body: sizedReader(1), DeclaredName: "c"},
	}}

	results, err := env.uploader.UploadBatch(context.Background(), src, 2)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, env.repo.Len(), "files before the limit stay persisted")
}

func TestUploadService_BatchSourceError(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	broken := errors.New("unexpected EOF in multipart body")

	src := &sliceSource{
		reqs: []UploadRequest{{OwnerID: "u1", Body: sizedReader(1), DeclaredName: "a"}},
		err:  broken,
	}

	results, err := env.uploader.UploadBatch(context.Background(), src, 0)
	require.ErrorIs(t, err, broken)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
}
