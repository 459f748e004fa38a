package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filevault/internal/domain"
)

var fileColumnNames = []string{"id", "original_name", "storage_name", "content_type", "size_bytes", "blob_url", "owner_id", "created_at"}

func newMockRepo(t *testing.T) (*FileRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewFileRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestFileRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)
	createdAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO files")).
		WithArgs(sqlmock.AnyArg(), "photo.png", "files/u1/k-photo.png", "image/png", int64(10240), "s3://b/k", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(createdAt))

	file := &domain.File{
		OriginalName: "photo.png",
		StorageName:  "files/u1/k-photo.png",
		ContentType:  "image/png",
		SizeBytes:    10240,
		BlobURL:      "s3://b/k",
		OwnerID:      "u1",
	}
	require.NoError(t, repo.Create(context.Background(), file))

	assert.NotEqual(t, uuid.Nil, file.ID)
	assert.Equal(t, createdAt, file.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFileRepository_CreateRequiresOwner(t *testing.T) {
	repo, mock := newMockRepo(t)

	err := repo.Create(context.Background(), &domain.File{
		OriginalName: "a.txt",
		StorageName:  "files/x/a.txt",
	})

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFileRepository_CreateFailureResetsID(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO files")).
		WillReturnError(errors.New("connection refused"))

	file := &domain.File{OriginalName: "a", StorageName: "k", OwnerID: "u1"}
	err := repo.Create(context.Background(), file)

	require.Error(t, err)
	assert.Equal(t, uuid.Nil, file.ID)
}

func TestFileRepository_ListByOwner(t *testing.T) {
	repo, mock := newMockRepo(t)
	newer := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	rows := sqlmock.NewRows(fileColumnNames).
		AddRow(uuid.New().String(), "b.txt", "k2", "text/plain", 2, "u2", "u1", newer).
		AddRow(uuid.New().String(), "a.txt", "k1", "text/plain", 1, "u1", "u1", older)

	mock.ExpectQuery(regexp.QuoteMeta("FROM files WHERE owner_id = $1 ORDER BY created_at DESC, id DESC")).
		WithArgs("u1").
		WillReturnRows(rows)

	files, err := repo.ListByOwner(context.Background(), "u1", domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "b.txt", files[0].OriginalName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFileRepository_ListByOwnerFilters(t *testing.T) {
	repo, mock := newMockRepo(t)
	since := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("AND created_at >= $2 AND original_name ILIKE $3")).
		WithArgs("u1", since, `%50\%\_off%`).
		WillReturnRows(sqlmock.NewRows(fileColumnNames))

	files, err := repo.ListByOwner(context.Background(), "u1", domain.ListFilter{Since: &since, Query: " 50%_off "})
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFileRepository_FindOneByIDAndOwner(t *testing.T) {
	id := uuid.New()

	t.Run("found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND owner_id = $2")).
			WithArgs(id, "u1").
			WillReturnRows(sqlmock.NewRows(fileColumnNames).
				AddRow(id.String(), "a.txt", "k1", "text/plain", 1, "url", "u1", time.Now()))

		file, err := repo.FindOneByIDAndOwner(context.Background(), id, "u1")
		require.NoError(t, err)
		assert.Equal(t, id, file.ID)
	})

	t.Run("other owner", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND owner_id = $2")).
			WithArgs(id, "u2").
			WillReturnRows(sqlmock.NewRows(fileColumnNames))

		_, err := repo.FindOneByIDAndOwner(context.Background(), id, "u2")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("db error is not NotFound", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND owner_id = $2")).
			WillReturnError(errors.New("timeout"))

		_, err := repo.FindOneByIDAndOwner(context.Background(), id, "u1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestFileRepository_DeleteByID(t *testing.T) {
	id := uuid.New()
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM files WHERE id = $1 AND owner_id = $2")).
		WithArgs(id, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM files WHERE id = $1 AND owner_id = $2")).
		WithArgs(id, "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.DeleteByID(context.Background(), id, "u1"))
	assert.ErrorIs(t, repo.DeleteByID(context.Background(), id, "u1"), domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFileRepository_Summary(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(SUM(size_bytes), 0)")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"files_count", "total_bytes"}).AddRow(3, 4096))

	summary, err := repo.Summary(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, summary.FilesCount)
	assert.EqualValues(t, 4096, summary.TotalBytes)
}
