package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filevault/internal/domain"
	"filevault/internal/metrics"
)

func TestDeleteService_DoubleDelete(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	file := env.mustUpload(t, "u1", "report.pdf", 64)
	req := DeleteRequest{OwnerID: "u1", ID: file.ID}

	require.NoError(t, env.deleter.Delete(context.Background(), req))
	assert.ErrorIs(t, env.deleter.Delete(context.Background(), req), domain.ErrNotFound)

	_, err := env.repo.FindOneByIDAndOwner(context.Background(), file.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, env.store.Has(file.StorageName))
	assert.Equal(t, 1.0, env.counter(t, "filevault_deletes_total", map[string]string{"result": metrics.ResultSuccess}))
	assert.Equal(t, 1.0, env.counter(t, "filevault_deletes_total", map[string]string{"result": metrics.ResultNotFound}))
}

func TestDeleteService_OtherOwnerGetsNotFound(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	file := env.mustUpload(t, "alice", "secret.txt", 8)

	errOther := env.deleter.Delete(context.Background(), DeleteRequest{OwnerID: "bob", ID: file.ID})
	errMissing := env.deleter.Delete(context.Background(), DeleteRequest{OwnerID: "bob", ID: uuid.New()})

	assert.ErrorIs(t, errOther, domain.ErrNotFound)
	assert.Equal(t, errMissing.Error(), errOther.Error())
	assert.True(t, env.store.Has(file.StorageName))
	assert.Equal(t, 1, env.repo.Len())
}

func TestDeleteService_BlobAlreadyGone(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	file := env.mustUpload(t, "u1", "a.txt", 8)
	env.store.Drop(file.StorageName)

	require.NoError(t, env.deleter.Delete(context.Background(), DeleteRequest{OwnerID: "u1", ID: file.ID}))
	assert.Zero(t, env.repo.Len())
}

func TestDeleteService_BlobDeleteFailureKeepsMetadata(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	file := env.mustUpload(t, "u1", "a.txt", 8)
	req := DeleteRequest{OwnerID: "u1", ID: file.ID}

	env.store.FailDelete = errors.New("timeout")
	err := env.deleter.Delete(context.Background(), req)

	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, 1, env.repo.Len())
	assert.True(t, env.store.Has(file.StorageName))

	env.store.FailDelete = nil
	require.NoError(t, env.deleter.Delete(context.Background(), req))
	env.requireConsistent(t, "u1")
}

func TestDeleteService_MetadataFailureIsRetryable(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	file := env.mustUpload(t, "u1", "a.txt", 8)
	req := DeleteRequest{OwnerID: "u1", ID: file.ID}

	env.repo.FailDelete = errors.New("database is down")
	err := env.deleter.Delete(context.Background(), req)

	var opErr *domain.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.True(t, opErr.Retryable)
	assert.False(t, env.store.Has(file.StorageName))
	assert.Equal(t, 1, env.repo.Len())

	env.repo.FailDelete = nil
	require.NoError(t, env.deleter.Delete(context.Background(), req))
	assert.Zero(t, env.repo.Len())
}

func TestDeleteService_LookupFailure(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	file := env.mustUpload(t, "u1", "a.txt", 8)
	env.repo.FailFind = errors.New("database is down")

	err := env.deleter.Delete(context.Background(), DeleteRequest{OwnerID: "u1", ID: file.ID})

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.True(t, domain.IsRetryable(err))
	assert.Zero(t, env.store.Deletes())
}

func TestDeleteService_Batch(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	a := env.mustUpload(t, "u1", "a.txt", 8)
	b := env.mustUpload(t, "u1", "b.txt", 8)
	foreign := env.mustUpload(t, "u2", "c.txt", 8)
	missing := uuid.New()

	results := env.deleter.DeleteBatch(context.Background(), "u1", []uuid.UUID{a.ID, a.ID, missing, foreign.ID, b.ID})
	require.Len(t, results, 4)

	assert.Equal(t, a.ID, results[0].ID)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, domain.ErrNotFound)
	assert.ErrorIs(t, results[2].Err, domain.ErrNotFound)
	assert.NoError(t, results[3].Err)

	assert.Equal(t, 1, env.repo.Len())
	env.requireConsistent(t, "u1", "u2")
}
