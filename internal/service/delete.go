package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"filevault/internal/domain"
	"filevault/internal/logger"
	"filevault/internal/metrics"
	"filevault/internal/storage"
)

type DeleteRequest struct {
	OwnerID string
	ID      uuid.UUID
}

// DeleteResult - итог удаления одного id из батча
type DeleteResult struct {
	ID  uuid.UUID
	Err error
}

type DeleteService struct {
	repo    FileRepository
	store   storage.Store
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewDeleteService(repo FileRepository, store storage.Store, m *metrics.Metrics, log *logger.Logger) *DeleteService {
	return &DeleteService{
		repo:    repo,
		store:   store,
		metrics: m,
		log:     log.Named("delete"),
	}
}

// Delete проводит файл через Requested → Authorized → BlobRemoved → MetadataRemoved.
// Чужой и несуществующий файл дают одинаковый domain.ErrNotFound.
// Повтор после ошибки безопасен: удаление блоба идемпотентно.
func (s *DeleteService) Delete(ctx context.Context, req DeleteRequest) error {
	log := logger.FromContext(ctx, s.log).With(
		zap.String("owner_id", req.OwnerID),
		zap.String("file_id", req.ID.String()),
	)

	if req.OwnerID == "" {
		s.metrics.ObserveDelete(metrics.ResultRejected)
		return domain.ErrNotFound
	}

	// Requested → Authorized
	file, err := s.repo.FindOneByIDAndOwner(ctx, req.ID, req.OwnerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.metrics.ObserveDelete(metrics.ResultNotFound)
			return domain.ErrNotFound
		}
		log.Warn("failed to look up file for delete", zap.Error(err))
		s.metrics.ObserveDelete(metrics.ResultFailed)
		return &domain.OperationError{Op: "delete", FileID: req.ID.String(), Retryable: true, Err: err}
	}

	// Authorized → BlobRemoved
	err = s.store.Delete(ctx, file.StorageName)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrBlobNotFound):
		log.Info("blob already gone, removing metadata", zap.String("blob_id", file.StorageName))
	default:
		log.Warn("blob delete failed, metadata kept", zap.String("blob_id", file.StorageName), zap.Error(err))
		s.metrics.ObserveDelete(metrics.ResultUnavailable)
		return &domain.OperationError{Op: "delete", FileID: req.ID.String(), Retryable: true, Err: err}
	}

	// BlobRemoved → MetadataRemoved. Блоба уже нет, поэтому запись
	// удаляем даже если клиент отключился.
	metaCtx, cancel := detached(ctx)
	defer cancel()

	if err := s.repo.DeleteByID(metaCtx, file.ID, req.OwnerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Параллельное удаление того же файла успело раньше
			s.metrics.ObserveDelete(metrics.ResultNotFound)
			return domain.ErrNotFound
		}
		log.Error("blob removed but metadata delete failed", zap.Error(err))
		s.metrics.ObserveDelete(metrics.ResultFailed)
		return &domain.OperationError{Op: "delete", FileID: req.ID.String(), Retryable: true, Err: err}
	}

	log.Info("file deleted")
	s.metrics.ObserveDelete(metrics.ResultSuccess)
	return nil
}

// DeleteBatch удаляет каждый id независимо; повторяющиеся id обрабатываются один раз.
// Частичный успех не откатывается.
func (s *DeleteService) DeleteBatch(ctx context.Context, ownerID string, ids []uuid.UUID) []DeleteResult {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	results := make([]DeleteResult, 0, len(ids))

	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		err := s.Delete(ctx, DeleteRequest{OwnerID: ownerID, ID: id})
		results = append(results, DeleteResult{ID: id, Err: err})
	}

	return results
}
