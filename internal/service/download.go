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

type DownloadService struct {
	repo    FileRepository
	store   storage.Store
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewDownloadService(repo FileRepository, store storage.Store, m *metrics.Metrics, log *logger.Logger) *DownloadService {
	return &DownloadService{
		repo:    repo,
		store:   store,
		metrics: m,
		log:     log.Named("download"),
	}
}

// Retrieve отдаёт поток файла владельцу. Имя для клиента - OriginalName,
// тип - сохранённый ContentType; адрес блоба наружу не выходит.
// Вызывающий обязан закрыть Body.
func (s *DownloadService) Retrieve(ctx context.Context, ownerID string, id uuid.UUID) (*domain.FileDownload, error) {
	log := logger.FromContext(ctx, s.log).With(
		zap.String("owner_id", ownerID),
		zap.String("file_id", id.String()),
	)

	if ownerID == "" {
		s.metrics.ObserveDownload(metrics.ResultNotFound)
		return nil, domain.ErrNotFound
	}

	file, err := s.repo.FindOneByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.metrics.ObserveDownload(metrics.ResultNotFound)
			return nil, domain.ErrNotFound
		}
		log.Warn("failed to look up file for download", zap.Error(err))
		s.metrics.ObserveDownload(metrics.ResultFailed)
		return nil, &domain.OperationError{Op: "download", FileID: id.String(), Retryable: true, Err: err}
	}

	obj, err := s.store.Get(ctx, file.StorageName)
	if err != nil {
		if errors.Is(err, domain.ErrBlobNotFound) {
			// Запись есть, блоба нет: для клиента файла не существует
			log.Error("metadata exists but blob is missing", zap.String("blob_id", file.StorageName))
			s.metrics.ObserveDownload(metrics.ResultNotFound)
			return nil, domain.ErrNotFound
		}
		log.Warn("blob read failed", zap.Error(err))
		s.metrics.ObserveDownload(metrics.ResultUnavailable)
		return nil, &domain.OperationError{Op: "download", FileID: id.String(), Retryable: true, Err: err}
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	size := file.SizeBytes
	if obj.ContentLength >= 0 && obj.ContentLength != size {
		log.Warn("blob size differs from metadata",
			zap.Int64("metadata_bytes", size),
			zap.Int64("blob_bytes", obj.ContentLength),
		)
		size = obj.ContentLength
	}

	s.metrics.ObserveDownload(metrics.ResultSuccess)

	return &domain.FileDownload{
		Body:        obj.ReadCloser,
		ContentType: contentType,
		DisplayName: file.OriginalName,
		SizeBytes:   size,
	}, nil
}
