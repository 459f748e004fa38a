package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"filevault/internal/domain"
)

// ListOptions - параметры выборки списка файлов
type ListOptions struct {
	Recent bool
	Query  string
}

// FileService объединяет координаторы и чтение списка для транспортного слоя
type FileService struct {
	repo     FileRepository
	uploader *UploadService
	download *DownloadService
	deleter  *DeleteService

	now func() time.Time
}

func NewFileService(
	repo FileRepository,
	uploader *UploadService,
	download *DownloadService,
	deleter *DeleteService,
) *FileService {
	return &FileService{
		repo:     repo,
		uploader: uploader,
		download: download,
		deleter:  deleter,
		now:      time.Now,
	}
}

func (s *FileService) Upload(ctx context.Context, req UploadRequest) (*domain.File, error) {
	return s.uploader.Upload(ctx, req)
}

func (s *FileService) UploadBatch(ctx context.Context, src UploadSource, maxFiles int) ([]UploadResult, error) {
	return s.uploader.UploadBatch(ctx, src, maxFiles)
}

func (s *FileService) UploadLimits() UploadLimits {
	return s.uploader.Limits()
}

// List возвращает файлы владельца, новые первыми
func (s *FileService) List(ctx context.Context, ownerID string, opts ListOptions) ([]domain.File, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}

	filter := domain.ListFilter{Query: opts.Query}
	if opts.Recent {
		since := s.now().Add(-domain.RecentWindow)
		filter.Since = &since
	}

	files, err := s.repo.ListByOwner(ctx, ownerID, filter)
	if err != nil {
		return nil, &domain.OperationError{Op: "list", Retryable: true, Err: err}
	}

	return files, nil
}

func (s *FileService) Summary(ctx context.Context, ownerID string) (*domain.StorageSummary, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}

	summary, err := s.repo.Summary(ctx, ownerID)
	if err != nil {
		return nil, &domain.OperationError{Op: "summary", Retryable: true, Err: err}
	}

	return summary, nil
}

func (s *FileService) Retrieve(ctx context.Context, ownerID string, id uuid.UUID) (*domain.FileDownload, error) {
	return s.download.Retrieve(ctx, ownerID, id)
}

func (s *FileService) Delete(ctx context.Context, req DeleteRequest) error {
	return s.deleter.Delete(ctx, req)
}

func (s *FileService) DeleteBatch(ctx context.Context, ownerID string, ids []uuid.UUID) []DeleteResult {
	return s.deleter.DeleteBatch(ctx, ownerID, ids)
}
