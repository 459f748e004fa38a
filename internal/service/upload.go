package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"filevault/internal/domain"
	"filevault/internal/logger"
	"filevault/internal/metrics"
	"filevault/internal/storage"
)

// UploadLimits - ограничения загрузки, передаются при создании сервиса.
// Пустой AllowedTypes означает, что тип не ограничен.
type UploadLimits struct {
	MaxUploadBytes int64
	AllowedTypes   []string
}

func (l UploadLimits) allows(contentType string) bool {
	if len(l.AllowedTypes) == 0 {
		return true
	}
	mediaType := normalizeMediaType(contentType)
	for _, allowed := range l.AllowedTypes {
		if normalizeMediaType(allowed) == mediaType {
			return true
		}
	}
	return false
}

func normalizeMediaType(contentType string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// UploadRequest - один файл загрузки. DeclaredSize <= 0 означает, что
// размер заранее неизвестен; фактический размер всё равно проверяется при записи.
type UploadRequest struct {
	OwnerID      string
	Body         io.Reader
	ContentType  string
	DeclaredName string
	DeclaredSize int64
}

// UploadResult - итог загрузки одного файла из батча
type UploadResult struct {
	Name string
	File *domain.File
	Err  error
}

// UploadSource отдаёт файлы батча по одному; io.EOF завершает батч.
// Тело очередного файла действительно только до следующего вызова Next.
type UploadSource interface {
	Next() (*UploadRequest, error)
}

type UploadService struct {
	repo    FileRepository
	store   storage.Store
	limits  UploadLimits
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewUploadService(
	repo FileRepository,
	store storage.Store,
	limits UploadLimits,
	m *metrics.Metrics,
	log *logger.Logger,
) *UploadService {
	return &UploadService{
		repo:    repo,
		store:   store,
		limits:  limits,
		metrics: m,
		log:     log.Named("upload"),
	}
}

func (s *UploadService) Limits() UploadLimits {
	return s.limits
}

// Upload проводит файл через Received → Validated → BlobPersisted → MetadataPersisted.
// Запись метаданных появляется только после успешной записи блоба; если запись
// метаданных не удалась, блоб удаляется.
func (s *UploadService) Upload(ctx context.Context, req UploadRequest) (*domain.File, error) {
	log := logger.FromContext(ctx, s.log).With(
		zap.String("owner_id", req.OwnerID),
		zap.String("name", req.DeclaredName),
	)

	// Received → Validated
	if err := s.validate(req); err != nil {
		log.Debug("upload rejected", zap.Error(err))
		s.metrics.ObserveUpload(metrics.ResultRejected, 0)
		return nil, err
	}

	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}

	// Validated → BlobPersisted
	blob, err := s.store.Put(ctx, storage.PutInput{
		OwnerScope:   req.OwnerID,
		Body:         req.Body,
		ContentType:  contentType,
		DeclaredName: req.DeclaredName,
		MaxBytes:     s.limits.MaxUploadBytes,
	})
	if err != nil {
		if errors.Is(err, domain.ErrPayloadTooLarge) {
			log.Debug("upload exceeded size limit while streaming", zap.Int64("limit", s.limits.MaxUploadBytes))
			s.metrics.ObserveUpload(metrics.ResultRejected, 0)
			return nil, err
		}
		log.Warn("blob write failed", zap.Error(err))
		s.metrics.ObserveUpload(metrics.ResultUnavailable, 0)
		return nil, &domain.OperationError{
			Op:        "upload",
			Retryable: domain.IsRetryable(err) || ctx.Err() != nil,
			Err:       err,
		}
	}
	log = log.With(zap.String("blob_id", blob.BlobID))
	log.Debug("blob persisted", zap.Int64("bytes", blob.BytesWritten))

	// Отмена после записи блоба: метаданные уже не пишем
	if err := ctx.Err(); err != nil {
		return nil, s.rollback(ctx, log, blob, err)
	}

	// BlobPersisted → MetadataPersisted
	file := &domain.File{
		OriginalName: req.DeclaredName,
		StorageName:  blob.BlobID,
		ContentType:  contentType,
		SizeBytes:    blob.BytesWritten,
		BlobURL:      blob.URL,
		OwnerID:      req.OwnerID,
	}
	if err := s.repo.Create(ctx, file); err != nil {
		return nil, s.rollback(ctx, log, blob, err)
	}

	log.Info("file uploaded", zap.String("file_id", file.ID.String()), zap.Int64("bytes", file.SizeBytes))
	s.metrics.ObserveUpload(metrics.ResultSuccess, file.SizeBytes)

	return file, nil
}

// UploadBatch загружает файлы независимо друг от друга: ошибка одного файла не
// откатывает уже сохранённые. Ошибка источника прерывает батч и возвращается
// вместе с уже полученными результатами.
func (s *UploadService) UploadBatch(ctx context.Context, src UploadSource, maxFiles int) ([]UploadResult, error) {
	results := make([]UploadResult, 0)

	for {
		req, err := src.Next()
		if errors.Is(err, io.EOF) {
			return results, nil
		}
		if err != nil {
			return results, err
		}

		if maxFiles > 0 && len(results) >= maxFiles {
			return results, fmt.Errorf("%w: at most %d files per request", domain.ErrValidation, maxFiles)
		}

		file, err := s.Upload(ctx, *req)
		results = append(results, UploadResult{Name: req.DeclaredName, File: file, Err: err})
	}
}

func (s *UploadService) validate(req UploadRequest) error {
	switch {
	case req.OwnerID == "":
		return fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	case req.Body == nil:
		return fmt.Errorf("%w: file content is required", domain.ErrValidation)
	case strings.TrimSpace(req.DeclaredName) == "":
		return fmt.Errorf("%w: file name is required", domain.ErrValidation)
	case !utf8.ValidString(req.DeclaredName):
		return fmt.Errorf("%w: file name is not valid UTF-8", domain.ErrValidation)
	case strings.ContainsRune(req.DeclaredName, 0):
		return fmt.Errorf("%w: file name contains a NUL byte", domain.ErrValidation)
	}

	if s.limits.MaxUploadBytes > 0 && req.DeclaredSize > s.limits.MaxUploadBytes {
		return &domain.PayloadTooLargeError{Limit: s.limits.MaxUploadBytes}
	}

	if !s.limits.allows(req.ContentType) {
		return fmt.Errorf("%w: %w: %q", domain.ErrValidation, domain.ErrUnsupportedType, req.ContentType)
	}

	return nil
}

// rollback удаляет только что записанный блоб. Если удалить не удалось,
// ошибка помечается как Orphaned для внешней очистки.
func (s *UploadService) rollback(ctx context.Context, log *logger.Logger, blob *domain.BlobInfo, cause error) error {
	opErr := &domain.OperationError{
		Op:        "upload",
		BlobID:    blob.BlobID,
		Retryable: true,
		Err:       cause,
	}

	cleanupCtx, cancel := detached(ctx)
	defer cancel()

	err := s.store.Delete(cleanupCtx, blob.BlobID)
	if err != nil && !errors.Is(err, domain.ErrBlobNotFound) {
		opErr.Orphaned = true
		log.Error("compensating blob delete failed, blob is orphaned",
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		s.metrics.OrphanedBlob()
		s.metrics.ObserveUpload(metrics.ResultFailed, 0)
		return opErr
	}

	log.Warn("metadata was not persisted, blob rolled back", zap.NamedError("cause", cause))
	s.metrics.ObserveUpload(metrics.ResultRolledBack, 0)
	return opErr
}
