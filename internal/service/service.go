// Package service - координаторы жизненного цикла файла: загрузка,
// скачивание и удаление. Каждая операция явно получает ownerID.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"filevault/internal/domain"
)

// FileRepository - хранилище метаданных, которым пользуются координаторы
type FileRepository interface {
	Create(ctx context.Context, file *domain.File) error
	ListByOwner(ctx context.Context, ownerID string, filter domain.ListFilter) ([]domain.File, error)
	FindOneByIDAndOwner(ctx context.Context, id uuid.UUID, ownerID string) (*domain.File, error)
	DeleteByID(ctx context.Context, id uuid.UUID, ownerID string) error
	Summary(ctx context.Context, ownerID string) (*domain.StorageSummary, error)
}

const (
	defaultContentType = "application/octet-stream"

	// cleanupTimeout ограничивает компенсирующие шаги, которые выполняются
	// даже после отмены запроса
	cleanupTimeout = 30 * time.Second
)

// detached возвращает контекст, переживающий отмену родителя, но с собственным дедлайном
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}
