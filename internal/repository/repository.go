// Package repository хранит метаданные файлов
package repository

import (
	"context"

	"github.com/google/uuid"

	"filevault/internal/domain"
)

// FileStore - общий контракт Postgres-репозитория, кэша и репозитория в памяти
type FileStore interface {
	Create(ctx context.Context, file *domain.File) error
	ListByOwner(ctx context.Context, ownerID string, filter domain.ListFilter) ([]domain.File, error)
	FindOneByIDAndOwner(ctx context.Context, id uuid.UUID, ownerID string) (*domain.File, error)
	DeleteByID(ctx context.Context, id uuid.UUID, ownerID string) error
	Summary(ctx context.Context, ownerID string) (*domain.StorageSummary, error)
}

var (
	_ FileStore = (*FileRepository)(nil)
	_ FileStore = (*CachedFileRepository)(nil)
	_ FileStore = (*MemoryFileRepository)(nil)
)
