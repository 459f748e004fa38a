package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"filevault/internal/domain"
	"filevault/internal/logger"
)

const (
	DefaultCacheTTL = 5 * time.Minute
	cacheKeyPrefix  = "filevault:file:"
)

// CachedFileRepository кэширует в Redis результат проверки владельца.
// Кэш не обязателен: при ошибке Redis запрос уходит в основное хранилище.
type CachedFileRepository struct {
	inner FileStore
	rdb   redis.UniversalClient
	ttl   time.Duration
	log   *logger.Logger
}

func NewCachedFileRepository(inner FileStore, rdb redis.UniversalClient, ttl time.Duration, log *logger.Logger) *CachedFileRepository {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedFileRepository{
		inner: inner,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.Named("file-cache"),
	}
}

// cachedFile включает поля, скрытые из JSON-ответа
type cachedFile struct {
	ID           uuid.UUID `json:"id"`
	OriginalName string    `json:"original_name"`
	StorageName  string    `json:"storage_name"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	BlobURL      string    `json:"blob_url"`
	OwnerID      string    `json:"owner_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func cacheKey(id uuid.UUID, ownerID string) string {
	return fmt.Sprintf("%s%s:%s", cacheKeyPrefix, ownerID, id)
}

func (c *CachedFileRepository) Create(ctx context.Context, file *domain.File) error {
	return c.inner.Create(ctx, file)
}

func (c *CachedFileRepository) ListByOwner(ctx context.Context, ownerID string, filter domain.ListFilter) ([]domain.File, error) {
	return c.inner.ListByOwner(ctx, ownerID, filter)
}

func (c *CachedFileRepository) Summary(ctx context.Context, ownerID string) (*domain.StorageSummary, error) {
	return c.inner.Summary(ctx, ownerID)
}

func (c *CachedFileRepository) FindOneByIDAndOwner(ctx context.Context, id uuid.UUID, ownerID string) (*domain.File, error) {
	key := cacheKey(id, ownerID)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cf cachedFile
		if err := json.Unmarshal(raw, &cf); err == nil {
			return cf.toDomain(), nil
		}
		c.log.Warn("dropping malformed cache entry", zap.String("key", key))
		c.rdb.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	file, err := c.inner.FindOneByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(fromDomain(file)); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	return file, nil
}

// DeleteByID сначала удаляет запись, затем сбрасывает кэш
func (c *CachedFileRepository) DeleteByID(ctx context.Context, id uuid.UUID, ownerID string) error {
	err := c.inner.DeleteByID(ctx, id, ownerID)

	key := cacheKey(id, ownerID)
	if delErr := c.rdb.Del(ctx, key).Err(); delErr != nil {
		c.log.Warn("cache invalidation failed", zap.String("key", key), zap.Error(delErr))
	}

	return err
}

func fromDomain(f *domain.File) cachedFile {
	return cachedFile{
		ID:           f.ID,
		OriginalName: f.OriginalName,
		StorageName:  f.StorageName,
		ContentType:  f.ContentType,
		SizeBytes:    f.SizeBytes,
		BlobURL:      f.BlobURL,
		OwnerID:      f.OwnerID,
		CreatedAt:    f.CreatedAt,
	}
}

func (cf cachedFile) toDomain() *domain.File {
	return &domain.File{
		ID:           cf.ID,
		OriginalName: cf.OriginalName,
		StorageName:  cf.StorageName,
		ContentType:  cf.ContentType,
		SizeBytes:    cf.SizeBytes,
		BlobURL:      cf.BlobURL,
		OwnerID:      cf.OwnerID,
		CreatedAt:    cf.CreatedAt,
	}
}
