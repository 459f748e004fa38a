package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"filevault/internal/domain"
)

// MemoryFileRepository хранит записи в памяти. Используется в тестах;
// поля Fail* внедряют отказ соответствующей операции.
type MemoryFileRepository struct {
	mu    sync.Mutex
	files map[uuid.UUID]memRecord
	seq   int64

	Now        func() time.Time
	FailCreate error
	FailFind   error
	FailDelete error
}

type memRecord struct {
	file domain.File
	seq  int64
}

func NewMemoryFileRepository() *MemoryFileRepository {
	return &MemoryFileRepository{
		files: make(map[uuid.UUID]memRecord),
		Now:   time.Now,
	}
}

func (r *MemoryFileRepository) Create(ctx context.Context, file *domain.File) error {
	if err := validateNew(file); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailCreate != nil {
		return r.FailCreate
	}

	r.seq++
	file.ID = uuid.New()
	file.CreatedAt = r.Now().UTC()
	r.files[file.ID] = memRecord{file: *file, seq: r.seq}
	return nil
}

func (r *MemoryFileRepository) ListByOwner(ctx context.Context, ownerID string, filter domain.ListFilter) ([]domain.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	records := make([]memRecord, 0)
	for _, rec := range r.files {
		if rec.file.OwnerID != ownerID {
			continue
		}
		if filter.Since != nil && rec.file.CreatedAt.Before(*filter.Since) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(rec.file.OriginalName), query) {
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].file.CreatedAt.Equal(records[j].file.CreatedAt) {
			return records[i].file.CreatedAt.After(records[j].file.CreatedAt)
		}
		return records[i].seq > records[j].seq
	})

	files := make([]domain.File, 0, len(records))
	for _, rec := range records {
		files = append(files, rec.file)
	}
	return files, nil
}

func (r *MemoryFileRepository) FindOneByIDAndOwner(ctx context.Context, id uuid.UUID, ownerID string) (*domain.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailFind != nil {
		return nil, r.FailFind
	}
	rec, ok := r.files[id]
	if !ok || rec.file.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	file := rec.file
	return &file, nil
}

func (r *MemoryFileRepository) DeleteByID(ctx context.Context, id uuid.UUID, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailDelete != nil {
		return r.FailDelete
	}
	rec, ok := r.files[id]
	if !ok || rec.file.OwnerID != ownerID {
		return domain.ErrNotFound
	}
	delete(r.files, id)
	return nil
}

func (r *MemoryFileRepository) Summary(ctx context.Context, ownerID string) (*domain.StorageSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var summary domain.StorageSummary
	for _, rec := range r.files {
		if rec.file.OwnerID == ownerID {
			summary.FilesCount++
			summary.TotalBytes += rec.file.SizeBytes
		}
	}
	return &summary, nil
}

// Len - общее количество записей
func (r *MemoryFileRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}
