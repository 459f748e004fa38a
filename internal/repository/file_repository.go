package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"filevault/internal/domain"
)

const fileColumns = `id, original_name, storage_name, content_type, size_bytes, blob_url, owner_id, created_at`

type FileRepository struct {
	db *sqlx.DB
}

func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

// Create сохраняет запись и присваивает ей ID и время создания
func (r *FileRepository) Create(ctx context.Context, file *domain.File) error {
	if err := validateNew(file); err != nil {
		return err
	}

	file.ID = uuid.New()

	query := `
        INSERT INTO files (id, original_name, storage_name, content_type, size_bytes, blob_url, owner_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		file.ID,
		file.OriginalName,
		file.StorageName,
		file.ContentType,
		file.SizeBytes,
		file.BlobURL,
		file.OwnerID,
	).Scan(&file.CreatedAt)
	if err != nil {
		file.ID = uuid.Nil
		return fmt.Errorf("failed to insert file: %w", err)
	}

	return nil
}

// ListByOwner возвращает файлы владельца, новые первыми
func (r *FileRepository) ListByOwner(ctx context.Context, ownerID string, filter domain.ListFilter) ([]domain.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id = $1`
	args := []interface{}{ownerID}

	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		query += fmt.Sprintf(` AND original_name ILIKE $%d ESCAPE '\'`, len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"

	files := make([]domain.File, 0)
	if err := r.db.SelectContext(ctx, &files, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return files, nil
}

// FindOneByIDAndOwner - единственное чтение, дающее доступ к файлу.
// Фильтр по обоим полям в одном запросе: чужой и несуществующий файл неразличимы.
func (r *FileRepository) FindOneByIDAndOwner(ctx context.Context, id uuid.UUID, ownerID string) (*domain.File, error) {
	var file domain.File
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1 AND owner_id = $2`

	err := r.db.GetContext(ctx, &file, query, id, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return &file, nil
}

// DeleteByID удаляет запись; owner_id в условии защищает от удаления чужой записи
func (r *FileRepository) DeleteByID(ctx context.Context, id uuid.UUID, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *FileRepository) Summary(ctx context.Context, ownerID string) (*domain.StorageSummary, error) {
	var summary domain.StorageSummary
	query := `
        SELECT COUNT(*) AS files_count, COALESCE(SUM(size_bytes), 0) AS total_bytes
        FROM files
        WHERE owner_id = $1`

	if err := r.db.GetContext(ctx, &summary, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to get storage summary: %w", err)
	}

	return &summary, nil
}

func (r *FileRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func validateNew(file *domain.File) error {
	switch {
	case file == nil:
		return fmt.Errorf("%w: file is required", domain.ErrValidation)
	case file.OwnerID == "":
		return fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	case file.StorageName == "":
		return fmt.Errorf("%w: storage name is required", domain.ErrValidation)
	case file.OriginalName == "":
		return fmt.Errorf("%w: original name is required", domain.ErrValidation)
	case file.SizeBytes < 0:
		return fmt.Errorf("%w: size must not be negative", domain.ErrValidation)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
