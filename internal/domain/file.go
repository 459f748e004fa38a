package domain

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// File - метаданные загруженного файла. Запись создаётся только после
// успешной записи блоба и никогда не изменяется.
type File struct {
	ID           uuid.UUID `json:"id" db:"id"`
	OriginalName string    `json:"original_name" db:"original_name"`
	StorageName  string    `json:"-" db:"storage_name"`
	ContentType  string    `json:"content_type" db:"content_type"`
	SizeBytes    int64     `json:"size_bytes" db:"size_bytes"`
	BlobURL      string    `json:"-" db:"blob_url"`
	OwnerID      string    `json:"owner_id" db:"owner_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// BlobInfo - результат записи блоба в хранилище
type BlobInfo struct {
	BlobID       string
	URL          string
	BytesWritten int64
}

// BlobObject - поток содержимого блоба. ContentLength равен -1, если размер неизвестен.
type BlobObject struct {
	io.ReadCloser
	ContentLength int64
	ContentType   string
}

// FileDownload - то, что получает клиент при скачивании.
// Внутренний идентификатор блоба наружу не отдаётся.
type FileDownload struct {
	Body        io.ReadCloser
	ContentType string
	DisplayName string
	SizeBytes   int64
}

// ListFilter ограничивает выборку файлов владельца
type ListFilter struct {
	Since *time.Time
	Query string
}

// StorageSummary - сводка по файлам владельца
type StorageSummary struct {
	FilesCount int64 `json:"files_count" db:"files_count"`
	TotalBytes int64 `json:"total_bytes" db:"total_bytes"`
}

// RecentWindow - окно для фильтра "recent"
const RecentWindow = 7 * 24 * time.Hour
