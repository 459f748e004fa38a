// Package storage описывает клиент внешнего хранилища блобов.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/google/uuid"

	"filevault/internal/domain"
)

const (
	DefaultTimeout = 60 * time.Second
	PartSize       = 5 * 1024 * 1024 // 5MB

	maxNameLength = 128
	fallbackName  = "file"
)

// PutInput - параметры записи блоба
type PutInput struct {
	OwnerScope   string
	Body         io.Reader
	ContentType  string
	DeclaredName string
	MaxBytes     int64
}

// Store - клиент хранилища блобов.
//
// Put возвращает domain.ErrPayloadTooLarge, если поток длиннее MaxBytes,
// и domain.ErrStorageUnavailable при ошибке или таймауте удалённого вызова.
// Delete несуществующего блоба возвращает domain.ErrBlobNotFound.
type Store interface {
	Put(ctx context.Context, in PutInput) (*domain.BlobInfo, error)
	Get(ctx context.Context, blobID string) (*domain.BlobObject, error)
	Delete(ctx context.Context, blobID string) error
}

var (
	whitespace = regexp.MustCompile(`\s+`)
	unsafeName = regexp.MustCompile(`[^\w.\-]`)
)

// SanitizeName убирает пробелы и всё, кроме букв, цифр, "_", "." и "-"
func SanitizeName(name string) string {
	name = whitespace.ReplaceAllString(name, "")
	name = unsafeName.ReplaceAllString(name, "")
	for len(name) > 0 && name[0] == '.' {
		name = name[1:]
	}
	if len(name) > maxNameLength {
		name = name[len(name)-maxNameLength:]
	}
	if name == "" {
		return fallbackName
	}
	return name
}

// ObjectKey строит уникальный ключ блоба в области владельца
func ObjectKey(ownerScope, declaredName string) string {
	return fmt.Sprintf("files/%s/%s-%s", SanitizeName(ownerScope), uuid.NewString(), SanitizeName(declaredName))
}

// LimitedReader считает прочитанные байты и обрывает поток,
// как только он превышает Max.
type LimitedReader struct {
	R        io.Reader
	Max      int64
	N        int64
	Exceeded bool
}

func NewLimitedReader(r io.Reader, max int64) *LimitedReader {
	return &LimitedReader{R: r, Max: max}
}

func (l *LimitedReader) Read(p []byte) (int, error) {
	if l.Exceeded {
		return 0, &domain.PayloadTooLargeError{Limit: l.Max}
	}
	// читаем на один байт больше лимита, чтобы заметить превышение
	if room := l.Max + 1 - l.N; l.Max > 0 && int64(len(p)) > room {
		p = p[:room]
	}
	n, err := l.R.Read(p)
	l.N += int64(n)
	if l.Max > 0 && l.N > l.Max {
		l.Exceeded = true
		return 0, &domain.PayloadTooLargeError{Limit: l.Max}
	}
	return n, err
}

// Unavailable приводит ошибку удалённого вызова к domain.ErrStorageUnavailable
func Unavailable(op, key string, err error) error {
	if errors.Is(err, domain.ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %w", domain.ErrStorageUnavailable, op, key, err)
}

// WithTimeout ограничивает вызов хранилища; ноль означает DefaultTimeout
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// CancelOnClose отменяет контекст запроса, когда поток закрыт
type CancelOnClose struct {
	io.ReadCloser
	Cancel context.CancelFunc
}

func (c *CancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.Cancel()
	return err
}
