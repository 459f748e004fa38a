package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrUnsupportedType    = errors.New("content type is not allowed")
	ErrPayloadTooLarge    = errors.New("payload exceeds maximum allowed size")
	ErrNotFound           = errors.New("file not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrOrphanedResource   = errors.New("orphaned resource")

	// ErrBlobNotFound - мягкий исход удаления/чтения блоба, которого уже нет
	ErrBlobNotFound = errors.New("blob not found")
)

// PayloadTooLargeError сохраняет лимит, чтобы вернуть его клиенту
type PayloadTooLargeError struct {
	Limit int64
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("%s: limit is %d bytes", ErrPayloadTooLarge, e.Limit)
}

func (e *PayloadTooLargeError) Is(target error) bool {
	return target == ErrPayloadTooLarge
}

// OperationError - исход Failed для загрузки или удаления.
// Retryable означает, что повтор всей операции безопасен.
// Orphaned означает, что компенсирующая очистка не удалась и блоб
// нужно убрать вне запроса.
type OperationError struct {
	Op        string
	FileID    string
	BlobID    string
	Retryable bool
	Orphaned  bool
	Err       error
}

func (e *OperationError) Error() string {
	msg := e.Op + " failed"
	if e.FileID != "" {
		msg += " for " + e.FileID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func (e *OperationError) Is(target error) bool {
	return target == ErrOrphanedResource && e.Orphaned
}

// IsRetryable сообщает, можно ли повторить операцию целиком
func IsRetryable(err error) bool {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Retryable
	}
	return errors.Is(err, ErrStorageUnavailable)
}
