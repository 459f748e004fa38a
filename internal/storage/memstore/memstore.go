// Package memstore - хранилище блобов в памяти для тестов
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"filevault/internal/domain"
	"filevault/internal/storage"
)

type object struct {
	data        []byte
	contentType string
}

// Store реализует storage.Store. Поля Fail* позволяют внедрить отказ.
type Store struct {
	mu      sync.Mutex
	objects map[string]object

	FailPut    error
	FailGet    error
	FailDelete error

	puts    int
	deletes int
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{objects: make(map[string]object)}
}

func (s *Store) Put(ctx context.Context, in storage.PutInput) (*domain.BlobInfo, error) {
	s.mu.Lock()
	s.puts++
	failPut := s.FailPut
	s.mu.Unlock()

	if failPut != nil {
		return nil, storage.Unavailable("put", in.DeclaredName, failPut)
	}

	body := storage.NewLimitedReader(in.Body, in.MaxBytes)
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, readerWithContext{ctx: ctx, r: body}); err != nil {
		if body.Exceeded {
			return nil, &domain.PayloadTooLargeError{Limit: in.MaxBytes}
		}
		return nil, storage.Unavailable("put", in.DeclaredName, err)
	}

	key := storage.ObjectKey(in.OwnerScope, in.DeclaredName)

	s.mu.Lock()
	s.objects[key] = object{data: buf.Bytes(), contentType: in.ContentType}
	s.mu.Unlock()

	return &domain.BlobInfo{
		BlobID:       key,
		URL:          "mem://" + key,
		BytesWritten: int64(buf.Len()),
	}, nil
}

func (s *Store) Get(ctx context.Context, blobID string) (*domain.BlobObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailGet != nil {
		return nil, storage.Unavailable("get", blobID, s.FailGet)
	}
	obj, ok := s.objects[blobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrBlobNotFound, blobID)
	}
	return &domain.BlobObject{
		ReadCloser:    io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: int64(len(obj.data)),
		ContentType:   obj.contentType,
	}, nil
}

func (s *Store) Delete(ctx context.Context, blobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deletes++
	if s.FailDelete != nil {
		return storage.Unavailable("delete", blobID, s.FailDelete)
	}
	if _, ok := s.objects[blobID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrBlobNotFound, blobID)
	}
	delete(s.objects, blobID)
	return nil
}

// Has сообщает, хранится ли блоб
func (s *Store) Has(blobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[blobID]
	return ok
}

// Len - количество хранимых блобов
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Puts - количество вызовов Put
func (s *Store) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// Deletes - количество вызовов Delete
func (s *Store) Deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}

// Seed кладёт блоб напрямую, минуя Put
func (s *Store) Seed(blobID string, data []byte, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[blobID] = object{data: data, contentType: contentType}
}

// Drop удаляет блоб напрямую, имитируя внешнее удаление
func (s *Store) Drop(blobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, blobID)
}

type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (r readerWithContext) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
