package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"filevault/internal/auth"
	"filevault/internal/domain"
	"filevault/internal/logger"
	"filevault/internal/service"
)

const (
	maxDeleteBatch = 1000

	// multipartOverhead - запас на заголовки частей и поля формы
	multipartOverhead = 1 << 20
)

// FileService - операции ядра, которые вызывает транспорт
type FileService interface {
	UploadBatch(ctx context.Context, src service.UploadSource, maxFiles int) ([]service.UploadResult, error)
	UploadLimits() service.UploadLimits
	List(ctx context.Context, ownerID string, opts service.ListOptions) ([]domain.File, error)
	Summary(ctx context.Context, ownerID string) (*domain.StorageSummary, error)
	Retrieve(ctx context.Context, ownerID string, id uuid.UUID) (*domain.FileDownload, error)
	Delete(ctx context.Context, req service.DeleteRequest) error
	DeleteBatch(ctx context.Context, ownerID string, ids []uuid.UUID) []service.DeleteResult
}

// UploadResult - итог загрузки одного файла в ответе
type UploadResult struct {
	Name  string       `json:"name"`
	File  *domain.File `json:"file,omitempty"`
	Error *ErrorBody   `json:"error,omitempty"`
}

// MultiUploadResponse - ответ на загрузку одного или нескольких файлов
type MultiUploadResponse struct {
	Results []UploadResult `json:"results"`
	Error   *ErrorBody     `json:"error,omitempty"`
}

type ListResponse struct {
	Files []domain.File `json:"files"`
}

type DeleteBatchRequest struct {
	IDs []string `json:"ids"`
}

type DeleteResult struct {
	ID      string     `json:"id"`
	Deleted bool       `json:"deleted"`
	Error   *ErrorBody `json:"error,omitempty"`
}

type DeleteBatchResponse struct {
	Results []DeleteResult `json:"results"`
}

type FileHandler struct {
	files    FileService
	maxFiles int
	log      *logger.Logger
}

func NewFileHandler(files FileService, maxFiles int, log *logger.Logger) *FileHandler {
	return &FileHandler{
		files:    files,
		maxFiles: maxFiles,
		log:      log.Named("file-handler"),
	}
}

func (h *FileHandler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		writeError(w, r, h.log, auth.ErrNoToken)
	}
	return ownerID, ok
}

// UploadFile принимает multipart с полями "files" или "file".
// Части читаются потоком, без сохранения всей формы на диск или в память.
func (h *FileHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	limits := h.files.UploadLimits()
	if limits.MaxUploadBytes > 0 && h.maxFiles > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limits.MaxUploadBytes*int64(h.maxFiles)+multipartOverhead)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, h.log, fmt.Errorf("%w: expected multipart/form-data body", domain.ErrValidation))
		return
	}

	src := &multipartSource{reader: reader, ownerID: ownerID}
	defer src.close()

	results, batchErr := h.files.UploadBatch(r.Context(), src, h.maxFiles)

	if len(results) == 0 {
		if batchErr == nil {
			batchErr = fmt.Errorf("%w: no files uploaded", domain.ErrValidation)
		}
		writeError(w, r, h.log, batchErr)
		return
	}

	response := MultiUploadResponse{
		Results: make([]UploadResult, len(results)),
		Error:   errorBody(batchErr),
	}

	var firstErr error
	succeeded := 0
	for i, res := range results {
		response.Results[i] = UploadResult{Name: res.Name, File: res.File, Error: errorBody(res.Err)}
		if res.Err == nil {
			succeeded++
		} else if firstErr == nil {
			firstErr = res.Err
		}
	}

	status := http.StatusOK
	switch {
	case succeeded == len(results) && batchErr == nil:
		status = http.StatusCreated
	case succeeded == 0 && firstErr != nil:
		status, _ = classify(firstErr)
	}

	writeJSON(w, status, response)
}

// ListFiles возвращает файлы владельца, новые первыми.
// filter=recent ограничивает выборку последними семью днями, q ищет по имени.
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	opts := service.ListOptions{Query: strings.TrimSpace(r.URL.Query().Get("q"))}
	switch filter := r.URL.Query().Get("filter"); filter {
	case "", "all":
	case "recent":
		opts.Recent = true
	default:
		writeError(w, r, h.log, fmt.Errorf("%w: unknown filter %q", domain.ErrValidation, filter))
		return
	}

	files, err := h.files.List(r.Context(), ownerID, opts)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{Files: files})
}

func (h *FileHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	summary, err := h.files.Summary(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// DownloadFile отдаёт содержимое потоком с исходным именем файла
func (h *FileHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		// Некорректный id неотличим от отсутствующего
		writeError(w, r, h.log, domain.ErrNotFound)
		return
	}

	dl, err := h.files.Retrieve(r.Context(), ownerID, id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	defer dl.Body.Close()

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", contentDisposition(dl.DisplayName))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if dl.SizeBytes >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.SizeBytes, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, dl.Body); err != nil {
		logger.FromContext(r.Context(), h.log).Warn("download interrupted",
			zap.String("file_id", id.String()),
			zap.Error(err),
		)
	}
}

func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, domain.ErrNotFound)
		return
	}

	if err := h.files.Delete(r.Context(), service.DeleteRequest{OwnerID: ownerID, ID: id}); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteFiles удаляет несколько файлов; итог сообщается по каждому id
func (h *FileHandler) DeleteFiles(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req DeleteBatchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, multipartOverhead)).Decode(&req); err != nil {
		writeError(w, r, h.log, fmt.Errorf("%w: invalid request body", domain.ErrValidation))
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, r, h.log, fmt.Errorf("%w: ids are required", domain.ErrValidation))
		return
	}
	if len(req.IDs) > maxDeleteBatch {
		writeError(w, r, h.log, fmt.Errorf("%w: at most %d ids per request", domain.ErrValidation, maxDeleteBatch))
		return
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}

	outcomes := make(map[uuid.UUID]error, len(ids))
	for _, res := range h.files.DeleteBatch(r.Context(), ownerID, ids) {
		outcomes[res.ID] = res.Err
	}

	// Ответ в порядке запроса; повторы и некорректные id не удаляют ничего
	response := DeleteBatchResponse{Results: make([]DeleteResult, 0, len(req.IDs))}
	seen := make(map[string]struct{}, len(req.IDs))
	for _, raw := range req.IDs {
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}

		id, err := uuid.Parse(raw)
		if err != nil {
			response.Results = append(response.Results, DeleteResult{ID: raw, Error: errorBody(domain.ErrNotFound)})
			continue
		}

		outcome, ok := outcomes[id]
		if !ok {
			// тот же uuid в другой записи уже учтён
			continue
		}
		delete(outcomes, id)
		response.Results = append(response.Results, DeleteResult{
			ID:      id.String(),
			Deleted: outcome == nil,
			Error:   errorBody(outcome),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// contentDisposition кодирует имя по RFC 2231, если оно не помещается в quoted-string
func contentDisposition(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}

// multipartSource отдаёт файлы формы по одному, пропуская остальные поля
type multipartSource struct {
	reader  *multipart.Reader
	ownerID string
	current *multipart.Part
}

func (s *multipartSource) Next() (*service.UploadRequest, error) {
	s.close()

	for {
		part, err := s.reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: malformed multipart body: %w", domain.ErrValidation, err)
		}

		field := part.FormName()
		if (field != "files" && field != "file") || part.FileName() == "" {
			part.Close()
			continue
		}

		s.current = part
		return &service.UploadRequest{
			OwnerID:      s.ownerID,
			Body:         part,
			ContentType:  part.Header.Get("Content-Type"),
			DeclaredName: part.FileName(),
			DeclaredSize: declaredSize(part.Header.Get("Content-Length")),
		}, nil
	}
}

func (s *multipartSource) close() {
	if s.current != nil {
		s.current.Close()
		s.current = nil
	}
}

func declaredSize(value string) int64 {
	size, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || size < 0 {
		return -1
	}
	return size
}
