package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mangatint/api/dto"
	"mangatint/api/middleware"
	"mangatint/api/validation"
	"mangatint/worker/batch"
)

// BatchService is what the handler needs from the service layer. Tests
// substitute their own implementation.
type BatchService interface {
	Submit(ctx context.Context, traceID string, req *dto.SubmitBatchRequest) (*dto.JobResponse, error)
	Start(ctx context.Context, traceID, id string) (*dto.JobResponse, error)
	Get(ctx context.Context, id string) (*dto.JobResponse, error)
	List(ctx context.Context) (*dto.JobListResponse, error)
	Results(ctx context.Context, id string) (*dto.ResultsResponse, error)
	Cancel(ctx context.Context, id string) (*dto.JobResponse, error)
	Delete(ctx context.Context, id string) error
}

type BatchHandler struct {
	service   BatchService
	uploadDir string
	maxUpload int64
	logger    *zap.Logger
}

func NewBatchHandler(service BatchService, uploadDir string, maxUpload int64, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{
		service:   service,
		uploadDir: uploadDir,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

func (h *BatchHandler) Submit(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	var req dto.SubmitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, h.logger, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.Submit(r.Context(), traceID, &req)
	if err != nil {
		handleError(w, h.logger, "Failed to create batch", err, traceID, statusFor(err))
		return
	}

	h.logger.Info("Batch created",
		zap.String("trace_id", traceID),
		zap.String("batch_id", resp.ID),
		zap.Int("total", resp.Total),
	)

	respondJSON(w, http.StatusCreated, resp)
}

// Upload accepts a single page or archive as multipart form data, stores
// it under the upload dir, and creates a one-item batch for it.
func (h *BatchHandler) Upload(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		handleError(w, h.logger, "Failed to parse form", err, traceID, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handleError(w, h.logger, "Failed to get file", err, traceID, http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > h.maxUpload {
		handleError(w, h.logger, "Invalid file", validation.ErrFileTooLarge, traceID, http.StatusBadRequest)
		return
	}

	fileType, err := validation.DetectFileType(file)
	if err != nil {
		handleError(w, h.logger, "Invalid file", err, traceID, http.StatusBadRequest)
		return
	}
	if err := validation.CheckExtension(header.Filename, fileType); err != nil {
		handleError(w, h.logger, "Invalid file", err, traceID, http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		handleError(w, h.logger, "Failed to save file", err, traceID, http.StatusInternalServerError)
		return
	}

	filePath := filepath.Join(h.uploadDir, uuid.New().String()+"_"+sanitizeFilename(header.Filename))
	dst, err := os.Create(filePath)
	if err != nil {
		handleError(w, h.logger, "Failed to save file", err, traceID, http.StatusInternalServerError)
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		handleError(w, h.logger, "Failed to write file", err, traceID, http.StatusInternalServerError)
		return
	}

	kind := batch.ItemFile
	if validation.IsArchiveType(fileType) {
		kind = batch.ItemArchive
	}
	req := &dto.SubmitBatchRequest{
		Items: []dto.SubmitItem{{
			Kind:       string(kind),
			Path:       filePath,
			Collection: r.FormValue("collection"),
			Chapter:    r.FormValue("chapter"),
		}},
	}

	resp, err := h.service.Submit(r.Context(), traceID, req)
	if err != nil {
		handleError(w, h.logger, "Failed to create batch", err, traceID, statusFor(err))
		return
	}

	h.logger.Info("File uploaded",
		zap.String("trace_id", traceID),
		zap.String("batch_id", resp.ID),
		zap.String("filename", header.Filename),
		zap.String("type", string(fileType)),
	)

	respondJSON(w, http.StatusCreated, resp)
}

func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	resp, err := h.service.List(r.Context())
	if err != nil {
		handleError(w, h.logger, "Failed to list batches", err, traceID, statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *BatchHandler) Status(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	resp, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, h.logger, "Failed to get batch status", err, traceID, statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *BatchHandler) Results(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	resp, err := h.service.Results(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, h.logger, "Failed to get batch results", err, traceID, statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *BatchHandler) Start(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())
	id := r.PathValue("id")

	resp, err := h.service.Start(r.Context(), traceID, id)
	if err != nil {
		handleError(w, h.logger, "Failed to start batch", err, traceID, statusFor(err))
		return
	}

	h.logger.Info("Batch started",
		zap.String("trace_id", traceID),
		zap.String("batch_id", id),
	)

	respondJSON(w, http.StatusAccepted, resp)
}

func (h *BatchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())
	id := r.PathValue("id")

	resp, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		handleError(w, h.logger, "Failed to cancel batch", err, traceID, statusFor(err))
		return
	}

	h.logger.Info("Batch cancel requested",
		zap.String("trace_id", traceID),
		zap.String("batch_id", id),
	)

	respondJSON(w, http.StatusOK, resp)
}

func (h *BatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())
	id := r.PathValue("id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		handleError(w, h.logger, "Failed to delete batch", err, traceID, statusFor(err))
		return
	}

	h.logger.Info("Batch deleted",
		zap.String("trace_id", traceID),
		zap.String("batch_id", id),
	)

	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dto.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, dto.ErrNoItems), errors.Is(err, dto.ErrInvalidItem):
		return http.StatusBadRequest
	case errors.Is(err, dto.ErrAlreadyRunning),
		errors.Is(err, dto.ErrJobFinished),
		errors.Is(err, dto.ErrJobRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func sanitizeFilename(filename string) string {
	return filepath.Base(filename)
}
