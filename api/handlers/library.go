package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"mangatint/api/dto"
	"mangatint/api/middleware"
	"mangatint/api/service"
)

// LibraryService is the reader-facing surface the handler depends on.
type LibraryService interface {
	Collections(ctx context.Context) (*dto.CollectionListResponse, error)
	Chapters(ctx context.Context, collection string) (*dto.ChapterListResponse, error)
	Pages(ctx context.Context, collection, chapter string, colored bool) (*dto.PageListResponse, error)
	PagePath(raw string, allowedRoots ...string) (string, error)
	SaveProgress(ctx context.Context, req *dto.SaveProgressRequest) error
	Progress(ctx context.Context, collection string) (*dto.ProgressResponse, error)
	ToggleBookmark(ctx context.Context, req *dto.BookmarkRequest) (*dto.BookmarkResponse, error)
	Bookmarks(ctx context.Context, collection, chapter string) (*dto.BookmarkListResponse, error)
	History(ctx context.Context, limit int) (*dto.HistoryResponse, error)
	Stats(ctx context.Context) (*dto.StatsResponse, error)
}

type LibraryHandler struct {
	service LibraryService

	// Page files are only served from inside these roots.
	pageRoots []string
	logger    *zap.Logger
}

func NewLibraryHandler(svc LibraryService, pageRoots []string, logger *zap.Logger) *LibraryHandler {
	return &LibraryHandler{
		service:   svc,
		pageRoots: pageRoots,
		logger:    logger,
	}
}

func (h *LibraryHandler) Collections(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	resp, err := h.service.Collections(r.Context())
	if err != nil {
		handleError(w, h.logger, "Failed to list collections", err, traceID, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *LibraryHandler) Chapters(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	resp, err := h.service.Chapters(r.Context(), r.PathValue("collection"))
	if err != nil {
		handleError(w, h.logger, "Failed to list chapters", err, traceID, libraryStatusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *LibraryHandler) Pages(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())
	colored := r.URL.Query().Get("colored") == "true"

	resp, err := h.service.Pages(r.Context(), r.PathValue("collection"), r.PathValue("chapter"), colored)
	if err != nil {
		handleError(w, h.logger, "Failed to list pages", err, traceID, libraryStatusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Page streams one page image. The path query parameter must point inside
// the library or output roots.
func (h *LibraryHandler) Page(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	raw := r.URL.Query().Get("path")
	if raw == "" {
		handleError(w, h.logger, "Page path is required", nil, traceID, http.StatusBadRequest)
		return
	}

	path, err := h.service.PagePath(raw, h.pageRoots...)
	if err != nil {
		handleError(w, h.logger, "Failed to serve page", err, traceID, libraryStatusFor(err))
		return
	}
	http.ServeFile(w, r, path)
}

func (h *LibraryHandler) SaveProgress(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	var req dto.SaveProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, h.logger, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}
	if req.Collection == "" || req.Chapter == "" {
		handleError(w, h.logger, "Collection and chapter are required", nil, traceID, http.StatusBadRequest)
		return
	}

	if err := h.service.SaveProgress(r.Context(), &req); err != nil {
		handleError(w, h.logger, "Failed to save progress", err, traceID, http.StatusInternalServerError)
		return
	}

	h.logger.Info("Progress saved",
		zap.String("trace_id", traceID),
		zap.String("collection", req.Collection),
		zap.String("chapter", req.Chapter),
		zap.Int("page", req.Page),
	)

	w.WriteHeader(http.StatusNoContent)
}

func (h *LibraryHandler) Progress(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	resp, err := h.service.Progress(r.Context(), r.PathValue("collection"))
	if err != nil {
		handleError(w, h.logger, "Failed to get progress", err, traceID, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *LibraryHandler) ToggleBookmark(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	var req dto.BookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, h.logger, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}
	if req.Collection == "" || req.Chapter == "" {
		handleError(w, h.logger, "Collection and chapter are required", nil, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.ToggleBookmark(r.Context(), &req)
	if err != nil {
		handleError(w, h.logger, "Failed to toggle bookmark", err, traceID, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *LibraryHandler) Bookmarks(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	resp, err := h.service.Bookmarks(r.Context(), r.PathValue("collection"), r.URL.Query().Get("chapter"))
	if err != nil {
		handleError(w, h.logger, "Failed to list bookmarks", err, traceID, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *LibraryHandler) History(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			handleError(w, h.logger, "Invalid limit", err, traceID, http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	resp, err := h.service.History(r.Context(), limit)
	if err != nil {
		handleError(w, h.logger, "Failed to get history", err, traceID, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *LibraryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	resp, err := h.service.Stats(r.Context())
	if err != nil {
		handleError(w, h.logger, "Failed to get stats", err, traceID, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func libraryStatusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrCollectionNotFound),
		errors.Is(err, service.ErrChapterNotFound),
		errors.Is(err, service.ErrPageNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPageForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
