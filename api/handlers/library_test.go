package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"mangatint/api/dto"
	"mangatint/api/service"
)

type mockLibraryService struct {
	collectionsFunc    func(ctx context.Context) (*dto.CollectionListResponse, error)
	chaptersFunc       func(ctx context.Context, collection string) (*dto.ChapterListResponse, error)
	pagesFunc          func(ctx context.Context, collection, chapter string, colored bool) (*dto.PageListResponse, error)
	pagePathFunc       func(raw string, allowedRoots ...string) (string, error)
	saveProgressFunc   func(ctx context.Context, req *dto.SaveProgressRequest) error
	progressFunc       func(ctx context.Context, collection string) (*dto.ProgressResponse, error)
	toggleBookmarkFunc func(ctx context.Context, req *dto.BookmarkRequest) (*dto.BookmarkResponse, error)
	bookmarksFunc      func(ctx context.Context, collection, chapter string) (*dto.BookmarkListResponse, error)
	historyFunc        func(ctx context.Context, limit int) (*dto.HistoryResponse, error)
	statsFunc          func(ctx context.Context) (*dto.StatsResponse, error)
}

func (m *mockLibraryService) Collections(ctx context.Context) (*dto.CollectionListResponse, error) {
	if m.collectionsFunc != nil {
		return m.collectionsFunc(ctx)
	}
	return &dto.CollectionListResponse{Collections: []dto.CollectionSummary{}}, nil
}

func (m *mockLibraryService) Chapters(ctx context.Context, collection string) (*dto.ChapterListResponse, error) {
	if m.chaptersFunc != nil {
		return m.chaptersFunc(ctx, collection)
	}
	return &dto.ChapterListResponse{Collection: collection}, nil
}

func (m *mockLibraryService) Pages(ctx context.Context, collection, chapter string, colored bool) (*dto.PageListResponse, error) {
	if m.pagesFunc != nil {
		return m.pagesFunc(ctx, collection, chapter, colored)
	}
	return &dto.PageListResponse{Collection: collection, Chapter: chapter, Colored: colored}, nil
}

func (m *mockLibraryService) PagePath(raw string, allowedRoots ...string) (string, error) {
	if m.pagePathFunc != nil {
		return m.pagePathFunc(raw, allowedRoots...)
	}
	return raw, nil
}

func (m *mockLibraryService) SaveProgress(ctx context.Context, req *dto.SaveProgressRequest) error {
	if m.saveProgressFunc != nil {
		return m.saveProgressFunc(ctx, req)
	}
	return nil
}

func (m *mockLibraryService) Progress(ctx context.Context, collection string) (*dto.ProgressResponse, error) {
	if m.progressFunc != nil {
		return m.progressFunc(ctx, collection)
	}
	return &dto.ProgressResponse{Collection: collection}, nil
}

func (m *mockLibraryService) ToggleBookmark(ctx context.Context, req *dto.BookmarkRequest) (*dto.BookmarkResponse, error) {
	if m.toggleBookmarkFunc != nil {
		return m.toggleBookmarkFunc(ctx, req)
	}
	return &dto.BookmarkResponse{Bookmarked: true}, nil
}

func (m *mockLibraryService) Bookmarks(ctx context.Context, collection, chapter string) (*dto.BookmarkListResponse, error) {
	if m.bookmarksFunc != nil {
		return m.bookmarksFunc(ctx, collection, chapter)
	}
	return &dto.BookmarkListResponse{Collection: collection, Chapter: chapter, Pages: []int{}}, nil
}

func (m *mockLibraryService) History(ctx context.Context, limit int) (*dto.HistoryResponse, error) {
	if m.historyFunc != nil {
		return m.historyFunc(ctx, limit)
	}
	return &dto.HistoryResponse{History: []dto.HistoryItem{}}, nil
}

func (m *mockLibraryService) Stats(ctx context.Context) (*dto.StatsResponse, error) {
	if m.statsFunc != nil {
		return m.statsFunc(ctx)
	}
	return &dto.StatsResponse{}, nil
}

func TestLibraryHandler_Collections(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mockService := &mockLibraryService{
		collectionsFunc: func(ctx context.Context) (*dto.CollectionListResponse, error) {
			return &dto.CollectionListResponse{
				Collections: []dto.CollectionSummary{{Name: "one-piece", TotalChapters: 12}},
				Total:       1,
			}, nil
		},
	}
	handler := NewLibraryHandler(mockService, nil, logger)

	req := newBatchRequest(t, "GET", "/api/library/collections", nil)
	rec := httptest.NewRecorder()

	handler.Collections(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var resp dto.CollectionListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Total != 1 || resp.Collections[0].Name != "one-piece" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestLibraryHandler_Chapters_NotFound(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mockService := &mockLibraryService{
		chaptersFunc: func(ctx context.Context, collection string) (*dto.ChapterListResponse, error) {
			return nil, service.ErrCollectionNotFound
		},
	}
	handler := NewLibraryHandler(mockService, nil, logger)

	req := newBatchRequest(t, "GET", "/api/library/collections/missing/chapters", nil)
	req.SetPathValue("collection", "missing")
	rec := httptest.NewRecorder()

	handler.Chapters(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestLibraryHandler_Pages_ColoredFlag(t *testing.T) {
	logger := zaptest.NewLogger(t)

	var gotColored bool
	mockService := &mockLibraryService{
		pagesFunc: func(ctx context.Context, collection, chapter string, colored bool) (*dto.PageListResponse, error) {
			gotColored = colored
			return &dto.PageListResponse{Collection: collection, Chapter: chapter, Colored: colored}, nil
		},
	}
	handler := NewLibraryHandler(mockService, nil, logger)

	req := newBatchRequest(t, "GET", "/api/library/collections/op/chapters/ch1/pages?colored=true", nil)
	req.SetPathValue("collection", "op")
	req.SetPathValue("chapter", "ch1")
	rec := httptest.NewRecorder()

	handler.Pages(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if !gotColored {
		t.Error("Expected the colored query flag to reach the service")
	}
}

func TestLibraryHandler_Page_Success(t *testing.T) {
	logger := zaptest.NewLogger(t)
	root := t.TempDir()
	pagePath := filepath.Join(root, "001.png")
	if err := os.WriteFile(pagePath, []byte("page-bytes"), 0o644); err != nil {
		t.Fatalf("Failed to write page file: %v", err)
	}

	svc := service.NewLibraryService(nil, nil)
	handler := NewLibraryHandler(&mockLibraryService{
		pagePathFunc: svc.PagePath,
	}, []string{root}, logger)

	req := newBatchRequest(t, "GET", "/api/library/page?path="+pagePath, nil)
	rec := httptest.NewRecorder()

	handler.Page(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "page-bytes" {
		t.Errorf("Expected the file content to be served, got %q", rec.Body.String())
	}
}

func TestLibraryHandler_Page_OutsideRoots(t *testing.T) {
	logger := zaptest.NewLogger(t)
	root := t.TempDir()

	svc := service.NewLibraryService(nil, nil)
	handler := NewLibraryHandler(&mockLibraryService{
		pagePathFunc: svc.PagePath,
	}, []string{root}, logger)

	req := newBatchRequest(t, "GET", "/api/library/page?path=/etc/passwd", nil)
	rec := httptest.NewRecorder()

	handler.Page(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rec.Code)
	}
}

func TestLibraryHandler_Page_MissingPath(t *testing.T) {
	logger := zaptest.NewLogger(t)
	handler := NewLibraryHandler(&mockLibraryService{}, nil, logger)

	req := newBatchRequest(t, "GET", "/api/library/page", nil)
	rec := httptest.NewRecorder()

	handler.Page(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestLibraryHandler_SaveProgress(t *testing.T) {
	logger := zaptest.NewLogger(t)

	var saved *dto.SaveProgressRequest
	mockService := &mockLibraryService{
		saveProgressFunc: func(ctx context.Context, req *dto.SaveProgressRequest) error {
			saved = req
			return nil
		},
	}
	handler := NewLibraryHandler(mockService, nil, logger)

	body := bytes.NewBufferString(`{"collection":"op","chapter":"ch1","page":7,"total_pages":20}`)
	req := newBatchRequest(t, "POST", "/api/library/progress", body)
	rec := httptest.NewRecorder()

	handler.SaveProgress(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rec.Code)
	}
	if saved == nil || saved.Page != 7 || saved.TotalPages != 20 {
		t.Errorf("Unexpected saved progress: %+v", saved)
	}
}

func TestLibraryHandler_SaveProgress_MissingFields(t *testing.T) {
	logger := zaptest.NewLogger(t)
	handler := NewLibraryHandler(&mockLibraryService{}, nil, logger)

	body := bytes.NewBufferString(`{"collection":"op","page":7}`)
	req := newBatchRequest(t, "POST", "/api/library/progress", body)
	rec := httptest.NewRecorder()

	handler.SaveProgress(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestLibraryHandler_ToggleBookmark(t *testing.T) {
	logger := zaptest.NewLogger(t)
	handler := NewLibraryHandler(&mockLibraryService{}, nil, logger)

	body := bytes.NewBufferString(`{"collection":"op","chapter":"ch1","page":3}`)
	req := newBatchRequest(t, "POST", "/api/library/bookmark", body)
	rec := httptest.NewRecorder()

	handler.ToggleBookmark(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var resp dto.BookmarkResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Bookmarked {
		t.Error("Expected bookmarked true")
	}
}

func TestLibraryHandler_History_InvalidLimit(t *testing.T) {
	logger := zaptest.NewLogger(t)
	handler := NewLibraryHandler(&mockLibraryService{}, nil, logger)

	req := newBatchRequest(t, "GET", "/api/library/history?limit=bogus", nil)
	rec := httptest.NewRecorder()

	handler.History(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestLibraryHandler_History_PassesLimit(t *testing.T) {
	logger := zaptest.NewLogger(t)

	var gotLimit int
	mockService := &mockLibraryService{
		historyFunc: func(ctx context.Context, limit int) (*dto.HistoryResponse, error) {
			gotLimit = limit
			return &dto.HistoryResponse{History: []dto.HistoryItem{}}, nil
		},
	}
	handler := NewLibraryHandler(mockService, nil, logger)

	req := newBatchRequest(t, "GET", "/api/library/history?limit=5", nil)
	rec := httptest.NewRecorder()

	handler.History(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if gotLimit != 5 {
		t.Errorf("Expected limit 5, got %d", gotLimit)
	}
}
