package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"mangatint/api/dto"
	"mangatint/worker/library"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrChapterNotFound    = errors.New("chapter not found")
	ErrPageNotFound       = errors.New("page not found")
	ErrPageForbidden      = errors.New("page outside library")
)

// LibraryService reads the library tree and the reading database. The
// filesystem is the source of truth for collections and pages; sqlite
// holds progress, bookmarks, and history.
type LibraryService struct {
	lib      *library.Library
	progress *library.ProgressStore
}

func NewLibraryService(lib *library.Library, progress *library.ProgressStore) *LibraryService {
	return &LibraryService{lib: lib, progress: progress}
}

func (s *LibraryService) Collections(ctx context.Context) (*dto.CollectionListResponse, error) {
	collections, err := s.lib.Collections()
	if err != nil {
		return nil, err
	}

	resp := &dto.CollectionListResponse{
		Collections: make([]dto.CollectionSummary, 0, len(collections)),
		Total:       len(collections),
	}
	for _, c := range collections {
		resp.Collections = append(resp.Collections, dto.CollectionSummary{
			Name:          c.Name,
			Path:          c.Path,
			TotalChapters: len(c.Chapters),
			CoverPath:     c.CoverPath,
			HasColored:    c.HasColored,
		})
	}
	return resp, nil
}

func (s *LibraryService) Chapters(ctx context.Context, collection string) (*dto.ChapterListResponse, error) {
	if _, err := os.Stat(filepath.Join(s.lib.Root(), collection)); err != nil {
		return nil, ErrCollectionNotFound
	}
	chapters, err := s.lib.Chapters(collection)
	if err != nil {
		return nil, err
	}

	resp := &dto.ChapterListResponse{
		Collection: collection,
		Chapters:   make([]dto.ChapterSummary, 0, len(chapters)),
		Total:      len(chapters),
	}
	for _, chapter := range chapters {
		pages, err := s.lib.Pages(collection, chapter, false)
		if err != nil {
			return nil, err
		}

		lastPage := 0
		if p, err := s.progress.GetProgress(ctx, collection, chapter); err == nil {
			lastPage = p.Page
		}

		resp.Chapters = append(resp.Chapters, dto.ChapterSummary{
			Name:       chapter,
			Pages:      len(pages),
			HasColored: s.lib.HasColored(collection, chapter),
			LastPage:   lastPage,
		})
	}
	return resp, nil
}

func (s *LibraryService) Pages(ctx context.Context, collection, chapter string, colored bool) (*dto.PageListResponse, error) {
	pages, err := s.lib.Pages(collection, chapter, colored)
	if err != nil || len(pages) == 0 {
		return nil, ErrChapterNotFound
	}

	resp := &dto.PageListResponse{
		Collection: collection,
		Chapter:    chapter,
		Colored:    colored,
		Pages:      make([]dto.PageRef, 0, len(pages)),
		Total:      len(pages),
	}
	for i, page := range pages {
		resp.Pages = append(resp.Pages, dto.PageRef{
			Index:    i,
			URL:      "/api/library/page?path=" + url.QueryEscape(page),
			Filename: filepath.Base(page),
		})
	}
	return resp, nil
}

// PagePath validates that a requested page file sits inside one of the
// allowed roots before it is served.
func (s *LibraryService) PagePath(raw string, allowedRoots ...string) (string, error) {
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", err
	}
	for _, root := range allowedRoots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(rootAbs, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if _, err := os.Stat(abs); err != nil {
			return "", ErrPageNotFound
		}
		return abs, nil
	}
	return "", fmt.Errorf("%w: %s", ErrPageForbidden, raw)
}

func (s *LibraryService) SaveProgress(ctx context.Context, req *dto.SaveProgressRequest) error {
	if err := s.progress.SaveProgress(ctx, library.ReadingProgress{
		Collection: req.Collection,
		Chapter:    req.Chapter,
		Page:       req.Page,
		TotalPages: req.TotalPages,
	}); err != nil {
		return err
	}
	return s.progress.AddHistory(ctx, req.Collection, req.Chapter)
}

func (s *LibraryService) Progress(ctx context.Context, collection string) (*dto.ProgressResponse, error) {
	list, err := s.progress.ListProgress(ctx, collection)
	if err != nil {
		return nil, err
	}

	resp := &dto.ProgressResponse{
		Collection: collection,
		Progress:   make([]dto.ProgressEntry, 0, len(list)),
		Total:      len(list),
	}
	for _, p := range list {
		percentage := 0
		if p.TotalPages > 0 {
			percentage = p.Page * 100 / p.TotalPages
		}
		resp.Progress = append(resp.Progress, dto.ProgressEntry{
			Chapter:    p.Chapter,
			Page:       p.Page,
			TotalPages: p.TotalPages,
			Percentage: percentage,
			LastRead:   p.LastRead.Format("2006-01-02T15:04:05Z"),
		})
	}
	return resp, nil
}

// ToggleBookmark adds the bookmark when absent and removes it when
// present, reporting the resulting state.
func (s *LibraryService) ToggleBookmark(ctx context.Context, req *dto.BookmarkRequest) (*dto.BookmarkResponse, error) {
	pages, err := s.progress.Bookmarks(ctx, req.Collection, req.Chapter)
	if err != nil {
		return nil, err
	}

	for _, page := range pages {
		if page == req.Page {
			if err := s.progress.RemoveBookmark(ctx, req.Collection, req.Chapter, req.Page); err != nil {
				return nil, err
			}
			return &dto.BookmarkResponse{Bookmarked: false}, nil
		}
	}

	if err := s.progress.AddBookmark(ctx, req.Collection, req.Chapter, req.Page); err != nil {
		return nil, err
	}
	return &dto.BookmarkResponse{Bookmarked: true}, nil
}

func (s *LibraryService) Bookmarks(ctx context.Context, collection, chapter string) (*dto.BookmarkListResponse, error) {
	pages, err := s.progress.Bookmarks(ctx, collection, chapter)
	if err != nil {
		return nil, err
	}
	if pages == nil {
		pages = []int{}
	}
	return &dto.BookmarkListResponse{
		Collection: collection,
		Chapter:    chapter,
		Pages:      pages,
	}, nil
}

func (s *LibraryService) History(ctx context.Context, limit int) (*dto.HistoryResponse, error) {
	entries, err := s.progress.History(ctx, limit)
	if err != nil {
		return nil, err
	}

	resp := &dto.HistoryResponse{
		History: make([]dto.HistoryItem, 0, len(entries)),
		Total:   len(entries),
	}
	for _, e := range entries {
		resp.History = append(resp.History, dto.HistoryItem{
			Collection: e.Collection,
			Chapter:    e.Chapter,
			ReadAt:     e.ReadAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	return resp, nil
}

func (s *LibraryService) Stats(ctx context.Context) (*dto.StatsResponse, error) {
	collections, err := s.lib.Collections()
	if err != nil {
		return nil, err
	}

	totalChapters := 0
	totalPages := 0
	for _, c := range collections {
		totalChapters += len(c.Chapters)
		for _, chapter := range c.Chapters {
			pages, err := s.lib.Pages(c.Name, chapter, false)
			if err != nil {
				continue
			}
			totalPages += len(pages)
		}
	}

	counts, err := s.progress.Counts(ctx)
	if err != nil {
		return nil, err
	}

	return &dto.StatsResponse{
		TotalCollections:   len(collections),
		TotalChapters:      totalChapters,
		TotalPages:         totalPages,
		ChaptersInProgress: counts.ChaptersInProgress,
		TotalBookmarks:     counts.Bookmarks,
		HistoryEntries:     counts.HistoryEntries,
	}, nil
}
