package library

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const (
	historyCap          = 50
	defaultHistoryLimit = 20
)

var ErrNoProgress = errors.New("no reading progress recorded")

type ReadingProgress struct {
	Collection string    `json:"collection"`
	Chapter    string    `json:"chapter"`
	Page       int       `json:"page"`
	TotalPages int       `json:"total_pages"`
	LastRead   time.Time `json:"last_read"`
}

type HistoryEntry struct {
	Collection string    `json:"collection"`
	Chapter    string    `json:"chapter"`
	ReadAt     time.Time `json:"read_at"`
}

// ProgressStore keeps reading positions, bookmarks, and history in a
// local sqlite database.
type ProgressStore struct {
	db *sql.DB
}

func OpenProgress(path string) (*ProgressStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &ProgressStore{db: db}, nil
}

func (s *ProgressStore) Close() error {
	return s.db.Close()
}

// SaveProgress upserts the reading position for a chapter.
func (s *ProgressStore) SaveProgress(ctx context.Context, p ReadingProgress) error {
	lastRead := p.LastRead
	if lastRead.IsZero() {
		lastRead = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reading_progress (collection, chapter, page, total_pages, last_read)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, chapter)
		DO UPDATE SET page = excluded.page, total_pages = excluded.total_pages, last_read = excluded.last_read`,
		p.Collection, p.Chapter, p.Page, p.TotalPages, lastRead.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

func (s *ProgressStore) GetProgress(ctx context.Context, collection, chapter string) (*ReadingProgress, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT page, total_pages, last_read
		FROM reading_progress
		WHERE collection = ? AND chapter = ?`,
		collection, chapter)

	p := ReadingProgress{Collection: collection, Chapter: chapter}
	var lastRead int64
	if err := row.Scan(&p.Page, &p.TotalPages, &lastRead); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoProgress
		}
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	p.LastRead = time.Unix(0, lastRead).UTC()
	return &p, nil
}

// ListProgress returns every recorded chapter position for a collection,
// most recently read first.
func (s *ProgressStore) ListProgress(ctx context.Context, collection string) ([]ReadingProgress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chapter, page, total_pages, last_read
		FROM reading_progress
		WHERE collection = ?
		ORDER BY last_read DESC`,
		collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	defer rows.Close()

	var list []ReadingProgress
	for rows.Next() {
		p := ReadingProgress{Collection: collection}
		var lastRead int64
		if err := rows.Scan(&p.Chapter, &p.Page, &p.TotalPages, &lastRead); err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		p.LastRead = time.Unix(0, lastRead).UTC()
		list = append(list, p)
	}
	return list, rows.Err()
}

func (s *ProgressStore) AddBookmark(ctx context.Context, collection, chapter string, page int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO bookmarks (collection, chapter, page) VALUES (?, ?, ?)`,
		collection, chapter, page)
	if err != nil {
		return fmt.Errorf("failed to add bookmark: %w", err)
	}
	return nil
}

func (s *ProgressStore) RemoveBookmark(ctx context.Context, collection, chapter string, page int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM bookmarks WHERE collection = ? AND chapter = ? AND page = ?`,
		collection, chapter, page)
	if err != nil {
		return fmt.Errorf("failed to remove bookmark: %w", err)
	}
	return nil
}

func (s *ProgressStore) Bookmarks(ctx context.Context, collection, chapter string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT page FROM bookmarks
		WHERE collection = ? AND chapter = ?
		ORDER BY page`,
		collection, chapter)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	defer rows.Close()

	var pages []int
	for rows.Next() {
		var page int
		if err := rows.Scan(&page); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// AddHistory records a chapter visit. Revisits move the entry to the
// front; only the most recent entries are kept.
func (s *ProgressStore) AddHistory(ctx context.Context, collection, chapter string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (collection, chapter, read_at)
		VALUES (?, ?, ?)
		ON CONFLICT (collection, chapter) DO UPDATE SET read_at = excluded.read_at`,
		collection, chapter, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM history WHERE rowid NOT IN (
			SELECT rowid FROM history ORDER BY read_at DESC, rowid DESC LIMIT ?
		)`, historyCap)
	if err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}
	return nil
}

// Counts summarizes the reading database for the stats endpoint.
type Counts struct {
	ChaptersInProgress int `json:"chapters_in_progress"`
	Bookmarks          int `json:"bookmarks"`
	HistoryEntries     int `json:"history_entries"`
}

func (s *ProgressStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM reading_progress),
			(SELECT COUNT(*) FROM bookmarks),
			(SELECT COUNT(*) FROM history)`)
	if err := row.Scan(&c.ChaptersInProgress, &c.Bookmarks, &c.HistoryEntries); err != nil {
		return Counts{}, fmt.Errorf("failed to count reading data: %w", err)
	}
	return c, nil
}

func (s *ProgressStore) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT collection, chapter, read_at
		FROM history
		ORDER BY read_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		var readAt int64
		if err := rows.Scan(&entry.Collection, &entry.Chapter, &readAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		entry.ReadAt = time.Unix(0, readAt).UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
