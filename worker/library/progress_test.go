package library

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openTestProgress(t *testing.T) *ProgressStore {
	t.Helper()
	store, err := OpenProgress(filepath.Join(t.TempDir(), "progress.db"))
	if err != nil {
		t.Fatalf("OpenProgress failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestProgressRoundTrip(t *testing.T) {
	store := openTestProgress(t)
	ctx := context.Background()

	err := store.SaveProgress(ctx, ReadingProgress{
		Collection: "tower",
		Chapter:    "ch1",
		Page:       5,
		TotalPages: 20,
	})
	if err != nil {
		t.Fatalf("SaveProgress failed: %v", err)
	}

	got, err := store.GetProgress(ctx, "tower", "ch1")
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if got.Page != 5 || got.TotalPages != 20 {
		t.Errorf("unexpected progress %+v", got)
	}
	if got.LastRead.IsZero() {
		t.Error("expected last read timestamp to be set")
	}

	err = store.SaveProgress(ctx, ReadingProgress{
		Collection: "tower",
		Chapter:    "ch1",
		Page:       7,
		TotalPages: 20,
	})
	if err != nil {
		t.Fatalf("SaveProgress failed: %v", err)
	}
	got, err = store.GetProgress(ctx, "tower", "ch1")
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if got.Page != 7 {
		t.Errorf("expected upserted page 7, got %d", got.Page)
	}
}

func TestListProgressOrdersByRecency(t *testing.T) {
	store := openTestProgress(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	chapters := []string{"ch1", "ch3", "ch2"}
	for i, chapter := range chapters {
		err := store.SaveProgress(ctx, ReadingProgress{
			Collection: "tower",
			Chapter:    chapter,
			Page:       i + 1,
			TotalPages: 20,
			LastRead:   base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("SaveProgress failed: %v", err)
		}
	}
	err := store.SaveProgress(ctx, ReadingProgress{
		Collection: "solo",
		Chapter:    "ch9",
		Page:       1,
		LastRead:   base,
	})
	if err != nil {
		t.Fatalf("SaveProgress failed: %v", err)
	}

	list, err := store.ListProgress(ctx, "tower")
	if err != nil {
		t.Fatalf("ListProgress failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 entries for tower, got %d", len(list))
	}
	want := []string{"ch2", "ch3", "ch1"}
	for i, chapter := range want {
		if list[i].Chapter != chapter {
			t.Errorf("entry %d: expected %s, got %s", i, chapter, list[i].Chapter)
		}
	}
}

func TestCounts(t *testing.T) {
	store := openTestProgress(t)
	ctx := context.Background()

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts != (Counts{}) {
		t.Errorf("expected empty counts, got %+v", counts)
	}

	if err := store.SaveProgress(ctx, ReadingProgress{Collection: "tower", Chapter: "ch1", Page: 3}); err != nil {
		t.Fatalf("SaveProgress failed: %v", err)
	}
	for _, page := range []int{1, 4} {
		if err := store.AddBookmark(ctx, "tower", "ch1", page); err != nil {
			t.Fatalf("AddBookmark failed: %v", err)
		}
	}
	if err := store.AddHistory(ctx, "tower", "ch1"); err != nil {
		t.Fatalf("AddHistory failed: %v", err)
	}

	counts, err = store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts.ChaptersInProgress != 1 || counts.Bookmarks != 2 || counts.HistoryEntries != 1 {
		t.Errorf("unexpected counts %+v", counts)
	}
}

func TestProgressMissing(t *testing.T) {
	store := openTestProgress(t)

	_, err := store.GetProgress(context.Background(), "tower", "ch99")
	if !errors.Is(err, ErrNoProgress) {
		t.Errorf("expected ErrNoProgress, got %v", err)
	}
}

func TestBookmarks(t *testing.T) {
	store := openTestProgress(t)
	ctx := context.Background()

	for _, page := range []int{5, 2, 9, 2} {
		if err := store.AddBookmark(ctx, "tower", "ch1", page); err != nil {
			t.Fatalf("AddBookmark failed: %v", err)
		}
	}

	pages, err := store.Bookmarks(ctx, "tower", "ch1")
	if err != nil {
		t.Fatalf("Bookmarks failed: %v", err)
	}
	want := []int{2, 5, 9}
	if len(pages) != len(want) {
		t.Fatalf("expected %v, got %v", want, pages)
	}
	for i := range want {
		if pages[i] != want[i] {
			t.Errorf("bookmark %d: expected %d, got %d", i, want[i], pages[i])
		}
	}

	if err := store.RemoveBookmark(ctx, "tower", "ch1", 5); err != nil {
		t.Fatalf("RemoveBookmark failed: %v", err)
	}
	pages, err = store.Bookmarks(ctx, "tower", "ch1")
	if err != nil {
		t.Fatalf("Bookmarks failed: %v", err)
	}
	if len(pages) != 2 || pages[0] != 2 || pages[1] != 9 {
		t.Errorf("expected [2 9], got %v", pages)
	}

	other, err := store.Bookmarks(ctx, "tower", "ch2")
	if err != nil {
		t.Fatalf("Bookmarks failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no bookmarks for other chapter, got %v", other)
	}
}

func TestHistoryDedupeAndOrder(t *testing.T) {
	store := openTestProgress(t)
	ctx := context.Background()

	if err := store.AddHistory(ctx, "tower", "ch1"); err != nil {
		t.Fatalf("AddHistory failed: %v", err)
	}
	if err := store.AddHistory(ctx, "solo", "ch3"); err != nil {
		t.Fatalf("AddHistory failed: %v", err)
	}
	if err := store.AddHistory(ctx, "tower", "ch1"); err != nil {
		t.Fatalf("AddHistory failed: %v", err)
	}

	entries, err := store.History(ctx, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected revisit to be deduplicated, got %d entries", len(entries))
	}
	if entries[0].Collection != "tower" || entries[0].Chapter != "ch1" {
		t.Errorf("expected revisited chapter first, got %+v", entries[0])
	}
	if entries[1].Collection != "solo" {
		t.Errorf("expected solo second, got %+v", entries[1])
	}
}

func TestHistoryCap(t *testing.T) {
	store := openTestProgress(t)
	ctx := context.Background()

	for i := 0; i < historyCap+5; i++ {
		if err := store.AddHistory(ctx, "tower", fmt.Sprintf("ch%03d", i)); err != nil {
			t.Fatalf("AddHistory failed: %v", err)
		}
	}

	entries, err := store.History(ctx, historyCap+10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != historyCap {
		t.Fatalf("expected history capped at %d, got %d", historyCap, len(entries))
	}
	if entries[0].Chapter != fmt.Sprintf("ch%03d", historyCap+4) {
		t.Errorf("expected newest entry first, got %s", entries[0].Chapter)
	}
}
