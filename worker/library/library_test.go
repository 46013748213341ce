package library

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"go.uber.org/zap/zaptest"
)

func writePage(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	img := imaging.New(64, 96, color.NRGBA{255, 255, 255, 255})
	if err := imaging.Save(img, filepath.Join(dir, name)); err != nil {
		t.Fatalf("failed to write page: %v", err)
	}
}

func buildLibrary(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writePage(t, filepath.Join(root, "tower", "ch1"), "p1.png")
	writePage(t, filepath.Join(root, "tower", "ch1"), "p2.png")
	writePage(t, filepath.Join(root, "tower", "ch1"), "p10.png")
	writePage(t, filepath.Join(root, "tower", "ch2"), "p1.png")
	writePage(t, filepath.Join(root, "tower", "colored", "ch1"), "p1.png")
	writePage(t, filepath.Join(root, "solo", "chapter5"), "a.png")

	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	return root
}

func TestCollectionsScan(t *testing.T) {
	root := buildLibrary(t)
	lib := New(root, zaptest.NewLogger(t))

	collections, err := lib.Collections()
	if err != nil {
		t.Fatalf("Collections failed: %v", err)
	}
	if len(collections) != 2 {
		t.Fatalf("expected 2 collections, got %d", len(collections))
	}

	solo, tower := collections[0], collections[1]
	if solo.Name != "solo" || tower.Name != "tower" {
		t.Fatalf("unexpected collection order: %s, %s", solo.Name, tower.Name)
	}

	if len(tower.Chapters) != 2 || tower.Chapters[0] != "ch1" || tower.Chapters[1] != "ch2" {
		t.Errorf("unexpected tower chapters %v", tower.Chapters)
	}
	if !tower.HasColored {
		t.Error("expected tower to have colored output")
	}
	if solo.HasColored {
		t.Error("expected solo to have no colored output")
	}

	if tower.CoverPath == "" {
		t.Fatal("expected generated cover")
	}
	if _, err := os.Stat(tower.CoverPath); err != nil {
		t.Errorf("cover missing: %v", err)
	}
}

func TestCollectionsMissingRoot(t *testing.T) {
	lib := New(filepath.Join(t.TempDir(), "nope"), zaptest.NewLogger(t))

	collections, err := lib.Collections()
	if err != nil {
		t.Fatalf("Collections failed: %v", err)
	}
	if len(collections) != 0 {
		t.Errorf("expected no collections, got %d", len(collections))
	}
}

func TestChaptersNaturalOrder(t *testing.T) {
	root := t.TempDir()
	writePage(t, filepath.Join(root, "series", "ch10"), "p.png")
	writePage(t, filepath.Join(root, "series", "ch2"), "p.png")
	writePage(t, filepath.Join(root, "series", "ch1"), "p.png")
	writePage(t, filepath.Join(root, "series", "colored", "ch1"), "p.png")

	lib := New(root, zaptest.NewLogger(t))
	chapters, err := lib.Chapters("series")
	if err != nil {
		t.Fatalf("Chapters failed: %v", err)
	}

	want := []string{"ch1", "ch2", "ch10"}
	if len(chapters) != len(want) {
		t.Fatalf("expected %v, got %v", want, chapters)
	}
	for i := range want {
		if chapters[i] != want[i] {
			t.Errorf("chapter %d: expected %s, got %s", i, want[i], chapters[i])
		}
	}
}

func TestPagesPrefersColored(t *testing.T) {
	root := buildLibrary(t)
	lib := New(root, zaptest.NewLogger(t))

	original, err := lib.Pages("tower", "ch1", false)
	if err != nil {
		t.Fatalf("Pages failed: %v", err)
	}
	if len(original) != 3 {
		t.Fatalf("expected 3 original pages, got %d", len(original))
	}
	wantOrder := []string{"p1.png", "p2.png", "p10.png"}
	for i, page := range original {
		if filepath.Base(page) != wantOrder[i] {
			t.Errorf("page %d: expected %s, got %s", i, wantOrder[i], filepath.Base(page))
		}
	}

	colored, err := lib.Pages("tower", "ch1", true)
	if err != nil {
		t.Fatalf("Pages failed: %v", err)
	}
	if len(colored) != 1 {
		t.Fatalf("expected 1 colored page, got %d", len(colored))
	}
	if filepath.Dir(colored[0]) != lib.ColoredDir("tower", "ch1") {
		t.Errorf("expected colored page from %s, got %s", lib.ColoredDir("tower", "ch1"), colored[0])
	}

	fallback, err := lib.Pages("tower", "ch2", true)
	if err != nil {
		t.Fatalf("Pages failed: %v", err)
	}
	if len(fallback) != 1 || filepath.Dir(fallback[0]) == lib.ColoredDir("tower", "ch2") {
		t.Errorf("expected fallback to original pages, got %v", fallback)
	}
}

func TestHasColored(t *testing.T) {
	root := buildLibrary(t)
	lib := New(root, zaptest.NewLogger(t))

	if !lib.HasColored("tower", "ch1") {
		t.Error("expected colored ch1")
	}
	if lib.HasColored("tower", "ch2") {
		t.Error("expected no colored ch2")
	}
	if !lib.HasColored("tower", "") {
		t.Error("expected collection-level colored check to pass")
	}
	if lib.HasColored("solo", "") {
		t.Error("expected solo to have no colored output")
	}
}

func TestEnsureCoverIdempotent(t *testing.T) {
	root := buildLibrary(t)
	lib := New(root, zaptest.NewLogger(t))

	first, err := lib.EnsureCover("tower")
	if err != nil {
		t.Fatalf("EnsureCover failed: %v", err)
	}
	info, err := os.Stat(first)
	if err != nil {
		t.Fatalf("cover missing: %v", err)
	}

	second, err := lib.EnsureCover("tower")
	if err != nil {
		t.Fatalf("EnsureCover failed: %v", err)
	}
	if second != first {
		t.Errorf("expected same cover path, got %s and %s", first, second)
	}
	again, err := os.Stat(second)
	if err != nil {
		t.Fatalf("cover missing: %v", err)
	}
	if !again.ModTime().Equal(info.ModTime()) {
		t.Error("expected cover not to be regenerated")
	}
}
