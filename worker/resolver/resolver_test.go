package resolver

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"mangatint/worker/batch"
)

func createPageFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte("fake image data"), 0o644); err != nil {
		t.Fatalf("Failed to create page file: %v", err)
	}
}

func createTestArchive(t *testing.T, path string, names []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create archive: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for _, name := range names {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("Failed to add archive entry: %v", err)
		}
		if _, err := entry.Write([]byte("fake image data")); err != nil {
			t.Fatalf("Failed to write archive entry: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close archive: %v", err)
	}
}

func TestSortNatural(t *testing.T) {
	paths := []string{"page10.png", "page2.png", "page1.png", "Page3.png"}
	SortNatural(paths)

	want := []string{"page1.png", "page2.png", "Page3.png", "page10.png"}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, paths)
		}
	}
}

func TestSortNatural_BareNumbers(t *testing.T) {
	paths := []string{"10.png", "2.png", "1.png"}
	SortNatural(paths)

	want := []string{"1.png", "2.png", "10.png"}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, paths)
		}
	}
}

func TestSortNatural_ChapterPaths(t *testing.T) {
	paths := []string{
		"ch10/page1.png",
		"ch2/page2.png",
		"ch2/page10.png",
		"ch2/page1.png",
	}
	SortNatural(paths)

	want := []string{
		"ch2/page1.png",
		"ch2/page2.png",
		"ch2/page10.png",
		"ch10/page1.png",
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, paths)
		}
	}
}

func TestResolver_SingleFile(t *testing.T) {
	r := New(zaptest.NewLogger(t))
	tmpDir := t.TempDir()
	page := filepath.Join(tmpDir, "page1.png")
	createPageFile(t, page)

	res, err := r.Resolve([]batch.Item{{Kind: batch.ItemFile, Path: page}})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer res.Cleanup()

	if len(res.Pages) != 1 {
		t.Fatalf("Expected 1 page, got %d", len(res.Pages))
	}
	if res.Pages[0].Path != page {
		t.Errorf("Expected %s, got %s", page, res.Pages[0].Path)
	}
	if res.HasArchive {
		t.Error("Expected HasArchive false for a plain file")
	}
}

func TestResolver_FolderRecursiveNaturalOrder(t *testing.T) {
	r := New(zaptest.NewLogger(t))
	tmpDir := t.TempDir()

	createPageFile(t, filepath.Join(tmpDir, "page10.png"))
	createPageFile(t, filepath.Join(tmpDir, "page2.png"))
	createPageFile(t, filepath.Join(tmpDir, "page1.png"))
	createPageFile(t, filepath.Join(tmpDir, "extras", "cover.jpg"))
	createPageFile(t, filepath.Join(tmpDir, "notes.txt"))

	res, err := r.Resolve([]batch.Item{{Kind: batch.ItemFolder, Path: tmpDir}})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer res.Cleanup()

	if len(res.Pages) != 4 {
		t.Fatalf("Expected 4 pages, got %d", len(res.Pages))
	}

	base := func(i int) string { return filepath.Base(res.Pages[i].Path) }
	// extras/ sorts before the top-level pages, pages numerically within.
	want := []string{"cover.jpg", "page1.png", "page2.png", "page10.png"}
	for i := range want {
		if base(i) != want[i] {
			t.Fatalf("Expected order %v, got pages %v", want, res.Pages)
		}
	}
}

func TestResolver_DeduplicatesAcrossItems(t *testing.T) {
	r := New(zaptest.NewLogger(t))
	tmpDir := t.TempDir()
	page := filepath.Join(tmpDir, "page1.png")
	createPageFile(t, page)

	res, err := r.Resolve([]batch.Item{
		{Kind: batch.ItemFile, Path: page},
		{Kind: batch.ItemFolder, Path: tmpDir},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer res.Cleanup()

	if len(res.Pages) != 1 {
		t.Fatalf("Expected deduplicated single page, got %d", len(res.Pages))
	}
	if res.Pages[0].Source != 0 {
		t.Errorf("Expected page attributed to first item, got %d", res.Pages[0].Source)
	}
}

func TestResolver_ArchiveExtractionAndCleanup(t *testing.T) {
	r := New(zaptest.NewLogger(t))
	tmpDir := t.TempDir()
	archive := filepath.Join(tmpDir, "chapter.cbz")
	createTestArchive(t, archive, []string{
		"page10.png",
		"page2.png",
		"page1.png",
		"__MACOSX/page1.png",
		"._page2.png",
		"info.txt",
	})

	res, err := r.Resolve([]batch.Item{{Kind: batch.ItemArchive, Path: archive}})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if !res.HasArchive {
		t.Error("Expected HasArchive true")
	}
	if len(res.Pages) != 3 {
		t.Fatalf("Expected 3 pages, got %d", len(res.Pages))
	}
	want := []string{"page1.png", "page2.png", "page10.png"}
	for i := range want {
		if filepath.Base(res.Pages[i].Path) != want[i] {
			t.Fatalf("Expected order %v, got pages %v", want, res.Pages)
		}
	}

	if len(res.tempDirs) != 1 {
		t.Fatalf("Expected 1 temp dir, got %d", len(res.tempDirs))
	}
	extractDir := res.tempDirs[0]
	if _, err := os.Stat(extractDir); err != nil {
		t.Fatalf("Expected extraction dir to exist: %v", err)
	}

	if err := res.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if _, err := os.Stat(extractDir); !os.IsNotExist(err) {
		t.Error("Expected extraction dir removed after cleanup")
	}
	if err := res.Cleanup(); err != nil {
		t.Errorf("Second cleanup should be a no-op, got %v", err)
	}
}

func TestResolver_ArchivePathTraversalRejected(t *testing.T) {
	r := New(zaptest.NewLogger(t))
	tmpDir := t.TempDir()
	archive := filepath.Join(tmpDir, "evil.zip")
	createTestArchive(t, archive, []string{"../escape.png"})

	_, err := r.Resolve([]batch.Item{{Kind: batch.ItemArchive, Path: archive}})
	if err == nil {
		t.Fatal("Expected error for path traversal entry, got nil")
	}
}

func TestResolver_MissingInput(t *testing.T) {
	r := New(zaptest.NewLogger(t))

	_, err := r.Resolve([]batch.Item{{Kind: batch.ItemFile, Path: "/nonexistent/page1.png"}})
	if !errors.Is(err, ErrInputNotFound) {
		t.Errorf("Expected ErrInputNotFound, got %v", err)
	}
}

func TestResolver_UnsupportedExtension(t *testing.T) {
	r := New(zaptest.NewLogger(t))
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "notes.txt")
	createPageFile(t, path)

	_, err := r.Resolve([]batch.Item{{Kind: batch.ItemFile, Path: path}})
	if !errors.Is(err, ErrUnsupportedInput) {
		t.Errorf("Expected ErrUnsupportedInput, got %v", err)
	}
}

func TestResolver_CountPagesWithoutExtraction(t *testing.T) {
	tmpDir := t.TempDir()

	createPageFile(t, filepath.Join(tmpDir, "loose", "page1.png"))
	createPageFile(t, filepath.Join(tmpDir, "loose", "page2.png"))
	archive := filepath.Join(tmpDir, "chapter.zip")
	createTestArchive(t, archive, []string{"p1.png", "p2.png", "p3.png", "readme.txt"})

	total, err := CountPages([]batch.Item{
		{Kind: batch.ItemFolder, Path: filepath.Join(tmpDir, "loose")},
		{Kind: batch.ItemArchive, Path: archive},
	})
	if err != nil {
		t.Fatalf("CountPages failed: %v", err)
	}
	if total != 5 {
		t.Errorf("Expected 5 pages, got %d", total)
	}
}

func TestDetectKind(t *testing.T) {
	tmpDir := t.TempDir()
	page := filepath.Join(tmpDir, "page1.png")
	createPageFile(t, page)
	archive := filepath.Join(tmpDir, "chapter.cbz")
	createTestArchive(t, archive, []string{"p1.png"})
	other := filepath.Join(tmpDir, "notes.txt")
	createPageFile(t, other)

	if kind, err := DetectKind(tmpDir); err != nil || kind != batch.ItemFolder {
		t.Errorf("Expected folder, got %s (%v)", kind, err)
	}
	if kind, err := DetectKind(page); err != nil || kind != batch.ItemFile {
		t.Errorf("Expected file, got %s (%v)", kind, err)
	}
	if kind, err := DetectKind(archive); err != nil || kind != batch.ItemArchive {
		t.Errorf("Expected archive, got %s (%v)", kind, err)
	}
	if _, err := DetectKind(other); !errors.Is(err, ErrUnsupportedInput) {
		t.Errorf("Expected ErrUnsupportedInput, got %v", err)
	}
	if _, err := DetectKind(filepath.Join(tmpDir, "missing")); !errors.Is(err, ErrInputNotFound) {
		t.Errorf("Expected ErrInputNotFound, got %v", err)
	}
}
