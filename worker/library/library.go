package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"mangatint/worker/resolver"
)

const (
	coloredDirName = "colored"
	coverName      = "cover_thumb.jpg"

	coverWidth  = 200
	coverHeight = 300
)

// Collection is one manga series in the library tree. Originals live in
// <root>/<name>/<chapter>/ and colorized pages in
// <root>/<name>/colored/<chapter>/.
type Collection struct {
	Name       string   `json:"name"`
	Path       string   `json:"path"`
	Chapters   []string `json:"chapters"`
	CoverPath  string   `json:"cover_path,omitempty"`
	HasColored bool     `json:"has_colored"`
}

type Library struct {
	root   string
	logger *zap.Logger
}

func New(root string, logger *zap.Logger) *Library {
	return &Library{root: root, logger: logger}
}

func (l *Library) Root() string {
	return l.root
}

// Collections scans the library root. Directories without chapters are
// skipped; covers are generated on first sight of a collection.
func (l *Library) Collections() ([]Collection, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read library root: %w", err)
	}

	collections := make([]Collection, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		chapters, err := l.Chapters(entry.Name())
		if err != nil {
			l.logger.Warn("Failed to scan collection", zap.String("collection", entry.Name()), zap.Error(err))
			continue
		}
		if len(chapters) == 0 {
			continue
		}

		cover, err := l.EnsureCover(entry.Name())
		if err != nil {
			l.logger.Warn("Failed to generate cover", zap.String("collection", entry.Name()), zap.Error(err))
		}

		collections = append(collections, Collection{
			Name:       entry.Name(),
			Path:       filepath.Join(l.root, entry.Name()),
			Chapters:   chapters,
			CoverPath:  cover,
			HasColored: l.HasColored(entry.Name(), ""),
		})
	}
	return collections, nil
}

// Chapters lists chapter directories of a collection in natural order.
// The colored output tree does not count as a chapter.
func (l *Library) Chapters(collection string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(l.root, collection))
	if err != nil {
		return nil, fmt.Errorf("failed to read collection: %w", err)
	}

	chapters := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == coloredDirName || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		chapters = append(chapters, entry.Name())
	}
	resolver.SortNatural(chapters)
	return chapters, nil
}

// Pages lists a chapter's pages in natural reading order. With colored
// set, the colorized version is preferred and the original is the
// fallback.
func (l *Library) Pages(collection, chapter string, colored bool) ([]string, error) {
	if colored {
		pages, err := listPages(l.ColoredDir(collection, chapter))
		if err == nil && len(pages) > 0 {
			return pages, nil
		}
	}
	return listPages(filepath.Join(l.root, collection, chapter))
}

func (l *Library) ColoredDir(collection, chapter string) string {
	return filepath.Join(l.root, collection, coloredDirName, chapter)
}

// HasColored reports whether colorized output exists, for the whole
// collection when chapter is empty.
func (l *Library) HasColored(collection, chapter string) bool {
	if chapter != "" {
		pages, err := listPages(l.ColoredDir(collection, chapter))
		return err == nil && len(pages) > 0
	}

	root := filepath.Join(l.root, collection, coloredDirName)
	found := false
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && resolver.IsPageFile(path) {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// EnsureCover returns the collection's cover thumbnail, generating it
// from the first page of the first chapter when missing. Collections
// without pages have no cover.
func (l *Library) EnsureCover(collection string) (string, error) {
	cover := filepath.Join(l.root, collection, coverName)
	if _, err := os.Stat(cover); err == nil {
		return cover, nil
	}

	chapters, err := l.Chapters(collection)
	if err != nil || len(chapters) == 0 {
		return "", err
	}
	pages, err := listPages(filepath.Join(l.root, collection, chapters[0]))
	if err != nil || len(pages) == 0 {
		return "", err
	}

	img, err := imaging.Open(pages[0])
	if err != nil {
		return "", fmt.Errorf("failed to open first page: %w", err)
	}
	thumb := imaging.Fit(img, coverWidth, coverHeight, imaging.Lanczos)
	if err := imaging.Save(thumb, cover, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("failed to save cover: %w", err)
	}

	l.logger.Info("Generated cover", zap.String("collection", collection))
	return cover, nil
}

func listPages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read chapter: %w", err)
	}

	pages := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !resolver.IsPageFile(entry.Name()) {
			continue
		}
		pages = append(pages, filepath.Join(dir, entry.Name()))
	}
	resolver.SortNatural(pages)
	return pages, nil
}
