package resolver

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"mangatint/worker/batch"
)

var (
	ErrInputNotFound    = errors.New("input path not found")
	ErrUnsupportedInput = errors.New("unsupported input type")
)

var pageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".bmp":  true,
}

var archiveExtensions = map[string]bool{
	".zip": true,
	".cbz": true,
}

func IsPageFile(path string) bool {
	return pageExtensions[strings.ToLower(filepath.Ext(path))]
}

func IsArchive(path string) bool {
	return archiveExtensions[strings.ToLower(filepath.Ext(path))]
}

// DetectKind classifies a path for job submission.
func DetectKind(path string) (batch.ItemKind, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrInputNotFound, path)
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return batch.ItemFolder, nil
	}
	if IsArchive(path) {
		return batch.ItemArchive, nil
	}
	if IsPageFile(path) {
		return batch.ItemFile, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedInput, path)
}

// Page is a single resolvable input image. Source indexes the job item it
// came from, so destination metadata survives folder and archive expansion.
type Page struct {
	Path   string
	Source int
}

type Resolution struct {
	Pages      []Page
	HasArchive bool
	tempDirs   []string
}

// Cleanup removes every temp extraction dir. Safe to call more than once.
func (r *Resolution) Cleanup() error {
	var errs []error
	for _, dir := range r.tempDirs {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
		}
	}
	r.tempDirs = nil
	return errors.Join(errs...)
}

type Resolver struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolve expands job items into an ordered page list. Pages from each item
// are naturally sorted; duplicates across items are dropped. On error any
// temp dirs created so far are removed before returning.
func (r *Resolver) Resolve(items []batch.Item) (*Resolution, error) {
	res := &Resolution{}
	seen := make(map[string]bool)

	for i, item := range items {
		paths, err := r.resolveItem(item, res)
		if err != nil {
			res.Cleanup()
			return nil, fmt.Errorf("resolve %s: %w", item.Path, err)
		}

		SortNatural(paths)
		for _, p := range paths {
			if seen[p] {
				continue
			}
			seen[p] = true
			res.Pages = append(res.Pages, Page{Path: p, Source: i})
		}

		r.logger.Info("Resolved input",
			zap.String("path", item.Path),
			zap.String("kind", string(item.Kind)),
			zap.Int("pages", len(paths)),
		)
	}

	return res, nil
}

func (r *Resolver) resolveItem(item batch.Item, res *Resolution) ([]string, error) {
	kind := item.Kind
	if kind == "" {
		detected, err := DetectKind(item.Path)
		if err != nil {
			return nil, err
		}
		kind = detected
	}

	info, err := os.Stat(item.Path)
	if os.IsNotExist(err) {
		return nil, ErrInputNotFound
	}
	if err != nil {
		return nil, err
	}

	switch kind {
	case batch.ItemFile:
		if info.IsDir() || !IsPageFile(item.Path) {
			return nil, ErrUnsupportedInput
		}
		return []string{item.Path}, nil

	case batch.ItemFolder:
		if !info.IsDir() {
			return nil, ErrUnsupportedInput
		}
		return collectPages(item.Path)

	case batch.ItemArchive:
		if info.IsDir() || !IsArchive(item.Path) {
			return nil, ErrUnsupportedInput
		}
		res.HasArchive = true

		dir, err := os.MkdirTemp("", "mangatint-extract-")
		if err != nil {
			return nil, fmt.Errorf("create extraction dir: %w", err)
		}
		res.tempDirs = append(res.tempDirs, dir)

		n, err := r.extractArchive(item.Path, dir)
		if err != nil {
			return nil, fmt.Errorf("extract archive: %w", err)
		}
		r.logger.Info("Extracted archive",
			zap.String("archive", item.Path),
			zap.Int("entries", n),
		)
		return collectPages(dir)

	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnsupportedInput, kind)
	}
}

func collectPages(root string) ([]string, error) {
	var pages []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if IsPageFile(path) && !isJunk(path) {
			pages = append(pages, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pages, nil
}

func (r *Resolver) extractArchive(src, dest string) (int, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		// Go's reader flags ../ entries itself; it still hands back a
		// reader that must be closed.
		if zr != nil {
			zr.Close()
		}
		return 0, err
	}
	defer zr.Close()

	cleanDest := filepath.Clean(dest)
	extracted := 0
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || isJunk(f.Name) || !IsPageFile(f.Name) {
			continue
		}

		target := filepath.Join(dest, f.Name)
		if !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
			return extracted, fmt.Errorf("archive entry escapes extraction dir: %s", f.Name)
		}

		if err := extractEntry(f, target); err != nil {
			return extracted, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		extracted++
	}
	return extracted, nil
}

func extractEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	in, err := f.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// isJunk filters macOS resource forks that survive inside fan-made archives.
func isJunk(path string) bool {
	if strings.Contains(path, "__MACOSX") {
		return true
	}
	return strings.HasPrefix(filepath.Base(path), "._")
}

// CountPages estimates the page total without extracting archives. Used at
// submission time; the runner recounts after the real resolve.
func CountPages(items []batch.Item) (int, error) {
	total := 0
	for _, item := range items {
		kind := item.Kind
		if kind == "" {
			detected, err := DetectKind(item.Path)
			if err != nil {
				return 0, fmt.Errorf("count %s: %w", item.Path, err)
			}
			kind = detected
		}

		switch kind {
		case batch.ItemFile:
			if IsPageFile(item.Path) {
				total++
			}
		case batch.ItemFolder:
			pages, err := collectPages(item.Path)
			if err != nil {
				return 0, fmt.Errorf("count %s: %w", item.Path, err)
			}
			total += len(pages)
		case batch.ItemArchive:
			zr, err := zip.OpenReader(item.Path)
			if err != nil {
				if zr != nil {
					zr.Close()
				}
				return 0, fmt.Errorf("count %s: %w", item.Path, err)
			}
			for _, f := range zr.File {
				if !f.FileInfo().IsDir() && !isJunk(f.Name) && IsPageFile(f.Name) {
					total++
				}
			}
			zr.Close()
		default:
			return 0, fmt.Errorf("count %s: %w: kind %q", item.Path, ErrUnsupportedInput, kind)
		}
	}
	return total, nil
}
