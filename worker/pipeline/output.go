package pipeline

import (
	"archive/zip"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"mangatint/worker/batch"
)

// Writer decides where colorized pages land and packs batch archives.
// Library items go under <libraryRoot>/<collection>/colored/<chapter>/,
// everything else under <outputRoot>/batch_<jobID>/.
type Writer struct {
	outputRoot  string
	libraryRoot string
	logger      *zap.Logger
}

func NewWriter(outputRoot, libraryRoot string, logger *zap.Logger) *Writer {
	return &Writer{
		outputRoot:  outputRoot,
		libraryRoot: libraryRoot,
		logger:      logger,
	}
}

func (w *Writer) BatchDir(jobID string) string {
	return filepath.Join(w.outputRoot, "batch_"+jobID)
}

// PageDestination computes the output path for one page. The path is not
// created until SavePage runs.
func (w *Writer) PageDestination(jobID string, item batch.Item, pagePath string) string {
	stem := strings.TrimSuffix(filepath.Base(pagePath), filepath.Ext(pagePath))
	if item.InLibrary() {
		return filepath.Join(w.libraryRoot, item.Collection, "colored", item.Chapter, stem+".png")
	}
	return filepath.Join(w.BatchDir(jobID), stem+"_colored.png")
}

func (w *Writer) SavePage(img image.Image, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := imaging.Save(img, dest); err != nil {
		return fmt.Errorf("failed to save page: %w", err)
	}
	w.logger.Debug("Page saved", zap.String("path", dest))
	return nil
}

// ShouldPack decides whether a finished job gets a zip archive.
func ShouldPack(format batch.OutputFormat, hadArchiveInput bool) bool {
	switch format {
	case batch.FormatArchive:
		return true
	case batch.FormatFolder:
		return false
	default:
		return hadArchiveInput
	}
}

// PackArchive zips every successful page of the job, in processing order,
// into <outputRoot>/batch_<jobID>.zip.
func (w *Writer) PackArchive(job *batch.Job) (string, error) {
	outputs := make([]string, 0, len(job.Results))
	for _, res := range job.Results {
		if res.Success && res.Output != "" {
			outputs = append(outputs, res.Output)
		}
	}
	if len(outputs) == 0 {
		return "", errors.New("no pages to pack")
	}

	if err := os.MkdirAll(w.outputRoot, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	archivePath := filepath.Join(w.outputRoot, "batch_"+job.ID+".zip")
	f, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, output := range outputs {
		if err := packFile(zw, output); err != nil {
			zw.Close()
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize archive: %w", err)
	}

	w.logger.Info("Archive packed",
		zap.String("path", archivePath),
		zap.Int("pages", len(outputs)),
	)
	return archivePath, nil
}

func packFile(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open page for packing: %w", err)
	}
	defer src.Close()

	entry, err := zw.Create(filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to add archive entry: %w", err)
	}
	if _, err := io.Copy(entry, src); err != nil {
		return fmt.Errorf("failed to write archive entry: %w", err)
	}
	return nil
}
