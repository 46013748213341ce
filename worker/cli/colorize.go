package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mangatint/worker/batch"
	"mangatint/worker/colortrack"
	"mangatint/worker/config"
	"mangatint/worker/engine"
	"mangatint/worker/mask"
	"mangatint/worker/pipeline"
	"mangatint/worker/resolver"
	"mangatint/worker/store"
	"mangatint/worker/tui"
)

const engineReadyTimeout = 30 * time.Second

var (
	colorizeOutput        string
	colorizeEngineURL     string
	colorizeInkThreshold  int
	colorizeMaxSide       int
	colorizeFormat        string
	colorizeMaskStrategy  string
	colorizeCollection    string
	colorizeChapter       string
	colorizeNoHints       bool
	colorizePaletteMethod string
)

var colorizeCmd = &cobra.Command{
	Use:   "colorize <path>...",
	Short: "Colorize pages, folders, or cbz archives",
	Long:  "Colorize one or more inputs in a single batch. Inputs may be image files, folders of pages, or cbz/zip archives; archives are repacked after colorization.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runColorize,
}

func init() {
	colorizeCmd.Flags().StringVarP(&colorizeOutput, "output", "o", "", "output directory for batch results")
	colorizeCmd.Flags().StringVar(&colorizeEngineURL, "engine-url", "", "colorization engine base URL")
	colorizeCmd.Flags().IntVar(&colorizeInkThreshold, "ink-threshold", 0, "luma below which original pixels are kept (1-255)")
	colorizeCmd.Flags().IntVar(&colorizeMaxSide, "max-side", 0, "downscale pages whose longest side exceeds this")
	colorizeCmd.Flags().StringVar(&colorizeFormat, "format", string(batch.FormatAuto), "output format: folder, archive, or auto")
	colorizeCmd.Flags().StringVar(&colorizeMaskStrategy, "mask-strategy", "", "text protection strategy: border-flood or ink-proximity")
	colorizeCmd.Flags().StringVar(&colorizeCollection, "collection", "", "library collection to file results under")
	colorizeCmd.Flags().StringVar(&colorizeChapter, "chapter", "", "library chapter to file results under")
	colorizeCmd.Flags().BoolVar(&colorizeNoHints, "no-palette-hints", false, "disable palette consistency hints between pages")
	colorizeCmd.Flags().StringVar(&colorizePaletteMethod, "palette-method", "", "palette sampling method: percentile or kmeans")
	rootCmd.AddCommand(colorizeCmd)
}

func runColorize(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	engineURL := cfg.EngineURL
	if colorizeEngineURL != "" {
		engineURL = colorizeEngineURL
	}
	outputRoot := cfg.OutputRoot
	if colorizeOutput != "" {
		outputRoot = colorizeOutput
	}

	settings, err := buildSettings(cfg)
	if err != nil {
		return err
	}

	if (colorizeCollection == "") != (colorizeChapter == "") {
		return fmt.Errorf("--collection and --chapter must be set together")
	}

	items := make([]batch.Item, 0, len(args))
	for _, path := range args {
		kind, err := resolver.DetectKind(path)
		if err != nil {
			return err
		}
		items = append(items, batch.Item{
			Kind:       kind,
			Path:       path,
			Collection: colorizeCollection,
			Chapter:    colorizeChapter,
		})
	}

	// The TUI owns the terminal, so the pipeline logs nowhere.
	logger := zap.NewNop()

	ctx := context.Background()
	st := store.NewMemoryStore()
	eng := engine.NewHTTPEngine(engineURL, logger)
	writer := pipeline.NewWriter(outputRoot, cfg.LibraryRoot, logger)
	runner := pipeline.NewRunner(st, eng, writer, logger)

	updates := make(chan tui.ProgressUpdate, 64)
	runner.AddObserver(tui.NewChannelObserver(updates))

	job := batch.NewJob(items, settings)
	if err := st.Create(ctx, job); err != nil {
		return err
	}

	readyCtx, cancelReady := context.WithTimeout(ctx, engineReadyTimeout)
	defer cancelReady()
	if err := eng.EnsureReady(readyCtx); err != nil {
		return fmt.Errorf("colorization engine unavailable at %s: %w", engineURL, err)
	}

	model := tui.NewModel(updates, func() {
		_ = runner.Cancel(context.Background(), job.ID)
	})
	program := tea.NewProgram(model)

	uiDone := make(chan struct{})
	go func() {
		_, _ = program.Run()
		close(uiDone)
	}()

	runErr := runner.Run(ctx, job.ID)
	close(updates)
	<-uiDone
	if runErr != nil {
		return runErr
	}

	final, err := st.Get(ctx, job.ID)
	if err != nil {
		return err
	}
	printSummary(final, cfg.LibraryRoot)

	if final.Status == batch.StatusFailed {
		return fmt.Errorf("%s", final.Message)
	}
	return nil
}

func buildSettings(cfg *config.Config) (batch.Settings, error) {
	settings := batch.DefaultSettings()
	settings.InkThreshold = cfg.InkThreshold
	settings.MaxSide = cfg.MaxSide
	settings.MaskStrategy = cfg.MaskStrategy

	if colorizeInkThreshold > 0 {
		settings.InkThreshold = colorizeInkThreshold
	}
	if colorizeMaxSide > 0 {
		settings.MaxSide = colorizeMaxSide
	}
	if colorizeMaskStrategy != "" {
		settings.MaskStrategy = colorizeMaskStrategy
	}
	settings.PaletteHints = !colorizeNoHints
	settings.PaletteMethod = colorizePaletteMethod

	format := batch.OutputFormat(colorizeFormat)
	switch format {
	case batch.FormatFolder, batch.FormatArchive, batch.FormatAuto:
		settings.OutputFormat = format
	default:
		return settings, fmt.Errorf("invalid --format %q: want folder, archive, or auto", colorizeFormat)
	}

	switch mask.Strategy(settings.MaskStrategy) {
	case mask.StrategyBorderFlood, mask.StrategyInkProximity:
	default:
		return settings, fmt.Errorf("invalid --mask-strategy %q: want %s or %s", settings.MaskStrategy, mask.StrategyBorderFlood, mask.StrategyInkProximity)
	}

	switch colortrack.Method(settings.PaletteMethod) {
	case "", colortrack.MethodPercentile, colortrack.MethodKMeans:
	default:
		return settings, fmt.Errorf("invalid --palette-method %q: want %s or %s", settings.PaletteMethod, colortrack.MethodPercentile, colortrack.MethodKMeans)
	}

	return settings, nil
}

func printSummary(job *batch.Job, libraryRoot string) {
	rows := []tui.SummaryRow{
		{Label: "Status", Value: string(job.Status)},
		{Label: "Pages", Value: fmt.Sprintf("%d/%d colorized", job.Succeeded(), job.Total)},
	}
	if failed := job.Failed(); failed > 0 {
		rows = append(rows, tui.SummaryRow{Label: "Failed", Value: fmt.Sprintf("%d", failed)})
	}
	if job.OutputDir != "" {
		rows = append(rows, tui.SummaryRow{Label: "Output", Value: job.OutputDir})
	}
	if job.ArchivePath != "" {
		rows = append(rows, tui.SummaryRow{Label: "Archive", Value: job.ArchivePath})
	}
	if colorizeCollection != "" {
		rows = append(rows, tui.SummaryRow{Label: "Library", Value: filepath.Join(libraryRoot, colorizeCollection, "colored", colorizeChapter)})
	}
	fmt.Fprintln(os.Stdout, tui.RenderSummary(rows))

	for _, e := range job.Errors {
		fmt.Fprintln(os.Stderr, "error:", e)
	}
}
