package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	// Pages may arrive as webp, which image.Decode only handles once the
	// decoder is registered.
	_ "golang.org/x/image/webp"

	"mangatint/worker/batch"
	"mangatint/worker/colortrack"
	"mangatint/worker/compositor"
	"mangatint/worker/engine"
	"mangatint/worker/mask"
	"mangatint/worker/resolver"
	"mangatint/worker/store"
)

var (
	ErrAlreadyRunning = errors.New("job is already running")
	ErrJobFinished    = errors.New("job already finished")
)

type run struct {
	cancel atomic.Bool
}

// Runner drives batch jobs through the colorization pipeline: resolve
// inputs, colorize page by page, persist progress after every page, and
// settle the job in a terminal state.
type Runner struct {
	store    store.Store
	engine   engine.Engine
	writer   *Writer
	resolver *resolver.Resolver
	logger   *zap.Logger

	observers MultiObserver

	mu      sync.Mutex
	running map[string]*run
}

func NewRunner(st store.Store, eng engine.Engine, writer *Writer, logger *zap.Logger) *Runner {
	return &Runner{
		store:    st,
		engine:   eng,
		writer:   writer,
		resolver: resolver.New(logger),
		logger:   logger,
		running:  make(map[string]*run),
	}
}

// AddObserver registers an observer. Wire observers before any job runs.
func (r *Runner) AddObserver(o Observer) {
	r.observers = append(r.observers, o)
}

// Start claims the job and processes it on a new goroutine. The context
// must outlive the job, so pass a process-lifetime context rather than a
// request-scoped one.
func (r *Runner) Start(ctx context.Context, jobID string) error {
	rn, err := r.claim(ctx, jobID)
	if err != nil {
		return err
	}
	go r.process(ctx, rn, jobID)
	return nil
}

// Run claims the job and processes it to completion on the calling
// goroutine. The returned error covers claiming only; per-page failures
// land in the job record.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	rn, err := r.claim(ctx, jobID)
	if err != nil {
		return err
	}
	r.process(ctx, rn, jobID)
	return nil
}

// RequestCancel marks a job for cancellation in the store. Jobs that never
// started flip straight to cancelled; the returned flag reports that case.
// Running jobs keep their status and stop at the next page boundary once
// the holder of the run notices the flag.
func RequestCancel(ctx context.Context, st store.Store, jobID string) (immediate bool, err error) {
	err = st.Update(ctx, jobID, func(job *batch.Job) error {
		if job.Status.Terminal() {
			return ErrJobFinished
		}
		job.CancelRequested = true
		if job.Status == batch.StatusCreated {
			now := time.Now().UTC()
			job.Status = batch.StatusCancelled
			job.Message = "Cancelled before processing started"
			job.CompletedAt = &now
			immediate = true
		}
		return nil
	})
	return immediate, err
}

// Cancel requests cancellation. Jobs that never started flip straight to
// cancelled; running jobs stop at the next page boundary. The request is
// persisted, so a run held by another worker process sees it too.
func (r *Runner) Cancel(ctx context.Context, jobID string) error {
	immediate, err := RequestCancel(ctx, r.store, jobID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if rn, ok := r.running[jobID]; ok {
		rn.cancel.Store(true)
	}
	r.mu.Unlock()

	if immediate {
		r.observers.OnStateChange(jobID, batch.StatusCancelled, "Cancelled before processing started")
	}
	r.logger.Info("Cancellation requested", zap.String("job_id", jobID))
	return nil
}

func (r *Runner) claim(ctx context.Context, jobID string) (*run, error) {
	r.mu.Lock()
	if _, ok := r.running[jobID]; ok {
		r.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	rn := &run{}
	r.running[jobID] = rn
	r.mu.Unlock()

	err := r.store.Update(ctx, jobID, func(job *batch.Job) error {
		if job.Status.Terminal() {
			return ErrJobFinished
		}
		if job.Status == batch.StatusProcessing {
			return ErrAlreadyRunning
		}
		now := time.Now().UTC()
		job.Status = batch.StatusProcessing
		job.StartedAt = &now
		job.Message = "Resolving input pages"
		return nil
	})
	if err != nil {
		r.release(jobID)
		return nil, err
	}

	r.observers.OnStateChange(jobID, batch.StatusProcessing, "Resolving input pages")
	return rn, nil
}

func (r *Runner) release(jobID string) {
	r.mu.Lock()
	delete(r.running, jobID)
	r.mu.Unlock()
}

func (r *Runner) process(ctx context.Context, rn *run, jobID string) {
	defer r.release(jobID)

	job, err := r.store.Get(ctx, jobID)
	if err != nil {
		r.logger.Error("Failed to load job", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	res, err := r.resolver.Resolve(job.Items)
	if err != nil {
		r.failJob(ctx, jobID, fmt.Sprintf("Failed to resolve inputs: %v", err))
		return
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			r.logger.Warn("Failed to clean up extraction dirs", zap.String("job_id", jobID), zap.Error(err))
		}
	}()

	if len(res.Pages) == 0 {
		r.failJob(ctx, jobID, "No valid images found in input")
		return
	}

	total := len(res.Pages)
	if err := r.store.Update(ctx, jobID, func(j *batch.Job) error {
		j.Total = total
		j.Message = fmt.Sprintf("Colorizing %d pages", total)
		return nil
	}); err != nil {
		r.logger.Error("Failed to record page count", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	opts := mask.DefaultOptions(mask.Strategy(job.Settings.MaskStrategy))
	if s := mask.Strategy(job.Settings.MaskStrategy); s != "" {
		opts.Strategy = s
	}
	gen := mask.NewGenerator(opts, r.logger)
	tracker := colortrack.NewTracker(colortrack.Method(job.Settings.PaletteMethod), r.logger)

	start := time.Now()
	sawAdHoc := false
	for i, page := range res.Pages {
		if r.cancelRequested(ctx, rn, jobID) {
			r.cancelJob(ctx, jobID, fmt.Sprintf("Cancelled after %d/%d pages", i, total))
			return
		}

		output, err := r.processPage(ctx, job, page, gen, tracker)
		var result batch.PageResult
		if err != nil {
			r.logger.Warn("Page failed",
				zap.String("job_id", jobID),
				zap.String("page", page.Path),
				zap.Error(err))
			result = batch.FailureResult(page.Path, err)
		} else {
			result = batch.SuccessResult(page.Path, output)
			if !job.Items[page.Source].InLibrary() {
				sawAdHoc = true
			}
		}

		done := i + 1
		eta := time.Since(start).Seconds() / float64(done) * float64(total-done)

		if err := r.store.Update(ctx, jobID, func(j *batch.Job) error {
			j.Results = append(j.Results, result)
			if result.Err != "" {
				j.Errors = append(j.Errors, result.Err)
			}
			j.Current = done
			j.ETASeconds = eta
			j.Message = fmt.Sprintf("Colorizing page %d/%d", done, total)
			return nil
		}); err != nil {
			r.logger.Error("Failed to record progress", zap.String("job_id", jobID), zap.Error(err))
		}
		r.observers.OnProgress(jobID, done, total, page.Path, eta)
	}

	finished, err := r.store.Get(ctx, jobID)
	if err != nil {
		r.logger.Error("Failed to load job results", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	succeeded := finished.Succeeded()
	if succeeded == 0 {
		r.failJob(ctx, jobID, "No images were successfully colorized")
		return
	}

	var archivePath string
	var packErr error
	if ShouldPack(job.Settings.OutputFormat, res.HasArchive) {
		archivePath, packErr = r.writer.PackArchive(finished)
		if packErr != nil {
			r.logger.Warn("Failed to pack archive", zap.String("job_id", jobID), zap.Error(packErr))
		}
	}

	outputDir := ""
	if sawAdHoc {
		outputDir = r.writer.BatchDir(jobID)
	}

	message := fmt.Sprintf("Completed %d/%d images", succeeded, total)
	now := time.Now().UTC()
	if err := r.store.Update(ctx, jobID, func(j *batch.Job) error {
		j.Status = batch.StatusCompleted
		j.Message = message
		j.ETASeconds = 0
		j.OutputDir = outputDir
		j.ArchivePath = archivePath
		j.CompletedAt = &now
		if packErr != nil {
			j.Errors = append(j.Errors, fmt.Sprintf("archive packing failed: %v", packErr))
		}
		return nil
	}); err != nil {
		r.logger.Error("Failed to record completion", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	r.observers.OnStateChange(jobID, batch.StatusCompleted, message)
	r.logger.Info("Job completed",
		zap.String("job_id", jobID),
		zap.Int("succeeded", succeeded),
		zap.Int("total", total),
		zap.Duration("took", time.Since(start)))
}

func (r *Runner) processPage(ctx context.Context, job *batch.Job, page resolver.Page, gen *mask.Generator, tracker *colortrack.Tracker) (string, error) {
	src, err := imaging.Open(page.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}

	pre, meta := compositor.Preprocess(src, job.Settings.MaxSide)

	protect, coverage, err := gen.Generate(pre)
	if err != nil {
		return "", fmt.Errorf("failed to build protection mask: %w", err)
	}

	var guidance string
	if job.Settings.PaletteHints {
		guidance = tracker.Guidance()
	}

	colored, err := r.engine.Colorize(ctx, engine.Request{
		Image:    pre,
		Mask:     protect,
		Guidance: guidance,
		Params:   engine.DefaultParams(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to colorize page: %w", err)
	}

	restored := compositor.Postprocess(colored, meta)
	final := compositor.PreserveInk(src, restored, uint8(job.Settings.InkThreshold))

	if job.Settings.PaletteHints {
		tracker.Update(final)
	}

	dest := r.writer.PageDestination(job.ID, job.Items[page.Source], page.Path)
	if err := r.writer.SavePage(final, dest); err != nil {
		return "", err
	}

	r.logger.Debug("Page colorized",
		zap.String("page", page.Path),
		zap.String("output", dest),
		zap.Float64("mask_coverage", coverage))
	return dest, nil
}

func (r *Runner) cancelRequested(ctx context.Context, rn *run, jobID string) bool {
	if rn.cancel.Load() || ctx.Err() != nil {
		return true
	}
	job, err := r.store.Get(ctx, jobID)
	if err != nil {
		r.logger.Warn("Failed to check cancellation", zap.String("job_id", jobID), zap.Error(err))
		return false
	}
	return job.CancelRequested
}

func (r *Runner) cancelJob(ctx context.Context, jobID, message string) {
	r.finishJob(ctx, jobID, batch.StatusCancelled, message)
}

func (r *Runner) failJob(ctx context.Context, jobID, message string) {
	r.finishJob(ctx, jobID, batch.StatusFailed, message)
}

func (r *Runner) finishJob(ctx context.Context, jobID string, status batch.Status, message string) {
	// The final state write must survive the context that stopped the run.
	persistCtx := context.WithoutCancel(ctx)
	now := time.Now().UTC()
	err := r.store.Update(persistCtx, jobID, func(j *batch.Job) error {
		j.Status = status
		j.Message = message
		j.ETASeconds = 0
		j.CompletedAt = &now
		if status == batch.StatusFailed {
			j.Errors = append(j.Errors, message)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to record job state",
			zap.String("job_id", jobID),
			zap.String("status", string(status)),
			zap.Error(err))
		return
	}
	r.observers.OnStateChange(jobID, status, message)
}
