package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"mangatint/api/cache"
	"mangatint/api/dto"
	"mangatint/api/kafka"
	"mangatint/worker/batch"
	"mangatint/worker/pipeline"
	"mangatint/worker/resolver"
	"mangatint/worker/store"
)

// BatchService owns the batch job lifecycle. In-process mode runs jobs on
// the server's own runner; queue mode only persists them and hands the job
// ID to workers over kafka. The status cache is optional.
type BatchService struct {
	store    store.Store
	runner   *pipeline.Runner
	producer kafka.Producer
	topic    string
	cache    *cache.StatusCache
}

func NewBatchService(st store.Store, runner *pipeline.Runner, statusCache *cache.StatusCache) *BatchService {
	return &BatchService{store: st, runner: runner, cache: statusCache}
}

func NewQueueBatchService(st store.Store, producer kafka.Producer, topic string, statusCache *cache.StatusCache) *BatchService {
	return &BatchService{store: st, producer: producer, topic: topic, cache: statusCache}
}

func (s *BatchService) Submit(ctx context.Context, traceID string, req *dto.SubmitBatchRequest) (*dto.JobResponse, error) {
	if len(req.Items) == 0 {
		return nil, dto.ErrNoItems
	}

	items := make([]batch.Item, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Path == "" {
			return nil, fmt.Errorf("%w: missing path", dto.ErrInvalidItem)
		}
		kind := batch.ItemKind(it.Kind)
		switch kind {
		case "":
			detected, err := resolver.DetectKind(it.Path)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", dto.ErrInvalidItem, err)
			}
			kind = detected
		case batch.ItemFile, batch.ItemFolder, batch.ItemArchive:
		default:
			return nil, fmt.Errorf("%w: unknown kind %q", dto.ErrInvalidItem, it.Kind)
		}
		items = append(items, batch.Item{
			Kind:       kind,
			Path:       it.Path,
			Collection: it.Collection,
			Chapter:    it.Chapter,
		})
	}

	job := batch.NewJob(items, applySettings(req.Settings))
	job.TraceID = traceID

	// An upfront estimate lets clients size progress bars before the job
	// starts; the runner recounts after resolving.
	if total, err := resolver.CountPages(items); err == nil {
		job.Total = total
	}

	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}

	resp := toJobResponse(job)
	if s.cache != nil {
		s.cache.Set(ctx, resp)
	}
	return resp, nil
}

// Start transitions the job to processing. The snapshot in the response is
// taken right after the claim, before any page work.
func (s *BatchService) Start(ctx context.Context, traceID, id string) (*dto.JobResponse, error) {
	if s.producer != nil {
		if err := s.queueStart(ctx, traceID, id); err != nil {
			return nil, err
		}
	} else {
		// Detach from the request context so the job survives the response.
		if err := s.runner.Start(context.WithoutCancel(ctx), id); err != nil {
			return nil, translateRunError(err)
		}
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	return s.Get(ctx, id)
}

func (s *BatchService) queueStart(ctx context.Context, traceID, id string) error {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return translateStoreError(err)
	}
	if job.Status.Terminal() {
		return dto.ErrJobFinished
	}
	if job.Status == batch.StatusProcessing {
		return dto.ErrAlreadyRunning
	}

	return s.producer.SendJobMessage(ctx, s.topic, &kafka.JobMessage{
		JobID:   id,
		TraceID: traceID,
	})
}

func (s *BatchService) Get(ctx context.Context, id string) (*dto.JobResponse, error) {
	if s.cache != nil {
		if resp, err := s.cache.Get(ctx, id); err == nil {
			return resp, nil
		}
	}

	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translateStoreError(err)
	}

	resp := toJobResponse(job)
	if s.cache != nil {
		s.cache.Set(ctx, resp)
	}
	return resp, nil
}

func (s *BatchService) List(ctx context.Context) (*dto.JobListResponse, error) {
	jobs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	resp := &dto.JobListResponse{
		Batches: make([]*dto.JobResponse, 0, len(jobs)),
		Total:   len(jobs),
	}
	for _, job := range jobs {
		resp.Batches = append(resp.Batches, toJobResponse(job))
	}
	return resp, nil
}

func (s *BatchService) Results(ctx context.Context, id string) (*dto.ResultsResponse, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translateStoreError(err)
	}

	resp := &dto.ResultsResponse{
		ID:         job.ID,
		Status:     string(job.Status),
		Results:    make([]dto.PageResultResponse, 0, len(job.Results)),
		Successful: job.Succeeded(),
		Failed:     job.Failed(),
		Errors:     job.Errors,
	}
	for _, r := range job.Results {
		resp.Results = append(resp.Results, dto.PageResultResponse{
			Success: r.Success,
			Input:   r.Input,
			Output:  r.Output,
			Error:   r.Err,
		})
	}
	return resp, nil
}

func (s *BatchService) Cancel(ctx context.Context, id string) (*dto.JobResponse, error) {
	var err error
	if s.runner != nil {
		err = s.runner.Cancel(ctx, id)
	} else {
		// Queue mode has no local runner; the flag is persisted and the
		// worker holding the run stops at the next page boundary.
		_, err = pipeline.RequestCancel(ctx, s.store, id)
	}
	if err != nil {
		return nil, translateRunError(err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	return s.Get(ctx, id)
}

func (s *BatchService) Delete(ctx context.Context, id string) error {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return translateStoreError(err)
	}
	if job.Status == batch.StatusProcessing {
		return dto.ErrJobRunning
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return translateStoreError(err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	return nil
}

func applySettings(overrides *dto.BatchSettings) batch.Settings {
	settings := batch.DefaultSettings()
	if overrides == nil {
		return settings
	}
	if overrides.InkThreshold > 0 {
		settings.InkThreshold = overrides.InkThreshold
	}
	if overrides.MaxSide > 0 {
		settings.MaxSide = overrides.MaxSide
	}
	if overrides.OutputFormat != "" {
		settings.OutputFormat = batch.OutputFormat(overrides.OutputFormat)
	}
	if overrides.MaskStrategy != "" {
		settings.MaskStrategy = overrides.MaskStrategy
	}
	if overrides.PaletteHints != nil {
		settings.PaletteHints = *overrides.PaletteHints
	}
	if overrides.PaletteMethod != "" {
		settings.PaletteMethod = overrides.PaletteMethod
	}
	return settings
}

func translateStoreError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return dto.ErrJobNotFound
	}
	return err
}

func translateRunError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return dto.ErrJobNotFound
	case errors.Is(err, pipeline.ErrAlreadyRunning):
		return dto.ErrAlreadyRunning
	case errors.Is(err, pipeline.ErrJobFinished):
		return dto.ErrJobFinished
	default:
		return err
	}
}

func toJobResponse(job *batch.Job) *dto.JobResponse {
	resp := &dto.JobResponse{
		ID:          job.ID,
		TraceID:     job.TraceID,
		Status:      string(job.Status),
		Current:     job.Current,
		Total:       job.Total,
		Progress:    job.Progress(),
		Message:     job.Message,
		ETASeconds:  job.ETASeconds,
		OutputDir:   job.OutputDir,
		ArchivePath: job.ArchivePath,
		Errors:      job.Errors,
		CreatedAt:   job.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if job.StartedAt != nil {
		formatted := job.StartedAt.Format("2006-01-02T15:04:05Z")
		resp.StartedAt = &formatted
	}
	if job.CompletedAt != nil {
		formatted := job.CompletedAt.Format("2006-01-02T15:04:05Z")
		resp.CompletedAt = &formatted
	}
	return resp
}
