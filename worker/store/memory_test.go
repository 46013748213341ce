package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"mangatint/worker/batch"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job := batch.NewJob([]batch.Item{{Kind: batch.ItemFile, Path: "/pages/page1.png"}}, batch.DefaultSettings())
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := s.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != job.ID {
		t.Errorf("Expected ID %s, got %s", job.ID, got.ID)
	}
	if got.Status != batch.StatusCreated {
		t.Errorf("Expected status created, got %s", got.Status)
	}
}

func TestMemoryStore_CreateDuplicate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job := batch.NewJob(nil, batch.DefaultSettings())
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(ctx, job); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_GetReturnsSnapshot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job := batch.NewJob(nil, batch.DefaultSettings())
	job.Errors = []string{"page2.png: decode failed"}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := s.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got.Status = batch.StatusFailed
	got.Errors[0] = "mutated"

	again, err := s.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if again.Status != batch.StatusCreated {
		t.Error("Mutating a snapshot changed the stored status")
	}
	if again.Errors[0] != "page2.png: decode failed" {
		t.Error("Mutating a snapshot changed the stored errors")
	}
}

func TestMemoryStore_Update(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job := batch.NewJob(nil, batch.DefaultSettings())
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	err := s.Update(ctx, job.ID, func(j *batch.Job) error {
		j.Status = batch.StatusProcessing
		j.Current = 2
		j.Total = 5
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := s.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != batch.StatusProcessing {
		t.Errorf("Expected status processing, got %s", got.Status)
	}
	if got.Current != 2 || got.Total != 5 {
		t.Errorf("Expected progress 2/5, got %d/%d", got.Current, got.Total)
	}
}

func TestMemoryStore_UpdateErrorDiscardsChanges(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job := batch.NewJob(nil, batch.DefaultSettings())
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	wantErr := errors.New("refused")
	err := s.Update(ctx, job.ID, func(j *batch.Job) error {
		j.Status = batch.StatusFailed
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Expected mutation error, got %v", err)
	}

	got, err := s.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != batch.StatusCreated {
		t.Errorf("Failed update leaked changes, status %s", got.Status)
	}
}

func TestMemoryStore_UpdateNotFound(t *testing.T) {
	s := NewMemoryStore()

	err := s.Update(context.Background(), "missing", func(j *batch.Job) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job := batch.NewJob(nil, batch.DefaultSettings())
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Delete(ctx, job.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, job.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, job.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on double delete, got %v", err)
	}
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	older := batch.NewJob(nil, batch.DefaultSettings())
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := batch.NewJob(nil, batch.DefaultSettings())

	if err := s.Create(ctx, older); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(ctx, newer); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	jobs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != newer.ID {
		t.Errorf("Expected newest job first, got %s", jobs[0].ID)
	}
}
