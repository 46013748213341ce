package store

import (
	"context"
	"errors"

	"mangatint/worker/batch"
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrAlreadyExists = errors.New("job already exists")
)

// Store persists job records. Get and List return snapshots; Update applies
// the mutation atomically against the current record so concurrent writers
// (a runner reporting progress, an API handler requesting cancel) cannot
// clobber each other.
type Store interface {
	Create(ctx context.Context, job *batch.Job) error
	Get(ctx context.Context, id string) (*batch.Job, error)
	Update(ctx context.Context, id string, fn func(*batch.Job) error) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*batch.Job, error)
}
