package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/idiolect/internal/storage"
	"github.com/kalambet/idiolect/internal/style"
)

// JobTypeRebuild replays logged user messages into a fresh style profile.
const JobTypeRebuild = "style_rebuild"

// rebuildAllConcurrency bounds parallel rebuilds for a job with no style key.
const rebuildAllConcurrency = 4

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Rebuilder replays message history into style profiles.
// Implemented by style.Manager.
type Rebuilder interface {
	RebuildFromHistory(ctx context.Context, key string) (style.Profile, error)
	RebuildAll(ctx context.Context, concurrency int) ([]string, error)
}

type rebuildPayload struct {
	StyleKey string `json:"style_key"`
}

// NewRebuildJob builds a style_rebuild job. An empty key rebuilds every
// known style.
func NewRebuildJob(key string) (storage.Job, error) {
	payload, err := json.Marshal(rebuildPayload{StyleKey: key})
	if err != nil {
		return storage.Job{}, fmt.Errorf("encoding rebuild payload: %w", err)
	}
	return storage.Job{
		ID:          uuid.New().String(),
		Type:        JobTypeRebuild,
		PayloadJSON: string(payload),
	}, nil
}

// Worker processes style_rebuild jobs from the SQLite job queue.
type Worker struct {
	store     JobStore
	rebuilder Rebuilder
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, rebuilder Rebuilder, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     store,
		rebuilder: rebuilder,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single style_rebuild job.
// Returns true if a job was processed, whether or not it succeeded.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeRebuild})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload rebuildPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	if payload.StyleKey == "" {
		keys, err := w.rebuilder.RebuildAll(ctx, rebuildAllConcurrency)
		if err != nil {
			return err
		}
		w.logger.Info("rebuilt all style profiles", "job_id", job.ID, "keys", len(keys))
		return nil
	}

	p, err := w.rebuilder.RebuildFromHistory(ctx, payload.StyleKey)
	if err != nil {
		return fmt.Errorf("rebuilding %q: %w", payload.StyleKey, err)
	}
	w.logger.Info("rebuilt style profile", "job_id", job.ID, "style_key", payload.StyleKey, "messages", p.TotalMessages)
	return nil
}
