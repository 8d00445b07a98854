// Package ingest drives streamed job creation: it opens the creation
// stream, decodes and normalizes each frame, and writes the results into
// the shared cache.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cuongbtq/application-tracker/internal/cache"
	"github.com/cuongbtq/application-tracker/internal/frame"
	"github.com/cuongbtq/application-tracker/internal/job"
)

// StreamOpener issues the creation request and returns its streamed body.
type StreamOpener interface {
	CreateJobStream(ctx context.Context, payload job.CreatePayload, token string) (io.ReadCloser, error)
}

// Cache is the part of the cache store a run writes to.
type Cache interface {
	Write(key cache.Key, value any)
	Invalidate(pattern cache.Key) int
	Refetch(pattern cache.Key) int
}

// Config holds orchestrator configuration
type Config struct {
	Logger    *slog.Logger
	Opener    StreamOpener
	Cache     Cache
	Observer  Observer
	ChunkSize int
}

// Orchestrator runs creation streams. Runs are independent and may execute
// concurrently; they share only the cache.
type Orchestrator struct {
	logger    *slog.Logger
	opener    StreamOpener
	cache     Cache
	observer  Observer
	chunkSize int
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = frame.DefaultChunkSize
	}
	return &Orchestrator{
		logger:    cfg.Logger,
		opener:    cfg.Opener,
		cache:     cfg.Cache,
		observer:  cfg.Observer,
		chunkSize: cfg.ChunkSize,
	}
}

// run tracks the state of one SubmitCreate call.
type run struct {
	id     string
	state  State
	frames int
	logger *slog.Logger
	notify Observer
}

func (r *run) transition(to State, err error) {
	from := r.state
	r.state = to

	if to == StateFailed {
		r.logger.Error("Job creation failed",
			slog.String("from", from.String()),
			slog.Int("frames_applied", r.frames),
			slog.String("error", err.Error()),
		)
	} else {
		r.logger.Debug("Job creation state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	}

	if r.notify != nil {
		r.notify(Transition{RunID: r.id, From: from, To: to, Frame: r.frames, Err: err})
	}
}

func (r *run) fail(err error) error {
	r.transition(StateFailed, err)
	return err
}

// SubmitCreate sends a creation request and applies every streamed frame
// to the cache in order. For each frame it writes (createJob) and
// (getJobById,id), then marks (getJobs) stale and schedules its refetch.
//
// A decode or normalize failure stops the run. Frames applied before the
// failure stay applied; the failing frame writes nothing.
func (o *Orchestrator) SubmitCreate(ctx context.Context, payload job.CreatePayload, token string) error {
	r := &run{
		id:     uuid.NewString(),
		state:  StateIdle,
		notify: o.observer,
	}
	r.logger = o.logger.With(slog.String("run_id", r.id))

	r.transition(StateRequesting, nil)
	body, err := o.opener.CreateJobStream(ctx, payload, token)
	if err != nil {
		return r.fail(err)
	}
	defer body.Close()

	r.transition(StateStreaming, nil)
	dec := frame.NewDecoder(body, frame.WithChunkSize(o.chunkSize))

	for {
		if err := ctx.Err(); err != nil {
			return r.fail(err)
		}

		r.transition(StateDecoding, nil)
		f, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.fail(err)
		}

		r.transition(StateNormalizing, nil)
		res, err := job.Normalize(f)
		if err != nil {
			return r.fail(fmt.Errorf("frame %d: %w", r.frames, err))
		}

		r.transition(StateCacheWriting, nil)
		o.apply(res)
		r.frames++

		r.logger.Info("Job frame applied",
			slog.String("job_id", res.ID),
			slog.String("status", res.CurrentStatus),
			slog.Int("frame", r.frames),
		)
	}

	r.transition(StateCompleted, nil)
	return nil
}

func (o *Orchestrator) apply(res job.Resource) {
	o.cache.Write(cache.CreateJobKey(), res)
	o.cache.Write(cache.JobKey(res.ID), res)
	o.cache.Invalidate(cache.JobsKey())
	o.cache.Refetch(cache.JobsKey())
}
