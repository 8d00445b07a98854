// Package tracker is the query layer over the job cache. It serves the
// list, detail and last-created views and keeps them consistent after
// creates, updates, deletes and remote change events.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/cuongbtq/application-tracker/internal/cache"
	"github.com/cuongbtq/application-tracker/internal/client"
	"github.com/cuongbtq/application-tracker/internal/events"
	"github.com/cuongbtq/application-tracker/internal/job"
)

var (
	// ErrJobDeleted is returned when the cache records the job as deleted
	ErrJobDeleted = errors.New("job has been deleted")

	// ErrInvalidPayload is returned when a create or update payload fails validation
	ErrInvalidPayload = errors.New("invalid payload")
)

// API is the jobs API as seen by the query layer.
type API interface {
	GetJob(ctx context.Context, id, token string) (job.Resource, error)
	ListJobs(ctx context.Context, token string) ([]job.Resource, error)
	UpdateJob(ctx context.Context, payload job.UpdatePayload, token string) (job.Resource, error)
	DeleteJob(ctx context.Context, id, token string) error
}

// Creator runs a streamed creation.
type Creator interface {
	SubmitCreate(ctx context.Context, payload job.CreatePayload, token string) error
}

// Config holds service configuration
type Config struct {
	Logger  *slog.Logger
	API     API
	Store   *cache.Store
	Creator Creator
}

// Service answers job queries from the cache and applies mutations.
type Service struct {
	logger    *slog.Logger
	api       API
	store     *cache.Store
	creator   Creator
	validator *validator.Validate
}

// NewService creates the service and registers the list and detail
// fetchers on the store.
func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	s := &Service{
		logger:    cfg.Logger,
		api:       cfg.API,
		store:     cfg.Store,
		creator:   cfg.Creator,
		validator: validator.New(),
	}

	s.store.RegisterFetcher(cache.OpGetJobs, func(ctx context.Context, _ cache.Key) (any, error) {
		return s.api.ListJobs(ctx, "")
	})
	s.store.RegisterFetcher(cache.OpGetJobByID, func(ctx context.Context, key cache.Key) (any, error) {
		return s.api.GetJob(ctx, key.Param, "")
	})

	return s
}

// Jobs returns the job list, loading it when the cached copy is missing
// or stale. If loading fails but an older list is cached, that list is
// returned together with the error.
func (s *Service) Jobs(ctx context.Context) ([]job.Resource, error) {
	e, err := s.store.Fetch(ctx, cache.JobsKey())
	jobs, _ := e.Value.([]job.Resource)
	if err != nil {
		return jobs, fmt.Errorf("failed to load jobs: %w", err)
	}
	return jobs, nil
}

// Job returns one job. A job recorded as deleted yields ErrJobDeleted
// without contacting the API.
func (s *Service) Job(ctx context.Context, id string) (job.Resource, error) {
	key := cache.JobKey(id)

	e, err := s.store.Fetch(ctx, key)
	if err != nil {
		if client.IsNotFound(err) {
			s.store.WriteAbsent(key)
			return job.Resource{}, ErrJobDeleted
		}
		r, _ := e.Value.(job.Resource)
		return r, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	if e.Absent {
		return job.Resource{}, ErrJobDeleted
	}

	r, _ := e.Value.(job.Resource)
	return r, nil
}

// LastCreated returns the most recently created job in this process.
func (s *Service) LastCreated() (job.Resource, bool) {
	e, ok := s.store.Read(cache.CreateJobKey())
	if !ok || e.Absent {
		return job.Resource{}, false
	}
	r, ok := e.Value.(job.Resource)
	return r, ok
}

// CreateJob validates payload and runs the streamed creation.
func (s *Service) CreateJob(ctx context.Context, payload job.CreatePayload) error {
	if err := s.validator.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return s.creator.SubmitCreate(ctx, payload, "")
}

// UpdateJob sends the update, stores the returned job under its detail key
// and refreshes the list. The last-created pointer is left alone.
func (s *Service) UpdateJob(ctx context.Context, payload job.UpdatePayload) (job.Resource, error) {
	if err := s.validator.Struct(payload); err != nil {
		return job.Resource{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	r, err := s.api.UpdateJob(ctx, payload, "")
	if err != nil {
		return job.Resource{}, err
	}

	s.store.Write(cache.JobKey(r.ID), r)
	s.refreshList()

	s.logger.Info("Job updated",
		slog.String("job_id", r.ID),
		slog.String("status", r.CurrentStatus),
	)
	return r, nil
}

// DeleteJob deletes the job, records it as absent and refreshes the list.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	if err := s.api.DeleteJob(ctx, id, ""); err != nil {
		return err
	}

	s.store.WriteAbsent(cache.JobKey(id))
	s.refreshList()

	s.logger.Info("Job deleted", slog.String("job_id", id))
	return nil
}

// ApplyEvent brings the cache in line with a change made elsewhere.
func (s *Service) ApplyEvent(ctx context.Context, e events.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}

	key := cache.JobKey(e.JobID)
	switch e.Type {
	case events.TypeDeleted:
		s.store.WriteAbsent(key)
	default:
		s.store.Invalidate(key)
		s.store.Refetch(key)
	}
	s.refreshList()

	s.logger.Debug("Remote job event applied",
		slog.String("type", string(e.Type)),
		slog.String("job_id", e.JobID),
	)
	return nil
}

// Store exposes the underlying cache for views that subscribe to changes.
func (s *Service) Store() *cache.Store {
	return s.store
}

func (s *Service) refreshList() {
	s.store.Invalidate(cache.JobsKey())
	s.store.Refetch(cache.JobsKey())
}
