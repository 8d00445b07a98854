package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/application-tracker/internal/api/images"
	"github.com/cuongbtq/application-tracker/internal/api/model"
	"github.com/cuongbtq/application-tracker/internal/api/storage"
	"github.com/cuongbtq/application-tracker/internal/events"
)

// JobStore is the persistence used by the job handlers
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job, status model.JobStatus) error
	SetJobImage(ctx context.Context, userID, jobID, filename, url string) error
	GetJobByID(ctx context.Context, userID, jobID string) (*model.JobRecord, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.JobRecord, error)
	UpdateJob(ctx context.Context, userID, jobID string, upd model.JobUpdate, at time.Time) error
	DeleteJob(ctx context.Context, userID, jobID string) error
}

// ImageStore keeps job screenshots
type ImageStore interface {
	Save(ctx context.Context, name string, img images.Decoded) (filename, url string, err error)
	Path(filename string) (string, error)
	Delete(ctx context.Context, filename string) error
}

// EventPublisher announces job changes
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// HealthChecker is implemented by backing services
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Store       JobStore
	Images      ImageStore
	Events      EventPublisher
	Health      map[string]HealthChecker
	ServiceName string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger  *slog.Logger
	storage JobStore
	images  ImageStore
	events  EventPublisher
	now     func() time.Time
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	registerValidators()

	return &JobHandler{
		logger:  deps.Logger,
		storage: deps.Store,
		images:  deps.Images,
		events:  deps.Events,
		now:     func() time.Time { return time.Now().UTC() },
	}
}
