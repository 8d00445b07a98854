// Package job holds the canonical job-application resource and the
// normalizer that builds it from wire frames.
package job

import (
	"time"
)

// Status labels accepted by the API service.
const (
	StatusApplied      = "applied"
	StatusInterviewing = "interviewing"
	StatusOffered      = "offered"
	StatusRejected     = "rejected"
	StatusAccepted     = "accepted"
	StatusWithdrawn    = "withdrawn"
)

// StatusLabels lists every known status label in pipeline order.
var StatusLabels = []string{
	StatusApplied,
	StatusInterviewing,
	StatusOffered,
	StatusRejected,
	StatusAccepted,
	StatusWithdrawn,
}

// displayLayout mirrors the "time - date" form shown in the job views.
const displayLayout = "15:04:05 - 2006-01-02"

// StatusEntry is one point in a job's status history.
type StatusEntry struct {
	Status    string
	CreatedAt time.Time
}

// Image references the screenshot attached to a job.
type Image struct {
	Filename string
	URL      string
}

// Resource is the normalized, in-memory representation of a tracked job.
type Resource struct {
	ID            string
	Position      string
	Company       string
	URL           string
	Notes         string
	Image         *Image
	CreatedAt     time.Time
	UpdatedAt     *time.Time
	StatusHistory []StatusEntry // ascending by CreatedAt
	CurrentStatus string
}

// Current returns the entry that CurrentStatus was derived from.
func (r Resource) Current() StatusEntry {
	if len(r.StatusHistory) == 0 {
		return StatusEntry{}
	}
	return r.StatusHistory[len(r.StatusHistory)-1]
}

// DisplayCreatedAt formats CreatedAt in local time for list views.
func (r Resource) DisplayCreatedAt() string {
	return r.CreatedAt.Local().Format(displayLayout)
}

// DisplayUpdatedAt formats UpdatedAt, or returns "" when the job was never updated.
func (r Resource) DisplayUpdatedAt() string {
	if r.UpdatedAt == nil {
		return ""
	}
	return r.UpdatedAt.Local().Format(displayLayout)
}

// CreatePayload is the body of a job creation request.
type CreatePayload struct {
	Position string `json:"position" validate:"required"`
	Company  string `json:"company" validate:"required"`
	URL      string `json:"url" validate:"required,url"`
	Status   string `json:"status" validate:"required"`
	Notes    string `json:"notes,omitempty"`
	Image    string `json:"image,omitempty"`
}

// UpdatePayload is the body of a job update request.
type UpdatePayload struct {
	ID       string `json:"id" validate:"required"`
	Position string `json:"position" validate:"required"`
	Company  string `json:"company" validate:"required"`
	URL      string `json:"url" validate:"required,url"`
	Status   string `json:"status" validate:"required"`
	Notes    string `json:"notes,omitempty"`
}
