package dto

import (
	"github.com/cuongbtq/application-tracker/internal/api/model"
	"github.com/cuongbtq/application-tracker/internal/job"
)

type CreateJobRequest struct {
	Position string `json:"position" binding:"required"`
	Company  string `json:"company" binding:"required"`
	URL      string `json:"url" binding:"required,url"`
	Status   string `json:"status" binding:"required,job_status"`
	Notes    string `json:"notes"`
	Image    string `json:"image"`
}

// UpdateJobRequest is the PATCH body. Omitted fields keep their value.
type UpdateJobRequest struct {
	Position *string `json:"position" binding:"omitempty,min=1"`
	Company  *string `json:"company" binding:"omitempty,min=1"`
	URL      *string `json:"url" binding:"omitempty,url"`
	Status   *string `json:"status" binding:"omitempty,job_status"`
	Notes    *string `json:"notes"`
}

type ListJobsRequest struct {
	Status   string `form:"status" binding:"omitempty,job_status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []job.WireJob `json:"jobs"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// ToWire renders a stored job in the wire shape clients decode.
func ToWire(r *model.JobRecord) job.WireJob {
	w := job.WireJob{
		ID:            r.JobID,
		Position:      r.Position,
		Company:       r.Company,
		URL:           r.URL,
		Notes:         r.Notes,
		ImageFilename: r.ImageFilename,
		ImageURL:      r.ImageURL,
		CreatedAt:     job.FormatTimestamp(r.CreatedAt),
		Statuses:      make([]job.WireStatus, 0, len(r.Statuses)),
	}
	if r.UpdatedAt.Valid {
		w.UpdatedAt = job.FormatTimestamp(r.UpdatedAt.Time)
	}
	for _, s := range r.Statuses {
		w.Statuses = append(w.Statuses, job.WireStatus{
			Status:    s.Status,
			CreatedAt: job.FormatTimestamp(s.CreatedAt),
		})
	}
	return w
}
