package model

import (
	"database/sql"
	"time"
)

// Job is a row of the jobs table.
type Job struct {
	JobID         string       `db:"job_id"`
	UserID        string       `db:"user_id"`
	Position      string       `db:"position"`
	Company       string       `db:"company"`
	URL           string       `db:"url"`
	Notes         string       `db:"notes"`
	ImageFilename string       `db:"image_filename"`
	ImageURL      string       `db:"image_url"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     sql.NullTime `db:"updated_at"`
}

// JobStatus is a row of the job_statuses table.
type JobStatus struct {
	JobID     string    `db:"job_id"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

// JobRecord is a job with its status history, oldest first.
type JobRecord struct {
	Job
	Statuses []JobStatus
}

// CurrentStatus returns the newest status label.
func (r *JobRecord) CurrentStatus() string {
	if len(r.Statuses) == 0 {
		return ""
	}
	return r.Statuses[len(r.Statuses)-1].Status
}

// JobUpdate holds the editable fields of a job.
type JobUpdate struct {
	Position string
	Company  string
	URL      string
	Notes    string
	Status   string
}
