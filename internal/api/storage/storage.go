package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/application-tracker/internal/api/domain"
	"github.com/cuongbtq/application-tracker/internal/api/model"
	"github.com/cuongbtq/application-tracker/shared/postgresql"
)

// Schema creates the tables used by the API. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id         TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	position       TEXT NOT NULL,
	company        TEXT NOT NULL,
	url            TEXT NOT NULL,
	notes          TEXT NOT NULL DEFAULT '',
	image_filename TEXT NOT NULL DEFAULT '',
	image_url      TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS jobs_user_created_idx ON jobs (user_id, created_at DESC, job_id DESC);

CREATE TABLE IF NOT EXISTS job_statuses (
	id         BIGSERIAL PRIMARY KEY,
	job_id     TEXT NOT NULL REFERENCES jobs (job_id) ON DELETE CASCADE,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS job_statuses_job_idx ON job_statuses (job_id, created_at);
`

const jobColumns = `
	job_id, user_id, position, company, url,
	notes, image_filename, image_url, created_at, updated_at
`

type Storage struct {
	pg *postgresql.Client
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		pg: pg,
		db: pg.GetDB(),
	}
}

// Migrate applies Schema.
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// CreateJob inserts the job and its first status in one transaction.
func (s *Storage) CreateJob(ctx context.Context, job *model.Job, status model.JobStatus) error {
	return s.pg.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO jobs (` + jobColumns + `) VALUES (
				:job_id, :user_id, :position, :company, :url,
				:notes, :image_filename, :image_url, :created_at, :updated_at
			)
		`
		if _, err := tx.NamedExecContext(ctx, query, job); err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}

		if err := insertStatus(ctx, tx, status); err != nil {
			return err
		}
		return nil
	})
}

func insertStatus(ctx context.Context, tx *sqlx.Tx, status model.JobStatus) error {
	query := `INSERT INTO job_statuses (job_id, status, created_at) VALUES (:job_id, :status, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, status); err != nil {
		return fmt.Errorf("failed to create job status: %w", err)
	}
	return nil
}

// SetJobImage records the stored screenshot of a job.
func (s *Storage) SetJobImage(ctx context.Context, userID, jobID, filename, url string) error {
	query := `UPDATE jobs SET image_filename = $1, image_url = $2 WHERE job_id = $3 AND user_id = $4`

	res, err := s.db.ExecContext(ctx, query, filename, url, jobID, userID)
	if err != nil {
		return fmt.Errorf("failed to set job image: %w", err)
	}
	return expectRow(res)
}

func (s *Storage) GetJobByID(ctx context.Context, userID, jobID string) (*model.JobRecord, error) {
	var job model.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1 AND user_id = $2`

	err := s.db.GetContext(ctx, &job, query, jobID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	records, err := s.attachStatuses(ctx, []model.Job{job})
	if err != nil {
		return nil, err
	}
	return &records[0], nil
}

type JobFilter struct {
	UserID   string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 jobs, newest first. The extra row tells
// the caller whether another page exists.
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs j WHERE user_id = $1`
	args := []interface{}{filter.UserID}
	argIdx := 2

	if filter.Status != "" {
		// Filter on the most recent status only.
		query += fmt.Sprintf(` AND (
			SELECT st.status FROM job_statuses st
			WHERE st.job_id = j.job_id
			ORDER BY st.created_at DESC, st.id DESC
			LIMIT 1
		) = $%d`, argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []model.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return s.attachStatuses(ctx, jobs)
}

// attachStatuses loads the status history of every job with one query.
func (s *Storage) attachStatuses(ctx context.Context, jobs []model.Job) ([]model.JobRecord, error) {
	records := make([]model.JobRecord, len(jobs))
	if len(jobs) == 0 {
		return records, nil
	}

	ids := make([]string, len(jobs))
	index := make(map[string]int, len(jobs))
	for i, j := range jobs {
		ids[i] = j.JobID
		index[j.JobID] = i
		records[i].Job = j
	}

	query, args, err := sqlx.In(
		`SELECT job_id, status, created_at FROM job_statuses WHERE job_id IN (?) ORDER BY created_at ASC, id ASC`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build status query: %w", err)
	}

	var statuses []model.JobStatus
	if err := s.db.SelectContext(ctx, &statuses, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load job statuses: %w", err)
	}

	for _, st := range statuses {
		i := index[st.JobID]
		records[i].Statuses = append(records[i].Statuses, st)
	}
	return records, nil
}

// UpdateJob applies upd and appends a status entry when the status changes.
func (s *Storage) UpdateJob(ctx context.Context, userID, jobID string, upd model.JobUpdate, at time.Time) error {
	return s.pg.WithTx(ctx, func(tx *sqlx.Tx) error {
		var current string
		err := tx.GetContext(ctx, &current, `
			SELECT COALESCE((
				SELECT st.status FROM job_statuses st
				WHERE st.job_id = j.job_id
				ORDER BY st.created_at DESC, st.id DESC
				LIMIT 1
			), '')
			FROM jobs j
			WHERE j.job_id = $1 AND j.user_id = $2
			FOR UPDATE
		`, jobID, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrJobNotFound
			}
			return fmt.Errorf("failed to lock job: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE jobs
			SET position = $1, company = $2, url = $3, notes = $4, updated_at = $5
			WHERE job_id = $6 AND user_id = $7
		`, upd.Position, upd.Company, upd.URL, upd.Notes, at, jobID, userID)
		if err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}

		if upd.Status != "" && upd.Status != current {
			return insertStatus(ctx, tx, model.JobStatus{JobID: jobID, Status: upd.Status, CreatedAt: at})
		}
		return nil
	})
}

// DeleteJob removes the job; its statuses go with it.
func (s *Storage) DeleteJob(ctx context.Context, userID, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = $1 AND user_id = $2`, jobID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}
