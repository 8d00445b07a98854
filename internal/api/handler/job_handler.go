package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/application-tracker/internal/api/domain"
	"github.com/cuongbtq/application-tracker/internal/api/dto"
	"github.com/cuongbtq/application-tracker/internal/api/images"
	"github.com/cuongbtq/application-tracker/internal/api/model"
	"github.com/cuongbtq/application-tracker/internal/api/storage"
	"github.com/cuongbtq/application-tracker/internal/events"
	"github.com/cuongbtq/application-tracker/internal/frame"
	"github.com/cuongbtq/application-tracker/internal/job"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "user_id"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func userID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// jobID reads and validates the :job_id path parameter. It writes a 400
// response and returns false when the id is not a UUID.
func (h *JobHandler) jobID(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return "", false
	}
	return jobID, true
}

// CreateJob handles POST /jobs
// Stores the job and streams it back as frames: the job itself, then the
// job with its image fields once a supplied image has been stored.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	var img *images.Decoded
	if req.Image != "" {
		decoded, err := images.Decode(req.Image)
		if err != nil {
			h.logger.Error("Invalid image", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid image",
			})
			return
		}
		img = &decoded
	}

	now := h.now()
	record := &model.JobRecord{
		Job: model.Job{
			JobID:     uuid.New().String(),
			UserID:    userID(c),
			Position:  req.Position,
			Company:   req.Company,
			URL:       req.URL,
			Notes:     req.Notes,
			CreatedAt: now,
		},
	}
	status := model.JobStatus{JobID: record.JobID, Status: req.Status, CreatedAt: now}
	record.Statuses = []model.JobStatus{status}

	ctx := c.Request.Context()
	if err := h.storage.CreateJob(ctx, &record.Job, status); err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	c.Header("Content-Type", "application/json")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Status(http.StatusCreated)

	fw := frame.NewWriter(c.Writer)
	if err := fw.WriteFrame(dto.ToWire(record)); err != nil {
		h.logger.Error("Failed to stream job", slog.String("job_id", record.JobID), slog.String("error", err.Error()))
		return
	}

	if img != nil {
		if err := h.attachImage(ctx, record, *img); err != nil {
			h.logger.Error("Failed to store job image",
				slog.String("job_id", record.JobID),
				slog.String("error", err.Error()),
			)
		} else if err := fw.WriteFrame(dto.ToWire(record)); err != nil {
			h.logger.Error("Failed to stream job image", slog.String("job_id", record.JobID), slog.String("error", err.Error()))
		}
	}

	h.logger.Info("Job created",
		slog.String("job_id", record.JobID),
		slog.String("user_id", record.UserID),
		slog.Int("frames", fw.Written()),
	)
	h.publish(ctx, events.TypeCreated, record.JobID, record.UserID)
}

func (h *JobHandler) attachImage(ctx context.Context, record *model.JobRecord, img images.Decoded) error {
	filename, url, err := h.images.Save(ctx, record.JobID, img)
	if err != nil {
		return err
	}
	if err := h.storage.SetJobImage(ctx, record.UserID, record.JobID, filename, url); err != nil {
		_ = h.images.Delete(ctx, filename)
		return err
	}
	record.ImageFilename = filename
	record.ImageURL = url
	return nil
}

// GetJob handles GET /jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	record, err := h.storage.GetJobByID(c.Request.Context(), userID(c), jobID)
	if err != nil {
		h.storageError(c, "Failed to get job", err)
		return
	}

	c.JSON(http.StatusOK, dto.ToWire(record))
}

// ListJobs handles GET /jobs
// Lists the caller's jobs newest first with keyset pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.JobFilter{
		UserID:   userID(c),
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	records, err := h.storage.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	// Prepare response with next cursor if more results exist
	hasMore := len(records) > req.PageSize
	if hasMore {
		records = records[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]job.WireJob, len(records))}
	for i := range records {
		resp.Jobs[i] = dto.ToWire(&records[i])
	}

	if hasMore {
		last := records[len(records)-1]
		resp.NextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateJob handles PATCH /jobs/:job_id
// Omitted fields keep their value; a changed status appends a history entry
func (h *JobHandler) UpdateJob(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	var req dto.UpdateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	ctx := c.Request.Context()
	uid := userID(c)

	existing, err := h.storage.GetJobByID(ctx, uid, jobID)
	if err != nil {
		h.storageError(c, "Failed to get job", err)
		return
	}

	upd := model.JobUpdate{
		Position: pick(req.Position, existing.Position),
		Company:  pick(req.Company, existing.Company),
		URL:      pick(req.URL, existing.URL),
		Notes:    pick(req.Notes, existing.Notes),
		Status:   pick(req.Status, existing.CurrentStatus()),
	}

	if err := h.storage.UpdateJob(ctx, uid, jobID, upd, h.now()); err != nil {
		h.storageError(c, "Failed to update job", err)
		return
	}

	updated, err := h.storage.GetJobByID(ctx, uid, jobID)
	if err != nil {
		h.storageError(c, "Failed to get job", err)
		return
	}

	c.JSON(http.StatusOK, dto.ToWire(updated))
	h.publish(ctx, events.TypeUpdated, jobID, uid)
}

func pick(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}

// DeleteJob handles DELETE /jobs/:job_id
// Permanently deletes a job and its stored image
func (h *JobHandler) DeleteJob(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	uid := userID(c)

	existing, err := h.storage.GetJobByID(ctx, uid, jobID)
	if err != nil {
		h.storageError(c, "Failed to get job", err)
		return
	}

	if err := h.storage.DeleteJob(ctx, uid, jobID); err != nil {
		h.storageError(c, "Failed to delete job", err)
		return
	}

	if existing.ImageFilename != "" {
		if err := h.images.Delete(ctx, existing.ImageFilename); err != nil {
			h.logger.Warn("Failed to delete job image",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}

	c.Status(http.StatusNoContent)
	h.publish(ctx, events.TypeDeleted, jobID, uid)
}

// GetImage handles GET /images/:filename
func (h *JobHandler) GetImage(c *gin.Context) {
	path, err := h.images.Path(c.Param("filename"))
	if err != nil {
		if errors.Is(err, images.ErrImageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
			return
		}
		h.logger.Error("Failed to open image", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open image"})
		return
	}
	c.File(path)
}

// storageError maps domain errors to responses and logs the rest.
func (h *JobHandler) storageError(c *gin.Context, msg string, err error) {
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}
	h.logger.Error(msg, slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": msg,
	})
}

// publish sends a change event. Failures are logged and never fail the request.
func (h *JobHandler) publish(ctx context.Context, t events.Type, jobID, userID string) {
	if h.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := h.events.Publish(ctx, events.New(t, jobID, userID)); err != nil {
		h.logger.Error("Failed to publish job event",
			slog.String("type", string(t)),
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}
