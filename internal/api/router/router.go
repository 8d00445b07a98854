package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/application-tracker/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, tokens TokenValidator) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := gin.H{}
		for name, checker := range deps.Health {
			if err := checker.HealthCheck(ctx); err != nil {
				status = http.StatusServiceUnavailable
				checks[name] = err.Error()
				continue
			}
			checks[name] = "ok"
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "unhealthy"
		}
		c.JSON(status, gin.H{
			"status":  state,
			"service": deps.ServiceName,
			"checks":  checks,
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	r.GET("/images/:filename", jobHandler.GetImage)

	jobs := r.Group("/jobs", AuthMiddleware(tokens))
	{
		// POST /jobs - Create a job, streamed back as frames
		jobs.POST("", jobHandler.CreateJob)

		// GET /jobs - List jobs with pagination
		jobs.GET("", jobHandler.ListJobs)

		// GET /jobs/:job_id - Get job details
		jobs.GET("/:job_id", jobHandler.GetJob)

		// PATCH /jobs/:job_id - Update a job
		jobs.PATCH("/:job_id", jobHandler.UpdateJob)

		// DELETE /jobs/:job_id - Delete a job
		jobs.DELETE("/:job_id", jobHandler.DeleteJob)
	}

	return r
}
