package domain

import (
	"errors"

	"github.com/cuongbtq/application-tracker/internal/job"
)

// Status labels a job may carry. The API rejects anything else.
var JobStatuses = job.StatusLabels

var (
	ErrJobNotFound = errors.New("job not found")
)

// IsValidStatus reports whether status is a known label.
func IsValidStatus(status string) bool {
	for _, s := range JobStatuses {
		if s == status {
			return true
		}
	}
	return false
}
