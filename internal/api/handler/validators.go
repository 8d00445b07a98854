package handler

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/cuongbtq/application-tracker/internal/api/domain"
)

var registerOnce sync.Once

// registerValidators adds the custom binding tags used by the DTOs.
func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("job_status", func(fl validator.FieldLevel) bool {
				return domain.IsValidStatus(fl.Field().String())
			})
		}
	})
}
