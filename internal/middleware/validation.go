package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/ward-api/internal/handler"
	"github.com/jwalitptl/ward-api/internal/model"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationConfig struct {
	CustomValidators    map[string]validator.Func
	CustomErrorMessages map[string]string
}

func enumValidator[T ~string](valid func(T) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return valid(T(fl.Field().String()))
	}
}

func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		CustomValidators: map[string]validator.Func{
			"bedtype":        enumValidator(model.BedType.Valid),
			"bedstate":       enumValidator(model.BedState.Valid),
			"roomtype":       enumValidator(model.RoomType.Valid),
			"admissionkind":  enumValidator(model.AdmissionKind.Valid),
			"admissionstate": enumValidator(model.AdmissionState.Valid),
		},
		CustomErrorMessages: map[string]string{
			"required":       "Field is required",
			"min":            "Value is too small",
			"max":            "Value is too long",
			"oneof":          "Value is not allowed",
			"bedtype":        "Must be one of standard, icu, vip",
			"bedstate":       "Must be one of free, occupied, maintenance",
			"roomtype":       "Unknown room type",
			"admissionkind":  "Must be one of emergency, planned, observation",
			"admissionstate": "Must be one of draft, active, discharged, cancelled",
		},
	}
}

var registerOnce sync.Once

// RegisterValidators installs the custom tags on gin's validator. It runs
// once per process.
func RegisterValidators(config ValidationConfig) {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		for tag, fn := range config.CustomValidators {
			if err := v.RegisterValidation(tag, fn); err != nil {
				panic(err)
			}
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return fld.Name
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})
	})
}

// Validation turns binding failures into a 400 listing each bad field.
func Validation(config ValidationConfig) gin.HandlerFunc {
	RegisterValidators(config)

	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		var validationErrors []ValidationError
		for _, err := range c.Errors {
			var errs validator.ValidationErrors
			if !errors.As(err.Err, &errs) {
				continue
			}
			for _, e := range errs {
				msg := config.CustomErrorMessages[e.Tag()]
				if msg == "" {
					msg = e.Error()
				}
				validationErrors = append(validationErrors, ValidationError{
					Field:   e.Field(),
					Message: msg,
				})
			}
		}

		if len(validationErrors) > 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, handler.Response{
				Status:  "error",
				Message: "validation failed",
				Data:    validationErrors,
			})
		}
	}
}
