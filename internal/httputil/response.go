package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/domain"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// Error writes an error body with the given status.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// ErrorFrom maps err to a status code. Unexpected errors are logged and
// answered with a generic message.
func ErrorFrom(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	var (
		notFound  *domain.NotFoundError
		forbidden *domain.ForbiddenError
		invalid   *domain.InvalidStateError
		badInput  *domain.ValidationError
		conflict  *domain.ConflictError
		tooLarge  *http.MaxBytesError
	)
	switch {
	case errors.As(err, &notFound):
		Error(w, http.StatusNotFound, notFound.Message)
	case errors.As(err, &forbidden):
		Error(w, http.StatusForbidden, forbidden.Reason)
	case errors.As(err, &invalid):
		Error(w, http.StatusBadRequest, invalid.Message)
	case errors.As(err, &badInput):
		Error(w, http.StatusBadRequest, badInput.Message)
	case errors.As(err, &conflict):
		JSON(w, http.StatusConflict, ErrorResponse{Error: conflict.Message, Retryable: conflict.Retryable})
	case errors.As(err, &tooLarge):
		Error(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, domain.ErrInvalidToken):
		Error(w, http.StatusUnauthorized, "invalid or expired token")
	default:
		log.WithContext(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}

// Decode reads a JSON body into dst and validates its `validate` tags.
// Malformed or invalid input is returned as a domain.ValidationError.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return domain.ErrValidation("request body is required")
		}
		return domain.ErrValidation("invalid request body: %v", err)
	}
	return Validate(dst)
}

// Validate runs struct validation on v.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domain.ErrValidation("%v", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return domain.ErrValidation("%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a UUID", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
