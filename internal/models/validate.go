package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/jsonschema-go/jsonschema"
)

// ValidationError reports a malformed or out-of-range request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Limits bounds the numeric request parameters accepted by the gateway.
type Limits struct {
	MinTemperature float64
	MaxTemperature float64
}

// DefaultLimits mirrors the range accepted by most chat-completion backends.
func DefaultLimits() Limits {
	return Limits{MinTemperature: 0, MaxTemperature: 2}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the request before any backend is contacted.
func (r ChatRequest) Validate(limits Limits) error {
	if err := validate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return describeFieldError(fieldErrs[0])
		}
		return &ValidationError{Message: err.Error()}
	}

	if r.Temperature < limits.MinTemperature || r.Temperature > limits.MaxTemperature {
		return NewValidationError("temperature", "must be between %g and %g, got %g",
			limits.MinTemperature, limits.MaxTemperature, r.Temperature)
	}

	for i, tool := range r.Tools {
		if err := checkSchema(fmt.Sprintf("tools[%d].parameters", i), tool.Parameters); err != nil {
			return err
		}
	}
	if r.ResponseFormat != nil && r.ResponseFormat.Type == ResponseFormatJSONSchema {
		if err := checkSchema("response_format.json_schema.schema", r.ResponseFormat.Schema); err != nil {
			return err
		}
	}
	return nil
}

func describeFieldError(fe validator.FieldError) *ValidationError {
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}

	switch fe.Tag() {
	case "required":
		if fe.Kind() == reflect.Slice {
			return NewValidationError(field, "at least one entry is required")
		}
		return NewValidationError(field, "is required")
	case "required_if":
		return NewValidationError(field, "is required when %s", strings.Replace(fe.Param(), " ", " is ", 1))
	case "min":
		return NewValidationError(field, "at least %s entries are required", fe.Param())
	case "oneof":
		return NewValidationError(field, "must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "eq":
		return NewValidationError(field, "must be %q", fe.Param())
	case "gt":
		return NewValidationError(field, "must be greater than %s", fe.Param())
	case "lte":
		return NewValidationError(field, "must be at most %s", fe.Param())
	default:
		return NewValidationError(field, "failed %q validation", fe.Tag())
	}
}

// checkSchema rejects JSON schema documents that cannot be resolved.
func checkSchema(field string, schema map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return NewValidationError(field, "schema is not serializable: %v", err)
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return NewValidationError(field, "invalid JSON schema: %v", err)
	}
	if _, err := s.Resolve(nil); err != nil {
		return NewValidationError(field, "invalid JSON schema: %v", err)
	}
	return nil
}
