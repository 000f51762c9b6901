package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Sanitize validates event and bounds its free-text fields. It has no side
// effects. A nil event, a missing or unknown action or entityType, or an
// unknown status is rejected with a *ValidationError.
//
// Bounds are applied, never rejected: entityName is cut to 500 characters,
// errorMessage to 1000, and serialized details to 10000. Details cut at the
// bound are kept only if they still parse as JSON; otherwise the truncated
// text is kept verbatim and DetailsTruncated is set.
func Sanitize(event *Event) (*SanitizedEvent, error) {
	if event == nil {
		return nil, &ValidationError{Fields: map[string]string{"event": "is required"}}
	}

	if err := validate.Struct(event); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		verr := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
		for _, fe := range fieldErrs {
			verr.Fields[fe.Field()] = describe(fe)
		}
		return nil, verr
	}

	oldValues, err := marshalOptional(event.OldValues)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"oldValues": "is not JSON-serializable"}}
	}
	newValues, err := marshalOptional(event.NewValues)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"newValues": "is not JSON-serializable"}}
	}
	details, err := marshalOptional(event.Details)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"details": "is not JSON-serializable"}}
	}
	details, truncated := boundDetails(details)

	status := event.Status
	if status == "" {
		status = StatusSuccess
	}

	return &SanitizedEvent{
		Action:           event.Action,
		EntityType:       event.EntityType,
		EntityID:         event.EntityID,
		EntityName:       truncateRunes(event.EntityName, MaxEntityNameLength),
		OldValues:        oldValues,
		NewValues:        newValues,
		Details:          details,
		DetailsTruncated: truncated,
		Status:           status,
		ErrorMessage:     truncateRunes(event.ErrorMessage, MaxErrorMessageLength),
		DurationMs:       event.DurationMs,
	}, nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gte":
		return "must be >= " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

func marshalOptional(values map[string]interface{}) (string, error) {
	if values == nil {
		return "", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// boundDetails cuts serialized details to MaxDetailsLength characters and
// reports whether the result had to be kept as raw text
func boundDetails(serialized string) (string, bool) {
	if utf8.RuneCountInString(serialized) <= MaxDetailsLength {
		return serialized, false
	}
	cut := truncateRunes(serialized, MaxDetailsLength)
	if json.Valid([]byte(cut)) {
		return cut, false
	}
	return cut, true
}

// truncateRunes cuts s to at most n characters without splitting a rune
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
