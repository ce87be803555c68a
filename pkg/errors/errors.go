package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// InvalidArgumentError is returned when an operation is called with input it
// cannot work with. It is raised before any work starts.
type InvalidArgumentError struct {
	Field   string
	Message string
}

func NewInvalidArgument(field, msg string) *InvalidArgumentError {
	return &InvalidArgumentError{Field: field, Message: msg}
}

// NewInvalidArgumentf creates an InvalidArgumentError with a formatted message
func NewInvalidArgumentf(field, format string, args ...any) *InvalidArgumentError {
	return &InvalidArgumentError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *InvalidArgumentError) Error() string {
	if e.Field == "" {
		return "invalid argument: " + e.Message
	}
	return fmt.Sprintf("invalid argument '%s': %s", e.Field, e.Message)
}

func (e *InvalidArgumentError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("field", e.Field)
}

func IsInvalidArgument(err error) bool {
	var target *InvalidArgumentError
	return errors.As(err, &target)
}

// ValidateStruct runs the struct's validate tags and reports the first
// failures as a single InvalidArgumentError.
func ValidateStruct(name string, v any) error {
	if v == nil {
		return NewInvalidArgument(name, "must not be nil")
	}

	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return NewInvalidArgument(name, err.Error())
	}

	fields := make([]string, 0, len(fieldErrs))
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field())
		msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Field(), fe.Tag()))
	}

	return NewInvalidArgument(name+"."+strings.Join(fields, ","), strings.Join(msgs, "; "))
}
