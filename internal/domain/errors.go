package domain

import (
	"github.com/cockroachdb/errors"
)

// Error taxonomy. Concrete errors are marked with one of these so callers
// can classify them with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrTriggerRegistration = errors.New("trigger registration error")
	ErrTaskRunner          = errors.New("task runner failure")
	ErrStoreIO             = errors.New("store io error")
)

// Validationf returns a new error marked as a validation error
func Validationf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// ScheduleNotFound returns a not-found error for the given schedule id
func ScheduleNotFound(id string) error {
	return errors.Mark(errors.Newf("schedule %q not found", id), ErrNotFound)
}

// Kind names the taxonomy class of err for the CLI's JSON error output
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrNotFound):
		return "NotFoundError"
	case errors.Is(err, ErrTriggerRegistration):
		return "TriggerRegistrationError"
	case errors.Is(err, ErrTaskRunner):
		return "TaskRunnerFailure"
	case errors.Is(err, ErrStoreIO):
		return "StoreIOError"
	default:
		return "InternalError"
	}
}
