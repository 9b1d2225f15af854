package orchestrator

import (
	"github.com/cockroachdb/errors"
)

// Failure classes. Pipeline errors are marked with exactly one of these so
// callers can classify them with errors.Is after any amount of wrapping.
var (
	ErrInput       = errors.New("input error")
	ErrTimeout     = errors.New("timeout error")
	ErrValidation  = errors.New("validation error")
	ErrPersistence = errors.New("persistence error")
	ErrUpstream    = errors.New("upstream clustering failure")
)

// Error kind names as recorded in metrics and logs.
const (
	KindInput       = "InputError"
	KindTimeout     = "TimeoutError"
	KindValidation  = "ValidationError"
	KindPersistence = "PersistenceError"
	KindUpstream    = "UpstreamClusteringFailure"
	KindInternal    = "InternalError"
)

// ErrorKind returns the failure class name of err, or KindInternal when
// err carries no class marker.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInput):
		return KindInput
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	}
	return KindInternal
}

func inputErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInput)
}

func timeoutErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrTimeout)
}

func persistenceError(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrPersistence)
}

func persistenceErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrPersistence)
}

func upstreamError(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrUpstream)
}

func validationError(err error) error {
	return errors.Mark(errors.Wrap(err, "invalid clustering result"), ErrValidation)
}
