package progress

import "errors"

var (
	// ErrValidation marks malformed input. Nothing was written.
	ErrValidation = errors.New("invalid input")
	// ErrUnknownStage marks a stage code that is not in the catalog. Nothing was written.
	ErrUnknownStage = errors.New("unknown stage")
	// ErrStorage marks a transaction that could not commit. Nothing was written and
	// the caller may retry.
	ErrStorage = errors.New("storage failure")
	// ErrNotFound marks a lookup of an unknown user.
	ErrNotFound = errors.New("not found")
	// ErrTimeout is returned when the caller stopped waiting. The underlying
	// transaction still runs to commit or rollback on its own.
	ErrTimeout = errors.New("timed out waiting for submission")
)

// Retryable reports whether err is a transient failure the client may retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorage) || errors.Is(err, ErrTimeout)
}

func isDomain(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnknownStage) ||
		errors.Is(err, ErrStorage) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTimeout)
}
