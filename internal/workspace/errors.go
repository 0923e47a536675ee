package workspace

import "errors"

var (
	// ErrNotInitialized is returned when an operation needs a live sandbox and there is none.
	ErrNotInitialized = errors.New("sandbox directory is not initialized")

	// ErrIO marks filesystem failures while creating a sandbox.
	ErrIO = errors.New("sandbox filesystem error")
)

// IsNotInitialized reports whether err means no sandbox is alive.
func IsNotInitialized(err error) bool {
	return errors.Is(err, ErrNotInitialized)
}
