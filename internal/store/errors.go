package store

import "errors"

var (
	// ErrNotFound is returned when a source or stored file does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrDirectoryNotFound is returned by VerifyPathExists when the directory
	// is missing and creation was not requested.
	ErrDirectoryNotFound = errors.New("directory not found")

	// ErrExists is returned by Upload with WithoutOverwrite when the target
	// is already present.
	ErrExists = errors.New("file already exists")

	// ErrNoBaseURL is returned by NewLocal when no BaseURLProvider is given.
	ErrNoBaseURL = errors.New("base URL provider is required")
)

// OpError records a filesystem failure and the path it happened on.
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }
