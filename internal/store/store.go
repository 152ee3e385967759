package store

import "context"

// Storage is the capability set a photo backend offers its callers.
// Swap Local for another implementation without touching handler code.
type Storage interface {
	// Upload copies the file at src into the store under destination and
	// returns the logical reference of the stored copy.
	Upload(src, destination string, opts ...UploadOption) (string, error)

	// DeletePhoto removes file. Silently succeeds if file does not exist.
	DeletePhoto(file string) error

	// Exists reports whether file is a stored regular file.
	Exists(file string) (bool, error)

	// PhotoPath returns the backend-local path of file without checking it exists.
	PhotoPath(file string) string

	// PhotoURL returns the public URL of file.
	PhotoURL(ctx context.Context, file string) (string, error)

	// PhotoResource copies file into a new temporary file and returns its
	// path. The caller owns the temporary file and must remove it.
	PhotoResource(file string) (string, error)
}

// BaseURLProvider supplies the externally reachable URL that corresponds to
// the project root. Implementations live in the baseurl package.
type BaseURLProvider interface {
	BaseURL(ctx context.Context) string
}

var _ Storage = (*Local)(nil)
