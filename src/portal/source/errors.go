package source

import (
	"errors"
	"fmt"
)

// ErrTraversal is returned before any network call when a requested path
// tries to escape the repository root.
var ErrTraversal = errors.New("source: path escapes repository root")

// ErrRepoNotConfigured is returned when a contract names a repository key the
// deployment has no binding for.
var ErrRepoNotConfigured = errors.New("source: repository not configured")

// NotFoundError reports that the remote host answered but the file does not
// exist at the given ref. It is an expected outcome, not a transport failure.
type NotFoundError struct {
	Repository string
	Path       string
	Ref        string
}

func (e *NotFoundError) Error() string {
	ref := e.Ref
	if ref == "" {
		ref = "predeterminada"
	}
	return fmt.Sprintf("source: %s:%s not found (rama %s)", e.Repository, e.Path, ref)
}

// TransportError reports that the remote host could not be reached or
// answered with a server-side failure. Callers must not present it to
// students as a missing deliverable.
type TransportError struct {
	Repository string
	Path       string
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("source: fetching %s:%s: %v", e.Repository, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
