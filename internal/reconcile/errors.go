package reconcile

import (
	"errors"
	"fmt"
)

// Motivos de aborto. Se comparan con errors.Is contra un *AbortError.
var (
	ErrAuthFailed            = errors.New("auth failed")
	ErrIdentityMissing       = errors.New("identity missing")
	ErrLookupFailed          = errors.New("identity lookup failed")
	ErrImportFailed          = errors.New("import failed")
	ErrCredentialWriteFailed = errors.New("credential write failed")
)

// AbortError es el estado terminal Aborted. State es la última etapa
// completada; Err conserva el error original del IdP (status + body).
type AbortError struct {
	State  State
	Reason error
	Err    error
}

func (e *AbortError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("reconcile aborted after %s: %v", e.State, e.Reason)
	}
	return fmt.Sprintf("reconcile aborted after %s: %v: %v", e.State, e.Reason, e.Err)
}

func (e *AbortError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}
