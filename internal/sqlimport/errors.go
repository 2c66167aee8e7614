package sqlimport

import (
	"errors"
	"fmt"
)

// ErrNoApplier is returned by Run when no Applier is supplied.
var ErrNoApplier = errors.New("sqlimport: applier is required")

// TransportError is a failed apply call: a network failure, or a non-2xx
// response that carries no structured result. It always aborts the import.
type TransportError struct {
	Phase      Phase
	StatusCode int    // 0 when no response was received
	Body       string // response excerpt
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("apply %s: server error (%d): %s", e.Phase, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("apply %s: server error (%d)", e.Phase, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("apply %s: %v", e.Phase, e.Err)
	default:
		return fmt.Sprintf("apply %s: transport failure", e.Phase)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// AbortError reports an import that stopped before completion. Partial holds
// the aggregate of every batch merged before the failure; those batches were
// already applied remotely and are not undone.
type AbortError struct {
	Phase   Phase
	Batch   int // 1-based batch number within Phase
	Partial ImportResult
	Err     error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("import aborted in %s phase at batch %d: %v", e.Phase, e.Batch, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }
