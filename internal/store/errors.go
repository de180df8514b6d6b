package store

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/stars4all/nixnox-cli/internal/model"
)

// ErrNotFound reports a lookup by identifier that matched nothing.
var ErrNotFound = eris.New("store: not found")

// DuplicateError reports a file whose content digest is already stored. It
// carries the pre-existing observation so callers can report its identifier
// without re-querying.
type DuplicateError struct {
	Existing *model.Observation
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("observation %q already exists (digest %s)",
		e.Existing.Identifier, e.Existing.Digest)
}

// ConflictError reports a commit-time natural-key race on a dimension row:
// another ingestion created the same key first. Callers re-resolve and retry.
type ConflictError struct {
	Entity string
	Key    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s natural key conflict: %s", e.Entity, e.Key)
}
