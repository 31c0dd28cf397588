package catalog

import (
	"errors"

	"github.com/sydlexius/cancionero/internal/database"
)

// Error taxonomy shared by every reconciliation operation. Callers match
// with errors.Is; messages carry the detail.
var (
	// ErrNotFound reports a missing group, track or performer, or a group
	// id that cannot be parsed.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument reports input that can never succeed, such as an
	// empty title or merging a performer into itself.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict reports a group whose original is not uniquely defined.
	ErrConflict = errors.New("conflict")

	// ErrStorage reports a write that failed and was rolled back in full.
	ErrStorage = database.ErrStorage
)
