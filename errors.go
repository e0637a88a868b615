package merklix

import "github.com/dapperlabs/merklix/errs"

// CorruptionError, MissingNodeError and StateError are re-exported at
// the package root so callers of the public API (spec §6.4) don't need
// to import the internal errs package directly.
type (
	CorruptionError = errs.CorruptionError
	MissingNodeError = errs.MissingNodeError
	StateError       = errs.StateError
)
