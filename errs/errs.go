// Package errs defines the error kinds shared by the store and tree
// engine (spec §7): CorruptionError, MissingNodeError and StateError.
// They live in their own package (rather than the root merklix package)
// purely to break the import cycle between merklix (which imports
// store) and store (which needs to raise these).
package errs

import "fmt"

// CorruptionError marks on-disk data that fails a structural or
// cryptographic check: a bad meta checksum, an impossible child
// pointer, non-monotonic file indices. Recoverable only by the store's
// recovery scan; fatal to the operation that surfaced it everywhere
// else.
type CorruptionError struct {
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("merklix: corrupt store: %s", e.Reason)
}

// MissingNodeError reports that a requested node, or a historical root,
// could not be located by walking the meta chain.
type MissingNodeError struct {
	Root []byte
	Node string
}

func (e *MissingNodeError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("merklix: missing node %s under root %x", e.Node, e.Root)
	}
	return fmt.Sprintf("merklix: missing root %x", e.Root)
}

// StateError reports an operation attempted in the wrong lifecycle. It is
// returned by Close when called a second time and by Destroy before Close;
// a second Open of the same prefix and other operations on a closed tree
// or store are not detected.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("merklix: invalid state: %s", e.Reason)
}
