package syncer

import "fmt"

// SetupError reports that the destination directory could not be prepared.
// No asset is attempted and no report is produced.
type SetupError struct {
	Destination string
	Err         error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("cannot prepare destination %s: %v", e.Destination, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// NamingConflictError reports two descriptors planned onto the same name.
// Name planning resolves collisions, so this only guards against regressions.
type NamingConflictError struct {
	Name   string
	First  int
	Second int
}

func (e *NamingConflictError) Error() string {
	return fmt.Sprintf("descriptors %d and %d both resolve to %q", e.First, e.Second, e.Name)
}
