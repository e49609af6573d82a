// Package kernel defines the vocabulary shared by every subsystem: the
// Error type used to report module-scoped diagnostics.
package kernel

// Error describes a kernel error. Subsystems define their errors as
// package-level *Error values so error identity can be checked with plain
// equality instead of string comparison.
type Error struct {
	// Module names the subsystem that raised the error.
	Module string

	// Message is a short, human-readable description.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return "[" + e.Module + "] " + e.Message
}
