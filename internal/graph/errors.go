package graph

import "fmt"

// ValidationError reports a malformed workflow document. It never reaches
// the engine — Load returns it to the caller before a Workflow exists.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// ReferenceError reports a dangling node, context or edge id discovered at
// load time. It aborts the load.
type ReferenceError struct {
	Kind string // "node" | "context" | "edge"
	ID   string
	From string // where the dangling reference was found
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("reference error: unresolved %s %q referenced from %s", e.Kind, e.ID, e.From)
}
