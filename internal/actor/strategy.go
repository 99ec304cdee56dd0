// Package actor implements the Actor Strategies (§4.5): one dispatch
// target per actor kind behind a uniform execute contract.
package actor

import (
	"context"
	"fmt"

	"github.com/lyzr/workflow-engine/internal/contextstore"
	"github.com/lyzr/workflow-engine/internal/graph"
	"github.com/lyzr/workflow-engine/internal/token"
)

// Status is the tri-state result of a strategy call (§4.5).
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSuspend Status = "suspend"
)

// Outcome is a strategy call's uniform result. The engine never inspects
// strategy internals beyond this shape.
type Outcome struct {
	Outputs          map[string]interface{}
	Metrics          map[string]interface{}
	Status           Status
	SuspensionHandle string
	Err              error
}

// Strategy dispatches one activity's work to its actor.
type Strategy interface {
	Execute(ctx context.Context, activity *graph.Activity, tok *token.Token, view *ContextView) (Outcome, error)
}

// ContextView restricts a strategy call to the contexts its activity
// declared bindings for, enforcing the declared access mode (§4.2, §5).
// The engine is responsible for acquiring/releasing the underlying
// per-context locks in lexicographic order around the Execute call; the
// view itself only enforces which operations a binding permits, and calls
// the store's Locked entry points (GetLocked/SetLocked/MergeLocked/
// PublishLocked) since those locks are already held for the duration of
// the call — going through Get/Set/Merge/Publish here would re-enter the
// same non-reentrant per-context mutex from the same goroutine and
// deadlock.
type ContextView struct {
	store    *contextstore.Store
	bindings map[string]graph.AccessMode
}

// NewContextView builds a view scoped to an activity's declared bindings.
func NewContextView(store *contextstore.Store, bindings []graph.ContextBinding) *ContextView {
	modes := make(map[string]graph.AccessMode, len(bindings))
	for _, b := range bindings {
		modes[b.ContextID] = b.Access
	}
	return &ContextView{store: store, bindings: modes}
}

// LockModes returns the access-mode map the engine should pass to
// contextstore.Store.Lock before invoking the strategy.
func (v *ContextView) LockModes() map[string]graph.AccessMode {
	return v.bindings
}

func (v *ContextView) checkAccess(contextID string, allowed ...graph.AccessMode) error {
	mode, ok := v.bindings[contextID]
	if !ok {
		return fmt.Errorf("activity has no binding for context %q", contextID)
	}
	for _, a := range allowed {
		if mode == a {
			return nil
		}
	}
	return fmt.Errorf("context %q bound as %q does not permit this operation", contextID, mode)
}

// Get reads a bound context's value; requires read, read_write or subscribe access.
func (v *ContextView) Get(contextID string) (interface{}, error) {
	if err := v.checkAccess(contextID, graph.AccessRead, graph.AccessReadWrite, graph.AccessSubscribe); err != nil {
		return nil, err
	}
	return v.store.GetLocked(contextID, v.bindings[contextID])
}

// Set replaces a bound context's value; requires write or read_write access.
func (v *ContextView) Set(contextID string, value interface{}) error {
	if err := v.checkAccess(contextID, graph.AccessWrite, graph.AccessReadWrite); err != nil {
		return err
	}
	return v.store.SetLocked(contextID, value)
}

// Merge shallow-merges into a bound context's value; requires write or read_write access.
func (v *ContextView) Merge(contextID string, partial interface{}) error {
	if err := v.checkAccess(contextID, graph.AccessWrite, graph.AccessReadWrite); err != nil {
		return err
	}
	return v.store.MergeLocked(contextID, partial)
}

// Publish publishes an event on a bound context; requires publish access.
func (v *ContextView) Publish(contextID string, value interface{}) error {
	if err := v.checkAccess(contextID, graph.AccessPublish); err != nil {
		return err
	}
	return v.store.PublishLocked(contextID, value)
}
