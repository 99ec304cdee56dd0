package engine

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/lyzr/workflow-engine/internal/graph"
)

// ApplyPatch implements §4.9: an RFC 6902 JSON Patch is applied to a
// serialized snapshot of the workflow document that produced this
// engine's graph, and the result is reloaded and validated exactly as a
// fresh Load would. Tokens already dispatched past a patched node keep
// running against their in-flight state; only the engine's node/edge/
// context lookups change from this call onward. Applied only between
// Step calls — the caller must not call this concurrently with Step.
func (e *Engine) ApplyPatch(raw []byte) error {
	if e.doc == nil {
		return fmt.Errorf("engine has no source document to patch (constructed from a Workflow directly)")
	}

	patch, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return fmt.Errorf("decode patch: %w", err)
	}

	docBytes, err := json.Marshal(e.doc)
	if err != nil {
		return fmt.Errorf("marshal current document: %w", err)
	}

	patched, err := patch.Apply(docBytes)
	if err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}

	var newDoc graph.Document
	if err := json.Unmarshal(patched, &newDoc); err != nil {
		return fmt.Errorf("decode patched document: %w", err)
	}

	newWf, err := graph.Load(&newDoc)
	if err != nil {
		return fmt.Errorf("patched workflow invalid: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.wf = newWf
	e.doc = &newDoc
	return nil
}
