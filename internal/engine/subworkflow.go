package engine

import (
	"context"
	"fmt"

	"github.com/lyzr/workflow-engine/internal/graph"
	"github.com/lyzr/workflow-engine/internal/token"
)

// spawnSubWorkflow implements §4.8: an activity declaring Expansion spawns
// a child Engine over the nested workflow, sharing this engine's
// strategies and task store, and suspends tok on the child run's id
// exactly as a human task suspends on a task id.
func (e *Engine) spawnSubWorkflow(ctx context.Context, tok *token.Token, act *graph.Activity) error {
	child, ok := e.opts.SubWorkflows[act.Expansion]
	if !ok {
		return &SubWorkflowError{ActivityID: act.ID, WorkflowID: act.Expansion, Reason: "no sub-workflow registered under this id"}
	}

	sub, err := New(child, e.childOptions())
	if err != nil {
		return &SubWorkflowError{ActivityID: act.ID, WorkflowID: act.Expansion, Reason: err.Error()}
	}

	inputs := make(map[string]interface{}, len(tok.Data))
	for k, v := range tok.Data {
		inputs[k] = v
	}
	runID, err := sub.Start(ctx, inputs)
	if err != nil {
		return &SubWorkflowError{ActivityID: act.ID, WorkflowID: act.Expansion, Reason: err.Error()}
	}

	e.subEngines[runID] = sub
	e.subWaiting[runID] = tok.ID
	tok.Suspend(token.Suspension{SubRunID: runID})
	return nil
}

// childOptions carries this engine's collaborators down to a sub-run
// engine: the strategy set, task store and sub-workflow registry are
// shared; retry policy and credential attribution are inherited.
func (e *Engine) childOptions() Options {
	return Options{
		Strategies:   e.strategies,
		TaskStore:    e.taskStore,
		Notifier:     e.opts.Notifier,
		Retry:        &e.retry,
		Logger:       e.logger,
		CreatedBy:    e.opts.CreatedBy,
		SubWorkflows: e.opts.SubWorkflows,
	}
}

// PollSubRuns advances every in-flight sub-workflow run by one step and,
// for any that have reached a terminal status, wakes the parent token:
// the child run's terminal tokens are merged via the same sibling-merge
// rule a fork/join uses (§4.8, resolving Open Question (c)), then the
// parent resumes along its normal outbound edges.
func (e *Engine) PollSubRuns(ctx context.Context) (bool, error) {
	e.mu.Lock()
	runs := make(map[string]*Engine, len(e.subEngines))
	for id, sub := range e.subEngines {
		runs[id] = sub
	}
	e.mu.Unlock()

	progressed := false
	for runID, sub := range runs {
		ok, err := sub.Step(ctx)
		if err != nil {
			return progressed, fmt.Errorf("sub-run %q: %w", runID, err)
		}
		if ok {
			progressed = true
		}
		if _, err := sub.PollSubRuns(ctx); err != nil {
			return progressed, fmt.Errorf("sub-run %q: %w", runID, err)
		}

		status := sub.Status()
		if status == "running" || status == "waiting" {
			continue
		}
		progressed = true

		e.mu.Lock()
		parentID := e.subWaiting[runID]
		parent := e.tokens[parentID]
		delete(e.subEngines, runID)
		delete(e.subWaiting, runID)

		terminal := sub.Tokens()
		merged := token.MergeSiblings(terminal)
		parent.Resume()
		parent.MergeData(merged)

		if status == "failed" {
			parent.UpdateStatus(token.StatusFailed)
			e.mu.Unlock()
			continue
		}
		edges, err := e.selectEdges(parent, parent.CurrentNodeID)
		if err != nil {
			parent.UpdateStatus(token.StatusFailed)
			e.mu.Unlock()
			continue
		}
		e.advance(parent, edges)
		e.mu.Unlock()
	}
	return progressed, nil
}
