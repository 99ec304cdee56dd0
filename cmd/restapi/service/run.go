// Package service mediates between the REST handlers and the in-process
// Workflow Engine (§6.2), grounded on the teacher's handler -> service ->
// store layering (cmd/orchestrator/service) but with no repository
// fan-out beyond the shared Human Task store: the workflow graph itself
// lives entirely in memory for the lifetime of one run.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/lyzr/workflow-engine/common/logger"
	"github.com/lyzr/workflow-engine/internal/contextstore"
	"github.com/lyzr/workflow-engine/internal/engine"
	"github.com/lyzr/workflow-engine/internal/graph"
	"github.com/lyzr/workflow-engine/internal/taskqueue"
)

// RunService owns every live Engine instance and the Human Task Queue they
// share, so a later /tasks/{id}/complete call can resume the exact token
// that suspended on it.
type RunService struct {
	taskStore taskqueue.Store
	logger    *logger.Logger
	credential string
	retry     *engine.RetryPolicy
	notifier  contextstore.Notifier // optional Redis mirror, SPEC_FULL §1.2

	mu      sync.Mutex
	runs    map[string]*engine.Engine
	taskRun map[string]string // human task id -> owning run id
}

// NewRunService wires a shared task store (e.g. a Postgres-backed store
// for durability across process restarts) into every run it starts.
// notifier may be nil; single-process operation never requires one.
func NewRunService(taskStore taskqueue.Store, log *logger.Logger, credential string, retry *engine.RetryPolicy, notifier contextstore.Notifier) *RunService {
	return &RunService{
		taskStore:  taskStore,
		logger:     log,
		credential: credential,
		retry:      retry,
		notifier:   notifier,
		runs:       make(map[string]*engine.Engine),
		taskRun:    make(map[string]string),
	}
}

// RunResult is what POST /api/v1/workflows/run returns (§6 "Engine API").
type RunResult struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// Run loads doc, starts it with inputs, drives it to quiescence, and
// records every human task it suspended on against this run so later task
// operations can find their way back to the right Engine.
func (s *RunService) Run(ctx context.Context, doc *graph.Document, inputs map[string]interface{}) (*RunResult, error) {
	eng, err := engine.NewFromDocument(doc, engine.Options{
		Credential: s.credential,
		Logger:     s.logger,
		TaskStore:  s.taskStore,
		Retry:      s.retry,
		Notifier:   s.notifier,
	})
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}

	runID, err := eng.Start(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	s.mu.Lock()
	s.runs[runID] = eng
	s.mu.Unlock()

	if err := eng.RunToQuiescence(ctx); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	s.trackPendingTasks(runID, eng)

	return &RunResult{RunID: runID, Status: eng.Status()}, nil
}

// trackPendingTasks records, for every token currently waiting on a human
// task, which run owns it — this is the index /tasks/{id}/complete needs.
func (s *RunService) trackPendingTasks(runID string, eng *engine.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range eng.Tokens() {
		if p := tok.Pending(); p != nil && p.HumanTaskID != "" {
			s.taskRun[p.HumanTaskID] = runID
		}
	}
}

// Resolve re-runs the owning run to quiescence after a human task
// transitions to completed/rejected, per §4.6 "the queue signals the
// engine: the owning token wakes ... and proceeds along outbound edges".
func (s *RunService) Resolve(ctx context.Context, taskID string) (*RunResult, error) {
	s.mu.Lock()
	runID, ok := s.taskRun[taskID]
	var eng *engine.Engine
	if ok {
		eng = s.runs[runID]
	}
	s.mu.Unlock()
	if !ok || eng == nil {
		return nil, fmt.Errorf("no active run owns task %q", taskID)
	}

	if err := eng.ResumeHumanTask(ctx, taskID); err != nil {
		return nil, err
	}
	if err := eng.RunToQuiescence(ctx); err != nil {
		return nil, err
	}
	s.trackPendingTasks(runID, eng)
	return &RunResult{RunID: runID, Status: eng.Status()}, nil
}

// TaskStore exposes the shared Human Task store to handlers for direct
// CRUD operations (list/assign/start/pending/stats) that don't need an
// owning Engine.
func (s *RunService) TaskStore() taskqueue.Store {
	return s.taskStore
}
