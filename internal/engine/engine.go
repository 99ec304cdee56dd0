// Package engine implements the Workflow Engine (§4.7): the token
// scheduler that dispatches activities to actor strategies, evaluates
// decision nodes, routes along conditional edges, forks and joins
// parallel branches, retries and compensates failing activities, and
// suspends/resumes tokens on human tasks and sub-workflow runs.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lyzr/workflow-engine/common/logger"
	"github.com/lyzr/workflow-engine/internal/actor"
	"github.com/lyzr/workflow-engine/internal/contextstore"
	"github.com/lyzr/workflow-engine/internal/decision"
	"github.com/lyzr/workflow-engine/internal/expr"
	"github.com/lyzr/workflow-engine/internal/graph"
	"github.com/lyzr/workflow-engine/internal/taskqueue"
	"github.com/lyzr/workflow-engine/internal/token"
)

// Options configures a new Engine. Strategies defaults to a full set built
// from GEMINI_API_KEY/credential if nil; TaskStore defaults to an
// in-memory store if nil.
type Options struct {
	Strategies     map[graph.ActorType]actor.Strategy
	ProgramRunners map[string]actor.ProgramRunner
	Credential     string // bearer credential for the robot strategy's real endpoint calls
	TaskStore      taskqueue.Store
	Notifier       contextstore.Notifier
	Retry          *RetryPolicy
	Logger         *logger.Logger
	CreatedBy      string // attribution recorded on human tasks this engine creates
	SubWorkflows   map[string]*graph.Workflow // §4.8: expansion id -> nested workflow
}

// Engine runs one workflow to completion, one step at a time (§4.7).
type Engine struct {
	wf  *graph.Workflow
	doc *graph.Document // nil unless constructed via NewFromDocument; required for ApplyPatch

	strategies map[graph.ActorType]actor.Strategy
	store      *contextstore.Store
	decisionEv *decision.Evaluator
	exprEval   *expr.Evaluator
	taskStore  taskqueue.Store
	retry      RetryPolicy
	logger     *logger.Logger
	opts       Options

	sleep func(time.Duration)

	mu         sync.Mutex
	runID      string
	tokens     map[string]*token.Token
	queue      []string
	cancelled  bool
	reachedEnd bool

	forkTotal    map[string]int
	forkParent   map[string]string
	forkChildren map[string][]string
	forkSettled  map[string][]string
	forkJoinNode map[string]string

	subEngines map[string]*Engine
	subWaiting map[string]string // sub-run id -> waiting token id
}

// New constructs an Engine over an already-loaded Workflow. ApplyPatch is
// unavailable on an Engine built this way; use NewFromDocument to retain
// patchability (§4.9).
func New(wf *graph.Workflow, opts Options) (*Engine, error) {
	return newEngine(wf, nil, opts)
}

// NewFromDocument loads doc and constructs an Engine that additionally
// supports ApplyPatch, since patching re-applies against the original
// document representation (§4.9).
func NewFromDocument(doc *graph.Document, opts Options) (*Engine, error) {
	wf, err := graph.Load(doc)
	if err != nil {
		return nil, err
	}
	return newEngine(wf, doc, opts)
}

func newEngine(wf *graph.Workflow, doc *graph.Document, opts Options) (*Engine, error) {
	store, err := contextstore.New(wf.Contexts(), opts.Notifier)
	if err != nil {
		return nil, fmt.Errorf("build context store: %w", err)
	}

	retry := DefaultRetryPolicy()
	if opts.Retry != nil {
		retry = *opts.Retry
	}

	log := opts.Logger
	if log == nil {
		log = logger.New("info", "console")
	}

	taskStore := opts.TaskStore
	if taskStore == nil {
		taskStore = taskqueue.NewMemoryStore()
	}

	strategies := opts.Strategies
	if strategies == nil {
		strategies = map[graph.ActorType]actor.Strategy{
			graph.ActorApplication: actor.NewApplicationStrategy(opts.ProgramRunners, nil),
			graph.ActorAIAgent:     actor.NewAIAgentStrategy(),
			graph.ActorRobot:       actor.NewRobotStrategy(opts.Credential, nil),
			graph.ActorHuman:       actor.NewHumanStrategy(taskStore, opts.CreatedBy),
		}
	}

	exprEval := expr.NewEvaluator()

	return &Engine{
		wf:              wf,
		doc:             doc,
		strategies:      strategies,
		store:           store,
		decisionEv:      decision.New(exprEval),
		exprEval:        exprEval,
		taskStore:       taskStore,
		retry:           retry,
		logger:          log,
		opts:            opts,
		sleep:           time.Sleep,
		tokens:          make(map[string]*token.Token),
		forkTotal:       make(map[string]int),
		forkParent:      make(map[string]string),
		forkChildren:    make(map[string][]string),
		forkSettled:     make(map[string][]string),
		forkJoinNode:    make(map[string]string),
		subEngines:      make(map[string]*Engine),
		subWaiting:      make(map[string]string),
	}, nil
}

// Start creates a token at each start node with the given inputs and
// transitions the run to running (§4.7 "Lifecycle").
func (e *Engine) Start(ctx context.Context, inputs map[string]interface{}) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.runID = uuid.NewString()
	e.logger = e.logger.WithRunID(e.runID)

	starts := e.wf.StartNodes()
	if len(starts) == 0 {
		return "", fmt.Errorf("workflow %q has no start nodes", e.wf.ID)
	}
	for _, n := range starts {
		data := make(map[string]interface{}, len(inputs))
		for k, v := range inputs {
			data[k] = v
		}
		tok := token.New(e.wf.ID, n.ID, data)
		e.tokens[tok.ID] = tok
		e.queue = append(e.queue, tok.ID)
	}
	e.logger.Info("run started", "workflow_id", e.wf.ID, "start_tokens", len(starts))
	return e.runID, nil
}

func (e *Engine) enqueue(id string) {
	e.queue = append(e.queue, id)
}

func (e *Engine) popActive() (*token.Token, bool) {
	for len(e.queue) > 0 {
		id := e.queue[0]
		e.queue = e.queue[1:]
		tok, ok := e.tokens[id]
		if ok && tok.Status == token.StatusActive {
			return tok, true
		}
	}
	return nil, false
}

// Step processes one unit of work: one active token at its current node.
// Returns whether progress was made (§4.7 "Lifecycle").
func (e *Engine) Step(ctx context.Context) (bool, error) {
	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return false, nil
	}
	tok, ok := e.popActive()
	e.mu.Unlock()
	if !ok {
		return false, nil
	}

	node := e.wf.Node(tok.CurrentNodeID)
	if node == nil {
		tok.UpdateStatus(token.StatusFailed)
		return true, fmt.Errorf("token %q at undefined node %q", tok.ID, tok.CurrentNodeID)
	}

	e.logger.Debug("step", "token_id", tok.ID, "node_id", node.ID, "node_type", node.Type)

	var err error
	switch node.Type {
	case graph.NodeActivity:
		err = e.stepActivity(ctx, tok, node.Activity)
	case graph.NodeDecision:
		err = e.stepDecision(tok, node.Decision)
	case graph.NodeEvent:
		err = e.stepEvent(tok, node.Event)
	default:
		err = fmt.Errorf("node %q has unknown type %q", node.ID, node.Type)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.logger.Warn("token failed", "token_id", tok.ID, "node_id", node.ID, "error", err)
		tok.UpdateStatus(token.StatusFailed)
		if tok.ForkID != "" {
			e.terminateOrJoin(tok)
		}
	}
	return true, nil
}

// RunToQuiescence steps the run (and any sub-runs) until no step makes
// progress — every token is terminal or waiting (§4.7 "Lifecycle").
func (e *Engine) RunToQuiescence(ctx context.Context) error {
	for {
		progressed, err := e.Step(ctx)
		if err != nil {
			return err
		}
		subProgressed, err := e.PollSubRuns(ctx)
		if err != nil {
			return err
		}
		if !progressed && !subProgressed {
			return nil
		}
	}
}

// Cancel marks every active/waiting token cancelled, expires their
// outstanding human tasks and cancels every sub-run (§4.7 "Cancellation").
func (e *Engine) Cancel(ctx context.Context) error {
	e.logger.Info("run cancelled", "run_id", e.runID)
	e.mu.Lock()
	e.cancelled = true
	var taskIDs []string
	for _, tok := range e.tokens {
		if tok.Status != token.StatusActive && tok.Status != token.StatusWaiting {
			continue
		}
		if p := tok.Pending(); p != nil && p.HumanTaskID != "" {
			taskIDs = append(taskIDs, p.HumanTaskID)
		}
		tok.UpdateStatus(token.StatusCancelled)
	}
	e.queue = nil
	subEngines := make([]*Engine, 0, len(e.subEngines))
	for _, sub := range e.subEngines {
		subEngines = append(subEngines, sub)
	}
	e.mu.Unlock()

	for _, id := range taskIDs {
		_ = e.taskStore.Expire(ctx, id)
	}
	for _, sub := range subEngines {
		_ = sub.Cancel(ctx)
	}
	return nil
}

// Status reports the run's overall status (§4.7 "Lifecycle"): completed
// takes priority once no token is active/waiting and at least one token
// reached an end event; failed and cancelled are reported only when no
// token reached an end event.
func (e *Engine) Status() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.tokens) == 0 {
		return "running"
	}

	var active, waiting, completed, failed, cancelled int
	for _, tok := range e.tokens {
		switch tok.Status {
		case token.StatusActive:
			active++
		case token.StatusWaiting:
			waiting++
		case token.StatusCompleted:
			completed++
		case token.StatusFailed:
			failed++
		case token.StatusCancelled:
			cancelled++
		}
	}

	if active > 0 {
		return "running"
	}
	if waiting > 0 {
		return "waiting"
	}
	if completed > 0 && e.reachedEnd {
		return "completed"
	}
	if failed > 0 {
		return "failed"
	}
	if cancelled > 0 {
		return "cancelled"
	}
	return "completed"
}

// Tokens returns every token this run has ever created.
func (e *Engine) Tokens() []*token.Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*token.Token, 0, len(e.tokens))
	for _, tok := range e.tokens {
		out = append(out, tok)
	}
	return out
}

// ResumeHumanTask wakes the token suspended on a completed or rejected
// human task (§4.6): outputs (or a `{rejection_reason}` map on reject) are
// merged into the token's data, a `task_status` field is set so edge
// conditions can discriminate a rejection, and the token resumes along its
// normal outbound edges.
func (e *Engine) ResumeHumanTask(ctx context.Context, taskID string) error {
	task, err := e.taskStore.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != taskqueue.StatusCompleted && task.Status != taskqueue.StatusRejected {
		return fmt.Errorf("task %q is not resolved (status %s)", taskID, task.Status)
	}

	e.mu.Lock()
	tok, ok := e.tokens[task.TokenID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("task %q: owning token %q not found", taskID, task.TokenID)
	}
	if p := tok.Pending(); p == nil || p.HumanTaskID != taskID {
		return fmt.Errorf("task %q is not the outstanding suspension for token %q", taskID, tok.ID)
	}

	tok.Resume()
	tok.MergeData(task.Outputs)
	if task.Status == taskqueue.StatusRejected {
		tok.MergeData(map[string]interface{}{"task_status": "rejected"})
	} else {
		tok.MergeData(map[string]interface{}{"task_status": "completed"})
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	edges, err := e.selectEdges(tok, tok.CurrentNodeID)
	if err != nil {
		tok.UpdateStatus(token.StatusFailed)
		return nil
	}
	e.advance(tok, edges)
	return nil
}

func (e *Engine) stepEvent(tok *token.Token, ev *graph.Event) error {
	switch ev.Kind {
	case graph.EventEnd:
		e.mu.Lock()
		tok.UpdateStatus(token.StatusCompleted)
		e.reachedEnd = true
		if tok.ForkID != "" {
			e.terminateOrJoin(tok)
		}
		e.mu.Unlock()
		return nil
	default: // start, intermediate: record and advance
		e.mu.Lock()
		edges, err := e.selectEdges(tok, tok.CurrentNodeID)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		e.advance(tok, edges)
		e.mu.Unlock()
		return nil
	}
}

func (e *Engine) stepDecision(tok *token.Token, dn *graph.DecisionNode) error {
	e.mu.Lock()
	env := e.buildEnv(tok)
	e.mu.Unlock()

	inputs := make(map[string]interface{}, len(dn.Table.Inputs))
	for _, col := range dn.Table.Inputs {
		inputs[col] = resolveColumn(env, col)
	}

	result, err := e.decisionEv.Evaluate(dn, inputs)
	if err != nil {
		e.logger.Warn("decision evaluation failed", "node_id", dn.ID, "hit_policy", dn.Table.HitPolicy, "error", err)
		return err
	}
	e.logger.Debug("decision evaluated", "node_id", dn.ID, "hit_policy", dn.Table.HitPolicy)

	e.mu.Lock()
	defer e.mu.Unlock()

	if result.Single != nil && result.OutputEdgeID != "" {
		edge := e.wf.Edge(result.OutputEdgeID)
		if edge == nil {
			return &NoValidEdgeError{NodeID: dn.ID}
		}
		e.advance(tok, []*graph.Edge{edge})
		return nil
	}

	if result.Rows != nil && hasEdgeIDs(result.EdgeIDs) {
		edges := make([]*graph.Edge, 0, len(result.EdgeIDs))
		seen := make(map[string]bool)
		for _, id := range result.EdgeIDs {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			if edge := e.wf.Edge(id); edge != nil {
				edges = append(edges, edge)
			}
		}
		if len(edges) == 0 {
			return &NoValidEdgeError{NodeID: dn.ID}
		}
		e.advance(tok, edges)
		return nil
	}

	// No edge ids declared: merge outputs into token data and route by
	// outbound edge conditions, same as an activity (§4.4).
	switch {
	case result.Single != nil:
		tok.MergeData(result.Single)
	case result.Aggregated != nil && len(dn.Table.Outputs) > 0:
		tok.MergeData(map[string]interface{}{dn.Table.Outputs[0]: result.Aggregated})
	case result.Rows != nil:
		for _, row := range result.Rows {
			tok.MergeData(row)
		}
	}

	edges, err := e.selectEdges(tok, dn.ID)
	if err != nil {
		return err
	}
	e.advance(tok, edges)
	return nil
}

func hasEdgeIDs(ids []string) bool {
	for _, id := range ids {
		if id != "" {
			return true
		}
	}
	return false
}

func (e *Engine) stepActivity(ctx context.Context, tok *token.Token, act *graph.Activity) error {
	if act.Expansion != "" {
		e.mu.Lock()
		err := e.spawnSubWorkflow(ctx, tok, act)
		e.mu.Unlock()
		return err
	}

	strategy, ok := e.strategies[act.ActorType]
	if !ok {
		return fmt.Errorf("activity %q: no strategy registered for actor_type %q", act.ID, act.ActorType)
	}

	view := actor.NewContextView(e.store, act.ContextBindings)
	maxAttempts := act.RetryAttempts
	if maxAttempts <= 0 {
		maxAttempts = e.retry.MaxAttempts
	}

	var outcome actor.Outcome
	var callErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if e.isCancelled() {
			return nil
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if act.SLA != nil {
			callCtx, cancel = context.WithTimeout(ctx, act.SLA.Deadline)
		}

		release, lockErr := e.store.Lock(view.LockModes())
		if lockErr != nil {
			if cancel != nil {
				cancel()
			}
			return lockErr
		}
		outcome, callErr = strategy.Execute(callCtx, act, tok, view)
		release()

		if act.SLA != nil && callCtx.Err() == context.DeadlineExceeded {
			callErr = &TimeoutError{ActivityID: act.ID, Deadline: act.SLA.Deadline.String()}
			outcome.Status = actor.StatusFailed
		}
		if cancel != nil {
			cancel()
		}

		if callErr == nil && outcome.Status != actor.StatusFailed {
			break
		}
		if outcome.Err != nil {
			callErr = outcome.Err
		}
		if attempt < maxAttempts {
			e.logger.Warn("activity attempt failed, retrying", "activity_id", act.ID, "attempt", attempt, "error", callErr)
			e.sleep(backoffDelay(e.retry, attempt))
		}
	}

	if callErr != nil || outcome.Status == actor.StatusFailed {
		failErr := &StrategyFailureError{ActivityID: act.ID, Attempts: maxAttempts, Err: callErr}
		if act.CompensateTo != "" {
			e.mu.Lock()
			edge := e.wf.Edge(act.CompensateTo)
			if edge == nil {
				e.mu.Unlock()
				return failErr
			}
			e.advance(tok, []*graph.Edge{edge})
			e.mu.Unlock()
			return nil
		}
		return failErr
	}

	if outcome.Status == actor.StatusSuspend {
		e.logger.Info("token suspended", "token_id", tok.ID, "activity_id", act.ID, "task_id", outcome.SuspensionHandle)
		e.mu.Lock()
		tok.Suspend(token.Suspension{HumanTaskID: outcome.SuspensionHandle})
		e.mu.Unlock()
		return nil
	}

	tok.MergeData(outcome.Outputs)
	if outcome.Metrics != nil {
		tok.RecordMetrics(outcome.Metrics)
	}
	if err := e.mergeContextWrites(act, outcome.Outputs); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	edges, err := e.selectEdges(tok, act.ID)
	if err != nil {
		return err
	}
	e.advance(tok, edges)
	return nil
}

// mergeContextWrites merges an activity's outputs into every context it
// bound write/read_write/publish (§4.7 step 1).
func (e *Engine) mergeContextWrites(act *graph.Activity, outputs map[string]interface{}) error {
	if len(outputs) == 0 {
		return nil
	}
	for _, b := range act.ContextBindings {
		switch b.Access {
		case graph.AccessWrite, graph.AccessReadWrite, graph.AccessPublish:
			if err := e.store.Merge(b.ContextID, outputs); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}
