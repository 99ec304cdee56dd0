// Package token implements the execution cursor that moves through a
// workflow graph: the Token and its append-only History (§3, §4.3).
package token

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a token (§3).
type Status string

const (
	StatusActive    Status = "active"
	StatusWaiting   Status = "waiting"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Action names a history-entry kind.
type Action string

const (
	ActionCreated  Action = "created"
	ActionEntered  Action = "entered"
	ActionExited   Action = "exited"
	ActionStatus   Action = "status_changed"
	ActionForked   Action = "forked"
	ActionJoined   Action = "joined"
	ActionSuspended Action = "suspended"
	ActionResumed  Action = "resumed"
)

// HistoryEntry is one append-only record of a token's passage (§3).
type HistoryEntry struct {
	NodeID    string                 `json:"node_id"`
	Action    Action                 `json:"action"`
	Timestamp time.Time              `json:"timestamp"`
	Analytics map[string]interface{} `json:"analytics,omitempty"`
}

// Suspension names the single outstanding suspension a waiting token holds
// (§3 invariant).
type Suspension struct {
	HumanTaskID string
	SubRunID    string
}

// Token is the runtime cursor carrying local data, history and status
// (§3).
type Token struct {
	ID            string
	WorkflowID    string
	CurrentNodeID string
	Status        Status
	Data          map[string]interface{}
	History       []HistoryEntry
	ParentTokenID string
	ForkID        string // groups siblings created by the same fork, for join matching

	suspension *Suspension
	now        func() time.Time
}

// New creates a token positioned at startNode with the given initial data,
// recording the "created" history entry.
func New(workflowID, startNode string, data map[string]interface{}) *Token {
	return newAt(workflowID, startNode, data, time.Now)
}

// newAt is the test seam: lets tests supply a deterministic clock.
func newAt(workflowID, startNode string, data map[string]interface{}, now func() time.Time) *Token {
	if data == nil {
		data = make(map[string]interface{})
	}
	t := &Token{
		ID:            uuid.New().String(),
		WorkflowID:    workflowID,
		CurrentNodeID: startNode,
		Status:        StatusActive,
		Data:          data,
		now:           now,
	}
	t.record(startNode, ActionCreated, nil)
	return t
}

func (t *Token) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

func (t *Token) record(nodeID string, action Action, analytics map[string]interface{}) {
	t.History = append(t.History, HistoryEntry{
		NodeID:    nodeID,
		Action:    action,
		Timestamp: t.clock(),
		Analytics: analytics,
	})
}

// Move advances the token to next, recording "exited" for the current node
// and "entered" for next, and resets status to active (§4.3).
func (t *Token) Move(next string) {
	t.record(t.CurrentNodeID, ActionExited, nil)
	t.CurrentNodeID = next
	t.Status = StatusActive
	t.record(next, ActionEntered, nil)
}

// UpdateStatus records a status transition.
func (t *Token) UpdateStatus(status Status) {
	t.Status = status
	t.record(t.CurrentNodeID, ActionStatus, map[string]interface{}{"status": string(status)})
}

// MergeData shallow-merges partial into the token's data.
func (t *Token) MergeData(partial map[string]interface{}) {
	if t.Data == nil {
		t.Data = make(map[string]interface{})
	}
	for k, v := range partial {
		t.Data[k] = v
	}
}

// Suspend marks the token waiting on a single outstanding suspension
// (either a human task id or a sub-workflow run id), per the §3 invariant.
func (t *Token) Suspend(s Suspension) {
	t.suspension = &s
	t.UpdateStatus(StatusWaiting)
	t.record(t.CurrentNodeID, ActionSuspended, nil)
}

// Pending returns the token's outstanding suspension, or nil if none.
func (t *Token) Pending() *Suspension {
	return t.suspension
}

// Resume clears the outstanding suspension and records "resumed". Callers
// still need to Move/UpdateStatus as appropriate.
func (t *Token) Resume() {
	t.suspension = nil
	t.record(t.CurrentNodeID, ActionResumed, nil)
}

// RecordMetrics attaches strategy-call metrics to the most recent history
// entry for the current node (normally the "entered" record Move just
// wrote), landing the per-attempt analytics spec.md §4.1 names on an
// activity without requiring a separate history action.
func (t *Token) RecordMetrics(metrics map[string]interface{}) {
	for i := len(t.History) - 1; i >= 0; i-- {
		if t.History[i].NodeID != t.CurrentNodeID {
			break
		}
		if t.History[i].Analytics == nil {
			t.History[i].Analytics = make(map[string]interface{}, len(metrics))
		}
		for k, v := range metrics {
			t.History[i].Analytics[k] = v
		}
		return
	}
}

// Fork produces len(targets) sibling tokens sharing a snapshot of Data and
// ParentTokenID set to t.ID; t itself transitions to waiting until all
// children reach a join node or terminate (§4.3).
func (t *Token) Fork(targets []string) []*Token {
	forkID := uuid.New().String()
	t.ForkID = forkID
	children := make([]*Token, 0, len(targets))
	for _, target := range targets {
		snapshot := make(map[string]interface{}, len(t.Data))
		for k, v := range t.Data {
			snapshot[k] = v
		}
		child := newAt(t.WorkflowID, target, snapshot, t.now)
		child.ParentTokenID = t.ID
		child.ForkID = forkID
		children = append(children, child)
	}
	t.UpdateStatus(StatusWaiting)
	t.record(t.CurrentNodeID, ActionForked, map[string]interface{}{"children": len(children)})
	return children
}

// MergeSiblings implements the default join merge rule of §4.3:
// last-writer-wins by finish time (the last history timestamp of each
// sibling), ties broken by token id. Returns the merged data map.
func MergeSiblings(siblings []*Token) map[string]interface{} {
	type entry struct {
		tok *Token
		at  time.Time
	}
	ordered := make([]entry, 0, len(siblings))
	for _, s := range siblings {
		finish := time.Time{}
		if n := len(s.History); n > 0 {
			finish = s.History[n-1].Timestamp
		}
		ordered = append(ordered, entry{tok: s, at: finish})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].at.Equal(ordered[j].at) {
			return ordered[i].tok.ID < ordered[j].tok.ID
		}
		return ordered[i].at.Before(ordered[j].at)
	})

	merged := make(map[string]interface{})
	for _, e := range ordered {
		for k, v := range e.tok.Data {
			merged[k] = v
		}
	}
	return merged
}
