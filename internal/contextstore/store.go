// Package contextstore implements the Context Store (§4.2): named,
// schema-typed shared state with read/write/merge and subscribe/publish
// modes, one per declared context for the duration of a run.
package contextstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lyzr/workflow-engine/internal/graph"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Event is delivered to subscribers of a context (§4.2 subscribe/publish).
type Event struct {
	ContextID string
	Value     interface{}
	At        time.Time
}

// Observer receives published events.
type Observer func(Event)

// Notifier optionally mirrors context writes to an external channel (e.g.
// Redis pub/sub, SPEC_FULL §1.2) for cross-process visibility. A nil
// Notifier disables mirroring; single-process operation never requires it.
type Notifier interface {
	Publish(contextID string, value interface{}) error
}

type entry struct {
	mu        sync.RWMutex
	decl      *graph.Context
	validator *jsonschema.Schema

	// shared_state / blackboard "current" snapshot view
	value interface{}

	// message_passing FIFO queue
	queue []interface{}

	// blackboard: union of every write, in arrival order
	board []interface{}

	// event_sourcing: immutable append-only log
	log []interface{}

	subs []Observer
}

// Store holds the current value of every declared context for one run.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*entry
	notifier Notifier
}

// New builds a Store from a workflow's declared contexts, seeding each
// with its InitialValue and compiling its schema validator if present.
func New(contexts map[string]*graph.Context, notifier Notifier) (*Store, error) {
	s := &Store{entries: make(map[string]*entry), notifier: notifier}
	for id, decl := range contexts {
		validator, err := compileSchema(id, decl.Schema)
		if err != nil {
			return nil, err
		}
		e := &entry{decl: decl, validator: validator}
		if decl.InitialValue != nil {
			switch decl.SyncPattern {
			case graph.SyncMessagePassing:
				e.queue = append(e.queue, decl.InitialValue)
			case graph.SyncBlackboard:
				e.board = append(e.board, decl.InitialValue)
			case graph.SyncEventSourcing:
				e.log = append(e.log, decl.InitialValue)
			default:
				e.value = decl.InitialValue
			}
		}
		s.entries[id] = e
	}
	return s, nil
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return nil, &NotFoundError{ContextID: id}
	}
	return e, nil
}

// Get reads a context's current value under the shared_state (default)
// access pattern — equivalent to Read(id, graph.AccessRead).
func (s *Store) Get(id string) (interface{}, error) {
	return s.Read(id, graph.AccessRead)
}

// Read resolves a context's value for the given access mode (§4.2):
// shared_state and blackboard reads always see the full current snapshot;
// message_passing drains the queue under "read"/"read_write" and peeks
// (non-destructively) under "subscribe"; event_sourcing folds the log.
func (s *Store) Read(id string, mode graph.AccessMode) (interface{}, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if e.decl.SyncPattern == graph.SyncMessagePassing {
		// draining the queue mutates it even under a plain "read" request, so
		// this always needs the exclusive lock regardless of mode.
		e.mu.Lock()
		defer e.mu.Unlock()
	} else {
		e.mu.RLock()
		defer e.mu.RUnlock()
	}
	return readValue(e, mode), nil
}

// GetLocked behaves like Read but assumes the caller already holds id's
// lock in the mode its binding requires (acquired via Lock). ContextView
// uses this from inside an engine-held lock region around a strategy call
// so a bound context read doesn't re-enter the same non-reentrant
// per-context mutex a second time from the same goroutine.
func (s *Store) GetLocked(id string, mode graph.AccessMode) (interface{}, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return readValue(e, mode), nil
}

func readValue(e *entry, mode graph.AccessMode) interface{} {
	switch e.decl.SyncPattern {
	case graph.SyncMessagePassing:
		if mode == graph.AccessSubscribe {
			out := make([]interface{}, len(e.queue))
			copy(out, e.queue)
			return out
		}
		out := e.queue
		e.queue = nil
		return out
	case graph.SyncBlackboard:
		out := make([]interface{}, len(e.board))
		copy(out, e.board)
		return out
	case graph.SyncEventSourcing:
		return foldEvents(e.log)
	default: // shared_state
		return e.value
	}
}

// foldEvents reconstructs a value by folding an event_sourcing log: each
// event shallow-merges over the accumulator when both are maps, else
// replaces it outright — the same rule Merge uses for a single write.
func foldEvents(log []interface{}) interface{} {
	var acc interface{}
	for _, ev := range log {
		acc = mergeValue(acc, ev)
	}
	return acc
}

func mergeValue(base, partial interface{}) interface{} {
	bm, bok := base.(map[string]interface{})
	pm, pok := partial.(map[string]interface{})
	if bok && pok {
		merged := make(map[string]interface{}, len(bm)+len(pm))
		for k, v := range bm {
			merged[k] = v
		}
		for k, v := range pm {
			merged[k] = v
		}
		return merged
	}
	return partial
}

// Set replaces a context's value outright (§4.2). For message_passing this
// appends a single message; for blackboard it appends a new fact; for
// event_sourcing it appends a new immutable event. Schema mismatches fail
// the operation without mutating state.
func (s *Store) Set(id string, value interface{}) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := validate(e.validator, value); err != nil {
		return &SchemaMismatchError{ContextID: id, Err: err}
	}

	e.mu.Lock()
	writeValue(e, value)
	e.mu.Unlock()

	s.mirror(id, value)
	return nil
}

// SetLocked behaves like Set but assumes the caller already holds id's
// exclusive lock (acquired via Lock). ContextView uses this from inside an
// engine-held lock region around a strategy call so a bound context write
// doesn't re-enter the same non-reentrant per-context mutex a second time
// from the same goroutine — which would self-deadlock rather than race.
func (s *Store) SetLocked(id string, value interface{}) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := validate(e.validator, value); err != nil {
		return &SchemaMismatchError{ContextID: id, Err: err}
	}
	writeValue(e, value)
	s.mirror(id, value)
	return nil
}

func writeValue(e *entry, value interface{}) {
	switch e.decl.SyncPattern {
	case graph.SyncMessagePassing:
		e.queue = append(e.queue, value)
	case graph.SyncBlackboard:
		e.board = append(e.board, value)
	case graph.SyncEventSourcing:
		e.log = append(e.log, value)
	default:
		e.value = value
	}
}

// Merge shallow-merges partial into a context's value for mapping values;
// for non-mapping values it behaves as a replacement (§4.2). Schema
// conformance is re-checked on the merged result; mismatches fail the
// operation without mutating state.
func (s *Store) Merge(id string, partial interface{}) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if isAppendOnly(e.decl.SyncPattern) {
		// merge is atomic with respect to concurrent get (§4.3): appending
		// under the same lock satisfies that for append-only patterns.
		return s.Set(id, partial)
	}

	e.mu.Lock()
	merged := mergeValue(e.value, partial)
	if err := validate(e.validator, merged); err != nil {
		e.mu.Unlock()
		return &SchemaMismatchError{ContextID: id, Err: err}
	}
	e.value = merged
	e.mu.Unlock()

	s.mirror(id, merged)
	return nil
}

// MergeLocked behaves like Merge but assumes the caller already holds id's
// exclusive lock (acquired via Lock), for the same re-entrancy reason as
// SetLocked.
func (s *Store) MergeLocked(id string, partial interface{}) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if isAppendOnly(e.decl.SyncPattern) {
		return s.SetLocked(id, partial)
	}

	merged := mergeValue(e.value, partial)
	if err := validate(e.validator, merged); err != nil {
		return &SchemaMismatchError{ContextID: id, Err: err}
	}
	e.value = merged
	s.mirror(id, merged)
	return nil
}

func isAppendOnly(p graph.SyncPattern) bool {
	switch p {
	case graph.SyncMessagePassing, graph.SyncBlackboard, graph.SyncEventSourcing:
		return true
	}
	return false
}

func (s *Store) mirror(id string, value interface{}) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Publish(id, value)
}

// Subscribe registers an observer for a context's publish events,
// returning an unsubscribe function.
func (s *Store) Subscribe(id string, obs Observer) (func(), error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	idx := len(e.subs)
	e.subs = append(e.subs, obs)
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if idx < len(e.subs) {
			e.subs[idx] = nil
		}
	}, nil
}

// Publish delivers an event to every live subscriber of a context and
// records it in the event_sourcing/blackboard/message_passing backing
// store as appropriate, so Read still sees it afterwards.
func (s *Store) Publish(id string, value interface{}) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := s.Set(id, value); err != nil {
		return err
	}

	e.mu.RLock()
	subs := snapshotSubs(e)
	e.mu.RUnlock()

	notifySubs(id, value, subs)
	return nil
}

// PublishLocked behaves like Publish but assumes the caller already holds
// id's exclusive lock (acquired via Lock), for the same re-entrancy reason
// as SetLocked.
func (s *Store) PublishLocked(id string, value interface{}) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := s.SetLocked(id, value); err != nil {
		return err
	}

	notifySubs(id, value, snapshotSubs(e))
	return nil
}

func snapshotSubs(e *entry) []Observer {
	subs := make([]Observer, len(e.subs))
	copy(subs, e.subs)
	return subs
}

func notifySubs(id string, value interface{}, subs []Observer) {
	event := Event{ContextID: id, Value: value, At: time.Now()}
	for _, obs := range subs {
		if obs != nil {
			obs(event)
		}
	}
}

// Lock acquires every named context's lock in lexicographic id order
// (§5), shared for read/subscribe and exclusive for write/publish/
// read_write, to avoid deadlock within a single strategy call. It returns
// a release function that must be called exactly once.
func (s *Store) Lock(modes map[string]graph.AccessMode) (func(), error) {
	ids := make([]string, 0, len(modes))
	for id := range modes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	entries := make([]*entry, 0, len(ids))
	for _, id := range ids {
		e, err := s.lookup(id)
		if err != nil {
			// Release whatever we already acquired before failing.
			releaseAll(entries, ids, modes)
			return nil, err
		}
		entries = append(entries, e)
	}

	for i, id := range ids {
		if isExclusive(modes[id]) {
			entries[i].mu.Lock()
		} else {
			entries[i].mu.RLock()
		}
	}

	return func() { releaseAll(entries, ids, modes) }, nil
}

func releaseAll(entries []*entry, ids []string, modes map[string]graph.AccessMode) {
	for i := len(entries) - 1; i >= 0; i-- {
		if isExclusive(modes[ids[i]]) {
			entries[i].mu.Unlock()
		} else {
			entries[i].mu.RUnlock()
		}
	}
}

func isExclusive(mode graph.AccessMode) bool {
	switch mode {
	case graph.AccessWrite, graph.AccessReadWrite, graph.AccessPublish:
		return true
	}
	return false
}

// Snapshot returns the materialized current value of every context whose
// lifecycle is "persistent", keyed by context id, for the caller to
// persist beyond run end (§4.2); ephemeral contexts are omitted since they
// are discarded when the run ends.
func (s *Store) Snapshot() (map[string]interface{}, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	out := make(map[string]interface{})
	for _, id := range ids {
		e, err := s.lookup(id)
		if err != nil {
			return nil, err
		}
		if e.decl.Lifecycle != graph.LifecyclePersistent {
			continue
		}
		v, err := s.Get(id)
		if err != nil {
			return nil, fmt.Errorf("snapshot context %q: %w", id, err)
		}
		out[id] = v
	}
	return out, nil
}
