package graph

import "fmt"

// Node is the workflow graph's uniform node handle: exactly one of
// Activity, Event or Decision is set, selected by Type.
type Node struct {
	ID       string
	Type     NodeType
	Activity *Activity
	Event    *Event
	Decision *DecisionNode
}

// Workflow is the immutable, loaded representation of a workflow document
// (§4.1). It is built once per run and never mutated afterwards — patching
// (SPEC_FULL §4.9) produces a new Workflow rather than mutating this one.
type Workflow struct {
	ID          string
	Name        string
	Version     string
	Description string
	Metadata    map[string]interface{}

	nodes    map[string]*Node
	outbound map[string][]*Edge
	inbound  map[string][]*Edge
	contexts map[string]*Context
	edgesByID map[string]*Edge
}

// Load validates and compiles a Document into an immutable Workflow.
// Returns *ValidationError for malformed documents and *ReferenceError for
// dangling ids — both abort the load.
func Load(doc *Document) (*Workflow, error) {
	if doc.ID == "" {
		return nil, &ValidationError{Field: "id", Reason: "must not be empty"}
	}

	wf := &Workflow{
		ID:          doc.ID,
		Name:        doc.Name,
		Version:     doc.Version,
		Description: doc.Description,
		Metadata:    doc.Metadata,
		nodes:       make(map[string]*Node),
		outbound:    make(map[string][]*Edge),
		inbound:     make(map[string][]*Edge),
		contexts:    make(map[string]*Context),
		edgesByID:   make(map[string]*Edge),
	}

	for i := range doc.Activities {
		a := &doc.Activities[i]
		if a.ID == "" {
			return nil, &ValidationError{Field: "activities[].id", Reason: "must not be empty"}
		}
		if _, dup := wf.nodes[a.ID]; dup {
			return nil, &ValidationError{Field: "activities[].id", Reason: fmt.Sprintf("duplicate node id %q", a.ID)}
		}
		wf.nodes[a.ID] = &Node{ID: a.ID, Type: NodeActivity, Activity: a}
	}
	for i := range doc.Events {
		e := &doc.Events[i]
		if e.ID == "" {
			return nil, &ValidationError{Field: "events[].id", Reason: "must not be empty"}
		}
		if _, dup := wf.nodes[e.ID]; dup {
			return nil, &ValidationError{Field: "events[].id", Reason: fmt.Sprintf("duplicate node id %q", e.ID)}
		}
		wf.nodes[e.ID] = &Node{ID: e.ID, Type: NodeEvent, Event: e}
	}
	for i := range doc.DecisionNodes {
		d := &doc.DecisionNodes[i]
		if d.ID == "" {
			return nil, &ValidationError{Field: "decision_nodes[].id", Reason: "must not be empty"}
		}
		if _, dup := wf.nodes[d.ID]; dup {
			return nil, &ValidationError{Field: "decision_nodes[].id", Reason: fmt.Sprintf("duplicate node id %q", d.ID)}
		}
		wf.nodes[d.ID] = &Node{ID: d.ID, Type: NodeDecision, Decision: d}
	}

	for i := range doc.Contexts {
		c := &doc.Contexts[i]
		if c.ID == "" {
			return nil, &ValidationError{Field: "contexts[].id", Reason: "must not be empty"}
		}
		wf.contexts[c.ID] = c
	}

	// Every edge endpoint must resolve to a node in the workflow (§3 invariant).
	for i := range doc.Edges {
		e := &doc.Edges[i]
		if _, ok := wf.nodes[e.SourceID]; !ok {
			return nil, &ReferenceError{Kind: "node", ID: e.SourceID, From: fmt.Sprintf("edge %q source", e.ID)}
		}
		if _, ok := wf.nodes[e.TargetID]; !ok {
			return nil, &ReferenceError{Kind: "node", ID: e.TargetID, From: fmt.Sprintf("edge %q target", e.ID)}
		}
		wf.outbound[e.SourceID] = append(wf.outbound[e.SourceID], e)
		wf.inbound[e.TargetID] = append(wf.inbound[e.TargetID], e)
		wf.edgesByID[e.ID] = e
	}

	// Every context binding must resolve to a defined context (§3 invariant).
	for _, n := range wf.nodes {
		if n.Activity == nil {
			continue
		}
		for _, b := range n.Activity.ContextBindings {
			if _, ok := wf.contexts[b.ContextID]; !ok {
				return nil, &ReferenceError{Kind: "context", ID: b.ContextID, From: fmt.Sprintf("activity %q binding", n.ID)}
			}
		}
	}

	// At most one default edge per decision node; a decision node with no
	// default edge is accepted.
	for _, n := range wf.nodes {
		if n.Decision == nil {
			continue
		}
		defaults := 0
		for _, e := range wf.outbound[n.ID] {
			if e.IsDefault {
				defaults++
			}
		}
		if defaults > 1 {
			return nil, &ValidationError{Field: "edges[].is_default", Reason: fmt.Sprintf("decision node %q has %d default edges, want at most 1", n.ID, defaults)}
		}
	}

	return wf, nil
}

// Node returns the node with the given id, or nil if none exists.
func (w *Workflow) Node(id string) *Node {
	return w.nodes[id]
}

// Outbound returns the edges leaving node id, in declaration order.
func (w *Workflow) Outbound(id string) []*Edge {
	return w.outbound[id]
}

// Inbound returns the edges entering node id, in declaration order.
func (w *Workflow) Inbound(id string) []*Edge {
	return w.inbound[id]
}

// Edge looks up an edge by id.
func (w *Workflow) Edge(id string) *Edge {
	return w.edgesByID[id]
}

// Context looks up a declared context by id.
func (w *Workflow) Context(id string) *Context {
	return w.contexts[id]
}

// Contexts returns every declared context.
func (w *Workflow) Contexts() map[string]*Context {
	return w.contexts
}

// StartNodes returns nodes with no inbound edge; if none qualify (e.g. a
// cyclic graph), falls back to nodes whose Event.Kind is "start" (§4.1).
func (w *Workflow) StartNodes() []*Node {
	var noInbound []*Node
	for id, n := range w.nodes {
		if len(w.inbound[id]) == 0 {
			noInbound = append(noInbound, n)
		}
	}
	if len(noInbound) > 0 {
		return noInbound
	}

	var starts []*Node
	for _, n := range w.nodes {
		if n.Event != nil && n.Event.Kind == EventStart {
			starts = append(starts, n)
		}
	}
	return starts
}
