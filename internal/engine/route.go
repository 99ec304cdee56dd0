package engine

import (
	"strings"

	"github.com/lyzr/workflow-engine/internal/expr"
	"github.com/lyzr/workflow-engine/internal/graph"
	"github.com/lyzr/workflow-engine/internal/token"
)

// buildEnv assembles the flat-name-with-dotted-path environment edge
// conditions and decision tables resolve against (§4.4): every declared
// context's current value keyed by context id, overlaid by the token's
// own data so that, per spec, a name present in token data always wins
// over a context of the same name.
func (e *Engine) buildEnv(tok *token.Token) map[string]interface{} {
	env := make(map[string]interface{}, len(e.wf.Contexts())+len(tok.Data))
	for id := range e.wf.Contexts() {
		v, err := e.store.Get(id)
		if err != nil {
			continue
		}
		env[id] = v
	}
	for k, v := range tok.Data {
		env[k] = v
	}
	return env
}

func resolveColumn(env map[string]interface{}, col string) interface{} {
	v, _ := expr.Resolve(env, strings.Split(col, "."))
	return v
}

// selectEdges applies §4.7's "Edge routing" rule over a node's outbound
// edges: one edge with no condition check, conditions evaluated for
// multiple edges, falling back to the default edge, failing with
// NoValidEdge when nothing is selectable.
func (e *Engine) selectEdges(tok *token.Token, nodeID string) ([]*graph.Edge, error) {
	edges := e.wf.Outbound(nodeID)
	if len(edges) == 0 {
		return nil, &NoValidEdgeError{NodeID: nodeID}
	}
	if len(edges) == 1 {
		return edges, nil
	}

	env := e.buildEnv(tok)
	var matched []*graph.Edge
	var defaultEdge *graph.Edge
	for _, ed := range edges {
		if ed.IsDefault {
			defaultEdge = ed
		}
		if ed.Condition == "" {
			continue
		}
		ok, err := e.exprEval.EvaluateCondition(ed.Condition, env)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, ed)
		}
	}
	if len(matched) > 0 {
		return matched, nil
	}
	if defaultEdge != nil {
		return []*graph.Edge{defaultEdge}, nil
	}
	return nil, &NoValidEdgeError{NodeID: nodeID}
}

// advance routes tok along a node's selected outbound edges: a single
// target moves the token in place, multiple targets fork it (§4.3). Newly
// forked children are registered with the engine and enqueued.
func (e *Engine) advance(tok *token.Token, edges []*graph.Edge) {
	if len(edges) == 1 {
		e.moveToken(tok, edges[0].TargetID)
		return
	}

	targets := make([]string, len(edges))
	for i, ed := range edges {
		targets[i] = ed.TargetID
	}
	children := tok.Fork(targets)
	e.forkTotal[tok.ForkID] = len(children)
	e.forkParent[tok.ForkID] = tok.ID
	e.forkChildren[tok.ForkID] = make([]string, 0, len(children))
	for _, c := range children {
		e.tokens[c.ID] = c
		e.forkChildren[tok.ForkID] = append(e.forkChildren[tok.ForkID], c.ID)
		e.enqueue(c.ID)
	}
}

// moveToken moves tok to next and, if tok belongs to an in-flight fork,
// checks whether it has just settled that fork (§4.3 join semantics).
func (e *Engine) moveToken(tok *token.Token, next string) {
	tok.Move(next)
	if tok.ForkID == "" {
		e.enqueue(tok.ID)
		return
	}
	if len(e.wf.Inbound(next)) >= 2 {
		e.settleFork(tok, next)
		return
	}
	e.enqueue(tok.ID)
}

// settleFork records tok as having reached a join point for its fork,
// deferring it from the active queue until every sibling has settled
// (reached a join node or terminated), then performs the join (§4.3).
func (e *Engine) settleFork(tok *token.Token, joinNode string) {
	e.forkJoinNode[tok.ForkID] = joinNode
	e.terminateOrJoin(tok)
}

// terminateOrJoin marks a forked token settled (arrived at a join or
// reached a terminal status) and, once every sibling has settled,
// performs the join: the parent token resumes at the recorded join node
// (or completes, if no sibling ever reached one) carrying the sibling
// merge rule's result (§4.3, token.MergeSiblings).
func (e *Engine) terminateOrJoin(tok *token.Token) {
	forkID := tok.ForkID
	if forkID == "" {
		return
	}
	settled := e.forkSettled[forkID]
	for _, id := range settled {
		if id == tok.ID {
			return
		}
	}
	e.forkSettled[forkID] = append(settled, tok.ID)

	if len(e.forkSettled[forkID]) < e.forkTotal[forkID] {
		return
	}

	siblings := make([]*token.Token, 0, len(e.forkChildren[forkID]))
	for _, id := range e.forkChildren[forkID] {
		siblings = append(siblings, e.tokens[id])
	}
	merged := token.MergeSiblings(siblings)

	// Each sibling that reached the join node is still "active" (moveToken
	// left it that way); settling the fork retires them into the parent, so
	// mark them terminal now or Status() would see active>0 on an otherwise
	// quiescent run forever (§8 token-accounting invariants). A sibling that
	// settled by failing is already StatusFailed and stays that way.
	for _, sib := range siblings {
		if sib.Status == token.StatusActive {
			sib.UpdateStatus(token.StatusCompleted)
		}
	}

	parent := e.tokens[e.forkParent[forkID]]
	parent.Data = merged

	joinNode, ok := e.forkJoinNode[forkID]
	delete(e.forkTotal, forkID)
	delete(e.forkParent, forkID)
	delete(e.forkChildren, forkID)
	delete(e.forkSettled, forkID)
	delete(e.forkJoinNode, forkID)

	// The parent carries the same ForkID as its children (set by
	// token.Fork); clear it now so a later node the parent passes through
	// with its own unrelated indegree >= 2 doesn't re-trigger a join against
	// bookkeeping that was just deleted.
	parent.ForkID = ""

	if !ok {
		parent.UpdateStatus(token.StatusCompleted)
		return
	}
	parent.Move(joinNode)
	e.enqueue(parent.ID)
}
