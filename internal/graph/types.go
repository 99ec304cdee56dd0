// Package graph holds the in-memory typed representation of a workflow:
// activities, decision nodes, events, edges and contexts, loaded once per
// run from an external validated document.
package graph

import "time"

// NodeType distinguishes the three node kinds a token may visit.
type NodeType string

const (
	NodeActivity NodeType = "activity"
	NodeDecision NodeType = "decision"
	NodeEvent    NodeType = "event"
)

// ActorType names the actor a human, AI agent, robot or application strategy
// dispatches work to.
type ActorType string

const (
	ActorHuman       ActorType = "human"
	ActorAIAgent     ActorType = "ai_agent"
	ActorRobot       ActorType = "robot"
	ActorApplication ActorType = "application"
)

// AccessMode is the context-binding access mode an activity declares.
type AccessMode string

const (
	AccessRead       AccessMode = "read"
	AccessWrite      AccessMode = "write"
	AccessReadWrite  AccessMode = "read_write"
	AccessSubscribe  AccessMode = "subscribe"
	AccessPublish    AccessMode = "publish"
)

// EventKind distinguishes start, intermediate and end events.
type EventKind string

const (
	EventStart        EventKind = "start"
	EventIntermediate EventKind = "intermediate"
	EventEnd          EventKind = "end"
)

// ContextType is the declared kind of a context's payload.
type ContextType string

const (
	ContextDocument ContextType = "document"
	ContextData     ContextType = "data"
	ContextConfig   ContextType = "config"
	ContextState    ContextType = "state"
	ContextMemory   ContextType = "memory"
	ContextArtifact ContextType = "artifact"
)

// SyncPattern selects the Context Store semantics for a context (§4.2).
type SyncPattern string

const (
	SyncSharedState     SyncPattern = "shared_state"
	SyncMessagePassing  SyncPattern = "message_passing"
	SyncBlackboard      SyncPattern = "blackboard"
	SyncEventSourcing   SyncPattern = "event_sourcing"
)

// Visibility scopes who may see a context's value.
type Visibility string

const (
	VisibilityPrivate    Visibility = "private"
	VisibilityWorkflow   Visibility = "workflow"
	VisibilityCollection Visibility = "collection"
	VisibilityGlobal     Visibility = "global"
)

// Lifecycle controls whether a context survives run end.
type Lifecycle string

const (
	LifecycleEphemeral  Lifecycle = "ephemeral"
	LifecyclePersistent Lifecycle = "persistent"
)

// HitPolicy is one of the six DMN-style hit policies a decision table may
// declare (§4.4).
type HitPolicy string

const (
	HitUnique    HitPolicy = "unique"
	HitFirst     HitPolicy = "first"
	HitPriority  HitPolicy = "priority"
	HitAny       HitPolicy = "any"
	HitCollect   HitPolicy = "collect"
	HitRuleOrder HitPolicy = "rule_order"
)

// Aggregator is the optional `collect` hit-policy aggregator.
type Aggregator string

const (
	AggregatorNone  Aggregator = ""
	AggregatorSum   Aggregator = "sum"
	AggregatorMin   Aggregator = "min"
	AggregatorMax   Aggregator = "max"
	AggregatorCount Aggregator = "count"
)

// ContextBinding binds an activity to a declared context under an access
// mode.
type ContextBinding struct {
	ContextID string     `json:"context_id"`
	Access    AccessMode `json:"access_mode"`
	Required  bool       `json:"required,omitempty"`
}

// Program is a code body or MCP tool reference an application/robot/agent
// activity may carry.
type Program struct {
	Kind string `json:"kind"` // "code" | "mcp_tool"
	Ref  string `json:"ref,omitempty"`
	Body string `json:"body,omitempty"`
}

// SLA declares the deadline an activity must complete within.
type SLA struct {
	Deadline time.Duration `json:"deadline"`
}

// Analytics is opaque reporting metadata attached to an activity.
type Analytics map[string]interface{}

// Activity is a node attributing a unit of work to one actor (§3).
type Activity struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	RoleID          string           `json:"role_id"`
	ActorType       ActorType        `json:"actor_type"`
	SystemRef       string           `json:"system_ref,omitempty"`
	MachineRef      string           `json:"machine_ref,omitempty"`
	ContextBindings []ContextBinding `json:"context_bindings,omitempty"`
	AccessRights    []string         `json:"access_rights,omitempty"`
	Programs        []Program        `json:"programs,omitempty"`
	SLA             *SLA             `json:"sla,omitempty"`
	Analytics       Analytics        `json:"analytics,omitempty"`
	Expansion       string           `json:"expansion,omitempty"` // nested workflow id, see SPEC_FULL §4.8

	Description      string                 `json:"description,omitempty"`
	Skills           []string               `json:"skills,omitempty"`
	ToolRequirements []string               `json:"tool_requirements,omitempty"`
	Inputs           []string               `json:"inputs,omitempty"`
	OutputSchema     map[string]interface{} `json:"output_schema,omitempty"`

	Priority      string `json:"priority,omitempty"` // human-task priority, see HumanTask
	RetryAttempts int    `json:"retry_attempts,omitempty"`
	CompensateTo  string `json:"compensate_to,omitempty"` // id of the edge followed once retries are exhausted
}

// Event is a start/intermediate/end node.
type Event struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Kind EventKind `json:"kind"`
}

// Edge is a directed, optionally conditional transition between nodes (§3).
type Edge struct {
	ID         string `json:"id"`
	SourceID   string `json:"source_id"`
	TargetID   string `json:"target_id"`
	SourceType NodeType `json:"source_type"`
	TargetType NodeType `json:"target_type"`
	Condition  string `json:"condition,omitempty"`
	IsDefault  bool   `json:"is_default,omitempty"`
}

// Context is a declared piece of shared state (§3).
type Context struct {
	ID           string                 `json:"id"`
	Type         ContextType            `json:"type"`
	SyncPattern  SyncPattern            `json:"sync_pattern"`
	Schema       map[string]interface{} `json:"schema,omitempty"`
	InitialValue interface{}            `json:"initial_value,omitempty"`
	Visibility   Visibility             `json:"visibility"`
	Lifecycle    Lifecycle              `json:"lifecycle"`
	TTL          time.Duration          `json:"ttl,omitempty"`
}

// RuleEntry is one cell of a decision-table rule: either an input-column
// match expression or an output-column constant/expression.
type RuleEntry struct {
	Expression string `json:"expression"`
}

// Rule is one row of a decision table.
type Rule struct {
	InputEntries  []RuleEntry `json:"input_entries"`
	OutputEntries []RuleEntry `json:"output_entries"`
	OutputEdgeID  string      `json:"output_edge_id,omitempty"`
	Priority      int         `json:"priority,omitempty"` // used by HitPriority, higher wins
}

// DecisionTable is a DMN-style rule table (§3, §4.4).
type DecisionTable struct {
	Inputs     []string   `json:"inputs"`
	Outputs    []string   `json:"outputs"`
	HitPolicy  HitPolicy  `json:"hit_policy"`
	Aggregator Aggregator `json:"aggregator,omitempty"`
	Rules      []Rule     `json:"rules"`
}

// DecisionNode is a node carrying a Decision Table.
type DecisionNode struct {
	ID    string        `json:"id"`
	Name  string        `json:"name"`
	Table DecisionTable `json:"table"`
}

// Document is the top-level workflow document as defined by §6.
type Document struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Version       string                 `json:"version"`
	Description   string                 `json:"description,omitempty"`
	Activities    []Activity             `json:"activities"`
	Edges         []Edge                 `json:"edges"`
	Events        []Event                `json:"events"`
	DecisionNodes []DecisionNode         `json:"decision_nodes"`
	Contexts      []Context              `json:"contexts"`
	SLA           *SLA                   `json:"sla,omitempty"`
	Analytics     Analytics              `json:"analytics,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}
