package vitalog

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

// ActionKind identifies which handler runs an action. The vocabulary is
// closed: a plan carrying any other value is rejected at acceptance time,
// never at dispatch time.
type ActionKind string

const (
	KindSearch        ActionKind = "search"
	KindAnalyze       ActionKind = "analyze"
	KindSynthesize    ActionKind = "synthesize"
	KindRespond       ActionKind = "respond"
	KindFetchActivity ActionKind = "fetch_activity"
	KindFetchSleep    ActionKind = "fetch_sleep"
	KindMemorySearch  ActionKind = "memory_search"
	KindMemoryStore   ActionKind = "memory_store"
)

// Valid reports whether k is one of the eight known kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case KindSearch, KindAnalyze, KindSynthesize, KindRespond,
		KindFetchActivity, KindFetchSleep, KindMemorySearch, KindMemoryStore:
		return true
	}
	return false
}

// NeedsDirective reports whether the kind requires a directive payload.
// The two device-data fetch kinds take no payload.
func (k ActionKind) NeedsDirective() bool {
	switch k {
	case KindFetchActivity, KindFetchSleep:
		return false
	}
	return true
}

// Priority bounds for actions within a plan. Lower priority runs earlier.
const (
	MinPriority = 1
	MaxPriority = 10
)

// Action is one schedulable unit of work. It is created once by the plan
// source (or a re-planning event), consumed exactly once by the executor,
// and never mutated after creation.
type Action struct {
	Kind         ActionKind `json:"kind"`
	Directive    string     `json:"directive,omitempty"`
	Priority     int        `json:"priority"`
	Dependencies []int      `json:"dependencies,omitempty"`
}

// Plan is an ordered collection of actions produced by one planning pass.
// It is immutable once handed to the executor; re-planning always installs
// a fresh Plan, never merges into an old one.
type Plan struct {
	actions []Action
}

// NewPlan validates the given actions and wraps them into a Plan.
// An empty action list is a valid plan and executes as a no-op.
func NewPlan(actions []Action) (*Plan, error) {
	seen := make(map[int]bool, len(actions))
	for i, a := range actions {
		if !a.Kind.Valid() {
			return nil, goerr.Wrap(ErrUnknownActionKind, "plan validation failed",
				goerr.V("index", i), goerr.V("kind", string(a.Kind)))
		}
		if a.Kind.NeedsDirective() && a.Directive == "" {
			return nil, goerr.Wrap(ErrMissingDirective, "plan validation failed",
				goerr.V("index", i), goerr.V("kind", string(a.Kind)))
		}
		if a.Priority < MinPriority || a.Priority > MaxPriority {
			return nil, goerr.Wrap(ErrPriorityOutOfRange, "plan validation failed",
				goerr.V("index", i), goerr.V("priority", a.Priority))
		}
		// Duplicate priorities are forbidden: the executor's attempt budget is
		// keyed by priority, so two actions sharing one value would share a
		// retry budget.
		if seen[a.Priority] {
			return nil, goerr.Wrap(ErrDuplicatePriority, "plan validation failed",
				goerr.V("index", i), goerr.V("priority", a.Priority))
		}
		seen[a.Priority] = true
	}

	copied := make([]Action, len(actions))
	copy(copied, actions)
	return &Plan{actions: copied}, nil
}

// planWire is the JSON wire shape of a plan. The action list is wrapped in
// an object so the structure-conversion output stays valid under JSON-object
// output modes, which cannot emit a top-level array.
type planWire struct {
	Actions []Action `json:"actions"`
}

// ParsePlan decodes a JSON plan object of the form {"actions": [...]} and
// validates it as a plan.
func ParsePlan(data []byte) (*Plan, error) {
	var wire planWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal plan object")
	}
	return NewPlan(wire.Actions)
}

// Actions returns a copy of the plan's action list in original order.
func (p *Plan) Actions() []Action {
	actions := make([]Action, len(p.actions))
	copy(actions, p.actions)
	return actions
}

// Len returns the number of actions in the plan.
func (p *Plan) Len() int {
	return len(p.actions)
}

// MarshalJSON serializes the plan in its wire shape, {"actions": [...]}.
func (p *Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(planWire{Actions: p.actions})
}
