package workflow

import "sort"

// Reserved state keys owned by the framework. The Runner sets both on every
// run; values a Channel placed under these keys are overridden.
const (
	// RunIDKey holds the 8-character lowercase hex run identifier.
	RunIDKey = "run_id"
	// WorkflowNameKey holds the name of the handler being executed.
	WorkflowNameKey = "workflow_name"
)

// State is the unit of data flow through handlers: a string-keyed map of
// dynamically typed values. There is no schema; callers agree on keys out of
// band. By convention handlers treat their input as immutable and return a
// new State, typically built with Clone or With.
type State map[string]any

// Clone returns a shallow copy of the state. Cloning a nil state yields an
// empty, non-nil State.
func (s State) Clone() State {
	out := make(State, len(s)+2)
	for k, v := range s {
		out[k] = v
	}
	return out
}

// With returns a copy of the state with key set to value. The receiver is
// left untouched, matching the copy-on-write convention handlers follow.
func (s State) With(key string, value any) State {
	out := s.Clone()
	out[key] = value
	return out
}

// Keys returns the state's keys in sorted order.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
