package ingest

import "fmt"

// State is the phase of one creation run.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateDecoding
	StateNormalizing
	StateCacheWriting
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:         "idle",
	StateRequesting:   "requesting",
	StateStreaming:    "streaming",
	StateDecoding:     "decoding",
	StateNormalizing:  "normalizing",
	StateCacheWriting: "cache_writing",
	StateCompleted:    "completed",
	StateFailed:       "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transitions can follow s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Transition is reported to the Observer on every state change.
type Transition struct {
	RunID string
	From  State
	To    State
	Frame int   // frames fully applied so far
	Err   error // set when To is StateFailed
}

// Observer receives run transitions. It is called synchronously on the
// run's goroutine.
type Observer func(Transition)
