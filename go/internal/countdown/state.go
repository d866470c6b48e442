package countdown

import "time"

// State is the lifecycle state of a Timer.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// Reason records which operation caused a state change.
type Reason string

const (
	ReasonStart    Reason = "start"
	ReasonResume   Reason = "resume"
	ReasonPause    Reason = "pause"
	ReasonStop     Reason = "stop"
	ReasonReset    Reason = "reset"
	ReasonComplete Reason = "complete"
)

// EventKind identifies what an Event carries
type EventKind int

const (
	// EventTick carries the current remaining seconds. Emitted on start/resume
	// and after every one-second decrement.
	EventTick EventKind = iota
	// EventCompleted is emitted once per run that counts down to zero.
	EventCompleted
	// EventStateChanged is emitted on every lifecycle transition.
	EventStateChanged
)

func (k EventKind) String() string {
	switch k {
	case EventTick:
		return "tick"
	case EventCompleted:
		return "completed"
	case EventStateChanged:
		return "state_changed"
	default:
		return "unknown"
	}
}

// Event is a single notification delivered to Timer listeners.
type Event struct {
	Kind      EventKind
	Remaining int
	Total     int
	From      State
	To        State
	Reason    Reason
	At        time.Time
}

// Listener receives timer events. Listeners of one Timer are never invoked
// concurrently.
type Listener func(Event)

// Snapshot is a point-in-time view of a Timer.
type Snapshot struct {
	State     State
	Remaining int
	Total     int
	Running   bool
}
