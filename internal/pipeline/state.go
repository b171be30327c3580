package pipeline

// State is the lifecycle of an upload session.
//
//	Unstarted -> Active -> Finalizing -> Completed
//	                  \-> Aborted      \-> Aborted
type State int32

const (
	// Unstarted: no part has been enqueued and no session exists.
	Unstarted State = iota
	// Active: the session is open and parts are accepted.
	Active
	// Finalizing: no more parts are accepted; queued parts drain, then complete.
	Finalizing
	// Completed: the object was assembled, or nothing was ever enqueued.
	Completed
	// Aborted: a failure or cancellation ended the session.
	Aborted
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Active:
		return "active"
	case Finalizing:
		return "finalizing"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Completed || s == Aborted
}
