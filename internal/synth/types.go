package synth

// Status is a chunk's lifecycle state.
type Status int

const (
	StatusPending Status = iota
	StatusInFlight
	StatusRetrying
	StatusDone
	StatusFailed
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInFlight:
		return "in-flight"
	case StatusRetrying:
		return "retrying"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// validTransitions holds the legal chunk lifecycle moves. Done and
// Failed are terminal.
var validTransitions = map[Status][]Status{
	StatusPending:  {StatusInFlight},
	StatusInFlight: {StatusDone, StatusRetrying, StatusFailed},
	StatusRetrying: {StatusInFlight, StatusFailed},
}

// canTransition reports whether a chunk may move from one status to
// another.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// RequestInfo identifies one provider request for support correlation.
type RequestInfo struct {
	ID    string
	Model string
}

// Event describes one chunk state transition, delivered to the
// Observer as the dispatcher drives chunks through their lifecycle.
type Event struct {
	ChunkIndex int
	From, To   Status
	Attempt    int
	Err        error
}

// Observer consumes pipeline progress. Implementations must be safe
// for concurrent use when the pipeline runs with concurrency above 1.
type Observer interface {
	// JobStarted reports the total chunk count before dispatch begins.
	JobStarted(chunks int)
	// ChunkTransition reports one chunk lifecycle change.
	ChunkTransition(Event)
}

// NopObserver discards all progress events.
type NopObserver struct{}

func (NopObserver) JobStarted(int) {}

func (NopObserver) ChunkTransition(Event) {}
