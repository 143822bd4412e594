package fleet

import "time"

// DefaultStaleThreshold is how long a heartbeat keeps an online device live.
const DefaultStaleThreshold = 40 * time.Second

// Liveness derives whether a device is reachable. The pushed flag alone is not
// trusted: a crashed device never reports its own offline transition.
type Liveness struct {
	Threshold time.Duration
	Now       func() time.Time
}

// NewLiveness returns an evaluator with the given threshold, or the default when threshold <= 0.
func NewLiveness(threshold time.Duration) Liveness {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	return Liveness{Threshold: threshold, Now: time.Now}
}

// IsLive reports whether d is online and heard from within the threshold of ref.
// A zero ref means the evaluator's current time.
func (l Liveness) IsLive(d Device, ref time.Time) bool {
	if d.Status != StatusOnline || d.LastSeen == nil {
		return false
	}
	if ref.IsZero() {
		ref = l.now()
	}
	threshold := l.Threshold
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	return ref.Sub(*d.LastSeen) < threshold
}

// State classifies d for bucketing: defective wins over liveness.
func (l Liveness) State(d Device, ref time.Time) State {
	switch {
	case d.Defective:
		return StateDefective
	case l.IsLive(d, ref):
		return StateOnline
	default:
		return StateOffline
	}
}

func (l Liveness) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// State is the bucket a device is counted in.
type State string

const (
	StateOnline    State = "Online"
	StateOffline   State = "Offline"
	StateDefective State = "Defective"
)
