package download

import "fmt"

// State is the position of one file in the download state machine:
//
//	Pending -> Verifying(0) -> Verifying(1) -> ... -> Failed
//	   |            |               |
//	   +------------+---------------+---------------> Done
//
// Pending checks for a verified local copy. Verifying(i) fetches from mirror
// i with bounded same-mirror retries. A mirror is only tried after the
// previous one has fully failed, and no mirror is tried after Done.
type State int

const (
	StatePending State = iota
	StateVerifying
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateVerifying:
		return "verifying"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transition describes a state change of one file. Mirror is the mirror index
// for StateVerifying and -1 otherwise. Cached is set when Done was reached
// from an existing local file without network access.
type Transition struct {
	File   string
	State  State
	Mirror int
	Cached bool
}
