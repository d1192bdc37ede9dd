package boot

import "fmt"

// State is a step of the load sequence.
type State int

// States in the order a session visits them.
const (
	StateInit State = iota
	StateAnnouncing
	StateIdentified
	StateAwaitingAck
	StateReceiving
	StateEchoing
	StateReady
	StateHandoff
)

var stateNames = [...]string{
	StateInit:        "INIT",
	StateAnnouncing:  "ANNOUNCING",
	StateIdentified:  "IDENTIFIED",
	StateAwaitingAck: "AWAITING_ACK",
	StateReceiving:   "RECEIVING",
	StateEchoing:     "ECHOING",
	StateReady:       "READY",
	StateHandoff:     "HANDOFF",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IsTerminal indicates the session has finished.
func (s State) IsTerminal() bool {
	return s == StateHandoff
}

// StateNotifier is called when the loader enters a new state.
type StateNotifier interface {
	StateChanged(State)
}

// StateChangedFunc is func type of StateNotifier.
type StateChangedFunc func(State)

// StateChanged implements StateNotifier.
func (f StateChangedFunc) StateChanged(s State) {
	f(s)
}
