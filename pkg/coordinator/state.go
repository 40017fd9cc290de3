package coordinator

// State is the coordinator's position in the job cycle
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateRequestingWork
	StateAwaitingPartition
	StateSearching
	StateReporting
	StateDisconnected
)

var stateNames = [...]string{
	StateIdle:              "idle",
	StateConnecting:        "connecting",
	StateRequestingWork:    "requesting-work",
	StateAwaitingPartition: "awaiting-partition",
	StateSearching:         "searching",
	StateReporting:         "reporting",
	StateDisconnected:      "disconnected",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
