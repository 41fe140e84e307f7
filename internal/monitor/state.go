package monitor

// State of the acquisition state machine.
type State int32

const (
	Idle State = iota
	Opening
	Polling
	Stopping
)

var stateNames = [...]string{
	Idle:     "idle",
	Opening:  "opening",
	Polling:  "polling",
	Stopping: "stopping",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}

	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
