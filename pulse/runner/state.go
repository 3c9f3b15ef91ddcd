package runner

// State is the lifecycle state of a Runner
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
)

func (s State) String() string { return string(s) }
