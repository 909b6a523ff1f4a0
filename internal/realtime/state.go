package realtime

// State is the lifecycle state of a transport
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

func (s State) String() string {
	return string(s)
}
