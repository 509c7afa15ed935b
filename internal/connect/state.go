package connect

// State is the button's display state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

// Project derives the display state. An attempt in flight wins over stored
// credentials; nothing else feeds the result.
func Project(hasCredentials, inFlight bool) State {
	switch {
	case inFlight:
		return Connecting
	case hasCredentials:
		return Connected
	default:
		return Disconnected
	}
}

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Label is the button text for the state.
func (s State) Label() string {
	switch s {
	case Connecting:
		return "Connecting..."
	case Connected:
		return "HubSpot Connected"
	default:
		return "Connect to HubSpot"
	}
}
