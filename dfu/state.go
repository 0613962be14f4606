package dfu

// State is the session state.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateModeKnown
	StateSwitchingMode
	StateHandshaking
	StateTransferringInit
	StateTransferringImage
	StateValidating
	StateActivating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateModeKnown:
		return "mode-known"
	case StateSwitchingMode:
		return "switching-mode"
	case StateHandshaking:
		return "handshaking"
	case StateTransferringInit:
		return "transferring-init"
	case StateTransferringImage:
		return "transferring-image"
	case StateValidating:
		return "validating"
	case StateActivating:
		return "activating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Mode is the firmware the device is running.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeApplication
	ModeBootloader
)

func (m Mode) String() string {
	switch m {
	case ModeApplication:
		return "application"
	case ModeBootloader:
		return "bootloader"
	default:
		return "unknown"
	}
}
