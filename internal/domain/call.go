package domain

// CallState is the local lifecycle state of a call.
type CallState int

const (
	CallIdle CallState = iota
	CallOutgoing
	CallRinging
	CallActive
	CallEnded
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallOutgoing:
		return "outgoing"
	case CallRinging:
		return "ringing"
	case CallActive:
		return "active"
	case CallEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// NegotiationState tracks one link's offer/answer exchange.
type NegotiationState int

const (
	NegotiationNew NegotiationState = iota
	NegotiationOfferSent
	NegotiationOfferReceived
	NegotiationStable
	NegotiationFailed
)

func (s NegotiationState) String() string {
	switch s {
	case NegotiationNew:
		return "new"
	case NegotiationOfferSent:
		return "offer-sent"
	case NegotiationOfferReceived:
		return "offer-received"
	case NegotiationStable:
		return "stable"
	case NegotiationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MediaConstraints selects which local tracks to capture.
type MediaConstraints struct {
	Audio bool
	Video bool
}

// ConnectionStatus is reported to the presentation layer as the relay
// connection changes.
type ConnectionStatus int

const (
	StatusConnecting ConnectionStatus = iota
	StatusConnected
	StatusDisconnected
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnecting:
		return "Connecting..."
	case StatusConnected:
		return "Connected"
	case StatusDisconnected:
		return "Disconnected"
	case StatusError:
		return "Error connecting"
	default:
		return "unknown"
	}
}
