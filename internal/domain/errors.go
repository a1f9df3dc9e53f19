package domain

import "errors"

var (
	// ErrChannelClosed means the relay connection is known to be gone.
	ErrChannelClosed = errors.New("signaling channel closed")
	// ErrMediaAcquisitionDenied means local capture could not be started.
	ErrMediaAcquisitionDenied = errors.New("media acquisition denied")
	// ErrNegotiationFailed covers bad descriptions and rejected candidates on one link.
	ErrNegotiationFailed = errors.New("negotiation failed")
	// ErrProtocolViolation marks an envelope that could not be understood.
	ErrProtocolViolation = errors.New("protocol violation")

	ErrAlreadyInCall  = errors.New("already in a call")
	ErrNoOneToCall    = errors.New("there are no other users to call")
	ErrNoIncomingCall = errors.New("no incoming call")
	ErrNotInCall      = errors.New("not in a call")
	ErrNoLocalMedia   = errors.New("no local media")
)
