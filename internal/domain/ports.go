package domain

import (
	"context"
	"io"
	"time"
)

// Channel sends envelopes to the relay.
type Channel interface {
	Send(env Envelope) error
}

// Signaler manages the WebSocket signaling connection.
type Signaler interface {
	Channel
	Connect(ctx context.Context) error
	Close()
}

// ChannelHandler receives signaling events. Exactly one handler is bound to
// a channel; it sees every inbound envelope in delivery order.
type ChannelHandler interface {
	OnConnected()
	OnDisconnected(err error)
	OnError(err error)
	OnEnvelope(env Envelope)
}

// PeerLink is one negotiation connection to a remote call participant.
type PeerLink interface {
	RemoteID() string
	CreateOffer(ctx context.Context) (string, error)
	AcceptOffer(ctx context.Context, sdp string) (answer string, err error)
	AcceptAnswer(sdp string) error
	AddCandidate(candidate ICECandidatePayload) error
	Close() error
}

// LinkEvents are callbacks a PeerLink raises from its own goroutines.
type LinkEvents struct {
	OnCandidate func(candidate ICECandidatePayload)
	OnTrack     func(media RemoteMedia)
}

// LinkFactory creates PeerLinks with the local media already attached.
type LinkFactory interface {
	NewLink(remoteID string, media LocalMedia, events LinkEvents) (PeerLink, error)
}

// MediaAcquirer starts local capture.
type MediaAcquirer interface {
	Acquire(ctx context.Context, constraints MediaConstraints) (LocalMedia, error)
}

// LocalMedia is the local track set shared by every link of a call.
// Enabling or disabling applies to every track of that kind at once.
type LocalMedia interface {
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
	AudioEnabled() bool
	VideoEnabled() bool
	Release()
}

// RemoteMedia is a track received from a call participant.
type RemoteMedia interface {
	Kind() string
	MimeType() string
	// Sink copies the media into w until the track ends.
	Sink(w io.Writer) error
}

// CallPresenter is what the call controller tells the presentation layer.
type CallPresenter interface {
	CallStateChanged(state CallState, callID string)
	CallDuration(elapsed time.Duration)
	ParticipantMediaAdded(id string, media RemoteMedia)
	ParticipantMediaRemoved(id string)
	SystemMessage(text string)
}

// ChatPresenter renders chat traffic.
type ChatPresenter interface {
	ConnectionStatus(status ConnectionStatus)
	RosterChanged(participants []Participant)
	UserJoined(username string)
	UserLeft(username string)
	ChatMessage(from, messageID, text string, own bool)
	FileShared(from, messageID, url string, isImage, own bool)
	LocationShared(from string, latitude, longitude float64, own bool)
	MessageDeleted(from, messageID string)
	MessageEdited(from, messageID, text string)
}

// Presenter is the full presentation layer contract.
type Presenter interface {
	CallPresenter
	ChatPresenter
}

// Uploader turns a local file into a URL other participants can fetch.
type Uploader interface {
	Upload(ctx context.Context, path string) (url string, isImage bool, err error)
}
