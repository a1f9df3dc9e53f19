package domain

// Envelope is one relay message. The set of implementations is closed: every
// kind the relay protocol knows has a type below, and anything else is a
// protocol violation at decode time.
type Envelope interface {
	Kind() string
	isEnvelope()
}

type envelope struct{}

func (envelope) isEnvelope() {}

// Chat traffic.

type Join struct {
	envelope
	Username string
	Avatar   string
}

type Leave struct {
	envelope
	Username string
}

// ChatMessage is a text message. MessageID is assigned by the relay and is
// empty on messages we send.
type ChatMessage struct {
	envelope
	Username  string
	Message   string
	MessageID string
}

type FileShare struct {
	envelope
	Username  string
	FileURL   string
	IsImage   bool
	MessageID string
}

type Location struct {
	envelope
	Username  string
	Latitude  float64
	Longitude float64
}

type DeleteMessage struct {
	envelope
	Username  string
	MessageID string
}

type EditMessage struct {
	envelope
	Username   string
	MessageID  string
	NewMessage string
}

type UserListUpdate struct {
	envelope
	Users []Participant
}

type Typing struct {
	envelope
	Users []string
}

type Reaction struct {
	envelope
	Username  string
	MessageID string
	Emoji     string
}

type ReadReceipt struct {
	envelope
	MessageID string
	ReadBy    []string
}

// Call control, client to relay.

type CallInitiate struct {
	envelope
	Username string
	CallID   string
}

type CallAccept struct {
	envelope
	Username string
	CallID   string
}

type CallReject struct {
	envelope
	Username string
	CallID   string
}

type CallEnd struct {
	envelope
	Username string
	CallID   string
}

// Call control, relay to client.

type CallIncoming struct {
	envelope
	CallID    string
	Initiator string
}

type CallUserJoined struct {
	envelope
	CallID       string
	Username     string
	Participants []string
}

type CallUserLeft struct {
	envelope
	CallID       string
	Username     string
	Participants []string
}

type CallEndedMsg struct {
	envelope
	CallID    string
	Initiator string
}

type CallRejected struct {
	envelope
	CallID   string
	Username string
}

// CallInfo announces a call already in progress when we join the relay.
type CallInfo struct {
	envelope
	CallID       string
	Initiator    string
	Participants []string
}

// CallSignal carries negotiation traffic between two call participants.
// Username is the sender, Target the addressee.
type CallSignal struct {
	envelope
	Username string
	Target   string
	CallID   string
	Signal   Signal
}

func (Join) Kind() string           { return "join" }
func (Leave) Kind() string          { return "leave" }
func (ChatMessage) Kind() string    { return "message" }
func (FileShare) Kind() string      { return "file" }
func (Location) Kind() string       { return "location" }
func (DeleteMessage) Kind() string  { return "delete" }
func (EditMessage) Kind() string    { return "edit" }
func (UserListUpdate) Kind() string { return "user-list-update" }
func (Typing) Kind() string         { return "typing" }
func (Reaction) Kind() string       { return "reaction" }
func (ReadReceipt) Kind() string    { return "read" }
func (CallInitiate) Kind() string   { return "call-initiate" }
func (CallAccept) Kind() string     { return "call-accept" }
func (CallReject) Kind() string     { return "call-reject" }
func (CallEnd) Kind() string        { return "call-end" }
func (CallIncoming) Kind() string   { return "call-incoming" }
func (CallUserJoined) Kind() string { return "call-user-joined" }
func (CallUserLeft) Kind() string   { return "call-user-left" }
func (CallEndedMsg) Kind() string   { return "call-ended" }
func (CallRejected) Kind() string   { return "call-rejected" }
func (CallInfo) Kind() string       { return "call-info" }
func (CallSignal) Kind() string     { return "call-signal" }
