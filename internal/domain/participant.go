package domain

// Participant is a user present on the relay.
type Participant struct {
	ID           string
	DisplayLabel string
	Avatar       string
	JoinOrder    int
}

// ICEServer holds STUN/TURN server configuration.
type ICEServer struct {
	URL        string
	Username   string
	Credential string
}
