package domain

// SignalType selects the negotiation message carried by a call-signal envelope.
type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
)

// SDPPayload is the JSON structure for SDP offer/answer messages.
type SDPPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidatePayload is the JSON structure for ICE candidate messages.
type ICECandidatePayload struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Signal is the body of a call-signal envelope. Browsers put the session
// description under "sdp" and the candidate under "candidate", so both are
// kept as separate optional fields rather than one opaque payload.
type Signal struct {
	Type      SignalType           `json:"type"`
	SDP       *SDPPayload          `json:"sdp,omitempty"`
	Candidate *ICECandidatePayload `json:"candidate,omitempty"`
}

// NewOfferSignal wraps a local offer.
func NewOfferSignal(sdp string) Signal {
	return Signal{Type: SignalOffer, SDP: &SDPPayload{Type: string(SignalOffer), SDP: sdp}}
}

// NewAnswerSignal wraps a local answer.
func NewAnswerSignal(sdp string) Signal {
	return Signal{Type: SignalAnswer, SDP: &SDPPayload{Type: string(SignalAnswer), SDP: sdp}}
}

// NewCandidateSignal wraps a locally gathered candidate.
func NewCandidateSignal(c ICECandidatePayload) Signal {
	return Signal{Type: SignalCandidate, Candidate: &c}
}
