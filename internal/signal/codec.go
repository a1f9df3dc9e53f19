package signal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"meshchat/native/internal/domain"
)

// frame is the flat JSON shape every relay message shares. The type field
// selects which of the other fields are meaningful.
type frame struct {
	Type         string         `json:"type"`
	Username     string         `json:"username,omitempty"`
	Avatar       string         `json:"avatar,omitempty"`
	Message      string         `json:"message,omitempty"`
	FileURL      string         `json:"fileUrl,omitempty"`
	IsImage      *bool          `json:"isImage,omitempty"`
	Latitude     *float64       `json:"latitude,omitempty"`
	Longitude    *float64       `json:"longitude,omitempty"`
	MessageID    flexString     `json:"messageId,omitempty"`
	NewMessage   string         `json:"newMessage,omitempty"`
	UserList     []userEntry    `json:"userList,omitempty"`
	CallID       flexString     `json:"callId,omitempty"`
	Initiator    string         `json:"initiator,omitempty"`
	Participants []string       `json:"participants,omitempty"`
	Target       string         `json:"target,omitempty"`
	Signal       *domain.Signal `json:"signal,omitempty"`
	TypingUsers  []string       `json:"typingUsers,omitempty"`
	Emoji        string         `json:"emoji,omitempty"`
	ReadBy       []string       `json:"readBy,omitempty"`
}

type userEntry struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// flexString accepts both JSON strings and numbers. Browser clients have
// sent millisecond timestamps as ids in either form.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*s = flexString(n.String())
	return nil
}

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrProtocolViolation, fmt.Sprintf(format, args...))
}

// Decode parses one inbound relay message. The relay may echo client-side
// call types back instead of the relay-side names; those are mapped onto the
// relay-side variants so the rest of the client only sees one vocabulary.
func Decode(data []byte) (domain.Envelope, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, violation("unmarshal: %v", err)
	}
	callID := string(f.CallID)

	switch f.Type {
	case "join":
		return domain.Join{Username: f.Username, Avatar: f.Avatar}, nil
	case "leave":
		return domain.Leave{Username: f.Username}, nil
	case "message":
		return domain.ChatMessage{Username: f.Username, Message: f.Message, MessageID: string(f.MessageID)}, nil
	case "file":
		isImage := f.IsImage != nil && *f.IsImage
		return domain.FileShare{Username: f.Username, FileURL: f.FileURL, IsImage: isImage, MessageID: string(f.MessageID)}, nil
	case "location":
		if f.Latitude == nil || f.Longitude == nil {
			return nil, violation("location without coordinates")
		}
		return domain.Location{Username: f.Username, Latitude: *f.Latitude, Longitude: *f.Longitude}, nil
	case "delete":
		return domain.DeleteMessage{Username: f.Username, MessageID: string(f.MessageID)}, nil
	case "edit":
		return domain.EditMessage{Username: f.Username, MessageID: string(f.MessageID), NewMessage: f.NewMessage}, nil
	case "user-list-update":
		users := make([]domain.Participant, 0, len(f.UserList))
		for i, u := range f.UserList {
			users = append(users, domain.Participant{
				ID:           u.Username,
				DisplayLabel: u.Username,
				Avatar:       u.Avatar,
				JoinOrder:    i,
			})
		}
		return domain.UserListUpdate{Users: users}, nil
	case "typing":
		return domain.Typing{Users: f.TypingUsers}, nil
	case "reaction":
		return domain.Reaction{Username: f.Username, MessageID: string(f.MessageID), Emoji: f.Emoji}, nil
	case "read":
		return domain.ReadReceipt{MessageID: string(f.MessageID), ReadBy: f.ReadBy}, nil
	}

	// Everything below belongs to a call and is correlated by callId.
	if callID == "" {
		return nil, violation("%s without callId", f.Type)
	}

	switch f.Type {
	case "call-incoming":
		return domain.CallIncoming{CallID: callID, Initiator: f.Initiator}, nil
	case "call-initiate":
		return domain.CallIncoming{CallID: callID, Initiator: f.Username}, nil
	case "call-user-joined", "call-accept":
		return domain.CallUserJoined{CallID: callID, Username: f.Username, Participants: f.Participants}, nil
	case "call-user-left":
		return domain.CallUserLeft{CallID: callID, Username: f.Username, Participants: f.Participants}, nil
	case "call-ended":
		return domain.CallEndedMsg{CallID: callID, Initiator: f.Initiator}, nil
	case "call-end":
		return domain.CallEndedMsg{CallID: callID, Initiator: f.Username}, nil
	case "call-rejected", "call-reject":
		return domain.CallRejected{CallID: callID, Username: f.Username}, nil
	case "call-info":
		return domain.CallInfo{CallID: callID, Initiator: f.Initiator, Participants: f.Participants}, nil
	case "call-signal":
		if f.Signal == nil {
			return nil, violation("call-signal without signal")
		}
		return domain.CallSignal{Username: f.Username, Target: f.Target, CallID: callID, Signal: *f.Signal}, nil
	case "":
		return nil, violation("missing type")
	default:
		return nil, violation("unknown type %q", f.Type)
	}
}

// Encode serializes an outbound envelope.
func Encode(env domain.Envelope) ([]byte, error) {
	f := frame{Type: env.Kind()}

	switch e := env.(type) {
	case domain.Join:
		f.Username, f.Avatar = e.Username, e.Avatar
	case domain.Leave:
		f.Username = e.Username
	case domain.ChatMessage:
		f.Username, f.Message = e.Username, e.Message
	case domain.FileShare:
		isImage := e.IsImage
		f.Username, f.FileURL, f.IsImage = e.Username, e.FileURL, &isImage
	case domain.Location:
		lat, lon := e.Latitude, e.Longitude
		f.Username, f.Latitude, f.Longitude = e.Username, &lat, &lon
	case domain.DeleteMessage:
		f.Username, f.MessageID = e.Username, flexString(e.MessageID)
	case domain.EditMessage:
		f.Username, f.MessageID, f.NewMessage = e.Username, flexString(e.MessageID), e.NewMessage
	case domain.CallInitiate:
		f.Username, f.CallID = e.Username, flexString(e.CallID)
	case domain.CallAccept:
		f.Username, f.CallID = e.Username, flexString(e.CallID)
	case domain.CallReject:
		f.Username, f.CallID = e.Username, flexString(e.CallID)
	case domain.CallEnd:
		f.Username, f.CallID = e.Username, flexString(e.CallID)
	case domain.CallSignal:
		sig := e.Signal
		f.Username, f.Target, f.CallID, f.Signal = e.Username, e.Target, flexString(e.CallID), &sig
	default:
		return nil, fmt.Errorf("encode %s: not a client message", env.Kind())
	}

	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", env.Kind(), err)
	}
	return data, nil
}
