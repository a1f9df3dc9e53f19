package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"meshchat/native/internal/domain"
)

// ErrNoUploader is returned by SendFile when no upload server is configured.
var ErrNoUploader = errors.New("file sharing needs an upload server")

// requireConnected runs on the loop.
func (s *Session) requireConnected() error {
	if !s.relay.Connected() {
		s.ui.SystemMessage("You are not connected to the chat server")
		return domain.ErrChannelClosed
	}
	return nil
}

// SendMessage posts a chat message. Blank messages are ignored.
func (s *Session) SendMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.do(func() error {
		if err := s.requireConnected(); err != nil {
			return err
		}
		return s.relay.Send(domain.ChatMessage{Username: s.username, Message: text})
	})
}

// SendFile uploads path and shares the resulting link. The upload runs off
// the loop; only the share itself is sent from it.
func (s *Session) SendFile(ctx context.Context, path string) error {
	if s.uploader == nil {
		return ErrNoUploader
	}
	if err := s.do(s.requireConnected); err != nil {
		return err
	}

	url, isImage, err := s.uploader.Upload(ctx, path)
	if err != nil {
		return fmt.Errorf("file upload failed: %w", err)
	}

	return s.do(func() error {
		if err := s.requireConnected(); err != nil {
			return err
		}
		return s.relay.Send(domain.FileShare{Username: s.username, FileURL: url, IsImage: isImage})
	})
}

// ShareLocation sends a position in decimal degrees.
func (s *Session) ShareLocation(latitude, longitude float64) error {
	if math.IsNaN(latitude) || math.IsNaN(longitude) ||
		latitude < -90 || latitude > 90 || longitude < -180 || longitude > 180 {
		return fmt.Errorf("location %v,%v out of range", latitude, longitude)
	}
	return s.do(func() error {
		if err := s.requireConnected(); err != nil {
			return err
		}
		return s.relay.Send(domain.Location{Username: s.username, Latitude: latitude, Longitude: longitude})
	})
}

// DeleteMessage asks the relay to remove one of our messages.
func (s *Session) DeleteMessage(messageID string) error {
	if messageID == "" {
		return errors.New("message id is required")
	}
	return s.do(func() error {
		if err := s.requireConnected(); err != nil {
			return err
		}
		return s.relay.Send(domain.DeleteMessage{Username: s.username, MessageID: messageID})
	})
}

// EditMessage replaces the text of one of our messages.
func (s *Session) EditMessage(messageID, text string) error {
	text = strings.TrimSpace(text)
	if messageID == "" || text == "" {
		return errors.New("message id and new text are required")
	}
	return s.do(func() error {
		if err := s.requireConnected(); err != nil {
			return err
		}
		return s.relay.Send(domain.EditMessage{Username: s.username, MessageID: messageID, NewMessage: text})
	})
}

// Participants returns the current roster.
func (s *Session) Participants() []domain.Participant {
	var out []domain.Participant
	_ = s.do(func() error {
		out = s.roster.Participants()
		return nil
	})
	return out
}

// CallState returns the local call state.
func (s *Session) CallState() domain.CallState {
	state := domain.CallIdle
	_ = s.do(func() error {
		state = s.calls.State()
		return nil
	})
	return state
}

// InitiateCall starts a call with everyone on the relay.
func (s *Session) InitiateCall() error { return s.do(s.calls.InitiateCall) }

// AcceptCall answers the ringing call.
func (s *Session) AcceptCall() error { return s.do(s.calls.AcceptCall) }

// DeclineCall rejects the ringing call.
func (s *Session) DeclineCall() error { return s.do(s.calls.DeclineCall) }

// EndCall leaves the current call.
func (s *Session) EndCall() error { return s.do(s.calls.EndCall) }

// ToggleMute flips local audio and reports whether it is now muted.
func (s *Session) ToggleMute() (bool, error) {
	var muted bool
	err := s.do(func() (err error) {
		muted, err = s.calls.ToggleMute()
		return err
	})
	return muted, err
}

// ToggleVideo flips local video and reports whether it is now off.
func (s *Session) ToggleVideo() (bool, error) {
	var off bool
	err := s.do(func() (err error) {
		off, err = s.calls.ToggleVideo()
		return err
	})
	return off, err
}
