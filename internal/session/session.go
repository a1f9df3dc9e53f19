// Package session ties the relay connection, the roster and the call
// controller together behind one event loop.
//
// Every state change happens on the loop goroutine started by Run. Relay
// callbacks, link callbacks and user actions are all posted onto it, so the
// roster and the call controller never see concurrent access.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"meshchat/native/internal/call"
	"meshchat/native/internal/domain"
	"meshchat/native/internal/roster"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by actions issued after the session stopped.
var ErrClosed = errors.New("session closed")

// Relay is the signaling connection a session drives.
type Relay interface {
	domain.Signaler
	Connected() bool
}

// Options configure a Session.
type Options struct {
	Username     string
	Avatar       string
	Links        domain.LinkFactory
	Media        domain.MediaAcquirer
	Presenter    domain.Presenter
	Uploader     domain.Uploader
	Constraints  domain.MediaConstraints
	TickInterval time.Duration
	Logger       zerolog.Logger
}

// Session is the chat client aggregate. It implements domain.ChannelHandler.
type Session struct {
	username string
	avatar   string
	ui       domain.Presenter
	uploader domain.Uploader
	log      zerolog.Logger

	relay  Relay
	roster *roster.Roster
	calls  *call.Controller

	events   chan func()
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Session. Call SetRelay before Run to complete the circular
// dependency (Session needs the relay, the relay needs its handler).
func New(opts Options) *Session {
	s := &Session{
		username: opts.Username,
		avatar:   opts.Avatar,
		ui:       opts.Presenter,
		uploader: opts.Uploader,
		log:      opts.Logger,
		events:   make(chan func(), 64),
		done:     make(chan struct{}),
	}
	s.roster = roster.New(opts.Presenter.RosterChanged)
	s.calls = call.New(call.Deps{
		LocalID:      opts.Username,
		Roster:       s.roster,
		Channel:      relayChannel{s},
		Links:        opts.Links,
		Media:        opts.Media,
		Presenter:    opts.Presenter,
		Scheduler:    loopScheduler{s},
		Constraints:  opts.Constraints,
		TickInterval: opts.TickInterval,
		Logger:       opts.Logger.With().Str("component", "call").Logger(),
	})
	return s
}

// SetRelay injects the relay connection after construction.
func (s *Session) SetRelay(r Relay) {
	s.relay = r
}

// Connect reports Connecting and dials the relay.
func (s *Session) Connect(ctx context.Context) error {
	s.post(func() { s.ui.ConnectionStatus(domain.StatusConnecting) })
	return s.relay.Connect(ctx)
}

// Run processes events until ctx is cancelled or Close is called.
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.stop()
			return ctx.Err()
		case <-s.done:
			return nil
		case fn := <-s.events:
			fn()
		}
	}
}

// Close says goodbye to the relay, drops any call and stops the loop.
func (s *Session) Close() {
	_ = s.do(func() error {
		if s.calls.State() != domain.CallIdle {
			_ = s.calls.EndCall()
		}
		_ = s.relay.Send(domain.Leave{Username: s.username})
		return nil
	})
	s.relay.Close()
	s.stop()
}

func (s *Session) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// post queues fn on the loop and reports whether it was accepted. Nothing is
// accepted once the loop has stopped.
func (s *Session) post(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- fn:
		return true
	case <-s.done:
		return false
	}
}

// do runs fn on the loop and waits for its result.
func (s *Session) do(fn func() error) error {
	result := make(chan error, 1)
	select {
	case s.events <- func() { result <- fn() }:
	case <-s.done:
		return ErrClosed
	}
	select {
	case err := <-result:
		return err
	case <-s.done:
		return ErrClosed
	}
}

// OnConnected implements domain.ChannelHandler.
func (s *Session) OnConnected() {
	s.post(func() {
		s.log.Info().Str("username", s.username).Msg("connected, joining")
		s.ui.ConnectionStatus(domain.StatusConnected)
		if err := s.relay.Send(domain.Join{Username: s.username, Avatar: s.avatar}); err != nil {
			s.log.Warn().Err(err).Msg("send join")
		}
		s.ui.SystemMessage(fmt.Sprintf("Welcome to the chat room, %s!", s.username))
	})
}

// OnDisconnected implements domain.ChannelHandler.
func (s *Session) OnDisconnected(err error) {
	s.post(func() {
		if err != nil {
			s.log.Warn().Err(err).Msg("relay disconnected")
		}
		s.calls.ChannelDisconnected()
		s.ui.ConnectionStatus(domain.StatusDisconnected)
		s.ui.SystemMessage("Disconnected from chat server")
	})
}

// OnError implements domain.ChannelHandler.
func (s *Session) OnError(err error) {
	s.post(func() {
		s.log.Error().Err(err).Msg("relay error")
		s.ui.ConnectionStatus(domain.StatusError)
	})
}

// OnEnvelope implements domain.ChannelHandler.
func (s *Session) OnEnvelope(env domain.Envelope) {
	s.post(func() { s.dispatch(env) })
}

func (s *Session) dispatch(env domain.Envelope) {
	switch e := env.(type) {
	case domain.UserListUpdate:
		s.roster.Replace(e.Users)
	case domain.Join:
		s.ui.UserJoined(e.Username)
	case domain.Leave:
		s.ui.UserLeft(e.Username)
	case domain.ChatMessage:
		s.ui.ChatMessage(e.Username, e.MessageID, e.Message, e.Username == s.username)
	case domain.FileShare:
		s.ui.FileShared(e.Username, e.MessageID, e.FileURL, e.IsImage, e.Username == s.username)
	case domain.Location:
		s.ui.LocationShared(e.Username, e.Latitude, e.Longitude, e.Username == s.username)
	case domain.DeleteMessage:
		s.ui.MessageDeleted(e.Username, e.MessageID)
	case domain.EditMessage:
		s.ui.MessageEdited(e.Username, e.MessageID, e.NewMessage)
	case domain.Typing, domain.Reaction, domain.ReadReceipt:
		s.log.Debug().Str("type", env.Kind()).Msg("ignoring presence envelope")
	default:
		s.calls.HandleEnvelope(env)
	}
}

// relayChannel gives the call controller the relay as it is at send time.
type relayChannel struct{ s *Session }

func (c relayChannel) Send(env domain.Envelope) error { return c.s.relay.Send(env) }
func (c relayChannel) Connected() bool                { return c.s.relay.Connected() }

// loopScheduler runs blocking work on its own goroutine and resumes on the loop.
type loopScheduler struct{ s *Session }

func (l loopScheduler) Go(work, then, abandon func()) {
	go func() {
		work()

		var claimed atomic.Bool
		resumed := make(chan struct{})
		posted := l.s.post(func() {
			if claimed.CompareAndSwap(false, true) {
				then()
			}
			close(resumed)
		})
		if posted {
			select {
			case <-resumed:
				return
			case <-l.s.done:
			}
		}
		if abandon != nil && claimed.CompareAndSwap(false, true) {
			abandon()
		}
	}()
}

func (l loopScheduler) Post(fn func()) { l.s.post(fn) }
