// Package call implements the call session state machine and the full-mesh
// orchestration of peer links for a single call.
//
// A Controller is driven from one event loop: every exported method, and
// every continuation handed to the Scheduler, runs on that loop and never
// concurrently with another. Blocking work (media capture, SDP creation) is
// pushed through the Scheduler and each continuation rechecks that the call
// it belongs to is still the current one before touching state.
package call

import (
	"context"
	"fmt"
	"time"

	"meshchat/native/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Roster is the part of the participant roster the controller reads.
type Roster interface {
	IndexOf(id string) int
	Len() int
}

// Channel is the outbound side of the signaling channel.
type Channel interface {
	domain.Channel
	Connected() bool
}

// Scheduler moves work off the event loop and back onto it.
type Scheduler interface {
	// Go runs work on another goroutine, then runs then on the event loop.
	// If the loop has stopped, then is skipped and abandon (when non-nil)
	// runs on the work goroutine instead.
	Go(work, then, abandon func())
	// Post queues fn on the event loop.
	Post(fn func())
}

// Deps are the collaborators a Controller needs.
type Deps struct {
	LocalID      string
	Roster       Roster
	Channel      Channel
	Links        domain.LinkFactory
	Media        domain.MediaAcquirer
	Presenter    domain.CallPresenter
	Scheduler    Scheduler
	Constraints  domain.MediaConstraints
	TickInterval time.Duration
	Logger       zerolog.Logger
}

// Controller owns the local call session, if any.
type Controller struct {
	localID     string
	roster      Roster
	channel     Channel
	links       domain.LinkFactory
	media       domain.MediaAcquirer
	ui          domain.CallPresenter
	sched       Scheduler
	constraints domain.MediaConstraints
	tick        time.Duration
	log         zerolog.Logger

	session *session
}

type session struct {
	callID       string
	initiator    string
	state        domain.CallState
	participants []string
	media        domain.LocalMedia
	links        map[string]*link
	departed     map[string]bool // left the call; their late signals are dropped
	pending      []domain.CallSignal
	acquiring    bool
	cancel       context.CancelFunc
	startedAt    time.Time
	stopTicker   func()
}

// New creates an idle controller.
func New(d Deps) *Controller {
	return &Controller{
		localID:     d.LocalID,
		roster:      d.Roster,
		channel:     d.Channel,
		links:       d.Links,
		media:       d.Media,
		ui:          d.Presenter,
		sched:       d.Scheduler,
		constraints: d.Constraints,
		tick:        d.TickInterval,
		log:         d.Logger,
	}
}

// State returns the current call state.
func (c *Controller) State() domain.CallState {
	if c.session == nil {
		return domain.CallIdle
	}
	return c.session.state
}

// CallID returns the id of the current call, or "" when idle.
func (c *Controller) CallID() string {
	if c.session == nil {
		return ""
	}
	return c.session.callID
}

// Participants returns the ordered participant ids of the current call.
func (c *Controller) Participants() []string {
	if c.session == nil {
		return nil
	}
	out := make([]string, len(c.session.participants))
	copy(out, c.session.participants)
	return out
}

// Links reports the negotiation state of every live peer link.
func (c *Controller) Links() map[string]domain.NegotiationState {
	out := make(map[string]domain.NegotiationState)
	if c.session == nil {
		return out
	}
	for id, l := range c.session.links {
		out[id] = l.state
	}
	return out
}

// InitiateCall starts a new call with everyone on the relay.
func (c *Controller) InitiateCall() error {
	if !c.channel.Connected() {
		c.ui.SystemMessage("You are not connected to the chat server")
		return domain.ErrChannelClosed
	}
	if c.roster.Len() < 2 {
		c.ui.SystemMessage("There are no other users to call")
		return domain.ErrNoOneToCall
	}
	if c.session != nil {
		c.ui.SystemMessage("You are already in a call")
		return domain.ErrAlreadyInCall
	}

	callID := uuid.NewString()
	if err := c.send(domain.CallInitiate{Username: c.localID, CallID: callID}); err != nil {
		c.ui.SystemMessage("You are not connected to the chat server")
		return err
	}

	s := &session{
		callID:       callID,
		initiator:    c.localID,
		state:        domain.CallOutgoing,
		participants: []string{c.localID},
		links:        make(map[string]*link),
		departed:     make(map[string]bool),
	}
	c.session = s
	c.log.Info().Str("call_id", callID).Msg("call initiated")
	c.notifyState(s)

	c.acquire(s, func(media domain.LocalMedia) {
		if s.state != domain.CallOutgoing {
			media.Release()
			return
		}
		s.media = media
		c.activate(s)
		c.ui.SystemMessage("You started a group call")
	}, func(err error) {
		c.log.Error().Err(err).Str("call_id", callID).Msg("local media failed, aborting call")
		c.session = nil
		// The invite is already out; without this the others stay ringing.
		_ = c.send(domain.CallEnd{Username: c.localID, CallID: callID})
		c.ui.SystemMessage("Failed to access camera/microphone")
		c.ui.CallStateChanged(domain.CallIdle, "")
	})
	return nil
}

// AcceptCall answers the ringing call.
func (c *Controller) AcceptCall() error {
	s := c.session
	if s == nil || s.state != domain.CallRinging {
		return domain.ErrNoIncomingCall
	}
	if s.acquiring {
		return nil
	}
	if !c.channel.Connected() {
		c.ui.SystemMessage("You are not connected to the chat server")
		return domain.ErrChannelClosed
	}

	c.acquire(s, func(media domain.LocalMedia) {
		if s.state != domain.CallRinging {
			media.Release()
			return
		}
		s.media = media
		_ = c.send(domain.CallAccept{Username: c.localID, CallID: s.callID})
		s.participants = appendUnique(s.participants, c.localID)
		c.activate(s)
		c.ui.SystemMessage(fmt.Sprintf("You joined %s's call", s.initiator))
	}, func(err error) {
		c.log.Error().Err(err).Str("call_id", s.callID).Msg("local media failed, rejecting call")
		c.session = nil
		_ = c.send(domain.CallReject{Username: c.localID, CallID: s.callID})
		c.ui.SystemMessage("Failed to access camera/microphone")
		c.ui.CallStateChanged(domain.CallIdle, "")
	})
	return nil
}

// DeclineCall rejects the ringing call.
func (c *Controller) DeclineCall() error {
	s := c.session
	if s == nil || s.state != domain.CallRinging {
		return domain.ErrNoIncomingCall
	}
	_ = c.send(domain.CallReject{Username: c.localID, CallID: s.callID})
	c.session = nil
	if s.cancel != nil {
		s.cancel()
	}
	c.ui.CallStateChanged(domain.CallIdle, "")
	return nil
}

// EndCall leaves the current call. A call that was only ringing is rejected
// instead, since we never joined it.
func (c *Controller) EndCall() error {
	s := c.session
	if s == nil {
		return domain.ErrNotInCall
	}
	if s.state == domain.CallRinging {
		_ = c.send(domain.CallReject{Username: c.localID, CallID: s.callID})
	} else {
		_ = c.send(domain.CallEnd{Username: c.localID, CallID: s.callID})
	}
	c.teardown(s)
	c.ui.SystemMessage("You ended the call")
	return nil
}

// ChannelDisconnected tears the call down without telling anyone; there is
// no one left to tell.
func (c *Controller) ChannelDisconnected() {
	if s := c.session; s != nil {
		c.log.Warn().Str("call_id", s.callID).Msg("relay lost, dropping call")
		c.teardown(s)
	}
}

// ToggleMute flips every local audio track and returns whether audio is now muted.
func (c *Controller) ToggleMute() (bool, error) {
	if c.session == nil || c.session.media == nil {
		return false, domain.ErrNoLocalMedia
	}
	m := c.session.media
	enabled := !m.AudioEnabled()
	m.SetAudioEnabled(enabled)
	return !enabled, nil
}

// ToggleVideo flips every local video track and returns whether video is now off.
func (c *Controller) ToggleVideo() (bool, error) {
	if c.session == nil || c.session.media == nil {
		return false, domain.ErrNoLocalMedia
	}
	m := c.session.media
	enabled := !m.VideoEnabled()
	m.SetVideoEnabled(enabled)
	return !enabled, nil
}

// HandleEnvelope routes a call envelope from the relay.
func (c *Controller) HandleEnvelope(env domain.Envelope) {
	switch e := env.(type) {
	case domain.CallIncoming:
		c.handleIncoming(e)
	case domain.CallUserJoined:
		c.handleUserJoined(e)
	case domain.CallUserLeft:
		c.handleUserLeft(e)
	case domain.CallEndedMsg:
		c.handleEnded(e)
	case domain.CallRejected:
		c.handleRejected(e)
	case domain.CallInfo:
		c.handleInfo(e)
	case domain.CallSignal:
		c.handleSignal(e)
	default:
		c.log.Debug().Str("type", env.Kind()).Msg("not a call envelope")
	}
}

func (c *Controller) handleIncoming(e domain.CallIncoming) {
	if e.Initiator == c.localID {
		return
	}
	if s := c.session; s != nil {
		if s.callID == e.CallID {
			return
		}
		c.log.Info().Str("call_id", e.CallID).Str("from", e.Initiator).Msg("busy, rejecting incoming call")
		_ = c.send(domain.CallReject{Username: c.localID, CallID: e.CallID})
		c.ui.SystemMessage(fmt.Sprintf("Missed call from %s (already in a call)", e.Initiator))
		return
	}

	s := &session{
		callID:       e.CallID,
		initiator:    e.Initiator,
		state:        domain.CallRinging,
		participants: []string{e.Initiator},
		links:        make(map[string]*link),
		departed:     make(map[string]bool),
	}
	c.session = s
	c.log.Info().Str("call_id", e.CallID).Str("from", e.Initiator).Msg("incoming call")
	c.notifyState(s)
	c.ui.SystemMessage(fmt.Sprintf("Incoming call from %s", e.Initiator))
}

func (c *Controller) handleUserJoined(e domain.CallUserJoined) {
	s := c.current(e.CallID)
	if s == nil {
		return
	}
	if len(e.Participants) > 0 {
		s.participants = uniqueIDs(e.Participants)
	}
	s.participants = appendUnique(s.participants, e.Username)
	if s.state == domain.CallActive {
		s.participants = appendUnique(s.participants, c.localID)
	}
	delete(s.departed, e.Username)

	if e.Username != c.localID {
		c.ui.SystemMessage(fmt.Sprintf("%s joined the call", e.Username))
	}
	if s.state == domain.CallActive {
		c.reconcile(s)
	}
}

func (c *Controller) handleUserLeft(e domain.CallUserLeft) {
	s := c.current(e.CallID)
	if s == nil || e.Username == c.localID {
		return
	}
	if len(e.Participants) > 0 {
		s.participants = uniqueIDs(e.Participants)
		if s.state == domain.CallActive {
			s.participants = appendUnique(s.participants, c.localID)
		}
	}
	s.participants = removeID(s.participants, e.Username)
	s.departed[e.Username] = true

	c.ui.SystemMessage(fmt.Sprintf("%s left the call", e.Username))
	if _, ok := s.links[e.Username]; ok {
		c.closeLink(s, e.Username)
	}
	if s.state == domain.CallActive {
		c.reconcile(s)
	}
}

func (c *Controller) handleEnded(e domain.CallEndedMsg) {
	s := c.current(e.CallID)
	if s == nil || e.Initiator == c.localID {
		return
	}
	c.teardown(s)
	c.ui.SystemMessage(fmt.Sprintf("%s ended the call", e.Initiator))
}

func (c *Controller) handleRejected(e domain.CallRejected) {
	if c.current(e.CallID) == nil || e.Username == c.localID {
		return
	}
	c.ui.SystemMessage(fmt.Sprintf("%s declined the call", e.Username))
}

func (c *Controller) handleInfo(e domain.CallInfo) {
	if c.session != nil {
		return
	}
	c.ui.SystemMessage(fmt.Sprintf("%s has a call in progress with %d participant(s)", e.Initiator, len(e.Participants)))
}

// current returns the session if callID belongs to it.
func (c *Controller) current(callID string) *session {
	if c.session == nil || c.session.callID != callID {
		return nil
	}
	return c.session
}

// acquire starts local capture for s. Exactly one of onReady/onFail runs on
// the loop, and only if s is still the current session; media that arrives
// for a session that is gone is released on the spot.
func (c *Controller) acquire(s *session, onReady func(domain.LocalMedia), onFail func(error)) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.acquiring = true

	var (
		media domain.LocalMedia
		err   error
	)
	c.sched.Go(func() {
		media, err = c.media.Acquire(ctx, c.constraints)
	}, func() {
		cancel()
		if c.session != s {
			if media != nil {
				c.log.Debug().Str("call_id", s.callID).Msg("releasing media for a call that is gone")
				media.Release()
			}
			return
		}
		s.acquiring = false
		if err != nil {
			onFail(fmt.Errorf("%w: %v", domain.ErrMediaAcquisitionDenied, err))
			return
		}
		onReady(media)
	}, func() {
		cancel()
		if media != nil {
			media.Release()
		}
	})
}

func (c *Controller) activate(s *session) {
	s.state = domain.CallActive
	s.startedAt = time.Now()
	c.startTicker(s)
	c.notifyState(s)
	c.reconcile(s)

	pending := s.pending
	s.pending = nil
	for _, sig := range pending {
		if c.session != s || s.state != domain.CallActive {
			return
		}
		c.applySignal(s, sig)
	}
}

func (c *Controller) teardown(s *session) {
	c.session = nil
	if s.cancel != nil {
		s.cancel()
	}
	if s.stopTicker != nil {
		s.stopTicker()
	}
	for _, id := range sortedKeys(s.links) {
		c.closeLink(s, id)
	}
	if s.media != nil {
		s.media.Release()
		s.media = nil
	}
	s.pending = nil
	s.state = domain.CallEnded

	c.log.Info().Str("call_id", s.callID).Msg("call ended")
	c.ui.CallStateChanged(domain.CallEnded, s.callID)
	c.ui.CallStateChanged(domain.CallIdle, "")
}

func (c *Controller) startTicker(s *session) {
	if c.tick <= 0 {
		return
	}
	stop := make(chan struct{})
	s.stopTicker = func() { close(stop) }

	go func() {
		t := time.NewTicker(c.tick)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				c.sched.Post(func() {
					if c.session == s && s.state == domain.CallActive {
						c.ui.CallDuration(time.Since(s.startedAt).Truncate(time.Second))
					}
				})
			}
		}
	}()
}

func (c *Controller) notifyState(s *session) {
	c.ui.CallStateChanged(s.state, s.callID)
}

func (c *Controller) send(env domain.Envelope) error {
	if err := c.channel.Send(env); err != nil {
		c.log.Warn().Err(err).Str("type", env.Kind()).Msg("send failed")
		return err
	}
	return nil
}
