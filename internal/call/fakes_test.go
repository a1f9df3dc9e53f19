package call

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"meshchat/native/internal/domain"
)

type fakeRoster struct {
	ids []string
}

func (r *fakeRoster) IndexOf(id string) int { return indexOf(r.ids, id) }
func (r *fakeRoster) Len() int              { return len(r.ids) }

type fakeChannel struct {
	connected bool
	sent      []domain.Envelope
}

func (c *fakeChannel) Connected() bool { return c.connected }

func (c *fakeChannel) Send(env domain.Envelope) error {
	if !c.connected {
		return domain.ErrChannelClosed
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeChannel) kinds() []string {
	out := make([]string, 0, len(c.sent))
	for _, env := range c.sent {
		out = append(out, env.Kind())
	}
	return out
}

func (c *fakeChannel) signals() []domain.CallSignal {
	var out []domain.CallSignal
	for _, env := range c.sent {
		if s, ok := env.(domain.CallSignal); ok {
			out = append(out, s)
		}
	}
	return out
}

type fakeLink struct {
	remote string
	events domain.LinkEvents

	offerErr  error
	acceptErr error

	remoteOffers  []string
	remoteAnswers []string
	candidates    []domain.ICECandidatePayload
	closed        int
}

func (l *fakeLink) RemoteID() string { return l.remote }

func (l *fakeLink) CreateOffer(context.Context) (string, error) {
	if l.offerErr != nil {
		return "", l.offerErr
	}
	return "offer-to-" + l.remote, nil
}

func (l *fakeLink) AcceptOffer(_ context.Context, sdp string) (string, error) {
	if err := l.acceptErr; err != nil {
		l.acceptErr = nil
		return "", err
	}
	l.remoteOffers = append(l.remoteOffers, sdp)
	return "answer-to-" + l.remote, nil
}

func (l *fakeLink) AcceptAnswer(sdp string) error {
	l.remoteAnswers = append(l.remoteAnswers, sdp)
	return nil
}

func (l *fakeLink) AddCandidate(c domain.ICECandidatePayload) error {
	l.candidates = append(l.candidates, c)
	return nil
}

func (l *fakeLink) Close() error {
	l.closed++
	return nil
}

type fakeFactory struct {
	created map[string][]*fakeLink
	media   []domain.LocalMedia
	err     error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{created: make(map[string][]*fakeLink)}
}

func (f *fakeFactory) NewLink(remoteID string, media domain.LocalMedia, events domain.LinkEvents) (domain.PeerLink, error) {
	if f.err != nil {
		return nil, f.err
	}
	l := &fakeLink{remote: remoteID, events: events}
	f.created[remoteID] = append(f.created[remoteID], l)
	f.media = append(f.media, media)
	return l, nil
}

// latest returns the most recently created link to id.
func (f *fakeFactory) latest(id string) *fakeLink {
	links := f.created[id]
	if len(links) == 0 {
		return nil
	}
	return links[len(links)-1]
}

type fakeMedia struct {
	audio, video bool
	released     int
}

func (m *fakeMedia) SetAudioEnabled(enabled bool) { m.audio = enabled }
func (m *fakeMedia) SetVideoEnabled(enabled bool) { m.video = enabled }
func (m *fakeMedia) AudioEnabled() bool           { return m.audio }
func (m *fakeMedia) VideoEnabled() bool           { return m.video }
func (m *fakeMedia) Release()                     { m.released++ }

type fakeAcquirer struct {
	media *fakeMedia
	err   error
	calls int
}

func (a *fakeAcquirer) Acquire(context.Context, domain.MediaConstraints) (domain.LocalMedia, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.media, nil
}

var errPermission = errors.New("permission denied")

type fakeRemote struct{}

func (fakeRemote) Kind() string           { return "video" }
func (fakeRemote) MimeType() string       { return "video/H264" }
func (fakeRemote) Sink(io.Writer) error   { return nil }

type fakePresenter struct {
	states    []domain.CallState
	messages  []string
	added     []string
	removed   []string
	durations []time.Duration
}

func (p *fakePresenter) CallStateChanged(state domain.CallState, _ string) {
	p.states = append(p.states, state)
}
func (p *fakePresenter) CallDuration(d time.Duration) { p.durations = append(p.durations, d) }
func (p *fakePresenter) ParticipantMediaAdded(id string, _ domain.RemoteMedia) {
	p.added = append(p.added, id)
}
func (p *fakePresenter) ParticipantMediaRemoved(id string) { p.removed = append(p.removed, id) }
func (p *fakePresenter) SystemMessage(text string)         { p.messages = append(p.messages, text) }

// inlineScheduler runs everything immediately on the caller.
type inlineScheduler struct{}

func (inlineScheduler) Go(work, then, _ func()) { work(); then() }
func (inlineScheduler) Post(fn func())          { fn() }

// deferredScheduler queues everything until run is called.
type deferredScheduler struct {
	mu    sync.Mutex
	queue []func()
}

func (s *deferredScheduler) Go(work, then, _ func()) {
	s.Post(func() { work(); then() })
}

func (s *deferredScheduler) Post(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
}

func (s *deferredScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// run drains the queue, including work queued while draining.
func (s *deferredScheduler) run() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		fn()
	}
}
