package call

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"meshchat/native/internal/domain"
)

// link is one peer link and its negotiation progress.
type link struct {
	peer  domain.PeerLink
	state domain.NegotiationState
}

// localOffers reports whether the local side is the one that sends the offer
// to remote. Both ends compute the same answer from the same inputs.
func (c *Controller) localOffers(s *session, remote string) bool {
	li, ri := c.roster.IndexOf(c.localID), c.roster.IndexOf(remote)
	if li >= 0 && ri >= 0 {
		return li < ri
	}
	pi, pr := indexOf(s.participants, c.localID), indexOf(s.participants, remote)
	if pi >= 0 && pr >= 0 {
		return pi < pr
	}
	return c.localID < remote
}

// reconcile makes the link set equal participants minus the local user.
func (c *Controller) reconcile(s *session) {
	want := make(map[string]bool, len(s.participants))
	for _, id := range s.participants {
		if id != c.localID {
			want[id] = true
		}
	}
	for _, id := range sortedKeys(s.links) {
		if !want[id] {
			c.closeLink(s, id)
		}
	}
	for _, id := range s.participants {
		if id == c.localID || s.links[id] != nil {
			continue
		}
		l := c.openLink(s, id)
		if l != nil && c.localOffers(s, id) {
			c.offer(s, id, l)
		}
	}
}

func (c *Controller) openLink(s *session, id string) *link {
	l := &link{state: domain.NegotiationNew}
	peer, err := c.links.NewLink(id, s.media, domain.LinkEvents{
		OnCandidate: func(cand domain.ICECandidatePayload) {
			c.sched.Post(func() {
				if c.linkCurrent(s, id, l) {
					c.sendSignal(s, id, domain.NewCandidateSignal(cand))
				}
			})
		},
		OnTrack: func(media domain.RemoteMedia) {
			c.sched.Post(func() {
				if c.linkCurrent(s, id, l) {
					c.ui.ParticipantMediaAdded(id, media)
				}
			})
		},
	})
	if err != nil {
		c.log.Error().Err(err).Str("peer", id).Msg("create peer link")
		c.ui.SystemMessage(fmt.Sprintf("Could not connect to %s", id))
		return nil
	}
	l.peer = peer
	s.links[id] = l
	c.log.Debug().Str("peer", id).Msg("peer link created")
	return l
}

func (c *Controller) closeLink(s *session, id string) {
	l, ok := s.links[id]
	if !ok {
		return
	}
	delete(s.links, id)
	if err := l.peer.Close(); err != nil {
		c.log.Warn().Err(err).Str("peer", id).Msg("close peer link")
	}
	c.ui.ParticipantMediaRemoved(id)
}

// linkCurrent reports whether l is still the live link to id in the active session s.
func (c *Controller) linkCurrent(s *session, id string, l *link) bool {
	return c.session == s && s.state == domain.CallActive && s.links[id] == l
}

func (c *Controller) offer(s *session, id string, l *link) {
	l.state = domain.NegotiationOfferSent
	peer := l.peer

	var (
		sdp string
		err error
	)
	c.sched.Go(func() {
		sdp, err = peer.CreateOffer(context.Background())
	}, func() {
		if !c.linkCurrent(s, id, l) {
			return
		}
		if err != nil {
			c.fail(id, l, err)
			return
		}
		c.sendSignal(s, id, domain.NewOfferSignal(sdp))
	}, nil)
}

func (c *Controller) handleSignal(e domain.CallSignal) {
	s := c.current(e.CallID)
	if s == nil {
		c.log.Debug().Str("call_id", e.CallID).Msg("signal for another call")
		return
	}
	if e.Username == "" || e.Username == c.localID {
		return
	}
	if e.Target != "" && e.Target != c.localID {
		return
	}

	switch s.state {
	case domain.CallOutgoing:
		s.pending = append(s.pending, e)
	case domain.CallRinging:
		if s.acquiring {
			s.pending = append(s.pending, e)
		}
	case domain.CallActive:
		c.applySignal(s, e)
	}
}

func (c *Controller) applySignal(s *session, e domain.CallSignal) {
	from := e.Username
	if s.departed[from] {
		c.log.Debug().Str("peer", from).Str("signal", string(e.Signal.Type)).Msg("signal from departed participant")
		return
	}
	s.participants = appendUnique(s.participants, from)

	l := s.links[from]
	if l == nil {
		if l = c.openLink(s, from); l == nil {
			return
		}
	}

	switch e.Signal.Type {
	case domain.SignalOffer:
		c.acceptOffer(s, from, l, e.Signal.SDP)
	case domain.SignalAnswer:
		c.acceptAnswer(from, l, e.Signal.SDP)
	case domain.SignalCandidate:
		if e.Signal.Candidate == nil {
			return
		}
		if err := l.peer.AddCandidate(*e.Signal.Candidate); err != nil {
			c.fail(from, l, err)
		}
	default:
		c.log.Warn().Str("peer", from).Str("signal", string(e.Signal.Type)).Msg("unknown signal type")
	}
}

func (c *Controller) acceptOffer(s *session, from string, l *link, sdp *domain.SDPPayload) {
	if sdp == nil || sdp.SDP == "" {
		c.fail(from, l, errors.New("offer without sdp"))
		return
	}
	if l.state == domain.NegotiationOfferSent {
		if c.localOffers(s, from) {
			c.log.Debug().Str("peer", from).Msg("glare, keeping our offer")
			return
		}
		c.log.Debug().Str("peer", from).Msg("glare, yielding to remote offer")
		c.closeLink(s, from)
		if l = c.openLink(s, from); l == nil {
			return
		}
	}

	l.state = domain.NegotiationOfferReceived
	peer := l.peer

	var (
		answer string
		err    error
	)
	c.sched.Go(func() {
		answer, err = peer.AcceptOffer(context.Background(), sdp.SDP)
	}, func() {
		if !c.linkCurrent(s, from, l) {
			return
		}
		if err != nil {
			c.fail(from, l, err)
			return
		}
		l.state = domain.NegotiationStable
		c.sendSignal(s, from, domain.NewAnswerSignal(answer))
	}, nil)
}

func (c *Controller) acceptAnswer(from string, l *link, sdp *domain.SDPPayload) {
	if sdp == nil || sdp.SDP == "" {
		c.fail(from, l, errors.New("answer without sdp"))
		return
	}
	if l.state != domain.NegotiationOfferSent {
		c.log.Warn().Str("peer", from).Str("state", l.state.String()).Msg("answer without outstanding offer")
	}
	if err := l.peer.AcceptAnswer(sdp.SDP); err != nil {
		c.fail(from, l, err)
		return
	}
	l.state = domain.NegotiationStable
}

func (c *Controller) fail(id string, l *link, err error) {
	l.state = domain.NegotiationFailed
	c.log.Error().Err(fmt.Errorf("%w: %v", domain.ErrNegotiationFailed, err)).Str("peer", id).Msg("negotiation")
	c.ui.SystemMessage(fmt.Sprintf("Connection to %s failed", id))
}

func (c *Controller) sendSignal(s *session, to string, sig domain.Signal) {
	_ = c.send(domain.CallSignal{
		Username: c.localID,
		Target:   to,
		CallID:   s.callID,
		Signal:   sig,
	})
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func appendUnique(ids []string, id string) []string {
	if id == "" || indexOf(ids, id) >= 0 {
		return ids
	}
	return append(ids, id)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = appendUnique(out, id)
	}
	return out
}

func sortedKeys(m map[string]*link) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
