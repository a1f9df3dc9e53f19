package webrtc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"meshchat/native/internal/domain"

	"github.com/pion/rtcp"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// link wraps one Pion PeerConnection to a call participant.
type link struct {
	remoteID string
	pc       *pion.PeerConnection
	events   domain.LinkEvents
	log      zerolog.Logger

	mu        sync.Mutex
	remoteSet bool
	pending   []pion.ICECandidateInit

	closeOnce sync.Once
	closeErr  error
}

func newLink(remoteID string, pc *pion.PeerConnection, events domain.LinkEvents, log zerolog.Logger) *link {
	l := &link{
		remoteID: remoteID,
		pc:       pc,
		events:   events,
		log:      log,
	}

	pc.OnICECandidate(l.onICECandidate)
	pc.OnTrack(l.onTrack)
	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		l.log.Debug().Str("state", state.String()).Msg("ICE connection state")
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		l.log.Info().Str("state", state.String()).Msg("peer connection state")
	})

	return l
}

// attach adds the local tracks, or receive-only transceivers when there is
// no local media.
func (l *link) attach(media *LocalMedia) error {
	if media == nil {
		for _, kind := range []pion.RTPCodecType{pion.RTPCodecTypeAudio, pion.RTPCodecTypeVideo} {
			_, err := l.pc.AddTransceiverFromKind(kind, pion.RTPTransceiverInit{
				Direction: pion.RTPTransceiverDirectionRecvonly,
			})
			if err != nil {
				return fmt.Errorf("add %s transceiver: %w", kind, err)
			}
		}
		return nil
	}

	for _, track := range media.tracks() {
		sender, err := l.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		// Interceptors only see RTCP that is read.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	}
	return nil
}

func (l *link) RemoteID() string { return l.remoteID }

// CreateOffer creates an SDP offer and sets it as the local description.
func (l *link) CreateOffer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	l.log.Debug().Msg("local SDP offer set")
	return offer.SDP, nil
}

// AcceptOffer applies a remote offer and returns the local answer.
func (l *link) AcceptOffer(ctx context.Context, sdp string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	offer := pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: sdp}
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}
	l.flushCandidates()

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	l.log.Debug().Msg("remote offer applied, answer set")
	return answer.SDP, nil
}

// AcceptAnswer applies the remote answer to our outstanding offer.
func (l *link) AcceptAnswer(sdp string) error {
	answer := pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: sdp}
	if err := l.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	l.flushCandidates()

	l.log.Debug().Msg("remote SDP answer set")
	return nil
}

// AddCandidate applies a remote candidate, holding it back until a remote
// description is in place.
func (l *link) AddCandidate(candidate domain.ICECandidatePayload) error {
	init := pion.ICECandidateInit{
		Candidate:        candidate.Candidate,
		SDPMid:           candidate.SDPMid,
		SDPMLineIndex:    candidate.SDPMLineIndex,
		UsernameFragment: candidate.UsernameFragment,
	}

	l.mu.Lock()
	if !l.remoteSet {
		l.pending = append(l.pending, init)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if err := l.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

func (l *link) flushCandidates() {
	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, init := range pending {
		if err := l.pc.AddICECandidate(init); err != nil {
			l.log.Warn().Err(err).Msg("add buffered ice candidate")
		}
	}
}

func (l *link) pendingCandidates() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Close shuts the peer connection down. Calling it again is a no-op.
func (l *link) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.pc.Close()
		l.log.Debug().Msg("peer link closed")
	})
	return l.closeErr
}

func (l *link) onICECandidate(c *pion.ICECandidate) {
	if c == nil {
		l.log.Debug().Msg("ICE gathering complete")
		return
	}

	init := c.ToJSON()
	if isLoopback(init.Candidate) {
		return
	}
	if l.events.OnCandidate != nil {
		l.events.OnCandidate(domain.ICECandidatePayload{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	}
}

func (l *link) onTrack(track *pion.TrackRemote, _ *pion.RTPReceiver) {
	codec := track.Codec()
	l.log.Info().
		Str("kind", track.Kind().String()).
		Str("codec", codec.MimeType).
		Uint8("pt", uint8(codec.PayloadType)).
		Msg("got track")

	if track.Kind() == pion.RTPCodecTypeVideo {
		err := l.pc.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
		})
		if err != nil && !errors.Is(err, pion.ErrConnectionClosed) {
			l.log.Debug().Err(err).Msg("send PLI")
		}
	}

	if l.events.OnTrack != nil {
		l.events.OnTrack(newRemoteTrack(track.Kind().String(), codec.MimeType, track, l.log))
	}
}

func isLoopback(candidate string) bool {
	return strings.Contains(candidate, "127.0.0.1") || strings.Contains(candidate, "::1 ")
}
