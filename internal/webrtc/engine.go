// Package webrtc backs the call's peer links and local media with Pion.
package webrtc

import (
	"context"
	"fmt"

	"meshchat/native/internal/domain"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/interceptor/pkg/nack"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Engine creates peer links and local media. It implements
// domain.LinkFactory and domain.MediaAcquirer.
type Engine struct {
	api        *pion.API
	iceServers []pion.ICEServer
	videoFile  string
	audioFile  string
	log        zerolog.Logger
}

// MediaFiles names optional on-disk sources for the local tracks: an IVF
// (VP8) file for video and an Ogg (Opus) file for audio. Empty names leave
// the matching track silent.
type MediaFiles struct {
	Video string
	Audio string
}

// NewEngine builds the Pion API shared by every link.
func NewEngine(iceServers []domain.ICEServer, files MediaFiles, log zerolog.Logger) (*Engine, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	m.RegisterFeedback(pion.RTCPFeedback{Type: "nack"}, pion.RTPCodecTypeVideo)
	m.RegisterFeedback(pion.RTCPFeedback{Type: "nack", Parameter: "pli"}, pion.RTPCodecTypeVideo)

	i := &interceptor.Registry{}
	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack generator: %w", err)
	}
	i.Add(generator)

	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	i.Add(responder)

	pli, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create pli interceptor: %w", err)
	}
	i.Add(pli)

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
	)

	var servers []pion.ICEServer
	for _, s := range iceServers {
		servers = append(servers, pion.ICEServer{
			URLs:       []string{s.URL},
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	return &Engine{
		api:        api,
		iceServers: servers,
		videoFile:  files.Video,
		audioFile:  files.Audio,
		log:        log,
	}, nil
}

// Acquire creates the local track set and starts any file feeders.
func (e *Engine) Acquire(ctx context.Context, constraints domain.MediaConstraints) (domain.LocalMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	media, err := newLocalMedia(constraints, e.videoFile, e.audioFile, e.log)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaAcquisitionDenied, err)
	}
	if err := ctx.Err(); err != nil {
		media.Release()
		return nil, err
	}
	return media, nil
}

// NewLink creates a peer connection to remoteID carrying media's tracks.
// media may be nil, in which case the link only receives.
func (e *Engine) NewLink(remoteID string, media domain.LocalMedia, events domain.LinkEvents) (domain.PeerLink, error) {
	var local *LocalMedia
	if media != nil {
		lm, ok := media.(*LocalMedia)
		if !ok {
			return nil, fmt.Errorf("unsupported local media %T", media)
		}
		local = lm
	}

	pc, err := e.api.NewPeerConnection(pion.Configuration{
		ICEServers:   e.iceServers,
		BundlePolicy: pion.BundlePolicyMaxBundle,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	l := newLink(remoteID, pc, events, e.log.With().Str("peer", remoteID).Logger())
	if err := l.attach(local); err != nil {
		pc.Close()
		return nil, err
	}
	return l, nil
}
