package webrtc

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type rtpSource interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// remoteTrack is a track received from a participant. Sink must be called
// exactly once; until it is, Pion buffers the incoming packets.
type remoteTrack struct {
	kind string
	mime string
	src  rtpSource
	log  zerolog.Logger
}

func newRemoteTrack(kind, mime string, src rtpSource, log zerolog.Logger) *remoteTrack {
	return &remoteTrack{kind: kind, mime: mime, src: src, log: log}
}

func (t *remoteTrack) Kind() string     { return t.kind }
func (t *remoteTrack) MimeType() string { return t.mime }

// Sink reads the track until it ends. H264 video is written to w as an
// Annex-B byte stream; anything else is read and discarded.
func (t *remoteTrack) Sink(w io.Writer) error {
	h264 := strings.EqualFold(t.mime, pion.MimeTypeH264)
	if !h264 && w != io.Discard {
		t.log.Debug().Str("codec", t.mime).Msg("no recorder for codec, draining")
	}

	depack := NewH264Depacketizer()
	for {
		pkt, _, err := t.src.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read %s track: %w", t.kind, err)
		}
		if !h264 {
			continue
		}
		if err := writeAnnexB(w, depack.Depacketize(pkt.SequenceNumber, pkt.Payload)); err != nil {
			return fmt.Errorf("write %s track: %w", t.kind, err)
		}
	}
}
