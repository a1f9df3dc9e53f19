package webrtc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"meshchat/native/internal/domain"

	"github.com/google/uuid"
	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog"
)

const oggPageDuration = 20 * time.Millisecond

// LocalMedia is the local track set of a call. One instance is attached to
// every link, so muting or hiding applies to all participants at once.
type LocalMedia struct {
	audio *pion.TrackLocalStaticSample
	video *pion.TrackLocalStaticSample

	audioOn atomic.Bool
	videoOn atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	log      zerolog.Logger
}

var _ domain.LocalMedia = (*LocalMedia)(nil)

func newLocalMedia(constraints domain.MediaConstraints, videoFile, audioFile string, log zerolog.Logger) (*LocalMedia, error) {
	m := &LocalMedia{
		stop: make(chan struct{}),
		log:  log,
	}
	streamID := "meshchat-" + uuid.NewString()

	var (
		videoSrc *os.File
		audioSrc *os.File
		err      error
	)
	if constraints.Video {
		m.video, err = pion.NewTrackLocalStaticSample(
			pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8},
			"video",
			streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("create video track: %w", err)
		}
		if videoFile != "" {
			if videoSrc, err = os.Open(videoFile); err != nil {
				return nil, fmt.Errorf("open video source: %w", err)
			}
		}
	}
	if constraints.Audio {
		m.audio, err = pion.NewTrackLocalStaticSample(
			pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus},
			"audio",
			streamID,
		)
		if err != nil {
			closeFile(videoSrc)
			return nil, fmt.Errorf("create audio track: %w", err)
		}
		if audioFile != "" {
			if audioSrc, err = os.Open(audioFile); err != nil {
				closeFile(videoSrc)
				return nil, fmt.Errorf("open audio source: %w", err)
			}
		}
	}

	m.audioOn.Store(m.audio != nil)
	m.videoOn.Store(m.video != nil)

	if videoSrc != nil {
		m.wg.Add(1)
		go m.feedIVF(videoSrc)
	}
	if audioSrc != nil {
		m.wg.Add(1)
		go m.feedOgg(audioSrc)
	}
	return m, nil
}

func (m *LocalMedia) tracks() []pion.TrackLocal {
	var out []pion.TrackLocal
	if m.audio != nil {
		out = append(out, m.audio)
	}
	if m.video != nil {
		out = append(out, m.video)
	}
	return out
}

func (m *LocalMedia) SetAudioEnabled(enabled bool) {
	if m.audio != nil {
		m.audioOn.Store(enabled)
	}
}

func (m *LocalMedia) SetVideoEnabled(enabled bool) {
	if m.video != nil {
		m.videoOn.Store(enabled)
	}
}

func (m *LocalMedia) AudioEnabled() bool { return m.audioOn.Load() }
func (m *LocalMedia) VideoEnabled() bool { return m.videoOn.Load() }

// Release stops every feeder and waits for them to exit.
func (m *LocalMedia) Release() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.wg.Wait()
		m.log.Debug().Msg("local media released")
	})
}

// feedIVF writes VP8 frames from an IVF file at the file's frame rate,
// looping at the end. Frames read while video is off are dropped.
func (m *LocalMedia) feedIVF(f *os.File) {
	defer m.wg.Done()
	defer f.Close()

	ivf, header, err := ivfreader.NewWith(f)
	if err != nil {
		m.log.Error().Err(err).Msg("read ivf header")
		return
	}
	frameDuration := time.Second * time.Duration(header.TimebaseNumerator) / time.Duration(header.TimebaseDenominator)
	if frameDuration <= 0 {
		frameDuration = time.Second / 30
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if ivf, err = rewindIVF(f); err != nil {
				m.log.Error().Err(err).Msg("rewind ivf")
				return
			}
			continue
		}
		if err != nil {
			m.log.Error().Err(err).Msg("read ivf frame")
			return
		}

		if !m.videoOn.Load() {
			continue
		}
		if err := m.video.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			m.log.Debug().Err(err).Msg("write video sample")
		}
	}
}

// feedOgg writes Opus pages from an Ogg file, looping at the end. Pages read
// while audio is muted are dropped.
func (m *LocalMedia) feedOgg(f *os.File) {
	defer m.wg.Done()
	defer f.Close()

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		m.log.Error().Err(err).Msg("read ogg header")
		return
	}

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if ogg, err = rewindOgg(f); err != nil {
				m.log.Error().Err(err).Msg("rewind ogg")
				return
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			m.log.Error().Err(err).Msg("read ogg page")
			return
		}

		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples)/48000*1000) * time.Millisecond

		if !m.audioOn.Load() {
			continue
		}
		if err := m.audio.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			m.log.Debug().Err(err).Msg("write audio sample")
		}
	}
}

func rewindIVF(f *os.File) (*ivfreader.IVFReader, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r, _, err := ivfreader.NewWith(f)
	return r, err
}

func rewindOgg(f *os.File) (*oggreader.OggReader, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r, _, err := oggreader.NewWith(f)
	return r, err
}

func closeFile(f *os.File) {
	if f != nil {
		f.Close()
	}
}
