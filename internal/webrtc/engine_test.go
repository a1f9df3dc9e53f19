package webrtc

import (
	"context"
	"path/filepath"
	"testing"

	"meshchat/native/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, files MediaFiles) *Engine {
	t.Helper()
	e, err := NewEngine(nil, files, zerolog.Nop())
	require.NoError(t, err)
	return e
}

func acquire(t *testing.T, e *Engine) *LocalMedia {
	t.Helper()
	m, err := e.Acquire(context.Background(), domain.MediaConstraints{Audio: true, Video: true})
	require.NoError(t, err)
	t.Cleanup(m.Release)
	return m.(*LocalMedia)
}

func TestAcquire_TogglesApplyToTheWholeSet(t *testing.T) {
	m := acquire(t, newTestEngine(t, MediaFiles{}))

	require.Len(t, m.tracks(), 2)
	assert.True(t, m.AudioEnabled())
	assert.True(t, m.VideoEnabled())

	m.SetAudioEnabled(false)
	assert.False(t, m.AudioEnabled())
	assert.True(t, m.VideoEnabled())

	m.SetVideoEnabled(false)
	m.SetAudioEnabled(true)
	assert.True(t, m.AudioEnabled())
	assert.False(t, m.VideoEnabled())
}

func TestAcquire_AudioOnly(t *testing.T) {
	e := newTestEngine(t, MediaFiles{})
	media, err := e.Acquire(context.Background(), domain.MediaConstraints{Audio: true})
	require.NoError(t, err)
	defer media.Release()

	m := media.(*LocalMedia)
	require.Len(t, m.tracks(), 1)
	m.SetVideoEnabled(true)
	assert.False(t, m.VideoEnabled())
}

func TestAcquire_MissingSourceIsDenied(t *testing.T) {
	e := newTestEngine(t, MediaFiles{Video: filepath.Join(t.TempDir(), "missing.ivf")})

	_, err := e.Acquire(context.Background(), domain.MediaConstraints{Audio: true, Video: true})
	assert.ErrorIs(t, err, domain.ErrMediaAcquisitionDenied)
}

func TestAcquire_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(t, MediaFiles{}).Acquire(ctx, domain.MediaConstraints{Audio: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRelease_IsIdempotent(t *testing.T) {
	m := acquire(t, newTestEngine(t, MediaFiles{}))
	m.Release()
	m.Release()
}

func TestLink_OfferAnswerBetweenTwoLinks(t *testing.T) {
	e := newTestEngine(t, MediaFiles{})
	media := acquire(t, e)

	a, err := e.NewLink("bob", media, domain.LinkEvents{})
	require.NoError(t, err)
	defer a.Close()
	b, err := e.NewLink("alice", media, domain.LinkEvents{})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "bob", a.RemoteID())

	offer, err := a.CreateOffer(context.Background())
	require.NoError(t, err)
	assert.Contains(t, offer, "m=audio")
	assert.Contains(t, offer, "m=video")

	answer, err := b.AcceptOffer(context.Background(), offer)
	require.NoError(t, err)
	assert.Contains(t, answer, "a=setup:")

	require.NoError(t, a.AcceptAnswer(answer))
}

func TestLink_ReceiveOnlyWithoutMedia(t *testing.T) {
	e := newTestEngine(t, MediaFiles{})

	l, err := e.NewLink("bob", nil, domain.LinkEvents{})
	require.NoError(t, err)
	defer l.Close()

	offer, err := l.CreateOffer(context.Background())
	require.NoError(t, err)
	assert.Contains(t, offer, "a=recvonly")
}

func TestLink_CandidatesWaitForRemoteDescription(t *testing.T) {
	e := newTestEngine(t, MediaFiles{})
	media := acquire(t, e)

	a, err := e.NewLink("bob", media, domain.LinkEvents{})
	require.NoError(t, err)
	defer a.Close()
	b, err := e.NewLink("alice", media, domain.LinkEvents{})
	require.NoError(t, err)
	defer b.Close()

	mid := "0"
	var idx uint16
	require.NoError(t, b.AddCandidate(domain.ICECandidatePayload{
		Candidate:     "candidate:1 1 udp 2130706431 192.0.2.10 50000 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}))
	assert.Equal(t, 1, b.(*link).pendingCandidates())

	offer, err := a.CreateOffer(context.Background())
	require.NoError(t, err)
	_, err = b.AcceptOffer(context.Background(), offer)
	require.NoError(t, err)

	assert.Zero(t, b.(*link).pendingCandidates())
}

func TestLink_CloseIsIdempotent(t *testing.T) {
	e := newTestEngine(t, MediaFiles{})

	l, err := e.NewLink("bob", nil, domain.LinkEvents{})
	require.NoError(t, err)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}

type foreignMedia struct{ domain.LocalMedia }

func TestNewLink_RejectsForeignMedia(t *testing.T) {
	e := newTestEngine(t, MediaFiles{})

	_, err := e.NewLink("bob", foreignMedia{}, domain.LinkEvents{})
	assert.Error(t, err)
}
