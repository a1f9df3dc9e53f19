package console

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"meshchat/native/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{line: "   ", want: Command{}},
		{line: "hello there", want: Command{Name: "say", Text: "hello there"}},
		{line: "/call", want: Command{Name: "call"}},
		{line: "/hangup", want: Command{Name: "hangup"}},
		{line: "/location 52.37 4.89", want: Command{Name: "location", Lat: 52.37, Lon: 4.89}},
		{line: "/file ~/pics/cat 1.png", want: Command{Name: "file", Path: "~/pics/cat 1.png"}},
		{line: "/delete 1712", want: Command{Name: "delete", ID: "1712"}},
		{line: "/edit 1712 fixed the typo", want: Command{Name: "edit", ID: "1712", Text: "fixed the typo"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, line := range []string{
		"/location 52.37",
		"/location north 4.89",
		"/file",
		"/delete",
		"/delete 1 2",
		"/edit 1712",
		"/dance",
	} {
		_, err := Parse(line)
		assert.Error(t, err, line)
	}
}

type fakeActions struct {
	said    []string
	calls   []string
	muted   bool
	callErr error
}

func (a *fakeActions) SendMessage(text string) error { a.said = append(a.said, text); return nil }
func (a *fakeActions) SendFile(_ context.Context, path string) error {
	a.calls = append(a.calls, "file "+path)
	return nil
}
func (a *fakeActions) ShareLocation(lat, lon float64) error {
	a.calls = append(a.calls, "location")
	return nil
}
func (a *fakeActions) DeleteMessage(id string) error { a.calls = append(a.calls, "delete "+id); return nil }
func (a *fakeActions) EditMessage(id, text string) error {
	a.calls = append(a.calls, "edit "+id+" "+text)
	return nil
}
func (a *fakeActions) Participants() []domain.Participant {
	return []domain.Participant{{ID: "alice", DisplayLabel: "alice"}, {ID: "bob", DisplayLabel: "bob"}}
}
func (a *fakeActions) InitiateCall() error { a.calls = append(a.calls, "call"); return a.callErr }
func (a *fakeActions) AcceptCall() error   { a.calls = append(a.calls, "accept"); return nil }
func (a *fakeActions) DeclineCall() error  { a.calls = append(a.calls, "decline"); return nil }
func (a *fakeActions) EndCall() error      { a.calls = append(a.calls, "hangup"); return domain.ErrNotInCall }
func (a *fakeActions) ToggleMute() (bool, error) {
	a.muted = !a.muted
	return a.muted, nil
}
func (a *fakeActions) ToggleVideo() (bool, error) { return false, domain.ErrNoLocalMedia }

func newTestPresenter(out io.Writer, recordDir string) *Presenter {
	p := NewPresenter(out, recordDir, zerolog.Nop())
	p.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC) }
	return p
}

func TestConsole_RunDispatchesUntilQuit(t *testing.T) {
	var out bytes.Buffer
	actions := &fakeActions{callErr: domain.ErrNoOneToCall}
	c := New(actions, newTestPresenter(&out, ""))

	input := strings.Join([]string{
		"hi all",
		"",
		"/call",
		"/mute",
		"/video",
		"/hangup",
		"/users",
		"/edit 9 better",
		"/bogus",
		"/quit",
		"never sent",
	}, "\n")

	require.NoError(t, c.Run(context.Background(), strings.NewReader(input)))

	assert.Equal(t, []string{"hi all"}, actions.said)
	assert.Equal(t, []string{"call", "hangup", "edit 9 better"}, actions.calls)

	text := out.String()
	assert.Contains(t, text, "microphone off")
	assert.Contains(t, text, domain.ErrNoLocalMedia.Error())
	assert.Contains(t, text, domain.ErrNotInCall.Error())
	assert.NotContains(t, text, domain.ErrNoOneToCall.Error(), "already announced by the session")
	assert.Contains(t, text, "online: alice, bob")
	assert.Contains(t, text, "unknown command /bogus")
}

func TestConsole_RunStopsAtEndOfInput(t *testing.T) {
	actions := &fakeActions{}
	c := New(actions, newTestPresenter(io.Discard, ""))

	require.NoError(t, c.Run(context.Background(), strings.NewReader("/accept\n/decline")))
	assert.Equal(t, []string{"accept", "decline"}, actions.calls)
}

func TestPresenter_Lines(t *testing.T) {
	var out bytes.Buffer
	p := newTestPresenter(&out, "")

	p.ChatMessage("bob", "42", "hello", false)
	p.FileShared("alice", "", "http://files/Uploads/a.png", true, true)
	p.LocationShared("bob", 52.37, 4.89, false)
	p.CallStateChanged(domain.CallRinging, "c1")
	p.CallStateChanged(domain.CallIdle, "")
	p.ConnectionStatus(domain.StatusConnected)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "12:30:00")
	assert.Contains(t, lines[0], "bob")
	assert.Contains(t, lines[0], "#42")
	assert.Contains(t, lines[0], "hello")
	assert.Contains(t, lines[1], "shared an image")
	assert.Contains(t, lines[2], "mlat=52.370000")
	assert.Contains(t, lines[3], "incoming call")
	assert.Contains(t, lines[4], "Connected")
}

type fakeRemote struct {
	kind, mime string
	data       []byte
}

func (r fakeRemote) Kind() string     { return r.kind }
func (r fakeRemote) MimeType() string { return r.mime }
func (r fakeRemote) Sink(w io.Writer) error {
	_, err := w.Write(r.data)
	return err
}

func TestPresenter_RecordsH264Video(t *testing.T) {
	dir := t.TempDir()
	p := newTestPresenter(io.Discard, dir)

	p.ParticipantMediaAdded("bob/1", fakeRemote{kind: "video", mime: "video/H264", data: []byte{0, 0, 0, 1, 0x65}})
	p.ParticipantMediaAdded("bob/1", fakeRemote{kind: "audio", mime: "audio/opus", data: []byte{1}})

	path := filepath.Join(dir, "bob_1-20240501-123000.h264")
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && len(data) == 5
	}, time.Second, 5*time.Millisecond)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
