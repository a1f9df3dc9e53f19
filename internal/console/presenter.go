// Package console is the terminal front end: a line-oriented presenter and
// the command reader that drives a chat session.
package console

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"meshchat/native/internal/domain"

	"github.com/rs/zerolog"
)

// Presenter prints chat and call events to a terminal. It implements
// domain.Presenter. When a record directory is set, each participant's H264
// video is saved there as an Annex-B file.
type Presenter struct {
	out       io.Writer
	recordDir string
	now       func() time.Time
	log       zerolog.Logger

	mu sync.Mutex
}

var _ domain.Presenter = (*Presenter)(nil)

// NewPresenter creates a presenter writing to out.
func NewPresenter(out io.Writer, recordDir string, log zerolog.Logger) *Presenter {
	return &Presenter{
		out:       out,
		recordDir: recordDir,
		now:       time.Now,
		log:       log,
	}
}

func (p *Presenter) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stamp := timeStyle.Render(p.now().Format("15:04:05"))
	fmt.Fprintf(p.out, "%s %s\n", stamp, line)
}

func (p *Presenter) name(user string, own bool) string {
	if own {
		return ownStyle.Render(user)
	}
	return peerStyle.Render(user)
}

func messageTag(id string) string {
	if id == "" {
		return ""
	}
	return " " + idStyle.Render("#"+id)
}

func (p *Presenter) ConnectionStatus(status domain.ConnectionStatus) {
	if status == domain.StatusError {
		p.println(errorStyle.Render(status.String()))
		return
	}
	p.println(statusStyle.Render(status.String()))
}

func (p *Presenter) RosterChanged(participants []domain.Participant) {
	p.println(systemStyle.Render(fmt.Sprintf("%d online", len(participants))))
}

// Roster prints the full participant list.
func (p *Presenter) Roster(participants []domain.Participant) {
	names := make([]string, 0, len(participants))
	for _, u := range participants {
		names = append(names, u.DisplayLabel)
	}
	p.println(systemStyle.Render("online: " + strings.Join(names, ", ")))
}

func (p *Presenter) UserJoined(username string) {
	p.println(systemStyle.Render(username + " joined the chat"))
}

func (p *Presenter) UserLeft(username string) {
	p.println(systemStyle.Render(username + " left the chat"))
}

func (p *Presenter) ChatMessage(from, messageID, text string, own bool) {
	p.println(fmt.Sprintf("%s%s: %s", p.name(from, own), messageTag(messageID), text))
}

func (p *Presenter) FileShared(from, messageID, url string, isImage, own bool) {
	kind := "a file"
	if isImage {
		kind = "an image"
	}
	p.println(fmt.Sprintf("%s%s shared %s: %s", p.name(from, own), messageTag(messageID), kind, url))
}

func (p *Presenter) LocationShared(from string, latitude, longitude float64, own bool) {
	p.println(fmt.Sprintf("%s shared a location: https://www.openstreetmap.org/?mlat=%.6f&mlon=%.6f",
		p.name(from, own), latitude, longitude))
}

func (p *Presenter) MessageDeleted(from, messageID string) {
	p.println(systemStyle.Render(fmt.Sprintf("%s deleted message #%s", from, messageID)))
}

func (p *Presenter) MessageEdited(from, messageID, text string) {
	p.println(fmt.Sprintf("%s%s (edited): %s", p.name(from, false), messageTag(messageID), text))
}

func (p *Presenter) CallStateChanged(state domain.CallState, callID string) {
	switch state {
	case domain.CallRinging:
		p.println(callStyle.Render("incoming call, /accept or /decline"))
	case domain.CallIdle:
		// Ended already said everything.
	default:
		p.println(callStyle.Render("call " + state.String()))
	}
	p.log.Debug().Str("state", state.String()).Str("call_id", callID).Msg("call state")
}

func (p *Presenter) CallDuration(elapsed time.Duration) {
	p.println(callStyle.Render("in call " + elapsed.String()))
}

func (p *Presenter) ParticipantMediaAdded(id string, media domain.RemoteMedia) {
	p.println(callStyle.Render(fmt.Sprintf("receiving %s from %s", media.Kind(), id)))

	w, closeFn := p.recorder(id, media)
	go func() {
		defer closeFn()
		if err := media.Sink(w); err != nil {
			p.log.Debug().Err(err).Str("peer", id).Str("kind", media.Kind()).Msg("remote media ended")
		}
	}()
}

func (p *Presenter) ParticipantMediaRemoved(id string) {
	p.println(callStyle.Render(id + " disconnected from the call"))
}

func (p *Presenter) SystemMessage(text string) {
	p.println(systemStyle.Render(text))
}

// Error prints a failed command.
func (p *Presenter) Error(err error) {
	p.println(errorStyle.Render(err.Error()))
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// recorder picks where remote media goes: a file for H264 video when
// recording, otherwise nowhere.
func (p *Presenter) recorder(id string, media domain.RemoteMedia) (io.Writer, func()) {
	if p.recordDir == "" || media.Kind() != "video" || !strings.EqualFold(media.MimeType(), "video/H264") {
		return io.Discard, func() {}
	}

	name := fmt.Sprintf("%s-%s.h264", unsafeName.ReplaceAllString(id, "_"), p.now().Format("20060102-150405"))
	path := filepath.Join(p.recordDir, name)
	f, err := os.Create(path)
	if err != nil {
		p.log.Error().Err(err).Str("path", path).Msg("create recording")
		return io.Discard, func() {}
	}
	p.SystemMessage("recording " + id + " to " + path)
	return f, func() { f.Close() }
}
