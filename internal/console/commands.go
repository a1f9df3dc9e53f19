package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"meshchat/native/internal/domain"
)

// Command is one parsed input line.
type Command struct {
	Name string // "say" for plain chat lines
	Text string
	ID   string
	Path string
	Lat  float64
	Lon  float64
}

const usage = `commands:
  /call                 start a call with everyone online
  /accept, /decline     answer an incoming call
  /hangup               leave the call
  /mute, /video         toggle your microphone or camera
  /location <lat> <lon> share a position
  /file <path>          upload and share a file
  /delete <id>          delete one of your messages
  /edit <id> <text>     edit one of your messages
  /users                list who is online
  /quit                 leave the chat
anything else is sent as a message`

// Parse turns an input line into a Command. Blank lines yield a zero Command.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return Command{Name: "say", Text: line}, nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "call", "accept", "decline", "hangup", "mute", "video", "users", "quit", "help":
		return Command{Name: name}, nil
	case "location":
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return Command{}, errors.New("usage: /location <lat> <lon>")
		}
		lat, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return Command{}, fmt.Errorf("latitude: %w", err)
		}
		lon, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Command{}, fmt.Errorf("longitude: %w", err)
		}
		return Command{Name: name, Lat: lat, Lon: lon}, nil
	case "file":
		if rest == "" {
			return Command{}, errors.New("usage: /file <path>")
		}
		return Command{Name: name, Path: rest}, nil
	case "delete":
		if rest == "" || strings.ContainsAny(rest, " \t") {
			return Command{}, errors.New("usage: /delete <id>")
		}
		return Command{Name: name, ID: rest}, nil
	case "edit":
		id, text, _ := strings.Cut(rest, " ")
		text = strings.TrimSpace(text)
		if id == "" || text == "" {
			return Command{}, errors.New("usage: /edit <id> <text>")
		}
		return Command{Name: name, ID: id, Text: text}, nil
	default:
		return Command{}, fmt.Errorf("unknown command /%s, try /help", name)
	}
}

// Actions is what the console can ask of a chat session.
type Actions interface {
	SendMessage(text string) error
	SendFile(ctx context.Context, path string) error
	ShareLocation(latitude, longitude float64) error
	DeleteMessage(messageID string) error
	EditMessage(messageID, text string) error
	Participants() []domain.Participant
	InitiateCall() error
	AcceptCall() error
	DeclineCall() error
	EndCall() error
	ToggleMute() (bool, error)
	ToggleVideo() (bool, error)
}

// Console reads commands and runs them against a session.
type Console struct {
	actions Actions
	ui      *Presenter
}

// New creates a Console.
func New(actions Actions, ui *Presenter) *Console {
	return &Console{actions: actions, ui: ui}
}

// Run reads lines from in until /quit, end of input, or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case line := <-lines:
			cmd, err := Parse(line)
			if err != nil {
				c.ui.Error(err)
				continue
			}
			if cmd.Name == "quit" {
				return nil
			}
			c.Execute(ctx, cmd)
		}
	}
}

// Execute runs one command and prints any failure.
func (c *Console) Execute(ctx context.Context, cmd Command) {
	var err error
	switch cmd.Name {
	case "":
		return
	case "say":
		err = c.actions.SendMessage(cmd.Text)
	case "help":
		c.ui.SystemMessage(usage)
	case "users":
		c.ui.Roster(c.actions.Participants())
	case "call":
		err = c.actions.InitiateCall()
	case "accept":
		err = c.actions.AcceptCall()
	case "decline":
		err = c.actions.DeclineCall()
	case "hangup":
		err = c.actions.EndCall()
	case "mute":
		var muted bool
		if muted, err = c.actions.ToggleMute(); err == nil {
			c.ui.SystemMessage(toggled("microphone", !muted))
		}
	case "video":
		var off bool
		if off, err = c.actions.ToggleVideo(); err == nil {
			c.ui.SystemMessage(toggled("camera", !off))
		}
	case "location":
		err = c.actions.ShareLocation(cmd.Lat, cmd.Lon)
	case "file":
		err = c.actions.SendFile(ctx, cmd.Path)
	case "delete":
		err = c.actions.DeleteMessage(cmd.ID)
	case "edit":
		err = c.actions.EditMessage(cmd.ID, cmd.Text)
	}

	if err != nil && !announced(err) {
		c.ui.Error(err)
	}
}

func toggled(device string, on bool) string {
	if on {
		return device + " on"
	}
	return device + " off"
}

// announced reports whether the session already told the user about err.
func announced(err error) bool {
	return errors.Is(err, domain.ErrChannelClosed) ||
		errors.Is(err, domain.ErrNoOneToCall) ||
		errors.Is(err, domain.ErrAlreadyInCall)
}
