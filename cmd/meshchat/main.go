package main

import (
	"context"
	"errors"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"meshchat/native/internal/api"
	"meshchat/native/internal/config"
	"meshchat/native/internal/console"
	"meshchat/native/internal/domain"
	"meshchat/native/internal/session"
	sigclient "meshchat/native/internal/signal"
	"meshchat/native/internal/webrtc"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const longHelp = `meshchat - terminal chat room with full-mesh WebRTC calls

Chat lines go to the relay; /call rings everyone online and every
participant connects directly to every other one.

Environment variables (or a .env file):
  MESHCHAT_USERNAME       name shown to others (required unless --username)
  MESHCHAT_RELAY_URL      relay WebSocket URL (default ws://localhost:8887)
  MESHCHAT_UPLOAD_URL     upload server for /file, e.g. http://localhost:3000
  MESHCHAT_ICE_SERVERS    comma-separated STUN/TURN URLs, user:pass@turn:host
  MESHCHAT_VIDEO_FILE     IVF (VP8) file sent as the camera
  MESHCHAT_AUDIO_FILE     Ogg (Opus) file sent as the microphone
  MESHCHAT_RECORD_DIR     save received H264 video here
  MESHCHAT_LOG_LEVEL      trace, debug, info, warn, error (default info)

Examples:
  # Join as alice with a looping test pattern as camera
  meshchat -u alice --video testsrc.ivf --audio tone.ogg

  # Record whatever H264 video peers send
  meshchat -u bob --record-dir ./calls`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		username, avatar, relayURL, uploadURL string
		videoFile, audioFile, recordDir        string
		logLevel                               string
		noVideo                                bool
	)

	cmd := &cobra.Command{
		Use:          "meshchat",
		Short:        "Terminal chat room with full-mesh WebRTC calls",
		Long:         longHelp,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			override := func(name string, dst *string, val string) {
				if flags.Changed(name) {
					*dst = val
				}
			}
			override("username", &cfg.Username, username)
			override("avatar", &cfg.Avatar, avatar)
			override("relay", &cfg.RelayURL, relayURL)
			override("upload", &cfg.UploadURL, uploadURL)
			override("video", &cfg.VideoFile, videoFile)
			override("audio", &cfg.AudioFile, audioFile)
			override("record-dir", &cfg.RecordDir, recordDir)
			if flags.Changed("log-level") {
				if cfg.LogLevel, err = zerolog.ParseLevel(logLevel); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return run(cmd.Context(), cfg, domain.MediaConstraints{Audio: true, Video: !noVideo})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&username, "username", "u", "", "name shown to others")
	f.StringVar(&avatar, "avatar", "", "avatar URL")
	f.StringVar(&relayURL, "relay", "", "relay WebSocket URL")
	f.StringVar(&uploadURL, "upload", "", "upload server base URL")
	f.StringVar(&videoFile, "video", "", "IVF file to send as video")
	f.StringVar(&audioFile, "audio", "", "Ogg/Opus file to send as audio")
	f.StringVar(&recordDir, "record-dir", "", "directory for received H264 video")
	f.StringVar(&logLevel, "log-level", "", "log level")
	f.BoolVar(&noVideo, "no-video", false, "join calls with audio only")

	return cmd
}

func run(parent context.Context, cfg *config.Config, constraints domain.MediaConstraints) error {
	zerolog.SetGlobalLevel(cfg.LogLevel)
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer ossignal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	engine, err := webrtc.NewEngine(cfg.ICEServers, webrtc.MediaFiles{
		Video: cfg.VideoFile,
		Audio: cfg.AudioFile,
	}, log.With().Str("component", "webrtc").Logger())
	if err != nil {
		return err
	}

	var uploader domain.Uploader
	if cfg.UploadURL != "" {
		uploads, err := api.NewClient(cfg.UploadURL, log.With().Str("component", "api").Logger())
		if err != nil {
			return err
		}
		uploader = uploads
	}

	if cfg.RecordDir != "" {
		if err := os.MkdirAll(cfg.RecordDir, 0o755); err != nil {
			return err
		}
	}
	ui := console.NewPresenter(os.Stdout, cfg.RecordDir, log.With().Str("component", "console").Logger())

	sess := session.New(session.Options{
		Username:     cfg.Username,
		Avatar:       cfg.Avatar,
		Links:        engine,
		Media:        engine,
		Presenter:    ui,
		Uploader:     uploader,
		Constraints:  constraints,
		TickInterval: time.Minute,
		Logger:       log.With().Str("component", "session").Logger(),
	})
	relay := sigclient.NewClient(cfg.RelayURL, sess, cfg.PingInterval, log.With().Str("component", "signal").Logger())
	sess.SetRelay(relay)

	// The loop outlives the console so Close can still say goodbye.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loopDone := make(chan error, 1)
	go func() { loopDone <- sess.Run(loopCtx) }()

	if err := sess.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("relay connect")
	}

	ui.SystemMessage("type /help for commands")
	err = console.New(sess, ui).Run(ctx, os.Stdin)

	sess.Close()
	<-loopDone

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
