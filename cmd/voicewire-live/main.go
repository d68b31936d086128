// Command voicewire-live runs a live microphone conversation against a
// voicewire gateway: mic audio streams up, transcripts and assistant audio
// stream back, assistant audio plays through the default speaker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/vango-go/voicewire/pkg/capture"
	"github.com/vango-go/voicewire/pkg/client"
	"github.com/vango-go/voicewire/pkg/metrics"
	"github.com/vango-go/voicewire/pkg/protocol"
)

type options struct {
	baseURL     string
	sessionURL  string
	token       string
	lang        string
	voice       string
	enhancement string
	transport   string
	recordPath  string
	metricsAddr string
	debug       bool
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	// Best effort; the flags and environment still win.
	_ = godotenv.Load()

	var opt options
	flag.StringVar(&opt.baseURL, "base-url", strings.TrimSpace(os.Getenv("VOICEWIRE_BASE_URL")), "Gateway base URL (also reads VOICEWIRE_BASE_URL); required")
	flag.StringVar(&opt.sessionURL, "session-url", "", "Websocket session URL (optional; derived from --base-url by default)")
	flag.StringVar(&opt.token, "token", strings.TrimSpace(os.Getenv("VOICEWIRE_TOKEN")), "Bearer token (also reads VOICEWIRE_TOKEN; prompted when empty)")
	flag.StringVar(&opt.lang, "lang", "en", "Voice language")
	flag.StringVar(&opt.voice, "voice", "", "Voice id (optional; falls back to stored preferences)")
	flag.StringVar(&opt.enhancement, "enhancement", "enhanced", "Enhancement level sent in start_session")
	flag.StringVar(&opt.transport, "transport", protocol.AudioTransportBinary, "Audio transport: binary or base64_json")
	flag.StringVar(&opt.recordPath, "record", "", "If set, write the captured session to this WAV file on exit")
	flag.StringVar(&opt.metricsAddr, "metrics-addr", "", "If set, serve Prometheus metrics on this address")
	flag.BoolVar(&opt.debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if strings.TrimSpace(opt.baseURL) == "" {
		fmt.Fprintln(os.Stderr, "--base-url is required (or set VOICEWIRE_BASE_URL)")
		return 2
	}
	opt.transport = strings.ToLower(strings.TrimSpace(opt.transport))
	if opt.transport != protocol.AudioTransportBinary && opt.transport != protocol.AudioTransportBase64JSON {
		fmt.Fprintln(os.Stderr, "--transport must be binary or base64_json")
		return 2
	}

	level := slog.LevelInfo
	if opt.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if strings.TrimSpace(opt.token) == "" {
		token, err := promptToken()
		if err != nil {
			fmt.Fprintln(os.Stderr, "read token:", err)
			return 2
		}
		opt.token = token
	}

	m := metrics.NewMetrics("")
	if addr := strings.TrimSpace(opt.metricsAddr); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
		logger.Info("serving metrics", slog.String("addr", addr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	captureCfg := capture.DefaultConfig()
	captureCfg.Record = strings.TrimSpace(opt.recordPath) != ""

	c := client.New(
		client.WithBaseURL(strings.TrimSpace(opt.baseURL)),
		client.WithSessionURL(strings.TrimSpace(opt.sessionURL)),
		client.WithToken(opt.token),
		client.WithLogger(logger),
		client.WithMetrics(m),
		client.WithSessionConfig(sessionConfig(ctx, opt, logger)),
		client.WithCaptureConfig(captureCfg),
	)

	cv, err := c.StartConversation(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "start conversation:", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "session connected: session_id=%s (ctrl-c to stop)\n", cv.SessionID())

	go func() {
		<-ctx.Done()
		cv.Stop()
	}()

	exitCode := runEventLoop(cv, opt.debug)

	if path := strings.TrimSpace(opt.recordPath); path != "" {
		if err := writeRecording(cv, path); err != nil {
			fmt.Fprintln(os.Stderr, "write recording:", err)
		} else {
			fmt.Fprintln(os.Stderr, "recording written to", path)
		}
	}
	return exitCode
}

// sessionConfig merges the stored voice preferences with the flags; flags win.
func sessionConfig(ctx context.Context, opt options, logger *slog.Logger) protocol.SessionConfig {
	cfg := protocol.DefaultSessionConfig()
	cfg.Language = opt.lang
	cfg.Voice = strings.TrimSpace(opt.voice)
	cfg.EnhancementLevel = strings.TrimSpace(opt.enhancement)
	cfg.AudioTransport = opt.transport

	prefClient := client.New(
		client.WithBaseURL(strings.TrimSpace(opt.baseURL)),
		client.WithToken(opt.token),
		client.WithLogger(logger),
	)
	prefCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	prefs, err := prefClient.GetVoicePreferences(prefCtx)
	if err != nil {
		logger.Debug("voice preferences unavailable", slog.String("error", err.Error()))
		return cfg
	}
	if cfg.Voice == "" {
		cfg.Voice = prefs.Voice
	}
	if prefs.Language != "" && opt.lang == "en" {
		cfg.Language = prefs.Language
	}
	if cfg.EnhancementLevel == "enhanced" && prefs.EnhancementLevel != "" {
		cfg.EnhancementLevel = prefs.EnhancementLevel
	}
	return cfg
}

func runEventLoop(cv *client.Conversation, debug bool) int {
	exitCode := 0
	for ev := range cv.Events() {
		switch e := ev.(type) {
		case client.TranscriptEvent:
			state := "partial"
			if e.IsFinal {
				state = "final"
			}
			if e.Emotion != "" {
				fmt.Printf("[you:%s] %s (%s)\n", state, e.Text, e.Emotion)
			} else {
				fmt.Printf("[you:%s] %s\n", state, e.Text)
			}
		case client.SpeechEvent:
			if !debug {
				continue
			}
			if e.Speaking {
				fmt.Fprintln(os.Stderr, "[debug] speech started")
			} else {
				fmt.Fprintf(os.Stderr, "[debug] speech ended after %dms\n", e.DurationMS)
			}
		case client.QualityEvent:
			fmt.Fprintf(os.Stderr, "[connection] quality=%s\n", e.Quality)
		case client.StatsEvent:
			fmt.Fprintf(os.Stderr, "[stats] audio_in=%.1fs audio_out=%.1fs transcripts=%d\n",
				e.Stats.AudioSecondsIn, e.Stats.AudioSecondsOut, e.Stats.TranscriptCount)
		case client.ServerErrorEvent:
			fmt.Fprintln(os.Stderr, "[server error]", e.Message)
		case client.DeviceErrorEvent:
			fmt.Fprintln(os.Stderr, "[device error]", e.Err)
			exitCode = 1
		case client.EndedEvent:
			if e.Err != nil && !errors.Is(e.Err, context.Canceled) {
				fmt.Fprintln(os.Stderr, "session ended:", e.Err)
				exitCode = 1
			}
		case client.AudioLevelEvent:
			// Too chatty for a terminal; the level is for UIs.
		}
	}
	return exitCode
}

func promptToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no token given and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "token: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("empty token")
	}
	return token, nil
}

func writeRecording(cv *client.Conversation, path string) error {
	wav, err := cv.ExportWAV()
	if err != nil {
		return err
	}
	return os.WriteFile(path, wav, 0o644)
}
