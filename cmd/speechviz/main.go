// Speechviz is a text-to-speech studio with a live audio visualizer and
// file transcription, served over HTTP.
//
// Usage:
//
//	speechviz [flags]
//	speechviz --config /path/to/speechviz.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nadzzz/speechviz/internal/blobstore"
	"github.com/nadzzz/speechviz/internal/config"
	"github.com/nadzzz/speechviz/internal/events"
	"github.com/nadzzz/speechviz/internal/health"
	"github.com/nadzzz/speechviz/internal/host"
	"github.com/nadzzz/speechviz/internal/host/headless"
	"github.com/nadzzz/speechviz/internal/studio"
	"github.com/nadzzz/speechviz/internal/transcription"
	"github.com/nadzzz/speechviz/internal/transcription/assemblyai"
	"github.com/nadzzz/speechviz/internal/transcription/whisper"
	"github.com/nadzzz/speechviz/internal/transport"
	grpctransport "github.com/nadzzz/speechviz/internal/transport/grpc"
	httptransport "github.com/nadzzz/speechviz/internal/transport/http"
	"github.com/nadzzz/speechviz/internal/tts"
	"github.com/nadzzz/speechviz/internal/tts/elevenlabs"
	"github.com/nadzzz/speechviz/internal/tts/groq"
	"github.com/nadzzz/speechviz/internal/tts/native"
	"github.com/nadzzz/speechviz/internal/tts/piper"
	"github.com/nadzzz/speechviz/internal/visualizer"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/speechviz.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("speechviz %s\n", version)
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging.
	config.SetupLogging(cfg.Logging)
	slog.Info("speechviz starting", "version", version)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("speechviz failed", "error", err)
		os.Exit(1)
	}
	slog.Info("speechviz stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	blobs := blobstore.New(cfg.Blobstore.TTL)
	defer blobs.Close()

	// The event loop outlives the servers so shutdown can still unmount.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loop := headless.NewLoop(cfg.Visualizer.FrameRate)
	go loop.Run(loopCtx)
	defer func() {
		stopLoop()
		<-loop.Done()
	}()

	canvas := headless.NewCanvas(cfg.Visualizer.Width, cfg.Visualizer.Height)
	doc := headless.NewDocument(loop, blobs)
	regenerated := events.NewSignal("regenerated")

	vis := visualizer.New(visualizer.Host{
		Audio:     headless.NewAudioSystem(cfg.Visualizer.SampleRate, cfg.Visualizer.AudioDisabled),
		Scheduler: loop,
		Canvas:    canvas,
		Document:  doc,
	}, regenerated, visualizer.Options{
		Enhanced:    cfg.Visualizer.Enhanced,
		ElementID:   cfg.Visualizer.ElementID,
		SettleDelay: cfg.Visualizer.SettleDelay,
	})
	view := visualizer.NewView(vis, loop, canvas)
	if err := view.Mount(); err != nil {
		return fmt.Errorf("mounting visualizer: %w", err)
	}
	defer func() {
		if err := view.Unmount(); err != nil {
			slog.Warn("unmounting visualizer", "error", err)
		}
	}()

	// Initialize the TTS backend.
	synth, opts, err := newSynthesizer(cfg.TTS)
	if err != nil {
		return err
	}
	speech := tts.NewService(synth, opts, slog.Default())
	defer speech.Close()

	var speaker studio.Speaker
	if cfg.TTS.Native.Enabled {
		speaker = native.New(cfg.TTS.Native)
		slog.Info("speaking through the native engine", "language", cfg.TTS.Native.Language, "player", cfg.TTS.Native.Player)
	}

	orch := studio.New(studio.Config{
		Speech: speech,
		Native: speaker,
		Blobs:  blobs,
		Exec:   loop,
		Element: func() host.MediaElement {
			return doc.MediaElement(cfg.Visualizer.ElementID)
		},
		Regenerated: regenerated,
	})
	defer orch.Close()

	transcriber := transcription.New(newTranscriptionProvider(cfg.Transcription), transcription.Options{
		PollInterval: cfg.Transcription.PollInterval,
		MaxAttempts:  cfg.Transcription.MaxAttempts,
		MaxFileBytes: cfg.Transcription.MaxFileBytes,
	}, slog.Default())

	// Initialize enabled transports.
	healthServer := health.New(cfg.Server.HealthPort)
	healthServer.AddCheck("event_loop", func() error {
		select {
		case <-loop.Done():
			return errors.New("event loop stopped")
		default:
			return nil
		}
	})

	var transports []transport.Transport
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(cfg.Transports.HTTP, httptransport.Deps{
			Speech:        speech,
			Studio:        orch,
			Transcriber:   transcriber,
			Visualizer:    view,
			Media:         blobs,
			SampleTexts:   cfg.Studio.SampleTexts,
			FrameInterval: loop.FrameInterval(),
		}))
	}
	if cfg.Transports.GRPC.Enabled {
		g := grpctransport.New(cfg.Transports.GRPC.Port)
		healthServer.OnReadyChange(g.SetReady)
		transports = append(transports, g)
	}
	if len(transports) == 0 {
		return errors.New("no transports enabled: enable at least one in config")
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return healthServer.ListenAndServe(gctx) })
	for _, t := range transports {
		group.Go(func() error {
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(gctx); err != nil {
				return fmt.Errorf("%s transport: %w", t.Name(), err)
			}
			return nil
		})
	}

	// Mark as ready once all transports are started.
	healthServer.SetReady(true)
	slog.Info("speechviz ready",
		"transports", len(transports),
		"tts_backend", cfg.TTS.Backend,
		"health_port", cfg.Server.HealthPort)

	// Block until shutdown signal or a server failure.
	<-gctx.Done()
	slog.Info("shutdown signal received, draining...")
	healthServer.SetReady(false)

	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}
	return group.Wait()
}

// newSynthesizer builds the configured TTS backend and the options it is
// called with.
func newSynthesizer(cfg config.TTSConfig) (tts.Synthesizer, tts.SynthesizeOpts, error) {
	switch cfg.Backend {
	case "groq":
		slog.Info("using Groq TTS", "model", cfg.Groq.Model, "voice", cfg.Groq.Voice)
		return groq.New(cfg.Groq), tts.SynthesizeOpts{Voice: cfg.Groq.Voice}, nil
	case "elevenlabs":
		slog.Info("using ElevenLabs TTS", "voice_id", cfg.ElevenLabs.VoiceID, "model_id", cfg.ElevenLabs.ModelID)
		return elevenlabs.New(cfg.ElevenLabs), tts.SynthesizeOpts{Voice: cfg.ElevenLabs.VoiceID}, nil
	case "piper":
		slog.Info("using Piper TTS", "endpoint", cfg.Piper.Endpoint, "language", cfg.Piper.Language)
		return piper.New(cfg.Piper), tts.SynthesizeOpts{Language: cfg.Piper.Language}, nil
	default:
		return nil, tts.SynthesizeOpts{}, fmt.Errorf("unknown tts backend %q", cfg.Backend)
	}
}

// newTranscriptionProvider builds the configured speech-to-text backend.
// The backend name is checked by config validation.
func newTranscriptionProvider(cfg config.TranscriptionConfig) transcription.Provider {
	if cfg.Backend == "whisper" {
		slog.Info("using Whisper transcription", "type", cfg.Whisper.Type, "endpoint", cfg.Whisper.Endpoint, "model", cfg.Whisper.Model)
		return whisper.New(cfg.Whisper)
	}
	slog.Info("using AssemblyAI transcription", "base_url", cfg.AssemblyAI.BaseURL)
	return assemblyai.New(cfg.AssemblyAI)
}
