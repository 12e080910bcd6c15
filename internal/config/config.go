// Package config handles loading and validating the speechviz configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the speechviz daemon.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Transports    TransportsConfig    `mapstructure:"transports"`
	TTS           TTSConfig           `mapstructure:"tts"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Visualizer    VisualizerConfig    `mapstructure:"visualizer"`
	Studio        StudioConfig        `mapstructure:"studio"`
	Blobstore     BlobstoreConfig     `mapstructure:"blobstore"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
}

// GRPCConfig configures the gRPC health transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP/WebSocket transport.
type HTTPConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Port      int     `mapstructure:"port"`
	RateLimit float64 `mapstructure:"rate_limit"` // provider-backed requests per second
	RateBurst int     `mapstructure:"rate_burst"`
}

// TTSConfig selects and configures the text-to-speech backend.
type TTSConfig struct {
	Backend    string           `mapstructure:"backend"` // "groq", "elevenlabs" or "piper"
	Groq       GroqConfig       `mapstructure:"groq"`
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	Piper      PiperConfig      `mapstructure:"piper"`
	Native     NativeConfig     `mapstructure:"native"`
}

// GroqConfig holds the OpenAI-compatible Groq speech endpoint settings.
type GroqConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Voice   string        `mapstructure:"voice"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ElevenLabsConfig holds ElevenLabs settings.
type ElevenLabsConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	VoiceID    string        `mapstructure:"voice_id"`
	ModelID    string        `mapstructure:"model_id"`
	SampleRate int           `mapstructure:"sample_rate"` // 16000, 22050, 24000 or 44100
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance that serves all languages, set Endpoint.
// Endpoints maps ISO-639-1 codes to per-language instances and takes
// precedence; Endpoint is the fallback.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`  // Default Wyoming TCP endpoint (host:port)
	Endpoints map[string]string `mapstructure:"endpoints"` // ISO-639-1 language code -> Wyoming TCP endpoint
	Voices    map[string]string `mapstructure:"voices"`    // ISO-639-1 language code -> Piper voice model name
	Language  string            `mapstructure:"language"`
}

// NativeConfig enables speaking through the machine's own audio output
// instead of producing a playable artifact.
type NativeConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Language string `mapstructure:"language"`
	Folder   string `mapstructure:"folder"`
	Player   string `mapstructure:"player"` // "mplayer" or "native"
}

// TranscriptionConfig configures the speech-to-text provider and poll loop.
type TranscriptionConfig struct {
	Backend      string           `mapstructure:"backend"` // "assemblyai" or "whisper"
	AssemblyAI   AssemblyAIConfig `mapstructure:"assemblyai"`
	Whisper      WhisperConfig    `mapstructure:"whisper"`
	PollInterval time.Duration    `mapstructure:"poll_interval"`
	MaxAttempts  int              `mapstructure:"max_attempts"`
	MaxFileBytes int64            `mapstructure:"max_file_bytes"`
}

// AssemblyAIConfig holds AssemblyAI settings.
type AssemblyAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WhisperConfig holds settings for a synchronous Whisper-compatible
// transcription endpoint.
type WhisperConfig struct {
	Endpoint  string        `mapstructure:"endpoint"` // base URL ("openai") or /asr URL ("asr")
	Type      string        `mapstructure:"type"`     // "openai" or "asr"
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Language  string        `mapstructure:"language"`
	VADFilter bool          `mapstructure:"vad_filter"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// VisualizerConfig tunes the headless visualizer.
type VisualizerConfig struct {
	Enhanced      bool          `mapstructure:"enhanced"`
	FrameRate     int           `mapstructure:"frame_rate"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	ElementID     string        `mapstructure:"element_id"`
	Width         int           `mapstructure:"width"`
	Height        int           `mapstructure:"height"`
	SampleRate    float64       `mapstructure:"sample_rate"`
	AudioDisabled bool          `mapstructure:"audio_disabled"` // behave like a host without audio processing
}

// StudioConfig holds the text-to-speech form settings.
type StudioConfig struct {
	SampleTexts []string `mapstructure:"sample_texts"`
}

// BlobstoreConfig bounds how long an unreleased transient URL survives.
type BlobstoreConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// DefaultSampleTexts are offered by the studio form when none are configured.
var DefaultSampleTexts = []string{
	"Hello! This is a quick test of text to speech with a live audio visualizer.",
	"The quick brown fox jumps over the lazy dog while the bars dance along.",
	"Welcome to the studio. Type anything you like, press generate, then hit play.",
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./speechviz.yaml, ./configs/speechviz.yaml, /etc/speechviz/speechviz.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.grpc.enabled", true)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("transports.http.rate_limit", 2.0)
	v.SetDefault("transports.http.rate_burst", 5)
	v.SetDefault("tts.backend", "groq")
	v.SetDefault("tts.groq.api_key", "${GROQ_API_KEY}")
	v.SetDefault("tts.groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("tts.groq.model", "playai-tts")
	v.SetDefault("tts.groq.voice", "Fritz-PlayAI")
	v.SetDefault("tts.groq.timeout", 60*time.Second)
	v.SetDefault("tts.elevenlabs.api_key", "${ELEVENLABS_API_KEY}")
	v.SetDefault("tts.elevenlabs.voice_id", "21m00Tcm4TlvDq8ikWAM")
	v.SetDefault("tts.elevenlabs.model_id", "eleven_monolingual_v1")
	v.SetDefault("tts.elevenlabs.sample_rate", 22050)
	v.SetDefault("tts.elevenlabs.timeout", 30*time.Second)
	v.SetDefault("tts.piper.endpoint", "localhost:10200")
	v.SetDefault("tts.piper.language", "en")
	v.SetDefault("tts.native.enabled", false)
	v.SetDefault("tts.native.language", "en")
	v.SetDefault("tts.native.folder", filepath.Join(os.TempDir(), "speechviz-native"))
	v.SetDefault("tts.native.player", "mplayer")
	v.SetDefault("transcription.backend", "assemblyai")
	v.SetDefault("transcription.assemblyai.api_key", "${ASSEMBLYAI_API_KEY}")
	v.SetDefault("transcription.assemblyai.base_url", "https://api.assemblyai.com/v2")
	v.SetDefault("transcription.assemblyai.timeout", 60*time.Second)
	v.SetDefault("transcription.whisper.type", "openai")
	v.SetDefault("transcription.whisper.endpoint", "https://api.groq.com/openai/v1")
	v.SetDefault("transcription.whisper.api_key", "${GROQ_API_KEY}")
	v.SetDefault("transcription.whisper.model", "whisper-large-v3")
	v.SetDefault("transcription.whisper.timeout", 2*time.Minute)
	v.SetDefault("transcription.poll_interval", 5*time.Second)
	v.SetDefault("transcription.max_attempts", 60)
	v.SetDefault("transcription.max_file_bytes", 25<<20)
	v.SetDefault("visualizer.enhanced", true)
	v.SetDefault("visualizer.frame_rate", 60)
	v.SetDefault("visualizer.settle_delay", 300*time.Millisecond)
	v.SetDefault("visualizer.element_id", "audio-player")
	v.SetDefault("visualizer.width", 800)
	v.SetDefault("visualizer.height", 300)
	v.SetDefault("visualizer.sample_rate", 48000)
	v.SetDefault("visualizer.audio_disabled", false)
	v.SetDefault("studio.sample_texts", DefaultSampleTexts)
	v.SetDefault("blobstore.ttl", time.Hour)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("speechviz")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/speechviz")
	}

	// Environment variables: SPEECHVIZ_SERVER_HEALTH_PORT, SPEECHVIZ_TTS_BACKEND, etc.
	v.SetEnvPrefix("SPEECHVIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional; env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${GROQ_API_KEY}")
	cfg.TTS.Groq.APIKey = resolveEnvRef(cfg.TTS.Groq.APIKey)
	cfg.TTS.ElevenLabs.APIKey = resolveEnvRef(cfg.TTS.ElevenLabs.APIKey)
	cfg.Transcription.AssemblyAI.APIKey = resolveEnvRef(cfg.Transcription.AssemblyAI.APIKey)
	cfg.Transcription.Whisper.APIKey = resolveEnvRef(cfg.Transcription.Whisper.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the daemon cannot run with. Missing credentials
// are not an error here: they surface per request as a configuration error.
func (c *Config) Validate() error {
	switch c.TTS.Backend {
	case "groq", "elevenlabs", "piper":
	default:
		return fmt.Errorf("unknown tts backend %q", c.TTS.Backend)
	}
	switch c.Transcription.Backend {
	case "assemblyai":
	case "whisper":
		if t := c.Transcription.Whisper.Type; t != "openai" && t != "asr" {
			return fmt.Errorf("unknown whisper type %q", t)
		}
	default:
		return fmt.Errorf("unknown transcription backend %q", c.Transcription.Backend)
	}
	if c.Transcription.MaxAttempts < 1 {
		return fmt.Errorf("transcription.max_attempts must be positive")
	}
	if c.Transcription.PollInterval <= 0 {
		return fmt.Errorf("transcription.poll_interval must be positive")
	}
	if c.Visualizer.FrameRate < 1 {
		return fmt.Errorf("visualizer.frame_rate must be positive")
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env
// var value. An unset variable resolves to the empty string.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
