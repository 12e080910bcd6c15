// Package native speaks text through the machine's own audio output using
// Google Translate voices fetched by htgo-tts. Nothing is returned to the
// caller: there is no artifact to play back or visualize.
package native

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	htgotts "github.com/hegedustibor/htgo-tts"
	"github.com/hegedustibor/htgo-tts/handlers"

	"github.com/nadzzz/speechviz/internal/config"
)

// Speaker plays speech locally. Utterances are serialized.
type Speaker struct {
	mu     sync.Mutex
	folder string
	speak  func(text string) error
}

// New creates a speaker from config.
func New(cfg config.NativeConfig) *Speaker {
	var player handlers.PlayerInterface = &handlers.MPlayer{}
	if cfg.Player == "native" {
		player = &handlers.Native{}
	}
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	speech := htgotts.Speech{Folder: cfg.Folder, Language: lang, Handler: player}
	return &Speaker{folder: cfg.Folder, speak: speech.Speak}
}

// Speak says text and returns once playback finished.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	if text == "" {
		return fmt.Errorf("empty text for speech")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.folder != "" {
		if err := os.MkdirAll(s.folder, 0o755); err != nil {
			return fmt.Errorf("creating speech folder: %w", err)
		}
	}
	slog.Debug("native speak", "text_length", len(text))
	if err := s.speak(text); err != nil {
		return fmt.Errorf("native speech: %w", err)
	}
	return nil
}
