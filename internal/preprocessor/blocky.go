// Package preprocessor implements the blocky mdBook preprocessor: it rewrites
// block markers in every chapter of a book.
package preprocessor

import (
	"fmt"
	"log/slog"

	"github.com/jcorbin/blocky/internal/blocky"
	"github.com/jcorbin/blocky/internal/config"
	"github.com/jcorbin/blocky/internal/logging"
	"github.com/jcorbin/blocky/internal/mdbook"
	"github.com/jcorbin/blocky/internal/store"
)

// ChapterError identifies the chapter that a transform error came from.
type ChapterError struct {
	Chapter string
	Err     error
}

func (ce *ChapterError) Error() string {
	return fmt.Sprintf("chapter %v: %v", ce.Chapter, ce.Err)
}

// Unwrap returns the underlying transform error.
func (ce *ChapterError) Unwrap() error { return ce.Err }

// Blocky is the blocky preprocessor.
type Blocky struct {
	// Config decides renderer support; settings for a run come from the
	// book configuration passed along with it.
	Config config.Config
	Log    *slog.Logger

	// Logger, if set, replaces Log for a run, given the settings from the
	// book configuration passed along with it.
	Logger func(config.Config) (*slog.Logger, error)
}

// New returns a preprocessor with the given settings.
func New(cfg config.Config, log *slog.Logger) *Blocky {
	return &Blocky{Config: cfg, Log: log}
}

// Name returns the preprocessor's book.toml table name.
func (b *Blocky) Name() string { return config.Name }

// SupportsRenderer returns true if the renderer is enabled by Config.
func (b *Blocky) SupportsRenderer(renderer string) bool {
	return b.Config.SupportsRenderer(renderer)
}

// Run rewrites every chapter of the book independently. Whether a malformed
// chapter fails the whole book depends on the on-error setting.
func (b *Blocky) Run(ctx *mdbook.Context, book *mdbook.Book) (*mdbook.Book, error) {
	table, err := ctx.PreprocessorConfig(b.Name())
	if err != nil {
		return nil, err
	}
	cfg, err := config.FromTable(table)
	if err != nil {
		return nil, err
	}
	log := b.log()
	if b.Logger != nil {
		if log, err = b.Logger(cfg); err != nil {
			return nil, err
		}
	}

	failed := 0
	if err := book.ForEachChapter(func(ch *mdbook.Chapter) error {
		err := chapter(ch, log)
		if err == nil {
			return nil
		}
		if cfg.OnError == config.Abort {
			return err
		}
		failed++
		log.Error("chapter left unchanged", "chapter", ch.String(), "err", err)
		return nil
	}); err != nil {
		return nil, err
	}

	if failed > 0 {
		log.Warn("some chapters have malformed blocks", "count", failed)
	}
	return book, nil
}

func chapter(ch *mdbook.Chapter, log *slog.Logger) error {
	var stats blocky.Stats
	doc := store.NewMem(ch.Content)
	if _, err := store.Rewrite(doc, func(src []byte) (out []byte, err error) {
		out, stats, err = blocky.TransformStats(src)
		return out, err
	}); err != nil {
		return &ChapterError{ch.String(), err}
	}
	if stats.Unclosed > 0 {
		log.Warn("unclosed blocks at end of chapter",
			"chapter", ch.String(),
			"unclosed", stats.Unclosed)
	}
	if stats.Opens > 0 {
		log.Debug("rewrote blocks",
			"chapter", ch.String(),
			"opens", stats.Opens,
			"closes", stats.Closes,
			"max_depth", stats.MaxDepth)
	}
	ch.Content = doc.String()
	return nil
}

func (b *Blocky) log() *slog.Logger {
	if b.Log == nil {
		return logging.Discard()
	}
	return b.Log
}
