package main

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jcorbin/blocky/internal/blocky"
	"github.com/jcorbin/blocky/internal/mdbook"
	"github.com/jcorbin/blocky/internal/preprocessor"
	"github.com/jcorbin/blocky/internal/preview"
	"github.com/jcorbin/blocky/internal/store"
)

type preprocessCmd struct{}

func (c *preprocessCmd) Run(rc *runContext) error {
	pre := preprocessor.New(rc.cfg, rc.log)
	pre.Logger = rc.newLogger
	return mdbook.Handle(pre, rc.stdin, rc.stdout, rc.log)
}

type supportsCmd struct {
	Renderer string `arg:"" help:"Renderer name, as given by mdBook."`
}

func (c *supportsCmd) Run(rc *runContext) error {
	pre := preprocessor.New(rc.cfg, rc.log)
	if !pre.SupportsRenderer(c.Renderer) {
		rc.log.Debug("unsupported renderer", "renderer", c.Renderer)
		return errUnsupported
	}
	return nil
}

type renderCmd struct {
	Write bool     `short:"w" help:"Rewrite files in place instead of printing them."`
	Files []string `arg:"" optional:"" help:"Markdown files; stdin if none."`
}

func (c *renderCmd) Run(rc *runContext) error {
	if len(c.Files) == 0 {
		return rc.transformFile(rc.stdout, "")
	}

	if c.Write {
		for _, name := range c.Files {
			changed, err := store.Rewrite(store.File{Name: name}, blocky.Transform)
			if err != nil {
				return fmt.Errorf("%v: %w", name, err)
			}
			if changed {
				rc.log.Info("rewrote", "file", name)
			}
		}
		return nil
	}

	// nothing is printed unless every file transforms
	var buf bytes.Buffer
	for _, name := range c.Files {
		if err := rc.transformFile(&buf, name); err != nil {
			return err
		}
	}
	_, err := buf.WriteTo(rc.stdout)
	return err
}

type checkCmd struct {
	Files []string `arg:"" optional:"" help:"Markdown files; stdin if none."`
}

func (c *checkCmd) Run(rc *runContext) error {
	if len(c.Files) == 0 {
		return rc.transformFile(io.Discard, "")
	}
	bad := 0
	for _, name := range c.Files {
		if err := rc.transformFile(io.Discard, name); err != nil {
			rc.log.Error("malformed blocks", "err", err)
			bad++
		}
	}
	if bad > 0 {
		return fmt.Errorf("%v of %v files have malformed blocks", bad, len(c.Files))
	}
	return nil
}

type previewCmd struct {
	Page  bool   `help:"Write a standalone HTML page rather than a fragment."`
	Title string `help:"Page title; defaults to the file name."`
	File  string `arg:"" optional:"" help:"Markdown file; stdin if none."`
}

func (c *previewCmd) Run(rc *runContext) error {
	src, err := rc.read(c.File)
	if err != nil {
		return err
	}

	var (
		buf   bytes.Buffer
		stats blocky.Stats
	)
	if c.Page {
		title := c.Title
		if title == "" && c.File != "" {
			title = strings.TrimSuffix(filepath.Base(c.File), filepath.Ext(c.File))
		}
		stats, err = preview.Page(&buf, title, src)
	} else {
		stats, err = preview.Render(&buf, src)
	}
	if err != nil {
		return inputError(c.File, err)
	}
	rc.report(c.File, stats)
	_, err = buf.WriteTo(rc.stdout)
	return err
}

type versionCmd struct{}

func (c *versionCmd) Run(rc *runContext) error {
	_, err := fmt.Fprintf(rc.stdout, "blocky %v (mdbook %v)\n", version, mdbook.Version)
	return err
}

func (rc *runContext) read(name string) ([]byte, error) {
	if name == "" {
		return io.ReadAll(rc.stdin)
	}
	r, err := store.File{Name: name}.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (rc *runContext) transformFile(w io.Writer, name string) error {
	src, err := rc.read(name)
	if err != nil {
		return err
	}
	out, stats, err := blocky.TransformStats(src)
	if err != nil {
		return inputError(name, err)
	}
	rc.report(name, stats)
	_, err = w.Write(out)
	return err
}

func (rc *runContext) report(name string, stats blocky.Stats) {
	if name == "" {
		name = "<stdin>"
	}
	if stats.Unclosed > 0 {
		rc.log.Warn("unclosed blocks at end of input", "file", name, "unclosed", stats.Unclosed)
	}
	rc.log.Debug("blocks", "file", name, "opens", stats.Opens, "closes", stats.Closes, "max_depth", stats.MaxDepth)
}

func inputError(name string, err error) error {
	if name == "" {
		name = "<stdin>"
	}
	return fmt.Errorf("%v: %w", name, err)
}
