// Command blocky is an mdBook preprocessor that turns `{:.name}` and
// `{:/.name}` marker paragraphs into styled div wrappers.
//
// Run with no arguments it speaks the mdBook preprocessor protocol on stdin
// and stdout; the other commands work on plain markdown files.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/jcorbin/blocky/internal/config"
	"github.com/jcorbin/blocky/internal/logging"
)

var version = "dev"

// errUnsupported exits 1 without logging, as mdBook expects from `supports`.
var errUnsupported = errors.New("renderer not supported")

type cli struct {
	Book      string `name:"book" help:"Path to book.toml; by default the nearest one above the working directory is used." type:"path"`
	LogLevel  string `name:"log-level" help:"Log level: debug, info, warn, or error."`
	LogFormat string `name:"log-format" help:"Log format: text or json."`

	Preprocess preprocessCmd `cmd:"" default:"1" help:"Process an mdBook [context, book] from stdin to stdout."`
	Supports   supportsCmd   `cmd:"" help:"Exit 0 if the named renderer is supported, 1 otherwise."`
	Render     renderCmd     `cmd:"" help:"Rewrite block markers in markdown files."`
	Check      checkCmd      `cmd:"" help:"Report malformed block markers in markdown files."`
	Preview    previewCmd    `cmd:"" help:"Render a markdown file to HTML."`
	Version    versionCmd    `cmd:"" help:"Print version information."`
}

type runContext struct {
	stdin  io.Reader
	stdout io.Writer
	cfg    config.Config
	log    *slog.Logger

	// newLogger builds a logger from settings found after startup, such as
	// those passed by mdBook; log flags still take precedence.
	newLogger func(config.Config) (*slog.Logger, error)
}

func (cl *cli) loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if cl.Book != "" {
		cfg, err = config.FromBookFile(cl.Book)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return cfg, err
	}
	cl.override(&cfg)
	return cfg, nil
}

func (cl *cli) override(cfg *config.Config) {
	if cl.LogLevel != "" {
		cfg.LogLevel = cl.LogLevel
	}
	if cl.LogFormat != "" {
		cfg.LogFormat = cl.LogFormat
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var cl cli
	parser, err := kong.New(&cl,
		kong.Name("blocky"),
		kong.Description("Styled block wrappers for mdBook."),
		kong.Writers(stdout, stderr),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	if err != nil {
		fmt.Fprintf(stderr, "blocky: %v\n", err)
		return 2
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "blocky: %v\n", err)
		return 2
	}

	cfg, err := cl.loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "blocky: %v\n", err)
		return 1
	}
	newLogger := func(cfg config.Config) (*slog.Logger, error) {
		cl.override(&cfg)
		return logging.Init(stderr, cfg.LogLevel, cfg.LogFormat)
	}
	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "blocky: %v\n", err)
		return 1
	}

	err = ctx.Run(&runContext{
		stdin:     stdin,
		stdout:    stdout,
		cfg:       cfg,
		log:       log,
		newLogger: newLogger,
	})
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUnsupported):
		return 1
	default:
		log.Error("failed", "command", ctx.Command(), "err", err)
		return 1
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
