package mdbook

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/mod/semver"

	"github.com/jcorbin/blocky/internal/logging"
)

// Version is the mdBook release whose preprocessor protocol this package
// implements.
const Version = "0.4.40"

// Preprocessor is the interface implemented by book transformations.
type Preprocessor interface {
	// Name is the preprocessor's name, as used in its book.toml table.
	Name() string

	// Run transforms the book; returning a nil book leaves it unchanged.
	Run(ctx *Context, book *Book) (*Book, error)

	// SupportsRenderer returns true if the preprocessor should run for the
	// named renderer.
	SupportsRenderer(renderer string) bool
}

// Context is the host-provided information that accompanies a book.
type Context struct {
	Root          string
	Renderer      string
	MDBookVersion string
	Config        json.RawMessage

	fields rawFields
}

// UnmarshalJSON decodes a context, retaining unknown fields.
func (ctx *Context) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &ctx.fields); err != nil {
		return err
	}
	if err := ctx.fields.get("root", &ctx.Root); err != nil {
		return err
	}
	if err := ctx.fields.get("renderer", &ctx.Renderer); err != nil {
		return err
	}
	if err := ctx.fields.get("mdbook_version", &ctx.MDBookVersion); err != nil {
		return err
	}
	ctx.Config = ctx.fields["config"]
	return nil
}

// PreprocessorConfig returns the `[preprocessor.<name>]` table from the book
// configuration, or nil if there is none.
func (ctx *Context) PreprocessorConfig(name string) (map[string]interface{}, error) {
	if len(ctx.Config) == 0 {
		return nil, nil
	}
	var cfg struct {
		Preprocessor map[string]map[string]interface{} `json:"preprocessor"`
	}
	if err := json.Unmarshal(ctx.Config, &cfg); err != nil {
		return nil, fmt.Errorf("invalid book config: %w", err)
	}
	return cfg.Preprocessor[name], nil
}

// CompatibleVersion returns true if the given host version shares a major
// and minor version with the protocol Version.
func CompatibleVersion(hostVersion string) bool {
	host := semver.MajorMinor("v" + hostVersion)
	return host != "" && host == semver.MajorMinor("v"+Version)
}

var errBadInput = errors.New("preprocessor input must be a JSON array of [context, book]")

// ParseInput decodes preprocessor input.
func ParseInput(r io.Reader) (*Context, *Book, error) {
	var input []json.RawMessage
	if err := json.NewDecoder(r).Decode(&input); err != nil {
		return nil, nil, fmt.Errorf("unable to parse preprocessor input: %w", err)
	}
	if len(input) != 2 {
		return nil, nil, errBadInput
	}
	var (
		ctx  Context
		book Book
	)
	if err := json.Unmarshal(input[0], &ctx); err != nil {
		return nil, nil, fmt.Errorf("invalid preprocessor context: %w", err)
	}
	if err := json.Unmarshal(input[1], &book); err != nil {
		return nil, nil, fmt.Errorf("invalid book: %w", err)
	}
	return &ctx, &book, nil
}

// Handle runs a preprocessor over input read from r, writing the resulting
// book to w. Nothing is written unless the preprocessor succeeds.
// A host version mismatch is only logged; log may be nil.
func Handle(pre Preprocessor, r io.Reader, w io.Writer, log *slog.Logger) (rerr error) {
	if log == nil {
		log = logging.Discard()
	}
	ctx, book, err := ParseInput(r)
	if err != nil {
		return err
	}

	if !CompatibleVersion(ctx.MDBookVersion) {
		log.Warn("mdbook version mismatch",
			"preprocessor", pre.Name(),
			"built_against", Version,
			"called_from", ctx.MDBookVersion)
	}

	out, err := pre.Run(ctx, book)
	if err != nil {
		return err
	}
	if out == nil {
		out = book
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(out); err != nil {
		return fmt.Errorf("unable to encode book: %w", err)
	}
	bw := bufio.NewWriter(w)
	defer func() {
		if ferr := bw.Flush(); rerr == nil {
			rerr = ferr
		}
	}()
	_, err = buf.WriteTo(bw)
	return err
}
