package preprocessor

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcorbin/blocky/internal/blocky"
	"github.com/jcorbin/blocky/internal/config"
	"github.com/jcorbin/blocky/internal/logging"
	"github.com/jcorbin/blocky/internal/mdbook"
)

func chapterJSON(name, path, content string) string {
	raw, _ := json.Marshal(map[string]interface{}{
		"name":         name,
		"content":      content,
		"number":       []int{1},
		"sub_items":    []interface{}{},
		"path":         path,
		"source_path":  path,
		"parent_names": []string{},
	})
	return `{"Chapter":` + string(raw) + `}`
}

func input(table string, chapters ...string) string {
	ctx := `{"root": "/book", "renderer": "html", "mdbook_version": "0.4.40", "config": {"book": {}`
	if table != "" {
		ctx += `, "preprocessor": {"blocky": ` + table + `}`
	}
	ctx += `}}`
	return "[" + ctx + `, {"sections": [` + strings.Join(chapters, ", ") + `, "Separator"], "__non_exhaustive": null}]`
}

func contents(t *testing.T, out []byte) map[string]string {
	var book mdbook.Book
	require.NoError(t, json.Unmarshal(out, &book))
	got := make(map[string]string)
	require.NoError(t, book.ForEachChapter(func(ch *mdbook.Chapter) error {
		got[ch.Path()] = ch.Content
		return nil
	}))
	return got
}

const (
	goodChapter  = "{:.warning}\n\nBe careful.\n\n{:/.warning}\n"
	goodRendered = "<div class=\"warning blocky-block\">\n\nBe careful.\n\n</div>\n"
	badChapter   = "text\n\n{:/.note}\n"
	plainChapter = "Just  *text*.\n"
)

func TestBlocky_Run(t *testing.T) {
	var out, logs bytes.Buffer
	pre := New(config.Defaults(), logging.New(&logs, 0, logging.FormatText))

	in := input("",
		chapterJSON("Good", "good.md", goodChapter),
		chapterJSON("Bad", "bad.md", badChapter),
		chapterJSON("Plain", "plain.md", plainChapter),
	)
	require.NoError(t, mdbook.Handle(pre, strings.NewReader(in), &out, pre.Log))

	assert.Equal(t, map[string]string{
		"good.md":  goodRendered,
		"bad.md":   badChapter,
		"plain.md": plainChapter,
	}, contents(t, out.Bytes()))
	assert.Contains(t, logs.String(), `msg="chapter left unchanged" chapter=bad.md`)
	assert.Contains(t, logs.String(), "count=1")
}

func TestBlocky_Run_abort(t *testing.T) {
	var out bytes.Buffer
	pre := New(config.Defaults(), nil)

	in := input(`{"on-error": "abort"}`,
		chapterJSON("Good", "good.md", goodChapter),
		chapterJSON("Bad", "bad.md", badChapter),
	)
	err := mdbook.Handle(pre, strings.NewReader(in), &out, logging.Discard())
	require.Error(t, err)
	assert.True(t, errors.Is(err, blocky.ErrUnmatchedClose))

	var ce *ChapterError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "bad.md", ce.Chapter)
	assert.Equal(t, 0, out.Len())
}

func TestBlocky_Run_badConfig(t *testing.T) {
	pre := New(config.Defaults(), nil)
	in := input(`{"on-error": "shrug"}`, chapterJSON("Good", "good.md", goodChapter))
	err := mdbook.Handle(pre, strings.NewReader(in), &bytes.Buffer{}, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid blocky config")
}

func TestBlocky_Run_unclosed(t *testing.T) {
	var out, logs bytes.Buffer
	pre := New(config.Defaults(), logging.New(&logs, 0, logging.FormatText))

	in := input("", chapterJSON("Open", "open.md", "{:.note}\n\nnever closed\n"))
	require.NoError(t, mdbook.Handle(pre, strings.NewReader(in), &out, pre.Log))

	assert.Equal(t, map[string]string{
		"open.md": "<div class=\"note blocky-block\">\n\nnever closed\n",
	}, contents(t, out.Bytes()))
	assert.Contains(t, logs.String(), "unclosed=1")
}

func TestBlocky_Run_logSettings(t *testing.T) {
	var out, logs bytes.Buffer
	pre := New(config.Defaults(), logging.Discard())
	var got config.Config
	pre.Logger = func(cfg config.Config) (*slog.Logger, error) {
		got = cfg
		return logging.New(&logs, slog.LevelDebug, logging.FormatJSON), nil
	}

	in := input(`{"log-level": "debug", "log-format": "json"}`, chapterJSON("Good", "good.md", goodChapter))
	require.NoError(t, mdbook.Handle(pre, strings.NewReader(in), &out, nil))
	assert.Equal(t, "debug", got.LogLevel)
	assert.Equal(t, "json", got.LogFormat)
	assert.Contains(t, logs.String(), `"msg":"rewrote blocks"`)
	assert.Contains(t, logs.String(), `"chapter":"good.md"`)

	pre.Logger = func(config.Config) (*slog.Logger, error) { return nil, errors.New("no logs for you") }
	err := mdbook.Handle(pre, strings.NewReader(in), &out, nil)
	assert.EqualError(t, err, "no logs for you")
}

func TestBlocky_SupportsRenderer(t *testing.T) {
	pre := New(config.Defaults(), nil)
	assert.Equal(t, config.Name, pre.Name())
	assert.True(t, pre.SupportsRenderer("html"))
	assert.False(t, pre.SupportsRenderer("epub"))

	pre.Config.Renderers = []string{"html", "epub"}
	assert.True(t, pre.SupportsRenderer("epub"))
}

func TestChapterError(t *testing.T) {
	err := error(&ChapterError{"a.md", blocky.ErrDepthOverflow})
	assert.True(t, errors.Is(err, blocky.ErrDepthOverflow))
	assert.Contains(t, err.Error(), "chapter a.md: ")
}
