package mdbook_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcorbin/blocky/internal/logging"
	. "github.com/jcorbin/blocky/internal/mdbook"
)

const testContext = `{
	"root": "/book",
	"config": {
		"book": {"title": "Test", "src": "src"},
		"preprocessor": {"blocky": {"on-error": "abort"}}
	},
	"renderer": "html",
	"mdbook_version": "0.4.40"
}`

const testBook = `{
	"sections": [
		{"Chapter": {
			"name": "One",
			"content": "# One\n",
			"number": [1],
			"sub_items": [
				{"Chapter": {
					"name": "Nested",
					"content": "nested\n",
					"number": [1, 1],
					"sub_items": [],
					"path": "one/nested.md",
					"source_path": "one/nested.md",
					"parent_names": ["One"]
				}}
			],
			"path": "one.md",
			"source_path": "one.md",
			"parent_names": []
		}},
		"Separator",
		{"PartTitle": "Part II"},
		{"Chapter": {
			"name": "Draft",
			"content": "",
			"number": null,
			"sub_items": [],
			"path": null,
			"source_path": null,
			"parent_names": []
		}}
	],
	"__non_exhaustive": null
}`

func testInput(book string) string {
	return "[" + testContext + "," + book + "]"
}

func TestParseInput(t *testing.T) {
	ctx, book, err := ParseInput(strings.NewReader(testInput(testBook)))
	require.NoError(t, err)

	assert.Equal(t, "/book", ctx.Root)
	assert.Equal(t, "html", ctx.Renderer)
	assert.Equal(t, "0.4.40", ctx.MDBookVersion)

	table, err := ctx.PreprocessorConfig("blocky")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"on-error": "abort"}, table)

	table, err = ctx.PreprocessorConfig("other")
	require.NoError(t, err)
	assert.Nil(t, table)

	require.Len(t, book.Sections, 4)
	assert.NotNil(t, book.Sections[0].Chapter)
	assert.Nil(t, book.Sections[1].Chapter, "separator")
	assert.Nil(t, book.Sections[2].Chapter, "part title")
	assert.NotNil(t, book.Sections[3].Chapter)

	var visited []string
	require.NoError(t, book.ForEachChapter(func(ch *Chapter) error {
		visited = append(visited, ch.String())
		return nil
	}))
	assert.Equal(t, []string{"one.md", "one/nested.md", `"Draft" (draft)`}, visited)
	assert.Equal(t, "", book.Sections[3].Chapter.Path())
}

func TestParseInput_errors(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   string
		err  string
	}{
		{"not json", "nope", "unable to parse preprocessor input"},
		{"not an array", "{}", "unable to parse preprocessor input"},
		{"one element", "[" + testContext + "]", "must be a JSON array"},
		{"bad context", `[{"root": 42}, {"sections": []}]`, "invalid preprocessor context"},
		{"no sections", "[" + testContext + `, {"title": "x"}]`, "invalid book"},
		{"bad chapter", "[" + testContext + `, {"sections": [{"Chapter": {"content": 7}}]}]`, "invalid book"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseInput(strings.NewReader(tc.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestContext_noConfig(t *testing.T) {
	var ctx Context
	require.NoError(t, json.Unmarshal([]byte(`{"root": "/", "renderer": "html"}`), &ctx))
	table, err := ctx.PreprocessorConfig("blocky")
	require.NoError(t, err)
	assert.Nil(t, table)
}

func TestBook_roundTrip(t *testing.T) {
	_, book, err := ParseInput(strings.NewReader(testInput(testBook)))
	require.NoError(t, err)

	out, err := json.Marshal(book)
	require.NoError(t, err)
	assert.JSONEq(t, testBook, string(out))
}

func TestBook_itemsKey(t *testing.T) {
	const in = `{"items": [{"Chapter": {"name": "A", "content": "a", "sub_items": [], "path": "a.md"}}]}`
	var book Book
	require.NoError(t, json.Unmarshal([]byte(in), &book))
	require.Len(t, book.Sections, 1)
	book.Sections[0].Chapter.Content = "b"

	out, err := json.Marshal(&book)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items": [{"Chapter": {"name": "A", "content": "b", "sub_items": [], "path": "a.md"}}]}`, string(out))
}

func TestBook_ForEachChapter_stops(t *testing.T) {
	_, book, err := ParseInput(strings.NewReader(testInput(testBook)))
	require.NoError(t, err)

	stop := errors.New("stop")
	n := 0
	err = book.ForEachChapter(func(ch *Chapter) error {
		n++
		if ch.Name == "Nested" {
			return stop
		}
		return nil
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 2, n)
}

func TestCompatibleVersion(t *testing.T) {
	assert.True(t, CompatibleVersion(Version))
	assert.True(t, CompatibleVersion("0.4.0"))
	assert.True(t, CompatibleVersion("0.4.52"))
	assert.False(t, CompatibleVersion("0.5.0"))
	assert.False(t, CompatibleVersion("1.4.40"))
	assert.False(t, CompatibleVersion(""))
	assert.False(t, CompatibleVersion("garbage"))
}

type upcase struct{ err error }

func (up upcase) Name() string                 { return "upcase" }
func (up upcase) SupportsRenderer(string) bool { return true }
func (up upcase) Run(ctx *Context, book *Book) (*Book, error) {
	if up.err != nil {
		return nil, up.err
	}
	return book, book.ForEachChapter(func(ch *Chapter) error {
		ch.Content = strings.ToUpper(ch.Content)
		return nil
	})
}

func TestHandle(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Handle(upcase{}, strings.NewReader(testInput(testBook)), &out, logging.Discard()))

	var book Book
	require.NoError(t, json.Unmarshal(out.Bytes(), &book))
	var contents []string
	require.NoError(t, book.ForEachChapter(func(ch *Chapter) error {
		contents = append(contents, ch.Content)
		return nil
	}))
	assert.Equal(t, []string{"# ONE\n", "NESTED\n", ""}, contents)
}

func TestHandle_error(t *testing.T) {
	var out bytes.Buffer
	boom := errors.New("boom")
	err := Handle(upcase{boom}, strings.NewReader(testInput(testBook)), &out, logging.Discard())
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 0, out.Len(), "nothing written on error")
}

func TestHandle_nilLogger(t *testing.T) {
	var out bytes.Buffer
	in := strings.Replace(testInput(testBook), `"0.4.40"`, `"0.5.1"`, 1)
	require.NoError(t, Handle(upcase{}, strings.NewReader(in), &out, nil))
	assert.NotZero(t, out.Len())
}

func TestHandle_versionMismatch(t *testing.T) {
	var out, logs bytes.Buffer
	in := strings.Replace(testInput(testBook), `"0.4.40"`, `"0.5.1"`, 1)
	log := logging.New(&logs, 0, logging.FormatText)
	require.NoError(t, Handle(upcase{}, strings.NewReader(in), &out, log))
	assert.Contains(t, logs.String(), "mdbook version mismatch")
	assert.Contains(t, logs.String(), "called_from=0.5.1")
	assert.NotZero(t, out.Len())
}
