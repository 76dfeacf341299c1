// Package mdbook implements the mdBook preprocessor protocol: the host writes
// a JSON array of [context, book] to the preprocessor's stdin, and reads the
// processed book back as JSON from its stdout.
//
// Only the fields a preprocessor needs are decoded; every other field, and
// every book item other than a chapter, is carried through verbatim so that
// newer hosts lose nothing in the round trip.
package mdbook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Book is the book being processed.
type Book struct {
	Sections []*Section

	key    string // "sections", or "items" in newer hosts
	fields rawFields
}

// Section is one book item: a chapter, or some other variant (separators,
// part titles) that is passed through untouched.
type Section struct {
	Chapter *Chapter
	raw     json.RawMessage
}

// Chapter is a single unit of book content.
type Chapter struct {
	Name     string
	Content  string
	SubItems []*Section

	path   string
	fields rawFields
}

// Path returns the chapter's source path relative to the book source
// directory, or "" for draft chapters.
func (ch *Chapter) Path() string { return ch.path }

// String returns a chapter identifier suitable for log and error messages.
func (ch *Chapter) String() string {
	if ch.path != "" {
		return ch.path
	}
	return fmt.Sprintf("%q (draft)", ch.Name)
}

// ForEachChapter calls fn for every chapter in the book, depth first and in
// order, stopping at the first error.
func (b *Book) ForEachChapter(fn func(*Chapter) error) error {
	return forEachChapter(b.Sections, fn)
}

func forEachChapter(sections []*Section, fn func(*Chapter) error) error {
	for _, sec := range sections {
		if sec.Chapter == nil {
			continue
		}
		if err := fn(sec.Chapter); err != nil {
			return err
		}
		if err := forEachChapter(sec.Chapter.SubItems, fn); err != nil {
			return err
		}
	}
	return nil
}

var errNoSections = errors.New("book has no sections or items")

// UnmarshalJSON decodes a book, retaining unknown fields.
func (b *Book) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &b.fields); err != nil {
		return err
	}
	for _, key := range []string{"sections", "items"} {
		if raw, ok := b.fields[key]; ok {
			b.key = key
			return json.Unmarshal(raw, &b.Sections)
		}
	}
	return errNoSections
}

// MarshalJSON encodes a book, including any retained fields.
func (b *Book) MarshalJSON() ([]byte, error) {
	key := b.key
	if key == "" {
		key = "sections"
	}
	sections := b.Sections
	if sections == nil {
		sections = []*Section{}
	}
	return b.fields.with(key, sections)
}

// UnmarshalJSON decodes a section; anything but a chapter is kept raw.
func (sec *Section) UnmarshalJSON(data []byte) error {
	var variant struct {
		Chapter *Chapter `json:"Chapter"`
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		if err := json.Unmarshal(data, &variant); err != nil {
			return err
		}
	}
	sec.Chapter = variant.Chapter
	if sec.Chapter == nil {
		sec.raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

// MarshalJSON encodes a section.
func (sec *Section) MarshalJSON() ([]byte, error) {
	if sec.Chapter != nil {
		return json.Marshal(struct {
			Chapter *Chapter `json:"Chapter"`
		}{sec.Chapter})
	}
	if sec.raw == nil {
		return []byte("null"), nil
	}
	return sec.raw, nil
}

// UnmarshalJSON decodes a chapter, retaining unknown fields.
func (ch *Chapter) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &ch.fields); err != nil {
		return err
	}
	if err := ch.fields.get("name", &ch.Name); err != nil {
		return err
	}
	if err := ch.fields.get("content", &ch.Content); err != nil {
		return err
	}
	if err := ch.fields.get("sub_items", &ch.SubItems); err != nil {
		return err
	}
	var path *string
	if err := ch.fields.get("path", &path); err != nil {
		return err
	}
	if path != nil {
		ch.path = *path
	}
	return nil
}

// MarshalJSON encodes a chapter, including any retained fields.
func (ch *Chapter) MarshalJSON() ([]byte, error) {
	subItems := ch.SubItems
	if subItems == nil {
		subItems = []*Section{}
	}
	return ch.fields.with(
		"name", ch.Name,
		"content", ch.Content,
		"sub_items", subItems,
	)
}

// rawFields holds a JSON object's members undecoded.
type rawFields map[string]json.RawMessage

func (rf rawFields) get(key string, v interface{}) error {
	raw, ok := rf[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid %q field: %w", key, err)
	}
	return nil
}

// with encodes the receiver with the given key/value pairs replaced.
func (rf rawFields) with(kvs ...interface{}) ([]byte, error) {
	out := make(rawFields, len(rf)+len(kvs)/2)
	for key, raw := range rf {
		out[key] = raw
	}
	for i := 0; i+1 < len(kvs); i += 2 {
		raw, err := json.Marshal(kvs[i+1])
		if err != nil {
			return nil, err
		}
		out[kvs[i].(string)] = raw
	}
	return json.Marshal(map[string]json.RawMessage(out))
}
