// Package blocky implements block annotations for markdown documents.
//
// A paragraph consisting only of an open marker, like `{:.warning}`, starts
// a styled wrapper around everything up to the matching close marker
// paragraph, like `{:/.warning}`. Wrappers may nest:
//
//	{:.note}
//
//	Outer content.
//
//	{:.warning}
//
//	Inner content.
//
//	{:/.warning}
//
//	{:/.note}
//
// becomes
//
//	<div class="note blocky-block">
//
//	Outer content.
//
//	<div class="warning blocky-block block-level-1">
//
//	Inner content.
//
//	</div>
//
//	</div>
//
// Close markers are counted, not matched: their class name is ignored.
package blocky

import (
	"bytes"
	"io"

	"github.com/jcorbin/blocky/internal/mdevent"
)

// Rewrite parses markdown src, rewrites its block markers, and writes the
// resulting markdown into w. On error, anything already written to w must be
// discarded.
func Rewrite(w io.Writer, src []byte) (Stats, error) {
	rw := NewRewriter(mdevent.Parse(src))
	err := mdevent.WriteEvents(w, rw)
	return rw.Stats(), err
}

// Transform returns markdown src with its block markers rewritten. Documents
// without any marker text are returned as is.
func Transform(src []byte) ([]byte, error) {
	out, _, err := TransformStats(src)
	return out, err
}

// TransformStats is Transform, also returning marker counts.
func TransformStats(src []byte) ([]byte, Stats, error) {
	if !mayContainMarkers(src) {
		return src, Stats{}, nil
	}
	var buf bytes.Buffer
	buf.Grow(len(src) + 128)
	stats, err := Rewrite(&buf, src)
	if err != nil {
		return nil, stats, err
	}
	return buf.Bytes(), stats, nil
}

// TransformString is Transform over strings.
func TransformString(s string) (string, error) {
	out, err := Transform([]byte(s))
	if err != nil {
		return "", err
	}
	return string(out), nil
}
