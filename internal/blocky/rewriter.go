package blocky

import (
	"errors"
	"fmt"

	"github.com/jcorbin/blocky/internal/mdevent"
)

// MaxDepth is the deepest allowed block nesting.
const MaxDepth = 254

var (
	// ErrDepthOverflow is returned when an open marker would nest deeper
	// than MaxDepth.
	ErrDepthOverflow = errors.New("block nesting too deep")

	// ErrUnmatchedClose is returned when a close marker arrives with no
	// block open.
	ErrUnmatchedClose = errors.New("unmatched block close")
)

// MarkerError describes a marker that could not be applied. It wraps either
// ErrDepthOverflow or ErrUnmatchedClose.
type MarkerError struct {
	Marker string // marker text as written
	Depth  int    // nesting depth when the marker was seen
	Err    error
}

func (me *MarkerError) Error() string {
	return fmt.Sprintf("%v: %q at depth %v", me.Err, me.Marker, me.Depth)
}

// Unwrap returns the underlying sentinel error.
func (me *MarkerError) Unwrap() error { return me.Err }

// Stats counts the markers a Rewriter has applied.
type Stats struct {
	Opens    int
	Closes   int
	MaxDepth int // deepest nesting reached
	Unclosed int // blocks still open at the end of the stream
}

// Rewriter replaces block markers in an event stream with wrapper markup,
// passing every other event through unchanged.
//
// It pulls exactly one source event per Scan, and never looks back or ahead,
// so it may run over an unbounded stream. Each rewriter owns its own depth
// counter; use a new one for every document.
type Rewriter struct {
	src   mdevent.Scanner
	depth uint8
	ev    mdevent.Event
	err   error
	stats Stats
	done  bool
}

// NewRewriter returns a rewriter over the given source stream, starting at
// depth 0.
func NewRewriter(src mdevent.Scanner) *Rewriter {
	return &Rewriter{src: src}
}

// Scan advances to the next output event. It returns false at the end of the
// source stream, or after a malformed marker; check Err to tell them apart.
// No output from a rewriter that failed should be trusted.
func (rw *Rewriter) Scan() bool {
	rw.ev = mdevent.Event{}
	if rw.err != nil || rw.done {
		return false
	}
	if !rw.src.Scan() {
		rw.done = true
		rw.err = mdevent.ScanError(rw.src)
		rw.stats.Unclosed = int(rw.depth)
		return false
	}

	ev := rw.src.Event()
	if ev.Kind != mdevent.Text {
		rw.ev = ev
		return true
	}

	switch m := Classify(ev.Literal); m.Kind {
	case Open:
		if rw.depth >= MaxDepth {
			rw.err = &MarkerError{ev.Literal, int(rw.depth), ErrDepthOverflow}
			return false
		}
		rw.depth++
		rw.stats.Opens++
		if d := int(rw.depth); d > rw.stats.MaxDepth {
			rw.stats.MaxDepth = d
		}
		ev = mdevent.HTMLEvent(OpenMarkup(m.Class, int(rw.depth)))

	case Close:
		if rw.depth == 0 {
			rw.err = &MarkerError{ev.Literal, 0, ErrUnmatchedClose}
			return false
		}
		rw.depth--
		rw.stats.Closes++
		ev = mdevent.HTMLEvent(CloseMarkup)
	}
	rw.ev = ev
	return true
}

// Event returns the last scanned event.
func (rw *Rewriter) Event() mdevent.Event { return rw.ev }

// Err returns the malformed marker error that stopped the rewriter, or any
// error from the source stream.
func (rw *Rewriter) Err() error { return rw.err }

// Depth returns the current nesting depth.
func (rw *Rewriter) Depth() int { return int(rw.depth) }

// Stats returns marker counts so far.
func (rw *Rewriter) Stats() Stats { return rw.stats }
