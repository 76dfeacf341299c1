package mdevent

import (
	"strings"

	"github.com/russross/blackfriday"
)

// Extensions is the blackfriday extension set used by Parse. Bare URLs are
// not autolinked, as mdBook leaves them as text.
const Extensions = 0 |
	blackfriday.NoIntraEmphasis |
	blackfriday.Tables |
	blackfriday.FencedCode |
	blackfriday.Strikethrough |
	blackfriday.SpaceHeadings |
	blackfriday.BackslashLineBreak

// Scanner abstracts over event streams. Its Scan() method should return true
// if another event is available, false otherwise (end of stream, or error).
type Scanner interface {
	Scan() bool
	Event() Event
}

// ErrScanner is a Scanner extension implemented by streams that may fail
// partway through, e.g. a transformer rejecting malformed input.
type ErrScanner interface {
	Scanner
	Err() error
}

// ScanError returns any error retained by the given Scanner.
// See the ErrScanner extension.
func ScanError(sc Scanner) (err error) {
	if esc, ok := sc.(ErrScanner); ok {
		err = esc.Err()
	}
	return err
}

// Parse parses markdown source into a blackfriday AST and returns a scanner
// over its events.
//
// Footnote definitions are read as paragraph text: blackfriday would
// otherwise take some of them for link reference definitions and drop them
// from the tree.
func Parse(src []byte) *NodeScanner {
	md := blackfriday.New(blackfriday.WithExtensions(Extensions))
	return NewNodeScanner(md.Parse(escapeFootnoteDefs(src)))
}

// NodeScanner walks a blackfriday AST one event at a time, without collecting
// the events up front. Adjacent text siblings are coalesced into a single
// Text event, so that a paragraph of plain characters is always one event no
// matter how the inline parser split it.
type NodeScanner struct {
	root     *blackfriday.Node
	cur      *blackfriday.Node
	entering bool
	started  bool
	ev       Event
	tmp      strings.Builder
}

// NewNodeScanner returns a scanner over the events of the given tree.
func NewNodeScanner(root *blackfriday.Node) *NodeScanner {
	return &NodeScanner{root: root, cur: root, entering: true}
}

// Event returns the last scanned event.
func (sc *NodeScanner) Event() Event { return sc.ev }

// Scan advances to the next event.
func (sc *NodeScanner) Scan() bool {
	if sc.started {
		sc.advance()
	}
	sc.started = true
	if sc.cur == nil {
		sc.ev = Event{}
		return false
	}

	n := sc.cur
	switch {
	case isContainer(n) && sc.entering:
		sc.ev = Event{Kind: Enter, Node: n}
	case isContainer(n):
		sc.ev = Event{Kind: Exit, Node: n}
	case n.Type == blackfriday.Text:
		sc.ev = Event{Kind: Text, Node: n, Literal: sc.collectText()}
	case n.Type == blackfriday.HTMLSpan, n.Type == blackfriday.HTMLBlock:
		sc.ev = Event{Kind: HTML, Node: n, Literal: string(n.Literal)}
	default:
		sc.ev = Event{Kind: Leaf, Node: n}
	}
	return true
}

// collectText returns the literal of the current text node and any
// immediately following text siblings, leaving cur on the last of them.
func (sc *NodeScanner) collectText() string {
	n := sc.cur
	if n.Next == nil || n.Next.Type != blackfriday.Text {
		return string(textLiteral(n))
	}
	sc.tmp.Reset()
	for ; ; n = n.Next {
		sc.tmp.Write(textLiteral(n))
		if n.Next == nil || n.Next.Type != blackfriday.Text {
			break
		}
	}
	sc.cur = n
	return sc.tmp.String()
}

var ampEntity = []byte("&amp;")

// textLiteral returns the literal of a text node. Character references are
// kept as written, except for &amp; which blackfriday decodes into a node of
// its own; that one is encoded again so that a following "lt;" stays text.
func textLiteral(n *blackfriday.Node) []byte {
	if len(n.Literal) == 1 && n.Literal[0] == '&' {
		return ampEntity
	}
	return n.Literal
}

// isContainer returns true for node types that blackfriday.Walk visits twice,
// entering and leaving.
func isContainer(n *blackfriday.Node) bool {
	switch n.Type {
	case blackfriday.Document,
		blackfriday.BlockQuote,
		blackfriday.List,
		blackfriday.Item,
		blackfriday.Paragraph,
		blackfriday.Heading,
		blackfriday.Emph,
		blackfriday.Strong,
		blackfriday.Del,
		blackfriday.Link,
		blackfriday.Image,
		blackfriday.Table,
		blackfriday.TableHead,
		blackfriday.TableBody,
		blackfriday.TableRow,
		blackfriday.TableCell:
		return true
	default:
		return false
	}
}

func (sc *NodeScanner) advance() {
	n := sc.cur
	if n == nil {
		return
	}
	if n == sc.root && (!isContainer(n) || !sc.entering) {
		sc.cur = nil
		return
	}
	if sc.entering && isContainer(n) {
		if n.FirstChild != nil {
			sc.cur = n.FirstChild
		} else {
			sc.entering = false
		}
		return
	}
	if n.Next == nil {
		sc.cur = n.Parent
		sc.entering = false
		return
	}
	sc.cur = n.Next
	sc.entering = true
}

// SliceScanner scans a materialized event slice.
type SliceScanner struct {
	events []Event
	i      int
}

// Events returns a scanner over the given events.
func Events(events ...Event) *SliceScanner {
	return &SliceScanner{events: events, i: -1}
}

// Scan advances to the next event.
func (sc *SliceScanner) Scan() bool {
	if sc.i < len(sc.events) {
		sc.i++
	}
	return sc.i < len(sc.events)
}

// Event returns the last scanned event.
func (sc *SliceScanner) Event() Event {
	if sc.i < 0 || sc.i >= len(sc.events) {
		return Event{}
	}
	return sc.events[sc.i]
}

// Collect drains the given scanner, returning all of its events and any
// scan error.
func Collect(sc Scanner) ([]Event, error) {
	var events []Event
	for sc.Scan() {
		events = append(events, sc.Event())
	}
	return events, ScanError(sc)
}
