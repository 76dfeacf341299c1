// Package mdevent turns a parsed markdown document into a flat, forward-only
// stream of events, and writes such a stream back out as markdown.
//
// Container nodes (paragraphs, lists, emphasis, ...) produce an Enter and an
// Exit event around their children; other nodes produce a single event. Text
// and raw HTML nodes carry their content as a Literal so that stream
// transformers can inspect or synthesize them without touching the
// underlying AST.
package mdevent

import (
	"fmt"
	"io"

	"github.com/russross/blackfriday"
)

// Kind classifies an Event.
type Kind uint8

// Kind constants.
const (
	noKind Kind = iota
	Enter       // entering a container node
	Exit        // leaving a container node
	Leaf        // any non-text leaf: code, code block, breaks, rules
	Text        // a text run, Literal holds its content
	HTML        // raw html, written verbatim
)

// Event is a single item of a markdown event stream.
//
// Node refers to the source node for parsed events; synthesized events, such
// as HTML produced by a stream transformer, have a nil Node.
type Event struct {
	Kind    Kind
	Node    *blackfriday.Node
	Literal string
}

// TextEvent returns a synthesized text event.
func TextEvent(s string) Event { return Event{Kind: Text, Literal: s} }

// HTMLEvent returns a synthesized raw html event.
func HTMLEvent(s string) Event { return Event{Kind: HTML, Literal: s} }

// Synthetic returns true if the event was not produced by parsing.
func (ev Event) Synthetic() bool { return ev.Node == nil }

// Block returns true if the event should be written as a block: entering or
// leaving a block container, a block leaf, or raw html from an html block.
// Synthesized html is written inline, since it takes the place of text.
func (ev Event) Block() bool {
	if ev.Node == nil {
		return false
	}
	switch ev.Node.Type {
	case blackfriday.Document,
		blackfriday.BlockQuote,
		blackfriday.List,
		blackfriday.Item,
		blackfriday.Paragraph,
		blackfriday.Heading,
		blackfriday.HorizontalRule,
		blackfriday.CodeBlock,
		blackfriday.HTMLBlock,
		blackfriday.Table,
		blackfriday.TableHead,
		blackfriday.TableBody,
		blackfriday.TableRow:
		return true
	default:
		return false
	}
}

// Format writes a textual representation of the receiver, e.g.
// "Enter(Paragraph)" or `Text("hello")`.
func (ev Event) Format(f fmt.State, _ rune) {
	switch ev.Kind {
	case Enter, Exit, Leaf:
		if ev.Node != nil {
			fmt.Fprintf(f, "%v(%v)", ev.Kind, ev.Node.Type)
		} else {
			fmt.Fprintf(f, "%v(nil)", ev.Kind)
		}
	case Text, HTML:
		fmt.Fprintf(f, "%v(%q)", ev.Kind, ev.Literal)
	default:
		fmt.Fprint(f, ev.Kind)
	}
}

// Format writes a kind name.
func (k Kind) Format(f fmt.State, _ rune) {
	switch k {
	case noKind:
		io.WriteString(f, "None")
	case Enter:
		io.WriteString(f, "Enter")
	case Exit:
		io.WriteString(f, "Exit")
	case Leaf:
		io.WriteString(f, "Leaf")
	case Text:
		io.WriteString(f, "Text")
	case HTML:
		io.WriteString(f, "HTML")
	default:
		fmt.Fprintf(f, "InvalidKind%v", int(k))
	}
}
