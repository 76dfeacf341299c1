package mdevent

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/russross/blackfriday"
)

// WriteEvents writes all events from the given scanner as markdown into w.
// Returns the first write error, or else any scan error.
func WriteEvents(w io.Writer, sc Scanner) error {
	mw := NewWriter(w)
	for sc.Scan() {
		if err := mw.WriteEvent(sc.Event()); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}
	return ScanError(sc)
}

// Writer renders an event stream back into markdown text.
//
// Output is buffered and flushed through the last complete line after every
// event, so only the current line is ever held in memory.
type Writer struct {
	out errWriter
	buf bytes.Buffer

	wrote     bool // any content written
	pending   int  // newlines owed before the next content
	bol       bool // at beginning of line, prefix not yet written
	lineStart bool // no content yet on the current line, after any prefix
	fresh     bool // just opened an item or quote, suppress separation
	inLink    int  // link and image text nesting
	bang      bool // text just written ends with a bare '!'

	stack []renderContext
	renderContext
}

type renderContext struct {
	prefix   string // line continuation prefix: quote marks and item indent
	tight    bool   // within a tight list
	nextItem int
	inTable  bool
}

// NewWriter returns a markdown writer into w.
func NewWriter(w io.Writer) *Writer {
	mw := &Writer{bol: true, lineStart: true}
	mw.out.w = w
	mw.buf.Grow(4096)
	return mw
}

// Close terminates the document with a final newline and flushes all
// buffered output.
func (mw *Writer) Close() error {
	if mw.wrote {
		mw.buf.WriteByte('\n')
		mw.wrote = false
		mw.pending = 0
	}
	mw.buf.WriteTo(&mw.out)
	return mw.out.err
}

// WriteEvent renders a single event.
func (mw *Writer) WriteEvent(ev Event) error {
	if mw.out.err != nil {
		return mw.out.err
	}
	switch ev.Kind {
	case Text:
		mw.text(ev.Literal)
	case HTML:
		if ev.Node != nil && ev.Node.Type == blackfriday.HTMLBlock {
			mw.htmlBlock(ev.Literal)
		} else {
			mw.raw(ev.Literal)
		}
	case Enter:
		mw.enterNode(ev.Node)
	case Exit:
		mw.exitNode(ev.Node)
	case Leaf:
		mw.leaf(ev.Node)
	}
	return mw.maybeFlush()
}

func (mw *Writer) enterNode(n *blackfriday.Node) {
	switch n.Type {
	case blackfriday.Document:

	case blackfriday.Heading:
		mw.sep(mw.gap())
		level := n.Level
		if level < 1 {
			level = 1
		}
		mw.raw(strings.Repeat("#", level) + " ")
		mw.lineStart = false

	case blackfriday.List:
		mw.sep(mw.gap())
		mw.push()
		mw.tight = n.Tight
		mw.nextItem = 1

	case blackfriday.Item:
		if mw.tight {
			mw.sep(1)
		} else {
			mw.sep(2)
		}
		var marker string
		if n.ListFlags&blackfriday.ListTypeOrdered != 0 {
			delim := n.Delimiter
			if delim == 0 {
				delim = '.'
			}
			marker = strconv.Itoa(mw.nextItem) + string(delim) + " "
		} else {
			bullet := n.BulletChar
			if bullet == 0 {
				bullet = '-'
			}
			marker = string(bullet) + " "
		}
		mw.raw(marker)
		mw.push()
		mw.prefix += strings.Repeat(" ", len(marker))
		mw.fresh = true
		mw.lineStart = true

	case blackfriday.BlockQuote:
		mw.sep(mw.gap())
		mw.settle()
		if !mw.bol {
			mw.buf.WriteString("> ")
			mw.wrote = true
		}
		mw.push()
		mw.prefix += "> "
		mw.tight = false
		mw.fresh = true

	case blackfriday.Paragraph:
		mw.sep(mw.gap())

	case blackfriday.Emph:
		mw.raw("*")
	case blackfriday.Strong:
		mw.raw("**")
	case blackfriday.Del:
		mw.raw("~~")

	case blackfriday.Link:
		if mw.bang && mw.pending == 0 {
			// would read back as an image
			mw.buf.Truncate(mw.buf.Len() - 1)
			mw.buf.WriteString("\\!")
		}
		mw.raw("[")
		mw.inLink++
	case blackfriday.Image:
		mw.raw("![")
		mw.inLink++

	case blackfriday.Table:
		mw.sep(mw.gap())
		mw.push()
		mw.inTable = true
	case blackfriday.TableHead, blackfriday.TableBody:
	case blackfriday.TableRow:
		mw.sep(1)
		mw.raw("|")
	case blackfriday.TableCell:
		mw.raw(" ")

	default:
		mw.unsup(n.Type.String(), true)
	}
}

func (mw *Writer) exitNode(n *blackfriday.Node) {
	switch n.Type {
	case blackfriday.Document:

	case blackfriday.Heading, blackfriday.Paragraph:
		mw.sep(mw.gap())

	case blackfriday.List:
		mw.pop()
		mw.sep(mw.gap())

	case blackfriday.Item:
		mw.pop()
		mw.nextItem++

	case blackfriday.BlockQuote:
		mw.pop()
		mw.sep(mw.gap())

	case blackfriday.Emph:
		mw.raw("*")
	case blackfriday.Strong:
		mw.raw("**")
	case blackfriday.Del:
		mw.raw("~~")

	case blackfriday.Link, blackfriday.Image:
		if mw.inLink > 0 {
			mw.inLink--
		}
		mw.raw("](")
		mw.raw(linkDestination(n.Destination))
		if len(n.Title) > 0 {
			mw.raw(" ")
			mw.raw(strconv.Quote(string(n.Title)))
		}
		mw.raw(")")

	case blackfriday.Table:
		mw.pop()
		mw.sep(mw.gap())
	case blackfriday.TableHead, blackfriday.TableBody:
	case blackfriday.TableRow:
		if n.Parent != nil && n.Parent.Type == blackfriday.TableHead {
			mw.delimiterRow(n)
		}
	case blackfriday.TableCell:
		mw.raw(" |")

	default:
		mw.unsup(n.Type.String(), false)
	}
}

func (mw *Writer) leaf(n *blackfriday.Node) {
	switch n.Type {
	case blackfriday.HorizontalRule:
		mw.sep(mw.gap())
		if mw.fresh {
			mw.raw("___")
		} else {
			mw.raw("---")
		}
		mw.sep(mw.gap())

	case blackfriday.CodeBlock:
		mw.sep(mw.gap())
		lit := strings.TrimSuffix(string(n.Literal), "\n")
		fence := codeFence(lit)
		mw.raw(fence)
		mw.raw(string(n.Info))
		for _, line := range strings.Split(lit, "\n") {
			mw.newline()
			mw.flush()
			mw.buf.WriteString(line)
		}
		mw.newline()
		mw.raw(fence)
		mw.sep(mw.gap())

	case blackfriday.Code:
		lit := string(n.Literal)
		ticks := "`"
		for strings.Contains(lit, ticks) {
			ticks += "`"
		}
		if len(ticks) > 1 || strings.HasPrefix(lit, "`") || strings.HasSuffix(lit, "`") {
			lit = " " + lit + " "
		}
		mw.raw(ticks + lit + ticks)

	case blackfriday.Hardbreak:
		mw.raw("\\")
		mw.newline()

	case blackfriday.Softbreak:
		mw.newline()

	default:
		mw.unsup(n.Type.String(), true)
	}
}

func (mw *Writer) htmlBlock(lit string) {
	mw.sep(mw.gap())
	lit = strings.TrimRight(lit, "\n")
	for i, line := range strings.Split(lit, "\n") {
		if i > 0 {
			mw.newline()
		}
		mw.flush()
		mw.buf.WriteString(line)
	}
	mw.lineStart = false
	mw.sep(mw.gap())
}

func (mw *Writer) delimiterRow(row *blackfriday.Node) {
	mw.newline()
	mw.raw("|")
	for cell := row.FirstChild; cell != nil; cell = cell.Next {
		switch cell.Align {
		case blackfriday.TableAlignmentLeft:
			mw.raw(" :-- |")
		case blackfriday.TableAlignmentRight:
			mw.raw(" --: |")
		case blackfriday.TableAlignmentCenter:
			mw.raw(" :-: |")
		default:
			mw.raw(" --- |")
		}
	}
}

// text writes a text run, escaping any characters that would otherwise be
// read back as markdown structure.
func (mw *Writer) text(s string) {
	for len(s) > 0 {
		line := s
		i := strings.IndexByte(s, '\n')
		if i >= 0 {
			line, s = s[:i], s[i+1:]
		} else {
			s = ""
		}
		if len(line) > 0 {
			mw.flush()
			line = escapeInline(line, mw.inTable, mw.inLink > 0)
			if mw.lineStart {
				line = escapeLineStart(line)
			}
			mw.buf.WriteString(line)
			mw.lineStart = false
			mw.bang = line[len(line)-1] == '!'
		}
		if i >= 0 {
			mw.newline()
		}
	}
}

// raw writes s verbatim on the current line.
func (mw *Writer) raw(s string) {
	if len(s) == 0 {
		return
	}
	mw.flush()
	mw.buf.WriteString(s)
	mw.lineStart = false
	mw.bang = false
}

// sep requests at least n newlines before the next content, unless nothing
// has been written yet within the current container.
func (mw *Writer) sep(n int) {
	if !mw.wrote || mw.fresh {
		return
	}
	if mw.pending < n {
		mw.pending = n
	}
}

// newline ends the current line unconditionally.
func (mw *Writer) newline() {
	if mw.pending < 1 {
		mw.pending = 1
	}
	mw.fresh = false
	mw.bang = false
}

func (mw *Writer) gap() int {
	if mw.tight {
		return 1
	}
	return 2
}

// settle writes any owed newlines using the current prefix for blank lines,
// leaving the writer at the beginning of a line.
func (mw *Writer) settle() {
	if mw.pending == 0 {
		return
	}
	mw.buf.WriteByte('\n')
	blank := strings.TrimRight(mw.prefix, " ")
	for i := 1; i < mw.pending; i++ {
		mw.buf.WriteString(blank)
		mw.buf.WriteByte('\n')
	}
	mw.pending = 0
	mw.bol = true
}

// flush prepares the current line for content: settles owed newlines, then
// writes the line prefix if at the beginning of a line.
func (mw *Writer) flush() {
	mw.settle()
	if mw.bol {
		mw.buf.WriteString(mw.prefix)
		mw.bol = false
		mw.lineStart = true
	}
	mw.wrote = true
	mw.fresh = false
}

func (mw *Writer) push() {
	mw.stack = append(mw.stack, mw.renderContext)
}

func (mw *Writer) pop() {
	if i := len(mw.stack) - 1; i >= 0 {
		mw.renderContext = mw.stack[i]
		mw.stack = mw.stack[:i]
	} else {
		mw.renderContext = renderContext{}
	}
	mw.fresh = false
}

func (mw *Writer) unsup(name string, entering bool) {
	if entering {
		mw.raw("{Unsupported")
	} else {
		mw.raw("{/Unsupported")
	}
	mw.raw(name)
	mw.raw("}")
}

func (mw *Writer) maybeFlush() error {
	b := mw.buf.Bytes()
	i := bytes.LastIndexByte(b, '\n')
	if i < 0 {
		return nil
	}
	n, err := mw.out.Write(b[:i+1])
	mw.buf.Next(n)
	return err
}

// errWriter retains the first write error, refusing further writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (n int, err error) {
	if ew.err == nil {
		n, ew.err = ew.w.Write(p)
	}
	return n, ew.err
}

func codeFence(lit string) string {
	fence := "```"
	for strings.Contains(lit, fence) {
		fence += "`"
	}
	return fence
}

func linkDestination(dest []byte) string {
	s := string(dest)
	if s == "" || strings.ContainsAny(s, " ()<>") {
		return "<" + s + ">"
	}
	return s
}

// escapeInline escapes the characters of a text run that would otherwise be
// read back as inline markup. Characters that cannot start markup where they
// stand are left bare: mdBook's own preprocessors and math renderers read
// chapter text without unescaping it.
func escapeInline(s string, inTable, inLink bool) string {
	var (
		sb      strings.Builder
		last    int
		escaped bool
	)
	for i := 0; i < len(s); i++ {
		if !needsEscape(s, i, inTable, inLink) {
			continue
		}
		if !escaped {
			sb.Grow(len(s) + 8)
			escaped = true
		}
		sb.WriteString(s[last:i])
		sb.WriteByte('\\')
		last = i
	}
	if !escaped {
		return s
	}
	sb.WriteString(s[last:])
	return sb.String()
}

// blackfriday decodes a backslash before any of these; before anything else
// the backslash is kept as text.
const escapable = "\\`*_{}[]()#+-.!:|&<>~"

func needsEscape(s string, i int, inTable, inLink bool) bool {
	next := byte(0)
	if i+1 < len(s) {
		next = s[i+1]
	}
	switch s[i] {
	case '`', '~':
		return true
	case '\\':
		return next == 0 || strings.IndexByte(escapable, next) >= 0
	case '*':
		return !(spaceAt(s, i-1) && spaceAt(s, i+1))
	case '_':
		return !(spaceAt(s, i-1) && spaceAt(s, i+1)) &&
			!(alnumAt(s, i-1) && alnumAt(s, i+1))
	case '!':
		return next == '['
	case '[':
		return inLink
	case ']':
		return inLink || next == '(' || next == '['
	case '<':
		return isLetter(next) || next == '/' || next == '!' || next == '?'
	case '|':
		return inTable
	default:
		return false
	}
}

func spaceAt(s string, i int) bool {
	return i >= 0 && i < len(s) && (s[i] == ' ' || s[i] == '\t')
}

func alnumAt(s string, i int) bool {
	return i >= 0 && i < len(s) && (isLetter(s[i]) || '0' <= s[i] && s[i] <= '9')
}

func isLetter(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

// escapeLineStart escapes a leading block marker: headings, quotes, bullets,
// setext underlines, ordinal list markers, and link reference definitions.
func escapeLineStart(line string) string {
	switch line[0] {
	case '#', '>', '-', '+', '=':
		return "\\" + line
	case '[':
		if !strings.HasPrefix(line, "[^") && strings.Contains(line, "]:") {
			return "\\" + line
		}
		return line
	}
	i := 0
	for i < len(line) && '0' <= line[i] && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return line[:i] + "\\" + line[i:]
	}
	return line
}
