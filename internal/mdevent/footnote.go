package mdevent

import "bytes"

var footnoteLead = []byte("[^")

// escapeFootnoteDefs escapes the opening bracket of every line that starts a
// footnote definition, like "[^note]: text", so that blackfriday parses it as
// text. Lines within fenced code and html blocks are left alone.
//
// Returns src itself when there is nothing to escape.
func escapeFootnoteDefs(src []byte) []byte {
	if !bytes.Contains(src, footnoteLead) {
		return src
	}

	var (
		out   []byte
		last  int
		fence []byte
		html  bool
	)
	for off := 0; off < len(src); {
		end := bytes.IndexByte(src[off:], '\n')
		if end < 0 {
			end = len(src)
		} else {
			end += off + 1
		}
		line := src[off:end]
		i := lineContent(line)

		switch {
		case fence != nil:
			if closesFence(line[i:], fence) {
				fence = nil
			}
		case html:
			html = !isBlank(line)
		case i < len(line) && line[i] == '<':
			html = true
		default:
			if f := openFence(line[i:]); f != nil {
				fence = f
			} else if isFootnoteDef(line[i:]) {
				out = append(out, src[last:off+i]...)
				out = append(out, '\\')
				last = off + i
			}
		}
		off = end
	}

	if out == nil {
		return src
	}
	return append(out, src[last:]...)
}

// lineContent returns the offset of a line's content past up to three spaces
// of indentation and any block quote markers.
func lineContent(line []byte) int {
	i := 0
	for {
		for n := 0; n < 3 && i < len(line) && line[i] == ' '; n++ {
			i++
		}
		if i >= len(line) || line[i] != '>' {
			return i
		}
		i++
	}
}

func isFootnoteDef(s []byte) bool {
	if !bytes.HasPrefix(s, footnoteLead) {
		return false
	}
	s = s[len(footnoteLead):]
	for i, c := range s {
		switch c {
		case ']':
			return i > 0 && i+1 < len(s) && s[i+1] == ':'
		case '\n', '\r':
			return false
		}
	}
	return false
}

// openFence returns the fence run that opens a fenced code block, or nil.
func openFence(s []byte) []byte {
	if len(s) == 0 || (s[0] != '`' && s[0] != '~') {
		return nil
	}
	n := fenceRun(s)
	if n < 3 {
		return nil
	}
	if s[0] == '`' && bytes.IndexByte(s[n:], '`') >= 0 {
		return nil
	}
	return s[:n]
}

func closesFence(s, fence []byte) bool {
	if len(s) == 0 || s[0] != fence[0] {
		return false
	}
	n := fenceRun(s)
	return n >= len(fence) && isBlank(s[n:])
}

func fenceRun(s []byte) int {
	n := 0
	for n < len(s) && s[n] == s[0] {
		n++
	}
	return n
}

func isBlank(s []byte) bool {
	return len(bytes.TrimSpace(s)) == 0
}
