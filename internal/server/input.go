package server

import (
	"strconv"
	"unicode/utf8"
)

// InputKind classifies a decoded terminal input.
type InputKind int

const (
	InputScroll InputKind = iota
	InputMouse
	InputQuit
	InputReload
)

// MouseAction is what an SGR mouse report describes.
type MouseAction int

const (
	MousePress MouseAction = iota
	MouseDrag
	MouseRelease
	MouseWheel
)

// Input is one decoded key or mouse event. Col and Row are 0-based cells.
type Input struct {
	Kind   InputKind
	DX, DY int
	Action MouseAction
	Button int
	Col    int
	Row    int
}

// inputParser decodes keys and SGR mouse reports (ESC [ < b ; x ; y M/m).
// A report split across reads is held until the rest arrives.
type inputParser struct {
	pending []byte
}

// Feed decodes data, returning every complete input.
func (p *inputParser) Feed(data []byte) []Input {
	buf := append(p.pending, data...)
	p.pending = nil

	var out []Input
	i := 0
	for i < len(buf) {
		if buf[i] == 0x1b {
			in, n, ok := parseEscape(buf[i:])
			if n == 0 {
				// Incomplete sequence: keep it for the next read.
				p.pending = append([]byte(nil), buf[i:]...)
				break
			}
			if ok {
				out = append(out, in)
			}
			i += n
			continue
		}

		r, size := utf8.DecodeRune(buf[i:])
		switch r {
		case 'w', 'W':
			out = append(out, Input{Kind: InputScroll, DY: -1})
		case 's', 'S':
			out = append(out, Input{Kind: InputScroll, DY: 1})
		case 'a', 'A':
			out = append(out, Input{Kind: InputScroll, DX: -1})
		case 'd', 'D':
			out = append(out, Input{Kind: InputScroll, DX: 1})
		case 'r', 'R':
			out = append(out, Input{Kind: InputReload})
		case 'q', 'Q':
			out = append(out, Input{Kind: InputQuit})
		case 3: // Ctrl-C
			out = append(out, Input{Kind: InputQuit})
		}
		i += size
	}
	return out
}

// parseEscape decodes one escape sequence at the start of b. It returns the
// bytes consumed, 0 when b ends mid-sequence, and ok=false for sequences
// that carry no input. An ESC that ends the read is the escape key itself:
// terminals write a CSI sequence in one piece.
func parseEscape(b []byte) (Input, int, bool) {
	if len(b) < 2 || b[1] != '[' {
		return Input{}, 1, false
	}
	if len(b) < 3 {
		return Input{}, 0, false
	}
	switch b[2] {
	case 'A':
		return Input{Kind: InputScroll, DY: -1}, 3, true
	case 'B':
		return Input{Kind: InputScroll, DY: 1}, 3, true
	case 'C':
		return Input{Kind: InputScroll, DX: 1}, 3, true
	case 'D':
		return Input{Kind: InputScroll, DX: -1}, 3, true
	case '<':
		return parseSGRMouse(b)
	}
	return Input{}, 3, false
}

func parseSGRMouse(b []byte) (Input, int, bool) {
	var fields [3]int
	field := 0
	start := 3
	for i := 3; i < len(b); i++ {
		c := b[i]
		switch {
		case c >= '0' && c <= '9':
			continue
		case c == ';':
			if field >= 2 {
				return Input{}, i + 1, false
			}
			n, err := strconv.Atoi(string(b[start:i]))
			if err != nil {
				return Input{}, i + 1, false
			}
			fields[field] = n
			field++
			start = i + 1
		case c == 'M' || c == 'm':
			if field != 2 {
				return Input{}, i + 1, false
			}
			n, err := strconv.Atoi(string(b[start:i]))
			if err != nil {
				return Input{}, i + 1, false
			}
			fields[2] = n
			return mouseInput(fields[0], fields[1], fields[2], c == 'm'), i + 1, true
		default:
			return Input{}, i + 1, false
		}
	}
	return Input{}, 0, false
}

func mouseInput(code, x, y int, release bool) Input {
	in := Input{Kind: InputMouse, Button: code & 3, Col: x - 1, Row: y - 1}
	switch {
	case code&64 != 0:
		in.Action = MouseWheel
		if code&1 == 0 {
			in.DY = -1
		} else {
			in.DY = 1
		}
	case release:
		in.Action = MouseRelease
	case code&32 != 0:
		in.Action = MouseDrag
	default:
		in.Action = MousePress
	}
	return in
}
