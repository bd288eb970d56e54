// Package httpmsg locates structure inside raw HTTP/1.x messages.
//
// The probes built by the guesser are deliberately malformed, so nothing here
// validates a message. Lookups work on bytes and report offsets.
package httpmsg

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/core"
)

var (
	// ErrNoHeaderTerminator is returned when a message has no blank line
	// separating headers from the body.
	ErrNoHeaderTerminator = errors.New("no header terminator found")
)

var (
	crlf     = []byte("\r\n")
	crlfCRLF = []byte("\r\n\r\n")
)

// Parser implements core.MessageParser.
type Parser struct{}

var _ core.MessageParser = Parser{}

// New returns a Parser.
func New() Parser {
	return Parser{}
}

// BodyOffset returns the index of the first body byte. The CRLF pair that
// ends the header block belongs to the header block, so bodyOffset-2 is
// where a new header line can be inserted.
func (Parser) BodyOffset(msg []byte) (int, error) {
	idx := bytes.Index(msg, crlfCRLF)
	if idx < 0 {
		return 0, ErrNoHeaderTerminator
	}
	return idx + len(crlfCRLF), nil
}

// FindHeader returns the offsets of the first header line whose name equals
// name, compared case-insensitively. The start line is never matched.
func (p Parser) FindHeader(msg []byte, name string) (core.HeaderOffsets, bool) {
	bodyOffset, err := p.BodyOffset(msg)
	if err != nil {
		return core.HeaderOffsets{}, false
	}
	headerEnd := bodyOffset - len(crlf)

	lineEnd := bytes.Index(msg, crlf)
	if lineEnd < 0 || lineEnd >= headerEnd {
		return core.HeaderOffsets{}, false
	}

	target := []byte(name)
	start := lineEnd + len(crlf)
	for start < headerEnd {
		end := bytes.Index(msg[start:], crlf)
		if end < 0 {
			break
		}
		end += start

		line := msg[start:end]
		if colon := bytes.IndexByte(line, ':'); colon >= 0 && bytes.EqualFold(line[:colon], target) {
			return core.HeaderOffsets{
				Start:    start,
				NameEnd:  start + colon,
				ValueEnd: end,
			}, true
		}
		start = end + len(crlf)
	}
	return core.HeaderOffsets{}, false
}

// StatusCode parses the status code from an HTTP status line. It returns 0
// when the message does not start with one.
func (Parser) StatusCode(msg []byte) int {
	line := msg
	if idx := bytes.Index(msg, crlf); idx >= 0 {
		line = msg[:idx]
	} else if idx := bytes.IndexByte(msg, '\n'); idx >= 0 {
		line = msg[:idx]
	}
	if !bytes.HasPrefix(line, []byte("HTTP/")) {
		return 0
	}

	fields := bytes.Fields(line)
	if len(fields) < 2 || len(fields[1]) != 3 {
		return 0
	}
	code, err := strconv.Atoi(string(fields[1]))
	if err != nil {
		return 0
	}
	return code
}

// HeaderValue returns the trimmed value of the named header, if present.
func (p Parser) HeaderValue(msg []byte, name string) (string, bool) {
	off, ok := p.FindHeader(msg, name)
	if !ok {
		return "", false
	}
	return string(bytes.TrimSpace(msg[off.NameEnd+1 : off.ValueEnd])), true
}

// RequestTarget returns the offsets of the request-target in the start line
// of a request: [start, end).
func RequestTarget(msg []byte) (int, int, bool) {
	lineEnd := bytes.Index(msg, crlf)
	if lineEnd < 0 {
		return 0, 0, false
	}
	first := bytes.IndexByte(msg[:lineEnd], ' ')
	if first < 0 {
		return 0, 0, false
	}
	second := bytes.IndexByte(msg[first+1:lineEnd], ' ')
	if second < 0 {
		return 0, 0, false
	}
	return first + 1, first + 1 + second, true
}
