package smuggling

import (
	"fmt"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/core"
	"github.com/CodeMonkeyCybersecurity/clguess/pkg/httpmsg"
)

// RemoveHeader returns a copy of req without the first header line called
// name, including its CRLF. A request without the header is returned as is.
func RemoveHeader(p core.MessageParser, req []byte, name string) ([]byte, error) {
	if _, err := p.BodyOffset(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	off, ok := p.FindHeader(req, name)
	if !ok {
		return req, nil
	}

	end := off.ValueEnd + 2
	if off.Start < 0 || end > len(req) || off.Start >= end {
		return nil, fmt.Errorf("%w: header %q has invalid offsets", ErrMalformedMessage, name)
	}

	out := make([]byte, 0, len(req)-(end-off.Start))
	out = append(out, req[:off.Start]...)
	out = append(out, req[end:]...)
	return out, nil
}

// StripHeader removes every header line called name. Duplicated framing
// headers in a captured request would otherwise survive into every request sent.
func StripHeader(p core.MessageParser, req []byte, name string) ([]byte, error) {
	for {
		if _, ok := p.FindHeader(req, name); !ok {
			if _, err := p.BodyOffset(req); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
			}
			return req, nil
		}
		out, err := RemoveHeader(p, req, name)
		if err != nil {
			return nil, err
		}
		req = out
	}
}

// InsertHeader returns a copy of req with header and a CRLF placed right
// before the blank line that ends the header block.
func InsertHeader(p core.MessageParser, req []byte, header []byte) ([]byte, error) {
	bodyOffset, err := p.BodyOffset(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	at := bodyOffset - 2
	if at < 0 {
		return nil, fmt.Errorf("%w: body offset %d", ErrMalformedMessage, bodyOffset)
	}

	out := make([]byte, 0, len(req)+len(header)+2)
	out = append(out, req[:at]...)
	out = append(out, header...)
	out = append(out, '\r', '\n')
	out = append(out, req[at:]...)
	return out, nil
}

// AddCacheBuster appends param=value to the query of the request-target.
func AddCacheBuster(req []byte, param, value string) ([]byte, error) {
	start, end, ok := httpmsg.RequestTarget(req)
	if !ok {
		return nil, fmt.Errorf("%w: no request line", ErrMalformedMessage)
	}

	sep := byte('?')
	for _, c := range req[start:end] {
		if c == '?' {
			sep = '&'
			break
		}
	}

	pair := append([]byte{sep}, param+"="+value...)
	out := make([]byte, 0, len(req)+len(pair))
	out = append(out, req[:end]...)
	out = append(out, pair...)
	out = append(out, req[end:]...)
	return out, nil
}
