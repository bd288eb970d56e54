package transport

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/CodeMonkeyCybersecurity/clguess/pkg/httpmsg"
)

var chunkedTerminator = []byte("0\r\n\r\n")

// responseComplete reports whether buf holds a whole response, so the read
// loop can stop without waiting for the server to close a kept-alive
// connection. Anything it cannot frame is read until EOF or deadline.
func responseComplete(p httpmsg.Parser, buf []byte, headRequest bool) bool {
	bodyOffset, err := p.BodyOffset(buf)
	if err != nil {
		return false
	}

	status := p.StatusCode(buf)
	if headRequest || status == 204 || status == 304 || (status >= 100 && status < 200) {
		return true
	}

	if te, ok := p.HeaderValue(buf, "Transfer-Encoding"); ok {
		if strings.Contains(strings.ToLower(te), "chunked") {
			return bytes.HasSuffix(buf, chunkedTerminator)
		}
		return false
	}

	if cl, ok := p.HeaderValue(buf, "Content-Length"); ok {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return false
		}
		return len(buf)-bodyOffset >= n
	}

	return false
}

func isHeadRequest(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte("HEAD "))
}
