package httpmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_BodyOffset(t *testing.T) {
	p := New()

	tests := []struct {
		name    string
		msg     string
		want    int
		wantErr bool
	}{
		{name: "no body", msg: "GET / HTTP/1.1\r\nHost: a\r\n\r\n", want: 27},
		{name: "with body", msg: "POST / HTTP/1.1\r\nHost: a\r\n\r\nabc", want: 28},
		{name: "start line only", msg: "GET / HTTP/1.1\r\n\r\n", want: 18},
		{name: "missing terminator", msg: "GET / HTTP/1.1\r\nHost: a\r\n", wantErr: true},
		{name: "bare newlines", msg: "GET / HTTP/1.1\nHost: a\n\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.BodyOffset([]byte(tt.msg))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoHeaderTerminator)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParser_FindHeader(t *testing.T) {
	p := New()
	msg := []byte("POST /x HTTP/1.1\r\nHost: a\r\ncontent-length: 3\r\nX: y\r\n\r\nabc")

	off, ok := p.FindHeader(msg, "Content-Length")
	require.True(t, ok)
	assert.Equal(t, "content-length: 3", string(msg[off.Start:off.ValueEnd]))
	assert.Equal(t, byte(':'), msg[off.NameEnd])
	assert.Equal(t, "\r\n", string(msg[off.ValueEnd:off.ValueEnd+2]))

	_, ok = p.FindHeader(msg, "Transfer-Encoding")
	assert.False(t, ok)
}

func TestParser_FindHeader_IgnoresBodyAndStartLine(t *testing.T) {
	p := New()

	body := []byte("POST / HTTP/1.1\r\nHost: a\r\n\r\nContent-Length: 5\r\n")
	_, ok := p.FindHeader(body, "Content-Length")
	assert.False(t, ok, "header-looking bytes in the body must not match")

	start := []byte("Content-Length: 1\r\nHost: a\r\n\r\n")
	_, ok = p.FindHeader(start, "Content-Length")
	assert.False(t, ok, "the start line is not a header")
}

func TestParser_FindHeader_LastHeader(t *testing.T) {
	p := New()
	msg := []byte("GET / HTTP/1.1\r\nHost: a\r\nContent-Length: 0\r\n\r\n")

	off, ok := p.FindHeader(msg, "content-length")
	require.True(t, ok)
	assert.Equal(t, len(msg)-4, off.ValueEnd)
}

func TestParser_StatusCode(t *testing.T) {
	p := New()

	tests := []struct {
		msg  string
		want int
	}{
		{"HTTP/1.1 200 OK\r\n\r\n", 200},
		{"HTTP/1.0 400 Bad Request\r\nServer: x\r\n\r\n", 400},
		{"HTTP/1.1 503\r\n\r\n", 503},
		{"HTTP/1.1 404 Not Found\n\n", 404},
		{"", 0},
		{"garbage", 0},
		{"HTTP/1.1 20 OK\r\n\r\n", 0},
		{"HTTP/1.1 abc OK\r\n\r\n", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.StatusCode([]byte(tt.msg)), "msg %q", tt.msg)
	}
}

func TestParser_HeaderValue(t *testing.T) {
	p := New()
	msg := []byte("HTTP/1.1 200 OK\r\nServer:  nginx \r\n\r\n")

	v, ok := p.HeaderValue(msg, "server")
	require.True(t, ok)
	assert.Equal(t, "nginx", v)
}

func TestRequestTarget(t *testing.T) {
	msg := []byte("GET /a/b?c=d HTTP/1.1\r\nHost: a\r\n\r\n")

	start, end, ok := RequestTarget(msg)
	require.True(t, ok)
	assert.Equal(t, "/a/b?c=d", string(msg[start:end]))

	_, _, ok = RequestTarget([]byte("GARBAGE\r\n\r\n"))
	assert.False(t, ok)
}
