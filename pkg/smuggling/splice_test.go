package smuggling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/clguess/pkg/httpmsg"
)

var baseRequests = map[string]string{
	"empty body":      "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n",
	"with body":       "POST /login HTTP/1.1\r\nHost: example.com\r\nContent-Type: text/plain\r\n\r\nuser=a&pass=b",
	"single header":   "GET / HTTP/1.1\r\nHost: x\r\n\r\n",
	"body with crlfs": "POST / HTTP/1.1\r\nHost: x\r\n\r\nline1\r\n\r\nline2",
}

func TestRemoveHeader(t *testing.T) {
	p := httpmsg.New()
	tests := []struct {
		name   string
		req    string
		header string
		want   string
	}{
		{
			name:   "absent header",
			req:    "GET / HTTP/1.1\r\nHost: x\r\n\r\n",
			header: "Content-Length",
			want:   "GET / HTTP/1.1\r\nHost: x\r\n\r\n",
		},
		{
			name:   "middle header",
			req:    "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 4\r\nAccept: */*\r\n\r\nbody",
			header: "Content-Length",
			want:   "POST / HTTP/1.1\r\nHost: x\r\nAccept: */*\r\n\r\nbody",
		},
		{
			name:   "last header before blank line",
			req:    "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 4\r\n\r\nbody",
			header: "Content-Length",
			want:   "POST / HTTP/1.1\r\nHost: x\r\n\r\nbody",
		},
		{
			name:   "case insensitive name",
			req:    "POST / HTTP/1.1\r\ncontent-length: 0\r\nHost: x\r\n\r\n",
			header: "Content-Length",
			want:   "POST / HTTP/1.1\r\nHost: x\r\n\r\n",
		},
		{
			name:   "body mention is ignored",
			req:    "POST / HTTP/1.1\r\nHost: x\r\n\r\nContent-Length: 9\r\n",
			header: "Content-Length",
			want:   "POST / HTTP/1.1\r\nHost: x\r\n\r\nContent-Length: 9\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RemoveHeader(p, []byte(tt.req), tt.header)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestStripHeader(t *testing.T) {
	p := httpmsg.New()
	tests := []struct {
		name string
		req  string
		want string
	}{
		{
			name: "absent",
			req:  "GET / HTTP/1.1\r\nHost: x\r\n\r\n",
			want: "GET / HTTP/1.1\r\nHost: x\r\n\r\n",
		},
		{
			name: "single",
			req:  "POST / HTTP/1.1\r\nContent-Length: 3\r\nHost: x\r\n\r\nabc",
			want: "POST / HTTP/1.1\r\nHost: x\r\n\r\nabc",
		},
		{
			name: "duplicated",
			req:  "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 3\r\nContent-Length: 3\r\n\r\nabc",
			want: "POST / HTTP/1.1\r\nHost: x\r\n\r\nabc",
		},
		{
			name: "scattered mixed case",
			req:  "POST / HTTP/1.1\r\ncontent-length: 3\r\nHost: x\r\nCONTENT-LENGTH: 5\r\n\r\nabc",
			want: "POST / HTTP/1.1\r\nHost: x\r\n\r\nabc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StripHeader(p, []byte(tt.req), "Content-Length")
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	_, err := StripHeader(p, []byte("GET / HTTP/1.1\r\nHost: x\r\n"), "Content-Length")
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestInsertHeader(t *testing.T) {
	p := httpmsg.New()

	t.Run("empty body", func(t *testing.T) {
		got, err := InsertHeader(p, []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"), []byte("X-Test: 1"))
		require.NoError(t, err)
		assert.Equal(t, "GET / HTTP/1.1\r\nHost: x\r\nX-Test: 1\r\n\r\n", string(got))
	})

	t.Run("body untouched", func(t *testing.T) {
		got, err := InsertHeader(p, []byte("POST / HTTP/1.1\r\nHost: x\r\n\r\na=1\r\n\r\nb"), []byte("Content-Length: 0"))
		require.NoError(t, err)
		assert.Equal(t, "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 0\r\n\r\na=1\r\n\r\nb", string(got))
	})

	t.Run("raw control bytes kept", func(t *testing.T) {
		got, err := InsertHeader(p, []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"), []byte("Content-Length:\x0b0"))
		require.NoError(t, err)
		assert.Contains(t, string(got), "\r\nContent-Length:\x0b0\r\n\r\n")
	})
}

func TestSplice_MalformedInput(t *testing.T) {
	p := httpmsg.New()
	req := []byte("GET / HTTP/1.1\r\nHost: x\r\n")

	_, err := InsertHeader(p, req, []byte("X: 1"))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = RemoveHeader(p, req, "Host")
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestSplice_RemoveUndoesInsert(t *testing.T) {
	p := httpmsg.New()
	headers := [][2]string{
		{"Content-Length", "0"},
		{"Content-Length", "z"},
		{"X-Custom", ""},
		{"Transfer-Encoding", "chunked"},
	}

	for name, req := range baseRequests {
		for _, h := range headers {
			t.Run(name+"/"+h[0], func(t *testing.T) {
				inserted, err := InsertHeader(p, []byte(req), []byte(h[0]+": "+h[1]))
				require.NoError(t, err)

				restored, err := RemoveHeader(p, inserted, h[0])
				require.NoError(t, err)
				assert.Equal(t, req, string(restored))
			})
		}
	}
}

func TestSplice_DoesNotMutateInput(t *testing.T) {
	p := httpmsg.New()
	src := "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 3\r\n\r\nabc"

	// spare capacity would expose an append that writes into the caller's array
	req := make([]byte, len(src), len(src)+64)
	copy(req, src)

	_, err := InsertHeader(p, req, []byte("X-A: 1"))
	require.NoError(t, err)
	_, err = RemoveHeader(p, req, "Content-Length")
	require.NoError(t, err)

	assert.Equal(t, src, string(req))
	assert.Equal(t, src, string(req[:len(src)]))
}

func TestAddCacheBuster(t *testing.T) {
	tests := []struct {
		name    string
		req     string
		want    string
		wantErr bool
	}{
		{"no query", "GET / HTTP/1.1\r\nHost: x\r\n\r\n", "GET /?cb=1 HTTP/1.1\r\nHost: x\r\n\r\n", false},
		{"existing query", "GET /a?b=c HTTP/1.1\r\n\r\n", "GET /a?b=c&cb=1 HTTP/1.1\r\n\r\n", false},
		{"no request line", "garbage", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AddCacheBuster([]byte(tt.req), "cb", "1")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}
