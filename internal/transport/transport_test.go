package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/armon/go-socks5"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/config"
	"github.com/CodeMonkeyCybersecurity/clguess/internal/core"
	"github.com/CodeMonkeyCybersecurity/clguess/pkg/httpmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubServer accepts connections, reads the request head and replies with
// the result of handle. The connection is closed only when closeAfter is set.
func stubServer(t *testing.T, closeAfter bool, handle func(req string) string) core.Target {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				var head string
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					head += line
					if line == "\r\n" {
						break
					}
				}
				resp := handle(head)
				if resp != "" {
					_, _ = c.Write([]byte(resp))
				}
				if !closeAfter {
					time.Sleep(2 * time.Second)
				}
			}(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return core.Target{Host: "127.0.0.1", Port: addr.Port}
}

func testConfig() config.TransportConfig {
	return config.TransportConfig{
		Timeout:          time.Second,
		ReadTimeout:      500 * time.Millisecond,
		MaxResponseBytes: 1 << 16,
	}
}

func TestRawTransport_Send(t *testing.T) {
	target := stubServer(t, true, func(req string) string {
		return "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"
	})

	tr, err := NewRawTransport(testConfig())
	require.NoError(t, err)

	resp, err := tr.Send(context.Background(), target, []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok", string(resp))
}

func TestRawTransport_StopsAtContentLength(t *testing.T) {
	target := stubServer(t, false, func(req string) string {
		return "HTTP/1.1 400 Bad Request\r\nContent-Length: 3\r\n\r\nbad"
	})

	tr, err := NewRawTransport(testConfig())
	require.NoError(t, err)

	start := time.Now()
	resp, err := tr.Send(context.Background(), target, []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 400, httpmsg.New().StatusCode(resp))
	assert.Less(t, time.Since(start), 400*time.Millisecond, "framed response must not wait for the read deadline")
}

func TestRawTransport_PartialResponseOnDeadline(t *testing.T) {
	// No framing headers so the reader waits for the deadline.
	target := stubServer(t, false, func(req string) string {
		return "HTTP/1.1 200 OK\r\n\r\npartial"
	})

	tr, err := NewRawTransport(testConfig())
	require.NoError(t, err)

	resp, err := tr.Send(context.Background(), target, []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n\r\npartial", string(resp))
}

func TestRawTransport_NoResponse(t *testing.T) {
	target := stubServer(t, false, func(req string) string { return "" })

	tr, err := NewRawTransport(testConfig())
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), target, []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestRawTransport_MaxResponseBytes(t *testing.T) {
	target := stubServer(t, true, func(req string) string {
		return "HTTP/1.1 200 OK\r\n\r\n0123456789abcdef"
	})

	cfg := testConfig()
	cfg.MaxResponseBytes = 20
	tr, err := NewRawTransport(cfg)
	require.NoError(t, err)

	resp, err := tr.Send(context.Background(), target, []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)
	assert.Len(t, resp, 20)
}

func TestRawTransport_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	tr, err := NewRawTransport(testConfig())
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), core.Target{Host: "127.0.0.1", Port: port}, []byte("GET / HTTP/1.1\r\n\r\n"))
	assert.Error(t, err)
}

func TestRawTransport_BlockPrivate(t *testing.T) {
	cfg := testConfig()
	cfg.BlockPrivate = true
	tr, err := NewRawTransport(cfg)
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), core.Target{Host: "127.0.0.1", Port: 80}, []byte("GET / HTTP/1.1\r\n\r\n"))
	assert.ErrorIs(t, err, ErrBlockedAddress)
}

func TestRawTransport_ContextCancelled(t *testing.T) {
	target := stubServer(t, false, func(req string) string { return "" })

	cfg := testConfig()
	cfg.ReadTimeout = 5 * time.Second
	tr, err := NewRawTransport(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = tr.Send(ctx, target, []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewRawTransport_SOCKSProxy(t *testing.T) {
	cfg := testConfig()
	cfg.SOCKSProxy = "socks5://127.0.0.1:1080"
	_, err := NewRawTransport(cfg)
	assert.NoError(t, err)

	cfg.SOCKSProxy = "ftp://127.0.0.1:21"
	_, err = NewRawTransport(cfg)
	assert.Error(t, err)
}

func TestResponseComplete(t *testing.T) {
	p := httpmsg.New()
	tests := []struct {
		name string
		resp string
		head bool
		want bool
	}{
		{"incomplete head", "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n", false, false},
		{"content length satisfied", "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok", false, true},
		{"content length short", "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nok", false, false},
		{"chunked done", "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n2\r\nok\r\n0\r\n\r\n", false, true},
		{"chunked pending", "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n2\r\nok\r\n", false, false},
		{"no content", "HTTP/1.1 204 No Content\r\n\r\n", false, true},
		{"head request", "HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\n", true, true},
		{"unframed", "HTTP/1.1 200 OK\r\n\r\nbody", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, responseComplete(p, []byte(tt.resp), tt.head))
		})
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		tls      bool
		want     core.Target
		wantPath string
		wantErr  bool
	}{
		{"bare host", "example.com", false, core.Target{Host: "example.com", Port: 80}, "/", false},
		{"bare host tls", "example.com", true, core.Target{Host: "example.com", Port: 443, TLS: true}, "/", false},
		{"host and port", "example.com:8080", false, core.Target{Host: "example.com", Port: 8080}, "/", false},
		{"https url", "https://example.com/login?a=1", false, core.Target{Host: "example.com", Port: 443, TLS: true}, "/login?a=1", false},
		{"http url with port", "http://10.0.0.1:8000", true, core.Target{Host: "10.0.0.1", Port: 8000}, "/", false},
		{"ipv6", "[::1]:8443", true, core.Target{Host: "::1", Port: 8443, TLS: true}, "/", false},
		{"empty", "", false, core.Target{}, "", true},
		{"bad scheme", "ftp://example.com", false, core.Target{}, "", true},
		{"bad port", "example.com:99999", false, core.Target{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, path, err := ParseTarget(tt.input, tt.tls)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestHostHeader(t *testing.T) {
	assert.Equal(t, "example.com", HostHeader(core.Target{Host: "example.com", Port: 80}))
	assert.Equal(t, "example.com", HostHeader(core.Target{Host: "example.com", Port: 443, TLS: true}))
	assert.Equal(t, "example.com:8443", HostHeader(core.Target{Host: "example.com", Port: 8443, TLS: true}))
	assert.Equal(t, "example.com:443", HostHeader(core.Target{Host: "example.com", Port: 443}))
	assert.Equal(t, "[::1]", HostHeader(core.Target{Host: "::1", Port: 80}))
}

type countingTransport struct{ calls atomic.Int32 }

func (c *countingTransport) Send(ctx context.Context, target core.Target, raw []byte) ([]byte, error) {
	c.calls.Add(1)
	return []byte("HTTP/1.1 200 OK\r\n\r\n"), nil
}

type denyLimiter struct{}

func (denyLimiter) WaitForHost(ctx context.Context, host string) error {
	return errors.New("limit exceeded")
}

type allowLimiter struct{ hosts []string }

func (a *allowLimiter) WaitForHost(ctx context.Context, host string) error {
	a.hosts = append(a.hosts, host)
	return nil
}

func TestRateLimited(t *testing.T) {
	next := &countingTransport{}
	target := core.Target{Host: "example.com", Port: 80}

	allow := &allowLimiter{}
	_, err := NewRateLimited(next, allow).Send(context.Background(), target, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, allow.hosts)
	assert.Equal(t, int32(1), next.calls.Load())

	_, err = NewRateLimited(next, denyLimiter{}).Send(context.Background(), target, nil)
	assert.Error(t, err)
	assert.Equal(t, int32(1), next.calls.Load(), "denied sends never reach the transport")
}

func TestRawTransport_ThroughSOCKS5(t *testing.T) {
	target := stubServer(t, true, func(req string) string {
		return "HTTP/1.1 200 OK\r\nContent-Length: 7\r\n\r\nproxied"
	})

	server, err := socks5.New(&socks5.Config{})
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() { _ = server.Serve(ln) }()

	cfg := testConfig()
	cfg.SOCKSProxy = "socks5://" + ln.Addr().String()
	tr, err := NewRawTransport(cfg)
	require.NoError(t, err)

	resp, err := tr.Send(context.Background(), target, []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 7\r\n\r\nproxied", string(resp))
}
