// Package tunnel implements HTTPS CONNECT tunneling: once a client has
// been granted a tunnel, bytes flow opaquely in both directions until
// either side closes the connection.
package tunnel

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	logger "github.com/soulteary/logger-kit"

	"github.com/distrocache/distrocache/internal/metrics"
	"github.com/distrocache/distrocache/internal/stats"
)

// DialTimeout bounds the TCP dial to the CONNECT target.
const DialTimeout = 10 * time.Second

// relayBufferSize is the read chunk size used for each direction of the tunnel.
const relayBufferSize = 8 * 1024

// Tunnel handles CONNECT requests by hijacking the client connection and
// relaying bytes to a dialed upstream connection.
type Tunnel struct {
	Stats   *stats.Stats
	Log     *logger.Logger
	Metrics *metrics.Recorder
}

// New constructs a Tunnel.
func New(st *stats.Stats, log *logger.Logger, rec *metrics.Recorder) *Tunnel {
	return &Tunnel{Stats: st, Log: log, Metrics: rec}
}

// Handle services one CONNECT request end to end.
func (t *Tunnel) Handle(w http.ResponseWriter, r *http.Request) {
	host, port := targetAddress(r)
	if host == "" {
		if t.Log != nil {
			t.Log.Error().Msg("CONNECT request with no target")
		}
		http.Error(w, "cannot determine CONNECT target", http.StatusBadRequest)
		return
	}

	addr := net.JoinHostPort(host, port)

	if t.Log != nil {
		t.Log.Info().Str("addr", addr).Msg("CONNECT tunneling")
	}
	if t.Stats != nil {
		t.Stats.AddLog(stats.LevelInfo, "CONNECT: "+addr)
	}

	upstream, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		if t.Log != nil {
			t.Log.Error().Err(err).Str("addr", addr).Msg("CONNECT dial failed")
		}
		if t.Stats != nil {
			t.Stats.AddLog(stats.LevelError, "CONNECT failed: "+addr+" ("+err.Error()+")")
		}
		http.Error(w, "upstream connect failed", http.StatusBadGateway)
		return
	}
	defer upstream.Close()

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		if t.Log != nil {
			t.Log.Error().Msg("CONNECT not supported: ResponseWriter is not a Hijacker")
		}
		http.Error(w, "CONNECT not supported by this server configuration", http.StatusNotImplemented)
		return
	}

	client, buf, err := hijacker.Hijack()
	if err != nil {
		if t.Log != nil {
			t.Log.Error().Err(err).Msg("CONNECT hijack failed")
		}
		return
	}
	defer client.Close()

	if _, err := client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		if t.Log != nil {
			t.Log.Error().Err(err).Msg("failed to send 200 to CONNECT client")
		}
		return
	}

	// Any data Hijack buffered but hadn't delivered to us yet must be sent
	// upstream first, or it is silently lost.
	if buf != nil && buf.Reader.Buffered() > 0 {
		pending := make([]byte, buf.Reader.Buffered())
		buf.Reader.Read(pending)
		upstream.Write(pending)
	}

	t.relay(client, upstream)
}

// relay copies bytes bidirectionally until either side closes or errors.
func (t *Tunnel) relay(client, upstream net.Conn) {
	done := make(chan struct{}, 2)

	go func() {
		copyLoop(upstream, client, t.onRelayedBytes)
		done <- struct{}{}
	}()
	go func() {
		copyLoop(client, upstream, t.onRelayedBytes)
		done <- struct{}{}
	}()

	<-done
	client.Close()
	upstream.Close()
}

func (t *Tunnel) onRelayedBytes(n int64) {
	t.Metrics.RecordBytes("tunnel", "tunnel", n)
}

// copyLoop reads from src in relayBufferSize chunks and writes to dst. EOF,
// any write error, or any read error other than the 10-second read-deadline
// timeout terminates this direction; a timeout just starts the next read.
func copyLoop(dst io.Writer, src net.Conn, onBytes func(int64)) {
	buf := make([]byte, relayBufferSize)
	for {
		if conn, ok := src.(interface{ SetReadDeadline(time.Time) error }); ok {
			conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return
			}
			if onBytes != nil {
				onBytes(int64(n))
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
	}
}

// targetAddress determines the CONNECT target from the Host header,
// falling back to the request line's target when the Host is empty or
// numeric-only (a bare port with no host). A bare "/" is not a target.
func targetAddress(r *http.Request) (host, port string) {
	candidate := r.Host
	if candidate == "" || (isNumeric(candidate) && r.URL.Path != "" && !isNumeric(r.URL.Path)) {
		candidate = r.URL.Path
	}
	if candidate == "" || candidate == "/" {
		candidate = r.RequestURI
	}
	if candidate == "" || candidate == "/" {
		return "", ""
	}

	if h, p, err := net.SplitHostPort(candidate); err == nil {
		return h, p
	}
	return candidate, "443"
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}
