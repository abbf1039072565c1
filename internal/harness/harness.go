// Package harness performs individual timed transfers against the
// measurement server: DNS resolution, TCP connect, TLS handshake, and
// manual HTTP/1.1 exchanges over the raw connection.
//
// HTTP is spoken by hand rather than through net/http so each phase of
// the request can be timed separately: the response is read one byte at
// a time until the header terminator so time-to-first-byte reflects the
// true first byte off the wire.
package harness

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"
)

const (
	// DefaultHost is the measurement server.
	DefaultHost = "speed.cloudflare.com"

	// DefaultPort is the HTTPS port transfers run over.
	DefaultPort = 443

	// DefaultLatencyProbeTimeout bounds the TCP connect used for
	// latency probes.
	DefaultLatencyProbeTimeout = 5 * time.Second
)

// Config holds the connection parameters for a Harness.
type Config struct {
	// Host is the measurement server hostname.
	Host string

	// Port is the TCP port to connect to.
	Port int

	// UserAgent is sent on every request.
	UserAgent string

	// LatencyProbeTimeout bounds the TCP connect of a latency probe.
	LatencyProbeTimeout time.Duration
}

// DefaultConfig returns the standard measurement server parameters.
func DefaultConfig(userAgent string) Config {
	return Config{
		Host:                DefaultHost,
		Port:                DefaultPort,
		UserAgent:           userAgent,
		LatencyProbeTimeout: DefaultLatencyProbeTimeout,
	}
}

// Harness opens timed connections to the measurement server and runs
// HTTP transfers over them.
type Harness struct {
	cfg    Config
	logger *slog.Logger

	// Dial and handshake hooks, replaceable in tests.
	dialContext func(ctx context.Context, network, addr string) (net.Conn, error)
	dialTimeout func(network, addr string, timeout time.Duration) (net.Conn, error)
	secure      func(ctx context.Context, conn net.Conn) (Stream, time.Duration, error)
}

// New returns a Harness for the given server.
func New(cfg Config, logger *slog.Logger) *Harness {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LatencyProbeTimeout <= 0 {
		cfg.LatencyProbeTimeout = DefaultLatencyProbeTimeout
	}

	dialer := &net.Dialer{}
	h := &Harness{
		cfg:         cfg,
		logger:      logger,
		dialContext: dialer.DialContext,
		dialTimeout: net.DialTimeout,
	}
	h.secure = h.secureTLS
	return h
}

// Host returns the configured measurement server hostname.
func (h *Harness) Host() string {
	return h.cfg.Host
}

// ResolveDNS resolves the measurement server hostname, preferring IPv4
// addresses, and reports how long resolution took.
func (h *Harness) ResolveDNS(ctx context.Context) (net.IP, time.Duration, error) {
	start := time.Now()
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, h.cfg.Host)
	duration := time.Since(start)
	if err != nil {
		return nil, duration, fmt.Errorf("resolving %s: %w", h.cfg.Host, err)
	}
	if len(addrs) == 0 {
		return nil, duration, fmt.Errorf("resolving %s: no addresses returned", h.cfg.Host)
	}

	for _, addr := range addrs {
		if v4 := addr.IP.To4(); v4 != nil {
			return v4, duration, nil
		}
	}
	return addrs[0].IP, duration, nil
}

// TCPConnect opens a TCP connection to ip on the configured port and
// reports how long the connect took.
func (h *Harness) TCPConnect(ctx context.Context, ip net.IP) (net.Conn, time.Duration, error) {
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(h.cfg.Port))

	start := time.Now()
	conn, err := h.dialContext(ctx, "tcp", addr)
	duration := time.Since(start)
	if err != nil {
		return nil, duration, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return conn, duration, nil
}

// TLSHandshake wraps conn in TLS against the configured hostname and
// reports how long the handshake took. System roots verify the server
// certificate.
func (h *Harness) TLSHandshake(ctx context.Context, conn net.Conn) (*tls.Conn, time.Duration, error) {
	tlsConn := tls.Client(conn, &tls.Config{ServerName: h.cfg.Host})

	start := time.Now()
	err := tlsConn.HandshakeContext(ctx)
	duration := time.Since(start)
	if err != nil {
		return nil, duration, fmt.Errorf("tls handshake with %s: %w", h.cfg.Host, err)
	}
	return tlsConn, duration, nil
}

// MeasureTCPLatency measures round-trip latency as the time to complete
// a TCP handshake with ip, in milliseconds. The connect is bounded by
// the configured probe timeout and the connection is closed immediately.
func (h *Harness) MeasureTCPLatency(ip net.IP) (float64, error) {
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(h.cfg.Port))

	start := time.Now()
	conn, err := h.dialTimeout("tcp", addr, h.cfg.LatencyProbeTimeout)
	latency := time.Since(start)
	if err != nil {
		return 0, fmt.Errorf("latency probe to %s: %w", addr, err)
	}
	conn.Close()

	return float64(latency) / float64(time.Millisecond), nil
}

// secureTLS completes the TLS handshake and wraps the result as a
// Stream. It is the default handshake hook.
func (h *Harness) secureTLS(ctx context.Context, conn net.Conn) (Stream, time.Duration, error) {
	tlsConn, duration, err := h.TLSHandshake(ctx, conn)
	if err != nil {
		return nil, duration, err
	}
	return tlsStream{Conn: tlsConn}, duration, nil
}

// connect resolves, connects, and completes the TLS handshake, returning
// the secured stream, the resolved address, and the TCP connect
// duration.
func (h *Harness) connect(ctx context.Context) (Stream, net.IP, time.Duration, error) {
	ip, dnsDuration, err := h.ResolveDNS(ctx)
	if err != nil {
		return nil, nil, 0, err
	}

	conn, tcpDuration, err := h.TCPConnect(ctx, ip)
	if err != nil {
		return nil, nil, 0, err
	}

	stream, tlsDuration, err := h.secure(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, nil, 0, err
	}

	h.logger.Debug("connected",
		"host", h.cfg.Host,
		"ip", ip.String(),
		"dns", dnsDuration.String(),
		"tcp", tcpDuration.String(),
		"tls", tlsDuration.String(),
	)

	return stream, ip, tcpDuration, nil
}
