package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// plaintextHarness returns a Harness pointed at addr with the TLS
// handshake replaced by a plain stream, so transfers can run against a
// local listener.
func plaintextHarness(t *testing.T, addr net.Addr) *Harness {
	t.Helper()

	h := testHarness(t)
	h.cfg.Host = "localhost"
	h.cfg.Port = addr.(*net.TCPAddr).Port
	h.secure = func(ctx context.Context, conn net.Conn) (Stream, time.Duration, error) {
		return NewPlainStream(conn), 0, nil
	}
	return h
}

// readUntilTerminator consumes a request's header block from conn.
func readUntilTerminator(conn net.Conn) ([]byte, error) {
	var request []byte
	one := make([]byte, 1)
	for !bytes.HasSuffix(request, []byte(headerTerminator)) {
		n, err := conn.Read(one)
		if n > 0 {
			request = append(request, one[0])
			continue
		}
		if err != nil {
			return request, err
		}
	}
	return request, nil
}

func TestDownloadOverPlainStream(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer listener.Close()

	requests := make(chan string, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		request, err := readUntilTerminator(conn)
		if err != nil {
			return
		}
		requests <- string(request)

		body := strings.Repeat("x", 100)
		fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\n"+
			"Server-Timing: cfRequestDuration;dur=12.5\r\n"+
			"Content-Length: %d\r\n"+
			"\r\n%s", len(body), body)
	}()

	h := plaintextHarness(t, listener.Addr())

	results, err := h.Download(context.Background(), 100)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	request := <-requests
	if !strings.HasPrefix(request, "GET /__down?bytes=100 HTTP/1.1\r\n") {
		t.Errorf("request line = %q", strings.SplitN(request, "\r\n", 2)[0])
	}
	if !strings.Contains(request, "Host: localhost\r\n") {
		t.Error("request missing Host header")
	}

	if results.Bytes != 100 {
		t.Errorf("Bytes = %d, want 100", results.Bytes)
	}
	if results.ServerTime != 12500*time.Microsecond {
		t.Errorf("ServerTime = %v, want 12.5ms", results.ServerTime)
	}
	if results.TTFBDuration <= 0 {
		t.Errorf("TTFBDuration = %v, want > 0", results.TTFBDuration)
	}
	if results.EndDuration < results.TTFBDuration {
		t.Errorf("EndDuration (%v) below TTFB (%v)", results.EndDuration, results.TTFBDuration)
	}
	if results.TCPDuration <= 0 {
		t.Errorf("TCPDuration = %v, want > 0", results.TCPDuration)
	}
}

func TestUploadOverPlainStream(t *testing.T) {
	const size = 1000

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer listener.Close()

	bodies := make(chan []byte, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		if _, err := readUntilTerminator(conn); err != nil {
			return
		}

		body := make([]byte, size)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}
		bodies <- body

		fmt.Fprint(conn, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
	}()

	h := plaintextHarness(t, listener.Addr())

	results, err := h.Upload(context.Background(), size)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	body := <-bodies
	for i, b := range body {
		if b != '0' {
			t.Fatalf("body[%d] = %q, want '0'", i, b)
		}
	}

	if results.Bytes != size {
		t.Errorf("Bytes = %d, want %d", results.Bytes, size)
	}
	if results.TTFBDuration != 0 || results.ServerTime != 0 {
		t.Errorf("upload TTFB/ServerTime = %v/%v, want zero", results.TTFBDuration, results.ServerTime)
	}
	if results.EndDuration <= 0 {
		t.Errorf("EndDuration = %v, want > 0", results.EndDuration)
	}
}

func TestStreamFlushIsNoOp(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	s := NewPlainStream(client)
	if err := s.Flush(); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
