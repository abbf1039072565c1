package harness

import (
	"crypto/tls"
	"io"
	"net"
)

// Stream is the bidirectional byte stream a transfer runs over. The
// current implementations write straight to the socket; Flush exists so
// a buffering implementation could slot in without touching callers.
type Stream interface {
	io.ReadWriteCloser
	Flush() error
}

// tlsStream is the production stream: TLS over TCP.
type tlsStream struct {
	*tls.Conn
}

func (s tlsStream) Flush() error { return nil }

// plainStream runs over bare TCP, for measurement servers that
// terminate TLS upstream of the timed path.
type plainStream struct {
	net.Conn
}

func (s plainStream) Flush() error { return nil }

// NewPlainStream wraps an established connection in an unencrypted
// Stream.
func NewPlainStream(conn net.Conn) Stream {
	return plainStream{Conn: conn}
}
