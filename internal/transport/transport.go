// Package transport connects the binary wire codec to a net.Conn: a
// reader goroutine that decodes frames off the socket and hands them to a
// caller-supplied dispatch function, and a writer path serialized behind
// a mutex so concurrent senders don't interleave partial frames.
package transport

import (
	"net"
	"sync"

	"github.com/heapcap/heapcap/internal/interfaces"
	"github.com/heapcap/heapcap/internal/wire"
)

// Dispatch handles one decoded frame. Returning an error stops the read
// loop, which returns that error; the connection is left open for the
// owner to Close.
type Dispatch func(frame wire.Frame) error

// Conn wraps a net.Conn with framed, concurrency-safe send and a blocking
// receive loop.
type Conn struct {
	nc       net.Conn
	writeMu  sync.Mutex
	observer interfaces.Observer
}

// NewConn wraps nc. observer may be nil.
func NewConn(nc net.Conn, observer interfaces.Observer) *Conn {
	return &Conn{nc: nc, observer: observer}
}

// Send writes one frame, serialized against concurrent Send calls.
func (c *Conn) Send(typ uint8, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteFrame(c.nc, typ, payload)
}

// ReadLoop blocks reading frames and calling dispatch for each, until the
// connection errors, dispatch returns an error, or Close is called from
// another goroutine. The returned error is the one that ended the loop;
// io.EOF signals a clean peer disconnect.
func (c *Conn) ReadLoop(dispatch Dispatch) error {
	var scratch []byte
	for {
		f, err := wire.ReadFrame(c.nc, &scratch)
		if err != nil {
			return err
		}
		// Frame.Payload aliases the shared scratch buffer; dispatch must
		// not retain it past the call.
		if err := dispatch(f); err != nil {
			return err
		}
	}
}

// Close closes the underlying connection, unblocking any ReadLoop.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// RemoteAddr returns the connection's remote endpoint, for logging.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}
