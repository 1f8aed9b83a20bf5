// Package client hosts the capture client: the process that connects to
// a profiled target's server, ingests its ALLOC/FREE event stream into a
// SQLite capture database, and answers request/response calls
// (REFERENCES, PAUSE, RESUME) issued by a caller against that same
// connection.
package client

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/heapcap/heapcap"
	"github.com/heapcap/heapcap/client/ingest"
	"github.com/heapcap/heapcap/client/query"
	"github.com/heapcap/heapcap/client/store"
	"github.com/heapcap/heapcap/internal/ctrl"
	"github.com/heapcap/heapcap/internal/interfaces"
	"github.com/heapcap/heapcap/internal/transport"
	"github.com/heapcap/heapcap/internal/wire"
)

// Client owns one capture session: a store, an ingestor writing into it,
// a query engine reading from it, and the wire connection to a single
// server.
type Client struct {
	store   *store.Store
	ingest  *ingest.Ingestor
	query   *query.Engine
	conn    *transport.Conn
	pending *ctrl.Pending

	nextRequestID atomic.Uint64
	observer      interfaces.Observer
}

// NewClient connects to a running server over nc, creating a fresh
// capture database at dbPath (any existing file there is removed, since
// a capture always starts from a clean slate). observer may be nil.
func NewClient(nc net.Conn, dbPath string, observer interfaces.Observer) (*Client, error) {
	if observer == nil {
		observer = heapcap.NoOpObserver{}
	}

	s, err := store.NewCapture(dbPath)
	if err != nil {
		return nil, heapcap.WrapError("client.NewClient", err)
	}
	q, err := query.New(s)
	if err != nil {
		s.Close()
		return nil, heapcap.WrapError("client.NewClient", err)
	}

	return &Client{
		store:    s,
		ingest:   ingest.New(s, observer),
		query:    q,
		conn:     transport.NewConn(nc, observer),
		pending:  ctrl.NewPending(),
		observer: observer,
	}, nil
}

// OpenCapture re-opens an existing capture database for offline query,
// with no live connection: Run, RequestReferences, Pause and Resume are
// not usable on a Client returned this way.
func OpenCapture(dbPath string) (*Client, error) {
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, heapcap.WrapError("client.OpenCapture", err)
	}
	q, err := query.New(s)
	if err != nil {
		s.Close()
		return nil, heapcap.WrapError("client.OpenCapture", err)
	}
	return &Client{store: s, query: q}, nil
}

// Run drives the connection's read loop until it ends (peer disconnect
// or a decode error), dispatching ALLOC/FREE events to the ingestor and
// REFERENCES/PAUSE/RESUME responses to waiting callers. It blocks; run
// it in its own goroutine. Any buffered events are flushed via Drain
// once the loop ends, regardless of why it ended.
func (c *Client) Run() error {
	err := c.conn.ReadLoop(c.dispatch)
	if dErr := c.ingest.Drain(); dErr != nil && err == nil {
		err = dErr
	}
	return err
}

func (c *Client) dispatch(frame wire.Frame) error {
	switch frame.Type {
	case wire.TypeAlloc:
		msg, err := wire.DecodeAlloc(wire.NewReader(frame.Payload))
		if err != nil {
			return heapcap.WrapError("Client.dispatch", err)
		}
		return c.ingest.Alloc(msg.Frame, msg.Addr, msg.Size, msg.TypeName, msg.CallStack)

	case wire.TypeFree:
		msg, err := wire.DecodeFree(wire.NewReader(frame.Payload))
		if err != nil {
			return heapcap.WrapError("Client.dispatch", err)
		}
		return c.ingest.Free(msg.Frame, msg.Addr, msg.Size)

	case wire.TypeReferences:
		resp, err := wire.DecodeReferencesResponse(wire.NewReader(frame.Payload))
		if err != nil {
			return heapcap.WrapError("Client.dispatch", err)
		}
		c.pending.Resolve(resp.RequestID, ctrl.KindReferences, resp)
		return nil

	case wire.TypePause:
		resp, err := wire.DecodePauseResumeResponse(wire.NewReader(frame.Payload))
		if err != nil {
			return heapcap.WrapError("Client.dispatch", err)
		}
		c.pending.Resolve(resp.RequestID, ctrl.KindPause, resp)
		return nil

	case wire.TypeResume:
		resp, err := wire.DecodePauseResumeResponse(wire.NewReader(frame.Payload))
		if err != nil {
			return heapcap.WrapError("Client.dispatch", err)
		}
		c.pending.Resolve(resp.RequestID, ctrl.KindResume, resp)
		return nil

	default:
		return heapcap.NewError("Client.dispatch", heapcap.KindProtocolDecode,
			fmt.Sprintf("unknown message type %d", frame.Type))
	}
}

// RequestReferences asks the server for the reachability chain of each
// address in addrs, blocking until the response arrives.
func (c *Client) RequestReferences(addrs []uint64) ([]wire.ReferenceEntry, error) {
	id := c.nextRequestID.Add(1)
	ch := c.pending.Register(id, ctrl.KindReferences)

	req := wire.ReferencesRequest{RequestID: id, Addrs: addrs}
	var w wire.Writer
	req.Encode(&w)
	if err := c.conn.Send(wire.TypeReferencesRequest, w.Bytes()); err != nil {
		c.pending.Take(id)
		return nil, heapcap.WrapError("Client.RequestReferences", err)
	}

	resp := (<-ch).(wire.ReferencesResponse)
	return resp.Entries, nil
}

// Pause asks the server to stop emitting allocation events until Resume
// is called, blocking until acknowledged.
func (c *Client) Pause() error {
	return c.sendPauseResume(wire.TypePauseRequest, ctrl.KindPause)
}

// Resume releases a previous Pause.
func (c *Client) Resume() error {
	return c.sendPauseResume(wire.TypeResumeRequest, ctrl.KindResume)
}

func (c *Client) sendPauseResume(reqType uint8, kind ctrl.Kind) error {
	id := c.nextRequestID.Add(1)
	ch := c.pending.Register(id, kind)

	req := wire.PauseResumeRequest{RequestID: id}
	var w wire.Writer
	req.Encode(&w)
	if err := c.conn.Send(reqType, w.Bytes()); err != nil {
		c.pending.Take(id)
		return heapcap.WrapError("Client.sendPauseResume", err)
	}

	resp := (<-ch).(wire.PauseResumeResponse)
	if resp.ErrorCode != 0 {
		return heapcap.NewError("Client.sendPauseResume", heapcap.KindProtocolDecode,
			fmt.Sprintf("server returned error code %d", resp.ErrorCode))
	}
	return nil
}

// Query returns the query engine reading this client's capture store.
func (c *Client) Query() *query.Engine { return c.query }

// Save backs up the capture store to a durable file at path, usable
// while a capture is still running against an in-memory store.
func (c *Client) Save(path string) error {
	return c.store.Save(path)
}

// Close flushes any buffered events, closes the wire connection (if
// any), and closes the store.
func (c *Client) Close() error {
	var firstErr error
	if c.ingest != nil {
		if err := c.ingest.Drain(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := c.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
