// Package heapcap hosts the server side of the profiler: it installs
// callbacks into an Adapter-wrapped managed runtime, tracks live
// allocations, runs the reachability mark, and answers requests from a
// connected client over the wire protocol implemented by internal/wire.
package heapcap

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/heapcap/heapcap/internal/ctrl"
	"github.com/heapcap/heapcap/internal/interfaces"
	"github.com/heapcap/heapcap/internal/logging"
	"github.com/heapcap/heapcap/internal/mark"
	"github.com/heapcap/heapcap/internal/track"
	"github.com/heapcap/heapcap/internal/transport"
	"github.com/heapcap/heapcap/internal/wire"
	"github.com/heapcap/heapcap/internal/worker"
)

// Logger is the narrow logging surface a caller may supply; the default
// is internal/logging's structured logger.
type Logger = interfaces.Logger

// ServerParams configures a Server.
type ServerParams struct {
	Adapter      interfaces.Adapter
	WorkerConfig worker.Config
	Logger       Logger
	Observer     interfaces.Observer
}

// Server is the in-process profiler host embedded in the target runtime.
// It owns the worker (live-object table + mark engine), the pause lock
// installed around mutator callbacks, and the transport connection to a
// single connected client.
type Server struct {
	adapter  interfaces.Adapter
	worker   *worker.Worker
	pause    *ctrl.PauseLock
	logger   Logger
	observer interfaces.Observer
	cfg      worker.Config

	lastFrame atomic.Uint64

	conn   *transport.Conn
	cancel context.CancelFunc
}

type wireSink struct {
	conn     *transport.Conn
	observer interfaces.Observer
}

func (s *wireSink) EmitAlloc(frame, addr uint64, size uint32, typeName, callStack string) {
	s.observer.ObserveAlloc(uint64(size))
	msg := wire.AllocMsg{Frame: frame, Addr: addr, Size: size, TypeName: typeName, CallStack: callStack}
	var w wire.Writer
	msg.Encode(&w)
	_ = s.conn.Send(wire.TypeAlloc, w.Bytes())
}

func (s *wireSink) EmitFree(frame, addr uint64, size uint32) {
	s.observer.ObserveFree(uint64(size))
	msg := wire.FreeMsg{Frame: frame, Addr: addr, Size: size}
	var w wire.Writer
	msg.Encode(&w)
	_ = s.conn.Send(wire.TypeFree, w.Bytes())
}

// NewServer constructs a Server and validates params. Serve must be
// called to attach a transport connection and begin processing.
func NewServer(params ServerParams) (*Server, error) {
	if params.Adapter == nil {
		return nil, NewError("NewServer", KindProtocolDecode, "adapter is required")
	}

	logger := params.Logger
	if logger == nil {
		logger = logging.Default()
	}
	observer := params.Observer
	if observer == nil {
		observer = NoOpObserver{}
	}
	cfg := params.WorkerConfig
	if cfg.QueueCapacity == 0 {
		cfg = worker.DefaultConfig()
	}

	return &Server{
		adapter:  params.Adapter,
		pause:    ctrl.NewPauseLock(),
		logger:   logger,
		observer: observer,
		cfg:      cfg,
	}, nil
}

// Serve accepts allocation traffic over nc until ctx is cancelled or the
// connection fails. Only one client may be attached at a time.
func (s *Server) Serve(ctx context.Context, nc net.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	s.conn = transport.NewConn(nc, s.observer)
	sink := &wireSink{conn: s.conn, observer: s.observer}
	s.worker = worker.New(s.cfg, s.adapter, sink)

	if err := s.installCallbacks(); err != nil {
		return WrapError("Server.Serve", err)
	}

	go s.worker.Run(ctx)

	err := s.conn.ReadLoop(s.handleRequest)
	if err != nil {
		s.logger.Debugf("server: read loop ended: %v", err)
	}
	return err
}

// Stop ends the current Serve call and closes the connection.
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Server) installCallbacks() error {
	if err := s.adapter.InstallAllocCallback(func(frame uint64, class interfaces.ClassHandle, obj interfaces.ObjectHandle, size uint32) {
		release := s.pause.EnterMutator()
		defer release()

		stack := s.adapter.WalkStack(obj)
		item := worker.WorkItem{
			Frame: frame,
			Addr:  uint64(obj),
			Size:  size,
			Class: class,
			Stack: stack,
		}
		_ = s.worker.Enqueue(context.Background(), item)
	}); err != nil {
		return fmt.Errorf("install alloc callback: %w", err)
	}

	if err := s.adapter.InstallGCCallback(func(frame uint64) {
		s.lastFrame.Store(frame)
		s.worker.DoGCSync(frame)
	}); err != nil {
		return fmt.Errorf("install gc callback: %w", err)
	}

	if err := s.adapter.InstallRootCallback(func(start uintptr, length uint64, source interfaces.RootSource) {
		s.worker.Roots().Register(start, length, source)
	}); err != nil {
		return fmt.Errorf("install root callback: %w", err)
	}

	return nil
}

func (s *Server) classNamer() mark.ClassNamer {
	return func(a track.Allocation) string {
		return s.adapter.ClassName(a.Class)
	}
}

func (s *Server) handleRequest(frame wire.Frame) error {
	switch frame.Type {
	case wire.TypeReferencesRequest:
		req, err := wire.DecodeReferencesRequest(wire.NewReader(frame.Payload))
		if err != nil {
			return WrapError("Server.handleRequest", err)
		}
		return s.respondReferences(req.RequestID, req.Addrs)

	case wire.TypePauseRequest:
		req, err := wire.DecodePauseResumeRequest(wire.NewReader(frame.Payload))
		if err != nil {
			return WrapError("Server.handleRequest", err)
		}
		var code uint8
		if !s.pause.Pause() {
			code = 1
		}
		return s.respondPauseResume(wire.TypePause, req.RequestID, code)

	case wire.TypeResumeRequest:
		req, err := wire.DecodePauseResumeRequest(wire.NewReader(frame.Payload))
		if err != nil {
			return WrapError("Server.handleRequest", err)
		}
		s.pause.Resume()
		return s.respondPauseResume(wire.TypeResume, req.RequestID, 0)

	default:
		return NewError("Server.handleRequest", KindProtocolDecode, fmt.Sprintf("unknown request type %d", frame.Type))
	}
}

func (s *Server) respondReferences(requestID uint64, addrs []uint64) error {
	entries := s.worker.FindReferences(s.lastFrame.Load(), addrs, s.classNamer())

	resp := wire.ReferencesResponse{RequestID: requestID}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, wire.ReferenceEntry{Addr: e.Addr, Type: e.Type, Parents: e.Parents})
	}
	var w wire.Writer
	resp.Encode(&w)
	return s.conn.Send(wire.TypeReferences, w.Bytes())
}

func (s *Server) respondPauseResume(typ uint8, requestID uint64, errCode uint8) error {
	resp := wire.PauseResumeResponse{RequestID: requestID, ErrorCode: errCode}
	var w wire.Writer
	resp.Encode(&w)
	return s.conn.Send(typ, w.Bytes())
}
