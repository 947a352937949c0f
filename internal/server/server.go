// Package server accepts TCP connections and serves framed requests.
//
// Every connection is handled by its own goroutine which reads one frame,
// dispatches it and writes the response before reading the next one.
// A frame that cannot be delimited (bad start byte, short header or
// payload) leaves the stream position unknown: the server answers 400
// if it can and closes the connection. A frame that is delimited but
// carries a bad payload is answered with 400 and the connection stays open.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/kyleoneill/etch/internal/dispatch"
	"github.com/kyleoneill/etch/internal/logger"
	"github.com/kyleoneill/etch/internal/wire"
)

var (
	ErrAddressDuplicated = errors.New("etch: the address already used")
	ErrServerClosed      = errors.New("etch: server closed")
)

const responseTooLargeMsg = "response exceeds frame length limit"

type Handler interface {
	Dispatch(ctx context.Context, req *wire.Request) *wire.Response
}

type Server struct {
	wg      sync.WaitGroup
	log     logger.Logger
	handler Handler

	conns     *xsync.MapOf[string, net.Conn]
	listens   *xsync.MapOf[string, net.Listener]
	ctx       context.Context
	cancelCtx context.CancelFunc

	readTimeout    time.Duration
	writeTimeout   time.Duration
	requestTimeout time.Duration
}

type Opt interface {
	Apply(*Server)
}

// ReadTimeoutOpt limits how long a connection may stay silent
// before the next frame arrives.
type ReadTimeoutOpt struct {
	Timeout time.Duration
}

func (opt *ReadTimeoutOpt) Apply(s *Server) {
	s.readTimeout = opt.Timeout
}

type WriteTimeoutOpt struct {
	Timeout time.Duration
}

func (opt *WriteTimeoutOpt) Apply(s *Server) {
	s.writeTimeout = opt.Timeout
}

type RequestTimeoutOpt struct {
	Timeout time.Duration
}

func (opt *RequestTimeoutOpt) Apply(s *Server) {
	s.requestTimeout = opt.Timeout
}

func NewServer(log logger.Logger, handler Handler, opts ...Opt) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		log:       log,
		handler:   handler,
		conns:     xsync.NewMapOf[string, net.Conn](),
		listens:   xsync.NewMapOf[string, net.Listener](),
		ctx:       ctx,
		cancelCtx: cancel,
	}
	for _, o := range opts {
		o.Apply(s)
	}
	return s
}

// Listen starts accepting connections on addr and returns the bound
// address, which differs from addr when the port is 0.
func (s *Server) Listen(addr string) (net.Addr, error) {
	if s.ctx.Err() != nil {
		return nil, ErrServerClosed
	}

	// nil не даёт вызвать Listen повторно, пока создаётся listener
	if _, ok := s.listens.LoadOrStore(addr, nil); ok {
		return nil, ErrAddressDuplicated
	}

	config := net.ListenConfig{}
	listener, err := config.Listen(s.ctx, "tcp", addr)
	if err != nil {
		s.listens.Delete(addr)
		return nil, fmt.Errorf("net.Listen: %w", err)
	}
	s.listens.Store(addr, listener)

	s.log.Info("server: listening", "addr", listener.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.keepListening(addr, listener)
	}()

	return listener.Addr(), nil
}

// Close stops every listener, drops live connections and waits
// for their goroutines.
func (s *Server) Close() error {
	s.cancelCtx()

	s.listens.Range(func(_ string, l net.Listener) bool {
		// nil, если Listen ещё не успел создать listener
		if l != nil {
			l.Close()
		}
		return true
	})

	s.conns.Range(func(_ string, conn net.Conn) bool {
		conn.Close()
		return true
	})

	s.wg.Wait()

	s.listens.Clear()
	s.conns.Clear()
	return nil
}

func (s *Server) keepListening(addr string, listener net.Listener) {
	for s.ctx.Err() == nil {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}

			s.log.Error("server: couldn't accept connection", "addr", addr, "err", err)
			continue
		}

		name := fmt.Sprintf("%s:%s", uuid.Must(uuid.NewV7()).String(), conn.RemoteAddr().String())
		ConnectionsAccepted.Inc()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.keepConn(name, conn)
		}()
	}

	if l, ok := s.listens.LoadAndDelete(addr); ok && l != nil {
		if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Error("server: couldn't correct close listener", "addr", addr, "err", err)
		}
	}

	s.log.Info("server: listener closed", "addr", addr)
}

func (s *Server) keepConn(name string, conn net.Conn) {
	s.conns.Store(name, conn)
	ConnectionsActive.Inc()

	// Close мог пройти по conns до Store
	if s.ctx.Err() != nil {
		conn.Close()
	}

	ctx := logger.WithDefaultArgs(s.ctx, "conn", name)
	s.log.InfoCtx(ctx, "server: accept connection")

	if err := s.serveConn(ctx, conn); err != nil {
		s.log.WarnCtx(ctx, "server: connection dropped", "err", err)
	}

	s.conns.Delete(name)
	ConnectionsActive.Dec()

	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.ErrorCtx(ctx, "server: couldn't correct close connection", "err", err)
	}

	s.log.InfoCtx(ctx, "server: connection closed")
}

// serveConn runs the read, dispatch, respond loop. A nil result means
// the peer or the server ended the conversation normally.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) error {
	reader := bufio.NewReader(conn)

	for ctx.Err() == nil {
		if s.readTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
				return fmt.Errorf("net.Conn.SetReadDeadline: %w", err)
			}
		}

		req, err := wire.Decode(reader)
		if err != nil {
			switch {
			case errors.Is(err, net.ErrClosed):
				return nil
			case errors.Is(err, wire.ErrFrameHeaderIncomplete) && errors.Is(err, io.EOF):
				return nil
			case errors.Is(err, wire.ErrFrameHeaderIncomplete) && errors.Is(err, os.ErrDeadlineExceeded):
				s.log.InfoCtx(ctx, "server: idle connection timed out")
				return nil
			}

			if wire.IsFramingError(err) {
				ProtocolErrors.WithLabelValues("framing").Inc()
				s.log.WarnCtx(ctx, "server: malformed frame", "err", err)

				// позиция в потоке потеряна, отвечаем и закрываем
				if writeErr := s.respond(ctx, conn, dispatch.ErrorResponse(err)); writeErr != nil {
					s.log.DebugCtx(ctx, "server: couldn't report malformed frame", "err", writeErr)
				}
				return nil
			}

			ProtocolErrors.WithLabelValues("payload").Inc()
			s.log.DebugCtx(ctx, "server: rejected request", "err", err)

			if err := s.respond(ctx, conn, dispatch.ErrorResponse(err)); err != nil {
				return err
			}
			continue
		}

		if err := s.respond(ctx, conn, s.dispatch(ctx, req)); err != nil {
			return err
		}
	}

	return nil
}

func (s *Server) dispatch(ctx context.Context, req *wire.Request) *wire.Response {
	if s.requestTimeout <= 0 {
		return s.handler.Dispatch(ctx, req)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	return s.handler.Dispatch(reqCtx, req)
}

func (s *Server) respond(ctx context.Context, conn net.Conn, resp *wire.Response) error {
	frame, err := wire.Encode(resp)
	if errors.Is(err, wire.ErrResponseTooLarge) {
		s.log.ErrorCtx(ctx, "server: response too large", "code", resp.Code, "err", err)
		frame, err = wire.Encode(wire.NewErrorResponse(wire.CodeInternal, dispatch.KindInternal, responseTooLargeMsg))
	}
	if err != nil {
		return fmt.Errorf("wire.Encode: %w", err)
	}

	if s.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return fmt.Errorf("net.Conn.SetWriteDeadline: %w", err)
		}
	}

	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("net.Conn.Write: %w", err)
	}

	return nil
}
