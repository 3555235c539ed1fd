package rpc

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"go.lsp.dev/jsonrpc2"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	"github.com/conduit-lang/docrud/internal/orm/crud"
)

// Server serves a Dispatcher over JSON-RPC 2.0 connections
type Server struct {
	// dispatcher resolves and runs calls
	dispatcher *Dispatcher

	logger *zap.Logger

	mu    sync.Mutex
	conns map[jsonrpc2.Conn]struct{}
}

// NewServer creates a JSON-RPC server for the dispatcher
func NewServer(dispatcher *Dispatcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		dispatcher: dispatcher,
		logger:     logger,
		conns:      make(map[jsonrpc2.Conn]struct{}),
	}
}

// ListenAndServe accepts TCP connections on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled. Open connections
// are closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("JSON-RPC server listening", zap.String("addr", ln.Addr().String()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		netConn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("JSON-RPC server stopped")
				return nil
			}
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.ServeConn(ctx, netConn); err != nil && !isClosed(err) {
				s.logger.Warn("connection closed with error", zap.Error(err))
			}
		}()
	}
}

// ServeConn serves a single stream until it is closed or ctx is cancelled
func (s *Server) ServeConn(ctx context.Context, rwc io.ReadWriteCloser) error {
	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))
	return s.ServeStream(ctx, conn)
}

// ServeStream implements jsonrpc2.StreamServer
func (s *Server) ServeStream(ctx context.Context, conn jsonrpc2.Conn) error {
	s.track(conn, true)
	defer s.track(conn, false)

	conn.Go(ctx, jsonrpc2.ReplyHandler(s.handler()))

	select {
	case <-ctx.Done():
		conn.Close()
		<-conn.Done()
		return nil
	case <-conn.Done():
		return conn.Err()
	}
}

// Connections returns the number of open connections
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(conn jsonrpc2.Conn, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if open {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// handler returns the JSON-RPC handler function
func (s *Server) handler() jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		result, err := s.dispatcher.Invoke(ctx, req.Method(), req.Params())
		if err != nil {
			return reply(ctx, nil, toRPCError(err))
		}
		return reply(ctx, result, nil)
	}
}

// toRPCError maps an error to a JSON-RPC error. Codes without a JSON-RPC
// counterpart are reported in the server error range as -32000 - code.
func toRPCError(err error) *jsonrpc2.Error {
	code := crud.CodeOf(err)
	switch code {
	case codes.InvalidArgument:
		return jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error())
	case codes.Unimplemented:
		return jsonrpc2.NewError(jsonrpc2.MethodNotFound, err.Error())
	default:
		return jsonrpc2.NewError(jsonrpc2.Code(-32000-int32(code)), err.Error())
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}
