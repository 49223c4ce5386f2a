// Package rpc serves the JSON-RPC endpoint the orchestrator pushes session
// events to.
package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"github.com/xiaot623/improv/internal/ingress/hub"
	"github.com/xiaot623/improv/internal/ingress/protocol"
)

// Server exposes ingress RPC endpoints.
type Server struct {
	listener  net.Listener
	rpcServer *rpc.Server
	logger    *slog.Logger
	done      chan struct{}
}

// NewServer creates a new ingress RPC server.
func NewServer(h *hub.Hub, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rpcServer := rpc.NewServer()
	handler := &Handler{hub: h, logger: logger}
	if err := rpcServer.RegisterName("Ingress", handler); err != nil {
		return nil, err
	}

	return &Server{
		rpcServer: rpcServer,
		logger:    logger,
		done:      make(chan struct{}),
	}, nil
}

// Listen binds the RPC listener. Serve must be called afterwards.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds addr and accepts RPC connections until Shutdown.
func (s *Server) Start(addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts RPC connections on the bound listener until Shutdown.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			s.logger.Warn("rpc accept error", "error", err)
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Shutdown stops accepting new RPC connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}

	if err := s.listener.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements ingress RPC methods.
type Handler struct {
	hub    *hub.Hub
	logger *slog.Logger
}

// PushEvent forwards a session event from the orchestrator to every
// connection bound to the session.
func (h *Handler) PushEvent(req *protocol.SendRequest, resp *protocol.SendResponse) error {
	if req == nil {
		return errors.New("send request is required")
	}
	if req.SessionID == "" {
		return errors.New("session_id is required")
	}
	if req.Event.Type == "" {
		return errors.New("event type is required")
	}

	event := req.Event
	if event.SessionID == "" {
		event.SessionID = req.SessionID
	}
	if event.Ts == 0 {
		event.Ts = time.Now().UnixMilli()
	}

	hasConnections := h.hub.HasActiveConnections(req.SessionID)
	if err := h.hub.BroadcastJSON(req.SessionID, event); err != nil {
		return err
	}

	h.logger.Debug("event sent to session", "session_id", req.SessionID, "type", event.Type, "delivered", hasConnections)

	if resp != nil {
		resp.OK = true
		resp.Delivered = hasConnections
	}
	return nil
}
