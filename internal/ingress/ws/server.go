// Package ws provides WebSocket server functionality for client connections.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/improv/internal/ingress/config"
	"github.com/xiaot623/improv/internal/ingress/hub"
	"github.com/xiaot623/improv/internal/ingress/orchestrator"
	"github.com/xiaot623/improv/internal/ingress/protocol"
)

// Orchestrator is the part of the orchestrator API the socket server uses.
type Orchestrator interface {
	GetSession(ctx context.Context, sessionID string) (*orchestrator.Session, error)
	SubmitTurn(ctx context.Context, sessionID string, req *orchestrator.TurnRequest) (*orchestrator.TurnResponse, error)
}

// Server handles WebSocket connections.
type Server struct {
	cfg          *config.Config
	hub          *hub.Hub
	orchestrator Orchestrator
	upgrader     websocket.Upgrader
	logger       *slog.Logger
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, orch Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:          cfg,
		hub:          h,
		orchestrator: orch,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", "error", err)
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read error", "conn_id", conn.ID, "error", err)
			}
			break
		}

		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("failed to write message", "conn_id", conn.ID, "error", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var baseMsg protocol.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid JSON message", false)
		return
	}

	switch baseMsg.Type {
	case protocol.TypeHello:
		s.handleHello(conn, data)
	case protocol.TypeSubmitTurn:
		s.handleSubmitTurn(conn, data)
	default:
		s.sendError(conn, baseMsg.RequestID, protocol.ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type, false)
	}
}

// handleHello binds the connection to an existing session.
func (s *Server) handleHello(conn *hub.Connection, data []byte) {
	var msg protocol.HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid hello message", false)
		return
	}

	if s.cfg.APIKey != "" && msg.APIKey != s.cfg.APIKey {
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeUnauthorized, "invalid api_key", false)
		return
	}
	if msg.SessionID == "" {
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeSessionRequired, "session_id is required", false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OrchestratorTimeout)
	defer cancel()
	session, err := s.orchestrator.GetSession(ctx, msg.SessionID)
	if err != nil {
		s.sendOrchestratorError(conn, msg.RequestID, err)
		return
	}

	s.hub.BindSession(conn, session.SessionID)

	ack := protocol.HelloAckMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeHelloAck,
			Ts:        time.Now().UnixMilli(),
			RequestID: msg.RequestID,
			SessionID: session.SessionID,
		},
		CurrentTurn: session.CurrentTurn,
		MaxTurns:    session.MaxTurns,
		Status:      session.Status,
	}
	if err := s.hub.SendJSONToConnection(conn, ack); err != nil {
		s.logger.Warn("failed to send hello_ack", "conn_id", conn.ID, "error", err)
	}

	s.logger.Info("hello handshake completed", "session_id", session.SessionID, "conn_id", conn.ID)
}

// handleSubmitTurn forwards a turn to the orchestrator without blocking the
// socket. The committed turn reaches every bound connection as a pushed event.
func (s *Server) handleSubmitTurn(conn *hub.Connection, data []byte) {
	var msg protocol.SubmitTurnMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid submit_turn message", false)
		return
	}

	sessionID := s.hub.SessionOf(conn)
	if sessionID == "" {
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeSessionRequired, "must send hello first", false)
		return
	}

	req := &orchestrator.TurnRequest{
		ExpectedTurnIndex: msg.ExpectedTurnIndex,
		Input:             msg.Input,
		RequestID:         msg.RequestID,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OrchestratorTimeout)
		defer cancel()

		resp, err := s.orchestrator.SubmitTurn(ctx, sessionID, req)
		if err != nil {
			s.logger.Warn("submit turn failed", "session_id", sessionID, "expected_turn_index", msg.ExpectedTurnIndex, "error", err)
			s.sendOrchestratorError(conn, msg.RequestID, err)
			return
		}

		accepted := protocol.TurnAcceptedMessage{
			BaseMessage: protocol.BaseMessage{
				Type:      protocol.TypeTurnAccepted,
				Ts:        time.Now().UnixMilli(),
				RequestID: msg.RequestID,
				SessionID: sessionID,
			},
			TurnIndex:   resp.Turn.TurnIndex,
			CurrentTurn: resp.Session.CurrentTurn,
			Status:      resp.Session.Status,
		}
		if err := s.hub.SendJSONToConnection(conn, accepted); err != nil {
			s.logger.Warn("failed to send turn_accepted", "conn_id", conn.ID, "error", err)
		}
	}()
}

// sendOrchestratorError passes orchestrator error codes through to the client.
func (s *Server) sendOrchestratorError(conn *hub.Connection, requestID string, err error) {
	var apiErr *orchestrator.APIError
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		s.sendError(conn, requestID, apiErr.Code, apiErr.Message, apiErr.Retryable)
		return
	}
	s.sendError(conn, requestID, protocol.ErrorCodeOrchestratorFail, err.Error(), true)
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *hub.Connection, requestID, code, message string, retryable bool) {
	errMsg := protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeError,
			Ts:        time.Now().UnixMilli(),
			RequestID: requestID,
			SessionID: s.hub.SessionOf(conn),
		},
		Code:      code,
		Message:   message,
		Retryable: retryable,
	}
	if err := s.hub.SendJSONToConnection(conn, errMsg); err != nil {
		s.logger.Warn("failed to send error", "conn_id", conn.ID, "error", err)
	}
}
