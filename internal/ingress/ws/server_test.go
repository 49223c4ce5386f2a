package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/improv/internal/ingress/config"
	"github.com/xiaot623/improv/internal/ingress/hub"
	"github.com/xiaot623/improv/internal/ingress/orchestrator"
	"github.com/xiaot623/improv/internal/ingress/protocol"
)

type fakeOrchestrator struct {
	turn int
}

func (f *fakeOrchestrator) GetSession(_ context.Context, sessionID string) (*orchestrator.Session, error) {
	if sessionID != "s1" {
		return nil, &orchestrator.APIError{Status: 404, Code: "SESSION_NOT_FOUND", Message: "session not found"}
	}
	return &orchestrator.Session{SessionID: "s1", Status: "ACTIVE", CurrentTurn: f.turn, MaxTurns: 15}, nil
}

func (f *fakeOrchestrator) SubmitTurn(_ context.Context, sessionID string, req *orchestrator.TurnRequest) (*orchestrator.TurnResponse, error) {
	if req.ExpectedTurnIndex != f.turn {
		return nil, &orchestrator.APIError{Status: 409, Code: "OUT_OF_SEQUENCE_TURN", Message: "wrong turn"}
	}
	f.turn++
	return &orchestrator.TurnResponse{
		Session: orchestrator.Session{SessionID: sessionID, Status: "ACTIVE", CurrentTurn: f.turn, MaxTurns: 15},
		Turn:    orchestrator.TurnRecord{TurnIndex: req.ExpectedTurnIndex, Content: "yes, and"},
	}, nil
}

func newTestSocket(t *testing.T, apiKey string) *websocket.Conn {
	t.Helper()
	cfg := &config.Config{
		APIKey:              apiKey,
		OrchestratorTimeout: time.Second,
		PingInterval:        time.Second,
		WriteTimeout:        time.Second,
		ReadTimeout:         5 * time.Second,
		MaxMessageSize:      65536,
	}
	h := hub.NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	server := NewServer(cfg, h, &fakeOrchestrator{turn: 2}, nil)
	e := echo.New()
	e.GET("/ws", server.HandleWebSocket)
	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg interface{}) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply map[string]interface{}
	require.NoError(t, conn.ReadJSON(&reply))
	return reply
}

func TestHelloThenSubmitTurn(t *testing.T) {
	conn := newTestSocket(t, "secret")

	ack := roundTrip(t, conn, protocol.HelloMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeHello, SessionID: "s1"},
		APIKey:      "secret",
	})
	assert.Equal(t, protocol.TypeHelloAck, ack["type"])
	assert.Equal(t, float64(2), ack["current_turn"])
	assert.Equal(t, float64(15), ack["max_turns"])

	accepted := roundTrip(t, conn, protocol.SubmitTurnMessage{
		BaseMessage:       protocol.BaseMessage{Type: protocol.TypeSubmitTurn, RequestID: "r1"},
		ExpectedTurnIndex: 2,
		Input:             "a lighthouse",
	})
	assert.Equal(t, protocol.TypeTurnAccepted, accepted["type"])
	assert.Equal(t, "r1", accepted["request_id"])
	assert.Equal(t, float64(3), accepted["current_turn"])

	rejected := roundTrip(t, conn, protocol.SubmitTurnMessage{
		BaseMessage:       protocol.BaseMessage{Type: protocol.TypeSubmitTurn, RequestID: "r2"},
		ExpectedTurnIndex: 2,
	})
	assert.Equal(t, protocol.TypeError, rejected["type"])
	assert.Equal(t, "OUT_OF_SEQUENCE_TURN", rejected["code"])
	assert.Equal(t, false, rejected["retryable"])
}

func TestSubmitBeforeHello(t *testing.T) {
	conn := newTestSocket(t, "")
	reply := roundTrip(t, conn, protocol.SubmitTurnMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeSubmitTurn},
	})
	assert.Equal(t, protocol.ErrorCodeSessionRequired, reply["code"])
}

func TestHelloErrors(t *testing.T) {
	conn := newTestSocket(t, "secret")

	reply := roundTrip(t, conn, protocol.HelloMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeHello, SessionID: "s1"},
		APIKey:      "wrong",
	})
	assert.Equal(t, protocol.ErrorCodeUnauthorized, reply["code"])

	reply = roundTrip(t, conn, protocol.HelloMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeHello, SessionID: "ghost"},
		APIKey:      "secret",
	})
	assert.Equal(t, "SESSION_NOT_FOUND", reply["code"])

	reply = roundTrip(t, conn, map[string]string{"type": "dance"})
	assert.Equal(t, protocol.ErrorCodeInvalidMessage, reply["code"])
}
