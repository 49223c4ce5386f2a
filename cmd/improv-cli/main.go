// Package main provides a terminal client that plays an improv scene through
// the ingress WebSocket server.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/improv/internal/ingress/protocol"
)

const (
	eventTurnCommitted    = "turn_committed"
	eventSessionCompleted = "session_completed"
	eventSessionFailed    = "session_failed"
)

// Client represents a WebSocket client bound to one session.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	done      chan struct{}

	mu       sync.Mutex
	nextTurn int
	writeMu  sync.Mutex
}

// NewClient creates a new client and connects to the server.
func NewClient(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Client{
		conn: conn,
		done: make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	close(c.done)
	return c.conn.Close()
}

// SendHello binds the connection to sessionID and waits for hello_ack.
func (c *Client) SendHello(apiKey, sessionID string) (*protocol.HelloAckMessage, error) {
	msg := protocol.HelloMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeHello,
			Ts:        time.Now().UnixMilli(),
			SessionID: sessionID,
		},
		APIKey: apiKey,
		ClientMeta: map[string]string{
			"client": "improv-cli",
		},
	}

	if err := c.writeJSON(msg); err != nil {
		return nil, fmt.Errorf("write hello: %w", err)
	}

	// Wait for hello_ack
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read hello_ack: %w", err)
	}

	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("unmarshal hello_ack: %w", err)
	}

	if base.Type == protocol.TypeError {
		var errMsg protocol.ErrorMessage
		json.Unmarshal(data, &errMsg)
		return nil, fmt.Errorf("hello failed: %s - %s", errMsg.Code, errMsg.Message)
	}

	if base.Type != protocol.TypeHelloAck {
		return nil, fmt.Errorf("expected hello_ack, got: %s", base.Type)
	}

	var ack protocol.HelloAckMessage
	if err := json.Unmarshal(data, &ack); err != nil {
		return nil, fmt.Errorf("unmarshal hello_ack: %w", err)
	}
	c.sessionID = ack.SessionID
	c.setNextTurn(ack.CurrentTurn)
	return &ack, nil
}

// SubmitTurn sends the next line of the scene at the turn the client last saw.
func (c *Client) SubmitTurn(input string) (int, error) {
	turn := c.NextTurn()
	msg := protocol.SubmitTurnMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeSubmitTurn,
			Ts:        time.Now().UnixMilli(),
			SessionID: c.sessionID,
			RequestID: fmt.Sprintf("req_%d", time.Now().UnixNano()),
		},
		ExpectedTurnIndex: turn,
		Input:             input,
	}
	return turn, c.writeJSON(msg)
}

// NextTurn returns the turn index the next submission will claim.
func (c *Client) NextTurn() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextTurn
}

func (c *Client) setNextTurn(turn int) {
	c.mu.Lock()
	if turn > c.nextTurn {
		c.nextTurn = turn
	}
	c.mu.Unlock()
}

func (c *Client) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// ReadMessages reads and prints messages from the server until the
// connection closes.
func (c *Client) ReadMessages() {
	for {
		select {
		case <-c.done:
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("Read error: %v", err)
				}
				return
			}
			c.handleMessage(data)
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		log.Printf("Unmarshal error: %v", err)
		return
	}

	switch base.Type {
	case protocol.TypeTurnAccepted:
		var msg protocol.TurnAcceptedMessage
		if json.Unmarshal(data, &msg) == nil {
			c.setNextTurn(msg.CurrentTurn)
			fmt.Printf("\n[turn %d accepted] now at turn %d (%s)\n", msg.TurnIndex, msg.CurrentTurn, msg.Status)
		}
		return
	case protocol.TypeError:
		var msg protocol.ErrorMessage
		if json.Unmarshal(data, &msg) == nil {
			retry := ""
			if msg.Retryable {
				retry = " (retryable)"
			}
			fmt.Printf("\n[error] %s: %s%s\n", msg.Code, msg.Message, retry)
		}
		return
	case eventTurnCommitted:
		var event protocol.Event
		var payload struct {
			Speaker     string `json:"speaker"`
			Content     string `json:"content"`
			CurrentTurn int    `json:"current_turn"`
			Phase       string `json:"phase"`
		}
		if json.Unmarshal(data, &event) == nil && json.Unmarshal(event.Payload, &payload) == nil {
			c.setNextTurn(payload.CurrentTurn)
			fmt.Printf("\n[%s | turn %d] %s: %s\n", payload.Phase, event.TurnIndex, payload.Speaker, payload.Content)
			return
		}
	case eventSessionCompleted, eventSessionFailed:
		fmt.Printf("\n[%s]\n", base.Type)
	}

	// Pretty print everything else
	var prettyJSON map[string]interface{}
	json.Unmarshal(data, &prettyJSON)
	formatted, _ := json.MarshalIndent(prettyJSON, "", "  ")
	fmt.Printf("\n[%s] Received:\n%s\n", base.Type, string(formatted))
}

func main() {
	addr := flag.String("addr", "ws://localhost:8090/ws", "WebSocket server address")
	apiKey := flag.String("api-key", "", "API key for authentication")
	sessionID := flag.String("session", "", "Session ID to join")
	flag.Parse()

	log.SetFlags(log.Ltime)

	if *sessionID == "" {
		log.Fatalf("-session is required (create one with POST /v1/sessions)")
	}

	fmt.Printf("Connecting to %s...\n", *addr)

	client, err := NewClient(*addr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	fmt.Println("Connected. Sending hello...")

	ack, err := client.SendHello(*apiKey, *sessionID)
	if err != nil {
		log.Fatalf("Hello failed: %v", err)
	}

	fmt.Printf("Joined session %s at turn %d/%d (%s)\n", ack.SessionID, ack.CurrentTurn, ack.MaxTurns, ack.Status)
	fmt.Println("\nType a line and press Enter to play the next turn.")
	fmt.Println("Commands: /quit to exit")
	fmt.Println()

	// Start reading messages in background
	go client.ReadMessages()

	// Handle Ctrl+C
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	// Read user input
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		select {
		case <-interrupt:
			fmt.Println("\nInterrupted")
			return
		default:
			if !scanner.Scan() {
				return
			}

			input := strings.TrimSpace(scanner.Text())
			if input == "" {
				continue
			}

			if input == "/quit" {
				fmt.Println("Bye!")
				return
			}

			turn, err := client.SubmitTurn(input)
			if err != nil {
				log.Printf("Send error: %v", err)
				continue
			}

			fmt.Printf("Turn %d sent, waiting for the scene partner...\n", turn)
		}
	}
}
