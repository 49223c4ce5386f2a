// Package ingress pushes session events to the WebSocket ingress over JSON-RPC.
package ingress

import (
	"context"
	"fmt"
	"net"
	"net/rpc/jsonrpc"
	"net/url"
	"strings"
	"time"

	"github.com/xiaot623/improv/internal/domain"
	"github.com/xiaot623/improv/internal/ingress/protocol"
)

// Client dials the ingress RPC server once per push.
type Client struct {
	addr        string
	dialTimeout time.Duration
	callTimeout time.Duration
}

// NewClient creates a client for addr. addr may be host:port or a URL; an
// empty addr disables pushes.
func NewClient(addr string) *Client {
	return &Client{
		addr:        resolveRPCAddr(addr),
		dialTimeout: 5 * time.Second,
		callTimeout: 5 * time.Second,
	}
}

// Enabled reports whether pushes go anywhere.
func (c *Client) Enabled() bool {
	return c != nil && c.addr != ""
}

// PushEvent delivers one session event. It reports whether any client was
// connected to receive it.
func (c *Client) PushEvent(ctx context.Context, event *domain.Event) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}

	req := &protocol.SendRequest{
		SessionID: event.SessionID,
		Event: protocol.Event{
			Type:      string(event.Type),
			SessionID: event.SessionID,
			TurnIndex: event.TurnIndex,
			Ts:        event.Ts,
			Payload:   event.Payload,
		},
	}

	var resp protocol.SendResponse
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	if err := c.call(ctx, protocol.PushEventMethod, req, &resp); err != nil {
		return false, fmt.Errorf("failed to push event to ingress: %w", err)
	}
	if !resp.OK {
		return false, fmt.Errorf("ingress rpc returned ok=false")
	}
	return resp.Delivered, nil
}

func (c *Client) call(ctx context.Context, method string, args, reply interface{}) error {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client := jsonrpc.NewClient(conn)
	call := client.Go(method, args, reply, nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-call.Done:
		return call.Error
	}
}

func resolveRPCAddr(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		parsed, err := url.Parse(raw)
		if err == nil && parsed.Host != "" {
			return parsed.Host
		}
	}
	return raw
}
