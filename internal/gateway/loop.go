package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func (c *Client) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer func() {
		cancel()
		c.release(conn)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logReadEnd(ctx, err)
			return
		}
		c.handleMessage(ctx, data)
	}
}

// release drops conn if it is still the current transport.
func (c *Client) release(conn *websocket.Conn) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn, c.cancel = nil, nil
	}
	c.mu.Unlock()
	if current {
		c.setState(StateDisconnected)
	}
}

func (c *Client) logReadEnd(ctx context.Context, err error) {
	var ce *websocket.CloseError
	switch {
	case errors.As(err, &ce):
		c.log.Info("gateway closed", zap.Int("code", ce.Code), zap.String("reason", ce.Text))
	case ctx.Err() != nil:
		c.log.Debug("gateway read stopped", zap.Error(err))
	default:
		c.log.Warn("gateway read failed", zap.Error(err))
	}
}

func (c *Client) handleMessage(ctx context.Context, data []byte) {
	f, err := decodeFrame(data)
	if err != nil {
		c.log.Warn("discarding malformed gateway frame", zap.Error(err))
		return
	}
	if f.S != nil {
		c.seq.Store(*f.S)
	}

	switch f.Op {
	case opHello:
		c.handleHello(ctx, f)
	case opDispatch:
		if f.T == eventReady {
			c.handleReady(f)
			return
		}
		c.log.Debug("ignoring dispatch", zap.String("type", f.T))
	case opHeartbeatACK:
	default:
		c.log.Debug("ignoring gateway frame", zap.Int("op", f.Op))
	}
}

func (c *Client) handleHello(ctx context.Context, f inboundFrame) {
	var hello helloData
	if err := json.Unmarshal(f.D, &hello); err != nil || hello.HeartbeatInterval <= 0 {
		c.log.Warn("invalid hello", zap.ByteString("data", f.D), zap.Error(err))
		return
	}
	if !c.transition(StateAwaitingHello, StateIdentifying) {
		c.log.Debug("unexpected hello", zap.Stringer("state", c.State()))
		return
	}

	c.heartbeatMs.Store(hello.HeartbeatInterval)
	go c.heartbeatLoop(ctx, time.Duration(hello.HeartbeatInterval)*time.Millisecond)

	if err := c.identify(); err != nil {
		c.log.Error("sending identify", zap.Error(err))
	}
}

func (c *Client) handleReady(f inboundFrame) {
	var ready readyData
	if err := json.Unmarshal(f.D, &ready); err != nil || ready.SessionID == "" {
		c.log.Warn("invalid ready dispatch", zap.Error(err))
		return
	}
	if c.State() != StateIdentifying {
		c.log.Debug("unexpected ready", zap.Stringer("state", c.State()))
		return
	}
	c.sessionID.Store(&ready.SessionID)
	if !c.transition(StateIdentifying, StateReady) {
		return
	}
	c.log.Info("gateway ready", zap.String("session_id", ready.SessionID))
}

func (c *Client) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.State() == StateDisconnected {
				return
			}
			if err := c.heartbeat(); err != nil {
				c.log.Warn("sending heartbeat", zap.Error(err))
			}
		}
	}
}

func (c *Client) heartbeat() error {
	var d *int64
	if seq, ok := c.Sequence(); ok {
		d = &seq
	}
	return c.send(opHeartbeat, d)
}
