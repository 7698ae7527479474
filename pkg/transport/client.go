/*
 * Copyright (c) 2025, FleetForge Software (https://fleetforge.io).
 *
 * FleetForge Software licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fleetforge/telemetry-agent/pkg/config"
)

const (
	// closeCodeHeartbeatTimeout is sent when the peer stops answering
	// liveness probes, so server logs can tell heartbeat closes apart from
	// ordinary failures.
	closeCodeHeartbeatTimeout = 4002

	// closeWriteTimeout bounds the close frame write during teardown.
	closeWriteTimeout = time.Second
)

// Client maintains a message stream over websocket with automatic
// reconnection, liveness probing and an outbound queue.
//
// Connect and Send never wait on network I/O; dialing and reads run on
// their own goroutines and outcomes surface through the registered
// handlers. Handlers are invoked synchronously on transport goroutines and
// must not block.
//
// Every established connection is tagged with a generation counter.
// Goroutines belonging to a torn-down connection notice the stale
// generation and exit without side effects, which keeps reconnect
// decisions single-sourced no matter which path detected the failure
// first.
type Client struct {
	cfg      *config.StreamConfig
	dialer   Dialer
	logger   *zap.Logger
	handlers handlers

	mu        sync.RWMutex
	state     State
	conn      Conn
	connGen   uint64
	address   string
	sched     reconnectScheduler
	heartbeat heartbeatMonitor
	queue     *outboundQueue
	hbStop    chan struct{}
}

// NewClient creates a stream client. The journal is optional; when set,
// queued messages persist across restarts and previously journaled
// messages are restored into the queue.
func NewClient(cfg *config.StreamConfig, queueCfg *config.QueueConfig, journal Journal, logger *zap.Logger) *Client {
	return NewClientWithDialer(cfg, queueCfg, journal, NewDialer(cfg), logger)
}

// NewClientWithDialer creates a stream client that dials through the given
// dialer instead of the standard WebSocket one.
func NewClientWithDialer(cfg *config.StreamConfig, queueCfg *config.QueueConfig, journal Journal, dialer Dialer, logger *zap.Logger) *Client {
	c := &Client{
		cfg:     cfg,
		dialer:  dialer,
		logger:  logger,
		state:   Closed,
		address: cfg.Address,
		sched: reconnectScheduler{
			backoff: Backoff{
				Initial:    cfg.Reconnect.InitialDelay,
				Max:        cfg.Reconnect.MaxDelay,
				Multiplier: cfg.Reconnect.Multiplier,
				Jitter:     cfg.Reconnect.Jitter,
			},
			maxRetries: cfg.Reconnect.MaxRetries,
		},
		queue: newOutboundQueue(queueCfg.MaxQueued, journal, logger),
	}
	c.queue.restore()
	return c
}

// OnOpen registers the handler invoked after a connection is established
// and the outbound queue has been flushed.
func (c *Client) OnOpen(fn func()) { c.handlers.setOpen(fn) }

// OnClose registers the handler invoked when an established connection
// ends, with the close code and reason.
func (c *Client) OnClose(fn func(code int, reason string)) { c.handlers.setClose(fn) }

// OnError registers the handler invoked for transport failures. Errors are
// informational; the reconnect machinery reacts on its own.
func (c *Client) OnError(fn func(err error)) { c.handlers.setError(fn) }

// OnMessage registers the handler invoked for every inbound frame that is
// not consumed by the liveness protocol.
func (c *Client) OnMessage(fn func(msg Message)) { c.handlers.setMessage(fn) }

// OnStateChange registers the handler invoked on every connection state
// transition.
func (c *Client) OnStateChange(fn func(oldState, newState State)) { c.handlers.setStateChange(fn) }

// OnReconnecting registers the handler invoked when a reconnect attempt is
// scheduled, with the attempt number and the computed delay.
func (c *Client) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	c.handlers.setReconnecting(fn)
}

// Connect starts connecting to the configured stream address. It returns
// immediately; the dial runs on its own goroutine. Calling Connect while a
// connection is active or being established is a no-op. From Reconnecting
// the pending backoff timer is cancelled and the attempt starts right
// away; from Failed the retry budget starts fresh.
func (c *Client) Connect() error {
	return c.connect("")
}

// ConnectTo behaves like Connect but overrides the stream address for this
// and subsequent reconnect attempts.
func (c *Client) ConnectTo(address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("%w: stream address is empty", ErrInvalidConfiguration)
	}
	return c.connect(address)
}

func (c *Client) connect(override string) error {
	c.mu.Lock()
	if override != "" {
		c.address = override
	}
	if c.address == "" {
		c.mu.Unlock()
		return fmt.Errorf("%w: stream address is not set", ErrInvalidConfiguration)
	}
	switch c.state {
	case Connecting, Connected:
		c.mu.Unlock()
		c.logger.Debug("Connect ignored, connection already active")
		return nil
	case Reconnecting:
		// manual connect preempts the pending timer, keeping the budget
		c.sched.cancel()
	case Closed, Failed:
		c.sched.reset()
	}
	addr := c.address
	evs := c.transitionLocked(Connecting)
	gen := c.bumpGenLocked()
	c.mu.Unlock()

	c.dispatchAll(evs)
	go c.dial(gen, addr)
	return nil
}

// Disconnect tears down any active connection with a normal closure,
// cancels pending reconnect and heartbeat timers and resets the retry
// counter. Safe to call from any state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.sched.reset()
	wasActive := c.conn != nil
	c.teardownConnLocked(true, websocket.CloseNormalClosure, "client disconnect")
	evs := c.transitionLocked(Closed)
	c.mu.Unlock()

	if wasActive {
		c.logger.Info("Disconnected from stream endpoint")
	}
	c.dispatchAll(evs)
}

// Send writes a text message to the active connection. Without a usable
// connection the message is queued for delivery after the next successful
// connect, provided reconnection is enabled; otherwise ErrNotConnected is
// returned. While a flush is draining the queue, new messages join the
// queue tail so the original send order is preserved.
func (c *Client) Send(payload []byte) (SendStatus, error) {
	c.mu.Lock()
	if c.state == Connected {
		if c.queue.depth() > 0 {
			c.queue.enqueue(payload)
			c.mu.Unlock()
			return SendStatusQueued, nil
		}
		conn := c.conn
		c.mu.Unlock()

		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			// the read loop or the heartbeat will notice the dead
			// connection, the message just waits for the next one
			c.logger.Warn("Send failed, queueing message", zap.Error(err))
			c.mu.Lock()
			c.queue.enqueue(payload)
			c.mu.Unlock()
			return SendStatusQueued, nil
		}
		return SendStatusSent, nil
	}
	if c.cfg.Reconnect.Enabled {
		c.queue.enqueue(payload)
		depth := c.queue.depth()
		c.mu.Unlock()
		c.logger.Debug("Message queued while not connected", zap.Int("queue_depth", depth))
		return SendStatusQueued, nil
	}
	c.mu.Unlock()
	return SendStatusSent, ErrNotConnected
}

// SendJSON marshals v and sends it as a text message.
func (c *Client) SendJSON(v any) (SendStatus, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return SendStatusSent, fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.Send(payload)
}

// GetState returns the current connection state.
func (c *Client) GetState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether a connection is established.
func (c *Client) IsConnected() bool {
	return c.GetState() == Connected
}

// GetRetryCount returns the number of reconnect attempts made since the
// last successful connection.
func (c *Client) GetRetryCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sched.retryCount()
}

// QueueDepth returns the number of messages waiting for a connection.
func (c *Client) QueueDepth() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queue.depth()
}

// QueueDropped returns the number of messages evicted by the queue depth
// cap since the client was created.
func (c *Client) QueueDropped() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queue.droppedCount()
}

// dial runs on its own goroutine and performs one connection attempt.
func (c *Client) dial(gen uint64, address string) {
	c.logger.Info("Connecting to stream endpoint", zap.String("address", address))
	conn, err := c.dialer.Dial(address, nil)

	c.mu.Lock()
	if gen != c.connGen || c.state != Connecting {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.logger.Warn("Failed to connect to stream endpoint",
			zap.String("address", address), zap.Error(err))
		evs := append([]event{{kind: eventError, err: err}}, c.reconnectDecisionLocked()...)
		c.mu.Unlock()
		c.dispatchAll(evs)
		return
	}

	c.conn = conn
	c.sched.reset()
	c.heartbeat.stop()
	hbStop := make(chan struct{})
	c.hbStop = hbStop
	evs := c.transitionLocked(Connected)
	c.mu.Unlock()

	c.logger.Info("Connected to stream endpoint", zap.String("address", address))
	c.dispatchAll(evs)

	if c.cfg.Heartbeat.Enabled {
		go c.heartbeatLoop(gen, conn, hbStop)
	}
	go c.readLoop(gen, conn)

	c.flushQueue(gen, conn)

	c.mu.RLock()
	current := gen == c.connGen
	c.mu.RUnlock()
	if current {
		c.dispatch(event{kind: eventOpen})
	}
}

// flushQueue drains the outbound queue onto the given connection in FIFO
// order. A message is removed only after its write succeeded; on a write
// failure the remainder stays queued and the read loop drives the
// reconnect, so the flush itself never schedules one.
func (c *Client) flushQueue(gen uint64, conn Conn) {
	flushed := 0
	for {
		c.mu.Lock()
		if gen != c.connGen || c.state != Connected {
			c.mu.Unlock()
			return
		}
		msg, ok := c.queue.peek()
		if !ok {
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()

		if err := conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
			c.logger.Warn("Queue flush interrupted by write failure",
				zap.Int("flushed", flushed), zap.Error(err))
			return
		}

		c.mu.Lock()
		if gen != c.connGen {
			c.mu.Unlock()
			return
		}
		c.queue.popFront()
		c.mu.Unlock()
		flushed++
	}
	if flushed > 0 {
		c.logger.Info("Flushed queued messages", zap.Int("count", flushed))
	}
}

// readLoop consumes frames until the connection dies.
func (c *Client) readLoop(gen uint64, conn Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.handleConnClosed(gen, err)
			return
		}
		c.handleFrame(gen, conn, messageType, data)
	}
}

// handleFrame routes one inbound frame. Liveness frames are consumed here;
// everything else is forwarded to the message handler. Binary frames pass
// through untouched.
func (c *Client) handleFrame(gen uint64, conn Conn, messageType int, data []byte) {
	c.mu.RLock()
	stale := gen != c.connGen
	c.mu.RUnlock()
	if stale {
		return
	}

	switch messageType {
	case websocket.BinaryMessage:
		c.dispatch(event{kind: eventMessage, msg: Message{Data: data, Binary: true}})
	case websocket.TextMessage:
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("Dropping malformed frame", zap.Error(err))
			return
		}
		switch env.Type {
		case frameTypePong:
			c.mu.Lock()
			if gen == c.connGen {
				c.heartbeat.replyReceived()
			}
			c.mu.Unlock()
			c.logger.Debug("Heartbeat reply received")
		case frameTypePing:
			if err := conn.WriteMessage(websocket.TextMessage, pongPayload(time.Now().UnixMilli())); err != nil {
				c.logger.Warn("Failed to answer peer ping", zap.Error(err))
			}
		default:
			c.dispatch(event{kind: eventMessage, msg: Message{Type: env.Type, Data: data}})
		}
	}
}

// handleConnClosed reacts to the read loop ending. A normal closure from
// the peer parks the client in Closed; anything else goes through the
// reconnect decision.
func (c *Client) handleConnClosed(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.connGen {
		c.mu.Unlock()
		return
	}
	code, reason, isCloseFrame := closeDetails(err)
	c.teardownConnLocked(false, 0, "")

	evs := make([]event, 0, 4)
	if !isCloseFrame {
		evs = append(evs, event{kind: eventError, err: err})
	}
	evs = append(evs, event{kind: eventClose, code: code, reason: reason})
	if code == websocket.CloseNormalClosure {
		c.logger.Info("Stream closed cleanly by peer")
		c.sched.reset()
		evs = append(evs, c.transitionLocked(Closed)...)
	} else {
		c.logger.Warn("Connection lost",
			zap.Int("code", code), zap.String("reason", reason), zap.Error(err))
		evs = append(evs, c.reconnectDecisionLocked()...)
	}
	c.mu.Unlock()
	c.dispatchAll(evs)
}

// closeDetails extracts the close code and reason from a read error. Errors
// that do not carry a close frame map to an abnormal closure.
func closeDetails(err error) (int, string, bool) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, closeErr.Text, true
	}
	return websocket.CloseAbnormalClosure, err.Error(), false
}

// reconnectDecisionLocked decides what happens after a failure: park in
// Failed when reconnection is disabled or the retry budget is exhausted,
// otherwise schedule the next attempt. Caller holds the write lock.
func (c *Client) reconnectDecisionLocked() []event {
	if !c.cfg.Reconnect.Enabled {
		c.logger.Warn("Reconnection disabled, giving up")
		return c.transitionLocked(Failed)
	}
	delay, ok := c.sched.schedule(c.onReconnectTimer)
	if !ok {
		c.logger.Warn("Reconnect attempts exhausted, giving up",
			zap.Int("attempts", c.sched.retryCount()))
		return c.transitionLocked(Failed)
	}
	attempt := c.sched.retryCount()
	c.logger.Info("Scheduling reconnect attempt",
		zap.Int("attempt", attempt), zap.Duration("delay", delay))
	evs := c.transitionLocked(Reconnecting)
	return append(evs, event{kind: eventReconnecting, attempt: attempt, delay: delay})
}

// onReconnectTimer fires when the backoff delay elapses.
func (c *Client) onReconnectTimer() {
	c.mu.Lock()
	if c.state != Reconnecting {
		c.mu.Unlock()
		return
	}
	c.sched.clearTimer()
	addr := c.address
	evs := c.transitionLocked(Connecting)
	gen := c.bumpGenLocked()
	c.mu.Unlock()

	c.dispatchAll(evs)
	go c.dial(gen, addr)
}

// heartbeatLoop sends liveness probes for one connection generation.
func (c *Client) heartbeatLoop(gen uint64, conn Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.Heartbeat.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.heartbeatTick(gen, conn) {
				return
			}
		}
	}
}

// heartbeatTick handles one heartbeat interval. Returns false when the
// loop must exit because the connection is gone or was just closed.
func (c *Client) heartbeatTick(gen uint64, conn Conn) bool {
	now := time.Now()
	c.mu.Lock()
	if gen != c.connGen || c.state != Connected {
		c.mu.Unlock()
		return false
	}
	if c.heartbeat.onTick(now) == heartbeatActionClose {
		waited := now.Sub(c.heartbeat.probeSent)
		c.logger.Warn("Heartbeat probe unanswered for a full interval, closing connection",
			zap.Duration("waited", waited))
		c.teardownConnLocked(true, closeCodeHeartbeatTimeout, "heartbeat timeout")
		evs := []event{
			{kind: eventError, err: ErrHeartbeatTimeout},
			{kind: eventClose, code: closeCodeHeartbeatTimeout, reason: "heartbeat timeout"},
		}
		evs = append(evs, c.reconnectDecisionLocked()...)
		c.mu.Unlock()
		c.dispatchAll(evs)
		return false
	}
	c.heartbeat.armSlowReply(c.cfg.Heartbeat.Timeout, func() { c.slowReplyCheck(gen) })
	c.mu.Unlock()

	if err := conn.WriteMessage(websocket.TextMessage, pingPayload(now.UnixMilli())); err != nil {
		// a failed probe stays unacknowledged, the next tick closes
		c.logger.Warn("Failed to send heartbeat probe", zap.Error(err))
	}
	return true
}

// slowReplyCheck logs when a probe reply is overdue. Only the next tick
// decides the connection is dead.
func (c *Client) slowReplyCheck(gen uint64) {
	c.mu.RLock()
	slow := gen == c.connGen && c.heartbeat.phase == heartbeatAwaitingPong
	waited := time.Since(c.heartbeat.probeSent)
	c.mu.RUnlock()
	if slow {
		c.logger.Warn("Heartbeat reply overdue", zap.Duration("waited", waited))
	}
}

// teardownConnLocked invalidates the current connection generation, stops
// the heartbeat and closes the socket. Caller holds the write lock.
func (c *Client) teardownConnLocked(sendClose bool, code int, reason string) {
	c.connGen++
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
	c.heartbeat.stop()
	if c.conn != nil {
		if sendClose {
			deadline := time.Now().Add(closeWriteTimeout)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason), deadline)
		}
		_ = c.conn.Close()
		c.conn = nil
	}
}

// transitionLocked moves the state machine and produces the matching state
// change event. Caller holds the write lock.
func (c *Client) transitionLocked(next State) []event {
	if c.state == next {
		return nil
	}
	old := c.state
	c.state = next
	c.logger.Debug("Connection state changed",
		zap.String("from", old.String()), zap.String("to", next.String()))
	return []event{{kind: eventStateChange, oldState: old, newState: next}}
}

func (c *Client) bumpGenLocked() uint64 {
	c.connGen++
	return c.connGen
}

func (c *Client) dispatch(ev event) {
	c.handlers.dispatch(ev)
}

func (c *Client) dispatchAll(evs []event) {
	for _, ev := range evs {
		c.handlers.dispatch(ev)
	}
}
