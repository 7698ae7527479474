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

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleetforge/telemetry-agent/pkg/config"
	"github.com/fleetforge/telemetry-agent/pkg/metrics"
	"github.com/fleetforge/telemetry-agent/pkg/models"
	"github.com/fleetforge/telemetry-agent/pkg/spool"
	"github.com/fleetforge/telemetry-agent/pkg/transport"
)

func init() {
	metrics.Init()
}

type fakeFrame struct {
	messageType int
	data        []byte
	err         error
}

// fakeConn implements transport.Conn for agent tests
type fakeConn struct {
	mu      sync.Mutex
	frames  chan fakeFrame
	closeCh chan struct{}
	closed  bool
	writes  [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames:  make(chan fakeFrame, 64),
		closeCh: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.frames:
		if f.err != nil {
			return 0, nil, f.err
		}
		return f.messageType, f.data, nil
	case <-c.closeCh:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "connection closed"}
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closeCh)
	}
	return nil
}

func (c *fakeConn) deliverText(payload string) {
	c.frames <- fakeFrame{messageType: websocket.TextMessage, data: []byte(payload)}
}

func (c *fakeConn) failRead(err error) {
	c.frames <- fakeFrame{err: err}
}

func (c *fakeConn) writesSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.writes))
	for _, w := range c.writes {
		out = append(out, string(w))
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer implements transport.Dialer, handing out a fresh fakeConn on
// every dial
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDialer) Dial(address string, header http.Header) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func testConfig() *config.Config {
	return &config.Config{
		Agent: config.AgentConfig{DeviceID: "truck-042"},
		Stream: config.StreamConfig{
			Address:          "ws://127.0.0.1:9460/v1/stream",
			HandshakeTimeout: time.Second,
			WriteTimeout:     time.Second,
			Reconnect: config.ReconnectConfig{
				Enabled:      true,
				InitialDelay: 5 * time.Millisecond,
				MaxDelay:     40 * time.Millisecond,
				Multiplier:   2.0,
				Jitter:       0,
				MaxRetries:   0,
			},
			Heartbeat: config.HeartbeatConfig{
				Enabled:  false,
				Interval: 25 * time.Millisecond,
				Timeout:  10 * time.Millisecond,
			},
		},
		Queue:   config.QueueConfig{MaxQueued: 0},
		History: config.HistoryConfig{Enabled: false},
	}
}

func newTestAgent(t *testing.T, cfg *config.Config) (*Agent, *fakeDialer, spool.Store) {
	t.Helper()
	store := spool.NewMemoryStore()
	dialer := &fakeDialer{}
	a := NewWithDialer(cfg, store, dialer, zap.NewNop())
	t.Cleanup(a.Stop)
	return a, dialer, store
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startConnected(t *testing.T, a *Agent, dialer *fakeDialer) *fakeConn {
	t.Helper()
	require.NoError(t, a.Start(context.Background()))
	waitFor(t, "connection", func() bool {
		return a.Status().ConnectionState == "connected"
	})
	return dialer.lastConn()
}

func samplePoint(ts int64) *models.TelemetryPoint {
	return &models.TelemetryPoint{
		DeviceID:  "truck-042",
		Timestamp: ts,
		Latitude:  48.137,
		Longitude: 11.575,
		SpeedKPH:  63.5,
	}
}

func TestNew_UsesConfiguredDeviceID(t *testing.T) {
	a, _, _ := newTestAgent(t, testConfig())
	assert.Equal(t, "truck-042", a.DeviceID())
}

func TestNew_GeneratesDeviceIDWhenEmpty(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.DeviceID = ""

	a, _, _ := newTestAgent(t, cfg)
	assert.True(t, strings.HasPrefix(a.DeviceID(), "agent-"), "got %q", a.DeviceID())
	assert.Greater(t, len(a.DeviceID()), len("agent-"))
}

func TestAgent_StartWithoutAddressFails(t *testing.T) {
	cfg := testConfig()
	cfg.Stream.Address = ""

	a, _, _ := newTestAgent(t, cfg)
	err := a.Start(context.Background())
	require.Error(t, err)
	assert.True(t, transport.IsInvalidConfiguration(err))
}

func TestAgent_StartTwiceFails(t *testing.T) {
	a, dialer, _ := newTestAgent(t, testConfig())
	startConnected(t, a, dialer)

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestAgent_PublishSampleSendsTelemetryFrame(t *testing.T) {
	a, dialer, _ := newTestAgent(t, testConfig())
	conn := startConnected(t, a, dialer)

	status, err := a.PublishSample(samplePoint(1736941200000))
	require.NoError(t, err)
	assert.Equal(t, transport.SendStatusSent, status)

	writes := conn.writesSnapshot()
	require.Len(t, writes, 1)
	assert.Contains(t, writes[0], `"type":"telemetry"`)
	assert.Contains(t, writes[0], `"deviceId":"truck-042"`)
	assert.Contains(t, writes[0], `"ts":1736941200000`)

	// own position joins the local fleet view
	pos, ok := a.Tracker().Get("truck-042")
	require.True(t, ok)
	assert.Equal(t, 48.137, pos.Latitude)
}

func TestAgent_PublishQueuesWhileDisconnected(t *testing.T) {
	a, _, store := newTestAgent(t, testConfig())

	status, err := a.PublishSample(samplePoint(1000))
	require.NoError(t, err)
	assert.Equal(t, transport.SendStatusQueued, status)

	st := a.Status()
	assert.Equal(t, "closed", st.ConnectionState)
	assert.Equal(t, 1, st.QueueDepth)
	assert.Equal(t, 1, st.SpoolPending)

	pending, err := store.Pending(0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Contains(t, string(pending[0].Payload), `"deviceId":"truck-042"`)
}

func TestAgent_QueuedSamplesFlushOnConnect(t *testing.T) {
	a, dialer, store := newTestAgent(t, testConfig())

	_, err := a.PublishSample(samplePoint(1000))
	require.NoError(t, err)
	_, err = a.PublishSample(samplePoint(2000))
	require.NoError(t, err)

	conn := startConnected(t, a, dialer)

	waitFor(t, "flush", func() bool { return len(conn.writesSnapshot()) >= 2 })
	writes := conn.writesSnapshot()
	assert.Contains(t, writes[0], `"ts":1000`)
	assert.Contains(t, writes[1], `"ts":2000`)

	// acked out of the spool once delivered
	waitFor(t, "spool drain", func() bool {
		n, err := store.Len()
		return err == nil && n == 0
	})
}

func TestAgent_InboundTelemetryUpdatesTracker(t *testing.T) {
	a, dialer, _ := newTestAgent(t, testConfig())
	conn := startConnected(t, a, dialer)

	conn.deliverText(`{"type":"telemetry","deviceId":"truck-007","ts":1736941200000,"lat":48.2,"lon":11.6,"speedKph":80}`)

	waitFor(t, "tracker update", func() bool {
		_, ok := a.Tracker().Get("truck-007")
		return ok
	})

	pos, _ := a.Tracker().Get("truck-007")
	assert.Equal(t, 48.2, pos.Latitude)
	assert.Equal(t, int64(1736941200000), a.Status().LastAppliedTs)
}

func TestAgent_InboundFrameWithoutIdentityIgnored(t *testing.T) {
	a, dialer, _ := newTestAgent(t, testConfig())
	conn := startConnected(t, a, dialer)

	conn.deliverText(`{"type":"telemetry","lat":48.2,"lon":11.6}`)
	conn.deliverText(`{"type":"telemetry","deviceId":"truck-008","ts":2000,"lat":1,"lon":2}`)

	waitFor(t, "valid frame applied", func() bool {
		_, ok := a.Tracker().Get("truck-008")
		return ok
	})
	assert.Equal(t, 1, a.Tracker().Len())
}

func TestAgent_UnknownFrameTypeIgnored(t *testing.T) {
	a, dialer, _ := newTestAgent(t, testConfig())
	conn := startConnected(t, a, dialer)

	conn.deliverText(`{"type":"announcement","note":"route change"}`)
	conn.deliverText(`{"type":"telemetry","deviceId":"truck-009","ts":3000,"lat":1,"lon":2}`)

	waitFor(t, "telemetry frame applied", func() bool {
		_, ok := a.Tracker().Get("truck-009")
		return ok
	})
	assert.Equal(t, 1, a.Tracker().Len())
}

func TestAgent_StopDisconnects(t *testing.T) {
	a, dialer, _ := newTestAgent(t, testConfig())
	conn := startConnected(t, a, dialer)

	a.Stop()

	assert.Equal(t, "closed", a.Status().ConnectionState)
	waitFor(t, "socket close", conn.isClosed)

	// stopping again is a no-op
	a.Stop()
}

type historyRecorder struct {
	mu       sync.Mutex
	requests []map[string]any
	points   []models.TelemetryPoint
}

func (h *historyRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		h.mu.Lock()
		h.requests = append(h.requests, body)
		points := h.points
		h.mu.Unlock()

		_ = json.NewEncoder(w).Encode(map[string]any{"points": points})
	}
}

func (h *historyRecorder) requestCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.requests)
}

func (h *historyRecorder) request(i int) map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests[i]
}

func TestAgent_BackfillRunsAfterReconnect(t *testing.T) {
	recorder := &historyRecorder{points: []models.TelemetryPoint{
		{DeviceID: "truck-009", Timestamp: 1736941205000, Latitude: 48.3, Longitude: 11.7},
	}}
	server := httptest.NewServer(recorder.handler())
	defer server.Close()

	cfg := testConfig()
	cfg.History = config.HistoryConfig{
		Enabled: true,
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
		Limit:   100,
		Overlap: 1 * time.Second,
	}

	a, dialer, _ := newTestAgent(t, cfg)
	conn := startConnected(t, a, dialer)

	// live telemetry establishes the backfill watermark
	conn.deliverText(`{"type":"telemetry","deviceId":"truck-007","ts":1736941200000,"lat":48.2,"lon":11.6}`)
	waitFor(t, "watermark", func() bool { return a.Status().LastAppliedTs == 1736941200000 })

	// connection dies; the client reconnects and triggers a backfill
	conn.failRead(errors.New("connection reset by peer"))
	waitFor(t, "reconnect", func() bool {
		return dialer.dialCount() >= 2 && a.Status().ConnectionState == "connected"
	})

	waitFor(t, "backfill request", func() bool { return recorder.requestCount() >= 1 })

	req := recorder.request(0)
	assert.Equal(t, float64(1736941199000), req["start"], "window should open one overlap before the watermark")
	assert.Equal(t, float64(100), req["limit"])
	_, hasDevice := req["deviceId"]
	assert.False(t, hasDevice, "fleet-wide backfill should not scope to one device")

	waitFor(t, "backfilled point applied", func() bool {
		_, ok := a.Tracker().Get("truck-009")
		return ok
	})
	assert.Equal(t, int64(1736941205000), a.Status().LastAppliedTs)
}

func TestAgent_BackfillSkippedOnFirstConnect(t *testing.T) {
	recorder := &historyRecorder{}
	server := httptest.NewServer(recorder.handler())
	defer server.Close()

	cfg := testConfig()
	cfg.History = config.HistoryConfig{
		Enabled: true,
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
		Limit:   100,
		Overlap: 1 * time.Second,
	}

	a, dialer, _ := newTestAgent(t, cfg)
	startConnected(t, a, dialer)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, recorder.requestCount(), "no watermark yet, nothing to backfill")
}

func TestSpoolJournal_AdaptsStore(t *testing.T) {
	store := spool.NewMemoryStore()
	journal := newSpoolJournal(store)

	id1, err := journal.Append([]byte("one"))
	require.NoError(t, err)
	id2, err := journal.Append([]byte("two"))
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	entries, err := journal.Pending(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, id1, entries[0].ID)
	assert.Equal(t, []byte("one"), entries[0].Payload)

	require.NoError(t, journal.Ack(id1))

	entries, err = journal.Pending(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id2, entries[0].ID)
}
