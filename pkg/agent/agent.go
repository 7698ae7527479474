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

// Package agent wires the streaming client, durable spool, fleet tracker
// and history backfill into one lifecycle.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetforge/telemetry-agent/pkg/config"
	"github.com/fleetforge/telemetry-agent/pkg/fleet"
	"github.com/fleetforge/telemetry-agent/pkg/history"
	"github.com/fleetforge/telemetry-agent/pkg/metrics"
	"github.com/fleetforge/telemetry-agent/pkg/models"
	"github.com/fleetforge/telemetry-agent/pkg/spool"
	"github.com/fleetforge/telemetry-agent/pkg/transport"
)

const (
	frameTypeTelemetry = "telemetry"

	gaugeRefreshInterval = 15 * time.Second
)

// telemetryFrame is the outbound wire shape of one sample: the envelope
// type field followed by the sample fields inline
type telemetryFrame struct {
	Type string `json:"type"`
	models.TelemetryPoint
}

// Agent owns the upstream stream connection and the local fleet state.
// Samples flow up through PublishSample; fleet telemetry flows down through
// the stream (or the history backfill after an outage) into the tracker.
type Agent struct {
	cfg      *config.Config
	deviceID string
	client   *transport.Client
	store    spool.Store
	tracker  *fleet.Tracker
	history  *history.Client
	logger   *zap.Logger

	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	startedAt   time.Time
	lastApplied time.Time
	backfilling bool
	lastDropped uint64
}

// New creates an agent with the standard WebSocket dialer.
func New(cfg *config.Config, store spool.Store, logger *zap.Logger) *Agent {
	return NewWithDialer(cfg, store, transport.NewDialer(&cfg.Stream), logger)
}

// NewWithDialer creates an agent whose stream client dials through the
// given dialer.
func NewWithDialer(cfg *config.Config, store spool.Store, dialer transport.Dialer, logger *zap.Logger) *Agent {
	deviceID := cfg.Agent.DeviceID
	if deviceID == "" {
		deviceID = "agent-" + uuid.NewString()[:8]
		logger.Info("Generated device identity", zap.String("device_id", deviceID))
	}

	a := &Agent{
		cfg:      cfg,
		deviceID: deviceID,
		store:    store,
		tracker:  fleet.NewTracker(),
		logger:   logger,
	}

	journal := newSpoolJournal(store)
	a.client = transport.NewClientWithDialer(&cfg.Stream, &cfg.Queue, journal, dialer, logger)

	if cfg.History.Enabled {
		a.history = history.NewClient(&cfg.History, logger)
	}

	a.registerHandlers()
	return a
}

// DeviceID returns the agent's device identity.
func (a *Agent) DeviceID() string {
	return a.deviceID
}

// Tracker returns the fleet position tracker.
func (a *Agent) Tracker() *fleet.Tracker {
	return a.tracker
}

// Start connects the stream and begins the periodic gauge refresh. The
// context bounds all background work; Stop cancels it.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		return fmt.Errorf("agent already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	a.ctx = ctx
	a.cancel = cancel
	a.startedAt = time.Now()
	a.mu.Unlock()

	a.logger.Info("Starting telemetry agent",
		zap.String("device_id", a.deviceID),
		zap.String("stream_address", a.cfg.Stream.Address))

	if err := a.client.Connect(); err != nil {
		cancel()
		a.mu.Lock()
		a.cancel = nil
		a.mu.Unlock()
		return fmt.Errorf("failed to start stream client: %w", err)
	}

	go a.gaugeLoop(ctx)
	return nil
}

// Stop disconnects the stream and halts background work. Queued samples
// stay in the spool for the next run.
func (a *Agent) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.client.Disconnect()
	a.logger.Info("Telemetry agent stopped")
}

// PublishSample sends one sample upstream, wrapped in a telemetry envelope.
// The agent's own position joins the local fleet view immediately.
func (a *Agent) PublishSample(p *models.TelemetryPoint) (transport.SendStatus, error) {
	start := time.Now()
	status, err := a.client.SendJSON(telemetryFrame{
		Type:           frameTypeTelemetry,
		TelemetryPoint: *p,
	})
	if err != nil {
		return status, err
	}

	metrics.StreamSendLatencySeconds.Observe(time.Since(start).Seconds())
	metrics.StreamMessagesSentTotal.WithLabelValues(frameTypeTelemetry).Inc()
	metrics.StreamQueueDepth.Set(float64(a.client.QueueDepth()))

	a.tracker.Apply(p)
	metrics.FleetVehiclesTracked.Set(float64(a.tracker.Len()))

	return status, nil
}

// Status reports the agent's runtime state.
func (a *Agent) Status() models.AgentStatus {
	a.mu.RLock()
	lastApplied := a.lastApplied
	startedAt := a.startedAt
	a.mu.RUnlock()

	pending := 0
	if n, err := a.store.Len(); err == nil {
		pending = n
	}

	st := models.AgentStatus{
		DeviceID:        a.deviceID,
		ConnectionState: a.client.GetState().String(),
		RetryCount:      a.client.GetRetryCount(),
		QueueDepth:      a.client.QueueDepth(),
		QueueDropped:    a.client.QueueDropped(),
		SpoolPending:    pending,
		VehiclesTracked: a.tracker.Len(),
	}
	if !lastApplied.IsZero() {
		st.LastAppliedTs = lastApplied.UnixMilli()
	}
	if !startedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}
	return st
}

// registerHandlers subscribes the agent to the stream lifecycle.
func (a *Agent) registerHandlers() {
	a.client.OnStateChange(func(oldState, newState transport.State) {
		metrics.SetConnectionState(newState.String())
	})

	a.client.OnReconnecting(func(attempt int, delay time.Duration) {
		metrics.StreamReconnectsTotal.Inc()
	})

	a.client.OnError(func(err error) {
		errType := "connection"
		if errors.Is(err, transport.ErrHeartbeatTimeout) {
			errType = "heartbeat_timeout"
			metrics.StreamHeartbeatTimeoutsTotal.Inc()
		}
		metrics.ErrorsTotal.WithLabelValues("stream", errType).Inc()
	})

	a.client.OnOpen(func() {
		a.refreshGauges()
		if a.history != nil {
			go a.runBackfill()
		}
	})

	a.client.OnMessage(a.handleMessage)
}

// handleMessage dispatches one inbound stream message.
func (a *Agent) handleMessage(msg transport.Message) {
	if msg.Binary {
		metrics.StreamMessagesReceivedTotal.WithLabelValues("binary").Inc()
		a.logger.Debug("Ignoring binary frame", zap.Int("bytes", len(msg.Data)))
		return
	}

	metrics.StreamMessagesReceivedTotal.WithLabelValues(typeLabel(msg.Type)).Inc()

	switch msg.Type {
	case frameTypeTelemetry:
		a.applyTelemetryFrame(msg.Data)
	default:
		a.logger.Debug("Unhandled stream message", zap.String("type", msg.Type))
	}
}

// applyTelemetryFrame folds one fleet telemetry frame into the tracker.
func (a *Agent) applyTelemetryFrame(data []byte) {
	var p models.TelemetryPoint
	if err := json.Unmarshal(data, &p); err != nil {
		a.logger.Warn("Dropping undecodable telemetry frame", zap.Error(err))
		return
	}
	if p.DeviceID == "" || p.Timestamp <= 0 {
		a.logger.Debug("Dropping telemetry frame without device identity or timestamp")
		return
	}

	a.tracker.Apply(&p)
	a.observeApplied(p.Time())
	metrics.FleetVehiclesTracked.Set(float64(a.tracker.Len()))
}

// observeApplied advances the newest-applied watermark used to size the
// backfill window.
func (a *Agent) observeApplied(ts time.Time) {
	a.mu.Lock()
	if ts.After(a.lastApplied) {
		a.lastApplied = ts
	}
	a.mu.Unlock()
}

// runBackfill queries the history service for telemetry recorded since the
// last applied point and folds the result into the tracker. Only one
// backfill runs at a time.
func (a *Agent) runBackfill() {
	a.mu.Lock()
	if a.backfilling {
		a.mu.Unlock()
		return
	}
	a.backfilling = true
	last := a.lastApplied
	ctx := a.ctx
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.backfilling = false
		a.mu.Unlock()
	}()

	if ctx == nil {
		ctx = context.Background()
	}

	if last.IsZero() {
		a.logger.Debug("Skipping backfill, no telemetry applied yet")
		return
	}

	from := last.Add(-a.cfg.History.Overlap)
	to := time.Now()

	a.logger.Info("Starting history backfill",
		zap.Time("from", from),
		zap.Time("to", to))

	points, err := a.history.Query(ctx, "", from, to)
	if err != nil {
		metrics.BackfillRequestsTotal.WithLabelValues("error").Inc()
		a.logger.Warn("History backfill failed", zap.Error(err))
		return
	}

	applied := 0
	for i := range points {
		p := &points[i]
		if a.tracker.Apply(p) {
			applied++
		}
		a.observeApplied(p.Time())
	}

	metrics.BackfillRequestsTotal.WithLabelValues("success").Inc()
	metrics.BackfillPointsTotal.Add(float64(applied))
	metrics.FleetVehiclesTracked.Set(float64(a.tracker.Len()))

	a.logger.Info("History backfill completed",
		zap.Int("points", len(points)),
		zap.Int("applied", applied))
}

// gaugeLoop refreshes slow-moving gauges until the agent stops.
func (a *Agent) gaugeLoop(ctx context.Context) {
	ticker := time.NewTicker(gaugeRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refreshGauges()
			metrics.UpdateMemoryMetrics()
		}
	}
}

// refreshGauges publishes queue, spool and fleet sizes.
func (a *Agent) refreshGauges() {
	metrics.StreamQueueDepth.Set(float64(a.client.QueueDepth()))
	metrics.FleetVehiclesTracked.Set(float64(a.tracker.Len()))

	if n, err := a.store.Len(); err == nil {
		metrics.SpoolPendingSamples.Set(float64(n))
	}

	a.mu.Lock()
	dropped := a.client.QueueDropped()
	if dropped > a.lastDropped {
		metrics.StreamQueueDroppedTotal.Add(float64(dropped - a.lastDropped))
		a.lastDropped = dropped
	}
	a.mu.Unlock()
}

func typeLabel(t string) string {
	if t == "" {
		return "untyped"
	}
	return t
}
