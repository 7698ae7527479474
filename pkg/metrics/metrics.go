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

package metrics

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	namespace = "telemetry_agent"
)

var (
	once     sync.Once
	registry *prometheus.Registry

	StreamConnectionState        GaugeVec
	StreamReconnectsTotal        Counter
	StreamMessagesSentTotal      CounterVec
	StreamMessagesReceivedTotal  CounterVec
	StreamSendLatencySeconds     Histogram
	StreamQueueDepth             Gauge
	StreamQueueDroppedTotal      Counter
	StreamHeartbeatTimeoutsTotal Counter

	SpoolPendingSamples           Gauge
	SpoolOperationsTotal          CounterVec
	SpoolOperationDurationSeconds HistogramVec

	IngestSamplesTotal   CounterVec
	FleetVehiclesTracked Gauge

	BackfillRequestsTotal CounterVec
	BackfillPointsTotal   Counter

	HTTPRequestsTotal          CounterVec
	HTTPRequestDurationSeconds HistogramVec
	ConcurrentRequests         Gauge

	Up          Gauge
	Info        GaugeVec
	Goroutines  GaugeFunc
	MemoryBytes GaugeVec

	ErrorsTotal          CounterVec
	PanicRecoveriesTotal CounterVec
)

// initMetrics initializes all metric variables.
// This must be called after SetEnabled() to ensure proper noop behavior when disabled.
func initMetrics() {
	StreamConnectionState = newGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_connection_state",
			Help:      "Streaming connection state (1 for the current state, 0 otherwise)",
		},
		[]string{"state"},
	)

	StreamReconnectsTotal = newCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnects_total",
			Help:      "Total number of reconnection attempts to the ingest endpoint",
		},
	)

	StreamMessagesSentTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_sent_total",
			Help:      "Total number of messages sent over the stream",
		},
		[]string{"type"},
	)

	StreamMessagesReceivedTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_received_total",
			Help:      "Total number of messages received over the stream",
		},
		[]string{"type"},
	)

	StreamSendLatencySeconds = newHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_send_latency_seconds",
			Help:      "Latency of stream sends in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
	)

	StreamQueueDepth = newGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_queue_depth",
			Help:      "Number of messages waiting in the outbound queue",
		},
	)

	StreamQueueDroppedTotal = newCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_queue_dropped_total",
			Help:      "Total number of queued messages dropped due to capacity",
		},
	)

	StreamHeartbeatTimeoutsTotal = newCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_heartbeat_timeouts_total",
			Help:      "Total number of heartbeat timeouts that forced a connection close",
		},
	)

	SpoolPendingSamples = newGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spool_pending_samples",
			Help:      "Number of samples waiting in the durable spool",
		},
	)

	SpoolOperationsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spool_operations_total",
			Help:      "Total number of spool operations",
		},
		[]string{"operation", "status"},
	)

	SpoolOperationDurationSeconds = newHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "spool_operation_duration_seconds",
			Help:      "Duration of spool operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"operation"},
	)

	IngestSamplesTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_samples_total",
			Help:      "Total number of samples submitted to the local ingest API",
		},
		[]string{"result"},
	)

	FleetVehiclesTracked = newGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fleet_vehicles_tracked",
			Help:      "Number of vehicles with a known position",
		},
	)

	BackfillRequestsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_requests_total",
			Help:      "Total number of history backfill requests",
		},
		[]string{"status"},
	)

	BackfillPointsTotal = newCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_points_total",
			Help:      "Total number of telemetry points recovered via backfill",
		},
	)

	HTTPRequestsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDurationSeconds = newHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"method", "endpoint"},
	)

	ConcurrentRequests = newGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "concurrent_requests",
			Help:      "Number of concurrent HTTP requests",
		},
	)

	Up = newGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "Telemetry agent liveness indicator (1=up, 0=down)",
		},
	)

	Info = newGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Telemetry agent build information",
		},
		[]string{"version", "spool_type", "build_date"},
	)

	Goroutines = newGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
		func() float64 {
			return float64(runtime.NumGoroutine())
		},
	)

	MemoryBytes = newGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_bytes",
			Help:      "Memory usage in bytes",
		},
		[]string{"type"},
	)

	ErrorsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)

	PanicRecoveriesTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panic_recoveries_total",
			Help:      "Total number of panic recoveries",
		},
		[]string{"component"},
	)
}

func registerCounterVec(v CounterVec) {
	if !Enabled {
		return
	}
	if wrapper, ok := v.(*counterVecWrapper); ok {
		if err := registry.Register(wrapper.CounterVec); err != nil {
			// Already registered or other error - ignore
		}
	}
}

func registerHistogramVec(v HistogramVec) {
	if !Enabled {
		return
	}
	if wrapper, ok := v.(*histogramVecWrapper); ok {
		if err := registry.Register(wrapper.HistogramVec); err != nil {
			// Already registered or other error - ignore
		}
	}
}

func registerHistogram(v Histogram) {
	if !Enabled {
		return
	}
	if h, ok := v.(prometheus.Histogram); ok {
		if err := registry.Register(h); err != nil {
			// Already registered or other error - ignore
		}
	}
}

func registerGaugeVec(v GaugeVec) {
	if !Enabled {
		return
	}
	if wrapper, ok := v.(*gaugeVecWrapper); ok {
		if err := registry.Register(wrapper.GaugeVec); err != nil {
			// Already registered or other error - ignore
		}
	}
}

func registerGauge(v Gauge) {
	if !Enabled {
		return
	}
	if g, ok := v.(prometheus.Gauge); ok {
		if err := registry.Register(g); err != nil {
			// Already registered or other error - ignore
		}
	}
}

func registerCounter(v Counter) {
	if !Enabled {
		return
	}
	if c, ok := v.(prometheus.Counter); ok {
		if err := registry.Register(c); err != nil {
			// Already registered or other error - ignore
		}
	}
}

func registerGaugeFunc(v GaugeFunc) {
	if !Enabled || v == nil {
		return
	}
	if err := registry.Register(v); err != nil {
		// Already registered or other error - ignore
	}
}

func initRegistry() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registerGaugeVec(StreamConnectionState)
	registerCounter(StreamReconnectsTotal)
	registerCounterVec(StreamMessagesSentTotal)
	registerCounterVec(StreamMessagesReceivedTotal)
	registerHistogram(StreamSendLatencySeconds)
	registerGauge(StreamQueueDepth)
	registerCounter(StreamQueueDroppedTotal)
	registerCounter(StreamHeartbeatTimeoutsTotal)

	registerGauge(SpoolPendingSamples)
	registerCounterVec(SpoolOperationsTotal)
	registerHistogramVec(SpoolOperationDurationSeconds)

	registerCounterVec(IngestSamplesTotal)
	registerGauge(FleetVehiclesTracked)

	registerCounterVec(BackfillRequestsTotal)
	registerCounter(BackfillPointsTotal)

	registerCounterVec(HTTPRequestsTotal)
	registerHistogramVec(HTTPRequestDurationSeconds)
	registerGauge(ConcurrentRequests)

	registerGauge(Up)
	registerGaugeVec(Info)
	registerGaugeFunc(Goroutines)
	registerGaugeVec(MemoryBytes)

	registerCounterVec(ErrorsTotal)
	registerCounterVec(PanicRecoveriesTotal)

	Up.Set(1)
}

// Init initializes the metrics registry with all collectors.
// This must be called after SetEnabled() has been called.
func Init() *prometheus.Registry {
	once.Do(func() {
		// Initialize all metric variables first
		initMetrics()

		if !Enabled {
			registry = prometheus.NewRegistry()
			return
		}
		initRegistry()
	})

	return registry
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return Init()
	}
	return registry
}

// UpdateMemoryMetrics updates memory-related metrics
func UpdateMemoryMetrics() {
	if !Enabled {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryBytes.WithLabelValues("heap_alloc").Set(float64(m.HeapAlloc))
	MemoryBytes.WithLabelValues("heap_sys").Set(float64(m.HeapSys))
	MemoryBytes.WithLabelValues("stack_inuse").Set(float64(m.StackInuse))
}

// SetConnectionState sets the stream connection state gauge so that exactly
// one state label reports 1.
func SetConnectionState(state string) {
	if !Enabled {
		return
	}
	for _, s := range []string{"closed", "connecting", "connected", "reconnecting", "failed"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		StreamConnectionState.WithLabelValues(s).Set(v)
	}
}
