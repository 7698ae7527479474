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

package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleetforge/telemetry-agent/pkg/api/middleware"
	"github.com/fleetforge/telemetry-agent/pkg/fleet"
	"github.com/fleetforge/telemetry-agent/pkg/metrics"
	"github.com/fleetforge/telemetry-agent/pkg/models"
	"github.com/fleetforge/telemetry-agent/pkg/transport"
)

// TelemetryService is the agent surface the ingest API depends on
type TelemetryService interface {
	PublishSample(p *models.TelemetryPoint) (transport.SendStatus, error)
	Status() models.AgentStatus
}

// Server implements the local ingest API handlers
type Server struct {
	svc       TelemetryService
	tracker   *fleet.Tracker
	validator *SampleValidator
	logger    *zap.Logger
}

// NewServer creates the handler set with its dependencies
func NewServer(svc TelemetryService, tracker *fleet.Tracker, logger *zap.Logger) (*Server, error) {
	validator, err := NewSampleValidator()
	if err != nil {
		return nil, err
	}

	return &Server{
		svc:       svc,
		tracker:   tracker,
		validator: validator,
		logger:    logger,
	}, nil
}

// HealthCheck handles GET /health
func (s *Server) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Status handles GET /status
func (s *Server) Status(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Status())
}

// ListPositions handles GET /fleet/positions
func (s *Server) ListPositions(c *gin.Context) {
	positions := s.tracker.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"count":     len(positions),
		"positions": positions,
	})
}

// GetPosition handles GET /fleet/positions/:deviceId
func (s *Server) GetPosition(c *gin.Context) {
	deviceID := c.Param("deviceId")

	pos, ok := s.tracker.Get(deviceID)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Status:  "error",
			Message: fmt.Sprintf("No known position for device: %s", deviceID),
		})
		return
	}

	c.JSON(http.StatusOK, pos)
}

// Ingest handles POST /telemetry. The body is either a single sample object
// or an array of samples; validation failures reject the whole submission.
func (s *Server) Ingest(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Error("Failed to read request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Status:  "error",
			Message: "Failed to read request body",
		})
		return
	}

	rawSamples, batch, err := splitSamples(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Status:  "error",
			Message: "Request body must be a JSON sample or an array of samples",
		})
		return
	}
	if len(rawSamples) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Status:  "error",
			Message: "Request contains no samples",
		})
		return
	}

	points, fieldErrs := s.validateSamples(rawSamples, batch)
	if len(fieldErrs) > 0 {
		metrics.IngestSamplesTotal.WithLabelValues("rejected").Add(float64(len(rawSamples)))
		log.Warn("Rejected telemetry submission",
			zap.Int("samples", len(rawSamples)),
			zap.Int("errors", len(fieldErrs)))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Status:  "error",
			Message: "Sample validation failed",
			Errors:  fieldErrs,
		})
		return
	}

	results := make([]SampleResult, 0, len(points))
	for _, p := range points {
		status, err := s.svc.PublishSample(p)
		if err != nil {
			metrics.IngestSamplesTotal.WithLabelValues("failed").Inc()
			log.Warn("Failed to publish sample",
				zap.String("device_id", p.DeviceID),
				zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Status:  "error",
				Message: "Stream is disconnected and reconnection is disabled",
			})
			return
		}

		metrics.IngestSamplesTotal.WithLabelValues(status.String()).Inc()
		results = append(results, SampleResult{
			DeviceID:  p.DeviceID,
			Timestamp: p.Timestamp,
			Result:    status.String(),
		})
	}

	log.Debug("Accepted telemetry submission", zap.Int("samples", len(results)))
	c.JSON(http.StatusAccepted, IngestResponse{
		Status:  "accepted",
		Results: results,
	})
}

// validateSamples runs schema and model validation over every raw sample.
// All samples are checked before any is published so a bad batch is rejected
// as a unit.
func (s *Server) validateSamples(rawSamples []json.RawMessage, batch bool) ([]*models.TelemetryPoint, []ValidationError) {
	points := make([]*models.TelemetryPoint, 0, len(rawSamples))
	var fieldErrs []ValidationError

	for i, raw := range rawSamples {
		fieldPath := "sample"
		if batch {
			fieldPath = fmt.Sprintf("samples[%d]", i)
		}

		if errs := s.validator.ValidateSample(raw, fieldPath); len(errs) > 0 {
			fieldErrs = append(fieldErrs, errs...)
			continue
		}

		var p models.TelemetryPoint
		if err := json.Unmarshal(raw, &p); err != nil {
			fieldErrs = append(fieldErrs, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("Failed to decode sample: %v", err),
			})
			continue
		}
		if err := p.Validate(); err != nil {
			fieldErrs = append(fieldErrs, ValidationError{
				Field:   fieldPath,
				Message: err.Error(),
			})
			continue
		}

		points = append(points, &p)
	}

	return points, fieldErrs
}

// splitSamples accepts a single JSON object or an array and returns the
// individual raw samples plus whether the body was an array
func splitSamples(body []byte) ([]json.RawMessage, bool, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("empty request body")
	}

	if trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, true, fmt.Errorf("invalid sample array: %w", err)
		}
		return raw, true, nil
	}

	var raw json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, false, fmt.Errorf("invalid sample: %w", err)
	}
	return []json.RawMessage{raw}, false, nil
}
