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

package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fleetforge/telemetry-agent/pkg/config"
	"github.com/fleetforge/telemetry-agent/pkg/models"
)

const queryPath = "/v1/history/query"

// Client queries the fleet history service for telemetry recorded while
// the agent was offline.
type Client struct {
	baseURL    string
	limit      int
	httpClient *http.Client
	logger     *zap.Logger
}

// queryRequest is the wire format of a history query.
type queryRequest struct {
	DeviceID string `json:"deviceId,omitempty"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Limit    int    `json:"limit,omitempty"`
}

// queryResponse is the wire format of a history reply.
type queryResponse struct {
	Points []models.TelemetryPoint `json:"points"`
}

// NewClient creates a history client for the configured endpoint.
func NewClient(cfg *config.HistoryConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		limit:      cfg.Limit,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Query fetches telemetry for one device recorded between start and end,
// ordered by timestamp. An empty deviceID queries the whole fleet.
func (c *Client) Query(ctx context.Context, deviceID string, start, end time.Time) ([]models.TelemetryPoint, error) {
	payload, err := json.Marshal(queryRequest{
		DeviceID: deviceID,
		Start:    start.UnixMilli(),
		End:      end.UnixMilli(),
		Limit:    c.limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queryPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create history request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query history service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("history service returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode history response: %w", err)
	}

	points := out.Points
	sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })

	c.logger.Debug("History query completed",
		zap.String("device_id", deviceID),
		zap.Int("points", len(points)))

	return points, nil
}
