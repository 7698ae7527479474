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

// Package fleet tracks the last known position of every vehicle the agent
// hears about, whether the telemetry arrived live or through backfill.
package fleet

import (
	"sort"
	"sync"

	"github.com/fleetforge/telemetry-agent/pkg/models"
)

// Tracker maintains the latest position per device. Points may arrive out of
// order; an older point never overwrites a newer tracked position.
type Tracker struct {
	mu        sync.RWMutex
	positions map[string]models.VehiclePosition
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		positions: make(map[string]models.VehiclePosition),
	}
}

// Apply updates the tracked position from a telemetry point. Returns true when
// the position was updated, false when the point was older than (or equal to)
// the position already tracked for that device.
func (t *Tracker) Apply(p *models.TelemetryPoint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.positions[p.DeviceID]
	if ok && !p.Time().After(existing.UpdatedAt) {
		return false
	}
	t.positions[p.DeviceID] = models.PositionFromPoint(p)
	return true
}

// Get returns the tracked position for a device.
func (t *Tracker) Get(deviceID string) (models.VehiclePosition, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pos, ok := t.positions[deviceID]
	return pos, ok
}

// Snapshot returns all tracked positions ordered by device ID.
func (t *Tracker) Snapshot() []models.VehiclePosition {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.VehiclePosition, 0, len(t.positions))
	for _, pos := range t.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Len returns the number of devices with a tracked position.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.positions)
}
