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

package models

import (
	"fmt"
	"time"
)

// TelemetryPoint is a single telemetry reading from a device. Timestamps are
// epoch milliseconds on the wire.
type TelemetryPoint struct {
	DeviceID   string             `json:"deviceId"`
	Timestamp  int64              `json:"ts"`
	Latitude   float64            `json:"lat"`
	Longitude  float64            `json:"lon"`
	SpeedKPH   float64            `json:"speedKph,omitempty"`
	HeadingDeg float64            `json:"headingDeg,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// Validate checks that the point carries a device identity and plausible values
func (p *TelemetryPoint) Validate() error {
	if p.DeviceID == "" {
		return fmt.Errorf("deviceId is required")
	}
	if p.Timestamp <= 0 {
		return fmt.Errorf("ts must be a positive epoch millisecond timestamp, got: %d", p.Timestamp)
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("lat must be between -90 and 90, got: %g", p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("lon must be between -180 and 180, got: %g", p.Longitude)
	}
	if p.SpeedKPH < 0 {
		return fmt.Errorf("speedKph must be >= 0, got: %g", p.SpeedKPH)
	}
	if p.HeadingDeg < 0 || p.HeadingDeg >= 360 {
		return fmt.Errorf("headingDeg must be in [0, 360), got: %g", p.HeadingDeg)
	}
	return nil
}

// Time returns the point timestamp as a time.Time
func (p *TelemetryPoint) Time() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// VehiclePosition is the last known position of a vehicle
type VehiclePosition struct {
	DeviceID   string    `json:"deviceId"`
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lon"`
	SpeedKPH   float64   `json:"speedKph"`
	HeadingDeg float64   `json:"headingDeg"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// PositionFromPoint builds a VehiclePosition from a telemetry point
func PositionFromPoint(p *TelemetryPoint) VehiclePosition {
	return VehiclePosition{
		DeviceID:   p.DeviceID,
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		SpeedKPH:   p.SpeedKPH,
		HeadingDeg: p.HeadingDeg,
		UpdatedAt:  p.Time(),
	}
}
