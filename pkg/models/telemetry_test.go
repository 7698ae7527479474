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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validPoint() TelemetryPoint {
	return TelemetryPoint{
		DeviceID:   "truck-042",
		Timestamp:  1735689600000,
		Latitude:   51.5072,
		Longitude:  -0.1276,
		SpeedKPH:   62.5,
		HeadingDeg: 180,
		Metrics:    map[string]float64{"fuel_pct": 73.2},
	}
}

func TestTelemetryPoint_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*TelemetryPoint)
		wantErr     bool
		errContains string
	}{
		{name: "Valid point", mutate: func(p *TelemetryPoint) {}, wantErr: false},
		{
			name:        "Missing device ID",
			mutate:      func(p *TelemetryPoint) { p.DeviceID = "" },
			wantErr:     true,
			errContains: "deviceId is required",
		},
		{
			name:        "Zero timestamp",
			mutate:      func(p *TelemetryPoint) { p.Timestamp = 0 },
			wantErr:     true,
			errContains: "ts must be a positive",
		},
		{
			name:        "Negative timestamp",
			mutate:      func(p *TelemetryPoint) { p.Timestamp = -5 },
			wantErr:     true,
			errContains: "ts must be a positive",
		},
		{
			name:        "Latitude too low",
			mutate:      func(p *TelemetryPoint) { p.Latitude = -91 },
			wantErr:     true,
			errContains: "lat must be between",
		},
		{
			name:        "Latitude too high",
			mutate:      func(p *TelemetryPoint) { p.Latitude = 90.5 },
			wantErr:     true,
			errContains: "lat must be between",
		},
		{
			name:        "Longitude too low",
			mutate:      func(p *TelemetryPoint) { p.Longitude = -180.1 },
			wantErr:     true,
			errContains: "lon must be between",
		},
		{
			name:        "Longitude too high",
			mutate:      func(p *TelemetryPoint) { p.Longitude = 181 },
			wantErr:     true,
			errContains: "lon must be between",
		},
		{
			name:        "Negative speed",
			mutate:      func(p *TelemetryPoint) { p.SpeedKPH = -1 },
			wantErr:     true,
			errContains: "speedKph must be >= 0",
		},
		{
			name:        "Heading out of range",
			mutate:      func(p *TelemetryPoint) { p.HeadingDeg = 360 },
			wantErr:     true,
			errContains: "headingDeg must be in",
		},
		{
			name:    "Boundary coordinates",
			mutate:  func(p *TelemetryPoint) { p.Latitude = 90; p.Longitude = -180 },
			wantErr: false,
		},
		{
			name:    "Zero heading and speed",
			mutate:  func(p *TelemetryPoint) { p.HeadingDeg = 0; p.SpeedKPH = 0 },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPoint()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTelemetryPoint_Time(t *testing.T) {
	p := validPoint()
	assert.Equal(t, time.UnixMilli(1735689600000), p.Time())
}

func TestPositionFromPoint(t *testing.T) {
	p := validPoint()
	pos := PositionFromPoint(&p)

	assert.Equal(t, p.DeviceID, pos.DeviceID)
	assert.Equal(t, p.Latitude, pos.Latitude)
	assert.Equal(t, p.Longitude, pos.Longitude)
	assert.Equal(t, p.SpeedKPH, pos.SpeedKPH)
	assert.Equal(t, p.HeadingDeg, pos.HeadingDeg)
	assert.Equal(t, p.Time(), pos.UpdatedAt)
}
