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
	"math"
	"math/rand"
	"time"
)

// Backoff computes exponential reconnect delays with bounded jitter.
// Attempt numbering starts at zero, so the first delay equals Initial
// before jitter is applied.
type Backoff struct {
	// Initial is the base delay for attempt zero.
	Initial time.Duration
	// Max caps the exponential growth before jitter is applied.
	Max time.Duration
	// Multiplier is the exponential growth factor, >= 1.
	Multiplier float64
	// Jitter is the symmetric jitter fraction in [0, 1]. A value of 0.25
	// spreads each delay uniformly within +/-25% of its nominal value.
	Jitter float64
	// Rand is the randomness source used for jitter. Nil falls back to the
	// shared package-level source. Tests inject a seeded source here.
	Rand *rand.Rand
}

// Delay returns the delay to wait before the given reconnect attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt))
	if maxDelay := float64(b.Max); base > maxDelay || math.IsInf(base, 1) || math.IsNaN(base) {
		base = maxDelay
	}
	delay := time.Duration(base * (1 + b.Jitter*b.uniform()))
	if delay < 0 {
		delay = 0
	}
	return delay
}

// uniform returns a value uniformly distributed in [-1, 1).
func (b Backoff) uniform() float64 {
	if b.Jitter == 0 {
		return 0
	}
	if b.Rand != nil {
		return b.Rand.Float64()*2 - 1
	}
	return rand.Float64()*2 - 1
}
