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
	"math/rand"
	"testing"
	"time"
)

func TestBackoff_DelayWithoutJitter(t *testing.T) {
	b := Backoff{
		Initial:    time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{6, 30 * time.Second},
		{100, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_MultiplierOne(t *testing.T) {
	b := Backoff{
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 1.0,
		Jitter:     0,
	}

	for attempt := 0; attempt < 5; attempt++ {
		if got := b.Delay(attempt); got != 500*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want 500ms", attempt, got)
		}
	}
}

func TestBackoff_NegativeAttemptClampedToZero(t *testing.T) {
	b := Backoff{
		Initial:    time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
	}

	if got := b.Delay(-3); got != time.Second {
		t.Errorf("Delay(-3) = %v, want %v", got, time.Second)
	}
}

func TestBackoff_JitterStaysWithinBounds(t *testing.T) {
	b := Backoff{
		Initial:    time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.25,
		Rand:       rand.New(rand.NewSource(7)),
	}

	for attempt := 0; attempt < 6; attempt++ {
		nominal := Backoff{Initial: b.Initial, Max: b.Max, Multiplier: b.Multiplier}.Delay(attempt)
		low := time.Duration(float64(nominal) * 0.75)
		high := time.Duration(float64(nominal) * 1.25)
		for i := 0; i < 200; i++ {
			got := b.Delay(attempt)
			if got < low || got > high {
				t.Fatalf("Delay(%d) = %v, want within [%v, %v]", attempt, got, low, high)
			}
		}
	}
}

func TestBackoff_SeededRandIsReproducible(t *testing.T) {
	first := Backoff{
		Initial:    time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.5,
		Rand:       rand.New(rand.NewSource(42)),
	}
	second := Backoff{
		Initial:    time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.5,
		Rand:       rand.New(rand.NewSource(42)),
	}

	for attempt := 0; attempt < 10; attempt++ {
		a, b := first.Delay(attempt), second.Delay(attempt)
		if a != b {
			t.Errorf("Delay(%d) differs between identically seeded sources: %v vs %v", attempt, a, b)
		}
	}
}

func TestBackoff_NeverNegative(t *testing.T) {
	b := Backoff{
		Initial:    time.Millisecond,
		Max:        time.Millisecond,
		Multiplier: 1.0,
		Jitter:     1.0,
		Rand:       rand.New(rand.NewSource(1)),
	}

	for i := 0; i < 500; i++ {
		if got := b.Delay(0); got < 0 {
			t.Fatalf("Delay(0) = %v, want >= 0", got)
		}
	}
}
