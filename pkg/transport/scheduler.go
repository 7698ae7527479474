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

import "time"

// reconnectScheduler tracks the retry budget and owns the pending reconnect
// timer. It is not safe for concurrent use; the client serializes access
// through its own mutex.
type reconnectScheduler struct {
	backoff    Backoff
	maxRetries int
	attempts   int
	timer      *time.Timer
}

// shouldGiveUp reports whether the retry budget is exhausted. A maxRetries
// of zero means unlimited retries.
func (s *reconnectScheduler) shouldGiveUp() bool {
	return s.maxRetries > 0 && s.attempts >= s.maxRetries
}

// schedule arms the reconnect timer for the next attempt and bumps the
// attempt counter. It returns the scheduled delay, or false when the retry
// budget is exhausted and no timer was armed. Any previously pending timer
// is replaced.
func (s *reconnectScheduler) schedule(fn func()) (time.Duration, bool) {
	if s.shouldGiveUp() {
		return 0, false
	}
	s.cancel()
	delay := s.backoff.Delay(s.attempts)
	s.attempts++
	s.timer = time.AfterFunc(delay, fn)
	return delay, true
}

// cancel stops the pending reconnect timer if one is armed. Safe to call
// when nothing is pending.
func (s *reconnectScheduler) cancel() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// clearTimer drops the timer reference once it has fired.
func (s *reconnectScheduler) clearTimer() {
	s.timer = nil
}

// reset cancels any pending timer and zeroes the attempt counter.
func (s *reconnectScheduler) reset() {
	s.cancel()
	s.attempts = 0
}

// retryCount returns the number of reconnect attempts made since the last
// successful connection.
func (s *reconnectScheduler) retryCount() int {
	return s.attempts
}
