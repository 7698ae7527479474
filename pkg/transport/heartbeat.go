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

// heartbeatPhase tracks whether a liveness probe is outstanding.
type heartbeatPhase int

const (
	// heartbeatIdle - no probe outstanding
	heartbeatIdle heartbeatPhase = iota
	// heartbeatAwaitingPong - a probe was sent and no reply has arrived yet
	heartbeatAwaitingPong
)

// heartbeatAction is the decision produced by a heartbeat tick.
type heartbeatAction int

const (
	// heartbeatActionProbe - send the next liveness probe
	heartbeatActionProbe heartbeatAction = iota
	// heartbeatActionClose - the previous probe went unanswered for a full
	// interval; the connection must be force-closed
	heartbeatActionClose
)

// heartbeatMonitor holds the probe/reply state for one connection. A reply
// that merely exceeds the secondary timeout is logged; only a probe still
// unanswered when the next tick fires is fatal. The monitor is not safe for
// concurrent use; the client serializes access through its own mutex.
type heartbeatMonitor struct {
	phase     heartbeatPhase
	probeSent time.Time
	slowReply *time.Timer
}

// onTick advances the monitor for one heartbeat interval and returns the
// action the client must take.
func (h *heartbeatMonitor) onTick(now time.Time) heartbeatAction {
	if h.phase == heartbeatAwaitingPong {
		return heartbeatActionClose
	}
	h.phase = heartbeatAwaitingPong
	h.probeSent = now
	return heartbeatActionProbe
}

// armSlowReply schedules the secondary timeout that flags a slow reply.
// The callback must re-check the monitor state, the timer may race with a
// reply or a teardown.
func (h *heartbeatMonitor) armSlowReply(timeout time.Duration, fn func()) {
	h.cancelSlowReply()
	h.slowReply = time.AfterFunc(timeout, fn)
}

// replyReceived clears the outstanding probe, if any.
func (h *heartbeatMonitor) replyReceived() {
	h.phase = heartbeatIdle
	h.cancelSlowReply()
}

// stop cancels the secondary timer and resets the monitor. Safe to call
// when no probe was ever sent.
func (h *heartbeatMonitor) stop() {
	h.phase = heartbeatIdle
	h.cancelSlowReply()
}

func (h *heartbeatMonitor) cancelSlowReply() {
	if h.slowReply != nil {
		h.slowReply.Stop()
		h.slowReply = nil
	}
}
