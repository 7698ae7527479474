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
	"sync"
	"time"
)

// eventKind discriminates the event union below.
type eventKind int

const (
	eventOpen eventKind = iota
	eventClose
	eventError
	eventMessage
	eventStateChange
	eventReconnecting
)

// event is one observable outcome produced by the state machine. Events are
// collected while the client mutex is held and delivered afterwards, so
// handlers may call back into the client without deadlocking.
type event struct {
	kind eventKind

	// eventClose
	code   int
	reason string

	// eventError
	err error

	// eventMessage
	msg Message

	// eventStateChange
	oldState State
	newState State

	// eventReconnecting
	attempt int
	delay   time.Duration
}

// handlers holds the registered event callbacks. Registering a handler for
// an event replaces the previous one. Guarded by its own lock so handlers
// can be swapped while the client mutex is held elsewhere.
type handlers struct {
	mu           sync.RWMutex
	open         func()
	close        func(code int, reason string)
	err          func(err error)
	message      func(msg Message)
	stateChange  func(oldState, newState State)
	reconnecting func(attempt int, delay time.Duration)
}

func (h *handlers) setOpen(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.open = fn
}

func (h *handlers) setClose(fn func(code int, reason string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.close = fn
}

func (h *handlers) setError(fn func(err error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = fn
}

func (h *handlers) setMessage(fn func(msg Message)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.message = fn
}

func (h *handlers) setStateChange(fn func(oldState, newState State)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stateChange = fn
}

func (h *handlers) setReconnecting(fn func(attempt int, delay time.Duration)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reconnecting = fn
}

// dispatch invokes the handler registered for the event, if any. Handlers
// run synchronously on the calling goroutine in the order the events were
// produced.
func (h *handlers) dispatch(ev event) {
	h.mu.RLock()
	open, closeFn, errFn := h.open, h.close, h.err
	message, stateChange, reconnecting := h.message, h.stateChange, h.reconnecting
	h.mu.RUnlock()

	switch ev.kind {
	case eventOpen:
		if open != nil {
			open()
		}
	case eventClose:
		if closeFn != nil {
			closeFn(ev.code, ev.reason)
		}
	case eventError:
		if errFn != nil {
			errFn(ev.err)
		}
	case eventMessage:
		if message != nil {
			message(ev.msg)
		}
	case eventStateChange:
		if stateChange != nil {
			stateChange(ev.oldState, ev.newState)
		}
	case eventReconnecting:
		if reconnecting != nil {
			reconnecting(ev.attempt, ev.delay)
		}
	}
}
