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

package spool

import "time"

// Entry is one spooled message.
type Entry struct {
	ID         int64     `db:"id"`
	Payload    []byte    `db:"payload"`
	EnqueuedAt time.Time `db:"enqueued_at"`
}

// Store persists outbound messages until they are acknowledged. Entries are
// identified by a monotonically increasing id, so Pending replays them in
// the order they were appended. Implementations are safe for concurrent
// use.
type Store interface {
	// Append persists a message and returns its id.
	Append(payload []byte) (int64, error)

	// Ack removes a delivered message.
	Ack(id int64) error

	// Pending returns unacknowledged messages in append order. A limit of
	// zero or less returns everything.
	Pending(limit int) ([]Entry, error)

	// Len returns the number of unacknowledged messages.
	Len() (int, error)

	// Close releases the underlying resources.
	Close() error
}
