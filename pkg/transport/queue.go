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

import "go.uber.org/zap"

// JournalEntry is one message persisted in the journal.
type JournalEntry struct {
	ID      int64
	Payload []byte
}

// Journal persists queued messages across process restarts. Append must
// return a monotonically increasing id so Pending replays entries in the
// order they were appended. Implementations live outside this package; the
// queue only drives the interface.
type Journal interface {
	Append(payload []byte) (int64, error)
	Ack(id int64) error
	Pending(limit int) ([]JournalEntry, error)
}

// queuedMessage is one outbound message waiting for a connection.
type queuedMessage struct {
	payload   []byte
	journalID int64
}

// outboundQueue buffers messages in FIFO order until they can be written.
// The queue is not safe for concurrent use; the client serializes access
// through its own mutex. Messages survive disconnects and failed flush
// attempts, they are only removed after a successful write or when the
// depth cap evicts the oldest entry.
type outboundQueue struct {
	items    []queuedMessage
	maxDepth int
	dropped  uint64
	journal  Journal
	logger   *zap.Logger
}

func newOutboundQueue(maxDepth int, journal Journal, logger *zap.Logger) *outboundQueue {
	return &outboundQueue{
		maxDepth: maxDepth,
		journal:  journal,
		logger:   logger,
	}
}

// restore reloads messages persisted by a previous run. Journal failures
// are logged and leave the queue empty rather than blocking startup.
func (q *outboundQueue) restore() {
	if q.journal == nil {
		return
	}
	entries, err := q.journal.Pending(q.maxDepth)
	if err != nil {
		q.logger.Warn("Failed to restore queued messages from journal", zap.Error(err))
		return
	}
	for _, entry := range entries {
		q.items = append(q.items, queuedMessage{payload: entry.Payload, journalID: entry.ID})
	}
	if len(q.items) > 0 {
		q.logger.Info("Restored queued messages from journal", zap.Int("count", len(q.items)))
	}
}

// enqueue appends a message, evicting the oldest entry when the depth cap
// is reached. A cap of zero means unbounded.
func (q *outboundQueue) enqueue(payload []byte) {
	var journalID int64
	if q.journal != nil {
		id, err := q.journal.Append(payload)
		if err != nil {
			q.logger.Warn("Failed to journal queued message, keeping it in memory only", zap.Error(err))
		} else {
			journalID = id
		}
	}
	if q.maxDepth > 0 && len(q.items) >= q.maxDepth {
		evicted := q.items[0]
		q.items = q.items[1:]
		q.dropped++
		q.ack(evicted)
		q.logger.Warn("Outbound queue full, dropping oldest message",
			zap.Int("max_queued", q.maxDepth),
			zap.Uint64("dropped_total", q.dropped))
	}
	q.items = append(q.items, queuedMessage{payload: payload, journalID: journalID})
}

// peek returns the head of the queue without removing it.
func (q *outboundQueue) peek() (queuedMessage, bool) {
	if len(q.items) == 0 {
		return queuedMessage{}, false
	}
	return q.items[0], true
}

// popFront removes the head of the queue and acknowledges its journal
// entry. Callers pop only after the message was written successfully.
func (q *outboundQueue) popFront() {
	if len(q.items) == 0 {
		return
	}
	head := q.items[0]
	q.items = q.items[1:]
	q.ack(head)
}

func (q *outboundQueue) ack(msg queuedMessage) {
	if q.journal == nil || msg.journalID == 0 {
		return
	}
	if err := q.journal.Ack(msg.journalID); err != nil {
		q.logger.Warn("Failed to acknowledge journaled message",
			zap.Int64("journal_id", msg.journalID), zap.Error(err))
	}
}

// depth returns the number of queued messages.
func (q *outboundQueue) depth() int {
	return len(q.items)
}

// droppedCount returns the number of messages evicted by the depth cap.
func (q *outboundQueue) droppedCount() uint64 {
	return q.dropped
}
