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

import (
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps spooled messages in memory. Contents are lost on
// restart; it exists for development setups and as the default when no
// persistent spool is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	nextID  int64
}

// NewMemoryStore creates an empty in-memory spool.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append persists a message and returns its id.
func (s *MemoryStore) Append(payload []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.entries = append(s.entries, Entry{
		ID:         s.nextID,
		Payload:    cp,
		EnqueuedAt: time.Now().UTC(),
	})
	return s.nextID, nil
}

// Ack removes a delivered message.
func (s *MemoryStore) Ack(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, entry := range s.entries {
		if entry.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: id=%d", ErrNotFound, id)
}

// Pending returns unacknowledged messages in append order.
func (s *MemoryStore) Pending(limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}

// Len returns the number of unacknowledged messages.
func (s *MemoryStore) Len() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Close is a no-op for the in-memory spool.
func (s *MemoryStore) Close() error {
	return nil
}
