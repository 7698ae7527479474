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

package agent

import (
	"time"

	"github.com/fleetforge/telemetry-agent/pkg/metrics"
	"github.com/fleetforge/telemetry-agent/pkg/spool"
	"github.com/fleetforge/telemetry-agent/pkg/transport"
)

// spoolJournal adapts a spool.Store to the transport journal seam and
// records spool operation metrics on the way through
type spoolJournal struct {
	store spool.Store
}

func newSpoolJournal(store spool.Store) *spoolJournal {
	return &spoolJournal{store: store}
}

func (j *spoolJournal) Append(payload []byte) (int64, error) {
	start := time.Now()
	id, err := j.store.Append(payload)
	observeSpoolOp("append", start, err)
	return id, err
}

func (j *spoolJournal) Ack(id int64) error {
	start := time.Now()
	err := j.store.Ack(id)
	observeSpoolOp("ack", start, err)
	return err
}

func (j *spoolJournal) Pending(limit int) ([]transport.JournalEntry, error) {
	start := time.Now()
	entries, err := j.store.Pending(limit)
	observeSpoolOp("pending", start, err)
	if err != nil {
		return nil, err
	}

	out := make([]transport.JournalEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, transport.JournalEntry{ID: e.ID, Payload: e.Payload})
	}
	return out, nil
}

func observeSpoolOp(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SpoolOperationsTotal.WithLabelValues(op, status).Inc()
	metrics.SpoolOperationDurationSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
