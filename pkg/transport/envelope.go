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

import "encoding/json"

// Frame type names carried in the envelope "type" field.
const (
	frameTypePing = "ping"
	frameTypePong = "pong"
)

// envelope is the minimal wrapper every text frame on the stream carries.
// Ping and pong frames additionally carry the send timestamp in epoch
// milliseconds.
type envelope struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts,omitempty"`
}

// Message is a frame received from the peer and forwarded to the message
// handler. Binary frames pass through untouched with Type left empty; text
// frames carry the envelope type and the raw payload bytes.
type Message struct {
	Type   string
	Data   []byte
	Binary bool
}

// SendStatus tells the caller what happened to a message handed to Send.
type SendStatus int

const (
	// SendStatusSent - the message was written to the active connection
	SendStatusSent SendStatus = iota
	// SendStatusQueued - no usable connection, the message was queued for
	// delivery after the next successful connect
	SendStatusQueued
)

// String returns the string representation of the send status
func (s SendStatus) String() string {
	switch s {
	case SendStatusSent:
		return "sent"
	case SendStatusQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// pingPayload builds the liveness probe frame for the given timestamp.
func pingPayload(ts int64) []byte {
	payload, _ := json.Marshal(envelope{Type: frameTypePing, Ts: ts})
	return payload
}

// pongPayload builds the probe reply frame for the given timestamp.
func pongPayload(ts int64) []byte {
	payload, _ := json.Marshal(envelope{Type: frameTypePong, Ts: ts})
	return payload
}
