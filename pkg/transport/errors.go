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

import "errors"

var (
	// ErrInvalidConfiguration is returned when the client is asked to connect
	// without a usable stream address.
	ErrInvalidConfiguration = errors.New("invalid stream configuration")

	// ErrNotConnected is returned by Send when there is no active connection
	// and reconnection is disabled, so the message cannot be queued.
	ErrNotConnected = errors.New("not connected")

	// ErrHeartbeatTimeout is reported through the error handler when the peer
	// fails to acknowledge a liveness probe before the next probe is due.
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
)

// IsNotConnected checks if the error indicates a send without a connection
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}

// IsInvalidConfiguration checks if the error indicates unusable client configuration
func IsInvalidConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}
