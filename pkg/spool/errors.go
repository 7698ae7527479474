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

import "errors"

// Common spool errors - implementation agnostic
var (
	// ErrNotFound is returned when acknowledging an entry that does not exist
	ErrNotFound = errors.New("spool entry not found")

	// ErrUnavailable is returned when the backing store cannot be reached
	ErrUnavailable = errors.New("spool storage is unavailable")
)

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailableError checks if an error indicates an unreachable store
func IsUnavailableError(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
