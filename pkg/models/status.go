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

package models

// AgentStatus is the runtime status surface reported by the agent
type AgentStatus struct {
	DeviceID        string `json:"deviceId"`
	ConnectionState string `json:"connectionState"`
	RetryCount      int    `json:"retryCount"`
	QueueDepth      int    `json:"queueDepth"`
	QueueDropped    uint64 `json:"queueDropped"`
	SpoolPending    int    `json:"spoolPending"`
	VehiclesTracked int    `json:"vehiclesTracked"`
	LastAppliedTs   int64  `json:"lastAppliedTs,omitempty"`
	UptimeSeconds   int64  `json:"uptimeSeconds"`
}
