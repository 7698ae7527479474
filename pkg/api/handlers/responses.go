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

package handlers

// ErrorResponse is the error envelope returned by the API
type ErrorResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// SampleResult reports the publish outcome for one accepted sample
type SampleResult struct {
	DeviceID  string `json:"deviceId"`
	Timestamp int64  `json:"ts"`
	Result    string `json:"result"`
}

// IngestResponse is the success envelope returned by sample submission
type IngestResponse struct {
	Status  string         `json:"status"`
	Results []SampleResult `json:"results"`
}
