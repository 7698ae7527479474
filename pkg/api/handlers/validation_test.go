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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *SampleValidator {
	t.Helper()
	v, err := NewSampleValidator()
	require.NoError(t, err)
	return v
}

func TestSampleValidator_ValidSample(t *testing.T) {
	v := newValidator(t)

	errs := v.ValidateSample(validSampleJSON(), "sample")
	assert.Empty(t, errs)
}

func TestSampleValidator_ValidSampleWithMetrics(t *testing.T) {
	v := newValidator(t)

	body := []byte(`{"deviceId":"truck-042","ts":1000,"lat":48.1,"lon":11.5,"metrics":{"fuelPct":74.2,"engineTempC":88.0}}`)
	errs := v.ValidateSample(body, "sample")
	assert.Empty(t, errs)
}

func TestSampleValidator_MissingRequiredField(t *testing.T) {
	v := newValidator(t)

	body := []byte(`{"deviceId":"truck-042","ts":1000,"lat":48.1}`)
	errs := v.ValidateSample(body, "sample")
	require.NotEmpty(t, errs)
	assert.Equal(t, "sample", errs[0].Field)
	assert.Contains(t, errs[0].Message, "lon")
}

func TestSampleValidator_WrongType(t *testing.T) {
	v := newValidator(t)

	body := []byte(`{"deviceId":42,"ts":1000,"lat":48.1,"lon":11.5}`)
	errs := v.ValidateSample(body, "sample")
	require.NotEmpty(t, errs)
	assert.Equal(t, "sample.deviceId", errs[0].Field)
}

func TestSampleValidator_BatchFieldPathPrefix(t *testing.T) {
	v := newValidator(t)

	body := []byte(`{"deviceId":"truck-042","ts":1000,"lat":200,"lon":11.5}`)
	errs := v.ValidateSample(body, "samples[3]")
	require.NotEmpty(t, errs)
	assert.Equal(t, "samples[3].lat", errs[0].Field)
}

func TestSampleValidator_NonObjectSample(t *testing.T) {
	v := newValidator(t)

	errs := v.ValidateSample([]byte(`"not an object"`), "sample")
	require.NotEmpty(t, errs)
	assert.Equal(t, "sample", errs[0].Field)
}

func TestSampleValidator_NonIntegerTimestamp(t *testing.T) {
	v := newValidator(t)

	body := []byte(`{"deviceId":"truck-042","ts":1000.5,"lat":48.1,"lon":11.5}`)
	errs := v.ValidateSample(body, "sample")
	require.NotEmpty(t, errs)
	assert.Equal(t, "sample.ts", errs[0].Field)
}
