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
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed telemetry-sample.schema.json
var sampleSchemaJSON []byte

// ValidationError describes a single validation failure within a submission
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// SampleValidator checks raw telemetry samples against the embedded JSON schema
type SampleValidator struct {
	schema *gojsonschema.Schema
}

// NewSampleValidator compiles the embedded sample schema
func NewSampleValidator() (*SampleValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(sampleSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to compile telemetry sample schema: %w", err)
	}
	return &SampleValidator{schema: schema}, nil
}

// ValidateSample validates one raw JSON sample. fieldPath prefixes the reported
// field names so samples in a batch can be told apart.
func (v *SampleValidator) ValidateSample(raw []byte, fieldPath string) []ValidationError {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("Failed to parse sample: %v", err),
		}}
	}

	if result.Valid() {
		return nil
	}

	var errs []ValidationError
	for _, validationErr := range result.Errors() {
		// Extract the field path from the error context
		fieldName := validationErr.Field()
		if fieldName == "(root)" {
			fieldName = fieldPath
		} else {
			fieldName = strings.TrimPrefix(fieldName, "(root).")
			fieldName = fieldPath + "." + fieldName
		}

		errs = append(errs, ValidationError{
			Field:   fieldName,
			Message: validationErr.Description(),
		})
	}
	return errs
}
