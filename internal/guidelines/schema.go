// Copyright 2026 Relaymesh
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package guidelines

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// requirementsSchema and stepsSchema validate the shapes of a guideline's
// declared requirements and protocol steps at registration time, catching
// malformed definitions (e.g. a requirement missing its envVar, or a step
// whose typedOutputs aren't a flat string map) before they ever reach
// processSignal.
const requirementsSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["name", "kind", "envVar"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"kind": {"type": "string", "enum": ["env_var"]},
			"envVar": {"type": "string", "minLength": 1}
		}
	}
}`

const stepsSchema = `{
	"type": "array",
	"minItems": 1,
	"items": {
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"typedOutputs": {
				"type": "object",
				"additionalProperties": {"type": "string"}
			},
			"decisionPoints": {"type": "array", "items": {"type": "string"}},
			"successCriteria": {"type": "array", "items": {"type": "string"}},
			"fallbackActions": {"type": "array", "items": {"type": "string"}}
		}
	}
}`

// ValidateSchema runs g.Requirements and g.Protocol.Steps through their
// respective JSON schemas, in addition to the structural checks in
// Validate.
func (g Guideline) ValidateSchema() error {
	if err := validateAgainstSchema(requirementsSchema, g.Requirements, "requirements"); err != nil {
		return &ValidationError{Guideline: g.ID, Reason: err.Error()}
	}
	if err := validateAgainstSchema(stepsSchema, g.Protocol.Steps, "protocol.steps"); err != nil {
		return &ValidationError{Guideline: g.ID, Reason: err.Error()}
	}
	return nil
}

func validateAgainstSchema(schema string, document any, label string) error {
	raw, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", label, err)
	}
	schemaLoader := gojsonschema.NewStringLoader(schema)
	docLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("validate %s: %w", label, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%s: %s", label, strings.Join(msgs, "; "))
	}
	return nil
}
