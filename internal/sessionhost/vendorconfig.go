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

package sessionhost

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// VendorKind names which model-backed vendor a session's credentials are
// shaped for.
type VendorKind string

const (
	VendorAnthropic VendorKind = "anthropic"
	VendorBedrock   VendorKind = "bedrock"
)

// VendorConfig is the materialized vendor configuration file a model-backed
// agent subprocess reads on startup (§4.E.3). It is a typed struct rather
// than a bespoke map[string]any; from the vendor SDKs it takes only the
// Anthropic default model constant and the Bedrock ServiceID -- the runtime
// never calls these SDKs to perform inference. It carries no API key or
// other access token.
type VendorConfig struct {
	Vendor       VendorKind    `json:"vendor"`
	ServiceID    string        `json:"serviceId"`
	BaseURL      string        `json:"baseUrl,omitempty"`
	Region       string        `json:"region,omitempty"`
	DefaultModel string        `json:"defaultModel"`
	Timeout      time.Duration `json:"timeout"`
}

const defaultVendorTimeout = 60 * time.Second

// MaterializeVendorConfig builds a VendorConfig appropriate for kind from
// environment settings (base URL or region, default model) plus a fixed
// timeout, and writes it as JSON to path. No API key or token is read from
// the environment or written to the file.
func MaterializeVendorConfig(kind VendorKind, path string) (VendorConfig, error) {
	var vc VendorConfig
	switch kind {
	case VendorAnthropic:
		baseURL := os.Getenv("ANTHROPIC_BASE_URL")
		model := os.Getenv("ANTHROPIC_DEFAULT_MODEL")
		if model == "" {
			// Sourced from the SDK's own model constant rather than a
			// hand-maintained literal, so a model rename upstream is
			// picked up by a dependency bump instead of going stale here.
			model = string(anthropic.ModelClaude3_7SonnetLatest)
		}
		vc = VendorConfig{
			Vendor:       kind,
			ServiceID:    "anthropic",
			BaseURL:      baseURL,
			DefaultModel: model,
			Timeout:      defaultVendorTimeout,
		}

	case VendorBedrock:
		region := os.Getenv("AWS_REGION")
		if region == "" {
			region = "us-east-1"
		}
		model := os.Getenv("BEDROCK_DEFAULT_MODEL")
		if model == "" {
			model = "anthropic.claude-3-7-sonnet-20250219-v1:0"
		}
		vc = VendorConfig{
			Vendor: kind,
			// ServiceID is the real service identifier aws-sdk-go-v2 uses
			// to sign and route Bedrock runtime requests.
			ServiceID:    bedrockruntime.ServiceID,
			Region:       region,
			DefaultModel: model,
			Timeout:      defaultVendorTimeout,
		}

	default:
		return VendorConfig{}, fmt.Errorf("sessionhost: unknown vendor kind %q", kind)
	}

	raw, err := json.MarshalIndent(vc, "", "  ")
	if err != nil {
		return VendorConfig{}, fmt.Errorf("sessionhost: marshal vendor config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return VendorConfig{}, fmt.Errorf("sessionhost: write vendor config %s: %w", path, err)
	}
	return vc, nil
}
