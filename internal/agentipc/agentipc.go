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

// Package agentipc defines the single-line-JSON-per-frame wire protocol
// (§6) exchanged over a session's stdin/stdout or mux pane. It has no
// dependency on any other runtime package so both the Log Streamer (which
// recognizes response frames amid raw output) and the Lifecycle Manager
// (which sends tasks and awaits responses) can share it without a cycle.
package agentipc

import "encoding/json"

// MessageType is the orchestrator -> agent frame discriminator.
type MessageType string

const (
	MessageTask     MessageType = "task"
	MessagePing     MessageType = "ping"
	MessageShutdown MessageType = "shutdown"
)

// Task is an orchestrator -> agent frame (§6).
type Task struct {
	Type        MessageType    `json:"type"`
	ID          string         `json:"id,omitempty"`
	Description string         `json:"description,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Priority    int            `json:"priority,omitempty"`
	Timestamp   int64          `json:"timestamp,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

// TokenUsage reports a response's token accounting.
type TokenUsage struct {
	Input  int     `json:"input"`
	Output int     `json:"output"`
	Total  int     `json:"total"`
	Cost   float64 `json:"cost,omitempty"`
}

// Response is an agent -> orchestrator frame (§6). Success is a pointer so
// ParseResponse can distinguish "this line is a valid response frame" from
// "this line is unrelated JSON that happens to parse" by requiring the
// field be present.
type Response struct {
	Success     *bool          `json:"success"`
	Data        map[string]any `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
	TokenUsage  *TokenUsage    `json:"tokenUsage,omitempty"`
	DurationMs  int64          `json:"durationMs,omitempty"`
}

// Marshal serializes t as the single line sent to the agent's stdin.
func (t Task) Marshal() (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ParseResponse attempts to decode line as a Response frame. It returns
// ok=false for lines that aren't valid JSON or are JSON but lack the
// required "success" field, so arbitrary agent chatter on stdout isn't
// mistaken for an IPC frame.
func ParseResponse(line string) (Response, bool) {
	var r Response
	if err := json.Unmarshal([]byte(line), &r); err != nil {
		return Response{}, false
	}
	if r.Success == nil {
		return Response{}, false
	}
	return r, true
}
