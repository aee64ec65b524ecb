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

// Package tokenbudget computes per-invocation token allocation across the
// orchestrator's fixed and elastic prompt sections, and applies ordered
// lossy compression when the allocation would exceed the model's context
// window.
package tokenbudget

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens for arbitrary text, backed by tiktoken's cl100k_base
// encoding when available. If the encoder can't be constructed (e.g. no
// network access to fetch its vocabulary file) it falls back to the
// ⌈len/4⌉ character-based estimate used elsewhere in this package for
// opaque payloads.
type Counter struct {
	encoder *tiktoken.Tiktoken
	mu      sync.Mutex
}

var (
	globalCounter *Counter
	initOnce      sync.Once
)

// GetCounter returns the process-wide token counter, initializing it on
// first use.
func GetCounter() *Counter {
	initOnce.Do(func() {
		tkm, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			globalCounter = &Counter{encoder: nil}
			return
		}
		globalCounter = &Counter{encoder: tkm}
	})
	return globalCounter
}

// CountTokens returns the token count for text, or the fallback estimate if
// no encoder is available.
func (c *Counter) CountTokens(text string) int {
	if c.encoder == nil {
		return EstimateTokens(text)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.encoder.Encode(text, nil, nil))
}

// CountTokensMultiple sums CountTokens across texts.
func (c *Counter) CountTokensMultiple(texts []string) int {
	total := 0
	for _, t := range texts {
		total += c.CountTokens(t)
	}
	return total
}

// EstimateTokens is the ⌈len/4⌉ fallback estimator the spec uses for
// opaque/structured payloads (§3, ContextSection.tokens).
func EstimateTokens(text string) int {
	n := len(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
