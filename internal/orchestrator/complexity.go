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

package orchestrator

import (
	"encoding/json"
	"time"

	"github.com/relaymesh/conductor/internal/csync"
	"github.com/relaymesh/conductor/internal/signal"
	"github.com/relaymesh/conductor/internal/tokenbudget"
)

const (
	recentSignalWindow   = 60 * time.Second
	recentSignalCapacity = 500

	smallPayloadBytes = 256
	largePayloadBytes = 2048
	fewCorrelated     = 2
	manyCorrelated    = 5
)

// recentSignals tracks the last N signals seen, used to fingerprint prior
// activity for complexity classification (§4.F inputs).
type recentSignals struct {
	entries *csync.Slice[signal.Signal]
}

func newRecentSignals() *recentSignals {
	return &recentSignals{entries: csync.NewBoundedSlice[signal.Signal](recentSignalCapacity)}
}

func (r *recentSignals) observe(sig signal.Signal) {
	r.entries.Append(sig)
}

// correlated counts prior signals of the same kind observed within the
// trailing window ending at sig's timestamp.
func (r *recentSignals) correlated(sig signal.Signal) int {
	cutoff := sig.Timestamp.Add(-recentSignalWindow)
	count := 0
	for _, prior := range r.entries.Items() {
		if prior.ID == sig.ID {
			continue
		}
		if prior.Kind == sig.Kind && !prior.Timestamp.Before(cutoff) {
			count++
		}
	}
	return count
}

// payloadSize estimates a signal's payload size in bytes for complexity
// classification; marshal failures count as zero (an empty payload is
// "low" complexity by construction).
func payloadSize(sig signal.Signal) int {
	raw, err := json.Marshal(sig.Payload)
	if err != nil {
		return 0
	}
	return len(raw)
}

// classifyComplexity implements the §4.F complexity input: payload size
// plus the number of correlated prior signals in the trailing 60s window.
func classifyComplexity(sig signal.Signal, correlated int) tokenbudget.Complexity {
	size := payloadSize(sig)
	switch {
	case size >= largePayloadBytes || correlated >= manyCorrelated:
		return tokenbudget.ComplexityHigh
	case size <= smallPayloadBytes && correlated <= fewCorrelated:
		return tokenbudget.ComplexityLow
	default:
		return tokenbudget.ComplexityMedium
	}
}
