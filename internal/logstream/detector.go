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

package logstream

import (
	"regexp"
	"strings"

	"github.com/relaymesh/conductor/internal/signal"
)

// signalToken matches the two-character lowercase-or-uppercase code inside
// square brackets the grammar in §6 describes, e.g. "[tp]" or "[FF]".
// Unknown codes are matched too; the caller discards them via Catalog.Lookup.
var signalToken = regexp.MustCompile(`\[([A-Za-z]{2})\]`)

// levelRule pairs a set of keyword markers with the Level they classify a
// line as. Rules are tried in order and the first match wins (§4.C: "later
// rules do not override earlier matches").
type levelRule struct {
	level   Level
	markers []string
}

var levelRules = []levelRule{
	{LevelCritical, []string{"fatal", "critical", "panic"}},
	{LevelError, []string{"error", "err:", "exception", "[ff]", "[bb]"}},
	{LevelWarn, []string{"warn", "warning", "[tw]"}},
	{LevelInfo, []string{"info", "[tp]", "[dp]", "[cp]"}},
}

// ClassifyLevel applies the §4.C keyword heuristic to a raw (already
// ANSI-stripped) line. The heuristic is deterministic: the first rule whose
// marker appears wins, regardless of later matches.
func ClassifyLevel(line string) Level {
	lower := strings.ToLower(line)
	for _, rule := range levelRules {
		for _, marker := range rule.markers {
			if strings.Contains(lower, marker) {
				return rule.level
			}
		}
	}
	return LevelDebug
}

// prpMarkers identify a line as carrying PRP provenance per §4.C's
// confidence bonus.
var prpMarkers = []string{"PRP-", "##", "> "}

const (
	baseConfidence      = 0.8
	punctuationBonus    = 0.1
	prpBonus            = 0.1
	confidenceLookahead = 100 // chars after the match to scan for punctuation
)

// punctuationFollows reports whether any of -, :, | appears within
// lookahead characters after index end in line.
func punctuationFollows(line string, end int) bool {
	stop := end + confidenceLookahead
	if stop > len(line) {
		stop = len(line)
	}
	window := line[end:stop]
	return strings.ContainsAny(window, "-:|")
}

func hasPRPMarker(line string) bool {
	for _, marker := range prpMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

const contextRadius = 50

// surroundingContext returns up to contextRadius characters on either side
// of [start,end) in line, per §4.C's "±50 chars around the match".
func surroundingContext(line string, start, end int) string {
	from := start - contextRadius
	if from < 0 {
		from = 0
	}
	to := end + contextRadius
	if to > len(line) {
		to = len(line)
	}
	return line[from:to]
}

// Detection is one signal token match found on a line, ready to become a
// Signal once the caller supplies source/provenance.
type Detection struct {
	Kind       signal.Kind
	Priority   int
	Confidence float64
	Context    string
}

// Detect runs every registered signal token against line (already
// ANSI-stripped and truncated) and returns one Detection per match whose
// kind is registered in catalog. Unregistered codes are silently ignored
// per §6.
func Detect(catalog *signal.Catalog, line string) []Detection {
	matches := signalToken.FindAllStringSubmatchIndex(line, -1)
	if matches == nil {
		return nil
	}

	var out []Detection
	prp := hasPRPMarker(line)
	for _, m := range matches {
		start, end := m[0], m[1]
		kindStart, kindEnd := m[2], m[3]
		kind := signal.Kind(line[kindStart:kindEnd])

		entry, ok := catalog.Lookup(kind)
		if !ok {
			continue
		}

		confidence := baseConfidence
		if punctuationFollows(line, end) {
			confidence += punctuationBonus
		}
		if prp {
			confidence += prpBonus
		}
		if confidence > 1.0 {
			confidence = 1.0
		}

		out = append(out, Detection{
			Kind:       kind,
			Priority:   entry.Priority,
			Confidence: confidence,
			Context:    surroundingContext(line, start, end),
		})
	}
	return out
}
