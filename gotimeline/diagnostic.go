// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package gotimeline

import (
	"fmt"
	"sort"
	"strings"
)

// Category classifies why a record or source did not make it into the
// timeline.
type Category string

// Diagnostic categories.
const (
	CategoryDecode            Category = "decode"
	CategoryEpoch             Category = "epoch"
	CategoryIdentityAmbiguity Category = "identity_ambiguity"
	CategorySourceFailure     Category = "source_failure"
)

// Diagnostic is retained for every skipped record and every failed source.
type Diagnostic struct {
	SourceKind SourceKind `json:"source_kind"`
	Category   Category   `json:"category"`
	Reason     string     `json:"reason"`
	RawRef     string     `json:"raw_ref,omitempty"`
	Detail     string     `json:"detail,omitempty"`
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s/%s: %s", d.SourceKind, d.Category, d.Reason)
	if d.RawRef != "" {
		s += " (" + d.RawRef + ")"
	}
	if d.Detail != "" {
		s += ": " + d.Detail
	}
	return s
}

// Unresolved is a record set aside because its identity could not be
// determined without guessing.
type Unresolved struct {
	EventID      string     `json:"event_id"`
	SourceKind   SourceKind `json:"source_kind"`
	RawAppKey    string     `json:"raw_app_key"`
	RawTimestamp string     `json:"raw_timestamp"`
	EventType    EventType  `json:"event_type"`
	Reason       string     `json:"reason"`
}

// SourceSummary accounts for one source kind in a run.
type SourceSummary struct {
	SourceKind  SourceKind     `json:"source_kind"`
	Records     int            `json:"records"`
	Events      int            `json:"events"`
	Dropped     int            `json:"dropped"`
	DropReasons map[string]int `json:"drop_reasons,omitempty"`
	Unresolved  int            `json:"unresolved"`
	Failed      bool           `json:"failed"`
	Warnings    []string       `json:"warnings,omitempty"`
}

// Degraded reports whether the source contributed less than it delivered.
func (s SourceSummary) Degraded() bool {
	return s.Failed || s.Dropped > 0 || s.Unresolved > 0
}

// Summary is produced by every run, complete or degraded.
type Summary struct {
	RunID        string          `json:"run_id"`
	Sources      []SourceSummary `json:"sources"`
	Identities   int             `json:"identities"`
	Events       int             `json:"events"`
	Unresolved   int             `json:"unresolved"`
	Segments     int             `json:"segments"`
	Corroborated int             `json:"corroborated"`
	SingleSource int             `json:"single_source"`
	Conflicts    int             `json:"conflicts"`
}

// Source returns the summary entry of kind, adding an empty one if needed.
func (s *Summary) Source(kind SourceKind) *SourceSummary {
	for i := range s.Sources {
		if s.Sources[i].SourceKind == kind {
			return &s.Sources[i]
		}
	}
	s.Sources = append(s.Sources, SourceSummary{SourceKind: kind})
	sort.Slice(s.Sources, func(i, j int) bool { return s.Sources[i].SourceKind < s.Sources[j].SourceKind })
	return s.Source(kind)
}

// AddDrop counts a dropped record against its source.
func (s *SourceSummary) AddDrop(reason string) {
	if s.DropReasons == nil {
		s.DropReasons = map[string]int{}
	}
	s.DropReasons[reason]++
	s.Dropped++
}

// AddWarning records a source level warning.
func (s *SourceSummary) AddWarning(warning string) {
	s.Warnings = append(s.Warnings, warning)
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s\n", s.RunID)
	for _, src := range s.Sources {
		state := "ok"
		switch {
		case src.Failed:
			state = "failed"
		case src.Degraded():
			state = "degraded"
		}
		fmt.Fprintf(&b, "  %-16s %-8s records=%d events=%d dropped=%d unresolved=%d\n",
			src.SourceKind, state, src.Records, src.Events, src.Dropped, src.Unresolved)
		reasons := make([]string, 0, len(src.DropReasons))
		for reason := range src.DropReasons {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Fprintf(&b, "    drop %s: %d\n", reason, src.DropReasons[reason])
		}
		for _, w := range src.Warnings {
			fmt.Fprintf(&b, "    warning: %s\n", w)
		}
	}
	fmt.Fprintf(&b, "identities=%d events=%d unresolved=%d\n", s.Identities, s.Events, s.Unresolved)
	fmt.Fprintf(&b, "segments=%d corroborated=%d single-source=%d conflicts=%d\n",
		s.Segments, s.Corroborated, s.SingleSource, s.Conflicts)
	return b.String()
}
