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
	"time"

	"github.com/google/uuid"
)

// Corroboration grades how many independent sources attest a segment.
type Corroboration string

// Corroboration levels.
const (
	Corroborated Corroboration = "corroborated"
	SingleSource Corroboration = "single-source"
)

// ConflictPair references two events making incompatible claims within the
// tolerance window.
type ConflictPair struct {
	A     string        `json:"a"`
	B     string        `json:"b"`
	Delta time.Duration `json:"delta"`
}

// Conflict tags a segment whose sources disagree. It keeps references to
// every event involved in a disagreement; none of them is discarded.
type Conflict struct {
	Pairs []ConflictPair `json:"pairs"`
}

// EventIDs returns the ids of all events involved in the conflict, in first
// appearance order.
func (c *Conflict) EventIDs() []string {
	if c == nil {
		return nil
	}
	seen := map[string]bool{}
	var ids []string
	for _, p := range c.Pairs {
		for _, id := range []string{p.A, p.B} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Segment is one continuous foreground span of an application, derived from
// its ordered events.
type Segment struct {
	ID            string        `json:"segment_id"`
	IdentityID    string        `json:"identity_id"`
	Start         time.Time     `json:"start_utc"`
	End           time.Time     `json:"end_utc"`
	Terminated    bool          `json:"terminated"`
	Events        []string      `json:"events"`
	SourceKinds   []SourceKind  `json:"source_kinds"`
	Corroboration Corroboration `json:"corroboration"`
	Conflict      *Conflict     `json:"conflict,omitempty"`
}

// SegmentID derives a stable segment id from its identity and first event.
func SegmentID(identityID, firstEventID string) string {
	return "segment--" + uuid.NewSHA1(Namespace, []byte(identityID+"\x1f"+firstEventID)).String()
}

// ConflictFlag reports whether sources disagree inside the segment.
func (s Segment) ConflictFlag() bool {
	return s.Conflict != nil
}

// Duration of the segment.
func (s Segment) Duration() time.Duration {
	return s.End.Sub(s.Start)
}
