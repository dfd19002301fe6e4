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

import "time"

// Run bundles everything one analysis run persists. It is committed as a
// whole or not at all.
type Run struct {
	ID          string
	StartedAt   time.Time
	Identities  []AppIdentity
	Events      []Event
	Segments    []Segment
	Diagnostics []Diagnostic
	Unresolved  []Unresolved
	Summary     Summary
	// Attachments are archived with the run, e.g. the equivalence table used.
	Attachments []Attachment
}

// Attachment is a named file archived alongside a run.
type Attachment struct {
	Name string
	Data []byte
}

// Store is an interface for the timeline database. Writes are append-only
// per run; reads only ever see complete runs.
type Store interface {
	Commit(run *Run) error

	Identities() ([]AppIdentity, error)
	Events(identityID string) ([]Event, error)
	Segments(identityID string) ([]Segment, error)
	Conflicts() ([]Segment, error)
	SingleSourceSegments() ([]Segment, error)
	Summary(runID string) (*Summary, error)

	Close() error
}
