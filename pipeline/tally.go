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

package pipeline

import (
	"sync"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

// tally accumulates the per source summary while sources are decoded in
// parallel.
type tally struct {
	sync.RWMutex
	summary gotimeline.Summary
}

func newTally(runID string) *tally {
	return &tally{summary: gotimeline.Summary{RunID: runID}}
}

func (t *tally) all() gotimeline.Summary {
	t.RLock()
	defer t.RUnlock()
	s := t.summary
	s.Sources = make([]gotimeline.SourceSummary, len(t.summary.Sources))
	for i, src := range t.summary.Sources {
		c := src
		c.Warnings = append([]string(nil), src.Warnings...)
		if src.DropReasons != nil {
			c.DropReasons = make(map[string]int, len(src.DropReasons))
			for reason, n := range src.DropReasons {
				c.DropReasons[reason] = n
			}
		}
		s.Sources[i] = c
	}
	return s
}

func (t *tally) add(kind gotimeline.SourceKind, records int) {
	t.Lock()
	t.summary.Source(kind).Records += records
	t.Unlock()
}

func (t *tally) events(events []gotimeline.Event) {
	t.Lock()
	for _, e := range events {
		t.summary.Source(e.SourceKind).Events++
	}
	t.summary.Events += len(events)
	t.Unlock()
}

func (t *tally) addDrops(diagnostics []gotimeline.Diagnostic) {
	t.Lock()
	for _, d := range diagnostics {
		t.summary.Source(d.SourceKind).AddDrop(d.Reason)
	}
	t.Unlock()
}

func (t *tally) fail(kind gotimeline.SourceKind, warning string) {
	t.Lock()
	src := t.summary.Source(kind)
	src.Failed = true
	src.AddWarning(warning)
	t.Unlock()
}

func (t *tally) unresolved(unresolved []gotimeline.Unresolved) {
	t.Lock()
	for _, u := range unresolved {
		t.summary.Source(u.SourceKind).Unresolved++
		t.summary.Unresolved++
	}
	t.Unlock()
}
