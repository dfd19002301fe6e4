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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

func Test_tally_add(t *testing.T) {
	tl := newTally("run--1")
	var wg sync.WaitGroup
	for _, kind := range []gotimeline.SourceKind{gotimeline.UsageStats, gotimeline.RecentTasks, gotimeline.UsageStats} {
		wg.Add(1)
		go func(kind gotimeline.SourceKind) {
			defer wg.Done()
			tl.add(kind, 2)
		}(kind)
	}
	wg.Wait()

	s := tl.all()
	assert.Equal(t, "run--1", s.RunID)
	assert.Equal(t, []gotimeline.SourceSummary{
		{SourceKind: gotimeline.RecentTasks, Records: 2},
		{SourceKind: gotimeline.UsageStats, Records: 4},
	}, s.Sources)
}

func Test_tally_addDrops(t *testing.T) {
	tl := newTally("run--1")
	tl.addDrops([]gotimeline.Diagnostic{
		{SourceKind: gotimeline.KnowledgeC, Reason: "unparsable"},
		{SourceKind: gotimeline.KnowledgeC, Reason: "unparsable"},
		{SourceKind: gotimeline.KnowledgeC, Reason: "missing_app_key"},
	})
	src := tl.all().Sources[0]
	assert.Equal(t, 3, src.Dropped)
	assert.Equal(t, map[string]int{"unparsable": 2, "missing_app_key": 1}, src.DropReasons)
}

func Test_tally_all(t *testing.T) {
	tl := newTally("run--1")
	tl.fail(gotimeline.AppState, "no such file")
	tl.addDrops([]gotimeline.Diagnostic{{SourceKind: gotimeline.AppState, Reason: "platform"}})
	tl.unresolved([]gotimeline.Unresolved{{SourceKind: gotimeline.AppState}})

	s := tl.all()
	s.Sources[0].Warnings[0] = "changed"
	s.Sources[0].DropReasons["platform"] = 5

	again := tl.all()
	assert.True(t, again.Sources[0].Failed)
	assert.Equal(t, []string{"no such file"}, again.Sources[0].Warnings)
	assert.Equal(t, 1, again.Sources[0].DropReasons["platform"])
	assert.Equal(t, 1, again.Unresolved)
}
