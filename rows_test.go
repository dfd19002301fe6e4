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

package apptimeline

import (
	"reflect"
	"testing"
	"time"

	"github.com/fatih/structs"
	"github.com/stretchr/testify/assert"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

func Test_lower(t *testing.T) {
	type args struct {
		f interface{}
	}
	tests := []struct {
		name string
		args args
		want interface{}
	}{
		{"Map", args{map[string]interface{}{"IdentityID": "B"}}, map[string]interface{}{"identity_id": "B"}},
		{"List", args{[]interface{}{"A", "B"}}, []interface{}{"A", "B"}},
		{"Empty values", args{map[string]interface{}{"RawRef": "", "Position": 0}}, map[string]interface{}{"position": 0}},
		{"Acronym", args{map[string]interface{}{"TimestampUTC": "x"}}, map[string]interface{}{"timestamp_utc": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lower(tt.args.f); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("lower() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_isEmptyValue(t *testing.T) {
	var emptyInterface *int
	type args struct {
		v reflect.Value
	}
	tests := []struct {
		name string
		args args
		want bool
	}{
		{"List", args{reflect.ValueOf([]string{})}, true},
		{"Interface", args{reflect.ValueOf(emptyInterface)}, true},
		{"Typed string", args{reflect.ValueOf(gotimeline.SourceKind(""))}, true},
		{"Zero int", args{reflect.ValueOf(0)}, false},
		{"False", args{reflect.ValueOf(false)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isEmptyValue(tt.args.v); got != tt.want {
				t.Errorf("isEmptyValue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSegmentRowColumns(t *testing.T) {
	start := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	row, err := newSegmentRow("run--1", gotimeline.Segment{
		ID:            "segment--1",
		IdentityID:    "app-identity--1",
		Start:         start,
		End:           start.Add(1200 * time.Millisecond),
		Terminated:    true,
		SourceKinds:   []gotimeline.SourceKind{gotimeline.RecentTasks, gotimeline.UsageStats},
		Corroboration: gotimeline.Corroborated,
		Conflict:      &gotimeline.Conflict{Pairs: []gotimeline.ConflictPair{{A: "event--a", B: "event--b", Delta: 1200 * time.Millisecond}}},
	})
	assert.NoError(t, err)

	m := lower(structs.Map(row)).(map[string]interface{})
	assert.Equal(t, map[string]interface{}{
		"run_id":        "run--1",
		"segment_id":    "segment--1",
		"identity_id":   "app-identity--1",
		"start_utc":     "2023-11-14T22:13:20.000Z",
		"end_utc":       "2023-11-14T22:13:21.200Z",
		"terminated":    true,
		"source_kinds":  "recent_tasks,usagestats",
		"corroboration": gotimeline.Corroborated,
		"conflict_flag": true,
		"conflict":      `{"pairs":[{"a":"event--a","b":"event--b","delta":1200000000}]}`,
	}, m)
}
