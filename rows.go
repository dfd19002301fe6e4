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
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/fatih/structs"
	"github.com/iancoleman/strcase"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

type runRow struct {
	RunID     string
	StartedAt string
}

type identityRow struct {
	IdentityID    string
	CanonicalName string
	FirstRun      string
}

type aliasRow struct {
	IdentityID string
	SourceKind gotimeline.SourceKind
	RawKey     string
}

type eventRow struct {
	EventID          string
	RunID            string
	IdentityID       string
	EventType        gotimeline.EventType
	TypeRank         int
	TimestampUTC     string
	SourceKind       gotimeline.SourceKind
	SourceConfidence int
	RawRef           string
	RawAppKey        string
	RawTimestamp     string
	Payload          string
}

func newEventRow(runID string, e gotimeline.Event) (eventRow, error) {
	row := eventRow{
		EventID:          e.ID,
		RunID:            runID,
		IdentityID:       e.IdentityID,
		EventType:        e.Type,
		TypeRank:         e.Type.Rank(),
		TimestampUTC:     e.Timestamp.Format(gotimeline.TimeFormat),
		SourceKind:       e.SourceKind,
		SourceConfidence: e.SourceConfidence,
		RawRef:           e.RawRef,
		RawAppKey:        e.RawAppKey,
		RawTimestamp:     e.RawTimestamp,
	}
	if len(e.Payload) > 0 {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return row, fmt.Errorf("event %s: %w", e.ID, err)
		}
		row.Payload = string(b)
	}
	return row, nil
}

type segmentRow struct {
	RunID         string
	SegmentID     string
	IdentityID    string
	StartUTC      string
	EndUTC        string
	Terminated    bool
	SourceKinds   string
	Corroboration gotimeline.Corroboration
	ConflictFlag  bool
	Conflict      string
}

func newSegmentRow(runID string, s gotimeline.Segment) (segmentRow, error) {
	kinds := make([]string, len(s.SourceKinds))
	for i, k := range s.SourceKinds {
		kinds[i] = string(k)
	}
	row := segmentRow{
		RunID:         runID,
		SegmentID:     s.ID,
		IdentityID:    s.IdentityID,
		StartUTC:      s.Start.UTC().Format(gotimeline.TimeFormat),
		EndUTC:        s.End.UTC().Format(gotimeline.TimeFormat),
		Terminated:    s.Terminated,
		SourceKinds:   strings.Join(kinds, ","),
		Corroboration: s.Corroboration,
		ConflictFlag:  s.ConflictFlag(),
	}
	if s.Conflict != nil {
		b, err := json.Marshal(s.Conflict)
		if err != nil {
			return row, fmt.Errorf("segment %s: %w", s.ID, err)
		}
		row.Conflict = string(b)
	}
	return row, nil
}

type segmentEventRow struct {
	RunID     string
	SegmentID string
	Position  int
	EventID   string
}

type diagnosticRow struct {
	RunID      string
	SourceKind gotimeline.SourceKind
	Category   gotimeline.Category
	Reason     string
	RawRef     string
	Detail     string
}

func newDiagnosticRow(runID string, d gotimeline.Diagnostic) diagnosticRow {
	return diagnosticRow{
		RunID:      runID,
		SourceKind: d.SourceKind,
		Category:   d.Category,
		Reason:     d.Reason,
		RawRef:     d.RawRef,
		Detail:     d.Detail,
	}
}

type unresolvedRow struct {
	RunID        string
	EventID      string
	SourceKind   gotimeline.SourceKind
	RawAppKey    string
	RawTimestamp string
	EventType    gotimeline.EventType
	Reason       string
}

func newUnresolvedRow(runID string, u gotimeline.Unresolved) unresolvedRow {
	return unresolvedRow{
		RunID:        runID,
		EventID:      u.EventID,
		SourceKind:   u.SourceKind,
		RawAppKey:    u.RawAppKey,
		RawTimestamp: u.RawTimestamp,
		EventType:    u.EventType,
		Reason:       u.Reason,
	}
}

// insertRow converts a row struct to snake_case columns and inserts it.
// Empty strings are left out and stored as NULL.
func insertRow(conn *sqlite.Conn, verb, table string, row interface{}) error {
	m := lower(structs.Map(row)).(map[string]interface{})

	columns := make([]string, 0, len(m))
	for column := range m {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	placeholders := make([]string, len(columns))
	values := make([]interface{}, len(columns))
	for i, column := range columns {
		placeholders[i] = "?"
		values[i] = m[column]
	}

	query := fmt.Sprintf("%s INTO %s (%s) VALUES (%s)", // #nosec
		verb, table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	return sqlitex.Exec(conn, query, nil, values...)
}

func lower(f interface{}) interface{} {
	switch f := f.(type) {
	case []interface{}:
		for i := range f {
			if !isEmptyValue(reflect.ValueOf(f[i])) {
				f[i] = lower(f[i])
			}
		}
		return f
	case map[string]interface{}:
		lf := make(map[string]interface{}, len(f))
		for k, v := range f {
			if !isEmptyValue(reflect.ValueOf(v)) {
				lf[strcase.ToSnake(k)] = lower(v)
			}
		}
		return lf
	default:
		return f
	}
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	case reflect.Invalid:
		return true
	}
	return false
}
