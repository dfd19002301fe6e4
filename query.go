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
	"strings"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/pkg/errors"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

// Element is a single result row of a free SQL query.
type Element map[string]interface{}

// RunInfo describes one complete run.
type RunInfo struct {
	ID        string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

const segmentColumns = "run_id, segment_id, identity_id, start_utc, end_utc, terminated, " +
	"source_kinds, corroboration, conflict"

// Runs lists the complete runs, oldest first.
func (store *TimelineStore) Runs() ([]RunInfo, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var runs []RunInfo
	err := sqlitex.Exec(store.cursor, "SELECT run_id, started_at FROM runs WHERE complete = 1 ORDER BY started_at, rowid",
		func(stmt *sqlite.Stmt) error {
			started, err := time.Parse(gotimeline.TimeFormat, stmt.GetText("started_at"))
			if err != nil {
				return err
			}
			runs = append(runs, RunInfo{ID: stmt.GetText("run_id"), StartedAt: started})
			return nil
		})
	return runs, err
}

// Summary returns the summary of a complete run. An empty runID selects the
// latest run.
func (store *TimelineStore) Summary(runID string) (*gotimeline.Summary, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	query := "SELECT summary FROM runs WHERE complete = 1 AND run_id = ?"
	args := []interface{}{runID}
	if runID == "" {
		query = "SELECT summary FROM runs WHERE run_id IN (SELECT run_id FROM latest_run)"
		args = nil
	}

	var summary *gotimeline.Summary
	err := sqlitex.Exec(store.cursor, query, func(stmt *sqlite.Stmt) error {
		summary = &gotimeline.Summary{}
		return json.Unmarshal([]byte(stmt.GetText("summary")), summary)
	}, args...)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, ErrRunNotFound
	}
	return summary, nil
}

// Identities returns all identities ordered by canonical name.
func (store *TimelineStore) Identities() ([]gotimeline.AppIdentity, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.identities("", nil)
}

// Search returns the identities whose canonical name or aliases contain a
// token starting with every term of q.
func (store *TimelineStore) Search(q string) ([]gotimeline.AppIdentity, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var terms []string
	for _, term := range strings.Fields(q) {
		terms = append(terms, `"`+strings.ReplaceAll(term, `"`, `""`)+`"*`)
	}
	if len(terms) == 0 {
		return nil, nil
	}

	var ids []string
	err := sqlitex.Exec(store.cursor, "SELECT identity_id FROM identity_search WHERE identity_search = ? ORDER BY rank",
		func(stmt *sqlite.Stmt) error {
			ids = append(ids, stmt.GetText("identity_id"))
			return nil
		}, strings.Join(terms, " "))
	if err != nil {
		return nil, errors.Wrapf(err, "could not search %q", q)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	found, err := store.identities("WHERE identities.identity_id IN ("+placeholders(len(ids))+")", toArgs(ids))
	if err != nil {
		return nil, err
	}
	byID := map[string]gotimeline.AppIdentity{}
	for _, identity := range found {
		byID[identity.ID] = identity
	}
	identities := make([]gotimeline.AppIdentity, 0, len(ids))
	for _, id := range ids {
		identities = append(identities, byID[id])
	}
	return identities, nil
}

func (store *TimelineStore) identities(where string, args []interface{}) ([]gotimeline.AppIdentity, error) {
	query := "SELECT identities.identity_id, canonical_name, source_kind, raw_key FROM identities " +
		"LEFT JOIN identity_aliases ON identities.identity_id = identity_aliases.identity_id " + where +
		" ORDER BY canonical_name, identities.identity_id, source_kind, raw_key"

	var identities []gotimeline.AppIdentity
	err := sqlitex.Exec(store.cursor, query, func(stmt *sqlite.Stmt) error {
		id := stmt.GetText("identity_id")
		if len(identities) == 0 || identities[len(identities)-1].ID != id {
			identities = append(identities, gotimeline.AppIdentity{
				ID:            id,
				CanonicalName: stmt.GetText("canonical_name"),
			})
		}
		if key := stmt.GetText("raw_key"); key != "" {
			last := &identities[len(identities)-1]
			last.Aliases = append(last.Aliases, gotimeline.Alias{
				SourceKind: gotimeline.SourceKind(stmt.GetText("source_kind")),
				RawKey:     key,
			})
		}
		return nil
	}, args...)
	return identities, err
}

// Events returns all stored events of an identity in timeline order.
func (store *TimelineStore) Events(identityID string) ([]gotimeline.Event, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	query := "SELECT event_id, identity_id, event_type, timestamp_utc, source_kind, source_confidence, " +
		"raw_ref, raw_app_key, raw_timestamp, payload FROM events WHERE identity_id = ? " +
		"ORDER BY timestamp_utc, source_confidence DESC, source_kind, type_rank, event_id"

	var events []gotimeline.Event
	err := sqlitex.Exec(store.cursor, query, func(stmt *sqlite.Stmt) error {
		ts, err := time.Parse(gotimeline.TimeFormat, stmt.GetText("timestamp_utc"))
		if err != nil {
			return err
		}
		e := gotimeline.Event{
			ID:               stmt.GetText("event_id"),
			IdentityID:       stmt.GetText("identity_id"),
			Type:             gotimeline.EventType(stmt.GetText("event_type")),
			Timestamp:        ts,
			SourceKind:       gotimeline.SourceKind(stmt.GetText("source_kind")),
			SourceConfidence: int(stmt.GetInt64("source_confidence")),
			RawRef:           stmt.GetText("raw_ref"),
			RawAppKey:        stmt.GetText("raw_app_key"),
			RawTimestamp:     stmt.GetText("raw_timestamp"),
		}
		if payload := stmt.GetText("payload"); payload != "" {
			if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
				return err
			}
		}
		events = append(events, e)
		return nil
	}, identityID)
	return events, err
}

// Segments returns the segments of an identity from the latest run,
// ordered by start.
func (store *TimelineStore) Segments(identityID string) ([]gotimeline.Segment, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.segments("SELECT "+segmentColumns+" FROM timeline WHERE identity_id = ? ORDER BY start_utc, segment_id", identityID)
}

// Conflicts returns every segment of the latest run whose sources disagree.
func (store *TimelineStore) Conflicts() ([]gotimeline.Segment, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.segments("SELECT " + segmentColumns + " FROM conflicts ORDER BY canonical_name, identity_id, start_utc, segment_id")
}

// SingleSourceSegments returns every segment of the latest run attested by
// one source kind only.
func (store *TimelineStore) SingleSourceSegments() ([]gotimeline.Segment, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.segments("SELECT " + segmentColumns + " FROM single_source_segments ORDER BY canonical_name, identity_id, start_utc, segment_id")
}

func (store *TimelineStore) segments(query string, args ...interface{}) ([]gotimeline.Segment, error) {
	var segments []gotimeline.Segment
	var runID string
	err := sqlitex.Exec(store.cursor, query, func(stmt *sqlite.Stmt) error {
		runID = stmt.GetText("run_id")
		s, err := scanSegment(stmt)
		if err != nil {
			return err
		}
		segments = append(segments, s)
		return nil
	}, args...)
	if err != nil {
		return nil, err
	}

	for i := range segments {
		err := sqlitex.Exec(store.cursor,
			"SELECT event_id FROM segment_events WHERE run_id = ? AND segment_id = ? ORDER BY position",
			func(stmt *sqlite.Stmt) error {
				segments[i].Events = append(segments[i].Events, stmt.GetText("event_id"))
				return nil
			}, runID, segments[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return segments, nil
}

func scanSegment(stmt *sqlite.Stmt) (gotimeline.Segment, error) {
	start, err := time.Parse(gotimeline.TimeFormat, stmt.GetText("start_utc"))
	if err != nil {
		return gotimeline.Segment{}, err
	}
	end, err := time.Parse(gotimeline.TimeFormat, stmt.GetText("end_utc"))
	if err != nil {
		return gotimeline.Segment{}, err
	}

	s := gotimeline.Segment{
		ID:            stmt.GetText("segment_id"),
		IdentityID:    stmt.GetText("identity_id"),
		Start:         start,
		End:           end,
		Terminated:    stmt.GetInt64("terminated") != 0,
		Corroboration: gotimeline.Corroboration(stmt.GetText("corroboration")),
	}
	for _, kind := range strings.Split(stmt.GetText("source_kinds"), ",") {
		if kind != "" {
			s.SourceKinds = append(s.SourceKinds, gotimeline.SourceKind(kind))
		}
	}
	if conflict := stmt.GetText("conflict"); conflict != "" {
		s.Conflict = &gotimeline.Conflict{}
		if err := json.Unmarshal([]byte(conflict), s.Conflict); err != nil {
			return gotimeline.Segment{}, err
		}
	}
	return s, nil
}

// runSelector selects a complete run by id, or the latest run for an empty id.
const runSelector = "SELECT run_id FROM runs WHERE complete = 1 AND run_id = ?1 " +
	"UNION SELECT run_id FROM latest_run WHERE ?1 = ''"

// Diagnostics returns the diagnostics of a complete run. An empty runID
// selects the latest run.
func (store *TimelineStore) Diagnostics(runID string) ([]gotimeline.Diagnostic, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var diagnostics []gotimeline.Diagnostic
	err := sqlitex.Exec(store.cursor,
		"SELECT source_kind, category, reason, raw_ref, detail FROM diagnostics "+
			"WHERE run_id IN ("+runSelector+") ORDER BY rowid",
		func(stmt *sqlite.Stmt) error {
			diagnostics = append(diagnostics, gotimeline.Diagnostic{
				SourceKind: gotimeline.SourceKind(stmt.GetText("source_kind")),
				Category:   gotimeline.Category(stmt.GetText("category")),
				Reason:     stmt.GetText("reason"),
				RawRef:     stmt.GetText("raw_ref"),
				Detail:     stmt.GetText("detail"),
			})
			return nil
		}, runID)
	return diagnostics, err
}

// Unresolved returns the events of a complete run that could not be
// assigned an identity. An empty runID selects the latest run.
func (store *TimelineStore) Unresolved(runID string) ([]gotimeline.Unresolved, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var unresolved []gotimeline.Unresolved
	err := sqlitex.Exec(store.cursor,
		"SELECT event_id, source_kind, raw_app_key, raw_timestamp, event_type, reason FROM unresolved "+
			"WHERE run_id IN ("+runSelector+") ORDER BY rowid",
		func(stmt *sqlite.Stmt) error {
			unresolved = append(unresolved, gotimeline.Unresolved{
				EventID:      stmt.GetText("event_id"),
				SourceKind:   gotimeline.SourceKind(stmt.GetText("source_kind")),
				RawAppKey:    stmt.GetText("raw_app_key"),
				RawTimestamp: stmt.GetText("raw_timestamp"),
				EventType:    gotimeline.EventType(stmt.GetText("event_type")),
				Reason:       stmt.GetText("reason"),
			})
			return nil
		}, runID)
	return unresolved, err
}

// Query executes a sql query.
func (store *TimelineStore) Query(query string) (elements []Element, err error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	stmt, err := store.cursor.Prepare(query)
	if err != nil {
		return nil, err
	}
	return rowsToElements(stmt)
}

func rowsToElements(stmt *sqlite.Stmt) (elements []Element, err error) {
	elements = []Element{}
	for {
		if hasRow, err := stmt.Step(); err != nil {
			stmt.Finalize() // nolint:errcheck
			return nil, err
		} else if !hasRow {
			break
		}
		element := Element{}
		for i := 0; i < stmt.ColumnCount(); i++ {
			name := stmt.ColumnName(i)
			switch stmt.ColumnType(i) {
			case sqlite.SQLITE_INTEGER:
				element[name] = stmt.ColumnInt64(i)
			case sqlite.SQLITE_FLOAT:
				element[name] = stmt.ColumnFloat(i)
			case sqlite.SQLITE_NULL:
				element[name] = nil
			case sqlite.SQLITE_BLOB:
				b := make([]byte, stmt.ColumnLen(i))
				stmt.ColumnBytes(i, b)
				element[name] = b
			default:
				element[name] = stmt.ColumnText(i)
			}
		}
		elements = append(elements, element)
	}
	return elements, stmt.Finalize()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
