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

// Package apptimeline persists application activity timelines. A timeline
// store is a single SQLite file holding the identities, events and segments
// of every analysis run together with the diagnostics explaining what was
// left out.
package apptimeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/pkg/errors"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

const timelineVersion = 1
const timelineApplicationID = 1634759028

// ErrStoreExists is returned by New if the file is already present.
var ErrStoreExists = fmt.Errorf("store already exists")

// ErrStoreNotExists is returned by Open if the file is missing.
var ErrStoreNotExists = fmt.Errorf("store does not exist")

// ErrRunNotFound is returned for unknown or incomplete runs.
var ErrRunNotFound = fmt.Errorf("run not found")

const schema = `
CREATE TABLE runs (
  run_id TEXT PRIMARY KEY,
  started_at TEXT NOT NULL,
  complete INTEGER NOT NULL DEFAULT 0,
  summary TEXT
);
CREATE TABLE identities (
  identity_id TEXT PRIMARY KEY,
  canonical_name TEXT NOT NULL,
  first_run TEXT NOT NULL REFERENCES runs(run_id)
);
CREATE TABLE identity_aliases (
  identity_id TEXT NOT NULL REFERENCES identities(identity_id),
  source_kind TEXT NOT NULL,
  raw_key TEXT NOT NULL,
  PRIMARY KEY (identity_id, source_kind, raw_key)
);
CREATE TABLE events (
  event_id TEXT PRIMARY KEY,
  run_id TEXT NOT NULL REFERENCES runs(run_id),
  identity_id TEXT NOT NULL REFERENCES identities(identity_id),
  event_type TEXT NOT NULL,
  type_rank INTEGER NOT NULL,
  timestamp_utc TEXT NOT NULL,
  source_kind TEXT NOT NULL,
  source_confidence INTEGER NOT NULL,
  raw_ref TEXT,
  raw_app_key TEXT NOT NULL,
  raw_timestamp TEXT NOT NULL,
  payload TEXT,
  UNIQUE (source_kind, raw_app_key, raw_timestamp, event_type)
);
CREATE INDEX events_timeline ON events (identity_id, timestamp_utc);
CREATE TABLE segments (
  run_id TEXT NOT NULL REFERENCES runs(run_id),
  segment_id TEXT NOT NULL,
  identity_id TEXT NOT NULL REFERENCES identities(identity_id),
  start_utc TEXT NOT NULL,
  end_utc TEXT NOT NULL,
  terminated INTEGER NOT NULL,
  source_kinds TEXT NOT NULL,
  corroboration TEXT NOT NULL,
  conflict_flag INTEGER NOT NULL,
  conflict TEXT,
  PRIMARY KEY (run_id, segment_id)
);
CREATE TABLE segment_events (
  run_id TEXT NOT NULL,
  segment_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  event_id TEXT NOT NULL REFERENCES events(event_id),
  PRIMARY KEY (run_id, segment_id, position),
  FOREIGN KEY (run_id, segment_id) REFERENCES segments(run_id, segment_id)
);
CREATE TABLE diagnostics (
  run_id TEXT NOT NULL REFERENCES runs(run_id),
  source_kind TEXT NOT NULL,
  category TEXT NOT NULL,
  reason TEXT NOT NULL,
  raw_ref TEXT,
  detail TEXT
);
CREATE TABLE unresolved (
  run_id TEXT NOT NULL REFERENCES runs(run_id),
  event_id TEXT NOT NULL,
  source_kind TEXT NOT NULL,
  raw_app_key TEXT NOT NULL,
  raw_timestamp TEXT NOT NULL,
  event_type TEXT NOT NULL,
  reason TEXT NOT NULL
);
CREATE TABLE sqlar (
  name TEXT PRIMARY KEY,
  mode INT,
  mtime INT,
  sz INT,
  data BLOB
);
CREATE VIRTUAL TABLE identity_search
  USING fts5(identity_id UNINDEXED, canonical_name, aliases, tokenize="unicode61 tokenchars '/._-'");

CREATE VIEW latest_run AS
  SELECT run_id FROM runs WHERE complete = 1 ORDER BY started_at DESC, rowid DESC LIMIT 1;
CREATE VIEW timeline AS
  SELECT segments.*, identities.canonical_name FROM segments
  JOIN identities ON segments.identity_id = identities.identity_id
  WHERE segments.run_id IN (SELECT run_id FROM latest_run);
CREATE VIEW conflicts AS
  SELECT * FROM timeline WHERE conflict_flag = 1;
CREATE VIEW single_source_segments AS
  SELECT * FROM timeline WHERE corroboration = 'single-source';
`

// The TimelineStore is the persisted, queryable result of the analysis
// runs on one device. Writes are append-only per run: a run is committed as
// a whole and readers only ever see complete runs. All access to the single
// connection is serialized.
type TimelineStore struct {
	mu     sync.Mutex
	cursor *sqlite.Conn
}

var _ gotimeline.Store = (*TimelineStore)(nil)

// New creates a new timeline store.
func New(url string) (*TimelineStore, error) {
	return open(url, true)
}

// Open opens an existing timeline store.
func Open(url string) (*TimelineStore, error) {
	return open(url, false)
}

func pragma(conn *sqlite.Conn, name string) (int64, error) {
	stmt, err := conn.Prepare("PRAGMA " + name)
	if err != nil {
		return 0, err
	}
	_, err = stmt.Step()
	if err != nil {
		return 0, err
	}
	i := stmt.GetInt64(name)
	return i, stmt.Finalize()
}

func setPragma(conn *sqlite.Conn, name string, i int64) error {
	stmt, err := conn.Prepare("PRAGMA " + name + " = " + fmt.Sprint(i))
	if err != nil {
		return err
	}
	_, err = stmt.Step()
	if err != nil {
		return err
	}
	return stmt.Finalize()
}

func open(url string, create bool) (*TimelineStore, error) {
	if url != ":memory:" {
		exists := true
		_, err := os.Stat(url)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			exists = false
		}

		if create && exists {
			return nil, ErrStoreExists
		}
		if !create && !exists {
			return nil, ErrStoreNotExists
		}

		if create {
			if err := os.MkdirAll(filepath.Dir(url), 0750); err != nil {
				return nil, err
			}
		}
	}

	cursor, err := sqlite.OpenConn(url, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", url)
	}
	store := &TimelineStore{cursor: cursor}

	if err := setPragma(cursor, "foreign_keys", 1); err != nil {
		cursor.Close() // nolint:errcheck
		return nil, err
	}

	if create {
		err = store.setup()
	} else {
		err = store.check()
	}
	if err != nil {
		cursor.Close() // nolint:errcheck
		return nil, err
	}
	return store, nil
}

func (store *TimelineStore) setup() (err error) {
	defer sqlitex.Save(store.cursor)(&err)

	if err := setPragma(store.cursor, "application_id", timelineApplicationID); err != nil {
		return err
	}
	if err := setPragma(store.cursor, "user_version", timelineVersion); err != nil {
		return err
	}
	if err := sqlitex.ExecScript(store.cursor, schema); err != nil {
		return errors.Wrap(err, "could not create schema")
	}
	return nil
}

func (store *TimelineStore) check() error {
	applicationID, err := pragma(store.cursor, "application_id")
	if err != nil {
		return err
	}
	if applicationID != timelineApplicationID {
		msg := "wrong file format (application_id is %d, requires %d)"
		return fmt.Errorf(msg, applicationID, timelineApplicationID)
	}

	version, err := pragma(store.cursor, "user_version")
	if err != nil {
		return err
	}
	if version != timelineVersion {
		msg := "wrong file format (user_version is %d, requires %d)"
		return fmt.Errorf(msg, version, timelineVersion)
	}
	return nil
}

// Close closes the database.
func (store *TimelineStore) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.cursor.Close()
}

/* ################################
#   Commit
################################ */

// Commit writes a whole run inside one savepoint. Events already known from
// an earlier run are kept once. Any error rolls the run back completely.
func (store *TimelineStore) Commit(run *gotimeline.Run) (err error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	defer sqlitex.Save(store.cursor)(&err)

	if run.ID == "" {
		return errors.New("run without id")
	}
	conn := store.cursor

	err = insertRow(conn, "INSERT", "runs", runRow{
		RunID:     run.ID,
		StartedAt: run.StartedAt.UTC().Format(gotimeline.TimeFormat),
	})
	if err != nil {
		return errors.Wrapf(err, "could not insert run %s", run.ID)
	}

	for _, identity := range run.Identities {
		if err := insertIdentity(conn, run.ID, identity); err != nil {
			return err
		}
	}

	for _, event := range run.Events {
		if err := event.Validate(); err != nil {
			return err
		}
		row, err := newEventRow(run.ID, event)
		if err != nil {
			return err
		}
		if err := insertRow(conn, "INSERT OR IGNORE", "events", row); err != nil {
			return errors.Wrapf(err, "could not insert event %s", event.ID)
		}
	}

	for _, segment := range run.Segments {
		if err := insertSegment(conn, run.ID, segment); err != nil {
			return err
		}
	}

	for _, diagnostic := range run.Diagnostics {
		if err := insertRow(conn, "INSERT", "diagnostics", newDiagnosticRow(run.ID, diagnostic)); err != nil {
			return errors.Wrap(err, "could not insert diagnostic")
		}
	}

	for _, unresolved := range run.Unresolved {
		if err := insertRow(conn, "INSERT", "unresolved", newUnresolvedRow(run.ID, unresolved)); err != nil {
			return errors.Wrap(err, "could not insert unresolved event")
		}
	}

	for _, attachment := range run.Attachments {
		if err := archive(conn, run.ID+"/"+attachment.Name, attachment.Data, run.StartedAt); err != nil {
			return err
		}
	}

	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return err
	}
	err = sqlitex.Exec(conn, "UPDATE runs SET complete = 1, summary = ? WHERE run_id = ?", nil, string(summary), run.ID)
	return errors.Wrap(err, "could not complete run")
}

func insertIdentity(conn *sqlite.Conn, runID string, identity gotimeline.AppIdentity) error {
	err := insertRow(conn, "INSERT OR IGNORE", "identities", identityRow{
		IdentityID:    identity.ID,
		CanonicalName: identity.CanonicalName,
		FirstRun:      runID,
	})
	if err != nil {
		return errors.Wrapf(err, "could not insert identity %s", identity.ID)
	}
	for _, alias := range identity.Aliases {
		err := insertRow(conn, "INSERT OR IGNORE", "identity_aliases", aliasRow{
			IdentityID: identity.ID,
			SourceKind: alias.SourceKind,
			RawKey:     alias.RawKey,
		})
		if err != nil {
			return errors.Wrapf(err, "could not insert alias %s of %s", alias.RawKey, identity.ID)
		}
	}

	// the search index always carries all aliases known so far
	var aliases []string
	err = sqlitex.Exec(conn, "SELECT raw_key FROM identity_aliases WHERE identity_id = ? ORDER BY source_kind, raw_key",
		func(stmt *sqlite.Stmt) error {
			aliases = append(aliases, stmt.GetText("raw_key"))
			return nil
		}, identity.ID)
	if err != nil {
		return err
	}
	if err := sqlitex.Exec(conn, "DELETE FROM identity_search WHERE identity_id = ?", nil, identity.ID); err != nil {
		return err
	}
	return sqlitex.Exec(conn, "INSERT INTO identity_search (identity_id, canonical_name, aliases) VALUES (?, ?, ?)", nil,
		identity.ID, identity.CanonicalName, strings.Join(aliases, " "))
}

func insertSegment(conn *sqlite.Conn, runID string, segment gotimeline.Segment) error {
	row, err := newSegmentRow(runID, segment)
	if err != nil {
		return err
	}
	if err := insertRow(conn, "INSERT", "segments", row); err != nil {
		return errors.Wrapf(err, "could not insert segment %s", segment.ID)
	}
	for i, eventID := range segment.Events {
		err := insertRow(conn, "INSERT", "segment_events", segmentEventRow{
			RunID:     runID,
			SegmentID: segment.ID,
			Position:  i,
			EventID:   eventID,
		})
		if err != nil {
			return errors.Wrapf(err, "could not attach event %s to segment %s", eventID, segment.ID)
		}
	}
	return nil
}
