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
	"os"
	"path"
	"strings"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/pkg/errors"
)

// Run inputs and reports are kept in an sqlar table, so they can be
// extracted with the sqlite3 command line tool (sqlite3 -Ax).

func archive(conn *sqlite.Conn, name string, data []byte, mtime time.Time) error {
	name = normalizeFilename(name)
	stmt := conn.Prep(`INSERT INTO sqlar (name, mode, mtime, sz, data) VALUES ($name, $mode, $mtime, $sz, $data)`)
	defer stmt.Reset() // nolint:errcheck

	stmt.SetText("$name", name)
	stmt.SetInt64("$mode", 0100644)
	stmt.SetInt64("$mtime", mtime.Unix())
	stmt.SetInt64("$sz", int64(len(data)))
	stmt.SetBytes("$data", data)

	if _, err := stmt.Step(); err != nil {
		return errors.Wrapf(err, "could not archive %s", name)
	}
	return nil
}

// Attachments lists the names of the files archived with a run.
func (store *TimelineStore) Attachments(runID string) ([]string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	prefix := normalizeFilename(runID) + "/"
	var names []string
	err := sqlitex.Exec(store.cursor, "SELECT name FROM sqlar WHERE substr(name, 1, length(?)) = ? ORDER BY name",
		func(stmt *sqlite.Stmt) error {
			names = append(names, strings.TrimPrefix(stmt.GetText("name"), prefix))
			return nil
		}, prefix, prefix)
	return names, err
}

// Attachment returns an archived file of a run.
func (store *TimelineStore) Attachment(runID, name string) ([]byte, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	stmt := store.cursor.Prep("SELECT sz, data FROM sqlar WHERE name = $name")
	defer stmt.Reset() // nolint:errcheck
	stmt.SetText("$name", normalizeFilename(path.Join(runID, name)))

	hasRow, err := stmt.Step()
	if err != nil {
		return nil, err
	}
	if !hasRow {
		return nil, os.ErrNotExist
	}
	data := make([]byte, stmt.GetLen("data"))
	stmt.GetBytes("data", data)
	if int64(len(data)) != stmt.GetInt64("sz") {
		return nil, errors.Errorf("%s is compressed", name)
	}
	return data, nil
}

func normalizeFilename(name string) string {
	if name == "." || name == "" || name == "/" {
		return "/"
	}
	name = strings.ReplaceAll(name, "\\", "/")
	name = "/" + strings.Trim(name, "/")
	return name
}
