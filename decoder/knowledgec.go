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

package decoder

import (
	"context"
	"fmt"
	"strings"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/pkg/errors"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

// AppUsageStream is the KnowledgeC stream recording application focus.
const AppUsageStream = "/app/usage"

// bundle identifier columns of ZSTRUCTUREDMETADATA across iOS versions
var bundleColumns = []string{
	"ZBUNDLEID",
	"Z_DKAPPLICATIONACTIVITYMETADATAKEY_BUNDLEID",
	"ZBUNDLEIDENTIFIER",
	"Z_DKBUNDLEID",
}

// KnowledgeC reads application usage intervals from a KnowledgeC database.
// Each interval yields a Foreground record at its start and a Background
// record at its end.
type KnowledgeC struct {
	Path string
}

// Kind of the records.
func (k *KnowledgeC) Kind() gotimeline.SourceKind { return gotimeline.KnowledgeC }

// Decode opens the database read-only and selects the app usage stream.
func (k *KnowledgeC) Decode(ctx context.Context) ([]gotimeline.RawRecord, []gotimeline.Diagnostic, error) {
	conn, err := sqlite.OpenConn(k.Path, sqlite.SQLITE_OPEN_READONLY|sqlite.SQLITE_OPEN_URI|sqlite.SQLITE_OPEN_NOMUTEX)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not open %s", k.Path)
	}
	defer conn.Close()

	query, err := knowledgeCQuery(conn)
	if err != nil {
		return nil, nil, err
	}

	var records []gotimeline.RawRecord
	var diagnostics []gotimeline.Diagnostic
	err = sqlitex.Exec(conn, query, func(stmt *sqlite.Stmt) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stream := stmt.GetText("stream")
		if stream != "" && stream != AppUsageStream {
			return nil
		}

		pk := stmt.GetInt64("event_pk")
		ref := fmt.Sprintf("%s:ZOBJECT/%d", k.Path, pk)
		key := stmt.GetText("bundle_id")
		if key == "" {
			key = stmt.GetText("valuestring")
		}
		if key == "" {
			diagnostics = append(diagnostics, skip(k.Kind(), "missing_app_key", ref, "no bundle id"))
			return nil
		}

		for _, boundary := range []struct{ column, label string }{
			{"start_mac", "ZSTARTDATE"},
			{"end_mac", "ZENDDATE"},
		} {
			raw := stmt.GetText(boundary.column)
			if raw == "" {
				diagnostics = append(diagnostics, skip(k.Kind(), "missing_timestamp", ref, boundary.label+" is null"))
				continue
			}
			records = append(records, gotimeline.RawRecord{
				SourceKind:   gotimeline.KnowledgeC,
				Platform:     gotimeline.IOS,
				RawTimestamp: raw,
				RawEpoch:     "cocoa_s",
				RawAppKey:    key,
				RawEvent:     boundary.label,
				Origin:       ref + ":" + boundary.label,
				Payload: map[string]interface{}{
					"stream":       stream,
					"z_pk":         pk,
					"value_string": stmt.GetText("valuestring"),
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not read ZOBJECT")
	}
	return records, diagnostics, nil
}

// knowledgeCQuery builds the select statement for the schema at hand.
func knowledgeCQuery(conn *sqlite.Conn) (string, error) {
	tables, err := tableNames(conn)
	if err != nil {
		return "", err
	}
	if !tables["ZOBJECT"] {
		return "", errors.New("not a KnowledgeC database: no ZOBJECT table")
	}

	fields := []string{
		"ZOBJECT.Z_PK AS event_pk",
		"CAST(ZOBJECT.ZSTARTDATE AS TEXT) AS start_mac",
		"CAST(ZOBJECT.ZENDDATE AS TEXT) AS end_mac",
		"ZOBJECT.ZVALUESTRING AS valuestring",
	}
	var joins []string

	objectColumns, err := columnNames(conn, "ZOBJECT")
	if err != nil {
		return "", err
	}
	switch {
	case tables["ZSTREAMNAME"]:
		fields = append(fields, "ZSTREAMNAME.ZSTREAMNAME AS stream")
		joins = append(joins, "LEFT JOIN ZSTREAMNAME ON ZOBJECT.ZSTREAMNAME = ZSTREAMNAME.Z_PK")
	case objectColumns["ZSTREAMNAME"]:
		fields = append(fields, "ZOBJECT.ZSTREAMNAME AS stream")
	default:
		fields = append(fields, "NULL AS stream")
	}

	bundle := ""
	if tables["ZSTRUCTUREDMETADATA"] {
		metaColumns, err := columnNames(conn, "ZSTRUCTUREDMETADATA")
		if err != nil {
			return "", err
		}
		for _, c := range bundleColumns {
			if metaColumns[c] {
				bundle = c
				break
			}
		}
	}
	if bundle != "" {
		fields = append(fields, "ZSTRUCTUREDMETADATA."+bundle+" AS bundle_id")
		joins = append(joins, "LEFT JOIN ZSTRUCTUREDMETADATA ON ZOBJECT.ZSTRUCTUREDMETADATA = ZSTRUCTUREDMETADATA.Z_PK")
	} else {
		fields = append(fields, "NULL AS bundle_id")
	}

	return fmt.Sprintf("SELECT %s FROM ZOBJECT %s ORDER BY ZOBJECT.ZSTARTDATE, ZOBJECT.Z_PK",
		strings.Join(fields, ", "), strings.Join(joins, " ")), nil
}

func tableNames(conn *sqlite.Conn) (map[string]bool, error) {
	names := map[string]bool{}
	err := sqlitex.Exec(conn, "SELECT name FROM sqlite_master WHERE type='table'", func(stmt *sqlite.Stmt) error {
		names[stmt.GetText("name")] = true
		return nil
	})
	return names, err
}

func columnNames(conn *sqlite.Conn, table string) (map[string]bool, error) {
	names := map[string]bool{}
	err := sqlitex.Exec(conn, fmt.Sprintf("PRAGMA table_info (\"%s\")", table), func(stmt *sqlite.Stmt) error {
		names[stmt.GetText("name")] = true
		return nil
	})
	return names, err
}
