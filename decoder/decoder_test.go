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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/apptimeline/gotimeline"
	"github.com/forensicanalysis/apptimeline/normalizer"
)

const usageLines = `{"source_kind": "usagestats", "device_platform": "Android", "raw_timestamp": 1700000000000, "raw_app_key": "com.x.y", "raw_event": "ACTIVITY_RESUMED", "payload": {"class": "com.x.y.Main"}}

{"source_kind": "usagestats", "raw_timestamp": "1700000005000", "raw_app_key": "com.x.y", "raw_event": 2, "origin": "usagestats/0/daily/1700000000000:7"}
{"source_kind": "usagestats", "raw_app_key": "com.x.y", "raw_event": "ACTIVITY_PAUSED"}
{"source_kind": "recent_tasks", "raw_timestamp": 1700000001200, "raw_app_key": "com.x.y", "raw_event": "LAST_TIME_MOVED"}
not json
{"source_kind": "usagestats", "raw_timestamp": 17000000000001.25, "raw_app_key": "com.x.y", "raw_event": "ACTIVITY_PAUSED"}
`

func TestJSONLines(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/in/usagestats.jsonl", []byte(usageLines), 0644))

	d := &JSONLines{Fs: fs, Path: "/in/usagestats.jsonl", Source: gotimeline.UsageStats}
	assert.Equal(t, gotimeline.UsageStats, d.Kind())

	records, diagnostics, err := d.Decode(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, "1700000000000", records[0].RawTimestamp)
	assert.Equal(t, gotimeline.Android, records[0].Platform)
	assert.Equal(t, "/in/usagestats.jsonl:1", records[0].Origin)
	assert.Equal(t, "com.x.y.Main", records[0].Payload["class"])
	assert.Equal(t, "2", records[1].RawEvent)
	assert.Equal(t, "usagestats/0/daily/1700000000000:7", records[1].Origin)
	assert.Equal(t, "17000000000001.25", records[2].RawTimestamp)

	require.Len(t, diagnostics, 3)
	assert.Equal(t, "schema", diagnostics[0].Reason)
	assert.Equal(t, "/in/usagestats.jsonl:4", diagnostics[0].RawRef)
	assert.Equal(t, "source_kind", diagnostics[1].Reason)
	assert.Equal(t, "invalid_json", diagnostics[2].Reason)
	for _, diagnostic := range diagnostics {
		assert.Equal(t, gotimeline.CategoryDecode, diagnostic.Category)
	}

	_, _, err = (&JSONLines{Fs: fs, Path: "/in/missing.jsonl", Source: gotimeline.UsageStats}).Decode(context.Background())
	assert.Error(t, err)
}

func createKnowledgeC(t *testing.T, script string) string {
	p := filepath.Join(t.TempDir(), "knowledgeC.db")
	conn, err := sqlite.OpenConn(p, sqlite.SQLITE_OPEN_READWRITE|sqlite.SQLITE_OPEN_CREATE)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, sqlitex.ExecScript(conn, script))
	return p
}

func TestKnowledgeC(t *testing.T) {
	p := createKnowledgeC(t, `
CREATE TABLE ZOBJECT (Z_PK INTEGER PRIMARY KEY, ZSTARTDATE REAL, ZENDDATE REAL, ZVALUESTRING TEXT, ZSTREAMNAME TEXT, ZSTRUCTUREDMETADATA INTEGER);
CREATE TABLE ZSTRUCTUREDMETADATA (Z_PK INTEGER PRIMARY KEY, Z_DKAPPLICATIONACTIVITYMETADATAKEY_BUNDLEID TEXT);
INSERT INTO ZSTRUCTUREDMETADATA VALUES (1, 'com.apple.mobilesafari');
INSERT INTO ZOBJECT VALUES (1, 700000000.0, 700000600.5, 'com.apple.mobilesafari', '/app/usage', 1);
INSERT INTO ZOBJECT VALUES (2, 700000700.0, NULL, 'com.apple.MobileSMS', '/app/usage', NULL);
INSERT INTO ZOBJECT VALUES (3, 700000800.0, 700000900.0, 'com.apple.Maps', '/app/inFocus', NULL);
INSERT INTO ZOBJECT VALUES (4, 700001000.0, 700001100.0, NULL, '/app/usage', NULL);
`)

	d := &KnowledgeC{Path: p}
	assert.Equal(t, gotimeline.KnowledgeC, d.Kind())
	records, diagnostics, err := d.Decode(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, "com.apple.mobilesafari", records[0].RawAppKey)
	assert.Equal(t, "700000000.0", records[0].RawTimestamp)
	assert.Equal(t, "ZSTARTDATE", records[0].RawEvent)
	assert.Equal(t, "cocoa_s", records[0].RawEpoch)
	assert.Equal(t, "700000600.5", records[1].RawTimestamp)
	assert.Equal(t, "ZENDDATE", records[1].RawEvent)
	assert.Equal(t, "com.apple.MobileSMS", records[2].RawAppKey)

	require.Len(t, diagnostics, 2)
	assert.Equal(t, "missing_timestamp", diagnostics[0].Reason)
	assert.Equal(t, "missing_app_key", diagnostics[1].Reason)
}

func TestKnowledgeCNotADatabase(t *testing.T) {
	p := createKnowledgeC(t, `CREATE TABLE other (id INTEGER);`)
	_, _, err := (&KnowledgeC{Path: p}).Decode(context.Background())
	assert.Error(t, err)
}

func TestSnapshotListingAndroid(t *testing.T) {
	fs := afero.NewMemMapFs()
	mtime := time.Date(2023, 11, 15, 7, 13, 21, 0, time.UTC)
	for _, name := range []string{
		"/snapshots/12.jpg",
		"/snapshots/13_reduced.jpg",
		"/snapshots/99.jpg",
		"/snapshots/notes.txt",
		"/snapshots/com.x.y/77.png",
	} {
		require.NoError(t, afero.WriteFile(fs, name, []byte("img"), 0644))
		require.NoError(t, fs.Chtimes(name, mtime, mtime))
	}

	tasks, err := LoadTaskMap(strings.NewReader("\"12\": com.x.y\n\"13\": com.android.chrome\n"))
	require.NoError(t, err)

	d := &SnapshotListing{Fs: fs, Root: "/snapshots", Platform: gotimeline.Android, TaskMap: tasks}
	assert.Equal(t, gotimeline.AndroidSnapshot, d.Kind())
	records, diagnostics, err := d.Decode(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 3)
	keys := map[string]string{}
	for _, r := range records {
		keys[r.Origin] = r.RawAppKey
		assert.Equal(t, "2023-11-15 07:13:21.000", r.RawTimestamp)
		assert.Equal(t, "MTIME", r.RawEvent)
	}
	assert.Equal(t, map[string]string{
		"/snapshots/12.jpg":         "com.x.y",
		"/snapshots/13_reduced.jpg": "com.android.chrome",
		"/snapshots/com.x.y/77.png": "com.x.y",
	}, keys)

	require.Len(t, diagnostics, 1)
	assert.Equal(t, "/snapshots/99.jpg", diagnostics[0].RawRef)
	assert.Equal(t, "missing_app_key", diagnostics[0].Reason)

	_, _, err = (&SnapshotListing{Fs: fs, Root: "/missing"}).Decode(context.Background())
	assert.Error(t, err)
}

func TestSnapshotListingAndroidIgnoresHostZone(t *testing.T) {
	local := time.Local
	time.Local = time.FixedZone("KST", 9*60*60)
	defer func() { time.Local = local }()

	root := t.TempDir()
	name := filepath.Join(root, "com.x.y", "12.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte("img"), 0o644))
	mtime := time.Date(2023, 11, 15, 7, 13, 21, 0, time.UTC)
	require.NoError(t, os.Chtimes(name, mtime, mtime))

	d := &SnapshotListing{Fs: afero.NewOsFs(), Root: root, Platform: gotimeline.Android}
	records, diagnostics, err := d.Decode(context.Background())
	require.NoError(t, err)
	require.Empty(t, diagnostics)
	require.Len(t, records, 1)
	assert.Equal(t, "2023-11-15 07:13:21.000", records[0].RawTimestamp)

	n := normalizer.New(normalizer.Config{PlausibleUntil: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)})
	e, err := n.NormalizeRecord(records[0])
	require.NoError(t, err)
	assert.True(t, mtime.Equal(e.Timestamp), "got %s", e.Timestamp)
}

func TestSnapshotListingIOS(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, name := range []string{
		"/Snapshots/sceneID:com.apple.mobilesafari-default/20231115_071322.ktx",
		"/Snapshots/com.apple.mobilesafari - {DEFAULT GROUP}/20231115_071322.ktx",
		"/Snapshots/com.apple.Maps/downscaled.ktx",
	} {
		require.NoError(t, afero.WriteFile(fs, name, []byte("ktx"), 0644))
	}

	d := &SnapshotListing{Fs: fs, Root: "/Snapshots", Platform: gotimeline.IOS}
	assert.Equal(t, gotimeline.IOSSnapshot, d.Kind())
	records, diagnostics, err := d.Decode(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "sceneID:com.apple.mobilesafari-default", records[0].RawAppKey)
	assert.Equal(t, "20231115_071322.ktx", records[0].RawTimestamp)
	assert.Equal(t, "filename_stamp", records[0].RawEpoch)

	require.Len(t, diagnostics, 2)
	reasons := []string{diagnostics[0].Reason, diagnostics[1].Reason}
	assert.ElementsMatch(t, []string{"default_group", "missing_timestamp"}, reasons)
}

func TestSnapshotTriples(t *testing.T) {
	d := &SnapshotTriples{Source: gotimeline.IOSSnapshot, Triples: []Triple{
		{AppKeyHint: "com.b", CaptureTimestamp: "20231115_071322", ImagePath: "b.png"},
		{AppKeyHint: "com.a", CaptureTimestamp: "20231115_071300", ImagePath: "a.png"},
		{AppKeyHint: "com.c", ImagePath: "c.png"},
	}}
	records, diagnostics, err := d.Decode(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "com.a", records[0].RawAppKey)
	assert.Equal(t, gotimeline.IOS, records[0].Platform)
	assert.Equal(t, "SnapshotCaptured", records[0].RawEvent)
	require.Len(t, diagnostics, 1)
	assert.Equal(t, "c.png", diagnostics[0].RawRef)

	_, _, err = (&SnapshotTriples{Source: gotimeline.UsageStats}).Decode(context.Background())
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	failing := &Static{Source: gotimeline.RecentTasks, Err: errors.New("broken xml")}
	_, _, err := failing.Decode(context.Background())
	assert.Error(t, err)

	records := []gotimeline.RawRecord{{SourceKind: gotimeline.RecentTasks, RawAppKey: "com.x.y"}}
	d := &Static{Source: gotimeline.RecentTasks, Records: records}
	got, _, err := d.Decode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, records, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = d.Decode(ctx)
	assert.Error(t, err)
}
