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

package normalizer

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

var runTime = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func testNormalizer(offset time.Duration) *Normalizer {
	return New(Config{DeviceOffset: offset, PlausibleUntil: runTime})
}

func TestConvert(t *testing.T) {
	kst := 9 * time.Hour
	tests := []struct {
		name    string
		epoch   Epoch
		raw     string
		offset  time.Duration
		want    string
		wantErr error
	}{
		{"unix ms", UnixMillis, "1700000000000", 0, "2023-11-14T22:13:20.000Z", nil},
		{"unix ms with fraction", UnixMillis, "1700000000000.9", 0, "2023-11-14T22:13:20.000Z", nil},
		{"unix ms unparsable", UnixMillis, "17e11", 0, "", ErrUnparsable},
		{"unix ms overflow", UnixMillis, "99999999999999999999", 0, "", ErrOutOfRange},
		{"cocoa seconds", CocoaSeconds, "700000000", 0, "2023-03-08T20:26:40.000Z", nil},
		{"cocoa fraction exact", CocoaSeconds, "700000000.123", 0, "2023-03-08T20:26:40.123Z", nil},
		{"cocoa fraction truncated", CocoaSeconds, "700000000.1239", 0, "2023-03-08T20:26:40.123Z", nil},
		{"cocoa negative", CocoaSeconds, "-1.5", 0, "2000-12-31T23:59:58.500Z", nil},
		{"cocoa reference", CocoaSeconds, "0", 0, "2001-01-01T00:00:00.000Z", nil},
		{"cocoa unparsable", CocoaSeconds, "yesterday", 0, "", ErrUnparsable},
		{"wall clock", LocalWallClock, "2023-03-09 05:26:40", kst, "2023-03-08T20:26:40.000Z", nil},
		{"wall clock ms", LocalWallClock, "2023-03-09 05:26:40.250", kst, "2023-03-08T20:26:40.250Z", nil},
		{"wall clock explicit zone", LocalWallClock, "2023-03-09T05:26:40+09:00", 0, "2023-03-08T20:26:40.000Z", nil},
		{"wall clock unparsable", LocalWallClock, "09/03/2023", kst, "", ErrUnparsable},
		{"file name stamp", FilenameStamp, "com.apple.mobilesafari/20230309_052640.ktx", kst, "2023-03-08T20:26:40.000Z", nil},
		{"file name stamp without offset", FilenameStamp, "20230308_202640", 0, "2023-03-08T20:26:40.000Z", nil},
		{"file name without stamp", FilenameStamp, "snapshot.ktx", kst, "", ErrUnparsable},
		{"file name invalid date", FilenameStamp, "20231399_000000", 0, "", ErrUnparsable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convert(tt.epoch, tt.raw, tt.offset)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.UTC().Format(gotimeline.TimeFormat))
		})
	}
}

func TestEpochTable(t *testing.T) {
	for _, kind := range gotimeline.SourceKinds() {
		epoch, ok := EpochOf(kind)
		assert.True(t, ok, kind)
		assert.NotEmpty(t, epoch, kind)
		assert.NotEmpty(t, EventTypes(kind), kind)
	}
	epoch, _ := EpochOf(gotimeline.KnowledgeC)
	assert.Equal(t, CocoaSeconds, epoch)
	epoch, _ = EpochOf(gotimeline.UsageStats)
	assert.Equal(t, UnixMillis, epoch)
	_, ok := EpochOf("syslog")
	assert.False(t, ok)
}

func TestNormalizeRecord(t *testing.T) {
	base := gotimeline.RawRecord{
		SourceKind:   gotimeline.UsageStats,
		Platform:     gotimeline.Android,
		RawTimestamp: "1700000000000",
		RawAppKey:    "com.x.y",
		RawEvent:     "ACTIVITY_RESUMED",
	}
	with := func(f func(r *gotimeline.RawRecord)) gotimeline.RawRecord {
		r := base
		f(&r)
		return r
	}

	tests := []struct {
		name     string
		record   gotimeline.RawRecord
		wantType gotimeline.EventType
		wantErr  error
	}{
		{"native label", base, gotimeline.Foreground, nil},
		{"numeric label", with(func(r *gotimeline.RawRecord) { r.RawEvent = "23" }), gotimeline.Background, nil},
		{"canonical label", with(func(r *gotimeline.RawRecord) { r.RawEvent = "launch" }), gotimeline.Launch, nil},
		{"matching epoch", with(func(r *gotimeline.RawRecord) { r.RawEpoch = "unix_ms" }), gotimeline.Foreground, nil},
		{"no platform", with(func(r *gotimeline.RawRecord) { r.Platform = "" }), gotimeline.Foreground, nil},
		{"type not produced", with(func(r *gotimeline.RawRecord) { r.RawEvent = "Terminate" }), "", ErrEventType},
		{"unknown label", with(func(r *gotimeline.RawRecord) { r.RawEvent = "CONFIGURATION_CHANGE" }), "", ErrEventType},
		{"wrong platform", with(func(r *gotimeline.RawRecord) { r.Platform = gotimeline.IOS }), "", ErrPlatform},
		{"epoch mismatch", with(func(r *gotimeline.RawRecord) { r.RawEpoch = "cocoa_s" }), "", ErrEpochMismatch},
		{"missing key", with(func(r *gotimeline.RawRecord) { r.RawAppKey = " " }), "", ErrMissingAppKey},
		{"unknown kind", with(func(r *gotimeline.RawRecord) { r.SourceKind = "syslog" }), "", ErrEventType},
		{"zero timestamp", with(func(r *gotimeline.RawRecord) { r.RawTimestamp = "0" }), "", ErrOutOfRange},
		{"after run time", with(func(r *gotimeline.RawRecord) { r.RawTimestamp = "1900000000000" }), "", ErrOutOfRange},
		{"empty timestamp", with(func(r *gotimeline.RawRecord) { r.RawTimestamp = "" }), "", ErrUnparsable},
	}
	n := testNormalizer(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.NormalizeRecord(tt.record)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				assert.Equal(t, tt.wantErr.Error(), Reason(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, got.Type)
			assert.NoError(t, got.Validate())
		})
	}
}

func TestNormalizeKnowledgeCReferenceOffset(t *testing.T) {
	n := testNormalizer(0)
	event, err := n.NormalizeRecord(gotimeline.RawRecord{
		SourceKind:   gotimeline.KnowledgeC,
		Platform:     gotimeline.IOS,
		RawTimestamp: "700000000",
		RawAppKey:    "com.apple.mobilesafari",
		RawEvent:     "ZSTARTDATE",
	})
	require.NoError(t, err)

	want := CocoaReference.Add(700000000 * time.Second)
	assert.True(t, want.Equal(event.Timestamp))
	assert.Equal(t, "2023-03-08T20:26:40.000Z", event.Timestamp.Format(gotimeline.TimeFormat))
	assert.Equal(t, int64(700000000), event.Timestamp.Unix()-CocoaReference.Unix())
}

func TestNormalize(t *testing.T) {
	n := testNormalizer(9 * time.Hour)
	records := []gotimeline.RawRecord{
		{SourceKind: gotimeline.RecentTasks, RawTimestamp: "1700000001200", RawAppKey: "com.x.y", RawEvent: "LAST_TIME_MOVED"},
		{SourceKind: gotimeline.RecentTasks, RawTimestamp: "garbage", RawAppKey: "com.x.y", RawEvent: "LAST_TIME_MOVED", Origin: "recent_tasks/12.xml"},
		{SourceKind: gotimeline.AndroidSnapshot, RawTimestamp: "2023-11-15 07:13:21", RawAppKey: "com.x.y", RawEvent: "MTIME"},
		{SourceKind: gotimeline.AppState, RawTimestamp: "100", RawAppKey: "com.apple.mobilesafari", RawEvent: "LAUNCHED"},
		{SourceKind: gotimeline.IOSSnapshot, RawTimestamp: "20231115_071322.ktx", RawAppKey: "com.apple.mobilesafari", RawEvent: "SnapshotCaptured"},
	}

	events, diagnostics := n.Normalize(records)

	require.Len(t, events, 3)
	assert.Equal(t, gotimeline.RecentTasks, events[0].SourceKind)
	assert.Equal(t, gotimeline.AndroidSnapshot, events[1].SourceKind)
	assert.Equal(t, "2023-11-14T22:13:21.000Z", events[1].Timestamp.Format(gotimeline.TimeFormat))
	assert.Equal(t, gotimeline.IOSSnapshot, events[2].SourceKind)
	assert.Equal(t, "2023-11-14T22:13:22.000Z", events[2].Timestamp.Format(gotimeline.TimeFormat))

	require.Len(t, diagnostics, 2)
	assert.Equal(t, "unparsable", diagnostics[0].Reason)
	assert.Equal(t, gotimeline.CategoryEpoch, diagnostics[0].Category)
	assert.Equal(t, "recent_tasks/12.xml", diagnostics[0].RawRef)
	assert.Equal(t, "out_of_range", diagnostics[1].Reason)
	assert.Equal(t, gotimeline.AppState, diagnostics[1].SourceKind)

	for _, e := range events {
		assert.False(t, e.Timestamp.Before(DefaultPlausibleFrom))
		assert.False(t, e.Timestamp.After(runTime))
		assert.Equal(t, time.UTC, e.Timestamp.Location())
	}

	again, _ := n.Normalize(records)
	assert.Equal(t, events, again)
}
