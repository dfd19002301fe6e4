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

package gotimeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewEvent(t *testing.T) {
	rec := RawRecord{
		SourceKind:   UsageStats,
		Platform:     Android,
		RawTimestamp: "1700000000000",
		RawAppKey:    "com.x.y",
		RawEvent:     "ACTIVITY_RESUMED",
	}
	local := time.FixedZone("CET", 3600)
	ts := time.Date(2023, 11, 14, 23, 13, 20, 123456789, local)

	e := NewEvent(rec, Foreground, ts)

	assert.True(t, strings.HasPrefix(e.ID, "event--"))
	assert.Equal(t, time.UTC, e.Timestamp.Location())
	assert.Equal(t, 123000000, e.Timestamp.Nanosecond())
	assert.Equal(t, 3, e.SourceConfidence)
	assert.Equal(t, "usagestats:com.x.y@1700000000000", e.RawRef)
	assert.NoError(t, e.Validate())

	again := NewEvent(rec, Foreground, ts)
	assert.Equal(t, e.ID, again.ID)

	other := NewEvent(rec, Background, ts)
	assert.NotEqual(t, e.ID, other.ID)
}

func TestEvent_WithIdentity(t *testing.T) {
	e := NewEvent(RawRecord{SourceKind: KnowledgeC, RawAppKey: "com.apple.mobilesafari", RawTimestamp: "1"}, Foreground, time.Unix(1, 0))
	assigned := e.WithIdentity("app-identity--1")
	assert.Equal(t, "", e.IdentityID)
	assert.Equal(t, "app-identity--1", assigned.IdentityID)
	assert.Equal(t, e.ID, assigned.ID)
}

func TestEvent_Validate(t *testing.T) {
	valid := NewEvent(RawRecord{SourceKind: AppState, RawAppKey: "a", RawTimestamp: "1"}, Launch, time.Unix(1, 0))
	local := valid
	local.Timestamp = valid.Timestamp.In(time.FixedZone("X", 7200))
	fine := valid
	fine.Timestamp = valid.Timestamp.Add(time.Microsecond)
	noID := valid
	noID.ID = ""
	badKind := valid
	badKind.SourceKind = "syslog"
	badType := valid
	badType.Type = "Crash"

	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"valid", valid, false},
		{"local time", local, true},
		{"sub millisecond", fine, true},
		{"no id", noID, true},
		{"bad kind", badKind, true},
		{"bad type", badType, true},
		{"zero time", Event{ID: "event--x", SourceKind: AppState, Type: Launch}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEventType(t *testing.T) {
	tests := []struct {
		name      string
		a, b      EventType
		conflicts bool
	}{
		{"foreground background", Foreground, Background, true},
		{"launch terminate", Launch, Terminate, true},
		{"background launch", Background, Launch, true},
		{"foreground launch", Foreground, Launch, false},
		{"snapshot foreground", SnapshotCaptured, Foreground, false},
		{"background terminate", Background, Terminate, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.conflicts, tt.a.ConflictsWith(tt.b))
			assert.Equal(t, tt.conflicts, tt.b.ConflictsWith(tt.a))
		})
	}

	got, ok := ParseEventType("snapshotcaptured")
	assert.True(t, ok)
	assert.Equal(t, SnapshotCaptured, got)
	_, ok = ParseEventType("Crash")
	assert.False(t, ok)
	assert.Less(t, Launch.Rank(), Background.Rank())
}

func TestSourceKind(t *testing.T) {
	kinds := SourceKinds()
	assert.Len(t, kinds, 6)
	for i := 1; i < len(kinds); i++ {
		assert.Less(t, string(kinds[i-1]), string(kinds[i]))
	}

	assert.Greater(t, KnowledgeC.Confidence(), UsageStats.Confidence())
	assert.Greater(t, UsageStats.Confidence(), RecentTasks.Confidence())
	assert.Greater(t, RecentTasks.Confidence(), AndroidSnapshot.Confidence())
	assert.Equal(t, IOS, IOSSnapshot.Platform())

	kind, err := ParseSourceKind(" KnowledgeC ")
	assert.NoError(t, err)
	assert.Equal(t, KnowledgeC, kind)
	_, err = ParseSourceKind("syslog")
	assert.Error(t, err)

	p, err := ParsePlatform("IOS")
	assert.NoError(t, err)
	assert.Equal(t, IOS, p)
}
