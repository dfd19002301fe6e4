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

// Package gotimeline defines the canonical activity model shared by the
// normalizer, the identity resolver, the correlator and the timeline store,
// together with the Store interface the timeline database implements.
package gotimeline

import (
	"fmt"
	"sort"
	"strings"
)

// Platform is the operating system family a source kind belongs to.
type Platform string

// Supported device platforms.
const (
	Android Platform = "Android"
	IOS     Platform = "iOS"
)

// ParsePlatform accepts the platform names case-insensitively.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "android":
		return Android, nil
	case "ios":
		return IOS, nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// SourceKind identifies the artifact a record was decoded from.
type SourceKind string

// The six artifact sources.
const (
	UsageStats      SourceKind = "usagestats"
	RecentTasks     SourceKind = "recent_tasks"
	AndroidSnapshot SourceKind = "android_snapshot"
	KnowledgeC      SourceKind = "knowledgec"
	AppState        SourceKind = "appstate"
	IOSSnapshot     SourceKind = "ios_snapshot"
)

var sourcePlatforms = map[SourceKind]Platform{
	UsageStats:      Android,
	RecentTasks:     Android,
	AndroidSnapshot: Android,
	KnowledgeC:      IOS,
	AppState:        IOS,
	IOSSnapshot:     IOS,
}

// Fixed confidence ranking, higher wins ordering ties. Behavioral database
// over usage-stats service over recent-tasks over directory listings.
var sourceConfidence = map[SourceKind]int{
	KnowledgeC:      4,
	UsageStats:      3,
	AppState:        3,
	RecentTasks:     2,
	AndroidSnapshot: 1,
	IOSSnapshot:     1,
}

// SourceKinds returns all known source kinds in lexical order.
func SourceKinds() []SourceKind {
	kinds := make([]SourceKind, 0, len(sourcePlatforms))
	for kind := range sourcePlatforms {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ParseSourceKind validates a source kind name.
func ParseSourceKind(s string) (SourceKind, error) {
	kind := SourceKind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := sourcePlatforms[kind]; !ok {
		return "", fmt.Errorf("unknown source kind %q", s)
	}
	return kind, nil
}

// Valid reports whether k is one of the known source kinds.
func (k SourceKind) Valid() bool {
	_, ok := sourcePlatforms[k]
	return ok
}

// Platform returns the platform that produces this kind of artifact.
func (k SourceKind) Platform() Platform {
	return sourcePlatforms[k]
}

// Confidence returns the fixed rank of the source kind. Unknown kinds rank 0.
func (k SourceKind) Confidence() int {
	return sourceConfidence[k]
}

// EventType is the canonical kind of activity an Event records.
type EventType string

// Canonical event types.
const (
	Foreground       EventType = "Foreground"
	Background       EventType = "Background"
	Launch           EventType = "Launch"
	Terminate        EventType = "Terminate"
	SnapshotCaptured EventType = "SnapshotCaptured"
)

var eventTypeRank = map[EventType]int{
	Launch:           0,
	Foreground:       1,
	SnapshotCaptured: 2,
	Background:       3,
	Terminate:        4,
}

// ParseEventType matches the canonical names case-insensitively.
func ParseEventType(s string) (EventType, bool) {
	for t := range eventTypeRank {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, true
		}
	}
	return "", false
}

// Rank orders event types that share a timestamp and a source: openings
// before snapshots before closings.
func (t EventType) Rank() int {
	if r, ok := eventTypeRank[t]; ok {
		return r
	}
	return len(eventTypeRank)
}

// Opens reports whether the event puts the application into the foreground.
func (t EventType) Opens() bool {
	return t == Foreground || t == Launch
}

// Closes reports whether the event takes the application out of the foreground.
func (t EventType) Closes() bool {
	return t == Background || t == Terminate
}

// ConflictsWith reports whether two event types make incompatible claims
// about the application state.
func (t EventType) ConflictsWith(o EventType) bool {
	return (t.Opens() && o.Closes()) || (t.Closes() && o.Opens())
}
