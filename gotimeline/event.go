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
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Namespace for deterministic ids. Identical input always yields identical
// event, identity and segment ids.
var Namespace = uuid.MustParse("5b0f3a6e-2a43-4c36-9d47-8c2f0e7f6a11")

// TimeFormat is the persisted form of every UTC instant (millisecond precision).
const TimeFormat = "2006-01-02T15:04:05.000Z"

// RawRecord is one decoded artifact record as delivered by a format decoder.
type RawRecord struct {
	SourceKind   SourceKind
	Platform     Platform
	RawTimestamp string
	// RawEpoch optionally names the epoch the decoder believes the timestamp
	// uses. When set it must agree with the normalizer's table.
	RawEpoch string
	RawAppKey string
	// RawEvent is the source-native event label, e.g. ACTIVITY_RESUMED.
	RawEvent string
	// Origin locates the record inside the artifact (path, row, offset).
	Origin  string
	Payload map[string]interface{}
}

// Ref returns the reference stored on the Event pointing back to the record.
func (r RawRecord) Ref() string {
	if r.Origin != "" {
		return r.Origin
	}
	return fmt.Sprintf("%s:%s@%s", r.SourceKind, r.RawAppKey, r.RawTimestamp)
}

// DedupeKey identifies a record across runs.
func DedupeKey(kind SourceKind, rawAppKey, rawTimestamp string, eventType EventType) string {
	return strings.Join([]string{string(kind), rawAppKey, rawTimestamp, string(eventType)}, "\x1f")
}

// Event is a normalized, UTC-timestamped activity record. Events are values;
// assigning an identity returns a new Event.
type Event struct {
	ID               string     `json:"event_id"`
	IdentityID       string     `json:"identity_id"`
	Type             EventType  `json:"event_type"`
	Timestamp        time.Time  `json:"timestamp_utc"`
	SourceKind       SourceKind `json:"source_kind"`
	SourceConfidence int        `json:"source_confidence"`
	RawRef           string     `json:"raw_ref,omitempty"`

	// Provenance kept for deduplication and investigator review.
	RawAppKey    string                 `json:"raw_app_key"`
	RawTimestamp string                 `json:"raw_timestamp"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewEvent builds an event from its raw provenance. The timestamp is
// truncated to milliseconds and moved to UTC.
func NewEvent(rec RawRecord, eventType EventType, ts time.Time) Event {
	key := DedupeKey(rec.SourceKind, rec.RawAppKey, rec.RawTimestamp, eventType)
	return Event{
		ID:               "event--" + uuid.NewSHA1(Namespace, []byte(key)).String(),
		Type:             eventType,
		Timestamp:        ts.UTC().Truncate(time.Millisecond),
		SourceKind:       rec.SourceKind,
		SourceConfidence: rec.SourceKind.Confidence(),
		RawRef:           rec.Ref(),
		RawAppKey:        rec.RawAppKey,
		RawTimestamp:     rec.RawTimestamp,
		Payload:          rec.Payload,
	}
}

// DedupeKey returns the key the store deduplicates on.
func (e Event) DedupeKey() string {
	return DedupeKey(e.SourceKind, e.RawAppKey, e.RawTimestamp, e.Type)
}

// WithIdentity returns a copy of e assigned to identity id.
func (e Event) WithIdentity(id string) Event {
	e.IdentityID = id
	return e
}

// Validate checks the invariants of a canonical event.
func (e Event) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("event without id")
	case !e.SourceKind.Valid():
		return fmt.Errorf("event %s: unknown source kind %q", e.ID, e.SourceKind)
	case e.Timestamp.IsZero():
		return fmt.Errorf("event %s: zero timestamp", e.ID)
	case e.Timestamp.Location() != time.UTC:
		return fmt.Errorf("event %s: timestamp not in UTC", e.ID)
	case e.Timestamp.Nanosecond()%int(time.Millisecond) != 0:
		return fmt.Errorf("event %s: timestamp finer than milliseconds", e.ID)
	}
	if _, ok := ParseEventType(string(e.Type)); !ok {
		return fmt.Errorf("event %s: unknown event type %q", e.ID, e.Type)
	}
	return nil
}
