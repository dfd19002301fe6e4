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

// Package normalizer converts decoded artifact records into canonical,
// UTC-timestamped events. All epoch conversion happens here, driven by one
// table keyed by source kind.
package normalizer

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

// Drop reasons. Every dropped record carries exactly one.
var (
	ErrOutOfRange    = errors.New("out_of_range")
	ErrUnparsable    = errors.New("unparsable")
	ErrEventType     = errors.New("event_type")
	ErrEpochMismatch = errors.New("epoch_mismatch")
	ErrPlatform      = errors.New("platform")
	ErrMissingAppKey = errors.New("missing_app_key")
)

// DefaultPlausibleFrom predates every supported device.
var DefaultPlausibleFrom = time.Date(2007, 1, 1, 0, 0, 0, 0, time.UTC)

// Config holds the per-run inputs of the conversion rules.
type Config struct {
	// DeviceOffset is the device timezone offset east of UTC.
	DeviceOffset time.Duration
	// PlausibleFrom and PlausibleUntil bound every accepted timestamp.
	// PlausibleUntil is normally the run time.
	PlausibleFrom  time.Time
	PlausibleUntil time.Time
}

// Normalizer applies the epoch table. It holds no mutable state and is safe
// for concurrent use.
type Normalizer struct {
	config Config
}

// New creates a Normalizer. A zero PlausibleFrom falls back to
// DefaultPlausibleFrom; a zero PlausibleUntil to the current time.
func New(config Config) *Normalizer {
	if config.PlausibleFrom.IsZero() {
		config.PlausibleFrom = DefaultPlausibleFrom
	}
	if config.PlausibleUntil.IsZero() {
		config.PlausibleUntil = time.Now().UTC()
	}
	return &Normalizer{config: config}
}

// Config returns the effective configuration.
func (n *Normalizer) Config() Config {
	return n.config
}

// NormalizeRecord converts one record or returns the reason it is dropped.
func (n *Normalizer) NormalizeRecord(rec gotimeline.RawRecord) (gotimeline.Event, error) {
	r, ok := rules[rec.SourceKind]
	if !ok {
		return gotimeline.Event{}, errors.Wrapf(ErrEventType, "unknown source kind %q", rec.SourceKind)
	}
	if rec.Platform != "" && rec.Platform != rec.SourceKind.Platform() {
		return gotimeline.Event{}, errors.Wrapf(ErrPlatform, "%s records come from %s, not %s",
			rec.SourceKind, rec.SourceKind.Platform(), rec.Platform)
	}
	if strings.TrimSpace(rec.RawAppKey) == "" {
		return gotimeline.Event{}, errors.WithStack(ErrMissingAppKey)
	}
	if rec.RawEpoch != "" && Epoch(rec.RawEpoch) != r.epoch {
		return gotimeline.Event{}, errors.Wrapf(ErrEpochMismatch, "%s uses %s, record claims %s",
			rec.SourceKind, r.epoch, rec.RawEpoch)
	}

	t, err := eventType(rec.SourceKind, rec.RawEvent)
	if err != nil {
		return gotimeline.Event{}, err
	}

	ts, err := convert(r.epoch, rec.RawTimestamp, n.config.DeviceOffset)
	if err != nil {
		return gotimeline.Event{}, err
	}
	ts = ts.Truncate(time.Millisecond)
	if ts.Before(n.config.PlausibleFrom) || ts.After(n.config.PlausibleUntil) {
		return gotimeline.Event{}, errors.Wrapf(ErrOutOfRange, "%s outside [%s, %s]",
			ts.Format(gotimeline.TimeFormat),
			n.config.PlausibleFrom.UTC().Format(gotimeline.TimeFormat),
			n.config.PlausibleUntil.UTC().Format(gotimeline.TimeFormat))
	}

	return gotimeline.NewEvent(rec, t, ts), nil
}

// Normalize converts records in order. Every record yields either one event
// or one diagnostic; the events keep the relative order of their records.
func (n *Normalizer) Normalize(records []gotimeline.RawRecord) ([]gotimeline.Event, []gotimeline.Diagnostic) {
	events := make([]gotimeline.Event, 0, len(records))
	var diagnostics []gotimeline.Diagnostic
	for _, rec := range records {
		event, err := n.NormalizeRecord(rec)
		if err != nil {
			diagnostics = append(diagnostics, Diagnose(rec, err))
			continue
		}
		events = append(events, event)
	}
	return events, diagnostics
}

// Reason returns the drop reason carried by err.
func Reason(err error) string {
	switch errors.Cause(err) {
	case ErrOutOfRange, ErrUnparsable, ErrEventType, ErrEpochMismatch, ErrPlatform, ErrMissingAppKey:
		return errors.Cause(err).Error()
	}
	return "unknown"
}

// Diagnose turns a normalization error into a retained diagnostic.
func Diagnose(rec gotimeline.RawRecord, err error) gotimeline.Diagnostic {
	category := gotimeline.CategoryDecode
	switch errors.Cause(err) {
	case ErrOutOfRange, ErrUnparsable, ErrEpochMismatch:
		category = gotimeline.CategoryEpoch
	}
	return gotimeline.Diagnostic{
		SourceKind: rec.SourceKind,
		Category:   category,
		Reason:     Reason(err),
		RawRef:     rec.Ref(),
		Detail:     err.Error(),
	}
}
