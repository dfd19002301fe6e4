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

package logging

import (
	"log/slog"
	"time"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

// Common field names for consistent logging across the pipeline stages.
const (
	FieldRun        = "run_id"
	FieldSource     = "source_kind"
	FieldIdentity   = "identity_id"
	FieldEventID    = "event_id"
	FieldReason     = "reason"
	FieldRef        = "raw_ref"
	FieldCount      = "count"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldStore      = "store"
	FieldCategory   = "category"
	FieldSegments   = "segments"
	FieldConflicts  = "conflicts"
	FieldIdentities = "identities"
)

// Run returns a slog attribute for the run id.
func Run(id string) slog.Attr {
	return slog.String(FieldRun, id)
}

// Source returns a slog attribute for a source kind.
func Source(kind gotimeline.SourceKind) slog.Attr {
	return slog.String(FieldSource, string(kind))
}

// Identity returns a slog attribute for an identity id.
func Identity(id string) slog.Attr {
	return slog.String(FieldIdentity, id)
}

// EventID returns a slog attribute for an event id.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// Reason returns a slog attribute for a drop reason.
func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}

// Ref returns a slog attribute pointing at the raw artifact record.
func Ref(ref string) slog.Attr {
	return slog.String(FieldRef, ref)
}

// Count returns a slog attribute for a number of items.
func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Diagnostic returns the attributes describing a skipped record.
func Diagnostic(d gotimeline.Diagnostic) []any {
	return []any{
		Source(d.SourceKind),
		slog.String(FieldCategory, string(d.Category)),
		Reason(d.Reason),
		Ref(d.RawRef),
	}
}
