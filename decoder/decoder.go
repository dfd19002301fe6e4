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

// Package decoder adapts the output of the external artifact decoders to
// RawRecords. A decoder error means the whole source is unusable; problems
// with single records come back as diagnostics.
package decoder

import (
	"context"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

// Decoder produces the raw records of one source kind.
type Decoder interface {
	Kind() gotimeline.SourceKind
	Decode(ctx context.Context) ([]gotimeline.RawRecord, []gotimeline.Diagnostic, error)
}

// Static serves records that are already in memory.
type Static struct {
	Source      gotimeline.SourceKind
	Records     []gotimeline.RawRecord
	Diagnostics []gotimeline.Diagnostic
	Err         error
}

// Kind of the records.
func (s *Static) Kind() gotimeline.SourceKind { return s.Source }

// Decode returns the records as given.
func (s *Static) Decode(ctx context.Context) ([]gotimeline.RawRecord, []gotimeline.Diagnostic, error) {
	if s.Err != nil {
		return nil, nil, s.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return append([]gotimeline.RawRecord(nil), s.Records...), append([]gotimeline.Diagnostic(nil), s.Diagnostics...), nil
}

func skip(kind gotimeline.SourceKind, reason, ref, detail string) gotimeline.Diagnostic {
	return gotimeline.Diagnostic{
		SourceKind: kind,
		Category:   gotimeline.CategoryDecode,
		Reason:     reason,
		RawRef:     ref,
		Detail:     detail,
	}
}
