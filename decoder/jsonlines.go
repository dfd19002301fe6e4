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
	"bufio"
	"bytes"
	"context"
	_ "embed" // record schema
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/qri-io/jsonschema"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

//go:embed record.schema.json
var recordSchemaJSON []byte

var (
	recordSchema     *jsonschema.Schema
	recordSchemaErr  error
	recordSchemaOnce sync.Once
)

func schema() (*jsonschema.Schema, error) {
	recordSchemaOnce.Do(func() {
		recordSchema = &jsonschema.Schema{}
		recordSchemaErr = json.Unmarshal(recordSchemaJSON, recordSchema)
	})
	return recordSchema, recordSchemaErr
}

// maxLine bounds a single JSON line, payloads included.
const maxLine = 16 * 1024 * 1024

// JSONLines reads one JSON encoded RawRecord per line, as written by the
// external format decoders.
type JSONLines struct {
	Fs     afero.Fs
	Path   string
	Source gotimeline.SourceKind
}

// Kind of the records in the file.
func (j *JSONLines) Kind() gotimeline.SourceKind { return j.Source }

// Decode validates and converts every line. Lines that fail validation or
// belong to another source kind are skipped with a diagnostic.
func (j *JSONLines) Decode(ctx context.Context) ([]gotimeline.RawRecord, []gotimeline.Diagnostic, error) {
	sch, err := schema()
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not load record schema")
	}

	f, err := j.Fs.Open(j.Path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not open %s", j.Path)
	}
	defer f.Close()

	var records []gotimeline.RawRecord
	var diagnostics []gotimeline.Diagnostic

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		ref := fmt.Sprintf("%s:%d", j.Path, lineNo)

		keyErrs, err := sch.ValidateBytes(ctx, line)
		if err != nil {
			diagnostics = append(diagnostics, skip(j.Source, "invalid_json", ref, err.Error()))
			continue
		}
		if len(keyErrs) > 0 {
			flaws := make([]string, 0, len(keyErrs))
			for _, keyErr := range keyErrs {
				flaws = append(flaws, keyErr.Error())
			}
			diagnostics = append(diagnostics, skip(j.Source, "schema", ref, strings.Join(flaws, "; ")))
			continue
		}

		rec := parseRecord(line, ref)
		if rec.SourceKind != j.Source {
			diagnostics = append(diagnostics, skip(j.Source, "source_kind", ref,
				fmt.Sprintf("record of %s in %s input", rec.SourceKind, j.Source)))
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrapf(err, "could not read %s", j.Path)
	}
	return records, diagnostics, nil
}

// parseRecord reads a validated line. Numbers keep their literal digits so
// that no precision is lost before the epoch conversion.
func parseRecord(line []byte, ref string) gotimeline.RawRecord {
	fields := gjson.GetManyBytes(line,
		"source_kind", "device_platform", "raw_timestamp", "raw_timestamp_epoch",
		"raw_app_key", "raw_event", "origin", "payload")

	rec := gotimeline.RawRecord{
		SourceKind:   gotimeline.SourceKind(fields[0].String()),
		Platform:     gotimeline.Platform(fields[1].String()),
		RawTimestamp: literal(fields[2]),
		RawEpoch:     fields[3].String(),
		RawAppKey:    fields[4].String(),
		RawEvent:     literal(fields[5]),
		Origin:       fields[6].String(),
	}
	if rec.Origin == "" {
		rec.Origin = ref
	}
	if payload, ok := fields[7].Value().(map[string]interface{}); ok {
		rec.Payload = payload
	}
	return rec
}

func literal(r gjson.Result) string {
	if r.Type == gjson.Number {
		return r.Raw
	}
	return r.String()
}
