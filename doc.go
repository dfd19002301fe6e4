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

// Package apptimeline can create, fill and query timeline stores: SQLite
// files holding the reconstructed foreground and background history of the
// applications on one mobile device.
//
// The timeline store format
//
// The timeline store implements the following conventions:
//     - The store is a single SQLite file stamped with application_id 1634759028 and user_version 1.
//     - Every analysis run is one row in runs; only rows with complete = 1 are visible to readers.
//     - Events are keyed by a deterministic id and deduplicated on (source_kind, raw_app_key, raw_timestamp, event_type).
//     - Identities, aliases and events only ever grow; segments, diagnostics and unresolved records are stored per run.
//     - The views timeline, conflicts and single_source_segments show the latest complete run.
//     - Files archived with a run (summary, equivalence table) live in the sqlar table under <run id>/.
//
// Structure
//
// The tables of a timeline store:
//     runs                  run_id, started_at, complete, summary
//     identities            identity_id, canonical_name, first_run
//     identity_aliases      identity_id, source_kind, raw_key
//     events                event_id, identity_id, event_type, timestamp_utc, source_kind, ...
//     segments              run_id, segment_id, identity_id, start_utc, end_utc, corroboration, conflict, ...
//     segment_events        run_id, segment_id, position, event_id
//     diagnostics           run_id, source_kind, category, reason, raw_ref, detail
//     unresolved            run_id, event_id, source_kind, raw_app_key, reason, ...
//     identity_search       full text index over canonical names and aliases
//     sqlar                 archived run files
package apptimeline
