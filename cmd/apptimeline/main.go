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

// Package apptimeline implements the apptimeline command line tool. It
// correlates app foreground and background activity from mobile artifacts
// into a timeline store and queries the result.
//     analyze        Decode, normalize, resolve and correlate sources
//     identities     List app identities
//     events         List the events of an identity
//     segments       List the foreground segments of an identity
//     conflicts      List segments where sources disagree
//     single-source  List segments backed by one source only
//     summary        Show the run summary
//     search         Search identities by name or alias
//     diagnostics    List dropped records and failed sources
//
// Usage
//
// Analyze an Android extraction
//     apptimeline analyze --store device.sqlite --device-offset 9h \
//         --jsonl usagestats=usagestats.jsonl --jsonl recent_tasks=recent_tasks.jsonl \
//         --android-snapshots data/system_ce/0/snapshots --task-map tasks.yml
// Review the result
//     apptimeline summary device.sqlite
//     apptimeline conflicts device.sqlite > conflicts.json
package main

import (
	"os"

	"github.com/forensicanalysis/apptimeline/cmd"
)

func main() {
	if err := cmd.Root().Execute(); err != nil {
		os.Exit(1)
	}
}
