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
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

// Epoch names the rule used to turn a raw timestamp into a UTC instant.
type Epoch string

// Supported epoch rules.
const (
	UnixMillis     Epoch = "unix_ms"
	CocoaSeconds   Epoch = "cocoa_s"
	LocalWallClock Epoch = "local_wallclock"
	FilenameStamp  Epoch = "filename_stamp"
)

// CocoaReference is the reference date of Apple absolute time.
var CocoaReference = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// maxMillis keeps int64 millisecond arithmetic far away from overflow.
const maxMillis = int64(1) << 52

var (
	decimalPattern   = regexp.MustCompile(`^([+-]?)(\d+)(?:\.(\d+))?$`)
	filenamePattern  = regexp.MustCompile(`(\d{8})_(\d{6})`)
	wallClockLayouts = []string{
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05.000",
		"2006-01-02T15:04:05",
	}
)

type rule struct {
	epoch  Epoch
	types  []gotimeline.EventType
	labels map[string]gotimeline.EventType
}

// rules is the single epoch and label table, keyed by source kind.
var rules = map[gotimeline.SourceKind]rule{
	gotimeline.UsageStats: {
		epoch: UnixMillis,
		types: []gotimeline.EventType{gotimeline.Foreground, gotimeline.Background, gotimeline.Launch},
		labels: map[string]gotimeline.EventType{
			"ACTIVITY_RESUMED":   gotimeline.Foreground,
			"MOVE_TO_FOREGROUND": gotimeline.Foreground,
			"1":                  gotimeline.Foreground,
			"ACTIVITY_PAUSED":    gotimeline.Background,
			"MOVE_TO_BACKGROUND": gotimeline.Background,
			"2":                  gotimeline.Background,
			"ACTIVITY_STOPPED":   gotimeline.Background,
			"23":                 gotimeline.Background,
		},
	},
	gotimeline.RecentTasks: {
		epoch: UnixMillis,
		types: []gotimeline.EventType{gotimeline.Launch, gotimeline.Background},
		labels: map[string]gotimeline.EventType{
			"FIRST_ACTIVE_TIME": gotimeline.Launch,
			"LAST_TIME_MOVED":   gotimeline.Background,
		},
	},
	gotimeline.AndroidSnapshot: {
		epoch: LocalWallClock,
		types: []gotimeline.EventType{gotimeline.SnapshotCaptured},
		labels: map[string]gotimeline.EventType{
			"MTIME":    gotimeline.SnapshotCaptured,
			"SNAPSHOT": gotimeline.SnapshotCaptured,
		},
	},
	gotimeline.KnowledgeC: {
		epoch: CocoaSeconds,
		types: []gotimeline.EventType{gotimeline.Foreground, gotimeline.Background},
		labels: map[string]gotimeline.EventType{
			"ZSTARTDATE":       gotimeline.Foreground,
			"ZENDDATE":         gotimeline.Background,
			"/APP/USAGE:START": gotimeline.Foreground,
			"/APP/USAGE:END":   gotimeline.Background,
		},
	},
	gotimeline.AppState: {
		epoch: CocoaSeconds,
		types: []gotimeline.EventType{gotimeline.Launch, gotimeline.Terminate},
		labels: map[string]gotimeline.EventType{
			"LAUNCHED":   gotimeline.Launch,
			"TERMINATED": gotimeline.Terminate,
		},
	},
	gotimeline.IOSSnapshot: {
		epoch: FilenameStamp,
		types: []gotimeline.EventType{gotimeline.SnapshotCaptured},
		labels: map[string]gotimeline.EventType{
			"SNAPSHOT": gotimeline.SnapshotCaptured,
		},
	},
}

// EpochOf returns the epoch rule of a source kind.
func EpochOf(kind gotimeline.SourceKind) (Epoch, bool) {
	r, ok := rules[kind]
	return r.epoch, ok
}

// EventTypes returns the event types a source kind can produce.
func EventTypes(kind gotimeline.SourceKind) []gotimeline.EventType {
	return append([]gotimeline.EventType(nil), rules[kind].types...)
}

// eventType maps a source-native label or a canonical name to the canonical
// event type, provided the source kind can produce it.
func eventType(kind gotimeline.SourceKind, label string) (gotimeline.EventType, error) {
	r := rules[kind]
	t, ok := r.labels[strings.ToUpper(strings.TrimSpace(label))]
	if !ok {
		t, ok = gotimeline.ParseEventType(label)
	}
	if !ok {
		return "", errors.Wrapf(ErrEventType, "unknown label %q", label)
	}
	for _, allowed := range r.types {
		if allowed == t {
			return t, nil
		}
	}
	return "", errors.Wrapf(ErrEventType, "%s cannot produce %s", kind, t)
}

// convert turns raw into a UTC instant following epoch. offset is the device
// timezone offset east of UTC, used by the device-local rules.
func convert(epoch Epoch, raw string, offset time.Duration) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	switch epoch {
	case UnixMillis:
		ms, err := parseScaled(raw, 0)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	case CocoaSeconds:
		ms, err := parseScaled(raw, 3)
		if err != nil {
			return time.Time{}, err
		}
		return CocoaReference.Add(time.Duration(ms) * time.Millisecond), nil
	case LocalWallClock:
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return t.UTC(), nil
		}
		for _, layout := range wallClockLayouts {
			if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
				return t.Add(-offset), nil
			}
		}
		return time.Time{}, errors.Wrapf(ErrUnparsable, "wall clock %q", raw)
	case FilenameStamp:
		m := filenamePattern.FindStringSubmatch(raw)
		if m == nil {
			return time.Time{}, errors.Wrapf(ErrUnparsable, "no YYYYMMDD_HHMMSS in %q", raw)
		}
		t, err := time.ParseInLocation("20060102150405", m[1]+m[2], time.UTC)
		if err != nil {
			return time.Time{}, errors.Wrapf(ErrUnparsable, "file name stamp %q", m[0])
		}
		return t.Add(-offset), nil
	}
	return time.Time{}, errors.Wrapf(ErrUnparsable, "unknown epoch %q", epoch)
}

// parseScaled parses a decimal string exactly into an integer number of
// 10^-scale units. Excess fraction digits are truncated toward zero.
func parseScaled(raw string, scale int) (int64, error) {
	m := decimalPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, errors.Wrapf(ErrUnparsable, "not a decimal number: %q", raw)
	}
	whole, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrOutOfRange, "%q", raw)
	}
	frac := m[3]
	if len(frac) > scale {
		frac = frac[:scale]
	}
	frac += strings.Repeat("0", scale-len(frac))

	var fraction int64
	if frac != "" {
		fraction, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(ErrUnparsable, "%q", raw)
		}
	}

	unit := int64(1)
	for i := 0; i < scale; i++ {
		unit *= 10
	}
	if whole > maxMillis/unit {
		return 0, errors.Wrapf(ErrOutOfRange, "%q", raw)
	}
	v := whole*unit + fraction
	if m[1] == "-" {
		v = -v
	}
	return v, nil
}
