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
	"context"
	"io"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

// DefaultSnapshotPatterns match the image files of both platforms.
var DefaultSnapshotPatterns = []string{"*.jpg", "*.jpeg", "*.png", "*.ktx", "*.webp"}

// defaultGroup marks iOS snapshot groups that duplicate the scene groups.
const defaultGroup = "{DEFAULT GROUP}"

var (
	taskIDPattern    = regexp.MustCompile(`^(\d+)(?:_[^.]*)?\.[A-Za-z0-9]+$`)
	packageDirectory = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)+$`)
	stampPattern     = regexp.MustCompile(`\d{8}_\d{6}`)
)

// SnapshotListing walks an extracted snapshot directory. Image content is
// never read; only names and modification times are used.
//
// Android snapshots are named <task id>.<ext> or <task id>_<suffix>.<ext>;
// the task id is mapped to a package with TaskMap, falling back to a
// package named parent directory. Their timestamp is the file mtime as a
// device-local wall clock.
//
// iOS snapshots sit in a directory named after the bundle or scene and carry
// a YYYYMMDD_HHMMSS stamp in their file name.
type SnapshotListing struct {
	Fs       afero.Fs
	Root     string
	Platform gotimeline.Platform
	Patterns []string
	TaskMap  map[string]string
}

// Kind of the records, derived from the platform.
func (s *SnapshotListing) Kind() gotimeline.SourceKind {
	if s.Platform == gotimeline.IOS {
		return gotimeline.IOSSnapshot
	}
	return gotimeline.AndroidSnapshot
}

func (s *SnapshotListing) matches(name string) bool {
	patterns := s.Patterns
	if len(patterns) == 0 {
		patterns = DefaultSnapshotPatterns
	}
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, strings.ToLower(name)); ok {
			return true
		}
	}
	return false
}

// Decode walks Root in lexical order.
func (s *SnapshotListing) Decode(ctx context.Context) ([]gotimeline.RawRecord, []gotimeline.Diagnostic, error) {
	exists, err := afero.DirExists(s.Fs, s.Root)
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, errors.Errorf("snapshot directory %s does not exist", s.Root)
	}

	var records []gotimeline.RawRecord
	var diagnostics []gotimeline.Diagnostic
	err = afero.Walk(s.Fs, s.Root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() || !s.matches(info.Name()) {
			return nil
		}
		p = path.Clean(strings.ReplaceAll(p, "\\", "/"))

		var rec gotimeline.RawRecord
		var d *gotimeline.Diagnostic
		if s.Kind() == gotimeline.IOSSnapshot {
			rec, d = s.iosRecord(p, info)
		} else {
			rec, d = s.androidRecord(p, info)
		}
		if d != nil {
			diagnostics = append(diagnostics, *d)
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not walk %s", s.Root)
	}
	return records, diagnostics, nil
}

func (s *SnapshotListing) androidRecord(p string, info os.FileInfo) (gotimeline.RawRecord, *gotimeline.Diagnostic) {
	key := ""
	if m := taskIDPattern.FindStringSubmatch(info.Name()); m != nil {
		key = s.TaskMap[m[1]]
	}
	if key == "" {
		if parent := path.Base(path.Dir(p)); packageDirectory.MatchString(parent) {
			key = parent
		}
	}
	if key == "" {
		d := skip(gotimeline.AndroidSnapshot, "missing_app_key", p, "no task mapping and no package directory")
		return gotimeline.RawRecord{}, &d
	}
	return gotimeline.RawRecord{
		SourceKind:   gotimeline.AndroidSnapshot,
		Platform:     gotimeline.Android,
		// the extracted mtime carries the device wall clock as UTC, the device
		// offset is applied by the normalizer
		RawTimestamp: info.ModTime().UTC().Format("2006-01-02 15:04:05.000"),
		RawEpoch:     "local_wallclock",
		RawAppKey:    key,
		RawEvent:     "MTIME",
		Origin:       p,
		Payload:      map[string]interface{}{"image_path": p, "size": info.Size()},
	}, nil
}

func (s *SnapshotListing) iosRecord(p string, info os.FileInfo) (gotimeline.RawRecord, *gotimeline.Diagnostic) {
	group := path.Base(path.Dir(p))
	if strings.Contains(group, defaultGroup) {
		d := skip(gotimeline.IOSSnapshot, "default_group", p, "duplicate of the scene snapshot")
		return gotimeline.RawRecord{}, &d
	}
	if !stampPattern.MatchString(info.Name()) {
		d := skip(gotimeline.IOSSnapshot, "missing_timestamp", p, "no YYYYMMDD_HHMMSS in file name")
		return gotimeline.RawRecord{}, &d
	}
	return gotimeline.RawRecord{
		SourceKind:   gotimeline.IOSSnapshot,
		Platform:     gotimeline.IOS,
		RawTimestamp: info.Name(),
		RawEpoch:     "filename_stamp",
		RawAppKey:    group,
		RawEvent:     "SNAPSHOT",
		Origin:       p,
		Payload:      map[string]interface{}{"image_path": p, "size": info.Size()},
	}, nil
}

// LoadTaskMap reads a YAML mapping of Android task ids to package names, as
// exported from the recent tasks records.
func LoadTaskMap(r io.Reader) (map[string]string, error) {
	tasks := map[string]string{}
	if err := yaml.NewDecoder(r).Decode(&tasks); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "could not decode task map")
	}
	return tasks, nil
}

// Triple is one result of the snapshot image conversion.
type Triple struct {
	AppKeyHint       string
	CaptureTimestamp string
	ImagePath        string
}

// SnapshotTriples turns image conversion results into SnapshotCaptured
// records. The images themselves are not inspected.
type SnapshotTriples struct {
	Source  gotimeline.SourceKind
	Triples []Triple
}

// Kind of the records.
func (s *SnapshotTriples) Kind() gotimeline.SourceKind { return s.Source }

// Decode converts the triples ordered by image path.
func (s *SnapshotTriples) Decode(ctx context.Context) ([]gotimeline.RawRecord, []gotimeline.Diagnostic, error) {
	if s.Source != gotimeline.AndroidSnapshot && s.Source != gotimeline.IOSSnapshot {
		return nil, nil, errors.Errorf("%s is not a snapshot source", s.Source)
	}
	triples := append([]Triple(nil), s.Triples...)
	sort.SliceStable(triples, func(i, j int) bool { return triples[i].ImagePath < triples[j].ImagePath })

	var records []gotimeline.RawRecord
	var diagnostics []gotimeline.Diagnostic
	for _, t := range triples {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if strings.TrimSpace(t.CaptureTimestamp) == "" {
			diagnostics = append(diagnostics, skip(s.Source, "missing_timestamp", t.ImagePath, "no capture timestamp"))
			continue
		}
		records = append(records, gotimeline.RawRecord{
			SourceKind:   s.Source,
			Platform:     s.Source.Platform(),
			RawTimestamp: t.CaptureTimestamp,
			RawAppKey:    t.AppKeyHint,
			RawEvent:     string(gotimeline.SnapshotCaptured),
			Origin:       t.ImagePath,
			Payload:      map[string]interface{}{"image_path": t.ImagePath},
		})
	}
	return records, diagnostics, nil
}
