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

package resolver

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

// EquivalenceGroup lists the keys one application uses on each platform.
type EquivalenceGroup struct {
	Name    string   `yaml:"name"`
	Android []string `yaml:"android"`
	IOS     []string `yaml:"ios"`
}

// EquivalenceTable is the static, externally supplied cross-platform
// mapping. Nothing outside it is ever matched across platforms.
type EquivalenceTable struct {
	Equivalences []EquivalenceGroup `yaml:"equivalences"`
}

// Keys returns the keys of the group for platform p.
func (g EquivalenceGroup) Keys(p gotimeline.Platform) []string {
	switch p {
	case gotimeline.Android:
		return g.Android
	case gotimeline.IOS:
		return g.IOS
	}
	return nil
}

// Validate rejects groups without a name and duplicate group names.
func (t *EquivalenceTable) Validate() error {
	names := map[string]bool{}
	for i, g := range t.Equivalences {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			return errors.Errorf("equivalence group %d has no name", i)
		}
		if names[name] {
			return errors.Errorf("duplicate equivalence group %q", name)
		}
		names[name] = true
	}
	return nil
}

// ParseEquivalences reads a YAML equivalence table.
func ParseEquivalences(r io.Reader) (*EquivalenceTable, error) {
	table := &EquivalenceTable{}
	if err := yaml.NewDecoder(r).Decode(table); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "could not decode equivalence table")
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// LoadEquivalences reads the YAML equivalence table at path.
func LoadEquivalences(path string) (*EquivalenceTable, error) {
	f, err := os.Open(path) // #nosec
	if err != nil {
		return nil, errors.Wrap(err, "could not open equivalence table")
	}
	defer f.Close()
	return ParseEquivalences(f)
}
