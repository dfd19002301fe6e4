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
	"sort"

	"github.com/google/uuid"
)

// Alias is one source-specific key under which an application was observed.
type Alias struct {
	SourceKind SourceKind `json:"source_kind"`
	RawKey     string     `json:"raw_key"`
}

// AppIdentity is the resolved representation of one logical application.
type AppIdentity struct {
	ID            string  `json:"identity_id"`
	CanonicalName string  `json:"canonical_name"`
	Aliases       []Alias `json:"aliases"`
}

// IdentityID derives the stable id of an identity from the seed that
// created it (an equivalence group name or a platform scoped key).
func IdentityID(seed string) string {
	return "app-identity--" + uuid.NewSHA1(Namespace, []byte(seed)).String()
}

// Alias returns the raw key registered for kind, if any.
func (i AppIdentity) Alias(kind SourceKind) (string, bool) {
	for _, a := range i.Aliases {
		if a.SourceKind == kind {
			return a.RawKey, true
		}
	}
	return "", false
}

// SortAliases orders aliases by source kind, then key.
func SortAliases(aliases []Alias) {
	sort.Slice(aliases, func(i, j int) bool {
		if aliases[i].SourceKind != aliases[j].SourceKind {
			return aliases[i].SourceKind < aliases[j].SourceKind
		}
		return aliases[i].RawKey < aliases[j].RawKey
	})
}
