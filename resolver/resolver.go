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

// Package resolver maps per-source application keys onto AppIdentity
// records. Matching is exact; cross-platform matches come only from a static
// equivalence table.
package resolver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

// ErrAmbiguous is returned when a key could belong to more than one identity
// or would break the one-key-per-source rule. Such records are set aside.
var ErrAmbiguous = errors.New("identity_ambiguity")

// ErrEmptyKey is returned for keys that canonicalize to nothing.
var ErrEmptyKey = errors.New("empty application key")

var (
	componentPattern = regexp.MustCompile(`\{([A-Za-z0-9._]+)/`)
	packagePattern   = regexp.MustCompile(`^([A-Za-z0-9._]+)[/ ]`)
	scenePattern     = regexp.MustCompile(`^sceneID:(.+?)(?:-default)?$`)
)

// CanonicalKey reduces a source-specific key to the key the platform
// namespace uses: Android package names and iOS bundle identifiers.
func CanonicalKey(kind gotimeline.SourceKind, raw string) string {
	key := strings.TrimSpace(raw)
	switch kind {
	case gotimeline.RecentTasks:
		if m := componentPattern.FindStringSubmatch(key); m != nil {
			return m[1]
		}
		if m := packagePattern.FindStringSubmatch(key); m != nil {
			return m[1]
		}
	case gotimeline.AppState, gotimeline.IOSSnapshot:
		key = strings.TrimSpace(strings.TrimSuffix(key, "{DEFAULT GROUP}"))
		key = strings.TrimSpace(strings.TrimSuffix(key, " -"))
		if m := scenePattern.FindStringSubmatch(key); m != nil {
			return m[1]
		}
	}
	return key
}

type aliasKey struct {
	kind gotimeline.SourceKind
	key  string
}

type platformKey struct {
	platform gotimeline.Platform
	key      string
}

// Resolver is an arena of identities with index maps for every lookup. It
// is not safe for concurrent use; resolution runs as one serial pass.
type Resolver struct {
	arena []*gotimeline.AppIdentity
	ids   map[string]int

	aliases   map[aliasKey]int
	platforms map[platformKey]int
	groups    map[string]int

	membership map[platformKey][]string
}

// New creates a Resolver for the given equivalence table, which may be nil.
func New(table *EquivalenceTable) *Resolver {
	r := &Resolver{
		ids:        map[string]int{},
		aliases:    map[aliasKey]int{},
		platforms:  map[platformKey]int{},
		groups:     map[string]int{},
		membership: map[platformKey][]string{},
	}
	if table == nil {
		return r
	}
	for _, g := range table.Equivalences {
		name := strings.TrimSpace(g.Name)
		for _, p := range []gotimeline.Platform{gotimeline.Android, gotimeline.IOS} {
			for _, key := range g.Keys(p) {
				pk := platformKey{p, strings.TrimSpace(key)}
				if !contains(r.membership[pk], name) {
					r.membership[pk] = append(r.membership[pk], name)
				}
			}
		}
	}
	return r
}

// Resolve returns the identity id of (kind, rawKey), creating a singleton
// identity for unseen keys. Identities only ever gain aliases; they never
// merge.
func (r *Resolver) Resolve(kind gotimeline.SourceKind, rawKey string) (string, error) {
	key := CanonicalKey(kind, rawKey)
	if key == "" {
		return "", errors.WithStack(ErrEmptyKey)
	}
	if idx, ok := r.aliases[aliasKey{kind, key}]; ok {
		return r.arena[idx].ID, nil
	}

	pk := platformKey{kind.Platform(), key}
	groups := r.membership[pk]
	if len(groups) > 1 {
		return "", errors.Wrapf(ErrAmbiguous, "%s is listed in equivalence groups %s", key, strings.Join(groups, ", "))
	}

	idx, byPlatform := r.platforms[pk]
	if len(groups) == 1 {
		groupIdx, byGroup := r.groups[groups[0]]
		switch {
		case byPlatform && byGroup && idx != groupIdx:
			return "", errors.Wrapf(ErrAmbiguous, "%s maps to %s and %s", key, r.arena[idx].ID, r.arena[groupIdx].ID)
		case byGroup:
			idx, byPlatform = groupIdx, true
		}
	}

	if !byPlatform {
		idx = r.create(pk, groups)
	}

	identity := r.arena[idx]
	if existing, ok := identity.Alias(kind); ok && existing != key {
		return "", errors.Wrapf(ErrAmbiguous, "%s already holds %s key %s, cannot add %s", identity.ID, kind, existing, key)
	}

	identity.Aliases = append(identity.Aliases, gotimeline.Alias{SourceKind: kind, RawKey: key})
	r.aliases[aliasKey{kind, key}] = idx
	r.platforms[pk] = idx
	return identity.ID, nil
}

func (r *Resolver) create(pk platformKey, groups []string) int {
	seed := fmt.Sprintf("%s\x1f%s", pk.platform, pk.key)
	name := pk.key
	if len(groups) == 1 {
		seed = "group\x1f" + groups[0]
		name = groups[0]
	}
	r.arena = append(r.arena, &gotimeline.AppIdentity{ID: gotimeline.IdentityID(seed), CanonicalName: name})
	idx := len(r.arena) - 1
	r.ids[r.arena[idx].ID] = idx
	if len(groups) == 1 {
		r.groups[groups[0]] = idx
	}
	return idx
}

// ResolveEvents assigns every event its identity in the given order. Events
// whose identity is ambiguous are returned as unresolved with a diagnostic.
func (r *Resolver) ResolveEvents(events []gotimeline.Event) ([]gotimeline.Event, []gotimeline.Unresolved, []gotimeline.Diagnostic) {
	resolved := make([]gotimeline.Event, 0, len(events))
	var unresolved []gotimeline.Unresolved
	var diagnostics []gotimeline.Diagnostic
	for _, e := range events {
		id, err := r.Resolve(e.SourceKind, e.RawAppKey)
		if err != nil {
			unresolved = append(unresolved, gotimeline.Unresolved{
				EventID:      e.ID,
				SourceKind:   e.SourceKind,
				RawAppKey:    e.RawAppKey,
				RawTimestamp: e.RawTimestamp,
				EventType:    e.Type,
				Reason:       err.Error(),
			})
			diagnostics = append(diagnostics, gotimeline.Diagnostic{
				SourceKind: e.SourceKind,
				Category:   gotimeline.CategoryIdentityAmbiguity,
				Reason:     errors.Cause(err).Error(),
				RawRef:     e.RawRef,
				Detail:     err.Error(),
			})
			continue
		}
		resolved = append(resolved, e.WithIdentity(id))
	}
	return resolved, unresolved, diagnostics
}

// Identities returns copies of all identities in creation order, aliases
// sorted.
func (r *Resolver) Identities() []gotimeline.AppIdentity {
	identities := make([]gotimeline.AppIdentity, 0, len(r.arena))
	for _, identity := range r.arena {
		c := *identity
		c.Aliases = append([]gotimeline.Alias(nil), identity.Aliases...)
		gotimeline.SortAliases(c.Aliases)
		identities = append(identities, c)
	}
	return identities
}

// Identity returns the identity with the given id.
func (r *Resolver) Identity(id string) (gotimeline.AppIdentity, bool) {
	idx, ok := r.ids[id]
	if !ok {
		return gotimeline.AppIdentity{}, false
	}
	c := *r.arena[idx]
	c.Aliases = append([]gotimeline.Alias(nil), c.Aliases...)
	gotimeline.SortAliases(c.Aliases)
	return c, true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
