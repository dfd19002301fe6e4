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

// Package correlator folds the resolved events of each application into
// timeline segments and annotates where independent sources disagree.
package correlator

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

// DefaultTolerance absorbs clock granularity differences between sources.
const DefaultTolerance = 2 * time.Second

// PairTolerance overrides the tolerance window for one pair of source kinds.
type PairTolerance struct {
	A         gotimeline.SourceKind
	B         gotimeline.SourceKind
	Tolerance time.Duration
}

// Config of a Correlator.
type Config struct {
	Tolerance      time.Duration
	PairTolerances []PairTolerance
	// Workers bounds the identities correlated in parallel.
	Workers int
}

type pair struct{ a, b gotimeline.SourceKind }

func newPair(a, b gotimeline.SourceKind) pair {
	if b < a {
		a, b = b, a
	}
	return pair{a, b}
}

// Correlator builds segments. It is safe for concurrent use.
type Correlator struct {
	tolerance    time.Duration
	maxTolerance time.Duration
	pairs        map[pair]time.Duration
	workers      int
}

// New creates a Correlator. A zero tolerance selects DefaultTolerance.
func New(config Config) *Correlator {
	c := &Correlator{
		tolerance: config.Tolerance,
		pairs:     map[pair]time.Duration{},
		workers:   config.Workers,
	}
	if c.tolerance <= 0 {
		c.tolerance = DefaultTolerance
	}
	if c.workers <= 0 {
		c.workers = 4
	}
	c.maxTolerance = c.tolerance
	for _, p := range config.PairTolerances {
		c.pairs[newPair(p.A, p.B)] = p.Tolerance
		if p.Tolerance > c.maxTolerance {
			c.maxTolerance = p.Tolerance
		}
	}
	return c
}

// ToleranceFor returns the tolerance window between two source kinds.
func (c *Correlator) ToleranceFor(a, b gotimeline.SourceKind) time.Duration {
	if t, ok := c.pairs[newPair(a, b)]; ok {
		return t
	}
	return c.tolerance
}

func (c *Correlator) within(a, b gotimeline.Event) bool {
	return absDuration(b.Timestamp.Sub(a.Timestamp)) <= c.ToleranceFor(a.SourceKind, b.SourceKind)
}

// Less is the total order of events within one identity: timestamp, then
// source confidence descending, then source kind, then event type, then id.
func Less(a, b gotimeline.Event) bool {
	switch {
	case !a.Timestamp.Equal(b.Timestamp):
		return a.Timestamp.Before(b.Timestamp)
	case a.SourceConfidence != b.SourceConfidence:
		return a.SourceConfidence > b.SourceConfidence
	case a.SourceKind != b.SourceKind:
		return a.SourceKind < b.SourceKind
	case a.Type.Rank() != b.Type.Rank():
		return a.Type.Rank() < b.Type.Rank()
	}
	return a.ID < b.ID
}

// Sort orders events in place by Less.
func Sort(events []gotimeline.Event) {
	sort.SliceStable(events, func(i, j int) bool { return Less(events[i], events[j]) })
}

type builder struct {
	events []gotimeline.Event
	closed bool
}

func (b *builder) add(e gotimeline.Event) {
	b.events = append(b.events, e)
}

// closedBy reports whether a closing event of b from another source kind
// lies within tolerance of e.
func (c *Correlator) closedBy(b *builder, e gotimeline.Event) bool {
	for i := len(b.events) - 1; i >= 0; i-- {
		prev := b.events[i]
		if e.Timestamp.Sub(prev.Timestamp) > c.maxTolerance {
			break
		}
		if prev.Type.Closes() && prev.SourceKind != e.SourceKind && c.within(prev, e) {
			return true
		}
	}
	return false
}

func (c *Correlator) nearEnd(b *builder, e gotimeline.Event) bool {
	return c.within(b.events[len(b.events)-1], e)
}

// Correlate folds the events of one identity into segments. The events are
// sorted on a copy; every event ends up in exactly one segment.
func (c *Correlator) Correlate(identityID string, events []gotimeline.Event) []gotimeline.Segment {
	if len(events) == 0 {
		return nil
	}
	sorted := append([]gotimeline.Event(nil), events...)
	Sort(sorted)

	var builders []*builder
	var open, last *builder
	start := func(e gotimeline.Event, closed bool) *builder {
		b := &builder{closed: closed}
		b.add(e)
		builders = append(builders, b)
		return b
	}

	for _, e := range sorted {
		switch {
		case e.Type.Opens():
			switch {
			case open != nil:
				open.add(e)
			case last != nil && c.closedBy(last, e):
				open = last
				open.closed = false
				open.add(e)
			default:
				open = start(e, false)
			}
		case e.Type.Closes():
			switch {
			case open != nil:
				open.add(e)
				open.closed = true
				last, open = open, nil
			case last != nil && c.nearEnd(last, e):
				last.add(e)
				last.closed = true
			default:
				last = start(e, true)
			}
		default:
			switch {
			case open != nil:
				open.add(e)
			case last != nil && c.nearEnd(last, e):
				last.add(e)
			default:
				last = start(e, false)
			}
		}
	}

	pairs := c.conflicts(sorted, builders)
	segments := make([]gotimeline.Segment, 0, len(builders))
	for i, b := range builders {
		segments = append(segments, c.segment(identityID, b, pairs[i]))
	}
	return segments
}

// conflicts finds every cross source pair of incompatible events within
// tolerance, also across segment boundaries. A pair belongs to the segment
// of its later event.
func (c *Correlator) conflicts(sorted []gotimeline.Event, builders []*builder) [][]gotimeline.ConflictPair {
	index := make(map[string]int, len(sorted))
	for i, b := range builders {
		for _, e := range b.events {
			index[e.ID] = i
		}
	}

	pairs := make([][]gotimeline.ConflictPair, len(builders))
	for i, a := range sorted {
		for _, other := range sorted[i+1:] {
			delta := other.Timestamp.Sub(a.Timestamp)
			if delta > c.maxTolerance {
				break
			}
			if a.SourceKind != other.SourceKind && a.Type.ConflictsWith(other.Type) && c.within(a, other) {
				k := index[other.ID]
				if index[a.ID] > k {
					k = index[a.ID]
				}
				pairs[k] = append(pairs[k], gotimeline.ConflictPair{A: a.ID, B: other.ID, Delta: delta})
			}
		}
	}
	return pairs
}

func (c *Correlator) segment(identityID string, b *builder, pairs []gotimeline.ConflictPair) gotimeline.Segment {
	first, final := b.events[0], b.events[len(b.events)-1]
	s := gotimeline.Segment{
		ID:         gotimeline.SegmentID(identityID, first.ID),
		IdentityID: identityID,
		Start:      first.Timestamp,
		End:        final.Timestamp,
		Terminated: b.closed,
		Events:     make([]string, 0, len(b.events)),
	}

	kinds := map[gotimeline.SourceKind]bool{}
	for _, e := range b.events {
		s.Events = append(s.Events, e.ID)
		if !kinds[e.SourceKind] {
			kinds[e.SourceKind] = true
			s.SourceKinds = append(s.SourceKinds, e.SourceKind)
		}
	}
	sort.Slice(s.SourceKinds, func(i, j int) bool { return s.SourceKinds[i] < s.SourceKinds[j] })

	s.Corroboration = gotimeline.SingleSource
	if len(s.SourceKinds) >= 2 {
		s.Corroboration = gotimeline.Corroborated
	}

	if len(pairs) > 0 {
		s.Conflict = &gotimeline.Conflict{Pairs: pairs}
	}
	return s
}

// CorrelateAll partitions events by identity and correlates the identities
// in parallel. Segments are returned ordered by identity, then start.
func (c *Correlator) CorrelateAll(ctx context.Context, events []gotimeline.Event) ([]gotimeline.Segment, error) {
	partitions := map[string][]gotimeline.Event{}
	for _, e := range events {
		if e.IdentityID == "" {
			return nil, errors.Errorf("event %s has no identity", e.ID)
		}
		partitions[e.IdentityID] = append(partitions[e.IdentityID], e)
	}
	identities := make([]string, 0, len(partitions))
	for id := range partitions {
		identities = append(identities, id)
	}
	sort.Strings(identities)

	results := make([][]gotimeline.Segment, len(identities))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, id := range identities {
		i, id := i, id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = c.Correlate(id, partitions[id])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var segments []gotimeline.Segment
	for _, r := range results {
		segments = append(segments, r...)
	}
	return segments, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
