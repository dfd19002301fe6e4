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

// Package pipeline runs one analysis: the sources are decoded and normalized
// in parallel, identities are resolved in one serial pass, segments are
// correlated in parallel and the result is committed to the store at once.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/forensicanalysis/apptimeline/correlator"
	"github.com/forensicanalysis/apptimeline/decoder"
	"github.com/forensicanalysis/apptimeline/gotimeline"
	"github.com/forensicanalysis/apptimeline/logging"
	"github.com/forensicanalysis/apptimeline/metrics"
	"github.com/forensicanalysis/apptimeline/normalizer"
	"github.com/forensicanalysis/apptimeline/resolver"
)

// Config of a Pipeline.
type Config struct {
	Normalizer   normalizer.Config
	Correlator   correlator.Config
	Equivalences *resolver.EquivalenceTable
	// Workers bounds the sources decoded in parallel.
	Workers int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore commits every run to store.
func WithStore(store gotimeline.Store) Option {
	return func(p *Pipeline) { p.store = store }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithMetrics sets the metrics the run is recorded in.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock replaces the run clock.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithRunID fixes the id of the next runs.
func WithRunID(id string) Option {
	return func(p *Pipeline) { p.runID = func() string { return id } }
}

// WithAttachments archives the given files with every run.
func WithAttachments(attachments ...gotimeline.Attachment) Option {
	return func(p *Pipeline) { p.attachments = append(p.attachments, attachments...) }
}

// Pipeline wires the decoders to the store.
type Pipeline struct {
	config      Config
	decoders    []decoder.Decoder
	store       gotimeline.Store
	logger      *logging.Logger
	metrics     *metrics.Metrics
	clock       func() time.Time
	runID       func() string
	attachments []gotimeline.Attachment
}

// New creates a Pipeline. Decoders are processed in source kind order.
func New(config Config, decoders []decoder.Decoder, opts ...Option) *Pipeline {
	p := &Pipeline{
		config:   config,
		decoders: append([]decoder.Decoder(nil), decoders...),
		logger:   logging.Discard(),
		clock:    time.Now,
		runID:    func() string { return "run--" + uuid.New().String() },
	}
	if p.config.Workers <= 0 {
		p.config.Workers = 4
	}
	for _, opt := range opts {
		opt(p)
	}
	sort.SliceStable(p.decoders, func(i, j int) bool { return p.decoders[i].Kind() < p.decoders[j].Kind() })
	return p
}

type sourceResult struct {
	kind        gotimeline.SourceKind
	events      []gotimeline.Event
	diagnostics []gotimeline.Diagnostic
}

// Run performs one analysis. A failing source degrades the run; a failing
// commit fails it.
func (p *Pipeline) Run(ctx context.Context) (*gotimeline.Run, error) {
	started := p.clock().UTC()
	run := &gotimeline.Run{ID: p.runID(), StartedAt: started}
	log := p.logger.With(logging.Run(run.ID))
	log.Info("run started", logging.Count(len(p.decoders)))

	nconf := p.config.Normalizer
	if nconf.PlausibleUntil.IsZero() {
		nconf.PlausibleUntil = started
	}
	norm := normalizer.New(nconf)
	t := newTally(run.ID)

	stage := time.Now()
	results := make([]sourceResult, len(p.decoders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)
	for i, d := range p.decoders {
		i, d := i, d
		g.Go(func() error {
			results[i] = p.ingest(gctx, log, norm, t, d)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "run aborted")
	}
	p.metrics.Stage("decode", stage)

	var events []gotimeline.Event
	seen := map[string]bool{}
	for _, r := range results {
		run.Diagnostics = append(run.Diagnostics, r.diagnostics...)
		for _, e := range r.events {
			if seen[e.ID] {
				log.Debug("duplicate record", logging.EventID(e.ID), logging.Ref(e.RawRef))
				continue
			}
			seen[e.ID] = true
			events = append(events, e)
		}
	}

	stage = time.Now()
	res := resolver.New(p.config.Equivalences)
	resolved, unresolved, diagnostics := res.ResolveEvents(events)
	for _, d := range diagnostics {
		log.Warn("identity ambiguity", logging.Diagnostic(d)...)
		p.metrics.Drop(d)
	}
	run.Diagnostics = append(run.Diagnostics, diagnostics...)
	run.Unresolved = unresolved
	run.Identities = res.Identities()
	run.Events = resolved
	t.events(resolved)
	t.unresolved(unresolved)
	p.metrics.Stage("resolve", stage)

	stage = time.Now()
	segments, err := correlator.New(p.config.Correlator).CorrelateAll(ctx, resolved)
	if err != nil {
		return nil, errors.Wrap(err, "correlation failed")
	}
	run.Segments = segments
	p.metrics.Stage("correlate", stage)

	run.Summary = summarize(t.all(), run)

	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode summary")
	}
	run.Attachments = append(append([]gotimeline.Attachment(nil), p.attachments...),
		gotimeline.Attachment{Name: "summary.json", Data: summary})

	if p.store != nil {
		stage = time.Now()
		if err := p.store.Commit(run); err != nil {
			log.Error("commit failed", logging.Error(err))
			return nil, errors.Wrap(err, "could not commit run")
		}
		p.metrics.Stage("commit", stage)
	}

	p.metrics.ObserveSummary(run.Summary)
	log.Info("run finished",
		logging.Count(len(run.Events)),
		slog.Int(logging.FieldIdentities, run.Summary.Identities),
		slog.Int(logging.FieldSegments, run.Summary.Segments),
		slog.Int(logging.FieldConflicts, run.Summary.Conflicts),
		logging.Duration(time.Since(started)),
	)
	return run, nil
}

// ingest decodes and normalizes one source. A decoder failure excludes the
// source and is reported as a source_failure diagnostic.
func (p *Pipeline) ingest(ctx context.Context, log *logging.Logger, norm *normalizer.Normalizer, t *tally, d decoder.Decoder) sourceResult {
	kind := d.Kind()
	log = log.With(logging.Source(kind))
	result := sourceResult{kind: kind}

	records, skipped, err := d.Decode(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return result
		}
		log.Warn("source excluded", logging.Error(err))
		t.fail(kind, err.Error())
		result.diagnostics = []gotimeline.Diagnostic{{
			SourceKind: kind,
			Category:   gotimeline.CategorySourceFailure,
			Reason:     "decoder_failed",
			Detail:     err.Error(),
		}}
		return result
	}

	events, dropped := norm.Normalize(records)
	result.events = events
	result.diagnostics = append(skipped, dropped...)

	t.add(kind, len(records))
	t.addDrops(result.diagnostics)
	for _, diagnostic := range result.diagnostics {
		log.Debug("record dropped", logging.Diagnostic(diagnostic)...)
		p.metrics.Drop(diagnostic)
	}
	log.Info("source decoded", logging.Count(len(records)), slog.Int("events", len(events)), slog.Int("dropped", len(result.diagnostics)))
	return result
}

func summarize(s gotimeline.Summary, run *gotimeline.Run) gotimeline.Summary {
	s.Identities = len(run.Identities)
	s.Segments = len(run.Segments)
	for _, seg := range run.Segments {
		if seg.Corroboration == gotimeline.Corroborated {
			s.Corroborated++
		} else {
			s.SingleSource++
		}
		if seg.ConflictFlag() {
			s.Conflicts++
		}
	}
	return s
}
