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

// Package metrics counts what a run ingested, dropped and produced. The
// counters live in a private registry that is written to a node exporter
// textfile once the run is done.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/forensicanalysis/apptimeline/gotimeline"
)

const namespace = "apptimeline"

// Metrics of one process. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Records       *prometheus.CounterVec
	Events        *prometheus.CounterVec
	Drops         *prometheus.CounterVec
	Unresolved    *prometheus.CounterVec
	SourceFailed  *prometheus.GaugeVec
	Identities    prometheus.Gauge
	Segments      *prometheus.GaugeVec
	Conflicts     prometheus.Gauge
	StageDuration *prometheus.HistogramVec
}

// New creates and registers the run metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Total number of raw records decoded",
		}, []string{"source_kind"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of normalized events",
		}, []string{"source_kind"}),
		Drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_records_total",
			Help:      "Total number of records dropped",
		}, []string{"source_kind", "category", "reason"}),
		Unresolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unresolved_events_total",
			Help:      "Total number of events set aside for identity ambiguity",
		}, []string{"source_kind"}),
		SourceFailed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_failed",
			Help:      "1 if the decoder of the source failed entirely",
		}, []string{"source_kind"}),
		Identities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "identities",
			Help:      "Number of application identities of the last run",
		}),
		Segments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "segments",
			Help:      "Number of timeline segments of the last run",
		}, []string{"corroboration"}),
		Conflicts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conflict_segments",
			Help:      "Number of segments flagged with a source conflict",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of the pipeline stages in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	m.registry.MustRegister(
		m.Records, m.Events, m.Drops, m.Unresolved, m.SourceFailed,
		m.Identities, m.Segments, m.Conflicts, m.StageDuration,
	)
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Drop counts a skipped record.
func (m *Metrics) Drop(d gotimeline.Diagnostic) {
	if m == nil {
		return
	}
	m.Drops.WithLabelValues(string(d.SourceKind), string(d.Category), d.Reason).Inc()
}

// Stage observes the duration of a pipeline stage.
func (m *Metrics) Stage(stage string, started time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

// ObserveSummary records the per source and per run totals of a summary.
// Drops are counted as they happen, see Drop.
func (m *Metrics) ObserveSummary(s gotimeline.Summary) {
	if m == nil {
		return
	}
	for _, src := range s.Sources {
		kind := string(src.SourceKind)
		m.Records.WithLabelValues(kind).Add(float64(src.Records))
		m.Events.WithLabelValues(kind).Add(float64(src.Events))
		m.Unresolved.WithLabelValues(kind).Add(float64(src.Unresolved))
		failed := 0.0
		if src.Failed {
			failed = 1
		}
		m.SourceFailed.WithLabelValues(kind).Set(failed)
	}
	m.Identities.Set(float64(s.Identities))
	m.Segments.WithLabelValues(string(gotimeline.Corroborated)).Set(float64(s.Corroborated))
	m.Segments.WithLabelValues(string(gotimeline.SingleSource)).Set(float64(s.SingleSource))
	m.Conflicts.Set(float64(s.Conflicts))
}

// WriteTextfile writes all metrics in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrapf(err, "could not write metrics to %s", path)
	}
	return nil
}
