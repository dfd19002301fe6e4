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

package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/apptimeline/config"
	"github.com/forensicanalysis/apptimeline/decoder"
	"github.com/forensicanalysis/apptimeline/gotimeline"
	"github.com/forensicanalysis/apptimeline/logging"
	"github.com/forensicanalysis/apptimeline/metrics"
	"github.com/forensicanalysis/apptimeline/pipeline"
	"github.com/forensicanalysis/apptimeline/resolver"
)

type sourceFlags struct {
	jsonl            []string
	knowledgeC       string
	androidSnapshots string
	iosSnapshots     string
}

func (s sourceFlags) decoders(fs afero.Fs, tasks map[string]string) ([]decoder.Decoder, error) {
	var decoders []decoder.Decoder
	for _, arg := range s.jsonl {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("--jsonl expects <source-kind>=<path>, got %q", arg)
		}
		kind, err := gotimeline.ParseSourceKind(parts[0])
		if err != nil {
			return nil, err
		}
		decoders = append(decoders, &decoder.JSONLines{Fs: fs, Path: parts[1], Source: kind})
	}
	if s.knowledgeC != "" {
		decoders = append(decoders, &decoder.KnowledgeC{Path: s.knowledgeC})
	}
	if s.androidSnapshots != "" {
		decoders = append(decoders, &decoder.SnapshotListing{
			Fs: fs, Root: s.androidSnapshots, Platform: gotimeline.Android, TaskMap: tasks,
		})
	}
	if s.iosSnapshots != "" {
		decoders = append(decoders, &decoder.SnapshotListing{Fs: fs, Root: s.iosSnapshots, Platform: gotimeline.IOS})
	}
	if len(decoders) == 0 {
		return nil, errors.New("no sources given")
	}
	return decoders, nil
}

// applyChanged sets every flag given on the command line, including the zero
// values Merge skips, e.g. --device-offset 0 over a configured offset.
func applyChanged(cmd *cobra.Command, cfg *config.Config, overrides config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("device-offset") {
		cfg.DeviceOffset = overrides.DeviceOffset
	}
	if flags.Changed("plausible-from") {
		cfg.PlausibleFrom = overrides.PlausibleFrom
	}
	if flags.Changed("tolerance") {
		cfg.Tolerance = overrides.Tolerance
	}
	if flags.Changed("workers") {
		cfg.Workers = overrides.Workers
	}
	if flags.Changed("equivalences") {
		cfg.Equivalences = overrides.Equivalences
	}
	if flags.Changed("task-map") {
		cfg.TaskMap = overrides.TaskMap
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = overrides.MetricsFile
	}
	return cfg.Validate()
}

// Analyze runs the pipeline over the given sources and commits the run.
func Analyze() *cobra.Command {
	var configPath string
	var sources sourceFlags
	var overrides config.Config

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Correlate the given artifacts into a timeline store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Merge(overrides); err != nil {
				return err
			}
			if err := applyChanged(cmd, cfg, overrides); err != nil {
				return err
			}

			logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
			logging.SetDefault(logger)

			fs := afero.NewOsFs()
			var opts []pipeline.Option

			var table *resolver.EquivalenceTable
			if cfg.Equivalences != "" {
				b, err := afero.ReadFile(fs, cfg.Equivalences)
				if err != nil {
					return errors.Wrap(err, "could not read equivalence table")
				}
				table, err = resolver.ParseEquivalences(bytes.NewReader(b))
				if err != nil {
					return err
				}
				opts = append(opts, pipeline.WithAttachments(gotimeline.Attachment{
					Name: "equivalences" + filepath.Ext(cfg.Equivalences), Data: b,
				}))
			}

			var tasks map[string]string
			if cfg.TaskMap != "" {
				f, err := fs.Open(cfg.TaskMap)
				if err != nil {
					return errors.Wrap(err, "could not open task map")
				}
				tasks, err = decoder.LoadTaskMap(f)
				f.Close()
				if err != nil {
					return err
				}
			}

			decoders, err := sources.decoders(fs, tasks)
			if err != nil {
				return err
			}

			store, err := openOrCreate(cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			m := metrics.New()
			opts = append(opts, pipeline.WithStore(store), pipeline.WithLogger(logger), pipeline.WithMetrics(m))
			p := pipeline.New(pipeline.Config{
				Normalizer:   cfg.Normalizer(time.Time{}),
				Correlator:   cfg.Correlator(),
				Equivalences: table,
				Workers:      cfg.Workers,
			}, decoders, opts...)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			run, err := p.Run(ctx)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), run.Summary)

			if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
				logger.Warn("could not write metrics", logging.Error(err))
			}
			return nil
		},
	}

	flags := analyzeCmd.Flags()
	flags.StringVar(&configPath, "config", "", "config file, defaults to ./apptimeline.yaml")
	flags.StringVar(&overrides.Store, "store", "", "timeline store to write")
	flags.DurationVar(&overrides.DeviceOffset, "device-offset", 0, "device timezone offset east of UTC, e.g. 9h")
	flags.StringVar(&overrides.PlausibleFrom, "plausible-from", "", "earliest accepted timestamp (RFC 3339)")
	flags.DurationVar(&overrides.Tolerance, "tolerance", 0, "correlation tolerance between sources, 0 selects the default")
	flags.IntVar(&overrides.Workers, "workers", 0, "sources decoded in parallel, 0 selects the default")
	flags.StringVar(&overrides.Equivalences, "equivalences", "", "cross platform equivalence table (yaml)")
	flags.StringVar(&overrides.TaskMap, "task-map", "", "android task id to package map (yaml)")
	flags.StringVar(&overrides.MetricsFile, "metrics-file", "", "write prometheus metrics to this file")
	flags.StringVar(&overrides.Logging.Level, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&overrides.Logging.Format, "log-format", "", "text or json")

	flags.StringArrayVar(&sources.jsonl, "jsonl", nil, "decoded records as <source-kind>=<path>, repeatable")
	flags.StringVar(&sources.knowledgeC, "knowledgec", "", "iOS knowledgeC.db")
	flags.StringVar(&sources.androidSnapshots, "android-snapshots", "", "android recent task snapshot directory")
	flags.StringVar(&sources.iosSnapshots, "ios-snapshots", "", "iOS app snapshot directory")
	return analyzeCmd
}
