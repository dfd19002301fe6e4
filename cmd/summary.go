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
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/apptimeline"
	"github.com/forensicanalysis/apptimeline/gotimeline"
)

var (
	okColor       = color.New(color.FgGreen)
	degradedColor = color.New(color.FgYellow)
	failedColor   = color.New(color.FgRed, color.Bold)
	headerColor   = color.New(color.FgWhite, color.Bold)
)

// Summary prints the summary of a run.
func Summary() *cobra.Command {
	var runID string
	var asJSON bool
	summaryCmd := &cobra.Command{
		Use:   "summary <store>",
		Short: "Show the summary of a run",
		Args:  requireStore(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := apptimeline.Open(args[0])
			if err != nil {
				return err
			}
			defer store.Close()
			summary, err := store.Summary(runID)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), summary)
			}
			printSummary(cmd.OutOrStdout(), *summary)
			return nil
		},
	}
	summaryCmd.Flags().StringVar(&runID, "run", "", "run id, defaults to the latest run")
	summaryCmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as json")
	return summaryCmd
}

func printSummary(w io.Writer, s gotimeline.Summary) {
	headerColor.Fprintf(w, "run %s\n", s.RunID)
	for _, src := range s.Sources {
		state := okColor.Sprint("ok")
		switch {
		case src.Failed:
			state = failedColor.Sprint("failed")
		case src.Degraded():
			state = degradedColor.Sprint("degraded")
		}
		fmt.Fprintf(w, "  %-16s %s records=%d events=%d dropped=%d unresolved=%d\n",
			src.SourceKind, state, src.Records, src.Events, src.Dropped, src.Unresolved)

		reasons := make([]string, 0, len(src.DropReasons))
		for reason := range src.DropReasons {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Fprintf(w, "    drop %s: %d\n", reason, src.DropReasons[reason])
		}
		for _, warning := range src.Warnings {
			degradedColor.Fprintf(w, "    warning: %s\n", warning)
		}
	}
	fmt.Fprintf(w, "identities=%d events=%d unresolved=%d\n", s.Identities, s.Events, s.Unresolved)
	conflicts := fmt.Sprintf("conflicts=%d", s.Conflicts)
	if s.Conflicts > 0 {
		conflicts = failedColor.Sprint(conflicts)
	}
	fmt.Fprintf(w, "segments=%d corroborated=%d single-source=%d %s\n",
		s.Segments, s.Corroborated, s.SingleSource, conflicts)
}
