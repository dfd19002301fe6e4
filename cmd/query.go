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
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/apptimeline"
)

type queryFunc func(store *apptimeline.TimelineStore, args []string) (interface{}, error)

func queryCommand(use, short string, position int, query queryFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  requireStore(position),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := apptimeline.Open(args[position])
			if err != nil {
				return err
			}
			defer store.Close()
			result, err := query(store, args[:position])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

// Identities lists all resolved app identities.
func Identities() *cobra.Command {
	return queryCommand("identities <store>", "List all app identities", 0,
		func(store *apptimeline.TimelineStore, _ []string) (interface{}, error) {
			return store.Identities()
		})
}

// Events lists the events of one identity in timeline order.
func Events() *cobra.Command {
	return queryCommand("events <identity-id> <store>", "List the events of an app identity", 1,
		func(store *apptimeline.TimelineStore, args []string) (interface{}, error) {
			return store.Events(args[0])
		})
}

// Segments lists the segments of one identity from the latest run.
func Segments() *cobra.Command {
	return queryCommand("segments <identity-id> <store>", "List the foreground segments of an app identity", 1,
		func(store *apptimeline.TimelineStore, args []string) (interface{}, error) {
			return store.Segments(args[0])
		})
}

// Conflicts lists all segments whose sources disagree.
func Conflicts() *cobra.Command {
	return queryCommand("conflicts <store>", "List segments with conflicting sources", 0,
		func(store *apptimeline.TimelineStore, _ []string) (interface{}, error) {
			return store.Conflicts()
		})
}

// SingleSource lists all segments backed by only one source kind.
func SingleSource() *cobra.Command {
	return queryCommand("single-source <store>", "List segments backed by a single source", 0,
		func(store *apptimeline.TimelineStore, _ []string) (interface{}, error) {
			return store.SingleSourceSegments()
		})
}

// Search finds identities by canonical name or alias prefix.
func Search() *cobra.Command {
	return queryCommand("search <term> <store>", "Search app identities by name or alias", 1,
		func(store *apptimeline.TimelineStore, args []string) (interface{}, error) {
			return store.Search(args[0])
		})
}

// Diagnostics lists the dropped records and source failures of a run.
func Diagnostics() *cobra.Command {
	var runID string
	cmd := queryCommand("diagnostics <store>", "List diagnostics of a run", 0,
		func(store *apptimeline.TimelineStore, _ []string) (interface{}, error) {
			return store.Diagnostics(runID)
		})
	cmd.Flags().StringVar(&runID, "run", "", "run id, defaults to the latest run")
	return cmd
}
