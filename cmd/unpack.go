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
	"path"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/apptimeline"
)

// Runs lists the complete runs of a store.
func Runs() *cobra.Command {
	return queryCommand("runs <store>", "List all complete runs", 0,
		func(store *apptimeline.TimelineStore, _ []string) (interface{}, error) {
			return store.Runs()
		})
}

// Unpack extracts the files archived with a run.
func Unpack() *cobra.Command {
	var dir string
	unpackCmd := &cobra.Command{
		Use:   "unpack <run-id> <store>",
		Short: "Extract the files archived with a run",
		Args:  requireStore(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]
			store, err := apptimeline.Open(args[1])
			if err != nil {
				return err
			}
			defer store.Close()

			names, err := store.Attachments(runID)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				return fmt.Errorf("%s: %w", runID, apptimeline.ErrRunNotFound)
			}

			destFS := afero.NewOsFs()
			for _, name := range names {
				data, err := store.Attachment(runID, name)
				if err != nil {
					return err
				}
				dest := filepath.Join(dir, runID, filepath.FromSlash(path.Clean("/"+name)))
				if err := destFS.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unpack '%s' to '%s'\n", name, dest)
				if err := afero.WriteFile(destFS, dest, data, 0o644); err != nil {
					return err
				}
			}
			return nil
		},
	}
	unpackCmd.Flags().StringVar(&dir, "dir", ".", "destination directory")
	return unpackCmd
}
