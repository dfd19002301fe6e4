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
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/apptimeline"
)

// Root returns the apptimeline command with all subcommands.
func Root() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "apptimeline",
		Short:        "Correlate app foreground and background activity across mobile artifacts",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(Analyze(), Identities(), Events(), Segments(), Conflicts(),
		SingleSource(), Summary(), Search(), Diagnostics(), Runs(), Unpack())
	return rootCmd
}

// openOrCreate opens the store at url and creates it if it is missing.
func openOrCreate(url string) (*apptimeline.TimelineStore, error) {
	if _, err := os.Stat(url); os.IsNotExist(err) {
		return apptimeline.New(url)
	}
	return apptimeline.Open(url)
}

func printJSON(w io.Writer, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

func requireStore(position int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != position+1 {
			return fmt.Errorf("accepts %d arg(s), received %d", position+1, len(args))
		}
		if _, err := os.Stat(args[position]); os.IsNotExist(err) {
			return errors.Wrap(os.ErrNotExist, args[position])
		}
		return nil
	}
}
