package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"testforge/internal/catalog"
)

type statusOptions struct {
	SessionDir string
	Watch      bool
}

func newStatusCmd() *cobra.Command {
	opts := statusOptions{}
	cmd := &cobra.Command{
		Use:   "status <session-dir>",
		Short: "Report the current state of every case in a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.SessionDir = args[0]
			return runStatus(opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "keep reprinting as cases.index changes")
	return cmd
}

func runStatus(opts statusOptions, out io.Writer) error {
	idx, err := catalog.ReadIndex(opts.SessionDir)
	if err != nil {
		return err
	}
	renderIndex(out, idx)

	if !opts.Watch {
		return nil
	}
	w, err := catalog.WatchIndex(opts.SessionDir)
	if err != nil {
		return err
	}
	defer w.Close()
	for next := range w.Events() {
		renderIndex(out, next)
	}
	return nil
}

func renderIndex(out io.Writer, idx catalog.Index) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"ID", "Name", "Status", "Dependencies"})

	entries := append([]catalog.IndexEntry(nil), idx.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].DisplayName < entries[j].DisplayName })

	for _, e := range entries {
		t.AppendRow(table.Row{e.ID, e.DisplayName, e.Status, fmt.Sprint(e.Dependencies)})
	}
	t.Render()
}
