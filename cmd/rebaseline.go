package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"testforge/internal/catalog"
	"testforge/internal/model"
)

func newRebaselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebaseline <session-dir>",
		Short: "List every DIFF case from a session that a baseline update would promote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebaseline(args[0], cmd.OutOrStdout())
		},
	}
	return cmd
}

// runRebaseline reports which cases from a finished session ended in
// DIFF: the set a baseline-promoting copy would act on. Actually staging
// the promoted files is suite-format-specific and out of scope here; this
// surfaces the candidate set so a caller can drive that copy itself.
func runRebaseline(sessionDir string, out io.Writer) error {
	idx, err := catalog.ReadIndex(sessionDir)
	if err != nil {
		return err
	}
	var promoted []catalog.IndexEntry
	for _, e := range idx.Entries {
		if e.Status == model.StatusDiff.String() {
			promoted = append(promoted, e)
		}
	}
	if len(promoted) == 0 {
		fmt.Fprintln(out, "no DIFF cases to rebaseline")
		return nil
	}
	for _, e := range promoted {
		fmt.Fprintf(out, "%s\t%s\n", e.ID, e.DisplayName)
	}
	return nil
}
