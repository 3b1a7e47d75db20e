package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
)

func newLocationCmd() *cobra.Command {
	workTree := "."
	cmd := &cobra.Command{
		Use:   "location",
		Short: "Print the most recent session directory under a work tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocation(workTree, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&workTree, "work-tree", ".", "suite root to look for session directories under")
	return cmd
}

func runLocation(workTree string, out io.Writer) error {
	sessionsDir := filepath.Join(workTree, ".testforge-sessions")
	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		return fmt.Errorf("location: no sessions found under %s: %w", sessionsDir, err)
	}

	type dirMtime struct {
		name  string
		mtime int64
	}
	var dirs []dirMtime
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		dirs = append(dirs, dirMtime{name: e.Name(), mtime: info.ModTime().UnixNano()})
	}
	if len(dirs) == 0 {
		return fmt.Errorf("location: no session directories under %s", sessionsDir)
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].mtime > dirs[j].mtime })

	fmt.Fprintln(out, filepath.Join(sessionsDir, dirs[0].name))
	return nil
}
