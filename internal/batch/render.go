package batch

import (
	"fmt"
	"path/filepath"
	"strings"

	"testforge/internal/model"
	"testforge/internal/scheduler"
)

// RenderCommands builds the shell command lines that run every member of
// bin directly inside a submitted job: each case's own command runs in
// its file root and its return code is written to <bin.WorkDir>/<id>.rc,
// the minimal per-case result convention mergeResult reads back once the
// job finishes.
func RenderCommands(cases map[model.CaseID]*model.TestCase, bin Bin) []string {
	cmds := make([]string, 0, len(bin.Members)+1)
	cmds = append(cmds, fmt.Sprintf("mkdir -p %s", shellQuote(bin.WorkDir)))
	for _, id := range bin.Members {
		c := cases[id]
		if c == nil {
			continue
		}
		rcFile := filepath.Join(bin.WorkDir, string(id)+".rc")
		cmds = append(cmds, fmt.Sprintf(
			"(cd %s && %s); echo $? > %s",
			shellQuote(c.FileRoot), scheduler.CommandLineFor(c), shellQuote(rcFile),
		))
	}
	return cmds
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
