package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"testforge/internal/batch"
	"testforge/internal/catalog"
	"testforge/internal/config"
	"testforge/internal/expand"
	"testforge/internal/model"
	"testforge/internal/plugin"
	"testforge/internal/report"
	"testforge/internal/resourcepool"
	"testforge/internal/scheduler"
	"testforge/internal/selection"
)

func init() {
	plugin.RegisterBackend("local", plugin.NewLocalBackend())
}

// runOptions is the parsed, typed form of the `run` command's flags; kept
// separate from the cobra.Command so the engine logic in runEngine can be
// exercised directly in tests.
type runOptions struct {
	ConfigFile string
	WorkTree   string

	Keyword   string
	Parameter string
	Owners    []string
	Regex     string
	IDPrefix  string

	Platform string
	Enabled  []string

	Workers int
	Timeout time.Duration

	FailFast  bool
	KeepGoing bool
	Quiet     bool

	ResourceOverrides []string // -r type:count, repeatable
	Batch             string   // -b count:K|duration:T|atomic
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run [work-tree]",
		Short: "Expand, admit, and schedule every matching test case",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.WorkTree = args[0]
			}
			code, err := runEngine(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			os.Exit(code)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "path to a config file (YAML/JSON)")
	cmd.Flags().StringVar(&opts.WorkTree, "work-tree", ".", "suite root to discover test definitions under")
	cmd.Flags().StringVarP(&opts.Keyword, "keyword", "k", "", "boolean keyword-expression filter")
	cmd.Flags().StringVarP(&opts.Parameter, "parameter", "p", "", "boolean parameter-expression filter")
	cmd.Flags().StringSliceVar(&opts.Owners, "owner", nil, "select cases owned by any of these owners")
	cmd.Flags().StringVar(&opts.Regex, "regex", "", "select cases whose display name matches this regex")
	cmd.Flags().StringVar(&opts.IDPrefix, "id-prefix", "", "select cases whose id has this prefix")
	cmd.Flags().StringVar(&opts.Platform, "platform", "", "active platform name for `when` predicates")
	cmd.Flags().StringSliceVar(&opts.Enabled, "option", nil, "enabled build/run option for `when` predicates")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent worker cap (0 = use config default)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "session deadline (0 = no deadline)")
	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", false, "cancel the session on the first non-success terminal case")
	cmd.Flags().BoolVar(&opts.KeepGoing, "keep-going", false, "ignore fail-fast even if the config enables it")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "suppress the progress spinner")
	cmd.Flags().StringArrayVarP(&opts.ResourceOverrides, "resource", "r", nil, "override/add resource pool capacity, as type:count (repeatable)")
	cmd.Flags().StringVarP(&opts.Batch, "batch", "b", "", "submit selected cases as HPC batches instead of running them directly: count:K, duration:T, or atomic")
	return cmd
}

// parseResourceOverrides turns repeated -r type:count flags into item
// specs, one override bucket per type, replacing whatever the config
// file declared for that type.
func parseResourceOverrides(raw []string) ([]resourcepool.ItemSpec, error) {
	specs := make([]resourcepool.ItemSpec, 0, len(raw))
	for _, r := range raw {
		parts := strings.SplitN(r, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("cmd: invalid -r value %q, want type:count", r)
		}
		count, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("cmd: invalid -r value %q: %w", r, err)
		}
		specs = append(specs, resourcepool.ItemSpec{Type: parts[0], ID: "override", Slots: count})
	}
	return specs, nil
}

// parseBatchTarget decodes the -b flag's count:K, duration:T, or atomic
// forms into a batch.Target.
func parseBatchTarget(spec string) (batch.Target, error) {
	if spec == "atomic" {
		return batch.Target{Mode: batch.ModeAtomic}, nil
	}
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return batch.Target{}, fmt.Errorf("cmd: invalid -b value %q, want count:K, duration:T, or atomic", spec)
	}
	switch parts[0] {
	case "count":
		k, err := strconv.Atoi(parts[1])
		if err != nil {
			return batch.Target{}, fmt.Errorf("cmd: invalid -b count value %q: %w", spec, err)
		}
		return batch.Target{Mode: batch.ModeCount, Value: k}, nil
	case "duration":
		d, err := time.ParseDuration(parts[1])
		if err != nil {
			return batch.Target{}, fmt.Errorf("cmd: invalid -b duration value %q: %w", spec, err)
		}
		return batch.Target{Mode: batch.ModeDuration, Value: int(d.Seconds())}, nil
	default:
		return batch.Target{}, fmt.Errorf("cmd: invalid -b value %q, want count:K, duration:T, or atomic", spec)
	}
}

// runEngine drives one full session: discover, expand, select, admit, and
// schedule. It returns the process exit code report.ExitCode computed, or
// a non-nil error for a fatal pre-run failure.
func runEngine(opts runOptions, out io.Writer) (int, error) {
	flagOverrides := map[string]any{}
	if opts.Workers > 0 {
		flagOverrides["max_workers"] = opts.Workers
	}
	if opts.Timeout > 0 {
		flagOverrides["session_timeout"] = opts.Timeout.String()
	}
	if opts.KeepGoing {
		flagOverrides["fail_fast"] = false
	} else if opts.FailFast {
		flagOverrides["fail_fast"] = true
	}
	if opts.WorkTree != "" {
		flagOverrides["work_tree"] = opts.WorkTree
	}

	cfg, err := config.Load(opts.ConfigFile, flagOverrides)
	if err != nil {
		return 0, err
	}

	drafts, err := discoverDrafts(cfg.WorkTree)
	if err != nil {
		return 0, err
	}

	expOpt := expand.Options{Options: toSet(opts.Enabled), Platforms: toSet(nonEmpty(opts.Platform))}
	store := catalog.New()
	for _, d := range drafts {
		cases, err := expand.Expand(&d, expOpt)
		if err != nil {
			return 0, err
		}
		for _, c := range cases {
			if err := store.Add(c); err != nil {
				return 0, catalog.Fatal("duplicate case id while building catalog", err)
			}
		}
	}

	if _, err := store.Graph().Strata(); err != nil {
		return 0, catalog.Fatal("dependency graph is not acyclic", err)
	}

	filters := []selection.Filter{{
		Keyword:   opts.Keyword,
		Parameter: opts.Parameter,
		Owner:     opts.Owners,
		Regex:     opts.Regex,
		IDPrefix:  opts.IDPrefix,
	}}
	selResult, err := selection.Apply(store.All(), filters, store.Graph())
	if err != nil {
		return 0, err
	}
	for _, c := range store.All() {
		if !selResult.Selected[c.ID] {
			_ = store.Mask(c.ID)
		}
	}
	for _, w := range selResult.Warnings {
		fmt.Fprintln(out, "warning:", w)
	}

	overrides, err := parseResourceOverrides(opts.ResourceOverrides)
	if err != nil {
		return 0, err
	}
	overridden := make(map[string]bool, len(overrides))
	for _, o := range overrides {
		overridden[o.Type] = true
	}

	specs := make([]resourcepool.ItemSpec, 0, len(overrides))
	for typ, items := range cfg.ResourcePool.Items {
		if overridden[typ] {
			continue
		}
		for _, it := range items {
			specs = append(specs, resourcepool.ItemSpec{Type: typ, ID: it.ID, Slots: it.Slots})
		}
	}
	specs = append(specs, overrides...)
	pool := resourcepool.New(specs)

	if opts.Batch != "" {
		return runBatchEngine(cfg, store, pool, opts, out)
	}

	schedCfg := scheduler.Config{
		MaxWorkers:   cfg.MaxWorkers,
		GracePeriod:  cfg.GracePeriod,
		MaxRetries:   cfg.MaxRetries,
		DiffExitCode: cfg.DiffExitCode,
		FailFast:     cfg.FailFast,
	}
	if cfg.SessionTimeout > 0 {
		schedCfg.SessionDeadline = time.Now().Add(cfg.SessionTimeout)
	}

	sched := scheduler.New(schedCfg, store, pool, scheduler.NewExecRunner(cfg.GracePeriod))

	var sp *spinner.Spinner
	if !opts.Quiet {
		sp = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		sp.Suffix = " running test cases..."
		sp.Start()
	}
	runErr := sched.Run(context.Background())
	if sp != nil {
		sp.Stop()
	}
	if runErr != nil {
		return 0, runErr
	}

	sessionDir := filepath.Join(cfg.WorkTree, ".testforge-sessions", catalog.NewSessionID())
	if err := catalog.WriteIndex(sessionDir, store.BuildIndex()); err != nil {
		fmt.Fprintln(out, "warning: could not persist session index:", err)
	}

	cases := store.All()
	report.StatusTable(out, cases)
	fmt.Fprintln(out, report.SummaryLine(report.Summary(cases)))
	return report.ExitCode(cases), nil
}

// runBatchEngine replaces the live scheduler dispatch loop with the
// Batch Packer & Submitter path: every selected, non-masked case is
// grouped into bins per target and submitted to the local scheduler
// backend one stratum at a time, so a bin never needs a case from a
// later stratum.
func runBatchEngine(cfg *config.Context, store *catalog.Store, pool *resourcepool.Pool, opts runOptions, out io.Writer) (int, error) {
	target, err := parseBatchTarget(opts.Batch)
	if err != nil {
		return 0, err
	}

	cases := make(map[model.CaseID]*model.TestCase)
	var selected []*model.TestCase
	for _, c := range store.All() {
		if c.Masked {
			continue
		}
		cases[c.ID] = c
		selected = append(selected, c)
	}

	poolWidth := pool.Capacity("cpus")
	bins, err := batch.Pack(selected, target, store.Graph(), poolWidth)
	if err != nil {
		return 0, err
	}

	backend, err := plugin.Backend("local")
	if err != nil {
		return 0, err
	}
	sub := batch.NewSubmitter(backend, store, cfg.DiffExitCode)

	sessionDir := filepath.Join(cfg.WorkTree, ".testforge-sessions", catalog.NewSessionID())

	ctx := context.Background()
	var cancel context.CancelFunc
	if cfg.SessionTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.SessionTimeout)
		defer cancel()
	}

	var sp *spinner.Spinner
	if !opts.Quiet {
		sp = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		sp.Suffix = " submitting batches..."
		sp.Start()
	}
	for i := range bins {
		bins[i].WorkDir = filepath.Join(sessionDir, "batches", bins[i].ID)
		for _, id := range bins[i].Members {
			_ = store.Transition(id, model.StatusReady, catalog.Mutation{})
		}
		req := plugin.SubmitRequest{
			Name:     fmt.Sprintf("testforge-%s", bins[i].ID),
			Commands: batch.RenderCommands(cases, bins[i]),
			Nodes:    1,
		}
		if err := sub.RunBin(ctx, bins[i], req); err != nil {
			fmt.Fprintln(out, "warning: batch", bins[i].ID, "submission error:", err)
		}
	}
	if sp != nil {
		sp.Stop()
	}

	if err := catalog.WriteIndex(sessionDir, store.BuildIndex()); err != nil {
		fmt.Fprintln(out, "warning: could not persist session index:", err)
	}

	allCases := store.All()
	report.StatusTable(out, allCases)
	fmt.Fprintln(out, report.SummaryLine(report.Summary(allCases)))
	return report.ExitCode(allCases), nil
}

func discoverDrafts(root string) ([]model.DraftSpec, error) {
	var drafts []model.DraftSpec
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".testforge-sessions" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		p := plugin.ParserFor(rel)
		if p == nil {
			return nil
		}
		found, err := p.Parse(root, rel)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", rel, err)
		}
		drafts = append(drafts, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drafts, nil
}

func toSet(vals []string) map[string]bool {
	out := make(map[string]bool, len(vals))
	for _, v := range vals {
		if v != "" {
			out[v] = true
		}
	}
	return out
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
