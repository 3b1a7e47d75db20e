// Package scheduler runs a catalog to completion: a single dispatcher
// goroutine picks ready cases according to the exclusive/cost policy,
// hands each to a semaphore-bounded worker pool, and folds a worker's
// result back into the catalog through the single Transition write path.
package scheduler

import (
	"context"
	"math"
	"os/exec"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"testforge/internal/catalog"
	"testforge/internal/model"
	"testforge/internal/resourcepool"
	"testforge/pkg/logging"
)

// Runner executes one case's command and reports its outcome. Production
// code implements this with os/exec; tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, c *model.TestCase, env map[string]string) (Outcome, error)
}

// Outcome is everything the terminal-status rule needs about a finished
// (or killed) case run.
type Outcome struct {
	ReturnCode int
	TimedOut   bool
	Signaled   bool
	Stdout     string
	Stderr     string
}

// Config bounds the scheduler's behavior for one session.
type Config struct {
	MaxWorkers      int
	SessionDeadline time.Time     // zero = no deadline
	GracePeriod     time.Duration // SIGTERM -> SIGKILL gap
	MaxRetries      int
	DiffExitCode    int
	FailFast        bool
}

// Scheduler drives one catalog to completion.
type Scheduler struct {
	cfg   Config
	store *catalog.Store
	pool  *resourcepool.Pool
	run   Runner

	mu               sync.Mutex
	cond             *sync.Cond
	retries          map[model.CaseID]int
	assigns          map[model.CaseID]*resourcepool.Assignment
	running          map[model.CaseID]context.CancelFunc
	cancelled        bool
	exclusiveRunning bool

	sem *semaphore.Weighted
}

// New builds a Scheduler bound to a Store and Pool.
func New(cfg Config, store *catalog.Store, pool *resourcepool.Pool, run Runner) *Scheduler {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	s := &Scheduler{
		cfg:     cfg,
		store:   store,
		pool:    pool,
		run:     run,
		retries: make(map[model.CaseID]int),
		assigns: make(map[model.CaseID]*resourcepool.Assignment),
		running: make(map[model.CaseID]context.CancelFunc),
		sem:     semaphore.NewWeighted(int64(cfg.MaxWorkers)),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// cost implements the dispatch-priority metric: larger cost dispatches
// first so long-running tests start earliest.
func cost(c *model.TestCase) float64 {
	cpus := 0.0
	for _, g := range c.RequiredResources {
		for _, item := range g {
			if item.Type == "cpus" {
				cpus = math.Max(cpus, float64(item.Slots))
			}
		}
	}
	runtime := c.Timeout.Seconds()
	return math.Sqrt(cpus*cpus + runtime*runtime)
}

// Run drives the scheduling loop to completion or cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.cfg.SessionDeadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, s.cfg.SessionDeadline)
		defer cancel()
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.Cancel()
		close(done)
	}()

	for {
		s.refreshReady()

		if s.allTerminal() {
			return nil
		}

		candidates := s.pickCandidates()
		if len(candidates) == 0 {
			s.mu.Lock()
			s.cond.Wait()
			s.mu.Unlock()
			continue
		}

		dispatched := false
		for _, cand := range candidates {
			assignment, ok := s.pool.Acquire(cand.RequiredResources)
			if !ok {
				// this candidate can't fit right now; a lower-cost one might.
				continue
			}
			s.dispatch(ctx, cand, assignment)
			dispatched = true
			break
		}
		if !dispatched {
			// none of the ready candidates fit; wait for a release and retry.
			s.mu.Lock()
			s.cond.Wait()
			s.mu.Unlock()
		}
	}
}

// Cancel requests a graceful stop: every running case is sent SIGTERM,
// then SIGKILL after the configured grace period, and no new case is
// dispatched.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	for _, cancel := range s.running {
		cancel()
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Scheduler) refreshReady() {
	for _, c := range s.store.All() {
		if c.Status.Terminal() || c.Status == model.StatusRunning || c.Status == model.StatusReady {
			continue
		}
		if c.Masked {
			continue
		}
		met := true
		failed := false
		for _, dep := range c.Dependencies {
			up := s.store.Get(dep.Upstream)
			if up == nil || !up.Status.Terminal() {
				met = false
				continue
			}
			if !model.MetByEdge(up.Status, dep.Result) {
				failed = true
			}
		}
		switch {
		case failed:
			_ = s.store.Transition(c.ID, model.StatusNotRun, catalog.Mutation{Reason: "upstream dependency not met"})
		case met:
			_ = s.store.Transition(c.ID, model.StatusReady, catalog.Mutation{})
			if !s.pool.Accommodates(c.RequiredResources) {
				_ = s.store.Transition(c.ID, model.StatusFail, catalog.Mutation{Reason: "resource unsatisfiable"})
			}
		}
	}
}

func (s *Scheduler) allTerminal() bool {
	for _, c := range s.store.All() {
		if c.Masked {
			continue
		}
		if !c.Status.Terminal() {
			return false
		}
	}
	return true
}

// pickCandidates applies the exclusive/cost dispatch policy over the
// current READY set and returns every eligible case in dispatch-priority
// order. Run tries each in turn against the pool so a high-cost case
// stuck waiting on a busy resource type never starves a lower-cost case
// that could acquire its resources right now.
func (s *Scheduler) pickCandidates() []*model.TestCase {
	s.mu.Lock()
	cancelled := s.cancelled
	exclusiveRunning := s.exclusiveRunning
	anyRunning := len(s.running) > 0
	s.mu.Unlock()
	if cancelled || exclusiveRunning {
		return nil
	}

	var ready []*model.TestCase
	for _, c := range s.store.All() {
		if c.Status == model.StatusReady {
			ready = append(ready, c)
		}
	}
	if len(ready) == 0 {
		return nil
	}

	sort.Slice(ready, func(i, j int) bool {
		ci, cj := cost(ready[i]), cost(ready[j])
		if ci != cj {
			return ci > cj
		}
		return ready[i].ID < ready[j].ID
	})

	candidates := make([]*model.TestCase, 0, len(ready))
	for _, c := range ready {
		if c.Exclusive && anyRunning {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates
}

func (s *Scheduler) dispatch(parent context.Context, c *model.TestCase, assignment *resourcepool.Assignment) {
	ctx, cancel := parent, context.CancelFunc(func() {})
	if c.Timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, c.Timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	s.mu.Lock()
	s.running[c.ID] = cancel
	if c.Exclusive {
		s.exclusiveRunning = true
	}
	s.assigns[c.ID] = assignment
	s.mu.Unlock()

	now := time.Now()
	_ = s.store.Transition(c.ID, model.StatusRunning, catalog.Mutation{Start: &now})

	env := resourcepool.Env(envPrefix(c), assignment)

	if err := s.sem.Acquire(parent, 1); err != nil {
		s.finish(c, assignment, Outcome{ReturnCode: -1}, err)
		return
	}

	go func() {
		defer s.sem.Release(1)
		outcome, err := s.run.Run(ctx, c, env)
		s.finish(c, assignment, outcome, err)
	}()
}

func envPrefix(c *model.TestCase) string { return "CASE" }

func (s *Scheduler) finish(c *model.TestCase, assignment *resourcepool.Assignment, outcome Outcome, runErr error) {
	s.pool.Release(assignment)

	s.mu.Lock()
	delete(s.running, c.ID)
	delete(s.assigns, c.ID)
	if c.Exclusive {
		s.exclusiveRunning = false
	}
	wasCancelled := s.cancelled
	s.mu.Unlock()

	diffExitCode := s.cfg.DiffExitCode
	if diffExitCode == 0 {
		diffExitCode = 64
	}
	stop := time.Now()
	status, reason := terminalStatus(c, outcome, runErr, wasCancelled, diffExitCode)

	if status == model.StatusFail || status == model.StatusTimeout {
		if s.retries[c.ID] < s.cfg.MaxRetries {
			s.retries[c.ID]++
			_ = s.store.Transition(c.ID, model.StatusReady, catalog.Mutation{Stop: &stop, ReturnCode: &outcome.ReturnCode, Reason: reason})
			s.cond.Broadcast()
			return
		}
	}

	rc := outcome.ReturnCode
	_ = s.store.Transition(c.ID, status, catalog.Mutation{Stop: &stop, ReturnCode: &rc, Reason: reason})

	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// terminalStatus implements the terminal-status decision table: exit
// code, xstatus, regex rules, skip codes, diff code, timeout, signal, and
// finally the will_fail inversion.
func terminalStatus(c *model.TestCase, o Outcome, runErr error, cancelled bool, diffExitCode int) (model.Status, string) {
	if cancelled {
		return model.StatusCancelled, "session cancelled"
	}
	if o.TimedOut {
		return model.StatusTimeout, "exceeded timeout"
	}
	if o.Signaled {
		return invertIfWillFail(c, model.StatusFail, "terminated by signal")
	}
	if runErr != nil && o.ReturnCode == 0 {
		return invertIfWillFail(c, model.StatusFail, runErr.Error())
	}

	for _, code := range c.SkipReturnCode {
		if o.ReturnCode == code {
			return model.StatusSkip, "matched skip return code"
		}
	}
	if c.XStatus == -1 {
		if o.ReturnCode != 0 {
			return invertIfWillFail(c, model.StatusSuccess, "")
		}
		return invertIfWillFail(c, model.StatusFail, "expected a non-zero return code")
	}
	if c.XStatus != 0 && o.ReturnCode == c.XStatus {
		return invertIfWillFail(c, model.StatusSuccess, "")
	}
	if len(c.PassRegex) > 0 && !anyMatch(c.PassRegex, o.Stdout+o.Stderr) {
		return invertIfWillFail(c, model.StatusFail, "no pass_regex pattern matched")
	}
	if len(c.FailRegex) > 0 && anyMatch(c.FailRegex, o.Stdout+o.Stderr) {
		return invertIfWillFail(c, model.StatusFail, "fail_regex pattern matched")
	}
	if o.ReturnCode == diffExitCode {
		return invertIfWillFail(c, model.StatusDiff, "")
	}
	if o.ReturnCode != 0 {
		return invertIfWillFail(c, model.StatusFail, "")
	}
	return invertIfWillFail(c, model.StatusSuccess, "")
}

// TerminalStatus exports the terminal-status decision table for callers
// that score a case's result outside the live dispatch loop, such as the
// batch subsystem reading a finished job's per-case exit codes back off
// disk.
func TerminalStatus(c *model.TestCase, o Outcome, runErr error, cancelled bool, diffExitCode int) (model.Status, string) {
	return terminalStatus(c, o, runErr, cancelled, diffExitCode)
}

// CommandLineFor exports the shell invocation a case's own command
// resolves to, so the batch subsystem can render the same command a live
// worker would run into a submitted job script.
func CommandLineFor(c *model.TestCase) string {
	return commandLineFor(c)
}

func invertIfWillFail(c *model.TestCase, s model.Status, reason string) (model.Status, string) {
	if !c.WillFail {
		return s, reason
	}
	switch s {
	case model.StatusSuccess:
		return model.StatusFail, "will_fail: expected failure but succeeded"
	case model.StatusFail:
		return model.StatusSuccess, reason
	default:
		return s, reason
	}
}

func anyMatch(patterns []string, text string) bool {
	for _, p := range patterns {
		re, err := compileRegex(p)
		if err != nil {
			logging.Warn("scheduler", "invalid regex %q: %v", p, err)
			continue
		}
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// execRunner is the production Runner: spawns the case's command with
// os/exec, honoring ctx cancellation (SIGTERM then SIGKILL after the
// scheduler's grace period).
type execRunner struct {
	gracePeriod time.Duration
}

// NewExecRunner builds a Runner that shells out to the case's recorded
// command line.
func NewExecRunner(gracePeriod time.Duration) Runner {
	return &execRunner{gracePeriod: gracePeriod}
}

func (r *execRunner) Run(ctx context.Context, c *model.TestCase, env map[string]string) (Outcome, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", commandLineFor(c))
	cmd.Env = flattenEnv(env)
	cmd.Dir = c.FileRoot

	var out, errOut safeBuffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	err := cmd.Start()
	if err != nil {
		return Outcome{ReturnCode: -1}, err
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Signal(terminateSignal())
		select {
		case <-waitErr:
		case <-time.After(r.gracePeriod):
			_ = cmd.Process.Kill()
			<-waitErr
		}
		return Outcome{TimedOut: true, Stdout: out.String(), Stderr: errOut.String()}, ctx.Err()
	case err := <-waitErr:
		oc := Outcome{Stdout: out.String(), Stderr: errOut.String()}
		if ee, ok := err.(*exec.ExitError); ok {
			oc.ReturnCode = ee.ExitCode()
			return oc, nil
		}
		if err != nil {
			oc.Signaled = true
			return oc, err
		}
		return oc, nil
	}
}

func commandLineFor(c *model.TestCase) string {
	if v, ok := c.Attributes["override_script"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return c.DisplayName
}
