package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"testforge/internal/catalog"
	"testforge/internal/model"
	"testforge/internal/plugin"
	"testforge/internal/scheduler"
	"testforge/pkg/logging"
)

// Submitter drives the submit/poll/merge cycle for a set of packed bins
// against one scheduler backend.
type Submitter struct {
	backend      plugin.SchedulerBackend
	store        *catalog.Store
	diffExitCode int
}

// NewSubmitter binds a backend and the catalog its results are merged
// into. diffExitCode mirrors the scheduler's own diff-exit-code
// configuration so a batch-submitted case's DIFF outcome is scored the
// same way a live worker would score it; 0 falls back to 64.
func NewSubmitter(backend plugin.SchedulerBackend, store *catalog.Store, diffExitCode int) *Submitter {
	if diffExitCode == 0 {
		diffExitCode = 64
	}
	return &Submitter{backend: backend, store: store, diffExitCode: diffExitCode}
}

// RunBin submits one bin, polls it at the backend's configured
// frequency (rate-limited so a slow scheduler isn't hammered), and
// merges the terminal outcome into the catalog when the job finishes or
// the context is cancelled.
func (s *Submitter) RunBin(ctx context.Context, bin Bin, req plugin.SubmitRequest) error {
	if req.OutputPath == "" {
		req.OutputPath = fmt.Sprintf("batch-%s.out", bin.ID)
	}
	if req.ErrorPath == "" {
		req.ErrorPath = fmt.Sprintf("batch-%s.err", bin.ID)
	}
	job, err := s.backend.Submit(req)
	if err != nil {
		s.markAll(bin, model.StatusNotRun, fmt.Sprintf("submit failed: %v", err))
		return err
	}

	limiter := rate.NewLimiter(rate.Every(s.backend.PollingFrequency()), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			// session cancellation: cancel the job, mark members CANCELLED
			// unless they're already terminal.
			_ = job.Cancel()
			s.markAll(bin, model.StatusCancelled, "session cancelled")
			return err
		}

		rc, done, pollErr := job.Poll()
		if pollErr != nil {
			logging.Warn("batch", "poll error for job %s: %v", job.ID(), pollErr)
			continue
		}
		if !done {
			continue
		}
		return s.mergeResult(bin, rc)
	}
}

// mergeResult reads each member's own per-case result off disk (written
// by RenderCommands' rendered script as <bin.WorkDir>/<id>.rc) and scores
// it through the same terminal-status rule a live worker uses. Members a
// result file can't be found for are marked NOT_RUN: a successful job
// exit is not itself proof that every member actually ran and reported.
func (s *Submitter) mergeResult(bin Bin, rc int) error {
	for _, id := range bin.Members {
		c := s.store.Get(id)
		if c == nil || c.Status.Terminal() {
			continue
		}
		outcome, ok := readCaseOutcome(bin.WorkDir, id)
		if !ok {
			continue
		}
		s.applyCaseOutcome(c, outcome)
	}

	reason := "batch exited 0 but no per-case result file was found"
	if rc != 0 {
		reason = fmt.Sprintf("batch exited %d with no per-case result", rc)
	}
	s.markAll(bin, model.StatusNotRun, reason)
	return nil
}

// applyCaseOutcome walks c through the READY -> RUNNING -> terminal edge
// the state machine requires, since a batch-submitted case never passes
// through the scheduler's own dispatch() to pick up the RUNNING leg.
func (s *Submitter) applyCaseOutcome(c *model.TestCase, outcome scheduler.Outcome) {
	start := time.Now()
	if err := s.store.Transition(c.ID, model.StatusRunning, catalog.Mutation{Start: &start}); err != nil {
		logging.Warn("batch", "could not mark %s running before merging its batch result: %v", c.ID, err)
		return
	}
	status, reason := scheduler.TerminalStatus(c, outcome, nil, false, s.diffExitCode)
	stop := time.Now()
	rc := outcome.ReturnCode
	if err := s.store.Transition(c.ID, status, catalog.Mutation{Stop: &stop, ReturnCode: &rc, Reason: reason}); err != nil {
		logging.Warn("batch", "could not transition %s to %s: %v", c.ID, status, err)
	}
}

// readCaseOutcome loads the return code RenderCommands' script wrote for
// one member case. A missing or malformed file means the case never
// reported back, not that it succeeded.
func readCaseOutcome(workDir string, id model.CaseID) (scheduler.Outcome, bool) {
	if workDir == "" {
		return scheduler.Outcome{}, false
	}
	data, err := os.ReadFile(filepath.Join(workDir, string(id)+".rc"))
	if err != nil {
		return scheduler.Outcome{}, false
	}
	rc, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return scheduler.Outcome{}, false
	}
	return scheduler.Outcome{ReturnCode: rc}, true
}

func (s *Submitter) markAll(bin Bin, status model.Status, reason string) {
	for _, id := range bin.Members {
		c := s.store.Get(id)
		if c == nil || c.Status.Terminal() {
			continue
		}
		if err := s.store.Transition(id, status, catalog.Mutation{Reason: reason}); err != nil {
			logging.Warn("batch", "could not transition %s to %s: %v", id, status, err)
		}
	}
}
