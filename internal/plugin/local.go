package plugin

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// localJob runs a batch script as a plain child process, for suites run
// without an HPC scheduler underneath.
type localJob struct {
	id  string
	cmd *exec.Cmd

	mu   sync.Mutex
	rc   int
	done bool
	err  error
}

func (j *localJob) ID() string { return j.id }

func (j *localJob) Poll() (int, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rc, j.done, j.err
}

func (j *localJob) Cancel() error {
	if j.cmd.Process == nil {
		return nil
	}
	return j.cmd.Process.Kill()
}

// LocalBackend runs each submitted batch as a local subprocess; it
// exists for development and single-node runs where there is no real
// HPC scheduler to submit to.
type LocalBackend struct {
	counter int64
}

// NewLocalBackend constructs a LocalBackend.
func NewLocalBackend() *LocalBackend { return &LocalBackend{} }

func (b *LocalBackend) Submit(req SubmitRequest) (Job, error) {
	id := fmt.Sprintf("local-%d", atomic.AddInt64(&b.counter, 1))
	cmd := exec.Command("sh", "-c", strings.Join(req.Commands, "\n"))
	job := &localJob{id: id, cmd: cmd}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("plugin: local submit: %w", err)
	}
	go func() {
		err := cmd.Wait()
		job.mu.Lock()
		job.done = true
		if ee, ok := err.(*exec.ExitError); ok {
			job.rc = ee.ExitCode()
		} else {
			job.err = err
		}
		job.mu.Unlock()
	}()
	return job, nil
}

func (b *LocalBackend) Submitn(reqs []SubmitRequest) ([]Job, error) {
	jobs := make([]Job, 0, len(reqs))
	for _, r := range reqs {
		j, err := b.Submit(r)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (b *LocalBackend) CountPerNode(resourceType string) int { return 1 }

func (b *LocalBackend) PollingFrequency() time.Duration { return 500 * time.Millisecond }
