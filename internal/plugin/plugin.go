// Package plugin defines the two extension points the engine calls
// through interfaces rather than concrete types: file parsers that turn
// a suite's source files into draft specs, and scheduler backends that
// submit and poll HPC batch jobs. Both are discovered through a small
// static registry populated at process startup.
package plugin

import (
	"fmt"
	"sync"
	"time"

	"testforge/internal/model"
)

// Parser turns one suite source file into zero or more draft specs. The
// engine calls Matches to pick a parser for a path, then Parse to expand
// it; there is no ordering requirement across files.
type Parser interface {
	Matches(path string) bool
	Parse(root, relative string) ([]model.DraftSpec, error)
}

// Job is a handle to one submitted scheduler job (or job array).
type Job interface {
	ID() string
	Poll() (rc int, done bool, err error)
	Cancel() error
}

// SubmitRequest carries everything a backend needs to render and submit
// a batch script.
type SubmitRequest struct {
	Name        string
	Commands    []string
	Nodes       int
	ScriptName  string
	OutputPath  string
	ErrorPath   string
	SubmitFlags []string
	Variables   map[string]string
	QueueTime   time.Duration
}

// SchedulerBackend submits and tracks HPC batch jobs.
type SchedulerBackend interface {
	Submit(req SubmitRequest) (Job, error)
	Submitn(reqs []SubmitRequest) ([]Job, error)
	CountPerNode(resourceType string) int
	PollingFrequency() time.Duration
}

var (
	mu       sync.Mutex
	parsers  []Parser
	backends = make(map[string]SchedulerBackend)
)

// RegisterParser adds a parser to the static registry. Called from
// plugin implementations' init() functions.
func RegisterParser(p Parser) {
	mu.Lock()
	defer mu.Unlock()
	parsers = append(parsers, p)
}

// RegisterBackend adds a named scheduler backend to the static registry.
func RegisterBackend(name string, b SchedulerBackend) {
	mu.Lock()
	defer mu.Unlock()
	backends[name] = b
}

// ParserFor returns the first registered parser that matches path, or
// nil if none do.
func ParserFor(path string) Parser {
	mu.Lock()
	defer mu.Unlock()
	for _, p := range parsers {
		if p.Matches(path) {
			return p
		}
	}
	return nil
}

// Backend looks up a registered scheduler backend by name.
func Backend(name string) (SchedulerBackend, error) {
	mu.Lock()
	defer mu.Unlock()
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("plugin: no scheduler backend registered under %q", name)
	}
	return b, nil
}
