package model

// Status is a TestCase's position in its execution lifecycle:
// CREATED -> PENDING -> READY -> RUNNING -> {terminal}, with the single
// documented back-edge RUNNING -> READY used for retries.
type Status int

const (
	StatusCreated Status = iota
	StatusPending
	StatusReady
	StatusRunning
	StatusSuccess
	StatusDiff
	StatusFail
	StatusTimeout
	StatusCancelled
	StatusNotRun
	StatusSkip
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusPending:
		return "PENDING"
	case StatusReady:
		return "READY"
	case StatusRunning:
		return "RUNNING"
	case StatusSuccess:
		return "SUCCESS"
	case StatusDiff:
		return "DIFF"
	case StatusFail:
		return "FAIL"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusCancelled:
		return "CANCELLED"
	case StatusNotRun:
		return "NOT_RUN"
	case StatusSkip:
		return "SKIP"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether a case in this status will never be rescheduled
// in the current session.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusDiff, StatusFail, StatusTimeout, StatusCancelled, StatusNotRun, StatusSkip:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is legal under the
// one-way state machine (the RUNNING->READY retry edge is the sole
// exception).
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusCreated:
		return next == StatusPending || next == StatusReady
	case StatusPending:
		return next == StatusReady || next == StatusNotRun
	case StatusReady:
		return next == StatusRunning || next == StatusNotRun || next == StatusCancelled || next == StatusFail
	case StatusRunning:
		return next == StatusReady || next.Terminal()
	default:
		return false
	}
}

// MetByEdge evaluates an upstream status against a dependency edge's
// result filter on a dependency edge: `result` in {success, diff,
// success|diff, *}; an empty/unspecified filter means "pass-or-diff".
func MetByEdge(upstream Status, result string) bool {
	switch result {
	case "", "success|diff":
		return upstream == StatusSuccess || upstream == StatusDiff
	case "success":
		return upstream == StatusSuccess
	case "diff":
		return upstream == StatusDiff
	case "*":
		return upstream.Terminal()
	default:
		return upstream == StatusSuccess || upstream == StatusDiff
	}
}
