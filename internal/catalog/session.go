package catalog

import "github.com/google/uuid"

// NewSessionID returns a fresh session identifier. It's folded into the
// session's workspace directory name and into batch working-directory
// names so two sessions against the same work tree never collide.
func NewSessionID() string {
	return uuid.NewString()
}
