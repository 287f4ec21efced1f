package strategy

import (
	"time"

	"github.com/go-rod/rod"
	"github.com/google/uuid"
)

// session wraps one browser tab with health tracking. A strategy owns exactly
// one session at a time; the session is recycled between keywords so repeat
// visits do not present a long-lived, uniform fingerprint.
type session struct {
	id       string
	page     *rod.Page
	errScore float64
	useCount int
	created  time.Time
}

func newSession(page *rod.Page) *session {
	return &session{
		id:      uuid.NewString(),
		page:    page,
		created: time.Now(),
	}
}

// recordSuccess decreases the error score (min 0).
func (s *session) recordSuccess() {
	s.useCount++
	s.errScore -= 0.5
	if s.errScore < 0 {
		s.errScore = 0
	}
}

// recordFailure increases the error score.
func (s *session) recordFailure() {
	s.useCount++
	s.errScore += 1.0
}

// shouldRetire reports whether the session is unhealthy or stale enough that
// it must be torn down rather than reused.
func (s *session) shouldRetire(maxUses int, maxAge time.Duration) bool {
	if s.errScore >= 3.0 {
		return true
	}
	if maxUses > 0 && s.useCount >= maxUses {
		return true
	}
	if maxAge > 0 && time.Since(s.created) >= maxAge {
		return true
	}
	return false
}

// close releases the underlying tab.
func (s *session) close() {
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
}
