package engine

import (
	"time"

	"racehub/internal/domain"
	"racehub/pkg/gameerr"
)

// HintResult is the outcome of a successful hint request.
type HintResult struct {
	// Index is the 1-based index of the revealed hint.
	Index int    `json:"index"`
	Text  string `json:"text"`
	// Remaining counts hints still unrevealed for this challenge.
	Remaining int `json:"remaining"`
	// PenaltyDuration is the total penalty the team now carries for this
	// challenge if they complete it without further hints.
	PenaltyDuration time.Duration `json:"penalty_duration"`
	// CappedAtMax is true when this was the final available hint.
	CappedAtMax bool `json:"capped_at_max"`
}

// penaltyScheduler is the single authority on hint usage and penalty
// timing. All methods are called under the owning team's lock; the
// scheduler itself holds no state beyond the injected clock.
type penaltyScheduler struct {
	clock Clock
}

// requestHint reveals the next hint in stored order. Hints are never
// skippable: each call reveals exactly the hint after the last one used.
func (s *penaltyScheduler) requestHint(cfg *domain.ChallengeConfig, team *domain.TeamState) (*HintResult, error) {
	used := team.HintsUsed[cfg.ID]
	if used >= len(cfg.Hints) {
		return nil, gameerr.NoMoreHints(cfg.ID)
	}

	team.HintsUsed[cfg.ID] = used + 1
	return &HintResult{
		Index:           used + 1,
		Text:            cfg.Hints[used],
		Remaining:       len(cfg.Hints) - used - 1,
		PenaltyDuration: cfg.PenaltyFor(used + 1),
		CappedAtMax:     used+1 >= len(cfg.Hints),
	}, nil
}

// installPenalty attaches a pending penalty withholding nextID's content for
// the given duration. A zero duration installs nothing. When a penalty is
// already pending for the same transition the later expiry wins; penalties
// never stack additively.
func (s *penaltyScheduler) installPenalty(team *domain.TeamState, nextID int, d time.Duration) *domain.PendingPenalty {
	if d <= 0 {
		return nil
	}
	expires := s.clock.Now().Add(d)
	if p := team.PendingPenalty; p != nil && p.ChallengeID == nextID {
		if expires.After(p.ExpiresAt) {
			p.ExpiresAt = expires
		}
		return p
	}
	team.PendingPenalty = &domain.PendingPenalty{
		ChallengeID: nextID,
		ExpiresAt:   expires,
	}
	return team.PendingPenalty
}

// locked reports whether the team's current challenge is still withheld,
// along with the remaining wait.
func (s *penaltyScheduler) locked(team *domain.TeamState) (bool, time.Duration) {
	p := team.PendingPenalty
	if p == nil || p.ChallengeID != team.CurrentIndex {
		return false, 0
	}
	remaining := p.ExpiresAt.Sub(s.clock.Now())
	if remaining <= 0 {
		return false, 0
	}
	return true, remaining
}

// checkExpiry performs the pull-based expiry check. It returns true exactly
// once per penalty: the first call observing the expiry flips BroadcastSent
// so every later call is a no-op, no matter how many concurrent triggers
// arrive (callers serialize on the team lock).
func (s *penaltyScheduler) checkExpiry(team *domain.TeamState) bool {
	p := team.PendingPenalty
	if p == nil || p.BroadcastSent {
		return false
	}
	if s.clock.Now().Before(p.ExpiresAt) {
		return false
	}
	p.BroadcastSent = true
	return true
}
