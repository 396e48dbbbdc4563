package engine

import (
	"racehub/internal/domain"
	"racehub/pkg/gameerr"
)

// Challenge availability states as seen by a team.
const (
	StateActive           = "active"
	StatePenaltyHeld      = "penalty_held"
	StateAwaitingPhoto    = "awaiting_photo_gate"
	StatePhotoUnderReview = "photo_under_review"
	StateTournamentWait   = "tournament_pending"
	StateFinished         = "finished"
)

// ChallengeStatus describes the team's current challenge and how far the
// team is through it. Content for a held or gated challenge is withheld by
// the transport layer based on State.
type ChallengeStatus struct {
	ChallengeID    int    `json:"challenge_id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	Description    string `json:"description"`
	State          string `json:"state"`
	RemainingLock  int    `json:"remaining_lock_seconds,omitempty"`
	HintsUsed      int    `json:"hints_used"`
	HintsTotal     int    `json:"hints_total"`
	ChecklistDone  int    `json:"checklist_done,omitempty"`
	ChecklistTotal int    `json:"checklist_total,omitempty"`
	CompletedCount int    `json:"completed_count"`
	TotalCount     int    `json:"total_count"`
}

// CurrentChallenge reports the caller's current challenge and its
// availability state. Penalty expiry is checked on the way, so a status
// poll can itself trigger the unlock broadcast.
func (e *Engine) CurrentChallenge(userID string) (*ChallengeStatus, []domain.Event, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, err := e.entryForUser(userID)
	if err != nil {
		return nil, nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	team := entry.state

	events := e.expireLocked(team)

	status := &ChallengeStatus{
		CompletedCount: team.CompletedCount(),
		TotalCount:     e.maxID,
	}
	if team.Finished() {
		status.State = StateFinished
		return status, events, nil
	}

	cid := team.CurrentIndex
	cfg := e.challenge(cid)
	if cfg == nil {
		return nil, events, gameerr.Internal("current challenge out of range", nil)
	}

	status.ChallengeID = cid
	status.Name = cfg.Name
	status.Type = string(cfg.Type)
	status.Description = cfg.Description
	status.HintsUsed = team.HintsUsed[cid]
	status.HintsTotal = len(cfg.Hints)
	if cfg.Verification.IsChecklist() {
		status.ChecklistTotal = len(cfg.Verification.ChecklistItems)
		for _, done := range team.Checklist[cid] {
			if done {
				status.ChecklistDone++
			}
		}
	}

	locked, rem := e.scheduler.locked(team)
	switch {
	case locked:
		status.State = StatePenaltyHeld
		status.RemainingLock = int(rem.Seconds())
	case team.PendingPhoto != nil && team.PendingPhoto.ChallengeID == cid:
		status.State = StatePhotoUnderReview
	case e.photoGateRequired(cfg) && !team.PhotoVerified[cid]:
		status.State = StateAwaitingPhoto
	case cfg.Verification.Method == domain.MethodTournament:
		status.State = StateTournamentWait
	default:
		status.State = StateActive
	}
	return status, events, nil
}
