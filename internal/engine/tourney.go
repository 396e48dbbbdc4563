package engine

import (
	"time"

	"racehub/internal/domain"
	"racehub/pkg/gameerr"
)

// recordArrival registers a team at a tournament challenge, creating the
// pending tournament on first arrival. The bracket is built automatically
// once every registered team has arrived; a bracket that completes on the
// spot (a lone arrival wins by default) resolves the challenge immediately
// and the completion events are returned.
func (e *Engine) recordArrival(teamID string, challengeID int) []domain.Event {
	e.tmu.Lock()
	defer e.tmu.Unlock()
	return e.recordArrivalLocked(teamID, challengeID)
}

// recordArrivalLocked is recordArrival for callers already holding tmu
// (tournament resolution can chain straight into the next tournament).
// Every caller already covers the arriving team, either through its entry
// lock or through an exclusive registry lock, so an on-the-spot resolution
// may touch that team's state without further locking.
func (e *Engine) recordArrivalLocked(teamID string, challengeID int) []domain.Event {
	cfg := e.challenge(challengeID)
	t, ok := e.tournaments[challengeID]
	if !ok {
		t = newTournament(challengeID, cfg.Tournament)
		e.tournaments[challengeID] = t
	}
	if t.Status != domain.TournamentPending {
		return nil
	}
	for _, p := range t.Participants {
		if p == teamID {
			return nil
		}
	}
	t.Participants = append(t.Participants, teamID)
	if len(t.Participants) != len(e.teams) {
		return nil
	}
	buildBracket(t, e.rng)
	if t.Status != domain.TournamentComplete {
		return nil
	}
	// The sole participant is the arriving team itself.
	entry, ok := e.teams[teamID]
	if !ok {
		return nil
	}
	return e.resolveTournamentLocked(t, []*teamEntry{entry})
}

// StartTournament force-builds the bracket from the teams that have arrived
// so far, for when stragglers should not hold up the pairing. A single
// arrival wins by default and the challenge resolves on the spot, so this
// uses the same two-phase locking as ReportTournamentWinner.
func (e *Engine) StartTournament(challengeID int) (*TournamentResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	e.tmu.Lock()
	t, ok := e.tournaments[challengeID]
	if !ok {
		e.tmu.Unlock()
		return nil, gameerr.NotFound("no tournament for challenge %d", challengeID)
	}
	participants := append([]string(nil), t.Participants...)
	version := t.Version
	e.tmu.Unlock()

	entries := e.sortedEntries(participants)
	for _, entry := range entries {
		entry.mu.Lock()
	}
	defer func() {
		for _, entry := range entries {
			entry.mu.Unlock()
		}
	}()

	e.tmu.Lock()
	defer e.tmu.Unlock()

	if cur, ok := e.tournaments[challengeID]; !ok || cur != t || t.Version != version {
		return nil, gameerr.Conflict("tournament for challenge %d changed concurrently, retry", challengeID)
	}
	if err := buildBracket(t, e.rng); err != nil {
		return nil, err
	}
	res := &TournamentResult{State: t.Clone()}
	if t.Status == domain.TournamentComplete {
		res.Resolved = true
		res.Events = e.resolveTournamentLocked(t, entries)
	}
	return res, nil
}

// TournamentStatus returns a copy of the bracket state.
func (e *Engine) TournamentStatus(challengeID int) (*domain.TournamentState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	e.tmu.Lock()
	defer e.tmu.Unlock()

	t, ok := e.tournaments[challengeID]
	if !ok {
		return nil, gameerr.NotFound("no tournament for challenge %d", challengeID)
	}
	return t.Clone(), nil
}

// ResetTournament discards the bracket and reseeds a pending tournament
// from the teams currently waiting at the challenge, so pairing can start
// over after a mistake.
func (e *Engine) ResetTournament(challengeID int) (*domain.TournamentState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := e.challenge(challengeID)
	if cfg == nil || cfg.Verification.Method != domain.MethodTournament {
		return nil, gameerr.NotFound("challenge %d is not a tournament", challengeID)
	}

	e.tmu.Lock()
	defer e.tmu.Unlock()

	t := newTournament(challengeID, cfg.Tournament)
	// The registry lock excludes all team operations, so team state can be
	// read without entry locks here.
	for _, entry := range e.teams {
		if entry.state.CurrentIndex == challengeID && !entry.state.HasCompleted(challengeID) {
			t.Participants = append(t.Participants, entry.state.ID)
		}
	}
	e.tournaments[challengeID] = t
	return t.Clone(), nil
}

// TournamentResult reports a recorded match outcome and, when the bracket
// completed, the per-team completion events and forced penalties.
type TournamentResult struct {
	State    *domain.TournamentState `json:"state"`
	Resolved bool                    `json:"resolved"`
	Events   []domain.Event          `json:"events,omitempty"`
}

// ReportTournamentWinner records a match winner. When the result completes
// the bracket the challenge is resolved for every participant: all advance,
// and the last-placed team is held by the larger of its hint penalty and
// the tournament loss penalty.
//
// Locking is two-phase: the participant list is snapshotted under the
// tournament lock, the participant teams are then locked in ascending id
// order, and the tournament lock is reacquired with a version check so a
// concurrent reset or report cannot interleave.
func (e *Engine) ReportTournamentWinner(challengeID int, teamID string) (*TournamentResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.started {
		return nil, gameerr.GameNotStarted()
	}
	if e.ended {
		return nil, gameerr.GameEnded()
	}

	e.tmu.Lock()
	t, ok := e.tournaments[challengeID]
	if !ok {
		e.tmu.Unlock()
		return nil, gameerr.NotFound("no tournament for challenge %d", challengeID)
	}
	if t.Status == domain.TournamentPending {
		e.tmu.Unlock()
		return nil, gameerr.Conflict("tournament for challenge %d has not started yet", challengeID)
	}
	participants := append([]string(nil), t.Participants...)
	version := t.Version
	e.tmu.Unlock()

	entries := e.sortedEntries(participants)
	for _, entry := range entries {
		entry.mu.Lock()
	}
	defer func() {
		for _, entry := range entries {
			entry.mu.Unlock()
		}
	}()

	e.tmu.Lock()
	defer e.tmu.Unlock()

	if cur, ok := e.tournaments[challengeID]; !ok || cur != t || t.Version != version {
		return nil, gameerr.Conflict("tournament for challenge %d changed concurrently, retry", challengeID)
	}

	if err := reportWinner(t, teamID); err != nil {
		return nil, err
	}

	res := &TournamentResult{State: t.Clone()}
	if t.Status == domain.TournamentComplete {
		res.Resolved = true
		res.Events = e.resolveTournamentLocked(t, entries)
	}
	return res, nil
}

// resolveTournamentLocked completes the tournament challenge for every
// participant once the full ranking exists. Caller holds the participant
// team locks and tmu.
func (e *Engine) resolveTournamentLocked(t *domain.TournamentState, entries []*teamEntry) []domain.Event {
	cfg := e.challenge(t.ChallengeID)
	last := t.LastPlace()

	var events []domain.Event
	for _, entry := range entries {
		team := entry.state
		if team.HasCompleted(t.ChallengeID) || team.CurrentIndex != t.ChallengeID {
			continue
		}
		var forced time.Duration
		if team.ID == last && len(t.Rankings) > 1 {
			// A team that won by default is not the loser.
			forced = cfg.Tournament.Timeout()
		}
		comp := domain.Completion{ChallengeID: t.ChallengeID}
		evs, _, arrival := e.completeLocked(team, cfg, comp, forced)
		events = append(events, evs...)
		if arrival != 0 {
			events = append(events, e.recordArrivalLocked(team.ID, arrival)...)
		}
	}
	return events
}
