package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"racehub/internal/domain"
	"racehub/pkg/gameerr"
)

// CreateTeam registers a new team with the creating user as captain. Teams
// can form before or after the race starts, but not once it has ended.
// Mid-game creation can land the team straight in a tournament; any events
// that resolution produces are returned alongside the team.
func (e *Engine) CreateTeam(userID, userName, teamName string) (*domain.TeamState, []domain.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ended {
		return nil, nil, gameerr.GameEnded()
	}
	teamName = strings.TrimSpace(teamName)
	if teamName == "" {
		return nil, nil, gameerr.Validation("team name cannot be empty")
	}
	if _, ok := e.userIndex[userID]; ok {
		return nil, nil, gameerr.Conflict("user %q is already on a team", userID)
	}
	for _, entry := range e.teams {
		if strings.EqualFold(entry.state.Name, teamName) {
			return nil, nil, gameerr.Conflict("team name %q is taken", teamName)
		}
	}

	id := uuid.NewString()
	state := domain.NewTeamState(id, teamName, userID, userName, e.clock.Now())
	e.teams[id] = &teamEntry{state: state}
	e.userIndex[userID] = id

	var events []domain.Event
	if e.started {
		if cfg := e.challenge(state.CurrentIndex); cfg != nil && cfg.Verification.Method == domain.MethodTournament {
			events = e.recordArrival(id, state.CurrentIndex)
		}
	}
	return state.Clone(), events, nil
}

// JoinTeam adds a user to an existing team.
func (e *Engine) JoinTeam(userID, userName, teamID string) (*domain.TeamState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ended {
		return nil, gameerr.GameEnded()
	}
	if _, ok := e.userIndex[userID]; ok {
		return nil, gameerr.Conflict("user %q is already on a team", userID)
	}
	entry, ok := e.teams[teamID]
	if !ok {
		return nil, gameerr.NotFound("team %q does not exist", teamID)
	}
	team := entry.state
	if e.maxTeamSize > 0 && len(team.Members) >= e.maxTeamSize {
		return nil, gameerr.Conflict("team %q is full", team.Name)
	}

	team.Members = append(team.Members, domain.Member{UserID: userID, Name: userName})
	e.userIndex[userID] = teamID
	return team.Clone(), nil
}

// RemoveMember takes a user off a team. The captaincy passes to the next
// member; removing the last member dissolves the team.
func (e *Engine) RemoveMember(teamID, userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.teams[teamID]
	if !ok {
		return gameerr.NotFound("team %q does not exist", teamID)
	}
	team := entry.state
	idx := -1
	for i, m := range team.Members {
		if m.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return gameerr.NotFound("user %q is not on team %q", userID, teamID)
	}

	wasCaptain := team.Members[idx].Captain
	team.Members = append(team.Members[:idx], team.Members[idx+1:]...)
	delete(e.userIndex, userID)

	if len(team.Members) == 0 {
		e.dropTeamLocked(teamID)
		return nil
	}
	if wasCaptain {
		team.Members[0].Captain = true
	}
	return nil
}

// RemoveTeam deletes a team and frees its members to join other teams.
func (e *Engine) RemoveTeam(teamID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.teams[teamID]
	if !ok {
		return gameerr.NotFound("team %q does not exist", teamID)
	}
	for _, m := range entry.state.Members {
		delete(e.userIndex, m.UserID)
	}
	e.dropTeamLocked(teamID)
	return nil
}

// dropTeamLocked removes the team from the registry and from any pending
// tournament it was waiting in. Caller holds the registry write lock.
func (e *Engine) dropTeamLocked(teamID string) {
	delete(e.teams, teamID)

	e.tmu.Lock()
	defer e.tmu.Unlock()
	for _, t := range e.tournaments {
		if t.Status != domain.TournamentPending {
			continue
		}
		for i, p := range t.Participants {
			if p == teamID {
				t.Participants = append(t.Participants[:i], t.Participants[i+1:]...)
				break
			}
		}
	}
}

// StartGame opens the race. Teams already at a tournament first challenge
// are registered as arrivals; a solo field resolves such a tournament
// immediately and the resulting events are returned.
func (e *Engine) StartGame() ([]domain.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ended {
		return nil, gameerr.GameEnded()
	}
	if e.started {
		return nil, gameerr.Conflict("the game is already running")
	}
	e.started = true

	var events []domain.Event
	for id, entry := range e.teams {
		if cfg := e.challenge(entry.state.CurrentIndex); cfg != nil && cfg.Verification.Method == domain.MethodTournament {
			events = append(events, e.recordArrival(id, entry.state.CurrentIndex)...)
		}
	}
	return events, nil
}

// EndGame closes the race; all gameplay operations fail afterwards, but
// the leaderboard and snapshots stay readable.
func (e *Engine) EndGame() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return gameerr.GameNotStarted()
	}
	if e.ended {
		return gameerr.Conflict("the game has already ended")
	}
	e.ended = true
	return nil
}

// Reset wipes all teams, tournaments and flags. Taking the registry lock
// exclusively excludes every in-flight team operation.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.started = false
	e.ended = false
	e.teams = map[string]*teamEntry{}
	e.userIndex = map[string]string{}

	e.tmu.Lock()
	e.tournaments = map[int]*domain.TournamentState{}
	e.tmu.Unlock()
}

// Started reports whether the race is running.
func (e *Engine) Started() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.started && !e.ended
}

// TeamForUser returns a copy of the caller's team state.
func (e *Engine) TeamForUser(userID string) (*domain.TeamState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	teamID, ok := e.userIndex[userID]
	if !ok {
		return nil, gameerr.NoTeam()
	}
	entry := e.teams[teamID]
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state.Clone(), nil
}

// TeamByID returns a copy of the given team's state.
func (e *Engine) TeamByID(teamID string) (*domain.TeamState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, ok := e.teams[teamID]
	if !ok {
		return nil, gameerr.NotFound("team %q does not exist", teamID)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state.Clone(), nil
}

// Teams returns copies of every team, ordered by id.
func (e *Engine) Teams() []*domain.TeamState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.teams))
	for id := range e.teams {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*domain.TeamState, 0, len(ids))
	for _, id := range ids {
		entry := e.teams[id]
		entry.mu.Lock()
		out = append(out, entry.state.Clone())
		entry.mu.Unlock()
	}
	return out
}

// LeaderboardEntry is one row of the standings.
type LeaderboardEntry struct {
	Rank           int        `json:"rank"`
	TeamID         string     `json:"team_id"`
	TeamName       string     `json:"team_name"`
	CompletedCount int        `json:"completed_count"`
	TotalCount     int        `json:"total_count"`
	Finished       bool       `json:"finished"`
	FinishTime     *time.Time `json:"finish_time,omitempty"`
}

// Leaderboard ranks finished teams by finish time ascending, then
// unfinished teams by completed count descending, names breaking ties.
func (e *Engine) Leaderboard() []LeaderboardEntry {
	teams := e.Teams()

	sort.SliceStable(teams, func(i, j int) bool {
		a, b := teams[i], teams[j]
		switch {
		case a.Finished() && b.Finished():
			return a.FinishTime.Before(*b.FinishTime)
		case a.Finished():
			return true
		case b.Finished():
			return false
		case a.CompletedCount() != b.CompletedCount():
			return a.CompletedCount() > b.CompletedCount()
		default:
			return a.Name < b.Name
		}
	})

	out := make([]LeaderboardEntry, 0, len(teams))
	for i, t := range teams {
		row := LeaderboardEntry{
			Rank:           i + 1,
			TeamID:         t.ID,
			TeamName:       t.Name,
			CompletedCount: t.CompletedCount(),
			TotalCount:     e.maxID,
			Finished:       t.Finished(),
		}
		if t.FinishTime != nil {
			ft := *t.FinishTime
			row.FinishTime = &ft
		}
		out = append(out, row)
	}
	return out
}

// Snapshot captures the full game state for persistence.
func (e *Engine) Snapshot() *domain.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := &domain.Snapshot{
		Started:     e.started,
		Ended:       e.ended,
		Teams:       map[string]*domain.TeamState{},
		Tournaments: map[int]*domain.TournamentState{},
		SavedAt:     e.clock.Now(),
	}

	ids := make([]string, 0, len(e.teams))
	for id := range e.teams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		entry := e.teams[id]
		entry.mu.Lock()
		snap.Teams[id] = entry.state.Clone()
		entry.mu.Unlock()
	}

	e.tmu.Lock()
	for cid, t := range e.tournaments {
		snap.Tournaments[cid] = t.Clone()
	}
	e.tmu.Unlock()

	return snap
}

// Restore replaces all in-memory state with a previously captured
// snapshot.
func (e *Engine) Restore(snap *domain.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.started = snap.Started
	e.ended = snap.Ended
	e.teams = map[string]*teamEntry{}
	e.userIndex = map[string]string{}
	for id, state := range snap.Teams {
		e.teams[id] = &teamEntry{state: state.Clone()}
		for _, m := range state.Members {
			e.userIndex[m.UserID] = id
		}
	}

	e.tmu.Lock()
	e.tournaments = map[int]*domain.TournamentState{}
	for cid, t := range snap.Tournaments {
		e.tournaments[cid] = t.Clone()
	}
	e.tmu.Unlock()
}
