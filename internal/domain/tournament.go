package domain

// TournamentStatus tracks the lifecycle of one tournament challenge.
type TournamentStatus string

const (
	// TournamentPending collects arriving teams; no bracket exists yet.
	TournamentPending TournamentStatus = "pending"
	// TournamentInProgress has a live bracket accepting match results.
	TournamentInProgress TournamentStatus = "in_progress"
	// TournamentComplete has a full ranking assigned.
	TournamentComplete TournamentStatus = "complete"
)

// Match pairs two teams. An empty TeamB marks a bye; bye matches are decided
// at creation with TeamA as the winner.
type Match struct {
	TeamA  string `json:"team_a"`
	TeamB  string `json:"team_b,omitempty"`
	Winner string `json:"winner,omitempty"`
}

// IsBye reports whether this match is an automatic advancement.
func (m *Match) IsBye() bool { return m.TeamB == "" }

// Decided reports whether a winner has been recorded.
func (m *Match) Decided() bool { return m.Winner != "" }

// Has reports whether the team plays in this match.
func (m *Match) Has(teamID string) bool {
	return m.TeamA == teamID || (m.TeamB != "" && m.TeamB == teamID)
}

// Loser returns the losing side of a decided, non-bye match.
func (m *Match) Loser() string {
	if !m.Decided() || m.IsBye() {
		return ""
	}
	if m.Winner == m.TeamA {
		return m.TeamB
	}
	return m.TeamA
}

// Round is one set of simultaneous matches.
type Round []*Match

// Decided reports whether every match in the round has a winner.
func (r Round) Decided() bool {
	for _, m := range r {
		if !m.Decided() {
			return false
		}
	}
	return true
}

// TournamentState is the full state of one tournament challenge. The main
// bracket orders the champion; losers accumulate into per-round bands which
// are played out in the consolation bracket until every participant holds a
// distinct rank.
type TournamentState struct {
	ChallengeID int              `json:"challenge_id"`
	GameName    string           `json:"game_name"`
	Status      TournamentStatus `json:"status"`

	// Participants fixed when the bracket is built (after the pending phase).
	Participants []string `json:"participants"`

	Bracket     []Round `json:"bracket"`
	Consolation []Round `json:"consolation"`

	// Rankings lists teams from last place to first, populated on completion.
	Rankings []string `json:"rankings,omitempty"`

	// Placed accumulates ranked teams best-first while segments resolve.
	Placed []string `json:"placed,omitempty"`
	// PendingSegments are placement bands still needing their own bracket,
	// best band first.
	PendingSegments [][]string `json:"pending_segments,omitempty"`
	// CurrentBands collects losers of the active segment, one band per round.
	CurrentBands [][]string `json:"current_bands,omitempty"`
	// OnMain is true while the active round belongs to the main bracket.
	OnMain bool `json:"on_main"`

	// Version increments on every structural change; cross-team completion
	// revalidates against it after reacquiring locks.
	Version int `json:"version"`
}

// CurrentRound returns the round currently accepting results, or nil.
func (t *TournamentState) CurrentRound() Round {
	if t.Status != TournamentInProgress {
		return nil
	}
	rounds := t.Consolation
	if t.OnMain {
		rounds = t.Bracket
	}
	if len(rounds) == 0 {
		return nil
	}
	return rounds[len(rounds)-1]
}

// LastPlace returns the last-ranked team once the tournament is complete.
func (t *TournamentState) LastPlace() string {
	if t.Status != TournamentComplete || len(t.Rankings) == 0 {
		return ""
	}
	return t.Rankings[0]
}

// Clone returns a deep copy for read-only snapshots.
func (t *TournamentState) Clone() *TournamentState {
	cp := *t
	cp.Participants = append([]string(nil), t.Participants...)
	cp.Rankings = append([]string(nil), t.Rankings...)
	cp.Placed = append([]string(nil), t.Placed...)
	cp.Bracket = cloneRounds(t.Bracket)
	cp.Consolation = cloneRounds(t.Consolation)
	cp.PendingSegments = cloneBands(t.PendingSegments)
	cp.CurrentBands = cloneBands(t.CurrentBands)
	return &cp
}

func cloneRounds(rounds []Round) []Round {
	out := make([]Round, len(rounds))
	for i, r := range rounds {
		cr := make(Round, len(r))
		for j, m := range r {
			mc := *m
			cr[j] = &mc
		}
		out[i] = cr
	}
	return out
}

func cloneBands(bands [][]string) [][]string {
	out := make([][]string, len(bands))
	for i, b := range bands {
		out[i] = append([]string(nil), b...)
	}
	return out
}
