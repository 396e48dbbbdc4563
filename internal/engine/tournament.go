package engine

import (
	"math/rand"

	"racehub/internal/domain"
	"racehub/pkg/gameerr"
)

// The bracket engine runs single-elimination tournaments with consolation
// placement. It is driven as an explicit round-by-round state machine over a
// work list of placement segments:
//
//   - The main bracket orders the champion. Losers are collected into bands,
//     one band per round; losing later means a better placement band.
//   - When a segment's bracket resolves to a single winner, that winner takes
//     the next best rank and the segment's bands are queued (best band first)
//     as new segments. One-team bands are ranked directly; larger bands get
//     their own consolation bracket.
//
// The loop terminates when every participant holds a distinct rank, giving
// exactly one first place and a total order over all N teams.

// newTournament creates the pending-phase state that collects arriving teams.
func newTournament(challengeID int, cfg *domain.TournamentConfig) *domain.TournamentState {
	name := ""
	if cfg != nil {
		name = cfg.GameName
	}
	return &domain.TournamentState{
		ChallengeID: challengeID,
		GameName:    name,
		Status:      domain.TournamentPending,
	}
}

// buildBracket freezes the participant set, shuffles it with a uniformly
// random permutation and opens the first round. An odd team count produces a
// bye, recorded as a match with no TeamB and the lone team as winner.
func buildBracket(t *domain.TournamentState, rng *rand.Rand) error {
	if t.Status != domain.TournamentPending {
		return gameerr.Conflict("tournament for challenge %d already has a bracket", t.ChallengeID)
	}
	if len(t.Participants) == 0 {
		return gameerr.Conflict("tournament for challenge %d has no participants", t.ChallengeID)
	}

	seeded := append([]string(nil), t.Participants...)
	rng.Shuffle(len(seeded), func(i, j int) {
		seeded[i], seeded[j] = seeded[j], seeded[i]
	})

	t.Version++
	if len(seeded) == 1 {
		t.Placed = []string{seeded[0]}
		finalize(t)
		return nil
	}

	t.OnMain = true
	t.Status = domain.TournamentInProgress
	t.Bracket = []domain.Round{pairRound(seeded)}
	return nil
}

// reportWinner records a match result for the current round. The team must
// be an active, undecided participant of that round.
func reportWinner(t *domain.TournamentState, teamID string) error {
	if t.Status == domain.TournamentComplete {
		return gameerr.TournamentComplete(t.ChallengeID)
	}

	round := t.CurrentRound()
	if round == nil {
		return gameerr.UnknownMatch(teamID)
	}

	for _, m := range round {
		if m.Decided() || !m.Has(teamID) {
			continue
		}
		m.Winner = teamID
		t.Version++
		if round.Decided() {
			advanceRound(t)
		}
		return nil
	}
	return gameerr.UnknownMatch(teamID)
}

// advanceRound moves a fully decided round forward: winners either form the
// next round or, when one remains, close out the segment.
func advanceRound(t *domain.TournamentState) {
	round := t.CurrentRound()

	winners := make([]string, 0, len(round))
	var losers []string
	for _, m := range round {
		winners = append(winners, m.Winner)
		if l := m.Loser(); l != "" {
			losers = append(losers, l)
		}
	}
	if len(losers) > 0 {
		// Later rounds produce better bands, so prepend.
		t.CurrentBands = append([][]string{losers}, t.CurrentBands...)
	}

	if len(winners) > 1 {
		appendRound(t, pairRound(winners))
		return
	}

	t.Placed = append(t.Placed, winners[0])
	t.PendingSegments = append(t.CurrentBands, t.PendingSegments...)
	t.CurrentBands = nil
	nextSegment(t)
}

// nextSegment opens a consolation bracket for the best remaining band, or
// finalizes the tournament when none remain.
func nextSegment(t *domain.TournamentState) {
	for len(t.PendingSegments) > 0 {
		seg := t.PendingSegments[0]
		t.PendingSegments = t.PendingSegments[1:]
		if len(seg) == 1 {
			t.Placed = append(t.Placed, seg[0])
			continue
		}
		t.OnMain = false
		t.Consolation = append(t.Consolation, pairRound(seg))
		return
	}
	finalize(t)
}

func finalize(t *domain.TournamentState) {
	t.Rankings = make([]string, len(t.Placed))
	for i, team := range t.Placed {
		t.Rankings[len(t.Placed)-1-i] = team
	}
	t.Status = domain.TournamentComplete
}

func appendRound(t *domain.TournamentState, r domain.Round) {
	if t.OnMain {
		t.Bracket = append(t.Bracket, r)
	} else {
		t.Consolation = append(t.Consolation, r)
	}
}

// pairRound pairs teams sequentially; a trailing odd team gets a bye that is
// decided immediately.
func pairRound(teams []string) domain.Round {
	r := make(domain.Round, 0, (len(teams)+1)/2)
	for i := 0; i+1 < len(teams); i += 2 {
		r = append(r, &domain.Match{TeamA: teams[i], TeamB: teams[i+1]})
	}
	if len(teams)%2 == 1 {
		last := teams[len(teams)-1]
		r = append(r, &domain.Match{TeamA: last, Winner: last})
	}
	return r
}
