package engine

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racehub/internal/domain"
	"racehub/pkg/gameerr"
)

func testBracket(t *testing.T, participants ...string) *domain.TournamentState {
	t.Helper()
	ts := newTournament(7, &domain.TournamentConfig{GameName: "rock paper scissors"})
	ts.Participants = participants
	require.NoError(t, buildBracket(ts, rand.New(rand.NewSource(42))))
	return ts
}

// firstUndecided returns the first open match of the current round.
func firstUndecided(t *testing.T, ts *domain.TournamentState) *domain.Match {
	t.Helper()
	round := ts.CurrentRound()
	require.NotNil(t, round)
	for _, m := range round {
		if !m.Decided() {
			return m
		}
	}
	t.Fatal("no undecided match in current round")
	return nil
}

// playOut drives the tournament to completion, always awarding the first
// open match to its TeamA, and records who won and lost real matches.
func playOut(t *testing.T, ts *domain.TournamentState) (wins, losses map[string]int) {
	t.Helper()
	wins = map[string]int{}
	losses = map[string]int{}
	for ts.Status != domain.TournamentComplete {
		m := firstUndecided(t, ts)
		require.NoError(t, reportWinner(ts, m.TeamA))
		wins[m.TeamA]++
		losses[m.TeamB]++
	}
	return wins, losses
}

func TestBracket_SingleParticipant(t *testing.T) {
	ts := testBracket(t, "alpha")
	assert.Equal(t, domain.TournamentComplete, ts.Status)
	assert.Equal(t, []string{"alpha"}, ts.Rankings)
}

func TestBracket_TwoTeams(t *testing.T) {
	ts := testBracket(t, "alpha", "bravo")
	require.Equal(t, domain.TournamentInProgress, ts.Status)
	require.Len(t, ts.Bracket, 1)
	require.Len(t, ts.Bracket[0], 1)

	require.NoError(t, reportWinner(ts, "alpha"))
	assert.Equal(t, domain.TournamentComplete, ts.Status)
	assert.Equal(t, []string{"bravo", "alpha"}, ts.Rankings)
	assert.Equal(t, "bravo", ts.LastPlace())
}

func TestBracket_ThreeTeamsWithBye(t *testing.T) {
	ts := testBracket(t, "alpha", "bravo", "charlie")
	round := ts.Bracket[0]
	require.Len(t, round, 2)

	real, bye := round[0], round[1]
	require.False(t, real.IsBye())
	require.True(t, bye.IsBye())
	assert.Equal(t, bye.TeamA, bye.Winner, "bye decides itself")

	// Real match winner meets the bye team in the final.
	require.NoError(t, reportWinner(ts, real.TeamA))
	final := firstUndecided(t, ts)
	assert.ElementsMatch(t,
		[]string{real.TeamA, bye.TeamA},
		[]string{final.TeamA, final.TeamB})

	require.NoError(t, reportWinner(ts, real.TeamA))
	assert.Equal(t, domain.TournamentComplete, ts.Status)
	// First-round loser places last, the beaten bye team second.
	assert.Equal(t, []string{real.TeamB, bye.TeamA, real.TeamA}, ts.Rankings)
}

func TestBracket_FullRankingProperties(t *testing.T) {
	for _, n := range []int{2, 3, 4, 5, 6, 7, 8, 11} {
		t.Run(fmt.Sprintf("%d teams", n), func(t *testing.T) {
			teams := make([]string, n)
			for i := range teams {
				teams[i] = fmt.Sprintf("team-%02d", i)
			}
			ts := testBracket(t, teams...)
			wins, losses := playOut(t, ts)

			require.Len(t, ts.Rankings, n, "every team gets a rank")
			assert.ElementsMatch(t, teams, ts.Rankings, "ranking is a permutation")

			champion := ts.Rankings[n-1]
			assert.Zero(t, losses[champion], "champion never lost")

			last := ts.LastPlace()
			assert.Zero(t, wins[last], "last place never won a real match")
			assert.Greater(t, losses[last], 0)
		})
	}
}

func TestBracket_EightTeamsMainRounds(t *testing.T) {
	teams := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	ts := testBracket(t, teams...)
	playOut(t, ts)

	// A power-of-two field has no byes: three main rounds of 4, 2, 1.
	require.Len(t, ts.Bracket, 3)
	assert.Len(t, ts.Bracket[0], 4)
	assert.Len(t, ts.Bracket[1], 2)
	assert.Len(t, ts.Bracket[2], 1)
	for _, round := range ts.Bracket {
		for _, m := range round {
			assert.False(t, m.IsBye())
		}
	}
}

func TestReportWinner_Errors(t *testing.T) {
	ts := testBracket(t, "alpha", "bravo", "charlie", "delta")

	err := reportWinner(ts, "echo")
	assert.Equal(t, gameerr.KindUnknownMatch, gameerr.KindOf(err), "unknown team")

	m := firstUndecided(t, ts)
	require.NoError(t, reportWinner(ts, m.TeamA))
	err = reportWinner(ts, m.TeamB)
	assert.Equal(t, gameerr.KindUnknownMatch, gameerr.KindOf(err),
		"loser is no longer in an undecided match")

	playOut(t, ts)
	err = reportWinner(ts, "alpha")
	assert.Equal(t, gameerr.KindTournamentComplete, gameerr.KindOf(err))
}

func TestBuildBracket_Errors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	empty := newTournament(3, nil)
	err := buildBracket(empty, rng)
	assert.Equal(t, gameerr.KindConflict, gameerr.KindOf(err))

	ts := testBracket(t, "alpha", "bravo")
	err = buildBracket(ts, rng)
	assert.Equal(t, gameerr.KindConflict, gameerr.KindOf(err), "bracket already built")
}

func TestReportWinner_BumpsVersion(t *testing.T) {
	ts := testBracket(t, "alpha", "bravo")
	v := ts.Version
	require.NoError(t, reportWinner(ts, firstUndecided(t, ts).TeamA))
	assert.Greater(t, ts.Version, v)
}
