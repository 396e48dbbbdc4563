package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racehub/internal/domain"
	"racehub/pkg/gameerr"
)

func raceChallenges() []domain.ChallengeConfig {
	return []domain.ChallengeConfig{
		{
			ID:   1,
			Name: "Opening Riddle",
			Type: domain.TypeRiddle,
			Verification: domain.Verification{
				Method: domain.MethodAnswer,
				Answer: "keyboard",
			},
			Hints: []string{"it has keys", "you type on it", "qwerty"},
		},
		{
			ID:   2,
			Name: "Rock Paper Scissors",
			Type: domain.TypeTournament,
			Verification: domain.Verification{
				Method: domain.MethodTournament,
			},
			Hints:                 []string{"throw late", "watch their wrist"},
			PenaltyPerHintMinutes: 4,
			Tournament:            &domain.TournamentConfig{GameName: "rock paper scissors"},
		},
		{
			ID:   3,
			Name: "Final Dash",
			Type: domain.TypeText,
			Verification: domain.Verification{
				Method: domain.MethodAnswer,
				Answer: "finish line",
			},
		},
	}
}

func newTestEngine(t *testing.T, clock Clock, challenges []domain.ChallengeConfig) *Engine {
	t.Helper()
	return New(Config{
		Challenges: challenges,
		Clock:      clock,
		Rand:       rand.New(rand.NewSource(7)),
	})
}

// addTeam creates a team and returns its id.
func addTeam(t *testing.T, e *Engine, userID, userName, teamName string) string {
	t.Helper()
	team, _, err := e.CreateTeam(userID, userName, teamName)
	require.NoError(t, err)
	return team.ID
}

func startRace(t *testing.T, e *Engine) {
	t.Helper()
	_, err := e.StartGame()
	require.NoError(t, err)
}

func eventTypes(events []domain.Event) []domain.EventType {
	out := make([]domain.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestSubmit_RequiresRunningGameAndTeam(t *testing.T) {
	e := newTestEngine(t, newFakeClock(), raceChallenges())

	_, err := e.Submit("u1", Submission{Text: "keyboard"})
	assert.Equal(t, gameerr.KindGameNotStarted, gameerr.KindOf(err))

	startRace(t, e)
	_, err = e.Submit("u1", Submission{Text: "keyboard"})
	assert.Equal(t, gameerr.KindNoTeam, gameerr.KindOf(err))
}

func TestCreateAndJoinTeam(t *testing.T) {
	e := newTestEngine(t, newFakeClock(), raceChallenges())
	teamID := addTeam(t, e, "u1", "Ann", "Alpha")

	_, _, err := e.CreateTeam("u1", "Ann", "Beta")
	assert.Equal(t, gameerr.KindConflict, gameerr.KindOf(err), "one team per user")

	_, _, err = e.CreateTeam("u2", "Bob", "alpha")
	assert.Equal(t, gameerr.KindConflict, gameerr.KindOf(err), "names are case-insensitive unique")

	joined, err := e.JoinTeam("u2", "Bob", teamID)
	require.NoError(t, err)
	assert.Len(t, joined.Members, 2)

	_, err = e.JoinTeam("u2", "Bob", teamID)
	assert.Equal(t, gameerr.KindConflict, gameerr.KindOf(err))

	_, err = e.JoinTeam("u3", "Cal", "no-such-team")
	assert.Equal(t, gameerr.KindNotFound, gameerr.KindOf(err))
}

func TestSubmit_AcceptedFlow(t *testing.T) {
	e := newTestEngine(t, newFakeClock(), raceChallenges())
	teamID := addTeam(t, e, "u1", "Ann", "Alpha")
	startRace(t, e)

	// A wrong answer is a plain rejection, not an error.
	res, err := e.Submit("u1", Submission{Text: "mouse"})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, 1, res.CurrentChallenge)

	res, err = e.Submit("u1", Submission{Text: "it was the KEYBOARD"})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.True(t, res.Completed)
	assert.Equal(t, 2, res.CurrentChallenge)
	assert.Nil(t, res.Penalty, "no hints used, no penalty")

	// No penalty: submitter ack, team broadcast, then the unlock.
	require.Equal(t, []domain.EventType{
		domain.EventSubmitterAck,
		domain.EventCompletionBroadcast,
		domain.EventUnlockBroadcast,
	}, eventTypes(res.Events))
	assert.Equal(t, teamID, res.Events[0].TeamID)
	assert.Equal(t, 2, res.Events[2].ChallengeID, "unlock names the next challenge")
}

func TestSubmit_OrderingErrors(t *testing.T) {
	e := newTestEngine(t, newFakeClock(), raceChallenges())
	addTeam(t, e, "u1", "Ann", "Alpha")
	startRace(t, e)

	_, err := e.Submit("u1", Submission{ChallengeID: 3, Text: "finish line"})
	require.Equal(t, gameerr.KindOutOfOrderSubmission, gameerr.KindOf(err))

	var gerr *gameerr.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, 1, gerr.Details["current_challenge_id"], "error reveals the current challenge")

	_, err = e.Submit("u1", Submission{Text: "keyboard"})
	require.NoError(t, err)

	_, err = e.Submit("u1", Submission{ChallengeID: 1, Text: "keyboard"})
	assert.Equal(t, gameerr.KindAlreadyCompleted, gameerr.KindOf(err))
}

func TestHintPenalty_HoldsNextChallenge(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, raceChallenges())
	addTeam(t, e, "u1", "Ann", "Alpha")
	startRace(t, e)

	res1, events, err := e.RequestHint("u1")
	require.NoError(t, err)
	assert.Equal(t, "it has keys", res1.Text)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventHintRevealed, events[0].Type)

	_, _, err = e.RequestHint("u1")
	require.NoError(t, err)

	// Two hints at 2 minutes each hold challenge 2 for 4 minutes.
	res, err := e.Submit("u1", Submission{Text: "keyboard"})
	require.NoError(t, err)
	require.NotNil(t, res.Penalty)
	assert.Equal(t, 2, res.Penalty.ChallengeID)
	assert.Equal(t, clock.Now().Add(4*time.Minute), res.Penalty.ExpiresAt)
	assert.Equal(t, []domain.EventType{
		domain.EventSubmitterAck,
		domain.EventCompletionBroadcast,
	}, eventTypes(res.Events), "no unlock while the penalty runs")
	require.NotNil(t, res.Events[1].Penalty)
	assert.Equal(t, 4*time.Minute, res.Events[1].Penalty.Duration)

	_, err = e.Submit("u1", Submission{Text: "anything"})
	assert.Equal(t, gameerr.KindChallengeLocked, gameerr.KindOf(err))

	_, _, err = e.RequestHint("u1")
	assert.Equal(t, gameerr.KindChallengeLocked, gameerr.KindOf(err),
		"held challenges reveal no hints")

	// Pull-based expiry: the first check after the deadline unlocks, once.
	clock.Advance(4 * time.Minute)
	events, err = e.CheckAndUnlock("u1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventUnlockBroadcast, events[0].Type)
	assert.Equal(t, 2, events[0].ChallengeID)

	events, err = e.CheckAndUnlock("u1")
	require.NoError(t, err)
	assert.Empty(t, events, "unlock broadcast fires exactly once")
}

func TestSubmit_ChecksExpiryOpportunistically(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, raceChallenges())
	addTeam(t, e, "u1", "Ann", "Alpha")
	startRace(t, e)

	_, _, err := e.RequestHint("u1")
	require.NoError(t, err)
	_, err = e.Submit("u1", Submission{Text: "keyboard"})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	// The next interaction of any kind delivers the pending unlock.
	status, events, err := e.CurrentChallenge("u1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventUnlockBroadcast, events[0].Type)
	assert.Equal(t, StateTournamentWait, status.State)
}

func TestTournament_EndToEnd(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, raceChallenges())
	teamA := addTeam(t, e, "u1", "Ann", "Alpha")
	teamB := addTeam(t, e, "u2", "Bob", "Bravo")
	startRace(t, e)

	_, err := e.TournamentStatus(2)
	assert.Equal(t, gameerr.KindNotFound, gameerr.KindOf(err), "nobody has arrived yet")

	_, err = e.Submit("u1", Submission{Text: "keyboard"})
	require.NoError(t, err)

	ts, err := e.TournamentStatus(2)
	require.NoError(t, err)
	assert.Equal(t, domain.TournamentPending, ts.Status)
	assert.Equal(t, []string{teamA}, ts.Participants)

	_, err = e.ReportTournamentWinner(2, teamA)
	assert.Equal(t, gameerr.KindConflict, gameerr.KindOf(err), "bracket not built yet")

	// Direct submissions are rejected at tournament challenges.
	_, err = e.Submit("u1", Submission{Text: "rock"})
	assert.Equal(t, gameerr.KindInvalidFormat, gameerr.KindOf(err))

	// The last arrival completes the field and the bracket builds itself.
	_, err = e.Submit("u2", Submission{Text: "keyboard"})
	require.NoError(t, err)

	ts, err = e.TournamentStatus(2)
	require.NoError(t, err)
	require.Equal(t, domain.TournamentInProgress, ts.Status)
	require.Len(t, ts.Bracket, 1)

	res, err := e.ReportTournamentWinner(2, teamA)
	require.NoError(t, err)
	require.True(t, res.Resolved)
	assert.Equal(t, []string{teamB, teamA}, res.State.Rankings)

	// Both teams advanced past the tournament.
	for _, userID := range []string{"u1", "u2"} {
		status, _, err := e.CurrentChallenge(userID)
		require.NoError(t, err)
		assert.Equal(t, 3, status.ChallengeID)
	}

	// The winner moves on freely; the loser is held five minutes.
	_, err = e.Submit("u1", Submission{Text: "finish line"})
	require.NoError(t, err)

	_, err = e.Submit("u2", Submission{Text: "finish line"})
	require.Equal(t, gameerr.KindChallengeLocked, gameerr.KindOf(err))

	clock.Advance(5 * time.Minute)
	events, err := e.CheckAndUnlock("u2")
	require.NoError(t, err)
	require.Len(t, events, 1)

	subRes, err := e.Submit("u2", Submission{Text: "finish line"})
	require.NoError(t, err)
	assert.True(t, subRes.Finished)
}

func TestTournament_LoserPenaltyTakesMaximum(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, raceChallenges())
	teamA := addTeam(t, e, "u1", "Ann", "Alpha")
	addTeam(t, e, "u2", "Bob", "Bravo")
	startRace(t, e)

	_, err := e.Submit("u1", Submission{Text: "keyboard"})
	require.NoError(t, err)
	_, err = e.Submit("u2", Submission{Text: "keyboard"})
	require.NoError(t, err)

	// The eventual loser burns two hints at 4 minutes each: their 8 minute
	// hint penalty exceeds the 5 minute loss penalty and wins outright.
	_, _, err = e.RequestHint("u2")
	require.NoError(t, err)
	_, _, err = e.RequestHint("u2")
	require.NoError(t, err)

	res, err := e.ReportTournamentWinner(2, teamA)
	require.NoError(t, err)
	require.True(t, res.Resolved)

	_, err = e.Submit("u2", Submission{Text: "finish line"})
	require.Equal(t, gameerr.KindChallengeLocked, gameerr.KindOf(err))

	clock.Advance(5 * time.Minute)
	events, err := e.CheckAndUnlock("u2")
	require.NoError(t, err)
	assert.Empty(t, events, "loss and hint penalties never race each other down")

	clock.Advance(3 * time.Minute)
	events, err = e.CheckAndUnlock("u2")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestTournament_SoloFieldWinsByDefault(t *testing.T) {
	e := newTestEngine(t, newFakeClock(), raceChallenges())
	teamID := addTeam(t, e, "u1", "Ann", "Alpha")
	startRace(t, e)

	// The only team in the game arrives, the bracket builds and resolves
	// in one step, and the team keeps moving.
	res, err := e.Submit("u1", Submission{Text: "keyboard"})
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, 3, res.CurrentChallenge)
	assert.Contains(t, eventTypes(res.Events), domain.EventCompletionBroadcast)

	ts, err := e.TournamentStatus(2)
	require.NoError(t, err)
	assert.Equal(t, domain.TournamentComplete, ts.Status)
	assert.Equal(t, []string{teamID}, ts.Rankings)

	_, err = e.ReportTournamentWinner(2, teamID)
	assert.Equal(t, gameerr.KindTournamentComplete, gameerr.KindOf(err))

	// Winning by default carries no loss penalty.
	subRes, err := e.Submit("u1", Submission{Text: "finish line"})
	require.NoError(t, err)
	assert.True(t, subRes.Finished)
}

func TestStartTournament_SingleArrivalResolves(t *testing.T) {
	e := newTestEngine(t, newFakeClock(), raceChallenges())
	teamA := addTeam(t, e, "u1", "Ann", "Alpha")
	addTeam(t, e, "u2", "Bob", "Bravo")
	startRace(t, e)

	_, err := e.Submit("u1", Submission{Text: "keyboard"})
	require.NoError(t, err)

	// Forcing the bracket with one arrival hands Alpha the win outright.
	res, err := e.StartTournament(2)
	require.NoError(t, err)
	require.True(t, res.Resolved)
	assert.Equal(t, []string{teamA}, res.State.Rankings)
	assert.Contains(t, eventTypes(res.Events), domain.EventCompletionBroadcast)

	status, _, err := e.CurrentChallenge("u1")
	require.NoError(t, err)
	assert.Equal(t, 3, status.ChallengeID)

	subRes, err := e.Submit("u1", Submission{Text: "finish line"})
	require.NoError(t, err)
	assert.True(t, subRes.Finished)

	// The straggler is untouched.
	status, _, err = e.CurrentChallenge("u2")
	require.NoError(t, err)
	assert.Equal(t, 1, status.ChallengeID)
}

func TestFinish_SetsTimeOnce(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, raceChallenges())
	teamA := addTeam(t, e, "u1", "Ann", "Alpha")
	addTeam(t, e, "u2", "Bob", "Bravo")
	startRace(t, e)

	for _, userID := range []string{"u1", "u2"} {
		_, err := e.Submit(userID, Submission{Text: "keyboard"})
		require.NoError(t, err)
	}
	_, err := e.ReportTournamentWinner(2, teamA)
	require.NoError(t, err)

	finishedAt := clock.Now()
	res, err := e.Submit("u1", Submission{Text: "finish line"})
	require.NoError(t, err)
	assert.True(t, res.Finished)
	assert.Equal(t, domain.EventRaceFinished, res.Events[len(res.Events)-1].Type)

	team, err := e.TeamForUser("u1")
	require.NoError(t, err)
	require.NotNil(t, team.FinishTime)
	assert.Equal(t, finishedAt, *team.FinishTime)

	_, err = e.Submit("u1", Submission{Text: "finish line"})
	assert.Equal(t, gameerr.KindGameAlreadyFinished, gameerr.KindOf(err))
}

func TestLeaderboard_Ordering(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, raceChallenges())
	teamA := addTeam(t, e, "u1", "Ann", "Alpha")
	addTeam(t, e, "u2", "Bob", "Bravo")
	addTeam(t, e, "u3", "Cal", "Crimson")
	startRace(t, e)

	for _, userID := range []string{"u1", "u2", "u3"} {
		_, err := e.Submit(userID, Submission{Text: "keyboard"})
		require.NoError(t, err)
	}

	// Three participants: Alpha beats the bye survivor after round one.
	ts, err := e.TournamentStatus(2)
	require.NoError(t, err)
	require.Equal(t, domain.TournamentInProgress, ts.Status)
	for {
		ts, err = e.TournamentStatus(2)
		require.NoError(t, err)
		if ts.Status == domain.TournamentComplete {
			break
		}
		round := ts.CurrentRound()
		var next string
		for _, m := range round {
			if !m.Decided() {
				if m.TeamA == teamA || m.TeamB == teamA {
					next = teamA
				} else {
					next = m.TeamA
				}
				break
			}
		}
		_, err = e.ReportTournamentWinner(2, next)
		require.NoError(t, err)
	}

	clock.Advance(10 * time.Minute)
	_, err = e.CheckAndUnlock("u1")
	require.NoError(t, err)
	_, err = e.Submit("u1", Submission{Text: "finish line"})
	require.NoError(t, err)

	board := e.Leaderboard()
	require.Len(t, board, 3)
	assert.Equal(t, "Alpha", board[0].TeamName)
	assert.True(t, board[0].Finished)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, 2, board[1].CompletedCount)
	assert.False(t, board[1].Finished)
}

func TestPassTeam_AdvancesPastGates(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, raceChallenges())
	teamID := addTeam(t, e, "u1", "Ann", "Alpha")
	startRace(t, e)

	events, err := e.PassTeam(teamID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EventSubmitterAck, events[0].Type)

	team, err := e.TeamByID(teamID)
	require.NoError(t, err)
	assert.Equal(t, 2, team.CurrentIndex)
	assert.Equal(t, []int{1}, team.PassUsed)
	assert.Equal(t, "admin-1", team.Completed[0].SubmitterID)
}

func TestEndGame_BlocksPlayKeepsReads(t *testing.T) {
	e := newTestEngine(t, newFakeClock(), raceChallenges())
	addTeam(t, e, "u1", "Ann", "Alpha")
	startRace(t, e)
	require.NoError(t, e.EndGame())

	_, err := e.Submit("u1", Submission{Text: "keyboard"})
	assert.Equal(t, gameerr.KindGameEnded, gameerr.KindOf(err))

	assert.Len(t, e.Leaderboard(), 1)
	assert.False(t, e.Started())
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, raceChallenges())
	teamID := addTeam(t, e, "u1", "Ann", "Alpha")
	addTeam(t, e, "u2", "Bob", "Bravo")
	startRace(t, e)

	_, _, err := e.RequestHint("u1")
	require.NoError(t, err)
	_, err = e.Submit("u1", Submission{Text: "keyboard"})
	require.NoError(t, err)

	snap := e.Snapshot()

	restored := newTestEngine(t, clock, raceChallenges())
	restored.Restore(snap)

	team, err := restored.TeamByID(teamID)
	require.NoError(t, err)
	assert.Equal(t, 2, team.CurrentIndex)
	assert.Equal(t, 1, team.HintsUsed[1])
	require.NotNil(t, team.PendingPenalty)

	ts, err := restored.TournamentStatus(2)
	require.NoError(t, err)
	assert.Equal(t, []string{teamID}, ts.Participants)

	// The user index is rebuilt, so members keep acting on their team.
	_, err = restored.Submit("u2", Submission{Text: "keyboard"})
	require.NoError(t, err)
}

func TestReset_ClearsEverything(t *testing.T) {
	e := newTestEngine(t, newFakeClock(), raceChallenges())
	addTeam(t, e, "u1", "Ann", "Alpha")
	startRace(t, e)

	e.Reset()
	assert.Empty(t, e.Teams())
	assert.False(t, e.Started())

	_, err := e.Submit("u1", Submission{Text: "keyboard"})
	assert.Equal(t, gameerr.KindGameNotStarted, gameerr.KindOf(err))
}

func TestRemoveMember_PassesCaptaincy(t *testing.T) {
	e := newTestEngine(t, newFakeClock(), raceChallenges())
	teamID := addTeam(t, e, "u1", "Ann", "Alpha")
	_, err := e.JoinTeam("u2", "Bob", teamID)
	require.NoError(t, err)

	require.NoError(t, e.RemoveMember(teamID, "u1"))
	team, err := e.TeamByID(teamID)
	require.NoError(t, err)
	require.Len(t, team.Members, 1)
	assert.True(t, team.Members[0].Captain)

	// Removing the last member dissolves the team.
	require.NoError(t, e.RemoveMember(teamID, "u2"))
	_, err = e.TeamByID(teamID)
	assert.Equal(t, gameerr.KindNotFound, gameerr.KindOf(err))
}
