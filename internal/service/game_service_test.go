package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"racehub/internal/domain"
	"racehub/internal/engine"
	"racehub/pkg/gameerr"
	"racehub/pkg/logger"
	"racehub/pkg/redis"
)

// recordingNotifier captures dispatched events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) all() []domain.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Event(nil), n.events...)
}

// memorySnapshots is an in-memory SnapshotRepository for tests.
type memorySnapshots struct {
	mu   sync.Mutex
	last *domain.Snapshot
}

func (m *memorySnapshots) Save(_ context.Context, snapshot *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = snapshot
	return nil
}

func (m *memorySnapshots) Latest(_ context.Context) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, nil
}

func (m *memorySnapshots) Prune(_ context.Context, _ int) (int64, error) { return 0, nil }

func serviceChallenges() []domain.ChallengeConfig {
	return []domain.ChallengeConfig{
		{
			ID:   1,
			Name: "Opening Riddle",
			Verification: domain.Verification{
				Method: domain.MethodAnswer,
				Answer: "keyboard",
			},
		},
		{
			ID:   2,
			Name: "Final Dash",
			Verification: domain.Verification{
				Method: domain.MethodAnswer,
				Answer: "finish line",
			},
		},
	}
}

func newTestService(t *testing.T) (*gameService, *recordingNotifier, *miniredis.Miniredis) {
	t.Helper()
	return newTestServiceWith(t, serviceChallenges())
}

func newTestServiceWith(t *testing.T, challenges []domain.ChallengeConfig) (*gameService, *recordingNotifier, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	redisClient, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisClient.Close() })

	log, err := logger.New("error")
	require.NoError(t, err)

	eng := engine.New(engine.Config{Challenges: challenges})
	notifier := &recordingNotifier{}
	svc := NewGameService(eng, &memorySnapshots{}, redisClient, notifier, log).(*gameService)
	return svc, notifier, mr
}

func startTeam(t *testing.T, svc *gameService) string {
	t.Helper()
	ctx := context.Background()
	team, err := svc.CreateTeam(ctx, "u1", "Ann", "Alpha")
	require.NoError(t, err)
	require.NoError(t, svc.StartGame(ctx))
	return team.ID
}

func TestSubmit_DispatchesEvents(t *testing.T) {
	svc, notifier, _ := newTestService(t)
	teamID := startTeam(t, svc)
	ctx := context.Background()

	res, err := svc.Submit(ctx, "u1", engine.Submission{Text: "keyboard"})
	require.NoError(t, err)
	assert.True(t, res.Completed)

	events := notifier.all()
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventSubmitterAck, events[0].Type)
	assert.Equal(t, domain.EventCompletionBroadcast, events[1].Type)
	assert.Equal(t, domain.EventUnlockBroadcast, events[2].Type)
	assert.Equal(t, teamID, events[2].TeamID)
}

func TestSubmit_BumpsCompletionCounter(t *testing.T) {
	svc, _, mr := newTestService(t)
	startTeam(t, svc)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "u1", engine.Submission{Text: "keyboard"})
	require.NoError(t, err)

	key := svc.redisClient.KeyBuilder.KeyCompletions(1)
	count, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "1", count)
	assert.Positive(t, mr.TTL(key))
}

func TestDispatch_UnlockDedupeAcrossReplicas(t *testing.T) {
	svc, notifier, mr := newTestService(t)
	teamID := startTeam(t, svc)
	ctx := context.Background()

	// Another replica already claimed this unlock broadcast.
	key := svc.redisClient.KeyBuilder.KeyUnlockSent(teamID, 2)
	mr.Set(key, "1")

	_, err := svc.Submit(ctx, "u1", engine.Submission{Text: "keyboard"})
	require.NoError(t, err)

	for _, event := range notifier.all() {
		assert.NotEqual(t, domain.EventUnlockBroadcast, event.Type,
			"claimed unlock must not be re-announced")
	}
}

func TestLeaderboard_CacheAside(t *testing.T) {
	svc, _, mr := newTestService(t)
	startTeam(t, svc)
	ctx := context.Background()

	board, err := svc.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, "Alpha", board[0].TeamName)

	// The cache write behind GetWithFallback is fire-and-forget.
	key := svc.redisClient.KeyBuilder.KeyLeaderboard()
	require.Eventually(t, func() bool { return mr.Exists(key) },
		time.Second, 10*time.Millisecond, "standings are cached after the first read")

	// A completion invalidates the cache so the next read is fresh.
	_, err = svc.Submit(ctx, "u1", engine.Submission{Text: "keyboard"})
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))

	board, err = svc.Leaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, board[0].CompletedCount)
}

func tournamentChallenges() []domain.ChallengeConfig {
	return []domain.ChallengeConfig{
		{
			ID:   1,
			Name: "Opening Riddle",
			Verification: domain.Verification{
				Method: domain.MethodAnswer,
				Answer: "keyboard",
			},
		},
		{
			ID:   2,
			Name: "Rock Paper Scissors",
			Verification: domain.Verification{
				Method: domain.MethodTournament,
			},
			Tournament: &domain.TournamentConfig{GameName: "rock paper scissors"},
		},
		{
			ID:   3,
			Name: "Final Dash",
			Verification: domain.Verification{
				Method: domain.MethodAnswer,
				Answer: "finish line",
			},
		},
	}
}

func TestTournamentStatus_CacheAside(t *testing.T) {
	svc, _, mr := newTestServiceWith(t, tournamentChallenges())
	ctx := context.Background()

	_, err := svc.CreateTeam(ctx, "u1", "Ann", "Alpha")
	require.NoError(t, err)
	_, err = svc.CreateTeam(ctx, "u2", "Bob", "Bravo")
	require.NoError(t, err)
	require.NoError(t, svc.StartGame(ctx))

	_, err = svc.TournamentStatus(ctx, 2)
	assert.Equal(t, gameerr.KindNotFound, gameerr.KindOf(err), "nobody has arrived yet")

	_, err = svc.Submit(ctx, "u1", engine.Submission{Text: "keyboard"})
	require.NoError(t, err)

	state, err := svc.TournamentStatus(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.TournamentPending, state.Status)

	key := svc.redisClient.KeyBuilder.KeyTournament(2)
	require.Eventually(t, func() bool { return mr.Exists(key) },
		time.Second, 10*time.Millisecond, "bracket state is cached after the first read")

	// The second arrival builds the bracket and flushes the cache.
	_, err = svc.Submit(ctx, "u2", engine.Submission{Text: "keyboard"})
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))

	state, err = svc.TournamentStatus(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.TournamentInProgress, state.Status)
}

func TestSaveAndLoadState(t *testing.T) {
	svc, _, mr := newTestService(t)
	teamID := startTeam(t, svc)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "u1", engine.Submission{Text: "keyboard"})
	require.NoError(t, err)
	require.NoError(t, svc.SaveState(ctx))

	assert.True(t, mr.Exists(svc.redisClient.KeyBuilder.KeyTeamState(teamID)),
		"snapshots mirror team state into the cache")

	// A fresh engine restores the persisted progress.
	log, err := logger.New("error")
	require.NoError(t, err)
	restored := NewGameService(
		engine.New(engine.Config{Challenges: serviceChallenges()}),
		svc.snapshots, nil, nil, log,
	).(*gameService)
	require.NoError(t, restored.LoadState(ctx))

	team, err := restored.TeamForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, teamID, team.ID)
	assert.Equal(t, 2, team.CurrentIndex)
}

func TestLoadState_NoSnapshot(t *testing.T) {
	svc, _, _ := newTestService(t)
	assert.NoError(t, svc.LoadState(context.Background()))
}

func TestSnapshots_RestartAfterStop(t *testing.T) {
	svc, _, _ := newTestService(t)
	startTeam(t, svc)
	store := svc.snapshots.(*memorySnapshots)
	ctx := context.Background()

	saved := func() bool {
		snap, err := store.Latest(ctx)
		return err == nil && snap != nil
	}

	svc.StartSnapshots(10 * time.Millisecond)
	require.Eventually(t, saved, time.Second, 5*time.Millisecond)
	svc.StopSnapshots()

	// The loop has to come back after a stop, as in reset-then-restart.
	store.mu.Lock()
	store.last = nil
	store.mu.Unlock()

	svc.StartSnapshots(10 * time.Millisecond)
	require.Eventually(t, saved, time.Second, 5*time.Millisecond)
	svc.StopSnapshots()
}
