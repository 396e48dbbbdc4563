package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"racehub/internal/domain"
	"racehub/internal/engine"
	"racehub/internal/repository"
	"racehub/pkg/gameerr"
	"racehub/pkg/logger"
	"racehub/pkg/redis"
)

// gameService orchestrates the engine with persistence, caching and event
// delivery. The engine owns all game rules; this layer adds the durable
// snapshot loop, the Redis-backed leaderboard cache and cross-replica
// broadcast dedup.
type gameService struct {
	engine      *engine.Engine
	snapshots   repository.SnapshotRepository
	redisClient *redis.Client
	notifier    Notifier
	logger      *logger.Logger

	snapshotTicker *time.Ticker
	stopSnapshot   chan struct{}
	mu             sync.Mutex
	running        bool
}

// NewGameService creates a new game service. The snapshot repository and
// Redis client may be nil (single-node, in-memory operation); the notifier
// may be nil to disable event delivery beyond logging.
func NewGameService(
	eng *engine.Engine,
	snapshots repository.SnapshotRepository,
	redisClient *redis.Client,
	notifier Notifier,
	logger *logger.Logger,
) GameService {
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &gameService{
		engine:       eng,
		snapshots:    snapshots,
		redisClient:  redisClient,
		notifier:     notifier,
		logger:       logger,
		stopSnapshot: make(chan struct{}),
	}
}

func (s *gameService) CreateTeam(ctx context.Context, userID, userName, teamName string) (*domain.TeamState, error) {
	team, events, err := s.engine.CreateTeam(userID, userName, teamName)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(map[string]interface{}{
		"team_id":   team.ID,
		"team_name": team.Name,
		"user_id":   userID,
	}).Info("Team created")
	s.dispatch(ctx, events)
	s.invalidateLeaderboard(ctx)
	return team, nil
}

func (s *gameService) JoinTeam(ctx context.Context, userID, userName, teamID string) (*domain.TeamState, error) {
	team, err := s.engine.JoinTeam(userID, userName, teamID)
	if err != nil {
		return nil, err
	}
	s.logger.WithTeam(teamID).WithField("user_id", userID).Info("User joined team")
	return team, nil
}

func (s *gameService) RemoveTeam(ctx context.Context, teamID string) error {
	if err := s.engine.RemoveTeam(teamID); err != nil {
		return err
	}
	s.logger.WithTeam(teamID).Info("Team removed")
	s.invalidateLeaderboard(ctx)
	if s.redisClient != nil {
		key := s.redisClient.KeyBuilder.KeyTeamState(teamID)
		_ = s.redisClient.Delete(ctx, key)
	}
	return nil
}

func (s *gameService) RemoveMember(ctx context.Context, teamID, userID string) error {
	if err := s.engine.RemoveMember(teamID, userID); err != nil {
		return err
	}
	s.logger.WithFields(map[string]interface{}{
		"team_id": teamID,
		"user_id": userID,
	}).Info("Member removed")
	return nil
}

func (s *gameService) Teams(_ context.Context) []*domain.TeamState {
	return s.engine.Teams()
}

func (s *gameService) TeamForUser(_ context.Context, userID string) (*domain.TeamState, error) {
	return s.engine.TeamForUser(userID)
}

func (s *gameService) Submit(ctx context.Context, userID string, sub engine.Submission) (*engine.SubmitResult, error) {
	res, err := s.engine.Submit(userID, sub)
	if err != nil {
		// A rejected submission can still carry the one-time unlock event
		// from the opportunistic expiry check.
		if res != nil {
			s.dispatch(ctx, res.Events)
		}
		s.logSubmitRejection(userID, sub, err)
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"accepted":  res.Accepted,
		"completed": res.Completed,
		"finished":  res.Finished,
	}).Info("Submission processed")

	s.dispatch(ctx, res.Events)
	if res.Completed {
		// Advancing may have registered a tournament arrival.
		s.invalidateTournaments(ctx)
		s.invalidateLeaderboard(ctx)
	}
	return res, nil
}

func (s *gameService) RequestHint(ctx context.Context, userID string) (*engine.HintResult, error) {
	res, events, err := s.engine.RequestHint(userID)
	s.dispatch(ctx, events)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(map[string]interface{}{
		"user_id":    userID,
		"hint_index": res.Index,
		"penalty":    res.PenaltyDuration.String(),
	}).Info("Hint revealed")
	return res, nil
}

func (s *gameService) VerifyLocation(_ context.Context, userID string, lat, lon float64) (*engine.LocationResult, error) {
	return s.engine.VerifyLocation(userID, lat, lon)
}

func (s *gameService) CurrentChallenge(ctx context.Context, userID string) (*engine.ChallengeStatus, error) {
	status, events, err := s.engine.CurrentChallenge(userID)
	s.dispatch(ctx, events)
	return status, err
}

func (s *gameService) CheckAndUnlock(ctx context.Context, userID string) ([]domain.Event, error) {
	events, err := s.engine.CheckAndUnlock(userID)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, events), nil
}

func (s *gameService) Leaderboard(ctx context.Context) ([]engine.LeaderboardEntry, error) {
	if s.redisClient == nil {
		return s.engine.Leaderboard(), nil
	}

	key := s.redisClient.KeyBuilder.KeyLeaderboard()
	cached, err := s.redisClient.GetWithFallback(ctx, key, redis.TTLLeaderboard, func() (interface{}, error) {
		payload, err := json.Marshal(s.engine.Leaderboard())
		if err != nil {
			return nil, err
		}
		return string(payload), nil
	})
	if err != nil {
		// The cache is an optimization, never a dependency.
		s.logger.WithError(err).Warn("Leaderboard cache lookup failed")
		return s.engine.Leaderboard(), nil
	}

	var board []engine.LeaderboardEntry
	if err := json.Unmarshal([]byte(cached), &board); err != nil {
		return s.engine.Leaderboard(), nil
	}
	return board, nil
}

func (s *gameService) StartGame(ctx context.Context) error {
	events, err := s.engine.StartGame()
	if err != nil {
		return err
	}
	s.logger.Info("Game started")
	s.dispatch(ctx, events)
	s.persistAsync()
	return nil
}

func (s *gameService) EndGame(ctx context.Context) error {
	if err := s.engine.EndGame(); err != nil {
		return err
	}
	s.logger.Info("Game ended")
	s.persistAsync()
	return nil
}

func (s *gameService) ResetGame(ctx context.Context) error {
	s.engine.Reset()
	s.logger.Warn("Game state reset")
	s.invalidateLeaderboard(ctx)
	s.invalidateTournaments(ctx)
	s.invalidateTeamStates(ctx)
	s.persistAsync()
	return nil
}

func (s *gameService) PassTeam(ctx context.Context, teamID, adminID string) error {
	events, err := s.engine.PassTeam(teamID, adminID)
	if err != nil {
		return err
	}
	s.logger.WithFields(map[string]interface{}{
		"team_id":  teamID,
		"admin_id": adminID,
	}).Warn("Team manually advanced")
	s.dispatch(ctx, events)
	s.invalidateTournaments(ctx)
	s.invalidateLeaderboard(ctx)
	return nil
}

func (s *gameService) ApprovePhoto(ctx context.Context, teamID string, challengeID int, approve bool) (*engine.ApprovalResult, error) {
	res, err := s.engine.ApprovePhoto(teamID, challengeID, approve)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(map[string]interface{}{
		"team_id":      teamID,
		"challenge_id": challengeID,
		"approved":     approve,
		"gate":         res.Gate,
	}).Info("Photo reviewed")
	s.dispatch(ctx, res.Events)
	if res.Completed {
		s.invalidateTournaments(ctx)
		s.invalidateLeaderboard(ctx)
	}
	return res, nil
}

func (s *gameService) StartTournament(ctx context.Context, challengeID int) (*engine.TournamentResult, error) {
	res, err := s.engine.StartTournament(challengeID)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(map[string]interface{}{
		"challenge_id": challengeID,
		"participants": len(res.State.Participants),
		"resolved":     res.Resolved,
	}).Info("Tournament bracket built")
	s.dispatch(ctx, res.Events)
	if res.Resolved {
		// Resolution can chain arrivals into later tournaments.
		s.invalidateTournaments(ctx)
		s.invalidateLeaderboard(ctx)
	} else {
		s.invalidateTournament(ctx, challengeID)
	}
	return res, nil
}

func (s *gameService) ResetTournament(ctx context.Context, challengeID int) (*domain.TournamentState, error) {
	state, err := s.engine.ResetTournament(challengeID)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("challenge_id", challengeID).Warn("Tournament reset")
	s.invalidateTournament(ctx, challengeID)
	return state, nil
}

func (s *gameService) TournamentStatus(ctx context.Context, challengeID int) (*domain.TournamentState, error) {
	if s.redisClient == nil {
		return s.engine.TournamentStatus(challengeID)
	}

	key := s.redisClient.KeyBuilder.KeyTournament(challengeID)
	cached, err := s.redisClient.GetWithFallback(ctx, key, redis.TTLTournament, func() (interface{}, error) {
		state, err := s.engine.TournamentStatus(challengeID)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(state)
		if err != nil {
			return nil, err
		}
		return string(payload), nil
	})
	if err != nil {
		// The fallback already consulted the engine, so this is the
		// authoritative error (e.g. no such tournament).
		return nil, err
	}

	var state domain.TournamentState
	if umErr := json.Unmarshal([]byte(cached), &state); umErr != nil {
		return s.engine.TournamentStatus(challengeID)
	}
	return &state, nil
}

func (s *gameService) ReportTournamentWinner(ctx context.Context, challengeID int, teamID string) (*engine.TournamentResult, error) {
	res, err := s.engine.ReportTournamentWinner(challengeID, teamID)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(map[string]interface{}{
		"challenge_id": challengeID,
		"winner":       teamID,
		"resolved":     res.Resolved,
	}).Info("Tournament result recorded")
	s.dispatch(ctx, res.Events)
	if res.Resolved {
		// Resolution can chain arrivals into later tournaments.
		s.invalidateTournaments(ctx)
		s.invalidateLeaderboard(ctx)
	} else {
		s.invalidateTournament(ctx, challengeID)
	}
	return res, nil
}

// LoadState restores the latest persisted snapshot, if any.
func (s *gameService) LoadState(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	snap, err := s.snapshots.Latest(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		s.logger.Info("No saved game state, starting fresh")
		return nil
	}
	s.engine.Restore(snap)
	s.logger.WithFields(map[string]interface{}{
		"teams":    len(snap.Teams),
		"saved_at": snap.SavedAt,
	}).Info("Game state restored from snapshot")
	return nil
}

// SaveState persists the current game state.
func (s *gameService) SaveState(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	snap := s.engine.Snapshot()
	if err := s.snapshots.Save(ctx, snap); err != nil {
		return err
	}
	if s.redisClient != nil {
		key := s.redisClient.KeyBuilder.KeyLastSnapshot()
		_ = s.redisClient.Set(ctx, key, snap.SavedAt.Format(time.RFC3339), 0)
		s.cacheTeamStates(ctx, snap.Teams)
	}
	return nil
}

// cacheTeamStates mirrors per-team state into Redis alongside each snapshot,
// giving other replicas and operators a readable copy without hitting the
// snapshot store.
func (s *gameService) cacheTeamStates(ctx context.Context, teams map[string]*domain.TeamState) {
	if len(teams) == 0 {
		return
	}
	kv := make(map[string]interface{}, len(teams))
	for id, team := range teams {
		payload, err := json.Marshal(team)
		if err != nil {
			continue
		}
		kv[s.redisClient.KeyBuilder.KeyTeamState(id)] = string(payload)
	}
	if err := s.redisClient.SetMultiple(ctx, kv, redis.TTLTeamState); err != nil {
		s.logger.WithError(err).Debug("Team state cache write failed")
	}
}

// StartSnapshots begins the periodic background persistence loop.
func (s *gameService) StartSnapshots(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.snapshots == nil || interval <= 0 {
		return
	}
	s.running = true
	s.snapshotTicker = time.NewTicker(interval)
	// A fresh channel each start: the previous one was closed by
	// StopSnapshots and would fire immediately.
	s.stopSnapshot = make(chan struct{})

	ticker := s.snapshotTicker
	stop := s.stopSnapshot
	go func() {
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := s.SaveState(ctx); err != nil {
					s.logger.WithError(err).Error("Periodic snapshot failed")
				}
				cancel()
			case <-stop:
				return
			}
		}
	}()
}

// StopSnapshots halts the background persistence loop.
func (s *gameService) StopSnapshots() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.snapshotTicker.Stop()
	close(s.stopSnapshot)
}

// dispatch delivers events to the notifier, deduplicating unlock broadcasts
// across replicas through Redis SetNX. Returns the events actually sent.
func (s *gameService) dispatch(ctx context.Context, events []domain.Event) []domain.Event {
	if len(events) == 0 {
		return nil
	}

	sent := make([]domain.Event, 0, len(events))
	for _, event := range events {
		if event.Type == domain.EventUnlockBroadcast && s.redisClient != nil {
			key := s.redisClient.KeyBuilder.KeyUnlockSent(event.TeamID, event.ChallengeID)
			ok, err := s.redisClient.SetNX(ctx, key, 1, redis.TTLUnlockSent)
			if err == nil && !ok {
				// Another replica already announced this unlock.
				continue
			}
		}
		if event.Type == domain.EventCompletionBroadcast {
			s.recordCompletion(ctx, event.ChallengeID)
		}
		s.notifier.Notify(ctx, event)
		sent = append(sent, event)
	}
	return sent
}

func (s *gameService) invalidateLeaderboard(ctx context.Context) {
	if s.redisClient == nil {
		return
	}
	key := s.redisClient.KeyBuilder.KeyLeaderboard()
	if err := s.redisClient.Delete(ctx, key); err != nil {
		s.logger.WithError(err).Debug("Leaderboard invalidation failed")
	}
}

func (s *gameService) invalidateTournament(ctx context.Context, challengeID int) {
	if s.redisClient == nil {
		return
	}
	key := s.redisClient.KeyBuilder.KeyTournament(challengeID)
	if err := s.redisClient.Delete(ctx, key); err != nil {
		s.logger.WithError(err).Debug("Tournament cache invalidation failed")
	}
}

func (s *gameService) invalidateTournaments(ctx context.Context) {
	if s.redisClient == nil {
		return
	}
	pattern := s.redisClient.KeyBuilder.KeyTournamentPattern()
	if err := s.redisClient.InvalidatePattern(ctx, pattern); err != nil {
		s.logger.WithError(err).Debug("Tournament cache invalidation failed")
	}
}

func (s *gameService) invalidateTeamStates(ctx context.Context) {
	if s.redisClient == nil {
		return
	}
	pattern := s.redisClient.KeyBuilder.KeyTeamStatePattern()
	if err := s.redisClient.InvalidatePattern(ctx, pattern); err != nil {
		s.logger.WithError(err).Debug("Team state cache invalidation failed")
	}
}

// recordCompletion bumps the per-challenge completion counter that operators
// inspect directly in Redis. Counters expire after a day.
func (s *gameService) recordCompletion(ctx context.Context, challengeID int) {
	if s.redisClient == nil {
		return
	}
	key := s.redisClient.KeyBuilder.KeyCompletions(challengeID)
	if n, err := s.redisClient.Incr(ctx, key); err == nil && n == 1 {
		_ = s.redisClient.Expire(ctx, key, redis.TTLCounters)
	}
}

func (s *gameService) persistAsync() {
	if s.snapshots == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.SaveState(ctx); err != nil {
			s.logger.WithError(err).Error("Snapshot save failed")
		}
	}()
}

func (s *gameService) logSubmitRejection(userID string, sub engine.Submission, err error) {
	s.logger.WithFields(map[string]interface{}{
		"user_id":      userID,
		"challenge_id": sub.ChallengeID,
		"kind":         string(gameerr.KindOf(err)),
	}).Debug("Submission rejected")
}
