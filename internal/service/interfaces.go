package service

import (
	"context"
	"time"

	"racehub/internal/domain"
	"racehub/internal/engine"
)

// GameService defines the interface for running the scavenger race
type GameService interface {
	// CreateTeam registers a new team captained by the creating user
	CreateTeam(ctx context.Context, userID, userName, teamName string) (*domain.TeamState, error)

	// JoinTeam adds a user to an existing team
	JoinTeam(ctx context.Context, userID, userName, teamID string) (*domain.TeamState, error)

	// RemoveTeam deletes a team
	RemoveTeam(ctx context.Context, teamID string) error

	// RemoveMember takes a user off a team
	RemoveMember(ctx context.Context, teamID, userID string) error

	// Teams lists all teams
	Teams(ctx context.Context) []*domain.TeamState

	// TeamForUser returns the caller's team
	TeamForUser(ctx context.Context, userID string) (*domain.TeamState, error)

	// Submit runs the verification pipeline for one submission
	Submit(ctx context.Context, userID string, sub engine.Submission) (*engine.SubmitResult, error)

	// RequestHint reveals the next hint for the caller's current challenge
	RequestHint(ctx context.Context, userID string) (*engine.HintResult, error)

	// VerifyLocation checks the caller's position against the location gate
	VerifyLocation(ctx context.Context, userID string, lat, lon float64) (*engine.LocationResult, error)

	// CurrentChallenge reports the caller's current challenge state
	CurrentChallenge(ctx context.Context, userID string) (*engine.ChallengeStatus, error)

	// CheckAndUnlock performs the pull-based penalty expiry check
	CheckAndUnlock(ctx context.Context, userID string) ([]domain.Event, error)

	// Leaderboard returns the current standings
	Leaderboard(ctx context.Context) ([]engine.LeaderboardEntry, error)

	// StartGame opens the race
	StartGame(ctx context.Context) error

	// EndGame closes the race
	EndGame(ctx context.Context) error

	// ResetGame wipes all game state
	ResetGame(ctx context.Context) error

	// PassTeam manually advances a team (admin override)
	PassTeam(ctx context.Context, teamID, adminID string) error

	// ApprovePhoto resolves a pending photo submission
	ApprovePhoto(ctx context.Context, teamID string, challengeID int, approve bool) (*engine.ApprovalResult, error)

	// StartTournament force-builds a bracket from arrived teams; a lone
	// arrival wins by default and the challenge resolves immediately
	StartTournament(ctx context.Context, challengeID int) (*engine.TournamentResult, error)

	// ResetTournament discards a bracket and reseeds from waiting teams
	ResetTournament(ctx context.Context, challengeID int) (*domain.TournamentState, error)

	// TournamentStatus returns the bracket state
	TournamentStatus(ctx context.Context, challengeID int) (*domain.TournamentState, error)

	// ReportTournamentWinner records a match result
	ReportTournamentWinner(ctx context.Context, challengeID int, teamID string) (*engine.TournamentResult, error)

	// LoadState restores the latest persisted snapshot
	LoadState(ctx context.Context) error

	// SaveState persists the current game state
	SaveState(ctx context.Context) error

	// StartSnapshots begins periodic background persistence
	StartSnapshots(interval time.Duration)

	// StopSnapshots halts background persistence
	StopSnapshots()
}

// Notifier delivers game events to players (chat messages, websockets).
// Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event)
}
