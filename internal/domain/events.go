package domain

import "time"

// EventType identifies a notification emitted by the progression engine.
// The transport layer fans each event out to its recipients; the engine
// guarantees ordering and at-most-once emission per (team, challenge).
type EventType string

const (
	// EventSubmitterAck acknowledges an accepted submission to the submitter.
	EventSubmitterAck EventType = "submitter_ack"
	// EventCompletionBroadcast announces a completion to the rest of the
	// team and the admin.
	EventCompletionBroadcast EventType = "completion_broadcast"
	// EventUnlockBroadcast reveals a newly available challenge to the team.
	EventUnlockBroadcast EventType = "unlock_broadcast"
	// EventPhotoPending asks the admin to review a photo submission.
	EventPhotoPending EventType = "photo_pending"
	// EventHintRevealed shares a revealed hint with the whole team.
	EventHintRevealed EventType = "hint_revealed"
	// EventRaceFinished announces that a team crossed the finish line.
	EventRaceFinished EventType = "race_finished"
)

// PenaltyInfo describes a penalty attached to a completion event.
type PenaltyInfo struct {
	HintsUsed      int           `json:"hints_used"`
	Duration       time.Duration `json:"duration"`
	UnlocksAt      time.Time     `json:"unlocks_at"`
	TournamentLoss bool          `json:"tournament_loss,omitempty"`
}

// Event is one ordered notification. SubmitterID, when set, identifies the
// member the transport should exclude from team-wide fan-out (they already
// received a direct acknowledgment).
type Event struct {
	Type           EventType    `json:"type"`
	TeamID         string       `json:"team_id"`
	TeamName       string       `json:"team_name"`
	ChallengeID    int          `json:"challenge_id"`
	ChallengeName  string       `json:"challenge_name,omitempty"`
	SubmitterID    string       `json:"submitter_id,omitempty"`
	CompletedCount int          `json:"completed_count,omitempty"`
	TotalCount     int          `json:"total_count,omitempty"`
	Penalty        *PenaltyInfo `json:"penalty,omitempty"`
	HintIndex      int          `json:"hint_index,omitempty"`
	HintText       string       `json:"hint_text,omitempty"`
	Finished       bool         `json:"finished,omitempty"`
	At             time.Time    `json:"at"`
}
