package domain

import "time"

// ChallengeType categorizes a challenge for display purposes. The engine
// only dispatches on the verification method; the type is informational.
type ChallengeType string

const (
	TypePhoto        ChallengeType = "photo"
	TypeRiddle       ChallengeType = "riddle"
	TypeCode         ChallengeType = "code"
	TypeQR           ChallengeType = "qr"
	TypeMultiChoice  ChallengeType = "multi_choice"
	TypeScavenger    ChallengeType = "scavenger"
	TypeTeamActivity ChallengeType = "team_activity"
	TypeDecryption   ChallengeType = "decryption"
	TypeTournament   ChallengeType = "tournament"
	TypeText         ChallengeType = "text"
)

// VerificationMethod selects how a submission for a challenge is judged.
type VerificationMethod string

const (
	MethodPhoto      VerificationMethod = "photo"
	MethodAnswer     VerificationMethod = "answer"
	MethodTournament VerificationMethod = "tournament"
)

// Verification carries the method tag and its method-specific payload.
// Exactly one of Answer, AcceptableAnswers or ChecklistItems is set for the
// answer method; the photo and tournament methods carry no payload.
type Verification struct {
	Method            VerificationMethod `toml:"method" json:"method"`
	Answer            string             `toml:"answer" json:"answer,omitempty"`
	AcceptableAnswers []string           `toml:"acceptable_answers" json:"acceptable_answers,omitempty"`
	ChecklistItems    []string           `toml:"checklist_items" json:"checklist_items,omitempty"`
}

// IsChecklist reports whether the challenge tracks partial checklist progress.
func (v Verification) IsChecklist() bool {
	return v.Method == MethodAnswer && len(v.ChecklistItems) > 0
}

// Coordinates is a location gate: teams must be within RadiusMeters of the
// point before the challenge content is revealed. Challenge 1 is exempt.
type Coordinates struct {
	Lat          float64 `toml:"lat" json:"lat"`
	Lon          float64 `toml:"lon" json:"lon"`
	RadiusMeters float64 `toml:"radius_meters" json:"radius_meters"`
}

// TournamentConfig configures a head-to-head tournament challenge.
type TournamentConfig struct {
	GameName       string `toml:"game_name" json:"game_name"`
	TimeoutMinutes int    `toml:"timeout_minutes" json:"timeout_minutes"`
}

// DefaultTournamentTimeout is applied when a tournament config omits
// timeout_minutes.
const DefaultTournamentTimeout = 5

// Timeout returns the forced last-place penalty duration.
func (t *TournamentConfig) Timeout() time.Duration {
	m := 0
	if t != nil {
		m = t.TimeoutMinutes
	}
	if m <= 0 {
		m = DefaultTournamentTimeout
	}
	return time.Duration(m) * time.Minute
}

// Hint penalty defaults: each hint costs PenaltyPerHintMinutes (2 unless the
// challenge overrides it) and at most MaxHints hints exist per challenge, so
// the default penalty tops out at 6 minutes.
const (
	DefaultPenaltyPerHint = 2
	MaxHints              = 3
)

// ChallengeConfig is the immutable definition of one challenge, loaded from
// the game file at startup. IDs form a contiguous sequence starting at 1.
type ChallengeConfig struct {
	ID                    int                `toml:"id" json:"id"`
	Name                  string             `toml:"name" json:"name"`
	Type                  ChallengeType      `toml:"type" json:"type"`
	Location              string             `toml:"location" json:"location"`
	Description           string             `toml:"description" json:"description"`
	Verification          Verification       `toml:"verification" json:"verification"`
	Hints                 []string           `toml:"hints" json:"hints,omitempty"`
	RequiresPhotoVerify   *bool              `toml:"requires_photo_verification" json:"requires_photo_verification,omitempty"`
	Coordinates           *Coordinates       `toml:"coordinates" json:"coordinates,omitempty"`
	Tournament            *TournamentConfig  `toml:"tournament" json:"tournament,omitempty"`
	PenaltyPerHintMinutes int                `toml:"penalty_per_hint_minutes" json:"penalty_per_hint_minutes,omitempty"`
	SuccessMessage        string             `toml:"success_message" json:"success_message,omitempty"`
}

// PenaltyPerHint returns the per-hint penalty for this challenge.
func (c *ChallengeConfig) PenaltyPerHint() time.Duration {
	m := c.PenaltyPerHintMinutes
	if m <= 0 {
		m = DefaultPenaltyPerHint
	}
	return time.Duration(m) * time.Minute
}

// PenaltyFor computes the hint penalty for the given usage count, capped at
// the maximum number of hints.
func (c *ChallengeConfig) PenaltyFor(hintsUsed int) time.Duration {
	per := c.PenaltyPerHint()
	d := time.Duration(hintsUsed) * per
	if max := time.Duration(MaxHints) * per; d > max {
		return max
	}
	return d
}
