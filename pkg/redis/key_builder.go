package redis

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	// Set key prefix based on environment
	prefix := "prod"
	if environment == "development" || environment == "staging" || environment == "test" {
		prefix = "staging"
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// Race key builders
func (kb *KeyBuilder) KeyLeaderboard() string {
	return kb.BuildKey(KeyLeaderboard)
}

func (kb *KeyBuilder) KeyTeamState(teamID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyTeamState, teamID))
}

func (kb *KeyBuilder) KeyTournament(challengeID int) string {
	return kb.BuildKey(fmt.Sprintf(KeyTournament, challengeID))
}

func (kb *KeyBuilder) KeyUnlockSent(teamID string, challengeID int) string {
	return kb.BuildKey(fmt.Sprintf(KeyUnlockSent, teamID, challengeID))
}

func (kb *KeyBuilder) KeyCompletions(challengeID int) string {
	return kb.BuildKey(fmt.Sprintf(KeyCompletions, challengeID))
}

// Wildcard patterns for bulk invalidation.
func (kb *KeyBuilder) KeyTeamStatePattern() string {
	return kb.BuildKey("race:team:*")
}

func (kb *KeyBuilder) KeyTournamentPattern() string {
	return kb.BuildKey("race:tournament:*")
}

func (kb *KeyBuilder) KeyLastSnapshot() string {
	return kb.BuildKey(KeyLastSnapshot)
}

// Generic key builders for custom patterns
func (kb *KeyBuilder) KeyCustom(pattern string, args ...interface{}) string {
	key := fmt.Sprintf(pattern, args...)
	return kb.BuildKey(key)
}
