package redis

import (
	"testing"
)

func TestKeyBuilder_Environment_Prefixes(t *testing.T) {
	tests := []struct {
		name           string
		environment    string
		expectedPrefix string
	}{
		{
			name:           "Production environment should use prod prefix",
			environment:    "production",
			expectedPrefix: "prod",
		},
		{
			name:           "Development environment should use staging prefix",
			environment:    "development",
			expectedPrefix: "staging",
		},
		{
			name:           "Staging environment should use staging prefix",
			environment:    "staging",
			expectedPrefix: "staging",
		},
		{
			name:           "Test environment should use staging prefix",
			environment:    "test",
			expectedPrefix: "staging",
		},
		{
			name:           "Unknown environment should default to prod prefix",
			environment:    "unknown",
			expectedPrefix: "prod",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kb := NewKeyBuilder(tt.environment)
			if kb.GetPrefix() != tt.expectedPrefix {
				t.Errorf("NewKeyBuilder(%s).GetPrefix() = %s, want %s",
					tt.environment, kb.GetPrefix(), tt.expectedPrefix)
			}
		})
	}
}

func TestKeyBuilder_KeyGeneration(t *testing.T) {
	kb := NewKeyBuilder("production")

	tests := []struct {
		name     string
		method   func() string
		expected string
	}{
		{
			name:     "Leaderboard key",
			method:   kb.KeyLeaderboard,
			expected: "prod:race:leaderboard",
		},
		{
			name:     "TeamState key",
			method:   func() string { return kb.KeyTeamState("team-123") },
			expected: "prod:race:team:team-123",
		},
		{
			name:     "Tournament key",
			method:   func() string { return kb.KeyTournament(4) },
			expected: "prod:race:tournament:4",
		},
		{
			name:     "UnlockSent key",
			method:   func() string { return kb.KeyUnlockSent("team-123", 7) },
			expected: "prod:race:unlock:team-123:7",
		},
		{
			name:     "LastSnapshot key",
			method:   kb.KeyLastSnapshot,
			expected: "prod:race:last_snapshot",
		},
		{
			name:     "Custom key pattern",
			method:   func() string { return kb.KeyCustom("race:photo:%s:%d", "team-123", 3) },
			expected: "prod:race:photo:team-123:3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.method()
			if result != tt.expected {
				t.Errorf("%s = %s, want %s", tt.name, result, tt.expected)
			}
		})
	}
}

func TestKeyBuilder_EnvironmentSeparation(t *testing.T) {
	prodKB := NewKeyBuilder("production")
	stagingKB := NewKeyBuilder("development")

	prodKey := prodKB.KeyLeaderboard()
	stagingKey := stagingKB.KeyLeaderboard()

	if prodKey == stagingKey {
		t.Errorf("Production and staging keys should be different. Got: prod=%s, staging=%s",
			prodKey, stagingKey)
	}

	expectedProd := "prod:race:leaderboard"
	expectedStaging := "staging:race:leaderboard"

	if prodKey != expectedProd {
		t.Errorf("Production key = %s, want %s", prodKey, expectedProd)
	}

	if stagingKey != expectedStaging {
		t.Errorf("Staging key = %s, want %s", stagingKey, expectedStaging)
	}
}
