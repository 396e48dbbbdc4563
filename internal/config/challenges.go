package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"racehub/internal/domain"
)

type challengeFile struct {
	Challenges []domain.ChallengeConfig `toml:"challenges"`
}

// LoadChallenges reads and validates the TOML challenge definitions. The
// file is the single source of truth for the course layout; an invalid file
// refuses to load rather than producing a half-working game.
func LoadChallenges(path string) ([]domain.ChallengeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read challenges file: %w", err)
	}

	var f challengeFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse challenges file: %w", err)
	}

	if err := ValidateChallenges(f.Challenges); err != nil {
		return nil, err
	}
	return f.Challenges, nil
}

// ValidateChallenges checks the course invariants: ids are contiguous from
// 1, every challenge carries exactly one verification payload matching its
// method, and hint lists stay within the penalty cap.
func ValidateChallenges(challenges []domain.ChallengeConfig) error {
	if len(challenges) == 0 {
		return fmt.Errorf("challenges file defines no challenges")
	}

	for i, c := range challenges {
		if c.ID != i+1 {
			return fmt.Errorf("challenge at position %d has id %d, want %d: ids must be contiguous from 1", i, c.ID, i+1)
		}
		if c.Name == "" {
			return fmt.Errorf("challenge %d has no name", c.ID)
		}
		if len(c.Hints) > domain.MaxHints {
			return fmt.Errorf("challenge %d has %d hints, max is %d", c.ID, len(c.Hints), domain.MaxHints)
		}
		if c.Coordinates != nil && c.Coordinates.RadiusMeters <= 0 {
			return fmt.Errorf("challenge %d has a location gate without a positive radius", c.ID)
		}

		if err := validateVerification(c); err != nil {
			return err
		}
	}
	return nil
}

func validateVerification(c domain.ChallengeConfig) error {
	v := c.Verification
	payloads := 0
	if v.Answer != "" {
		payloads++
	}
	if len(v.AcceptableAnswers) > 0 {
		payloads++
	}
	if len(v.ChecklistItems) > 0 {
		payloads++
	}

	switch v.Method {
	case domain.MethodAnswer:
		if payloads != 1 {
			return fmt.Errorf("challenge %d: answer verification needs exactly one of answer, acceptable_answers or checklist_items", c.ID)
		}
	case domain.MethodPhoto:
		if payloads != 0 {
			return fmt.Errorf("challenge %d: photo verification takes no answer payload", c.ID)
		}
	case domain.MethodTournament:
		if payloads != 0 {
			return fmt.Errorf("challenge %d: tournament verification takes no answer payload", c.ID)
		}
	default:
		return fmt.Errorf("challenge %d: unknown verification method %q", c.ID, v.Method)
	}

	if c.Tournament != nil && v.Method != domain.MethodTournament {
		return fmt.Errorf("challenge %d: a tournament table requires the tournament verification method", c.ID)
	}
	return nil
}
