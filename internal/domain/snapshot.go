package domain

import "time"

// Snapshot is the full serializable game state, persisted as a single
// document so a restart can pick up exactly where the race left off.
type Snapshot struct {
	Started     bool                     `json:"started"`
	Ended       bool                     `json:"ended"`
	Teams       map[string]*TeamState    `json:"teams"`
	Tournaments map[int]*TournamentState `json:"tournaments"`
	SavedAt     time.Time                `json:"saved_at"`
}
