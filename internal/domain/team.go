package domain

import "time"

// Member is a single player on a team. Exactly one member is the captain.
type Member struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Captain bool   `json:"captain"`
}

// Completion records one accepted challenge for a team.
type Completion struct {
	ChallengeID int       `json:"challenge_id"`
	SubmitterID string    `json:"submitter_id"`
	Answer      string    `json:"answer,omitempty"`
	PhotoRef    string    `json:"photo_ref,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// PendingPenalty withholds the next challenge's content until ExpiresAt.
// The pointer has already advanced; BroadcastSent flips true exactly once
// when the expiry is first observed.
type PendingPenalty struct {
	ChallengeID   int       `json:"challenge_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	BroadcastSent bool      `json:"broadcast_sent"`
}

// PendingPhoto is an unreviewed photo submission. Gate photos satisfy the
// pre-challenge location verification; answer photos complete the challenge
// itself once approved.
type PendingPhoto struct {
	ChallengeID  int       `json:"challenge_id"`
	SubmissionID string    `json:"submission_id"`
	SubmitterID  string    `json:"submitter_id"`
	PhotoRef     string    `json:"photo_ref"`
	Gate         bool      `json:"gate"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// TeamState is the mutable per-team record. All mutation happens under the
// engine's per-team lock; CurrentIndex is always len(Completed)+1.
type TeamState struct {
	ID               string                  `json:"id"`
	Name             string                  `json:"name"`
	Members          []Member                `json:"members"`
	CurrentIndex     int                     `json:"current_index"`
	Completed        []Completion            `json:"completed"`
	FinishTime       *time.Time              `json:"finish_time,omitempty"`
	HintsUsed        map[int]int             `json:"hints_used"`
	Checklist        map[int]map[string]bool `json:"checklist"`
	PendingPenalty   *PendingPenalty         `json:"pending_penalty,omitempty"`
	PendingPhoto     *PendingPhoto           `json:"pending_photo,omitempty"`
	UnlockBroadcast  map[int]bool            `json:"unlock_broadcast"`
	LocationVerified map[int]bool            `json:"location_verified"`
	PhotoVerified    map[int]bool            `json:"photo_verified"`
	PassUsed         []int                   `json:"pass_used,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
}

// NewTeamState creates a fresh team with the captain as its only member.
func NewTeamState(id, name, captainID, captainName string, now time.Time) *TeamState {
	return &TeamState{
		ID:               id,
		Name:             name,
		Members:          []Member{{UserID: captainID, Name: captainName, Captain: true}},
		CurrentIndex:     1,
		HintsUsed:        map[int]int{},
		Checklist:        map[int]map[string]bool{},
		UnlockBroadcast:  map[int]bool{},
		LocationVerified: map[int]bool{},
		PhotoVerified:    map[int]bool{},
		CreatedAt:        now,
	}
}

// HasMember reports whether the user belongs to this team.
func (t *TeamState) HasMember(userID string) bool {
	for _, m := range t.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// Captain returns the team captain. Falls back to the first member if the
// captain flag was lost (e.g. a hand-edited snapshot).
func (t *TeamState) Captain() *Member {
	for i := range t.Members {
		if t.Members[i].Captain {
			return &t.Members[i]
		}
	}
	if len(t.Members) > 0 {
		return &t.Members[0]
	}
	return nil
}

// CompletedCount returns the number of accepted challenges.
func (t *TeamState) CompletedCount() int { return len(t.Completed) }

// HasCompleted reports whether the given challenge was already accepted.
func (t *TeamState) HasCompleted(challengeID int) bool {
	for _, c := range t.Completed {
		if c.ChallengeID == challengeID {
			return true
		}
	}
	return false
}

// Finished reports whether the team has completed the whole race.
func (t *TeamState) Finished() bool { return t.FinishTime != nil }

// ChecklistFor returns the mutable checklist progress for a challenge,
// creating it on first use.
func (t *TeamState) ChecklistFor(challengeID int) map[string]bool {
	if t.Checklist == nil {
		t.Checklist = map[int]map[string]bool{}
	}
	p, ok := t.Checklist[challengeID]
	if !ok {
		p = map[string]bool{}
		t.Checklist[challengeID] = p
	}
	return p
}

// Clone returns a deep copy safe to hand out after the team lock is released.
func (t *TeamState) Clone() *TeamState {
	cp := *t
	cp.Members = append([]Member(nil), t.Members...)
	cp.Completed = append([]Completion(nil), t.Completed...)
	cp.PassUsed = append([]int(nil), t.PassUsed...)
	if t.FinishTime != nil {
		ft := *t.FinishTime
		cp.FinishTime = &ft
	}
	if t.PendingPenalty != nil {
		pp := *t.PendingPenalty
		cp.PendingPenalty = &pp
	}
	if t.PendingPhoto != nil {
		ph := *t.PendingPhoto
		cp.PendingPhoto = &ph
	}
	cp.HintsUsed = copyIntMap(t.HintsUsed)
	cp.UnlockBroadcast = copyBoolMap(t.UnlockBroadcast)
	cp.LocationVerified = copyBoolMap(t.LocationVerified)
	cp.PhotoVerified = copyBoolMap(t.PhotoVerified)
	cp.Checklist = make(map[int]map[string]bool, len(t.Checklist))
	for id, items := range t.Checklist {
		inner := make(map[string]bool, len(items))
		for k, v := range items {
			inner[k] = v
		}
		cp.Checklist[id] = inner
	}
	return &cp
}

func copyIntMap(m map[int]int) map[int]int {
	out := make(map[int]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyBoolMap(m map[int]bool) map[int]bool {
	out := make(map[int]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
