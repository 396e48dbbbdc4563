// Package engine implements the challenge progression and verification
// engine for the scavenger race: sequential unlocking, submission
// verification, hint penalties and tournament brackets. The engine is pure
// in-memory state; transport and persistence live outside it.
package engine

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"racehub/internal/domain"
	"racehub/internal/geo"
	"racehub/pkg/gameerr"
)

// Config wires the engine's explicit dependencies. Challenges must already
// be validated (contiguous ids starting at 1).
type Config struct {
	Challenges []domain.ChallengeConfig
	// GlobalPhotoVerification is the default for challenges that do not set
	// requires_photo_verification themselves.
	GlobalPhotoVerification bool
	// MaxTeamSize caps team membership; zero means unlimited.
	MaxTeamSize int
	Clock       Clock
	Rand        *rand.Rand
}

type teamEntry struct {
	mu    sync.Mutex
	state *domain.TeamState
}

// Engine is the progression state machine. Per-team state is mutated under
// that team's lock so submissions for different teams proceed in parallel;
// registry-shaping operations (team creation, reset, restore) take the
// registry lock exclusively. Tournament state has its own lock, always
// acquired after team locks; multi-team mutations lock teams in ascending
// id order.
type Engine struct {
	mu  sync.RWMutex
	tmu sync.Mutex

	challenges  []domain.ChallengeConfig
	maxID       int
	globalPhoto bool
	maxTeamSize int

	clock     Clock
	rng       *rand.Rand
	scheduler penaltyScheduler

	started bool
	ended   bool

	teams     map[string]*teamEntry
	userIndex map[string]string

	tournaments map[int]*domain.TournamentState
}

// New builds an engine over a validated challenge list.
func New(cfg Config) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		challenges:  cfg.Challenges,
		maxID:       len(cfg.Challenges),
		globalPhoto: cfg.GlobalPhotoVerification,
		maxTeamSize: cfg.MaxTeamSize,
		clock:       clock,
		rng:         rng,
		scheduler:   penaltyScheduler{clock: clock},
		teams:       map[string]*teamEntry{},
		userIndex:   map[string]string{},
		tournaments: map[int]*domain.TournamentState{},
	}
}

func (e *Engine) challenge(id int) *domain.ChallengeConfig {
	if id < 1 || id > e.maxID {
		return nil
	}
	return &e.challenges[id-1]
}

// checkInvariant guards the core progression invariant. A violation is a
// programming-error class failure: the operation aborts before mutating.
func checkInvariant(team *domain.TeamState) error {
	if team.CurrentIndex != len(team.Completed)+1 {
		return gameerr.Internal("team progression state is inconsistent",
			fmt.Errorf("team %s: current index %d, completed %d",
				team.ID, team.CurrentIndex, len(team.Completed)))
	}
	return nil
}

// Submission is an inbound payload, tagged as text or a photo reference by
// which field is set. ChallengeID zero targets the team's current challenge.
type Submission struct {
	ChallengeID int
	Text        string
	PhotoRef    string
}

// SubmitResult reports the outcome of a submission attempt. A wrong answer
// is not an error: Accepted stays false and checklist progress, if any, is
// included so the submitter can self-correct.
type SubmitResult struct {
	Accepted         bool                   `json:"accepted"`
	Completed        bool                   `json:"completed"`
	Finished         bool                   `json:"finished"`
	PhotoPending     bool                   `json:"photo_pending"`
	Partial          bool                   `json:"partial"`
	Matched          []string               `json:"matched,omitempty"`
	ChecklistDone    int                    `json:"checklist_done,omitempty"`
	ChecklistTotal   int                    `json:"checklist_total,omitempty"`
	CurrentChallenge int                    `json:"current_challenge"`
	Penalty          *domain.PendingPenalty `json:"penalty,omitempty"`
	Events           []domain.Event         `json:"events,omitempty"`
}

// Submit runs the full verification and progression pipeline for one
// inbound submission. A rejected submission may still return a non-nil
// result: the opportunistic expiry check fires on every interaction, and
// its one-time unlock event rides along in Events even when the submission
// itself fails.
func (e *Engine) Submit(userID string, sub Submission) (*SubmitResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, err := e.entryForUser(userID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	team := entry.state

	if err := checkInvariant(team); err != nil {
		return nil, err
	}
	if team.Finished() {
		return nil, gameerr.GameAlreadyFinished()
	}

	events := e.expireLocked(team)
	fail := func(err error) (*SubmitResult, error) {
		return &SubmitResult{CurrentChallenge: team.CurrentIndex, Events: events}, err
	}

	cid := sub.ChallengeID
	if cid == 0 {
		cid = team.CurrentIndex
	}
	if team.HasCompleted(cid) {
		return fail(gameerr.AlreadyCompleted(cid))
	}
	if cid != team.CurrentIndex {
		return fail(gameerr.OutOfOrderSubmission(cid, team.CurrentIndex))
	}
	if locked, remaining := e.scheduler.locked(team); locked {
		return fail(gameerr.ChallengeLocked(cid, int(remaining.Seconds())))
	}

	cfg := e.challenge(cid)
	if cfg == nil {
		return fail(gameerr.NotFound("challenge %d does not exist", cid))
	}

	if cfg.Coordinates != nil && cid > 1 && !team.LocationVerified[cid] {
		return fail(gameerr.LocationNotVerified(cid))
	}

	if e.photoGateRequired(cfg) && !team.PhotoVerified[cid] {
		if sub.PhotoRef == "" {
			return fail(gameerr.PhotoGateRequired(cid))
		}
		return e.registerPhotoLocked(team, cfg, userID, sub.PhotoRef, true, events)
	}

	switch cfg.Verification.Method {
	case domain.MethodTournament:
		return fail(gameerr.InvalidFormat(
			"this is a tournament challenge; results are reported by the admin"))

	case domain.MethodPhoto:
		if sub.PhotoRef == "" {
			return fail(gameerr.InvalidFormat("a photo submission is required for this challenge"))
		}
		return e.registerPhotoLocked(team, cfg, userID, sub.PhotoRef, false, events)

	case domain.MethodAnswer:
		if sub.Text == "" {
			return fail(gameerr.InvalidFormat("a text answer is required for this challenge"))
		}
		var progress map[string]bool
		if cfg.Verification.IsChecklist() {
			progress = team.ChecklistFor(cid)
			if !checklistStateValid(cfg.Verification, progress) {
				return fail(gameerr.InvalidChecklistState(cid))
			}
		}
		out := Evaluate(cfg.Verification, sub.Text, progress)

		res := &SubmitResult{
			Accepted:         out.Accepted,
			Partial:          out.Partial,
			Matched:          out.Matched,
			CurrentChallenge: team.CurrentIndex,
			Events:           events,
		}
		if cfg.Verification.IsChecklist() {
			res.ChecklistTotal = len(cfg.Verification.ChecklistItems)
			for _, item := range cfg.Verification.ChecklistItems {
				if progress[item] {
					res.ChecklistDone++
				}
			}
		}
		if !out.Accepted {
			return res, nil
		}

		comp := domain.Completion{ChallengeID: cid, SubmitterID: userID, Answer: sub.Text}
		cevents, penalty, arrival := e.completeLocked(team, cfg, comp, 0)
		res.Completed = true
		res.Finished = team.Finished()
		res.Penalty = penalty
		res.CurrentChallenge = team.CurrentIndex
		res.Events = append(events, cevents...)
		if arrival != 0 {
			res.Events = append(res.Events, e.recordArrival(team.ID, arrival)...)
			// A solo-field tournament resolves during the arrival and
			// advances the team again.
			res.CurrentChallenge = team.CurrentIndex
			res.Finished = team.Finished()
		}
		return res, nil

	default:
		return nil, gameerr.Internal("unknown verification method",
			fmt.Errorf("challenge %d: method %q", cid, cfg.Verification.Method))
	}
}

func (e *Engine) registerPhotoLocked(team *domain.TeamState, cfg *domain.ChallengeConfig,
	userID, photoRef string, gate bool, events []domain.Event) (*SubmitResult, error) {

	team.PendingPhoto = &domain.PendingPhoto{
		ChallengeID:  cfg.ID,
		SubmissionID: uuid.NewString(),
		SubmitterID:  userID,
		PhotoRef:     photoRef,
		Gate:         gate,
		SubmittedAt:  e.clock.Now(),
	}
	events = append(events, domain.Event{
		Type:          domain.EventPhotoPending,
		TeamID:        team.ID,
		TeamName:      team.Name,
		ChallengeID:   cfg.ID,
		ChallengeName: cfg.Name,
		SubmitterID:   userID,
		At:            e.clock.Now(),
	})
	return &SubmitResult{
		PhotoPending:     true,
		CurrentChallenge: team.CurrentIndex,
		Events:           events,
	}, nil
}

// completeLocked applies an accepted completion: appends the record,
// advances the pointer, sets the finish time on the last challenge and
// installs the penalty (the larger of the hint penalty and forced, which is
// nonzero only for tournament last place). Returns the ordered events, the
// installed penalty and the id of a tournament challenge the team just
// arrived at (zero if none). Caller holds the team lock.
func (e *Engine) completeLocked(team *domain.TeamState, cfg *domain.ChallengeConfig,
	comp domain.Completion, forced time.Duration) ([]domain.Event, *domain.PendingPenalty, int) {

	now := e.clock.Now()
	comp.Timestamp = now
	team.Completed = append(team.Completed, comp)
	team.CurrentIndex++

	// A penalty held for the just-completed transition is obsolete.
	if p := team.PendingPenalty; p != nil && p.ChallengeID <= cfg.ID {
		team.PendingPenalty = nil
	}

	hints := team.HintsUsed[cfg.ID]
	penaltyDur := cfg.PenaltyFor(hints)
	if forced > penaltyDur {
		penaltyDur = forced
	}

	finished := team.CurrentIndex > e.maxID
	if finished && team.FinishTime == nil {
		ft := now
		team.FinishTime = &ft
	}

	base := domain.Event{
		TeamID:         team.ID,
		TeamName:       team.Name,
		ChallengeID:    cfg.ID,
		ChallengeName:  cfg.Name,
		SubmitterID:    comp.SubmitterID,
		CompletedCount: team.CompletedCount(),
		TotalCount:     e.maxID,
		Finished:       finished,
		At:             now,
	}

	ack := base
	ack.Type = domain.EventSubmitterAck
	broadcast := base
	broadcast.Type = domain.EventCompletionBroadcast

	events := make([]domain.Event, 0, 4)

	var penalty *domain.PendingPenalty
	arrival := 0
	if !finished {
		next := team.CurrentIndex
		if penaltyDur > 0 {
			penalty = e.scheduler.installPenalty(team, next, penaltyDur)
			info := &domain.PenaltyInfo{
				HintsUsed:      hints,
				Duration:       penaltyDur,
				UnlocksAt:      penalty.ExpiresAt,
				TournamentLoss: forced > 0 && forced >= penaltyDur,
			}
			ack.Penalty = info
			broadcast.Penalty = info
		}
		events = append(events, ack, broadcast)
		if penalty == nil && !team.UnlockBroadcast[next] {
			team.UnlockBroadcast[next] = true
			unlock := domain.Event{
				Type:          domain.EventUnlockBroadcast,
				TeamID:        team.ID,
				TeamName:      team.Name,
				ChallengeID:   next,
				ChallengeName: e.challenge(next).Name,
				SubmitterID:   comp.SubmitterID,
				At:            now,
			}
			events = append(events, unlock)
		}
		if nextCfg := e.challenge(next); nextCfg.Verification.Method == domain.MethodTournament {
			arrival = next
		}
	} else {
		events = append(events, ack, broadcast, domain.Event{
			Type:           domain.EventRaceFinished,
			TeamID:         team.ID,
			TeamName:       team.Name,
			ChallengeID:    cfg.ID,
			CompletedCount: team.CompletedCount(),
			TotalCount:     e.maxID,
			Finished:       true,
			At:             now,
		})
	}

	return events, penalty, arrival
}

// expireLocked is the pull-based penalty expiry check: flips the one-shot
// broadcast flag, clears the spent penalty record and emits the unlock
// broadcast exactly once. Caller holds the team lock.
func (e *Engine) expireLocked(team *domain.TeamState) []domain.Event {
	if !e.scheduler.checkExpiry(team) {
		return nil
	}
	cid := team.PendingPenalty.ChallengeID
	team.PendingPenalty = nil

	if team.UnlockBroadcast[cid] {
		return nil
	}
	team.UnlockBroadcast[cid] = true
	name := ""
	if cfg := e.challenge(cid); cfg != nil {
		name = cfg.Name
	}
	return []domain.Event{{
		Type:          domain.EventUnlockBroadcast,
		TeamID:        team.ID,
		TeamName:      team.Name,
		ChallengeID:   cid,
		ChallengeName: name,
		At:            e.clock.Now(),
	}}
}

// CheckAndUnlock is called opportunistically on any interaction from the
// team: it detects penalty expiry and returns the one-time unlock event,
// or nil when nothing newly unlocked.
func (e *Engine) CheckAndUnlock(userID string) ([]domain.Event, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, err := e.entryForUser(userID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return e.expireLocked(entry.state), nil
}

// RequestHint reveals the next hint for the team's current challenge and
// shares it with the whole team.
func (e *Engine) RequestHint(userID string) (*HintResult, []domain.Event, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, err := e.entryForUser(userID)
	if err != nil {
		return nil, nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	team := entry.state

	if team.Finished() {
		return nil, nil, gameerr.GameAlreadyFinished()
	}

	events := e.expireLocked(team)

	if locked, remaining := e.scheduler.locked(team); locked {
		return nil, events, gameerr.ChallengeLocked(team.CurrentIndex, int(remaining.Seconds()))
	}

	cfg := e.challenge(team.CurrentIndex)
	res, err := e.scheduler.requestHint(cfg, team)
	if err != nil {
		return nil, events, err
	}

	events = append(events, domain.Event{
		Type:          domain.EventHintRevealed,
		TeamID:        team.ID,
		TeamName:      team.Name,
		ChallengeID:   cfg.ID,
		ChallengeName: cfg.Name,
		SubmitterID:   userID,
		HintIndex:     res.Index,
		HintText:      res.Text,
		At:            e.clock.Now(),
	})
	return res, events, nil
}

// LocationResult reports a location gate check.
type LocationResult struct {
	ChallengeID    int     `json:"challenge_id"`
	Verified       bool    `json:"verified"`
	DistanceMeters float64 `json:"distance_meters"`
	RadiusMeters   float64 `json:"radius_meters"`
}

// VerifyLocation checks the team's position against the current challenge's
// gate. Being outside the radius is a normal outcome, not an error.
// Challenge 1 and ungated challenges verify trivially.
func (e *Engine) VerifyLocation(userID string, lat, lon float64) (*LocationResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, err := e.entryForUser(userID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	team := entry.state

	if team.Finished() {
		return nil, gameerr.GameAlreadyFinished()
	}
	cid := team.CurrentIndex
	cfg := e.challenge(cid)

	if cfg.Coordinates == nil || cid == 1 {
		team.LocationVerified[cid] = true
		return &LocationResult{ChallengeID: cid, Verified: true}, nil
	}

	ok, dist := geo.Within(cfg.Coordinates, lat, lon)
	if ok {
		team.LocationVerified[cid] = true
	}
	return &LocationResult{
		ChallengeID:    cid,
		Verified:       ok,
		DistanceMeters: dist,
		RadiusMeters:   cfg.Coordinates.RadiusMeters,
	}, nil
}

// ApprovalResult reports an admin photo decision.
type ApprovalResult struct {
	Approved bool `json:"approved"`
	Gate     bool `json:"gate"`
	// Completed is true when an approved answer photo completed the
	// challenge.
	Completed bool                   `json:"completed"`
	Penalty   *domain.PendingPenalty `json:"penalty,omitempty"`
	Events    []domain.Event         `json:"events,omitempty"`
}

// ApprovePhoto resolves a pending photo submission. Gate approvals reveal
// the withheld challenge; answer approvals are treated exactly like a
// successful answer evaluation. Rejection leaves the team free to resubmit.
func (e *Engine) ApprovePhoto(teamID string, challengeID int, approve bool) (*ApprovalResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, ok := e.teams[teamID]
	if !ok {
		return nil, gameerr.NotFound("team %q does not exist", teamID)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	team := entry.state

	p := team.PendingPhoto
	if p == nil || p.ChallengeID != challengeID {
		return nil, gameerr.NotFound("no pending photo for team %q on challenge %d", teamID, challengeID)
	}

	team.PendingPhoto = nil
	if !approve {
		return &ApprovalResult{Gate: p.Gate}, nil
	}

	if p.Gate {
		team.PhotoVerified[challengeID] = true
		res := &ApprovalResult{Approved: true, Gate: true}
		if !team.UnlockBroadcast[challengeID] {
			team.UnlockBroadcast[challengeID] = true
			res.Events = []domain.Event{{
				Type:          domain.EventUnlockBroadcast,
				TeamID:        team.ID,
				TeamName:      team.Name,
				ChallengeID:   challengeID,
				ChallengeName: e.challenge(challengeID).Name,
				At:            e.clock.Now(),
			}}
		}
		return res, nil
	}

	if err := checkInvariant(team); err != nil {
		return nil, err
	}
	if team.Finished() {
		return nil, gameerr.GameAlreadyFinished()
	}
	if team.HasCompleted(challengeID) {
		return nil, gameerr.AlreadyCompleted(challengeID)
	}
	if challengeID != team.CurrentIndex {
		return nil, gameerr.OutOfOrderSubmission(challengeID, team.CurrentIndex)
	}

	cfg := e.challenge(challengeID)
	comp := domain.Completion{ChallengeID: challengeID, SubmitterID: p.SubmitterID, PhotoRef: p.PhotoRef}
	events, penalty, arrival := e.completeLocked(team, cfg, comp, 0)
	if arrival != 0 {
		events = append(events, e.recordArrival(team.ID, arrival)...)
	}
	return &ApprovalResult{
		Approved:  true,
		Completed: true,
		Penalty:   penalty,
		Events:    events,
	}, nil
}

// PassTeam manually advances a team past its current challenge (admin
// override for exceptional circumstances). Gates and penalty timers are
// bypassed; hint penalties for the passed challenge still apply.
func (e *Engine) PassTeam(teamID, adminID string) ([]domain.Event, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.started {
		return nil, gameerr.GameNotStarted()
	}
	if e.ended {
		return nil, gameerr.GameEnded()
	}

	entry, ok := e.teams[teamID]
	if !ok {
		return nil, gameerr.NotFound("team %q does not exist", teamID)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	team := entry.state

	if err := checkInvariant(team); err != nil {
		return nil, err
	}
	if team.Finished() {
		return nil, gameerr.GameAlreadyFinished()
	}

	cid := team.CurrentIndex
	cfg := e.challenge(cid)
	team.PassUsed = append(team.PassUsed, cid)
	team.PendingPhoto = nil

	comp := domain.Completion{ChallengeID: cid, SubmitterID: adminID}
	events, _, arrival := e.completeLocked(team, cfg, comp, 0)
	if arrival != 0 {
		events = append(events, e.recordArrival(team.ID, arrival)...)
	}
	return events, nil
}

func (e *Engine) entryForUser(userID string) (*teamEntry, error) {
	if !e.started {
		return nil, gameerr.GameNotStarted()
	}
	if e.ended {
		return nil, gameerr.GameEnded()
	}
	teamID, ok := e.userIndex[userID]
	if !ok {
		return nil, gameerr.NoTeam()
	}
	return e.teams[teamID], nil
}

// photoGateRequired decides whether the pre-challenge photo gate applies.
// Challenge 1 is always exempt; photo-method challenges are exempt because
// the photo is the answer itself; otherwise the explicit per-challenge
// setting wins, falling back to the global default.
func (e *Engine) photoGateRequired(cfg *domain.ChallengeConfig) bool {
	if cfg.ID == 1 {
		return false
	}
	if cfg.RequiresPhotoVerify != nil {
		return *cfg.RequiresPhotoVerify
	}
	if cfg.Verification.Method == domain.MethodPhoto {
		return false
	}
	return e.globalPhoto
}

// sortedEntries returns the entries for the given team ids in ascending id
// order, skipping teams that no longer exist. Locking in this order is the
// deadlock-avoidance rule for multi-team mutations.
func (e *Engine) sortedEntries(teamIDs []string) []*teamEntry {
	ids := append([]string(nil), teamIDs...)
	sort.Strings(ids)
	entries := make([]*teamEntry, 0, len(ids))
	for _, id := range ids {
		if entry, ok := e.teams[id]; ok {
			entries = append(entries, entry)
		}
	}
	return entries
}
