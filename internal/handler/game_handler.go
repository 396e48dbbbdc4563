package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"racehub/internal/engine"
	"racehub/internal/middleware"
	"racehub/internal/service"
	"racehub/pkg/gameerr"
	"racehub/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// GameHandler exposes the player-facing race endpoints
type GameHandler struct {
	gameService service.GameService
	logger      *logger.Logger
}

// NewGameHandler creates a new game handler
func NewGameHandler(gameService service.GameService, logger *logger.Logger) *GameHandler {
	return &GameHandler{
		gameService: gameService,
		logger:      logger,
	}
}

type createTeamRequest struct {
	Name string `json:"name"`
}

type submitRequest struct {
	ChallengeID int    `json:"challenge_id"`
	Text        string `json:"text"`
	PhotoRef    string `json:"photo_ref"`
}

type locationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// identity extracts the authenticated caller, writing a 401 when absent.
func (h *GameHandler) identity(w http.ResponseWriter, r *http.Request) (*middleware.Identity, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		respondError(w, gameerr.Unauthorized("authentication required"), h.logger)
		return nil, false
	}
	return id, true
}

// CreateTeam handles POST /api/v1/teams
func (h *GameHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req createTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, gameerr.Validation("invalid request body"), h.logger)
		return
	}

	team, err := h.gameService.CreateTeam(r.Context(), id.UserID, id.Name, req.Name)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusCreated, team)
}

// JoinTeam handles POST /api/v1/teams/{teamID}/join
func (h *GameHandler) JoinTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	teamID := chi.URLParam(r, "teamID")
	team, err := h.gameService.JoinTeam(r.Context(), id.UserID, id.Name, teamID)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, team)
}

// ListTeams handles GET /api/v1/teams
func (h *GameHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	teams := h.gameService.Teams(r.Context())
	respondJSON(w, http.StatusOK, map[string]interface{}{"teams": teams})
}

// MyTeam handles GET /api/v1/teams/me
func (h *GameHandler) MyTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	team, err := h.gameService.TeamForUser(r.Context(), id.UserID)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, team)
}

// LeaveTeam handles DELETE /api/v1/teams/me
func (h *GameHandler) LeaveTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	team, err := h.gameService.TeamForUser(r.Context(), id.UserID)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}
	if err := h.gameService.RemoveMember(r.Context(), team.ID, id.UserID); err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"left": true})
}

// Submit handles POST /api/v1/submissions
func (h *GameHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, gameerr.Validation("invalid request body"), h.logger)
		return
	}

	result, err := h.gameService.Submit(r.Context(), id.UserID, engine.Submission{
		ChallengeID: req.ChallengeID,
		Text:        req.Text,
		PhotoRef:    req.PhotoRef,
	})
	if err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// RequestHint handles POST /api/v1/hints
func (h *GameHandler) RequestHint(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	hint, err := h.gameService.RequestHint(r.Context(), id.UserID)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, hint)
}

// VerifyLocation handles POST /api/v1/location
func (h *GameHandler) VerifyLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, gameerr.Validation("invalid request body"), h.logger)
		return
	}

	result, err := h.gameService.VerifyLocation(r.Context(), id.UserID, req.Latitude, req.Longitude)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// CurrentChallenge handles GET /api/v1/challenge
func (h *GameHandler) CurrentChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	status, err := h.gameService.CurrentChallenge(r.Context(), id.UserID)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// CheckUnlock handles POST /api/v1/challenge/unlock-check
func (h *GameHandler) CheckUnlock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	events, err := h.gameService.CheckAndUnlock(r.Context(), id.UserID)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"unlocked": len(events) > 0,
		"events":   events,
	})
}

// Leaderboard handles GET /api/v1/leaderboard
func (h *GameHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.gameService.Leaderboard(r.Context())
	if err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": entries})
}

// TournamentStatus handles GET /api/v1/tournaments/{challengeID}
func (h *GameHandler) TournamentStatus(w http.ResponseWriter, r *http.Request) {
	challengeID, err := strconv.Atoi(chi.URLParam(r, "challengeID"))
	if err != nil {
		respondError(w, gameerr.Validation("invalid challenge id"), h.logger)
		return
	}

	state, err := h.gameService.TournamentStatus(r.Context(), challengeID)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, state)
}
