package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"racehub/internal/middleware"
	"racehub/internal/service"
	"racehub/pkg/gameerr"
	"racehub/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// AdminHandler exposes the organizer endpoints: game lifecycle, manual
// overrides, photo review and tournament control.
type AdminHandler struct {
	gameService service.GameService
	logger      *logger.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(gameService service.GameService, logger *logger.Logger) *AdminHandler {
	return &AdminHandler{
		gameService: gameService,
		logger:      logger,
	}
}

type photoReviewRequest struct {
	TeamID      string `json:"team_id"`
	ChallengeID int    `json:"challenge_id"`
	Approve     bool   `json:"approve"`
}

type reportWinnerRequest struct {
	TeamID string `json:"team_id"`
}

// StartGame handles POST /api/v1/admin/game/start
func (h *AdminHandler) StartGame(w http.ResponseWriter, r *http.Request) {
	if err := h.gameService.StartGame(r.Context()); err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"started": true})
}

// EndGame handles POST /api/v1/admin/game/end
func (h *AdminHandler) EndGame(w http.ResponseWriter, r *http.Request) {
	if err := h.gameService.EndGame(r.Context()); err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"ended": true})
}

// ResetGame handles POST /api/v1/admin/game/reset
func (h *AdminHandler) ResetGame(w http.ResponseWriter, r *http.Request) {
	if err := h.gameService.ResetGame(r.Context()); err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"reset": true})
}

// SaveState handles POST /api/v1/admin/game/save
func (h *AdminHandler) SaveState(w http.ResponseWriter, r *http.Request) {
	if err := h.gameService.SaveState(r.Context()); err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"saved": true})
}

// RemoveTeam handles DELETE /api/v1/admin/teams/{teamID}
func (h *AdminHandler) RemoveTeam(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	if err := h.gameService.RemoveTeam(r.Context(), teamID); err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"removed": true})
}

// RemoveMember handles DELETE /api/v1/admin/teams/{teamID}/members/{userID}
func (h *AdminHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	userID := chi.URLParam(r, "userID")
	if err := h.gameService.RemoveMember(r.Context(), teamID, userID); err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"removed": true})
}

// PassTeam handles POST /api/v1/admin/teams/{teamID}/pass
func (h *AdminHandler) PassTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		respondError(w, gameerr.Unauthorized("authentication required"), h.logger)
		return
	}

	teamID := chi.URLParam(r, "teamID")
	if err := h.gameService.PassTeam(r.Context(), teamID, id.UserID); err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"passed": true})
}

// ReviewPhoto handles POST /api/v1/admin/photos/review
func (h *AdminHandler) ReviewPhoto(w http.ResponseWriter, r *http.Request) {
	var req photoReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, gameerr.Validation("invalid request body"), h.logger)
		return
	}
	if req.TeamID == "" {
		respondError(w, gameerr.Validation("team_id is required"), h.logger)
		return
	}

	result, err := h.gameService.ApprovePhoto(r.Context(), req.TeamID, req.ChallengeID, req.Approve)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// StartTournament handles POST /api/v1/admin/tournaments/{challengeID}/start
func (h *AdminHandler) StartTournament(w http.ResponseWriter, r *http.Request) {
	challengeID, ok := h.challengeID(w, r)
	if !ok {
		return
	}

	result, err := h.gameService.StartTournament(r.Context(), challengeID)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ResetTournament handles POST /api/v1/admin/tournaments/{challengeID}/reset
func (h *AdminHandler) ResetTournament(w http.ResponseWriter, r *http.Request) {
	challengeID, ok := h.challengeID(w, r)
	if !ok {
		return
	}

	state, err := h.gameService.ResetTournament(r.Context(), challengeID)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// ReportWinner handles POST /api/v1/admin/tournaments/{challengeID}/winner
func (h *AdminHandler) ReportWinner(w http.ResponseWriter, r *http.Request) {
	challengeID, ok := h.challengeID(w, r)
	if !ok {
		return
	}

	var req reportWinnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, gameerr.Validation("invalid request body"), h.logger)
		return
	}
	if req.TeamID == "" {
		respondError(w, gameerr.Validation("team_id is required"), h.logger)
		return
	}

	result, err := h.gameService.ReportTournamentWinner(r.Context(), challengeID, req.TeamID)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) challengeID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "challengeID"))
	if err != nil {
		respondError(w, gameerr.Validation("invalid challenge id"), h.logger)
		return 0, false
	}
	return id, true
}
