package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/openscrim/tournament-engine/models"
	"github.com/openscrim/tournament-engine/services"
)

type MatchHandler struct {
	matchService *services.MatchService
}

func NewMatchHandler(matchService *services.MatchService) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	match, err := h.matchService.GetMatch(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type teamActionInput struct {
	TeamID int    `json:"team_id"`
	Map    string `json:"map,omitempty"`
	Side   string `json:"side,omitempty"`
}

func (in *teamActionInput) validateTeam() error {
	if in.TeamID <= 0 {
		return errors.New("team_id is required")
	}
	return nil
}

func (h *MatchHandler) Ready(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input teamActionInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := input.validateTeam(); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	match, err := h.matchService.SignalReady(r.Context(), id, input.TeamID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) Ban(w http.ResponseWriter, r *http.Request) {
	h.vetoAction(w, r, h.matchService.BanMap)
}

func (h *MatchHandler) Pick(w http.ResponseWriter, r *http.Request) {
	h.vetoAction(w, r, h.matchService.PickMap)
}

func (h *MatchHandler) vetoAction(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, matchID, teamID int, mapName string) (*models.Match, error)) {
	id, err := idParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input teamActionInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := input.validateTeam(); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Map == "" {
		badRequestResponse(w, r, errors.New("map is required"))
		return
	}
	match, err := op(r.Context(), id, input.TeamID, input.Map)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) Side(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input teamActionInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := input.validateTeam(); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	match, err := h.matchService.SelectSide(r.Context(), id, input.TeamID, models.Side(input.Side))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type resultInput struct {
	TeamID     int `json:"team_id"`
	Team1Score int `json:"team1_score"`
	Team2Score int `json:"team2_score"`
}

func (h *MatchHandler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input resultInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.TeamID <= 0 {
		badRequestResponse(w, r, errors.New("team_id is required"))
		return
	}
	match, err := h.matchService.SubmitResult(r.Context(), id, input.TeamID, input.Team1Score, input.Team2Score)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type adminResolveInput struct {
	ResolvedBy int  `json:"resolved_by"`
	Team1Score *int `json:"team1_score,omitempty"`
	Team2Score *int `json:"team2_score,omitempty"`
	Reset      bool `json:"reset,omitempty"`
}

// ResolveDispute closes a dispute either with an authoritative score or,
// with reset=true, by discarding both submissions.
func (h *MatchHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input adminResolveInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var match *models.Match
	if input.Reset {
		match, err = h.matchService.ResetDispute(r.Context(), id, input.ResolvedBy)
	} else {
		if input.Team1Score == nil || input.Team2Score == nil {
			badRequestResponse(w, r, errors.New("team1_score and team2_score are required unless reset is set"))
			return
		}
		match, err = h.matchService.ResolveDispute(r.Context(), id, input.ResolvedBy, *input.Team1Score, *input.Team2Score)
	}
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) ForceComplete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input struct {
		Team1Score int `json:"team1_score"`
		Team2Score int `json:"team2_score"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	match, err := h.matchService.ForceComplete(r.Context(), id, input.Team1Score, input.Team2Score)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) Revert(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	match, err := h.matchService.RevertMatch(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RevertRound voids a whole round of a tournament's bracket.
func (h *MatchHandler) RevertRound(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input struct {
		Round   int    `json:"round"`
		Segment string `json:"segment,omitempty"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Round <= 0 {
		badRequestResponse(w, r, errors.New("round is required"))
		return
	}
	if err := h.matchService.RevertRound(r.Context(), id, input.Round, models.BracketSegment(input.Segment)); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
