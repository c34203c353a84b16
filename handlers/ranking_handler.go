package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/deckstorm/tcg-arena/services"
)

type RankingHandler struct {
	rankingService services.RankingService
}

func NewRankingHandler(rankingService services.RankingService) *RankingHandler {
	return &RankingHandler{rankingService: rankingService}
}

// ListHandler обрабатывает GET /tournaments/{tournamentID}/rankings
func (h *RankingHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := readIDParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	rankings, err := h.rankingService.ListTournamentRankings(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"rankings": rankings}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// TieBreakersHandler обрабатывает GET /tournaments/{tournamentID}/rankings/tie-breakers?player_ids=1,2,3
func (h *RankingHandler) TieBreakersHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := readIDParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	raw := r.URL.Query().Get("player_ids")
	if raw == "" {
		badRequestResponse(w, r, errors.New("player_ids query parameter is required"))
		return
	}

	var playerIDs []int
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || id < 1 {
			badRequestResponse(w, r, errors.New("invalid player_ids query parameter"))
			return
		}
		playerIDs = append(playerIDs, id)
	}

	tieBreakers, err := h.rankingService.CalculateTieBreakers(r.Context(), tournamentID, playerIDs)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tie_breakers": tieBreakers}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
