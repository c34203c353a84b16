package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/deckstorm/tcg-arena/services"
)

type BracketHandler struct {
	bracketService    services.BracketService
	tournamentService services.TournamentService
}

func NewBracketHandler(
	bracketService services.BracketService,
	tournamentService services.TournamentService,
) *BracketHandler {
	return &BracketHandler{
		bracketService:    bracketService,
		tournamentService: tournamentService,
	}
}

// GetBracketHandler обрабатывает GET /tournaments/{tournamentID}/bracket
func (h *BracketHandler) GetBracketHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := readIDParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	bracket, err := h.bracketService.GetBracket(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"bracket": bracket}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SwissPairingsHandler обрабатывает GET /tournaments/{tournamentID}/pairings.
// Возвращает предварительные пары для следующего (или указанного) тура, ничего
// не сохраняя.
func (h *BracketHandler) SwissPairingsHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := readIDParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournamentService.GetByID(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	round := tournament.CurrentRound + 1
	if roundStr := r.URL.Query().Get("round"); roundStr != "" {
		v, err := strconv.Atoi(roundStr)
		if err != nil || v < 1 {
			badRequestResponse(w, r, errors.New("invalid round query parameter"))
			return
		}
		round = v
	}

	pairings, err := h.bracketService.GenerateSwissPairings(r.Context(), nil, tournament, round)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"pairings": pairings}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
