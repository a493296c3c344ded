package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

// GameService is the registry part of the engine.
type GameService interface {
	CreateGame(ctx context.Context, caller common.Address, p domain.GameParams) (uint64, error)
	ReadGame(ctx context.Context, id uint64) (domain.Game, error)
	SetGameStatus(ctx context.Context, caller common.Address, id uint64, status domain.Status) error
	SetGamePrices(ctx context.Context, caller common.Address, id uint64, positive, negative uint64) error
	SetGameMaxQuantity(ctx context.Context, caller common.Address, id uint64, positive, negative uint64) error
	SetGameOutcome(ctx context.Context, caller common.Address, id uint64, outcome domain.Direction) error
}

type GameHandler struct {
	games  GameService
	logger *slog.Logger
}

func NewGameHandler(games GameService, logger *slog.Logger) *GameHandler {
	return &GameHandler{games: games, logger: logger}
}

type createGameRequest struct {
	Name        string      `json:"name"`
	ClosesAt    time.Time   `json:"closes_at"`
	Prices      domain.Pair `json:"prices"`
	MaxQuantity domain.Pair `json:"max_quantity"`
}

// CreateGame handles POST /api/games.
func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req createGameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := h.games.CreateGame(r.Context(), who, domain.GameParams{
		Name:          req.Name,
		ClosesAt:      req.ClosesAt,
		PricePositive: req.Prices.Positive,
		PriceNegative: req.Prices.Negative,
		MaxPositive:   req.MaxQuantity.Positive,
		MaxNegative:   req.MaxQuantity.Negative,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "create game", err)
		return
	}
	g, err := h.games.ReadGame(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "read game", err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// GetGame handles GET /api/games/{id}.
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	id, ok := gameID(w, r)
	if !ok {
		return
	}
	g, err := h.games.ReadGame(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "read game", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// SetStatus handles PUT /api/games/{id}/status.
func (h *GameHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status domain.Status `json:"status"`
	}
	h.update(w, r, &req, "set status", func(ctx context.Context, who common.Address, id uint64) error {
		return h.games.SetGameStatus(ctx, who, id, req.Status)
	})
}

// SetPrices handles PUT /api/games/{id}/prices.
func (h *GameHandler) SetPrices(w http.ResponseWriter, r *http.Request) {
	var req domain.Pair
	h.update(w, r, &req, "set prices", func(ctx context.Context, who common.Address, id uint64) error {
		return h.games.SetGamePrices(ctx, who, id, req.Positive, req.Negative)
	})
}

// SetMaxQuantity handles PUT /api/games/{id}/max-quantity.
func (h *GameHandler) SetMaxQuantity(w http.ResponseWriter, r *http.Request) {
	var req domain.Pair
	h.update(w, r, &req, "set max quantity", func(ctx context.Context, who common.Address, id uint64) error {
		return h.games.SetGameMaxQuantity(ctx, who, id, req.Positive, req.Negative)
	})
}

// SetOutcome handles PUT /api/games/{id}/outcome.
func (h *GameHandler) SetOutcome(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome domain.Direction `json:"outcome"`
	}
	h.update(w, r, &req, "set outcome", func(ctx context.Context, who common.Address, id uint64) error {
		return h.games.SetGameOutcome(ctx, who, id, req.Outcome)
	})
}

// update decodes req, applies the setter and answers with the updated game.
func (h *GameHandler) update(w http.ResponseWriter, r *http.Request, req any, op string, apply func(ctx context.Context, who common.Address, id uint64) error) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := gameID(w, r)
	if !ok {
		return
	}
	if !decodeBody(w, r, req) {
		return
	}
	if err := apply(r.Context(), who, id); err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	g, err := h.games.ReadGame(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "read game", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
