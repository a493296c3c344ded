package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

// TicketService is the purchase and balance part of the engine.
type TicketService interface {
	BuyTickets(ctx context.Context, caller common.Address, gameID uint64, d domain.Direction, quantity, expectedPrice uint64) error
	GetBalance(ctx context.Context, gameID uint64, user common.Address, d domain.Direction) (uint64, error)
	GetTotalSpent(ctx context.Context, gameID uint64, user common.Address) (uint64, error)
}

type TicketHandler struct {
	tickets TicketService
	logger  *slog.Logger
}

func NewTicketHandler(tickets TicketService, logger *slog.Logger) *TicketHandler {
	return &TicketHandler{tickets: tickets, logger: logger}
}

type buyRequest struct {
	Direction domain.Direction `json:"direction"`
	Quantity  uint64           `json:"quantity"`
	// Price is the ticket price the buyer expects, in hundredths.
	Price uint64 `json:"price"`
}

type accountResponse struct {
	GameID     uint64 `json:"game_id"`
	Address    string `json:"address"`
	Positive   uint64 `json:"positive"`
	Negative   uint64 `json:"negative"`
	SpentCents uint64 `json:"spent_cents"`
}

// Buy handles POST /api/games/{id}/tickets and answers with the buyer's
// account after the purchase.
func (h *TicketHandler) Buy(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := gameID(w, r)
	if !ok {
		return
	}
	var req buyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.tickets.BuyTickets(r.Context(), who, id, req.Direction, req.Quantity, req.Price); err != nil {
		writeDomainError(w, r, h.logger, "buy tickets", err)
		return
	}
	h.writeAccount(w, r, http.StatusCreated, id, who)
}

// Account handles GET /api/games/{id}/accounts/{address}.
func (h *TicketHandler) Account(w http.ResponseWriter, r *http.Request) {
	id, ok := gameID(w, r)
	if !ok {
		return
	}
	raw := r.PathValue("address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid address "+raw)
		return
	}
	h.writeAccount(w, r, http.StatusOK, id, common.HexToAddress(raw))
}

func (h *TicketHandler) writeAccount(w http.ResponseWriter, r *http.Request, status int, id uint64, user common.Address) {
	ctx := r.Context()
	pos, err := h.tickets.GetBalance(ctx, id, user, domain.DirectionPositive)
	if err != nil {
		writeDomainError(w, r, h.logger, "get balance", err)
		return
	}
	neg, err := h.tickets.GetBalance(ctx, id, user, domain.DirectionNegative)
	if err != nil {
		writeDomainError(w, r, h.logger, "get balance", err)
		return
	}
	spent, err := h.tickets.GetTotalSpent(ctx, id, user)
	if err != nil {
		writeDomainError(w, r, h.logger, "get total spent", err)
		return
	}
	writeJSON(w, status, accountResponse{
		GameID:     id,
		Address:    user.Hex(),
		Positive:   pos,
		Negative:   neg,
		SpentCents: spent,
	})
}
