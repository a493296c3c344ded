package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pavilion/internal/units"
)

// SettlementService pays out refunds and winnings.
type SettlementService interface {
	ClaimRefund(ctx context.Context, caller common.Address, gameID uint64) (*big.Int, error)
	ClaimWinnings(ctx context.Context, caller common.Address, gameID uint64) (*big.Int, error)
}

type SettlementHandler struct {
	settle   SettlementService
	decimals uint8
	logger   *slog.Logger
}

func NewSettlementHandler(settle SettlementService, decimals uint8, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{settle: settle, decimals: decimals, logger: logger}
}

// amountResponse carries a token amount both in base units and formatted.
type amountResponse struct {
	Amount    string `json:"amount"`
	Formatted string `json:"formatted"`
}

func newAmountResponse(amount *big.Int, decimals uint8) amountResponse {
	return amountResponse{Amount: amount.String(), Formatted: units.FormatAmount(amount, decimals)}
}

// Refund handles POST /api/games/{id}/refund.
func (h *SettlementHandler) Refund(w http.ResponseWriter, r *http.Request) {
	h.claim(w, r, "claim refund", h.settle.ClaimRefund)
}

// Winnings handles POST /api/games/{id}/winnings.
func (h *SettlementHandler) Winnings(w http.ResponseWriter, r *http.Request) {
	h.claim(w, r, "claim winnings", h.settle.ClaimWinnings)
}

func (h *SettlementHandler) claim(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, common.Address, uint64) (*big.Int, error)) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := gameID(w, r)
	if !ok {
		return
	}
	paid, err := fn(r.Context(), who, id)
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newAmountResponse(paid, h.decimals))
}
