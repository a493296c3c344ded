package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pavilion/internal/units"
)

// TreasuryService reads and drains the pool.
type TreasuryService interface {
	Withdraw(ctx context.Context, caller common.Address, amount *big.Int) error
	PoolBalance(ctx context.Context) (*big.Int, error)
}

type TreasuryHandler struct {
	treasury TreasuryService
	decimals uint8
	logger   *slog.Logger
}

func NewTreasuryHandler(treasury TreasuryService, decimals uint8, logger *slog.Logger) *TreasuryHandler {
	return &TreasuryHandler{treasury: treasury, decimals: decimals, logger: logger}
}

// Balance handles GET /api/treasury/balance.
func (h *TreasuryHandler) Balance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.treasury.PoolBalance(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "pool balance", err)
		return
	}
	writeJSON(w, http.StatusOK, newAmountResponse(bal, h.decimals))
}

// Withdraw handles POST /api/treasury/withdraw. The amount is in whole
// token units, e.g. {"amount":"12.5"}.
func (h *TreasuryHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount string `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := units.ParseAmount(req.Amount, h.decimals)
	if err != nil {
		writeDomainError(w, r, h.logger, "withdraw", err)
		return
	}
	if err := h.treasury.Withdraw(r.Context(), who, amount); err != nil {
		writeDomainError(w, r, h.logger, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, newAmountResponse(amount, h.decimals))
}
