package service

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pavilion/internal/domain"
	"github.com/alanyoungcy/pavilion/internal/units"
)

// ClaimRefund pays caller everything they spent on a cancelled game. Spend is
// zeroed before the payout, so a second claim, including one made from inside
// the payout, fails with ErrNothingToClaim.
func (e *Engine) ClaimRefund(ctx context.Context, caller common.Address, gameID uint64) (*big.Int, error) {
	var paid *big.Int
	err := e.run(ctx, func(ctx context.Context, f *frame) error {
		g, err := f.tx.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		if g.Status != domain.StatusCancelled {
			return domain.ErrGameNotCancelled
		}

		cents, err := f.tx.GetSpent(ctx, gameID, caller)
		if err != nil {
			return fmt.Errorf("engine: get spent: %w", err)
		}
		if cents == 0 {
			return domain.ErrNothingToClaim
		}
		amount, err := units.CentsToAmount(cents, e.decimals)
		if err != nil {
			return fmt.Errorf("engine: scale refund: %w", err)
		}

		if err := f.tx.SetSpent(ctx, gameID, caller, 0); err != nil {
			return fmt.Errorf("engine: clear spent: %w", err)
		}
		if err := e.gateway.Push(ctx, caller, amount); err != nil {
			return fmt.Errorf("engine: push refund: %w", err)
		}

		f.emit(domain.Event{
			Type:   domain.EventRefundClaimed,
			GameID: gameID,
			Caller: caller.Hex(),
			Amount: amount.String(),
		})
		paid = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// ClaimWinnings redeems caller's winning-side tickets one unit of stablecoin
// each. Losing-side balances are left as they are.
func (e *Engine) ClaimWinnings(ctx context.Context, caller common.Address, gameID uint64) (*big.Int, error) {
	var paid *big.Int
	err := e.run(ctx, func(ctx context.Context, f *frame) error {
		g, err := f.tx.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		if g.Status == domain.StatusCancelled {
			return domain.ErrGameCancelled
		}
		if g.Outcome == domain.DirectionNotSet {
			return domain.ErrOutcomeNotSet
		}

		qty, err := f.tx.GetBalance(ctx, gameID, caller, g.Outcome)
		if err != nil {
			return fmt.Errorf("engine: get balance: %w", err)
		}
		if qty == 0 {
			return domain.ErrNothingToClaim
		}
		amount := units.UnitsToAmount(qty, e.decimals)

		if err := f.tx.SetBalance(ctx, gameID, caller, g.Outcome, 0); err != nil {
			return fmt.Errorf("engine: clear balance: %w", err)
		}
		if err := e.gateway.Push(ctx, caller, amount); err != nil {
			return fmt.Errorf("engine: push winnings: %w", err)
		}

		outcome := g.Outcome
		f.emit(domain.Event{
			Type:      domain.EventWinningsClaimed,
			GameID:    gameID,
			Caller:    caller.Hex(),
			Direction: &outcome,
			Quantity:  qty,
			Amount:    amount.String(),
		})
		paid = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}
