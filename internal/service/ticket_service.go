package service

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pavilion/internal/domain"
	"github.com/alanyoungcy/pavilion/internal/units"
)

// BuyTickets sells quantity tickets on direction d of a game to caller at
// expectedPrice cents each and pulls the payment from caller. The ledger is
// credited before the pull; if the pull fails the whole purchase is undone.
func (e *Engine) BuyTickets(ctx context.Context, caller common.Address, gameID uint64, d domain.Direction, quantity, expectedPrice uint64) error {
	if !d.IsSide() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidDirection, d)
	}
	if quantity == 0 {
		return fmt.Errorf("%w: zero tickets", domain.ErrInvalidQuantity)
	}

	return e.run(ctx, func(ctx context.Context, f *frame) error {
		g, err := f.tx.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		if err := checkPurchase(g, f, d, quantity, expectedPrice); err != nil {
			return err
		}

		hi, cents := bits.Mul64(quantity, expectedPrice)
		if hi != 0 {
			return fmt.Errorf("%w: %d tickets at %d overflows", domain.ErrInvalidAmount, quantity, expectedPrice)
		}
		amount, err := units.CentsToAmount(cents, e.decimals)
		if err != nil {
			return fmt.Errorf("engine: scale payment: %w", err)
		}

		g.TotalSold = g.TotalSold.With(d, g.TotalSold.Get(d)+quantity)
		if err := f.tx.UpdateGame(ctx, g); err != nil {
			return fmt.Errorf("engine: update game %d: %w", gameID, err)
		}

		bal, err := f.tx.GetBalance(ctx, gameID, caller, d)
		if err != nil {
			return fmt.Errorf("engine: get balance: %w", err)
		}
		if err := f.tx.SetBalance(ctx, gameID, caller, d, bal+quantity); err != nil {
			return fmt.Errorf("engine: set balance: %w", err)
		}

		spent, err := f.tx.GetSpent(ctx, gameID, caller)
		if err != nil {
			return fmt.Errorf("engine: get spent: %w", err)
		}
		total, carry := bits.Add64(spent, cents, 0)
		if carry != 0 {
			return fmt.Errorf("%w: cumulative spend overflows", domain.ErrInvalidAmount)
		}
		if err := f.tx.SetSpent(ctx, gameID, caller, total); err != nil {
			return fmt.Errorf("engine: set spent: %w", err)
		}

		if err := e.gateway.Pull(ctx, caller, amount); err != nil {
			return fmt.Errorf("engine: pull payment: %w", err)
		}

		f.emit(domain.Event{
			Type:      domain.EventTicketsBought,
			GameID:    gameID,
			Caller:    caller.Hex(),
			Direction: &d,
			Quantity:  quantity,
			Amount:    amount.String(),
		})
		return nil
	})
}

// checkPurchase applies the purchase guards in order.
func checkPurchase(g domain.Game, f *frame, d domain.Direction, quantity, expectedPrice uint64) error {
	if g.Status != domain.StatusOpen {
		return domain.ErrGameNotOpen
	}
	if g.Outcome != domain.DirectionNotSet {
		return domain.ErrOutcomeAlreadySet
	}
	if !f.now.Before(g.ClosesAt) {
		return domain.ErrPastClose
	}
	if price := g.Prices.Get(d); price != expectedPrice {
		return fmt.Errorf("%w: expected %d, ticket price %d", domain.ErrPriceMismatch, expectedPrice, price)
	}
	sold, limit := g.TotalSold.Get(d), g.MaxQuantity.Get(d)
	if sold > limit || quantity > limit-sold {
		return fmt.Errorf("%w: %d sold, %d requested, limit %d", domain.ErrQuantityExceeded, sold, quantity, limit)
	}
	return nil
}

// GetBalance returns the tickets user holds on direction d of a game. Unknown
// games and users read as zero.
func (e *Engine) GetBalance(ctx context.Context, gameID uint64, user common.Address, d domain.Direction) (uint64, error) {
	var qty uint64
	err := e.view(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		var err error
		qty, err = tx.GetBalance(ctx, gameID, user, d)
		return err
	})
	return qty, err
}

// GetTotalSpent returns what user has spent on a game in hundredths of a unit.
func (e *Engine) GetTotalSpent(ctx context.Context, gameID uint64, user common.Address) (uint64, error) {
	var cents uint64
	err := e.view(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		var err error
		cents, err = tx.GetSpent(ctx, gameID, user)
		return err
	})
	return cents, err
}

// Snapshot returns a game together with every holding in it.
func (e *Engine) Snapshot(ctx context.Context, gameID uint64) (domain.GameLedger, error) {
	var out domain.GameLedger
	err := e.view(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		g, err := tx.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		holdings, err := tx.ListHoldings(ctx, gameID)
		if err != nil {
			return fmt.Errorf("engine: list holdings: %w", err)
		}
		out = domain.GameLedger{Game: g, Holdings: holdings}
		return nil
	})
	return out, err
}
