package service

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

// Withdraw pays amount from the pool to the controller. Nothing is reserved
// for outstanding refunds or winnings. A zero amount succeeds and moves
// nothing.
func (e *Engine) Withdraw(ctx context.Context, caller common.Address, amount *big.Int) error {
	if err := e.authorize(ctx, caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: withdraw amount must not be negative", domain.ErrInvalidAmount)
	}
	return e.run(ctx, func(ctx context.Context, f *frame) error {
		if err := e.gateway.Push(ctx, caller, amount); err != nil {
			return fmt.Errorf("engine: push withdrawal: %w", err)
		}
		f.emit(domain.Event{
			Type:   domain.EventWithdrawn,
			Caller: caller.Hex(),
			Amount: amount.String(),
		})
		return nil
	})
}

// PoolBalance returns the pooled stablecoin balance in base units.
func (e *Engine) PoolBalance(ctx context.Context) (*big.Int, error) {
	bal, err := e.gateway.PoolBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: pool balance: %w", err)
	}
	return bal, nil
}
