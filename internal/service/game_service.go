package service

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

// CreateGame registers a new open game and returns its id. Only the
// controller may create games.
func (e *Engine) CreateGame(ctx context.Context, caller common.Address, p domain.GameParams) (uint64, error) {
	if err := e.authorize(ctx, caller); err != nil {
		return 0, err
	}

	var id uint64
	err := e.run(ctx, func(ctx context.Context, f *frame) error {
		next, err := f.tx.NextGameID(ctx)
		if err != nil {
			return fmt.Errorf("engine: allocate game id: %w", err)
		}
		g := domain.Game{
			ID:          next,
			Name:        p.Name,
			ClosesAt:    p.ClosesAt.UTC(),
			Status:      domain.StatusOpen,
			Outcome:     domain.DirectionNotSet,
			Prices:      domain.Pair{Positive: p.PricePositive, Negative: p.PriceNegative},
			MaxQuantity: domain.Pair{Positive: p.MaxPositive, Negative: p.MaxNegative},
		}
		if err := f.tx.InsertGame(ctx, g); err != nil {
			return fmt.Errorf("engine: insert game %d: %w", next, err)
		}
		f.emit(domain.Event{
			Type:        domain.EventGameCreated,
			GameID:      next,
			Caller:      caller.Hex(),
			Prices:      &g.Prices,
			MaxQuantity: &g.MaxQuantity,
		})
		id = next
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ReadGame returns a snapshot of a game, or ErrNotFound.
func (e *Engine) ReadGame(ctx context.Context, id uint64) (domain.Game, error) {
	var g domain.Game
	err := e.view(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		var err error
		g, err = tx.GetGame(ctx, id)
		return err
	})
	return g, err
}

// SetGameStatus overwrites a game's status. Any status may follow any other.
func (e *Engine) SetGameStatus(ctx context.Context, caller common.Address, id uint64, status domain.Status) error {
	if err := e.authorize(ctx, caller); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidStatus, status)
	}
	return e.updateGame(ctx, caller, id, func(g *domain.Game) domain.Event {
		g.Status = status
		return domain.Event{Type: domain.EventGameStatusSet, Status: &status}
	})
}

// SetGamePrices overwrites both ticket prices, in hundredths of a unit.
func (e *Engine) SetGamePrices(ctx context.Context, caller common.Address, id uint64, positive, negative uint64) error {
	if err := e.authorize(ctx, caller); err != nil {
		return err
	}
	prices := domain.Pair{Positive: positive, Negative: negative}
	return e.updateGame(ctx, caller, id, func(g *domain.Game) domain.Event {
		g.Prices = prices
		return domain.Event{Type: domain.EventGamePricesSet, Prices: &prices}
	})
}

// SetGameMaxQuantity overwrites both ticket caps. A cap below what has already
// been sold blocks further sales on that side without touching holdings.
func (e *Engine) SetGameMaxQuantity(ctx context.Context, caller common.Address, id uint64, positive, negative uint64) error {
	if err := e.authorize(ctx, caller); err != nil {
		return err
	}
	caps := domain.Pair{Positive: positive, Negative: negative}
	return e.updateGame(ctx, caller, id, func(g *domain.Game) domain.Event {
		g.MaxQuantity = caps
		return domain.Event{Type: domain.EventGameMaxQuantitySet, MaxQuantity: &caps}
	})
}

// SetGameOutcome overwrites the winning direction. Setting DirectionNotSet
// clears it.
func (e *Engine) SetGameOutcome(ctx context.Context, caller common.Address, id uint64, outcome domain.Direction) error {
	if err := e.authorize(ctx, caller); err != nil {
		return err
	}
	if !outcome.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidDirection, outcome)
	}
	return e.updateGame(ctx, caller, id, func(g *domain.Game) domain.Event {
		g.Outcome = outcome
		return domain.Event{Type: domain.EventGameOutcomeSet, Direction: &outcome}
	})
}

// updateGame applies a mutation to an existing game. Callers check the guard
// before anything else.
func (e *Engine) updateGame(ctx context.Context, caller common.Address, id uint64, mutate func(g *domain.Game) domain.Event) error {
	return e.run(ctx, func(ctx context.Context, f *frame) error {
		g, err := f.tx.GetGame(ctx, id)
		if err != nil {
			return err
		}
		ev := mutate(&g)
		if err := f.tx.UpdateGame(ctx, g); err != nil {
			return fmt.Errorf("engine: update game %d: %w", id, err)
		}
		ev.GameID = id
		ev.Caller = caller.Hex()
		f.emit(ev)
		return nil
	})
}
