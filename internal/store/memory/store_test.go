package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

var (
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func insertGame(t *testing.T, ctx context.Context, tx domain.LedgerTx, name string) uint64 {
	t.Helper()
	id, err := tx.NextGameID(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertGame(ctx, domain.Game{ID: id, Name: name}))
	return id
}

func TestStore_CommitPersists(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	id := insertGame(t, ctx, tx, "first")
	require.NoError(t, tx.SetBalance(ctx, id, alice, domain.DirectionPositive, 10))
	require.NoError(t, tx.SetSpent(ctx, id, alice, 700))
	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, uint64(1), id)

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	g, err := tx.GetGame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "first", g.Name)

	bal, err := tx.GetBalance(ctx, id, alice, domain.DirectionPositive)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), bal)

	spent, err := tx.GetSpent(ctx, id, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), spent)
}

func TestStore_RollbackRestoresEverything(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, _ := s.Begin(ctx)
	id := insertGame(t, ctx, tx, "kept")
	require.NoError(t, tx.SetBalance(ctx, id, alice, domain.DirectionNegative, 3))
	require.NoError(t, tx.Commit(ctx))

	tx, _ = s.Begin(ctx)
	insertGame(t, ctx, tx, "discarded")
	require.NoError(t, tx.SetBalance(ctx, id, alice, domain.DirectionNegative, 99))
	require.NoError(t, tx.SetSpent(ctx, id, bob, 5))
	g, _ := tx.GetGame(ctx, id)
	g.Status = domain.StatusCancelled
	require.NoError(t, tx.UpdateGame(ctx, g))
	require.NoError(t, tx.Rollback(ctx))

	tx, _ = s.Begin(ctx)
	defer tx.Rollback(ctx)

	// Rolled-back creation does not consume an id.
	next, err := tx.NextGameID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next)

	_, err = tx.GetGame(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	g, err = tx.GetGame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, g.Status)

	bal, _ := tx.GetBalance(ctx, id, alice, domain.DirectionNegative)
	assert.Equal(t, uint64(3), bal)

	holdings, err := tx.ListHoldings(ctx, id)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, alice, holdings[0].User)
}

func TestStore_NestedRollbackKeepsParentWrites(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, _ := s.Begin(ctx)
	id := insertGame(t, ctx, tx, "g")
	require.NoError(t, tx.SetBalance(ctx, id, alice, domain.DirectionPositive, 1))

	inner, err := tx.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, inner.SetBalance(ctx, id, alice, domain.DirectionPositive, 50))
	require.NoError(t, inner.SetSpent(ctx, id, alice, 1234))
	require.NoError(t, inner.Rollback(ctx))

	bal, _ := tx.GetBalance(ctx, id, alice, domain.DirectionPositive)
	assert.Equal(t, uint64(1), bal)
	spent, _ := tx.GetSpent(ctx, id, alice)
	assert.Zero(t, spent)

	inner, _ = tx.Begin(ctx)
	require.NoError(t, inner.SetSpent(ctx, id, alice, 70))
	require.NoError(t, inner.Commit(ctx))
	require.NoError(t, tx.Commit(ctx))

	tx, _ = s.Begin(ctx)
	defer tx.Rollback(ctx)
	spent, _ = tx.GetSpent(ctx, id, alice)
	assert.Equal(t, uint64(70), spent)
}

func TestStore_NestedCommitUndoneByParentRollback(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, _ := s.Begin(ctx)
	id := insertGame(t, ctx, tx, "g")
	inner, _ := tx.Begin(ctx)
	require.NoError(t, inner.SetBalance(ctx, id, bob, domain.DirectionNegative, 7))
	require.NoError(t, inner.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx))

	tx, _ = s.Begin(ctx)
	defer tx.Rollback(ctx)
	_, err := tx.GetGame(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	bal, _ := tx.GetBalance(ctx, id, bob, domain.DirectionNegative)
	assert.Zero(t, bal)
}

func TestStore_RollbackAfterCommitIsNoop(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, _ := s.Begin(ctx)
	insertGame(t, ctx, tx, "g")
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx))

	_, err := tx.GetGame(ctx, 1)
	assert.ErrorIs(t, err, errTxDone)

	tx, _ = s.Begin(ctx)
	defer tx.Rollback(ctx)
	_, err = tx.GetGame(ctx, 1)
	assert.NoError(t, err)
}

func TestStore_BeginBlocksUntilFinished(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, _ := s.Begin(ctx)
	started := make(chan struct{})
	acquired := make(chan struct{})
	go func() {
		close(started)
		second, err := s.Begin(ctx)
		if err == nil {
			second.Rollback(ctx)
		}
		close(acquired)
	}()

	<-started
	select {
	case <-acquired:
		t.Fatal("second unit of work began while first was open")
	case <-time.After(20 * time.Millisecond):
	}
	require.NoError(t, first.Commit(ctx))

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second unit of work never began")
	}
}

func TestStore_ViewSeesCommittedWrites(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, _ := s.Begin(ctx)
	id := insertGame(t, ctx, tx, "g")
	require.NoError(t, tx.Commit(ctx))

	view, err := s.View(ctx)
	require.NoError(t, err)
	g, err := view.GetGame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "g", g.Name)
	require.NoError(t, view.Rollback(ctx))

	// The view released the store.
	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))
}

func TestStore_ListHoldingsOrdered(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, _ := s.Begin(ctx)
	defer tx.Rollback(ctx)
	id := insertGame(t, ctx, tx, "g")
	other := insertGame(t, ctx, tx, "other")

	require.NoError(t, tx.SetBalance(ctx, id, bob, domain.DirectionPositive, 2))
	require.NoError(t, tx.SetBalance(ctx, id, alice, domain.DirectionNegative, 4))
	require.NoError(t, tx.SetSpent(ctx, id, alice, 120))
	require.NoError(t, tx.SetBalance(ctx, other, alice, domain.DirectionPositive, 9))

	holdings, err := tx.ListHoldings(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []domain.Holding{
		{User: alice, Negative: 4, SpentCents: 120},
		{User: bob, Positive: 2},
	}, holdings)
}

func TestAuditStore_List(t *testing.T) {
	ctx := context.Background()
	a := NewAuditStore()
	for _, ev := range []string{"a", "b", "c"} {
		require.NoError(t, a.Log(ctx, ev, map[string]any{"n": ev}))
	}

	all, err := a.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].Event)

	page, err := a.List(ctx, domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].Event)
}
