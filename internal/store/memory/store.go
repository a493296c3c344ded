// Package memory is a volatile LedgerStore for tests and single-process
// development. Writes are recorded in an undo journal so a unit of work, or a
// nested unit inside it, can be rolled back.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

var errTxDone = errors.New("memory: transaction already finished")

type balanceKey struct {
	game uint64
	user common.Address
	dir  domain.Direction
}

type spendKey struct {
	game uint64
	user common.Address
}

// Store implements domain.LedgerStore. Only one outermost unit of work is open
// at a time; Begin blocks until the previous one commits or rolls back.
type Store struct {
	mu sync.Mutex

	games    []domain.Game
	nextID   uint64
	balances map[balanceKey]uint64
	spend    map[spendKey]uint64

	journal []func()
}

// New returns an empty store whose first game id is 1.
func New() *Store {
	return &Store{
		nextID:   1,
		balances: make(map[balanceKey]uint64),
		spend:    make(map[spendKey]uint64),
	}
}

func (s *Store) Begin(ctx context.Context) (domain.LedgerTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &tx{s: s}, nil
}

// View is Begin: the store has a single lock, so reads wait for the open unit
// like writes do.
func (s *Store) View(ctx context.Context) (domain.LedgerTx, error) {
	return s.Begin(ctx)
}

// tx is one unit of work. A nested tx shares the journal with its parent and
// remembers where its own entries start.
type tx struct {
	s      *Store
	mark   int
	nested bool
	done   bool
}

func (t *tx) Begin(_ context.Context) (domain.LedgerTx, error) {
	if t.done {
		return nil, errTxDone
	}
	return &tx{s: t.s, mark: len(t.s.journal), nested: true}, nil
}

func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	if t.nested {
		return nil
	}
	t.s.journal = nil
	t.s.mu.Unlock()
	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	j := t.s.journal
	for i := len(j) - 1; i >= t.mark; i-- {
		j[i]()
	}
	t.s.journal = j[:t.mark]
	if !t.nested {
		t.s.journal = nil
		t.s.mu.Unlock()
	}
	return nil
}

func (t *tx) record(undo func()) {
	t.s.journal = append(t.s.journal, undo)
}

func (t *tx) NextGameID(_ context.Context) (uint64, error) {
	if t.done {
		return 0, errTxDone
	}
	id := t.s.nextID
	t.s.nextID++
	t.record(func() { t.s.nextID = id })
	return id, nil
}

func (t *tx) InsertGame(_ context.Context, g domain.Game) error {
	if t.done {
		return errTxDone
	}
	if g.ID != uint64(len(t.s.games))+1 {
		return fmt.Errorf("memory: insert game %d: expected id %d", g.ID, len(t.s.games)+1)
	}
	t.s.games = append(t.s.games, g)
	t.record(func() { t.s.games = t.s.games[:len(t.s.games)-1] })
	return nil
}

func (t *tx) GetGame(_ context.Context, id uint64) (domain.Game, error) {
	if t.done {
		return domain.Game{}, errTxDone
	}
	if id == 0 || id > uint64(len(t.s.games)) {
		return domain.Game{}, fmt.Errorf("memory: game %d: %w", id, domain.ErrNotFound)
	}
	return t.s.games[id-1], nil
}

func (t *tx) UpdateGame(_ context.Context, g domain.Game) error {
	if t.done {
		return errTxDone
	}
	if g.ID == 0 || g.ID > uint64(len(t.s.games)) {
		return fmt.Errorf("memory: game %d: %w", g.ID, domain.ErrNotFound)
	}
	i := g.ID - 1
	prev := t.s.games[i]
	t.s.games[i] = g
	t.record(func() { t.s.games[i] = prev })
	return nil
}

func (t *tx) GetBalance(_ context.Context, gameID uint64, user common.Address, d domain.Direction) (uint64, error) {
	if t.done {
		return 0, errTxDone
	}
	return t.s.balances[balanceKey{gameID, user, d}], nil
}

func (t *tx) SetBalance(_ context.Context, gameID uint64, user common.Address, d domain.Direction, qty uint64) error {
	if t.done {
		return errTxDone
	}
	k := balanceKey{gameID, user, d}
	prev, existed := t.s.balances[k]
	t.s.balances[k] = qty
	t.record(func() {
		if existed {
			t.s.balances[k] = prev
		} else {
			delete(t.s.balances, k)
		}
	})
	return nil
}

func (t *tx) GetSpent(_ context.Context, gameID uint64, user common.Address) (uint64, error) {
	if t.done {
		return 0, errTxDone
	}
	return t.s.spend[spendKey{gameID, user}], nil
}

func (t *tx) SetSpent(_ context.Context, gameID uint64, user common.Address, cents uint64) error {
	if t.done {
		return errTxDone
	}
	k := spendKey{gameID, user}
	prev, existed := t.s.spend[k]
	t.s.spend[k] = cents
	t.record(func() {
		if existed {
			t.s.spend[k] = prev
		} else {
			delete(t.s.spend, k)
		}
	})
	return nil
}

func (t *tx) ListHoldings(_ context.Context, gameID uint64) ([]domain.Holding, error) {
	if t.done {
		return nil, errTxDone
	}
	byUser := make(map[common.Address]*domain.Holding)
	get := func(u common.Address) *domain.Holding {
		h, ok := byUser[u]
		if !ok {
			h = &domain.Holding{User: u}
			byUser[u] = h
		}
		return h
	}
	for k, qty := range t.s.balances {
		if k.game != gameID {
			continue
		}
		h := get(k.user)
		switch k.dir {
		case domain.DirectionPositive:
			h.Positive = qty
		case domain.DirectionNegative:
			h.Negative = qty
		}
	}
	for k, cents := range t.s.spend {
		if k.game == gameID {
			get(k.user).SpentCents = cents
		}
	}

	out := make([]domain.Holding, 0, len(byUser))
	for _, h := range byUser {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].User[:], out[j].User[:]) < 0
	})
	return out, nil
}
