package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Holding is one user's position in a game: ticket quantities per side and
// cumulative spend in hundredths of a unit.
type Holding struct {
	User       common.Address `json:"user"`
	Positive   uint64         `json:"positive"`
	Negative   uint64         `json:"negative"`
	SpentCents uint64         `json:"spent_cents"`
}

// LedgerStore opens units of work over the game, ticket-balance and spend
// tables.
type LedgerStore interface {
	Begin(ctx context.Context) (LedgerTx, error)
	// View opens a read-only unit of work. It takes no row locks, so it does
	// not queue behind a unit that is waiting on the token backend.
	View(ctx context.Context) (LedgerTx, error)
}

// LedgerTx is a unit of work. Either every write made through it becomes
// visible on Commit, or none does on Rollback. Begin on a LedgerTx opens a
// nested unit whose Rollback discards only its own writes. Rollback after
// Commit is a no-op.
type LedgerTx interface {
	Begin(ctx context.Context) (LedgerTx, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// NextGameID allocates the next sequential game id.
	NextGameID(ctx context.Context) (uint64, error)
	InsertGame(ctx context.Context, g Game) error
	// GetGame returns ErrNotFound for unknown ids.
	GetGame(ctx context.Context, id uint64) (Game, error)
	UpdateGame(ctx context.Context, g Game) error

	// GetBalance returns 0 when no entry exists.
	GetBalance(ctx context.Context, gameID uint64, user common.Address, d Direction) (uint64, error)
	SetBalance(ctx context.Context, gameID uint64, user common.Address, d Direction, qty uint64) error
	// GetSpent returns 0 when no entry exists.
	GetSpent(ctx context.Context, gameID uint64, user common.Address) (uint64, error)
	SetSpent(ctx context.Context, gameID uint64, user common.Address, cents uint64) error

	// ListHoldings returns every user with an entry for the game, ordered by
	// address.
	ListHoldings(ctx context.Context, gameID uint64) ([]Holding, error)
}

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
