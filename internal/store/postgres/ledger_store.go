package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

// LedgerStore implements domain.LedgerStore. Each unit of work is a
// read-committed transaction; nested units are savepoints. Inside Begin, game
// rows are read FOR UPDATE, so concurrent units touching the same game queue
// on the row lock. View units are read-only and lock nothing.
type LedgerStore struct {
	pool *pgxpool.Pool
}

func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

func (s *LedgerStore) Begin(ctx context.Context) (domain.LedgerTx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("postgres: begin ledger tx: %w", err)
	}
	return &ledgerTx{tx: tx, locking: true}, nil
}

func (s *LedgerStore) View(ctx context.Context) (domain.LedgerTx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: begin ledger view: %w", err)
	}
	return &ledgerTx{tx: tx}, nil
}

type ledgerTx struct {
	tx      pgx.Tx
	locking bool
}

func (t *ledgerTx) Begin(ctx context.Context) (domain.LedgerTx, error) {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: savepoint: %w", err)
	}
	return &ledgerTx{tx: sp, locking: t.locking}, nil
}

func (t *ledgerTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit ledger tx: %w", err)
	}
	return nil
}

func (t *ledgerTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("postgres: rollback ledger tx: %w", err)
	}
	return nil
}

func (t *ledgerTx) NextGameID(ctx context.Context) (uint64, error) {
	const query = `
		UPDATE game_sequence SET next_id = next_id + 1
		WHERE singleton
		RETURNING next_id - 1`
	var id int64
	if err := t.tx.QueryRow(ctx, query).Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: next game id: %w", err)
	}
	return uint64(id), nil
}

const gameSelectCols = `id, name, closes_at, status, outcome,
	price_positive, price_negative, max_positive, max_negative,
	sold_positive, sold_negative`

func gameQuery(locking bool) string {
	query := `SELECT ` + gameSelectCols + ` FROM games WHERE id = $1`
	if locking {
		query += ` FOR UPDATE`
	}
	return query
}

func scanGame(row pgx.Row) (domain.Game, error) {
	var (
		g               domain.Game
		id              int64
		status, outcome int16
		n               [6]int64
	)
	if err := row.Scan(
		&id, &g.Name, &g.ClosesAt, &status, &outcome,
		&n[0], &n[1], &n[2], &n[3], &n[4], &n[5],
	); err != nil {
		return domain.Game{}, err
	}
	g.ID = uint64(id)
	g.ClosesAt = g.ClosesAt.UTC()
	g.Status = domain.Status(status)
	g.Outcome = domain.Direction(outcome)
	g.Prices = domain.Pair{Positive: uint64(n[0]), Negative: uint64(n[1])}
	g.MaxQuantity = domain.Pair{Positive: uint64(n[2]), Negative: uint64(n[3])}
	g.TotalSold = domain.Pair{Positive: uint64(n[4]), Negative: uint64(n[5])}
	return g, nil
}

// gameArgs converts the numeric fields of g to BIGINT arguments in column
// order: prices, caps, sold.
func gameArgs(g domain.Game) ([]any, error) {
	vals := []uint64{
		g.Prices.Positive, g.Prices.Negative,
		g.MaxQuantity.Positive, g.MaxQuantity.Negative,
		g.TotalSold.Positive, g.TotalSold.Negative,
	}
	args := make([]any, len(vals))
	for i, v := range vals {
		n, err := toBigint(v)
		if err != nil {
			return nil, fmt.Errorf("postgres: game %d: %w", g.ID, err)
		}
		args[i] = n
	}
	return args, nil
}

func (t *ledgerTx) InsertGame(ctx context.Context, g domain.Game) error {
	id, err := toBigint(g.ID)
	if err != nil {
		return err
	}
	nums, err := gameArgs(g)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO games (
			id, name, closes_at, status, outcome,
			price_positive, price_negative, max_positive, max_negative,
			sold_positive, sold_negative
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	args := append([]any{id, g.Name, g.ClosesAt, int16(g.Status), int16(g.Outcome)}, nums...)
	if _, err := t.tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: insert game %d: %w", g.ID, err)
	}
	return nil
}

func (t *ledgerTx) GetGame(ctx context.Context, id uint64) (domain.Game, error) {
	if id > math.MaxInt64 {
		return domain.Game{}, fmt.Errorf("postgres: game %d: %w", id, domain.ErrNotFound)
	}
	g, err := scanGame(t.tx.QueryRow(ctx, gameQuery(t.locking), int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Game{}, fmt.Errorf("postgres: game %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("postgres: get game %d: %w", id, err)
	}
	return g, nil
}

func (t *ledgerTx) UpdateGame(ctx context.Context, g domain.Game) error {
	id, err := toBigint(g.ID)
	if err != nil {
		return err
	}
	nums, err := gameArgs(g)
	if err != nil {
		return err
	}
	const query = `
		UPDATE games SET
			status = $2, outcome = $3,
			price_positive = $4, price_negative = $5,
			max_positive = $6, max_negative = $7,
			sold_positive = $8, sold_negative = $9,
			updated_at = NOW()
		WHERE id = $1`
	args := append([]any{id, int16(g.Status), int16(g.Outcome)}, nums...)
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: update game %d: %w", g.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: game %d: %w", g.ID, domain.ErrNotFound)
	}
	return nil
}

func (t *ledgerTx) GetBalance(ctx context.Context, gameID uint64, user common.Address, d domain.Direction) (uint64, error) {
	const query = `
		SELECT quantity FROM ticket_balances
		WHERE game_id = $1 AND user_address = $2 AND direction = $3`
	var qty int64
	err := t.tx.QueryRow(ctx, query, int64(gameID), user.Bytes(), int16(d)).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: get balance: %w", err)
	}
	return uint64(qty), nil
}

func (t *ledgerTx) SetBalance(ctx context.Context, gameID uint64, user common.Address, d domain.Direction, qty uint64) error {
	n, err := toBigint(qty)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO ticket_balances (game_id, user_address, direction, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (game_id, user_address, direction)
		DO UPDATE SET quantity = EXCLUDED.quantity`
	if _, err := t.tx.Exec(ctx, query, int64(gameID), user.Bytes(), int16(d), n); err != nil {
		return fmt.Errorf("postgres: set balance: %w", err)
	}
	return nil
}

func (t *ledgerTx) GetSpent(ctx context.Context, gameID uint64, user common.Address) (uint64, error) {
	const query = `SELECT spent_cents FROM user_spend WHERE game_id = $1 AND user_address = $2`
	var cents int64
	err := t.tx.QueryRow(ctx, query, int64(gameID), user.Bytes()).Scan(&cents)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: get spent: %w", err)
	}
	return uint64(cents), nil
}

func (t *ledgerTx) SetSpent(ctx context.Context, gameID uint64, user common.Address, cents uint64) error {
	n, err := toBigint(cents)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO user_spend (game_id, user_address, spent_cents)
		VALUES ($1, $2, $3)
		ON CONFLICT (game_id, user_address)
		DO UPDATE SET spent_cents = EXCLUDED.spent_cents`
	if _, err := t.tx.Exec(ctx, query, int64(gameID), user.Bytes(), n); err != nil {
		return fmt.Errorf("postgres: set spent: %w", err)
	}
	return nil
}

func (t *ledgerTx) ListHoldings(ctx context.Context, gameID uint64) ([]domain.Holding, error) {
	const query = `
		SELECT user_address,
			COALESCE(SUM(quantity) FILTER (WHERE direction = 1), 0)::BIGINT,
			COALESCE(SUM(quantity) FILTER (WHERE direction = 2), 0)::BIGINT,
			COALESCE(MAX(spent_cents), 0)::BIGINT
		FROM (
			SELECT user_address, direction, quantity, NULL::BIGINT AS spent_cents
			FROM ticket_balances WHERE game_id = $1
			UNION ALL
			SELECT user_address, NULL, NULL, spent_cents
			FROM user_spend WHERE game_id = $1
		) h
		GROUP BY user_address
		ORDER BY user_address`
	rows, err := t.tx.Query(ctx, query, int64(gameID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list holdings: %w", err)
	}
	holdings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Holding, error) {
		var addr []byte
		var pos, neg, spent int64
		if err := row.Scan(&addr, &pos, &neg, &spent); err != nil {
			return domain.Holding{}, err
		}
		return domain.Holding{
			User:       common.BytesToAddress(addr),
			Positive:   uint64(pos),
			Negative:   uint64(neg),
			SpentCents: uint64(spent),
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan holdings: %w", err)
	}
	return holdings, nil
}

// toBigint narrows v to a BIGINT column value.
func toBigint(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("postgres: value %d exceeds BIGINT: %w", v, domain.ErrInvalidAmount)
	}
	return int64(v), nil
}

var _ domain.LedgerStore = (*LedgerStore)(nil)
