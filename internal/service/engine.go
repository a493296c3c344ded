package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pavilion/internal/domain"
	"github.com/alanyoungcy/pavilion/internal/units"
)

const (
	// LedgerLockKey is the distributed lock serializing ledger calls across
	// instances.
	LedgerLockKey = "pavilion:ledger"

	defaultLockTTL    = 3 * time.Minute
	lockRetryInterval = 25 * time.Millisecond
)

// Options configures an Engine. Store, Gateway and Guard are required.
type Options struct {
	Store    domain.LedgerStore
	Gateway  domain.PaymentGateway
	Guard    domain.AccessGuard
	Decimals uint8

	// Now defaults to time.Now.
	Now func() time.Time
	// Locks, when set, serializes calls across processes.
	Locks   domain.LockManager
	LockTTL time.Duration

	Publisher domain.Publisher
	Audit     domain.AuditStore
	Logger    *slog.Logger
}

// Engine runs game registry, ticket ledger, settlement and treasury calls.
// Each call is one unit of work over the ledger store: it either commits all
// of its writes or none of them.
type Engine struct {
	store    domain.LedgerStore
	gateway  domain.PaymentGateway
	guard    domain.AccessGuard
	decimals uint8
	now      func() time.Time
	locks    domain.LockManager
	lockTTL  time.Duration
	pub      domain.Publisher
	audit    domain.AuditStore
	logger   *slog.Logger

	mu sync.Mutex
}

// NewEngine validates opts and returns an Engine.
func NewEngine(opts Options) (*Engine, error) {
	var errs []error
	if opts.Store == nil {
		errs = append(errs, errors.New("store is required"))
	}
	if opts.Gateway == nil {
		errs = append(errs, errors.New("payment gateway is required"))
	}
	if opts.Guard == nil {
		errs = append(errs, errors.New("access guard is required"))
	}
	if _, err := units.CentScale(opts.Decimals); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("engine: %w", errors.Join(errs...))
	}

	e := &Engine{
		store:    opts.Store,
		gateway:  opts.Gateway,
		guard:    opts.Guard,
		decimals: opts.Decimals,
		now:      opts.Now,
		locks:    opts.Locks,
		lockTTL:  opts.LockTTL,
		pub:      opts.Publisher,
		audit:    opts.Audit,
		logger:   opts.Logger,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.lockTTL <= 0 {
		e.lockTTL = defaultLockTTL
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With(slog.String("component", "engine"))
	return e, nil
}

// Decimals returns the token precision amounts are scaled to.
func (e *Engine) Decimals() uint8 { return e.decimals }

type txKey struct{}

// frame is the state of one call. Frames of re-entrant calls nest inside the
// frame of the call that is still in flight.
type frame struct {
	tx     domain.LedgerTx
	now    time.Time
	events []domain.Event
	done   bool
}

func (f *frame) emit(ev domain.Event) {
	ev.At = f.now
	f.events = append(f.events, ev)
}

func activeFrame(ctx context.Context) *frame {
	f, ok := ctx.Value(txKey{}).(*frame)
	if !ok || f.done {
		return nil
	}
	return f
}

// run executes fn as a unit of work. A call arriving with an in-flight frame
// in its context (a payment callback re-entering the engine) joins that unit
// as a nested unit and takes no locks.
func (e *Engine) run(ctx context.Context, fn func(ctx context.Context, f *frame) error) error {
	if parent := activeFrame(ctx); parent != nil {
		return e.runNested(ctx, parent, fn)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.locks != nil {
		unlock, err := e.acquire(ctx)
		if err != nil {
			return err
		}
		defer unlock()
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("engine: begin: %w", err)
	}
	f := &frame{tx: tx, now: e.now().UTC()}
	defer func() { f.done = true }()

	if err := fn(context.WithValue(ctx, txKey{}, f), f); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			e.logger.WarnContext(ctx, "engine: rollback failed",
				slog.String("error", rbErr.Error()),
			)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("engine: commit: %w", err)
	}

	e.publish(ctx, f.events)
	return nil
}

func (e *Engine) runNested(ctx context.Context, parent *frame, fn func(ctx context.Context, f *frame) error) error {
	child, err := parent.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("engine: begin nested: %w", err)
	}
	f := &frame{tx: child, now: e.now().UTC()}
	defer func() { f.done = true }()

	if err := fn(context.WithValue(ctx, txKey{}, f), f); err != nil {
		if rbErr := child.Rollback(ctx); rbErr != nil {
			e.logger.WarnContext(ctx, "engine: nested rollback failed",
				slog.String("error", rbErr.Error()),
			)
		}
		return err
	}
	if err := child.Commit(ctx); err != nil {
		return fmt.Errorf("engine: commit nested: %w", err)
	}
	parent.events = append(parent.events, f.events...)
	return nil
}

// view runs a read-only fn. Inside an in-flight call it reads through that
// call's unit of work so it sees uncommitted writes.
func (e *Engine) view(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	if f := activeFrame(ctx); f != nil {
		return fn(ctx, f.tx)
	}
	tx, err := e.store.View(ctx)
	if err != nil {
		return fmt.Errorf("engine: begin view: %w", err)
	}
	defer tx.Rollback(ctx)
	return fn(ctx, tx)
}

// authorize runs the access guard. Refusals carry only the sentinel, so the
// caller is logged here.
func (e *Engine) authorize(ctx context.Context, caller common.Address) error {
	if err := e.guard.Require(caller); err != nil {
		e.logger.WarnContext(ctx, "engine: privileged call refused",
			slog.String("caller", caller.Hex()))
		return err
	}
	return nil
}

// acquire polls the distributed lock until it is granted or ctx is done.
func (e *Engine) acquire(ctx context.Context) (func(), error) {
	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()
	for {
		unlock, err := e.locks.Acquire(ctx, LedgerLockKey, e.lockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("engine: acquire ledger lock: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("engine: acquire ledger lock: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// publish delivers committed events. Failures are logged and never undo the
// call.
func (e *Engine) publish(ctx context.Context, events []domain.Event) {
	for _, ev := range events {
		if e.pub != nil {
			payload, err := json.Marshal(ev)
			if err == nil {
				err = e.pub.Publish(ctx, ev.Type.Channel(), payload)
			}
			if err != nil {
				e.logger.WarnContext(ctx, "engine: publish event failed",
					slog.String("event", string(ev.Type)),
					slog.Uint64("game_id", ev.GameID),
					slog.String("error", err.Error()),
				)
			}
		}
		if e.audit != nil {
			if err := e.audit.Log(ctx, string(ev.Type), ev.Detail()); err != nil {
				e.logger.WarnContext(ctx, "engine: audit log failed",
					slog.String("event", string(ev.Type)),
					slog.Uint64("game_id", ev.GameID),
					slog.String("error", err.Error()),
				)
			}
		}
		e.logger.InfoContext(ctx, "engine: "+string(ev.Type),
			slog.Uint64("game_id", ev.GameID),
			slog.String("caller", ev.Caller),
		)
	}
}
