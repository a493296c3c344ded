// Package memtoken is an in-memory stablecoin ledger that implements
// domain.PaymentGateway for tests and development.
package memtoken

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

// TransferHook runs after a transfer settles, outside the token's lock. It
// receives the context of the call that caused the transfer, so a hook can
// call back into the ledger the way a token receiver contract would. A hook
// error reverses the transfer it was called for.
type TransferHook func(ctx context.Context, from, to common.Address, amount *big.Int) error

// Token is an ERC20-like ledger with a designated pool account. Pull moves
// approved funds into the pool, Push pays out of it.
type Token struct {
	mu         sync.Mutex
	pool       common.Address
	decimals   uint8
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	hook       TransferHook
}

// New creates a token whose pool account is pool.
func New(pool common.Address, decimals uint8) *Token {
	return &Token{
		pool:       pool,
		decimals:   decimals,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (t *Token) Decimals() uint8 { return t.decimals }

// Pool returns the pool account address.
func (t *Token) Pool() common.Address { return t.pool }

// SetHook installs fn to run after every transfer. Pass nil to remove it.
func (t *Token) SetHook(fn TransferHook) {
	t.mu.Lock()
	t.hook = fn
	t.mu.Unlock()
}

// Mint credits amount to addr.
func (t *Token) Mint(addr common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(addr, amount)
}

// Approve sets the amount the pool may pull from owner.
func (t *Token) Approve(owner common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	m[t.pool] = new(big.Int).Set(amount)
}

// Allowance returns how much the pool may still pull from owner.
func (t *Token) Allowance(owner common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.allowances[owner][t.pool]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// BalanceOf returns the balance of addr.
func (t *Token) BalanceOf(addr common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance(addr))
}

// Transfer moves amount from one holder to another, e.g. to fund the pool
// directly.
func (t *Token) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	return t.transfer(ctx, from, to, amount, false)
}

func (t *Token) Pull(ctx context.Context, from common.Address, amount *big.Int) error {
	if err := t.transfer(ctx, from, t.pool, amount, true); err != nil {
		return fmt.Errorf("memtoken: pull %s from %s: %w", amount, from.Hex(), err)
	}
	return nil
}

func (t *Token) Push(ctx context.Context, to common.Address, amount *big.Int) error {
	if err := t.transfer(ctx, t.pool, to, amount, false); err != nil {
		return fmt.Errorf("memtoken: push %s to %s: %w", amount, to.Hex(), err)
	}
	return nil
}

func (t *Token) PoolBalance(_ context.Context) (*big.Int, error) {
	return t.BalanceOf(t.pool), nil
}

func (t *Token) move(from, to common.Address, amount *big.Int, spendAllowance bool) error {
	if amount == nil || amount.Sign() < 0 {
		return domain.ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if spendAllowance {
		allowed := t.allowances[from][t.pool]
		if allowed == nil || allowed.Cmp(amount) < 0 {
			return domain.ErrInsufficientAllowance
		}
	}
	bal := t.balance(from)
	if bal.Cmp(amount) < 0 {
		return domain.ErrInsufficientFunds
	}
	if spendAllowance {
		allowed := t.allowances[from][t.pool]
		allowed.Sub(allowed, amount)
	}
	bal.Sub(bal, amount)
	t.credit(to, amount)
	return nil
}

func (t *Token) transfer(ctx context.Context, from, to common.Address, amount *big.Int, spendAllowance bool) error {
	if err := t.move(from, to, amount, spendAllowance); err != nil {
		return err
	}
	t.mu.Lock()
	hook := t.hook
	t.mu.Unlock()
	if hook == nil {
		return nil
	}
	if err := hook(ctx, from, to, new(big.Int).Set(amount)); err != nil {
		t.revert(from, to, amount, spendAllowance)
		return err
	}
	return nil
}

// revert undoes a settled move. The receiver may have spent the funds inside
// the hook, so its balance is allowed to go negative.
func (t *Token) revert(from, to common.Address, amount *big.Int, spendAllowance bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dst := t.balance(to)
	dst.Sub(dst, amount)
	t.credit(from, amount)
	if spendAllowance {
		allowed := t.allowances[from][t.pool]
		allowed.Add(allowed, amount)
	}
}

func (t *Token) balance(addr common.Address) *big.Int {
	b, ok := t.balances[addr]
	if !ok {
		b = new(big.Int)
		t.balances[addr] = b
	}
	return b
}

func (t *Token) credit(addr common.Address, amount *big.Int) {
	b := t.balance(addr)
	b.Add(b, amount)
}
