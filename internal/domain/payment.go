package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PaymentGateway moves stablecoin between users and the pool. Amounts are in
// the token's base unit. Failures are reported with ErrInsufficientFunds or
// ErrInsufficientAllowance where they apply.
type PaymentGateway interface {
	// Pull transfers amount from a user into the pool using a prior approval.
	Pull(ctx context.Context, from common.Address, amount *big.Int) error
	// Push transfers amount from the pool to a user.
	Push(ctx context.Context, to common.Address, amount *big.Int) error
	PoolBalance(ctx context.Context) (*big.Int, error)
}

// AccessGuard restricts privileged operations to one controller identity.
type AccessGuard interface {
	IsController(addr common.Address) bool
	// Require returns ErrNotOwner unless addr is the controller.
	Require(addr common.Address) error
}
