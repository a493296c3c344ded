package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrNotOwner     = errors.New("caller is not the owner")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")

	// Game state guards.
	ErrGameNotOpen       = errors.New("game not open")
	ErrOutcomeAlreadySet = errors.New("outcome already set")
	ErrPastClose         = errors.New("past closesAt")
	ErrGameNotCancelled  = errors.New("game not cancelled")
	ErrGameCancelled     = errors.New("game cancelled")
	ErrOutcomeNotSet     = errors.New("outcome not set")

	// Request validation.
	ErrPriceMismatch    = errors.New("price != ticketPrice")
	ErrQuantityExceeded = errors.New("total tickets > ticket limit")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidAmount    = errors.New("invalid amount")

	// Funds, as reported by a payment gateway.
	ErrInsufficientFunds     = errors.New("insufficient-balance")
	ErrInsufficientAllowance = errors.New("insufficient-allowance")

	ErrNothingToClaim = errors.New("nothing to claim")
)

// Kind groups errors by how a caller should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthorization
	KindNotFound
	KindStateGuard
	KindValidation
	KindFunds
	KindClaimExhaustion
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindStateGuard:
		return "state_guard"
	case KindValidation:
		return "validation"
	case KindFunds:
		return "funds"
	case KindClaimExhaustion:
		return "claim_exhaustion"
	default:
		return "internal"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrNotOwner, KindAuthorization},
	{ErrUnauthorized, KindAuthorization},
	{ErrNotFound, KindNotFound},
	{ErrGameNotOpen, KindStateGuard},
	{ErrOutcomeAlreadySet, KindStateGuard},
	{ErrPastClose, KindStateGuard},
	{ErrGameNotCancelled, KindStateGuard},
	{ErrGameCancelled, KindStateGuard},
	{ErrOutcomeNotSet, KindStateGuard},
	{ErrPriceMismatch, KindValidation},
	{ErrQuantityExceeded, KindValidation},
	{ErrInvalidDirection, KindValidation},
	{ErrInvalidStatus, KindValidation},
	{ErrInvalidQuantity, KindValidation},
	{ErrInvalidAmount, KindValidation},
	{ErrInsufficientFunds, KindFunds},
	{ErrInsufficientAllowance, KindFunds},
	{ErrNothingToClaim, KindClaimExhaustion},
}

// KindOf classifies err by the first sentinel it wraps. Unknown errors are
// KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
