// Package access restricts privileged ledger operations to a single
// controller address.
package access

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

// Owner is an AccessGuard fixed to one controller address at construction.
type Owner struct {
	controller common.Address
}

// NewOwner returns a guard for controller. The zero address is rejected so a
// missing operator setting never grants control to every unsigned request.
func NewOwner(controller common.Address) (*Owner, error) {
	if controller == (common.Address{}) {
		return nil, fmt.Errorf("access: controller address is zero")
	}
	return &Owner{controller: controller}, nil
}

// Controller returns the controller address.
func (o *Owner) Controller() common.Address { return o.controller }

func (o *Owner) IsController(addr common.Address) bool {
	return addr == o.controller
}

func (o *Owner) Require(addr common.Address) error {
	if !o.IsController(addr) {
		return domain.ErrNotOwner
	}
	return nil
}
