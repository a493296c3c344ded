package access

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

var (
	operator = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func TestOwner(t *testing.T) {
	o, err := NewOwner(operator)
	require.NoError(t, err)

	assert.True(t, o.IsController(operator))
	assert.False(t, o.IsController(stranger))
	assert.Equal(t, operator, o.Controller())

	require.NoError(t, o.Require(operator))

	err = o.Require(stranger)
	require.ErrorIs(t, err, domain.ErrNotOwner)
	assert.EqualError(t, err, "caller is not the owner")
	assert.Equal(t, domain.KindAuthorization, domain.KindOf(err))
}

func TestNewOwner_ZeroAddress(t *testing.T) {
	_, err := NewOwner(common.Address{})
	require.Error(t, err)
}

func TestOwner_SatisfiesGuard(t *testing.T) {
	var _ domain.AccessGuard = (*Owner)(nil)
}
