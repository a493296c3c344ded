package app

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pavilion/internal/config"
	"github.com/alanyoungcy/pavilion/internal/crypto"
	"github.com/alanyoungcy/pavilion/internal/domain"
	"github.com/alanyoungcy/pavilion/internal/payment/memtoken"
	"github.com/alanyoungcy/pavilion/internal/units"
)

const devKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// devKeyAddr is the address of devKeyHex.
var devKeyAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func memoryConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Operator.Address = "0x00000000000000000000000000000000000000aa"
	cfg.Token.DevBalances = map[string]string{
		"0x0000000000000000000000000000000000000a11": "25.5",
	}
	return &cfg
}

func TestWire_MemoryBackends(t *testing.T) {
	ctx := context.Background()
	deps, cleanup, err := Wire(ctx, memoryConfig(), discard())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.RateLimiter)
	assert.Nil(t, deps.Archiver)
	assert.Empty(t, deps.Checks)
	assert.Equal(t, uint8(18), deps.Decimals)
	assert.Equal(t, common.HexToAddress("0xaa"), deps.Guard.Controller())

	bal, err := deps.Engine.PoolBalance(ctx)
	require.NoError(t, err)
	assert.Zero(t, bal.Sign())

	alice := common.HexToAddress("0x0000000000000000000000000000000000000a11")
	id, err := deps.Engine.CreateGame(ctx, deps.Guard.Controller(), domain.GameParams{
		Name:          "wired",
		ClosesAt:      time.Now().Add(24 * time.Hour),
		PricePositive: 50,
		PriceNegative: 50,
		MaxPositive:   10,
		MaxNegative:   10,
	})
	require.NoError(t, err)
	require.NoError(t, deps.Engine.BuyTickets(ctx, alice, id, domain.DirectionPositive, 3, 50))

	bal, err = deps.Engine.PoolBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.5", units.FormatAmount(bal, 18))

	entries, err := deps.Audit.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWire_BadDevBalance(t *testing.T) {
	cfg := memoryConfig()
	cfg.Token.DevBalances = map[string]string{"0x0000000000000000000000000000000000000a11": "lots"}
	_, _, err := Wire(context.Background(), cfg, discard())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestOperatorAddress(t *testing.T) {
	key, err := crypto.ParseKey(devKeyHex)
	require.NoError(t, err)

	cfg := config.Defaults()
	addr, err := operatorAddress(&cfg, key)
	require.NoError(t, err)
	assert.Equal(t, devKeyAddr, addr)

	cfg.Operator.Address = devKeyAddr.Hex()
	addr, err = operatorAddress(&cfg, key)
	require.NoError(t, err)
	assert.Equal(t, devKeyAddr, addr)

	cfg.Operator.Address = "0x00000000000000000000000000000000000000aa"
	_, err = operatorAddress(&cfg, key)
	assert.ErrorContains(t, err, "does not match")

	cfg.Operator.Address = ""
	_, err = operatorAddress(&cfg, nil)
	assert.Error(t, err)
}

func TestSeedBalances(t *testing.T) {
	pool := common.HexToAddress("0xf0")
	user := common.HexToAddress("0xa11")
	tok := memtoken.New(pool, 6)
	require.NoError(t, seedBalances(tok, map[string]string{user.Hex(): "2.25"}, 6))

	assert.Equal(t, 0, tok.BalanceOf(user).Cmp(big.NewInt(2_250_000)))
	assert.Equal(t, 0, tok.Allowance(user).Cmp(big.NewInt(2_250_000)))
}

func TestNotifySink(t *testing.T) {
	assert.Nil(t, notifySink(config.NotifyConfig{}, discard()))
	assert.NotNil(t, notifySink(config.NotifyConfig{DiscordWebhookURL: "https://discord.example/hook"}, discard()))
}

func TestEncryptKeyMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "encrypt-key"
	cfg.Operator.PrivateKey = devKeyHex
	cfg.Operator.KeyFile = filepath.Join(t.TempDir(), "operator.key")
	cfg.Operator.KeyPassword = "hunter2"

	a := New(&cfg, discard())
	require.NoError(t, a.Run(context.Background()))
	a.Close()

	key, err := crypto.LoadKey(crypto.KeySource{KeyFile: cfg.Operator.KeyFile, Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, devKeyHex, crypto.KeyHex(key))

	_, err = crypto.LoadKey(crypto.KeySource{KeyFile: cfg.Operator.KeyFile, Password: "wrong"})
	assert.Error(t, err)
}

func TestRun_UnknownMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "trade"
	err := New(&cfg, discard()).Run(context.Background())
	assert.ErrorContains(t, err, "unsupported mode")
}
