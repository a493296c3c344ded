// Package erc20 implements domain.PaymentGateway against an ERC20 stablecoin
// on an EVM chain. The pool is the operator's own account: Pull calls
// transferFrom(user, pool) and Push calls transfer(user) from that account.
package erc20

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

const tokenABIJSON = `[
  {"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

const (
	defaultConfirmTimeout = 2 * time.Minute
	defaultPollInterval   = 2 * time.Second
	fallbackGasLimit      = 120_000
)

// Backend is the subset of *ethclient.Client the gateway uses.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config configures a Gateway.
type Config struct {
	Token          common.Address
	Key            *ecdsa.PrivateKey
	ChainID        *big.Int
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// Gateway moves tokens between users and the pool account.
type Gateway struct {
	backend  Backend
	abi      abi.ABI
	token    common.Address
	key      *ecdsa.PrivateKey
	pool     common.Address
	signer   types.Signer
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger
	closer   func()

	sendMu sync.Mutex
}

// Dial connects to rpcURL and returns a Gateway. If cfg.ChainID is nil it is
// read from the node.
func Dial(ctx context.Context, rpcURL string, cfg Config, logger *slog.Logger) (*Gateway, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("erc20: dial rpc: %w", err)
	}
	if cfg.ChainID == nil {
		id, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("erc20: chain id: %w", err)
		}
		cfg.ChainID = id
	}
	g, err := New(client, cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	g.closer = client.Close
	return g, nil
}

// New returns a Gateway over an existing backend.
func New(backend Backend, cfg Config, logger *slog.Logger) (*Gateway, error) {
	if cfg.Key == nil {
		return nil, errors.New("erc20: pool key is required")
	}
	if cfg.Token == (common.Address{}) {
		return nil, errors.New("erc20: token address is required")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, errors.New("erc20: chain id is required")
	}
	parsed, err := abi.JSON(strings.NewReader(tokenABIJSON))
	if err != nil {
		return nil, fmt.Errorf("erc20: parse abi: %w", err)
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		backend:  backend,
		abi:      parsed,
		token:    cfg.Token,
		key:      cfg.Key,
		pool:     crypto.PubkeyToAddress(cfg.Key.PublicKey),
		signer:   types.NewEIP155Signer(cfg.ChainID),
		timeout:  cfg.ConfirmTimeout,
		interval: cfg.PollInterval,
		logger:   logger.With(slog.String("component", "erc20")),
	}, nil
}

// Pool returns the pool account address.
func (g *Gateway) Pool() common.Address { return g.pool }

// Close releases the RPC connection opened by Dial.
func (g *Gateway) Close() {
	if g.closer != nil {
		g.closer()
	}
}

// Decimals reads the token's decimals().
func (g *Gateway) Decimals(ctx context.Context) (uint8, error) {
	var d uint8
	if err := g.call(ctx, &d, "decimals"); err != nil {
		return 0, err
	}
	return d, nil
}

func (g *Gateway) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	var bal *big.Int
	if err := g.call(ctx, &bal, "balanceOf", owner); err != nil {
		return nil, err
	}
	return bal, nil
}

func (g *Gateway) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	var a *big.Int
	if err := g.call(ctx, &a, "allowance", owner, g.pool); err != nil {
		return nil, err
	}
	return a, nil
}

// Pull checks allowance and balance first so the usual failures map to domain
// errors instead of an opaque revert.
func (g *Gateway) Pull(ctx context.Context, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return domain.ErrInvalidAmount
	}
	allowed, err := g.Allowance(ctx, from)
	if err != nil {
		return err
	}
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("erc20: pull from %s: %w", from.Hex(), domain.ErrInsufficientAllowance)
	}
	bal, err := g.BalanceOf(ctx, from)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("erc20: pull from %s: %w", from.Hex(), domain.ErrInsufficientFunds)
	}
	return g.transact(ctx, "transferFrom", from, g.pool, amount)
}

func (g *Gateway) Push(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return domain.ErrInvalidAmount
	}
	bal, err := g.BalanceOf(ctx, g.pool)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("erc20: push to %s: %w", to.Hex(), domain.ErrInsufficientFunds)
	}
	return g.transact(ctx, "transfer", to, amount)
}

func (g *Gateway) PoolBalance(ctx context.Context) (*big.Int, error) {
	return g.BalanceOf(ctx, g.pool)
}

func (g *Gateway) call(ctx context.Context, out any, method string, args ...any) error {
	data, err := g.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("erc20: pack %s: %w", method, err)
	}
	raw, err := g.backend.CallContract(ctx, ethereum.CallMsg{From: g.pool, To: &g.token, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("erc20: call %s: %w", method, err)
	}
	if err := g.abi.UnpackIntoInterface(out, method, raw); err != nil {
		return fmt.Errorf("erc20: unpack %s: %w", method, err)
	}
	return nil
}

// transact signs and sends a call to the token and waits for its receipt.
// Sends are serialized so pending nonces do not collide.
func (g *Gateway) transact(ctx context.Context, method string, args ...any) error {
	data, err := g.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("erc20: pack %s: %w", method, err)
	}

	g.sendMu.Lock()
	signed, err := g.buildSignedTx(ctx, data)
	if err == nil {
		err = g.backend.SendTransaction(ctx, signed)
	}
	g.sendMu.Unlock()
	if err != nil {
		return fmt.Errorf("erc20: send %s: %w", method, err)
	}

	g.logger.InfoContext(ctx, "erc20: tx sent",
		slog.String("method", method),
		slog.String("tx", signed.Hash().Hex()),
	)
	return g.waitReceipt(ctx, method, signed.Hash())
}

func (g *Gateway) buildSignedTx(ctx context.Context, data []byte) (*types.Transaction, error) {
	nonce, err := g.backend.PendingNonceAt(ctx, g.pool)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	gas, err := g.backend.EstimateGas(ctx, ethereum.CallMsg{From: g.pool, To: &g.token, Data: data})
	if err != nil {
		gas = fallbackGasLimit
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &g.token,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := types.SignTx(tx, g.signer, g.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	return signed, nil
}

func (g *Gateway) waitReceipt(ctx context.Context, method string, hash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		receipt, err := g.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("erc20: %s tx %s reverted", method, hash.Hex())
			}
			return nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			g.logger.WarnContext(ctx, "erc20: receipt lookup failed",
				slog.String("tx", hash.Hex()),
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("erc20: wait for %s tx %s: %w", method, hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

var _ domain.PaymentGateway = (*Gateway)(nil)
