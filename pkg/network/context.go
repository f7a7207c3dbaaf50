package network

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/uhyunpark/dexkit/params"
	"github.com/uhyunpark/dexkit/pkg/crypto"
	"github.com/uhyunpark/dexkit/pkg/dexerr"
)

// Backend is the subset of *ethclient.Client the toolkit uses.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Dialer opens a Backend for an RPC URL.
type Dialer func(ctx context.Context, rpcURL string) (Backend, error)

func dialEthclient(ctx context.Context, rpcURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

var ErrNotConnected = errors.New("network context is not connected")

type Option func(*Context)

// WithDialer replaces the ethclient dialer (tests, custom transports).
func WithDialer(d Dialer) Option {
	return func(c *Context) { c.dial = d }
}

// Context owns one node connection, the signer and the signer's sequence
// counter. It is caller-owned; there is no process-wide instance.
type Context struct {
	profile params.NetworkProfile
	signer  *crypto.Signer // nil for read-only use
	log     *zap.SugaredLogger
	dial    Dialer

	mu      sync.Mutex
	backend Backend

	nonceMu sync.Mutex
	nonce   *uint64
}

func New(profile params.NetworkProfile, signer *crypto.Signer, log *zap.SugaredLogger, opts ...Option) *Context {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Context{profile: profile, signer: signer, log: log, dial: dialEthclient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect builds a Context and connects it.
func Connect(ctx context.Context, profile params.NetworkProfile, signer *crypto.Signer, log *zap.SugaredLogger, opts ...Option) (*Context, error) {
	c := New(profile, signer, log, opts...)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect dials the profile's endpoint and checks that the node serves the
// expected chain. A second call on a live context fails with AlreadyConnectedError.
func (c *Context) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend != nil {
		return &dexerr.AlreadyConnectedError{Network: c.profile.Name}
	}

	backend, err := c.dial(ctx, c.profile.RPCURL)
	if err != nil {
		return &dexerr.ConnectionError{Endpoint: c.profile.RPCURL, Err: err}
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return &dexerr.ConnectionError{Endpoint: c.profile.RPCURL, Err: fmt.Errorf("failed to query chain id: %w", err)}
	}
	if c.profile.ChainID != nil && chainID.Cmp(c.profile.ChainID) != 0 {
		backend.Close()
		return &dexerr.ConnectionError{
			Endpoint: c.profile.RPCURL,
			Err:      fmt.Errorf("chain id mismatch: node reports %s, profile %q expects %s", chainID, c.profile.Name, c.profile.ChainID),
		}
	}

	c.backend = backend
	fields := []interface{}{"network", c.profile.Name, "rpc", c.profile.RPCURL, "chain_id", chainID.String()}
	if c.signer != nil {
		fields = append(fields, "account", c.signer.Address().Hex())
	}
	c.log.Infow("network_connected", fields...)
	return nil
}

// Close releases the transport. Safe to call more than once.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == nil {
		return
	}
	c.backend.Close()
	c.backend = nil
	c.log.Infow("network_disconnected", "network", c.profile.Name)
}

func (c *Context) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend != nil
}

func (c *Context) Backend() (Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == nil {
		return nil, ErrNotConnected
	}
	return c.backend, nil
}

func (c *Context) Profile() params.NetworkProfile { return c.profile }
func (c *Context) Logger() *zap.SugaredLogger     { return c.log }

// Signer is nil for read-only contexts.
func (c *Context) Signer() *crypto.Signer { return c.signer }

// From is the signer address, or the zero address for read-only contexts.
func (c *Context) From() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

// WithNonce serializes submissions for the signer. fn receives the next
// sequence number: the node's pending nonce on first use, then a local
// counter. The counter advances only when fn succeeds; any failure drops it
// so the next call re-fetches from the node.
func (c *Context) WithNonce(ctx context.Context, fn func(nonce uint64) error) error {
	if c.signer == nil {
		return errors.New("no signer configured")
	}
	backend, err := c.Backend()
	if err != nil {
		return err
	}

	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	if c.nonce == nil {
		n, err := backend.PendingNonceAt(ctx, c.signer.Address())
		if err != nil {
			return &dexerr.ConnectionError{Endpoint: c.profile.RPCURL, Err: fmt.Errorf("failed to fetch nonce: %w", err)}
		}
		c.nonce = &n
	}

	nonce := *c.nonce
	if err := fn(nonce); err != nil {
		c.nonce = nil
		return err
	}
	next := nonce + 1
	c.nonce = &next
	return nil
}

// ResetNonce forces the next submission to re-fetch the pending nonce.
func (c *Context) ResetNonce() {
	c.nonceMu.Lock()
	c.nonce = nil
	c.nonceMu.Unlock()
}

// CallContract runs a read-only call on the current connection, so a Context
// can back contract bindings directly.
func (c *Context) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	backend, err := c.Backend()
	if err != nil {
		return nil, err
	}
	return backend.CallContract(ctx, msg, blockNumber)
}

// BalanceAt returns the native-currency balance of account at the latest block.
func (c *Context) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	backend, err := c.Backend()
	if err != nil {
		return nil, err
	}
	return backend.BalanceAt(ctx, account, nil)
}
