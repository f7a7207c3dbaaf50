// Package chaintest provides an in-memory node for tests: contract calls are
// answered by registered handlers and sent transactions are mined at once.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// MethodHandler answers a call with the decoded inputs; the results are
// packed with the method's outputs.
type MethodHandler func(from common.Address, args []interface{}) ([]interface{}, error)

type callKey struct {
	to       common.Address
	selector [4]byte
}

type handler struct {
	name   string
	method abi.Method
	fn     MethodHandler
}

// Backend satisfies network.Backend.
type Backend struct {
	mu sync.Mutex

	chainID  *big.Int
	head     uint64
	gasPrice *big.Int

	// AdvancePerPoll is how far the head moves on each BlockNumber call.
	AdvancePerPoll uint64
	// Withhold hides receipts, as if transactions never got mined.
	Withhold bool
	// GasEstimate is returned by EstimateGas unless EstimateErr is set.
	GasEstimate uint64
	EstimateErr error
	// SendErr, when set, is returned once by SendTransaction and then cleared.
	SendErr error
	sendErrs []error
	// Mine builds the receipt for an accepted transaction. Defaults to a
	// successful receipt without logs.
	Mine func(tx *types.Transaction, from common.Address) *types.Receipt
	// ChainIDErr fails ChainID, which Connect calls first.
	ChainIDErr error

	handlers     map[callKey]handler
	callCounts   map[string]int
	pendingNonce map[common.Address]uint64
	balances     map[common.Address]*big.Int
	receipts     map[common.Hash]*types.Receipt
	sent         []*types.Transaction
	closed       int
}

func NewBackend(chainID int64) *Backend {
	return &Backend{
		chainID:        big.NewInt(chainID),
		head:           1_555_000,
		gasPrice:       big.NewInt(60_000_000), // 0.06 gwei
		AdvancePerPoll: 1,
		GasEstimate:    230_192,
		handlers:       make(map[callKey]handler),
		callCounts:     make(map[string]int),
		pendingNonce:   make(map[common.Address]uint64),
		balances:       make(map[common.Address]*big.Int),
		receipts:       make(map[common.Hash]*types.Receipt),
	}
}

// Handle registers fn for method of the contract at `to`.
func (b *Backend) Handle(to common.Address, contractABI abi.ABI, method string, fn MethodHandler) {
	m, ok := contractABI.Methods[method]
	if !ok {
		panic(fmt.Sprintf("chaintest: abi has no method %s", method))
	}
	var sel [4]byte
	copy(sel[:], m.ID)
	b.mu.Lock()
	b.handlers[callKey{to: to, selector: sel}] = handler{name: method, method: m, fn: fn}
	b.mu.Unlock()
}

// Returns registers a handler that always answers with values.
func (b *Backend) Returns(to common.Address, contractABI abi.ABI, method string, values ...interface{}) {
	b.Handle(to, contractABI, method, func(common.Address, []interface{}) ([]interface{}, error) {
		return values, nil
	})
}

// CallCount is the number of eth_call / estimate invocations that reached method.
func (b *Backend) CallCount(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.callCounts[method]
}

func (b *Backend) SetPendingNonce(addr common.Address, n uint64) {
	b.mu.Lock()
	b.pendingNonce[addr] = n
	b.mu.Unlock()
}

func (b *Backend) SetBalance(addr common.Address, v *big.Int) {
	b.mu.Lock()
	b.balances[addr] = v
	b.mu.Unlock()
}

// FailNextSends queues errors for the following SendTransaction calls, one per call.
func (b *Backend) FailNextSends(errs ...error) {
	b.mu.Lock()
	b.sendErrs = append(b.sendErrs, errs...)
	b.mu.Unlock()
}

func (b *Backend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

func (b *Backend) Closed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Backend) Head() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head
}

// --- network.Backend ---

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	if b.ChainIDErr != nil {
		return nil, b.ChainIDErr
	}
	return new(big.Int).Set(b.chainID), nil
}

func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.head
	b.head += b.AdvancePerPoll
	return h, nil
}

func (b *Backend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.balances[account]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return b.dispatch(msg)
}

func (b *Backend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if b.EstimateErr != nil {
		return 0, b.EstimateErr
	}
	// calls with a registered handler are executed so handler errors surface
	// as reverts, like a real node would
	if msg.To != nil && len(msg.Data) >= 4 {
		b.mu.Lock()
		_, ok := b.handlers[keyOf(msg)]
		b.mu.Unlock()
		if ok {
			if _, err := b.dispatch(msg); err != nil {
				return 0, err
			}
		}
	}
	return b.GasEstimate, nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.gasPrice), nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingNonce[account], nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	from, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	b.mu.Lock()
	if len(b.sendErrs) > 0 {
		err := b.sendErrs[0]
		b.sendErrs = b.sendErrs[1:]
		b.mu.Unlock()
		return err
	}
	if b.SendErr != nil {
		err := b.SendErr
		b.SendErr = nil
		b.mu.Unlock()
		return err
	}
	expected := b.pendingNonce[from]
	if tx.Nonce() < expected {
		b.mu.Unlock()
		return fmt.Errorf("nonce too low: next nonce %d, tx nonce %d", expected, tx.Nonce())
	}
	if tx.Nonce() > expected {
		b.mu.Unlock()
		return fmt.Errorf("nonce too high: next nonce %d, tx nonce %d", expected, tx.Nonce())
	}
	b.pendingNonce[from] = expected + 1
	b.sent = append(b.sent, tx)
	b.head++
	block := b.head
	mine := b.Mine
	b.mu.Unlock()

	var receipt *types.Receipt
	if mine != nil {
		receipt = mine(tx, from)
	}
	if receipt == nil {
		receipt = &types.Receipt{Status: types.ReceiptStatusSuccessful}
	}
	receipt.TxHash = tx.Hash()
	receipt.BlockNumber = new(big.Int).SetUint64(block)
	if receipt.GasUsed == 0 {
		receipt.GasUsed = tx.Gas() * 10 / 11
	}
	if tx.To() == nil && receipt.ContractAddress == (common.Address{}) {
		receipt.ContractAddress = crypto.CreateAddress(from, tx.Nonce())
	}
	for i, l := range receipt.Logs {
		l.TxHash = tx.Hash()
		l.BlockNumber = block
		l.Index = uint(i)
	}

	b.mu.Lock()
	b.receipts[tx.Hash()] = receipt
	b.mu.Unlock()
	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[txHash]
	if !ok || b.Withhold {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *Backend) Close() {
	b.mu.Lock()
	b.closed++
	b.mu.Unlock()
}

func keyOf(msg ethereum.CallMsg) callKey {
	var k callKey
	k.to = *msg.To
	copy(k.selector[:], msg.Data[:4])
	return k
}

func (b *Backend) dispatch(msg ethereum.CallMsg) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("chaintest: call without target or selector")
	}
	b.mu.Lock()
	h, ok := b.handlers[keyOf(msg)]
	if ok {
		b.callCounts[h.name]++
	}
	b.mu.Unlock()
	if !ok {
		// empty return data, like calling an address without code
		return nil, nil
	}

	args, err := h.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("chaintest: bad calldata for %s: %w", h.name, err)
	}
	results, err := h.fn(msg.From, args)
	if err != nil {
		return nil, err
	}
	return h.method.Outputs.Pack(results...)
}

// RevertError mimics the JSON-RPC error a node returns for a reverted call:
// the revert payload is exposed through ErrorData as a hex string.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string  { return "execution reverted" }
func (e *RevertError) ErrorCode() int { return 3 }
func (e *RevertError) ErrorData() interface{} {
	return hexutil.Encode(PackRevert(e.Reason))
}

// PackRevert encodes Error(string) the way solidity's require does.
func PackRevert(reason string) []byte {
	stringTy, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringTy}}.Pack(reason)
	return append(crypto.Keccak256([]byte("Error(string)"))[:4], packed...)
}
