package contracts

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexkit/pkg/dexerr"
)

// Token binds an ERC20 token; the wrap token additionally answers Deposit
// and Withdraw.
type Token struct {
	address common.Address
	caller  Caller

	mu       sync.Mutex
	decimals *uint8
}

func NewToken(address common.Address, caller Caller) *Token {
	return &Token{address: address, caller: caller}
}

func (t *Token) Address() common.Address { return t.address }

// Approve lets spender pull up to amount from the signer.
func (t *Token) Approve(spender common.Address, amount *big.Int) (TxRequest, error) {
	fields := dexerr.Fields{"token": t.address.Hex(), "spender": spender.Hex(), "amount": bigStr(amount)}
	if spender == (common.Address{}) {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: "approve", Reason: "zero spender", Fields: fields}
	}
	if amount == nil || amount.Sign() < 0 {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: "approve", Reason: "amount must be >= 0", Fields: fields}
	}
	return t.request("approve", fields, nil, spender, amount)
}

// Deposit wraps amount of the native currency. The amount travels as the
// transaction value; calldata is only the selector.
func (t *Token) Deposit(amount *big.Int) (TxRequest, error) {
	fields := dexerr.Fields{"token": t.address.Hex(), "amount": bigStr(amount)}
	if amount == nil || amount.Sign() <= 0 {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: "deposit", Reason: "amount must be > 0", Fields: fields}
	}
	return t.request("deposit", fields, new(big.Int).Set(amount))
}

// Withdraw unwraps amount back to the native currency.
func (t *Token) Withdraw(amount *big.Int) (TxRequest, error) {
	fields := dexerr.Fields{"token": t.address.Hex(), "amount": bigStr(amount)}
	if amount == nil || amount.Sign() <= 0 {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: "withdraw", Reason: "amount must be > 0", Fields: fields}
	}
	return t.request("withdraw", fields, nil, amount)
}

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	values, err := call(ctx, t.caller, &TokenABI, t.address, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return bigResult(values, "allowance")
}

func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	values, err := call(ctx, t.caller, &TokenABI, t.address, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return bigResult(values, "balanceOf")
}

// Decimals is fetched once per handle.
func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.decimals != nil {
		return *t.decimals, nil
	}
	values, err := call(ctx, t.caller, &TokenABI, t.address, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected output type %T", values[0])
	}
	t.decimals = &d
	return d, nil
}

func (t *Token) Symbol(ctx context.Context) (string, error) {
	values, err := call(ctx, t.caller, &TokenABI, t.address, "symbol")
	if err != nil {
		return "", err
	}
	s, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("symbol: unexpected output type %T", values[0])
	}
	return s, nil
}

func (t *Token) request(method string, fields dexerr.Fields, value *big.Int, args ...interface{}) (TxRequest, error) {
	data, err := TokenABI.Pack(method, args...)
	if err != nil {
		return TxRequest{}, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	to := t.address
	return TxRequest{Method: method, To: &to, Data: data, Value: value, Fields: fields}, nil
}

func bigStr(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}
