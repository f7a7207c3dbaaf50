package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexkit/pkg/dexerr"
)

// Exchange binds the decentralized exchange contract.
type Exchange struct {
	address common.Address
	caller  Caller

	mu          sync.Mutex
	maxLifespan *uint64
}

func NewExchange(address common.Address, caller Caller) *Exchange {
	return &Exchange{address: address, caller: caller}
}

func (e *Exchange) Address() common.Address { return e.address }

func pairFields(base, secondary common.Address) dexerr.Fields {
	return dexerr.Fields{"base": base.Hex(), "secondary": secondary.Hex()}
}

func validatePair(op string, base, secondary common.Address, fields dexerr.Fields) error {
	if base == (common.Address{}) || secondary == (common.Address{}) {
		return &dexerr.InvalidOrderError{Op: op, Reason: "zero token address", Fields: fields}
	}
	if base == secondary {
		return &dexerr.InvalidOrderError{Op: op, Reason: "base and secondary are the same token", Fields: fields}
	}
	return nil
}

// validateLifespan checks 0 < lifespan <= maxOrderLifespan. Fetching the
// bound is the only network access; a failure there is returned as-is.
func (e *Exchange) validateLifespan(ctx context.Context, op string, lifespan uint64, fields dexerr.Fields) error {
	if lifespan == 0 {
		return &dexerr.InvalidOrderError{Op: op, Reason: "lifespan must be > 0", Fields: fields}
	}
	limit, err := e.MaxOrderLifespan(ctx)
	if err != nil {
		return err
	}
	if lifespan > limit {
		return &dexerr.InvalidOrderError{
			Op:     op,
			Reason: fmt.Sprintf("lifespan %d exceeds max order lifespan %d", lifespan, limit),
			Fields: fields,
		}
	}
	return nil
}

// InsertLimitOrder builds insertBuyLimitOrder / insertSellLimitOrder.
// amount is in base-token units for buys and secondary-token units for sells.
func (e *Exchange) InsertLimitOrder(ctx context.Context, base, secondary common.Address, side Side, amount, price *big.Int, lifespan uint64) (TxRequest, error) {
	method := "insertBuyLimitOrder"
	if side == Sell {
		method = "insertSellLimitOrder"
	}
	fields := pairFields(base, secondary)
	fields["amount"] = bigStr(amount)
	fields["price"] = bigStr(price)
	fields["lifespan"] = strconv.FormatUint(lifespan, 10)

	if err := validatePair(method, base, secondary, fields); err != nil {
		return TxRequest{}, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: method, Reason: "amount must be > 0", Fields: fields}
	}
	if price == nil || price.Sign() <= 0 {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: method, Reason: "price must be > 0", Fields: fields}
	}
	if err := e.validateLifespan(ctx, method, lifespan, fields); err != nil {
		return TxRequest{}, err
	}
	return e.request(method, fields, base, secondary, amount, price, lifespan)
}

// InsertMarketOrder builds insertMarketOrder. The deployed contract takes the
// side as the trailing isBuy flag.
func (e *Exchange) InsertMarketOrder(ctx context.Context, base, secondary common.Address, side Side, amount, multiplyFactor *big.Int, lifespan uint64) (TxRequest, error) {
	const method = "insertMarketOrder"
	fields := pairFields(base, secondary)
	fields["side"] = side.String()
	fields["amount"] = bigStr(amount)
	fields["multiplyFactor"] = bigStr(multiplyFactor)
	fields["lifespan"] = strconv.FormatUint(lifespan, 10)

	if err := validatePair(method, base, secondary, fields); err != nil {
		return TxRequest{}, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: method, Reason: "amount must be > 0", Fields: fields}
	}
	if multiplyFactor == nil || multiplyFactor.Sign() <= 0 {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: method, Reason: "multiply factor must be > 0", Fields: fields}
	}
	if err := e.validateLifespan(ctx, method, lifespan, fields); err != nil {
		return TxRequest{}, err
	}
	return e.request(method, fields, base, secondary, amount, multiplyFactor, lifespan, side == Buy)
}

// CancelOrder builds cancelBuyOrder / cancelSellOrder. A zero hint makes the
// contract search from the head of the book.
func (e *Exchange) CancelOrder(base, secondary common.Address, side Side, orderID, previousOrderIDHint *big.Int) (TxRequest, error) {
	method := "cancelBuyOrder"
	if side == Sell {
		method = "cancelSellOrder"
	}
	if previousOrderIDHint == nil {
		previousOrderIDHint = new(big.Int)
	}
	fields := pairFields(base, secondary)
	fields["orderId"] = bigStr(orderID)
	fields["hint"] = previousOrderIDHint.String()

	if err := validatePair(method, base, secondary, fields); err != nil {
		return TxRequest{}, err
	}
	if orderID == nil || orderID.Sign() <= 0 {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: method, Reason: "order id must be > 0", Fields: fields}
	}
	if previousOrderIDHint.Sign() < 0 {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: method, Reason: "hint must be >= 0", Fields: fields}
	}
	return e.request(method, fields, base, secondary, orderID, previousOrderIDHint)
}

// WithdrawCommissions moves accrued commissions of token to the beneficiary.
func (e *Exchange) WithdrawCommissions(token common.Address) (TxRequest, error) {
	fields := dexerr.Fields{"token": token.Hex()}
	if token == (common.Address{}) {
		return TxRequest{}, &dexerr.InvalidOrderError{Op: "withdrawCommissions", Reason: "zero token address", Fields: fields}
	}
	return e.request("withdrawCommissions", fields, token)
}

func (e *Exchange) PairStatus(ctx context.Context, base, secondary common.Address) (PairStatus, error) {
	var status PairStatus
	if err := callInto(ctx, e.caller, &ExchangeABI, e.address, &status, "getTokenPairStatus", base, secondary); err != nil {
		return PairStatus{}, err
	}
	return status, nil
}

func (e *Exchange) TickStage(ctx context.Context, base, secondary common.Address) (TickStage, error) {
	values, err := call(ctx, e.caller, &ExchangeABI, e.address, "getTickStage", base, secondary)
	if err != nil {
		return 0, err
	}
	v, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("getTickStage: unexpected output type %T", values[0])
	}
	return TickStage(v), nil
}

func (e *Exchange) IsPaused(ctx context.Context) (bool, error) {
	values, err := call(ctx, e.caller, &ExchangeABI, e.address, "paused")
	if err != nil {
		return false, err
	}
	v, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("paused: unexpected output type %T", values[0])
	}
	return v, nil
}

// MaxOrderLifespan is fetched once per handle and cached.
func (e *Exchange) MaxOrderLifespan(ctx context.Context) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.maxLifespan != nil {
		return *e.maxLifespan, nil
	}
	values, err := call(ctx, e.caller, &ExchangeABI, e.address, "maxOrderLifespan")
	if err != nil {
		return 0, err
	}
	v, ok := values[0].(uint64)
	if !ok {
		return 0, fmt.Errorf("maxOrderLifespan: unexpected output type %T", values[0])
	}
	e.maxLifespan = &v
	return v, nil
}

func (e *Exchange) MinOrderAmount(ctx context.Context) (*big.Int, error) {
	values, err := call(ctx, e.caller, &ExchangeABI, e.address, "minOrderAmount")
	if err != nil {
		return nil, err
	}
	return bigResult(values, "minOrderAmount")
}

func (e *Exchange) TickConfig(ctx context.Context) (TickConfig, error) {
	var cfg TickConfig
	if err := callInto(ctx, e.caller, &ExchangeABI, e.address, &cfg, "tickConfig"); err != nil {
		return TickConfig{}, err
	}
	return cfg, nil
}

func (e *Exchange) TokenPairs(ctx context.Context) ([]Pair, error) {
	values, err := call(ctx, e.caller, &ExchangeABI, e.address, "getTokenPairs")
	if err != nil {
		return nil, err
	}
	raw, ok := values[0].([][2]common.Address)
	if !ok {
		return nil, fmt.Errorf("getTokenPairs: unexpected output type %T", values[0])
	}
	pairs := make([]Pair, len(raw))
	for i, p := range raw {
		pairs[i] = Pair{Base: p[0], Secondary: p[1]}
	}
	return pairs, nil
}

func (e *Exchange) request(method string, fields dexerr.Fields, args ...interface{}) (TxRequest, error) {
	data, err := ExchangeABI.Pack(method, args...)
	if err != nil {
		return TxRequest{}, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	to := e.address
	return TxRequest{Method: method, To: &to, Data: data, Fields: fields}, nil
}
