package ops

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexkit/pkg/contracts"
	"github.com/uhyunpark/dexkit/pkg/dexerr"
)

type OrderKind int

const (
	Limit OrderKind = iota
	Market
)

func (k OrderKind) String() string {
	if k == Market {
		return "market"
	}
	return "limit"
}

// OrderRequest describes one order insertion. Amount is what the order locks,
// in base units of the token given up. A limit order carries Price and no
// MultiplyFactor; a market order the reverse.
type OrderRequest struct {
	Base           common.Address
	Secondary      common.Address
	Side           contracts.Side
	Kind           OrderKind
	Amount         *big.Int
	Price          *big.Int
	MultiplyFactor *big.Int
	Lifespan       uint64
}

func (o OrderRequest) op() string {
	switch {
	case o.Kind == Market:
		return "insertMarketOrder"
	case o.Side == contracts.Sell:
		return "insertSellLimitOrder"
	}
	return "insertBuyLimitOrder"
}

func (o OrderRequest) fields() dexerr.Fields {
	f := dexerr.Fields{
		"base":      o.Base.Hex(),
		"secondary": o.Secondary.Hex(),
		"side":      o.Side.String(),
		"kind":      o.Kind.String(),
		"lifespan":  strconv.FormatUint(o.Lifespan, 10),
	}
	if o.Amount != nil {
		f["amount"] = o.Amount.String()
	}
	if o.Price != nil {
		f["price"] = o.Price.String()
	}
	if o.MultiplyFactor != nil {
		f["multiplyFactor"] = o.MultiplyFactor.String()
	}
	return f
}

// Validate checks the limit/market field exclusivity. Amount, price and
// lifespan bounds are checked when the call is built.
func (o OrderRequest) Validate() error {
	switch o.Kind {
	case Limit:
		if o.MultiplyFactor != nil {
			return &dexerr.InvalidOrderError{Op: o.op(), Reason: "limit order must not carry a multiply factor", Fields: o.fields()}
		}
		if o.Price == nil {
			return &dexerr.InvalidOrderError{Op: o.op(), Reason: "limit order needs a price", Fields: o.fields()}
		}
	case Market:
		if o.Price != nil {
			return &dexerr.InvalidOrderError{Op: o.op(), Reason: "market order must not carry a price", Fields: o.fields()}
		}
		if o.MultiplyFactor == nil {
			return &dexerr.InvalidOrderError{Op: o.op(), Reason: "market order needs a multiply factor", Fields: o.fields()}
		}
	default:
		return &dexerr.InvalidOrderError{Op: "insertOrder", Reason: fmt.Sprintf("unknown order kind %d", int(o.Kind)), Fields: o.fields()}
	}
	return nil
}

// OrderResult carries the decoded NewOrderInserted event when the
// transaction confirmed.
type OrderResult struct {
	Result
	Order *contracts.OrderReceipt
	// CommissionMismatch is set when exchangeable + reserved commission does
	// not add up to the requested amount.
	CommissionMismatch bool
}

// InsertOrder validates and sends one order.
func (r *Runner) InsertOrder(ctx context.Context, o OrderRequest) (OrderResult, error) {
	if err := o.Validate(); err != nil {
		return OrderResult{}, err
	}

	var (
		req contracts.TxRequest
		err error
	)
	if o.Kind == Market {
		req, err = r.exchange.InsertMarketOrder(ctx, o.Base, o.Secondary, o.Side, o.Amount, o.MultiplyFactor, o.Lifespan)
	} else {
		req, err = r.exchange.InsertLimitOrder(ctx, o.Base, o.Secondary, o.Side, o.Amount, o.Price, o.Lifespan)
	}
	if err != nil {
		return OrderResult{}, err
	}

	res, err := r.send(ctx, req)
	out := OrderResult{Result: res}
	if err != nil || res.Pending() {
		return out, err
	}

	inserted := contracts.Filter(res.Events, contracts.EventNewOrderInserted)
	if len(inserted) == 0 {
		return out, fmt.Errorf("%s: confirmed without a %s event (tx %s)", req.Method, contracts.EventNewOrderInserted, res.Tx.Hash.Hex())
	}
	receipt, err := contracts.OrderReceiptFromEvent(inserted[0])
	if err != nil {
		return out, fmt.Errorf("%s: %w", req.Method, err)
	}
	out.Order = &receipt

	if receipt.Total().Cmp(o.Amount) != 0 {
		out.CommissionMismatch = true
		r.log.Warnw("commission_mismatch",
			"order_id", receipt.OrderID.String(),
			"requested", o.Amount.String(),
			"exchangeable", receipt.ExchangeableAmount.String(),
			"reserved_commission", receipt.ReservedCommission.String(),
		)
	}
	r.log.Infow("order_inserted",
		"order_id", receipt.OrderID.String(),
		"type", receipt.OrderType.String(),
		"is_buy", receipt.IsBuy,
		"expires_in_tick", receipt.ExpiresInTick,
		"tx", res.Tx.Hash.Hex(),
	)
	return out, nil
}

func (r *Runner) InsertBuyLimitOrder(ctx context.Context, base, secondary common.Address, amount, price *big.Int, lifespan uint64) (OrderResult, error) {
	return r.InsertOrder(ctx, OrderRequest{Base: base, Secondary: secondary, Side: contracts.Buy, Kind: Limit, Amount: amount, Price: price, Lifespan: lifespan})
}

func (r *Runner) InsertSellLimitOrder(ctx context.Context, base, secondary common.Address, amount, price *big.Int, lifespan uint64) (OrderResult, error) {
	return r.InsertOrder(ctx, OrderRequest{Base: base, Secondary: secondary, Side: contracts.Sell, Kind: Limit, Amount: amount, Price: price, Lifespan: lifespan})
}

func (r *Runner) InsertBuyMarketOrder(ctx context.Context, base, secondary common.Address, amount, multiplyFactor *big.Int, lifespan uint64) (OrderResult, error) {
	return r.InsertOrder(ctx, OrderRequest{Base: base, Secondary: secondary, Side: contracts.Buy, Kind: Market, Amount: amount, MultiplyFactor: multiplyFactor, Lifespan: lifespan})
}

func (r *Runner) InsertSellMarketOrder(ctx context.Context, base, secondary common.Address, amount, multiplyFactor *big.Int, lifespan uint64) (OrderResult, error) {
	return r.InsertOrder(ctx, OrderRequest{Base: base, Secondary: secondary, Side: contracts.Sell, Kind: Market, Amount: amount, MultiplyFactor: multiplyFactor, Lifespan: lifespan})
}

// CancelResult carries the decoded OrderCancelled event when the
// transaction confirmed.
type CancelResult struct {
	Result
	Cancel *contracts.CancelReceipt
}

// CancelOrder cancels one of the signer's orders. hint may be nil.
func (r *Runner) CancelOrder(ctx context.Context, base, secondary common.Address, side contracts.Side, orderID, hint *big.Int) (CancelResult, error) {
	req, err := r.exchange.CancelOrder(base, secondary, side, orderID, hint)
	if err != nil {
		return CancelResult{}, err
	}

	res, err := r.send(ctx, req)
	out := CancelResult{Result: res}
	if err != nil || res.Pending() {
		return out, err
	}

	cancelled := contracts.Filter(res.Events, contracts.EventOrderCancelled)
	if len(cancelled) == 0 {
		return out, fmt.Errorf("%s: confirmed without a %s event (tx %s)", req.Method, contracts.EventOrderCancelled, res.Tx.Hash.Hex())
	}
	receipt, err := contracts.CancelReceiptFromEvent(cancelled[0])
	if err != nil {
		return out, fmt.Errorf("%s: %w", req.Method, err)
	}
	out.Cancel = &receipt

	if from := r.net.From(); receipt.Sender != from {
		r.log.Errorw("cancel_sender_mismatch", "order_id", receipt.OrderID.String(), "sender", receipt.Sender.Hex(), "signer", from.Hex())
		return out, fmt.Errorf("%s: order %s refunded to %s, not the signer %s", req.Method, receipt.OrderID, receipt.Sender.Hex(), from.Hex())
	}
	r.log.Infow("order_cancelled",
		"order_id", receipt.OrderID.String(),
		"refund", receipt.Refund().String(),
		"commission", receipt.Commission.String(),
		"tx", res.Tx.Hash.Hex(),
	)
	return out, nil
}

func (r *Runner) CancelBuyOrder(ctx context.Context, base, secondary common.Address, orderID, hint *big.Int) (CancelResult, error) {
	return r.CancelOrder(ctx, base, secondary, contracts.Buy, orderID, hint)
}

func (r *Runner) CancelSellOrder(ctx context.Context, base, secondary common.Address, orderID, hint *big.Int) (CancelResult, error) {
	return r.CancelOrder(ctx, base, secondary, contracts.Sell, orderID, hint)
}

// CheckRefund verifies that a cancellation gave back no more than the order locked.
func CheckRefund(order contracts.OrderReceipt, cancel contracts.CancelReceipt) error {
	if order.OrderID.Cmp(cancel.OrderID) != 0 {
		return fmt.Errorf("cancel of order %s checked against order %s", cancel.OrderID, order.OrderID)
	}
	if cancel.Refund().Cmp(order.Total()) > 0 {
		return fmt.Errorf("order %s: refund %s exceeds locked %s", order.OrderID, cancel.Refund(), order.Total())
	}
	return nil
}
