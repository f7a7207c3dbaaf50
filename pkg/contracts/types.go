package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexkit/pkg/dexerr"
)

// TxRequest is a prepared state-changing call, not yet signed or sent.
type TxRequest struct {
	Method string          // contract method, used in logs and the journal
	To     *common.Address // nil deploys a contract
	Data   []byte
	Value  *big.Int // native currency sent along (wrap deposits)
	Fields dexerr.Fields
}

// Side of an order book.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

func ParseSide(s string) (Side, error) {
	switch s {
	case "buy", "BUY":
		return Buy, nil
	case "sell", "SELL":
		return Sell, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

// OrderType as emitted in NewOrderInserted.
type OrderType uint8

const (
	LimitOrder OrderType = iota
	MarketOrder
)

func (t OrderType) String() string {
	switch t {
	case LimitOrder:
		return "limit"
	case MarketOrder:
		return "market"
	}
	return fmt.Sprintf("OrderType(%d)", uint8(t))
}

// TickStage is the phase of a pair's matching cycle.
type TickStage uint8

const (
	ReceivingOrders TickStage = iota
	RunningSimulation
	RunningMatching
	MovingPendingOrders
)

var tickStageNames = map[TickStage]string{
	ReceivingOrders:     "RECEIVING_ORDERS",
	RunningSimulation:   "RUNNING_SIMULATION",
	RunningMatching:     "RUNNING_MATCHING",
	MovingPendingOrders: "MOVING_PENDING_ORDERS",
}

func (s TickStage) String() string {
	if name, ok := tickStageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TickStage(%d)", uint8(s))
}

func (s TickStage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *TickStage) UnmarshalText(text []byte) error {
	for stage, name := range tickStageNames {
		if name == string(text) {
			*s = stage
			return nil
		}
	}
	return fmt.Errorf("unknown tick stage %q", text)
}

// PairStatus is a point-in-time snapshot of a token pair. Never cached.
type PairStatus struct {
	EmergentPrice      *big.Int `abi:"emergentPrice" json:"emergentPrice"`
	LastBuyMatchID     *big.Int `abi:"lastBuyMatchId" json:"lastBuyMatchId"`
	LastBuyMatchAmount *big.Int `abi:"lastBuyMatchAmount" json:"lastBuyMatchAmount"`
	LastSellMatchID    *big.Int `abi:"lastSellMatchId" json:"lastSellMatchId"`
	TickNumber         uint64   `abi:"tickNumber" json:"tickNumber"`
	NextTickBlock      *big.Int `abi:"nextTickBlock" json:"nextTickBlock"`
	LastTickBlock      *big.Int `abi:"lastTickBlock" json:"lastTickBlock"`
	LastClosingPrice   *big.Int `abi:"lastClosingPrice" json:"lastClosingPrice"`
	Disabled           bool     `abi:"disabled" json:"disabled"`
	EMAPrice           *big.Int `abi:"EMAPrice" json:"EMAPrice"`
	SmoothingFactor    *big.Int `abi:"smoothingFactor" json:"smoothingFactor"`
	MarketPrice        *big.Int `abi:"marketPrice" json:"marketPrice"`
}

type TickConfig struct {
	ExpectedOrdersForTick uint64 `abi:"expectedOrdersForTick" json:"expectedOrdersForTick"`
	MaxBlocksForTick      uint64 `abi:"maxBlocksForTick" json:"maxBlocksForTick"`
	MinBlocksForTick      uint64 `abi:"minBlocksForTick" json:"minBlocksForTick"`
}

// Pair is a (base, secondary) token pair as listed by the exchange.
type Pair struct {
	Base      common.Address `json:"base"`
	Secondary common.Address `json:"secondary"`
}

// OrderReceipt is decoded from NewOrderInserted.
type OrderReceipt struct {
	OrderID            *big.Int
	Sender             common.Address
	BaseToken          common.Address
	SecondaryToken     common.Address
	ExchangeableAmount *big.Int
	ReservedCommission *big.Int
	Price              *big.Int // zero for market orders
	MultiplyFactor     *big.Int // zero for limit orders
	ExpiresInTick      uint64
	IsBuy              bool
	OrderType          OrderType
}

// Total is exchangeable amount plus reserved commission, which equals the
// amount the order locked.
func (r OrderReceipt) Total() *big.Int {
	return new(big.Int).Add(r.ExchangeableAmount, r.ReservedCommission)
}

// CancelReceipt is decoded from OrderCancelled.
type CancelReceipt struct {
	OrderID            *big.Int
	Sender             common.Address
	ReturnedAmount     *big.Int
	Commission         *big.Int
	ReturnedCommission *big.Int
	IsBuy              bool
}

// Refund is what the sender got back.
func (r CancelReceipt) Refund() *big.Int {
	return new(big.Int).Add(r.ReturnedAmount, r.ReturnedCommission)
}
