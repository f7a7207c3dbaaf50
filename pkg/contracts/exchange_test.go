package contracts

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexkit/pkg/chaintest"
	"github.com/uhyunpark/dexkit/pkg/dexerr"
)

var (
	dexAddr = common.HexToAddress("0xA066d6e20e122deB1139FA3Ae3e96d04578c67B5")
	doc     = common.HexToAddress("0xCB46c0ddc60D18eFEB0E586C17Af6ea36452Dae0")
	wrbtc   = common.HexToAddress("0x09B6Ca5E4496238a1F176aEA6bB607db96C2286E")
	user    = common.HexToAddress("0xCD8A1c9aCc980ae031456573e34dC05cD7daE6e3")
)

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad literal " + s)
	}
	return v
}

func newExchange(t *testing.T, maxLifespan uint64) (*Exchange, *chaintest.Backend) {
	t.Helper()
	b := chaintest.NewBackend(31)
	b.Returns(dexAddr, ExchangeABI, "maxOrderLifespan", maxLifespan)
	return NewExchange(dexAddr, b), b
}

func unpackArgs(t *testing.T, req TxRequest) []interface{} {
	t.Helper()
	m, err := ExchangeABI.MethodById(req.Data[:4])
	if err != nil {
		t.Fatalf("unknown selector: %v", err)
	}
	if m.Name != req.Method {
		t.Fatalf("selector is %s, request says %s", m.Name, req.Method)
	}
	args, err := m.Inputs.Unpack(req.Data[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	return args
}

func TestInsertLimitOrder(t *testing.T) {
	ex, _ := newExchange(t, 10)
	ctx := context.Background()

	amount := wei("14000000000000000000")
	price := wei("14000000000000000000000")

	req, err := ex.InsertLimitOrder(ctx, doc, wrbtc, Buy, amount, price, 5)
	if err != nil {
		t.Fatalf("InsertLimitOrder: %v", err)
	}
	if req.Method != "insertBuyLimitOrder" {
		t.Errorf("method = %s", req.Method)
	}
	if *req.To != dexAddr {
		t.Errorf("to = %s", req.To.Hex())
	}
	args := unpackArgs(t, req)
	if args[0].(common.Address) != doc || args[1].(common.Address) != wrbtc {
		t.Errorf("pair args = %v %v", args[0], args[1])
	}
	if args[2].(*big.Int).Cmp(amount) != 0 || args[3].(*big.Int).Cmp(price) != 0 {
		t.Errorf("amount/price args = %v %v", args[2], args[3])
	}
	if args[4].(uint64) != 5 {
		t.Errorf("lifespan arg = %v", args[4])
	}

	sell, err := ex.InsertLimitOrder(ctx, doc, wrbtc, Sell, amount, price, 10)
	if err != nil {
		t.Fatalf("sell at max lifespan: %v", err)
	}
	if sell.Method != "insertSellLimitOrder" {
		t.Errorf("method = %s", sell.Method)
	}
}

func TestInsertLimitOrderValidation(t *testing.T) {
	ex, b := newExchange(t, 10)
	ctx := context.Background()
	one := wei("1000000000000000000")

	tests := []struct {
		name      string
		base, sec common.Address
		amount    *big.Int
		price     *big.Int
		lifespan  uint64
	}{
		{"zero amount", doc, wrbtc, new(big.Int), one, 5},
		{"nil price", doc, wrbtc, one, nil, 5},
		{"negative price", doc, wrbtc, one, big.NewInt(-1), 5},
		{"zero lifespan", doc, wrbtc, one, one, 0},
		{"lifespan over max", doc, wrbtc, one, one, 11},
		{"same token", doc, doc, one, one, 5},
		{"zero token", common.Address{}, wrbtc, one, one, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ex.InsertLimitOrder(ctx, tt.base, tt.sec, Buy, tt.amount, tt.price, tt.lifespan)
			var ioe *dexerr.InvalidOrderError
			if !errors.As(err, &ioe) {
				t.Fatalf("err = %v, want InvalidOrderError", err)
			}
			if ioe.Op != "insertBuyLimitOrder" {
				t.Errorf("Op = %s", ioe.Op)
			}
		})
	}

	// the bound is fetched once per handle
	if n := b.CallCount("maxOrderLifespan"); n != 1 {
		t.Errorf("maxOrderLifespan fetched %d times, want 1", n)
	}
}

func TestInsertMarketOrderArgumentOrder(t *testing.T) {
	ex, _ := newExchange(t, 10)
	factor := wei("1010000000000000000")

	req, err := ex.InsertMarketOrder(context.Background(), doc, wrbtc, Buy, wei("20000000000000000000"), factor, 7)
	if err != nil {
		t.Fatalf("InsertMarketOrder: %v", err)
	}
	args := unpackArgs(t, req)
	if len(args) != 6 {
		t.Fatalf("got %d args", len(args))
	}
	if args[3].(*big.Int).Cmp(factor) != 0 {
		t.Errorf("multiplyFactor arg = %v", args[3])
	}
	if args[4].(uint64) != 7 {
		t.Errorf("lifespan arg = %v", args[4])
	}
	if args[5].(bool) != true {
		t.Error("isBuy should be the last argument and true")
	}

	sell, err := ex.InsertMarketOrder(context.Background(), doc, wrbtc, Sell, wei("1000000000000000"), factor, 7)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if unpackArgs(t, sell)[5].(bool) {
		t.Error("sell market order sent isBuy=true")
	}

	_, err = ex.InsertMarketOrder(context.Background(), doc, wrbtc, Buy, wei("1"), new(big.Int), 7)
	if !dexerr.IsInvalidOrder(err) {
		t.Errorf("zero multiply factor: err = %v", err)
	}
}

func TestCancelOrder(t *testing.T) {
	ex, b := newExchange(t, 10)

	req, err := ex.CancelOrder(doc, wrbtc, Buy, big.NewInt(162), nil)
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	args := unpackArgs(t, req)
	if args[2].(*big.Int).Int64() != 162 {
		t.Errorf("orderId = %v", args[2])
	}
	if args[3].(*big.Int).Sign() != 0 {
		t.Errorf("nil hint should default to 0, got %v", args[3])
	}

	req, err = ex.CancelOrder(doc, wrbtc, Sell, big.NewInt(163), big.NewInt(161))
	if err != nil {
		t.Fatalf("CancelOrder sell: %v", err)
	}
	if req.Method != "cancelSellOrder" {
		t.Errorf("method = %s", req.Method)
	}

	if _, err := ex.CancelOrder(doc, wrbtc, Buy, new(big.Int), nil); !dexerr.IsInvalidOrder(err) {
		t.Errorf("zero order id: err = %v", err)
	}
	if b.CallCount("maxOrderLifespan") != 0 {
		t.Error("cancel must not query the lifespan bound")
	}
}

func TestPairStatus(t *testing.T) {
	ex, b := newExchange(t, 10)
	b.Handle(dexAddr, ExchangeABI, "getTokenPairStatus", func(_ common.Address, args []interface{}) ([]interface{}, error) {
		if args[0].(common.Address) != doc || args[1].(common.Address) != wrbtc {
			return nil, errors.New("unexpected pair")
		}
		return []interface{}{
			big.NewInt(0),                     // emergentPrice
			big.NewInt(0),                     // lastBuyMatchId
			big.NewInt(0),                     // lastBuyMatchAmount
			big.NewInt(0),                     // lastSellMatchId
			uint64(60),                        // tickNumber
			big.NewInt(1554830),               // nextTickBlock
			big.NewInt(1554810),               // lastTickBlock
			wei("26173189500000000139391"),    // lastClosingPrice
			false,                             // disabled
			wei("17480576716894192682909"),    // EMAPrice
			wei("16530000000000000"),          // smoothingFactor
			wei("32080730000000000000000"),    // marketPrice
		}, nil
	})

	status, err := ex.PairStatus(context.Background(), doc, wrbtc)
	if err != nil {
		t.Fatalf("PairStatus: %v", err)
	}
	if status.TickNumber != 60 {
		t.Errorf("TickNumber = %d", status.TickNumber)
	}
	if status.MarketPrice.Cmp(wei("32080730000000000000000")) != 0 {
		t.Errorf("MarketPrice = %s", status.MarketPrice)
	}
	if status.EMAPrice.Cmp(wei("17480576716894192682909")) != 0 {
		t.Errorf("EMAPrice = %s", status.EMAPrice)
	}
	if status.NextTickBlock.Int64() != 1554830 || status.Disabled {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestReadOnlyQueries(t *testing.T) {
	ex, b := newExchange(t, 120)
	b.Returns(dexAddr, ExchangeABI, "paused", true)
	b.Returns(dexAddr, ExchangeABI, "getTickStage", uint8(2))
	b.Returns(dexAddr, ExchangeABI, "minOrderAmount", wei("10000000000000000000"))
	b.Returns(dexAddr, ExchangeABI, "getTokenPairs", [][2]common.Address{{doc, wrbtc}})
	b.Returns(dexAddr, ExchangeABI, "tickConfig", uint64(5), uint64(20), uint64(10))
	ctx := context.Background()

	paused, err := ex.IsPaused(ctx)
	if err != nil || !paused {
		t.Errorf("IsPaused = %v, %v", paused, err)
	}
	stage, err := ex.TickStage(ctx, doc, wrbtc)
	if err != nil || stage != RunningMatching {
		t.Errorf("TickStage = %v, %v", stage, err)
	}
	if stage.String() != "RUNNING_MATCHING" {
		t.Errorf("stage name = %s", stage)
	}
	minAmount, err := ex.MinOrderAmount(ctx)
	if err != nil || minAmount.Cmp(wei("10000000000000000000")) != 0 {
		t.Errorf("MinOrderAmount = %v, %v", minAmount, err)
	}
	pairs, err := ex.TokenPairs(ctx)
	if err != nil || len(pairs) != 1 || pairs[0].Base != doc || pairs[0].Secondary != wrbtc {
		t.Errorf("TokenPairs = %v, %v", pairs, err)
	}
	cfg, err := ex.TickConfig(ctx)
	if err != nil || cfg.ExpectedOrdersForTick != 5 || cfg.MaxBlocksForTick != 20 || cfg.MinBlocksForTick != 10 {
		t.Errorf("TickConfig = %+v, %v", cfg, err)
	}
}

func TestCallWithoutContract(t *testing.T) {
	b := chaintest.NewBackend(31)
	ex := NewExchange(dexAddr, b)
	if _, err := ex.IsPaused(context.Background()); err == nil {
		t.Fatal("expected error when no contract answers")
	}
}

func TestTickStageNames(t *testing.T) {
	names := map[TickStage]string{
		ReceivingOrders:     "RECEIVING_ORDERS",
		RunningSimulation:   "RUNNING_SIMULATION",
		RunningMatching:     "RUNNING_MATCHING",
		MovingPendingOrders: "MOVING_PENDING_ORDERS",
		TickStage(9):        "TickStage(9)",
	}
	for stage, want := range names {
		if stage.String() != want {
			t.Errorf("%d.String() = %s, want %s", stage, stage.String(), want)
		}
	}
}

func TestTickStageTextRoundTrip(t *testing.T) {
	var s TickStage
	if err := s.UnmarshalText([]byte("MOVING_PENDING_ORDERS")); err != nil || s != MovingPendingOrders {
		t.Fatalf("UnmarshalText = %v, %v", s, err)
	}
	if err := s.UnmarshalText([]byte("SLEEPING")); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}
