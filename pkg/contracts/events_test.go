package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/uhyunpark/dexkit/pkg/chaintest"
)

// logs of the buy limit order from the testnet walkthrough: 0.001 WRBTC at 14000 DOC
func insertBuyLimitLogs() []*types.Log {
	return []*types.Log{
		chaintest.EventLog(TokenABI, EventTransfer, doc, []interface{}{user, dexAddr}, wei("14000000000000000000")),
		chaintest.EventLog(TokenABI, EventApproval, doc, []interface{}{user, dexAddr}, wei("4902199999999999999290")),
		chaintest.EventLog(ExchangeABI, EventNewOrderInserted, dexAddr,
			[]interface{}{big.NewInt(162), user},
			doc, wrbtc,
			wei("13486000000000000000"), wei("514000000000000000"),
			wei("14000000000000000000000"), new(big.Int),
			uint64(65), true, uint8(0),
		),
	}
}

func TestDecodeLogs(t *testing.T) {
	events := DecodeLogs(insertBuyLimitLogs())
	if len(events) != 3 {
		t.Fatalf("got %d events", len(events))
	}
	names := []string{EventTransfer, EventApproval, EventNewOrderInserted}
	for i, want := range names {
		if events[i].Name != want {
			t.Errorf("event %d = %q, want %s", i, events[i].Name, want)
		}
	}
	if events[0].Args["value"].(*big.Int).Cmp(wei("14000000000000000000")) != 0 {
		t.Errorf("transfer value = %v", events[0].Args["value"])
	}
	if events[0].Args["from"].(common.Address) != user {
		t.Errorf("transfer from = %v", events[0].Args["from"])
	}

	receipt, err := OrderReceiptFromEvent(events[2])
	if err != nil {
		t.Fatalf("OrderReceiptFromEvent: %v", err)
	}
	if receipt.OrderID.Int64() != 162 || receipt.Sender != user {
		t.Errorf("id/sender = %s/%s", receipt.OrderID, receipt.Sender.Hex())
	}
	if receipt.Total().Cmp(wei("14000000000000000000")) != 0 {
		t.Errorf("exchangeable + commission = %s, want 14e18", receipt.Total())
	}
	if receipt.ExpiresInTick != 65 || !receipt.IsBuy || receipt.OrderType != LimitOrder {
		t.Errorf("unexpected receipt %+v", receipt)
	}
	if receipt.MultiplyFactor.Sign() != 0 {
		t.Errorf("limit order multiply factor = %s", receipt.MultiplyFactor)
	}
}

func TestDecodeLogsPreservesUnknown(t *testing.T) {
	// same topic0 as the ERC20 Transfer, but all three args indexed (ERC721)
	erc721 := &types.Log{
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics: []common.Hash{
			TokenABI.Events[EventTransfer].ID,
			common.BytesToHash(user.Bytes()),
			common.BytesToHash(dexAddr.Bytes()),
			common.BigToHash(big.NewInt(7)),
		},
	}
	anonymous := &types.Log{Address: dexAddr, Data: []byte{1, 2, 3}}
	foreign := &types.Log{Address: dexAddr, Topics: []common.Hash{common.HexToHash("0xdeadbeef")}}

	events := DecodeLogs([]*types.Log{erc721, anonymous, foreign})
	for i, ev := range events {
		if ev.Name != "" {
			t.Errorf("event %d decoded as %s, want unknown", i, ev.Name)
		}
		if ev.Log == nil {
			t.Errorf("event %d lost its raw log", i)
		}
	}
	if events[0].Address != erc721.Address {
		t.Error("unknown event should keep the emitting address")
	}
}

func TestCancelReceiptFromEvent(t *testing.T) {
	log := chaintest.EventLog(ExchangeABI, EventOrderCancelled, dexAddr,
		[]interface{}{big.NewInt(162), user},
		wei("13486000000000000000"), new(big.Int), wei("514000000000000000"), true,
	)
	events := DecodeLogs([]*types.Log{log})
	r, err := CancelReceiptFromEvent(events[0])
	if err != nil {
		t.Fatalf("CancelReceiptFromEvent: %v", err)
	}
	if r.Refund().Cmp(wei("14000000000000000000")) != 0 {
		t.Errorf("refund = %s, want 14e18", r.Refund())
	}
	if r.Sender != user || !r.IsBuy {
		t.Errorf("unexpected receipt %+v", r)
	}

	if _, err := CancelReceiptFromEvent(DecodedEvent{Name: EventTransfer}); err == nil {
		t.Error("expected error for wrong event")
	}
	if _, err := OrderReceiptFromEvent(DecodedEvent{Name: EventNewOrderInserted, Args: map[string]interface{}{}}); err == nil {
		t.Error("expected error for missing args")
	}
}

func TestWrapEvents(t *testing.T) {
	logs := []*types.Log{
		chaintest.EventLog(TokenABI, EventDeposit, wrbtc, []interface{}{user}, wei("1000000000000000")),
		chaintest.EventLog(TokenABI, EventWithdrawal, wrbtc, []interface{}{user}, wei("1000000000000000")),
	}
	events := DecodeLogs(logs)
	if events[0].Name != EventDeposit || events[1].Name != EventWithdrawal {
		t.Fatalf("names = %q, %q", events[0].Name, events[1].Name)
	}
	if events[0].Args["dst"].(common.Address) != user {
		t.Errorf("deposit dst = %v", events[0].Args["dst"])
	}
	if got := Filter(events, EventWithdrawal); len(got) != 1 || got[0].Name != EventWithdrawal {
		t.Errorf("Filter = %+v", got)
	}
}
