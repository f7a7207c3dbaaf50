package main

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexkit/pkg/contracts"
	"github.com/uhyunpark/dexkit/pkg/ops"
	"github.com/uhyunpark/dexkit/pkg/units"
)

func printResult(res ops.Result) {
	tx := res.Tx
	if res.Pending() {
		fmt.Printf("%s sent: %s (nonce %d)\n", res.Op, tx.Hash.Hex(), tx.Nonce)
		fmt.Println("  not confirmed yet; it may still be mined. Check with 'dexctl pending'.")
		return
	}
	fmt.Printf("Transaction sent: %s\n", tx.Hash.Hex())
	fmt.Printf("  %s %s - Block: %d   Gas used: %d\n", res.Op, tx.Status, tx.BlockNumber, tx.GasUsed)
	for _, ev := range res.Events {
		printEvent(ev)
	}
}

func printEvent(ev contracts.DecodedEvent) {
	if ev.Name == "" {
		fmt.Printf("  unknown log from %s\n", ev.Address.Hex())
		return
	}
	fmt.Printf("  %s\n", ev.Name)
	keys := make([]string, 0, len(ev.Args))
	for k := range ev.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("    %s: %v\n", k, ev.Args[k])
	}
}

func printOrder(res ops.OrderResult) {
	printResult(res.Result)
	o := res.Order
	if o == nil {
		return
	}
	fmt.Printf("Order %s inserted (%s, buy=%v)\n", o.OrderID, o.OrderType, o.IsBuy)
	fmt.Printf("  exchangeable:  %s\n", units.FromWei(o.ExchangeableAmount))
	fmt.Printf("  commission:    %s\n", units.FromWei(o.ReservedCommission))
	fmt.Printf("  locked:        %s\n", units.FromWei(o.Total()))
	fmt.Printf("  expiresInTick: %d\n", o.ExpiresInTick)
	if res.CommissionMismatch {
		fmt.Println("  WARNING: exchangeable + commission differs from the requested amount")
	}
}

func printCancel(res ops.CancelResult) {
	if res.Tx.Hash == (common.Hash{}) {
		return
	}
	printResult(res.Result)
	c := res.Cancel
	if c == nil {
		return
	}
	fmt.Printf("Order %s cancelled\n", c.OrderID)
	fmt.Printf("  returned:            %s\n", units.FromWei(c.ReturnedAmount))
	fmt.Printf("  returned commission: %s\n", units.FromWei(c.ReturnedCommission))
	fmt.Printf("  penalty commission:  %s\n", units.FromWei(c.Commission))
	fmt.Printf("  refund:              %s\n", units.FromWei(c.Refund()))
}

func printStatus(indent string, s contracts.PairStatus) {
	rows := []struct {
		k, v string
	}{
		{"emergentPrice", units.FromWei(s.EmergentPrice)},
		{"marketPrice", units.FromWei(s.MarketPrice)},
		{"lastClosingPrice", units.FromWei(s.LastClosingPrice)},
		{"EMAPrice", units.FromWei(s.EMAPrice)},
		{"smoothingFactor", units.FromWei(s.SmoothingFactor)},
		{"lastBuyMatchId", bigStr(s.LastBuyMatchID)},
		{"lastBuyMatchAmount", units.FromWei(s.LastBuyMatchAmount)},
		{"lastSellMatchId", bigStr(s.LastSellMatchID)},
		{"tickNumber", fmt.Sprint(s.TickNumber)},
		{"nextTickBlock", bigStr(s.NextTickBlock)},
		{"lastTickBlock", bigStr(s.LastTickBlock)},
		{"disabled", fmt.Sprint(s.Disabled)},
	}
	for _, r := range rows {
		fmt.Printf("%s%-19s %s\n", indent, r.k+":", r.v)
	}
}

func bigStr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
