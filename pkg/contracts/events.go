package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Event names understood by DecodeLogs.
const (
	EventTransfer         = "Transfer"
	EventApproval         = "Approval"
	EventDeposit          = "Deposit"
	EventWithdrawal       = "Withdrawal"
	EventNewOrderInserted = "NewOrderInserted"
	EventOrderCancelled   = "OrderCancelled"
)

// DecodedEvent is one receipt log. Name is empty when the log did not match
// any known event; Log is always the raw entry.
type DecodedEvent struct {
	Name    string
	Address common.Address
	Args    map[string]interface{}
	Log     *types.Log
}

var eventsByTopic = buildEventIndex(TokenABI, ExchangeABI)

func buildEventIndex(abis ...abi.ABI) map[common.Hash]abi.Event {
	idx := make(map[common.Hash]abi.Event)
	for _, a := range abis {
		for _, ev := range a.Events {
			idx[ev.ID] = ev
		}
	}
	return idx
}

// DecodeLogs decodes logs in order. Logs that match a known signature but
// not its layout (an ERC721 Transfer, say) are kept as unknown.
func DecodeLogs(logs []*types.Log) []DecodedEvent {
	out := make([]DecodedEvent, 0, len(logs))
	for _, l := range logs {
		out = append(out, decodeLog(l))
	}
	return out
}

func decodeLog(l *types.Log) DecodedEvent {
	unknown := DecodedEvent{Address: l.Address, Log: l}
	if len(l.Topics) == 0 {
		return unknown
	}
	ev, ok := eventsByTopic[l.Topics[0]]
	if !ok {
		return unknown
	}

	args := make(map[string]interface{}, len(ev.Inputs))
	if err := ev.Inputs.UnpackIntoMap(args, l.Data); err != nil {
		return unknown
	}
	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, l.Topics[1:]); err != nil {
		return unknown
	}
	return DecodedEvent{Name: ev.Name, Address: l.Address, Args: args, Log: l}
}

// Filter keeps only events with one of the given names, preserving order.
func Filter(events []DecodedEvent, names ...string) []DecodedEvent {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []DecodedEvent
	for _, ev := range events {
		if want[ev.Name] {
			out = append(out, ev)
		}
	}
	return out
}

// OrderReceiptFromEvent reads a decoded NewOrderInserted.
func OrderReceiptFromEvent(ev DecodedEvent) (OrderReceipt, error) {
	if ev.Name != EventNewOrderInserted {
		return OrderReceipt{}, fmt.Errorf("expected %s, got %q", EventNewOrderInserted, ev.Name)
	}
	a := argReader{args: ev.Args}
	r := OrderReceipt{
		OrderID:            a.bigInt("id"),
		Sender:             a.addr("sender"),
		BaseToken:          a.addr("baseTokenAddress"),
		SecondaryToken:     a.addr("secondaryTokenAddress"),
		ExchangeableAmount: a.bigInt("exchangeableAmount"),
		ReservedCommission: a.bigInt("reservedCommission"),
		Price:              a.bigInt("price"),
		MultiplyFactor:     a.bigInt("multiplyFactor"),
		ExpiresInTick:      a.u64("expiresInTick"),
		IsBuy:              a.flag("isBuy"),
		OrderType:          OrderType(a.u8("orderType")),
	}
	if a.err != nil {
		return OrderReceipt{}, fmt.Errorf("malformed %s: %w", EventNewOrderInserted, a.err)
	}
	return r, nil
}

// CancelReceiptFromEvent reads a decoded OrderCancelled.
func CancelReceiptFromEvent(ev DecodedEvent) (CancelReceipt, error) {
	if ev.Name != EventOrderCancelled {
		return CancelReceipt{}, fmt.Errorf("expected %s, got %q", EventOrderCancelled, ev.Name)
	}
	a := argReader{args: ev.Args}
	r := CancelReceipt{
		OrderID:            a.bigInt("id"),
		Sender:             a.addr("sender"),
		ReturnedAmount:     a.bigInt("returnedAmount"),
		Commission:         a.bigInt("commission"),
		ReturnedCommission: a.bigInt("returnedCommission"),
		IsBuy:              a.flag("isBuy"),
	}
	if a.err != nil {
		return CancelReceipt{}, fmt.Errorf("malformed %s: %w", EventOrderCancelled, a.err)
	}
	return r, nil
}

// argReader pulls typed values out of a decoded args map, keeping the first error.
type argReader struct {
	args map[string]interface{}
	err  error
}

func (r *argReader) get(name string) interface{} {
	v, ok := r.args[name]
	if !ok && r.err == nil {
		r.err = fmt.Errorf("missing argument %s", name)
	}
	return v
}

func (r *argReader) fail(name string, v interface{}) {
	if r.err == nil {
		r.err = fmt.Errorf("argument %s has type %T", name, v)
	}
}

func (r *argReader) bigInt(name string) *big.Int {
	v := r.get(name)
	b, ok := v.(*big.Int)
	if !ok {
		r.fail(name, v)
		return new(big.Int)
	}
	return b
}

func (r *argReader) addr(name string) common.Address {
	v := r.get(name)
	a, ok := v.(common.Address)
	if !ok {
		r.fail(name, v)
	}
	return a
}

func (r *argReader) u64(name string) uint64 {
	v := r.get(name)
	u, ok := v.(uint64)
	if !ok {
		r.fail(name, v)
	}
	return u
}

func (r *argReader) u8(name string) uint8 {
	v := r.get(name)
	u, ok := v.(uint8)
	if !ok {
		r.fail(name, v)
	}
	return u
}

func (r *argReader) flag(name string) bool {
	v := r.get(name)
	b, ok := v.(bool)
	if !ok {
		r.fail(name, v)
	}
	return b
}
