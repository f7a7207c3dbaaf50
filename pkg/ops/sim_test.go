package ops

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/dexkit/params"
	"github.com/uhyunpark/dexkit/pkg/chaintest"
	"github.com/uhyunpark/dexkit/pkg/contracts"
	"github.com/uhyunpark/dexkit/pkg/crypto"
	"github.com/uhyunpark/dexkit/pkg/journal"
	"github.com/uhyunpark/dexkit/pkg/network"
	"github.com/uhyunpark/dexkit/pkg/submitter"
	"github.com/uhyunpark/dexkit/pkg/util"
)

var (
	dexAddr      = common.HexToAddress("0xA066d6e20e122deB1139FA3Ae3e96d04578c67B5")
	doc          = common.HexToAddress("0xCB46c0ddc60D18eFEB0E586C17Af6ea36452Dae0")
	wrbtc        = common.HexToAddress("0x09B6Ca5E4496238a1F176aEA6bB607db96C2286E")
	governorAddr = common.HexToAddress("0x7bA66cB9b83b605D1ADbE60feA29B633aB3b29fd")
	commissionMg = common.HexToAddress("0x3333333333333333333333333333333333333333")
	stranger     = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

const testKey = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

const maxLifespan = 120

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad literal " + s)
	}
	return v
}

type allowanceKey struct{ token, owner, spender common.Address }

// simDex mines the toolkit's transactions the way the deployed contracts
// would: it keeps allowances, wrap balances and open orders and emits the
// matching events. Commission is 514/14000 of the locked amount, the ratio
// seen on testnet.
type simDex struct {
	mu         sync.Mutex
	allowances map[allowanceKey]*big.Int
	balances   map[common.Address]*big.Int
	orders     map[string]contracts.OrderReceipt
	nextID     int64
	// cancelSender overrides the sender reported in OrderCancelled.
	cancelSender *common.Address
}

func newSimDex() *simDex {
	return &simDex{
		allowances: make(map[allowanceKey]*big.Int),
		balances:   make(map[common.Address]*big.Int),
		orders:     make(map[string]contracts.OrderReceipt),
		nextID:     162,
	}
}

func commissionOf(amount *big.Int) *big.Int {
	c := new(big.Int).Mul(amount, big.NewInt(514))
	return c.Div(c, big.NewInt(14000))
}

func (s *simDex) mine(tx *types.Transaction, from common.Address) *types.Receipt {
	ok := &types.Receipt{Status: types.ReceiptStatusSuccessful}
	if tx.To() == nil {
		return ok
	}
	to := *tx.To()
	data := tx.Data()

	var parsed abi.ABI
	switch to {
	case dexAddr:
		parsed = contracts.ExchangeABI
	case governorAddr:
		parsed = contracts.GovernorABI
	default:
		parsed = contracts.TokenABI
	}
	if len(data) < 4 {
		return &types.Receipt{Status: types.ReceiptStatusFailed}
	}
	m, err := parsed.MethodById(data[:4])
	if err != nil {
		return &types.Receipt{Status: types.ReceiptStatusFailed}
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return &types.Receipt{Status: types.ReceiptStatusFailed}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch m.Name {
	case "approve":
		spender, value := args[0].(common.Address), args[1].(*big.Int)
		s.allowances[allowanceKey{to, from, spender}] = value
		ok.Logs = append(ok.Logs, chaintest.EventLog(contracts.TokenABI, contracts.EventApproval, to, []interface{}{from, spender}, value))
	case "deposit":
		s.credit(from, tx.Value())
		ok.Logs = append(ok.Logs, chaintest.EventLog(contracts.TokenABI, contracts.EventDeposit, to, []interface{}{from}, tx.Value()))
	case "withdraw":
		wad := args[0].(*big.Int)
		s.credit(from, new(big.Int).Neg(wad))
		ok.Logs = append(ok.Logs, chaintest.EventLog(contracts.TokenABI, contracts.EventWithdrawal, to, []interface{}{from}, wad))
	case "insertBuyLimitOrder", "insertSellLimitOrder", "insertMarketOrder":
		ok.Logs = append(ok.Logs, s.insert(m.Name, args, from))
	case "cancelBuyOrder", "cancelSellOrder":
		id := args[2].(*big.Int)
		order, found := s.orders[id.String()]
		if !found {
			return &types.Receipt{Status: types.ReceiptStatusFailed}
		}
		delete(s.orders, id.String())
		sender := from
		if s.cancelSender != nil {
			sender = *s.cancelSender
		}
		ok.Logs = append(ok.Logs, chaintest.EventLog(contracts.ExchangeABI, contracts.EventOrderCancelled, dexAddr,
			[]interface{}{id, sender},
			order.ExchangeableAmount, new(big.Int), order.ReservedCommission, order.IsBuy,
		))
	}
	return ok
}

func (s *simDex) credit(owner common.Address, delta *big.Int) {
	bal, ok := s.balances[owner]
	if !ok {
		bal = new(big.Int)
	}
	s.balances[owner] = new(big.Int).Add(bal, delta)
}

func (s *simDex) insert(method string, args []interface{}, from common.Address) *types.Log {
	base, secondary := args[0].(common.Address), args[1].(common.Address)
	amount := args[2].(*big.Int)
	price, mf := new(big.Int), new(big.Int)
	var (
		lifespan  uint64
		isBuy     bool
		orderType uint8
	)
	switch method {
	case "insertMarketOrder":
		mf = args[3].(*big.Int)
		lifespan = args[4].(uint64)
		isBuy = args[5].(bool)
		orderType = uint8(contracts.MarketOrder)
	default:
		price = args[3].(*big.Int)
		lifespan = args[4].(uint64)
		isBuy = method == "insertBuyLimitOrder"
	}
	commission := commissionOf(amount)
	exchangeable := new(big.Int).Sub(amount, commission)

	id := big.NewInt(s.nextID)
	s.nextID++
	s.orders[id.String()] = contracts.OrderReceipt{
		OrderID: id, Sender: from, ExchangeableAmount: exchangeable, ReservedCommission: commission, IsBuy: isBuy,
	}
	return chaintest.EventLog(contracts.ExchangeABI, contracts.EventNewOrderInserted, dexAddr,
		[]interface{}{id, from},
		base, secondary, exchangeable, commission, price, mf, lifespan+60, isBuy, orderType,
	)
}

func (s *simDex) allowance(token, owner, spender common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.allowances[allowanceKey{token, owner, spender}]; ok {
		return v
	}
	return new(big.Int)
}

func (s *simDex) balance(owner common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.balances[owner]; ok {
		return v
	}
	return new(big.Int)
}

func (s *simDex) hasOrder(id *big.Int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.orders[id.String()]
	return ok
}

type harness struct {
	backend *chaintest.Backend
	sim     *simDex
	net     *network.Context
	runner  *Runner
	journal *journal.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	signer, err := crypto.FromPrivateKeyHex(testKey)
	require.NoError(t, err)
	return newHarnessWithSigner(t, signer)
}

func newHarnessWithSigner(t *testing.T, signer *crypto.Signer) *harness {
	t.Helper()
	backend := chaintest.NewBackend(31)
	sim := newSimDex()
	backend.Mine = sim.mine

	backend.Returns(dexAddr, contracts.ExchangeABI, "maxOrderLifespan", uint64(maxLifespan))
	backend.Returns(dexAddr, contracts.ExchangeABI, "paused", false)
	for _, tok := range []common.Address{doc, wrbtc} {
		tok := tok
		backend.Handle(tok, contracts.TokenABI, "allowance", func(_ common.Address, args []interface{}) ([]interface{}, error) {
			return []interface{}{sim.allowance(tok, args[0].(common.Address), args[1].(common.Address))}, nil
		})
	}
	backend.Handle(wrbtc, contracts.TokenABI, "balanceOf", func(_ common.Address, args []interface{}) ([]interface{}, error) {
		return []interface{}{sim.balance(args[0].(common.Address))}, nil
	})
	cancelCheck := func(_ common.Address, args []interface{}) ([]interface{}, error) {
		if !sim.hasOrder(args[2].(*big.Int)) {
			return nil, &chaintest.RevertError{Reason: "Order not found"}
		}
		return nil, nil
	}
	backend.Handle(dexAddr, contracts.ExchangeABI, "cancelBuyOrder", cancelCheck)
	backend.Handle(dexAddr, contracts.ExchangeABI, "cancelSellOrder", cancelCheck)

	profile := params.NetworkProfile{
		Name:              "test",
		RPCURL:            "http://node.test",
		ChainID:           big.NewInt(31),
		Dex:               dexAddr,
		Governor:          governorAddr,
		CommissionManager: commissionMg,
		Tokens:            map[string]common.Address{"DOC": doc, "WRBTC": wrbtc},
		Tx: params.Tx{
			Confirmations:    1,
			GasMultiplierPct: 110,
			PollInterval:     time.Second,
			AwaitTimeout:     time.Minute,
		},
	}
	dial := func(context.Context, string) (network.Backend, error) { return backend, nil }
	nc, err := network.Connect(context.Background(), profile, signer, nil, network.WithDialer(dial))
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	store, err := journal.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := util.NewStepClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	sub := submitter.New(nc, submitter.WithClock(clock), submitter.WithJournal(store))
	return &harness{
		backend: backend,
		sim:     sim,
		net:     nc,
		runner:  NewRunner(nc, sub, WithJournal(store)),
		journal: store,
	}
}
