package ops

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexkit/pkg/contracts"
)

// Approve lets spender (usually the exchange) pull amount of token from the signer.
func (r *Runner) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (Result, error) {
	req, err := r.token(token).Approve(spender, amount)
	if err != nil {
		return Result{}, err
	}
	res, err := r.send(ctx, req)
	if err != nil || res.Pending() {
		return res, err
	}
	r.expectAmount(res, contracts.EventApproval, "value", amount)
	return res, nil
}

// Wrap deposits amount of the native currency into the wrap token.
func (r *Runner) Wrap(ctx context.Context, token common.Address, amount *big.Int) (Result, error) {
	req, err := r.token(token).Deposit(amount)
	if err != nil {
		return Result{}, err
	}
	res, err := r.send(ctx, req)
	if err != nil || res.Pending() {
		return res, err
	}
	r.expectAmount(res, contracts.EventDeposit, "wad", amount)
	return res, nil
}

// Unwrap withdraws amount of the wrap token back to the native currency.
func (r *Runner) Unwrap(ctx context.Context, token common.Address, amount *big.Int) (Result, error) {
	req, err := r.token(token).Withdraw(amount)
	if err != nil {
		return Result{}, err
	}
	res, err := r.send(ctx, req)
	if err != nil || res.Pending() {
		return res, err
	}
	r.expectAmount(res, contracts.EventWithdrawal, "wad", amount)
	return res, nil
}

// expectAmount logs when the operation's event is missing or reports a
// different amount than requested.
func (r *Runner) expectAmount(res Result, event, arg string, want *big.Int) {
	evs := contracts.Filter(res.Events, event)
	if len(evs) == 0 {
		r.log.Warnw("event_missing", "op", res.Op, "event", event, "tx", res.Tx.Hash.Hex())
		return
	}
	got, _ := evs[0].Args[arg].(*big.Int)
	if got == nil || got.Cmp(want) != 0 {
		r.log.Warnw("event_amount_mismatch", "op", res.Op, "event", event, "want", want.String(), "got", fmt.Sprint(got))
		return
	}
	r.log.Infow("op_completed", "op", res.Op, "amount", want.String(), "tx", res.Tx.Hash.Hex())
}

func (r *Runner) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return r.token(token).Allowance(ctx, owner, spender)
}

func (r *Runner) Balance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return r.token(token).BalanceOf(ctx, owner)
}

// NativeBalance is the account's balance of the chain currency.
func (r *Runner) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return r.net.BalanceAt(ctx, owner)
}
