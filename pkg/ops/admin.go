package ops

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexkit/pkg/contracts"
)

var ErrNoGovernor = errors.New("network profile has no governor address")

// DeployChanger sends a contract-creation request built from a changer
// artifact and returns the deployed address.
func (r *Runner) DeployChanger(ctx context.Context, req contracts.TxRequest) (common.Address, Result, error) {
	if req.To != nil {
		return common.Address{}, Result{}, fmt.Errorf("%s: not a contract creation", req.Method)
	}
	res, err := r.send(ctx, req)
	if err != nil || res.Pending() {
		return common.Address{}, res, err
	}
	addr := res.Tx.ContractAddress
	r.log.Infow("changer_deployed", "contract", req.Method, "address", addr.Hex(), "tx", res.Tx.Hash.Hex())
	return addr, res, nil
}

// ExecuteChange asks the governor to run a deployed changer. Only the
// governor owner can do this.
func (r *Runner) ExecuteChange(ctx context.Context, changer common.Address) (Result, error) {
	if r.governor == nil {
		return Result{}, ErrNoGovernor
	}
	req, err := r.governor.ExecuteChange(changer)
	if err != nil {
		return Result{}, err
	}
	owner, err := r.governor.Owner(ctx)
	if err == nil && owner != r.net.From() {
		r.log.Warnw("governor_owner_mismatch", "owner", owner.Hex(), "signer", r.net.From().Hex())
	}
	return r.send(ctx, req)
}

// WithdrawCommissions moves the accrued commissions of token to the beneficiary.
func (r *Runner) WithdrawCommissions(ctx context.Context, token common.Address) (Result, error) {
	req, err := r.exchange.WithdrawCommissions(token)
	if err != nil {
		return Result{}, err
	}
	return r.send(ctx, req)
}
