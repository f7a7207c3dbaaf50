package ops

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexkit/pkg/contracts"
)

var ErrNoCommissionManager = errors.New("network profile has no commission manager address")

func (r *Runner) PairStatus(ctx context.Context, base, secondary common.Address) (contracts.PairStatus, error) {
	return r.exchange.PairStatus(ctx, base, secondary)
}

func (r *Runner) IsPaused(ctx context.Context) (bool, error) {
	return r.exchange.IsPaused(ctx)
}

func (r *Runner) TickStage(ctx context.Context, base, secondary common.Address) (contracts.TickStage, error) {
	return r.exchange.TickStage(ctx, base, secondary)
}

type PairSnapshot struct {
	Pair   contracts.Pair       `json:"pair"`
	Stage  contracts.TickStage  `json:"tickStage"`
	Status contracts.PairStatus `json:"status"`
}

// DexStatus is an overview of the exchange's parameters and listed pairs.
type DexStatus struct {
	Paused           bool                       `json:"paused"`
	MinOrderAmount   *big.Int                   `json:"minOrderAmount"`
	MaxOrderLifespan uint64                     `json:"maxOrderLifespan"`
	TickConfig       contracts.TickConfig       `json:"tickConfig"`
	Pairs            []PairSnapshot             `json:"pairs"`
	Commissions      *contracts.CommissionRates `json:"commissions,omitempty"`
}

// Status reads the exchange parameters, then the status and tick stage of
// every listed pair. Commission rates are included when the profile names a
// commission manager.
func (r *Runner) Status(ctx context.Context) (DexStatus, error) {
	var (
		s   DexStatus
		err error
	)
	if s.Paused, err = r.exchange.IsPaused(ctx); err != nil {
		return s, fmt.Errorf("paused: %w", err)
	}
	if s.MinOrderAmount, err = r.exchange.MinOrderAmount(ctx); err != nil {
		return s, fmt.Errorf("minOrderAmount: %w", err)
	}
	if s.MaxOrderLifespan, err = r.exchange.MaxOrderLifespan(ctx); err != nil {
		return s, fmt.Errorf("maxOrderLifespan: %w", err)
	}
	if s.TickConfig, err = r.exchange.TickConfig(ctx); err != nil {
		return s, fmt.Errorf("tickConfig: %w", err)
	}

	pairs, err := r.exchange.TokenPairs(ctx)
	if err != nil {
		return s, fmt.Errorf("getTokenPairs: %w", err)
	}
	s.Pairs = make([]PairSnapshot, 0, len(pairs))
	for _, p := range pairs {
		status, err := r.exchange.PairStatus(ctx, p.Base, p.Secondary)
		if err != nil {
			return s, fmt.Errorf("pair %s/%s: %w", p.Base.Hex(), p.Secondary.Hex(), err)
		}
		stage, err := r.exchange.TickStage(ctx, p.Base, p.Secondary)
		if err != nil {
			return s, fmt.Errorf("pair %s/%s: %w", p.Base.Hex(), p.Secondary.Hex(), err)
		}
		s.Pairs = append(s.Pairs, PairSnapshot{Pair: p, Stage: stage, Status: status})
	}

	if r.commission != nil {
		rates, err := r.commission.Rates(ctx)
		if err != nil {
			return s, fmt.Errorf("commission rates: %w", err)
		}
		s.Commissions = &rates
	}
	return s, nil
}

// Commissions is the commission charged in token and not yet withdrawn.
func (r *Runner) Commissions(ctx context.Context, token common.Address) (*big.Int, error) {
	if r.commission == nil {
		return nil, ErrNoCommissionManager
	}
	return r.commission.ChargedCommissions(ctx, token)
}
