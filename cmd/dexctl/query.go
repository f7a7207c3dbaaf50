package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/uhyunpark/dexkit/pkg/units"
)

func pairStatusCmd(fs *flag.FlagSet) action {
	pair := addPairFlags(fs)
	return func(ctx context.Context, a *app) error {
		base, secondary, err := pair.resolve(a)
		if err != nil {
			return err
		}
		s, err := a.runner.PairStatus(ctx, base, secondary)
		if err != nil {
			return err
		}
		fmt.Printf("Pair %s / %s\n", base.Hex(), secondary.Hex())
		printStatus("  ", s)
		return nil
	}
}

func tickStageCmd(fs *flag.FlagSet) action {
	pair := addPairFlags(fs)
	return func(ctx context.Context, a *app) error {
		base, secondary, err := pair.resolve(a)
		if err != nil {
			return err
		}
		stage, err := a.runner.TickStage(ctx, base, secondary)
		if err != nil {
			return err
		}
		fmt.Printf("Tick stage: %s (%d)\n", stage, uint8(stage))
		return nil
	}
}

func pausedCmd(fs *flag.FlagSet) action {
	return func(ctx context.Context, a *app) error {
		paused, err := a.runner.IsPaused(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Paused: %v\n", paused)
		return nil
	}
}

func allowanceCmd(fs *flag.FlagSet) action {
	token := fs.String("token", "", "token symbol or address")
	owner := fs.String("owner", "", "owner address")
	spender := fs.String("spender", "", "spender address (default: the exchange)")
	return func(ctx context.Context, a *app) error {
		tok, err := a.token(*token)
		if err != nil {
			return err
		}
		own, err := a.profile.Address(*owner)
		if err != nil {
			return fmt.Errorf("owner: %w", err)
		}
		sp := a.profile.Dex
		if *spender != "" {
			if sp, err = a.profile.Address(*spender); err != nil {
				return fmt.Errorf("spender: %w", err)
			}
		}
		v, err := a.runner.Allowance(ctx, tok, own, sp)
		if err != nil {
			return err
		}
		fmt.Printf("Allowance: %s (%s base units)\n", units.FromWei(v), v)
		return nil
	}
}

func balanceCmd(fs *flag.FlagSet) action {
	token := fs.String("token", "", "token symbol or address (empty for the native balance)")
	owner := fs.String("owner", "", "owner address")
	return func(ctx context.Context, a *app) error {
		own, err := a.profile.Address(*owner)
		if err != nil {
			return fmt.Errorf("owner: %w", err)
		}
		if *token == "" {
			v, err := a.runner.NativeBalance(ctx, own)
			if err != nil {
				return err
			}
			fmt.Printf("Native balance: %s\n", units.FromWei(v))
			return nil
		}
		tok, err := a.token(*token)
		if err != nil {
			return err
		}
		v, err := a.runner.Balance(ctx, tok, own)
		if err != nil {
			return err
		}
		fmt.Printf("Balance: %s (%s base units)\n", units.FromWei(v), v)
		return nil
	}
}

func dexStatusCmd(fs *flag.FlagSet) action {
	return func(ctx context.Context, a *app) error {
		s, err := a.runner.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Exchange %s on %s\n", a.profile.Dex.Hex(), a.profile.Name)
		fmt.Printf("  paused:                %v\n", s.Paused)
		fmt.Printf("  minOrderAmount:        %s\n", units.FromWei(s.MinOrderAmount))
		fmt.Printf("  maxOrderLifespan:      %d\n", s.MaxOrderLifespan)
		fmt.Printf("  expectedOrdersForTick: %d\n", s.TickConfig.ExpectedOrdersForTick)
		fmt.Printf("  maxBlocksForTick:      %d\n", s.TickConfig.MaxBlocksForTick)
		fmt.Printf("  minBlocksForTick:      %d\n", s.TickConfig.MinBlocksForTick)
		if c := s.Commissions; c != nil {
			fmt.Printf("  beneficiary:           %s\n", c.Beneficiary.Hex())
			fmt.Printf("  commissionRate:        %s\n", units.FromWei(c.CommissionRate))
			fmt.Printf("  cancelationPenalty:    %s\n", units.FromWei(c.CancelationPenaltyRate))
			fmt.Printf("  expirationPenalty:     %s\n", units.FromWei(c.ExpirationPenaltyRate))
		}
		for _, p := range s.Pairs {
			fmt.Printf("\nPair %s / %s (%s)\n", p.Pair.Base.Hex(), p.Pair.Secondary.Hex(), p.Stage)
			printStatus("  ", p.Status)
		}
		return nil
	}
}

func commissionsCmd(fs *flag.FlagSet) action {
	token := fs.String("token", "", "token symbol or address")
	return func(ctx context.Context, a *app) error {
		tok, err := a.token(*token)
		if err != nil {
			return err
		}
		v, err := a.runner.Commissions(ctx, tok)
		if err != nil {
			return err
		}
		fmt.Printf("Charged commissions: %s\n", units.FromWei(v))
		return nil
	}
}
