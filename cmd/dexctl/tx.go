package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexkit/pkg/contracts"
	"github.com/uhyunpark/dexkit/pkg/ops"
	"github.com/uhyunpark/dexkit/pkg/units"
)

const defaultLifespan = 7

func approveCmd(fs *flag.FlagSet) action {
	token := fs.String("token", "", "token symbol or address")
	spender := fs.String("spender", "", "spender address (default: the exchange)")
	amount := fs.String("amount", "", "amount in token units, e.g. 0.001")
	return func(ctx context.Context, a *app) error {
		tok, err := a.token(*token)
		if err != nil {
			return err
		}
		sp := a.profile.Dex
		if *spender != "" {
			if sp, err = a.profile.Address(*spender); err != nil {
				return fmt.Errorf("spender: %w", err)
			}
		}
		amt, err := parseAmount("amount", *amount)
		if err != nil {
			return err
		}
		res, err := a.runner.Approve(ctx, tok, sp, amt)
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	}
}

func wrapCmd(fs *flag.FlagSet) action {
	token := fs.String("token", "WRBTC", "wrapped token symbol or address")
	amount := fs.String("amount", "", "native amount to wrap")
	return func(ctx context.Context, a *app) error {
		tok, err := a.token(*token)
		if err != nil {
			return err
		}
		amt, err := parseAmount("amount", *amount)
		if err != nil {
			return err
		}
		res, err := a.runner.Wrap(ctx, tok, amt)
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	}
}

func unwrapCmd(fs *flag.FlagSet) action {
	token := fs.String("token", "WRBTC", "wrapped token symbol or address")
	amount := fs.String("amount", "", "wrapped amount to unwrap")
	return func(ctx context.Context, a *app) error {
		tok, err := a.token(*token)
		if err != nil {
			return err
		}
		amt, err := parseAmount("amount", *amount)
		if err != nil {
			return err
		}
		res, err := a.runner.Unwrap(ctx, tok, amt)
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	}
}

type pairFlags struct {
	base, secondary *string
}

func addPairFlags(fs *flag.FlagSet) pairFlags {
	return pairFlags{
		base:      fs.String("base", "DOC", "base token symbol or address"),
		secondary: fs.String("secondary", "WRBTC", "secondary token symbol or address"),
	}
}

func (p pairFlags) resolve(a *app) (common.Address, common.Address, error) {
	base, err := a.token(*p.base)
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("base: %w", err)
	}
	secondary, err := a.token(*p.secondary)
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("secondary: %w", err)
	}
	return base, secondary, nil
}

// limitCmd inserts a limit order. For a buy, -amount is in secondary tokens
// and the order locks amount * price base tokens; for a sell it locks -amount
// secondary tokens.
func limitCmd(buy bool) func(fs *flag.FlagSet) action {
	return func(fs *flag.FlagSet) action {
		pair := addPairFlags(fs)
		amount := fs.String("amount", "", "amount of secondary token")
		price := fs.String("price", "", "price in base token per secondary token")
		lifespan := fs.Uint64("lifespan", defaultLifespan, "lifespan in ticks")
		return func(ctx context.Context, a *app) error {
			base, secondary, err := pair.resolve(a)
			if err != nil {
				return err
			}
			amt, err := parseAmount("amount", *amount)
			if err != nil {
				return err
			}
			px, err := parseAmount("price", *price)
			if err != nil {
				return err
			}
			var res ops.OrderResult
			if buy {
				locked := units.MulPrice(amt, px)
				fmt.Printf("Locking %s base tokens (%s x %s)\n", units.FromWei(locked), *amount, *price)
				res, err = a.runner.InsertBuyLimitOrder(ctx, base, secondary, locked, px, *lifespan)
			} else {
				res, err = a.runner.InsertSellLimitOrder(ctx, base, secondary, amt, px, *lifespan)
			}
			if err != nil {
				return err
			}
			printOrder(res)
			return nil
		}
	}
}

// marketCmd inserts a market order. -amount is what the order locks: base
// tokens for a buy, secondary tokens for a sell.
func marketCmd(buy bool) func(fs *flag.FlagSet) action {
	return func(fs *flag.FlagSet) action {
		pair := addPairFlags(fs)
		amount := fs.String("amount", "", "amount locked by the order")
		factor := fs.String("multiply-factor", "", "market price multiplier, e.g. 1.01")
		deviation := fs.String("deviation", "", "market price deviation in percent, e.g. 1 or -10 (instead of -multiply-factor)")
		lifespan := fs.Uint64("lifespan", defaultLifespan, "lifespan in ticks")
		return func(ctx context.Context, a *app) error {
			base, secondary, err := pair.resolve(a)
			if err != nil {
				return err
			}
			amt, err := parseAmount("amount", *amount)
			if err != nil {
				return err
			}
			var mf *big.Int
			switch {
			case *factor != "" && *deviation != "":
				return fmt.Errorf("%w: give -multiply-factor or -deviation, not both", errUsage)
			case *deviation != "":
				mf, err = units.MultiplyFactorFromPercent(*deviation)
			case *factor != "":
				mf, err = units.ToWei(*factor)
			default:
				mf, err = units.ToWei("1.01")
			}
			if err != nil {
				return err
			}
			var res ops.OrderResult
			if buy {
				res, err = a.runner.InsertBuyMarketOrder(ctx, base, secondary, amt, mf, *lifespan)
			} else {
				res, err = a.runner.InsertSellMarketOrder(ctx, base, secondary, amt, mf, *lifespan)
			}
			if err != nil {
				return err
			}
			printOrder(res)
			return nil
		}
	}
}

func cancelCmd(buy bool) func(fs *flag.FlagSet) action {
	return func(fs *flag.FlagSet) action {
		pair := addPairFlags(fs)
		id := fs.String("id", "", "order id")
		hint := fs.String("hint", "0", "previous order id hint (0 for none)")
		return func(ctx context.Context, a *app) error {
			base, secondary, err := pair.resolve(a)
			if err != nil {
				return err
			}
			orderID, err := parseInt("id", *id)
			if err != nil {
				return err
			}
			prev, err := parseInt("hint", *hint)
			if err != nil {
				return err
			}
			var res ops.CancelResult
			if buy {
				res, err = a.runner.CancelBuyOrder(ctx, base, secondary, orderID, prev)
			} else {
				res, err = a.runner.CancelSellOrder(ctx, base, secondary, orderID, prev)
			}
			printCancel(res)
			return err
		}
	}
}

// changerKinds lists what -kind accepts and what -value means for each.
var changerKinds = []struct{ name, value string }{
	{"max-order-lifespan", "ticks (or -max-order-lifespan)"},
	{"min-order-amount", "amount, e.g. 0.001"},
	{"expected-orders-for-tick", "order count"},
	{"max-blocks-for-tick", "block count"},
	{"min-blocks-for-tick", "block count"},
	{"commission-rate", "rate, e.g. 0.001"},
	{"cancelation-penalty-rate", "rate, e.g. 0.5"},
	{"expiration-penalty-rate", "rate, e.g. 0.25"},
	{"beneficiary", "beneficiary address"},
	{"enable-pair", "unused; -base and -secondary"},
	{"disable-pair", "unused; -base and -secondary"},
	{"last-closing-price", "price; with -base and -secondary"},
	{"governance-set", "unused; -governor -stopper -upgrade-delegator -proxy-admin"},
	{"add-pair", "unused; -base -secondary -init-price -price-precision"},
}

func changerKindUsage() string {
	var b strings.Builder
	b.WriteString("changer kind; -value per kind:")
	for _, k := range changerKinds {
		fmt.Fprintf(&b, "\n    %-25s %s", k.name, k.value)
	}
	return b.String()
}

func deployChangerCmd(fs *flag.FlagSet) action {
	artifact := fs.String("artifact", "", "compiled changer artifact (json with abi and bytecode)")
	kind := fs.String("kind", "max-order-lifespan", changerKindUsage())
	value := fs.String("value", "", "new setting value (see -kind)")
	lifespan := fs.Uint64("max-order-lifespan", 0, "new maximum order lifespan (max-order-lifespan)")
	pair := addPairFlags(fs)
	initPrice := fs.String("init-price", "", "initial price of the new pair (add-pair)")
	precision := fs.String("price-precision", "1", "price precision of the new pair (add-pair)")
	governor := fs.String("governor", "", "new governor (governance-set, default: the network governor)")
	stopper := fs.String("stopper", "", "new stopper (governance-set)")
	delegator := fs.String("upgrade-delegator", "", "upgrade delegator (governance-set)")
	proxyAdmin := fs.String("proxy-admin", "", "new proxy admin (governance-set)")
	execute := fs.Bool("execute", false, "ask the governor to execute the changer once it is mined")
	return func(ctx context.Context, a *app) error {
		if *artifact == "" {
			return fmt.Errorf("%w: -artifact is required", errUsage)
		}
		art, err := contracts.LoadArtifact(*artifact)
		if err != nil {
			return err
		}

		var req contracts.TxRequest
		switch *kind {
		case "max-order-lifespan":
			n := *lifespan
			if *value != "" {
				v, perr := parseInt("value", *value)
				if perr != nil {
					return perr
				}
				if !v.IsUint64() {
					return fmt.Errorf("value: %s does not fit in uint64", v)
				}
				n = v.Uint64()
			}
			req, err = contracts.DeployMaxOrderLifespanChanger(art, a.profile.Dex, n)
		case "min-order-amount":
			amt, perr := parseAmount("value", *value)
			if perr != nil {
				return perr
			}
			req, err = contracts.DeploySettingChanger(art, a.profile.Dex, amt)
		case "expected-orders-for-tick", "max-blocks-for-tick", "min-blocks-for-tick":
			n, perr := parseInt("value", *value)
			if perr != nil {
				return perr
			}
			req, err = contracts.DeploySettingChanger(art, a.profile.Dex, n)
		case "commission-rate", "cancelation-penalty-rate", "expiration-penalty-rate":
			rate, perr := parseAmount("value", *value)
			if perr != nil {
				return perr
			}
			req, err = contracts.DeploySettingChanger(art, a.profile.CommissionManager, rate)
		case "beneficiary":
			if *value == "" {
				return fmt.Errorf("%w: -value is required", errUsage)
			}
			addr, perr := a.profile.Address(*value)
			if perr != nil {
				return fmt.Errorf("value: %w", perr)
			}
			req, err = contracts.DeploySettingChanger(art, a.profile.CommissionManager, addr)
		case "enable-pair", "disable-pair":
			base, secondary, perr := pair.resolve(a)
			if perr != nil {
				return perr
			}
			req, err = contracts.DeployPairChanger(art, a.profile.Dex, base, secondary)
		case "last-closing-price":
			base, secondary, perr := pair.resolve(a)
			if perr != nil {
				return perr
			}
			price, perr := parseAmount("value", *value)
			if perr != nil {
				return perr
			}
			req, err = contracts.DeployLastClosingPriceChanger(art, a.profile.Dex, base, secondary, price)
		case "governance-set":
			set := contracts.GovernanceSet{Governor: a.profile.Governor}
			for _, role := range []struct {
				name string
				raw  string
				dst  *common.Address
			}{
				{"governor", *governor, &set.Governor},
				{"stopper", *stopper, &set.Stopper},
				{"upgrade-delegator", *delegator, &set.UpgradeDelegator},
				{"proxy-admin", *proxyAdmin, &set.ProxyAdmin},
			} {
				if role.raw == "" {
					continue
				}
				addr, perr := a.profile.Address(role.raw)
				if perr != nil {
					return fmt.Errorf("%s: %w", role.name, perr)
				}
				*role.dst = addr
			}
			req, err = contracts.DeployGovernanceSetChanger(art, a.profile.Dex, set)
		case "add-pair":
			base, secondary, perr := pair.resolve(a)
			if perr != nil {
				return perr
			}
			price, perr := parseAmount("init-price", *initPrice)
			if perr != nil {
				return perr
			}
			prec, perr := parseAmount("price-precision", *precision)
			if perr != nil {
				return perr
			}
			req, err = contracts.DeployAddTokenPairChanger(art, a.profile.Dex, []contracts.TokenPairListing{
				{Base: base, Secondary: secondary, InitPrice: price, PricePrecision: prec},
			})
		default:
			return fmt.Errorf("%w: unknown changer kind %q", errUsage, *kind)
		}
		if err != nil {
			return err
		}

		addr, res, err := a.runner.DeployChanger(ctx, req)
		if err != nil {
			return err
		}
		printResult(res)
		if res.Pending() {
			if *execute {
				fmt.Println("Deployment not confirmed; run 'dexctl execute-change' once it is mined.")
			}
			return nil
		}
		fmt.Printf("Changer deployed at %s\n", addr.Hex())
		if !*execute {
			fmt.Printf("Next: dexctl execute-change -changer %s\n", addr.Hex())
			return nil
		}
		exec, err := a.runner.ExecuteChange(ctx, addr)
		if err != nil {
			return fmt.Errorf("changer %s deployed but not executed: %w", addr.Hex(), err)
		}
		printResult(exec)
		return nil
	}
}

func executeChangeCmd(fs *flag.FlagSet) action {
	changer := fs.String("changer", "", "deployed changer address")
	return func(ctx context.Context, a *app) error {
		addr, err := a.profile.Address(*changer)
		if err != nil {
			return fmt.Errorf("changer: %w", err)
		}
		res, err := a.runner.ExecuteChange(ctx, addr)
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	}
}

func withdrawCommissionsCmd(fs *flag.FlagSet) action {
	token := fs.String("token", "", "token symbol or address")
	return func(ctx context.Context, a *app) error {
		tok, err := a.token(*token)
		if err != nil {
			return err
		}
		res, err := a.runner.WithdrawCommissions(ctx, tok)
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	}
}

func pendingCmd(fs *flag.FlagSet) action {
	return func(ctx context.Context, a *app) error {
		entries, err := a.runner.ListPending()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No pending transactions.")
			return nil
		}
		fmt.Printf("%-8s %-68s %-24s %s\n", "Nonce", "Hash", "Method", "Submitted")
		for _, e := range entries {
			fmt.Printf("%-8d %-68s %-24s %s\n", e.Nonce, e.Hash.Hex(), e.Method, e.SubmittedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	}
}

func (a *app) token(s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, fmt.Errorf("%w: -token is required", errUsage)
	}
	return a.profile.Token(s)
}

func parseAmount(name, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: -%s is required", errUsage, name)
	}
	v, err := units.ToWei(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func parseInt(name, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: -%s is required", errUsage, name)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid integer %q", name, s)
	}
	return v, nil
}
