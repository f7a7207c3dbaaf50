// Command dexctl runs single exchange operations against a configured network:
// token approvals, wrapping, order insertion and cancellation, state queries
// and governance changes. Results go to stdout, logs to stderr (and LOG_FILE).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/dexkit/params"
	"github.com/uhyunpark/dexkit/pkg/crypto"
	"github.com/uhyunpark/dexkit/pkg/journal"
	"github.com/uhyunpark/dexkit/pkg/network"
	"github.com/uhyunpark/dexkit/pkg/ops"
	"github.com/uhyunpark/dexkit/pkg/submitter"
	"github.com/uhyunpark/dexkit/pkg/util"
)

// action runs after flags are parsed and the network is connected.
type action func(ctx context.Context, a *app) error

type command struct {
	summary string
	signer  bool // needs ACCOUNT_PK_SECRET / ACCOUNT_MNEMONIC
	flags   func(fs *flag.FlagSet) action
}

var commands = map[string]command{
	"approve":              {"Approve a spender (the exchange by default) for a token amount", true, approveCmd},
	"wrap":                 {"Wrap native currency into the wrapped token", true, wrapCmd},
	"unwrap":               {"Unwrap the wrapped token back to native currency", true, unwrapCmd},
	"buy-limit":            {"Insert a buy limit order", true, limitCmd(true)},
	"sell-limit":           {"Insert a sell limit order", true, limitCmd(false)},
	"buy-market":           {"Insert a buy market order", true, marketCmd(true)},
	"sell-market":          {"Insert a sell market order", true, marketCmd(false)},
	"cancel-buy":           {"Cancel one of your buy orders", true, cancelCmd(true)},
	"cancel-sell":          {"Cancel one of your sell orders", true, cancelCmd(false)},
	"deploy-changer":       {"Deploy a governance changer from a compiled artifact", true, deployChangerCmd},
	"execute-change":       {"Ask the governor to execute a deployed changer", true, executeChangeCmd},
	"withdraw-commissions": {"Withdraw accrued commissions of a token to the beneficiary", true, withdrawCommissionsCmd},
	"pending":              {"List journaled transactions without a final outcome", true, pendingCmd},
	"pair-status":          {"Show a pair's status", false, pairStatusCmd},
	"tick-stage":           {"Show a pair's tick stage", false, tickStageCmd},
	"paused":               {"Show whether the exchange is paused", false, pausedCmd},
	"allowance":            {"Show a token allowance", false, allowanceCmd},
	"balance":              {"Show a token balance (or the native balance)", false, balanceCmd},
	"dex-status":           {"Show exchange parameters and every listed pair", false, dexStatusCmd},
	"commissions":          {"Show commissions charged in a token and not yet withdrawn", false, commissionsCmd},
}

type globals struct {
	network string
	config  string
	envFile string
	rpc     string
	timeout time.Duration
}

func addGlobals(fs *flag.FlagSet) *globals {
	g := &globals{}
	fs.StringVar(&g.network, "network", "", "network profile (default $DEX_NETWORK)")
	fs.StringVar(&g.config, "config", "", "networks file (default $DEX_CONFIG)")
	fs.StringVar(&g.envFile, "env", "", ".env file to load (default ./.env)")
	fs.StringVar(&g.rpc, "rpc", "", "override the profile's rpc uri")
	fs.DurationVar(&g.timeout, "timeout", 0, "confirmation timeout (default $DEX_AWAIT_TIMEOUT_S)")
	return g
}

// app is what every action works with.
type app struct {
	profile params.NetworkProfile
	log     *zap.SugaredLogger
	net     *network.Context
	runner  *ops.Runner
	journal journal.Journal
}

func (a *app) Close() {
	a.net.Close()
	if err := a.journal.Close(); err != nil {
		a.log.Warnw("journal_close_failed", "error", err)
	}
}

func open(ctx context.Context, g *globals, needSigner bool) (*app, *zap.Logger, error) {
	cfg, err := params.Load(g.envFile, g.config)
	if err != nil {
		return nil, nil, err
	}
	if g.network != "" {
		cfg.Network = g.network
	}
	if g.rpc != "" {
		cfg.RPCURL = g.rpc
	}

	logger, err := util.SetupLogger(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	sugar := logger.Sugar()

	profile, err := params.Resolve(cfg, cfg.Network)
	if err != nil {
		return nil, logger, err
	}

	var signer *crypto.Signer
	if needSigner {
		if signer, err = crypto.SignerFromEnv(); err != nil {
			return nil, logger, err
		}
	}

	nc, err := network.Connect(ctx, profile, signer, sugar)
	if err != nil {
		return nil, logger, err
	}
	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		nc.Close()
		return nil, logger, fmt.Errorf("failed to open journal: %w", err)
	}

	sub := submitter.New(nc, submitter.WithJournal(j))
	opts := []ops.Option{ops.WithJournal(j)}
	if g.timeout > 0 {
		opts = append(opts, ops.WithTimeout(g.timeout))
	}
	return &app{
		profile: profile,
		log:     sugar,
		net:     nc,
		runner:  ops.NewRunner(nc, sub, opts...),
		journal: j,
	}, logger, nil
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		usage()
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", name)
		usage()
		os.Exit(1)
	}

	fs := flag.NewFlagSet("dexctl "+name, flag.ExitOnError)
	g := addGlobals(fs)
	act := cmd.flags(fs)
	fs.Parse(os.Args[2:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, name, g, cmd, act))
}

func run(ctx context.Context, name string, g *globals, cmd command, act action) int {
	a, logger, err := open(ctx, g, cmd.signer)
	if logger != nil {
		defer logger.Sync()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer a.Close()

	if err := act(ctx, a); err != nil {
		a.log.Errorw("command_failed", "command", name, "error", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}

var errUsage = errors.New("usage")

func usage() {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)

	fmt.Fprintln(os.Stderr, "Usage: dexctl <command> [flags]\n\nCommands:")
	for _, n := range names {
		fmt.Fprintf(os.Stderr, "  %-22s %s\n", n, commands[n].summary)
	}
	fmt.Fprintln(os.Stderr, "\nRun 'dexctl <command> -h' for the command's flags.")
	fmt.Fprintln(os.Stderr, "Signing commands read ACCOUNT_PK_SECRET or ACCOUNT_MNEMONIC from the environment.")
}
