// Command dexgw serves the read-only HTTP/WebSocket gateway for one network.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/uhyunpark/dexkit/params"
	"github.com/uhyunpark/dexkit/pkg/api"
	"github.com/uhyunpark/dexkit/pkg/network"
	"github.com/uhyunpark/dexkit/pkg/ops"
	"github.com/uhyunpark/dexkit/pkg/submitter"
	"github.com/uhyunpark/dexkit/pkg/util"
)

func main() {
	envFile := flag.String("env", "", ".env file to load (default ./.env)")
	configPath := flag.String("config", "", "networks file (default $DEX_CONFIG)")
	networkName := flag.String("network", "", "network profile (default $DEX_NETWORK)")
	addr := flag.String("addr", "", "listen address (default $DEX_GATEWAY_ADDR)")
	flag.Parse()

	cfg, err := params.Load(*envFile, *configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *networkName != "" {
		cfg.Network = *networkName
	}
	if *addr != "" {
		cfg.Gateway.ListenAddr = *addr
	}

	logger, err := util.SetupLogger(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	profile, err := params.Resolve(cfg, cfg.Network)
	if err != nil {
		sugar.Fatalw("profile_invalid", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// No signer: the gateway only reads.
	nc, err := network.Connect(ctx, profile, nil, sugar)
	if err != nil {
		sugar.Fatalw("network_connect_failed", "err", err)
	}
	defer nc.Close()

	runner := ops.NewRunner(nc, submitter.New(nc))
	server := api.NewServer(runner, profile, cfg.Gateway, sugar)

	sugar.Infow("gateway_starting",
		"network", profile.Name,
		"dex", profile.Dex.Hex(),
		"origins", cfg.Gateway.AllowedOrigins,
		"poll_interval_ms", cfg.Tx.PollInterval.Milliseconds())

	if err := server.Start(ctx, cfg.Gateway.ListenAddr, cfg.Tx.PollInterval); err != nil {
		sugar.Fatalw("gateway_failed", "err", err)
	}
}
