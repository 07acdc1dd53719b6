package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stellar/go/keypair"
	"go.uber.org/zap"

	"github.com/stellarvault/matching-engine/params"
	"github.com/stellarvault/matching-engine/pkg/api"
	"github.com/stellarvault/matching-engine/pkg/core"
	"github.com/stellarvault/matching-engine/pkg/core/engine"
	"github.com/stellarvault/matching-engine/pkg/stellar"
	"github.com/stellarvault/matching-engine/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	var logger *zap.Logger
	var err error
	if cfg.Server.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Server.LogFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	if cfg.Stellar.SettlementContractID == "" {
		sugar.Fatalw("SETTLEMENT_CONTRACT_ID is required")
	}

	var signingKey *keypair.Full
	if cfg.Stellar.SigningKey != "" {
		signingKey, err = keypair.ParseFull(cfg.Stellar.SigningKey)
		if err != nil {
			sugar.Fatalw("invalid MATCHING_ENGINE_SIGNING_KEY", "err", err)
		}
	} else {
		sugar.Warnw("no settlement signing key configured, settlement submission disabled")
	}

	settlement := stellar.NewClient(
		cfg.Stellar.RPCURL,
		cfg.Stellar.NetworkPassphrase,
		cfg.Stellar.SettlementContractID,
		signingKey,
		sugar,
	)
	eng := engine.New(settlement, sugar)

	// Warm up the book so the first order does not pay for pair
	// resolution; failures are logged inside the engine and retried on
	// the first request.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	_, _ = eng.Snapshot(ctx, core.AssetPair{})
	cancel()

	server := api.NewServer(eng, settlement, sugar)
	addr := fmt.Sprintf(":%d", cfg.Server.RESTPort)

	errc := make(chan error, 1)
	go func() {
		errc <- server.Start(addr)
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("api server failed", "err", err)
		}
	case sig := <-sigc:
		sugar.Infow("shutting down", "signal", sig.String())
	}
}
