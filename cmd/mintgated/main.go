package main

import (
	"log"
	"net/http"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"mintgate/config"
	"mintgate/ledgerrpc"
	"mintgate/lifecycle"
	"mintgate/marketplace"
	"mintgate/models"
	"mintgate/observability/logging"
	"mintgate/pinning"
	"mintgate/rewards"
	"mintgate/server"
	"mintgate/signing"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.Setup("mintgated", cfg.Env)

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("database connection error: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate error: %v", err)
	}

	signer := signing.NewClient(signing.Config{
		BaseURL:   cfg.SigningBaseURL,
		APIKey:    cfg.SigningAPIKey,
		APISecret: cfg.SigningAPISecret,
		ReturnURL: cfg.SigningReturnURL,
	})

	var ledger *ledgerrpc.Client
	if cfg.LedgerRPCURL != "" {
		ledger = ledgerrpc.NewClient(ledgerrpc.Config{URL: cfg.LedgerRPCURL})
	}

	var notifier *marketplace.Client
	if cfg.MarketplaceURL != "" {
		notifier = marketplace.NewClient(marketplace.Config{URL: cfg.MarketplaceURL})
	}

	lcCfg := lifecycle.Config{
		DB:              db,
		Signer:          signer,
		Destination:     cfg.PaymentDestination,
		FeeDropsPerItem: cfg.FeeDropsPerItem,
		Logger:          logger,
	}
	if ledger != nil {
		lcCfg.Ledger = ledger
	}
	if notifier != nil {
		lcCfg.Notifier = notifier
	}
	engine := lifecycle.NewEngine(lcCfg)

	rwCfg := rewards.Config{
		DB: db,
		Rules: rewards.NewRuleFetcher(rewards.RuleFetcherConfig{
			GatewayBase: cfg.ContentGatewayBase,
			Timeout:     cfg.RuleFetchTimeout,
		}),
		Currency:   cfg.RewardCurrency,
		Issuer:     cfg.RewardIssuer,
		BatchLimit: cfg.PayoutBatchLimit,
		Logger:     logger,
	}
	if ledger != nil {
		rwCfg.Ledger = ledger
	}
	rewardEngine := rewards.NewEngine(rwCfg)

	srvCfg := server.Config{
		DB:         db,
		Lifecycle:  engine,
		Rewards:    rewardEngine,
		AdminToken: cfg.AdminToken,
		Logger:     logger,
	}
	if cfg.PinningAPIKey != "" {
		srvCfg.Pinner = pinning.NewClient(pinning.Config{
			BaseURL:   cfg.PinningBaseURL,
			APIKey:    cfg.PinningAPIKey,
			APISecret: cfg.PinningAPISecret,
		})
	}
	if ledger != nil {
		srvCfg.Ledger = ledger
	}
	srv := server.New(srvCfg)

	addr := ":" + cfg.Port
	logger.Info("starting mintgated", "addr", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DatabaseURL != "" {
		return gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	}
	return gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{})
}
