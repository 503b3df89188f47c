package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ToanBm/cross-flow/internal/chain"
	"github.com/ToanBm/cross-flow/internal/db"
	"github.com/ToanBm/cross-flow/internal/handler"
	"github.com/ToanBm/cross-flow/internal/otp"
	"github.com/ToanBm/cross-flow/internal/services"
	"github.com/ToanBm/cross-flow/utils"
)

type Config struct {
	App struct {
		Port    int  `mapstructure:"port"`
		LogJSON bool `mapstructure:"log_json"`
		Release bool `mapstructure:"release"`
	} `mapstructure:"app"`
	Database struct {
		Driver string `mapstructure:"driver"` // sqlite | postgres
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`
	Chain struct {
		RPCURLs           []string          `mapstructure:"rpc_urls"`
		ChainID           int64             `mapstructure:"chain_id"`
		Tokens            map[string]string `mapstructure:"tokens"` // symbol -> address overrides
		InitialLookback   uint64            `mapstructure:"initial_lookback_blocks"`
		MaxBlockRange     uint64            `mapstructure:"max_block_range"`
		RPCRetries        int               `mapstructure:"rpc_retries"`
		RPCRetryDelayMs   int               `mapstructure:"rpc_retry_delay_ms"`
		CallTimeoutSec    int               `mapstructure:"call_timeout_sec"`
		OfframpPrivateKey string            `mapstructure:"offramp_private_key"`
		TransferAttempts  int               `mapstructure:"transfer_attempts"`
		ReceiptTimeoutSec int               `mapstructure:"receipt_timeout_sec"`
	} `mapstructure:"chain"`
	Processor struct {
		WebhookSecret string `mapstructure:"webhook_secret"`
	} `mapstructure:"processor"`
	Auth struct {
		CodeTTLMin int `mapstructure:"code_ttl_min"`
		SweepSec   int `mapstructure:"sweep_sec"`
	} `mapstructure:"auth"`
}

func main() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("CROSSFLOW")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal("failed to read config:", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatal("failed to parse config:", err)
	}

	logger, err := utils.NewLogger(cfg.App.LogJSON)
	if err != nil {
		log.Fatal("failed to init logger:", err)
	}
	defer logger.Sync()

	store, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}
	logger.Info("database ready", zap.String("driver", cfg.Database.Driver))

	ledger, err := chain.NewClient(chain.Config{
		Endpoints: cfg.Chain.RPCURLs,
		ChainID:   cfg.Chain.ChainID,
		Retry: chain.RetryConfig{
			Retries:   cfg.Chain.RPCRetries,
			BaseDelay: time.Duration(cfg.Chain.RPCRetryDelayMs) * time.Millisecond,
		},
		CallTimeout:      time.Duration(cfg.Chain.CallTimeoutSec) * time.Second,
		CustodialKeyHex:  cfg.Chain.OfframpPrivateKey,
		TransferAttempts: cfg.Chain.TransferAttempts,
		ReceiptTimeout:   time.Duration(cfg.Chain.ReceiptTimeoutSec) * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal("chain client init failed", zap.Error(err))
	}
	logger.Info("chain client ready",
		zap.Int64("chain_id", cfg.Chain.ChainID),
		zap.Int("endpoints", len(cfg.Chain.RPCURLs)))

	tokens := chain.NewRegistry(cfg.Chain.Tokens)
	activity := services.NewActivityService(store, ledger, services.ActivityConfig{
		Tokens:          tokens.Addresses(),
		InitialLookback: cfg.Chain.InitialLookback,
		MaxBlockRange:   cfg.Chain.MaxBlockRange,
	}, logger)
	settlement := services.NewSettlementService(store, ledger, tokens, logger)
	payments := services.NewPaymentService(store, ledger, tokens, logger)
	cashouts := services.NewCashoutService(store, ledger, tokens, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	codes := otp.NewStore(time.Duration(cfg.Auth.CodeTTLMin) * time.Minute)
	codes.StartSweep(ctx, time.Duration(cfg.Auth.SweepSec)*time.Second)

	if cfg.App.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	h := &handler.Handler{
		Store:         store,
		Activity:      activity,
		Settlement:    settlement,
		Payments:      payments,
		Cashouts:      cashouts,
		Ledger:        ledger,
		Codes:         codes,
		Sender:        otp.LogSender{Log: logger},
		WebhookSecret: cfg.Processor.WebhookSecret,
		Log:           logger,
	}
	h.RegisterRoutes(r)

	port := cfg.App.Port
	if port == 0 {
		port = 8080
	}
	logger.Info("server listening", zap.Int("port", port))
	if err := r.Run(fmt.Sprintf(":%d", port)); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
