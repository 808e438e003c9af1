package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"wallet_valuator/internal/app/port"
	"wallet_valuator/internal/app/provider"
	"wallet_valuator/internal/app/service"
	"wallet_valuator/internal/app/valuation"
	"wallet_valuator/internal/domain/entity"
	"wallet_valuator/internal/infrastructure/configloader"
	"wallet_valuator/internal/infrastructure/httpclient"
	"wallet_valuator/internal/infrastructure/network/client"
	networkdefinition "wallet_valuator/internal/infrastructure/network/definition"
	"wallet_valuator/internal/infrastructure/restapi"
	"wallet_valuator/internal/infrastructure/tokenloader"
	"wallet_valuator/internal/infrastructure/walletloader"
	"wallet_valuator/internal/pkg/logger"
	"wallet_valuator/internal/pkg/metrics"
)

type app struct {
	cfg      *configloader.Config
	zap      *zap.Logger
	log      port.Logger
	chain    entity.ChainDefinition
	balances *client.SolanaClient
	service  port.ValuationService
	registry *prometheus.Registry
}

func main() {
	configPath := flag.String("config", "config/config.yml", "path to the YAML configuration file")
	walletsPath := flag.String("wallets", "", "value every owner listed in this file and exit")
	flag.Parse()

	configloader.LoadDotEnv()

	cfg, err := configloader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logger.NewZap(logger.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync(zapLogger) }()
	logger.InstallSlog(zapLogger, cfg.Logging.Level)

	a, err := build(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize application", zap.Error(err))
	}

	if *walletsPath != "" {
		if err := a.runBatch(*walletsPath); err != nil {
			zapLogger.Error("Batch valuation failed", zap.Error(err))
			_ = logger.Sync(zapLogger)
			os.Exit(1)
		}
		return
	}
	a.serve()
}

// build wires the application. The global slog logger must already be installed.
func build(cfg *configloader.Config, zapLogger *zap.Logger) (*app, error) {
	log := logger.NewSlogAdapter()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	chains, err := networkdefinition.NewChainDefinitionProvider(log, cfg.Chain.Cluster, cfg.Chain.RPCURL, cfg.Chain.FallbackRPCURLs)
	if err != nil {
		return nil, err
	}
	chain := chains.Definition()

	balances, err := client.NewSolanaClient(chain, client.SolanaClientConfig{
		RPCCallTimeout:   millis(cfg.Chain.RPCTimeoutMs),
		MaxRetries:       cfg.Chain.MaxRetries,
		IncludeToken2022: cfg.Chain.IncludeToken2022,
	}, zapLogger)
	if err != nil {
		return nil, err
	}

	dex := httpclient.NewDEXScreenerClient(httpclient.DEXScreenerConfig{
		BaseURL:             cfg.DEXScreener.BaseURL,
		ChainID:             chain.DEXScreenerChainID,
		Timeout:             millis(cfg.DEXScreener.RequestTimeoutMillis),
		MaxTokensPerRequest: cfg.Oracle.MaxTokensPerBatch,
		RateLimitPerSecond:  cfg.Oracle.RateLimitPerSecond,
		RateLimitBurst:      cfg.Oracle.RateLimitBurst,
	}, zapLogger)

	var oracle port.PriceOracle = dex
	if cfg.Oracle.Provider == configloader.OracleBirdeye {
		oracle = httpclient.NewBirdeyeClient(httpclient.BirdeyeConfig{
			BaseURL:             cfg.Birdeye.BaseURL,
			APIKey:              cfg.Birdeye.APIKey,
			Chain:               chain.BirdeyeChain,
			Timeout:             millis(cfg.Birdeye.RequestTimeoutMillis),
			MaxTokensPerRequest: cfg.Oracle.MaxTokensPerBatch,
			RateLimitPerSecond:  cfg.Oracle.RateLimitPerSecond,
			RateLimitBurst:      cfg.Oracle.RateLimitBurst,
		}, zapLogger)
	}
	log.Info("Price oracle selected", "provider", oracle.Name())

	v := cfg.Valuation
	quotes := valuation.NewQuoteFetcher(oracle, valuation.QuoteFetcherConfig{
		BatchTimeout:        millis(v.BatchTimeoutMs),
		FallbackTimeout:     millis(v.FallbackTimeoutMs),
		FallbackConcurrency: v.FallbackConcurrency,
		MaxFallbackMints:    v.MaxFallbackMints,
		NativeMint:          chain.NativeMint,
		NativePriceTTL:      time.Duration(v.NativePriceTTLSec) * time.Second,
	}, log, m)

	cooldown, err := valuation.NewCooldownTracker(v.CooldownMaxEntries)
	if err != nil {
		return nil, err
	}
	aggregator := valuation.NewAggregator(valuation.AggregatorConfig{
		Gate: valuation.GateConfig{
			DustThresholdUSD:  v.DustThresholdUSD,
			LiquidityFloorUSD: v.LiquidityFloorUSD,
			MaxStalenessSec:   v.MaxStalenessSec,
		},
		CooldownSec:    v.CooldownMinutes * 60,
		StablePriceUSD: v.StablePriceUSD,
	}, cooldown, m)

	tokens := provider.NewTokenProvider(tokenloader.NewTokenLoader(cfg.Tokens.ListFile, log), log)
	meta, err := provider.NewMetadataProvider(tokens, []port.MetadataSource{dex}, provider.MetadataConfig{
		TTL:     time.Duration(v.MetadataCacheTTLMin) * time.Minute,
		MaxKeys: v.MetadataCacheMaxKeys,
	}, log)
	if err != nil {
		return nil, err
	}

	svc, err := service.NewValuationService(balances, quotes, aggregator, meta, log, m, service.ValuationServiceConfig{
		BalanceTimeout:     millis(v.BalanceTimeoutMs),
		ResultCacheTTL:     millis(v.ResultCacheTTLMs),
		ResultCacheMaxKeys: v.ResultCacheMaxKeys,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		zap:      zapLogger,
		log:      log,
		chain:    chain,
		balances: balances,
		service:  svc,
		registry: registry,
	}, nil
}

// runBatch values every owner in path once and prints one JSON document per owner.
func (a *app) runBatch(path string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wallets := provider.NewWalletProvider(walletloader.NewWalletFileLoader(path, a.balances.ValidateOwner, a.log), a.log)
	owners, err := wallets.GetWallets()
	if err != nil {
		return err
	}

	opts := entity.ValuationOptions{IncludeMeta: true, MinValueUSD: a.cfg.Valuation.DefaultMinValueUSD}
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	failed := 0
	for _, owner := range owners {
		res, err := a.service.Value(ctx, owner, opts)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			failed++
			a.zap.Warn("Owner valuation failed", zap.String("owner", owner), zap.Error(err))
			continue
		}
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("failed to write result for %s: %w", owner, err)
		}
	}
	a.zap.Info("Batch valuation finished", zap.Int("owners", len(owners)), zap.Int("failed", failed))
	if failed == len(owners) {
		return fmt.Errorf("all %d owner valuations failed", failed)
	}
	return nil
}

func (a *app) serve() {
	gin.SetMode(gin.ReleaseMode)
	handler := restapi.NewValuationHandler(a.service, a.chain, a.cfg.Valuation.DefaultMinValueUSD, a.zap)
	router := restapi.SetupRouter(handler, restapi.RouterConfig{
		CORSAllowOrigins: a.cfg.Server.CORSAllowOrigins,
		SwaggerEnabled:   a.cfg.Swagger.Enabled,
		SwaggerSpecPath:  a.cfg.Swagger.Path,
		PprofEnabled:     a.cfg.Pprof.Enabled,
		Gatherer:         a.registry,
	}, a.zap)

	addr := a.cfg.Server.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(a.cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(a.cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(a.cfg.Server.IdleTimeoutSeconds) * time.Second,
	}

	go func() {
		a.zap.Info("Server starting", zap.String("addr", addr), zap.String("cluster", a.chain.Cluster))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.zap.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	a.zap.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), time.Duration(a.cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		a.zap.Error("Server forced to shutdown", zap.Error(err))
	}
	a.zap.Info("Server exiting")
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
