package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/vitos/crypto_trade_ai/internal/domain"
	"github.com/vitos/crypto_trade_ai/internal/infrastructure/ai"
	"github.com/vitos/crypto_trade_ai/internal/infrastructure/exchange"
	"github.com/vitos/crypto_trade_ai/internal/infrastructure/logger"
	"github.com/vitos/crypto_trade_ai/internal/infrastructure/scheduler"
	"github.com/vitos/crypto_trade_ai/internal/infrastructure/storage"
	"github.com/vitos/crypto_trade_ai/internal/usecase"
	"github.com/vitos/crypto_trade_ai/internal/web"
)

type Config struct {
	Exchange struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
	} `yaml:"exchange"`
	AI struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"ai"`
	Trading struct {
		Pairs               []string `yaml:"pairs"`
		Interval            string   `yaml:"interval"`
		CandleLimit         int      `yaml:"candle_limit"`
		RiskPerTradePct     float64  `yaml:"risk_per_trade_pct"`
		StopLossPct         float64  `yaml:"stop_loss_pct"`
		ProfitTargetPct     float64  `yaml:"profit_target_pct"`
		MinConfidence       float64  `yaml:"min_confidence"`
		PyramidL1Fraction   float64  `yaml:"pyramid_l1_fraction"`
		PyramidL2Fraction   float64  `yaml:"pyramid_l2_fraction"`
		UnderwaterMinutes   int      `yaml:"underwater_minutes"`
		UnderwaterThreshold float64  `yaml:"underwater_threshold"`
	} `yaml:"trading"`
	Risk struct {
		AccountBalance float64 `yaml:"account_balance"`
		MaxGiveback    float64 `yaml:"max_giveback"`
		ErosionCapUSD  float64 `yaml:"erosion_cap_usd"`
	} `yaml:"risk"`
	Storage struct {
		Driver string `yaml:"driver"` // "sqlite" or "file"
		Path   string `yaml:"path"`
	} `yaml:"storage"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	// 1. Load Env + Config (keys stay out of the yaml)
	_ = godotenv.Load()

	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	var store domain.SnapshotStore
	switch cfg.Storage.Driver {
	case "file":
		store = storage.NewFileStore(cfg.Storage.Path)
	default:
		path := cfg.Storage.Path
		if path == "" {
			path = "bot.db"
		}
		sqliteStore, err := storage.NewSQLiteStore(path)
		if err != nil {
			log.Fatal("Failed to init sqlite", zap.Error(err))
		}
		defer sqliteStore.Close()
		store = sqliteStore
	}

	// 4. Init Exchange (Kraken)
	krakenAdapter := exchange.NewKrakenAdapter(
		os.Getenv("KRAKEN_API_KEY"),
		os.Getenv("KRAKEN_API_SECRET"),
		cfg.Exchange.RESTEndpoint,
		cfg.Exchange.WSEndpoint,
	)

	// 5. Init AI Advisor
	advisor := ai.NewAdvisor(cfg.AI.BaseURL, os.Getenv("OPENAI_API_KEY"), cfg.AI.Model)

	// 6. Init Ledger + Trading Service
	engine := usecase.NewIndicatorEngine()
	ledger := usecase.NewPositionLedger(usecase.LedgerConfig{
		AccountBalance: cfg.Risk.AccountBalance,
		MaxGiveback:    cfg.Risk.MaxGiveback,
		ErosionCapUSD:  cfg.Risk.ErosionCapUSD,
	}, store, log)

	if err := ledger.Restore(context.Background()); err != nil {
		log.Fatal("Failed to restore ledger state", zap.Error(err))
	}

	trading := usecase.NewTradingService(usecase.TradingConfig{
		Pairs:               cfg.Trading.Pairs,
		Interval:            cfg.Trading.Interval,
		CandleLimit:         cfg.Trading.CandleLimit,
		RiskPerTradePct:     cfg.Trading.RiskPerTradePct,
		StopLossPct:         cfg.Trading.StopLossPct,
		ProfitTargetPct:     cfg.Trading.ProfitTargetPct,
		MinConfidence:       cfg.Trading.MinConfidence,
		PyramidL1Fraction:   cfg.Trading.PyramidL1Fraction,
		PyramidL2Fraction:   cfg.Trading.PyramidL2Fraction,
		UnderwaterMinutes:   cfg.Trading.UnderwaterMinutes,
		UnderwaterThreshold: cfg.Trading.UnderwaterThreshold,
		ErosionCapUSD:       cfg.Risk.ErosionCapUSD,
	}, krakenAdapter, advisor, engine, ledger, log)

	// 7. Live ticks refresh open positions between cycles
	krakenAdapter.OnPriceUpdate(func(pair string, price float64) {
		ledger.Refresh(context.Background(), pair, price)
	})
	if err := krakenAdapter.Subscribe(cfg.Trading.Pairs); err != nil {
		log.Error("Failed to subscribe to ticker stream", zap.Error(err))
	}

	// 8. Start Scheduler
	sched := scheduler.NewScheduler(trading, log)
	if err := sched.Start(); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	// 9. Start Web Server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080 // Default
	}
	server := web.NewServer(port, ledger, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 10. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	server.Shutdown(context.Background())
}
