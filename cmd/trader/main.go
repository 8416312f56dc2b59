package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quantbox/cvar-trading-bot/internal/bot"
	"github.com/quantbox/cvar-trading-bot/internal/config"
	"github.com/quantbox/cvar-trading-bot/internal/exchange"
	"github.com/quantbox/cvar-trading-bot/internal/journal"
	"github.com/quantbox/cvar-trading-bot/internal/logger"
	"github.com/quantbox/cvar-trading-bot/internal/monitoring"
	"github.com/quantbox/cvar-trading-bot/internal/position"
	"github.com/quantbox/cvar-trading-bot/internal/risk"
	"github.com/quantbox/cvar-trading-bot/internal/safety"
	"github.com/quantbox/cvar-trading-bot/internal/strategy"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file (e.g., btc_5m.json)")
		envFile    = flag.String("env", ".env", "Environment file path")
	)
	flag.Parse()

	if *configFile == "" {
		log.Fatal("Please specify a config file with -config flag")
	}

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("Warning: could not load .env file (%v), relying on environment variables", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fmt.Println("🚀 Trader starting...")

	engine, store, err := buildEngine(cfg)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}
	defer store.Close()

	if err := engine.Start(); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	fmt.Println("\n🛑 Shutdown signal received...")

	engine.Stop()
	fmt.Println("👋 Trader stopped")
}

// buildEngine wires brokers, data, strategies and loops from config.
func buildEngine(cfg *config.Config) (*bot.Engine, journal.Store, error) {
	// Bybit supplies market data in both live and paper modes; public
	// kline endpoints work without credentials.
	gateway := exchange.NewBybit(exchange.BybitConfig{
		APIKey:    os.Getenv("BYBIT_API_KEY"),
		APISecret: os.Getenv("BYBIT_API_SECRET"),
		Category:  cfg.Exchange.Category,
		Interval:  bybitInterval(cfg.Strategy.Interval),
		Testnet:   cfg.Exchange.Testnet,
		Demo:      cfg.Exchange.Demo,
	})

	var broker exchange.Broker
	switch strings.ToLower(cfg.Exchange.Name) {
	case "paper":
		broker = exchange.NewPaperBroker(cfg.Exchange.Cash, func(ctx context.Context, symbol string) (float64, error) {
			series, err := gateway.LatestWindow(ctx, symbol, 1)
			if err != nil {
				return 0, err
			}
			bar, ok := series.Last()
			if !ok {
				return 0, fmt.Errorf("no quote available for %s", symbol)
			}
			return bar.Close, nil
		})
	case "bybit":
		broker = gateway
	default:
		return nil, nil, fmt.Errorf("unknown exchange %q", cfg.Exchange.Name)
	}

	var store journal.Store = journal.NewNoopStore()
	if cfg.Journal.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.DBPath), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
		sqlite, err := journal.NewSQLiteStore(cfg.Journal.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open trade journal: %w", err)
		}
		store = sqlite
	}

	health := monitoring.NewHealthChecker()
	if cfg.Monitoring.Enabled {
		startMonitoringServer(cfg.Monitoring.Addr, health)
	}

	maxAge := 2 * intervalDuration(cfg.Strategy.Interval)

	loops := make([]*bot.Loop, 0, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		strat, err := buildStrategy(cfg)
		if err != nil {
			return nil, nil, err
		}

		// Each loop owns its own model; the RNG is not synchronized.
		model := risk.NewMonteCarloModel(cfg.MonteCarloConfig())

		machine, err := position.NewMachine(symbol, cfg.PositionConfig(), cfg.Risk.PortfolioValue)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create position machine for %s: %w", symbol, err)
		}

		fileLogger, err := logger.New(cfg.Monitoring.LogDir, symbol)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create logger for %s: %w", symbol, err)
		}

		loop, err := bot.NewLoop(symbol, bot.LoopDeps{
			Broker:   broker,
			Data:     gateway,
			Strategy: strat,
			Model:    model,
			Machine:  machine,
			Journal:  store,
			Logger:   fileLogger,
			Health:   health,
			Limiter:  safety.NewRateLimiter(symbol, 5, 5),
		}, cfg.PollInterval(), cfg.Strategy.WindowSize, maxAge)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create loop for %s: %w", symbol, err)
		}
		loops = append(loops, loop)
	}

	engine, err := bot.NewEngine(loops, store, cfg.Journal.XLSXDir)
	if err != nil {
		return nil, nil, err
	}
	return engine, store, nil
}

// buildStrategy instantiates the configured signal strategy.
func buildStrategy(cfg *config.Config) (strategy.Strategy, error) {
	switch cfg.Strategy.Name {
	case "sma_cross":
		return strategy.NewSMACross(cfg.Strategy.FastPeriod, cfg.Strategy.SlowPeriod)
	case "rsi_reversion":
		return strategy.NewRSIReversion(cfg.Strategy.RSIPeriod, cfg.Strategy.RSIOversold, cfg.Strategy.RSIOverbought)
	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy.Name)
	}
}

// startMonitoringServer exposes /metrics and /health.
func startMonitoringServer(addr string, health *monitoring.HealthChecker) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.NewMetricsHandler())
	mux.Handle("/health", health)

	go func() {
		server := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Monitoring server error: %v", err)
		}
	}()
	fmt.Printf("📡 Monitoring on %s (/metrics, /health)\n", addr)
}

// bybitInterval converts "5m"/"1h"/"1d" style intervals to Bybit notation.
func bybitInterval(interval string) string {
	switch interval {
	case "1m":
		return "1"
	case "3m":
		return "3"
	case "5m":
		return "5"
	case "15m":
		return "15"
	case "30m":
		return "30"
	case "1h":
		return "60"
	case "4h":
		return "240"
	case "1d":
		return "D"
	default:
		return "5"
	}
}

// intervalDuration converts an interval string to a duration.
func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return 5 * time.Minute
	}
}

func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return fmt.Errorf("env file %s not found", envFile)
	}
	return godotenv.Load(envFile)
}
