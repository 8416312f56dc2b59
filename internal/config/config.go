package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quantbox/cvar-trading-bot/internal/position"
	"github.com/quantbox/cvar-trading-bot/internal/risk"
)

// Config represents the complete configuration for the trading bot
type Config struct {
	// Symbols to trade, one loop per symbol
	Symbols []string `json:"symbols"`

	// Trading strategy configuration
	Strategy StrategyConfig `json:"strategy"`

	// Risk model and position sizing configuration
	Risk RiskConfig `json:"risk"`

	// Exchange configuration
	Exchange ExchangeConfig `json:"exchange"`

	// Trade journal configuration (optional)
	Journal JournalConfig `json:"journal"`

	// Monitoring endpoints (optional)
	Monitoring MonitoringConfig `json:"monitoring"`
}

// StrategyConfig holds trading strategy configuration
type StrategyConfig struct {
	Name string `json:"name"` // "sma_cross" or "rsi_reversion"

	// Market data settings
	Interval   string `json:"interval"`    // Candle interval (1m, 5m, 1h, ...)
	WindowSize int    `json:"window_size"` // Data window size for indicators
	PollSec    int    `json:"poll_sec"`    // Seconds between loop iterations

	// SMA crossover parameters
	FastPeriod int `json:"fast_period"`
	SlowPeriod int `json:"slow_period"`

	// RSI reversion parameters
	RSIPeriod     int     `json:"rsi_period"`
	RSIOversold   float64 `json:"rsi_oversold"`
	RSIOverbought float64 `json:"rsi_overbought"`
}

// RiskConfig holds risk model and position sizing configuration
type RiskConfig struct {
	PortfolioValue float64 `json:"portfolio_value"` // Portfolio value for sizing
	MaxRiskPct     float64 `json:"max_risk_pct"`    // Fraction of portfolio per position
	StopLossPct    float64 `json:"stop_loss_pct"`   // Stop distance from entry
	TakeProfitPct  float64 `json:"take_profit_pct"` // Target distance from entry
	MinIncrement   float64 `json:"min_increment"`   // Exchange quantity step

	// Monte-Carlo model parameters
	HorizonYears float64 `json:"horizon_years"`
	Steps        int     `json:"steps"`
	Paths        int     `json:"paths"`
	Alpha        float64 `json:"alpha"`
	MaxCVaR      float64 `json:"max_cvar"`
}

// ExchangeConfig holds exchange connection configuration.
// API credentials come from the environment, never from the file.
type ExchangeConfig struct {
	Name     string  `json:"name"`     // "paper" or "bybit"
	Category string  `json:"category"` // Bybit category (linear, spot)
	Testnet  bool    `json:"testnet"`
	Demo     bool    `json:"demo"`
	Cash     float64 `json:"cash"` // Starting cash for the paper broker
}

// JournalConfig holds trade persistence configuration
type JournalConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"db_path"`
	XLSXDir string `json:"xlsx_dir"` // Directory for session exports, empty disables
}

// MonitoringConfig holds metrics and health endpoint configuration
type MonitoringConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	LogDir  string `json:"log_dir"`
}

// Load loads configuration from a JSON file, applying defaults and
// validating the result.
func Load(configFile string) (*Config, error) {
	// Bare names resolve against the configs/ directory
	if !strings.ContainsAny(configFile, "/\\") {
		configFile = filepath.Join("configs", configFile)
	}
	if !strings.HasSuffix(configFile, ".json") {
		configFile += ".json"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for missing configuration
func (c *Config) setDefaults() {
	if c.Strategy.Name == "" {
		c.Strategy.Name = "sma_cross"
	}
	if c.Strategy.Interval == "" {
		c.Strategy.Interval = "5m"
	}
	if c.Strategy.WindowSize == 0 {
		c.Strategy.WindowSize = 100
	}
	if c.Strategy.PollSec == 0 {
		c.Strategy.PollSec = 60
	}
	if c.Strategy.FastPeriod == 0 {
		c.Strategy.FastPeriod = 10
	}
	if c.Strategy.SlowPeriod == 0 {
		c.Strategy.SlowPeriod = 30
	}
	if c.Strategy.RSIPeriod == 0 {
		c.Strategy.RSIPeriod = 14
	}
	if c.Strategy.RSIOversold == 0 {
		c.Strategy.RSIOversold = 30
	}
	if c.Strategy.RSIOverbought == 0 {
		c.Strategy.RSIOverbought = 70
	}

	if c.Risk.PortfolioValue == 0 {
		c.Risk.PortfolioValue = 100000
	}
	if c.Risk.MaxRiskPct == 0 {
		c.Risk.MaxRiskPct = 0.01
	}
	if c.Risk.StopLossPct == 0 {
		c.Risk.StopLossPct = 0.02
	}
	if c.Risk.TakeProfitPct == 0 {
		c.Risk.TakeProfitPct = 0.04
	}
	if c.Risk.MinIncrement == 0 {
		c.Risk.MinIncrement = 0.001
	}
	if c.Risk.HorizonYears == 0 {
		c.Risk.HorizonYears = 1.0
	}
	if c.Risk.Steps == 0 {
		c.Risk.Steps = 252
	}
	if c.Risk.Paths == 0 {
		c.Risk.Paths = 1000
	}
	if c.Risk.Alpha == 0 {
		c.Risk.Alpha = 0.05
	}
	if c.Risk.MaxCVaR == 0 {
		c.Risk.MaxCVaR = 0.05
	}

	if c.Exchange.Name == "" {
		c.Exchange.Name = "paper"
	}
	if c.Exchange.Category == "" {
		c.Exchange.Category = "linear"
	}
	if c.Exchange.Cash == 0 {
		c.Exchange.Cash = c.Risk.PortfolioValue
	}

	if c.Journal.DBPath == "" {
		c.Journal.DBPath = "data/trades.db"
	}
	if c.Monitoring.Addr == "" {
		c.Monitoring.Addr = ":8080"
	}
	if c.Monitoring.LogDir == "" {
		c.Monitoring.LogDir = "logs"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one trading symbol is required")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if s == "" {
			return fmt.Errorf("trading symbol must not be empty")
		}
		if seen[s] {
			return fmt.Errorf("duplicate trading symbol %s", s)
		}
		seen[s] = true
	}

	switch c.Strategy.Name {
	case "sma_cross", "rsi_reversion":
	default:
		return fmt.Errorf("unknown strategy %q", c.Strategy.Name)
	}
	if c.Strategy.WindowSize <= 0 {
		return fmt.Errorf("window size must be greater than 0")
	}
	if c.Strategy.PollSec <= 0 {
		return fmt.Errorf("poll interval must be greater than 0")
	}

	if c.Risk.PortfolioValue <= 0 {
		return fmt.Errorf("portfolio value must be greater than 0")
	}
	if c.Risk.Alpha <= 0 || c.Risk.Alpha >= 1 {
		return fmt.Errorf("alpha must be in (0, 1)")
	}
	if c.Risk.MaxCVaR <= 0 {
		return fmt.Errorf("max CVaR must be greater than 0")
	}
	if c.Risk.Steps <= 0 || c.Risk.Paths <= 0 {
		return fmt.Errorf("steps and paths must be greater than 0")
	}

	positionCfg := c.PositionConfig()
	if err := positionCfg.Validate(); err != nil {
		return err
	}

	switch strings.ToLower(c.Exchange.Name) {
	case "paper":
		if c.Exchange.Cash <= 0 {
			return fmt.Errorf("paper broker cash must be greater than 0")
		}
	case "bybit":
		if os.Getenv("BYBIT_API_KEY") == "" || os.Getenv("BYBIT_API_SECRET") == "" {
			return fmt.Errorf("BYBIT_API_KEY and BYBIT_API_SECRET must be set for bybit")
		}
	default:
		return fmt.Errorf("unknown exchange %q", c.Exchange.Name)
	}

	return nil
}

// PositionConfig derives the position state machine settings.
func (c *Config) PositionConfig() position.Config {
	return position.Config{
		StopLossPct:   c.Risk.StopLossPct,
		TakeProfitPct: c.Risk.TakeProfitPct,
		MaxRiskPct:    c.Risk.MaxRiskPct,
		MinIncrement:  c.Risk.MinIncrement,
	}
}

// MonteCarloConfig derives the risk model settings.
func (c *Config) MonteCarloConfig() risk.MonteCarloConfig {
	return risk.MonteCarloConfig{
		HorizonYears: c.Risk.HorizonYears,
		Steps:        c.Risk.Steps,
		Paths:        c.Risk.Paths,
		Alpha:        c.Risk.Alpha,
		MaxCVaR:      c.Risk.MaxCVaR,
	}
}

// PollInterval returns the loop cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Strategy.PollSec) * time.Second
}
