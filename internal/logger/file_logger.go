package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

// Logger writes one trading log file per symbol and day.
type Logger struct {
	symbol  string
	logFile *os.File
	logger  *log.Logger
	logDir  string
	mu      sync.Mutex
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelTrade   LogLevel = "TRADE"
	LogLevelRisk    LogLevel = "RISK"
)

// New creates a file logger under dir for the given symbol.
func New(dir, symbol string) (*Logger, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.log", symbol, time.Now().Format("2006-01-02"))
	logPath := filepath.Join(dir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		symbol:  symbol,
		logFile: file,
		logger:  log.New(file, "", 0),
		logDir:  dir,
	}
	l.writeSessionHeader()
	return l, nil
}

func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
TRADING SESSION STARTED - %s
Started: %s
================================================================================`,
		l.symbol, time.Now().Format("2006-01-02 15:04:05"))
	l.logger.Print(header)
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s", timestamp, level, message)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// LogRisk logs one risk assessment.
func (l *Logger) LogRisk(varValue, cvarValue float64, passed bool) {
	verdict := "PASSED"
	if !passed {
		verdict = "BLOCKED"
	}
	l.Log(LogLevelRisk, "VaR: %.4f | CVaR: %.4f | gate: %s", varValue, cvarValue, verdict)
}

// LogTrade logs a confirmed trade execution.
func (l *Logger) LogTrade(record types.TradeRecord, orderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	l.logger.Printf(`
[%s] [TRADE] ==================== %s EXECUTED ====================
Order ID: %s
Side: %s | Qty: %f
Price: $%.4f
Strategy: %s
=============================================================`,
		timestamp, record.Mode, orderID, record.Side, record.Qty, record.Price, record.Strategy)
}

// GetLogPath returns the current log file path
func (l *Logger) GetLogPath() string {
	filename := fmt.Sprintf("%s_%s.log", l.symbol, time.Now().Format("2006-01-02"))
	return filepath.Join(l.logDir, filename)
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		l.logger.Printf(`
================================================================================
TRADING SESSION ENDED - %s
Ended: %s
================================================================================
`, l.symbol, time.Now().Format("2006-01-02 15:04:05"))
		return l.logFile.Close()
	}
	return nil
}
