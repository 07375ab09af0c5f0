package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"cryptoLedger/internal/adapters/logger" // Import the logger package for LogLevel
	"cryptoLedger/internal/indicators"
)

// Supported exchanges.
const (
	ExchangeCoinsPH = "coinsph"
	ExchangeBinance = "binance"
)

// Config holds all application configuration.
type Config struct {
	// Exchange API
	Exchange   string
	APIKey     string
	SecretKey  string
	BaseURL    string
	RecvWindow time.Duration

	// Reconciliation
	QuoteAsset       string
	TradesStartTime  time.Time // Zero means unbounded
	TradesEndTime    time.Time // Zero means unbounded
	ClosureThreshold decimal.Decimal
	MaxConcurrency   int

	// Connection Settings
	RequestsPerSecond float64
	HTTPTimeout       time.Duration

	// Storage and output
	DBPath      string
	OutputDir   string
	MetricsFile string // Empty disables the textfile export

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat logger.Format

	// Screener
	ScreenerInterval string
	ScreenerLimit    int
	ScreenerAverage  indicators.MovingAverageType
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Exchange API
	cfg.Exchange = strings.ToLower(getEnv("EXCHANGE", ExchangeCoinsPH))
	if cfg.Exchange != ExchangeCoinsPH && cfg.Exchange != ExchangeBinance {
		errs = append(errs, fmt.Sprintf("EXCHANGE must be %q or %q", ExchangeCoinsPH, ExchangeBinance))
	}
	cfg.APIKey = getEnv("API_KEY", "")
	cfg.SecretKey = getEnv("API_SECRET", "")
	cfg.BaseURL = getEnv("API_BASE_URL", defaultBaseURL(cfg.Exchange))

	recvWindowMs, err := getEnvAsIntRequired("RECV_WINDOW_MS", 10000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RECV_WINDOW_MS: %v", err))
	} else if recvWindowMs <= 0 || recvWindowMs > 60000 {
		errs = append(errs, "RECV_WINDOW_MS must be between 1 and 60000")
	}
	cfg.RecvWindow = time.Duration(recvWindowMs) * time.Millisecond

	// Reconciliation
	cfg.QuoteAsset = strings.ToUpper(getEnv("QUOTE_ASSET", "PHP"))
	if cfg.QuoteAsset == "" {
		errs = append(errs, "QUOTE_ASSET must be set")
	}

	cfg.TradesStartTime, err = getEnvAsTime("TRADES_START_TIME")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRADES_START_TIME: %v", err))
	}
	cfg.TradesEndTime, err = getEnvAsTime("TRADES_END_TIME")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRADES_END_TIME: %v", err))
	}
	if !cfg.TradesStartTime.IsZero() && !cfg.TradesEndTime.IsZero() && !cfg.TradesStartTime.Before(cfg.TradesEndTime) {
		errs = append(errs, "TRADES_START_TIME must be before TRADES_END_TIME")
	}

	cfg.ClosureThreshold, err = getEnvAsDecimalRequired("CLOSURE_THRESHOLD", "0.95")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CLOSURE_THRESHOLD: %v", err))
	} else if !cfg.ClosureThreshold.IsPositive() || cfg.ClosureThreshold.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, "CLOSURE_THRESHOLD must be in (0, 1]")
	}

	cfg.MaxConcurrency = getEnvAsInt("MAX_CONCURRENCY", 4)
	if cfg.MaxConcurrency <= 0 {
		errs = append(errs, "MAX_CONCURRENCY must be positive")
	}

	// Connection Settings
	cfg.RequestsPerSecond, err = getEnvAsFloatRequired("REQUESTS_PER_SECOND", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REQUESTS_PER_SECOND: %v", err))
	} else if cfg.RequestsPerSecond <= 0 {
		errs = append(errs, "REQUESTS_PER_SECOND must be positive")
	}

	timeoutSeconds := getEnvAsInt("HTTP_TIMEOUT_SECONDS", 30)
	if timeoutSeconds <= 0 {
		errs = append(errs, "HTTP_TIMEOUT_SECONDS must be positive")
	}
	cfg.HTTPTimeout = time.Duration(timeoutSeconds) * time.Second

	// Storage and output
	cfg.DBPath = getEnv("DB_PATH", "./data/ledger.db")
	cfg.OutputDir = getEnv("OUTPUT_DIR", "./data")
	cfg.MetricsFile = getEnv("METRICS_FILE", "")

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = logger.ParseFormat(getEnv("LOG_FORMAT", "text"))

	// Screener
	cfg.ScreenerInterval = getEnv("SCREENER_INTERVAL", "1d")
	cfg.ScreenerLimit, err = getEnvAsIntRequired("SCREENER_LIMIT", 200)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SCREENER_LIMIT: %v", err))
	} else if cfg.ScreenerLimit <= 0 || cfg.ScreenerLimit > 1000 {
		errs = append(errs, "SCREENER_LIMIT must be between 1 and 1000")
	}
	cfg.ScreenerAverage, err = indicators.ParseMovingAverageType(getEnv("SCREENER_MA_TYPE", "SMA"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SCREENER_MA_TYPE: %v", err))
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// ValidateCredentials reports whether signed endpoints can be called.
// Only commands that read account data need it.
func (c *Config) ValidateCredentials() error {
	var errs []string
	if c.APIKey == "" {
		errs = append(errs, "API_KEY must be set")
	}
	if c.SecretKey == "" {
		errs = append(errs, "API_SECRET must be set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func defaultBaseURL(exchange string) string {
	if exchange == ExchangeBinance {
		return "https://api.binance.com"
	}
	return "https://api.pro.coins.ph"
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsDecimalRequired(key string, defaultValue string) (decimal.Decimal, error) {
	valueStr := getEnv(key, defaultValue)
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

// getEnvAsTime parses an optional RFC3339 timestamp; unset yields the zero time.
func getEnvAsTime(key string) (time.Time, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return time.Time{}, nil
	}
	value, err := time.Parse(time.RFC3339, valueStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid RFC3339 value '%s' for key %s: %w", valueStr, key, err)
	}
	return value.UTC(), nil
}
