package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration, loaded from the
// environment. Decimal fields parse through encoding.TextUnmarshaler so
// money limits never pass through floating point.
type Config struct {
	// Environment
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Database
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"25"`

	// Event publishing. Empty NATS_SERVERS disables the NATS bridge.
	NATSServers string `envconfig:"NATS_SERVERS"`

	// Live state store. Empty REDIS_ADDR disables the live snapshot.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Round engine timing
	WaitingDuration   time.Duration `envconfig:"ROUND_WAITING_DURATION" default:"5s"`
	TickInterval      time.Duration `envconfig:"ROUND_TICK_INTERVAL" default:"100ms"`
	CooldownDuration  time.Duration `envconfig:"ROUND_COOLDOWN_DURATION" default:"2s"`
	GrowthRate        float64       `envconfig:"CURVE_GROWTH_RATE" default:"0.08"`
	Exponent          float64       `envconfig:"CURVE_EXPONENT" default:"1.15"`
	SettlementWorkers int           `envconfig:"SETTLEMENT_WORKERS" default:"8"`

	// Crash point strategy: "weighted" or "fair"
	CrashStrategy string `envconfig:"CRASH_STRATEGY" default:"weighted"`
	ClientSeed    string `envconfig:"CLIENT_SEED" default:"aviator-public-seed"`

	// Betting limits
	MinBet         decimal.Decimal `envconfig:"MIN_BET" default:"10.00"`
	MaxBet         decimal.Decimal `envconfig:"MAX_BET" default:"50000.00"`
	MinAutoCashout decimal.Decimal `envconfig:"MIN_AUTO_CASHOUT" default:"1.01"`

	// Payment limits
	MinDeposit    decimal.Decimal `envconfig:"MIN_DEPOSIT" default:"10.00"`
	MaxDeposit    decimal.Decimal `envconfig:"MAX_DEPOSIT" default:"300000.00"`
	MinWithdrawal decimal.Decimal `envconfig:"MIN_WITHDRAWAL" default:"100.00"`

	// New users are credited this bonus balance once per phone number
	WelcomeBonus decimal.Decimal `envconfig:"WELCOME_BONUS" default:"50.00"`

	// Sandbox payment provider
	MpesaCallbackDelay time.Duration `envconfig:"MPESA_CALLBACK_DELAY" default:"2s"`

	// Pending payments older than this are expired by the scheduler
	PaymentExpiry time.Duration `envconfig:"PAYMENT_EXPIRY" default:"30m"`
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load reads the optional .env file and then the environment
func load() (*Config, error) {
	// Missing .env is fine; the environment wins either way
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Environment != "test" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.CrashStrategy != "weighted" && c.CrashStrategy != "fair" {
		return fmt.Errorf("CRASH_STRATEGY must be \"weighted\" or \"fair\", got %q", c.CrashStrategy)
	}
	if c.MinBet.LessThanOrEqual(decimal.Zero) || c.MaxBet.LessThan(c.MinBet) {
		return fmt.Errorf("bet limits are inverted: min %s, max %s", c.MinBet, c.MaxBet)
	}
	if c.MinAutoCashout.LessThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("MIN_AUTO_CASHOUT must be above 1.00, got %s", c.MinAutoCashout)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("ROUND_TICK_INTERVAL must be positive")
	}
	return nil
}
