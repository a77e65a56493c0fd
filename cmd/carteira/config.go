package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/service/referral"
)

const (
	defaultListenAddr        = "localhost:8080"
	defaultLoggingLevel      = logger.LevelInfo
	defaultEnvironment       = logger.EnvProduction
	defaultLedgerAddr        = "localhost:3000"
	defaultGatewayAddr       = "localhost:3001"
	defaultRedisAddr         = "localhost:6379"
	defaultCommissionPercent = "10"
	defaultCommissionPolicy  = referral.PolicyEvery
	defaultWelcomeBonus      = "0"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the carteira service will be run
	ListenAddr string

	// Remote ledger API to connect to
	LedgerAddr  string
	LedgerToken string

	// Payment gateway the reconciler polls for recharge verdicts
	GatewayAddr string

	// Database to connect to
	DatabaseDSN string

	// Redis mirror holding stale balance fallbacks
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Secret key
	// Used for signing JWT access tokens, so keep it out of flags in prod
	SecretKey string

	// Referral commission settings
	CommissionPercent string
	CommissionPolicy  string
	WelcomeBonus      string

	// Pending recharges older than this are failed by the reconciler.
	// Zero keeps the reconciler default
	SettlementDeadline time.Duration

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:          defaultLoggingLevel,
		ListenAddr:        defaultListenAddr,
		LedgerAddr:        defaultLedgerAddr,
		GatewayAddr:       defaultGatewayAddr,
		RedisAddr:         defaultRedisAddr,
		CommissionPercent: defaultCommissionPercent,
		CommissionPolicy:  defaultCommissionPolicy,
		WelcomeBonus:      defaultWelcomeBonus,
		Environment:       defaultEnvironment,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setInt := func(o *int) func(value string) {
		return func(value string) {
			if parsed, err := strconv.Atoi(value); err == nil {
				*o = parsed
			}
		}
	}
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if parsed, err := time.ParseDuration(value); err == nil {
				*o = parsed
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":         setString(&c.ListenAddr),
		"DATABASE_URI":        setString(&c.DatabaseDSN),
		"SECRET_KEY":          setString(&c.SecretKey),
		"LOG_LEVEL":           setString(&c.LogLevel),
		"LEDGER_ADDRESS":      setString(&c.LedgerAddr),
		"LEDGER_TOKEN":        setString(&c.LedgerToken),
		"GATEWAY_ADDRESS":     setString(&c.GatewayAddr),
		"REDIS_ADDRESS":       setString(&c.RedisAddr),
		"REDIS_PASSWORD":      setString(&c.RedisPassword),
		"REDIS_DB":            setInt(&c.RedisDB),
		"COMMISSION_PERCENT":  setString(&c.CommissionPercent),
		"COMMISSION_POLICY":   setString(&c.CommissionPolicy),
		"WELCOME_BONUS":       setString(&c.WelcomeBonus),
		"SETTLEMENT_DEADLINE": setDuration(&c.SettlementDeadline),
		"ENVIRONMENT":         setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("carteira", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.LedgerAddr, "ledger", "r", c.LedgerAddr, "Remote ledger API address")
	fs.StringVar(&c.LedgerToken, "ledger-token", c.LedgerToken, "Remote ledger API token")
	fs.StringVarP(&c.GatewayAddr, "gateway", "g", c.GatewayAddr, "Payment gateway address")
	fs.StringVar(&c.RedisAddr, "redis", c.RedisAddr, "Redis mirror address")
	fs.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis mirror database number")
	fs.StringVar(&c.CommissionPercent, "commission-percent", c.CommissionPercent, "Referral commission percent")
	fs.StringVar(&c.CommissionPolicy, "commission-policy", c.CommissionPolicy, "Referral commission policy (every, first)")
	fs.StringVar(&c.WelcomeBonus, "welcome-bonus", c.WelcomeBonus, "Bonus credited to both sides of a referral link")
	fs.DurationVar(&c.SettlementDeadline, "settlement-deadline", c.SettlementDeadline, "Fail pending recharges older than this")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}
