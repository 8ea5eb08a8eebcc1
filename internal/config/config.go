/**
 * @description
 * This package handles the configuration management for the referral-service.
 * It uses Viper to read settings from an optional .env file and from
 * environment variables, then normalizes the values the service depends on.
 *
 * @dependencies
 * - github.com/spf13/viper: configuration loading and env binding.
 */

package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultServerPort          = "8080"
	defaultRateLimitPrefix     = "referral:rate_limit"
	defaultEventsExchange      = "account_events"
	defaultSessionTTLMinutes   = 60
	defaultGenesisAccountID    = "default_document_path"
	defaultIndexerURL          = "https://mainnet-idx.algonode.cloud"
	defaultFeeRecipientAddress = "SJDMEUSIKIU4LIJIMH4F7ZVMJOGF6PO4RNTPLISOVBLG6LOPG4HMWGVIKU"
	defaultFeeAmountMicroAlgos = 500000
	defaultAuthRatePerMinute   = 30
	defaultStatsJobSchedule    = "@every 15m"
)

// ErrMissingSessionSigningKey is returned when SESSION_SIGNING_KEY is not set.
var ErrMissingSessionSigningKey = errors.New("SESSION_SIGNING_KEY is required")

// Config holds all the configuration variables for the referral-service.
type Config struct {
	ServerPort             string `mapstructure:"SERVER_PORT"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	RedisURL               string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix   string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	AccountEventsExchange  string `mapstructure:"ACCOUNT_EVENTS_EXCHANGE"`
	SessionSigningKey      string `mapstructure:"SESSION_SIGNING_KEY"`
	SessionTTLMinutes      int    `mapstructure:"-"`
	GenesisAccountID       string `mapstructure:"GENESIS_ACCOUNT_ID"`
	GenesisWalletAddress   string `mapstructure:"GENESIS_WALLET_ADDRESS"`
	AtomicSignup           bool   `mapstructure:"-"`
	IndexerURL             string `mapstructure:"INDEXER_URL"`
	IndexerAPIToken        string `mapstructure:"INDEXER_API_TOKEN"`
	FeeRecipientAddress    string `mapstructure:"FEE_RECIPIENT_ADDRESS"`
	FeeAmountMicroAlgos    uint64 `mapstructure:"-"`
	AllowedOriginsRaw      string `mapstructure:"ALLOWED_ORIGINS"`
	AuthRateLimitPerMinute int    `mapstructure:"-"`
	StatsJobSchedule       string `mapstructure:"STATS_JOB_SCHEDULE"`
	LogLevel               string `mapstructure:"LOG_LEVEL"`
	LogEncoding            string `mapstructure:"LOG_ENCODING"`

	// AllowedOrigins is AllowedOriginsRaw split on commas.
	AllowedOrigins []string `mapstructure:"-"`
}

// LoadConfig reads configuration from environment variables and an optional
// .env file located in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRateLimitPrefix)
	viper.SetDefault("ACCOUNT_EVENTS_EXCHANGE", defaultEventsExchange)
	viper.SetDefault("SESSION_TTL_MINUTES", defaultSessionTTLMinutes)
	viper.SetDefault("GENESIS_ACCOUNT_ID", defaultGenesisAccountID)
	viper.SetDefault("ATOMIC_SIGNUP", false)
	viper.SetDefault("INDEXER_URL", defaultIndexerURL)
	viper.SetDefault("FEE_RECIPIENT_ADDRESS", defaultFeeRecipientAddress)
	viper.SetDefault("FEE_AMOUNT_MICROALGOS", defaultFeeAmountMicroAlgos)
	viper.SetDefault("AUTH_RATE_LIMIT_PER_MINUTE", defaultAuthRatePerMinute)
	viper.SetDefault("STATS_JOB_SCHEDULE", defaultStatsJobSchedule)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_ENCODING", "json")

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("ACCOUNT_EVENTS_EXCHANGE")
	_ = viper.BindEnv("SESSION_SIGNING_KEY", "SESSION_SIGNING_KEY", "JWT_SECRET")
	_ = viper.BindEnv("SESSION_TTL_MINUTES")
	_ = viper.BindEnv("GENESIS_ACCOUNT_ID", "GENESIS_ACCOUNT_ID", "DOCUMENT_PATH")
	_ = viper.BindEnv("GENESIS_WALLET_ADDRESS")
	_ = viper.BindEnv("ATOMIC_SIGNUP")
	_ = viper.BindEnv("INDEXER_URL")
	_ = viper.BindEnv("INDEXER_API_TOKEN")
	_ = viper.BindEnv("FEE_RECIPIENT_ADDRESS")
	_ = viper.BindEnv("FEE_AMOUNT_MICROALGOS")
	_ = viper.BindEnv("ALLOWED_ORIGINS")
	_ = viper.BindEnv("AUTH_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("STATS_JOB_SCHEDULE")
	_ = viper.BindEnv("LOG_LEVEL")
	_ = viper.BindEnv("LOG_ENCODING")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.SessionSigningKey = strings.TrimSpace(config.SessionSigningKey)
	if config.SessionSigningKey == "" {
		return config, ErrMissingSessionSigningKey
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = defaultRateLimitPrefix
	}
	config.AccountEventsExchange = strings.TrimSpace(config.AccountEventsExchange)
	if config.AccountEventsExchange == "" {
		config.AccountEventsExchange = defaultEventsExchange
	}
	config.GenesisAccountID = strings.TrimSpace(config.GenesisAccountID)
	if config.GenesisAccountID == "" {
		config.GenesisAccountID = defaultGenesisAccountID
	}
	config.FeeRecipientAddress = strings.TrimSpace(config.FeeRecipientAddress)
	if config.FeeRecipientAddress == "" {
		config.FeeRecipientAddress = defaultFeeRecipientAddress
	}
	config.GenesisWalletAddress = strings.TrimSpace(config.GenesisWalletAddress)
	if config.GenesisWalletAddress == "" {
		config.GenesisWalletAddress = config.FeeRecipientAddress
	}
	config.IndexerURL = strings.TrimRight(strings.TrimSpace(config.IndexerURL), "/")
	if config.IndexerURL == "" {
		config.IndexerURL = defaultIndexerURL
	}
	config.StatsJobSchedule = strings.TrimSpace(config.StatsJobSchedule)

	// Numeric and boolean settings are parsed by hand so a bad value falls
	// back to its default instead of failing startup.
	config.SessionTTLMinutes = intSetting("SESSION_TTL_MINUTES", defaultSessionTTLMinutes, 1)
	config.AuthRateLimitPerMinute = intSetting("AUTH_RATE_LIMIT_PER_MINUTE", defaultAuthRatePerMinute, 0)
	config.FeeAmountMicroAlgos = feeAmountSetting()
	config.AtomicSignup = boolSetting("ATOMIC_SIGNUP", false)

	config.AllowedOrigins = splitOrigins(config.AllowedOriginsRaw)
	return config, nil
}

func intSetting(key string, fallback, minValue int) int {
	raw := strings.TrimSpace(viper.GetString(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < minValue {
		log.Printf("level=warn component=config msg=\"invalid %s; using default\" value=%q default=%d err=%v", key, raw, fallback, err)
		return fallback
	}
	return value
}

func feeAmountSetting() uint64 {
	raw := strings.TrimSpace(viper.GetString("FEE_AMOUNT_MICROALGOS"))
	if raw == "" {
		return defaultFeeAmountMicroAlgos
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		log.Printf("level=warn component=config msg=\"invalid FEE_AMOUNT_MICROALGOS; using default\" value=%q default=%d err=%v", raw, defaultFeeAmountMicroAlgos, err)
		return defaultFeeAmountMicroAlgos
	}
	return value
}

func boolSetting(key string, fallback bool) bool {
	raw := strings.TrimSpace(viper.GetString(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("level=warn component=config msg=\"invalid %s; using default\" value=%q default=%t", key, raw, fallback)
		return fallback
	}
	return value
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		origin := strings.TrimRight(strings.TrimSpace(part), "/")
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
