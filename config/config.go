package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	BodyLimit      int      `mapstructure:"body_limit"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// AuthConfig holds identity provider and admin configuration
type AuthConfig struct {
	PrivyAppID           string   `mapstructure:"privy_app_id"`
	PrivyAppSecret       string   `mapstructure:"privy_app_secret"`
	PrivyVerificationKey string   `mapstructure:"privy_verification_key"`
	PrivyAPIURL          string   `mapstructure:"privy_api_url"`
	AdminEmails          []string `mapstructure:"admin_emails"`
}

// TurnstileConfig holds bot-check configuration
type TurnstileConfig struct {
	SecretKey string        `mapstructure:"secret_key"`
	VerifyURL string        `mapstructure:"verify_url"`
	ReplayTTL time.Duration `mapstructure:"replay_ttl"`
}

// RedisConfig holds the redis connection used for challenge replay protection.
// An empty address disables replay protection.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SolanaConfig holds payout configuration
type SolanaConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	VaultSecretKey string        `mapstructure:"vault_secret_key"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
}

// StorageConfig holds the R2 bucket used for chapter packs
type StorageConfig struct {
	AccountID       string `mapstructure:"account_id"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	Bucket          string `mapstructure:"bucket"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
	Endpoint        string `mapstructure:"endpoint"`
	// LocalDir receives packs in dev mode when no bucket is configured
	LocalDir string `mapstructure:"local_dir"`
}

// GameConfig holds gameplay tunables
type GameConfig struct {
	AnswerCooldown time.Duration `mapstructure:"answer_cooldown"`
	ClaimGrace     time.Duration `mapstructure:"claim_grace"`
}

// SchedulerConfig holds background job configuration
type SchedulerConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	AutoEnd           bool          `mapstructure:"auto_end"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	PoolSize          int           `mapstructure:"pool_size"`
}

// Config is the full service configuration
type Config struct {
	Debug      bool   `mapstructure:"debug"`
	SentryDSN  string `mapstructure:"sentry_dsn"`
	DevMode    bool   `mapstructure:"dev_mode"`
	ComingSoon bool   `mapstructure:"coming_soon"`

	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Turnstile TurnstileConfig `mapstructure:"turnstile"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Solana    SolanaConfig    `mapstructure:"solana"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Game      GameConfig      `mapstructure:"game"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// Load reads configuration from an optional YAML file, .env files in envPath
// and LUMINAR_* environment variables, in increasing priority.
func Load(configFile string, envPath string) (*Config, error) {
	v := configureViper(configFile, envPath)

	v.SetDefault("debug", false)
	v.SetDefault("dev_mode", false)
	v.SetDefault("coming_soon", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.body_limit", 10*1024*1024)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("auth.privy_api_url", "https://auth.privy.io/api/v1")
	v.SetDefault("turnstile.verify_url", "https://challenges.cloudflare.com/turnstile/v0/siteverify")
	v.SetDefault("turnstile.replay_ttl", "5m")
	v.SetDefault("solana.rpc_url", "https://api.devnet.solana.com")
	v.SetDefault("solana.confirm_timeout", "60s")
	v.SetDefault("storage.local_dir", "uploads")
	v.SetDefault("game.answer_cooldown", "10s")
	v.SetDefault("game.claim_grace", "2m")
	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.auto_end", false)
	v.SetDefault("scheduler.reconcile_interval", "30s")
	v.SetDefault("scheduler.pool_size", 4)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that every external credential needed outside dev mode is present
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.DevMode {
		return nil
	}

	required := []struct{ key, value string }{
		{"auth.privy_app_id", c.Auth.PrivyAppID},
		{"auth.privy_app_secret", c.Auth.PrivyAppSecret},
		{"auth.privy_verification_key", c.Auth.PrivyVerificationKey},
		{"turnstile.secret_key", c.Turnstile.SecretKey},
		{"solana.vault_secret_key", c.Solana.VaultSecretKey},
		{"storage.account_id", c.Storage.AccountID},
		{"storage.access_key_id", c.Storage.AccessKeyID},
		{"storage.access_key_secret", c.Storage.AccessKeySecret},
		{"storage.bucket", c.Storage.Bucket},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.key)
		}
	}
	return nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Address returns the host:port the HTTP server listens on
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func configureViper(configFile string, envPath string) *viper.Viper {
	v := viper.New()

	loadEnv(envPath)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix("LUMINAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars binds every key so env vars reach Unmarshal without a config file
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		"dev_mode",
		"coming_soon",
		"server.host",
		"server.port",
		"server.allowed_origins",
		"server.body_limit",
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		"auth.privy_app_id",
		"auth.privy_app_secret",
		"auth.privy_verification_key",
		"auth.privy_api_url",
		"auth.admin_emails",
		"turnstile.secret_key",
		"turnstile.verify_url",
		"turnstile.replay_ttl",
		"redis.address",
		"redis.password",
		"redis.db",
		"solana.rpc_url",
		"solana.vault_secret_key",
		"solana.confirm_timeout",
		"storage.account_id",
		"storage.access_key_id",
		"storage.access_key_secret",
		"storage.bucket",
		"storage.public_base_url",
		"storage.endpoint",
		"storage.local_dir",
		"game.answer_cooldown",
		"game.claim_grace",
		"scheduler.interval",
		"scheduler.auto_end",
		"scheduler.reconcile_interval",
		"scheduler.pool_size",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads .env then .env.local from envPath; later files win
func loadEnv(envPath string) {
	if envPath == "" {
		envPath = "."
	}
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Overload(filepath.Join(envPath, envFile))
	}
}
