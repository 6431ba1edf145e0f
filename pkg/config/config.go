package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		Tracing        bool   `mapstructure:"TRACING"`
		Metrics        bool   `mapstructure:"METRICS"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	RateLimit struct {
		Enable            bool `mapstructure:"ENABLE"`
		RequestsPerMinute int  `mapstructure:"REQUESTS_PER_MINUTE"`
	} `mapstructure:"RATE_LIMIT"`
	Worker struct {
		Concurrency int `mapstructure:"CONCURRENCY"`
	} `mapstructure:"WORKER"`
	Earnings Earnings `mapstructure:"EARNINGS"`
}

// Earnings holds the runtime policy knobs of the payout engine. Score weights
// and multiplier bands are constants in services/scoring and are not configurable.
type Earnings struct {
	BaseRate             float64       `mapstructure:"BASE_RATE"`
	CompletionThreshold  float64       `mapstructure:"COMPLETION_THRESHOLD"`
	GatingWindow         time.Duration `mapstructure:"GATING_WINDOW"`
	GatingCeiling        int64         `mapstructure:"GATING_CEILING"`
	ReconcileInterval    time.Duration `mapstructure:"RECONCILE_INTERVAL"`
	ReconcileLookback    time.Duration `mapstructure:"RECONCILE_LOOKBACK"`
	ReconcileBatch       int           `mapstructure:"RECONCILE_BATCH"`
	ReconcileConcurrency int           `mapstructure:"RECONCILE_CONCURRENCY"`
	AggregateInterval    time.Duration `mapstructure:"AGGREGATE_INTERVAL"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "creatorhub-engine")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("OTEL.PROTOCOL", "grpc")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 10*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", "9090")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 10)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 10*time.Minute)
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)
	v.SetDefault("RATE_LIMIT.REQUESTS_PER_MINUTE", 600)
	v.SetDefault("WORKER.CONCURRENCY", 10)

	d := DefaultEarnings()
	v.SetDefault("EARNINGS.BASE_RATE", d.BaseRate)
	v.SetDefault("EARNINGS.COMPLETION_THRESHOLD", d.CompletionThreshold)
	v.SetDefault("EARNINGS.GATING_WINDOW", d.GatingWindow)
	v.SetDefault("EARNINGS.GATING_CEILING", d.GatingCeiling)
	v.SetDefault("EARNINGS.RECONCILE_INTERVAL", d.ReconcileInterval)
	v.SetDefault("EARNINGS.RECONCILE_LOOKBACK", d.ReconcileLookback)
	v.SetDefault("EARNINGS.RECONCILE_BATCH", d.ReconcileBatch)
	v.SetDefault("EARNINGS.RECONCILE_CONCURRENCY", d.ReconcileConcurrency)
	v.SetDefault("EARNINGS.AGGREGATE_INTERVAL", d.AggregateInterval)
}

// DefaultEarnings returns the production payout policy.
func DefaultEarnings() Earnings {
	return Earnings{
		BaseRate:             0.01,
		CompletionThreshold:  0.8,
		GatingWindow:         time.Hour,
		GatingCeiling:        60,
		ReconcileInterval:    5 * time.Minute,
		ReconcileLookback:    72 * time.Hour,
		ReconcileBatch:       200,
		ReconcileConcurrency: 8,
		AggregateInterval:    15 * time.Minute,
	}
}

// LoadConfig reads config.yaml from the working directory. Environment variables
// override file values, e.g. EARNINGS_BASE_RATE for EARNINGS.BASE_RATE.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Earnings.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (e Earnings) Validate() error {
	switch {
	case e.BaseRate < 0:
		return errors.New("config: EARNINGS.BASE_RATE must not be negative")
	case e.CompletionThreshold <= 0 || e.CompletionThreshold > 1:
		return errors.New("config: EARNINGS.COMPLETION_THRESHOLD must be in (0,1]")
	case e.GatingWindow <= 0:
		return errors.New("config: EARNINGS.GATING_WINDOW must be positive")
	case e.GatingCeiling <= 0:
		return errors.New("config: EARNINGS.GATING_CEILING must be positive")
	}
	return nil
}
