package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Cron     CronConfig     `mapstructure:"cron"`
	R2       R2Config       `mapstructure:"r2"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Klines   KlinesConfig   `mapstructure:"klines"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

type CronConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Refresh string `mapstructure:"refresh"`
}

// R2Config targets any S3-compatible endpoint; Cloudflare R2 in production.
type R2Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// ProxyConfig points at an optional rewriting proxy that accepts
// ?url=<percent-encoded target> and relays the target's JSON body.
type ProxyConfig struct {
	WorkerURL string `mapstructure:"worker_url"`
}

type KlinesConfig struct {
	AlphaBaseURL string        `mapstructure:"alpha_base_url"`
	AggBaseURL   string        `mapstructure:"agg_base_url"`
	Interval     string        `mapstructure:"interval"`
	LimitHours   int           `mapstructure:"limit_hours"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type PipelineConfig struct {
	LookbackDays    int           `mapstructure:"lookback_days"`
	Workers         int           `mapstructure:"workers"`
	RequestInterval time.Duration `mapstructure:"request_interval"`
	Note            string        `mapstructure:"note"`
	ActiveKey       string        `mapstructure:"active_key"`
	HistoryKey      string        `mapstructure:"history_key"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 2)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("cron.enabled", false)
	v.SetDefault("cron.refresh", "0 */10 * * * *")
	v.SetDefault("r2.use_ssl", true)
	v.SetDefault("klines.alpha_base_url", "https://www.binance.com/bapi/defi/v1/public/alpha-trade/klines")
	v.SetDefault("klines.interval", "1h")
	v.SetDefault("klines.limit_hours", 168)
	v.SetDefault("klines.timeout", "15s")
	v.SetDefault("pipeline.lookback_days", 0)
	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("pipeline.request_interval", "500ms")
	v.SetDefault("pipeline.note", "7 Days Limit")
	v.SetDefault("pipeline.active_key", "competition-history.json")
	v.SetDefault("pipeline.history_key", "finalized_history.json")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the credentials and endpoints the run cannot proceed
// without. It runs before any network activity; partial credentials must
// never produce a partial artifact.
func (c Config) Validate() error {
	missing := []string{}
	if strings.TrimSpace(c.R2.Endpoint) == "" {
		missing = append(missing, "r2.endpoint")
	}
	if strings.TrimSpace(c.R2.AccessKeyID) == "" {
		missing = append(missing, "r2.access_key_id")
	}
	if strings.TrimSpace(c.R2.SecretAccessKey) == "" {
		missing = append(missing, "r2.secret_access_key")
	}
	if strings.TrimSpace(c.R2.Bucket) == "" {
		missing = append(missing, "r2.bucket")
	}
	if strings.TrimSpace(c.DB.DSN) == "" {
		missing = append(missing, "db.dsn")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}
