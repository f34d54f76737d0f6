package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/raysh454/fastscan/internal/backend"
	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/webclient"
)

// EnvPrefix prefixes every environment override, e.g. FASTSCAN_CLIENT_BACKEND_URL.
const EnvPrefix = "FASTSCAN"

// Stats transports.
const (
	StatsPoll = "poll"
	StatsWS   = "ws"
)

// Config is the runtime configuration shared by the CLI and the devserver.
type Config struct {
	Client  ClientConfig  `mapstructure:"client"`
	Server  ServerConfig  `mapstructure:"server"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ClientConfig configures the CLI. StatsTransport picks how stats -watch
// refreshes: StatsPoll or StatsWS.
type ClientConfig struct {
	BackendURL     string        `mapstructure:"backend_url"`
	StatePath      string        `mapstructure:"state_path"`
	StatsInterval  time.Duration `mapstructure:"stats_interval"`
	StatsTransport string        `mapstructure:"stats_transport"`
	HistoryLimit   int           `mapstructure:"history_limit"`
	UserAgent      string        `mapstructure:"user_agent"`
}

type ServerConfig struct {
	ListenAddr      string  `mapstructure:"listen_addr"`
	DBPath          string  `mapstructure:"db_path"`
	SafeBrowsingKey string  `mapstructure:"safe_browsing_key"`
	ScanRate        float64 `mapstructure:"scan_rate"`
	ScanBurst       int     `mapstructure:"scan_burst"`
}

// FetchConfig drives the backend's outbound page fetches.
type FetchConfig struct {
	Client    string        `mapstructure:"client"`
	Timeout   time.Duration `mapstructure:"timeout"`
	IdleAfter time.Duration `mapstructure:"idle_after"`
	Headless  bool          `mapstructure:"headless"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a Config populated with sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			BackendURL:    "http://localhost:5000",
			StatePath:     "~/.config/fastscan/state.db",
			StatsInterval:  30 * time.Second,
			StatsTransport: StatsPoll,
			HistoryLimit:   10,
			UserAgent:      "fastscan-client/1.0",
		},
		Server: ServerConfig{
			ListenAddr: ":5000",
			DBPath:     "~/.config/fastscan/backend.db",
			ScanRate:   0.5,
			ScanBurst:  5,
		},
		Fetch: FetchConfig{
			Client:    string(webclient.ClientNetHTTP),
			Timeout:   webclient.DefaultTimeout,
			IdleAfter: webclient.DefaultIdleAfter,
			Headless:  true,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("client.backend_url", d.Client.BackendURL)
	v.SetDefault("client.state_path", d.Client.StatePath)
	v.SetDefault("client.stats_interval", d.Client.StatsInterval)
	v.SetDefault("client.stats_transport", d.Client.StatsTransport)
	v.SetDefault("client.history_limit", d.Client.HistoryLimit)
	v.SetDefault("client.user_agent", d.Client.UserAgent)

	v.SetDefault("server.listen_addr", d.Server.ListenAddr)
	v.SetDefault("server.db_path", d.Server.DBPath)
	v.SetDefault("server.safe_browsing_key", d.Server.SafeBrowsingKey)
	v.SetDefault("server.scan_rate", d.Server.ScanRate)
	v.SetDefault("server.scan_burst", d.Server.ScanBurst)

	v.SetDefault("fetch.client", d.Fetch.Client)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.idle_after", d.Fetch.IdleAfter)
	v.SetDefault("fetch.headless", d.Fetch.Headless)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// LoadConfig layers defaults, an optional YAML file, a .env file and
// FASTSCAN_* environment variables, in increasing priority. An empty path
// looks for fastscan.yaml in the working directory and ~/.config/fastscan.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fastscan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "fastscan"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// WebClientConfig converts the fetch section for the webclient factory.
func (c *Config) WebClientConfig() webclient.Config {
	return webclient.Config{
		Client:    webclient.Client(c.Fetch.Client),
		Timeout:   c.Fetch.Timeout,
		IdleAfter: c.Fetch.IdleAfter,
		Headless:  c.Fetch.Headless,
	}
}

// BackendConfig builds the devserver configuration.
func (c *Config) BackendConfig(logger logging.Logger) (backend.Config, error) {
	dbPath, err := expandPath(c.Server.DBPath)
	if err != nil {
		return backend.Config{}, fmt.Errorf("expanding db path: %w", err)
	}
	return backend.Config{
		ListenAddr:      c.Server.ListenAddr,
		DBPath:          dbPath,
		Fetch:           c.WebClientConfig(),
		SafeBrowsingKey: c.Server.SafeBrowsingKey,
		ScanRate:        c.Server.ScanRate,
		ScanBurst:       c.Server.ScanBurst,
		Logger:          logger,
	}, nil
}

// NewLogger builds the logger named by cfg.Format: "stdout" selects the
// JSON-lines StdoutLogger, anything else zap.
func NewLogger(cfg LoggingConfig, component string) (logging.Logger, error) {
	if strings.EqualFold(cfg.Format, "stdout") {
		return logging.NewStdoutLogger(component), nil
	}
	z, err := logging.NewZapLogger(cfg.Level, cfg.Format)
	if err != nil {
		return nil, err
	}
	return z.With(logging.Field{Key: "component", Value: component}), nil
}

func expandPath(p string) (string, error) {
	if p == ":memory:" {
		return p, nil
	}
	if len(p) > 0 && p[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, p[1:]), nil
	}
	return p, nil
}
