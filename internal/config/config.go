package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Series sources understood by the server.
const (
	SourceMock   = "mock"
	SourceMySQL  = "mysql"
	SourceSQLite = "sqlite"
)

// Config holds runtime configuration for the dashboard server.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Debug           bool

	ProgressInterval     time.Duration
	SessionIdleTTL       time.Duration
	SessionSweepInterval time.Duration

	SeriesSource   string
	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	DBConnTimeout  time.Duration
	DBQueryTimeout time.Duration
	SQLitePath     string

	OTelEndpoint string
	ServiceName  string
}

// envSettings mirrors the environment variables one to one. Durations are
// given in whole seconds or milliseconds, as the variable names say.
type envSettings struct {
	ListenAddr         string `env:"APP_LISTEN_ADDR" envDefault:":8050"`
	ReadTimeoutSec     int    `env:"APP_READ_TIMEOUT_SEC" envDefault:"10"`
	WriteTimeoutSec    int    `env:"APP_WRITE_TIMEOUT_SEC" envDefault:"20"`
	ShutdownTimeoutSec int    `env:"APP_SHUTDOWN_TIMEOUT_SEC" envDefault:"10"`
	Debug              bool   `env:"APP_DEBUG" envDefault:"false"`

	ProgressIntervalMS int `env:"APP_PROGRESS_INTERVAL_MS" envDefault:"500"`
	SessionIdleTTLSec  int `env:"APP_SESSION_IDLE_TTL_SEC" envDefault:"1800"`
	SessionSweepSec    int `env:"APP_SESSION_SWEEP_SEC" envDefault:"60"`

	SeriesSource      string `env:"APP_SERIES_SOURCE" envDefault:"mock"`
	DBHost            string `env:"APP_DB_HOST" envDefault:"127.0.0.1"`
	DBPort            int    `env:"APP_DB_PORT" envDefault:"3306"`
	DBUser            string `env:"APP_DB_USER" envDefault:"avocado"`
	DBPassword        string `env:"APP_DB_PASSWORD"`
	DBName            string `env:"APP_DB_NAME" envDefault:"avocado"`
	DBConnTimeoutSec  int    `env:"APP_DB_CONN_TIMEOUT_SEC" envDefault:"5"`
	DBQueryTimeoutSec int    `env:"APP_DB_QUERY_TIMEOUT_SEC" envDefault:"10"`
	SQLitePath        string `env:"APP_SQLITE_PATH"`

	OTelEndpoint string `env:"APP_OTEL_ENDPOINT"`
	ServiceName  string `env:"APP_SERVICE_NAME" envDefault:"avocado-ui"`
}

// FromEnv loads configuration from environment variables, after filling unset
// variables from the first env files found on disk.
func FromEnv() (Config, error) {
	loadConfigDefaultsFromFile()

	var s envSettings
	if err := env.Parse(&s); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		ListenAddr:           strings.TrimSpace(s.ListenAddr),
		ReadTimeout:          seconds(s.ReadTimeoutSec),
		WriteTimeout:         seconds(s.WriteTimeoutSec),
		ShutdownTimeout:      seconds(s.ShutdownTimeoutSec),
		Debug:                s.Debug,
		ProgressInterval:     time.Duration(s.ProgressIntervalMS) * time.Millisecond,
		SessionIdleTTL:       seconds(s.SessionIdleTTLSec),
		SessionSweepInterval: seconds(s.SessionSweepSec),
		SeriesSource:         strings.ToLower(strings.TrimSpace(s.SeriesSource)),
		DBHost:               s.DBHost,
		DBPort:               s.DBPort,
		DBUser:               s.DBUser,
		DBPassword:           s.DBPassword,
		DBName:               s.DBName,
		DBConnTimeout:        seconds(s.DBConnTimeoutSec),
		DBQueryTimeout:       seconds(s.DBQueryTimeoutSec),
		SQLitePath:           strings.TrimSpace(s.SQLitePath),
		OTelEndpoint:         strings.TrimSpace(s.OTelEndpoint),
		ServiceName:          s.ServiceName,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("APP_LISTEN_ADDR must not be empty")
	}
	if c.ProgressInterval <= 0 {
		return fmt.Errorf("APP_PROGRESS_INTERVAL_MS must be positive")
	}
	switch c.SeriesSource {
	case SourceMock, SourceMySQL:
	case SourceSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("APP_SQLITE_PATH is required when APP_SERIES_SOURCE=sqlite")
		}
	default:
		return fmt.Errorf("unknown APP_SERIES_SOURCE %q (want mock, mysql or sqlite)", c.SeriesSource)
	}
	return nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func loadConfigDefaultsFromFile() {
	for _, candidate := range []string{"./avocado-ui.env", "/etc/default/avocado-ui"} {
		_ = applyEnvDefaultsFromFile(absPath(candidate))
	}

	if explicit := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); explicit != "" {
		_ = applyEnvDefaultsFromFile(absPath(explicit))
	}
}

func absPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, p)
	}
	return p
}

// applyEnvDefaultsFromFile sets KEY=VALUE pairs from path for every key not
// already present in the environment.
func applyEnvDefaultsFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if key == "" {
			continue
		}
		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}

		if _, set := os.LookupEnv(key); !set {
			_ = os.Setenv(key, val)
		}
	}

	return scanner.Err()
}

// MySQLDSN returns a mysql driver DSN with safe defaults for TCP access.
func (c Config) MySQLDSN() string {
	params := url.Values{}
	params.Set("parseTime", "true")
	params.Set("timeout", c.DBConnTimeout.String())
	params.Set("readTimeout", c.DBQueryTimeout.String())
	params.Set("writeTimeout", c.DBQueryTimeout.String())
	params.Set("charset", "utf8mb4")
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, params.Encode())
}
