package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppName     string `yaml:"appName" json:"appName"`
	Port        string `yaml:"port" json:"port"`
	Env         string `yaml:"env" json:"env"` // development | production | test
	DBURL       string `yaml:"dbUrl" json:"dbUrl"`
	AutoMigrate bool   `yaml:"autoMigrate" json:"autoMigrate"`

	// uploads (local disk)
	FilesRoot      string `yaml:"filesRoot" json:"filesRoot"`
	UploadURLPath  string `yaml:"uploadUrlPath" json:"uploadUrlPath"`
	MaxUploadBytes int64  `yaml:"maxUploadBytes" json:"maxUploadBytes"`

	AuthSecret string `yaml:"authSecret" json:"authSecret"`

	LogLevel  string `yaml:"logLevel" json:"logLevel"`
	LogFormat string `yaml:"logFormat" json:"logFormat"` // json | text

	SeedDir string `yaml:"seedDir" json:"seedDir"`
}

const envPrefix = "METAREST_"

func def() Config {
	return Config{
		AppName:     "metarest",
		Port:        "8080",
		Env:         "development",
		DBURL:       "",
		AutoMigrate: false,

		FilesRoot:      "uploads",
		UploadURLPath:  "/uploads",
		MaxUploadBytes: 10 << 20,

		LogLevel:  "info",
		LogFormat: "json",

		SeedDir: "seed",
	}
}

// IsProduction reports whether error details must be hidden from clients.
func (c Config) IsProduction() bool { return c.Env == "production" }

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.AuthSecret) == "" {
		errs = append(errs, errors.New("authSecret is required"))
	}
	switch c.Env {
	case "development", "production", "test":
	default:
		errs = append(errs, fmt.Errorf("env %q must be development, production or test", c.Env))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("maxUploadBytes must be positive"))
	}
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("port is required"))
	}
	return errors.Join(errs...)
}

// loadFile reads YAML (JSON is valid YAML) on top of cfg.
func loadFile(path string, cfg Config) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(envPrefix + k); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getenvBool(k string, fallback bool) bool {
	if v, ok := os.LookupEnv(envPrefix + k); ok {
		v = strings.TrimSpace(strings.ToLower(v))
		if v == "1" || v == "true" || v == "yes" {
			return true
		}
		if v == "0" || v == "false" || v == "no" {
			return false
		}
	}
	return fallback
}

func getenvInt64(k string, fallback int64) int64 {
	if v, ok := os.LookupEnv(envPrefix + k); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

// BindFlags declares the command-line overrides on fs.
func BindFlags(fs *pflag.FlagSet) {
	d := def()
	fs.String("config", "config.yaml", "Path to config file (YAML or JSON)")
	fs.String("env-file", ".env", "Path to .env file")
	fs.String("port", d.Port, "HTTP port")
	fs.String("env", d.Env, "Environment (development/production/test)")
	fs.String("db", d.DBURL, "Postgres URL (empty = in-memory)")
	fs.Bool("auto-migrate", d.AutoMigrate, "Create missing tables on start")
	fs.String("files-root", d.FilesRoot, "Local directory for uploaded files")
	fs.Int64("max-upload-bytes", d.MaxUploadBytes, "Per-file upload limit in bytes")
	fs.String("auth-secret", "", "HS256 secret for bearer tokens")
	fs.String("log-level", d.LogLevel, "Log level (debug/info/warn/error)")
	fs.String("log-format", d.LogFormat, "Log format (json/text)")
	fs.String("seed-dir", d.SeedDir, "Directory with *.sql seed files")
}

// Load layers defaults, the config file, .env, METAREST_* variables and
// explicitly set flags, in that order. fs may be nil.
func Load(fs *pflag.FlagSet) (Config, error) {
	cfg := def()

	path := flagString(fs, "config", "config.yaml")
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		c2, err := loadFile(path, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = c2
	}

	envFile := flagString(fs, "env-file", ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return cfg, fmt.Errorf("env file %s: %w", envFile, err)
		}
	}

	cfg.AppName = getenv("APP_NAME", cfg.AppName)
	cfg.Port = getenv("PORT", cfg.Port)
	cfg.Env = getenv("ENV", cfg.Env)
	cfg.DBURL = getenv("DB_URL", cfg.DBURL)
	cfg.AutoMigrate = getenvBool("AUTO_MIGRATE", cfg.AutoMigrate)
	cfg.FilesRoot = getenv("FILES_ROOT", cfg.FilesRoot)
	cfg.UploadURLPath = getenv("UPLOAD_URL_PATH", cfg.UploadURLPath)
	cfg.MaxUploadBytes = getenvInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.AuthSecret = getenv("AUTH_SECRET", cfg.AuthSecret)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenv("LOG_FORMAT", cfg.LogFormat)
	cfg.SeedDir = getenv("SEED_DIR", cfg.SeedDir)

	if fs != nil {
		var err error
		fs.Visit(func(f *pflag.Flag) {
			if err != nil {
				return
			}
			v := strings.TrimSpace(f.Value.String())
			switch f.Name {
			case "port":
				cfg.Port = v
			case "env":
				cfg.Env = v
			case "db":
				cfg.DBURL = v
			case "auto-migrate":
				cfg.AutoMigrate, err = strconv.ParseBool(v)
			case "files-root":
				cfg.FilesRoot = v
			case "max-upload-bytes":
				cfg.MaxUploadBytes, err = strconv.ParseInt(v, 10, 64)
			case "auth-secret":
				cfg.AuthSecret = v
			case "log-level":
				cfg.LogLevel = v
			case "log-format":
				cfg.LogFormat = v
			case "seed-dir":
				cfg.SeedDir = v
			}
		})
		if err != nil {
			return cfg, err
		}
	}

	cfg.UploadURLPath = "/" + strings.Trim(cfg.UploadURLPath, "/")
	return cfg, nil
}

func flagString(fs *pflag.FlagSet, name, fallback string) string {
	if fs == nil || fs.Lookup(name) == nil {
		return fallback
	}
	v, err := fs.GetString(name)
	if err != nil || v == "" {
		return fallback
	}
	return v
}
