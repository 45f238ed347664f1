package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/danhigham/tglab/internal/domain"
)

type Config struct {
	Telegram     TelegramConfig `yaml:"telegram"`
	MasterSecret string         `yaml:"master_secret" env:"MASTER_SECRET"`
	SvcToken     string         `yaml:"svc_token" env:"SVC_TOKEN"`
	Listen       string         `yaml:"listen" env:"LISTEN" env-default:"0.0.0.0:10111"`
	LogLevel     string         `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	PollInterval time.Duration  `yaml:"poll_interval" env:"POLL_INTERVAL" env-default:"1s"`
	State        StateConfig    `yaml:"state"`
	Defaults     DefaultsConfig `yaml:"defaults"`
}

type TelegramConfig struct {
	APIToken    string        `yaml:"api_token" env:"TELEGRAM_API_TOKEN"`
	Transport   string        `yaml:"transport" env:"TELEGRAM_TRANSPORT" env-default:"botapi"`
	APIEndpoint string        `yaml:"api_endpoint" env:"TELEGRAM_API_ENDPOINT"`
	APIID       int           `yaml:"api_id" env:"TELEGRAM_API_ID"`
	APIHash     string        `yaml:"api_hash" env:"TELEGRAM_API_HASH"`
	SessionDir  string        `yaml:"session_dir" env:"TELEGRAM_SESSION_DIR"`
	PollTimeout time.Duration `yaml:"poll_timeout" env:"TELEGRAM_POLL_TIMEOUT" env-default:"10s"`
}

type StateConfig struct {
	Backend string `yaml:"backend" env:"STATE_BACKEND" env-default:"file"`
	Path    string `yaml:"path" env:"STATE_PATH"`
}

// DefaultsConfig holds lifetimes in minutes.
type DefaultsConfig struct {
	ChatLifetime      int    `yaml:"chat_lifetime" env:"DEFAULT_CHAT_LIFETIME" env-default:"1"`
	OTPLifetime       int    `yaml:"otp_lifetime" env:"DEFAULT_OTP_LIFETIME" env-default:"1"`
	OTPType           string `yaml:"otp_type" env:"DEFAULT_OTP_TYPE" env-default:"private"`
	ChallengeLifetime int    `yaml:"challenge_lifetime" env:"DEFAULT_CHALLENGE_LIFETIME" env-default:"1"`
}

func (d DefaultsConfig) Domain() domain.Defaults {
	return domain.Defaults{
		ChatLifetime:      d.ChatLifetime,
		OTPLifetime:       d.OTPLifetime,
		OTPType:           domain.TokenType(d.OTPType),
		ChallengeLifetime: d.ChallengeLifetime,
	}
}

const (
	TransportBotAPI  = "botapi"
	TransportMTProto = "mtproto"
	TransportConsole = "console"
)

func Dir() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		cfgDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(cfgDir, "tglab")
}

// Load reads the YAML file at path, then applies environment overrides
// and defaults. An empty path loads from the environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if cfg.MasterSecret == "" {
		cfg.MasterSecret = cfg.Telegram.APIToken
	}
	if cfg.State.Path == "" {
		name := "state.json"
		if cfg.State.Backend == "bolt" {
			name = "state.db"
		}
		cfg.State.Path = filepath.Join(Dir(), name)
	}
	if cfg.Telegram.SessionDir == "" {
		cfg.Telegram.SessionDir = Dir()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.Telegram.Transport {
	case TransportBotAPI:
		if c.Telegram.APIToken == "" {
			errs = append(errs, errors.New("telegram.api_token is required"))
		}
	case TransportMTProto:
		if c.Telegram.APIToken == "" || c.Telegram.APIID == 0 || c.Telegram.APIHash == "" {
			errs = append(errs, errors.New("telegram.api_token, api_id and api_hash are required for mtproto"))
		}
	case TransportConsole:
	default:
		errs = append(errs, fmt.Errorf("unknown telegram.transport %q", c.Telegram.Transport))
	}

	if c.MasterSecret == "" {
		errs = append(errs, errors.New("master_secret is required"))
	}
	if _, ok := domain.ParseTokenType(c.Defaults.OTPType); !ok {
		errs = append(errs, fmt.Errorf("defaults.otp_type %q is not a token type", c.Defaults.OTPType))
	}
	for name, v := range map[string]int{
		"chat_lifetime":      c.Defaults.ChatLifetime,
		"otp_lifetime":       c.Defaults.OTPLifetime,
		"challenge_lifetime": c.Defaults.ChallengeLifetime,
	} {
		if v < 1 {
			errs = append(errs, fmt.Errorf("defaults.%s must be at least 1 minute", name))
		}
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
