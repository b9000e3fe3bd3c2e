package config

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path    string `mapstructure:"path"`
	LogMode bool   `mapstructure:"log_mode"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type SecurityConfig struct {
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

type LLMConfig struct {
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	UseMock     bool   `mapstructure:"use_mock"`
	MaxAttempts int    `mapstructure:"max_attempts"`
	TimeoutSec  int    `mapstructure:"timeout_sec"`
}

type PaystackConfig struct {
	SecretKey   string `mapstructure:"secret_key"`
	BaseURL     string `mapstructure:"base_url"`
	CallbackURL string `mapstructure:"callback_url"`
}

type VoiceConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	VoiceID string `mapstructure:"voice_id"`
}

// PackageConfig is one purchasable credit bundle. The catalog is read-only
// and lives entirely in configuration.
type PackageConfig struct {
	Slug         string `mapstructure:"slug"`
	Name         string `mapstructure:"name"`
	BaseCredits  int    `mapstructure:"base_credits"`
	BonusCredits int    `mapstructure:"bonus_credits"`
	PriceMinor   int64  `mapstructure:"price_minor"`
	Currency     string `mapstructure:"currency"`
}

type CreditsConfig struct {
	InterviewCost    int             `mapstructure:"interview_cost"`
	PresentationCost int             `mapstructure:"presentation_cost"`
	Packages         []PackageConfig `mapstructure:"packages"`
}

type AppSubConfig struct {
	PageSize int `mapstructure:"page_size"`
	MaxTurns int `mapstructure:"max_turns"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Security SecurityConfig `mapstructure:"security"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Paystack PaystackConfig `mapstructure:"paystack"`
	Voice    VoiceConfig    `mapstructure:"voice"`
	Credits  CreditsConfig  `mapstructure:"credits"`
	App      AppSubConfig   `mapstructure:"app"`
}

var (
	appConfig *Config
	once      sync.Once
)

// Load loads configuration from given file path (e.g. "config.yaml").
// If path is empty, it defaults to "config.yaml" in current working directory.
func Load(path string) (*Config, error) {
	var err error
	once.Do(func() {
		v := viper.New()

		if path == "" {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath(".")
		} else {
			v.SetConfigFile(path)
		}

		// environment overrides, e.g. PDM_SERVER_PORT=9000
		v.SetEnvPrefix("PDM")
		v.AutomaticEnv()

		if err = v.ReadInConfig(); err != nil {
			err = fmt.Errorf("read config: %w", err)
			return
		}

		var c Config
		if err = v.Unmarshal(&c); err != nil {
			err = fmt.Errorf("unmarshal config: %w", err)
			return
		}

		applyDefaults(&c)
		appConfig = &c
	})

	if err != nil {
		return nil, err
	}
	return appConfig, nil
}

func applyDefaults(c *Config) {
	if c.Security.BcryptCost <= 0 {
		c.Security.BcryptCost = 12
	}
	if c.JWT.ExpireHours <= 0 {
		c.JWT.ExpireHours = 24
	}
	if c.LLM.MaxAttempts <= 0 {
		c.LLM.MaxAttempts = 3
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 30
	}
	if c.Paystack.BaseURL == "" {
		c.Paystack.BaseURL = "https://api.paystack.co"
	}
	if c.Voice.BaseURL == "" {
		c.Voice.BaseURL = "https://api.elevenlabs.io"
	}
	if c.Credits.InterviewCost <= 0 {
		c.Credits.InterviewCost = 10
	}
	if c.Credits.PresentationCost <= 0 {
		c.Credits.PresentationCost = 15
	}
	if c.App.PageSize <= 0 {
		c.App.PageSize = 20
	}
	if c.App.MaxTurns <= 0 {
		c.App.MaxTurns = 6
	}
}

// Get returns the loaded global configuration.
// Call Load() once at application startup.
func Get() *Config {
	return appConfig
}
