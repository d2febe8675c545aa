// Package config loads process configuration for the sentinel-gateway
// binary: defaults, then a YAML file, then environment variable
// overrides, validated before the Gateway is wired.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	sharederrors "github.com/jordigilh/sentinel-gate/pkg/shared/errors"
)

// ServerConfig configures a single evaluate request's end-to-end budget.
type ServerConfig struct {
	Deadline time.Duration `mapstructure:"deadline" validate:"gt=0"`
}

// PolicyConfig locates the policy document.
type PolicyConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// RedisConfig configures the optional shared score/decision cache. Addr
// empty means the in-process sharded LRU is used instead.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AnthropicConfig configures the Anthropic Tier-3 provider.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// BedrockConfig configures the AWS Bedrock Tier-3 provider.
type BedrockConfig struct {
	Region  string `mapstructure:"region"`
	ModelID string `mapstructure:"model_id"`
}

// LangChainConfig configures the local-inference Tier-3 provider.
type LangChainConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// ProvidersConfig lists the Tier-3 provider chain, in failover order.
// An entry with no credentials configured is skipped at wiring time.
type ProvidersConfig struct {
	Order     []string        `mapstructure:"order"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Bedrock   BedrockConfig   `mapstructure:"bedrock"`
	LangChain LangChainConfig `mapstructure:"langchain"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error fatal panic"`
}

// Config is the fully resolved process configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

var structValidator = validator.New()

// DefaultConfig returns the configuration applied before any file or
// environment override.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Deadline: 15 * time.Second,
		},
		Policy: PolicyConfig{
			Path: "config/policy.yaml",
		},
		Providers: ProvidersConfig{
			Order: []string{"anthropic", "bedrock", "langchain"},
			Anthropic: AnthropicConfig{
				Model: "claude-3-5-sonnet-20241022",
			},
			Bedrock: BedrockConfig{
				Region:  "us-east-1",
				ModelID: "anthropic.claude-3-5-sonnet-20241022-v2:0",
			},
			LangChain: LangChainConfig{
				BaseURL: "http://localhost:8080/v1",
				Model:   "local-model",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configPath (if non-empty and present) over the defaults, then
// applies SENTINEL_GATE_-prefixed environment overrides, and validates the
// result. A missing configPath is not an error: defaults plus environment
// overrides are a valid configuration on their own.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	cfg := DefaultConfig()
	bindDefaults(v, cfg)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, sharederrors.FailedToWithDetails("load config file", "config", configPath, err)
			}
		}
	}

	v.SetEnvPrefix("SENTINEL_GATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolved := DefaultConfig()
	if err := v.Unmarshal(resolved); err != nil {
		return nil, sharederrors.ParseError("config", "yaml", err)
	}

	if err := Validate(resolved); err != nil {
		return nil, err
	}
	return resolved, nil
}

// Validate checks struct tags and cross-field invariants the tags cannot
// express (a provider order naming a provider other than anthropic,
// bedrock or langchain).
func Validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return sharederrors.ConfigurationError("config", err.Error())
	}

	known := map[string]bool{"anthropic": true, "bedrock": true, "langchain": true}
	for _, name := range cfg.Providers.Order {
		if !known[name] {
			return sharederrors.ConfigurationError("providers.order", fmt.Sprintf("unknown provider %q", name))
		}
	}
	return nil
}

// bindDefaults seeds viper's own default layer so an absent config file or
// absent keys within a present one still resolve through DefaultConfig.
func bindDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.deadline", cfg.Server.Deadline)
	v.SetDefault("policy.path", cfg.Policy.Path)
	v.SetDefault("providers.order", cfg.Providers.Order)
	v.SetDefault("providers.anthropic.model", cfg.Providers.Anthropic.Model)
	v.SetDefault("providers.bedrock.region", cfg.Providers.Bedrock.Region)
	v.SetDefault("providers.bedrock.model_id", cfg.Providers.Bedrock.ModelID)
	v.SetDefault("providers.langchain.base_url", cfg.Providers.LangChain.BaseURL)
	v.SetDefault("providers.langchain.model", cfg.Providers.LangChain.Model)
	v.SetDefault("logging.level", cfg.Logging.Level)
}
