package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Dataset   DatasetConfig   `yaml:"dataset" mapstructure:"dataset"`
	Enhance   EnhanceConfig   `yaml:"enhance" mapstructure:"enhance"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Prompts   PromptsConfig   `yaml:"prompts" mapstructure:"prompts"`
	Variant   VariantConfig   `yaml:"variant" mapstructure:"variant"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DatasetConfig names the catalog columns and file encoding. Defaults match
// the Slovak gastro catalog export the tool was built for.
type DatasetConfig struct {
	IdentifierColumn     string   `yaml:"identifier_column" mapstructure:"identifier_column"`
	NameColumn           string   `yaml:"name_column" mapstructure:"name_column"`
	ParentColumn         string   `yaml:"parent_column" mapstructure:"parent_column"`
	ManufacturerColumn   string   `yaml:"manufacturer_column" mapstructure:"manufacturer_column"`
	ProcessedColumn      string   `yaml:"processed_column" mapstructure:"processed_column"`
	ProcessedDateColumn  string   `yaml:"processed_date_column" mapstructure:"processed_date_column"`
	ContentColumns       []string `yaml:"content_columns" mapstructure:"content_columns"`
	Encoding             string   `yaml:"encoding" mapstructure:"encoding"`
	CheckpointPath       string   `yaml:"checkpoint_path" mapstructure:"checkpoint_path"`
}

// EnhanceConfig tunes the enhancement engine.
type EnhanceConfig struct {
	BatchSize            int     `yaml:"batch_size" mapstructure:"batch_size"`
	MaxWorkers           int     `yaml:"max_workers" mapstructure:"max_workers"`
	CallBudgetPerMinute  int     `yaml:"call_budget_per_minute" mapstructure:"call_budget_per_minute"`
	TokenBudgetPerMinute int     `yaml:"token_budget_per_minute" mapstructure:"token_budget_per_minute"`
	MaxRetryAttempts     int     `yaml:"max_retry_attempts" mapstructure:"max_retry_attempts"`
	FuzzyMatchThreshold  float64 `yaml:"fuzzy_match_threshold" mapstructure:"fuzzy_match_threshold"`
	CooldownSecs         int     `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// PromptsConfig locates the system prompt profiles.
type PromptsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// VariantConfig tunes variant detection.
type VariantConfig struct {
	SimilarityThreshold  float64  `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	MinBaseLength        int      `yaml:"min_base_length" mapstructure:"min_base_length"`
	ExcludeManufacturers []string `yaml:"exclude_manufacturers" mapstructure:"exclude_manufacturers"`
	ReportPath           string   `yaml:"report_path" mapstructure:"report_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("dataset.identifier_column", "Kat. číslo")
	v.SetDefault("dataset.name_column", "Názov tovaru")
	v.SetDefault("dataset.parent_column", "Kat. číslo rodiča")
	v.SetDefault("dataset.manufacturer_column", "Výrobca")
	v.SetDefault("dataset.processed_column", "Spracovane AI")
	v.SetDefault("dataset.processed_date_column", "AI_Processed_Date")
	v.SetDefault("dataset.content_columns", []string{
		"Krátky popis", "Dlhý popis", "SEO titulka", "SEO popis", "SEO kľúčové slová",
	})
	v.SetDefault("dataset.encoding", "windows-1250")
	v.SetDefault("dataset.checkpoint_path", "tmp/processed_tmp.csv")
	v.SetDefault("enhance.batch_size", 50)
	v.SetDefault("enhance.max_workers", 5)
	v.SetDefault("enhance.call_budget_per_minute", 15)
	v.SetDefault("enhance.token_budget_per_minute", 250000)
	v.SetDefault("enhance.max_retry_attempts", 3)
	v.SetDefault("enhance.fuzzy_match_threshold", 85)
	v.SetDefault("enhance.cooldown_secs", 60)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.temperature", 0.3)
	v.SetDefault("prompts.path", "prompts.yaml")
	v.SetDefault("variant.similarity_threshold", 0.98)
	v.SetDefault("variant.min_base_length", 8)
	v.SetDefault("variant.exclude_manufacturers", []string{"Liebherr"})
	v.SetDefault("variant.report_path", "variant_report.txt")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable for the given mode
// ("enhance" or "variants"). Errors list every problem found.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(cond bool, msg string) {
		if cond {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case "enhance":
		check(c.Anthropic.Key == "", "anthropic.key is required")
		check(c.Enhance.BatchSize < 1 || c.Enhance.BatchSize > 500,
			"enhance.batch_size must be between 1 and 500")
		check(c.Enhance.MaxWorkers < 1 || c.Enhance.MaxWorkers > 50,
			"enhance.max_workers must be between 1 and 50")
		check(c.Enhance.CallBudgetPerMinute < 1, "enhance.call_budget_per_minute must be > 0")
		check(c.Enhance.TokenBudgetPerMinute < 1, "enhance.token_budget_per_minute must be > 0")
		check(c.Enhance.FuzzyMatchThreshold <= 0 || c.Enhance.FuzzyMatchThreshold > 100,
			"enhance.fuzzy_match_threshold must be in (0, 100]")
		check(len(c.Dataset.ContentColumns) == 0, "dataset.content_columns must not be empty")
	case "variants":
		check(c.Variant.SimilarityThreshold <= 0 || c.Variant.SimilarityThreshold > 1,
			"variant.similarity_threshold must be in (0, 1]")
		check(c.Variant.MinBaseLength < 1, "variant.min_base_length must be > 0")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
