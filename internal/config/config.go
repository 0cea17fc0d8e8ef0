package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full engine configuration. Values come from defaults,
// an optional config file, and ASKCODE_* environment variables, in
// ascending precedence.
type Config struct {
	// Vector store
	StoreURL     string        `mapstructure:"storeUrl"`
	StoreClass   string        `mapstructure:"storeClass"`
	StoreTimeout time.Duration `mapstructure:"storeTimeout"`
	EmbedVersion string        `mapstructure:"embedVersion"`

	// Remote model providers
	OpenAIAPIKey     string        `mapstructure:"openaiApiKey"`
	OpenAIBaseURL    string        `mapstructure:"openaiBaseUrl"`
	EmbedModel       string        `mapstructure:"embedModel"`
	ChatModel        string        `mapstructure:"chatModel"`
	CallTimeout      time.Duration `mapstructure:"callTimeout"`
	RetryBackoff     time.Duration `mapstructure:"retryBackoff"`
	EmbedConcurrency int64         `mapstructure:"embedConcurrency"`
	EmbedCacheSize   int           `mapstructure:"embedCacheSize"`

	// Budget
	MaxBudgetUSD float64 `mapstructure:"maxBudgetUsd"`

	// Retrieval
	TopK            int  `mapstructure:"topK"`
	MaxSnippetChars int  `mapstructure:"maxSnippetChars"`
	MinLines        int  `mapstructure:"minLines"`
	AutoConfirm     bool `mapstructure:"autoConfirm"`

	// Channel weight profiles, keyed by question category then channel name.
	Weights map[string]map[string]float64 `mapstructure:"weights"`

	// Metrics push
	PushgatewayURL string        `mapstructure:"pushgatewayUrl"`
	PushJob        string        `mapstructure:"pushJob"`
	PushInterval   time.Duration `mapstructure:"pushInterval"`

	// Diagnostic trace
	TraceLogPath string `mapstructure:"traceLogPath"`
}

// defaultWeights mirrors the shipped query weight profiles. A config file
// may override any profile; unknown categories fall back to "default".
func defaultWeights() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"purpose": {
			"exact": 1.2, "signature": 1.1, "def": 1.3, "content": 0.8,
			"keywords": 0.4, "context": 0.6, "callers": 0.5,
		},
		"implementation": {
			"exact": 1.0, "signature": 0.9, "def": 0.8, "content": 1.3,
			"keywords": 0.5, "context": 0.8, "callers": 0.7,
		},
		"parameter": {
			"exact": 1.1, "signature": 1.0, "def": 1.2, "content": 0.7,
			"keywords": 0.6, "context": 0.5, "callers": 0.4,
		},
		"default": {
			"exact": 1.0, "signature": 0.9, "def": 0.9, "content": 0.9,
			"keywords": 0.3, "context": 0.6, "callers": 0.5,
		},
	}
}

// Load reads configuration. configPath may be empty, in which case only
// defaults and environment variables apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("storeUrl", "http://127.0.0.1:8080")
	v.SetDefault("storeClass", "CodeFragment")
	v.SetDefault("storeTimeout", 15*time.Second)
	v.SetDefault("embedVersion", "v1")

	v.SetDefault("openaiBaseUrl", "")
	v.SetDefault("embedModel", "text-embedding-3-large")
	v.SetDefault("chatModel", "gpt-4-turbo")
	v.SetDefault("callTimeout", 30*time.Second)
	v.SetDefault("retryBackoff", 10*time.Second)
	v.SetDefault("embedConcurrency", 5)
	v.SetDefault("embedCacheSize", 10000)

	v.SetDefault("maxBudgetUsd", 100.0)

	v.SetDefault("topK", 15)
	v.SetDefault("maxSnippetChars", 600)
	v.SetDefault("minLines", 10)
	v.SetDefault("autoConfirm", true)

	v.SetDefault("weights", defaultWeights())

	v.SetDefault("pushgatewayUrl", "")
	v.SetDefault("pushJob", "askcode")
	v.SetDefault("pushInterval", time.Minute)

	v.SetDefault("traceLogPath", "askcode_trace.db")

	v.SetEnvPrefix("ASKCODE")
	v.AutomaticEnv()
	// OPENAI_API_KEY is the conventional name; honor it without the prefix.
	_ = v.BindEnv("openaiApiKey", "ASKCODE_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("storeUrl", "ASKCODE_STORE_URL", "WEAVIATE_URL")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the engine cannot operate with.
func (c *Config) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("topK must be positive, got %d", c.TopK)
	}
	if c.MaxSnippetChars <= 0 {
		return fmt.Errorf("maxSnippetChars must be positive, got %d", c.MaxSnippetChars)
	}
	if c.EmbedConcurrency <= 0 {
		return fmt.Errorf("embedConcurrency must be positive, got %d", c.EmbedConcurrency)
	}
	if c.MaxBudgetUSD < 0 {
		return fmt.Errorf("maxBudgetUsd cannot be negative, got %f", c.MaxBudgetUSD)
	}
	if _, ok := c.Weights["default"]; !ok {
		return fmt.Errorf("weights must include a default profile")
	}
	return nil
}
