package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath  = "config.json"
	DefaultSecretsPath = "secrets.env"
	DefaultProvider    = "openai"
	DefaultDatabase    = "sqlite3"
)

// Config represents runtime configuration for every subcommand.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Providers   map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Databases   map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	Analysis    AnalysisConfig            `json:"analysis" yaml:"analysis"`
	Preprocess  PreprocessConfig          `json:"preprocess" yaml:"preprocess"`
	Labeling    LabelingConfig            `json:"labeling" yaml:"labeling"`
	Logging     LoggingConfig             `json:"logging" yaml:"logging"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address" yaml:"server_address"`
	Database      string `json:"database" yaml:"database"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
	Params   string `json:"params" yaml:"params"`
}

type RedisConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Host       string `json:"host" yaml:"host"`
	Port       int    `json:"port" yaml:"port"`
	Username   string `json:"username" yaml:"username"`
	Password   string `json:"password" yaml:"password"`
	DB         int    `json:"db" yaml:"db"`
	TTLMinutes int    `json:"ttl_minutes" yaml:"ttl_minutes"`
}

type AnalysisConfig struct {
	Provider              string `json:"provider" yaml:"provider"`
	Model                 string `json:"model" yaml:"model"`
	InputPath             string `json:"input_path" yaml:"input_path"`
	OutputPath            string `json:"output_path" yaml:"output_path"`
	DelayMillis           int    `json:"delay_ms" yaml:"delay_ms"`
	MaxRetries            int    `json:"max_retries" yaml:"max_retries"`
	BackoffBaseMillis     int    `json:"backoff_base_ms" yaml:"backoff_base_ms"`
	BackoffMaxMillis      int    `json:"backoff_max_ms" yaml:"backoff_max_ms"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	// CachePath enables the local bolt cache when redis is disabled.
	CachePath string `json:"cache_path" yaml:"cache_path"`
}

type PreprocessConfig struct {
	RawPath          string `json:"raw_path" yaml:"raw_path"`
	BotSenderID      string `json:"bot_sender_id" yaml:"bot_sender_id"`
	MaxConversations int    `json:"max_conversations" yaml:"max_conversations"`
}

type LabelingConfig struct {
	AuthToken        string `json:"auth_token" yaml:"auth_token"`
	LabeledBy        string `json:"labeled_by" yaml:"labeled_by"`
	ResultsPath      string `json:"results_path" yaml:"results_path"`
	FineTuneDataPath string `json:"fine_tune_path" yaml:"fine_tune_path"`
}

type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	OutputPath string `json:"output_path" yaml:"output_path"`
	Encoding   string `json:"encoding" yaml:"encoding"`
	DevMode    bool   `json:"dev_mode" yaml:"dev_mode"`
}

// envOverrides holds the variables that win over the config file.
type envOverrides struct {
	OpenAIKey    string `env:"OPENAI_API_KEY"`
	AnthropicKey string `env:"ANTHROPIC_API_KEY"`
	GeminiKey    string `env:"GEMINI_API_KEY"`
	Provider     string `env:"CONVANALYZER_PROVIDER"`
	Model        string `env:"CONVANALYZER_MODEL"`
	Database     string `env:"CONVANALYZER_DB"`
	LogLevel     string `env:"CONVANALYZER_LOG_LEVEL"`
	RedisAddr    string `env:"CONVANALYZER_REDIS_ADDR"`
	AuthToken    string `env:"CONVANALYZER_LABELING_TOKEN"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress: ":8090",
			Database:      DefaultDatabase,
		},
		Providers: map[string]ProviderConfig{
			"openai": {Model: "gpt-5"},
			"claude": {Model: "claude-sonnet-4-5"},
			"gemini": {Model: "gemini-2.5-flash"},
		},
		Databases: map[string]DatabaseConfig{
			"sqlite3": {DSN: "labels.db"},
		},
		Redis: RedisConfig{
			Host:       "127.0.0.1",
			Port:       6379,
			TTLMinutes: 7 * 24 * 60,
		},
		Analysis: AnalysisConfig{
			Provider:              DefaultProvider,
			InputPath:             "cleaned_conversations.json",
			OutputPath:            "classification_results.json",
			DelayMillis:           100,
			MaxRetries:            3,
			BackoffBaseMillis:     1000,
			BackoffMaxMillis:      30000,
			RequestTimeoutSeconds: 90,
		},
		Preprocess: PreprocessConfig{
			RawPath:          "raw_conversations.json",
			BotSenderID:      "bf17272dc3f0",
			MaxConversations: 100,
		},
		Labeling: LabelingConfig{
			FineTuneDataPath: "fine_tuning_data.jsonl",
		},
		Logging: LoggingConfig{
			Level:      "info",
			OutputPath: "stderr",
			Encoding:   "console",
		},
	}
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file yields defaults; a missing explicit file is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Default()
	baseDir := filepath.Dir(absPath)
	if err := decodeFile(absPath, cfg); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			baseDir, _ = os.Getwd()
		} else {
			return nil, err
		}
	}

	if err := loadSecrets(filepath.Join(baseDir, DefaultSecretsPath)); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.resolvePaths(baseDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(absPath string, cfg *Config) error {
	file, err := os.Open(absPath)
	if err != nil {
		return fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}
	return nil
}

// loadSecrets exports KEY=VALUE pairs from secrets.env without overriding the real environment.
func loadSecrets(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	setKey := func(provider, key string) {
		if key == "" {
			return
		}
		p := c.Providers[provider]
		p.APIKey = key
		c.Providers[provider] = p
	}
	setKey("openai", ov.OpenAIKey)
	setKey("claude", ov.AnthropicKey)
	setKey("gemini", ov.GeminiKey)

	if ov.Provider != "" {
		c.Analysis.Provider = ov.Provider
	}
	if ov.Model != "" {
		c.Analysis.Model = ov.Model
	}
	if ov.Database != "" {
		c.BasicConfig.Database = ov.Database
	}
	if ov.LogLevel != "" {
		c.Logging.Level = ov.LogLevel
	}
	if ov.AuthToken != "" {
		c.Labeling.AuthToken = ov.AuthToken
	}
	if ov.RedisAddr != "" {
		host, port, err := splitHostPort(ov.RedisAddr)
		if err != nil {
			return fmt.Errorf("CONVANALYZER_REDIS_ADDR: %w", err)
		}
		c.Redis.Enabled = true
		c.Redis.Host = host
		c.Redis.Port = port
	}
	return nil
}

func splitHostPort(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx <= 0 || idx == len(addr)-1 {
		return "", 0, fmt.Errorf("invalid address %q", addr)
	}
	var port int
	if _, err := fmt.Sscanf(addr[idx+1:], "%d", &port); err != nil || port <= 0 {
		return "", 0, fmt.Errorf("invalid port in %q", addr)
	}
	return addr[:idx], port, nil
}

// resolvePaths anchors relative file paths at the config directory.
func (c *Config) resolvePaths(baseDir string) {
	resolve := func(p *string) {
		if *p == "" || filepath.IsAbs(*p) {
			return
		}
		*p = filepath.Join(baseDir, *p)
	}
	resolve(&c.Analysis.InputPath)
	resolve(&c.Analysis.OutputPath)
	resolve(&c.Analysis.CachePath)
	resolve(&c.Preprocess.RawPath)
	resolve(&c.Labeling.ResultsPath)
	resolve(&c.Labeling.FineTuneDataPath)

	for name, db := range c.Databases {
		if name != "sqlite3" && name != "sqlite" {
			continue
		}
		if db.DSN == "" || db.DSN == ":memory:" || strings.HasPrefix(db.DSN, "file:") {
			continue
		}
		resolve(&db.DSN)
		c.Databases[name] = db
	}
}

// Validate rejects configurations no subcommand can run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Analysis.Provider) == "" {
		return errors.New("analysis.provider must be configured")
	}
	if c.Analysis.DelayMillis < 0 {
		return errors.New("analysis.delay_ms cannot be negative")
	}
	if c.Analysis.MaxRetries < 0 {
		return errors.New("analysis.max_retries cannot be negative")
	}
	if c.Preprocess.MaxConversations < 0 {
		return errors.New("preprocess.max_conversations cannot be negative")
	}
	return nil
}

// Provider returns the settings for the named provider with the analysis model applied.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	p, ok := c.Providers[name]
	if !ok {
		return ProviderConfig{}, false
	}
	if c.Analysis.Model != "" && name == c.Analysis.Provider {
		p.Model = c.Analysis.Model
	}
	return p, true
}
