// Package config loads settings from defaults, an optional YAML file, a .env file
// and AGRI_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AGRI_SERVER_PORT.
const EnvPrefix = "AGRI"

// ConfigFileEnv names the variable holding an optional config file path.
const ConfigFileEnv = "AGRI_CONFIG"

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Data     DataConfig     `mapstructure:"data"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Insight  InsightConfig  `mapstructure:"insight"`
	Voice    VoiceConfig    `mapstructure:"voice"`
}

// ServerConfig configures the dashboard HTTP server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig configures the optional Postgres sink.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// DataConfig names the pipeline files. Relative names resolve against Dir.
type DataConfig struct {
	Dir           string `mapstructure:"dir"`
	RawRainfall   string `mapstructure:"raw_rainfall"`
	RawCrop       string `mapstructure:"raw_crop"`
	CleanRainfall string `mapstructure:"clean_rainfall"`
	CleanCrop     string `mapstructure:"clean_crop"`
	Merged        string `mapstructure:"merged"`
	Summary       string `mapstructure:"summary"`
	SummaryXLSX   string `mapstructure:"summary_xlsx"`
	AliasFile     string `mapstructure:"alias_file"`
	Dedup         string `mapstructure:"dedup"`
	FromDatabase  bool   `mapstructure:"from_database"`
}

// Path resolves a configured file name against Dir. Empty names stay empty.
func (d DataConfig) Path(name string) string {
	if name == "" || filepath.IsAbs(name) || d.Dir == "" {
		return name
	}
	return filepath.Join(d.Dir, name)
}

// LLMConfig configures the hosted model.
type LLMConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	Temperature  float32       `mapstructure:"temperature"`
	TopK         int32         `mapstructure:"top_k"`
	TopP         float32       `mapstructure:"top_p"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`
}

// InsightConfig configures question analysis.
type InsightConfig struct {
	MatchMode string `mapstructure:"match_mode"`
	Window    int    `mapstructure:"window"`
}

// VoiceConfig configures the optional speech features.
type VoiceConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	TTSCommand string `mapstructure:"tts_command"`
	TTSMime    string `mapstructure:"tts_mime"`
	CacheSize  int    `mapstructure:"cache_size"`
	MaxUpload  int64  `mapstructure:"max_upload_bytes"`
}

// LoadConfig loads .env, then the file named by AGRI_CONFIG if set.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv(ConfigFileEnv))
}

// Load reads configuration with precedence env > file > defaults. An empty path
// looks for config.yaml in the working directory and ignores it when absent.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "agri_platform")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)

	v.SetDefault("logging.level", "info")

	v.SetDefault("data.dir", ".")
	v.SetDefault("data.raw_rainfall", "rainfall.csv")
	v.SetDefault("data.raw_crop", "crop_production.csv")
	v.SetDefault("data.clean_rainfall", "clean_rainfall.csv")
	v.SetDefault("data.clean_crop", "clean_crop.csv")
	v.SetDefault("data.merged", "final_merged_data.csv")
	v.SetDefault("data.summary", "state_summary.csv")
	v.SetDefault("data.summary_xlsx", "")
	v.SetDefault("data.alias_file", "")
	v.SetDefault("data.dedup", "mean")
	v.SetDefault("data.from_database", false)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.temperature", 0.4)
	v.SetDefault("llm.top_k", 40)
	v.SetDefault("llm.top_p", 0.95)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_backoff", time.Second)
	v.SetDefault("llm.max_backoff", 20*time.Second)

	v.SetDefault("insight.match_mode", "token")
	v.SetDefault("insight.window", 10)

	v.SetDefault("voice.enabled", true)
	v.SetDefault("voice.tts_command", "espeak-ng --stdout")
	v.SetDefault("voice.tts_mime", "audio/wav")
	v.SetDefault("voice.cache_size", 32)
	v.SetDefault("voice.max_upload_bytes", 10<<20)
}

// Validate checks settings every command relies on.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Data.Dedup) {
	case "mean", "first", "none":
	default:
		return fmt.Errorf("invalid data.dedup %q (want mean, first or none)", c.Data.Dedup)
	}
	switch strings.ToLower(c.Insight.MatchMode) {
	case "token", "substring":
	default:
		return fmt.Errorf("invalid insight.match_mode %q (want token or substring)", c.Insight.MatchMode)
	}
	if c.Insight.Window < 1 {
		return fmt.Errorf("insight.window must be positive, got %d", c.Insight.Window)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	if c.LLM.MaxRetries < 1 {
		return fmt.Errorf("llm.max_retries must be at least 1")
	}
	if c.Database.Enabled && c.Database.Database == "" {
		return fmt.Errorf("database.database is required when the database is enabled")
	}
	return nil
}

// ValidateForServer additionally requires what the dashboard cannot start without.
func (c *Config) ValidateForServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return fmt.Errorf("LLM API key is not configured: set GEMINI_API_KEY (or AGRI_LLM_API_KEY)")
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
