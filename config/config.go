package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the AI worker backend.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Databases DatabasesConfig `mapstructure:"databases"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Pinecone  PineconeConfig  `mapstructure:"pinecone"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Uploads   UploadsConfig   `mapstructure:"uploads"`
}

// GeneralConfig contains server and auth settings.
type GeneralConfig struct {
	Listen       string        `mapstructure:"listen"`
	Env          string        `mapstructure:"env"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	ResetTTL     time.Duration `mapstructure:"reset_ttl"`
	FrontendURL  string        `mapstructure:"frontend_url"`
	DefaultLimit int           `mapstructure:"default_limit"`
}

type DatabasesConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN assembles a Postgres connection string from the URL or the parts.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (databases.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

type RedisConfig struct {
	Host    string        `mapstructure:"host"`
	Port    string        `mapstructure:"port"`
	Pass    string        `mapstructure:"pass"`
	DB      int           `mapstructure:"db"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ProvidersConfig struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
	Local  LocalConfig  `mapstructure:"local"`
}

type GeminiConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// LocalConfig configures the in-process fallback provider.
type LocalConfig struct {
	EmbeddingDim int `mapstructure:"embedding_dim"`
}

type SourcesConfig struct {
	NewsAPI      NewsAPIConfig      `mapstructure:"newsapi"`
	AlphaVantage AlphaVantageConfig `mapstructure:"alphavantage"`
	GoogleCSE    GoogleCSEConfig    `mapstructure:"google_cse"`
}

type NewsAPIConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

type AlphaVantageConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

type GoogleCSEConfig struct {
	APIKey   string `mapstructure:"api_key"`
	CX       string `mapstructure:"cx"`
	Endpoint string `mapstructure:"endpoint"`
}

type PineconeConfig struct {
	APIKey    string `mapstructure:"api_key"`
	IndexHost string `mapstructure:"index_host"`
}

// RateLimitConfig bounds calls per external-data category per fixed window.
type RateLimitConfig struct {
	Window   time.Duration `mapstructure:"window"`
	MaxCalls int           `mapstructure:"max_calls"`
}

// SchedulerConfig holds the cron specs and fixed inputs of the report jobs.
type SchedulerConfig struct {
	NewsCron    string `mapstructure:"news_cron"`
	StockCron   string `mapstructure:"stock_cron"`
	TrendsCron  string `mapstructure:"trends_cron"`
	NewsTopic   string `mapstructure:"news_topic"`
	StockSymbol string `mapstructure:"stock_symbol"`
	TrendsQuery string `mapstructure:"trends_query"`
}

type UploadsConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoadConfig loads config from file with AIWORKER_* env overrides.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.listen", ":8000")
	viper.SetDefault("general.env", "dev")
	viper.SetDefault("general.token_ttl", "60m")
	viper.SetDefault("general.reset_ttl", "15m")
	viper.SetDefault("general.frontend_url", "http://localhost:3000")
	viper.SetDefault("general.default_limit", 10)
	viper.SetDefault("providers.gemini.completion_model", "gemini-2.0-flash")
	viper.SetDefault("providers.gemini.embedding_model", "text-embedding-004")
	viper.SetDefault("providers.gemini.timeout", "60s")
	viper.SetDefault("providers.local.embedding_dim", 384)
	viper.SetDefault("sources.newsapi.endpoint", "https://newsapi.org/v2/everything")
	viper.SetDefault("sources.alphavantage.endpoint", "https://www.alphavantage.co/query")
	viper.SetDefault("sources.google_cse.endpoint", "https://www.googleapis.com/customsearch/v1")
	viper.SetDefault("rate_limit.window", "60s")
	viper.SetDefault("rate_limit.max_calls", 5)
	viper.SetDefault("scheduler.news_cron", "0 9 * * *")
	viper.SetDefault("scheduler.stock_cron", "0 */6 * * *")
	viper.SetDefault("scheduler.trends_cron", "0 10 * * *")
	viper.SetDefault("scheduler.news_topic", "technology")
	viper.SetDefault("scheduler.stock_symbol", "AAPL")
	viper.SetDefault("scheduler.trends_query", "AI trends 2025")
	viper.SetDefault("uploads.dir", "uploads")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("AIWORKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; env vars and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return &cfg
}
