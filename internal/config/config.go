package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/subrender/pkg/log"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

// Config holds all application configuration.
// Values come from the environment (optionally seeded from a .env file)
// and are then overridden by runtime settings and options.
//
// Environment Variables:
// HTTP:
// - HTTP_ADDR: listen address (default: :8000)
// - CORS_ORIGINS: comma separated allowed origins (default: *)
// - MAX_UPLOAD_MB: maximum multipart upload size (default: 512)
//
// Render:
// - RENDER_COMMAND: renderer executable (default: npx)
// - RENDER_ARGS: renderer arguments with {composition} {output} {props} placeholders
// - RENDER_OUTPUT_DIR: where artifacts are written (default: $DATA_DIR/renders)
// - RENDER_TTL: default artifact lifetime (default: 1h)
// - RENDER_MAX_TTL: upper bound for client supplied lifetimes (default: 24h)
// - RENDER_TIMEOUT: renderer timeout (default: 10m)
//
// Transcription:
// - WHISPER_EXECUTABLE: whisper.cpp CLI (default: ./model/whisper-cli)
// - WHISPER_MODEL: model file (default: ./model/ggml-tiny.bin)
// - FFMPEG_PATH: ffmpeg binary (default: ffmpeg)
// - TRANSCRIBE_TIMEOUT: whisper timeout (default: 5m)
//
// LLM:
// - LLM_API_KEY / PERPLEXITY_API_KEY: API key, translation is disabled without one
// - LLM_API_URL: OpenAI compatible endpoint (default: https://api.perplexity.ai)
// - LLM_MODEL: model name (default: sonar-pro)
// - LLM_TIMEOUT: request timeout in seconds (default: 60)
//
// Translate:
// - TARGET_LANGUAGE: BCP 47 tag of the overlay language (default: hi)
// - TRANSLATE_ENABLED: master switch (default: true)
//
// Janitor:
// - JANITOR_CRON: sweep schedule (default: @every 10m)
// - JANITOR_GRACE: minimum age of orphaned files before removal (default: 15m)
//
// System:
// - DATA_DIR: state directory (default: /app/data)
// - LOG_LEVEL: debug|info|warn|error (default: info)
// - LOG_FORMAT: text|json (default: text)
// - LOG_FILE: append log entries to this file instead of stdout (default: unset)
type Config struct {
	HTTP       HTTPConfig       `json:"http"`
	Render     RenderConfig     `json:"render"`
	Transcribe TranscribeConfig `json:"transcribe"`
	LLM        LLMConfig        `json:"llm"`
	Translate  TranslateConfig  `json:"translate"`
	Janitor    JanitorConfig    `json:"janitor"`
	System     SystemConfig     `json:"system"`
}

type HTTPConfig struct {
	Addr           string   `json:"addr"`
	CORSOrigins    []string `json:"cors_origins"`
	MaxUploadBytes int64    `json:"max_upload_bytes"`
}

type RenderConfig struct {
	Command    string        `json:"command"`
	Args       []string      `json:"args"`
	OutputDir  string        `json:"output_dir"`
	DefaultTTL time.Duration `json:"default_ttl"`
	MaxTTL     time.Duration `json:"max_ttl"`
	Timeout    time.Duration `json:"timeout"`
}

type TranscribeConfig struct {
	WhisperExecutable string        `json:"whisper_executable"`
	WhisperModel      string        `json:"whisper_model"`
	FFmpegPath        string        `json:"ffmpeg_path"`
	Timeout           time.Duration `json:"timeout"`
}

// LLMConfig holds the configuration for the OpenAI compatible translator.
type LLMConfig struct {
	APIKey  string `json:"-"`
	APIURL  string `json:"api_url"`
	Model   string `json:"model"`
	Timeout int    `json:"timeout"`
}

func (c LLMConfig) Available() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

type TranslateConfig struct {
	TargetLanguage language.Tag `json:"target_language"`
	Enabled        bool         `json:"enabled"`
}

type JanitorConfig struct {
	CronExpr string        `json:"cron_expr"`
	Grace    time.Duration `json:"grace"`
}

type SystemConfig struct {
	DataDir   string `json:"data_dir"`
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
	LogFile   string `json:"log_file"`
}

const dbFileName = "subrender.db"

// DBPath is the SQLite database inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, dbFileName)
}

// LockPath guards the data directory against a second server instance.
func (c *Config) LockPath() string {
	return filepath.Join(c.System.DataDir, "subrender.lock")
}

// Option is a function type for configuring Config
type Option func(*Config)

func WithDataDir(dir string) Option {
	return func(c *Config) {
		if strings.TrimSpace(dir) != "" {
			c.System.DataDir = dir
		}
	}
}

func WithHTTPAddr(addr string) Option {
	return func(c *Config) {
		if strings.TrimSpace(addr) != "" {
			c.HTTP.Addr = addr
		}
	}
}

// LoadDotEnv loads a .env file into the environment. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	dataDir := getEnvString("DATA_DIR", "/app/data")
	config := &Config{
		HTTP: HTTPConfig{
			Addr:           getEnvString("HTTP_ADDR", ":8000"),
			CORSOrigins:    getEnvList("CORS_ORIGINS", []string{"*"}),
			MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_MB", 512)) << 20,
		},
		Render: RenderConfig{
			Command:    getEnvString("RENDER_COMMAND", "npx"),
			Args:       getEnvFields("RENDER_ARGS", []string{"remotion", "render", "{composition}", "{output}", "--props={props}"}),
			OutputDir:  getEnvString("RENDER_OUTPUT_DIR", ""),
			DefaultTTL: getEnvDuration("RENDER_TTL", time.Hour),
			MaxTTL:     getEnvDuration("RENDER_MAX_TTL", 24*time.Hour),
			Timeout:    getEnvDuration("RENDER_TIMEOUT", 10*time.Minute),
		},
		Transcribe: TranscribeConfig{
			WhisperExecutable: getEnvString("WHISPER_EXECUTABLE", filepath.Join("model", "whisper-cli")),
			WhisperModel:      getEnvString("WHISPER_MODEL", filepath.Join("model", "ggml-tiny.bin")),
			FFmpegPath:        getEnvString("FFMPEG_PATH", "ffmpeg"),
			Timeout:           getEnvDuration("TRANSCRIBE_TIMEOUT", 5*time.Minute),
		},
		LLM: LLMConfig{
			APIKey:  getEnvString("LLM_API_KEY", getEnvString("PERPLEXITY_API_KEY", "")),
			APIURL:  getEnvString("LLM_API_URL", "https://api.perplexity.ai"),
			Model:   getEnvString("LLM_MODEL", "sonar-pro"),
			Timeout: getEnvInt("LLM_TIMEOUT", 60),
		},
		Translate: TranslateConfig{
			TargetLanguage: getEnvLanguage("TARGET_LANGUAGE", language.Hindi),
			Enabled:        getEnvBool("TRANSLATE_ENABLED", true),
		},
		Janitor: JanitorConfig{
			CronExpr: getEnvString("JANITOR_CRON", "@every 10m"),
			Grace:    getEnvDuration("JANITOR_GRACE", 15*time.Minute),
		},
		System: SystemConfig{
			DataDir:   dataDir,
			LogLevel:  getEnvString("LOG_LEVEL", "info"),
			LogFormat: getEnvString("LOG_FORMAT", "text"),
			LogFile:   getEnvString("LOG_FILE", ""),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if config.Render.OutputDir == "" {
		config.Render.OutputDir = filepath.Join(config.System.DataDir, "renders")
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: addr=%s data_dir=%s render_dir=%s llm=%s/%s translator=%t",
		config.HTTP.Addr, config.System.DataDir, config.Render.OutputDir,
		config.LLM.APIURL, config.LLM.Model, config.LLM.Available())

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}
	if strings.TrimSpace(c.System.DataDir) == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if strings.TrimSpace(c.Render.Command) == "" {
		return fmt.Errorf("RENDER_COMMAND is required")
	}
	if c.Render.DefaultTTL <= 0 {
		return fmt.Errorf("RENDER_TTL must be positive")
	}
	if c.Render.MaxTTL < c.Render.DefaultTTL {
		return fmt.Errorf("RENDER_MAX_TTL (%s) must not be below RENDER_TTL (%s)", c.Render.MaxTTL, c.Render.DefaultTTL)
	}
	if c.Render.Timeout <= 0 || c.Transcribe.Timeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if _, err := cron.ParseStandard(c.Janitor.CronExpr); err != nil {
		return fmt.Errorf("invalid JANITOR_CRON: %w", err)
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	ret := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ret = append(ret, part)
		}
	}
	if len(ret) == 0 {
		return defaultValue
	}
	return ret
}

func getEnvFields(key string, defaultValue []string) []string {
	fields := strings.Fields(os.Getenv(key))
	if len(fields) == 0 {
		return defaultValue
	}
	return fields
}

func getEnvLanguage(key string, defaultValue language.Tag) language.Tag {
	if value := os.Getenv(key); value != "" {
		if tag, err := language.Parse(value); err == nil {
			return tag
		}
	}
	return defaultValue
}
