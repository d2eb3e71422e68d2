// Package config loads the settings shared by the LINE webhook service, the
// MCP simulator and the database commands.
//
// Values come from, in increasing precedence: built-in defaults, an optional
// config file, a .env file and the process environment. Keys are the
// environment variable names (LINE_CHANNEL_SECRET, GLM_MODEL, ...); a YAML or
// TOML config file uses the same names in lower case.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jiujiugas/gasops/internal/sentinel"
)

// ErrMissing is wrapped by every "required setting not set" error.
const ErrMissing = sentinel.Error("required setting missing")

// Environment keys.
const (
	KeyChannelSecret      = "LINE_CHANNEL_SECRET"
	KeyChannelAccessToken = "LINE_CHANNEL_ACCESS_TOKEN"
	KeyDatabaseURL        = "DATABASE_URL"
	KeyAPIKey             = "GLM_API_KEY"
	KeyAPIKeys            = "GLM_API_KEYS"
	KeyModel              = "GLM_MODEL"
	KeyFallbackModel      = "GLM_FALLBACK_MODEL"
	KeyAPIBase            = "GLM_API_BASE"
	KeyTimeout            = "GLM_TIMEOUT"
	KeyMaxRetries         = "GLM_MAX_RETRIES"
	KeySessionTTL         = "SESSION_TTL"
	KeyMaxHistory         = "MAX_HISTORY_LENGTH"
	KeyPort               = "PORT"
	KeyTriggerWord        = "BOT_TRIGGER_WORD"
	KeyGroups             = "BOT_GROUPS"
	KeyWorkers            = "BOT_WORKERS"
	KeyMCPAddr            = "MCP_ADDR"
	KeyLogLevel           = "LOG_LEVEL"
	KeyLogFormat          = "LOG_FORMAT"
)

// Defaults.
const (
	DefaultModel         = "glm-4.7-coding-max"
	DefaultFallbackModel = "glm-4-flash"
	DefaultAPIBase       = "https://open.bigmodel.cn/api/paas/v4/"
	DefaultTimeout       = 60 * time.Second
	DefaultMaxRetries    = 3
	DefaultSessionTTL    = 30 * time.Minute
	DefaultMaxHistory    = 20
	DefaultPort          = 9997
	DefaultTriggerWord   = "瓦斯助手"
	DefaultWorkers       = 4
	DefaultMCPAddr       = "127.0.0.1:13337"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
)

// Config is the resolved configuration.
type Config struct {
	Port        int
	DatabaseURL string
	MCPAddr     string
	LogLevel    string
	LogFormat   string

	Line    LineConfig
	LLM     LLMConfig
	Session SessionConfig
	Bot     BotConfig
}

// LineConfig holds the Messaging API channel credentials.
type LineConfig struct {
	ChannelSecret      string
	ChannelAccessToken string
}

// LLMConfig configures the chat-completion client.
type LLMConfig struct {
	APIKeys       []string
	Model         string
	FallbackModel string
	BaseURL       string
	Timeout       time.Duration
	MaxRetries    int
}

// SessionConfig bounds the per-user conversation history.
type SessionConfig struct {
	TTL        time.Duration
	MaxHistory int
}

// BotConfig controls when and how the bot answers.
type BotConfig struct {
	TriggerWord string
	// Groups maps a LINE group id to its role name.
	Groups  map[string]string
	Workers int
}

// Options tells Load where to look for files. Empty fields are skipped,
// except EnvFile which defaults to ".env".
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Load resolves the configuration. A missing .env file is not an error; a
// missing explicit config file is.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", opts.ConfigFile, err)
		}
	}
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyModel, DefaultModel)
	v.SetDefault(KeyFallbackModel, DefaultFallbackModel)
	v.SetDefault(KeyAPIBase, DefaultAPIBase)
	v.SetDefault(KeyTimeout, DefaultTimeout.String())
	v.SetDefault(KeyMaxRetries, DefaultMaxRetries)
	v.SetDefault(KeySessionTTL, DefaultSessionTTL.String())
	v.SetDefault(KeyMaxHistory, DefaultMaxHistory)
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyTriggerWord, DefaultTriggerWord)
	v.SetDefault(KeyWorkers, DefaultWorkers)
	v.SetDefault(KeyMCPAddr, DefaultMCPAddr)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyLogFormat, DefaultLogFormat)
}

// fromViper converts raw values, reporting every malformed one.
func fromViper(v *viper.Viper) (*Config, error) {
	var errs []error
	intValue := func(key string) int {
		n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: not an integer: %q", key, v.GetString(key)))
		}
		return n
	}
	durationValue := func(key string) time.Duration {
		d, err := ParseSeconds(v.GetString(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}

	groups, err := ParseGroups(v.GetString(KeyGroups))
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyGroups, err))
	}

	cfg := &Config{
		Port:        intValue(KeyPort),
		DatabaseURL: strings.TrimSpace(v.GetString(KeyDatabaseURL)),
		MCPAddr:     strings.TrimSpace(v.GetString(KeyMCPAddr)),
		LogLevel:    strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		LogFormat:   strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
		Line: LineConfig{
			ChannelSecret:      strings.TrimSpace(v.GetString(KeyChannelSecret)),
			ChannelAccessToken: strings.TrimSpace(v.GetString(KeyChannelAccessToken)),
		},
		LLM: LLMConfig{
			APIKeys:       APIKeys(v.GetString(KeyAPIKeys), v.GetString(KeyAPIKey)),
			Model:         strings.TrimSpace(v.GetString(KeyModel)),
			FallbackModel: strings.TrimSpace(v.GetString(KeyFallbackModel)),
			BaseURL:       strings.TrimSpace(v.GetString(KeyAPIBase)),
			Timeout:       durationValue(KeyTimeout),
			MaxRetries:    intValue(KeyMaxRetries),
		},
		Session: SessionConfig{
			TTL:        durationValue(KeySessionTTL),
			MaxHistory: intValue(KeyMaxHistory),
		},
		Bot: BotConfig{
			TriggerWord: strings.TrimSpace(v.GetString(KeyTriggerWord)),
			Groups:      groups,
			Workers:     intValue(KeyWorkers),
		},
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// ParseSeconds accepts a bare integer number of seconds ("60") or a Go
// duration ("1m30s").
func ParseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return d, nil
}

// APIKeys returns the comma separated list when set, else the single key.
// Blank entries are dropped.
func APIKeys(list, single string) []string {
	var keys []string
	for k := range strings.SplitSeq(list, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		if k := strings.TrimSpace(single); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// ParseGroups parses "groupID=role,groupID=role". An empty string yields an
// empty map.
func ParseGroups(s string) (map[string]string, error) {
	groups := make(map[string]string)
	var errs []error
	for entry := range strings.SplitSeq(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, role, ok := strings.Cut(entry, "=")
		id, role = strings.TrimSpace(id), strings.ToLower(strings.TrimSpace(role))
		if !ok || id == "" || role == "" {
			errs = append(errs, fmt.Errorf("malformed entry %q, want groupID=role", entry))
			continue
		}
		if _, dup := groups[id]; dup {
			errs = append(errs, fmt.Errorf("group %s listed twice", id))
			continue
		}
		groups[id] = role
	}
	return groups, errors.Join(errs...)
}

// Validate checks what the webhook service needs to run. Every violation is
// reported.
func (c *Config) Validate() error {
	var errs []error
	if c.Line.ChannelSecret == "" {
		errs = append(errs, fmt.Errorf("%w: %s", ErrMissing, KeyChannelSecret))
	}
	if c.Line.ChannelAccessToken == "" {
		errs = append(errs, fmt.Errorf("%w: %s", ErrMissing, KeyChannelAccessToken))
	}
	if len(c.LLM.APIKeys) == 0 {
		errs = append(errs, fmt.Errorf("%w: %s or %s", ErrMissing, KeyAPIKey, KeyAPIKeys))
	}
	if c.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("%w: %s", ErrMissing, KeyModel))
	}
	if c.LLM.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%w: %s", ErrMissing, KeyAPIBase))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s must be within [1, 65535], got %d", KeyPort, c.Port))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %s", KeyTimeout, c.LLM.Timeout))
	}
	if c.LLM.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", KeyMaxRetries, c.LLM.MaxRetries))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %s", KeySessionTTL, c.Session.TTL))
	}
	if c.Session.MaxHistory < 2 {
		errs = append(errs, fmt.Errorf("%s must be at least 2, got %d", KeyMaxHistory, c.Session.MaxHistory))
	}
	if c.Bot.Workers < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", KeyWorkers, c.Bot.Workers))
	}
	if !slices.Contains([]string{"text", "json"}, c.LogFormat) {
		errs = append(errs, fmt.Errorf("%s must be text or json, got %q", KeyLogFormat, c.LogFormat))
	}
	return errors.Join(errs...)
}
