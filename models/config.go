package models

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Browser executor modes.
const (
	BrowserModeRemote = "remote" // actions forwarded to the page script over the websocket
	BrowserModeLocal  = "local"  // actions driven against a local Chrome tab
)

// DefaultCacheSize bounds the in-process intent cache when no size is
// configured.
const DefaultCacheSize = 256

// Config is the object-literal configuration surface of the gateway. All
// values come from the environment (a .env file is loaded in main) with
// defaults chosen for a Korean-language deployment.
type Config struct {
	Port     string
	Language string
	Debug    bool

	// AutoListen makes the gateway greet and start the recognition loop as
	// soon as a client connects instead of waiting for an explicit start.
	AutoListen bool

	// Fast classifier (OpenAI-compatible chat completions).
	UseFastClassifier bool
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	FastModel         string
	FastTimeout       time.Duration

	// Context classifier (HyperCLOVA-style endpoint behind a local proxy).
	UseContextClassifier bool
	ContextProxyURL      string
	ContextAPIKey        string
	ContextModel         string
	ContextTimeout       time.Duration

	// Decision thresholds. Tunable constants, not load-bearing invariants.
	FastAcceptThreshold    float64
	ContextAcceptThreshold float64
	ConfirmFloor           float64
	ExecuteThreshold       float64

	// Anti-duplicate window for rapid repeated utterances.
	DebounceWindow time.Duration

	// Intent cache sizing. CacheTTL applies to the Redis tier only.
	CacheSize int
	CacheTTL  time.Duration

	RedisAddr     string
	RedisPassword string

	PineconeAPIKey string
	PineconeIndex  string

	DeepgramAPIKey string

	TTSEndpoint string
	TTSAPIKey   string

	// Optional YAML file with pattern-rule overrides, hot reloaded.
	RulesPath string

	BrowserMode        string
	BrowserDebuggerURL string
	BrowserHeadless    bool
	BrowserStartURL    string
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() *Config {
	return &Config{
		Port:     envOr("PORT", "8080"),
		Language: envOr("SORI_LANGUAGE", "ko-KR"),
		Debug:    envBool("SORI_DEBUG", false),

		AutoListen: envBool("SORI_AUTO_LISTEN", true),

		UseFastClassifier: envBool("SORI_USE_FAST_CLASSIFIER", true),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		FastModel:         envOr("SORI_FAST_MODEL", "gpt-4o-mini"),
		FastTimeout:       envDuration("SORI_FAST_TIMEOUT", 2*time.Second),

		UseContextClassifier: envBool("SORI_USE_CONTEXT_CLASSIFIER", true),
		ContextProxyURL:      os.Getenv("CLOVA_PROXY_URL"),
		ContextAPIKey:        os.Getenv("CLOVA_API_KEY"),
		ContextModel:         envOr("SORI_CONTEXT_MODEL", "HCX-005"),
		ContextTimeout:       envDuration("SORI_CONTEXT_TIMEOUT", 6*time.Second),

		FastAcceptThreshold:    envFloat("SORI_FAST_ACCEPT", 0.5),
		ContextAcceptThreshold: envFloat("SORI_CONTEXT_ACCEPT", 0.6),
		ConfirmFloor:           envFloat("SORI_CONFIRM_FLOOR", 0.3),
		ExecuteThreshold:       envFloat("SORI_EXECUTE_THRESHOLD", 0.6),

		DebounceWindow: envDuration("SORI_DEBOUNCE_WINDOW", 400*time.Millisecond),

		CacheSize: envInt("SORI_CACHE_SIZE", 256),
		CacheTTL:  envDuration("SORI_CACHE_TTL", time.Hour),

		RedisAddr:     os.Getenv("REDIS_HOST"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		PineconeAPIKey: os.Getenv("PINECONE_API_KEY"),
		PineconeIndex:  os.Getenv("PINECONE_INDEX"),

		DeepgramAPIKey: os.Getenv("DEEPGRAM_API_KEY"),

		TTSEndpoint: os.Getenv("TTS_ENDPOINT"),
		TTSAPIKey:   os.Getenv("TTS_API_KEY"),

		RulesPath: os.Getenv("SORI_RULES_PATH"),

		BrowserMode:        envOr("SORI_BROWSER_MODE", BrowserModeRemote),
		BrowserDebuggerURL: os.Getenv("SORI_BROWSER_DEBUGGER_URL"),
		BrowserHeadless:    envBool("SORI_BROWSER_HEADLESS", true),
		BrowserStartURL:    envOr("SORI_BROWSER_START_URL", "about:blank"),
	}
}

// HasFastClassifier reports whether the fast remote classifier is usable.
func (c *Config) HasFastClassifier() bool {
	return c.UseFastClassifier && c.OpenAIAPIKey != ""
}

// HasContextClassifier reports whether the context remote classifier is usable.
func (c *Config) HasContextClassifier() bool {
	return c.UseContextClassifier && c.ContextProxyURL != ""
}

func (c *Config) HasRedis() bool    { return c.RedisAddr != "" }
func (c *Config) HasPinecone() bool { return c.PineconeAPIKey != "" && c.PineconeIndex != "" }
func (c *Config) HasDeepgram() bool { return c.DeepgramAPIKey != "" }
func (c *Config) HasTTS() bool      { return c.TTSEndpoint != "" }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
