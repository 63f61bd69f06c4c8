package infra

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	SupabaseURL        string
	SupabaseKey        string
	GeminiAPIKey       string
	GeminiModel        string
	GeminiBaseURL      string
	GeminiRatePerMin   int
	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	PersistQueueSize   int
	WkhtmltopdfPath    string
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. Missing credentials are not an error: they degrade
// specific operations, reported through Degradations, rather than preventing
// startup.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		SupabaseURL:        strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseKey:        os.Getenv("SUPABASE_KEY"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiRatePerMin:   getEnvInt("GEMINI_RATE_PER_MINUTE", 0),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		PersistQueueSize:   getEnvInt("PERSIST_QUEUE_SIZE", 64),
		WkhtmltopdfPath:    os.Getenv("WKHTMLTOPDF_PATH"),
	}
	return cfg, nil
}

// SupabaseConfigured reports whether the datastore credentials are present.
func (c *Config) SupabaseConfigured() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}

// GeminiConfigured reports whether the generative model credential is present.
func (c *Config) GeminiConfigured() bool {
	return c.GeminiAPIKey != ""
}

// Degradation names a missing credential and the operations it disables.
type Degradation struct {
	Credential string
	Operations []string
}

// Degradations centralizes the configuration-presence checks so startup can
// log exactly what will not work, instead of each component discovering a
// missing credential on its own.
func (c *Config) Degradations() []Degradation {
	var out []Degradation
	if !c.SupabaseConfigured() {
		out = append(out, Degradation{
			Credential: "SUPABASE_URL/SUPABASE_KEY",
			Operations: []string{"story persistence", "save_edit", "version listing"},
		})
	}
	if !c.GeminiConfigured() {
		out = append(out, Degradation{
			Credential: "GEMINI_API_KEY",
			Operations: []string{"image captioning", "narrative generation"},
		})
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
