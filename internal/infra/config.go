package infra

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"imagine/internal/domain"
)

var (
	validate   = validator.New()
	identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

func init() {
	_ = validate.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identifier.MatchString(fl.Field().String())
	})
}

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	LogLevel string
	Port     string `validate:"required,numeric"`

	MJAPIURL string `validate:"omitempty,url"`

	DatabaseURL      string
	SupabaseURL      string `validate:"omitempty,url"`
	SupabaseAnonKey  string `validate:"required_with=SupabaseURL"`
	GenerationsTable string `validate:"required,identifier"`
	OwnerID          string `validate:"omitempty,uuid"`
	AdminEmail       string `validate:"omitempty,email"`
	UserEmail        string `validate:"omitempty,email"`

	PollInterval      time.Duration `validate:"gt=0"`
	PollTimeout       time.Duration `validate:"gt=0"`
	RequestTimeout    time.Duration `validate:"gt=0"`
	PersistTimeout    time.Duration `validate:"gt=0"`
	ImageDownloadDir  string
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	RateLimitPerMin   int
	CORSAllowedOrigin []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		Port:              getEnv("PORT", "8080"),
		MJAPIURL:          strings.TrimSpace(os.Getenv("MJ_API_URL")),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SupabaseURL:       strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		SupabaseAnonKey:   strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY")),
		GenerationsTable:  getEnv("GENERATIONS_TABLE", "generations"),
		OwnerID:           strings.TrimSpace(os.Getenv("OWNER_ID")),
		AdminEmail:        strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		UserEmail:         strings.TrimSpace(os.Getenv("USER_EMAIL")),
		PollInterval:      time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 1500)),
		PollTimeout:       time.Second * time.Duration(getEnvInt("POLL_TIMEOUT_SECONDS", 300)),
		RequestTimeout:    time.Second * time.Duration(getEnvInt("GENERATION_REQUEST_TIMEOUT_SECONDS", 60)),
		PersistTimeout:    time.Second * time.Duration(getEnvInt("PERSIST_TIMEOUT_SECONDS", 10)),
		ImageDownloadDir:  os.Getenv("IMAGE_DOWNLOAD_DIR"),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigin: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, configError(err)
	}
	return cfg, nil
}

// RequireGenerationAPI fails with domain.ErrMissingConfig when no generation
// endpoint is configured.
func (c *Config) RequireGenerationAPI() error {
	if c.MJAPIURL == "" {
		return fmt.Errorf("%w: MJ_API_URL is required", domain.ErrMissingConfig)
	}
	return nil
}

// IsAdmin reports whether email belongs to the configured administrator.
func (c *Config) IsAdmin(email string) bool {
	email = strings.TrimSpace(email)
	return c.AdminEmail != "" && email != "" && strings.EqualFold(email, c.AdminEmail)
}

// PersistenceBackend names the history store the configuration selects.
func (c *Config) PersistenceBackend() string {
	switch {
	case c.DatabaseURL != "":
		return "postgres"
	case c.SupabaseURL != "" && c.SupabaseAnonKey != "":
		return "postgrest"
	default:
		return "disabled"
	}
}

var envNames = map[string]string{
	"Port":             "PORT",
	"OwnerID":          "OWNER_ID",
	"MJAPIURL":         "MJ_API_URL",
	"SupabaseURL":      "SUPABASE_URL",
	"SupabaseAnonKey":  "SUPABASE_ANON_KEY",
	"GenerationsTable": "GENERATIONS_TABLE",
	"AdminEmail":       "ADMIN_EMAIL",
	"UserEmail":        "USER_EMAIL",
	"PollInterval":     "POLL_INTERVAL_MS",
	"PollTimeout":      "POLL_TIMEOUT_SECONDS",
	"RequestTimeout":   "GENERATION_REQUEST_TIMEOUT_SECONDS",
	"PersistTimeout":   "PERSIST_TIMEOUT_SECONDS",
}

func configError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		name := envNames[e.StructField()]
		if name == "" {
			name = e.StructField()
		}
		switch e.Tag() {
		case "url":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid URL", name))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid email address", name))
		case "identifier":
			msgs = append(msgs, fmt.Sprintf("%s must be a plain table name", name))
		case "required", "required_with":
			msgs = append(msgs, fmt.Sprintf("%s is required", name))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", name, e.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
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

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
