package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultFallbackModels порядок перебора моделей при ошибках лимита или несовместимости.
var DefaultFallbackModels = []string{
	"gpt-4o",
	"gpt-4o-2024-11-20",
	"gpt-4.1",
	"gpt-4.1-mini",
	"gpt-5-mini",
	"gpt-4-turbo",
	"gpt-4o-mini",
}

type Cfg struct {
	Database   Database
	Logger     Logger
	OpenAI     OpenAI
	Browser    Browser
	Agent      Agent
	Scheduler  Scheduler
	App        App
	Migrations Migrations
	Profile    ProfilePaths
}

type Database struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

// DSN строка подключения для gorm postgres драйвера.
func (d Database) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// URL строка подключения для golang-migrate.
func (d Database) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type Migrations struct {
	Path string
}

type Logger struct {
	Env        string
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type OpenAI struct {
	KeyAI          string
	BaseURL        string
	Model          string
	FallbackModels []string
	IntentModel    string
	MaxTokens      int
	Temperature    float32
	RequestsPerMin int
	TokensPerHour  int
}

type Browser struct {
	Display      string
	Headless     bool
	UserDataDir  string
	BrowsersPath string
	Engine       string
	Timeout      time.Duration
}

// Agent пороги цикла агента, переопределяются через env.
type Agent struct {
	MaxSteps                 int
	MaxConsecutiveFailures   int
	RefreshAfterFailures     int
	MaxRefreshAttempts       int
	SubmissionRetryLimit     int
	ValidationRepeatEscalate int
	SuccessConfidence        float64
	StepPause                time.Duration
	Vision                   bool
	VisionBudget             int
	HistoryWindow            int
	ScreenshotDir            string
}

type Scheduler struct {
	PollInterval time.Duration
	Autostart    bool
}

type App struct {
	Host string
	Port string
}

type ProfilePaths struct {
	Path           string
	GuidelinesPath string
	VariantsDir    string
}

func Load() (*Cfg, error) {
	_ = godotenv.Load()

	cfg := &Cfg{
		Database: Database{
			Host:     env("DB_HOST", "localhost"),
			Port:     env("DB_PORT", "5432"),
			Name:     env("DB_NAME", "autojob"),
			User:     env("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			SSLMode:  env("DB_SSLMODE", "disable"),
		},
		Logger: Logger{
			Env:        env("APP_ENV", "dev"),
			Level:      env("LOG_LEVEL", "info"),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  envInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: envInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: envInt("LOG_MAX_AGE_DAYS", 14),
		},
		OpenAI: OpenAI{
			KeyAI:          os.Getenv("OPENAI_API_KEY"),
			BaseURL:        os.Getenv("OPENAI_BASE_URL"),
			Model:          env("OPENAI_MODEL", "gpt-4o"),
			FallbackModels: envList("OPENAI_FALLBACK_MODELS", DefaultFallbackModels),
			IntentModel:    env("OPENAI_INTENT_MODEL", "gpt-4o-mini"),
			MaxTokens:      envInt("OPENAI_MAX_TOKENS", 1000),
			Temperature:    float32(envFloat("OPENAI_TEMPERATURE", 0.2)),
			RequestsPerMin: envInt("OPENAI_RPM", 60),
			TokensPerHour:  envInt("OPENAI_TPH", 400000),
		},
		Browser: Browser{
			Display:      os.Getenv("DISPLAY"),
			Headless:     envBool("BROWSER_HEADLESS"),
			UserDataDir:  env("BROWSER_USER_DATA_DIR", "./userdata"),
			BrowsersPath: env("BROWSER_PATH", ""),
			Engine:       env("BROWSER_ENGINE", "chromium"),
			Timeout:      envDuration("BROWSER_TIMEOUT", 30*time.Second),
		},
		Agent: Agent{
			MaxSteps:                 envInt("AGENT_MAX_STEPS", 50),
			MaxConsecutiveFailures:   envInt("AGENT_MAX_CONSECUTIVE_FAILURES", 5),
			RefreshAfterFailures:     envInt("AGENT_REFRESH_AFTER_FAILURES", 3),
			MaxRefreshAttempts:       envInt("AGENT_MAX_REFRESH_ATTEMPTS", 2),
			SubmissionRetryLimit:     envInt("AGENT_SUBMISSION_RETRY_LIMIT", 3),
			ValidationRepeatEscalate: envInt("AGENT_VALIDATION_REPEAT_ESCALATION", 2),
			SuccessConfidence:        envFloat("AGENT_SUCCESS_CONFIDENCE", 0.72),
			StepPause:                envDuration("AGENT_STEP_PAUSE", 500*time.Millisecond),
			Vision:                   envBool("AGENT_VISION"),
			VisionBudget:             envInt("AGENT_VISION_BUDGET", 8),
			HistoryWindow:            envInt("AGENT_HISTORY_WINDOW", 5),
			ScreenshotDir:            env("AGENT_SCREENSHOT_DIR", "storage/screenshots"),
		},
		Scheduler: Scheduler{
			PollInterval: envDuration("SCHEDULER_POLL_INTERVAL", 2*time.Second),
			Autostart:    envBool("SCHEDULER_AUTOSTART"),
		},
		App: App{
			Host: env("APP_HOST", "127.0.0.1"),
			Port: env("APP_PORT", "8080"),
		},
		Migrations: Migrations{
			Path: env("MIGRATIONS_PATH", "file://migrations"),
		},
		Profile: ProfilePaths{
			Path:           env("PROFILE_PATH", "config/user_profile.yaml"),
			GuidelinesPath: env("GUIDELINES_PATH", "config/agent_guidelines.md"),
			VariantsDir:    env("RESUME_VARIANTS_DIR", "storage/resumes/variants"),
		},
	}

	if cfg.Agent.MaxSteps <= 0 {
		return nil, fmt.Errorf("AGENT_MAX_STEPS должен быть положительным: %d", cfg.Agent.MaxSteps)
	}
	if cfg.Agent.SuccessConfidence <= 0 || cfg.Agent.SuccessConfidence > 1 {
		return nil, fmt.Errorf("AGENT_SUCCESS_CONFIDENCE вне диапазона (0,1]: %v", cfg.Agent.SuccessConfidence)
	}

	return cfg, nil
}

// ModelChain возвращает цепочку моделей с предпочтительной моделью в начале.
func (o OpenAI) ModelChain() []string {
	chain := make([]string, 0, len(o.FallbackModels)+1)
	if o.Model != "" {
		chain = append(chain, o.Model)
	}
	for _, m := range o.FallbackModels {
		if m != "" && m != o.Model {
			chain = append(chain, m)
		}
	}
	return chain
}

func env(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func envFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func envDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "true" || v == "1" || v == "yes"
}

func envList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
