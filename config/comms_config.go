package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"comms_server/pkg/apperr"
)

type Config struct {
	Environment string

	// Business identity (used by response templates)
	BusinessName  string
	BusinessPhone string
	BusinessHours BusinessHours

	// Redis (optional L2 cache)
	RedisURL string

	// OpenAI
	OpenAIAPIKey    string
	LLMModel        string
	LLMMaxTokens    int
	LLMTemperature  float64
	LLMTimeoutSec   int
	LLMContextLimit int

	// Request gateway
	RateLimitRPM                int
	RateLimitHighPriorityFactor float64
	CacheTTLMin                 int
	CacheSweepIntervalMin       int
	CacheMaxEntries             int
	MaxRetries                  int
	RetryBaseDelayMs            int

	// Circuit breaker
	CircuitBreakerFailureThreshold int
	CircuitBreakerWindowSec        int
	CircuitBreakerCooldownMs       int
	CircuitBreakerHalfOpenTrials   int

	// Classification / analysis
	HeuristicConfidenceThreshold float64
	EmergencyConfidenceFloor     float64
	JudgmentCacheTTLMin          int
	ConversationWindow           int

	// Response generation / review gate
	ConfidenceThreshold        float64
	QualityThresholds          QualityThresholds
	RequireReviewEmergency     bool
	RequireReviewComplaint     bool
	RequireReviewLowConfidence bool
	TemplatesEnabled           bool

	// Worker pool
	WorkerCount     int
	WorkerQueueSize int
	JobTimeoutSec   int
}

// QualityThresholds holds per-dimension review-gate minimums.
type QualityThresholds struct {
	Appropriateness float64
	Professionalism float64
	Helpfulness     float64
	Clarity         float64
}

// BusinessHours is the weekly open/close calendar consumed by the
// response generator's after-hours rule.
type BusinessHours struct {
	OpenHour  int // inclusive, local time
	CloseHour int // exclusive
	Days      map[time.Weekday]bool
}

// IsOpen reports whether t falls inside business hours.
func (b BusinessHours) IsOpen(t time.Time) bool {
	if !b.Days[t.Weekday()] {
		return false
	}
	h := t.Hour()
	return h >= b.OpenHour && h < b.CloseHour
}

func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENV", "development"),

		BusinessName:  getEnv("BUSINESS_NAME", "Marfinetz Plumbing"),
		BusinessPhone: getEnv("BUSINESS_PHONE", "(814) 555-0123"),
		BusinessHours: BusinessHours{
			OpenHour:  getEnvInt("BUSINESS_OPEN_HOUR", 8),
			CloseHour: getEnvInt("BUSINESS_CLOSE_HOUR", 18),
			Days:      parseBusinessDays(getEnv("BUSINESS_DAYS", "mon,tue,wed,thu,fri")),
		},

		RedisURL: getEnv("REDIS_URL", ""),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		LLMModel:        getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:    getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature:  getEnvFloat("LLM_TEMPERATURE", 0.3),
		LLMTimeoutSec:   getEnvInt("LLM_TIMEOUT_SEC", 60),
		LLMContextLimit: getEnvInt("LLM_CONTEXT_LIMIT", 128000),

		RateLimitRPM:                getEnvInt("RATE_LIMIT_RPM", 60),
		RateLimitHighPriorityFactor: getEnvFloat("RATE_LIMIT_HIGH_PRIORITY_FACTOR", 1.1),
		CacheTTLMin:                 getEnvInt("CACHE_TTL_MIN", 15),
		CacheSweepIntervalMin:       getEnvInt("CACHE_SWEEP_INTERVAL_MIN", 5),
		CacheMaxEntries:             getEnvInt("CACHE_MAX_ENTRIES", 10000),
		MaxRetries:                  getEnvInt("LLM_MAX_RETRIES", 3),
		RetryBaseDelayMs:            getEnvInt("RETRY_BASE_DELAY_MS", 1000),

		CircuitBreakerFailureThreshold: getEnvInt("CB_FAILURE_THRESHOLD", 10),
		CircuitBreakerWindowSec:        getEnvInt("CB_WINDOW_SEC", 60),
		CircuitBreakerCooldownMs:       getEnvInt("CB_COOLDOWN_MS", 30000),
		CircuitBreakerHalfOpenTrials:   getEnvInt("CB_HALF_OPEN_TRIALS", 1),

		HeuristicConfidenceThreshold: getEnvFloat("HEURISTIC_CONFIDENCE_THRESHOLD", 0.8),
		EmergencyConfidenceFloor:     getEnvFloat("EMERGENCY_CONFIDENCE_FLOOR", 0.8),
		JudgmentCacheTTLMin:          getEnvInt("JUDGMENT_CACHE_TTL_MIN", 30),
		ConversationWindow:           getEnvInt("CONVERSATION_WINDOW", 10),

		ConfidenceThreshold: getEnvFloat("CONFIDENCE_THRESHOLD", 0.7),
		QualityThresholds: QualityThresholds{
			Appropriateness: getEnvFloat("QUALITY_MIN_APPROPRIATENESS", 0.5),
			Professionalism: getEnvFloat("QUALITY_MIN_PROFESSIONALISM", 0.5),
			Helpfulness:     getEnvFloat("QUALITY_MIN_HELPFULNESS", 0.5),
			Clarity:         getEnvFloat("QUALITY_MIN_CLARITY", 0.5),
		},
		RequireReviewEmergency:     getEnvBool("REVIEW_EMERGENCIES", true),
		RequireReviewComplaint:     getEnvBool("REVIEW_COMPLAINTS", true),
		RequireReviewLowConfidence: getEnvBool("REVIEW_LOW_CONFIDENCE", true),
		TemplatesEnabled:           getEnvBool("TEMPLATES_ENABLED", true),

		WorkerCount:     getEnvInt("WORKER_COUNT", 8),
		WorkerQueueSize: getEnvInt("WORKER_QUEUE_SIZE", 1000),
		JobTimeoutSec:   getEnvInt("JOB_TIMEOUT_SEC", 90),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects misconfiguration at startup rather than deferring it
// to per-message handling.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" && c.IsProduction() {
		return apperr.ConfigError("OPENAI_API_KEY is required in production")
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return apperr.ConfigError("LLM_TEMPERATURE must be in [0, 2]")
	}
	if c.RateLimitRPM <= 0 {
		return apperr.ConfigError("RATE_LIMIT_RPM must be positive")
	}
	if c.RateLimitHighPriorityFactor < 1.0 {
		return apperr.ConfigError("RATE_LIMIT_HIGH_PRIORITY_FACTOR must be >= 1.0")
	}
	if c.CircuitBreakerFailureThreshold <= 0 {
		return apperr.ConfigError("CB_FAILURE_THRESHOLD must be positive")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return apperr.ConfigError("CONFIDENCE_THRESHOLD must be in [0, 1]")
	}
	return nil
}

func parseBusinessDays(s string) map[time.Weekday]bool {
	names := map[string]time.Weekday{
		"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
		"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
		"sat": time.Saturday,
	}
	days := make(map[time.Weekday]bool)
	for _, part := range strings.Split(s, ",") {
		if d, ok := names[strings.ToLower(strings.TrimSpace(part))]; ok {
			days[d] = true
		}
	}
	return days
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
