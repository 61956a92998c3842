package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DatabaseURL string
	SslCertPath string
	Port        string
	JWTSecret   string
	CORSOrigins []string
	LogLevel    string

	AIAPIKey   string
	EmbedModel string
	GenModel   string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	S3Endpoint   string

	ReportLinkTTL time.Duration

	OpenAIAPIKey    string
	WhisperModel    string
	MaxVoiceSeconds int
	MaxAudioBytes   int64

	SlackBotToken       string
	SlackDefaultChannel string
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
	SMTPFrom            string
	DigestDefaultEmail  string
	PublicBaseURL       string

	SweepSchedule          string
	AnalysisSchedule       string
	SuggestionWindow       time.Duration
	MaxSuggestions         int
	LowConfidenceThreshold float64
	SourceLimit            int
	QueueWorkers           int
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:8888")),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		AIAPIKey:   getEnv("GEMINI_API_KEY", ""),
		EmbedModel: getEnv("EMBED_MODEL", "text-embedding-004"),
		GenModel:   getEnv("GEN_MODEL", "gemini-1.5-flash"),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "signalsloop-reports"),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),

		ReportLinkTTL: getEnvDuration("REPORT_LINK_TTL", 7*24*time.Hour),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		WhisperModel:    getEnv("WHISPER_MODEL", "whisper-1"),
		MaxVoiceSeconds: getEnvInt("MAX_VOICE_SECONDS", 120),
		MaxAudioBytes:   int64(getEnvInt("MAX_AUDIO_BYTES", 25<<20)),

		SlackBotToken:       getEnv("SLACK_BOT_TOKEN", ""),
		SlackDefaultChannel: getEnv("SLACK_DEFAULT_CHANNEL", ""),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            getEnvInt("SMTP_PORT", 587),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:            getEnv("SMTP_FROM", "assistant@signalsloop.com"),
		DigestDefaultEmail:  getEnv("DIGEST_DEFAULT_EMAIL", ""),
		PublicBaseURL:       strings.TrimSuffix(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		SweepSchedule:          getEnv("SWEEP_SCHEDULE", "@every 1m"),
		AnalysisSchedule:       getEnv("ANALYSIS_SCHEDULE", "@every 6h"),
		SuggestionWindow:       getEnvDuration("SUGGESTION_WINDOW", 7*24*time.Hour),
		MaxSuggestions:         getEnvInt("MAX_SUGGESTIONS", 5),
		LowConfidenceThreshold: getEnvFloat("LOW_CONFIDENCE_THRESHOLD", 0.8),
		SourceLimit:            getEnvInt("SOURCE_LIMIT", 8),
		QueueWorkers:           getEnvInt("QUEUE_WORKERS", 4),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Int("default", def).Msg("not an int, using default")
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Float64("default", def).Msg("not a float, using default")
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Dur("default", def).Msg("not a duration, using default")
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
