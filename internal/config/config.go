package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GRPCPort    string
	HTTPPort    string
	CORSOrigins string

	InferenceMode     string
	PredictURL        string
	InferenceGRPCAddr string
	AssistURL         string
	ActivityLogURL    string
	ActivityEmail     string
	ActivityPassword  string

	CaptureInterval  time.Duration
	GracePeriod      time.Duration
	ConfirmationTime time.Duration
	RequestTimeout   time.Duration
	Stabilization    bool
	Language         string

	MaxConnections   int
	MaxMessageSizeMB int
	LogLevel         string
	Environment      string

	DBEnabled  bool
	DBName     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

func (p *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBPassword, p.DBName, p.DBSSLMode)
}

// DSNForLog masks the password.
func (p *Config) DSNForLog() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=*** dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBName, p.DBSSLMode)
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

// UseGRPCInference is true when frames go to the classifier over gRPC.
func (c *Config) UseGRPCInference() bool {
	return c.InferenceMode == "grpc"
}

// RemoteActivityLog is true when holds are persisted to an external
// backend instead of the local database.
func (c *Config) RemoteActivityLog() bool {
	return c.ActivityLogURL != ""
}

func (c *Config) Validate() error {
	switch c.InferenceMode {
	case "http":
		if c.PredictURL == "" {
			return fmt.Errorf("PREDICT_URL is required with INFERENCE_MODE=http")
		}
	case "grpc":
		if c.InferenceGRPCAddr == "" {
			return fmt.Errorf("INFERENCE_GRPC_ADDR is required with INFERENCE_MODE=grpc")
		}
	default:
		return fmt.Errorf("unknown INFERENCE_MODE %q", c.InferenceMode)
	}
	if c.GracePeriod <= 0 {
		return fmt.Errorf("GRACE_PERIOD must be positive, got %s", c.GracePeriod)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if !c.DBEnabled && !c.RemoteActivityLog() {
		return fmt.Errorf("either DB_ENABLED or ACTIVITY_LOG_URL must be set to persist holds")
	}
	return nil
}

func LoadConfig() *Config {
	// a missing .env is fine, the process environment is used as is
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		GRPCPort:          getEnv("GRPC_PORT", "50051"),
		HTTPPort:          getEnv("HTTP_PORT", "8081"),
		CORSOrigins:       getEnv("CORS_ORIGINS", "*"),
		InferenceMode:     strings.ToLower(getEnv("INFERENCE_MODE", "http")),
		PredictURL:        getEnv("PREDICT_URL", "http://localhost:5000"),
		InferenceGRPCAddr: getEnv("INFERENCE_GRPC_ADDR", "localhost:50052"),
		AssistURL:         getEnv("ASSIST_URL", ""),
		ActivityLogURL:    getEnv("ACTIVITY_LOG_URL", ""),
		ActivityEmail:     getEnv("ACTIVITY_LOG_EMAIL", ""),
		ActivityPassword:  getEnv("ACTIVITY_LOG_PASSWORD", ""),
		CaptureInterval:   getEnvDuration("CAPTURE_INTERVAL", 1500*time.Millisecond),
		GracePeriod:       getEnvDuration("GRACE_PERIOD", 3000*time.Millisecond),
		ConfirmationTime:  getEnvDuration("POSE_CONFIRMATION_TIME", 1500*time.Millisecond),
		RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 5*time.Second),
		Stabilization:     getEnvBool("POSE_STABILIZATION", false),
		Language:          getEnv("TTS_LANGUAGE", "en"),
		MaxConnections:    getEnvInt("MAX_CONNECTIONS", 1000),
		MaxMessageSizeMB:  getEnvInt("MAX_MESSAGE_SIZE_MB", 50),
		LogLevel:          getEnv("LOG_LEVEL", "INFO"),
		Environment:       getEnv("ENVIRONMENT", "production"),
		DBEnabled:         getEnvBool("DB_ENABLED", true),
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "5432"),
		DBUser:            getEnv("DB_USER", "postgres"),
		DBPassword:        getEnv("DB_PASSWORD", ""),
		DBName:            getEnv("DB_NAME", "posecoach"),
		DBSSLMode:         getEnv("DB_SSLMODE", "disable"),
	}

	if cfg.DBEnabled && cfg.DBPassword == "" {
		log.Println("WARNING: DB_PASSWORD is not set!")
	}
	if cfg.AssistURL == "" {
		cfg.AssistURL = cfg.PredictURL
	}

	return cfg
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("1.5s") or plain milliseconds ("1500").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	log.Printf("Invalid %s=%q, using %s", key, v, defaultVal)
	return defaultVal
}
