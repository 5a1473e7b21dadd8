package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("HTTP_PORT", "")
	t.Setenv("CAPTURE_INTERVAL", "")
	t.Setenv("POSE_STABILIZATION", "")
	t.Setenv("INFERENCE_MODE", "")
	t.Setenv("DB_ENABLED", "")

	cfg := LoadConfig()
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, 1500*time.Millisecond, cfg.CaptureInterval)
	assert.Equal(t, 3*time.Second, cfg.GracePeriod)
	assert.False(t, cfg.Stabilization)
	assert.False(t, cfg.UseGRPCInference())
	assert.True(t, cfg.DBEnabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("CAPTURE_INTERVAL", "750")
	t.Setenv("GRACE_PERIOD", "4s")
	t.Setenv("POSE_STABILIZATION", "true")
	t.Setenv("INFERENCE_MODE", "GRPC")
	t.Setenv("ACTIVITY_LOG_URL", "http://flask:5000")
	t.Setenv("ASSIST_URL", "")
	t.Setenv("PREDICT_URL", "http://predict:5000")

	cfg := LoadConfig()
	assert.Equal(t, 750*time.Millisecond, cfg.CaptureInterval)
	assert.Equal(t, 4*time.Second, cfg.GracePeriod)
	assert.True(t, cfg.Stabilization)
	assert.True(t, cfg.UseGRPCInference())
	assert.True(t, cfg.RemoteActivityLog())
	assert.Equal(t, "http://predict:5000", cfg.AssistURL)
}

func TestGetEnvDuration_Invalid(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "soon")
	assert.Equal(t, 5*time.Second, getEnvDuration("REQUEST_TIMEOUT", 5*time.Second))
}

func TestConfig_Validate(t *testing.T) {
	base := Config{
		InferenceMode:  "http",
		PredictURL:     "http://predict",
		GracePeriod:    time.Second,
		RequestTimeout: time.Second,
		DBEnabled:      true,
	}
	require.NoError(t, base.Validate())

	bad := base
	bad.InferenceMode = "carrier-pigeon"
	assert.Error(t, bad.Validate())

	bad = base
	bad.InferenceMode = "grpc"
	assert.ErrorContains(t, bad.Validate(), "INFERENCE_GRPC_ADDR")

	bad = base
	bad.DBEnabled = false
	assert.ErrorContains(t, bad.Validate(), "ACTIVITY_LOG_URL")
}

func TestConfig_DSNForLog(t *testing.T) {
	cfg := Config{DBHost: "db", DBPort: "5432", DBUser: "yoga", DBPassword: "hunter2", DBName: "posecoach", DBSSLMode: "disable"}
	assert.Contains(t, cfg.DSN(), "password=hunter2")
	assert.NotContains(t, cfg.DSNForLog(), "hunter2")
}
