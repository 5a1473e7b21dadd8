package models

import "time"

// PredictResponse is the body returned by the inference backend's /predict.
type PredictResponse struct {
	Pose          string  `json:"pose"`
	SanskritName  string  `json:"sanskrit_name,omitempty"`
	EnglishName   string  `json:"english_name,omitempty"`
	Confidence    float64 `json:"confidence"`
	Error         string  `json:"error,omitempty"`
	InferenceTime float64 `json:"inference_time_ms,omitempty"`
}

// Frame is one captured camera image waiting for classification.
type Frame struct {
	Data           []byte
	Landmarks      []float64
	Timestamp      time.Time
	SequenceNumber int32
}

// PoseObservation is one classification result of a frame.
type PoseObservation struct {
	Label      string
	Confidence float64
	Timestamp  time.Time
}

type DisplayUpdate struct {
	Label             string `json:"label"`
	ConfidencePercent int    `json:"confidence_percent"`
	IsAboveThreshold  bool   `json:"is_above_threshold"`
}

type HoldNotification struct {
	Label             string `json:"label"`
	DurationSeconds   int    `json:"duration_seconds"`
	ConfidencePercent int    `json:"confidence_percent"`
	Persisted         bool   `json:"persisted"`
	SkipReason        string `json:"skip_reason,omitempty"`
}

type Announcement struct {
	Label           string `json:"label"`
	TraditionalName string `json:"traditional_name"`
}

type Instructions struct {
	Label        string   `json:"label"`
	Instructions []string `json:"instructions"`
	Feedback     string   `json:"feedback,omitempty"`
}

type BodyMeasurements struct {
	SpineAngle    float64 `json:"spine_angle"`
	KneeAngle     float64 `json:"knee_angle"`
	HipAngle      float64 `json:"hip_angle"`
	ShoulderAngle float64 `json:"shoulder_angle"`
	ArmSpan       float64 `json:"arm_span"`
	LegLength     float64 `json:"leg_length"`
	TorsoLength   float64 `json:"torso_length"`
	BalanceScore  float64 `json:"balance_score"`
}

type PoseBenefits struct {
	Label             string `json:"label"`
	TraditionalName   string `json:"traditional_name"`
	Benefits          string `json:"benefits"`
	Contraindications string `json:"contraindications,omitempty"`
	Timing            string `json:"timing,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
	Code      string `json:"code,omitempty"`
}

type HealthStatus struct {
	Status          string `json:"status"`
	GoBackend       string `json:"go_backend"`
	InferenceUp     bool   `json:"inference_service"`
	ActiveClients   int    `json:"active_clients"`
	ActiveSessions  int    `json:"active_sessions"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	Version         string `json:"version,omitempty"`
	DatabaseEnabled bool   `json:"database_enabled"`
}
