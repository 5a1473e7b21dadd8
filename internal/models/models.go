package models

import "time"

type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// YogaSession is the stored record of one camera-on to camera-off interval.
type YogaSession struct {
	ID              string     `json:"id"`
	UserID          int        `json:"user_id"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	Status          string     `json:"status"`
	UniquePoses     int        `json:"unique_poses"`
	LoggedPoses     int        `json:"logged_poses"`
	TotalDetections int        `json:"total_detections"`
}

// SessionSummary is written when a session is closed.
type SessionSummary struct {
	UniquePoses     int
	LoggedPoses     int
	TotalDetections int
	EndedAt         time.Time
}

// PoseLogEntry is one persisted pose hold.
type PoseLogEntry struct {
	PoseLabel         string    `json:"pose_name"`
	ConfidenceAverage float64   `json:"confidence"`
	DurationSeconds   int       `json:"duration_seconds"`
	SessionID         string    `json:"session_id"`
	Timestamp         time.Time `json:"timestamp"`
}

type Activity struct {
	ID              int64     `json:"id"`
	UserID          int       `json:"user_id"`
	SessionID       string    `json:"session_id"`
	PoseName        string    `json:"pose_name"`
	TraditionalName string    `json:"traditional_name"`
	Confidence      float64   `json:"confidence"`
	DurationSeconds int       `json:"duration_seconds"`
	LoggedAt        time.Time `json:"logged_at"`
}

type DailyActivity struct {
	Date    string `json:"date"`
	DayName string `json:"day_name"`
	Count   int    `json:"count"`
}

type PoseCount struct {
	PoseName        string    `json:"pose_name"`
	TraditionalName string    `json:"traditional_name"`
	Count           int       `json:"count"`
	LastPracticed   time.Time `json:"last_practiced"`
}

type SessionActivity struct {
	SessionID     string    `json:"session_id"`
	AsanasCount   int       `json:"asanas_count"`
	TotalDuration int       `json:"total_duration"`
	SessionDate   time.Time `json:"session_date"`
}

type UserStats struct {
	TotalAsanas          int               `json:"total_asanas"`
	UniqueAsanas         int               `json:"unique_asanas"`
	TotalDurationSeconds int               `json:"total_duration_seconds"`
	DailyActivity        []DailyActivity   `json:"daily_activity"`
	TopPoses             []PoseCount       `json:"top_asanas"`
	RecentSessions       []SessionActivity `json:"recent_sessions"`
	PeriodDays           int               `json:"period_days"`
	CurrentStreak        int               `json:"current_streak"`
	UserLevel            string            `json:"user_level"`
}

type LeaderboardEntry struct {
	UserID        int    `json:"user_id"`
	Username      string `json:"username"`
	TotalAsanas   int    `json:"total_asanas"`
	IsCurrentUser bool   `json:"is_current_user"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LogActivityRequest struct {
	PoseName        string  `json:"pose_name"`
	Confidence      float64 `json:"confidence"`
	DurationSeconds int     `json:"duration_seconds"`
	SessionID       string  `json:"session_id"`
	Timestamp       string  `json:"timestamp,omitempty"`
}

type LogActivityResponse struct {
	Success    bool   `json:"success"`
	ActivityID string `json:"activity_id"`
	Message    string `json:"message,omitempty"`
}
