package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"YOGA_TRAINER/posecoach/internal/database"
	"YOGA_TRAINER/posecoach/internal/models"
)

const (
	leaderboardSize = 20
	sessionsLimit   = 50
	maxBeaconBytes  = 64 << 10
)

type ActivityStore interface {
	LogActivity(ctx context.Context, userID int, entry models.PoseLogEntry) (int64, error)
	UserStats(ctx context.Context, userID, days int, now time.Time) (models.UserStats, error)
	Leaderboard(ctx context.Context, currentUserID, limit int) ([]models.LeaderboardEntry, error)
	Sessions(ctx context.Context, userID, limit int) ([]models.YogaSession, error)
	DeleteSession(ctx context.Context, userID int, id string) error
}

// decodeActivity reads a log request. Browser beacons send the same JSON
// as text/plain, so the content type is not checked.
func decodeActivity(r *http.Request) (models.LogActivityRequest, error) {
	var req models.LogActivityRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBeaconBytes))
	if err != nil {
		return req, err
	}
	err = json.Unmarshal(body, &req)
	return req, err
}

func (a *API) LogActivity(w http.ResponseWriter, r *http.Request) {
	if !a.preflight(w, r, http.MethodPost) {
		return
	}

	userID, ok := a.auth.UserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	req, err := decodeActivity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if strings.TrimSpace(req.PoseName) == "" {
		writeJSON(w, http.StatusBadRequest, models.LogActivityResponse{Message: "Pose name required"})
		return
	}

	at := a.now()
	if req.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			at = t
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	id, err := a.activities.LogActivity(ctx, userID, models.PoseLogEntry{
		PoseLabel:         req.PoseName,
		ConfidenceAverage: req.Confidence,
		DurationSeconds:   req.DurationSeconds,
		SessionID:         req.SessionID,
		Timestamp:         at,
	})
	if err != nil {
		log.Printf("Failed to log activity: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.LogActivityResponse{Message: "Failed to log activity"})
		return
	}

	writeJSON(w, http.StatusCreated, models.LogActivityResponse{
		Success:    true,
		ActivityID: strconv.FormatInt(id, 10),
		Message:    "Activity logged successfully",
	})
}

func (a *API) UserStats(w http.ResponseWriter, r *http.Request) {
	if !a.preflight(w, r, http.MethodGet) {
		return
	}
	userID, ok := a.auth.UserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 365 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	stats, err := a.activities.UserStats(ctx, userID, days, a.now())
	if err != nil {
		log.Printf("Error getting user stats: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to get user stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) Leaderboard(w http.ResponseWriter, r *http.Request) {
	if !a.preflight(w, r, http.MethodGet) {
		return
	}
	userID, ok := a.auth.UserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	board, err := a.activities.Leaderboard(ctx, userID, leaderboardSize)
	if err != nil {
		log.Printf("Error getting leaderboard: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to get leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// Sessions lists the user's sessions on GET and deletes one (?id=) on DELETE.
func (a *API) Sessions(w http.ResponseWriter, r *http.Request) {
	if !a.preflight(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	userID, ok := a.auth.UserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if r.Method == http.MethodDelete {
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "Invalid session ID")
			return
		}
		err := a.activities.DeleteSession(ctx, userID, id)
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		if err != nil {
			log.Printf("Failed to delete session: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to delete session")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
		log.Printf("Session deleted: %s", id)
		return
	}

	sessions, err := a.activities.Sessions(ctx, userID, sessionsLimit)
	if err != nil {
		log.Printf("Failed to fetch sessions: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch sessions")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}
