package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"YOGA_TRAINER/posecoach/internal/models"
	"YOGA_TRAINER/posecoach/internal/pose"
)

// LogActivity stores one persisted hold and returns its id.
func (s *Store) LogActivity(ctx context.Context, userID int, entry models.PoseLogEntry) (int64, error) {
	at := entry.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO pose_logs (user_id, session_id, pose_name, traditional_name, confidence, duration_seconds, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		userID, entry.SessionID, entry.PoseLabel, pose.TraditionalName(entry.PoseLabel),
		entry.ConfidenceAverage, entry.DurationSeconds, at.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("could not log %s: %w", entry.PoseLabel, err)
	}
	return id, nil
}

// Activities lists a user's pose logs, newest first.
func (s *Store) Activities(ctx context.Context, userID, limit int) ([]models.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, session_id, pose_name, traditional_name, confidence, duration_seconds, logged_at
		FROM pose_logs WHERE user_id = $1
		ORDER BY logged_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("could not list activities: %w", err)
	}
	defer rows.Close()

	out := []models.Activity{}
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.SessionID, &a.PoseName, &a.TraditionalName,
			&a.Confidence, &a.DurationSeconds, &a.LoggedAt); err != nil {
			return nil, fmt.Errorf("could not read activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UserLog binds the store to one user so a live session can persist holds.
type UserLog struct {
	store  *Store
	userID int
}

func (s *Store) ForUser(userID int) *UserLog {
	return &UserLog{store: s, userID: userID}
}

func (u *UserLog) LogActivity(ctx context.Context, entry models.PoseLogEntry) (string, error) {
	id, err := u.store.LogActivity(ctx, u.userID, entry)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}
