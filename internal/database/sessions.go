package database

import (
	"context"
	"database/sql"
	"fmt"

	"YOGA_TRAINER/posecoach/internal/models"
)

func (s *Store) CreateSession(ctx context.Context, ys models.YogaSession) error {
	status := ys.Status
	if status == "" {
		status = "active"
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO yoga_sessions (id, user_id, started_at, status) VALUES ($1, $2, $3, $4)",
		ys.ID, ys.UserID, ys.StartedAt, status,
	)
	if err != nil {
		return fmt.Errorf("could not create session %s: %w", ys.ID, err)
	}
	return nil
}

// EndSession closes an active session with its summary.
func (s *Store) EndSession(ctx context.Context, id string, summary models.SessionSummary) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE yoga_sessions
		SET ended_at = $2, status = 'completed',
		    unique_poses = $3, logged_poses = $4, total_detections = $5
		WHERE id = $1 AND status = 'active'`,
		id, summary.EndedAt, summary.UniquePoses, summary.LoggedPoses, summary.TotalDetections,
	)
	if err != nil {
		return fmt.Errorf("could not end session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Sessions lists a user's sessions, newest first.
func (s *Store) Sessions(ctx context.Context, userID, limit int) ([]models.YogaSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, started_at, ended_at, status, unique_poses, logged_poses, total_detections
		FROM yoga_sessions WHERE user_id = $1
		ORDER BY started_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("could not list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.YogaSession{}
	for rows.Next() {
		var ys models.YogaSession
		var ended sql.NullTime
		if err := rows.Scan(&ys.ID, &ys.UserID, &ys.StartedAt, &ended, &ys.Status,
			&ys.UniquePoses, &ys.LoggedPoses, &ys.TotalDetections); err != nil {
			return nil, fmt.Errorf("could not read session: %w", err)
		}
		if ended.Valid {
			ys.EndedAt = &ended.Time
		}
		sessions = append(sessions, ys)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session and its pose logs if it belongs to userID.
func (s *Store) DeleteSession(ctx context.Context, userID int, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM yoga_sessions WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("could not delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM pose_logs WHERE session_id = $1 AND user_id = $2", id, userID); err != nil {
		return fmt.Errorf("could not delete pose logs of %s: %w", id, err)
	}
	return tx.Commit()
}
