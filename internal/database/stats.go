package database

import (
	"context"
	"fmt"
	"time"

	"YOGA_TRAINER/posecoach/internal/models"
)

const (
	dayLayout    = "2006-01-02"
	streakWindow = 30
	dailyWindow  = 7
	topPoses     = 5
	recentLimit  = 10
)

// UserLevel maps the number of logged asanas to a level name.
func UserLevel(total int) string {
	switch {
	case total >= 5000:
		return "Yoga Master"
	case total >= 2500:
		return "Advanced Yogi"
	case total >= 1000:
		return "Intermediate Yogi"
	case total >= 500:
		return "Beginner Yogi"
	}
	return "New Yogi"
}

// Streak counts consecutive active days ending today, at most streakWindow.
// A day without activity today means no streak.
func Streak(activeDays map[string]bool, today time.Time) int {
	streak := 0
	for i := 0; i < streakWindow; i++ {
		if !activeDays[today.AddDate(0, 0, -i).Format(dayLayout)] {
			break
		}
		streak++
	}
	return streak
}

// DailyBuckets returns the last n days, oldest first, with their counts.
func DailyBuckets(counts map[string]int, today time.Time, n int) []models.DailyActivity {
	out := make([]models.DailyActivity, 0, n)
	for i := n - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		key := day.Format(dayLayout)
		out = append(out, models.DailyActivity{
			Date:    key,
			DayName: day.Format("Mon"),
			Count:   counts[key],
		})
	}
	return out
}

// UserStats builds the dashboard statistics for the last days days.
func (s *Store) UserStats(ctx context.Context, userID, days int, now time.Time) (models.UserStats, error) {
	if days <= 0 {
		days = 30
	}
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := now.AddDate(0, 0, -days)

	stats := models.UserStats{PeriodDays: days}
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*), count(DISTINCT pose_name), coalesce(sum(duration_seconds), 0)
		FROM pose_logs WHERE user_id = $1 AND logged_at >= $2`,
		userID, since,
	).Scan(&stats.TotalAsanas, &stats.UniqueAsanas, &stats.TotalDurationSeconds)
	if err != nil {
		return models.UserStats{}, fmt.Errorf("could not load totals: %w", err)
	}

	counts, err := s.dailyCounts(ctx, userID, today.AddDate(0, 0, -(streakWindow-1)))
	if err != nil {
		return models.UserStats{}, err
	}
	stats.DailyActivity = DailyBuckets(counts, today, dailyWindow)
	active := make(map[string]bool, len(counts))
	for day, n := range counts {
		active[day] = n > 0
	}
	stats.CurrentStreak = Streak(active, today)

	if stats.TopPoses, err = s.topPoses(ctx, userID, since); err != nil {
		return models.UserStats{}, err
	}
	if stats.RecentSessions, err = s.recentSessions(ctx, userID, since); err != nil {
		return models.UserStats{}, err
	}
	stats.UserLevel = UserLevel(stats.TotalAsanas)
	return stats, nil
}

func (s *Store) dailyCounts(ctx context.Context, userID int, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(logged_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, count(*)
		FROM pose_logs WHERE user_id = $1 AND logged_at >= $2
		GROUP BY day`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("could not load daily activity: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var day string
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, fmt.Errorf("could not read daily activity: %w", err)
		}
		counts[day] = n
	}
	return counts, rows.Err()
}

func (s *Store) topPoses(ctx context.Context, userID int, since time.Time) ([]models.PoseCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pose_name, max(traditional_name), count(*) AS n, max(logged_at)
		FROM pose_logs WHERE user_id = $1 AND logged_at >= $2
		GROUP BY pose_name ORDER BY n DESC, pose_name LIMIT $3`,
		userID, since, topPoses,
	)
	if err != nil {
		return nil, fmt.Errorf("could not load top poses: %w", err)
	}
	defer rows.Close()

	out := []models.PoseCount{}
	for rows.Next() {
		var pc models.PoseCount
		if err := rows.Scan(&pc.PoseName, &pc.TraditionalName, &pc.Count, &pc.LastPracticed); err != nil {
			return nil, fmt.Errorf("could not read top pose: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func (s *Store) recentSessions(ctx context.Context, userID int, since time.Time) ([]models.SessionActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, count(*), coalesce(sum(duration_seconds), 0), min(logged_at) AS started
		FROM pose_logs WHERE user_id = $1 AND logged_at >= $2
		GROUP BY session_id ORDER BY started DESC LIMIT $3`,
		userID, since, recentLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("could not load recent sessions: %w", err)
	}
	defer rows.Close()

	out := []models.SessionActivity{}
	for rows.Next() {
		var sa models.SessionActivity
		if err := rows.Scan(&sa.SessionID, &sa.AsanasCount, &sa.TotalDuration, &sa.SessionDate); err != nil {
			return nil, fmt.Errorf("could not read session activity: %w", err)
		}
		out = append(out, sa)
	}
	return out, rows.Err()
}

// Leaderboard ranks users by all-time logged asanas.
func (s *Store) Leaderboard(ctx context.Context, currentUserID, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, count(p.id) AS total
		FROM users u JOIN pose_logs p ON p.user_id = u.id
		GROUP BY u.id, u.username
		ORDER BY total DESC, u.username LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("could not load leaderboard: %w", err)
	}
	defer rows.Close()

	out := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.TotalAsanas); err != nil {
			return nil, fmt.Errorf("could not read leaderboard entry: %w", err)
		}
		e.IsCurrentUser = e.UserID == currentUserID
		out = append(out, e)
	}
	return out, rows.Err()
}
