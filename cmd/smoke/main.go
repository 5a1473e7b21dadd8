// Command smoke runs the REST surface of a live posecoach backend end to
// end: health, account, hold logging, stats and session history.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"YOGA_TRAINER/posecoach/internal/models"
	"YOGA_TRAINER/posecoach/internal/services"
)

type smoke struct {
	backend  string
	email    string
	password string
	client   *http.Client
}

func (s *smoke) testHealth() error {
	fmt.Println("\n[TEST] Testing /api/health...")
	resp, err := s.client.Get(s.backend + "/api/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	var status models.HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to parse health: %w", err)
	}
	fmt.Printf("✓ Health: %s (inference=%v, database=%v)\n", status.Status, status.InferenceUp, status.DatabaseEnabled)
	return nil
}

func (s *smoke) testRegister() error {
	fmt.Println("\n[TEST] Testing /api/auth/register...")

	data, _ := json.Marshal(map[string]string{
		"email":    s.email,
		"username": strings.Split(s.email, "@")[0],
		"password": s.password,
	})
	resp, err := s.client.Post(s.backend+"/api/auth/register", "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusCreated:
		fmt.Printf("✓ Registration successful: %s\n", string(body))
		return nil
	case http.StatusConflict:
		fmt.Printf("⚠ User already exists (this is OK)\n")
		return nil
	}
	return fmt.Errorf("registration failed: status %d, body: %s", resp.StatusCode, string(body))
}

func (s *smoke) testLogActivity(ctx context.Context) (string, error) {
	fmt.Println("\n[TEST] Testing /api/log_activity...")

	activity, err := services.NewActivityClient(s.backend, 10*time.Second)
	if err != nil {
		return "", err
	}
	if err := activity.Login(ctx, s.email, s.password); err != nil {
		return "", fmt.Errorf("login failed: %w", err)
	}
	fmt.Printf("✓ Login successful\n")

	sessionID := uuid.NewString()
	id, err := activity.LogActivity(ctx, models.PoseLogEntry{
		PoseLabel:         "tree",
		ConfidenceAverage: 0.91,
		DurationSeconds:   12,
		SessionID:         sessionID,
		Timestamp:         time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("log activity failed: %w", err)
	}
	fmt.Printf("✓ Hold logged: activity=%s session=%s\n", id, sessionID)
	return sessionID, nil
}

func (s *smoke) login() error {
	data, _ := json.Marshal(map[string]string{"email": s.email, "password": s.password})
	resp, err := s.client.Post(s.backend+"/api/auth/login", "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login failed: status %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (s *smoke) testStats() error {
	fmt.Println("\n[TEST] Testing /api/user/stats...")

	resp, err := s.client.Get(s.backend + "/api/user/stats?days=7")
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("stats failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var stats models.UserStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("failed to parse stats: %w", err)
	}
	fmt.Printf("✓ Stats: %d poses, level %s, streak %d\n", stats.TotalAsanas, stats.UserLevel, stats.CurrentStreak)
	for _, p := range stats.TopPoses {
		fmt.Printf("  - %s: %d\n", p.PoseName, p.Count)
	}
	return nil
}

func (s *smoke) testSessions(sessionID string) error {
	fmt.Println("\n[TEST] Testing /api/sessions (GET)...")

	resp, err := s.client.Get(s.backend + "/api/sessions")
	if err != nil {
		return fmt.Errorf("get sessions failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get sessions failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var sessions []models.YogaSession
	if err := json.Unmarshal(body, &sessions); err != nil {
		return fmt.Errorf("failed to parse sessions: %w", err)
	}
	fmt.Printf("✓ Retrieved %d sessions\n", len(sessions))
	for _, ys := range sessions {
		if ys.ID == sessionID {
			fmt.Printf("  - smoke session present\n")
		}
	}
	return nil
}

func main() {
	_ = godotenv.Load()

	backend := flag.String("backend", envOr("POSECOACH_URL", "http://localhost:8080"), "backend base URL")
	email := flag.String("email", envOr("SMOKE_EMAIL", "smoke@example.com"), "account email")
	password := flag.String("password", envOr("SMOKE_PASSWORD", "Smoke123456"), "account password")
	flag.Parse()

	jar, _ := cookiejar.New(nil)
	s := &smoke{
		backend:  strings.TrimRight(*backend, "/"),
		email:    *email,
		password: *password,
		client:   &http.Client{Jar: jar, Timeout: 10 * time.Second},
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("POSECOACH - Backend smoke test")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("\n[INFO] Backend:", s.backend)

	ctx := context.Background()

	for _, test := range []struct {
		name string
		fn   func() error
	}{
		{"Health Check", s.testHealth},
		{"Registration", s.testRegister},
		{"Login", s.login},
	} {
		if err := test.fn(); err != nil {
			log.Printf("❌ %s failed: %v", test.name, err)
			os.Exit(1)
		}
	}

	sessionID, err := s.testLogActivity(ctx)
	if err != nil {
		log.Printf("❌ Activity logging failed: %v", err)
		os.Exit(1)
	}
	if err := s.testStats(); err != nil {
		log.Printf("⚠ %v", err)
	}
	if err := s.testSessions(sessionID); err != nil {
		log.Printf("⚠ %v", err)
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("✅ All tests completed successfully!")
	fmt.Println(strings.Repeat("=", 60))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
