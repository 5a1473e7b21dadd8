package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"YOGA_TRAINER/posecoach/internal/models"
)

// ActivityClient persists holds to a remote /api/log_activity endpoint.
// The cookie jar keeps the login session between calls.
type ActivityClient struct {
	url    string
	client *http.Client
}

func NewActivityClient(url string, timeout time.Duration) (*ActivityClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("could not create cookie jar: %w", err)
	}
	return &ActivityClient{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: timeout, Jar: jar},
	}, nil
}

func (a *ActivityClient) do(ctx context.Context, method, path, contentType string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.url+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not build %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", path, err)
	}
	return resp, nil
}

// Login authenticates against the remote backend; later calls reuse the cookie.
func (a *ActivityClient) Login(ctx context.Context, email, password string) error {
	body, _ := json.Marshal(models.LoginRequest{Email: email, Password: password})
	resp, err := a.do(ctx, http.MethodPost, "/api/auth/login", "application/json", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed: status %d", resp.StatusCode)
	}
	return nil
}

func (a *ActivityClient) LogActivity(ctx context.Context, entry models.PoseLogEntry) (string, error) {
	body, err := json.Marshal(logRequest(entry))
	if err != nil {
		return "", fmt.Errorf("could not encode activity: %w", err)
	}
	resp, err := a.do(ctx, http.MethodPost, "/api/log_activity", "application/json", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out models.LogActivityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("could not decode log_activity response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("log_activity returned %d: %s", resp.StatusCode, out.Message)
	}
	if !out.Success {
		return "", fmt.Errorf("log_activity rejected: %s", out.Message)
	}
	return out.ActivityID, nil
}

func logRequest(entry models.PoseLogEntry) models.LogActivityRequest {
	return models.LogActivityRequest{
		PoseName:        entry.PoseLabel,
		Confidence:      entry.ConfidenceAverage,
		DurationSeconds: entry.DurationSeconds,
		SessionID:       entry.SessionID,
		Timestamp:       entry.Timestamp.UTC().Format(time.RFC3339),
	}
}

// send posts entry the way a browser beacon does: text/plain body, no
// response handling.
func (a *ActivityClient) send(entry models.PoseLogEntry) error {
	body, err := json.Marshal(logRequest(entry))
	if err != nil {
		return err
	}
	resp, err := a.do(context.Background(), http.MethodPost, "/api/log_activity", "text/plain;charset=UTF-8", body)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// Beacon hands entries to a background goroutine and never reports the
// outcome back to the caller.
type Beacon struct {
	deliver func(models.PoseLogEntry) error
}

func NewBeacon(deliver func(models.PoseLogEntry) error) *Beacon {
	return &Beacon{deliver: deliver}
}

// NewHTTPBeacon delivers through the remote activity endpoint.
func NewHTTPBeacon(a *ActivityClient) *Beacon {
	return NewBeacon(a.send)
}

// Send queues entry for delivery. It reports false only when there is
// nothing to deliver with.
func (b *Beacon) Send(entry models.PoseLogEntry) bool {
	if b == nil || b.deliver == nil {
		return false
	}
	go func() {
		if err := b.deliver(entry); err != nil {
			log.Printf("Beacon for %s dropped: %v", entry.PoseLabel, err)
		}
	}()
	return true
}
