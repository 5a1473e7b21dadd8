package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"YOGA_TRAINER/posecoach/internal/models"
)

// AssistClient calls the auxiliary endpoints of the pose backend:
// instructions, benefits, body measurements and text-to-speech.
type AssistClient struct {
	url    string
	client *http.Client
}

func NewAssistClient(url string, timeout time.Duration) *AssistClient {
	return &AssistClient{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

type assistError struct {
	Error   string `json:"error"`
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

func (a *AssistClient) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("could not encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("could not build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("could not decode %s response: %w", path, err)
	}
	var ae assistError
	if err := json.Unmarshal(raw, &ae); err == nil {
		if ae.Error != "" {
			return fmt.Errorf("%s: %s", path, ae.Error)
		}
		if ae.Success != nil && !*ae.Success {
			return fmt.Errorf("%s: %s", path, ae.Message)
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("could not decode %s response: %w", path, err)
	}
	return nil
}

func (a *AssistClient) Instructions(ctx context.Context, label, language string) (models.Instructions, error) {
	var resp struct {
		Instructions string `json:"instructions"`
		Feedback     string `json:"feedback"`
	}
	err := a.post(ctx, "/get_instructions", map[string]string{
		"pose_name": label,
		"language":  language,
	}, &resp)
	if err != nil {
		return models.Instructions{}, err
	}
	return models.Instructions{
		Label:        label,
		Instructions: splitBullets(resp.Instructions),
		Feedback:     strings.TrimSpace(resp.Feedback),
	}, nil
}

// splitBullets turns a "- a\n- b" block into its items.
func splitBullets(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-•* ")
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}

func (a *AssistClient) Benefits(ctx context.Context, label, traditionalName, language string) (models.PoseBenefits, error) {
	var b models.PoseBenefits
	err := a.post(ctx, "/get_pose_benefits", map[string]string{
		"pose_name": label,
		"language":  language,
	}, &b)
	if err != nil {
		return models.PoseBenefits{}, err
	}
	b.Label = label
	b.TraditionalName = traditionalName
	return b, nil
}

func (a *AssistClient) BodyMeasurements(ctx context.Context, label string, landmarks []float64) (models.BodyMeasurements, error) {
	if len(landmarks) == 0 {
		return models.BodyMeasurements{}, errors.New("no landmarks")
	}
	var m models.BodyMeasurements
	err := a.post(ctx, "/get_body_measurements", map[string]interface{}{
		"pose_name": label,
		"landmarks": landmarks,
	}, &m)
	return m, err
}

// SpeakPose asks the backend to speak the pose name only.
func (a *AssistClient) SpeakPose(ctx context.Context, traditionalName, language string) error {
	return a.post(ctx, "/speak_feedback", map[string]string{
		"pose_name": traditionalName,
		"feedback":  "",
		"language":  language,
	}, nil)
}

func (a *AssistClient) SpeakWelcome(ctx context.Context, language string) error {
	return a.post(ctx, "/speak_welcome", map[string]string{"language": language}, nil)
}
