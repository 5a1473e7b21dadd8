package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"YOGA_TRAINER/posecoach/internal/models"
)

// PredictClient classifies frames through the inference backend's
// multipart /predict endpoint.
type PredictClient struct {
	url    string
	client *http.Client
}

func NewPredictClient(url string, timeout time.Duration) *PredictClient {
	log.Printf("Using HTTP inference at %s", url)
	return &PredictClient{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// Classify posts the frame as "file" and maps the response to an
// observation. Every no-pose signal is reported as ErrNoPose.
func (p *PredictClient) Classify(ctx context.Context, frame models.Frame) (models.PoseObservation, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", fmt.Sprintf("frame-%d.jpg", frame.SequenceNumber))
	if err != nil {
		return models.PoseObservation{}, fmt.Errorf("could not build predict request: %w", err)
	}
	if _, err := part.Write(frame.Data); err != nil {
		return models.PoseObservation{}, fmt.Errorf("could not build predict request: %w", err)
	}
	if err := w.Close(); err != nil {
		return models.PoseObservation{}, fmt.Errorf("could not build predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/predict", &body)
	if err != nil {
		return models.PoseObservation{}, fmt.Errorf("could not build predict request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return models.PoseObservation{}, fmt.Errorf("predict request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return models.PoseObservation{}, fmt.Errorf("predict returned %d: %w", resp.StatusCode, ErrNoPose)
	}

	var pr models.PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return models.PoseObservation{}, fmt.Errorf("could not decode predict response: %w", err)
	}
	return observation(pr)
}

func observation(pr models.PredictResponse) (models.PoseObservation, error) {
	if pr.Error != "" {
		return models.PoseObservation{}, fmt.Errorf("predict: %s: %w", pr.Error, ErrNoPose)
	}
	if noPoseLabels[strings.ToLower(strings.TrimSpace(pr.Pose))] {
		return models.PoseObservation{}, ErrNoPose
	}
	return models.PoseObservation{
		Label:      pr.Pose,
		Confidence: pr.Confidence,
		Timestamp:  time.Now(),
	}, nil
}

// Health reports whether the backend answers on /health.
func (p *PredictClient) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (p *PredictClient) Close() error { return nil }
