package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"YOGA_TRAINER/posecoach/internal/models"
	"YOGA_TRAINER/posecoach/internal/services"
	"YOGA_TRAINER/posecoach/internal/session"
)

type constClassifier struct {
	label string
	conf  float64
}

func (c constClassifier) Classify(context.Context, models.Frame) (models.PoseObservation, error) {
	return models.PoseObservation{Label: c.label, Confidence: c.conf}, nil
}

type recordingBeacon struct {
	mu   sync.Mutex
	sent []models.PoseLogEntry
}

func (b *recordingBeacon) Send(e models.PoseLogEntry) bool {
	b.mu.Lock()
	b.sent = append(b.sent, e)
	b.mu.Unlock()
	return true
}

type hubAssistant struct {
	mu       sync.Mutex
	welcomed int
}

func (a *hubAssistant) SpeakWelcome(context.Context, string) error {
	a.mu.Lock()
	a.welcomed++
	a.mu.Unlock()
	return nil
}

func (a *hubAssistant) Benefits(_ context.Context, label, name, _ string) (models.PoseBenefits, error) {
	return models.PoseBenefits{Label: label, TraditionalName: name, Benefits: "• balance"}, nil
}

type hubFixture struct {
	hub     *SessionHub
	server  *httptest.Server
	beacon  *recordingBeacon
	store   *memStore
	metrics *services.Metrics
	url     string
}

func newHubFixture(t *testing.T, requireAuth bool) *hubFixture {
	t.Helper()
	f := &hubFixture{beacon: &recordingBeacon{}, store: newMemStore(), metrics: services.NewMetrics()}
	auth := NewAuthSessions()
	cfg := session.DefaultConfig()
	cfg.CaptureInterval = 10 * time.Millisecond

	factory := func(userID int, events session.EventSink) *session.Controller {
		return session.NewController(cfg, session.Deps{
			Classifier: constClassifier{label: "Tree_Pose_or_Vrksasana_", conf: 0.92},
			Activities: activitySink{store: f.store, userID: userID},
			Beacon:     f.beacon,
			Events:     events,
			Metrics:    f.metrics,
		})
	}
	f.hub = NewSessionHub(HubConfig{RequireAuth: requireAuth}, factory, auth, &hubAssistant{}, f.metrics)

	mux := http.NewServeMux()
	mux.Handle("/ws", f.hub)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	f.url = "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	return f
}

type activitySink struct {
	store  *memStore
	userID int
}

func (s activitySink) LogActivity(ctx context.Context, e models.PoseLogEntry) (string, error) {
	_, err := s.store.LogActivity(ctx, s.userID, e)
	return "1", err
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// expect reads messages until one of type kind arrives.
func expect(t *testing.T, conn *websocket.Conn, kind string) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", kind)
		if msg["type"] == kind {
			return msg
		}
	}
}

func frameMessage() map[string]interface{} {
	return map[string]interface{}{
		"type": MsgFrame,
		"payload": map[string]interface{}{
			"image": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg")),
		},
	}
}

func TestHub_SessionRoundTrip(t *testing.T) {
	f := newHubFixture(t, false)
	conn := dial(t, f.url+"?clientId=c-1")

	expect(t, conn, "WELCOME")
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": MsgPing}))
	expect(t, conn, "PONG")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": MsgStartSession, "payload": map[string]string{"language": "hi"}}))
	started := expect(t, conn, session.EventSessionStarted)
	assert.Equal(t, "c-1", started["client_id"])

	require.NoError(t, conn.WriteJSON(frameMessage()))
	display := expect(t, conn, session.EventDisplay)
	payload := display["payload"].(map[string]interface{})
	assert.Equal(t, "Tree_Pose_or_Vrksasana_", payload["label"])
	assert.Equal(t, float64(92), payload["confidence_percent"])
	assert.Equal(t, true, payload["is_above_threshold"])

	announced := expect(t, conn, session.EventPoseAnnounced)
	assert.Equal(t, "Vrksasana", announced["payload"].(map[string]interface{})["traditional_name"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": MsgStopSession}))
	expect(t, conn, session.EventSessionStopped)
	assert.Equal(t, 1, f.hub.ActiveClients())
}

func TestHub_Benefits(t *testing.T) {
	f := newHubFixture(t, false)
	conn := dial(t, f.url)
	expect(t, conn, "WELCOME")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    MsgBenefits,
		"payload": map[string]string{"pose_name": "Cobra_Pose_or_Bhujangasana_"},
	}))
	msg := expect(t, conn, MsgBenefits)
	assert.Equal(t, "Bhujangasana", msg["payload"].(map[string]interface{})["traditional_name"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": MsgBenefits, "payload": map[string]string{}}))
	expect(t, conn, "ERROR")
}

func TestHub_RequireAuth(t *testing.T) {
	f := newHubFixture(t, true)
	conn := dial(t, f.url)
	expect(t, conn, "WELCOME")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": MsgStartSession}))
	msg := expect(t, conn, "ERROR")
	assert.Equal(t, "login required", msg["payload"].(map[string]interface{})["error"])
}

func TestHub_BadFrame(t *testing.T) {
	f := newHubFixture(t, false)
	conn := dial(t, f.url)
	expect(t, conn, "WELCOME")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    MsgFrame,
		"payload": map[string]string{"image": "%%%"},
	}))
	expect(t, conn, "ERROR")
}

func TestHub_DisconnectUnloadsSession(t *testing.T) {
	f := newHubFixture(t, false)
	conn := dial(t, f.url)
	expect(t, conn, "WELCOME")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": MsgStartSession}))
	expect(t, conn, session.EventSessionStarted)
	require.NoError(t, conn.WriteJSON(frameMessage()))
	expect(t, conn, session.EventDisplay)
	conn.Close()

	assert.Eventually(t, func() bool {
		return f.hub.ActiveClients() == 0 && f.metrics.GetActiveSessions() == 0
	}, 3*time.Second, 10*time.Millisecond)
	// a hold shorter than two seconds is not sent
	f.beacon.mu.Lock()
	defer f.beacon.mu.Unlock()
	assert.Empty(t, f.beacon.sent)
}

func TestHub_DuplicateClientID(t *testing.T) {
	f := newHubFixture(t, false)
	first := dial(t, f.url+"?clientId=same")
	expect(t, first, "WELCOME")

	second := dial(t, f.url+"?clientId=same")
	second.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := second.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "got %v", err)
}

func TestDecodeFrame(t *testing.T) {
	raw := []byte(`{"image":"` + base64.StdEncoding.EncodeToString([]byte("abc")) + `","landmarks":[0.1,0.2],"timestamp":1700000000000}`)
	frame, err := decodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), frame.Data)
	assert.Equal(t, []float64{0.1, 0.2}, frame.Landmarks)
	assert.Equal(t, int64(1700000000000), frame.Timestamp.UnixMilli())

	_, err = decodeFrame([]byte(`{"image":""}`))
	assert.Error(t, err)
}
