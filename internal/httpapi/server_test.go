package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/omochi-ai/voicechat/internal/archive"
	"github.com/omochi-ai/voicechat/internal/config"
	"github.com/omochi-ai/voicechat/internal/conversation"
	"github.com/omochi-ai/voicechat/internal/observability"
	"github.com/omochi-ai/voicechat/internal/session"
	"github.com/omochi-ai/voicechat/internal/voiceerr"
)

type fakeController struct {
	mu       sync.Mutex
	state    session.State
	startErr error
	sendErr  error
	sent     []string
	muted    bool
	hidden   []bool
	stops    []session.StopReason
	events   chan session.Event
}

func newFakeController() *fakeController {
	return &fakeController{state: session.StateIdle, events: make(chan session.Event, 8)}
}

func (f *fakeController) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		f.state = session.StateStopped
		return f.startErr
	}
	f.state = session.StateActive
	return nil
}

func (f *fakeController) Stop(reason session.StopReason) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != session.StateActive {
		return false
	}
	f.state = session.StateStopped
	f.stops = append(f.stops, reason)
	return true
}

func (f *fakeController) SendText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeController) SetMicMuted(muted bool) {
	f.mu.Lock()
	f.muted = muted
	f.mu.Unlock()
}

func (f *fakeController) SetHidden(hidden bool) {
	f.mu.Lock()
	f.hidden = append(f.hidden, hidden)
	f.mu.Unlock()
}

func (f *fakeController) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.Snapshot{State: f.state, Muted: f.muted}
}

func (f *fakeController) Subscribe(int) (<-chan session.Event, func()) {
	return f.events, func() {}
}

func (f *fakeController) hiddenCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.hidden...)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, ctrl Controller, store Pinger) *httptest.Server {
	t.Helper()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "test_httpapi")
	srv := New(config.Config{}, ctrl, metrics, store, nil, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func TestStartAndStopSession(t *testing.T) {
	ctrl := newFakeController()
	ts := newTestServer(t, ctrl, nil)

	res := postJSON(t, ts.URL+"/v1/voice/session/start", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var snap session.Snapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	if snap.State != session.StateActive {
		t.Fatalf("state = %q, want active", snap.State)
	}

	stop := postJSON(t, ts.URL+"/v1/voice/session/stop", "")
	var payload map[string]any
	_ = json.NewDecoder(stop.Body).Decode(&payload)
	if payload["stopped"] != true {
		t.Fatalf("stopped = %v, want true", payload["stopped"])
	}
	if len(ctrl.stops) != 1 || ctrl.stops[0] != session.ReasonUser {
		t.Fatalf("stops = %v", ctrl.stops)
	}

	again := postJSON(t, ts.URL+"/v1/voice/session/stop", "")
	payload = nil
	_ = json.NewDecoder(again.Body).Decode(&payload)
	if payload["stopped"] != false {
		t.Fatalf("second stop stopped = %v, want false", payload["stopped"])
	}
}

func TestStartFailureIsClassified(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"already running", session.ErrAlreadyRunning, http.StatusConflict, "already_running", false},
		{"mic denied", voiceerr.Media("acquire", errors.New("permission denied")), http.StatusServiceUnavailable, "media_error", false},
		{"hidden surface", session.ErrHidden, http.StatusConflict, "surface_hidden", false},
		{"gateway 503", voiceerr.SignalingStatus("fetch_credential", 503, "down"), http.StatusBadGateway, "signaling_error", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := newFakeController()
			ctrl.startErr = tc.err
			ts := newTestServer(t, ctrl, nil)

			res := postJSON(t, ts.URL+"/v1/voice/session/start", "")
			if res.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", res.StatusCode, tc.status)
			}
			var body startErrorResponse
			_ = json.NewDecoder(res.Body).Decode(&body)
			if body.Code != tc.code || body.Retryable != tc.retryable {
				t.Fatalf("body = %+v, want code %q retryable %v", body, tc.code, tc.retryable)
			}
		})
	}
}

func TestSendMessage(t *testing.T) {
	ctrl := newFakeController()
	ts := newTestServer(t, ctrl, nil)

	res := postJSON(t, ts.URL+"/v1/voice/messages", `{"text":"hello"}`)
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusAccepted)
	}
	if len(ctrl.sent) != 1 || ctrl.sent[0] != "hello" {
		t.Fatalf("sent = %v", ctrl.sent)
	}

	ctrl.sendErr = session.ErrNotActive
	res = postJSON(t, ts.URL+"/v1/voice/messages", `{"text":"hello"}`)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("inactive status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
	var body errorResponse
	_ = json.NewDecoder(res.Body).Decode(&body)
	if body.Code != "not_active" {
		t.Fatalf("code = %q, want not_active", body.Code)
	}

	ctrl.sendErr = voiceerr.Validation("send_text", session.ErrEmptyText)
	res = postJSON(t, ts.URL+"/v1/voice/messages", `{"text":"  "}`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestMicAndVisibilityRequireFlag(t *testing.T) {
	ctrl := newFakeController()
	ts := newTestServer(t, ctrl, nil)

	if res := postJSON(t, ts.URL+"/v1/voice/mic", `{}`); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("mic without flag status = %d, want 400", res.StatusCode)
	}
	if res := postJSON(t, ts.URL+"/v1/voice/mic", `{"muted":true}`); res.StatusCode != http.StatusOK {
		t.Fatalf("mic status = %d, want 200", res.StatusCode)
	}
	if !ctrl.Snapshot().Muted {
		t.Fatalf("muted = false after POST /v1/voice/mic")
	}

	if res := postJSON(t, ts.URL+"/v1/voice/visibility", `{"hidden":true}`); res.StatusCode != http.StatusOK {
		t.Fatalf("visibility status = %d, want 200", res.StatusCode)
	}
	if got := ctrl.hiddenCalls(); len(got) != 1 || !got[0] {
		t.Fatalf("hidden calls = %v", got)
	}
}

func TestReadyReportsArchiveHealth(t *testing.T) {
	ts := newTestServer(t, newFakeController(), fakePinger{err: errors.New("db down")})
	res, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusServiceUnavailable)
	}

	ts = newTestServer(t, newFakeController(), nil)
	res2, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res2.StatusCode, http.StatusOK)
	}
}

func TestEventStream(t *testing.T) {
	ctrl := newFakeController()
	ts := newTestServer(t, ctrl, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/voice/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first snapshotFrame
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Type != "snapshot" {
		t.Fatalf("first frame type = %q, want snapshot", first.Type)
	}

	ctrl.events <- session.Event{Type: session.EventStreaming, Text: "hel"}
	var ev session.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != session.EventStreaming || ev.Text != "hel" {
		t.Fatalf("event = %+v", ev)
	}

	if err := conn.WriteJSON(map[string]any{"type": "visibility", "hidden": true}); err != nil {
		t.Fatalf("write visibility: %v", err)
	}
	waitFor(t, func() bool { return len(ctrl.hiddenCalls()) >= 2 })
	if got := ctrl.hiddenCalls(); got[0] || !got[1] {
		t.Fatalf("hidden calls = %v, want [false true ...]", got)
	}

	conn.Close()
	waitFor(t, func() bool { return len(ctrl.hiddenCalls()) >= 3 })
	if got := ctrl.hiddenCalls(); !got[2] {
		t.Fatalf("last viewer leaving did not hide: %v", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestPerfLatency(t *testing.T) {
	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "test_httpapi_perf")
	metrics.ObserveStartLatency(1200 * time.Millisecond)
	srv := New(config.Config{}, newFakeController(), metrics, nil, nil, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/perf/latency")
	if err != nil {
		t.Fatalf("GET /v1/perf/latency error = %v", err)
	}
	defer res.Body.Close()
	var snap observability.LatencySnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Stages) != 1 || snap.Stages[0].Stage != observability.StageSessionStart || snap.Stages[0].LastMS != 1200 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestTranscriptReadsArchivedTurns(t *testing.T) {
	archiver := archive.NewArchiver(archive.NewInMemoryStore(), true, zerolog.Nop())
	ctx := context.Background()
	for i, text := range []string{"hello", "mail sam@example.com", "bye"} {
		turn := conversation.Turn{Seq: i + 1, Role: conversation.RoleUser, Text: text}
		if err := archiver.ArchiveTurn(ctx, "s1", turn); err != nil {
			t.Fatalf("ArchiveTurn() error = %v", err)
		}
	}

	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "test_httpapi_transcript")
	srv := New(config.Config{}, newFakeController(), metrics, nil, archiver, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/voice/sessions/s1/transcript?limit=2")
	if err != nil {
		t.Fatalf("GET transcript error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var body struct {
		SessionID string           `json:"session_id"`
		Turns     []archive.Record `json:"turns"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SessionID != "s1" || len(body.Turns) != 2 || body.Turns[0].Seq != 2 || body.Turns[1].Seq != 3 {
		t.Fatalf("body = %+v", body)
	}
	if strings.Contains(body.Turns[0].Content, "sam@example.com") || !body.Turns[0].PIIRedacted {
		t.Fatalf("archived turn not redacted: %+v", body.Turns[0])
	}

	bad, err := http.Get(ts.URL + "/v1/voice/sessions/s1/transcript?limit=0")
	if err != nil {
		t.Fatalf("GET transcript error = %v", err)
	}
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("limit=0 status = %d, want %d", bad.StatusCode, http.StatusBadRequest)
	}

	empty, err := http.Get(ts.URL + "/v1/voice/sessions/unknown/transcript")
	if err != nil {
		t.Fatalf("GET transcript error = %v", err)
	}
	defer empty.Body.Close()
	var emptyBody map[string]any
	_ = json.NewDecoder(empty.Body).Decode(&emptyBody)
	if turns, ok := emptyBody["turns"].([]any); !ok || len(turns) != 0 {
		t.Fatalf("unknown session turns = %v, want []", emptyBody["turns"])
	}
}

func TestTranscriptWithoutArchive(t *testing.T) {
	ts := newTestServer(t, newFakeController(), nil)
	res, err := http.Get(ts.URL + "/v1/voice/sessions/s1/transcript")
	if err != nil {
		t.Fatalf("GET transcript error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestTruncatedBodyIsNotReportedEmpty(t *testing.T) {
	ctrl := newFakeController()
	ts := newTestServer(t, ctrl, nil)

	res := postJSON(t, ts.URL+"/v1/voice/messages", `{"text":"hel`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	var body errorResponse
	_ = json.NewDecoder(res.Body).Decode(&body)
	if body.Error == errEmptyBody.Error() {
		t.Fatalf("truncated JSON reported as %q", body.Error)
	}

	res = postJSON(t, ts.URL+"/v1/voice/messages", "")
	body = errorResponse{}
	_ = json.NewDecoder(res.Body).Decode(&body)
	if body.Error != errEmptyBody.Error() {
		t.Fatalf("empty body error = %q, want %q", body.Error, errEmptyBody.Error())
	}
}
