package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/labflow-core/internal/infrastructure/config"
	"github.com/nerrad567/labflow-core/internal/infrastructure/logging"
	"github.com/nerrad567/labflow-core/internal/instrument"
	"github.com/nerrad567/labflow-core/internal/sequence"
)

// ─── Test Fixtures ───────────────────────────────────────────────────────────

const testJWTSecret = "test-secret-key-at-least-32-chars-long"

// stubRepo is an in-memory run repository for API tests.
type stubRepo struct {
	mu      sync.Mutex
	records map[string]sequence.RunRecord
	order   []string
}

func newStubRepo() *stubRepo {
	return &stubRepo{records: make(map[string]sequence.RunRecord)}
}

func (s *stubRepo) Create(_ context.Context, record *sequence.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = *record
	s.order = append(s.order, record.ID)
	return nil
}

func (s *stubRepo) Update(_ context.Context, record *sequence.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; !ok {
		return sequence.ErrRunNotFound
	}
	s.records[record.ID] = *record
	return nil
}

func (s *stubRepo) GetByID(_ context.Context, id string) (*sequence.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, sequence.ErrRunNotFound
	}
	return &rec, nil
}

func (s *stubRepo) List(_ context.Context, limit int) ([]sequence.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sequence.RunRecord
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[s.order[i]])
	}
	return out, nil
}

func (s *stubRepo) ListBySequence(_ context.Context, name string, limit int) ([]sequence.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sequence.RunRecord
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		if rec := s.records[s.order[i]]; rec.Sequence == name {
			out = append(out, rec)
		}
	}
	return out, nil
}

// testRegistry builds a minimal bench: a source whose "set voltage"
// settles briefly so signal-conditioned loops don't spin.
func testRegistry(t *testing.T) *instrument.Registry {
	t.Helper()

	source := instrument.NewOperationSet("source",
		instrument.Operation{
			Spec: instrument.OperationSpec{
				Name: "set voltage",
				Inputs: []instrument.ParameterSpec{
					{Name: "voltage", Format: "%.3f", Default: 0.0},
				},
				Template: "Set output voltage to $(voltage) V.",
			},
			ArgNames: []string{"voltage"},
			Run: func(ctx context.Context, _ map[string]any) ([]any, error) {
				select {
				case <-time.After(time.Millisecond):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				return nil, nil
			},
		},
	)

	registry := instrument.NewRegistry()
	if err := registry.Register(source); err != nil {
		t.Fatalf("registering source: %v", err)
	}
	return registry
}

// newTestServer wires a real engine behind the router and returns the
// server plus an httptest listener.
func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	engine := sequence.NewEngine(testRegistry(t), newStubRepo())
	engine.SetPollInterval(time.Millisecond)

	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 15},
		},
		Logger:  logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test"),
		Engine:  engine,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}

	engine.SetBroadcaster(srv.Hub())

	engine.AddSequence(sequence.Sequence{
		Name:        "bias settle",
		Description: "Apply a single bias point.",
		Root: sequence.NodeSpec{
			Kind: sequence.KindSequence,
			Name: "root",
			Children: []sequence.NodeSpec{
				{
					Kind:       sequence.KindAction,
					Name:       "bias",
					Instrument: "source",
					Operation:  "set voltage",
					Inputs:     map[string]string{"voltage": "1.5"},
				},
			},
		},
	})
	engine.AddSequence(sequence.Sequence{
		Name:        "hold",
		Description: "Hold bias until signalled.",
		Root: sequence.NodeSpec{
			Kind: sequence.KindLoopSignal,
			Name: "hold",
			Children: []sequence.NodeSpec{
				{
					Kind:       sequence.KindAction,
					Name:       "refresh",
					Instrument: "source",
					Operation:  "set voltage",
					Inputs:     map[string]string{"voltage": "1.5"},
				},
			},
		},
	})

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)
	return srv, ts
}

// login obtains a bearer token from the dev credentials endpoint.
func login(t *testing.T, ts *httptest.Server) string {
	t.Helper()

	body := `{"username": "admin", "password": "admin"}`
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	return lr.AccessToken
}

// doAuthed performs an authenticated request and returns the response.
func doAuthed(t *testing.T, method, url, token string, body []byte) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

// waitForRunStatus polls GET /api/runs/{id} until the run reaches a
// terminal status or the deadline expires.
func waitForRunStatus(t *testing.T, ts *httptest.Server, token, runID string, want sequence.RunStatus) sequence.RunRecord {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp := doAuthed(t, http.MethodGet, ts.URL+"/api/runs/"+runID, token, nil)
		var rec sequence.RunRecord
		err := json.NewDecoder(resp.Body).Decode(&rec)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decoding run record: %v", err)
		}
		if rec.Status == want {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s never reached status %q", runID, want)
	return sequence.RunRecord{}
}

// ─── Health and Auth ─────────────────────────────────────────────────────────

func TestHealthEndpointNoAuth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	if payload["status"] != "ok" {
		t.Errorf("status field = %v, want ok", payload["status"])
	}
	if payload["version"] != "test" {
		t.Errorf("version field = %v, want test", payload["version"])
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	_, ts := newTestServer(t)

	body := `{"username": "admin", "password": "wrong"}`
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/sequences")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}

	resp = doAuthed(t, http.MethodGet, ts.URL+"/api/sequences", "not-a-real-token", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", resp.StatusCode)
	}
}

func TestLoginIssuesWorkingToken(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)

	resp := doAuthed(t, http.MethodGet, ts.URL+"/api/sequences", token, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var payload struct {
		Sequences []sequenceSummary `json:"sequences"`
		Count     int               `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding sequences: %v", err)
	}
	if payload.Count != 2 {
		t.Errorf("count = %d, want 2", payload.Count)
	}

	names := make(map[string]int)
	for _, s := range payload.Sequences {
		names[s.Name] = s.Actions
	}
	if actions, ok := names["bias settle"]; !ok || actions != 1 {
		t.Errorf("bias settle actions = %d (present=%v), want 1", actions, ok)
	}
}

// ─── Run Lifecycle ───────────────────────────────────────────────────────────

func TestStartRunCompletes(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)

	resp := doAuthed(t, http.MethodPost, ts.URL+"/api/runs", token, []byte(`{"sequence": "bias settle"}`))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var started startRunResponse
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		t.Fatalf("decoding start response: %v", err)
	}
	if started.Run.ID == "" {
		t.Fatal("expected non-empty run ID")
	}
	if started.Run.TriggerSource != "api" {
		t.Errorf("trigger source = %q, want api", started.Run.TriggerSource)
	}

	rec := waitForRunStatus(t, ts, token, started.Run.ID, sequence.StatusCompleted)
	if rec.ActionsCompleted != 1 {
		t.Errorf("actions completed = %d, want 1", rec.ActionsCompleted)
	}

	// The finished run should appear in the list
	listResp := doAuthed(t, http.MethodGet, ts.URL+"/api/runs", token, nil)
	defer listResp.Body.Close()

	var listed struct {
		Runs  []sequence.RunRecord `json:"runs"`
		Count int                  `json:"count"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&listed); err != nil {
		t.Fatalf("decoding run list: %v", err)
	}
	if listed.Count != 1 || listed.Runs[0].ID != started.Run.ID {
		t.Errorf("run list = %+v, want single run %s", listed, started.Run.ID)
	}
}

func TestStartRunValidation(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"unknown sequence", `{"sequence": "no such thing"}`, http.StatusNotFound},
		{"missing sequence name", `{}`, http.StatusBadRequest},
		{"malformed JSON", `{"sequence": `, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doAuthed(t, http.MethodPost, ts.URL+"/api/runs", token, []byte(tt.body))
			resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestGetRunNotFound(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)

	resp := doAuthed(t, http.MethodGet, ts.URL+"/api/runs/no-such-run", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestInterruptStopsSignalLoop(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)

	resp := doAuthed(t, http.MethodPost, ts.URL+"/api/runs", token, []byte(`{"sequence": "hold"}`))
	var started startRunResponse
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		t.Fatalf("decoding start response: %v", err)
	}
	resp.Body.Close()

	// Give the loop time to begin passing
	time.Sleep(10 * time.Millisecond)

	intResp := doAuthed(t, http.MethodPost, ts.URL+"/api/runs/"+started.Run.ID+"/interrupt", token, nil)
	intResp.Body.Close()
	if intResp.StatusCode != http.StatusOK {
		t.Fatalf("interrupt status = %d, want 200", intResp.StatusCode)
	}

	rec := waitForRunStatus(t, ts, token, started.Run.ID, sequence.StatusCompleted)
	if rec.ActionsFailed != 0 {
		t.Errorf("actions failed = %d, want 0", rec.ActionsFailed)
	}
}

func TestCancelStopsRun(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)

	resp := doAuthed(t, http.MethodPost, ts.URL+"/api/runs", token, []byte(`{"sequence": "hold"}`))
	var started startRunResponse
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		t.Fatalf("decoding start response: %v", err)
	}
	resp.Body.Close()

	time.Sleep(10 * time.Millisecond)

	cancelResp := doAuthed(t, http.MethodPost, ts.URL+"/api/runs/"+started.Run.ID+"/cancel", token, nil)
	cancelResp.Body.Close()
	if cancelResp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200", cancelResp.StatusCode)
	}

	waitForRunStatus(t, ts, token, started.Run.ID, sequence.StatusCancelled)
}

func TestInterruptUnknownRun(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)

	resp := doAuthed(t, http.MethodPost, ts.URL+"/api/runs/ghost/interrupt", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

// ─── WebSocket ───────────────────────────────────────────────────────────────

func TestWSTicketIsSingleUse(t *testing.T) {
	srv, ts := newTestServer(t)
	token := login(t, ts)

	resp := doAuthed(t, http.MethodPost, ts.URL+"/api/auth/ws-ticket", token, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ticket status = %d, want 200", resp.StatusCode)
	}

	var payload struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding ticket: %v", err)
	}
	if payload.Ticket == "" {
		t.Fatal("expected non-empty ticket")
	}

	if !srv.validateTicket(payload.Ticket) {
		t.Error("first validation should succeed")
	}
	if srv.validateTicket(payload.Ticket) {
		t.Error("second validation should fail (single-use)")
	}
}

func TestWebSocketRejectsMissingTicket(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)

	resp := doAuthed(t, http.MethodGet, ts.URL+"/ws", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestWebSocketStreamsRunEvents(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)

	// Obtain a ticket and upgrade
	resp := doAuthed(t, http.MethodPost, ts.URL+"/api/auth/ws-ticket", token, nil)
	var ticket struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		t.Fatalf("decoding ticket: %v", err)
	}
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?ticket=" + ticket.Ticket
	req, err := http.NewRequest(http.MethodGet, wsURL, nil)
	if err != nil {
		t.Fatalf("building ws request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, req.Header)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close()

	// Subscribe to run lifecycle events
	sub := WSMessage{
		Type: WSTypeSubscribe,
		ID:   "sub-1",
		Payload: WSSubscribePayload{
			Channels: []string{ChannelRunStarted, ChannelRunFinished},
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("sending subscribe: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("reading subscribe ack: %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "sub-1" {
		t.Fatalf("ack = %+v, want response to sub-1", ack)
	}

	// Start a run and expect started + finished events
	startResp := doAuthed(t, http.MethodPost, ts.URL+"/api/runs", token, []byte(`{"sequence": "bias settle"}`))
	startResp.Body.Close()

	seen := make(map[string]bool)
	for i := 0; i < 2; i++ {
		var event WSMessage
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("reading event: %v", err)
		}
		if event.Type != WSTypeEvent {
			t.Fatalf("event type = %q, want %q", event.Type, WSTypeEvent)
		}
		seen[event.EventType] = true
	}

	if !seen[ChannelRunStarted] || !seen[ChannelRunFinished] {
		t.Errorf("events seen = %v, want run.started and run.finished", seen)
	}
}

func TestWebSocketUnknownMessageType(t *testing.T) {
	srv, ts := newTestServer(t)
	token := login(t, ts)

	// Mint a ticket directly to keep the test focused on messaging
	ticket := generateTicket()
	srv.tickets.mu.Lock()
	srv.tickets.tickets[ticket] = ticketEntry{expiresAt: time.Now().Add(time.Minute)}
	srv.tickets.mu.Unlock()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?ticket=" + ticket
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer " + token}})
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{Type: "bogus", ID: "m1"}); err != nil {
		t.Fatalf("sending message: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var reply WSMessage
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if reply.Type != WSTypeError {
		t.Errorf("reply type = %q, want %q", reply.Type, WSTypeError)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	engine := sequence.NewEngine(instrument.NewRegistry(), newStubRepo())

	if _, err := New(Deps{Engine: engine}); err == nil {
		t.Error("expected error when logger is missing")
	}
	if _, err := New(Deps{Logger: logger}); err == nil {
		t.Error("expected error when engine is missing")
	}
	if _, err := New(Deps{Logger: logger, Engine: engine}); err != nil {
		t.Errorf("unexpected error with full deps: %v", err)
	}
}

// Guards against accidentally renaming the channel constants referenced
// in dashboard clients.
func TestBroadcastChannels(t *testing.T) {
	channels := []string{ChannelRunStarted, ChannelRunFinished, ChannelStatus, ChannelReading}
	for _, ch := range channels {
		if !strings.HasPrefix(ch, "run.") {
			t.Errorf("channel %q should be namespaced under run.", ch)
		}
	}
}
