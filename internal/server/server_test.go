package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/autoapply/syncbridge/internal/core/domain"
	"github.com/autoapply/syncbridge/internal/core/ports"
	"github.com/autoapply/syncbridge/internal/reconcile"
	"github.com/autoapply/syncbridge/internal/session"
	"github.com/autoapply/syncbridge/internal/testutil"
	"github.com/autoapply/syncbridge/internal/view"
)

type staticConnection struct {
	state ports.ConnectionState
	err   error
}

func (c *staticConnection) State() ports.ConnectionState                        { return c.state }
func (c *staticConnection) Err() error                                          { return c.err }
func (c *staticConnection) OnStateChange(fn func(ports.ConnectionState)) func() { return func() {} }

type countingRefresher struct{ calls int }

func (r *countingRefresher) Refresh() { r.calls++ }

type fixture struct {
	srv        *Server
	backend    *testutil.FakeBackend
	reconciler *reconcile.Reconciler
	tracker    *session.Tracker
	refresher  *countingRefresher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	backend := &testutil.FakeBackend{}
	reconciler := reconcile.New(nil)
	tracker, err := session.NewTracker(session.Options{Client: backend, ReconcileDelay: time.Hour})
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	t.Cleanup(tracker.Close)

	conn := &staticConnection{state: ports.StateOpen}
	refresher := &countingRefresher{}
	srv := New(Options{
		Port:       0,
		Adapter:    view.NewAdapter(conn, reconciler, tracker),
		Client:     backend,
		Tracker:    tracker,
		Resolver:   reconciler,
		Connection: conn,
		Channel:    refresher,
	})
	return &fixture{
		srv:        srv,
		backend:    backend,
		reconciler: reconciler,
		tracker:    tracker,
		refresher:  refresher,
	}
}

func (f *fixture) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_View(t *testing.T) {
	f := newFixture(t)
	f.reconciler.Replace(1, []domain.Intervention{
		{ID: "i1", Status: domain.InterventionPending, Title: "CAPTCHA Detected"},
	})
	f.tracker.ReplaceAll([]domain.Session{
		{ID: "s1", Status: domain.SessionInProgress, CreatedAt: time.Now().UTC()},
	})

	rec := f.request(t, http.MethodGet, "/api/view", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Error("X-Request-ID header missing")
	}

	var snap view.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if snap.Connection != "live" || !snap.Live {
		t.Errorf("connection = %q live = %v, want live true", snap.Connection, snap.Live)
	}
	if snap.PendingCount != 1 || len(snap.Interventions) != 1 || len(snap.Sessions) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestServer_ViewInterventions(t *testing.T) {
	f := newFixture(t)
	f.reconciler.Replace(2, []domain.Intervention{
		{ID: "i1", Status: domain.InterventionPending},
		{ID: "i2", Status: domain.InterventionPending},
	})

	rec := f.request(t, http.MethodGet, "/api/view/interventions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		PendingCount  int                   `json:"pending_count"`
		Interventions []domain.Intervention `json:"interventions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.PendingCount != 2 || len(body.Interventions) != 2 {
		t.Errorf("body = %+v", body)
	}
}

func TestServer_Refresh(t *testing.T) {
	f := newFixture(t)
	f.backend.SetSessions([]domain.Session{
		{ID: "s1", Status: domain.SessionPaused, CreatedAt: time.Now().UTC()},
	})

	rec := f.request(t, http.MethodPost, "/api/refresh", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if f.refresher.calls != 1 {
		t.Errorf("channel refresh calls = %d, want 1", f.refresher.calls)
	}
	if got := f.tracker.List(false); len(got) != 1 {
		t.Errorf("sessions after refresh = %d, want 1", len(got))
	}
}

func TestServer_Resolve(t *testing.T) {
	f := newFixture(t)
	f.reconciler.Replace(1, []domain.Intervention{
		{ID: "i1", Status: domain.InterventionPending},
	})

	rec := f.request(t, http.MethodPost, "/api/interventions/i1/resolve", `{"action": "submit"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	// The confirmed resolution fed back into local state.
	if got := f.reconciler.PendingCount(); got != 0 {
		t.Errorf("pending count = %d, want 0", got)
	}

	var res domain.ResolveResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if res.Action != domain.ResolveSubmit {
		t.Errorf("action = %q, want submit", res.Action)
	}
}

func TestServer_ResolveDefaultsToContinue(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodPost, "/api/interventions/i1/resolve", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var res domain.ResolveResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if res.Action != domain.ResolveContinue {
		t.Errorf("action = %q, want continue", res.Action)
	}
}

func TestServer_ResolveBackendFailure(t *testing.T) {
	f := newFixture(t)
	f.reconciler.Replace(1, []domain.Intervention{
		{ID: "i1", Status: domain.InterventionPending},
	})
	f.backend.ResolveFn = func(ctx context.Context, id string, req domain.ResolveRequest) (*domain.ResolveResult, error) {
		return nil, domain.ErrNotFound("intervention not found").WithResource(id)
	}

	rec := f.request(t, http.MethodPost, "/api/interventions/i1/resolve", `{"action": "continue"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	// A failed command leaves the local pending set untouched.
	if got := f.reconciler.PendingCount(); got != 1 {
		t.Errorf("pending count = %d, want 1", got)
	}

	var body struct {
		Error domain.BridgeError `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Type != domain.ErrorTypeNotFound {
		t.Errorf("error type = %q, want not_found", body.Error.Type)
	}
}

func TestServer_SessionDetail(t *testing.T) {
	f := newFixture(t)
	f.backend.SetSessions([]domain.Session{
		{ID: "s1", Status: domain.SessionPaused, CreatedAt: time.Now().UTC()},
	})

	rec := f.request(t, http.MethodGet, "/api/sessions/s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var detail domain.SessionDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if detail.ID != "s1" {
		t.Errorf("detail = %+v", detail)
	}

	rec = f.request(t, http.MethodGet, "/api/sessions/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status for unknown session = %d, want 404", rec.Code)
	}
}

func TestServer_SessionCommands(t *testing.T) {
	f := newFixture(t)
	f.backend.SetSessions([]domain.Session{
		{ID: "s1", Status: domain.SessionPaused, CanResume: true, CreatedAt: time.Now().UTC()},
	})
	if err := f.tracker.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	rec := f.request(t, http.MethodPost, "/api/sessions/s1/resume", `{"restore_browser": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := f.tracker.List(false); got[0].Status != domain.SessionInProgress {
		t.Errorf("status after resume = %q, want in_progress", got[0].Status)
	}

	rec = f.request(t, http.MethodPost, "/api/sessions/s1/pause", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("pause status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.request(t, http.MethodPost, "/api/sessions/s1/mark-applied", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("mark-applied status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.request(t, http.MethodDelete, "/api/sessions/s1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := f.tracker.List(false); len(got) != 0 {
		t.Errorf("sessions after delete = %+v, want none", got)
	}
}

func TestServer_StartApplication(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodPost, "/api/applications/start",
		`{"job_url": "https://jobs.example.com/123", "user_data": {"name": "A"}, "cv_content": "..."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var res domain.ApplicationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if res.SessionID == "" {
		t.Error("session_id missing from start result")
	}

	rec = f.request(t, http.MethodPost, "/api/applications/start", `{"user_data": {}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status without job_url = %d, want 400", rec.Code)
	}
}
