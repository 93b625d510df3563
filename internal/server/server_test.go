package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/config"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/db"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/engine"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/migrate"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/places"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/repo"
)

type testServer struct {
	URL    string
	Engine *engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local) }
	e.Rand = func(int) int { return 0 }

	cfg := Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowInsecureDev: true},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	handler, err := New(cfg)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decodePlan(t *testing.T, data []byte) domain.Plan {
	t.Helper()
	var out struct {
		Plan domain.Plan `json:"plan"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal plan: %v\n%s", err, data)
	}
	return out.Plan
}

func TestGeneratePlanEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/plans/generate", map[string]any{
		"area":              "shibuya",
		"date_phase":        "first",
		"date_budget_level": "medium",
		"time_slot":         "lunch",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	plan := decodePlan(t, data)
	if len(plan.Schedule) == 0 {
		t.Fatal("empty schedule")
	}
	if plan.Schedule[0].Kind != domain.KindMeeting {
		t.Errorf("first item = %s, want meeting", plan.Schedule[0].Kind)
	}
	if last := plan.Schedule[len(plan.Schedule)-1]; last.Kind != domain.KindFarewell {
		t.Errorf("last item = %s, want farewell", last.Kind)
	}
	if plan.GeneratedBy != "rules" {
		t.Errorf("generated_by = %q, want rules", plan.GeneratedBy)
	}
}

func TestGeneratePlanRequiresArea(t *testing.T) {
	srv := newTestServer(t, nil)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/plans/generate", map[string]any{
		"date_phase": "first",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil || env.Error.Code != "bad_request" {
		t.Errorf("error envelope = %s (err=%v)", data, err)
	}
}

// stallingSearcher blocks until the context expires, simulating a hung
// upstream provider.
type stallingSearcher struct{}

func (stallingSearcher) SearchText(ctx context.Context, query, location string, opts places.SearchOptions) (*domain.Venue, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGeneratePlanOfflineFallbackOnDeadline(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.GenerateTimeout = 100 * time.Millisecond
	})
	srv.Engine.Search = stallingSearcher{}

	// kichijoji has no seeded venues, so every slot consults the (stalled)
	// provider and the first build burns through the whole budget.
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/plans/generate", map[string]any{
		"area":      "kichijoji",
		"time_slot": "lunch",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	plan := decodePlan(t, data)
	if plan.GeneratedBy != "offline" {
		t.Errorf("generated_by = %q, want offline after deadline fallback", plan.GeneratedBy)
	}
	if len(plan.Schedule) == 0 {
		t.Error("fallback plan has no schedule")
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.Auth.AllowInsecureDev = false
	})
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodPost, srv.URL+"/v0/plans/generate", map[string]any{"area": "shibuya"}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated generate = %d, want 401", res.StatusCode)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health without auth = %d, want 200", res.StatusCode)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"actor_id": "tester"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login = %d: %s", res.StatusCode, data)
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("dev login body = %s (err=%v)", data, err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/plans/generate", map[string]any{"area": "shibuya"},
		map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("authenticated generate = %d: %s", res.StatusCode, data)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.Auth.AllowInsecureDev = false
	})
	err := srv.Engine.Repo.InsertAPIKey(context.Background(), nil, domain.APIKey{
		ID:      "key-1",
		ActorID: "keyed-actor",
		KeyHash: repo.HashAPIKey("local-test-key"),
	})
	if err != nil {
		t.Fatalf("insert key: %v", err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/plans/generate", map[string]any{"area": "ginza"},
		map[string]string{"X-Api-Key": "local-test-key"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key generate = %d: %s", res.StatusCode, data)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/plans/generate", map[string]any{"area": "ginza"},
		map[string]string{"X-Api-Key": "wrong-key"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong key = %d, want 401", res.StatusCode)
	}
}

func TestVenueAlternatives(t *testing.T) {
	srv := newTestServer(t, nil)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/venues/alternatives", map[string]any{
		"area":     "shibuya",
		"category": "cafe",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	var out VenueListResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Items) == 0 {
		t.Fatal("no alternatives for a seeded area")
	}
	for _, v := range out.Items {
		if v.Category != "cafe" {
			t.Errorf("alternative %q category = %q", v.Name, v.Category)
		}
	}
}

func TestVenueSearchFallback(t *testing.T) {
	srv := newTestServer(t, nil)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/venues/search", map[string]any{
		"query":    "プラネタリウム",
		"location": "池袋",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	var out VenueResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Source != "fallback" {
		t.Errorf("source = %q, want fallback without a provider", out.Source)
	}
	if out.Venue.InfoURL == "" {
		t.Error("fallback venue needs a maps search link")
	}
}

func TestGeneratePlanRecordsEvent(t *testing.T) {
	srv := newTestServer(t, nil)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/plans/generate", map[string]any{
		"area": "yokohama",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	plan := decodePlan(t, data)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?type=plan.generated", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, data)
	}
	var out paginatedEvents
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].PlanID != plan.ID {
		t.Errorf("events = %+v, want one row for plan %s", out.Items, plan.ID)
	}
}
