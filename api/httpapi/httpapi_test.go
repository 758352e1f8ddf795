package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mem "guildbot/adapters/memory"
	"guildbot/core"
	"guildbot/engine"
)

func newTestStore(t *testing.T) *mem.Store {
	t.Helper()
	return mem.New()
}

func TestGrantXP(t *testing.T) {
	store := newTestStore(t)
	handler := NewMux(store, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/xp?delta=10", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["total"] != float64(10) {
		t.Fatalf("expected total 10, got %v", resp["total"])
	}
}

func TestGrantXPThroughApplier(t *testing.T) {
	store := newTestStore(t)
	lvl := engine.NewLeveling(engine.LevelingConfig{LevelPower: 0.25}, store)
	handler := NewMux(store, lvl, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/xp?delta=2000", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	recUser, err := store.GetOrCreate(req.Context(), "alice")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if recUser.Level != 6 {
		t.Fatalf("expected level 6 after grant, got %d", recUser.Level)
	}
}

func TestGrantXPValidation(t *testing.T) {
	store := newTestStore(t)
	handler := NewMux(store, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/xp?delta=bad", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetUser(t *testing.T) {
	store := newTestStore(t)
	handler := NewMux(store, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/users/unknown", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var rec2 core.UserRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &rec2); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec2.XP != 0 {
		t.Fatalf("expected fresh record, got %#v", rec2)
	}
}

func TestLeaderboard(t *testing.T) {
	store := newTestStore(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	if _, err := store.AddXP(ctx, "alice", 100); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddXP(ctx, "bob", 50); err != nil {
		t.Fatal(err)
	}
	handler := NewMux(store, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/leaderboard?by=xp&limit=2", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Entries []core.LeaderboardEntry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 2 || resp.Entries[0].UserID != "alice" {
		t.Fatalf("unexpected entries: %#v", resp.Entries)
	}
}

func TestLeaderboardRejectsUnknownColumn(t *testing.T) {
	store := newTestStore(t)
	handler := NewMux(store, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/leaderboard?by=xp%3BDROP+TABLE+users", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	store := newTestStore(t)
	handler := NewMux(store, nil, nil, Options{
		PathPrefix:      "/api",
		APIKeys:         []string{"secret"},
		AllowCORSOrigin: "*",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	req2.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec2.Code)
	}
}

func TestRateLimit(t *testing.T) {
	store := newTestStore(t)
	handler := NewMux(store, nil, nil, Options{
		PathPrefix:       "/api",
		APIKeys:          []string{"k"},
		RateLimitEnabled: true,
		RateLimitRPM:     1,
		RateLimitBurst:   1,
	})

	req1 := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	req1.Header.Set("X-API-Key", "k")
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected 200 first request, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	req2.Header.Set("X-API-Key", "k")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec2.Code)
	}
}

type staticConfig string

func (s staticConfig) String() string { return string(s) }

func TestConfigGetAndPut(t *testing.T) {
	store := newTestStore(t)
	var updated []byte
	handler := NewMux(store, nil, nil, Options{
		PathPrefix: "/api",
		Config:     staticConfig(`{"environment":"development"}`),
		UpdateConfig: func(data []byte) error {
			updated = data
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != `{"environment":"development"}` {
		t.Fatalf("unexpected config body: %s", rec.Body.String())
	}

	body := `{"environment":"staging"}`
	req2 := httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(body))
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec2.Code)
	}
	if string(updated) != body {
		t.Fatalf("update callback got %q", updated)
	}
}

func TestConfigPutRejectedWhenReadOnly(t *testing.T) {
	store := newTestStore(t)
	handler := NewMux(store, nil, nil, Options{
		PathPrefix: "/api",
		Config:     staticConfig(`{}`),
	})

	req := httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	store := newTestStore(t)
	handler := NewMux(store, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
