package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aitector/aitector/config"
	"github.com/aitector/aitector/middleware"
	"github.com/aitector/aitector/models"
	"github.com/aitector/aitector/services"
	"github.com/aitector/aitector/web"
	"github.com/labstack/echo/v4"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeResolver map[string]*services.AuthUser

func (f fakeResolver) ResolveUser(ctx context.Context, token string) (*services.AuthUser, error) {
	return f[token], nil
}

var testUsers = fakeResolver{
	"alice-token": {ID: "alice", Email: "alice@example.com"},
	"bob-token":   {ID: "bob", Email: "bob@example.com"},
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	db.Exec("DELETE FROM api_usage")
	db.Exec("DELETE FROM api_keys")
	db.Exec("DELETE FROM users")
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Prefix:             "/api",
		SupabaseURL:        "http://supabase.test",
		SupabaseServiceKey: "service-key",
		SupabaseAnonKey:    "anon-key",
		MaxKeysPerUser:     10,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*echo.Echo, *gorm.DB) {
	db := setupTestDB(t)
	return serveStore(cfg, services.NewGormStore(db)), db
}

func serveStore(cfg *config.Config, store services.Store) *echo.Echo {
	h := NewHandler(store, cfg, nil)

	e := echo.New()
	api := e.Group(cfg.Prefix, middleware.RequireConfigured(cfg), middleware.NewAuthMiddleware(testUsers, nil).Middleware)
	h.RegisterAPI(api)
	return e
}

func do(e *echo.Echo, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func createKey(t *testing.T, e *echo.Echo, token string) CreateKeyResponse {
	t.Helper()
	rec := do(e, http.MethodPost, "/api/keys", token, "{}")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 creating key, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp CreateKeyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Expected JSON error body, got %q", rec.Body.String())
	}
	return body["error"]
}

var apiRoutes = []struct{ method, path, body string }{
	{http.MethodPost, "/api/auth/callback", `{"user_id":"alice","email":"alice@example.com"}`},
	{http.MethodGet, "/api/me", ""},
	{http.MethodPost, "/api/keys", "{}"},
	{http.MethodGet, "/api/keys", ""},
	{http.MethodDelete, "/api/keys/some-id", ""},
	{http.MethodGet, "/api/keys/some-id/stats", ""},
	{http.MethodGet, "/api/analytics/some-id", ""},
}

func TestUnauthorizedEveryRoute(t *testing.T) {
	e, _ := newTestServer(t, testConfig())

	for _, r := range apiRoutes {
		for _, token := range []string{"", "not-a-session"} {
			rec := do(e, r.method, r.path, token, r.body)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("%s %s token=%q: expected 401, got %d", r.method, r.path, token, rec.Code)
				continue
			}
			if msg := errorOf(t, rec); msg != "Unauthorized" {
				t.Errorf("%s %s: unexpected error %q", r.method, r.path, msg)
			}
		}
	}
}

func TestMisconfiguredEveryRoute(t *testing.T) {
	cfg := testConfig()
	cfg.SupabaseServiceKey = ""
	e, _ := newTestServer(t, cfg)

	for _, r := range apiRoutes {
		for _, token := range []string{"", "alice-token"} {
			rec := do(e, r.method, r.path, token, r.body)
			if rec.Code != http.StatusInternalServerError {
				t.Errorf("%s %s: expected 500, got %d", r.method, r.path, rec.Code)
				continue
			}
			if msg := errorOf(t, rec); msg != "Server misconfigured" {
				t.Errorf("%s %s: unexpected error %q", r.method, r.path, msg)
			}
		}
	}
}

func TestAuthCallback(t *testing.T) {
	e, db := newTestServer(t, testConfig())

	rec := do(e, http.MethodPost, "/api/auth/callback", "alice-token", `{"user_id":"alice"}`)
	if rec.Code != http.StatusBadRequest || errorOf(t, rec) != "Missing user_id or email" {
		t.Errorf("Expected 400 for missing email, got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodPost, "/api/auth/callback", "alice-token", `{"user_id":"bob","email":"bob@example.com"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for another user's id, got %d", rec.Code)
	}

	for i := 0; i < 2; i++ {
		rec = do(e, http.MethodPost, "/api/auth/callback", "alice-token", `{"user_id":"alice","email":"alice@example.com"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	var resp struct {
		Data models.User `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.ID != "alice" || resp.Data.Email != "alice@example.com" {
		t.Errorf("Unexpected data %+v", resp.Data)
	}

	var count int64
	db.Model(&models.User{}).Count(&count)
	if count != 1 {
		t.Errorf("Expected one user row after repeated callbacks, got %d", count)
	}
}

func TestGetMe(t *testing.T) {
	e, _ := newTestServer(t, testConfig())

	rec := do(e, http.MethodGet, "/api/me", "bob-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"data":{"id":"bob","email":"bob@example.com"}}` {
		t.Errorf("Unexpected body %s", got)
	}
}

func TestCreateKey(t *testing.T) {
	e, db := newTestServer(t, testConfig())

	first := createKey(t, e, "alice-token")
	second := createKey(t, e, "alice-token")

	if !strings.HasPrefix(first.Key, services.KeyPrefix) || first.Key == second.Key {
		t.Errorf("Unexpected keys %q, %q", first.Key, second.Key)
	}
	if first.Row.ID == "" || first.Row.UsageCount != 0 || first.Row.CreatedAt.IsZero() {
		t.Errorf("Unexpected row %+v", first.Row)
	}

	var users int64
	db.Model(&models.User{}).Count(&users)
	if users != 1 {
		t.Errorf("Expected the user row to be upserted once, got %d rows", users)
	}

	var stored models.APIKey
	if err := db.First(&stored, "id = ?", first.Row.ID).Error; err != nil {
		t.Fatal(err)
	}
	if stored.KeyHash == first.Key || strings.Contains(stored.KeyHash, first.Key) {
		t.Fatal("Plaintext key must not be stored")
	}
	if ok, err := services.VerifyKey(stored.KeyHash, first.Key); err != nil || !ok {
		t.Errorf("Stored hash does not verify the returned key: %v %v", ok, err)
	}

	rec := do(e, http.MethodGet, "/api/keys", "alice-token", "")
	var list struct {
		Data []map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Data) != 2 {
		t.Fatalf("Expected 2 keys, got %d", len(list.Data))
	}
	for _, row := range list.Data {
		if len(row) != 3 || row["id"] == nil || row["usage_count"] == nil || row["created_at"] == nil {
			t.Errorf("Expected only id, usage_count, created_at, got %v", row)
		}
	}
}

func TestCreateKeyRejectsClientKeyMaterial(t *testing.T) {
	e, db := newTestServer(t, testConfig())

	for _, body := range []string{`{"hashed_key":"salt$hash"}`, `{"key":"sk_mine"}`} {
		rec := do(e, http.MethodPost, "/api/keys", "alice-token", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
		}
	}

	var keys int64
	db.Model(&models.APIKey{}).Count(&keys)
	if keys != 0 {
		t.Errorf("Expected no keys stored, got %d", keys)
	}
}

func TestCreateKeyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxKeysPerUser = 1
	e, _ := newTestServer(t, cfg)

	createKey(t, e, "alice-token")

	rec := do(e, http.MethodPost, "/api/keys", "alice-token", "{}")
	if rec.Code != http.StatusBadRequest || errorOf(t, rec) != "Max active keys limit reached" {
		t.Errorf("Expected limit error, got %d %s", rec.Code, rec.Body.String())
	}

	// Limits are per user.
	createKey(t, e, "bob-token")
}

func TestListKeysEmpty(t *testing.T) {
	e, _ := newTestServer(t, testConfig())

	rec := do(e, http.MethodGet, "/api/keys", "bob-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"data":[]}` {
		t.Errorf("Expected empty list, got %s", got)
	}
}

func TestKeyOwnership(t *testing.T) {
	e, db := newTestServer(t, testConfig())
	key := createKey(t, e, "alice-token")

	for _, path := range []string{"/api/keys/" + key.Row.ID + "/stats", "/api/analytics/" + key.Row.ID} {
		rec := do(e, http.MethodGet, path, "bob-token", "")
		if rec.Code != http.StatusForbidden || errorOf(t, rec) != "Not allowed" {
			t.Errorf("GET %s as another user: expected 403, got %d", path, rec.Code)
		}
	}
	rec := do(e, http.MethodDelete, "/api/keys/"+key.Row.ID, "bob-token", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("DELETE as another user: expected 403, got %d", rec.Code)
	}

	var count int64
	db.Model(&models.APIKey{}).Where("id = ?", key.Row.ID).Count(&count)
	if count != 1 {
		t.Error("Key must survive a foreign delete attempt")
	}

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/api/keys/missing/stats"},
		{http.MethodGet, "/api/analytics/missing"},
		{http.MethodDelete, "/api/keys/missing"},
	} {
		rec := do(e, r.method, r.path, "alice-token", "")
		if rec.Code != http.StatusNotFound || errorOf(t, rec) != "Key not found" {
			t.Errorf("%s %s: expected 404 Key not found, got %d %s", r.method, r.path, rec.Code, rec.Body.String())
		}
	}
}

func TestKeyStatsAndAnalytics(t *testing.T) {
	e, db := newTestServer(t, testConfig())
	key := createKey(t, e, "alice-token")

	rec := do(e, http.MethodGet, "/api/keys/"+key.Row.ID+"/stats", "alice-token", "")
	if got := strings.TrimSpace(rec.Body.String()); got != `{"usage_count":0,"last_used_at":null}` {
		t.Errorf("Unexpected stats for unused key: %s", got)
	}

	rec = do(e, http.MethodGet, "/api/analytics/"+key.Row.ID, "alice-token", "")
	want := `{"detect":{"total":0,"flagged":0,"latency":0,"risk":0},"replace":{"total":0,"success":0,"latency":0,"iterations":0}}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("Expected zero shape, got %s", got)
	}

	flagged, risk := true, 80.0
	db.Create(&models.APIUsage{APIKeyID: key.Row.ID, Action: models.ActionDetect, ElapsedTime: 120, Flagged: &flagged, Risk: &risk})

	rec = do(e, http.MethodGet, "/api/analytics/"+key.Row.ID, "alice-token", "")
	var agg models.Analytics
	if err := json.Unmarshal(rec.Body.Bytes(), &agg); err != nil {
		t.Fatal(err)
	}
	if agg.Detect != (models.DetectStats{Total: 1, Flagged: 1, Latency: 120, Risk: 80}) {
		t.Errorf("Unexpected detect block %+v", agg.Detect)
	}
	if agg.Replace != (models.RewriteStats{}) {
		t.Errorf("Unexpected rewrite block %+v", agg.Replace)
	}

	rec = do(e, http.MethodGet, "/api/keys/"+key.Row.ID+"/stats", "alice-token", "")
	var stats models.KeyStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.UsageCount != 1 || stats.LastUsedAt == nil {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestDeleteKey(t *testing.T) {
	e, _ := newTestServer(t, testConfig())
	key := createKey(t, e, "alice-token")

	rec := do(e, http.MethodDelete, "/api/keys/"+key.Row.ID, "alice-token", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"success":true}` {
		t.Fatalf("Expected 200 success, got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodDelete, "/api/keys/"+key.Row.ID, "alice-token", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", rec.Code)
	}

	rec = do(e, http.MethodGet, "/api/keys", "alice-token", "")
	if got := strings.TrimSpace(rec.Body.String()); got != `{"data":[]}` {
		t.Errorf("Expected no keys after revoke, got %s", got)
	}
}

func TestPages(t *testing.T) {
	renderer, err := web.NewRenderer()
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()

	e := echo.New()
	e.Renderer = renderer
	NewPages(cfg).Register(e)

	for _, path := range []string{"/", "/docs", "/pricing", "/auth", "/dashboard", "/playground"} {
		rec := do(e, http.MethodGet, path, "", "")
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rec.Code)
			continue
		}
		body := rec.Body.String()
		if !strings.Contains(body, `data-supabase-anon-key="anon-key"`) {
			t.Errorf("GET %s: expected anon key in page", path)
		}
		if strings.Contains(body, cfg.SupabaseServiceKey) {
			t.Errorf("GET %s: service key leaked into page", path)
		}
	}

	rec := do(e, http.MethodGet, "/docs", "", "")
	for _, text := range []string{"/api/auth/callback", "bearer token", "403"} {
		if !strings.Contains(rec.Body.String(), text) {
			t.Errorf("Expected docs page to mention %q", text)
		}
	}

	rec = do(e, http.MethodGet, "/pricing", "", "")
	for _, tier := range []string{"Free", "$10", "Enterprise", "10,000 API requests per day"} {
		if !strings.Contains(rec.Body.String(), tier) {
			t.Errorf("Expected pricing page to mention %q", tier)
		}
	}
}

func TestHealth(t *testing.T) {
	e := echo.New()
	e.GET("/healthz", Health)

	rec := do(e, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Errorf("Unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}
