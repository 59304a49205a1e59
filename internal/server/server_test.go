package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"strokeregistry/internal/registry"
	"strokeregistry/pkg/store"
)

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.Registry == nil {
		reg, err := registry.New(registry.Config{Store: store.NewMemoryStore()})
		if err != nil {
			t.Fatalf("new registry: %v", err)
		}
		cfg.Registry = reg
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, payload
}

func registerAndLogin(t *testing.T, baseURL, email, role string) string {
	t.Helper()
	resp, _ := doJSON(t, http.MethodPost, baseURL+"/auth/register", "", map[string]string{
		"email": email, "password": "CorrectHorse9", "displayName": "Clinician", "role": role,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	resp, payload := doJSON(t, http.MethodPost, baseURL+"/auth/login", "", map[string]string{
		"email": email, "password": "CorrectHorse9",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatalf("login response missing token: %v", payload)
	}
	return token
}

func patientBody(id int) map[string]any {
	return map[string]any{
		"id": id, "gender": "Female", "age": 67, "hypertension": 1,
		"heart_disease": 0, "ever_married": "Yes", "work_type": "Private",
		"residence_type": "Urban", "avg_glucose_level": 228.69, "bmi": 25.0,
		"smoking_status": "formerly smoked", "stroke": 1,
	}
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t, Config{})
	token := registerAndLogin(t, ts.URL, "clin@example.com", "user")

	// Wrong password gives the generic credentials message.
	resp, payload := doJSON(t, http.MethodPost, ts.URL+"/auth/login", "", map[string]string{
		"email": "clin@example.com", "password": "Wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d", resp.StatusCode)
	}
	if msg := payload["message"]; msg != "invalid email or password" {
		t.Fatalf("unexpected credentials message: %v", msg)
	}

	// Logout, then the token stops working.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/auth/logout", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/patients", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	ts := newTestServer(t, Config{})
	registerAndLogin(t, ts.URL, "clin@example.com", "user")
	resp, payload := doJSON(t, http.MethodPost, ts.URL+"/auth/register", "", map[string]string{
		"email": "clin@example.com", "password": "CorrectHorse9", "displayName": "X",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate register status = %d", resp.StatusCode)
	}
	if success, _ := payload["success"].(bool); success {
		t.Fatalf("expected success=false envelope")
	}
}

func TestPatientCRUDAndFullHistory(t *testing.T) {
	ts := newTestServer(t, Config{})
	token := registerAndLogin(t, ts.URL, "clin@example.com", "user")

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/patients", token, patientBody(1))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	// Duplicate id is a client error.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/patients", token, patientBody(1))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate create status = %d", resp.StatusCode)
	}

	update := patientBody(1)
	update["bmi"] = 30.0
	resp, _ = doJSON(t, http.MethodPut, ts.URL+"/api/patients/1", token, update)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/patients/1", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/patients/1", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d", resp.StatusCode)
	}

	// History and audit trail survive the delete.
	resp, payload := doJSON(t, http.MethodGet, ts.URL+"/api/patients/1/full-history", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("full history status = %d", resp.StatusCode)
	}
	if payload["current"] != nil {
		t.Fatalf("current should be null after delete, got %v", payload["current"])
	}
	history, _ := payload["history"].([]any)
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	trail, _ := payload["audit_trail"].([]any)
	if len(trail) != 3 {
		t.Fatalf("audit trail length = %d, want 3", len(trail))
	}
}

func TestPatientValidationRejected(t *testing.T) {
	ts := newTestServer(t, Config{})
	token := registerAndLogin(t, ts.URL, "clin@example.com", "user")

	bad := patientBody(2)
	bad["age"] = 400
	resp, payload := doJSON(t, http.MethodPost, ts.URL+"/api/patients", token, bad)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid patient status = %d", resp.StatusCode)
	}
	if msg, _ := payload["message"].(string); msg == "" {
		t.Fatalf("expected human-readable validation message")
	}
}

func TestDashboardAndActivityReport(t *testing.T) {
	ts := newTestServer(t, Config{})
	token := registerAndLogin(t, ts.URL, "clin@example.com", "user")

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/patients", token, patientBody(1))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	resp, payload := doJSON(t, http.MethodGet, ts.URL+"/api/dashboard-stats", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard status = %d", resp.StatusCode)
	}
	stats, _ := payload["stats"].(map[string]any)
	if stats["totalPatients"] != 1.0 || stats["strokeCases"] != 1.0 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	resp, payload = doJSON(t, http.MethodGet, ts.URL+"/api/my-activity-report", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activity report status = %d", resp.StatusCode)
	}
	report, _ := payload["report"].(map[string]any)
	if report["user"] == nil {
		t.Fatalf("report missing user: %v", payload)
	}
	logs, _ := report["accessLogs"].([]any)
	if len(logs) == 0 {
		t.Fatalf("expected access log entries in report")
	}
}

func TestDatabaseStatusRequiresAdmin(t *testing.T) {
	ts := newTestServer(t, Config{})
	userToken := registerAndLogin(t, ts.URL, "clin@example.com", "user")
	adminToken := registerAndLogin(t, ts.URL, "admin@example.com", "admin")

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/database-status", userToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin status = %d", resp.StatusCode)
	}
	resp, payload := doJSON(t, http.MethodGet, ts.URL+"/api/database-status", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin status = %d", resp.StatusCode)
	}
	if payload["status"] != "success" {
		t.Fatalf("unexpected health payload: %v", payload)
	}
	stores, _ := payload["stores"].(map[string]any)
	if len(stores) != 6 {
		t.Fatalf("expected six store probes, got %v", payload)
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	ts := newTestServer(t, Config{})
	for _, path := range []string{
		"/api/patients", "/api/dashboard-stats", "/api/my-activity-report",
	} {
		resp, _ := doJSON(t, http.MethodGet, ts.URL+path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s status = %d, want 401", path, resp.StatusCode)
		}
	}
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ts := newTestServer(t, Config{
		Redis:                   client,
		LoginRateLimitPerMinute: 2,
	})

	body := map[string]string{"email": "nobody@example.com", "password": "x"}
	for i := 0; i < 2; i++ {
		resp, _ := doJSON(t, http.MethodPost, ts.URL+"/auth/login", "", body)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want 401", i+1, resp.StatusCode)
		}
	}
	resp, payload := doJSON(t, http.MethodPost, ts.URL+"/auth/login", "", body)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("over-quota status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") != "60" {
		t.Fatalf("missing Retry-After header")
	}
	if success, _ := payload["success"].(bool); success {
		t.Fatalf("expected success=false envelope")
	}
}

func TestIntakeRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ts := newTestServer(t, Config{
		Redis:                    client,
		IntakeRateLimitPerMinute: 3,
	})
	token := registerAndLogin(t, ts.URL, "clin@example.com", "user")

	for i := 0; i < 3; i++ {
		resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/patients", token, patientBody(i+1))
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create %d status = %d", i+1, resp.StatusCode)
		}
	}
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/patients", token, patientBody(4))
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("over-quota status = %d, want 429", resp.StatusCode)
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	ts := newTestServer(t, Config{})
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("missing security headers, got %q", got)
	}
	if got := resp.Header.Get("X-Request-Id"); got == "" {
		t.Fatalf("missing request id header")
	}
}

func TestInvalidPatientPath(t *testing.T) {
	ts := newTestServer(t, Config{})
	token := registerAndLogin(t, ts.URL, "clin@example.com", "user")
	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/patients/not-a-number/full-history", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", resp.StatusCode)
	}
}
