package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"imagine/internal/domain"
	"imagine/internal/generation"
	"imagine/internal/http/handlers"
	"imagine/internal/infra"
	"imagine/internal/providers/midjourney"
)

const (
	ownerA = "6f1c2a8e-1d2b-4c3d-8e9f-0a1b2c3d4e5f"
	ownerB = "0b9a8c7d-6e5f-4a3b-9c2d-1e0f9a8b7c6d"
	admin  = "admin@example.com"
)

type memStore struct {
	mu   sync.Mutex
	rows []domain.StoredGeneration
	next int
}

func (s *memStore) SaveResult(ctx context.Context, gen *domain.StoredGeneration) (*domain.StoredGeneration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	out := *gen
	out.ID = "gen-" + string(rune('0'+s.next))
	out.CreatedAt = time.Now().UTC()
	s.rows = append([]domain.StoredGeneration{out}, s.rows...)
	return &out, nil
}

func (s *memStore) ListResults(ctx context.Context, filter domain.ListFilter) ([]domain.StoredGeneration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []domain.StoredGeneration
	for _, row := range s.rows {
		if filter.IncludeAll || filter.OwnerID == "" || row.OwnerID == filter.OwnerID {
			matched = append(matched, row)
		}
	}
	start := filter.Offset()
	if start >= len(matched) {
		return nil, nil
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (s *memStore) FindResult(ctx context.Context, id string) (*domain.StoredGeneration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.ID == id {
			out := row
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *memStore) DeleteResult(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.rows {
		if row.ID == id {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type testAPI struct {
	handler  http.Handler
	store    *memStore
	sessions *generation.Registry
}

func newTestAPI(t *testing.T, serviceURL string) *testAPI {
	t.Helper()
	cfg := &infra.Config{
		MJAPIURL:          serviceURL,
		AdminEmail:        admin,
		GenerationsTable:  "generations",
		CORSAllowedOrigin: []string{"http://localhost:5173"},
	}
	store := &memStore{}
	client := midjourney.NewClient(midjourney.Options{BaseURL: serviceURL})
	sessions := generation.NewRegistry(func(ownerID string) *generation.Controller {
		return generation.NewController(generation.Options{
			Client:       client,
			Store:        store,
			OwnerID:      ownerID,
			PollInterval: 10 * time.Millisecond,
			PollTimeout:  2 * time.Second,
		})
	}, 0)
	t.Cleanup(sessions.Close)
	app := handlers.NewApp(cfg, nil, store, sessions)
	return &testAPI{handler: NewRouter(app), store: store, sessions: sessions}
}

func (a *testAPI) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	detail, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("missing error object in %s", rec.Body.String())
	}
	code, _ := detail["code"].(string)
	return code
}

func newService(t *testing.T, submit, poll string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Has("prompt") {
			_, _ = w.Write([]byte(submit))
			return
		}
		_, _ = w.Write([]byte(poll))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, "")
	rec := api.do(t, http.MethodGet, "/v1/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Fatalf("status field = %v, want ok", body["status"])
	}
	if body["generation"] != false {
		t.Fatalf("generation = %v, want false", body["generation"])
	}
	if body["persistence"] != "disabled" {
		t.Fatalf("persistence = %v, want disabled", body["persistence"])
	}
}

func TestAspectRatios(t *testing.T) {
	api := newTestAPI(t, "")
	rec := api.do(t, http.MethodGet, "/v1/aspect-ratios", "", nil)
	var body struct {
		Items []struct {
			Name    string `json:"name"`
			Value   string `json:"value"`
			Default bool   `json:"default"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != len(domain.AspectRatioOptions) {
		t.Fatalf("items = %d, want %d", len(body.Items), len(domain.AspectRatioOptions))
	}
	if !body.Items[0].Default || body.Items[0].Value != "--ar 1:1" {
		t.Fatalf("first item = %+v, want default square", body.Items[0])
	}
}

func waitForStatus(t *testing.T, api *testAPI, headers map[string]string, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		rec := api.do(t, http.MethodGet, "/v1/generations/active", "", headers)
		body := decodeBody(t, rec)
		if body["status"] == want {
			return body
		}
		if time.Now().After(deadline) {
			t.Fatalf("status = %v, want %s", body["status"], want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartGenerationCompletesInBackground(t *testing.T) {
	srv := newService(t, `{"id":"ext-1","status":"completed","results":["https://cdn/a.png","https://cdn/a.png","https://cdn/b.png"]}`, "")
	api := newTestAPI(t, srv.URL)
	headers := map[string]string{"X-Session-ID": "s1", "X-User-ID": ownerA}

	rec := api.do(t, http.MethodPost, "/v1/generations", `{"prompt":"a red fox","aspect_ratio":"16:9"}`, headers)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	started := decodeBody(t, rec)
	if started["status"] != "submitting" || started["loading"] != true {
		t.Fatalf("started = %v, want submitting and loading", started)
	}
	if started["aspect_ratio"] != "--ar 16:9" {
		t.Fatalf("aspect_ratio = %v, want --ar 16:9", started["aspect_ratio"])
	}

	done := waitForStatus(t, api, headers, "completed")
	images, _ := done["images"].([]any)
	if len(images) != 2 {
		t.Fatalf("images = %v, want 2 unique urls", done["images"])
	}
	if done["progress"] != float64(100) {
		t.Fatalf("progress = %v, want 100", done["progress"])
	}

	deadline := time.Now().Add(2 * time.Second)
	for api.store.len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("generation was not stored")
		}
		time.Sleep(5 * time.Millisecond)
	}
	list := api.do(t, http.MethodGet, "/v1/generations", "", headers)
	var page struct {
		Items []struct {
			OwnerID string `json:"owner_id"`
			Prompt  string `json:"prompt"`
		} `json:"items"`
		PageSize int `json:"page_size"`
	}
	if err := json.Unmarshal(list.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].OwnerID != ownerA || page.Items[0].Prompt != "a red fox" {
		t.Fatalf("list = %+v, want the stored generation of %s", page.Items, ownerA)
	}
	if page.PageSize != domain.DefaultPageSize {
		t.Fatalf("page_size = %d, want %d", page.PageSize, domain.DefaultPageSize)
	}
}

func TestStartGenerationRejectsBadInput(t *testing.T) {
	srv := newService(t, `{"status":"completed","results":[]}`, "")
	api := newTestAPI(t, srv.URL)

	tests := []struct {
		name    string
		body    string
		headers map[string]string
		status  int
		code    string
	}{
		{"missing prompt", `{}`, nil, http.StatusBadRequest, domain.KindInvalidInput},
		{"blank prompt", `{"prompt":"   "}`, nil, http.StatusBadRequest, domain.KindInvalidInput},
		{"markup", `{"prompt":"<script>alert(1)</script>"}`, nil, http.StatusBadRequest, domain.KindInvalidInput},
		{"unknown ratio", `{"prompt":"ok","aspect_ratio":"5:4"}`, nil, http.StatusBadRequest, domain.KindInvalidInput},
		{"bad user id", `{"prompt":"ok"}`, map[string]string{"X-User-ID": "nope"}, http.StatusBadRequest, domain.KindInvalidInput},
		{"malformed json", `{"prompt":`, nil, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/v1/generations", tt.body, tt.headers)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.code {
				t.Fatalf("code = %q, want %q", code, tt.code)
			}
		})
	}

	active := decodeBody(t, api.do(t, http.MethodGet, "/v1/generations/active", "", nil))
	if active["status"] != "idle" {
		t.Fatalf("active status = %v, want idle", active["status"])
	}
}

func TestStartGenerationWithoutEndpoint(t *testing.T) {
	api := newTestAPI(t, "")
	rec := api.do(t, http.MethodPost, "/v1/generations", `{"prompt":"a lighthouse"}`, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if code := errorCode(t, rec); code != domain.KindMissingConfig {
		t.Fatalf("code = %q, want %q", code, domain.KindMissingConfig)
	}
}

func TestCancelActiveGeneration(t *testing.T) {
	srv := newService(t, `{"id":"ext-9","status":"processing"}`, `{"status":"processing"}`)
	api := newTestAPI(t, srv.URL)
	headers := map[string]string{"X-Session-ID": "s2"}

	rec := api.do(t, http.MethodPost, "/v1/generations/active/cancel", "", headers)
	if body := decodeBody(t, rec); body["cancelled"] != false {
		t.Fatalf("cancelled = %v, want false without a job", body["cancelled"])
	}

	if rec := api.do(t, http.MethodPost, "/v1/generations", `{"prompt":"slow"}`, headers); rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, want 202", rec.Code)
	}
	waitForStatus(t, api, headers, "polling")

	rec = api.do(t, http.MethodPost, "/v1/generations/active/cancel", "", headers)
	body := decodeBody(t, rec)
	if body["cancelled"] != true {
		t.Fatalf("cancelled = %v, want true", body["cancelled"])
	}
	job, _ := body["job"].(map[string]any)
	if job["status"] != "cancelled" || job["loading"] != false {
		t.Fatalf("job = %v, want cancelled and not loading", job)
	}

	rec = api.do(t, http.MethodPost, "/v1/generations/active/reset", "", headers)
	if body := decodeBody(t, rec); body["status"] != "idle" {
		t.Fatalf("status after reset = %v, want idle", body["status"])
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	srv := newService(t, `{"id":"ext-3","status":"processing"}`, `{"status":"processing"}`)
	api := newTestAPI(t, srv.URL)
	one := map[string]string{"X-Session-ID": "one"}
	two := map[string]string{"X-Session-ID": "two"}

	api.do(t, http.MethodPost, "/v1/generations", `{"prompt":"first"}`, one)
	waitForStatus(t, api, one, "polling")

	body := decodeBody(t, api.do(t, http.MethodGet, "/v1/generations/active", "", two))
	if body["status"] != "idle" {
		t.Fatalf("other session status = %v, want idle", body["status"])
	}
	if n := api.sessions.Len(); n != 1 {
		t.Fatalf("sessions = %d, want 1", n)
	}
}

func seed(api *testAPI) {
	api.store.mu.Lock()
	defer api.store.mu.Unlock()
	api.store.rows = []domain.StoredGeneration{
		{ID: "a1", Prompt: "mine", OwnerID: ownerA, AspectRatio: domain.AspectSquare, Images: []string{"https://cdn/1.png"}},
		{ID: "b1", Prompt: "theirs", OwnerID: ownerB, AspectRatio: domain.AspectSquare},
	}
}

func TestListGenerationsScopesToOwner(t *testing.T) {
	api := newTestAPI(t, "")
	seed(api)

	tests := []struct {
		name    string
		query   string
		headers map[string]string
		status  int
		items   int
	}{
		{"owner only", "", map[string]string{"X-User-ID": ownerA}, http.StatusOK, 1},
		{"all denied", "?all=true", map[string]string{"X-User-ID": ownerA}, http.StatusForbidden, 0},
		{"all for admin", "?all=true", map[string]string{"X-User-ID": ownerA, "X-User-Email": admin}, http.StatusOK, 2},
		{"page past end", "?page=3", map[string]string{"X-User-ID": ownerB}, http.StatusOK, 0},
		{"bad page", "?page=x", nil, http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodGet, "/v1/generations"+tt.query, "", tt.headers)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if rec.Code != http.StatusOK {
				return
			}
			var page struct {
				Items   []json.RawMessage `json:"items"`
				HasMore bool              `json:"has_more"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(page.Items) != tt.items {
				t.Fatalf("items = %d, want %d", len(page.Items), tt.items)
			}
			if page.HasMore {
				t.Fatalf("has_more = true, want false")
			}
		})
	}
}

func TestGetAndDeleteGeneration(t *testing.T) {
	api := newTestAPI(t, "")
	seed(api)
	mine := map[string]string{"X-User-ID": ownerA}

	rec := api.do(t, http.MethodGet, "/v1/generations/a1", "", mine)
	if rec.Code != http.StatusOK {
		t.Fatalf("get own status = %d, want 200", rec.Code)
	}
	if body := decodeBody(t, rec); body["prompt"] != "mine" {
		t.Fatalf("prompt = %v, want mine", body["prompt"])
	}

	rec = api.do(t, http.MethodGet, "/v1/generations/b1", "", mine)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get foreign status = %d, want 404", rec.Code)
	}
	rec = api.do(t, http.MethodDelete, "/v1/generations/b1", "", mine)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete foreign status = %d, want 404", rec.Code)
	}

	rec = api.do(t, http.MethodDelete, "/v1/generations/a1", "", mine)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete own status = %d, want 204", rec.Code)
	}
	if n := api.store.len(); n != 1 {
		t.Fatalf("rows = %d, want 1", n)
	}

	adminHeaders := map[string]string{"X-User-Email": admin}
	rec = api.do(t, http.MethodDelete, "/v1/generations/b1", "", adminHeaders)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin delete status = %d, want 204", rec.Code)
	}
	rec = api.do(t, http.MethodGet, "/v1/generations/missing", "", adminHeaders)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d, want 404", rec.Code)
	}
	if code := errorCode(t, rec); code != domain.KindNotFound {
		t.Fatalf("code = %q, want %q", code, domain.KindNotFound)
	}
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t, "")
	req := httptest.NewRequest(http.MethodOptions, "/v1/generations", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestOpenAPIDocument(t *testing.T) {
	api := newTestAPI(t, "")
	rec := api.do(t, http.MethodGet, "/v1/openapi.json", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var doc struct {
		Paths map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, path := range []string{"/v1/generations", "/v1/generations/active/cancel", "/v1/generations/{id}"} {
		if _, ok := doc.Paths[path]; !ok {
			t.Fatalf("document is missing %s", path)
		}
	}
}

func TestListWithoutOwnerIsUnscoped(t *testing.T) {
	api := newTestAPI(t, "")
	seed(api)

	rec := api.do(t, http.MethodGet, "/v1/generations", "", nil)
	var page struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want every owner's rows", len(page.Items))
	}

	var doc struct {
		Paths map[string]map[string]json.RawMessage `json:"paths"`
	}
	raw := api.do(t, http.MethodGet, "/v1/openapi.json", "", nil).Body.Bytes()
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	var list struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(doc.Paths["/v1/generations"]["get"], &list); err != nil {
		t.Fatalf("decode list operation: %v", err)
	}
	if !strings.Contains(list.Description, "not filtered by owner") {
		t.Fatalf("list description = %q, want the unscoped case documented", list.Description)
	}
}
