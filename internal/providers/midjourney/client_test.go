package midjourney

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/sony/gobreaker"
)

func TestSubmitSendsComposedPrompt(t *testing.T) {
	var gotPrompt, gotPolling string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		gotPrompt = r.URL.Query().Get("prompt")
		gotPolling = r.URL.Query().Get("usePolling")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"job-1","status":"pending","polling_url":"https://poll.example/job-1"}`))
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL + "/"})
	resp, err := client.Submit(context.Background(), "a fox & a hound --ar 16:9")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if gotPrompt != "a fox & a hound --ar 16:9" {
		t.Fatalf("prompt = %q", gotPrompt)
	}
	if gotPolling != "true" {
		t.Fatalf("usePolling = %q, want true", gotPolling)
	}
	if resp.ID != "job-1" || resp.PollingURL != "https://poll.example/job-1" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Completed() || resp.Failed() {
		t.Fatalf("pending response reported terminal: %+v", resp)
	}
}

func TestSubmitWithoutBaseURL(t *testing.T) {
	client := NewClient(Options{})
	if client.HasEndpoint() {
		t.Fatalf("HasEndpoint = true, want false")
	}
	if _, err := client.Submit(context.Background(), "x --ar 1:1"); !errors.Is(err, ErrMissingBaseURL) {
		t.Fatalf("Submit error = %v, want ErrMissingBaseURL", err)
	}
}

func TestSubmitStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	_, err := client.Submit(context.Background(), "x --ar 1:1")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("StatusCode = %d, want %d", statusErr.StatusCode, http.StatusBadGateway)
	}
	if statusErr.Body != "upstream exploded" {
		t.Fatalf("Body = %q", statusErr.Body)
	}
}

func TestSubmitBreakerOpensAfterRepeatedServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	for i := 0; i < 5; i++ {
		if _, err := client.Submit(context.Background(), "x --ar 1:1"); err == nil {
			t.Fatalf("attempt %d succeeded, want error", i)
		}
	}
	_, err := client.Submit(context.Background(), "x --ar 1:1")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("error = %v, want open breaker", err)
	}
	if got := hits.Load(); got != 5 {
		t.Fatalf("server hits = %d, want 5", got)
	}
}

func TestSubmitClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	for i := 0; i < 8; i++ {
		_, err := client.Submit(context.Background(), "x --ar 1:1")
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("attempt %d error = %v, want *StatusError", i, err)
		}
	}
}

func TestPollEndpointFallback(t *testing.T) {
	client := NewClient(Options{BaseURL: "https://mj.example/api/"})
	if got := client.PollEndpoint("abc 1"); got != "https://mj.example/api?id=abc+1" {
		t.Fatalf("PollEndpoint = %q", got)
	}
	if got := client.PollEndpoint(""); got != "" {
		t.Fatalf("PollEndpoint(empty) = %q, want empty", got)
	}
}

func TestPollDecodesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "42" {
			t.Errorf("id = %q, want 42", r.URL.Query().Get("id"))
		}
		_, _ = w.Write([]byte(`{"id":42,"status":"COMPLETED","pollingUrl":"https://next","results":["https://a.png",{"url":"https://b.png"},"https://a.png",null,{"src":"https://c.png"}]}`))
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	resp, err := client.Poll(context.Background(), client.PollEndpoint("42"))
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if resp.ID != "42" {
		t.Fatalf("ID = %q, want 42", resp.ID)
	}
	if !resp.Completed() {
		t.Fatalf("Completed = false for %+v", resp)
	}
	want := []string{"https://a.png", "https://b.png", "https://c.png"}
	if !reflect.DeepEqual(resp.Results, want) {
		t.Fatalf("Results = %v, want %v", resp.Results, want)
	}
	if resp.PollingURL != "https://next" {
		t.Fatalf("PollingURL = %q", resp.PollingURL)
	}
}

func TestPollDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	if _, err := client.Poll(context.Background(), srv.URL); err == nil {
		t.Fatalf("Poll error = nil, want decode error")
	}
}

func TestNormalizeResults(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`"u1"`),
		json.RawMessage(`{"width": 2, "height": 1}`),
		json.RawMessage(`"u1"`),
		json.RawMessage(`""`),
		json.RawMessage(`"u2"`),
		json.RawMessage(`{"height":1,"width":2}`),
	}
	got := NormalizeResults(raw)
	want := []string{"u1", `{"width":2,"height":1}`, "u2", `{"height":1,"width":2}`}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeResults = %v, want %v", got, want)
	}
	if got := NormalizeResults(nil); len(got) != 0 {
		t.Fatalf("NormalizeResults(nil) = %v, want empty", got)
	}
}

func TestResponseFailed(t *testing.T) {
	for _, status := range []string{StatusFailed, StatusErrored} {
		r := &Response{Status: status}
		if !r.Failed() {
			t.Fatalf("Failed() = false for %q", status)
		}
	}
	if (&Response{Status: StatusCompleted}).Completed() {
		t.Fatalf("Completed() = true without results")
	}
}

func TestTruncateKeepsCharactersWhole(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc"},
		{"abécd", 3, "ab"},
		{"日本語", 4, "日"},
		{"日", 1, ""},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("truncate(%q, %d) = %q is not valid UTF-8", tt.in, tt.n, got)
		}
	}
}

func TestStatusErrorBodyIsValidUTF8(t *testing.T) {
	body := strings.Repeat("é", 150)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	_, err := NewClient(Options{BaseURL: srv.URL}).Submit(context.Background(), "x --ar 1:1")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if !utf8.ValidString(statusErr.Body) || len(statusErr.Body) > 200 {
		t.Fatalf("Body = %q (%d bytes), want valid UTF-8 of at most 200 bytes", statusErr.Body, len(statusErr.Body))
	}
}
