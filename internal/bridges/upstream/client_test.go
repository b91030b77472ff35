package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/nerrad567/whep-gateway/internal/device"
	"github.com/nerrad567/whep-gateway/internal/token"
)

var frontDoor = device.Descriptor{ID: "front-door", Handle: "cam 101"}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/api/", WithUserAgent("whepgw-test"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "://nope"} {
		if _, err := New(raw); err == nil {
			t.Errorf("New(%q) should fail", raw)
		}
	}
}

func TestListDevices(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/devices" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); ua != "whepgw-test" {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"devices":[
			{"device_id":"front-door","handle":"101","name":"Front Door","kind":"doorbell"},
			{"device_id":"garage","name":"Garage"},
			{"handle":"orphan"}
		]}`)
	}))

	devices, err := c.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	want := []device.Descriptor{
		{ID: "front-door", Handle: "101", Name: "Front Door", Kind: "doorbell"},
		{ID: "garage", Handle: "garage", Name: "Garage"},
	}
	if len(devices) != len(want) {
		t.Fatalf("ListDevices() = %+v, want %+v", devices, want)
	}
	for i := range want {
		if devices[i] != want[i] {
			t.Errorf("devices[%d] = %+v, want %+v", i, devices[i], want[i])
		}
	}
}

func TestListDevices_StatusError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))

	_, err := c.ListDevices(context.Background())
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("ListDevices() error = %v, want ErrUnexpectedStatus", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable || se.Body != "maintenance" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestGenerateStream(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.EscapedPath() != "/api/devices/cam%20101/sessions" {
			t.Errorf("request = %s %s", r.Method, r.URL.EscapedPath())
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/sdp" {
			t.Errorf("Content-Type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
		if string(body) != "offer" {
			t.Errorf("body = %q", body)
		}
		w.Header().Set("Content-Type", "application/sdp")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "answer")
	}))

	answer, err := c.GenerateStream(context.Background(), frontDoor, "offer")
	if err != nil {
		t.Fatalf("GenerateStream() error = %v", err)
	}
	if answer != "answer" {
		t.Errorf("answer = %q", answer)
	}
}

func TestGenerateStream_EmptyAnswer(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	if _, err := c.GenerateStream(context.Background(), frontDoor, "offer"); err == nil {
		t.Error("GenerateStream() should fail on an empty answer")
	}
}

func TestCloseStreamAndSessionExists(t *testing.T) {
	var mu sync.Mutex
	live := map[string]bool{"abc123": true}

	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/devices/{handle}/sessions/{sid}", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.PathValue("handle") != "cam 101" || !live[r.PathValue("sid")] {
			http.NotFound(w, r)
			return
		}
		delete(live, r.PathValue("sid"))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/devices/{handle}/sessions/{sid}", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch sid := r.PathValue("sid"); {
		case sid == "broken":
			http.Error(w, "boom", http.StatusInternalServerError)
		case live[sid]:
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	exists, err := c.SessionExists(ctx, frontDoor, "abc123")
	if err != nil || !exists {
		t.Fatalf("SessionExists() = %v, %v; want true, nil", exists, err)
	}
	if err := c.CloseStream(ctx, frontDoor, "abc123"); err != nil {
		t.Fatalf("CloseStream() error = %v", err)
	}
	exists, err = c.SessionExists(ctx, frontDoor, "abc123")
	if err != nil || exists {
		t.Errorf("SessionExists() after close = %v, %v; want false, nil", exists, err)
	}
	if err := c.CloseStream(ctx, frontDoor, "abc123"); !errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("second CloseStream() error = %v, want ErrUnexpectedStatus", err)
	}
	if _, err := c.SessionExists(ctx, frontDoor, "broken"); !errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("SessionExists(broken) error = %v, want ErrUnexpectedStatus", err)
	}
}

type memoryStore struct {
	mu    sync.Mutex
	saved *oauth2.Token
}

func (m *memoryStore) Load(context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return nil, token.ErrNoToken
	}
	return m.saved, nil
}

func (m *memoryStore) Save(_ context.Context, tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = tok
	return nil
}

func TestNewOAuthHTTPClient_RefreshesAndPersists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "refresh-1" {
			t.Errorf("token request form = %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test server
			"access_token":  "access-2",
			"token_type":    "Bearer",
			"refresh_token": "refresh-2",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("GET /api/devices", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer access-2" {
			t.Errorf("Authorization = %q, want the refreshed token", got)
		}
		_, _ = io.WriteString(w, `{"devices":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	expired := &oauth2.Token{
		AccessToken:  "access-1",
		TokenType:    "Bearer",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Hour),
	}
	store := &memoryStore{}

	hc := NewOAuthHTTPClient(context.Background(), OAuthConfig{
		ClientID: "whepgw",
		TokenURL: srv.URL + "/oauth/token",
	}, expired, store, nil)

	c, err := New(srv.URL+"/api", WithHTTPClient(hc))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := c.ListDevices(context.Background()); err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}

	saved, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("refreshed token not persisted: %v", err)
	}
	if saved.AccessToken != "access-2" || saved.RefreshToken != "refresh-2" {
		t.Errorf("saved token = %+v", saved)
	}
}

func TestTimeout_BoundsListButNotGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(100 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		if r.Method == http.MethodPost {
			_, _ = io.WriteString(w, "v=0\r\n")
			return
		}
		_, _ = io.WriteString(w, `{"devices":[]}`)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, WithTimeout(10*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := c.ListDevices(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ListDevices() error = %v, want deadline exceeded", err)
	}

	answer, err := c.GenerateStream(context.Background(), frontDoor, "v=0\r\n")
	if err != nil {
		t.Fatalf("GenerateStream() error = %v, want a slow answer to succeed", err)
	}
	if answer != "v=0\r\n" {
		t.Errorf("answer = %q", answer)
	}
}
