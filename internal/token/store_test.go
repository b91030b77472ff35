package token

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/nerrad567/whep-gateway/internal/infrastructure/database"
	_ "github.com/nerrad567/whep-gateway/migrations" // registers the schema
)

func testToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "access-1",
		TokenType:    "Bearer",
		RefreshToken: "refresh-1",
		Expiry:       time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC),
	}
}

func assertSameToken(t *testing.T, got, want *oauth2.Token) {
	t.Helper()
	if got.AccessToken != want.AccessToken || got.TokenType != want.TokenType ||
		got.RefreshToken != want.RefreshToken || !got.Expiry.Equal(want.Expiry) {
		t.Errorf("token = %+v, want %+v", got, want)
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "nested", "token.json"))
	ctx := context.Background()

	if err := store.Save(ctx, testToken()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	assertSameToken(t, got, testToken())

	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode = %o, want 600", perm)
	}

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the token file", len(entries))
	}
}

func TestFileStore_Missing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	if _, err := store.Load(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Errorf("Load() error = %v, want ErrNoToken", err)
	}
}

func TestFileStore_LoadFormats(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantExpiry time.Time
		wantErr    error
		wantAnyErr bool
	}{
		{
			name:       "expires_at seconds",
			content:    `{"access_token":"a","refresh_token":"r","token_type":"Bearer","expires_at":1792414800,"scope":["client"]}`,
			wantExpiry: time.Unix(1792414800, 0).UTC(),
		},
		{
			name:       "rfc3339 expiry",
			content:    `{"access_token":"a","expiry":"2026-10-19T13:00:00Z"}`,
			wantExpiry: time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC),
		},
		{name: "no credentials", content: `{"token_type":"Bearer"}`, wantErr: ErrNoToken},
		{name: "not json", content: `access_token=a`, wantAnyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "token.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}

			tok, err := NewFileStore(path).Load(context.Background())
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Load() error = %v, want %v", err, tt.wantErr)
				}
				return
			case tt.wantAnyErr:
				if err == nil {
					t.Fatal("Load() should fail")
				}
				return
			case err != nil:
				t.Fatalf("Load() error = %v", err)
			}

			if !tok.Expiry.Equal(tt.wantExpiry) {
				t.Errorf("Expiry = %v, want %v", tok.Expiry, tt.wantExpiry)
			}
		})
	}
}

func TestSQLiteStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	store := NewSQLiteStore(db.DB, "")

	if _, err := store.Load(ctx); !errors.Is(err, ErrNoToken) {
		t.Fatalf("Load() on empty table error = %v, want ErrNoToken", err)
	}

	if err := store.Save(ctx, testToken()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	updated := testToken()
	updated.AccessToken = "access-2"
	updated.Expiry = time.Time{}
	if err := store.Save(ctx, updated); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	assertSameToken(t, got, updated)
}

type sequenceSource struct {
	mu     sync.Mutex
	tokens []*oauth2.Token
	err    error
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	tok := s.tokens[0]
	if len(s.tokens) > 1 {
		s.tokens = s.tokens[1:]
	}
	return tok, nil
}

type countingStore struct {
	saved []string
	err   error
}

func (c *countingStore) Load(context.Context) (*oauth2.Token, error) { return nil, ErrNoToken }

func (c *countingStore) Save(_ context.Context, tok *oauth2.Token) error {
	if c.err != nil {
		return c.err
	}
	c.saved = append(c.saved, tok.AccessToken)
	return nil
}

func TestPersistingSource_SavesOnlyNewTokens(t *testing.T) {
	initial := testToken()
	refreshed := testToken()
	refreshed.AccessToken = "access-2"

	src := &sequenceSource{tokens: []*oauth2.Token{initial, initial, refreshed, refreshed}}
	store := &countingStore{}
	p := NewPersistingSource(src, store, initial)

	for i := 0; i < 4; i++ {
		if _, err := p.Token(); err != nil {
			t.Fatalf("Token() error = %v", err)
		}
	}

	if len(store.saved) != 1 || store.saved[0] != "access-2" {
		t.Errorf("saved = %v, want [access-2]", store.saved)
	}
}

func TestPersistingSource_SaveFailureStillReturnsToken(t *testing.T) {
	src := &sequenceSource{tokens: []*oauth2.Token{testToken()}}
	p := NewPersistingSource(src, &countingStore{err: errors.New("read-only fs")}, nil)

	tok, err := p.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != "access-1" {
		t.Errorf("AccessToken = %q", tok.AccessToken)
	}
}

func TestPersistingSource_PropagatesSourceError(t *testing.T) {
	boom := errors.New("refresh rejected")
	p := NewPersistingSource(&sequenceSource{err: boom}, &countingStore{}, nil)

	if _, err := p.Token(); !errors.Is(err, boom) {
		t.Errorf("Token() error = %v, want %v", err, boom)
	}
}
