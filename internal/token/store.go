package token

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned by Load when nothing has been stored yet.
var ErrNoToken = errors.New("token: no stored token")

// Store loads and saves a single OAuth2 token.
type Store interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, tok *oauth2.Token) error
}

// fileToken is the on-disk JSON shape. Besides oauth2's own "expiry" it
// accepts the "expires_at" unix timestamp written by other OAuth tooling.
type fileToken struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero"`
	ExpiresAt    float64   `json:"expires_at,omitempty"`
}

// FileStore keeps the token in a JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store for path. The file is not touched until Load or Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the token file. A missing file yields ErrNoToken.
func (s *FileStore) Load(_ context.Context) (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoToken, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	var ft fileToken
	if err := json.Unmarshal(data, &ft); err != nil {
		return nil, fmt.Errorf("parsing token file %s: %w", s.path, err)
	}
	if ft.AccessToken == "" && ft.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %s holds no credentials", ErrNoToken, s.path)
	}

	tok := &oauth2.Token{
		AccessToken:  ft.AccessToken,
		TokenType:    ft.TokenType,
		RefreshToken: ft.RefreshToken,
		Expiry:       ft.Expiry,
	}
	if tok.Expiry.IsZero() && ft.ExpiresAt > 0 {
		sec, frac := math.Modf(ft.ExpiresAt)
		tok.Expiry = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return tok, nil
}

// Save replaces the token file. The new content is written to a temporary
// file in the same directory and renamed over the old one, so a crash
// never leaves a truncated file behind.
func (s *FileStore) Save(_ context.Context, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(fileToken{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry.UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("setting token file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}

// DefaultTokenName is the row key used by SQLiteStore.
const DefaultTokenName = "upstream"

// SQLiteStore keeps the token in the upstream_tokens table.
type SQLiteStore struct {
	db   *sql.DB
	name string
}

// NewSQLiteStore returns a store for the row called name (DefaultTokenName if empty).
func NewSQLiteStore(db *sql.DB, name string) *SQLiteStore {
	if name == "" {
		name = DefaultTokenName
	}
	return &SQLiteStore{db: db, name: name}
}

// Load reads the token row. A missing row yields ErrNoToken.
func (s *SQLiteStore) Load(ctx context.Context) (*oauth2.Token, error) {
	var tok oauth2.Token
	var expiry sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, token_type, refresh_token, expiry FROM upstream_tokens WHERE name = ?`,
		s.name,
	).Scan(&tok.AccessToken, &tok.TokenType, &tok.RefreshToken, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoToken, s.name)
	}
	if err != nil {
		return nil, fmt.Errorf("loading token %s: %w", s.name, err)
	}

	if expiry.Valid && expiry.String != "" {
		t, err := time.Parse(time.RFC3339Nano, expiry.String)
		if err != nil {
			return nil, fmt.Errorf("parsing token expiry %q: %w", expiry.String, err)
		}
		tok.Expiry = t
	}
	return &tok, nil
}

// Save upserts the token row.
func (s *SQLiteStore) Save(ctx context.Context, tok *oauth2.Token) error {
	var expiry any
	if !tok.Expiry.IsZero() {
		expiry = tok.Expiry.UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO upstream_tokens (name, access_token, token_type, refresh_token, expiry, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   access_token = excluded.access_token,
		   token_type = excluded.token_type,
		   refresh_token = excluded.refresh_token,
		   expiry = excluded.expiry,
		   updated_at = excluded.updated_at`,
		s.name, tok.AccessToken, tok.TokenType, tok.RefreshToken, expiry,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving token %s: %w", s.name, err)
	}
	return nil
}
