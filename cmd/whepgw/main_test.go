package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/whep-gateway/internal/api"
	"github.com/nerrad567/whep-gateway/internal/auth"
	"github.com/nerrad567/whep-gateway/internal/infrastructure/config"
	"github.com/nerrad567/whep-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/whep-gateway/internal/taskgroup"
	"github.com/nerrad567/whep-gateway/internal/token"
)

const testSecret = "test-secret-for-development-only-0123456789"

// writeConfig writes a minimal config into a temp dir and returns its path.
// extra is appended verbatim and may add further top-level sections.
func writeConfig(t *testing.T, upstreamURL, tokenFile, extra string) string {
	t.Helper()

	dir := t.TempDir()
	content := fmt.Sprintf(`
gateway:
  update_interval: 3600
  backoff_interval: 1
  shutdown_grace: 5

api:
  host: "127.0.0.1"
  port: 9000

upstream:
  base_url: %q
  token_url: %q
  client_id: "whepgw-test"
  token_store: file
  token_file: %q

database:
  path: %q

logging:
  level: error
  format: text
  output: stderr
%s`, upstreamURL, upstreamURL+"/oauth/token", tokenFile, filepath.Join(dir, "whepgw.db"), extra)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// writeToken stores a long-lived upstream token and returns the file path.
func writeToken(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "token.json")
	content := fmt.Sprintf(`{"access_token":"access-1","token_type":"Bearer","refresh_token":"refresh-1","expiry":%q}`,
		time.Now().Add(time.Hour).UTC().Format(time.RFC3339))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write token: %v", err)
	}
	return path
}

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// TestRootCommand_InvalidConfig verifies the command fails with an invalid config path.
func TestRootCommand_InvalidConfig(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--config", "/nonexistent/path/config.yaml"})

	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		t.Fatal("Execute() should fail with invalid config path")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Execute() error = %v, want a not-exist error", err)
	}
}

// TestRun_MissingTokenFile verifies run refuses to start without credentials.
func TestRun_MissingTokenFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.json")
	cfg, err := config.Load(writeConfig(t, "http://127.0.0.1:1/api", missing, ""))
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = run(ctx, cfg)
	if !errors.Is(err, token.ErrNoToken) {
		t.Errorf("run() error = %v, want ErrNoToken", err)
	}
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	path := writeConfig(t, "http://127.0.0.1:1/api", "/var/lib/whepgw/token.json", "")

	tests := []struct {
		name          string
		args          []string
		wantHost      string
		wantPort      int
		wantTokenFile string
		wantLevel     string
	}{
		{
			name:          "file values kept without flags",
			args:          nil,
			wantHost:      "127.0.0.1",
			wantPort:      9000,
			wantTokenFile: "/var/lib/whepgw/token.json",
			wantLevel:     "error",
		},
		{
			name:          "flags win",
			args:          []string{"-a", "::1", "-p", "8443", "-f", "/tmp/tok.json", "-vv"},
			wantHost:      "::1",
			wantPort:      8443,
			wantTokenFile: "/tmp/tok.json",
			wantLevel:     "debug",
		},
		{
			name:          "single verbose flag",
			args:          []string{"-v"},
			wantHost:      "127.0.0.1",
			wantPort:      9000,
			wantTokenFile: "/var/lib/whepgw/token.json",
			wantLevel:     "info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &options{configPath: path}
			cmd := &cobra.Command{Use: "whepgw"}
			cmd.Flags().CountVarP(&opts.verbose, "verbose", "v", "")
			bindServeFlags(cmd, opts)

			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("ParseFlags() error = %v", err)
			}

			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				t.Fatalf("loadConfig() error = %v", err)
			}
			if cfg.API.Host != tt.wantHost || cfg.API.Port != tt.wantPort {
				t.Errorf("listen = %s:%d, want %s:%d", cfg.API.Host, cfg.API.Port, tt.wantHost, tt.wantPort)
			}
			if cfg.Upstream.TokenFile != tt.wantTokenFile || cfg.Upstream.TokenStore != "file" {
				t.Errorf("token = %s %q, want file %q", cfg.Upstream.TokenStore, cfg.Upstream.TokenFile, tt.wantTokenFile)
			}
			if cfg.Logging.Level != tt.wantLevel {
				t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, tt.wantLevel)
			}
		})
	}
}

func TestLoadConfig_RejectsBadPort(t *testing.T) {
	path := writeConfig(t, "http://127.0.0.1:1/api", "/tmp/token.json", "")

	opts := &options{configPath: path}
	cmd := &cobra.Command{Use: "whepgw"}
	bindServeFlags(cmd, opts)
	if err := cmd.ParseFlags([]string{"--port", "70000"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	if _, err := loadConfig(cmd, opts); err == nil {
		t.Error("loadConfig() should reject port 70000")
	}
}

func TestTokenCommand(t *testing.T) {
	t.Run("issues a verifiable token", func(t *testing.T) {
		path := writeConfig(t, "http://127.0.0.1:1/api", "/tmp/token.json",
			"\nsecurity:\n  jwt:\n    secret: \""+testSecret+"\"\n")

		var out bytes.Buffer
		cmd := newRootCommand()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"token", "--config", path, "--role", "viewer", "--subject", "alice", "--ttl", "5m"})

		if err := cmd.ExecuteContext(context.Background()); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}

		claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testSecret)
		if err != nil {
			t.Fatalf("ParseToken() error = %v", err)
		}
		if claims.Subject != "alice" || claims.Role != auth.RoleViewer {
			t.Errorf("claims = %s/%s, want alice/viewer", claims.Subject, claims.Role)
		}
		if ttl := time.Until(claims.ExpiresAt.Time); ttl > 5*time.Minute || ttl < 4*time.Minute {
			t.Errorf("token expires in %v, want about 5m", ttl)
		}
	})

	t.Run("no secret", func(t *testing.T) {
		path := writeConfig(t, "http://127.0.0.1:1/api", "/tmp/token.json", "")

		cmd := newRootCommand()
		cmd.SetOut(io.Discard)
		cmd.SetArgs([]string{"token", "--config", path})

		if err := cmd.ExecuteContext(context.Background()); !errors.Is(err, errNoJWTSecret) {
			t.Errorf("Execute() error = %v, want errNoJWTSecret", err)
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		path := writeConfig(t, "http://127.0.0.1:1/api", "/tmp/token.json",
			"\nsecurity:\n  jwt:\n    secret: \""+testSecret+"\"\n")

		cmd := newRootCommand()
		cmd.SetOut(io.Discard)
		cmd.SetArgs([]string{"token", "--config", path, "--role", "root"})

		if err := cmd.ExecuteContext(context.Background()); !errors.Is(err, auth.ErrUnknownRole) {
			t.Errorf("Execute() error = %v, want ErrUnknownRole", err)
		}
	})
}

// TestRun_ServesUntilCancelled starts the whole gateway against a fake
// device service and stops it through context cancellation.
func TestRun_ServesUntilCancelled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/devices", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer access-1" {
			t.Errorf("Authorization = %q, want stored token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"devices":[{"device_id":"front-door","handle":"101","name":"Front Door"}]}`)
	})
	upstreamSrv := httptest.NewServer(mux)
	defer upstreamSrv.Close()

	cfg, err := config.Load(writeConfig(t, upstreamSrv.URL+"/api", writeToken(t), ""))
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.API.Port = freePort(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", cfg.API.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, cfg) }()

	var list api.DeviceList
	deadline := time.Now().Add(10 * time.Second)
	for {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("device list never populated, last = %+v", list)
		}
		if fetchJSON(base+"/api/v1/devices", &list) == nil && list.Count == 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if list.Devices[0].ID != "front-door" {
		t.Errorf("devices = %+v, want front-door", list.Devices)
	}

	resp, err := http.Get(base + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() error = %v, want nil after cancellation", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}
}

func fetchJSON(url string, dst any) error {
	resp, err := http.Get(url) //nolint:gosec,noctx // test helper against a local server
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func TestReportDrained(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWriter(&buf, config.LoggingConfig{Level: "info"}, "test")

	g := taskgroup.New("session-monitors")
	g.OnDone(reportDrained(log))

	release := make(chan struct{})
	for _, name := range []string{"front-door", "garage"} {
		if err := g.Add(name, func(context.Context) error {
			<-release
			return nil
		}); err != nil {
			t.Fatalf("Add(%s) error = %v", name, err)
		}
	}

	done := g.Run()
	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session monitors did not drain")
	}

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("log output %q is not one JSON record: %v", buf.String(), err)
	}
	if rec["msg"] != "session monitors drained" || rec["tasks"] != float64(2) {
		t.Errorf("record = %v, want drained message with tasks=2", rec)
	}
}
