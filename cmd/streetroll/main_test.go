package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, token, geocoderURL string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`
server:
    address: localhost:0  # 0 lets OS choose free port
    max_connections: 8
log:
    server:
        path: %q
        level: "debug"
    requests:
        path: %q
        level: "info"
db:
    path: %q
imagery:
    access_token: %q
geocoding:
    base_url: %q
tracing:
    enabled: false
    exporter: stdout
`,
		filepath.Join(dir, "logs", "server.log"),
		filepath.Join(dir, "logs", "requests.log"),
		filepath.Join(dir, "data", "test.db"),
		token,
		geocoderURL,
	)
	path := filepath.Join(dir, "streetroll.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return path
}

func geocoderStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status" {
			_, _ = w.Write([]byte("OK"))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun(t *testing.T) {
	t.Setenv("MAPILLARY_ACCESS_TOKEN", "")
	path := writeTestConfig(t, "test-token", geocoderStub(t).URL)

	// Cancel quickly to verify the startup sequence
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := run(ctx, path); err != nil {
		t.Fatalf("run() failed: %v", err)
	}
}

func TestRun_MissingTokenFailsStartup(t *testing.T) {
	t.Setenv("MAPILLARY_ACCESS_TOKEN", "")
	path := writeTestConfig(t, "", geocoderStub(t).URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, path)
	if err == nil {
		t.Fatal("run() succeeded without an imagery token")
	}
	if !strings.Contains(err.Error(), "startup checks failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("pipeline:\n    batch_size: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := run(context.Background(), path); err == nil {
		t.Fatal("run() accepted a zero batch size")
	}
}
