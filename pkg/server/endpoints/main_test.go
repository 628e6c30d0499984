package endpoints

import (
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/doodlesbykumbi/opsagent/pkg/audit"
	"github.com/doodlesbykumbi/opsagent/pkg/config"
	"github.com/doodlesbykumbi/opsagent/pkg/metrics"
	"github.com/doodlesbykumbi/opsagent/pkg/server"
)

func TestMain(m *testing.M) {
	audit.SetEnabled(false)
	os.Exit(m.Run())
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.DatabaseURL = "postgres://localhost/test"
	cfg.RateLimit = ""
	return cfg
}

type testServer struct {
	*server.Server
	sessions *MockSessionStore
	health   *MockHealthStore
	agent    *MockAgent
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	ts := &testServer{
		sessions: NewMockSessionStore(),
		health:   NewMockHealthStore(),
		agent:    &MockAgent{},
	}
	srv, err := server.NewServer(cfg, ts.agent, ts.sessions, ts.health, metrics.New(), log.New(io.Discard))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	RegisterAll(srv)
	ts.Server = srv
	return ts
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "10.1.2.3:4567"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func jsonHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}
