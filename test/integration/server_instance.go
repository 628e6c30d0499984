package integration

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/doodlesbykumbi/opsagent/pkg/agent/agenttest"
	"github.com/doodlesbykumbi/opsagent/pkg/app"
	"github.com/doodlesbykumbi/opsagent/pkg/config"
)

// ServerConfig holds the per-scenario settings of a test opsagent server
type ServerConfig struct {
	JWTSecret string
	ReadOnly  bool
}

// DefaultServerConfig returns the default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{}
}

// ServerInstance is an in-process opsagent server backed by a scripted model
type ServerInstance struct {
	App       *app.App
	Model     *agenttest.Model
	ServerURL string
	Config    ServerConfig
	listener  net.Listener
}

// StartServer wires a new service against the shared database and serves it
// on a free loopback port.
func StartServer(tc *TestContext, cfg ServerConfig) (*ServerInstance, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	appCfg := config.Default()
	appCfg.DatabaseURL = tc.DatabaseURL
	appCfg.BindAddress = "127.0.0.1"
	appCfg.Port = listener.Addr().(*net.TCPAddr).Port
	appCfg.JWTSecret = cfg.JWTSecret
	appCfg.ReadOnly = cfg.ReadOnly
	appCfg.RateLimit = ""
	appCfg.WebSearchEnabled = false
	appCfg.AuditEnabled = true
	appCfg.AuditDatabaseURL = tc.DatabaseURL

	model := agenttest.NewModel()
	a, err := app.New(context.Background(), appCfg, model, log.New(io.Discard))
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	instance := &ServerInstance{
		App:       a,
		Model:     model,
		ServerURL: "http://" + listener.Addr().String(),
		Config:    cfg,
		listener:  listener,
	}

	go func() {
		_ = a.Server.StartWithListener(listener)
	}()

	if err := waitForServer(instance.ServerURL, 10*time.Second); err != nil {
		instance.Stop()
		return nil, fmt.Errorf("server failed to become ready: %w", err)
	}

	return instance, nil
}

// Stop shuts the server down and releases its database handles
func (si *ServerInstance) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = si.App.Server.Shutdown(ctx)
	_ = si.listener.Close()
	si.App.Close()
}

// waitForServer polls the server until it responds or times out
func waitForServer(serverURL string, timeout time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(serverURL + "/")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server did not become ready within %v", timeout)
}
