package endpoints

import (
	"github.com/doodlesbykumbi/opsagent/pkg/server"
)

// RegisterAll registers all API endpoints on the server
func RegisterAll(srv *server.Server) {
	RegisterAgentEndpoint(srv)
	RegisterSessionsEndpoints(srv)
	RegisterStatusEndpoints(srv)
	RegisterMetricsEndpoint(srv)
}
