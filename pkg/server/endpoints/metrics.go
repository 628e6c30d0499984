package endpoints

import (
	"github.com/doodlesbykumbi/opsagent/pkg/server"
)

// RegisterMetricsEndpoint exposes the Prometheus registry at /metrics
func RegisterMetricsEndpoint(s *server.Server) {
	s.Router.Handle("/metrics", s.Metrics.Handler()).Methods("GET")
}
