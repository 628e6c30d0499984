// Package server provides the HTTP server for the opsagent API.
//
// It uses gorilla/mux for routing. Every request passes through the
// gorilla/handlers access log and panic recovery; routes that reach the
// agent are additionally wrapped by Protect, which applies the rate limiter
// and JWT bearer authentication when they are configured.
//
// # Server Setup
//
//	srv, err := server.NewServer(cfg, runner, sessions, health, metrics.New(), logger)
//	if err != nil {
//	    return err
//	}
//	endpoints.RegisterAll(srv)
//	go srv.Start()
//
// # Endpoints
//
//   - POST /agent - Ask the agent a question
//   - GET /sessions/{id}, DELETE /sessions/{id} - Session transcripts
//   - GET / and GET /health - Status and database health
//   - GET /metrics - Prometheus metrics
package server
