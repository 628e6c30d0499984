// Package store defines the storage interfaces the HTTP endpoints depend on.
//
// Endpoints only see these interfaces, so handlers can be tested with mocks
// and the GORM implementations in pkg/server/store/gorm stay swappable.
//
//   - SessionStore: conversation history per session_id
//   - HealthStore: database connectivity for /health
package store
