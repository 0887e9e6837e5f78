// Package api provides the HTTP REST API and WebSocket server for
// LabFlow Core.
//
// It exposes run control (start, inspect, interrupt, cancel), the
// premade sequence catalogue, and a real-time status stream to lab
// dashboards and control scripts.
//
// Authentication is JWT bearer token for REST (obtained from
// POST /api/auth/login) and single-use tickets for WebSocket upgrades
// (obtained from POST /api/auth/ws-ticket), because browsers cannot
// attach Authorization headers to WebSocket connections.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
