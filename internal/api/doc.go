// Package api provides the gateway's admin HTTP API and live event stream.
//
// The API is read-mostly: it exposes gateway status, the device registry,
// the command journal and a WebSocket feed of dispatched commands. Device
// commands themselves only arrive over the authenticated IPC channel.
// Every route except /api/v1/health requires a bearer token issued by
// package auth.
//
//	hub := api.NewHub(cfg.API.WebSocket, logger)
//	server, err := api.New(api.Deps{...Hub: hub})
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
