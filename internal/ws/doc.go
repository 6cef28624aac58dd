// Package ws implements the WebSocket hub for the phenowatch server.
//
// Hub manages a set of connected clients and broadcasts the current report to
// all of them on a configurable interval, and immediately whenever Notify is
// called (the server calls it when the source file changes).
//
// New(build, interval) creates a Hub; build produces the payload.
// Hub.Run(ctx) starts the broadcast loop and blocks until ctx is cancelled,
// then closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// report immediately on connect, then streams updates.
//
// Message format sent to clients:
//
//	{
//	  "event": "report",
//	  "data":  { /* same schema as GET /api/v1/report */ }
//	}
//
// or, when the pipeline fails:
//
//	{ "event": "error", "error": "..." }
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The endpoint is mounted at /ws/stream by the server.
package ws
