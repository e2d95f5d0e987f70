// Package server exposes the chat service over HTTP and WebSocket.
//
// The JSON API under /api is routed with echo; every response uses the
// {"success", "message", "data"} envelope. Signed-in users hold one
// WebSocket connection each, managed by the Hub, which implements
// chat.Broadcaster and pushes {"event", "data"} frames without ever blocking
// the publisher on a client's network write.
package server
