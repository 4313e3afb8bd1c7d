// Package ws streams package manager broadcasts over WebSocket.
//
// Clients pick broadcasts with query parameters on connect:
//
//	/stream?action=android.intent.action.PACKAGE_ADDED&package=com.example.app
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//   - subscribe: Replace the filter ({"actions": [...], "package": ..., "target": ...})
//
// Message Types (Server → Client):
//   - system: Connected
//   - subscribed: Filter replaced
//   - broadcast: One broadcast in the "broadcast" field
//   - pong: Ping reply
//   - error: Bad client message
package ws
