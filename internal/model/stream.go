package model

// Stream event types (shared by SSE and WebSocket transports)
const (
	StreamEventConnection = "connection"
	StreamEventPing       = "ping"
	StreamEventPong       = "pong"
)

// ConnectionEvent is the handshake emitted when a subscription opens. It is a
// distinct acknowledgment, not a ProgressUpdate.
type ConnectionEvent struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	JobReference string `json:"job_reference"`
}

// WSMessage represents a generic WebSocket control message
type WSMessage struct {
	Type string `json:"type"`
}
