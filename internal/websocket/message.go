package websocket

import (
	"encoding/json"
	"time"
)

// Message types broadcast to connected clients.
const (
	MessageTypeRenderComplete  = "render_complete"
	MessageTypeRotationStarted = "rotation_started"
	MessageTypeRotationStopped = "rotation_stopped"
	MessageTypeOverrideShown   = "override_shown"
	MessageTypeSystemStatus    = "system_status"
)

// Message represents a WebSocket message.
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes.
func (m Message) ToJSON() []byte {
	m.Timestamp = time.Now().UTC()
	data, _ := json.Marshal(m)
	return data
}
