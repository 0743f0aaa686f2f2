package realtime

import "encoding/json"

// Wire event names. These are fixed by the frontend's socket client;
// "recieve-message" is spelled exactly as the clients expect it.
const (
	EventOnlineUsers    = "getOnlineUsers"
	EventNotification   = "notification"
	EventReceiveMessage = "recieve-message"
	EventJoinRoom       = "join-room"
	EventMessage        = "message"
)

// Envelope is the framing shared by every event in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// MessagePayload is the client-submitted "message" event: a target room
// and an opaque message body relayed as-is.
type MessagePayload struct {
	Room    string          `json:"room"`
	Message json.RawMessage `json:"message"`
}

// ReceiveMessagePayload is the server-emitted counterpart, stamped with
// the submitting connection's identity.
type ReceiveMessagePayload struct {
	Message  json.RawMessage `json:"message"`
	SenderID string          `json:"senderId"`
}
