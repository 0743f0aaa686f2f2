package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/harshror77/Chaudhary-Estate/pkg/state"
	"github.com/tidwall/gjson"
)

// Gateway owns the realtime event flow: it registers connections with the
// state manager, broadcasts presence, routes client events into rooms and
// fans deliveries out to member connections.
type Gateway struct {
	logger *slog.Logger
	state  state.Manager
}

func NewGateway(logger *slog.Logger, st state.Manager) *Gateway {
	return &Gateway{
		logger: logger.With(slog.String("component", "realtime_gateway")),
		state:  st,
	}
}

// HandleConnect registers a freshly accepted transport connection. A
// non-empty userID associates the connection with that identity and joins
// it to its own identity room, so direct deliveries reach every one of the
// user's connections. The full online-set is broadcast either way.
func (g *Gateway) HandleConnect(t state.Transport, ipAddr, userID string) (*state.Connection, error) {
	conn, err := g.state.RegisterConnection(t, ipAddr)
	if err != nil {
		return nil, err
	}

	if userID != "" {
		if _, err := g.state.AssociateUser(conn.ID, userID); err != nil {
			return nil, err
		}
		if err := g.state.Join(conn.ID, userID); err != nil {
			return nil, err
		}
		g.logger.Info("User connected", slog.String("userID", userID), slog.String("connID", conn.ID.String()))
	} else {
		g.logger.Info("Anonymous connection", slog.String("connID", conn.ID.String()))
	}

	g.BroadcastPresence()
	return conn, nil
}

// HandleDisconnect removes the connection from the registry and announces
// the updated online-set. Safe to call for already-removed connections.
func (g *Gateway) HandleDisconnect(connID uuid.UUID) {
	if err := g.state.DeregisterConnection(connID); err != nil {
		g.logger.Warn("Failed to deregister connection", slog.String("connID", connID.String()), slog.Any("error", err))
	}
	g.BroadcastPresence()
}

// HandleMessage is the inbound event router. Unknown events and malformed
// payloads are dropped at this boundary; they never reach the room layer.
func (g *Gateway) HandleMessage(ctx context.Context, connID uuid.UUID, raw []byte) {
	event := gjson.GetBytes(raw, "event")
	if !event.Exists() {
		g.logger.Warn("Client message missing event name", slog.String("connID", connID.String()))
		return
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.logger.Warn("Failed to unmarshal client message", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}

	switch event.String() {
	case EventJoinRoom:
		g.handleJoinRoom(connID, env.Payload)
	case EventMessage:
		g.handleRelay(connID, env.Payload)
	default:
		g.logger.Warn("Received unknown event", slog.String("event", event.String()), slog.String("connID", connID.String()))
	}
}

func (g *Gateway) handleJoinRoom(connID uuid.UUID, payload json.RawMessage) {
	var room string
	if err := json.Unmarshal(payload, &room); err != nil || room == "" {
		g.logger.Warn("Invalid join-room payload", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}
	if err := g.state.Join(connID, room); err != nil {
		g.logger.Warn("Failed to join room", slog.String("connID", connID.String()), slog.String("roomID", room), slog.Any("error", err))
		return
	}
	g.logger.Debug("Connection joined room", slog.String("connID", connID.String()), slog.String("roomID", room))
}

// handleRelay re-emits a client-submitted chat event into the target room,
// stamped with the submitting connection's identity. Anonymous submitters
// are dropped: there is no identity to stamp.
func (g *Gateway) handleRelay(connID uuid.UUID, payload json.RawMessage) {
	var msg MessagePayload
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Room == "" {
		g.logger.Warn("Invalid message payload", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}

	conn, ok := g.state.GetConnection(connID)
	if !ok {
		return
	}
	if conn.User == nil {
		g.logger.Debug("Dropping message from anonymous connection", slog.String("connID", connID.String()))
		return
	}

	g.EmitToRoom(msg.Room, EventReceiveMessage, ReceiveMessagePayload{
		Message:  msg.Message,
		SenderID: conn.User.ID,
	})
}

// EmitToRoom delivers payload under event to every connection currently in
// the room. An empty or unknown room is a silent no-op: the recipient may
// simply be offline and will catch up through the persisted fetch path.
func (g *Gateway) EmitToRoom(roomID, event string, payload any) error {
	msg, err := marshalEnvelope(event, payload)
	if err != nil {
		return err
	}

	conns, err := g.state.RoomConnections(roomID)
	if err != nil {
		g.logger.Debug("Could not resolve room to connections", slog.String("roomID", roomID), slog.Any("error", err))
		return nil
	}

	for _, conn := range conns {
		conn.Send(msg)
	}
	g.logger.Debug("Emitted to room", slog.String("roomID", roomID), slog.String("event", event), slog.Int("connection_count", len(conns)))
	return nil
}

// BroadcastPresence pushes the full online-set to every connection,
// anonymous ones included. Full broadcast on every change is O(connections)
// per event; fine at this system's scale.
func (g *Gateway) BroadcastPresence() {
	msg, err := marshalEnvelope(EventOnlineUsers, g.state.OnlineSnapshot())
	if err != nil {
		g.logger.Error("Failed to marshal presence broadcast", slog.Any("error", err))
		return
	}
	for _, conn := range g.state.AllConnections() {
		conn.Send(msg)
	}
}

func marshalEnvelope(event string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	msg, err := json.Marshal(Envelope{Event: event, Payload: body})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", event, err)
	}
	return msg, nil
}
