package state

import (
	"time"

	"github.com/google/uuid"
)

// Transport is the slice of a transport-layer connection the registry and
// delivery paths need. *transport.Connection satisfies it; tests substitute
// in-memory fakes so the registry can be exercised without a live socket.
type Transport interface {
	ID() uuid.UUID
	Send(message []byte)
	Close(err error)
}

// Connection is the registry's representation of a single transport-layer
// connection. A connection may be anonymous: User stays nil until an
// identity is associated.
type Connection struct {
	ID        uuid.UUID
	IPAddress string
	Transport Transport
	User      *User            // owning user, nil until associated
	Rooms     map[string]*Room // rooms this connection has joined, keyed by RoomID
	CreatedAt time.Time
}

// User is the canonical representation of a durable user identity,
// aggregating all of its live connections. A user entry exists iff it has
// at least one live connection.
type User struct {
	ID          string
	Connections map[uuid.UUID]*Connection
}

// Room is a named delivery scope: either a user identity (direct channel)
// or a conversation id. Membership is per-connection and lives only as
// long as the member connections do.
type Room struct {
	ID      string
	Members map[uuid.UUID]*Connection
}
