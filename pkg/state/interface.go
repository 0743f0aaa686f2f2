package state

import (
	"github.com/google/uuid"
)

type Manager interface {
	// --- Connection Lifecycle ---
	RegisterConnection(t Transport, ipAddr string) (*Connection, error)
	DeregisterConnection(connID uuid.UUID) error
	GetConnection(connID uuid.UUID) (*Connection, bool)
	FindOldestUserConnection(userID string) (*Connection, bool)
	AllConnections() []Transport

	// --- User Management ---
	// links a connection to a user, creating the user if they don't exist.
	AssociateUser(connID uuid.UUID, userID string) (*User, error)
	FindUser(userID string) (*User, bool)
	GetUserConnections(userID string) ([]Transport, error)
	GetUserConnectionCount(userID string) (int, error)

	// OnlineSnapshot returns the current online-set as a wire-shaped
	// mapping of user identity to one representative (newest) connection id.
	OnlineSnapshot() map[string]string

	// --- Room & Membership Management ---
	// adds a connection to a room, creating the room if it doesn't exist.
	Join(connID uuid.UUID, roomID string) error
	Leave(connID uuid.UUID, roomID string) error
	RoomConnections(roomID string) ([]Transport, error)
	FindRoom(roomID string) (*Room, bool)
}
