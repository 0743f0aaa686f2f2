package statemanager

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harshror77/Chaudhary-Estate/pkg/state"
)

type InMemoryManager struct {
	conns map[uuid.UUID]*state.Connection
	users map[string]*state.User
	rooms map[string]*state.Room

	// Lock order: connMu before userMu before roomMu.
	connMu sync.RWMutex
	userMu sync.RWMutex
	roomMu sync.RWMutex

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:  make(map[uuid.UUID]*state.Connection),
		users:  make(map[string]*state.User),
		rooms:  make(map[string]*state.Room),
		logger: logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) RegisterConnection(t state.Transport, ipAddr string) (*state.Connection, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	connID := t.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, errors.New("connection is already registered")
	}
	newConn := &state.Connection{
		ID:        connID,
		IPAddress: ipAddr,
		Transport: t,
		Rooms:     make(map[string]*state.Room),
		CreatedAt: time.Now(),
	}
	m.conns[connID] = newConn
	m.logger.Debug("Connection registered", slog.String("connID", connID.String()))
	return newConn, nil
}

func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		// connection is already deregistered
		return nil
	}
	delete(m.conns, connID)

	// detach conn from user; drop the user entry when its last connection goes
	if conn.User != nil {
		m.userMu.Lock()
		user := conn.User
		delete(user.Connections, connID)
		if len(user.Connections) == 0 {
			delete(m.users, user.ID)
			m.logger.Debug("User went offline", slog.String("userID", user.ID))
		}
		m.userMu.Unlock()
	}

	// remove the connection from every room it joined
	m.roomMu.Lock()
	for _, room := range conn.Rooms {
		delete(room.Members, connID)
		if len(room.Members) == 0 {
			delete(m.rooms, room.ID)
			m.logger.Debug("Removed empty room", slog.String("roomID", room.ID))
		}
	}
	m.roomMu.Unlock()

	m.logger.Debug("Connection deregistered", slog.String("connID", connID.String()))
	return nil
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

func (m *InMemoryManager) AllConnections() []state.Transport {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	conns := make([]state.Transport, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c.Transport)
	}
	return conns
}

func (m *InMemoryManager) FindOldestUserConnection(userID string) (*state.Connection, bool) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, false
	}

	var oldestConn *state.Connection
	var oldestTime time.Time

	for _, conn := range user.Connections {
		if oldestConn == nil || conn.CreatedAt.Before(oldestTime) {
			oldestConn = conn
			oldestTime = conn.CreatedAt
		}
	}

	if oldestConn == nil {
		return nil, false
	}

	return oldestConn, true
}

// --- User Management ---

func (m *InMemoryManager) AssociateUser(connID uuid.UUID, userID string) (*state.User, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.userMu.Lock()
	defer m.userMu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return nil, errors.New("cannot associate user with unknown connection")
	}

	// Find or create the user session.
	user, exists := m.users[userID]
	if !exists {
		user = &state.User{
			ID:          userID,
			Connections: make(map[uuid.UUID]*state.Connection),
		}
		m.users[userID] = user
		m.logger.Debug("Created new user session", slog.String("userID", userID))
	}

	conn.User = user
	user.Connections[connID] = conn

	m.logger.Debug("Associated connection with user", slog.String("connID", connID.String()), slog.String("userID", userID))
	return user, nil
}

func (m *InMemoryManager) FindUser(userID string) (*state.User, bool) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()
	user, ok := m.users[userID]
	return user, ok
}

func (m *InMemoryManager) GetUserConnections(userID string) ([]state.Transport, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, errors.New("user not found")
	}

	conns := make([]state.Transport, 0, len(user.Connections))
	for _, c := range user.Connections {
		conns = append(conns, c.Transport)
	}
	return conns, nil
}

func (m *InMemoryManager) GetUserConnectionCount(userID string) (int, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return 0, nil // User doesn't exist yet, so they have 0 connections.
	}
	return len(user.Connections), nil
}

func (m *InMemoryManager) OnlineSnapshot() map[string]string {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	snapshot := make(map[string]string, len(m.users))
	for id, user := range m.users {
		var newest *state.Connection
		for _, conn := range user.Connections {
			if newest == nil || conn.CreatedAt.After(newest.CreatedAt) {
				newest = conn
			}
		}
		if newest != nil {
			snapshot[id] = newest.ID.String()
		}
	}
	return snapshot
}

// --- Room & Membership Management ---

func (m *InMemoryManager) Join(connID uuid.UUID, roomID string) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return errors.New("cannot join room: connection not found")
	}

	// Already a member: nothing to do.
	if _, exists := conn.Rooms[roomID]; exists {
		return nil
	}

	// Find or create the room.
	room, exists := m.rooms[roomID]
	if !exists {
		room = &state.Room{
			ID:      roomID,
			Members: make(map[uuid.UUID]*state.Connection),
		}
		m.rooms[roomID] = room
	}

	conn.Rooms[roomID] = room
	room.Members[connID] = conn

	m.logger.Debug("Connection joined room", slog.String("connID", connID.String()), slog.String("roomID", roomID))
	return nil
}

func (m *InMemoryManager) Leave(connID uuid.UUID, roomID string) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		m.logger.Warn("failed to leave room: connection doesn't exist",
			slog.String("connID", connID.String()),
			slog.String("roomID", roomID),
		)
		return nil
	}

	room, ok := m.rooms[roomID]
	if !ok {
		m.logger.Warn("failed to leave room: room doesn't exist",
			slog.String("connID", connID.String()),
			slog.String("roomID", roomID),
		)
		return nil
	}

	delete(conn.Rooms, roomID)
	delete(room.Members, connID)

	// For memory hygiene, remove the room if it's now empty.
	if len(room.Members) == 0 {
		delete(m.rooms, roomID)
		m.logger.Debug("Removed empty room", slog.String("roomID", roomID))
	}

	m.logger.Debug("Connection left room", slog.String("connID", connID.String()), slog.String("roomID", roomID))
	return nil
}

func (m *InMemoryManager) RoomConnections(roomID string) ([]state.Transport, error) {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, errors.New("room not found")
	}

	conns := make([]state.Transport, 0, len(room.Members))
	for _, c := range room.Members {
		conns = append(conns, c.Transport)
	}
	return conns, nil
}

func (m *InMemoryManager) FindRoom(roomID string) (*state.Room, bool) {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	room, ok := m.rooms[roomID]
	return room, ok
}
