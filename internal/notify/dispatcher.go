// Package notify implements the notification fan-out: persist the record,
// resolve the sender/property summaries the clients render, then push the
// enriched record to the recipient's identity room if they are online.
package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harshror77/Chaudhary-Estate/internal/realtime"
	"github.com/harshror77/Chaudhary-Estate/internal/store"
)

// Emitter is the live-push side of the dispatcher; the realtime gateway
// satisfies it.
type Emitter interface {
	EmitToRoom(roomID, event string, payload any) error
}

type Dispatcher struct {
	logger  *slog.Logger
	store   *store.NotificationStore
	dir     *store.Directory
	emitter Emitter
}

func NewDispatcher(logger *slog.Logger, st *store.NotificationStore, dir *store.Directory, emitter Emitter) *Dispatcher {
	return &Dispatcher{
		logger:  logger.With(slog.String("component", "notification_dispatcher")),
		store:   st,
		dir:     dir,
		emitter: emitter,
	}
}

type CreateInput struct {
	Recipient string
	Sender    string
	Property  string
	Message   string
	Type      store.NotificationType
}

// Enriched is the notification as delivered to clients: the sender and
// property references resolved to the summaries the UI renders. It carries
// the persisted record's ID so clients can de-duplicate the live push
// against the fetch path.
type Enriched struct {
	ID        string                 `json:"_id"`
	Recipient string                 `json:"user"`
	Sender    *store.UserSummary     `json:"sender"`
	Property  *store.PropertySummary `json:"property,omitempty"`
	Type      store.NotificationType `json:"type"`
	Message   string                 `json:"message"`
	IsRead    bool                   `json:"isRead"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Dispatch persists the notification, enriches it, and pushes it to the
// recipient's room. The push happens only after the persist has been
// confirmed; an offline recipient is not an error, the durable record is
// the source of truth and the live push just a latency optimization.
func (d *Dispatcher) Dispatch(in CreateInput) (*Enriched, error) {
	if in.Recipient == "" || in.Message == "" {
		return nil, errors.New("recipient and message are required")
	}

	n, err := d.store.Create(in.Recipient, in.Sender, in.Property, in.Message, in.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	enriched := d.enrich(n)

	if err := d.emitter.EmitToRoom(n.Recipient, realtime.EventNotification, enriched); err != nil {
		// The record is durable; a failed push is recipient latency, not data loss.
		d.logger.Warn("Live push failed", slog.String("notificationID", n.ID), slog.Any("error", err))
	}
	d.logger.Debug("Notification dispatched", slog.String("notificationID", n.ID), slog.String("recipient", n.Recipient))
	return enriched, nil
}

// Enrich resolves the sender and property references of an already
// persisted record; the list endpoint reuses it.
func (d *Dispatcher) Enrich(n *store.Notification) *Enriched {
	return d.enrich(n)
}

func (d *Dispatcher) enrich(n *store.Notification) *Enriched {
	e := &Enriched{
		ID:        n.ID,
		Recipient: n.Recipient,
		Type:      n.Type,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}

	sender, err := d.dir.User(n.Sender)
	if err != nil {
		// Directory gaps degrade to a bare reference.
		d.logger.Debug("Sender summary unavailable", slog.String("senderID", n.Sender), slog.Any("error", err))
		sender = &store.UserSummary{ID: n.Sender}
	}
	e.Sender = sender

	if n.Property != "" {
		property, err := d.dir.Property(n.Property)
		if err != nil {
			d.logger.Debug("Property summary unavailable", slog.String("propertyID", n.Property), slog.Any("error", err))
			property = &store.PropertySummary{ID: n.Property}
		}
		e.Property = property
	}
	return e
}
