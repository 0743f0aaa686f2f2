package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	notificationsBucket  = []byte("notifications")
	notificationIDBucket = []byte("notifications_by_id")
)

// NotificationType enumerates the events the marketplace notifies about.
type NotificationType string

const (
	NotificationTransaction NotificationType = "transaction"
	NotificationChat        NotificationType = "chat"
	NotificationFavorite    NotificationType = "favorite"
	NotificationSystem      NotificationType = "system"
	NotificationBuyOffer    NotificationType = "BUY_OFFER"
	NotificationRejectOffer NotificationType = "REJECT_OFFER"
	NotificationAcceptOffer NotificationType = "ACCEPT_OFFER"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTransaction, NotificationChat, NotificationFavorite,
		NotificationSystem, NotificationBuyOffer, NotificationRejectOffer,
		NotificationAcceptOffer:
		return true
	}
	return false
}

// Notification is the durable notification record. Only IsRead is ever
// mutated after creation; deletion is explicit by the recipient.
type Notification struct {
	ID        string           `json:"_id"`
	Recipient string           `json:"user"`
	Sender    string           `json:"sender"`
	Property  string           `json:"property,omitempty"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

// NotificationStore persists notifications per recipient. The primary
// bucket keys records recipient / createdAt / id; a second bucket maps the
// bare id back to the primary key so read-flag updates and deletes can
// address a record directly.
type NotificationStore struct {
	db *bolt.DB
}

func NewNotificationStore(db *bolt.DB) (*NotificationStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(notificationsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(notificationIDBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &NotificationStore{db: db}, nil
}

// Create persists a notification with a fresh ID, unread, stamped now.
func (s *NotificationStore) Create(recipient, sender, property, message string, typ NotificationType) (*Notification, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown notification type %q", typ)
	}

	n := &Notification{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Sender:    sender,
		Property:  property,
		Type:      typ,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}

	key := compositeKey([]byte(recipient), timeKey(n.CreatedAt), []byte(n.ID))
	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(notificationsBucket).Put(key, data); err != nil {
			return err
		}
		return tx.Bucket(notificationIDBucket).Put([]byte(n.ID), key)
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// ListByRecipient returns a page of the recipient's notifications, newest
// first. Page numbering starts at 1.
func (s *NotificationStore) ListByRecipient(recipient string, page, limit int) ([]*Notification, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	prefix := append([]byte(recipient), keySep)

	var all []*Notification
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(notificationsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var n Notification
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			all = append(all, &n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// cursor order is oldest-first; flip it
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}

	start := (page - 1) * limit
	if start >= len(all) {
		return []*Notification{}, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

// Get returns the notification with the given id.
func (s *NotificationStore) Get(id string) (*Notification, error) {
	var n Notification
	err := s.db.View(func(tx *bolt.Tx) error {
		data, err := s.lookup(tx, id)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &n)
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkRead flips the read flag and returns the updated record.
func (s *NotificationStore) MarkRead(id string) (*Notification, error) {
	var n Notification
	err := s.db.Update(func(tx *bolt.Tx) error {
		data, err := s.lookup(tx, id)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		n.IsRead = true
		updated, err := json.Marshal(&n)
		if err != nil {
			return err
		}
		key := tx.Bucket(notificationIDBucket).Get([]byte(id))
		return tx.Bucket(notificationsBucket).Put(key, updated)
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Delete removes the notification with the given id.
func (s *NotificationStore) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(notificationIDBucket)
		key := idx.Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		if err := tx.Bucket(notificationsBucket).Delete(key); err != nil {
			return err
		}
		return idx.Delete([]byte(id))
	})
}

func (s *NotificationStore) lookup(tx *bolt.Tx, id string) ([]byte, error) {
	key := tx.Bucket(notificationIDBucket).Get([]byte(id))
	if key == nil {
		return nil, ErrNotFound
	}
	data := tx.Bucket(notificationsBucket).Get(key)
	if data == nil {
		return nil, ErrNotFound
	}
	return data, nil
}
