package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var messagesBucket = []byte("messages")

var ErrEmptyMessage = errors.New("message needs text or an image")

// Message is a persisted direct message. Immutable once created; queried
// by (sender, receiver) pair sorted by creation time.
type Message struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Partner is one entry of the chat sidebar: a user the caller has
// exchanged messages with, ordered by most recent interaction.
type Partner struct {
	UserID          string    `json:"_id"`
	LastInteraction time.Time `json:"lastInteraction"`
}

// MessageStore persists direct messages. Keys are
// pair(a,b) / createdAt / id, so one conversation occupies one contiguous,
// time-ordered key range.
type MessageStore struct {
	db *bolt.DB
}

func NewMessageStore(db *bolt.DB) (*MessageStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(messagesBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &MessageStore{db: db}, nil
}

// pairKey is direction-independent: both sides of a conversation share it.
func pairKey(a, b string) []byte {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return compositeKey([]byte(a), []byte(b))
}

// Create persists a new message and returns it with ID and CreatedAt set.
// A message must carry text, an image reference, or both.
func (s *MessageStore) Create(senderID, receiverID, text, image string) (*Message, error) {
	if text == "" && image == "" {
		return nil, ErrEmptyMessage
	}

	msg := &Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      image,
		CreatedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	key := compositeKey(pairKey(senderID, receiverID), timeKey(msg.CreatedAt), []byte(msg.ID))
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(messagesBucket).Put(key, data)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Conversation returns every message between a and b, in both directions,
// ascending by creation time.
func (s *MessageStore) Conversation(a, b string) ([]*Message, error) {
	prefix := append(pairKey(a, b), keySep)

	var msgs []*Message
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(messagesBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return err
			}
			msgs = append(msgs, &msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// Partners lists the distinct users the given user has exchanged messages
// with, most recent interaction first. This backs the chat sidebar.
func (s *MessageStore) Partners(userID string) ([]*Partner, error) {
	latest := make(map[string]time.Time)

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(messagesBucket).ForEach(func(k, v []byte) error {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return err
			}
			var other string
			switch userID {
			case msg.SenderID:
				other = msg.ReceiverID
			case msg.ReceiverID:
				other = msg.SenderID
			default:
				return nil
			}
			if msg.CreatedAt.After(latest[other]) {
				latest[other] = msg.CreatedAt
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	partners := make([]*Partner, 0, len(latest))
	for id, at := range latest {
		partners = append(partners, &Partner{UserID: id, LastInteraction: at})
	}
	sort.Slice(partners, func(i, j int) bool {
		return partners[i].LastInteraction.After(partners[j].LastInteraction)
	})
	return partners, nil
}
