package store

import (
	"encoding/json"

	bolt "go.etcd.io/bbolt"
)

var (
	usersBucket      = []byte("users")
	propertiesBucket = []byte("properties")
)

// UserSummary is the slice of a user record that notification payloads
// embed: the fields the frontend renders next to a notification.
type UserSummary struct {
	ID       string `json:"_id"`
	FullName string `json:"fullname"`
	Avatar   string `json:"avatar,omitempty"`
}

// PropertySummary is the slice of a property record embedded in
// property-related notifications.
type PropertySummary struct {
	ID    string `json:"_id"`
	Title string `json:"title"`
	Price int64  `json:"price"`
	Image string `json:"image,omitempty"`
	Owner string `json:"owner,omitempty"`
}

// Directory is the read side of the user/property records maintained by
// the CRUD backend. This service only resolves summaries from it; the Put
// methods exist for seeding and tests.
type Directory struct {
	db *bolt.DB
}

func NewDirectory(db *bolt.DB) (*Directory, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(usersBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(propertiesBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Directory{db: db}, nil
}

func (d *Directory) User(id string) (*UserSummary, error) {
	var u UserSummary
	if err := d.get(usersBucket, id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *Directory) Property(id string) (*PropertySummary, error) {
	var p PropertySummary
	if err := d.get(propertiesBucket, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *Directory) PutUser(u *UserSummary) error {
	return d.put(usersBucket, u.ID, u)
}

func (d *Directory) PutProperty(p *PropertySummary) error {
	return d.put(propertiesBucket, p.ID, p)
}

func (d *Directory) get(bucket []byte, id string, out any) error {
	return d.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, out)
	})
}

func (d *Directory) put(bucket []byte, id string, in any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(id), data)
	})
}
