package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketState      = []byte("conversation_state")
	keyConversations = []byte("conversations")
	keyCurrent       = []byte("current")
)

// BoltPersister stores the conversation snapshot in a bbolt database:
// one bucket, one JSON blob for the conversation list, one key for the
// current selection.
type BoltPersister struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database file at path.
func OpenBolt(path string) (*BoltPersister, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketState)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init state bucket: %w", err)
	}
	return &BoltPersister{db: db}, nil
}

func (p *BoltPersister) Close() error { return p.db.Close() }

func (p *BoltPersister) Load() ([]Conversation, string, error) {
	var (
		convs     []Conversation
		currentID string
	)
	err := p.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketState)
		if b == nil {
			return nil
		}
		if raw := b.Get(keyConversations); raw != nil {
			if err := json.Unmarshal(raw, &convs); err != nil {
				return &ParseError{Err: err}
			}
		}
		if raw := b.Get(keyCurrent); raw != nil {
			currentID = string(raw)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return convs, currentID, nil
}

func (p *BoltPersister) Save(convs []Conversation, currentID string) error {
	raw, err := json.Marshal(convs)
	if err != nil {
		return fmt.Errorf("encode conversations: %w", err)
	}
	return p.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketState)
		if err := b.Put(keyConversations, raw); err != nil {
			return err
		}
		return b.Put(keyCurrent, []byte(currentID))
	})
}
