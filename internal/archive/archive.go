// Package archive uploads deleted conversations to Supabase storage so they
// can be recovered or audited after removal from the live store.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/supabase-community/supabase-go"

	"github.com/pascalm94/Artips/internal/store"
)

type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Archiver writes conversation snapshots to a storage bucket.
type Archiver struct {
	client *supabase.Client
	bucket string
}

func New(cfg Config) (*Archiver, error) {
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Archiver{client: client, bucket: cfg.Bucket}, nil
}

// Archive uploads the conversation as conversations/<id>.json.
func (a *Archiver) Archive(conv store.Conversation) error {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	key := fmt.Sprintf("conversations/%s.json", conv.ID)
	if _, err := a.client.Storage.UploadFile(a.bucket, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("upload conversation %s: %w", conv.ID, err)
	}
	return nil
}
