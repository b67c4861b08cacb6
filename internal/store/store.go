package store

import (
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTitle is the placeholder title of a conversation that has not been
// named yet, either by the user or from its first message.
const DefaultTitle = "New Conversation"

const titleRuneLimit = 30

// Message is one chat turn, user or agent.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is an ordered message history with identity and timestamps.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Conversation) clone() Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// ErrNotFound is returned for operations addressing an unknown conversation.
var ErrNotFound = errors.New("conversation not found")

// Persister saves and restores the full conversation snapshot.
type Persister interface {
	Load() ([]Conversation, string, error)
	Save(convs []Conversation, currentID string) error
}

// A ParseError from Load means the stored snapshot is unreadable; the store
// recovers by reseeding instead of failing startup.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse stored conversations: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// Store holds every conversation plus the current selection, persisting a
// full snapshot after each mutation. Persistence failures are logged, never
// surfaced: the in-memory state stays authoritative.
type Store struct {
	mu        sync.Mutex
	persister Persister
	convs     []Conversation
	currentID string
	now       func() time.Time
}

// NewStore restores state from the persister. A missing, empty, or corrupt
// snapshot reseeds a single fresh conversation.
func NewStore(p Persister) *Store {
	s := &Store{persister: p, now: time.Now}
	convs, currentID, err := p.Load()
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			log.Printf("store: discarding unreadable snapshot: %v", err)
		} else {
			log.Printf("store: load failed, starting fresh: %v", err)
		}
		convs, currentID = nil, ""
	}
	s.convs = convs
	s.sortLocked()
	if len(s.convs) == 0 {
		s.seedLocked()
	}
	s.currentID = currentID
	if s.findLocked(s.currentID) == nil {
		s.currentID = s.convs[0].ID
	}
	s.persistLocked()
	return s
}

func (s *Store) seedLocked() {
	now := s.now()
	s.convs = []Conversation{{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}}
	s.currentID = s.convs[0].ID
}

func (s *Store) sortLocked() {
	sort.SliceStable(s.convs, func(i, j int) bool {
		return s.convs[i].UpdatedAt.After(s.convs[j].UpdatedAt)
	})
}

func (s *Store) findLocked(id string) *Conversation {
	for i := range s.convs {
		if s.convs[i].ID == id {
			return &s.convs[i]
		}
	}
	return nil
}

func (s *Store) persistLocked() {
	snapshot := make([]Conversation, len(s.convs))
	for i := range s.convs {
		snapshot[i] = s.convs[i].clone()
	}
	if err := s.persister.Save(snapshot, s.currentID); err != nil {
		log.Printf("store: persist failed: %v", err)
	}
}

// List returns all conversations, most recently updated first.
func (s *Store) List() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conversation, len(s.convs))
	for i := range s.convs {
		out[i] = s.convs[i].clone()
	}
	return out
}

// Current returns the selected conversation.
func (s *Store) Current() Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(s.currentID).clone()
}

// Get returns the conversation with the given id.
func (s *Store) Get(id string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findLocked(id)
	if c == nil {
		return Conversation{}, ErrNotFound
	}
	return c.clone(), nil
}

// CreateNew starts a fresh conversation and selects it.
func (s *Store) CreateNew() Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	c := Conversation{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.convs = append(s.convs, c)
	s.sortLocked()
	s.currentID = c.ID
	s.persistLocked()
	return c.clone()
}

// Select makes the given conversation current.
func (s *Store) Select(id string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findLocked(id)
	if c == nil {
		return Conversation{}, ErrNotFound
	}
	s.currentID = id
	s.persistLocked()
	return c.clone(), nil
}

// AppendMessage adds a message to the conversation and bumps its recency.
// The first user message of an untitled conversation becomes its title.
func (s *Store) AppendMessage(convID, text string, isUser bool) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findLocked(convID)
	if c == nil {
		return Message{}, ErrNotFound
	}
	now := s.now()
	m := Message{
		ID:        uuid.NewString(),
		Text:      text,
		IsUser:    isUser,
		Timestamp: now,
	}
	c.Messages = append(c.Messages, m)
	if isUser && c.Title == DefaultTitle {
		c.Title = titleFrom(text)
	}
	// Recency never moves backwards, even with a skewed clock.
	if now.After(c.UpdatedAt) {
		c.UpdatedAt = now
	}
	s.sortLocked()
	s.persistLocked()
	return m, nil
}

// Rename sets a conversation title without touching its recency.
func (s *Store) Rename(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findLocked(id)
	if c == nil {
		return ErrNotFound
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	c.Title = title
	s.persistLocked()
	return nil
}

// Delete removes a conversation and returns its final state. Deleting the
// current conversation selects the most recently updated survivor; deleting
// the last one seeds a fresh conversation.
func (s *Store) Delete(id string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i := range s.convs {
		if s.convs[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return Conversation{}, ErrNotFound
	}
	removed := s.convs[idx].clone()
	s.convs = append(s.convs[:idx], s.convs[idx+1:]...)
	if len(s.convs) == 0 {
		s.seedLocked()
	} else if s.currentID == id {
		s.currentID = s.convs[0].ID
	}
	s.persistLocked()
	return removed, nil
}

// Upsert inserts or replaces a conversation wholesale and selects it.
func (s *Store) Upsert(c Conversation) Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	if existing := s.findLocked(c.ID); existing != nil {
		*existing = c.clone()
	} else {
		s.convs = append(s.convs, c.clone())
	}
	s.sortLocked()
	s.currentID = c.ID
	s.persistLocked()
	return c
}

func titleFrom(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return DefaultTitle
	}
	runes := []rune(text)
	if len(runes) <= titleRuneLimit {
		return text
	}
	return string(runes[:titleRuneLimit]) + "..."
}
