package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"arbejdsret/internal/models"
	"arbejdsret/internal/storage"
)

const (
	sessionsKeySuffix = "legal_chat_sessions"
	legacyKeySuffix   = "legal_chat_history"

	WelcomeMessage = "Hej. Jeg er din juridiske AI-assistent. Vælg et emne ovenfor eller stil et spørgsmål for at komme i gang."
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidTopic    = errors.New("invalid topic")
	ErrInvalidRole     = errors.New("invalid message role")
	// ErrStaleResponse is returned when a reply arrives for a request that has
	// since been superseded by a newer one on the same session.
	ErrStaleResponse = errors.New("stale response discarded")
)

// Store owns the chat sessions of one workspace and keeps the adapter in sync
// with memory. The collection is never empty once Load has run.
type Store struct {
	mu          sync.Mutex
	adapter     storage.Adapter
	log         logrus.FieldLogger
	now         func() time.Time
	sessionsKey string
	legacyKey   string

	loaded   bool
	sessions []*models.ChatSession
	activeID string
	lastID   int64
	seq      map[string]uint64
}

type Option func(*Store)

// WithClock replaces time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for recovered storage failures.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) { s.log = log }
}

// NewStore creates a store persisting under keys scoped to workspace.
func NewStore(adapter storage.Adapter, workspace string, opts ...Option) *Store {
	s := &Store{
		adapter:     adapter,
		log:         logrus.StandardLogger(),
		now:         time.Now,
		sessionsKey: SessionsKey(workspace),
		legacyKey:   LegacyKey(workspace),
		seq:         make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionsKey is the storage key of the session collection.
func SessionsKey(workspace string) string {
	return scopedKey(workspace, sessionsKeySuffix)
}

// LegacyKey is the storage key of the old single-conversation history.
func LegacyKey(workspace string) string {
	return scopedKey(workspace, legacyKeySuffix)
}

func scopedKey(workspace, suffix string) string {
	if workspace == "" {
		return suffix
	}
	return workspace + ":" + suffix
}

// Load reads the persisted sessions. It runs once; later calls return nil.
// Unreadable data is logged and replaced, never returned as an error. The
// returned error only reports a failed write of the recovered state.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	s.loaded = true

	if sessions, ok := s.readSessions(ctx); ok {
		sort.SliceStable(sessions, func(i, j int) bool {
			return sessions[i].UpdatedAt > sessions[j].UpdatedAt
		})
		s.sessions = sessions
		s.activeID = sessions[0].ID
		return nil
	}

	if history, ok := s.readLegacy(ctx); ok {
		se := s.newSessionLocked()
		se.Messages = history
		for _, m := range history {
			if m.Role == models.RoleUser {
				se.Title = models.TitleFrom(m.Text)
				break
			}
		}
		s.sessions = []*models.ChatSession{se}
		s.activeID = se.ID
		if err := s.persistLocked(ctx); err != nil {
			return fmt.Errorf("persist migrated session: %w", err)
		}
		if err := s.adapter.Remove(ctx, s.legacyKey); err != nil {
			return fmt.Errorf("remove legacy history: %w", err)
		}
		s.log.WithField("messages", len(history)).Info("migrated legacy chat history")
		return nil
	}

	se := s.welcomeSessionLocked()
	s.sessions = []*models.ChatSession{se}
	s.activeID = se.ID
	if err := s.persistLocked(ctx); err != nil {
		return fmt.Errorf("persist welcome session: %w", err)
	}
	return nil
}

func (s *Store) readSessions(ctx context.Context) ([]*models.ChatSession, bool) {
	raw, ok := s.read(ctx, s.sessionsKey)
	if !ok {
		return nil, false
	}
	var decoded []*models.ChatSession
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		s.log.WithError(err).Warn("discarding unreadable chat sessions")
		return nil, false
	}
	seen := make(map[string]struct{}, len(decoded))
	sessions := make([]*models.ChatSession, 0, len(decoded))
	for _, se := range decoded {
		if se == nil || se.ID == "" {
			continue
		}
		if _, dup := seen[se.ID]; dup {
			s.log.WithField("session_id", se.ID).Warn("dropping duplicate chat session")
			continue
		}
		seen[se.ID] = struct{}{}
		if !se.Topic.Valid() {
			se.Topic = models.DefaultTopic
		}
		if se.Title == "" {
			se.Title = models.PlaceholderTitle
		}
		if se.Messages == nil {
			se.Messages = []models.ChatMessage{}
		}
		s.observeIDLocked(se.ID)
		for _, m := range se.Messages {
			s.observeIDLocked(m.ID)
		}
		sessions = append(sessions, se)
	}
	if len(sessions) == 0 {
		return nil, false
	}
	return sessions, true
}

func (s *Store) readLegacy(ctx context.Context) ([]models.ChatMessage, bool) {
	raw, ok := s.read(ctx, s.legacyKey)
	if !ok {
		return nil, false
	}
	var history []models.ChatMessage
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		s.log.WithError(err).Warn("discarding unreadable legacy chat history")
		return nil, false
	}
	if len(history) == 0 {
		return nil, false
	}
	for _, m := range history {
		s.observeIDLocked(m.ID)
	}
	return history, true
}

func (s *Store) read(ctx context.Context, key string) (string, bool) {
	raw, err := s.adapter.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.WithError(err).WithField("key", key).Warn("read persisted state failed")
		}
		return "", false
	}
	return raw, true
}

// Create adds a session at the front and makes it active. initial may be nil.
func (s *Store) Create(ctx context.Context, initial *models.ChatMessage) (*models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	se := s.newSessionLocked()
	if initial != nil {
		msg := initial.Clone()
		if !msg.Role.Valid() {
			return nil, ErrInvalidRole
		}
		if msg.ID == "" {
			msg.ID = s.nextIDLocked()
		}
		se.Messages = append(se.Messages, msg)
		if msg.Role == models.RoleUser {
			se.Title = models.TitleFrom(msg.Text)
		}
	}
	s.sessions = append([]*models.ChatSession{se}, s.sessions...)
	s.activeID = se.ID
	if err := s.persistLocked(ctx); err != nil {
		return se.Clone(), err
	}
	return se.Clone(), nil
}

// Delete removes a session. When the last one goes, a fresh welcome session
// takes its place; when the active one goes, the first remaining is activated.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return ErrSessionNotFound
	}
	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	delete(s.seq, id)

	if len(s.sessions) == 0 {
		se := s.welcomeSessionLocked()
		s.sessions = []*models.ChatSession{se}
		s.activeID = se.ID
	} else if s.activeID == id {
		s.activeID = s.sessions[0].ID
	}
	return s.persistLocked(ctx)
}

// Append adds msg to the session and bumps its update time. The first user
// message names the session.
func (s *Store) Append(ctx context.Context, id string, msg models.ChatMessage) (models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(ctx, id, msg)
}

// BeginRequest issues the next sequence number for a request on the session.
func (s *Store) BeginRequest(id string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) < 0 {
		return 0, ErrSessionNotFound
	}
	s.seq[id]++
	return s.seq[id], nil
}

// AppendIfLatest appends msg only if seq is the newest request issued for the
// session; otherwise the message is dropped and ErrStaleResponse returned.
func (s *Store) AppendIfLatest(ctx context.Context, id string, seq uint64, msg models.ChatMessage) (models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) < 0 {
		return models.ChatMessage{}, ErrSessionNotFound
	}
	if s.seq[id] != seq {
		return models.ChatMessage{}, ErrStaleResponse
	}
	return s.appendLocked(ctx, id, msg)
}

func (s *Store) appendLocked(ctx context.Context, id string, msg models.ChatMessage) (models.ChatMessage, error) {
	idx := s.indexLocked(id)
	if idx < 0 {
		return models.ChatMessage{}, ErrSessionNotFound
	}
	if !msg.Role.Valid() {
		return models.ChatMessage{}, ErrInvalidRole
	}
	se := s.sessions[idx]
	msg = msg.Clone()
	now := s.now()
	if msg.ID == "" {
		msg.ID = s.nextIDLocked()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = now.UnixMilli()
	}
	if msg.Role == models.RoleUser && !se.HasUserMessage() {
		se.Title = models.TitleFrom(msg.Text)
	}
	se.Messages = append(se.Messages, msg)
	se.UpdatedAt = now.UnixMilli()
	return msg.Clone(), s.persistLocked(ctx)
}

// SetTopic changes the session's topic without touching its history.
func (s *Store) SetTopic(ctx context.Context, id string, topic models.Topic) error {
	if !topic.Valid() {
		return ErrInvalidTopic
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return ErrSessionNotFound
	}
	s.sessions[idx].Topic = topic
	return s.persistLocked(ctx)
}

// SetActive selects the session shown to the user.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) < 0 {
		return ErrSessionNotFound
	}
	s.activeID = id
	return nil
}

// ActiveID returns the id of the active session.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Active returns a copy of the active session, or nil before Load.
func (s *Store) Active() *models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(s.activeID); idx >= 0 {
		return s.sessions[idx].Clone()
	}
	return nil
}

// Get returns a copy of one session.
func (s *Store) Get(id string) (*models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return nil, ErrSessionNotFound
	}
	return s.sessions[idx].Clone(), nil
}

// Sessions returns copies of all sessions in collection order.
func (s *Store) Sessions() []*models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ChatSession, 0, len(s.sessions))
	for _, se := range s.sessions {
		out = append(out, se.Clone())
	}
	return out
}

// NewMessage builds a message with a fresh id stamped with the store clock.
func (s *Store) NewMessage(role models.Role, text string, sources []models.Source) models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := models.NewMessage(s.nextIDLocked(), role, text, s.now())
	msg.Sources = sources
	return msg
}

func (s *Store) indexLocked(id string) int {
	for i, se := range s.sessions {
		if se.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) newSessionLocked() *models.ChatSession {
	return &models.ChatSession{
		ID:        s.nextIDLocked(),
		Title:     models.PlaceholderTitle,
		Messages:  []models.ChatMessage{},
		UpdatedAt: s.now().UnixMilli(),
		Topic:     models.DefaultTopic,
	}
}

func (s *Store) welcomeSessionLocked() *models.ChatSession {
	se := s.newSessionLocked()
	se.Messages = append(se.Messages, models.NewMessage(s.nextIDLocked(), models.RoleModel, WelcomeMessage, s.now()))
	return se
}

// nextIDLocked derives ids from the current instant in milliseconds, moving
// forward when two ids would land on the same millisecond.
func (s *Store) nextIDLocked() string {
	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return strconv.FormatInt(id, 10)
}

func (s *Store) observeIDLocked(id string) {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > s.lastID {
		s.lastID = n
	}
}

func (s *Store) persistLocked(ctx context.Context) error {
	if len(s.sessions) == 0 {
		if err := s.adapter.Remove(ctx, s.sessionsKey); err != nil {
			return fmt.Errorf("remove sessions: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(s.sessions)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	if err := s.adapter.Set(ctx, s.sessionsKey, string(data)); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return nil
}
