package models

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Valid reports whether r is one of the two conversation roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// Source is a web citation attached to a grounded model answer.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// ChatMessage is one entry in a session's history. Messages are never edited
// after they are appended.
type ChatMessage struct {
	ID        string   `json:"id"`
	Role      Role     `json:"role"`
	Text      string   `json:"text"`
	Timestamp int64    `json:"timestamp"` // unix milliseconds
	Sources   []Source `json:"sources,omitempty"`
}

// NewMessage builds a message stamped with now.
func NewMessage(id string, role Role, text string, now time.Time) ChatMessage {
	return ChatMessage{
		ID:        id,
		Role:      role,
		Text:      text,
		Timestamp: now.UnixMilli(),
	}
}

// Time returns the creation instant.
func (m ChatMessage) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Clone returns a copy that does not share the sources slice.
func (m ChatMessage) Clone() ChatMessage {
	if m.Sources != nil {
		m.Sources = append([]Source(nil), m.Sources...)
	}
	return m
}

// DedupeSources keeps the first occurrence of every URI, preserving order.
func DedupeSources(in []Source) []Source {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]Source, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s.URI]; ok {
			continue
		}
		seen[s.URI] = struct{}{}
		out = append(out, s)
	}
	return out
}
