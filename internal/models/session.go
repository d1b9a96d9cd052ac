package models

import "time"

// Topic narrows the legal area the chat assistant focuses on.
type Topic string

const (
	TopicGeneral     Topic = "Generelt"
	TopicTermination Topic = "Opsigelse"
	TopicAgreement   Topic = "Overenskomst"
	TopicGDPR        Topic = "GDPR"
	TopicHoliday     Topic = "Ferie"
)

const (
	DefaultTopic     = TopicGeneral
	PlaceholderTitle = "Ny samtale"
	TitleMaxLength   = 30
)

// TopicInfo pairs a topic with its display label.
type TopicInfo struct {
	ID    Topic  `json:"id"`
	Label string `json:"label"`
}

// Topics lists the selectable topics in display order.
var Topics = []TopicInfo{
	{ID: TopicGeneral, Label: "Generelt"},
	{ID: TopicTermination, Label: "Opsigelse & Varsel"},
	{ID: TopicAgreement, Label: "Overenskomst"},
	{ID: TopicGDPR, Label: "GDPR & Data"},
	{ID: TopicHoliday, Label: "Ferie & Barsel"},
}

// Valid reports whether t is one of the fixed topics.
func (t Topic) Valid() bool {
	for _, info := range Topics {
		if info.ID == t {
			return true
		}
	}
	return false
}

// ChatSession is one persisted conversation thread.
type ChatSession struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages"`
	UpdatedAt int64         `json:"updatedAt"` // unix milliseconds
	Topic     Topic         `json:"topic"`
}

// Updated returns the last mutation instant.
func (s *ChatSession) Updated() time.Time {
	return time.UnixMilli(s.UpdatedAt)
}

// Clone returns a deep copy.
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = make([]ChatMessage, len(s.Messages))
	for i, m := range s.Messages {
		c.Messages[i] = m.Clone()
	}
	return &c
}

// HasUserMessage reports whether any message was written by the user.
func (s *ChatSession) HasUserMessage() bool {
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			return true
		}
	}
	return false
}

// TitleFrom derives a session title from the first user message.
func TitleFrom(text string) string {
	runes := []rune(text)
	if len(runes) <= TitleMaxLength {
		return text
	}
	return string(runes[:TitleMaxLength]) + "..."
}
