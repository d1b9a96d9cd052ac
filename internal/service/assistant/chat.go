package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"arbejdsret/internal/models"
	"arbejdsret/internal/service/ai"
	"arbejdsret/internal/session"
)

var ErrEmptyMessage = errors.New("message is empty")

// ChatResult is the outcome of one send. Reply is the model answer, or the
// error notice when the request failed.
type ChatResult struct {
	SessionID   string             `json:"sessionId"`
	UserMessage models.ChatMessage `json:"userMessage"`
	Reply       models.ChatMessage `json:"reply"`
	Status      Status             `json:"status"`
}

// Chat drives the legal chat over the session store.
type Chat struct {
	gw        Gateway
	store     *session.Store
	runner    Runner
	workspace string
	log       logrus.FieldLogger

	mu       sync.Mutex
	trackers map[string]*tracker
}

func newChat(gw Gateway, store *session.Store, o options) *Chat {
	return &Chat{
		gw:        gw,
		store:     store,
		runner:    o.runner,
		workspace: o.workspace,
		log:       o.log,
		trackers:  make(map[string]*tracker),
	}
}

func (c *Chat) tracker(id string) *tracker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.trackers[id]
	if !ok {
		t = &tracker{}
		c.trackers[id] = t
	}
	return t
}

// Status reports the request state of a session.
func (c *Chat) Status(id string) Status {
	status, _ := c.tracker(id).get()
	return status
}

// Send appends text as a user message and asks the model for a reply. Any
// failure appends the fixed error notice as the reply and returns the error
// alongside the result.
func (c *Chat) Send(ctx context.Context, id, text string) (*ChatResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if _, err := c.store.Get(id); err != nil {
		return nil, err
	}
	t := c.tracker(id)
	if err := t.begin(); err != nil {
		return nil, err
	}
	// History and topic are read only once this session's request slot is held.
	se, err := c.store.Get(id)
	if err != nil {
		t.reset()
		return nil, err
	}

	history, topic := se.Messages, se.Topic
	userMsg, err := c.store.Append(ctx, id, c.store.NewMessage(models.RoleUser, text, nil))
	if err != nil && userMsg.ID == "" {
		t.finish(err, ChatFailedMessage)
		return nil, fmt.Errorf("append user message: %w", err)
	}
	if err != nil {
		c.log.WithError(err).Warn("persist user message failed")
	}
	seq, err := c.store.BeginRequest(id)
	if err != nil {
		t.finish(err, ChatFailedMessage)
		return nil, err
	}

	// The worker may still be running fn after Do returns on cancellation, so
	// the answer is handed over on a channel read only after a nil error.
	replies := make(chan ai.ChatReply, 1)
	callErr := c.runner.Do(ctx, c.workspace, "chat", func(ctx context.Context) error {
		r, err := c.gw.SendChatMessage(ctx, history, text, topic)
		if err != nil {
			return err
		}
		replies <- r
		return nil
	})
	var reply models.ChatMessage
	if callErr == nil {
		select {
		case r := <-replies:
			reply = c.store.NewMessage(models.RoleModel, r.Text, models.DedupeSources(r.Sources))
		default:
			callErr = errors.New("chat request returned no reply")
		}
	}
	if callErr != nil {
		c.log.WithError(callErr).WithField("session_id", id).Warn("chat request failed")
		reply = c.store.NewMessage(models.RoleModel, ChatFailedMessage, nil)
	}

	stored, err := c.store.AppendIfLatest(ctx, id, seq, reply)
	switch {
	case errors.Is(err, session.ErrStaleResponse), errors.Is(err, session.ErrSessionNotFound):
		c.log.WithField("session_id", id).Debug("dropping reply for superseded request")
		t.finish(err, ChatFailedMessage)
		return nil, err
	case err != nil && stored.ID == "":
		t.finish(err, ChatFailedMessage)
		return nil, fmt.Errorf("append reply: %w", err)
	case err != nil:
		c.log.WithError(err).Warn("persist reply failed")
	}

	t.finish(callErr, ChatFailedMessage)
	res := &ChatResult{SessionID: id, UserMessage: userMsg, Reply: stored, Status: StatusSuccess}
	if callErr != nil {
		res.Status = StatusError
		return res, callErr
	}
	return res, nil
}

// NewSession starts a fresh conversation, optionally with a topic.
func (c *Chat) NewSession(ctx context.Context, topic models.Topic) (*models.ChatSession, error) {
	if topic != "" && !topic.Valid() {
		return nil, session.ErrInvalidTopic
	}
	se, err := c.store.Create(ctx, nil)
	if err != nil {
		return nil, err
	}
	if topic != "" && topic != se.Topic {
		if err := c.store.SetTopic(ctx, se.ID, topic); err != nil {
			return nil, err
		}
		se.Topic = topic
	}
	return se, nil
}

func (c *Chat) DeleteSession(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.trackers, id)
	c.mu.Unlock()
	return nil
}

func (c *Chat) SetTopic(ctx context.Context, id string, topic models.Topic) error {
	return c.store.SetTopic(ctx, id, topic)
}

func (c *Chat) Select(id string) error {
	return c.store.SetActive(id)
}

func (c *Chat) Sessions() []*models.ChatSession {
	return c.store.Sessions()
}

func (c *Chat) Session(id string) (*models.ChatSession, error) {
	return c.store.Get(id)
}

func (c *Chat) ActiveID() string {
	return c.store.ActiveID()
}
