package assistant

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"arbejdsret/internal/document"
	"arbejdsret/internal/models"
	"arbejdsret/internal/service/ai"
	"arbejdsret/internal/session"
	"arbejdsret/internal/worker"
)

// Status is the request state a view shows.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

const (
	GenerationFailedMessage = "Der opstod en fejl under genereringen."
	AnalysisFailedMessage   = "Der opstod en fejl under analysen. Prøv igen."
	ChatFailedMessage       = "Beklager, der opstod en teknisk fejl. Kontroller venligst din internetforbindelse eller API nøgle."
	BusyMessage             = "Der er allerede en forespørgsel i gang. Prøv igen om lidt."
)

var (
	// ErrBusy is returned when a view is submitted again while loading.
	ErrBusy         = errors.New("request already in progress")
	ErrInvalidInput = errors.New("invalid input")
)

// Gateway is the model access the views need.
type Gateway interface {
	GenerateTerminationPackage(ctx context.Context, req models.TerminationRequest) (*models.TerminationResponse, error)
	AnalyzeLegalDocument(ctx context.Context, doc document.Document) (string, error)
	SendChatMessage(ctx context.Context, history []models.ChatMessage, message string, topic models.Topic) (ai.ChatReply, error)
	FetchLegalNews(ctx context.Context) ([]models.LegalNewsItem, error)
}

// Runner executes outbound calls, normally a worker.Pool.
type Runner interface {
	Do(ctx context.Context, key, name string, fn func(context.Context) error) error
}

type inlineRunner struct{}

func (inlineRunner) Do(ctx context.Context, _, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

// Service groups the views of one workspace.
type Service struct {
	Wizard    *TerminationWizard
	Analyzer  *Analyzer
	Chat      *Chat
	Dashboard *Dashboard
}

type options struct {
	runner    Runner
	log       logrus.FieldLogger
	workspace string
	newsTTL   time.Duration
	now       func() time.Time
}

type Option func(*options)

func WithRunner(r Runner) Option {
	return func(o *options) { o.runner = r }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

// WithWorkspace sets the key used to group this workspace's jobs.
func WithWorkspace(name string) Option {
	return func(o *options) { o.workspace = name }
}

func WithNewsTTL(ttl time.Duration) Option {
	return func(o *options) { o.newsTTL = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewService wires the views over one gateway and one session store.
func NewService(gw Gateway, store *session.Store, opts ...Option) *Service {
	o := options{
		runner:    inlineRunner{},
		log:       logrus.StandardLogger(),
		workspace: "default",
		newsTTL:   time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runner == nil {
		o.runner = inlineRunner{}
	}
	return &Service{
		Wizard:    newTerminationWizard(gw, o),
		Analyzer:  newAnalyzer(gw, o),
		Chat:      newChat(gw, store, o),
		Dashboard: newDashboard(gw, o),
	}
}

// UserMessage turns err into the text shown to the user. Errors whose text is
// meant for the user are passed through; everything else becomes fallback.
func UserMessage(err error, fallback string) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ai.ErrMissingCredential):
		return ai.ErrMissingCredential.Error()
	case errors.Is(err, ai.ErrEmptyResponse):
		return ai.ErrEmptyResponse.Error()
	case errors.Is(err, ErrBusy), errors.Is(err, worker.ErrPoolBusy):
		return BusyMessage
	case errors.Is(err, ErrInvalidInput):
		return err.Error()
	default:
		return fallback
	}
}

// tracker guards one view's status.
type tracker struct {
	mu     sync.Mutex
	status Status
	errMsg string
}

func (t *tracker) begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusLoading {
		return ErrBusy
	}
	t.status = StatusLoading
	t.errMsg = ""
	return nil
}

func (t *tracker) finish(err error, fallback string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.status = StatusError
		t.errMsg = UserMessage(err, fallback)
		return
	}
	t.status = StatusSuccess
}

func (t *tracker) reset() {
	t.mu.Lock()
	t.status = StatusIdle
	t.errMsg = ""
	t.mu.Unlock()
}

func (t *tracker) get() (Status, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == "" {
		return StatusIdle, ""
	}
	return t.status, t.errMsg
}
