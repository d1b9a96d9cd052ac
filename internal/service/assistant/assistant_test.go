package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"arbejdsret/internal/document"
	"arbejdsret/internal/models"
	"arbejdsret/internal/service/ai"
	"arbejdsret/internal/session"
	"arbejdsret/internal/storage"
	"arbejdsret/internal/worker"
)

type mockGateway struct {
	mu sync.Mutex

	termination *models.TerminationResponse
	analysis    string
	reply       ai.ChatReply
	news        []models.LegalNewsItem
	err         error
	block       chan struct{}
	entered     chan struct{}

	calls       int
	lastHistory []models.ChatMessage
	lastMessage string
	lastTopic   models.Topic
}

func (m *mockGateway) enter() error {
	m.mu.Lock()
	m.calls++
	block, entered, err := m.block, m.entered, m.err
	m.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return err
}

func (m *mockGateway) GenerateTerminationPackage(context.Context, models.TerminationRequest) (*models.TerminationResponse, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	return m.termination, nil
}

func (m *mockGateway) AnalyzeLegalDocument(context.Context, document.Document) (string, error) {
	if err := m.enter(); err != nil {
		return "", err
	}
	return m.analysis, nil
}

func (m *mockGateway) SendChatMessage(_ context.Context, history []models.ChatMessage, message string, topic models.Topic) (ai.ChatReply, error) {
	m.mu.Lock()
	m.lastHistory = history
	m.lastMessage = message
	m.lastTopic = topic
	m.mu.Unlock()
	if err := m.enter(); err != nil {
		return ai.ChatReply{}, err
	}
	return m.reply, nil
}

func (m *mockGateway) FetchLegalNews(context.Context) ([]models.LegalNewsItem, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	return m.news, nil
}

func (m *mockGateway) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestService(t *testing.T, gw Gateway, opts ...Option) (*Service, *session.Store) {
	t.Helper()
	store := session.NewStore(storage.NewMemoryAdapter(), "test", session.WithLogger(quietLogger()))
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("load store: %v", err)
	}
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return NewService(gw, store, opts...), store
}

var validRequest = models.TerminationRequest{
	Employee: models.EmployeeData{
		Name:          "Mette Jensen",
		Title:         "Bogholder",
		HireDate:      "2020-01-01",
		Address:       "Nørregade 4, 1165 København K",
		IsFunktionaer: true,
	},
	TerminationDate: "2024-06-03",
	Reason:          "Nedskæringer",
}

func TestWizardRejectsMissingFieldsWithoutCalling(t *testing.T) {
	gw := &mockGateway{}
	svc, _ := newTestService(t, gw)
	req := validRequest
	req.Employee.Address = " "
	_, err := svc.Wizard.Submit(context.Background(), req)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if gw.callCount() != 0 {
		t.Fatalf("gateway must not be called for invalid input")
	}
	if st := svc.Wizard.State(); st.Step != StepForm || st.Status != StatusIdle {
		t.Fatalf("unexpected state %#v", st)
	}
}

func TestWizardSubmitAndReset(t *testing.T) {
	want := &models.TerminationResponse{IsValidReason: true, CalculatedNoticePeriod: "3 måneder", LetterContent: "Kære Mette"}
	svc, _ := newTestService(t, &mockGateway{termination: want})

	got, err := svc.Wizard.Submit(context.Background(), validRequest)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got != want {
		t.Fatalf("unexpected result %#v", got)
	}
	st := svc.Wizard.State()
	if st.Step != StepResult || st.Status != StatusSuccess || st.Result != want || st.Request.Employee.Name != "Mette Jensen" {
		t.Fatalf("unexpected state %#v", st)
	}

	svc.Wizard.Reset()
	st = svc.Wizard.State()
	if st.Step != StepForm || st.Result != nil || st.Status != StatusIdle {
		t.Fatalf("reset did not clear state: %#v", st)
	}
}

func TestWizardErrorMessages(t *testing.T) {
	svc, _ := newTestService(t, &mockGateway{err: ai.ErrMissingCredential})
	if _, err := svc.Wizard.Submit(context.Background(), validRequest); !errors.Is(err, ai.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	st := svc.Wizard.State()
	if st.Status != StatusError || st.Error != "API nøgle mangler. Tjek venligst dine indstillinger." || st.Step != StepForm {
		t.Fatalf("unexpected state %#v", st)
	}

	svc, _ = newTestService(t, &mockGateway{err: fmt.Errorf("%w: boom", ai.ErrMalformedResponse)})
	_, _ = svc.Wizard.Submit(context.Background(), validRequest)
	if st := svc.Wizard.State(); st.Error != GenerationFailedMessage {
		t.Fatalf("expected generic message, got %q", st.Error)
	}
}

func TestWizardRejectsDuplicateSubmission(t *testing.T) {
	gw := &mockGateway{
		termination: &models.TerminationResponse{},
		block:       make(chan struct{}),
		entered:     make(chan struct{}, 1),
	}
	svc, _ := newTestService(t, gw)
	done := make(chan error, 1)
	go func() {
		_, err := svc.Wizard.Submit(context.Background(), validRequest)
		done <- err
	}()
	<-gw.entered
	if st := svc.Wizard.State(); st.Status != StatusLoading {
		t.Fatalf("expected loading, got %s", st.Status)
	}
	if _, err := svc.Wizard.Submit(context.Background(), validRequest); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(gw.block)
	if err := <-done; err != nil {
		t.Fatalf("first submission: %v", err)
	}
	if gw.callCount() != 1 {
		t.Fatalf("expected one gateway call, got %d", gw.callCount())
	}
}

func TestAnalyzer(t *testing.T) {
	svc, _ := newTestService(t, &mockGateway{analysis: "Type: Ansættelseskontrakt"})
	doc, _ := document.FromText("kontrakt.txt", "text/plain", "…")
	out, err := svc.Analyzer.Analyze(context.Background(), doc)
	if err != nil || out != "Type: Ansættelseskontrakt" {
		t.Fatalf("analyze = %q, %v", out, err)
	}
	st := svc.Analyzer.State()
	if st.Status != StatusSuccess || st.Document != "kontrakt.txt" || st.Analysis != out {
		t.Fatalf("unexpected state %#v", st)
	}

	svc, _ = newTestService(t, &mockGateway{err: ai.ErrTransport})
	if _, err := svc.Analyzer.Analyze(context.Background(), doc); !errors.Is(err, ai.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	st = svc.Analyzer.State()
	if st.Status != StatusError || st.Analysis != AnalysisFailedMessage {
		t.Fatalf("unexpected state %#v", st)
	}
}

func TestChatSendAppendsReply(t *testing.T) {
	gw := &mockGateway{reply: ai.ChatReply{
		Text: "Ferieloven giver 25 dage.",
		Sources: []models.Source{
			{Title: "Ferieloven", URI: "https://www.retsinformation.dk/ferie"},
			{Title: "Igen", URI: "https://www.retsinformation.dk/ferie"},
		},
	}}
	svc, store := newTestService(t, gw)
	id := store.ActiveID()
	if err := svc.Chat.SetTopic(context.Background(), id, models.TopicHoliday); err != nil {
		t.Fatalf("set topic: %v", err)
	}

	res, err := svc.Chat.Send(context.Background(), id, "  Hvor mange feriedage?  ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.UserMessage.Text != "Hvor mange feriedage?" || res.Reply.Text != "Ferieloven giver 25 dage." {
		t.Fatalf("unexpected result %#v", res)
	}
	if len(res.Reply.Sources) != 1 {
		t.Fatalf("sources not deduplicated: %#v", res.Reply.Sources)
	}
	if gw.lastTopic != models.TopicHoliday || gw.lastMessage != "Hvor mange feriedage?" {
		t.Fatalf("unexpected request: %q %q", gw.lastTopic, gw.lastMessage)
	}
	if len(gw.lastHistory) != 1 || gw.lastHistory[0].Text != session.WelcomeMessage {
		t.Fatalf("history should hold only prior messages: %#v", gw.lastHistory)
	}

	se, _ := store.Get(id)
	if len(se.Messages) != 3 {
		t.Fatalf("expected welcome, user and reply, got %d", len(se.Messages))
	}
	if se.Title != "Hvor mange feriedage?" {
		t.Fatalf("title = %q", se.Title)
	}
	if svc.Chat.Status(id) != StatusSuccess {
		t.Fatalf("status = %s", svc.Chat.Status(id))
	}
}

func TestChatFailureAppendsErrorNotice(t *testing.T) {
	svc, store := newTestService(t, &mockGateway{err: ai.ErrTransport})
	id := store.ActiveID()
	res, err := svc.Chat.Send(context.Background(), id, "Hej")
	if !errors.Is(err, ai.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if res == nil || res.Reply.Role != models.RoleModel || res.Reply.Text != ChatFailedMessage || res.Status != StatusError {
		t.Fatalf("unexpected result %#v", res)
	}
	se, _ := store.Get(id)
	last := se.Messages[len(se.Messages)-1]
	if last.Text != ChatFailedMessage {
		t.Fatalf("error notice not stored: %#v", last)
	}
	if svc.Chat.Status(id) != StatusError {
		t.Fatalf("status = %s", svc.Chat.Status(id))
	}
}

func TestChatRejectsEmptyAndUnknown(t *testing.T) {
	gw := &mockGateway{}
	svc, store := newTestService(t, gw)
	if _, err := svc.Chat.Send(context.Background(), store.ActiveID(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := svc.Chat.Send(context.Background(), "missing", "hej"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if gw.callCount() != 0 {
		t.Fatalf("gateway must not be called")
	}
}

func TestChatBusyPerSession(t *testing.T) {
	gw := &mockGateway{
		reply:   ai.ChatReply{Text: "svar"},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	svc, store := newTestService(t, gw)
	id := store.ActiveID()
	done := make(chan error, 1)
	go func() {
		_, err := svc.Chat.Send(context.Background(), id, "første")
		done <- err
	}()
	<-gw.entered
	if _, err := svc.Chat.Send(context.Background(), id, "anden"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(gw.block)
	if err := <-done; err != nil {
		t.Fatalf("first send: %v", err)
	}
}

func TestChatThroughWorkerPool(t *testing.T) {
	pool := worker.NewPool(worker.DispatcherConfig{MaxWorkers: 1, QueueSize: 2})
	defer pool.Close()
	svc, store := newTestService(t, &mockGateway{reply: ai.ChatReply{Text: "ok"}}, WithRunner(pool), WithWorkspace("test"))
	res, err := svc.Chat.Send(context.Background(), store.ActiveID(), "hej")
	if err != nil || res.Reply.Text != "ok" {
		t.Fatalf("send through pool: %#v, %v", res, err)
	}
}

func TestChatSessionManagement(t *testing.T) {
	svc, _ := newTestService(t, &mockGateway{})
	ctx := context.Background()
	se, err := svc.Chat.NewSession(ctx, models.TopicGDPR)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if se.Topic != models.TopicGDPR || svc.Chat.ActiveID() != se.ID {
		t.Fatalf("unexpected session %#v", se)
	}
	if _, err := svc.Chat.NewSession(ctx, "Skat"); !errors.Is(err, session.ErrInvalidTopic) {
		t.Fatalf("expected ErrInvalidTopic, got %v", err)
	}
	if len(svc.Chat.Sessions()) != 2 {
		t.Fatalf("expected 2 sessions")
	}
	first := svc.Chat.Sessions()[1].ID
	if err := svc.Chat.Select(first); err != nil || svc.Chat.ActiveID() != first {
		t.Fatalf("select failed: %v", err)
	}
	if err := svc.Chat.DeleteSession(ctx, se.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Chat.Session(se.ID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("session should be gone")
	}
}

func TestDashboardCachesNews(t *testing.T) {
	now := time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC)
	gw := &mockGateway{news: []models.LegalNewsItem{{Date: "15. sep", Title: "Ny barselsregel", Tag: "Lovgivning"}}}
	svc, _ := newTestService(t, gw, WithNewsTTL(time.Hour), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	items, err := svc.Dashboard.News(ctx)
	if err != nil || len(items) != 1 {
		t.Fatalf("news = %#v, %v", items, err)
	}
	if _, err := svc.Dashboard.News(ctx); err != nil {
		t.Fatalf("news: %v", err)
	}
	if gw.callCount() != 1 {
		t.Fatalf("expected cached answer, got %d calls", gw.callCount())
	}
	now = now.Add(2 * time.Hour)
	if _, err := svc.Dashboard.News(ctx); err != nil {
		t.Fatalf("news: %v", err)
	}
	if gw.callCount() != 2 {
		t.Fatalf("expected refetch after ttl, got %d calls", gw.callCount())
	}
}

func TestDashboardEmptyAndError(t *testing.T) {
	svc, _ := newTestService(t, &mockGateway{})
	items, err := svc.Dashboard.News(context.Background())
	if err != nil || items == nil || len(items) != 0 {
		t.Fatalf("expected empty list, got %#v, %v", items, err)
	}
	svc, _ = newTestService(t, &mockGateway{err: ai.ErrMissingCredential})
	if _, err := svc.Dashboard.News(context.Background()); !errors.Is(err, ai.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestUserMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("wrap: %w", ai.ErrMissingCredential), ai.ErrMissingCredential.Error()},
		{ai.ErrEmptyResponse, ai.ErrEmptyResponse.Error()},
		{worker.ErrPoolBusy, BusyMessage},
		{ErrBusy, BusyMessage},
		{errors.New("socket closed"), "fallback"},
	}
	for _, tc := range cases {
		if got := UserMessage(tc.err, "fallback"); got != tc.want {
			t.Fatalf("UserMessage(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
	if got := UserMessage(fmt.Errorf("%w: missing name", ErrInvalidInput), "x"); !strings.Contains(got, "missing name") {
		t.Fatalf("validation message lost: %q", got)
	}
}

func TestChatCancelWhileGatewayBlocked(t *testing.T) {
	pool := worker.NewPool(worker.DispatcherConfig{MaxWorkers: 1, QueueSize: 2})
	defer pool.Close()
	gw := &mockGateway{
		reply:   ai.ChatReply{Text: "Du har 25 feriedage."},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 2),
	}
	svc, store := newTestService(t, gw, WithRunner(pool), WithWorkspace("test"))
	id := store.ActiveID()

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		res *ChatResult
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := svc.Chat.Send(ctx, id, "Hvad med ferien?")
		first <- outcome{res, err}
	}()
	select {
	case <-gw.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("gateway was not called")
	}
	cancel()

	var got outcome
	select {
	case got = <-first:
	case <-time.After(2 * time.Second):
		t.Fatalf("send did not return after cancel")
	}
	if !errors.Is(got.err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", got.err)
	}
	if got.res == nil || got.res.Reply.Text != ChatFailedMessage || got.res.Status != StatusError {
		t.Fatalf("unexpected result %#v", got.res)
	}

	close(gw.block)

	res, err := svc.Chat.Send(context.Background(), id, "Og hvor mange feriedage?")
	if err != nil || res.Reply.Text != "Du har 25 feriedage." {
		t.Fatalf("second send: %#v, %v", res, err)
	}

	se, err := store.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := []string{session.WelcomeMessage, "Hvad med ferien?", ChatFailedMessage, "Og hvor mange feriedage?", "Du har 25 feriedage."}
	if len(se.Messages) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(se.Messages))
	}
	for i, text := range want {
		if se.Messages[i].Text != text {
			t.Fatalf("message %d = %q, want %q", i, se.Messages[i].Text, text)
		}
	}
}

func TestChatSendUsesCurrentHistoryAndTopic(t *testing.T) {
	gw := &mockGateway{reply: ai.ChatReply{Text: "Fem ugers ferie."}}
	svc, store := newTestService(t, gw)
	id := store.ActiveID()
	if _, err := svc.Chat.Send(context.Background(), id, "Hvor meget ferie?"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := svc.Chat.SetTopic(context.Background(), id, models.TopicHoliday); err != nil {
		t.Fatalf("set topic: %v", err)
	}
	if _, err := svc.Chat.Send(context.Background(), id, "Og feriefridage?"); err != nil {
		t.Fatalf("second send: %v", err)
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.lastTopic != models.TopicHoliday {
		t.Fatalf("topic = %q, want %q", gw.lastTopic, models.TopicHoliday)
	}
	if n := len(gw.lastHistory); n != 3 || gw.lastHistory[n-1].Text != "Fem ugers ferie." {
		t.Fatalf("history did not include the previous reply: %#v", gw.lastHistory)
	}
}
