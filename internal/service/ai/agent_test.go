package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"arbejdsret/internal/config"
	"arbejdsret/internal/models"
)

type fakeChatModel struct {
	input []*schema.Message
	reply string
	err   error
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return &schema.Message{Role: schema.Assistant, Content: f.reply}, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeChatModel) WithTools(_ []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return f, nil
}

func newTestAgent(fake *fakeChatModel, key string) *AgentChat {
	return &AgentChat{
		provider:   "openai",
		credential: func() (string, bool) { return key, key != "" },
		newModel: func(context.Context, string) (model.ToolCallingChatModel, error) {
			return fake, nil
		},
		log: quietLogger(),
	}
}

func TestAgentChatConvertsHistory(t *testing.T) {
	fake := &fakeChatModel{reply: " Svar "}
	a := newTestAgent(fake, "sk-test")
	history := []models.ChatMessage{
		{Role: models.RoleModel, Text: "Hej"},
		{Role: models.RoleUser, Text: "Ferie?"},
	}
	reply, err := a.Chat(context.Background(), "instruktion", history, "Hvor mange dage?")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply.Text != "Svar" || len(reply.Sources) != 0 {
		t.Fatalf("unexpected reply %#v", reply)
	}
	if len(fake.input) != 4 {
		t.Fatalf("expected system + 2 history + message, got %d", len(fake.input))
	}
	wantRoles := []schema.RoleType{schema.System, schema.Assistant, schema.User, schema.User}
	for i, role := range wantRoles {
		if fake.input[i].Role != role {
			t.Fatalf("message %d role = %s, want %s", i, fake.input[i].Role, role)
		}
	}
	if fake.input[3].Content != "Hvor mange dage?" {
		t.Fatalf("new message not last")
	}
}

func TestAgentChatErrors(t *testing.T) {
	a := newTestAgent(&fakeChatModel{}, "")
	if _, err := a.Chat(context.Background(), "", nil, "x"); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	a = newTestAgent(&fakeChatModel{err: errors.New("429")}, "sk-test")
	if _, err := a.Chat(context.Background(), "", nil, "x"); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestChatModelForRejectsUnknownProvider(t *testing.T) {
	if _, err := chatModelFor("gemini", config.ProviderConfig{}); err == nil {
		t.Fatalf("expected error for unsupported agent provider")
	}
	for _, p := range []string{"openai", "claude"} {
		if f, err := chatModelFor(p, config.ProviderConfig{Model: "m"}); err != nil || f == nil {
			t.Fatalf("%s: %v", p, err)
		}
	}
}

func TestSearchQuotaPerBackend(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	q := newSearchQuota(2, time.Minute)
	q.now = func() time.Time { return now }
	for i := 0; i < 2; i++ {
		if _, err := q.Take("google"); err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
	}
	now = now.Add(20 * time.Second)
	wait, err := q.Take("google")
	if !errors.Is(err, ErrSearchQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if wait != 40*time.Second {
		t.Fatalf("wait = %s, want 40s", wait)
	}
	if _, err := q.Take("duckduckgo"); err != nil {
		t.Fatalf("backends share no quota: %v", err)
	}
	now = now.Add(41 * time.Second)
	if _, err := q.Take("google"); err != nil {
		t.Fatalf("lookup after the window: %v", err)
	}
}

func TestWebSearchReportsExhaustedQuota(t *testing.T) {
	ws := &webSearchTool{quota: newSearchQuota(0, time.Minute), log: quietLogger()}
	_, err := ws.run(context.Background(), &webSearchParams{Query: "https://www.retsinformation.dk/eli/lta/2017/1025"})
	if !errors.Is(err, ErrSearchQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestFetchLegalPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/lov":
			if r.Header.Get("Accept-Language") == "" {
				http.Error(w, "missing language", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(`<html><head><title>x</title><script>var a=1;</script></head>` +
				`<body><h1>Funktion&aelig;rloven</h1><p>&sect; 2. Opsigelse   fra arbejdsgiverens side</p></body></html>`))
		case "/tekst":
			w.Write([]byte("Funktionærlovens § 2"))
		case "/pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.4"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ws := &webSearchTool{httpClient: srv.Client(), log: quietLogger()}
	ctx := context.Background()

	out, err := ws.fetchLegalPage(ctx, srv.URL+"/lov")
	if err != nil {
		t.Fatalf("fetch html: %v", err)
	}
	if out != "Funktionærloven\n§ 2. Opsigelse fra arbejdsgiverens side" {
		t.Fatalf("unexpected page text %q", out)
	}

	var statusErr *FetchStatusError
	if _, err := ws.fetchLegalPage(ctx, srv.URL+"/mangler"); !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 status error, got %v", err)
	}
	if _, err := ws.fetchLegalPage(ctx, srv.URL+"/pdf"); !errors.Is(err, ErrUnreadablePage) {
		t.Fatalf("expected unreadable page, got %v", err)
	}
	if _, err := ws.fetchLegalPage(ctx, "ftp://example.dk/lov"); !errors.Is(err, ErrUnsupportedURL) {
		t.Fatalf("expected unsupported url, got %v", err)
	}

	out, err = ws.run(ctx, &webSearchParams{Query: srv.URL + "/tekst"})
	if err != nil || out != "Funktionærlovens § 2" {
		t.Fatalf("run = %q, %v", out, err)
	}
	if _, err := ws.run(ctx, &webSearchParams{Query: srv.URL + "/mangler"}); err == nil {
		t.Fatalf("expected failure without search providers")
	}
	if _, err := ws.run(ctx, &webSearchParams{Query: "  "}); err == nil {
		t.Fatalf("expected error for empty query")
	}
}

func TestPageTextTruncation(t *testing.T) {
	long := strings.Repeat("æ", legalPageMaxRunes+10)
	got := truncateRunes(long, legalPageMaxRunes)
	if !strings.HasSuffix(got, "[...]") || len([]rune(got)) != legalPageMaxRunes+len("\n[...]") {
		t.Fatalf("unexpected truncation length %d", len([]rune(got)))
	}
}

func TestLooksLikeURL(t *testing.T) {
	if !looksLikeURL("HTTPS://retsinformation.dk") || looksLikeURL("ferieloven") {
		t.Fatalf("looksLikeURL misclassified input")
	}
}
