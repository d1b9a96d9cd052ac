package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"arbejdsret/internal/document"
	"arbejdsret/internal/models"
	"arbejdsret/internal/service/ai"
	"arbejdsret/internal/service/assistant"
	"arbejdsret/internal/session"
	"arbejdsret/internal/storage"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ARBEJDSRET_CONFIG", "")
	t.Setenv("ARBEJDSRET_STORAGE", "memory")
	t.Setenv("ARBEJDSRET_CHAT_PROVIDER", "gemini")
	t.Setenv("ARBEJDSRET_LOG_LEVEL", "error")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "")
	configPath = ""
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTerminateWithoutCredential(t *testing.T) {
	isolateEnv(t)
	_, err := runCommand(t, "terminate",
		"--name", "Mette Jensen",
		"--title", "Bogholder",
		"--hire-date", "2020-01-01",
		"--address", "Nørregade 4, 1165 København K",
		"--funktionaer",
		"--date", "2024-06-03",
		"--reason", "Nedskæringer",
	)
	if !errors.Is(err, ai.ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
	if err.Error() != "API nøgle mangler. Tjek venligst dine indstillinger." {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestTerminateRequiresFields(t *testing.T) {
	isolateEnv(t)
	termReq = models.TerminationRequest{}
	_, err := runCommand(t, "terminate", "--name", "Mette", "--title", "", "--hire-date", "", "--address", "", "--date", "", "--reason", "")
	if err == nil || !strings.Contains(err.Error(), "address") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSessionsListShowsWelcomeSession(t *testing.T) {
	isolateEnv(t)
	out, err := runCommand(t, "sessions", "list")
	if err != nil {
		t.Fatalf("sessions list: %v", err)
	}
	if !strings.HasPrefix(out, "* ") || !strings.Contains(out, models.PlaceholderTitle) || !strings.Contains(out, "1 message") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestPrintSessionsUsesRelativeTimes(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sessions := []*models.ChatSession{
		{ID: "2", Title: "Barsel", Topic: models.TopicHoliday, UpdatedAt: now.Add(-2 * time.Hour).UnixMilli(), Messages: make([]models.ChatMessage, 3)},
		{ID: "1", Title: "Ny samtale", Topic: models.TopicGeneral, UpdatedAt: now.Add(-72 * time.Hour).UnixMilli()},
	}
	var buf bytes.Buffer
	printSessions(&buf, sessions, "1", now)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "  2") || !strings.Contains(lines[0], "3 messages") || !strings.Contains(lines[0], "2 hours ago") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "* 1") || !strings.Contains(lines[1], "[Generelt]") || !strings.Contains(lines[1], "3 days ago") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
}

func TestPrintTermination(t *testing.T) {
	var buf bytes.Buffer
	printTermination(&buf, &models.TerminationResponse{
		IsValidReason:          false,
		CalculatedNoticePeriod: "1 måned",
		LetterContent:          "Kære Mette",
	})
	out := buf.String()
	if !strings.Contains(out, "Gyldig begrundelse: Nej") || !strings.Contains(out, "Kære Mette") {
		t.Fatalf("unexpected output %q", out)
	}
}

type echoGateway struct{}

func (echoGateway) GenerateTerminationPackage(context.Context, models.TerminationRequest) (*models.TerminationResponse, error) {
	return nil, errors.New("not used")
}

func (echoGateway) AnalyzeLegalDocument(context.Context, document.Document) (string, error) {
	return "", errors.New("not used")
}

func (echoGateway) SendChatMessage(_ context.Context, _ []models.ChatMessage, message string, _ models.Topic) (ai.ChatReply, error) {
	return ai.ChatReply{
		Text:    "Svar: " + message,
		Sources: []models.Source{{Title: "Ferieloven", URI: "https://www.retsinformation.dk/ferie"}},
	}, nil
}

func (echoGateway) FetchLegalNews(context.Context) ([]models.LegalNewsItem, error) {
	return nil, nil
}

func TestChatLoop(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	store := session.NewStore(storage.NewMemoryAdapter(), "test", session.WithLogger(log))
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	svc := assistant.NewService(echoGateway{}, store, assistant.WithLogger(log))

	in := strings.NewReader("Hvor mange feriedage?\n\nexit\nignored\n")
	var out bytes.Buffer
	if err := chatLoop(context.Background(), svc.Chat, in, &out, store.ActiveID()); err != nil {
		t.Fatalf("chat loop: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "Svar: Hvor mange feriedage?") || !strings.Contains(text, "Kilder:") {
		t.Fatalf("unexpected output %q", text)
	}
	if strings.Contains(text, "ignored") {
		t.Fatalf("loop did not stop at exit")
	}
	se, _ := store.Get(store.ActiveID())
	if len(se.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(se.Messages))
	}
}

type readOnlyAdapter struct{}

func (readOnlyAdapter) Get(context.Context, string) (string, error) { return "", storage.ErrNotFound }
func (readOnlyAdapter) Set(context.Context, string, string) error { return errors.New("disk full") }
func (readOnlyAdapter) Remove(context.Context, string) error { return nil }

func TestLoadStoreSurvivesFailedSave(t *testing.T) {
	log := logrus.New()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	store := loadStore(context.Background(), readOnlyAdapter{}, "test", log)
	if store == nil {
		t.Fatalf("expected a store")
	}
	sessions := store.Sessions()
	if len(sessions) != 1 || len(sessions[0].Messages) != 1 || store.ActiveID() != sessions[0].ID {
		t.Fatalf("expected one welcome session, got %#v", sessions)
	}
	if !strings.Contains(buf.String(), "disk full") {
		t.Fatalf("save failure was not logged: %q", buf.String())
	}
}
