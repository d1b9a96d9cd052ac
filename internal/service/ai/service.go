package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"arbejdsret/internal/config"
	"arbejdsret/internal/document"
	"arbejdsret/internal/models"
)

var (
	// ErrMissingCredential is raised before any network call when no API key
	// is configured. Its text is shown to the user as is.
	ErrMissingCredential = errors.New("API nøgle mangler. Tjek venligst dine indstillinger.")
	ErrTransport         = errors.New("ai request failed")
	ErrEmptyResponse     = errors.New("Intet svar modtaget fra AI.")
	ErrMalformedResponse = errors.New("malformed ai response")
)

// CredentialFunc returns the API key. It is called on every request so a key
// configured after startup is picked up.
type CredentialFunc func() (string, bool)

// contentGenerator is the part of the genai client the gateway uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type clientFactory func(ctx context.Context, apiKey string) (contentGenerator, error)

func newGenaiClient(ctx context.Context, apiKey string) (contentGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

// ChatReply is a model answer with the web sources it was grounded on.
type ChatReply struct {
	Text    string          `json:"text"`
	Sources []models.Source `json:"sources,omitempty"`
}

// ChatBackend answers chat turns for providers other than gemini.
type ChatBackend interface {
	Chat(ctx context.Context, instruction string, history []models.ChatMessage, message string) (ChatReply, error)
}

// Gateway is the single point of contact with the generative model.
type Gateway struct {
	model      string
	credential CredentialFunc
	newClient  clientFactory
	chat       ChatBackend
	log        logrus.FieldLogger
}

type Option func(*Gateway)

func WithCredential(fn CredentialFunc) Option {
	return func(g *Gateway) { g.credential = fn }
}

func WithChatBackend(b ChatBackend) Option {
	return func(g *Gateway) { g.chat = b }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(g *Gateway) { g.log = log }
}

func withClientFactory(f clientFactory) Option {
	return func(g *Gateway) { g.newClient = f }
}

// NewGateway builds the gateway from config. When chat_provider is not gemini
// the chat turns go through an eino agent for that provider.
func NewGateway(ctx context.Context, cfg *config.Config, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	gem, ok := cfg.Provider("gemini")
	if !ok {
		return nil, errors.New("gemini provider not configured")
	}
	model := gem.Model
	if model == "" {
		model = config.DefaultModel
	}
	keyEnv := gem.APIKeyEnv
	g := &Gateway{
		model: model,
		credential: func() (string, bool) {
			return config.Credential(keyEnv, "API_KEY")
		},
		newClient: newGenaiClient,
		log:       config.Logger,
	}
	for _, opt := range opts {
		opt(g)
	}

	provider := strings.ToLower(cfg.BasicConfig.ChatProvider)
	if g.chat == nil && provider != "" && provider != "gemini" {
		pc, ok := cfg.Provider(provider)
		if !ok {
			return nil, fmt.Errorf("provider %s not configured", provider)
		}
		backend, err := NewAgentChat(ctx, provider, pc, g.log)
		if err != nil {
			return nil, fmt.Errorf("init %s chat: %w", provider, err)
		}
		g.chat = backend
	}
	return g, nil
}

// Model returns the gemini model name in use.
func (g *Gateway) Model() string {
	return g.model
}

func (g *Gateway) client(ctx context.Context) (contentGenerator, error) {
	key, ok := g.credential()
	if !ok {
		g.log.Error("gemini api key is missing from the environment")
		return nil, ErrMissingCredential
	}
	c, err := g.newClient(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %w", ErrTransport, err)
	}
	return c, nil
}

func (g *Gateway) generate(ctx context.Context, op string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	c, err := g.client(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		g.log.WithError(err).WithField("op", op).Warn("gemini request failed")
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
	}
	return resp, nil
}

func systemInstruction(text string) *genai.Content {
	return &genai.Content{Parts: []*genai.Part{{Text: text}}}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	return resp.Text()
}

var terminationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"isValidReason":          {Type: genai.TypeBoolean, Description: "Whether the provided reason is legally valid for termination."},
		"calculatedNoticePeriod": {Type: genai.TypeString, Description: "The calculated notice period (e.g. '3 måneder') based on hire date."},
		"lastWorkingDay":         {Type: genai.TypeString, Description: "The specific date for the last working day."},
		"legalReference":         {Type: genai.TypeString, Description: "Reference to specific paragraphs in Funktionærloven."},
		"letterContent":          {Type: genai.TypeString, Description: "The full text of the termination letter in Markdown format."},
		"explanation":            {Type: genai.TypeString, Description: "A brief explanation of the calculation and advice."},
	},
	Required: []string{"isValidReason", "calculatedNoticePeriod", "lastWorkingDay", "legalReference", "letterContent", "explanation"},
}

// GenerateTerminationPackage asks the model for a notice calculation, a
// validity assessment and the letter itself.
func (g *Gateway) GenerateTerminationPackage(ctx context.Context, req models.TerminationRequest) (*models.TerminationResponse, error) {
	resp, err := g.generate(ctx, "termination", genai.Text(terminationPrompt(req)), &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(systemInstructionBase),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    terminationSchema,
	})
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return decodeTermination(text)
}

// terminationPayload tracks which fields were present in the model output.
type terminationPayload struct {
	IsValidReason          *bool   `json:"isValidReason"`
	CalculatedNoticePeriod *string `json:"calculatedNoticePeriod"`
	LastWorkingDay         *string `json:"lastWorkingDay"`
	LegalReference         *string `json:"legalReference"`
	LetterContent          *string `json:"letterContent"`
	Explanation            *string `json:"explanation"`
}

func decodeTermination(text string) (*models.TerminationResponse, error) {
	var p terminationPayload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	var missing []string
	if p.IsValidReason == nil {
		missing = append(missing, "isValidReason")
	}
	str := func(name string, v *string) string {
		if v == nil {
			missing = append(missing, name)
			return ""
		}
		return *v
	}
	out := &models.TerminationResponse{
		CalculatedNoticePeriod: str("calculatedNoticePeriod", p.CalculatedNoticePeriod),
		LastWorkingDay:         str("lastWorkingDay", p.LastWorkingDay),
		LegalReference:         str("legalReference", p.LegalReference),
		LetterContent:          str("letterContent", p.LetterContent),
		Explanation:            str("explanation", p.Explanation),
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing fields %s", ErrMalformedResponse, strings.Join(missing, ", "))
	}
	out.IsValidReason = *p.IsValidReason
	return out, nil
}

// AnalyzeLegalDocument explains a contract, agreement or clause in plain
// Danish. Text documents are embedded in the prompt; images and PDFs are sent
// as inline data.
func (g *Gateway) AnalyzeLegalDocument(ctx context.Context, doc document.Document) (string, error) {
	var parts []*genai.Part
	if doc.Kind.IsText() {
		parts = append(parts, genai.NewPartFromText(documentLeadIn+doc.Text))
	} else {
		raw, err := doc.Bytes()
		if err != nil {
			return "", err
		}
		parts = append(parts, genai.NewPartFromBytes(raw, doc.MIMEType()))
	}
	parts = append(parts, genai.NewPartFromText(analysisInstruction))

	resp, err := g.generate(ctx, "analyze", []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(systemInstructionBase),
	})
	if err != nil {
		return "", err
	}
	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return AnalysisFallback, nil
	}
	return text, nil
}

// SendChatMessage answers message given the prior turns. history must not
// contain message itself.
func (g *Gateway) SendChatMessage(ctx context.Context, history []models.ChatMessage, message string, topic models.Topic) (ChatReply, error) {
	if g.chat != nil {
		reply, err := g.chat.Chat(ctx, chatInstruction(agentSearchInstruction, topic), history, message)
		if err != nil {
			return ChatReply{}, err
		}
		if strings.TrimSpace(reply.Text) == "" {
			reply.Text = ChatFallback
		}
		return reply, nil
	}

	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		role := genai.RoleUser
		if m.Role == models.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, genai.Role(role)))
	}
	contents = append(contents, genai.NewContentFromText(message, genai.RoleUser))

	resp, err := g.generate(ctx, "chat", contents, &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(chatInstruction(searchInstruction, topic)),
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return ChatReply{}, err
	}
	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		text = ChatFallback
	}
	return ChatReply{Text: text, Sources: groundingSources(resp)}, nil
}

// groundingSources collects web citations from the first candidate, keeping
// the first occurrence of each URI.
func groundingSources(resp *genai.GenerateContentResponse) []models.Source {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return nil
	}
	var sources []models.Source
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		src := models.Source{Title: chunk.Web.Title, URI: chunk.Web.URI}
		if src.Title == "" {
			src.Title = defaultSourceTitle
		}
		if src.URI == "" {
			src.URI = defaultSourceURI
		}
		sources = append(sources, src)
	}
	return models.DedupeSources(sources)
}

var newsSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"date":    {Type: genai.TypeString, Description: "Date of the news/event (e.g. '15. okt')"},
			"title":   {Type: genai.TypeString, Description: "Headline of the legal update"},
			"tag":     {Type: genai.TypeString, Description: "Category: 'Lovgivning', 'Domstol', 'Overenskomst', 'EU' etc."},
			"summary": {Type: genai.TypeString, Description: "Very short summary (max 10 words)"},
		},
		Required: []string{"date", "title", "tag"},
	},
}

// FetchLegalNews returns recent Danish employment law news for the dashboard.
// An empty or unreadable answer yields an empty list.
func (g *Gateway) FetchLegalNews(ctx context.Context) ([]models.LegalNewsItem, error) {
	resp, err := g.generate(ctx, "news", genai.Text(newsPrompt), &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(newsInstruction),
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    newsSchema,
	})
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return []models.LegalNewsItem{}, nil
	}
	var items []models.LegalNewsItem
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		g.log.WithError(err).Warn("failed to parse legal news")
		return []models.LegalNewsItem{}, nil
	}
	out := make([]models.LegalNewsItem, 0, len(items))
	for _, it := range items {
		if it.Title == "" {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}
