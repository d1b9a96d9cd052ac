package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"arbejdsret/internal/config"
	"arbejdsret/internal/models"
)

type chatModelFactory func(ctx context.Context, apiKey string) (model.ToolCallingChatModel, error)

// AgentChat answers chat turns through an eino react agent backed by an
// OpenAI or Claude chat model, with web_search as its tool.
type AgentChat struct {
	provider   string
	credential CredentialFunc
	newModel   chatModelFactory
	tools      []tool.BaseTool
	log        logrus.FieldLogger
}

// NewAgentChat builds a chat backend for provider. The API key is read from
// the provider's configured environment variable on every turn.
func NewAgentChat(ctx context.Context, provider string, pc config.ProviderConfig, log logrus.FieldLogger) (*AgentChat, error) {
	factory, err := chatModelFor(provider, pc)
	if err != nil {
		return nil, err
	}
	keyEnv := pc.APIKeyEnv
	a := &AgentChat{
		provider: provider,
		credential: func() (string, bool) {
			return config.Credential(keyEnv)
		},
		newModel: factory,
		log:      log,
	}
	if ws := InitWebSearch(ctx, log); ws != nil {
		a.tools = append(a.tools, ws)
	}
	return a, nil
}

func chatModelFor(provider string, pc config.ProviderConfig) (chatModelFactory, error) {
	switch provider {
	case "openai":
		return func(ctx context.Context, apiKey string) (model.ToolCallingChatModel, error) {
			return openai.NewChatModel(ctx, &openai.ChatModelConfig{
				BaseURL: pc.BaseURL,
				Model:   pc.Model,
				APIKey:  apiKey,
			})
		}, nil
	case "claude":
		var baseURLPtr *string
		if pc.BaseURL != "" {
			baseURL := pc.BaseURL
			baseURLPtr = &baseURL
		}
		return func(ctx context.Context, apiKey string) (model.ToolCallingChatModel, error) {
			return claude.NewChatModel(ctx, &claude.Config{
				APIKey:    apiKey,
				Model:     pc.Model,
				BaseURL:   baseURLPtr,
				MaxTokens: 3000,
			})
		}, nil
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
}

// Chat runs one turn. Sources are not reported; eino providers carry no
// grounding metadata.
func (a *AgentChat) Chat(ctx context.Context, instruction string, history []models.ChatMessage, message string) (ChatReply, error) {
	key, ok := a.credential()
	if !ok {
		a.log.WithField("provider", a.provider).Error("chat api key is missing from the environment")
		return ChatReply{}, ErrMissingCredential
	}
	chatModel, err := a.newModel(ctx, key)
	if err != nil {
		return ChatReply{}, fmt.Errorf("%w: init %s model: %w", ErrTransport, a.provider, err)
	}

	input := convertMessages(instruction, history, message)
	var out *schema.Message
	if len(a.tools) > 0 {
		agent, err := react.NewAgent(ctx, &react.AgentConfig{
			ToolCallingModel: chatModel,
			ToolsConfig: compose.ToolsNodeConfig{
				Tools: a.tools,
			},
		})
		if err != nil {
			return ChatReply{}, fmt.Errorf("init react agent: %w", err)
		}
		out, err = agent.Generate(ctx, input)
		if err != nil {
			return ChatReply{}, fmt.Errorf("%w: %s chat: %w", ErrTransport, a.provider, err)
		}
	} else {
		out, err = chatModel.Generate(ctx, input)
		if err != nil {
			return ChatReply{}, fmt.Errorf("%w: %s chat: %w", ErrTransport, a.provider, err)
		}
	}
	if out == nil {
		return ChatReply{}, nil
	}
	return ChatReply{Text: strings.TrimSpace(out.Content)}, nil
}

func convertMessages(instruction string, history []models.ChatMessage, message string) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+2)
	if instruction != "" {
		messages = append(messages, &schema.Message{Role: schema.System, Content: instruction})
	}
	for _, msg := range history {
		role := schema.User
		if msg.Role == models.RoleModel {
			role = schema.Assistant
		}
		messages = append(messages, &schema.Message{Role: role, Content: msg.Text})
	}
	return append(messages, &schema.Message{Role: schema.User, Content: message})
}
