package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"convanalyzer/internal/prompt"
)

const claudeMaxTokens = 3000

// Completer is the only thing the batch pipeline knows about the model provider.
type Completer interface {
	Complete(ctx context.Context, p prompt.Prompt) (string, error)
}

// ProviderSettings selects and authenticates a hosted model.
type ProviderSettings struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
}

// chatModelFactory is swapped in tests.
var chatModelFactory = newChatModel

type chatCompleter struct {
	chatModel model.BaseChatModel
	provider  string
	model     string
}

// NewCompleter builds a provider-backed completer.
func NewCompleter(ctx context.Context, settings ProviderSettings) (Completer, error) {
	settings.Provider = strings.ToLower(strings.TrimSpace(settings.Provider))
	if strings.TrimSpace(settings.APIKey) == "" {
		return nil, fmt.Errorf("%w for provider %s", ErrMissingAPIKey, settings.Provider)
	}
	chatModel, err := chatModelFactory(ctx, settings)
	if err != nil {
		return nil, err
	}
	return &chatCompleter{
		chatModel: chatModel,
		provider:  settings.Provider,
		model:     settings.Model,
	}, nil
}

func newChatModel(ctx context.Context, s ProviderSettings) (model.BaseChatModel, error) {
	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch s.Provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: s.BaseURL,
			Model:   s.Model,
			APIKey:  s.APIKey,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: s.APIKey,
		})
		if cerr != nil {
			return nil, fmt.Errorf("create gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  s.Model,
		})
	case "claude":
		var baseURLPtr *string
		if s.BaseURL != "" {
			baseURLPtr = &s.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    s.APIKey,
			Model:     s.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: claudeMaxTokens,
		})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, s.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", s.Provider, err)
	}
	return chatModel, nil
}

// Complete sends the system/user pair and returns the raw reply text.
func (c *chatCompleter) Complete(ctx context.Context, p prompt.Prompt) (string, error) {
	messages := []*schema.Message{
		{
			Role:    schema.System,
			Content: p.System,
		},
		{
			Role:    schema.User,
			Content: p.User,
		},
	}
	resp, err := c.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", wrapProviderError(c.provider, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Content), nil
}
