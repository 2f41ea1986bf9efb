package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// AnthropicConfig configures the Anthropic chat model.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// AnthropicChatModel is an eino chat model backed by the Messages API.
type AnthropicChatModel struct {
	client anthropic.Client
	config AnthropicConfig
}

var _ model.BaseChatModel = (*AnthropicChatModel)(nil)

// NewAnthropicChatModel creates a chat model.
func NewAnthropicChatModel(cfg AnthropicConfig) (*AnthropicChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0))
	return &AnthropicChatModel{client: client, config: cfg}, nil
}

// Generate returns a single completion.
func (m *AnthropicChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	resp, err := m.client.Messages.New(ctx, m.buildParams(input, opts))
	if err != nil {
		return nil, fmt.Errorf("anthropic generate: %w", err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(b.Text)
		}
	}
	return schema.AssistantMessage(text.String(), nil), nil
}

// Stream returns text deltas as they arrive.
func (m *AnthropicChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	stream := m.client.Messages.NewStreaming(ctx, m.buildParams(input, opts))

	sr, sw := schema.Pipe[*schema.Message](8)
	go func() {
		defer sw.Close()
		defer func() { _ = stream.Close() }()
		for stream.Next() {
			ev, ok := stream.Current().AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			if closed := sw.Send(schema.AssistantMessage(delta.Text, nil), nil); closed {
				return
			}
		}
		if err := stream.Err(); err != nil {
			sw.Send(nil, fmt.Errorf("anthropic stream: %w", err))
		}
	}()
	return sr, nil
}

func (m *AnthropicChatModel) buildParams(input []*schema.Message, opts []model.Option) anthropic.MessageNewParams {
	co := resolveOptions(m.config.Model, m.config.MaxTokens, opts)
	system, turns := splitSystem(input)

	msgs := make([]anthropic.MessageParam, 0, len(turns))
	for _, msg := range turns {
		if msg.Role == schema.Assistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(co.model),
		MaxTokens: int64(co.maxTokens),
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if co.temperature != nil {
		params.Temperature = anthropic.Float(float64(*co.temperature))
	}
	if len(co.stop) > 0 {
		params.StopSequences = co.stop
	}
	if co.hint != "" {
		params.Metadata = anthropic.MetadataParam{UserID: anthropic.String(co.hint)}
	}
	return params
}
