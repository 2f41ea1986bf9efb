// Package llm adapts hosted chat and embedding APIs to eino component interfaces.
package llm

import (
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Options are implementation-specific chat options shared by every provider.
type Options struct {
	// SessionHint identifies the end user to the provider for abuse
	// monitoring. Providers without such a field ignore it.
	SessionHint string
}

// WithSessionHint passes an opaque per-session id to the provider.
func WithSessionHint(id string) model.Option {
	return model.WrapImplSpecificOptFn(func(o *Options) {
		o.SessionHint = id
	})
}

type callOptions struct {
	model       string
	maxTokens   int
	temperature *float32
	stop        []string
	hint        string
}

func resolveOptions(defaultModel string, defaultMaxTokens int, opts []model.Option) callOptions {
	common := model.GetCommonOptions(&model.Options{
		Model:     &defaultModel,
		MaxTokens: &defaultMaxTokens,
	}, opts...)
	impl := model.GetImplSpecificOptions(&Options{}, opts...)

	co := callOptions{temperature: common.Temperature, stop: common.Stop, hint: impl.SessionHint}
	if common.Model != nil {
		co.model = *common.Model
	}
	if common.MaxTokens != nil {
		co.maxTokens = *common.MaxTokens
	}
	return co
}

// splitSystem separates system instructions from the conversation turns.
func splitSystem(msgs []*schema.Message) (system string, turns []*schema.Message) {
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Role == schema.System {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}

func singleChunk(msg *schema.Message) *schema.StreamReader[*schema.Message] {
	return schema.StreamReaderFromArray([]*schema.Message{msg})
}
