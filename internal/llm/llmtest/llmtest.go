// Package llmtest provides deterministic chat model and embedder fakes.
package llmtest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModel answers with the text returned by Reply.
type ChatModel struct {
	Reply func(msgs []*schema.Message) (string, error)

	mu     sync.Mutex
	inputs [][]*schema.Message
}

var _ model.BaseChatModel = (*ChatModel)(nil)

// Generate records the input and returns Reply's answer.
func (m *ChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, input)
	m.mu.Unlock()

	text, err := m.Reply(input)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(text, nil), nil
}

// Stream returns the whole answer as a single chunk.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Calls returns the number of Generate calls so far.
func (m *ChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// Inputs returns the recorded inputs.
func (m *ChatModel) Inputs() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]*schema.Message, len(m.inputs))
	copy(out, m.inputs)
	return out
}

// SystemPrompt returns the first system message content in msgs.
func SystemPrompt(msgs []*schema.Message) string {
	for _, m := range msgs {
		if m.Role == schema.System {
			return m.Content
		}
	}
	return ""
}

// LastUser returns the content of the last user message in msgs.
func LastUser(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == schema.User {
			return msgs[i].Content
		}
	}
	return ""
}

// HashEmbedder is a bag-of-words embedder: each lower-cased token is hashed
// into one of Dim buckets. Texts sharing words are similar.
type HashEmbedder struct {
	Dim int

	mu    sync.Mutex
	calls int
}

var _ embedding.Embedder = (*HashEmbedder)(nil)

// EmbedStrings embeds each text.
func (e *HashEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	dim := e.Dim
	if dim <= 0 {
		dim = 64
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v := make([]float64, dim)
		for _, tok := range strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			v[h.Sum32()%uint32(dim)]++
		}
		out[i] = v
	}
	return out, nil
}

// Calls returns the number of EmbedStrings calls so far.
func (e *HashEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
