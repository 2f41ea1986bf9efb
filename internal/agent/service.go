package agent

import (
	"context"
	"iter"
	"strings"

	"github.com/mohamadbazzy/Agentic-Rag/internal/advisor"
	"github.com/mohamadbazzy/Agentic-Rag/internal/identity"
)

// Service provides advising chat on top of a Processor.
type Service struct {
	processor Processor
	cfg       Config
}

// NewServiceWithProcessor creates a new agent service with a custom processor.
func NewServiceWithProcessor(processor Processor, cfg Config) *Service {
	if cfg.ChunkWords <= 0 {
		cfg.ChunkWords = DefaultConfig().ChunkWords
	}
	return &Service{processor: processor, cfg: cfg}
}

// ConversationKey scopes a client session id to its user so that two
// devices picking the same session id never share history.
func ConversationKey(userID, sessionID string) string {
	if userID == "" {
		return sessionID
	}
	if sessionID == "" {
		return userID
	}
	return userID + ":" + sessionID
}

// ClientSession recovers the client session id from a conversation key.
func ClientSession(userID, key string) string {
	if userID == "" {
		return key
	}
	if sid, ok := strings.CutPrefix(key, userID+":"); ok {
		return sid
	}
	return identity.DefaultSessionIDValue
}

// Ask runs one turn and returns the complete result.
func (s *Service) Ask(ctx context.Context, req ChatRequest) (*advisor.Result, error) {
	return s.processor.Process(ctx, req.Message, ConversationKey(req.UserID, req.SessionID))
}

// Chat runs one turn and yields the answer in word chunks followed by a
// final chunk carrying the turn metadata.
func (s *Service) Chat(ctx context.Context, req ChatRequest) iter.Seq2[*ChatResponse, error] {
	return func(yield func(*ChatResponse, error) bool) {
		res, err := s.Ask(ctx, req)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, chunk := range splitChunks(res.Content, s.cfg.ChunkWords) {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}
			if !yield(&ChatResponse{Response: chunk}, nil) {
				return
			}
		}
		yield(finalChunk(res), nil)
	}
}

func finalChunk(res *advisor.Result) *ChatResponse {
	return &ChatResponse{
		Done:              true,
		Department:        res.Department,
		Track:             res.Track,
		QueryType:         res.QueryType,
		Status:            res.Status,
		Schedule:          res.Schedule,
		ScheduleConflicts: res.ScheduleConflicts,
		Sources:           sourcesOf(res.Context),
	}
}

// ResetSession clears the history of one tab session.
func (s *Service) ResetSession(ctx context.Context, userID, sessionID string) error {
	return s.processor.ResetSession(ctx, ConversationKey(userID, sessionID))
}

// Close releases resources.
func (s *Service) Close() {
	if s.processor != nil {
		s.processor.Close()
	}
}

// splitChunks groups words into chunks of n words. Whitespace between
// chunks is kept so that concatenating the chunks restores the text.
func splitChunks(text string, n int) []string {
	if text == "" {
		return nil
	}
	var (
		out    []string
		start  int
		words  int
		inWord bool
	)
	for i, r := range text {
		space := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		if !space && !inWord {
			if words == n {
				out = append(out, text[start:i])
				start = i
				words = 0
			}
			words++
		}
		inWord = !space
	}
	out = append(out, text[start:])
	return out
}
