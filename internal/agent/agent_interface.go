package agent

import (
	"context"

	"github.com/mohamadbazzy/Agentic-Rag/internal/advisor"
)

// Processor answers advising turns.
// This interface is implemented by the advisor service.
type Processor interface {
	// Process answers text within the conversation identified by sessionID.
	Process(ctx context.Context, text, sessionID string) (*advisor.Result, error)

	// ResetSession forgets the history of a conversation.
	ResetSession(ctx context.Context, sessionID string) error

	// Close releases resources
	Close()
}

// Ensure the advisor service implements Processor.
var _ Processor = (*advisor.Service)(nil)
