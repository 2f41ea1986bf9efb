package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConversationSession stores persisted advising history for one session key.
type ConversationSession struct {
	SessionID    string
	UserID       string
	Department   string
	Track        string
	QueryType    string
	MessagesJSON string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StoredMessage is a serialized chat message entry.
type StoredMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Messages decodes the persisted message list. An empty payload yields nil.
func (s *ConversationSession) Messages() ([]StoredMessage, error) {
	if s == nil || s.MessagesJSON == "" {
		return nil, nil
	}
	var msgs []StoredMessage
	if err := json.Unmarshal([]byte(s.MessagesJSON), &msgs); err != nil {
		return nil, fmt.Errorf("decode session %s messages: %w", s.SessionID, err)
	}
	return msgs, nil
}

// SetMessages encodes msgs into MessagesJSON.
func (s *ConversationSession) SetMessages(msgs []StoredMessage) error {
	if msgs == nil {
		msgs = []StoredMessage{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode session %s messages: %w", s.SessionID, err)
	}
	s.MessagesJSON = string(data)
	return nil
}
