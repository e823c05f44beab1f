package models

// RawConversation mirrors one entry of the chat platform export.
type RawConversation struct {
	ConversationID string       `json:"conversation_id"`
	Messages       []RawMessage `json:"messages"`
}

type RawMessage struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	IsInternal bool       `json:"is_internal"`
	SenderID   *string    `json:"sender_id"`
	Content    RawContent `json:"content"`
	CreatedAt  string     `json:"created_at"`
}

type RawContent struct {
	Text string `json:"text"`
}

const RawMessageTypeText = "TEXT"
