package models

// Message is one line of a cleaned conversation transcript.
type Message struct {
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	Internal  bool   `json:"is_internal,omitempty"`
}

// Metadata describes a conversation without its messages.
type Metadata struct {
	ConversationID string `json:"conversation_id"`
	StartTimeUTC   string `json:"start_time_utc"`
	TotalMessages  int    `json:"total_messages"`
}

// Conversation is the record consumed by the analysis pipeline and the labeling server.
type Conversation struct {
	Metadata           Metadata  `json:"metadata"`
	TranscriptFullText string    `json:"transcript_full_text"`
	Messages           []Message `json:"transcript_list_of_messages"`
}

func (c *Conversation) ID() string {
	return c.Metadata.ConversationID
}

// VisibleMessages returns the customer-facing messages in their original order.
func (c *Conversation) VisibleMessages() []Message {
	visible := make([]Message, 0, len(c.Messages))
	for _, msg := range c.Messages {
		if msg.Internal {
			continue
		}
		visible = append(visible, msg)
	}
	return visible
}

const (
	SenderBot  = "Bot"
	SenderUser = "User"
)
