package preprocess

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"convanalyzer/internal/logging"
	"convanalyzer/internal/models"
)

const DefaultBotSenderID = "bf17272dc3f0"

type Options struct {
	BotSenderID string
	// MaxConversations caps the number of kept conversations; 0 keeps all.
	MaxConversations int
	Logger           *logging.Logger
}

type Stats struct {
	Read    int
	Kept    int
	Dropped int
}

// LoadRaw reads the chat platform export.
func LoadRaw(path string) ([]models.RawConversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read raw export %s: %w", path, err)
	}
	var raws []models.RawConversation
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode raw export %s: %w", path, err)
	}
	return raws, nil
}

// Run cleans raw conversations in order until MaxConversations are kept.
func Run(raws []models.RawConversation, opts Options) ([]models.Conversation, Stats) {
	if opts.BotSenderID == "" {
		opts.BotSenderID = DefaultBotSenderID
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	var stats Stats
	out := make([]models.Conversation, 0)
	for i := range raws {
		if opts.MaxConversations > 0 && stats.Kept >= opts.MaxConversations {
			break
		}
		stats.Read++
		conv, ok := Convert(raws[i], opts.BotSenderID)
		if ok {
			out = append(out, conv)
			stats.Kept++
		} else {
			stats.Dropped++
		}
		if stats.Read%10 == 0 {
			log.Debugw("preprocess progress", "read", stats.Read, "kept", stats.Kept)
		}
	}
	return out, stats
}

// Convert keeps visible text messages and labels senders as Bot or User.
// It reports false when nothing is left.
func Convert(raw models.RawConversation, botSenderID string) (models.Conversation, bool) {
	messages := make([]models.Message, 0, len(raw.Messages))
	for _, msg := range raw.Messages {
		if msg.Type != models.RawMessageTypeText || msg.IsInternal || msg.SenderID == nil {
			continue
		}
		text := CleanText(msg.Content.Text)
		if text == "" {
			continue
		}
		sender := models.SenderUser
		if *msg.SenderID == botSenderID {
			sender = models.SenderBot
		}
		messages = append(messages, models.Message{
			MessageID: msg.ID,
			Sender:    sender,
			Text:      text,
			Timestamp: msg.CreatedAt,
		})
	}
	if len(messages) == 0 {
		return models.Conversation{}, false
	}

	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, m.Sender+": "+m.Text)
	}
	return models.Conversation{
		Metadata: models.Metadata{
			ConversationID: raw.ConversationID,
			StartTimeUTC:   messages[0].Timestamp,
			TotalMessages:  len(messages),
		},
		TranscriptFullText: strings.Join(lines, "\n"),
		Messages:           messages,
	}, true
}
