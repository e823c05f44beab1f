package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"convanalyzer/internal/models"
)

// Prompt is the system/user message pair sent for one conversation.
type Prompt struct {
	System string
	User   string
}

const userPreamble = "Analyze the following conversation transcript:\n\n"

// Build renders the classification prompt for a conversation.
// Internal messages are left out of the transcript.
func Build(conv *models.Conversation) Prompt {
	return Prompt{
		System: SystemPrompt,
		User:   userPreamble + Transcript(conv),
	}
}

// Transcript joins "Sender: text" lines with a blank line between messages.
func Transcript(conv *models.Conversation) string {
	if conv == nil {
		return ""
	}
	visible := conv.VisibleMessages()
	lines := make([]string, 0, len(visible))
	for _, msg := range visible {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Sender, msg.Text))
	}
	return strings.Join(lines, "\n\n")
}

// Fingerprint is a stable cache key for a model/prompt pair.
func Fingerprint(model string, p Prompt) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(p.System))
	h.Write([]byte{0})
	h.Write([]byte(p.User))
	return hex.EncodeToString(h.Sum(nil))
}

func categoryList() string {
	quoted := make([]string, 0, len(models.Categories))
	for _, c := range models.Categories {
		quoted = append(quoted, fmt.Sprintf("%q", string(c)))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// SystemPrompt carries the analyst instructions and the JSON contract.
var SystemPrompt = `You are an expert conversation analyst for a marriage/wedding organization firm.

Analyze the following customer conversation transcript and return a JSON object with your analysis.

**Analysis Guidelines:**

1. **overall_sentiment**: Determine the user's overall sentiment throughout the conversation:
   - "positive": User is satisfied, engaged, and shows positive emotions
   - "neutral": User is matter-of-fact, neither clearly positive nor negative
   - "negative": User is frustrated, dissatisfied, or shows negative emotions
   Note: If a user leaves the chat abruptly without getting their intended result, this may indicate negative sentiment.

2. **bot_understanding**: Evaluate how well the bot understood what the user is asking, not how well it addressed the request.
   - "good": The bot understood the user's request/intent
   - "acceptable": The bot understood the basic request but missed some nuances or details
   - "poor": The bot fundamentally misunderstood the user's intent

3. **bot_performance**: Evaluate how well the bot performed in finding reasonable options for a reasonable request.
   Consider that the user may be making an unreasonable request (for example a very low budget per attendee); in that case
   failing to find options is not necessarily a performance issue. This consideration must not affect the sentiment judgment.
   - "good": The bot found highly relevant and suitable options
   - "acceptable": The bot found some relevant options but could have done better
   - "poor": The bot failed to find reasonable options or provided irrelevant results

4. **bot_answered**: true if the bot gave the user a substantive answer to their request, false if the user was left without one.

5. **categories**: Select 1-3 most relevant categories from the predefined list. If no category fits well, use ["Diğer"].

6. **to_improve_understanding**: A concise 1-2 sentence explanation of understanding issues:
   - If bot_understanding is "good": null
   - Otherwise: explain what the bot misunderstood. Give the explanation in Turkish.

7. **to_improve_performance**: A concise 1-2 sentence explanation of performance issues:
   - If bot_performance is "good": null
   - Otherwise: explain how the bot's performance could be improved. Give the explanation in Turkish.

**Predefined Categories:**
` + categoryList() + `

Note: The bot may ask a few questions at the beginning without a visible response from the user. Those questions are
generally answered even if not reflected in the transcript, and the bot has that context for the rest of the conversation.

Respond with a single JSON object containing exactly these keys: ` + strings.Join(models.ClassificationFields, ", ") + `.
`
