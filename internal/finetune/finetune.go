package finetune

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"convanalyzer/internal/models"
	"convanalyzer/internal/prompt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// RequiredAssistantFields must be present in every assistant reply.
var RequiredAssistantFields = []string{"overall_sentiment", "bot_understanding", "bot_performance", "bot_answered"}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Example is one JSONL line in the chat fine-tuning format.
type Example struct {
	Messages []Message `json:"messages"`
}

type BuildStats struct {
	Written   int
	Unlabeled int
}

// Build writes one example per labeled conversation, in conversation order.
func Build(w io.Writer, convs []models.Conversation, labels map[string]models.Label) (BuildStats, error) {
	var stats BuildStats
	bw := bufio.NewWriter(w)
	for i := range convs {
		conv := &convs[i]
		label, ok := labels[conv.ID()]
		if !ok {
			stats.Unlabeled++
			continue
		}
		answer, err := json.Marshal(label.GroundTruth)
		if err != nil {
			return stats, fmt.Errorf("encode ground truth for %s: %w", conv.ID(), err)
		}
		p := prompt.Build(conv)
		line, err := json.Marshal(Example{Messages: []Message{
			{Role: RoleSystem, Content: p.System},
			{Role: RoleUser, Content: p.User},
			{Role: RoleAssistant, Content: string(answer)},
		}})
		if err != nil {
			return stats, fmt.Errorf("encode example for %s: %w", conv.ID(), err)
		}
		if _, err := bw.Write(append(line, '\n')); err != nil {
			return stats, fmt.Errorf("write example: %w", err)
		}
		stats.Written++
	}
	if err := bw.Flush(); err != nil {
		return stats, fmt.Errorf("flush examples: %w", err)
	}
	return stats, nil
}

type Issue struct {
	Line   int
	Reason string
}

type Report struct {
	Total  int
	Valid  int
	Issues []Issue
}

func (r Report) OK() bool {
	return r.Total > 0 && r.Valid == r.Total
}

// Validate checks every line of a fine-tuning file. Only read errors are returned;
// format problems are collected in the report.
func Validate(r io.Reader) (Report, error) {
	var rep Report
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		rep.Total++
		if reason := checkLine(scanner.Text()); reason != "" {
			rep.Issues = append(rep.Issues, Issue{Line: rep.Total, Reason: reason})
			continue
		}
		rep.Valid++
	}
	if err := scanner.Err(); err != nil {
		return rep, fmt.Errorf("read fine-tuning data: %w", err)
	}
	return rep, nil
}

func checkLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return "empty line"
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return fmt.Sprintf("invalid JSON: %v", err)
	}
	rawMessages, ok := obj["messages"]
	if !ok {
		return `missing "messages" field`
	}
	var messages []map[string]any
	if err := json.Unmarshal(rawMessages, &messages); err != nil {
		return `"messages" is not a list of objects`
	}
	if len(messages) != 3 {
		return fmt.Sprintf("expected 3 messages, got %d", len(messages))
	}
	want := []string{RoleSystem, RoleUser, RoleAssistant}
	roles := make([]string, len(messages))
	for i, m := range messages {
		roles[i], _ = m["role"].(string)
	}
	for i := range want {
		if roles[i] != want[i] {
			return fmt.Sprintf("expected roles %v, got %v", want, roles)
		}
	}
	content, _ := messages[2]["content"].(string)
	if content == "" {
		return "assistant message missing content"
	}
	var answer map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &answer); err != nil {
		return "assistant content is not valid JSON"
	}
	var missing []string
	for _, f := range RequiredAssistantFields {
		if _, ok := answer[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Sprintf("missing fields in assistant response: %v", missing)
	}
	return ""
}

func (r Report) Render(w io.Writer) error {
	var b strings.Builder
	for _, issue := range r.Issues {
		fmt.Fprintf(&b, "line %d: %s\n", issue.Line, issue.Reason)
	}
	fmt.Fprintf(&b, "%d/%d lines are valid\n", r.Valid, r.Total)
	if r.OK() {
		b.WriteString("file is ready for fine-tuning upload\n")
	} else {
		b.WriteString("file needs fixing before upload\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
