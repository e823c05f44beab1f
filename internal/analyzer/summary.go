package analyzer

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"convanalyzer/internal/models"
)

const topCategoryCount = 5

var hundred = decimal.NewFromInt(100)

// Count is one row of a distribution.
type Count struct {
	Label   string
	Count   int
	Percent decimal.Decimal
}

// Summary holds the distributions printed after a run.
type Summary struct {
	Total         int
	Succeeded     int
	Failed        int
	Sentiment     []Count
	Understanding []Count
	Performance   []Count
	Answered      Count
	// TopCategories percentages are shares of CategoryMentions, not of conversations.
	TopCategories    []Count
	CategoryMentions int
}

// Percent returns part/whole*100 rounded to one decimal place.
func Percent(part, whole int) decimal.Decimal {
	if whole <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).Mul(hundred).Div(decimal.NewFromInt(int64(whole))).Round(1)
}

func Summarize(results []models.Result) Summary {
	s := Summary{Total: len(results)}
	sentiments := map[models.Sentiment]int{}
	understanding := map[models.Quality]int{}
	performance := map[models.Quality]int{}
	categories := map[models.Category]int{}
	answered := 0

	for i := range results {
		r := &results[i]
		if r.Failed() {
			s.Failed++
			continue
		}
		s.Succeeded++
		cls := r.Classification
		sentiments[cls.OverallSentiment]++
		understanding[cls.BotUnderstanding]++
		performance[cls.BotPerformance]++
		if cls.BotAnswered {
			answered++
		}
		for _, c := range cls.Categories {
			categories[c]++
			s.CategoryMentions++
		}
	}

	for _, v := range models.Sentiments {
		s.Sentiment = append(s.Sentiment, Count{Label: string(v), Count: sentiments[v], Percent: Percent(sentiments[v], s.Succeeded)})
	}
	for _, v := range models.Qualities {
		s.Understanding = append(s.Understanding, Count{Label: string(v), Count: understanding[v], Percent: Percent(understanding[v], s.Succeeded)})
		s.Performance = append(s.Performance, Count{Label: string(v), Count: performance[v], Percent: Percent(performance[v], s.Succeeded)})
	}
	s.Answered = Count{Label: "answered", Count: answered, Percent: Percent(answered, s.Succeeded)}

	for c, n := range categories {
		s.TopCategories = append(s.TopCategories, Count{Label: string(c), Count: n, Percent: Percent(n, s.CategoryMentions)})
	}
	sort.Slice(s.TopCategories, func(i, j int) bool {
		if s.TopCategories[i].Count != s.TopCategories[j].Count {
			return s.TopCategories[i].Count > s.TopCategories[j].Count
		}
		return s.TopCategories[i].Label < s.TopCategories[j].Label
	})
	if len(s.TopCategories) > topCategoryCount {
		s.TopCategories = s.TopCategories[:topCategoryCount]
	}
	return s
}

func (s Summary) Render(w io.Writer) error {
	var b strings.Builder
	b.WriteString("=== Summary Statistics ===\n")
	fmt.Fprintf(&b, "Conversations: %d (analyzed %d, failed %d)\n", s.Total, s.Succeeded, s.Failed)
	if s.Succeeded == 0 {
		b.WriteString("No successful classifications.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}
	writeSection(&b, "Sentiment distribution", s.Sentiment)
	writeSection(&b, "Bot understanding distribution", s.Understanding)
	writeSection(&b, "Bot performance distribution", s.Performance)
	fmt.Fprintf(&b, "\nBot answered: %d (%s%%)\n", s.Answered.Count, s.Answered.Percent.StringFixed(1))
	writeSection(&b, "Top categories", s.TopCategories)
	_, err := io.WriteString(w, b.String())
	return err
}

func writeSection(b *strings.Builder, title string, rows []Count) {
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, row := range rows {
		fmt.Fprintf(b, "  %s: %d (%s%%)\n", row.Label, row.Count, row.Percent.StringFixed(1))
	}
}
