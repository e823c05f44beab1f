package evaluate

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"convanalyzer/internal/analyzer"
	"convanalyzer/internal/models"
)

// Agreement counts how often the model matched ground truth on one field.
type Agreement struct {
	Field    string
	Agree    int
	Compared int
	Percent  decimal.Decimal
}

// Confusion is indexed as Counts[truth][predicted].
type Confusion struct {
	Field  string
	Labels []string
	Counts map[string]map[string]int
}

func newConfusion(field string, labels []string) *Confusion {
	c := &Confusion{Field: field, Labels: labels, Counts: make(map[string]map[string]int, len(labels))}
	for _, l := range labels {
		c.Counts[l] = make(map[string]int, len(labels))
	}
	return c
}

func (c *Confusion) add(truth, predicted string) {
	row, ok := c.Counts[truth]
	if !ok {
		row = make(map[string]int)
		c.Counts[truth] = row
	}
	row[predicted]++
}

type Report struct {
	// Compared counts conversations with both a classification and a label.
	Compared     int
	MissingLabel int
	Failed       int
	Fields       []Agreement
	CategorySet  Agreement
	MeanJaccard  decimal.Decimal
	Confusions   []Confusion
}

// Compare scores model results against ground truth. When a conversation
// appears more than once in results the last entry wins.
func Compare(results []models.Result, labels map[string]models.Label) Report {
	latest := make(map[string]models.Result, len(results))
	order := make([]string, 0, len(results))
	for _, r := range results {
		if _, seen := latest[r.ConversationID]; !seen {
			order = append(order, r.ConversationID)
		}
		latest[r.ConversationID] = r
	}

	sentiment := newConfusion("overall_sentiment", sentimentLabels())
	understanding := newConfusion("bot_understanding", qualityLabels())
	performance := newConfusion("bot_performance", qualityLabels())
	answered := newConfusion("bot_answered", []string{"true", "false"})

	var (
		rep                                      Report
		agreeSent, agreeUnd, agreePerf, agreeAns int
		exactCats                                int
	)
	jaccardSum := decimal.Zero
	for _, id := range order {
		r := latest[id]
		if r.Failed() {
			rep.Failed++
			continue
		}
		label, ok := labels[id]
		if !ok {
			rep.MissingLabel++
			continue
		}
		rep.Compared++
		got, want := r.Classification, label.GroundTruth

		sentiment.add(string(want.OverallSentiment), string(got.OverallSentiment))
		understanding.add(string(want.BotUnderstanding), string(got.BotUnderstanding))
		performance.add(string(want.BotPerformance), string(got.BotPerformance))
		answered.add(fmt.Sprint(want.BotAnswered), fmt.Sprint(got.BotAnswered))

		if got.OverallSentiment == want.OverallSentiment {
			agreeSent++
		}
		if got.BotUnderstanding == want.BotUnderstanding {
			agreeUnd++
		}
		if got.BotPerformance == want.BotPerformance {
			agreePerf++
		}
		if got.BotAnswered == want.BotAnswered {
			agreeAns++
		}
		j := Jaccard(got.Categories, want.Categories)
		if j.Equal(decimal.NewFromInt(1)) {
			exactCats++
		}
		jaccardSum = jaccardSum.Add(j)
	}

	rep.Fields = []Agreement{
		agreement("overall_sentiment", agreeSent, rep.Compared),
		agreement("bot_understanding", agreeUnd, rep.Compared),
		agreement("bot_performance", agreePerf, rep.Compared),
		agreement("bot_answered", agreeAns, rep.Compared),
	}
	rep.CategorySet = agreement("categories (exact set)", exactCats, rep.Compared)
	if rep.Compared > 0 {
		rep.MeanJaccard = jaccardSum.Div(decimal.NewFromInt(int64(rep.Compared))).Round(3)
	}
	rep.Confusions = []Confusion{*sentiment, *understanding, *performance, *answered}
	return rep
}

func agreement(field string, agree, compared int) Agreement {
	return Agreement{Field: field, Agree: agree, Compared: compared, Percent: analyzer.Percent(agree, compared)}
}

// Jaccard is |a∩b| / |a∪b| over category sets; two empty sets score 1.
func Jaccard(a, b []models.Category) decimal.Decimal {
	set := make(map[models.Category]int, len(a)+len(b))
	for _, c := range a {
		set[c] |= 1
	}
	for _, c := range b {
		set[c] |= 2
	}
	if len(set) == 0 {
		return decimal.NewFromInt(1)
	}
	inter := 0
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	return decimal.NewFromInt(int64(inter)).Div(decimal.NewFromInt(int64(len(set))))
}

func sentimentLabels() []string {
	out := make([]string, 0, len(models.Sentiments))
	for _, s := range models.Sentiments {
		out = append(out, string(s))
	}
	return out
}

func qualityLabels() []string {
	out := make([]string, 0, len(models.Qualities))
	for _, q := range models.Qualities {
		out = append(out, string(q))
	}
	return out
}

func (r Report) Render(w io.Writer) error {
	var b strings.Builder
	b.WriteString("=== Evaluation against ground truth ===\n")
	fmt.Fprintf(&b, "Compared: %d  Missing label: %d  Failed results: %d\n", r.Compared, r.MissingLabel, r.Failed)
	if r.Compared == 0 {
		b.WriteString("Nothing to compare.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	b.WriteString("\nAgreement:\n")
	for _, a := range append(r.Fields, r.CategorySet) {
		fmt.Fprintf(&b, "  %-24s %d/%d (%s%%)\n", a.Field, a.Agree, a.Compared, a.Percent.StringFixed(1))
	}
	fmt.Fprintf(&b, "  %-24s %s\n", "categories (jaccard)", r.MeanJaccard.StringFixed(3))

	for _, c := range r.Confusions {
		fmt.Fprintf(&b, "\nConfusion %s (rows: truth, cols: model):\n", c.Field)
		fmt.Fprintf(&b, "  %-12s", "")
		for _, l := range c.Labels {
			fmt.Fprintf(&b, "%12s", l)
		}
		b.WriteString("\n")
		for _, truth := range c.Labels {
			fmt.Fprintf(&b, "  %-12s", truth)
			for _, pred := range c.Labels {
				fmt.Fprintf(&b, "%12d", c.Counts[truth][pred])
			}
			b.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
