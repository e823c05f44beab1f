package analyzer

import (
	"errors"
	"testing"

	"convanalyzer/internal/models"
)

func TestParseClassificationAccepts(t *testing.T) {
	fenced := "```json\n" + validReply + "\n```"
	bare := "```\n" + validReply + "\n```"
	for name, raw := range map[string]string{
		"plain":      validReply,
		"padded":     "\n  " + validReply + "  \n",
		"json fence": fenced,
		"bare fence": bare,
	} {
		t.Run(name, func(t *testing.T) {
			cls, err := ParseClassification(raw)
			if err != nil {
				t.Fatalf("ParseClassification: %v", err)
			}
			if cls.OverallSentiment != models.SentimentPositive || !cls.BotAnswered {
				t.Fatalf("unexpected classification %+v", cls)
			}
			if cls.ToImproveUnderstanding != nil || cls.ToImprovePerformance != nil {
				t.Fatalf("null notes should stay nil")
			}
		})
	}
}

func TestParseClassificationKeepsNotes(t *testing.T) {
	raw := `{"overall_sentiment":"negative","bot_understanding":"poor","bot_performance":"acceptable","bot_answered":false,` +
		`"categories":["Kına Gecesi","Diğer"],"to_improve_understanding":"Tarihi yanlış anladı.","to_improve_performance":"Daha fazla seçenek sunmalı."}`
	cls, err := ParseClassification(raw)
	if err != nil {
		t.Fatalf("ParseClassification: %v", err)
	}
	if cls.ToImproveUnderstanding == nil || *cls.ToImproveUnderstanding != "Tarihi yanlış anladı." {
		t.Fatalf("understanding note lost: %+v", cls)
	}
	if len(cls.Categories) != 2 || cls.Categories[1] != models.CategoryOther {
		t.Fatalf("categories mismatch: %v", cls.Categories)
	}
}

func TestParseClassificationRejects(t *testing.T) {
	cases := map[string]string{
		"empty":            "",
		"not json":         "I think the sentiment is positive.",
		"array":            `[1,2]`,
		"missing field":    `{"overall_sentiment":"positive","bot_understanding":"good","bot_performance":"good","bot_answered":true,"categories":["Pasta"],"to_improve_understanding":null}`,
		"null required":    `{"overall_sentiment":null,"bot_understanding":"good","bot_performance":"good","bot_answered":true,"categories":["Pasta"],"to_improve_understanding":null,"to_improve_performance":null}`,
		"bad sentiment":    `{"overall_sentiment":"ecstatic","bot_understanding":"good","bot_performance":"good","bot_answered":true,"categories":["Pasta"],"to_improve_understanding":null,"to_improve_performance":null}`,
		"bad quality":      `{"overall_sentiment":"neutral","bot_understanding":"great","bot_performance":"good","bot_answered":true,"categories":["Pasta"],"to_improve_understanding":null,"to_improve_performance":null}`,
		"unknown category": `{"overall_sentiment":"neutral","bot_understanding":"good","bot_performance":"good","bot_answered":true,"categories":["Araba Kiralama"],"to_improve_understanding":null,"to_improve_performance":null}`,
		"no categories":    `{"overall_sentiment":"neutral","bot_understanding":"good","bot_performance":"good","bot_answered":true,"categories":[],"to_improve_understanding":null,"to_improve_performance":null}`,
		"too many":         `{"overall_sentiment":"neutral","bot_understanding":"good","bot_performance":"good","bot_answered":true,"categories":["Pasta","Balayı","Diğer","Kına Gecesi"],"to_improve_understanding":null,"to_improve_performance":null}`,
		"answered string":  `{"overall_sentiment":"neutral","bot_understanding":"good","bot_performance":"good","bot_answered":"yes","categories":["Pasta"],"to_improve_understanding":null,"to_improve_performance":null}`,
		"extra field":      `{"overall_sentiment":"neutral","bot_understanding":"good","bot_performance":"good","bot_answered":true,"categories":["Pasta"],"to_improve_understanding":null,"to_improve_performance":null,"confidence":0.9}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseClassification(raw)
			if !errors.Is(err, ErrInvalidResponse) {
				t.Fatalf("expected ErrInvalidResponse, got %v", err)
			}
		})
	}
}
