package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidClassification is returned when a classification violates the fixed schema.
var ErrInvalidClassification = errors.New("invalid classification")

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Sentiments lists the sentiment values in report order.
var Sentiments = []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative}

func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

func (s *Sentiment) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("sentiment: %w", err)
	}
	v := Sentiment(raw)
	if !v.Valid() {
		return fmt.Errorf("%w: unknown sentiment %q", ErrInvalidClassification, raw)
	}
	*s = v
	return nil
}

// Quality grades both bot understanding and bot performance.
type Quality string

const (
	QualityPoor       Quality = "poor"
	QualityAcceptable Quality = "acceptable"
	QualityGood       Quality = "good"
)

// Qualities lists the quality values in report order.
var Qualities = []Quality{QualityGood, QualityAcceptable, QualityPoor}

func (q Quality) Valid() bool {
	switch q {
	case QualityPoor, QualityAcceptable, QualityGood:
		return true
	}
	return false
}

func (q *Quality) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("quality: %w", err)
	}
	v := Quality(raw)
	if !v.Valid() {
		return fmt.Errorf("%w: unknown quality %q", ErrInvalidClassification, raw)
	}
	*q = v
	return nil
}

type Category string

const (
	CategoryVenues        Category = "Düğün Mekanları"
	CategoryOrganization  Category = "Düğün Organizasyon"
	CategoryHenna         Category = "Kına Gecesi"
	CategoryEngagement    Category = "Nişan ve Söz"
	CategoryGraduation    Category = "Mezuniyet ve Balo"
	CategoryBirthday      Category = "Doğum Günü & Baby Shower"
	CategoryPhotographers Category = "Düğün Fotoğrafçıları"
	CategoryCatering      Category = "Catering Firmaları"
	CategoryBridal        Category = "Gelinlik ve Moda Evleri"
	CategoryEveningWear   Category = "Abiye ve Damatlık"
	CategoryMusic         Category = "Orkestra & DJ"
	CategoryHairMakeup    Category = "Saç ve Makyaj"
	CategoryInvitations   Category = "Davetiye ve Hediyelikler"
	CategoryCake          Category = "Pasta"
	CategoryJewelry       Category = "Alyans ve Takı"
	CategoryHoneymoon     Category = "Balayı"
	CategoryOther         Category = "Diğer"
)

// Categories is the closed category taxonomy, in the order shown to the model.
var Categories = []Category{
	CategoryVenues, CategoryOrganization, CategoryHenna, CategoryEngagement,
	CategoryGraduation, CategoryBirthday, CategoryPhotographers, CategoryCatering,
	CategoryBridal, CategoryEveningWear, CategoryMusic, CategoryHairMakeup,
	CategoryInvitations, CategoryCake, CategoryJewelry, CategoryHoneymoon, CategoryOther,
}

var categorySet = func() map[Category]struct{} {
	set := make(map[Category]struct{}, len(Categories))
	for _, c := range Categories {
		set[c] = struct{}{}
	}
	return set
}()

func (c Category) Valid() bool {
	_, ok := categorySet[c]
	return ok
}

func (c *Category) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("category: %w", err)
	}
	v := Category(raw)
	if !v.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidClassification, raw)
	}
	*c = v
	return nil
}

const (
	MinCategories = 1
	MaxCategories = 3
)

// Classification is the fixed-shape judgment produced per conversation.
type Classification struct {
	OverallSentiment       Sentiment  `json:"overall_sentiment"`
	BotUnderstanding       Quality    `json:"bot_understanding"`
	BotPerformance         Quality    `json:"bot_performance"`
	BotAnswered            bool       `json:"bot_answered"`
	Categories             []Category `json:"categories"`
	ToImproveUnderstanding *string    `json:"to_improve_understanding"`
	ToImprovePerformance   *string    `json:"to_improve_performance"`
}

// ClassificationFields lists every JSON field a classification must carry.
var ClassificationFields = []string{
	"overall_sentiment",
	"bot_understanding",
	"bot_performance",
	"bot_answered",
	"categories",
	"to_improve_understanding",
	"to_improve_performance",
}

// NullableClassificationFields may be JSON null.
var NullableClassificationFields = map[string]bool{
	"to_improve_understanding": true,
	"to_improve_performance":   true,
}

// Validate checks enum membership and category cardinality.
func (c *Classification) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: missing classification", ErrInvalidClassification)
	}
	if !c.OverallSentiment.Valid() {
		return fmt.Errorf("%w: overall_sentiment %q", ErrInvalidClassification, c.OverallSentiment)
	}
	if !c.BotUnderstanding.Valid() {
		return fmt.Errorf("%w: bot_understanding %q", ErrInvalidClassification, c.BotUnderstanding)
	}
	if !c.BotPerformance.Valid() {
		return fmt.Errorf("%w: bot_performance %q", ErrInvalidClassification, c.BotPerformance)
	}
	if len(c.Categories) < MinCategories || len(c.Categories) > MaxCategories {
		return fmt.Errorf("%w: expected %d-%d categories, got %d", ErrInvalidClassification, MinCategories, MaxCategories, len(c.Categories))
	}
	seen := make(map[Category]struct{}, len(c.Categories))
	for _, cat := range c.Categories {
		if !cat.Valid() {
			return fmt.Errorf("%w: category %q", ErrInvalidClassification, cat)
		}
		if _, dup := seen[cat]; dup {
			return fmt.Errorf("%w: duplicate category %q", ErrInvalidClassification, cat)
		}
		seen[cat] = struct{}{}
	}
	return nil
}
