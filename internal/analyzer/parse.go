package analyzer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"convanalyzer/internal/models"
)

// ErrInvalidResponse wraps every reason a model reply is rejected.
var ErrInvalidResponse = errors.New("invalid model response")

// RequiredFields lists the keys every reply must carry.
var RequiredFields = models.ClassificationFields

// ParseClassification decodes and validates one model reply.
func ParseClassification(raw string) (*models.Classification, error) {
	body := stripCodeFence(strings.TrimSpace(raw))
	if body == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrInvalidResponse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object: %v", ErrInvalidResponse, err)
	}
	for _, name := range RequiredFields {
		value, ok := fields[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrInvalidResponse, name)
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) && !models.NullableClassificationFields[name] {
			return nil, fmt.Errorf("%w: field %q is null", ErrInvalidResponse, name)
		}
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	var cls models.Classification
	if err := dec.Decode(&cls); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if err := cls.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return &cls, nil
}

// stripCodeFence removes a single surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		lang := strings.TrimSpace(inner[:nl])
		if lang == "" || !strings.ContainsAny(lang, "{[\"") {
			inner = inner[nl+1:]
		}
	}
	return strings.TrimSpace(inner)
}
