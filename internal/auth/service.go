package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var ErrInvalidToken = errors.New("invalid token")

// Service guards the labeling API with a single shared bearer token.
type Service struct {
	token      string
	headerName string
	labeledBy  string
}

// NewService builds a guard for token. An empty token disables authentication.
func NewService(token, labeledBy string) *Service {
	return &Service{
		token:      strings.TrimSpace(token),
		headerName: "Authorization",
		labeledBy:  strings.TrimSpace(labeledBy),
	}
}

func (s *Service) Enabled() bool {
	return s != nil && s.token != ""
}

// ValidateToken compares candidate against the configured token in constant time.
func (s *Service) ValidateToken(candidate string) error {
	if !s.Enabled() {
		return nil
	}
	if candidate == "" || subtle.ConstantTimeCompare([]byte(candidate), []byte(s.token)) != 1 {
		return ErrInvalidToken
	}
	return nil
}
