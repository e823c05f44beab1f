package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	labelerContextKey = "auth_labeler"
	labelerHeader     = "X-Labeler"
)

// Middleware validates bearer tokens and stores the labeler name in the context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.Enabled() {
			authToken := s.extractToken(c)
			if authToken == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
				return
			}
			if err := s.ValidateToken(authToken); err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
		}
		labeler := strings.TrimSpace(c.GetHeader(labelerHeader))
		if labeler == "" {
			labeler = s.labeledBy
		}
		c.Set(labelerContextKey, labeler)
		c.Next()
	}
}

// LabelerFromContext returns the name recorded on labels saved by this request.
func LabelerFromContext(c *gin.Context) string {
	val, ok := c.Get(labelerContextKey)
	if !ok {
		return ""
	}
	labeler, _ := val.(string)
	return labeler
}

func (s *Service) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
