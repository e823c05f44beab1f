package api

import (
	_ "embed"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"convanalyzer/internal/auth"
	"convanalyzer/internal/logging"
	"convanalyzer/internal/models"
	"convanalyzer/internal/service/labels"
	"convanalyzer/internal/service/runs"
)

//go:embed static/index.html
var indexHTML []byte

const defaultRunsLimit = 20

// Handler serves the labeling page and its JSON API over one conversation file.
type Handler struct {
	conversations []models.Conversation
	index         map[string]int
	results       map[string]models.Result
	labels        *labels.Service
	runs          *runs.Service
	auth          *auth.Service
	logger        *logging.Logger
}

// NewHandler indexes conversations and model results by conversation id.
// When results repeat an id the last entry wins.
func NewHandler(convs []models.Conversation, results []models.Result, labelSvc *labels.Service, runSvc *runs.Service, authSvc *auth.Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	if authSvc == nil {
		authSvc = auth.NewService("", "")
	}
	h := &Handler{
		conversations: convs,
		index:         make(map[string]int, len(convs)),
		results:       make(map[string]models.Result, len(results)),
		labels:        labelSvc,
		runs:          runSvc,
		auth:          authSvc,
		logger:        logger,
	}
	for i := range convs {
		h.index[convs[i].ID()] = i
	}
	for _, r := range results {
		h.results[r.ConversationID] = r
	}
	return h
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.indexPage)
	api := router.Group("/api")
	api.Use(h.auth.Middleware())
	api.GET("/schema", h.getSchema)
	api.GET("/conversations", h.listConversations)
	api.GET("/conversations/:id", h.getConversation)
	api.PUT("/labels/:id", h.saveLabel)
	api.DELETE("/labels/:id", h.deleteLabel)
	api.GET("/labels/export", h.exportLabels)
	api.POST("/labels/import", h.importLabels)
	api.GET("/runs", h.listRuns)
}

func (h *Handler) indexPage(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (h *Handler) getSchema(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sentiments":     models.Sentiments,
		"qualities":      models.Qualities,
		"categories":     models.Categories,
		"min_categories": models.MinCategories,
		"max_categories": models.MaxCategories,
	})
}

type conversationSummary struct {
	ConversationID string `json:"conversation_id"`
	StartTimeUTC   string `json:"start_time_utc"`
	TotalMessages  int    `json:"total_messages"`
	Labeled        bool   `json:"labeled"`
	HasModelResult bool   `json:"has_model_result"`
}

func (h *Handler) listConversations(c *gin.Context) {
	labelMap, err := h.labels.Map(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("list labels")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load labels"})
		return
	}
	items := make([]conversationSummary, 0, len(h.conversations))
	for i := range h.conversations {
		conv := &h.conversations[i]
		_, labeled := labelMap[conv.ID()]
		_, hasResult := h.results[conv.ID()]
		items = append(items, conversationSummary{
			ConversationID: conv.ID(),
			StartTimeUTC:   conv.Metadata.StartTimeUTC,
			TotalMessages:  conv.Metadata.TotalMessages,
			Labeled:        labeled,
			HasModelResult: hasResult,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"total":         len(items),
		"labeled":       len(labelMap),
		"conversations": items,
	})
}

func (h *Handler) getConversation(c *gin.Context) {
	id := c.Param("id")
	pos, ok := h.index[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	conv := h.conversations[pos]
	resp := gin.H{
		"position":     pos,
		"conversation": conv,
		"label":        nil,
		"model_result": nil,
	}
	if pos > 0 {
		resp["previous_id"] = h.conversations[pos-1].ID()
	}
	if pos+1 < len(h.conversations) {
		resp["next_id"] = h.conversations[pos+1].ID()
	}
	if r, ok := h.results[id]; ok {
		resp["model_result"] = r
	}
	label, err := h.labels.Get(c.Request.Context(), id)
	switch {
	case err == nil:
		resp["label"] = label
	case errors.Is(err, labels.ErrNotFound):
	default:
		h.logger.WithField("conversation_id", id).WithError(err).Error("get label")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load label"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

type labelRequest struct {
	GroundTruth *models.Classification `json:"ground_truth"`
	LabeledBy   string                 `json:"labeled_by"`
}

func (h *Handler) saveLabel(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.index[id]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	var req labelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.GroundTruth == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ground_truth is required"})
		return
	}
	labeledBy := strings.TrimSpace(req.LabeledBy)
	if labeledBy == "" {
		labeledBy = auth.LabelerFromContext(c)
	}
	label, err := h.labels.Save(c.Request.Context(), models.Label{
		ConversationID: id,
		GroundTruth:    *req.GroundTruth,
		LabeledBy:      labeledBy,
	})
	if err != nil {
		if errors.Is(err, labels.ErrInvalidLabel) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithField("conversation_id", id).WithError(err).Error("save label")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save label"})
		return
	}
	h.logger.Infow("label saved", "conversation_id", id, "labeled_by", labeledBy)
	c.JSON(http.StatusOK, label)
}

func (h *Handler) deleteLabel(c *gin.Context) {
	id := c.Param("id")
	if err := h.labels.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, labels.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithField("conversation_id", id).WithError(err).Error("delete label")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete label"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) exportLabels(c *gin.Context) {
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="ground_truth_labels.json"`)
	c.Status(http.StatusOK)
	n, err := h.labels.Export(c.Request.Context(), c.Writer)
	if err != nil {
		// headers are already sent; the client sees a truncated body
		h.logger.WithError(err).Error("export labels")
		return
	}
	h.logger.Infow("labels exported", "count", n)
}

func (h *Handler) importLabels(c *gin.Context) {
	n, err := h.labels.Import(c.Request.Context(), c.Request.Body)
	if err != nil {
		if errors.Is(err, labels.ErrInvalidLabel) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("import labels")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to import labels"})
		return
	}
	h.logger.Infow("labels imported", "count", n)
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

func (h *Handler) listRuns(c *gin.Context) {
	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = v
	}
	if h.runs == nil {
		c.JSON(http.StatusOK, []runs.Run{})
		return
	}
	list, err := h.runs.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("list runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, list)
}
