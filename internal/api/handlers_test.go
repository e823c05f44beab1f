package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"convanalyzer/internal/auth"
	"convanalyzer/internal/config"
	"convanalyzer/internal/models"
	"convanalyzer/internal/service/labels"
	"convanalyzer/internal/service/runs"
	"convanalyzer/internal/storage"
)

func testConversations() []models.Conversation {
	return []models.Conversation{
		{
			Metadata:           models.Metadata{ConversationID: "c1", StartTimeUTC: "2025-05-01T10:00:00Z", TotalMessages: 2},
			TranscriptFullText: "User: Merhaba\nBot: Size nasıl yardımcı olabilirim?",
			Messages: []models.Message{
				{MessageID: "m1", Sender: models.SenderUser, Text: "Merhaba"},
				{MessageID: "m2", Sender: models.SenderBot, Text: "Size nasıl yardımcı olabilirim?"},
			},
		},
		{
			Metadata:           models.Metadata{ConversationID: "c2", StartTimeUTC: "2025-05-02T10:00:00Z", TotalMessages: 1},
			TranscriptFullText: "User: Pasta fiyatları?",
			Messages:           []models.Message{{MessageID: "m3", Sender: models.SenderUser, Text: "Pasta fiyatları?"}},
		},
	}
}

func testResults() []models.Result {
	return []models.Result{
		{ConversationID: "c1", Error: &models.ResultError{Kind: models.ErrorKindProvider, Message: "timeout"}},
		{ConversationID: "c1", Classification: &models.Classification{
			OverallSentiment: models.SentimentNeutral,
			BotUnderstanding: models.QualityGood,
			BotPerformance:   models.QualityAcceptable,
			Categories:       []models.Category{models.CategoryOther},
		}},
	}
}

func groundTruth() map[string]any {
	return map[string]any{
		"overall_sentiment":        "positive",
		"bot_understanding":        "good",
		"bot_performance":          "good",
		"bot_answered":             true,
		"categories":               []string{"Pasta"},
		"to_improve_understanding": nil,
		"to_improve_performance":   nil,
	}
}

func newTestServer(t *testing.T, token string) (*gin.Engine, *sql.DB, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	labelSvc, err := labels.NewService(db, "sqlite3")
	if err != nil {
		t.Fatalf("labels service: %v", err)
	}
	runSvc, err := runs.NewService(db, "sqlite3")
	if err != nil {
		t.Fatalf("runs service: %v", err)
	}
	handler := NewHandler(testConversations(), testResults(), labelSvc, runSvc, auth.NewService(token, "tester"), nil)

	router := gin.New()
	handler.RegisterRoutes(router)
	return router, db, handler
}

func TestLabelingFlow(t *testing.T) {
	router, db, _ := newTestServer(t, "")
	defer db.Close()

	schemaResp := doJSONRequest(t, router, http.MethodGet, "/api/schema", nil, nil)
	assertStatus(t, schemaResp, http.StatusOK)
	var schema struct {
		Categories    []string `json:"categories"`
		MaxCategories int      `json:"max_categories"`
	}
	decodeJSON(t, schemaResp.Body.Bytes(), &schema)
	if len(schema.Categories) != len(models.Categories) || schema.MaxCategories != 3 {
		t.Fatalf("unexpected schema: %+v", schema)
	}

	saveResp := doJSONRequest(t, router, http.MethodPut, "/api/labels/c2", map[string]any{
		"ground_truth": groundTruth(),
	}, nil)
	assertStatus(t, saveResp, http.StatusOK)
	var saved models.Label
	decodeJSON(t, saveResp.Body.Bytes(), &saved)
	if saved.ConversationID != "c2" || saved.LabeledBy != "tester" {
		t.Fatalf("unexpected saved label: %+v", saved)
	}

	listResp := doJSONRequest(t, router, http.MethodGet, "/api/conversations", nil, nil)
	assertStatus(t, listResp, http.StatusOK)
	var list struct {
		Total         int                   `json:"total"`
		Labeled       int                   `json:"labeled"`
		Conversations []conversationSummary `json:"conversations"`
	}
	decodeJSON(t, listResp.Body.Bytes(), &list)
	if list.Total != 2 || list.Labeled != 1 {
		t.Fatalf("unexpected counts: total=%d labeled=%d", list.Total, list.Labeled)
	}
	if list.Conversations[0].ConversationID != "c1" || !list.Conversations[0].HasModelResult || list.Conversations[0].Labeled {
		t.Fatalf("unexpected first summary: %+v", list.Conversations[0])
	}
	if !list.Conversations[1].Labeled || list.Conversations[1].HasModelResult {
		t.Fatalf("unexpected second summary: %+v", list.Conversations[1])
	}

	detailResp := doJSONRequest(t, router, http.MethodGet, "/api/conversations/c1", nil, nil)
	assertStatus(t, detailResp, http.StatusOK)
	var detail struct {
		Position    int                 `json:"position"`
		NextID      string              `json:"next_id"`
		Label       *models.Label       `json:"label"`
		ModelResult *models.Result      `json:"model_result"`
		Conv        models.Conversation `json:"conversation"`
	}
	decodeJSON(t, detailResp.Body.Bytes(), &detail)
	if detail.Position != 0 || detail.NextID != "c2" || detail.Label != nil {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	if detail.ModelResult == nil || detail.ModelResult.Failed() {
		t.Fatalf("expected last model result to win, got %+v", detail.ModelResult)
	}
	if len(detail.Conv.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(detail.Conv.Messages))
	}

	delResp := doJSONRequest(t, router, http.MethodDelete, "/api/labels/c2", nil, nil)
	assertStatus(t, delResp, http.StatusNoContent)
	delAgain := doJSONRequest(t, router, http.MethodDelete, "/api/labels/c2", nil, nil)
	assertStatus(t, delAgain, http.StatusNotFound)
}

func TestSaveLabelValidation(t *testing.T) {
	router, db, _ := newTestServer(t, "")
	defer db.Close()

	unknownSentiment := groundTruth()
	unknownSentiment["overall_sentiment"] = "ecstatic"
	noCategories := groundTruth()
	noCategories["categories"] = []string{}

	cases := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"unknown conversation", "/api/labels/missing", map[string]any{"ground_truth": groundTruth()}, http.StatusNotFound},
		{"missing ground truth", "/api/labels/c1", map[string]any{"labeled_by": "x"}, http.StatusBadRequest},
		{"unknown enum value", "/api/labels/c1", map[string]any{"ground_truth": unknownSentiment}, http.StatusBadRequest},
		{"empty categories", "/api/labels/c1", map[string]any{"ground_truth": noCategories}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSONRequest(t, router, http.MethodPut, tc.path, tc.body, nil)
			assertStatus(t, rec, tc.status)
			var body map[string]string
			decodeJSON(t, rec.Body.Bytes(), &body)
			if body["error"] == "" {
				t.Fatalf("expected error message")
			}
		})
	}

	notFound := doJSONRequest(t, router, http.MethodGet, "/api/conversations/nope", nil, nil)
	assertStatus(t, notFound, http.StatusNotFound)
}

func TestExportImportRoundTrip(t *testing.T) {
	router, db, _ := newTestServer(t, "")
	defer db.Close()

	for _, id := range []string{"c1", "c2"} {
		rec := doJSONRequest(t, router, http.MethodPut, "/api/labels/"+id, map[string]any{
			"ground_truth": groundTruth(),
			"labeled_by":   "ayse",
		}, nil)
		assertStatus(t, rec, http.StatusOK)
	}

	exportResp := doJSONRequest(t, router, http.MethodGet, "/api/labels/export", nil, nil)
	assertStatus(t, exportResp, http.StatusOK)
	if !strings.Contains(exportResp.Header().Get("Content-Disposition"), "ground_truth_labels.json") {
		t.Fatalf("missing attachment header")
	}
	exported := append([]byte(nil), exportResp.Body.Bytes()...)

	for _, id := range []string{"c1", "c2"} {
		assertStatus(t, doJSONRequest(t, router, http.MethodDelete, "/api/labels/"+id, nil, nil), http.StatusNoContent)
	}

	importResp := doJSONRequest(t, router, http.MethodPost, "/api/labels/import", json.RawMessage(exported), nil)
	assertStatus(t, importResp, http.StatusOK)
	var imported struct {
		Imported int `json:"imported"`
	}
	decodeJSON(t, importResp.Body.Bytes(), &imported)
	if imported.Imported != 2 {
		t.Fatalf("expected 2 imported, got %d", imported.Imported)
	}

	again := doJSONRequest(t, router, http.MethodGet, "/api/labels/export", nil, nil)
	assertStatus(t, again, http.StatusOK)
	var before, after []models.Label
	decodeJSON(t, exported, &before)
	decodeJSON(t, again.Body.Bytes(), &after)
	if len(before) != len(after) {
		t.Fatalf("label count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ConversationID != after[i].ConversationID || before[i].LabeledBy != after[i].LabeledBy {
			t.Fatalf("label %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}

	bad := doJSONRequest(t, router, http.MethodPost, "/api/labels/import",
		[]map[string]any{{"conversation_id": "c1", "ground_truth": map[string]any{"overall_sentiment": "meh"}}}, nil)
	assertStatus(t, bad, http.StatusBadRequest)
}

func TestRequiresTokenWhenConfigured(t *testing.T) {
	router, db, _ := newTestServer(t, "s3cret")
	defer db.Close()

	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/api/conversations", nil, nil), http.StatusUnauthorized)
	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/api/conversations", nil,
		map[string]string{"Authorization": "Bearer s3cret"}), http.StatusOK)

	page := doJSONRequest(t, router, http.MethodGet, "/", nil, nil)
	assertStatus(t, page, http.StatusOK)
	if !strings.Contains(page.Body.String(), "<title>convanalyzer labeling</title>") {
		t.Fatalf("unexpected index page")
	}
}

func TestListRuns(t *testing.T) {
	router, db, handler := newTestServer(t, "")
	defer db.Close()

	started := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	run := runs.Run{RunID: uuid.New(), Model: "gpt-5", Selection: "all 2 conversations",
		Processed: 2, Succeeded: 2, StartedAt: started, FinishedAt: started.Add(time.Minute)}
	if err := handler.runs.Record(context.Background(), run); err != nil {
		t.Fatalf("record run: %v", err)
	}

	rec := doJSONRequest(t, router, http.MethodGet, "/api/runs?limit=5", nil, nil)
	assertStatus(t, rec, http.StatusOK)
	var got []runs.Run
	decodeJSON(t, rec.Body.Bytes(), &got)
	if len(got) != 1 || got[0].RunID != run.RunID {
		t.Fatalf("unexpected runs: %+v", got)
	}

	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/api/runs?limit=zero", nil, nil), http.StatusBadRequest)
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}
