package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanops/contentflow/article"
	"github.com/chanops/contentflow/channel"
	"github.com/chanops/contentflow/content"
	"github.com/chanops/contentflow/graph"
	"github.com/chanops/contentflow/graph/emit"
	"github.com/chanops/contentflow/graph/store"
	"github.com/chanops/contentflow/llm"
	"github.com/chanops/contentflow/service"
)

const reviewPass = `{"score": 88, "issues": [], "suggestions": []}`

type fixture struct {
	server *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gw := llm.NewMockGateway(reviewPass)
	gw.Responses["writer"] = "generated draft"

	articles := article.NewMemStore()
	channels := channel.NewRegistry()
	require.NoError(t, channels.Register(channel.Channel{
		ID:     "blog",
		Name:   "Engineering Blog",
		Config: map[string]interface{}{"tone": "technical"},
	}))

	registry := prometheus.NewRegistry()
	metrics := graph.NewMetrics(registry)

	workflows, err := service.New(service.Deps{
		Graphs: content.GraphDeps{
			Nodes:    &content.Nodes{Gateway: gw, Publisher: articles},
			Store:    store.NewMemStore[content.State](),
			Emitter:  emit.NewNullEmitter(),
			Metrics:  metrics,
			MaxSteps: 20,
		},
		Channels: channels,
	})
	require.NoError(t, err)

	srv := New(Deps{
		Workflows: workflows,
		Endpoints: llm.NewRegistry(),
		Channels:  channels,
		Articles:  articles,
		Metrics:   registry,
	})
	return &fixture{server: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func (f *fixture) startRun(t *testing.T, path string, initial map[string]any) string {
	t.Helper()

	rec := f.do(t, http.MethodPost, path, initial)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var record service.RunRecord
	f.decode(t, rec, &record)
	require.NotEmpty(t, record.RunID)
	require.Equal(t, store.StatusRunning, record.Status)
	return record.RunID
}

func (f *fixture) waitForTerminal(t *testing.T, runID string) service.RunInfo {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := f.do(t, http.MethodGet, "/workflows/"+runID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var info service.RunInfo
		f.decode(t, rec, &info)
		switch info.Status {
		case store.StatusRunning, store.StatusPaused:
			time.Sleep(5 * time.Millisecond)
		default:
			return info
		}
	}
	t.Fatalf("run %s never reached a terminal status", runID)
	return service.RunInfo{}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestStartContentCreation(t *testing.T) {
	f := newFixture(t)

	runID := f.startRun(t, "/workflows/content-creation", map[string]any{
		"input_content": "Write about connection pooling",
		"channel_id":    "blog",
		"llm_endpoint":  "writer",
		"review_model":  "critic",
	})

	info := f.waitForTerminal(t, runID)
	assert.Equal(t, store.StatusCompleted, info.Status)
	assert.Equal(t, content.TypeContentCreation, info.WorkflowType)
	assert.Equal(t, "publish_completed", info.State.CurrentStep)
	assert.Equal(t, "generated draft", info.State.Draft)
	assert.Equal(t, "technical", info.State.ChannelConfig["tone"], "channel config injected")
}

func TestStartWorkflow_BadBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/workflows/content-creation",
		strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListWorkflows(t *testing.T) {
	f := newFixture(t)

	runID := f.startRun(t, "/workflows/multi-model", map[string]any{
		"input_content": "topic",
		"llm_endpoint":  "writer",
		"review_model":  "critic",
	})
	f.waitForTerminal(t, runID)

	rec := f.do(t, http.MethodGet, "/workflows?type=multi_model", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Workflows []store.Summary `json:"workflows"`
	}
	f.decode(t, rec, &resp)
	require.Len(t, resp.Workflows, 1)
	assert.Equal(t, runID, resp.Workflows[0].RunID)

	rec = f.do(t, http.MethodGet, "/workflows?type=content_creation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	f.decode(t, rec, &resp)
	assert.Empty(t, resp.Workflows)
}

func TestWorkflowHistory(t *testing.T) {
	f := newFixture(t)

	runID := f.startRun(t, "/workflows/content-creation", map[string]any{
		"input_content": "topic",
		"llm_endpoint":  "writer",
		"review_model":  "critic",
	})
	f.waitForTerminal(t, runID)

	rec := f.do(t, http.MethodGet, "/workflows/"+runID+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info service.RunInfo
	f.decode(t, rec, &info)
	assert.Equal(t, runID, info.RunID)
}

func TestWorkflowErrorMapping(t *testing.T) {
	f := newFixture(t)

	t.Run("unknown run is 404", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/workflows/nope", nil).Code)
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/workflows/nope/pause", nil).Code)
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/workflows/nope/cancel", nil).Code)
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/workflows/nope/continue", nil).Code)
	})

	t.Run("terminal run conflicts", func(t *testing.T) {
		runID := f.startRun(t, "/workflows/content-creation", map[string]any{
			"input_content": "topic",
			"llm_endpoint":  "writer",
			"review_model":  "critic",
		})
		f.waitForTerminal(t, runID)

		assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/workflows/"+runID+"/pause", nil).Code)
		assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/workflows/"+runID+"/continue", nil).Code)
		assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/workflows/"+runID+"/cancel", nil).Code)
	})
}

func TestEndpointRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/endpoints", llm.Endpoint{
		ID: "writer", Name: "Writer", Provider: llm.ProviderOpenAI, Model: "gpt-4o", Enabled: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/endpoints", llm.Endpoint{
		ID: "bad", Provider: "cohere", Model: "m",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/endpoints", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Endpoints []llm.Endpoint `json:"endpoints"`
	}
	f.decode(t, rec, &resp)
	require.Len(t, resp.Endpoints, 1)
	assert.Equal(t, "writer", resp.Endpoints[0].ID)

	rec = f.do(t, http.MethodDelete, "/endpoints/writer", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestChannelRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/channels", channel.Channel{
		ID: "newsletter", Name: "Weekly Newsletter",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/channels", channel.Channel{Name: "anon"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/channels", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Channels []channel.Channel `json:"channels"`
	}
	f.decode(t, rec, &resp)
	assert.Len(t, resp.Channels, 2) // blog from the fixture plus newsletter

	rec = f.do(t, http.MethodDelete, "/channels/newsletter", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestArticleRoutes(t *testing.T) {
	f := newFixture(t)

	runID := f.startRun(t, "/workflows/content-creation", map[string]any{
		"input_content": "topic",
		"channel_id":    "blog",
		"llm_endpoint":  "writer",
		"review_model":  "critic",
		"metadata":      map[string]any{"title": "Pooling Deep Dive"},
	})
	f.waitForTerminal(t, runID)

	rec := f.do(t, http.MethodGet, "/articles?channel_id=blog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Articles []article.Article `json:"articles"`
	}
	f.decode(t, rec, &resp)
	require.Len(t, resp.Articles, 1)
	assert.Equal(t, "Pooling Deep Dive", resp.Articles[0].Title)

	rec = f.do(t, http.MethodGet, "/articles/"+resp.Articles[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/articles/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/articles/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats article.Stats
	f.decode(t, rec, &stats)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByChannel["blog"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	runID := f.startRun(t, "/workflows/content-creation", map[string]any{
		"input_content": "topic",
		"llm_endpoint":  "writer",
		"review_model":  "critic",
	})
	f.waitForTerminal(t, runID)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "contentflow_workflow_runs_started_total")
}
