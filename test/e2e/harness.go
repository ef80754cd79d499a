// Package e2e boots the full HTTP surface around scripted collaborators and
// drives it the way a real caller would.
package e2e

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/restpilot/restpilot/pkg/api"
	"github.com/restpilot/restpilot/pkg/graph"
	"github.com/restpilot/restpilot/pkg/orchestrator"
	"github.com/restpilot/restpilot/pkg/snippet"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestApp is a complete server instance with scripted collaborators.
type TestApp struct {
	LLM     *ScriptedLLMClient
	Runtime *snippet.FakeRuntime
	Graph   graph.KnowledgeGraph
	Server  *api.Server

	BaseURL string
	WSURL   string

	t  *testing.T
	ts *httptest.Server
}

type testAppConfig struct {
	llm     *ScriptedLLMClient
	runtime *snippet.FakeRuntime
	catalog *graph.Catalog
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithLLM sets a pre-scripted LLM client.
func WithLLM(client *ScriptedLLMClient) TestAppOption {
	return func(c *testAppConfig) { c.llm = client }
}

// WithRuntime sets a pre-scripted snippet runtime.
func WithRuntime(rt *snippet.FakeRuntime) TestAppOption {
	return func(c *testAppConfig) { c.runtime = rt }
}

// WithCatalog replaces the default math catalog.
func WithCatalog(catalog *graph.Catalog) TestAppOption {
	return func(c *testAppConfig) { c.catalog = catalog }
}

// defaultCatalog is a minimal service catalog for scenario tests.
func defaultCatalog() *graph.Catalog {
	return &graph.Catalog{
		Services: []graph.CatalogService{
			{
				Name: "math",
				Operations: []graph.CatalogOperation{
					{Name: "echo", Method: "POST", Path: "/v1/echo", Intents: []string{"echo", "repeat"}},
					{Name: "sum", Method: "POST", Path: "/v1/sum", Intents: []string{"add", "total"}},
				},
			},
		},
	}
}

// StartTestApp boots the server on a random port. Shutdown is registered
// with t.Cleanup.
func StartTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	cfg := &testAppConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.llm == nil {
		cfg.llm = NewScriptedLLMClient()
	}
	if cfg.runtime == nil {
		cfg.runtime = snippet.NewFakeRuntime()
	}
	if cfg.catalog == nil {
		cfg.catalog = defaultCatalog()
	}

	g, err := graph.NewMemoryGraph(cfg.catalog)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch, err := orchestrator.New(orchestrator.Config{
		LLM:     cfg.llm,
		Graph:   g,
		Runtime: cfg.runtime,
		Logger:  logger,
	})
	require.NoError(t, err)

	server := api.NewServer(orch, api.WithLogger(logger))
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &TestApp{
		LLM:     cfg.llm,
		Runtime: cfg.runtime,
		Graph:   g,
		Server:  server,
		BaseURL: ts.URL,
		WSURL:   strings.Replace(ts.URL, "http://", "ws://", 1),
		t:       t,
		ts:      ts,
	}
}
