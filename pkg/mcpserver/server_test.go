package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restpilot/restpilot/pkg/graph"
	"github.com/restpilot/restpilot/pkg/llm"
	"github.com/restpilot/restpilot/pkg/orchestrator"
	"github.com/restpilot/restpilot/pkg/snippet"
)

// scriptedLLM replays responses in call order.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []llm.Response
}

func (f *scriptedLLM) Chat(_ context.Context, _ llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 {
		return &llm.Response{}, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return &resp, nil
}

func (f *scriptedLLM) Generate(ctx context.Context, prompt string, req llm.Request) (*llm.Response, error) {
	req.Messages = append(req.Messages, llm.Message{Role: "user", Content: prompt})
	return f.Chat(ctx, req)
}

type scriptedGraph struct {
	candidates []graph.Candidate
	bundles    map[string]*graph.OperationBundle
}

func (g *scriptedGraph) QueryContext(context.Context, string) ([]graph.Candidate, error) {
	return g.candidates, nil
}

func (g *scriptedGraph) QueryOperationForPrompt(_ context.Context, key string) (*graph.OperationBundle, error) {
	return g.bundles[key], nil
}

func happyLLM() *scriptedLLM {
	contents := []string{
		`{"steps":[{"title":"t1","description":"echo the value","services":[{"service_name":"math","operations":["echo"]}]}]}`,
		"```java\npackage app;\npublic class Echo {\n}\n```",
		`{"answer":"42","reasoning":"single-step"}`,
	}
	f := &scriptedLLM{}
	for _, c := range contents {
		f.responses = append(f.responses, llm.Response{Content: c})
	}
	return f
}

// startSession connects an in-memory client session to the tool server and
// returns the fake runtime so tests can inspect what reached the sandbox.
func startSession(t *testing.T, client llm.Client) (*mcpsdk.ClientSession, *snippet.FakeRuntime) {
	t.Helper()

	g := &scriptedGraph{
		candidates: []graph.Candidate{{EntityName: "math", OperationKeys: []string{"math.echo"}, Confidence: 1}},
		bundles: map[string]*graph.OperationBundle{
			"math.echo": {OperationID: "math.echo", Method: "POST", Path: "/v1/echo"},
		},
	}
	rt := snippet.NewFakeRuntime()
	rt.RunScript = []snippet.RunResult{{Summary: "42"}}

	orch, err := orchestrator.New(orchestrator.Config{
		LLM:     client,
		Graph:   g,
		Runtime: rt,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	srv := NewServer(orch, slog.New(slog.NewTextHandler(io.Discard, nil)))

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Run(ctx, serverTransport) }()

	sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "restpilot-test", Version: "test"}, nil)
	session, err := sdkClient.Connect(context.Background(), clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session, rt
}

func TestExecutePrompt_Success(t *testing.T) {
	session, rt := startSession(t, happyLLM())

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      ToolName,
		Arguments: json.RawMessage(`{"prompt":"echo 42"}`),
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)

	text := result.Content[0].(*mcpsdk.TextContent).Text
	var payload executeResult
	require.NoError(t, json.Unmarshal([]byte(text), &payload))
	assert.Equal(t, "42", payload.Answer)
	require.Len(t, payload.Steps, 1)
	assert.Equal(t, "t1", payload.Steps[0].Title)

	// The transport assigns a request id on behalf of the MCP caller.
	require.Len(t, rt.RunContexts, 1)
	assert.NotEmpty(t, rt.RunContexts[0].RequestID)
}

func TestExecutePrompt_EmptyPrompt(t *testing.T) {
	session, _ := startSession(t, &scriptedLLM{})

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      ToolName,
		Arguments: json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	require.True(t, result.IsError)

	text := result.Content[0].(*mcpsdk.TextContent).Text
	var payload errorPayload
	require.NoError(t, json.Unmarshal([]byte(text), &payload))
	assert.Equal(t, string(orchestrator.KindInvalidRequest), payload.Error.Kind)
}

func TestExecutePrompt_MalformedArguments(t *testing.T) {
	session, _ := startSession(t, &scriptedLLM{})

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      ToolName,
		Arguments: json.RawMessage(`{"prompt": 7}`),
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestExecuteOptions_UnknownKeysPreserved(t *testing.T) {
	var args executeArgs
	body := `{"prompt":"p","options":{"maxAttempts":2,"progressMinIntervalMs":0,"pilot":"beta"}}`
	require.NoError(t, json.Unmarshal([]byte(body), &args))

	require.NotNil(t, args.Options)
	assert.Equal(t, 2, args.Options.MaxAttempts)
	require.NotNil(t, args.Options.ProgressMinIntervalMs)
	assert.Equal(t, 0, *args.Options.ProgressMinIntervalMs)
	assert.Equal(t, map[string]any{"pilot": "beta"}, args.Options.Unknown)
}

func TestListTools(t *testing.T) {
	session, _ := startSession(t, &scriptedLLM{})

	tools, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, ToolName, tools.Tools[0].Name)
}
