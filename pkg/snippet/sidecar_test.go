package snippet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSidecarRuntime_Compile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/compile", r.URL.Path)
		var req compileRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "package p;\npublic class X {}", req.Snippet)
		json.NewEncoder(w).Encode(CompileResult{Artifact: Artifact{ID: "art-1", ClassName: "p.X"}})
	}))
	defer srv.Close()

	rt := NewSidecarRuntime(srv.URL)
	result, err := rt.Compile(context.Background(), "package p;\npublic class X {}")
	require.NoError(t, err)
	assert.Equal(t, "art-1", result.Artifact.ID)
	assert.False(t, result.Failed)
}

func TestSidecarRuntime_CompileDiagnostics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(CompileResult{
			Failed:      true,
			Diagnostics: []Diagnostic{{File: "X.java", Line: 2, Column: 5, Message: "';' expected"}},
		})
	}))
	defer srv.Close()

	rt := NewSidecarRuntime(srv.URL)
	result, err := rt.Compile(context.Background(), "broken")
	require.NoError(t, err) // diagnostics are a result, not an error
	assert.True(t, result.Failed)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "X.java:2:5: ';' expected", result.Diagnostics[0].String())
}

func TestSidecarRuntime_Run(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/run", r.URL.Path)
		var req runRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "art-1", req.Artifact.ID)
		assert.Equal(t, "req-1", req.Context.RequestID)
		json.NewEncoder(w).Encode(RunResult{Summary: "42"})
	}))
	defer srv.Close()

	rt := NewSidecarRuntime(srv.URL)
	result, err := rt.Run(context.Background(), Artifact{ID: "art-1"}, RunContext{RequestID: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, "42", result.Summary)
}

func TestSidecarRuntime_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rt := NewSidecarRuntime(srv.URL)
	_, err := rt.Compile(context.Background(), "x")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestSidecarRuntime_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rt := NewSidecarRuntime(srv.URL)
	_, err := rt.Compile(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
}

func TestFakeRuntime_ScriptConsumption(t *testing.T) {
	rt := NewFakeRuntime()
	rt.CompileScript = []CompileResult{{Failed: true}}

	first, err := rt.Compile(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, first.Failed)

	// Script exhausted: default success.
	second, err := rt.Compile(context.Background(), "b")
	require.NoError(t, err)
	assert.False(t, second.Failed)
	assert.Equal(t, 2, rt.CompileCalls())
}
