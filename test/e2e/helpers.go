package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/restpilot/restpilot/pkg/api"
	"github.com/restpilot/restpilot/pkg/progress"
)

// Execute posts to /api/v1/execute and returns the raw HTTP response.
func (app *TestApp) Execute(body string) *http.Response {
	app.t.Helper()
	resp, err := http.Post(app.BaseURL+"/api/v1/execute", "application/json", strings.NewReader(body))
	require.NoError(app.t, err)
	return resp
}

// ExecuteOK posts a request and decodes a success response.
func (app *TestApp) ExecuteOK(body string) api.ExecuteResponse {
	app.t.Helper()
	resp := app.Execute(body)
	defer resp.Body.Close()

	var out api.ExecuteResponse
	require.NoError(app.t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(app.t, http.StatusOK, resp.StatusCode)
	return out
}

// ExecuteError posts a request and decodes a failure response, asserting the
// expected status code.
func (app *TestApp) ExecuteError(body string, wantStatus int) api.ErrorResponse {
	app.t.Helper()
	resp := app.Execute(body)
	defer resp.Body.Close()

	var out api.ErrorResponse
	require.NoError(app.t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(app.t, wantStatus, resp.StatusCode)
	return out
}

// decodeError decodes a failure body without asserting the status code.
func decodeError(t *testing.T, resp *http.Response) api.ErrorResponse {
	t.Helper()
	var out api.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// Cancel posts to the cancel route for a request ID.
func (app *TestApp) Cancel(requestID string) int {
	app.t.Helper()
	resp, err := http.Post(app.BaseURL+"/api/v1/requests/"+requestID+"/cancel", "application/json", nil)
	require.NoError(app.t, err)
	resp.Body.Close()
	return resp.StatusCode
}

// CollectEvents connects to the event stream of a finished request and
// drains it.
func (app *TestApp) CollectEvents(requestID string) []progress.Event {
	app.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, app.WSURL+"/api/v1/requests/"+requestID+"/events", nil)
	require.NoError(app.t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var events []progress.Event
	for {
		var event progress.Event
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			return events
		}
		events = append(events, event)
	}
}

// stageStatuses projects events to "stage/status" strings for ordering
// assertions.
func stageStatuses(events []progress.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, string(e.StageID)+"/"+string(e.Status))
	}
	return out
}
