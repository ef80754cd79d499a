package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteOptions_UnknownKeysPreserved(t *testing.T) {
	body := `{"prompt":"p","options":{"maxAttempts":5,"progressMinDelta":0,"betaFeature":true,"shard":"eu-1"}}`

	var wire ExecuteRequest
	require.NoError(t, json.Unmarshal([]byte(body), &wire))

	req := wire.toModel()
	assert.Equal(t, 5, req.Options.MaxAttempts)
	require.NotNil(t, req.Options.ProgressMinDelta)
	assert.Equal(t, 0, *req.Options.ProgressMinDelta)
	assert.Equal(t, map[string]any{"betaFeature": true, "shard": "eu-1"}, req.Options.Unknown)
}

func TestExecuteOptions_NoUnknownKeys(t *testing.T) {
	var opts ExecuteOptions
	require.NoError(t, json.Unmarshal([]byte(`{"maxAttempts":2}`), &opts))
	assert.Nil(t, opts.Unknown)
}

func TestExecuteOptions_ExplicitZeroInterval(t *testing.T) {
	var wire ExecuteRequest
	require.NoError(t, json.Unmarshal([]byte(`{"prompt":"p","options":{"progressMinIntervalMs":0}}`), &wire))

	req := wire.toModel()
	require.NotNil(t, req.Options.ProgressMinInterval)
	assert.Equal(t, time.Duration(0), *req.Options.ProgressMinInterval)
	assert.Nil(t, req.Options.ProgressMinDelta)
}
