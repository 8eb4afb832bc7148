package commandtool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestExecuteCapturesStdout(t *testing.T) {
	out, err := Command{}.Execute(context.Background(), marshal(t, commandInput{Command: "echo hi"}))
	require.NoError(t, err)
	result := out.(Result)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hi\n", result.Stdout)
}

func TestExecuteCapturesNonZeroExitCode(t *testing.T) {
	out, err := Command{}.Execute(context.Background(), marshal(t, commandInput{Command: "exit 3"}))
	require.NoError(t, err)
	result := out.(Result)
	assert.Equal(t, 3, result.ExitCode)
}

func TestExecuteCapturesStderr(t *testing.T) {
	out, err := Command{}.Execute(context.Background(), marshal(t, commandInput{Command: "echo oops 1>&2"}))
	require.NoError(t, err)
	result := out.(Result)
	assert.Equal(t, "oops\n", result.Stderr)
}

func TestExecuteTimeoutCancelsLongRunningCommand(t *testing.T) {
	start := time.Now()
	_, err := Command{}.Execute(context.Background(), marshal(t, commandInput{Command: "sleep 5", Timeout: 1}))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestExecuteUsesConfiguredShell(t *testing.T) {
	c := Command{Shell: "sh"}
	out, err := c.Execute(context.Background(), marshal(t, commandInput{Command: "echo via-shell"}))
	require.NoError(t, err)
	assert.Equal(t, "via-shell\n", out.(Result).Stdout)
}

func TestSchemaMarksCommandRequired(t *testing.T) {
	schema := Command{}.Schema()
	required, ok := schema["required"].([]any)
	require.True(t, ok)
	assert.Contains(t, required, "command")
}
