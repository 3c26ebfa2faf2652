package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/capitan"

	"github.com/pedroql/mvflow/internal/engine"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "mvflow", cmd.Use)
	assert.Contains(t, cmd.Long, "Reducer")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"counter", "ticker", "run", "test", "validate", "trace"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flags   []string
	}{
		{"counter", []string{"db", "label", "actions-file", "delay-scale", "initial"}},
		{"ticker", []string{"interval", "count"}},
		{"run", []string{"trace"}},
		{"test", []string{"golden", "update", "filter"}},
		{"validate", []string{"schema"}},
		{"trace", []string{"db", "session", "dispatch"}},
	}

	root := NewRootCommand()
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			sub, _, err := root.Find([]string{tt.command})
			require.NoError(t, err)
			for _, name := range tt.flags {
				assert.NotNil(t, sub.Flags().Lookup(name), "flag --%s", name)
			}
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := executeCommand(t, "", "--format", "xml", "validate", "--schema")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		newLogger(&buf, &RootOptions{Format: "json"}).Warn("dropped", "stream", "actions")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "dropped", line["msg"])
		assert.Equal(t, "actions", line["stream"])
	})

	t.Run("text hides debug unless verbose", func(t *testing.T) {
		var buf bytes.Buffer
		newLogger(&buf, &RootOptions{Format: "text"}).Debug("quiet")
		assert.Empty(t, buf.String())

		newLogger(&buf, &RootOptions{Format: "text", Verbose: true}).Debug("loud")
		assert.Contains(t, buf.String(), "msg=loud")
	})
}

func TestBridgeSignals(t *testing.T) {
	buf := &syncBuffer{}
	bridgeSignals(newLogger(buf, &RootOptions{Format: "text"}))

	capitan.Emit(context.Background(), engine.HandlerFailed,
		engine.KeyDispatchID.Field("d-9"),
		engine.KeyAction.Field("AddMany"),
		engine.KeyError.Field("boom"),
	)

	require.Eventually(t, func() bool {
		out := buf.String()
		return strings.Contains(out, "mvflow.handler.failed") &&
			strings.Contains(out, "dispatch=d-9") &&
			strings.Contains(out, "error=boom")
	}, 2*time.Second, 10*time.Millisecond)
}
