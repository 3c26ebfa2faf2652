package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedroql/mvflow/internal/counter"
	"github.com/pedroql/mvflow/internal/store"
)

func TestCounterCommand_Stdin(t *testing.T) {
	stdout, _, err := executeCommand(t, "AddOne\none\n+\n", "counter", "--delay-scale", "0")
	require.NoError(t, err)

	all := lines(stdout)
	require.NotEmpty(t, all)
	assert.Equal(t, "value=0", all[0])
	assert.Equal(t, "value=3", lastWithPrefix(stdout, "value="))
}

func TestCounterCommand_InitialValue(t *testing.T) {
	stdout, _, err := executeCommand(t, "AddOne\n", "counter", "--delay-scale", "0", "--initial", "10")
	require.NoError(t, err)
	assert.Equal(t, "value=11", lastWithPrefix(stdout, "value="))
}

func TestCounterCommand_BackgroundJob(t *testing.T) {
	stdout, _, err := executeCommand(t, "AddMany\n", "counter", "--delay-scale", "0")
	require.NoError(t, err)

	assert.Contains(t, stdout, "toast: "+counter.ToastStarted)
	assert.Contains(t, stdout, "toast: "+counter.ToastFinished)
	assert.Equal(t, "value=4", lastWithPrefix(stdout, "value="))
}

func TestCounterCommand_SkipsUnknownInput(t *testing.T) {
	stdout, stderr, err := executeCommand(t, "# comment\n\nBogus\nAddOne\n", "counter", "--delay-scale", "0")
	require.NoError(t, err)

	assert.Equal(t, "value=1", lastWithPrefix(stdout, "value="))
	assert.Contains(t, stderr, "ignoring input")
	assert.Contains(t, stderr, "Bogus")
}

func TestCounterCommand_EmptyInput(t *testing.T) {
	stdout, _, err := executeCommand(t, "", "counter", "--delay-scale", "0")
	require.NoError(t, err)
	assert.Equal(t, []string{"value=0"}, lines(stdout))
}

func TestCounterCommand_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"negative delay scale", []string{"--delay-scale", "-1"}},
		{"empty label", []string{"--label", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCommand(t, "", append([]string{"counter"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestCounterCommand_Records(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	_, stderr, err := executeCommand(t, "AddOne\nAddMany\n",
		"counter", "--delay-scale", "0", "--db", dbPath, "--label", "demo")
	require.NoError(t, err)
	assert.Contains(t, stderr, "recording session ")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sessions, err := st.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "demo", sessions[0].Label)

	journal, err := st.ReadSession(ctx, sessions[0].ID)
	require.NoError(t, err)
	require.Len(t, journal.Dispatches, 2)
	assert.Equal(t, `{"background_operations":0,"value":0}`, journal.Dispatches[0].State)
	assert.Len(t, journal.Mutations, 6)
	assert.Len(t, journal.Effects, 2)
	require.NotEmpty(t, journal.States)
	assert.Equal(t, `{"background_operations":0,"value":5}`, journal.States[len(journal.States)-1].Payload)
}

func TestCounterCommand_ActionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.txt")
	require.NoError(t, os.WriteFile(path, []byte("AddOne\nAddOne\n"), 0o644))

	cmd := NewRootCommand()
	stdout := &syncBuffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(&syncBuffer{})
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs([]string{"counter", "--delay-scale", "0", "--actions-file", path})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "value=2")
	}, 5*time.Second, 10*time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("AddOne\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "value=3")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("counter did not stop after cancel")
	}
}
