package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedroql/mvflow/internal/store"
)

// seedJournal writes one small session and returns the database path.
func seedJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.CreateSession(ctx, store.Session{
		ID:        "s-1",
		Label:     "demo",
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}))
	require.NoError(t, st.WriteDispatch(ctx, store.Dispatch{
		SessionID:  "s-1",
		Seq:        1,
		DispatchID: "d-1",
		Action:     `"AddOne"`,
		State:      `{"background_operations":0,"value":0}`,
	}))
	require.NoError(t, st.WriteMutation(ctx, store.Record{SessionID: "s-1", Seq: 1, Payload: `{"amount":1,"kind":"Increment"}`}))
	require.NoError(t, st.WriteState(ctx, store.Record{SessionID: "s-1", Seq: 1, Payload: `{"background_operations":0,"value":0}`}))
	require.NoError(t, st.WriteState(ctx, store.Record{SessionID: "s-1", Seq: 2, Payload: `{"background_operations":0,"value":1}`}))
	return path
}

func TestTraceCommand_ListSessions(t *testing.T) {
	db := seedJournal(t)

	stdout, _, err := executeCommand(t, "", "trace", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "s-1  2026-01-02T03:04:05Z  demo\n", stdout)
}

func TestTraceCommand_Session(t *testing.T) {
	db := seedJournal(t)

	stdout, _, err := executeCommand(t, "", "trace", "--db", db, "--session", "s-1")
	require.NoError(t, err)

	want := `Session: s-1 (demo)
Started: 2026-01-02T03:04:05Z

=== Dispatches ===
  [1] "AddOne" at {"background_operations":0,"value":0}

=== Mutations ===
  [1] {"amount":1,"kind":"Increment"}

=== States ===
  [1] {"background_operations":0,"value":0}
  [2] {"background_operations":0,"value":1}

=== Effects ===
  (none)

=== Stats ===
  Dispatches: 1
  Mutations:  1
  States:     2
  Effects:    0
`
	assert.Equal(t, want, stdout)
}

func TestTraceCommand_SessionVerbose(t *testing.T) {
	db := seedJournal(t)

	stdout, _, err := executeCommand(t, "", "-v", "trace", "--db", db, "--session", "s-1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ID: d-1")
	assert.Contains(t, stdout, "Hash: ")
}

func TestTraceCommand_SessionJSON(t *testing.T) {
	db := seedJournal(t)

	stdout, _, err := executeCommand(t, "", "--format", "json", "trace", "--db", db, "--session", "s-1")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "demo", resp.Data.Session.Label)
	require.Len(t, resp.Data.Dispatches, 1)
	assert.Equal(t, "d-1", resp.Data.Dispatches[0].DispatchID)
	assert.JSONEq(t, `"AddOne"`, string(resp.Data.Dispatches[0].Value))
	assert.JSONEq(t, `{"background_operations":0,"value":0}`, string(resp.Data.Dispatches[0].State))
	require.Len(t, resp.Data.States, 2)
	assert.NotEmpty(t, resp.Data.States[1].Hash)
	assert.Empty(t, resp.Data.Effects)
	assert.Equal(t, TraceStats{Dispatches: 1, Mutations: 1, States: 2}, resp.Data.Stats)
}

func TestTraceCommand_Dispatch(t *testing.T) {
	db := seedJournal(t)

	stdout, _, err := executeCommand(t, "", "trace", "--db", db, "--dispatch", "d-1")
	require.NoError(t, err)
	assert.Equal(t, "Dispatch d-1 (session s-1)\n  [1] \"AddOne\" at {\"background_operations\":0,\"value\":0}\n", stdout)
}

func TestTraceCommand_NotFound(t *testing.T) {
	db := seedJournal(t)

	tests := []struct {
		name string
		args []string
	}{
		{"session", []string{"--session", "missing"}},
		{"dispatch", []string{"--dispatch", "missing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := executeCommand(t, "", append([]string{"trace", "--db", db}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, stdout, "Error [E005]")
		})
	}
}

func TestTraceCommand_MissingDatabase(t *testing.T) {
	stdout, _, err := executeCommand(t, "", "trace", "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E004]")
}

func TestTraceCommand_RequiresDB(t *testing.T) {
	_, _, err := executeCommand(t, "", "trace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceCommand_RecordedCounterSession(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	_, _, err := executeCommand(t, "AddOne\n", "counter", "--delay-scale", "0", "--db", db)
	require.NoError(t, err)

	stdout, _, err := executeCommand(t, "", "--format", "json", "trace", "--db", db)
	require.NoError(t, err)
	var list struct {
		Data []SessionSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "counter", list.Data[0].Label)

	stdout, _, err = executeCommand(t, "", "trace", "--db", db, "--session", list.Data[0].ID)
	require.NoError(t, err)
	assert.Contains(t, stdout, `[1] "AddOne" at {"background_operations":0,"value":0}`)
	assert.Contains(t, stdout, "Dispatches: 1")
	assert.Contains(t, stdout, "Mutations:  1")
}
