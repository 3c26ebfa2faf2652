package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pedroql/mvflow/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string `validate:"required"`
	Session  string
	Dispatch string
}

// SessionSummary is one row of the session listing.
type SessionSummary struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	StartedAt string `json:"started_at"`
}

// TraceEntry is one recorded value of a session stream.
type TraceEntry struct {
	Seq        int64           `json:"seq"`
	DispatchID string          `json:"dispatch_id,omitempty"`
	Value      json.RawMessage `json:"value"`
	State      json.RawMessage `json:"state,omitempty"`
	Hash       string          `json:"hash,omitempty"`
}

// TraceResult holds a recorded session.
type TraceResult struct {
	Session    SessionSummary `json:"session"`
	Dispatches []TraceEntry   `json:"dispatches"`
	Mutations  []TraceEntry   `json:"mutations"`
	States     []TraceEntry   `json:"states"`
	Effects    []TraceEntry   `json:"effects"`
	Stats      TraceStats     `json:"stats"`
}

// TraceStats holds summary statistics for the session.
type TraceStats struct {
	Dispatches int `json:"dispatches"`
	Mutations  int `json:"mutations"`
	States     int `json:"states"`
	Effects    int `json:"effects"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded sessions",
		Long: `Inspect sessions recorded with "mvflow counter --db".

Without --session, lists the recorded sessions. With --session, prints the
session's dispatches (each with the state it was dispatched against), the
applied mutations, the observed states and the emitted effects. With
--dispatch, prints a single dispatch.

Examples:
  mvflow trace --db ./journal.db
  mvflow trace --db ./journal.db --session 0190a5c2-...
  mvflow trace --db ./journal.db --dispatch 0190a5c2-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to print")
	cmd.Flags().StringVar(&opts.Dispatch, "dispatch", "", "dispatch ID to print")
	cmd.MarkFlagsMutuallyExclusive("session", "dispatch")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	if err := validate.Struct(opts); err != nil {
		return WrapExitError(ExitCommandError, "invalid trace options", err)
	}
	formatter := opts.formatter(cmd)

	if _, err := os.Stat(opts.Database); err != nil {
		return formatter.Fail(ExitCommandError, CodeDatabase, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, CodeDatabase, "failed to open database", err)
	}
	defer st.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	switch {
	case opts.Dispatch != "":
		return traceDispatch(ctx, st, opts.Dispatch, formatter)
	case opts.Session != "":
		return traceSession(ctx, st, opts.Session, formatter)
	default:
		return listSessions(ctx, st, formatter)
	}
}

func listSessions(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, CodeDatabase, "failed to list sessions", err)
	}
	summaries := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, summarize(s))
	}

	return formatter.Result(true, summaries, func(w io.Writer) {
		if len(summaries) == 0 {
			fmt.Fprintln(w, "No sessions recorded.")
			return
		}
		for _, s := range summaries {
			fmt.Fprintf(w, "%s  %s  %s\n", s.ID, s.StartedAt, s.Label)
		}
	})
}

func traceSession(ctx context.Context, st *store.Store, id string, formatter *OutputFormatter) error {
	journal, err := st.ReadSession(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return formatter.Fail(ExitFailure, CodeSessionAbsent, fmt.Sprintf("session not found: %s", id), nil)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, CodeDatabase, "failed to read session", err)
	}

	result := TraceResult{
		Session:    summarize(journal.Session),
		Dispatches: make([]TraceEntry, 0, len(journal.Dispatches)),
		Mutations:  entries(journal.Mutations),
		States:     entries(journal.States),
		Effects:    entries(journal.Effects),
		Stats: TraceStats{
			Dispatches: len(journal.Dispatches),
			Mutations:  len(journal.Mutations),
			States:     len(journal.States),
			Effects:    len(journal.Effects),
		},
	}
	for _, d := range journal.Dispatches {
		result.Dispatches = append(result.Dispatches, dispatchEntry(d))
	}

	return formatter.Result(true, result, func(w io.Writer) {
		writeTraceText(w, result, formatter.Verbose)
	})
}

func traceDispatch(ctx context.Context, st *store.Store, id string, formatter *OutputFormatter) error {
	d, err := st.ReadDispatch(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return formatter.Fail(ExitFailure, CodeSessionAbsent, fmt.Sprintf("dispatch not found: %s", id), nil)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, CodeDatabase, "failed to read dispatch", err)
	}
	entry := dispatchEntry(d)

	return formatter.Result(true, entry, func(w io.Writer) {
		fmt.Fprintf(w, "Dispatch %s (session %s)\n", d.DispatchID, d.SessionID)
		fmt.Fprintf(w, "  [%d] %s at %s\n", entry.Seq, entry.Value, entry.State)
	})
}

func summarize(s store.Session) SessionSummary {
	return SessionSummary{
		ID:        s.ID,
		Label:     s.Label,
		StartedAt: s.StartedAt.UTC().Format(time.RFC3339),
	}
}

func dispatchEntry(d store.Dispatch) TraceEntry {
	return TraceEntry{
		Seq:        d.Seq,
		DispatchID: d.DispatchID,
		Value:      json.RawMessage(d.Action),
		State:      json.RawMessage(d.State),
	}
}

func entries(records []store.Record) []TraceEntry {
	out := make([]TraceEntry, 0, len(records))
	for _, r := range records {
		out = append(out, TraceEntry{Seq: r.Seq, Value: json.RawMessage(r.Payload), Hash: r.Hash})
	}
	return out
}

func writeTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Session: %s (%s)\n", result.Session.ID, result.Session.Label)
	fmt.Fprintf(w, "Started: %s\n", result.Session.StartedAt)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Dispatches ===")
	if len(result.Dispatches) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, d := range result.Dispatches {
		fmt.Fprintf(w, "  [%d] %s at %s\n", d.Seq, d.Value, d.State)
		if verbose {
			fmt.Fprintf(w, "       ID: %s\n", d.DispatchID)
		}
	}
	fmt.Fprintln(w)

	section := func(title string, list []TraceEntry) {
		fmt.Fprintf(w, "=== %s ===\n", title)
		if len(list) == 0 {
			fmt.Fprintln(w, "  (none)")
		}
		for _, e := range list {
			fmt.Fprintf(w, "  [%d] %s\n", e.Seq, e.Value)
			if verbose && e.Hash != "" {
				fmt.Fprintf(w, "       Hash: %s\n", e.Hash)
			}
		}
		fmt.Fprintln(w)
	}
	section("Mutations", result.Mutations)
	section("States", result.States)
	section("Effects", result.Effects)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Dispatches: %d\n", result.Stats.Dispatches)
	fmt.Fprintf(w, "  Mutations:  %d\n", result.Stats.Mutations)
	fmt.Fprintf(w, "  States:     %d\n", result.Stats.States)
	fmt.Fprintf(w, "  Effects:    %d\n", result.Stats.Effects)
}
