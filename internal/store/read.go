package store

import (
	"context"
	"fmt"
)

// ReadSession returns a session and all of its streams.
// Results are ordered deterministically: ORDER BY seq ASC.
// Returns sql.ErrNoRows (wrapped) if the session does not exist.
func (s *Store) ReadSession(ctx context.Context, id string) (Journal, error) {
	sess, err := s.readSessionRow(ctx, id)
	if err != nil {
		return Journal{}, err
	}

	dispatches, err := s.readDispatches(ctx, id)
	if err != nil {
		return Journal{}, err
	}
	mutations, err := s.readRecords(ctx, `
		SELECT session_id, seq, mutation, ''
		FROM mutations WHERE session_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return Journal{}, fmt.Errorf("read mutations: %w", err)
	}
	states, err := s.readRecords(ctx, `
		SELECT session_id, seq, state, hash
		FROM states WHERE session_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return Journal{}, fmt.Errorf("read states: %w", err)
	}
	effects, err := s.readRecords(ctx, `
		SELECT session_id, seq, effect, ''
		FROM effects WHERE session_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return Journal{}, fmt.Errorf("read effects: %w", err)
	}

	return Journal{
		Session:    sess,
		Dispatches: dispatches,
		Mutations:  mutations,
		States:     states,
		Effects:    effects,
	}, nil
}

// ListSessions returns all sessions ordered by start time, then id.
// Returns an empty slice (not nil) when the journal is empty.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, started_at
		FROM sessions
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadDispatch retrieves a single dispatch by its dispatch ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadDispatch(ctx context.Context, dispatchID string) (Dispatch, error) {
	var d Dispatch
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, seq, dispatch_id, action, state
		FROM dispatches
		WHERE dispatch_id = ?
	`, dispatchID).Scan(&d.SessionID, &d.Seq, &d.DispatchID, &d.Action, &d.State)
	if err != nil {
		return Dispatch{}, err
	}
	return d, nil
}

func (s *Store) readSessionRow(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, label, started_at
		FROM sessions
		WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if err != nil {
		return Session{}, fmt.Errorf("read session %q: %w", id, err)
	}
	return sess, nil
}

func (s *Store) readDispatches(ctx context.Context, sessionID string) ([]Dispatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, dispatch_id, action, state
		FROM dispatches
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	dispatches := []Dispatch{}
	for rows.Next() {
		var d Dispatch
		if err := rows.Scan(&d.SessionID, &d.Seq, &d.DispatchID, &d.Action, &d.State); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		dispatches = append(dispatches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	return dispatches, nil
}

func (s *Store) readRecords(ctx context.Context, query, sessionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.SessionID, &r.Seq, &r.Payload, &r.Hash); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (Session, error) {
	var sess Session
	var started string
	if err := sc.Scan(&sess.ID, &sess.Label, &started); err != nil {
		return Session{}, err
	}
	t, err := parseTime(started)
	if err != nil {
		return Session{}, err
	}
	sess.StartedAt = t
	return sess, nil
}
