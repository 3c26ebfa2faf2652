package store

import (
	"context"
	"fmt"
)

// CreateSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	if sess.ID == "" {
		return fmt.Errorf("create session: empty id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, label, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, sess.ID, sess.Label, formatTime(sess.StartedAt))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// WriteDispatch inserts a dispatch record.
// Note: The session referenced by SessionID must exist (foreign key constraint).
func (s *Store) WriteDispatch(ctx context.Context, d Dispatch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatches (session_id, seq, dispatch_id, action, state)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, d.SessionID, d.Seq, d.DispatchID, d.Action, d.State)
	if err != nil {
		return fmt.Errorf("write dispatch: %w", err)
	}
	return nil
}

// WriteMutation inserts a mutation record.
func (s *Store) WriteMutation(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mutations (session_id, seq, mutation)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`, rec.SessionID, rec.Seq, rec.Payload)
	if err != nil {
		return fmt.Errorf("write mutation: %w", err)
	}
	return nil
}

// WriteState inserts a state record. The hash is computed from the payload
// and any Hash on rec is ignored.
func (s *Store) WriteState(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO states (session_id, seq, state, hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, rec.SessionID, rec.Seq, rec.Payload, hashWithDomain(DomainState, rec.Payload))
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// WriteEffect inserts an effect record.
func (s *Store) WriteEffect(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO effects (session_id, seq, effect)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`, rec.SessionID, rec.Seq, rec.Payload)
	if err != nil {
		return fmt.Errorf("write effect: %w", err)
	}
	return nil
}
