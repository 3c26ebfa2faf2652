package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, s, "sess-1")

	// Same ID with a different label is ignored.
	again := sess
	again.Label = "other"
	require.NoError(t, s.CreateSession(ctx, again))

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count))
	assert.Equal(t, 1, count)

	var label string
	require.NoError(t, s.db.QueryRow("SELECT label FROM sessions WHERE id = ?", "sess-1").Scan(&label))
	assert.Equal(t, "counter", label)
}

func TestCreateSession_EmptyID(t *testing.T) {
	s := createTestStore(t)
	err := s.CreateSession(context.Background(), Session{StartedAt: time.Now()})
	assert.ErrorContains(t, err, "empty id")
}

func TestWriteDispatch_RequiresSession(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteDispatch(context.Background(), Dispatch{
		SessionID:  "missing",
		Seq:        1,
		DispatchID: "d-1",
		Action:     `"AddOne"`,
		State:      `{"Value":0}`,
	})
	assert.Error(t, err, "foreign key should reject unknown session")
}

func TestWriteDispatch_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "sess-1")

	d := Dispatch{SessionID: "sess-1", Seq: 1, DispatchID: "d-1", Action: `"AddOne"`, State: `{"Value":0}`}
	require.NoError(t, s.WriteDispatch(ctx, d))
	require.NoError(t, s.WriteDispatch(ctx, d))

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM dispatches").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWriteState_ComputesHash(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "sess-1")

	require.NoError(t, s.WriteState(ctx, Record{SessionID: "sess-1", Seq: 1, Payload: `{"Value":1}`, Hash: "ignored"}))
	require.NoError(t, s.WriteState(ctx, Record{SessionID: "sess-1", Seq: 2, Payload: `{"Value":1}`}))
	require.NoError(t, s.WriteState(ctx, Record{SessionID: "sess-1", Seq: 3, Payload: `{"Value":2}`}))

	rows, err := s.db.Query("SELECT hash FROM states ORDER BY seq")
	require.NoError(t, err)
	defer rows.Close()
	var hashes []string
	for rows.Next() {
		var h string
		require.NoError(t, rows.Scan(&h))
		hashes = append(hashes, h)
	}
	require.NoError(t, rows.Err())

	require.Len(t, hashes, 3)
	assert.Equal(t, hashWithDomain(DomainState, `{"Value":1}`), hashes[0])
	assert.Equal(t, hashes[0], hashes[1])
	assert.NotEqual(t, hashes[0], hashes[2])
	assert.Len(t, hashes[0], 64)
}

func TestWriteMutationAndEffect(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "sess-1")

	require.NoError(t, s.WriteMutation(ctx, Record{SessionID: "sess-1", Seq: 1, Payload: `{"Amount":1}`}))
	require.NoError(t, s.WriteEffect(ctx, Record{SessionID: "sess-1", Seq: 1, Payload: `{"Toast":"hi"}`}))

	var m, e string
	require.NoError(t, s.db.QueryRow("SELECT mutation FROM mutations").Scan(&m))
	require.NoError(t, s.db.QueryRow("SELECT effect FROM effects").Scan(&e))
	assert.Equal(t, `{"Amount":1}`, m)
	assert.Equal(t, `{"Toast":"hi"}`, e)
}

func TestEncodePayload(t *testing.T) {
	got, err := EncodePayload(struct {
		B int
		A string
	}{B: 2, A: "x"})
	require.NoError(t, err)
	assert.Equal(t, `{"A":"x","B":2}`, got)

	_, err = EncodePayload(0.5)
	assert.ErrorContains(t, err, "encode payload")
}
