package store

import "time"

// Session identifies one recorded run of an engine.
type Session struct {
	ID        string
	Label     string
	StartedAt time.Time
}

// Dispatch is one accepted action and the state snapshot it was
// dispatched against.
type Dispatch struct {
	SessionID  string
	Seq        int64
	DispatchID string
	Action     string
	State      string
}

// Record is one entry of the mutation, state or effect stream.
// Hash is set for states only.
type Record struct {
	SessionID string
	Seq       int64
	Payload   string
	Hash      string
}

// Journal is a session read back in stream order.
type Journal struct {
	Session    Session
	Dispatches []Dispatch
	Mutations  []Record
	States     []Record
	Effects    []Record
}
