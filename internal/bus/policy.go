package bus

import "fmt"

// Overflow selects how a bounded subscription reacts to a full queue.
type Overflow int

const (
	// DropNewest rejects the value being published.
	DropNewest Overflow = iota + 1
	// Block makes Send wait for room. Offer still rejects.
	Block
)

// String returns the overflow name used in logs and flags.
func (o Overflow) String() string {
	switch o {
	case DropNewest:
		return "drop"
	case Block:
		return "block"
	default:
		return fmt.Sprintf("overflow(%d)", int(o))
	}
}

// ParseOverflow maps "drop" or "block" to an Overflow.
func ParseOverflow(s string) (Overflow, error) {
	switch s {
	case "drop":
		return DropNewest, nil
	case "block":
		return Block, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy %q: must be drop or block", s)
	}
}

// Policy describes the queue each subscription gets.
type Policy struct {
	// Capacity is the number of undelivered values a subscription holds.
	Capacity int

	// Conflate overwrites the held value instead of rejecting. Capacity is 1.
	Conflate bool

	// Overflow applies to bounded (non-conflating) policies.
	Overflow Overflow
}

// Conflate returns the single-slot, newest-wins policy.
func Conflate() Policy {
	return Policy{Capacity: 1, Conflate: true}
}

// Buffered returns a bounded policy holding up to n values.
// n below 1 is raised to 1.
func Buffered(n int, overflow Overflow) Policy {
	if n < 1 {
		n = 1
	}
	if overflow == 0 {
		overflow = DropNewest
	}
	return Policy{Capacity: n, Overflow: overflow}
}

func (p Policy) String() string {
	if p.Conflate {
		return "conflate"
	}
	return fmt.Sprintf("buffered(%d,%s)", p.Capacity, p.Overflow)
}
