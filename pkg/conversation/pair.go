package conversation

import (
	"github.com/google/uuid"
)

// Pair is the identity of a 1:1 conversation, derived from the unordered pair of
// participant ids. It is canonicalized on construction so that the pair built from
// (a, b) and the pair built from (b, a) are the same value, and the derived Key is
// stable across process restarts. There is no stored Conversation entity; storage
// and delivery both filter by membership of this pair.
type Pair struct {
	A uuid.UUID // lower id in string order
	B uuid.UUID
}

// NewPair canonicalizes the two participant ids into a Pair.
func NewPair(x, y uuid.UUID) Pair {
	if y.String() < x.String() {
		x, y = y, x
	}
	return Pair{A: x, B: y}
}

// Key returns the stable, inspectable conversation identity: the two ids sorted
// and joined. Distinct unordered pairs always produce distinct keys.
func (p Pair) Key() string {
	return p.A.String() + ":" + p.B.String()
}

// Matches reports whether a message exchanged between sender and receiver belongs
// to this conversation.
func (p Pair) Matches(sender, receiver uuid.UUID) bool {
	return (sender == p.A && receiver == p.B) || (sender == p.B && receiver == p.A)
}

// Contains reports whether id is one of the two participants.
func (p Pair) Contains(id uuid.UUID) bool {
	return id == p.A || id == p.B
}

// Other returns the participant that is not id. Falls back to A when id is not a
// member at all.
func (p Pair) Other(id uuid.UUID) uuid.UUID {
	if id == p.A {
		return p.B
	}
	return p.A
}
