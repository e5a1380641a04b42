package model

import "time"

// CandidateID identifies one of the fixed voting buttons, numbered 1..N.
type CandidateID int

// VoteEvent is a single decoded button press. It lives only long enough to
// be applied to the store; the audit record it produces is what persists.
type VoteEvent struct {
	Candidate  CandidateID `json:"candidate"`
	ReceivedAt time.Time   `json:"received_at"`
}

// AuditRecord is one accepted vote as written to the append-only log.
// Count is the candidate's running total after this vote.
type AuditRecord struct {
	Timestamp time.Time   `json:"timestamp"`
	Candidate CandidateID `json:"candidate"`
	Count     int         `json:"count"`
}

// Tally maps every candidate to its current vote count. A tally is always
// dense: every candidate 1..N has an entry, zero included.
type Tally map[CandidateID]int

// NewTally returns a zeroed tally covering candidates 1..n.
func NewTally(n int) Tally {
	t := make(Tally, n)
	for id := 1; id <= n; id++ {
		t[CandidateID(id)] = 0
	}
	return t
}

func (t Tally) Clone() Tally {
	out := make(Tally, len(t))
	for id, count := range t {
		out[id] = count
	}
	return out
}

func (t Tally) Equal(other Tally) bool {
	if len(t) != len(other) {
		return false
	}
	for id, count := range t {
		if other[id] != count {
			return false
		}
	}
	return true
}

// Total is the number of votes across all candidates.
func (t Tally) Total() int {
	sum := 0
	for _, count := range t {
		sum += count
	}
	return sum
}

// Merge reconciles two independently maintained tallies by taking the
// element-wise maximum per candidate. Both sides may hold votes the other
// missed, so neither can be dropped wholesale; the maximum is the monotonic
// choice that loses nothing.
func Merge(a, b Tally) Tally {
	out := a.Clone()
	for id, count := range b {
		if count > out[id] {
			out[id] = count
		}
	}
	return out
}
