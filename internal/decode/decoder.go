// Package decode parses raw device lines into vote events. Each line is
// decoded independently; nothing is carried between calls.
package decode

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/holidayvote/bridge/internal/model"
)

// Banner is the single line the device prints once after boot. It is not a
// vote but also not garbage, so callers get to log it at a friendlier level.
const Banner = "READY"

// Error reports a line that could not be decoded as a vote. The stream
// continues; the line is simply discarded.
type Error struct {
	Line   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("decode %q: %s", e.Line, e.Reason)
}

// Decode parses one device line of the exact shape "VOTE,<int>" with the
// candidate in 1..candidates. Anything else returns an *Error.
func Decode(line string, candidates int, now time.Time) (model.VoteEvent, error) {
	line = strings.TrimSpace(line)
	prefix, value, ok := strings.Cut(line, ",")
	if !ok || prefix != "VOTE" {
		return model.VoteEvent{}, &Error{Line: line, Reason: "not a vote line"}
	}
	id, err := strconv.Atoi(value)
	if err != nil {
		return model.VoteEvent{}, &Error{Line: line, Reason: "candidate is not an integer"}
	}
	if id < 1 || id > candidates {
		return model.VoteEvent{}, &Error{Line: line, Reason: fmt.Sprintf("candidate %d out of range 1..%d", id, candidates)}
	}
	return model.VoteEvent{Candidate: model.CandidateID(id), ReceivedAt: now}, nil
}
