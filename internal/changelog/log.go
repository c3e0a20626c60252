package changelog

import (
	"fmt"
	"sync"
	"time"

	"code-collab/internal/models"
	"code-collab/internal/ot"
)

// Log is the append-only, sequence-numbered history of accepted operations
// for a single room. Sequence numbers are the document versions the ops
// produced: the first accepted op is seq 1, and Head() equals the current
// document version.
//
// The log is the resolver's history window and the replay source for
// reconnecting clients. Entries older than the retention horizon are pruned;
// a read that would need pruned entries reports version skew instead of
// guessing.
type Log struct {
	mu sync.RWMutex

	roomID string
	ops    []models.ChangeOp
	first  int64 // seq of ops[0]; head is first+len(ops)-1

	// byOpID dedupes client retries: op ID -> seq it was accepted at.
	// Pruned together with the entries it points into.
	byOpID map[string]int64
}

// New creates an empty log for a room. The next accepted op gets sequence
// number startVersion+1, so a log rebuilt from a snapshot at version N picks
// up where the durable history ends.
func New(roomID string, startVersion int64) *Log {
	return &Log{
		roomID: roomID,
		first:  startVersion + 1,
		byOpID: make(map[string]int64),
	}
}

// Head returns the sequence number of the newest entry, which is the current
// document version.
func (l *Log) Head() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.head()
}

func (l *Log) head() int64 {
	return l.first + int64(len(l.ops)) - 1
}

// Append assigns the next sequence number to op and stores it. If the op ID
// was already accepted (a client retry after a transient failure), the
// original sequence number is returned with duplicate=true and nothing is
// appended.
func (l *Log) Append(op models.ChangeOp) (seq int64, duplicate bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.byOpID[op.OpID]; ok {
		return prev, true
	}

	op.Seq = l.head() + 1
	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now()
	}
	l.ops = append(l.ops, op)
	l.byOpID[op.OpID] = op.Seq
	return op.Seq, false
}

// Seen reports whether an op ID has already been accepted, and at which
// sequence number.
func (l *Log) Seen(opID string) (int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seq, ok := l.byOpID[opID]
	return seq, ok
}

// Since returns the ops with sequence numbers in (version, head], in order.
// A simple range read over retained entries: if version predates the pruned
// horizon the caller must resync from a snapshot instead.
func (l *Log) Since(version int64) ([]models.ChangeOp, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	head := l.head()
	if version > head {
		return nil, fmt.Errorf("%w: since %d ahead of head %d", ot.ErrVersionSkew, version, head)
	}
	if version < l.first-1 {
		return nil, fmt.Errorf("%w: since %d predates retained window starting at %d", ot.ErrVersionSkew, version, l.first)
	}

	start := version - l.first + 1
	out := make([]models.ChangeOp, head-version)
	copy(out, l.ops[start:])
	return out, nil
}

// Pending converts the ops in (version, head] into the resolver's history
// form. Same window semantics as Since.
func (l *Log) Pending(version int64) ([]ot.PendingOp, error) {
	ops, err := l.Since(version)
	if err != nil {
		return nil, err
	}
	pending := make([]ot.PendingOp, len(ops))
	for i, op := range ops {
		pending[i] = ot.PendingOp{Seq: op.Seq, ParticipantID: op.ParticipantID, Ops: op.Ops}
	}
	return pending, nil
}

// Prune drops entries beyond the retention horizon: everything except the
// newest keepOps entries, unless the entry is still younger than keepAge
// (whichever keeps more). Returns the number of entries dropped.
func (l *Log) Prune(keepOps int, keepAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.ops) <= keepOps {
		return 0
	}

	cutoff := time.Now().Add(-keepAge)
	drop := len(l.ops) - keepOps
	for i := 0; i < drop; i++ {
		if l.ops[i].Timestamp.After(cutoff) {
			drop = i
			break
		}
	}
	if drop == 0 {
		return 0
	}

	for _, op := range l.ops[:drop] {
		delete(l.byOpID, op.OpID)
	}
	l.ops = append([]models.ChangeOp(nil), l.ops[drop:]...)
	l.first += int64(drop)
	return drop
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ops)
}
