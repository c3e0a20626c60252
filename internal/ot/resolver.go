package ot

import (
	"errors"
	"fmt"
)

// Merge-layer rejections. The session layer maps these onto its API error
// taxonomy; neither ever corrupts the change log.
var (
	// ErrVersionSkew means the incoming op's base version cannot be
	// reconciled with the history window we hold: the client is ahead of
	// the server, or the window has been pruned. Either way the client
	// must resync from a fresh snapshot.
	ErrVersionSkew = errors.New("version skew")

	// ErrInvalidOperation marks a structurally broken op payload.
	ErrInvalidOperation = errors.New("invalid operation")
)

// PendingOp is one accepted change from the log: the primitive set that was
// applied for it, tagged with the participant that authored it. Seq equals
// the document version the apply produced.
type PendingOp struct {
	Seq           int64
	ParticipantID string
	Ops           []Op
}

// MergeResult is the outcome of rebasing and applying one incoming op.
type MergeResult struct {
	Doc     string
	Ops     []Op // the applied primitive set, in current-document coordinates
	Version int64
}

// Merge rebases an incoming op composed against baseVersion onto the current
// document and applies it. history must hold exactly the accepted ops in
// (baseVersion, version], in sequence order. Pure function: no locking, no
// I/O, deterministic for any argument values, so concurrent delivery orders
// can be replayed byte-for-byte in tests.
func Merge(doc string, version int64, history []PendingOp, participantID string, baseVersion int64, op Op) (*MergeResult, error) {
	if baseVersion > version {
		return nil, fmt.Errorf("%w: base version %d ahead of document version %d", ErrVersionSkew, baseVersion, version)
	}
	if int64(len(history)) != version-baseVersion {
		return nil, fmt.Errorf("%w: need ops (%d,%d] but hold %d", ErrVersionSkew, baseVersion, version, len(history))
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}

	set := expand(op)
	for _, h := range history {
		set = transformSet(set, participantID, h.Ops, h.ParticipantID)
	}

	newDoc, err := ApplySet(doc, set)
	if err != nil {
		return nil, err
	}

	return &MergeResult{
		Doc:     newDoc,
		Ops:     set,
		Version: version + 1,
	}, nil
}
