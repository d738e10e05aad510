package bridge

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
)

// IssueRecord links an issue in the tracker to the room message that
// announced it. RootMessageID and RoomID are written once at creation and
// never change; StatusMarkerID tracks the reaction currently attached to the
// root message, empty when none is.
type IssueRecord struct {
	IssueID        int64  `json:"issueId"`
	RootMessageID  string `json:"rootMessageId"`
	RoomID         string `json:"roomId"`
	StatusMarkerID string `json:"statusMarkerId,omitempty"`
}

// CorrelationStore is the only shared mutable state in the bridge. The
// uniqueness of IssueID is the sole concurrency guard: concurrent Create
// calls for the same issue must resolve to one stored record, with the loser
// seeing ErrAlreadyExists.
type CorrelationStore interface {
	// Create stores a new record. Returns ErrAlreadyExists when a record
	// for the issue id is already present.
	Create(ctx context.Context, rec IssueRecord) error
	// FindByIssueID returns the record for an issue id, or ErrNotFound.
	FindByIssueID(ctx context.Context, issueID int64) (IssueRecord, error)
	// FindByRootMessageID resolves a thread root message back to its
	// record. It matches the root message only, never replies inside the
	// thread. Returns ErrNotFound when the message is not a tracked root.
	FindByRootMessageID(ctx context.Context, messageID string) (IssueRecord, error)
	// SetStatusMarker updates the marker id for an issue; an empty
	// markerID clears it. Returns ErrNotFound when no record exists.
	SetStatusMarker(ctx context.Context, issueID int64, markerID string) error
	// List returns all records, ordered by issue id.
	List(ctx context.Context) ([]IssueRecord, error)
	Close() error
}
