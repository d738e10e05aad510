package bridge

import "context"

// ChatGateway is the capability set the bridge consumes from the chat
// transport. Implementations are bound to a single room; the connection
// lifecycle (login, join, receive loop) belongs to the bootstrap layer.
type ChatGateway interface {
	// SendMessage posts a message to the room and returns its message id.
	SendMessage(ctx context.Context, plainBody, htmlBody string) (string, error)
	// SendThreadReply posts a reply inside the thread anchored at
	// rootMessageID and returns the reply's message id.
	SendThreadReply(ctx context.Context, rootMessageID, plainBody, htmlBody string) (string, error)
	// AddReaction attaches a reaction to a message and returns the id of
	// the reaction event, which is what RemoveMarker later redacts.
	AddReaction(ctx context.Context, targetMessageID, key string) (string, error)
	// RemoveMarker removes a previously attached reaction.
	RemoveMarker(ctx context.Context, markerMessageID, reason string) error
	// RoomID identifies the room this gateway is bound to.
	RoomID() string
}

// IssueAPI is the capability set the bridge consumes from the issue tracker.
type IssueAPI interface {
	PostComment(ctx context.Context, issueID int64, text string) error
	MarkResolved(ctx context.Context, issueID int64) error
}
