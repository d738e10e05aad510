package bridge

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
)

const defaultOpenMarker = "⚠️"

type RouterOptions struct {
	Store      CorrelationStore
	Chat       ChatGateway
	OpenMarker string
	Logger     *slog.Logger
	Activity   *ActivityFeed
}

// Router turns tracker notifications into chat operations and correlation
// store mutations. Invocations for different issue ids run fully in
// parallel; the store's issue_id uniqueness is the only cross-invocation
// guard.
type Router struct {
	store      CorrelationStore
	chat       ChatGateway
	openMarker string
	log        *slog.Logger
	activity   *ActivityFeed
}

func NewRouter(opts RouterOptions) *Router {
	marker := strings.TrimSpace(opts.OpenMarker)
	if marker == "" {
		marker = defaultOpenMarker
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:      opts.Store,
		chat:       opts.Chat,
		openMarker: marker,
		log:        logger,
		activity:   opts.Activity,
	}
}

// HandleNotification processes one webhook delivery to completion. Failures
// abort only this invocation; redelivery is the webhook source's job and is
// safe because creation is idempotent.
func (r *Router) HandleNotification(ctx context.Context, n Notification) error {
	switch n.Kind {
	case KindIssueCreated:
		return r.handleCreated(ctx, n)
	case KindIssueComment:
		return r.handleComment(ctx, n)
	case KindIssueResolved:
		return r.handleResolved(ctx, n)
	default:
		return r.handleBroadcast(ctx, n)
	}
}

func (r *Router) handleBroadcast(ctx context.Context, n Notification) error {
	plain, htmlBody := renderBroadcast(n)
	if _, err := r.chat.SendMessage(ctx, plain, htmlBody); err != nil {
		r.log.Error("broadcast send failed", "subject", n.Subject, "err", err)
		return err
	}
	r.publish(ActivityEvent{Type: "broadcast", Detail: n.Subject})
	return nil
}

func (r *Router) handleCreated(ctx context.Context, n Notification) error {
	rec, err := r.store.FindByIssueID(ctx, n.IssueID)
	switch {
	case err == nil:
		// Duplicate delivery; the root message already exists.
		r.log.Info("issue already announced", "issue_id", n.IssueID)
	case errors.Is(err, ErrNotFound):
		rec, err = r.announceIssue(ctx, n)
		if err != nil {
			return err
		}
	default:
		r.log.Error("store lookup failed", "issue_id", n.IssueID, "op", "create", "err", err)
		return err
	}

	if rec.StatusMarkerID != "" {
		return nil
	}
	markerID, err := r.chat.AddReaction(ctx, rec.RootMessageID, r.openMarker)
	if err != nil {
		r.log.Error("marker add failed", "issue_id", n.IssueID, "err", err)
		return err
	}
	if err := r.store.SetStatusMarker(ctx, n.IssueID, markerID); err != nil {
		r.log.Error("marker record failed", "issue_id", n.IssueID, "err", err)
		return err
	}
	return nil
}

// announceIssue sends the root message and creates the correlation record.
// The message id only exists after the send, so a concurrent duplicate
// delivery is caught afterwards by the store's uniqueness guard; the loser
// logs and carries on with the winner's record.
func (r *Router) announceIssue(ctx context.Context, n Notification) (IssueRecord, error) {
	plain, htmlBody := renderIssueCreated(n)
	messageID, err := r.chat.SendMessage(ctx, plain, htmlBody)
	if err != nil {
		r.log.Error("root message send failed", "issue_id", n.IssueID, "err", err)
		return IssueRecord{}, err
	}
	rec := IssueRecord{
		IssueID:       n.IssueID,
		RootMessageID: messageID,
		RoomID:        r.chat.RoomID(),
	}
	err = r.store.Create(ctx, rec)
	if errors.Is(err, ErrAlreadyExists) {
		r.log.Warn("lost creation race, keeping existing record", "issue_id", n.IssueID)
		return r.store.FindByIssueID(ctx, n.IssueID)
	}
	if err != nil {
		r.log.Error("record create failed", "issue_id", n.IssueID, "err", err)
		return IssueRecord{}, err
	}
	r.publish(ActivityEvent{Type: "issue_created", IssueID: n.IssueID, Detail: n.Subject})
	return rec, nil
}

func (r *Router) handleComment(ctx context.Context, n Notification) error {
	rec, err := r.lookupExisting(ctx, n, "comment")
	if err != nil || rec.IssueID == 0 {
		return err
	}
	plain, htmlBody := renderIssueComment(n)
	if _, err := r.chat.SendThreadReply(ctx, rec.RootMessageID, plain, htmlBody); err != nil {
		r.log.Error("comment reply failed", "issue_id", n.IssueID, "err", err)
		return err
	}
	r.publish(ActivityEvent{Type: "issue_comment", IssueID: n.IssueID, Detail: n.CommentedBy})
	return nil
}

func (r *Router) handleResolved(ctx context.Context, n Notification) error {
	rec, err := r.lookupExisting(ctx, n, "resolve")
	if err != nil || rec.IssueID == 0 {
		return err
	}
	plain, htmlBody := renderIssueResolved(n)
	if _, err := r.chat.SendThreadReply(ctx, rec.RootMessageID, plain, htmlBody); err != nil {
		r.log.Error("resolution reply failed", "issue_id", n.IssueID, "err", err)
		return err
	}
	if rec.StatusMarkerID != "" {
		// Clear the bookkeeping first: a stale visual marker after a
		// crash is cheaper than a second redact attempt on restart.
		if err := r.store.SetStatusMarker(ctx, n.IssueID, ""); err != nil {
			r.log.Error("marker clear failed", "issue_id", n.IssueID, "err", err)
			return err
		}
		if err := r.chat.RemoveMarker(ctx, rec.StatusMarkerID, "issue resolved"); err != nil {
			r.log.Error("marker remove failed", "issue_id", n.IssueID, "err", err)
			return err
		}
	}
	r.publish(ActivityEvent{Type: "issue_resolved", IssueID: n.IssueID})
	return nil
}

// lookupExisting fetches the record a comment/resolve notification targets.
// A missing record is a reported-but-non-fatal condition: such notifications
// cannot precede the creation notification under correct operation, so they
// are dropped with a warning rather than buffered.
func (r *Router) lookupExisting(ctx context.Context, n Notification, op string) (IssueRecord, error) {
	rec, err := r.store.FindByIssueID(ctx, n.IssueID)
	if errors.Is(err, ErrNotFound) {
		r.log.Warn("notification for unknown issue dropped", "issue_id", n.IssueID, "op", op)
		return IssueRecord{}, nil
	}
	if err != nil {
		r.log.Error("store lookup failed", "issue_id", n.IssueID, "op", op, "err", err)
		return IssueRecord{}, err
	}
	return rec, nil
}

func (r *Router) publish(ev ActivityEvent) {
	if r.activity != nil {
		r.activity.Publish(ev)
	}
}

func renderIssueCreated(n Notification) (string, string) {
	var plain, formatted strings.Builder
	title := fmt.Sprintf("🚨 New issue #%d: %s", n.IssueID, n.Subject)
	plain.WriteString(title)
	formatted.WriteString("<b>" + html.EscapeString(title) + "</b>")
	if n.Message != "" {
		plain.WriteString("\n" + n.Message)
		formatted.WriteString("<br/>" + html.EscapeString(n.Message))
	}
	if n.ReportedBy != "" {
		plain.WriteString("\nReported by " + n.ReportedBy)
		formatted.WriteString("<br/><i>Reported by " + html.EscapeString(n.ReportedBy) + "</i>")
	}
	if n.ImageURL != "" {
		plain.WriteString("\n" + n.ImageURL)
		formatted.WriteString(`<br/><a href="` + html.EscapeString(n.ImageURL) + `">image</a>`)
	}
	return plain.String(), formatted.String()
}

func renderIssueComment(n Notification) (string, string) {
	author := n.CommentedBy
	if author == "" {
		author = "someone"
	}
	plain := fmt.Sprintf("💬 %s commented: %s", author, n.Comment)
	formatted := fmt.Sprintf("💬 <b>%s</b> commented: %s",
		html.EscapeString(author), html.EscapeString(n.Comment))
	return plain, formatted
}

func renderIssueResolved(n Notification) (string, string) {
	plain := fmt.Sprintf("✅ Issue #%d resolved", n.IssueID)
	return plain, "<b>" + html.EscapeString(plain) + "</b>"
}

func renderBroadcast(n Notification) (string, string) {
	var plain, formatted strings.Builder
	plain.WriteString(n.Subject)
	formatted.WriteString("<b>" + html.EscapeString(n.Subject) + "</b>")
	if n.Message != "" {
		plain.WriteString("\n" + n.Message)
		formatted.WriteString("<br/>" + html.EscapeString(n.Message))
	}
	if n.ImageURL != "" {
		plain.WriteString("\n" + n.ImageURL)
		formatted.WriteString(`<br/><a href="` + html.EscapeString(n.ImageURL) + `">image</a>`)
	}
	return plain.String(), formatted.String()
}
