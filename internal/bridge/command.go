package bridge

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
)

const commandPrefix = "!issues"

// ResolveCommand is the one recognized chat command. Comment is empty when
// no comment was supplied (an empty quoted string counts as none).
type ResolveCommand struct {
	Comment string
}

// ParseCommand interprets a room message body as a command. It returns
// ok=false for anything that is not a well-formed "!issues resolve"; that is
// a normal outcome, not an error.
//
// Quoting: a leading double quote starts a quoted comment and the closing
// quote is optional — when it is missing, the remainder is taken verbatim
// with only the opening quote stripped.
func ParseCommand(body string) (ResolveCommand, bool) {
	body = strings.TrimSpace(body)
	rest, ok := strings.CutPrefix(body, commandPrefix)
	if !ok {
		return ResolveCommand{}, false
	}
	rest = strings.TrimSpace(rest)

	rest, ok = strings.CutPrefix(rest, "resolve")
	if !ok {
		return ResolveCommand{}, false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return ResolveCommand{}, true
	}

	if inner, quoted := strings.CutPrefix(rest, `"`); quoted {
		comment := strings.TrimSuffix(inner, `"`)
		return ResolveCommand{Comment: comment}, true
	}
	return ResolveCommand{Comment: rest}, true
}

// InboundMessage is one room message as delivered by the chat gateway.
// ThreadRootID is empty when the message was not sent inside a thread.
type InboundMessage struct {
	Sender       string
	Body         string
	ThreadRootID string
}

// AdminChecker answers whether a sender may issue commands.
type AdminChecker interface {
	IsAdmin(userID string) bool
}

type InterpreterOptions struct {
	Store    CorrelationStore
	Chat     ChatGateway
	Issues   IssueAPI
	Admins   AdminChecker
	Logger   *slog.Logger
	Activity *ActivityFeed
}

// Interpreter executes authorization-gated chat commands against the issue
// tracker. Gate failures are silent toward the room so the command's
// existence is not leaked to non-admins.
type Interpreter struct {
	store    CorrelationStore
	chat     ChatGateway
	issues   IssueAPI
	admins   AdminChecker
	log      *slog.Logger
	activity *ActivityFeed
}

func NewInterpreter(opts InterpreterOptions) *Interpreter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{
		store:    opts.Store,
		chat:     opts.Chat,
		issues:   opts.Issues,
		admins:   opts.Admins,
		log:      logger,
		activity: opts.Activity,
	}
}

// HandleMessage processes one inbound room message. Remote calls are
// ordered comment, resolve, confirmation reply, each gated on the success of
// the previous; a failure aborts the command and the admin simply sees no
// confirmation.
func (i *Interpreter) HandleMessage(ctx context.Context, msg InboundMessage) error {
	if i.admins == nil || !i.admins.IsAdmin(msg.Sender) {
		return nil
	}
	cmd, ok := ParseCommand(msg.Body)
	if !ok {
		return nil
	}
	if msg.ThreadRootID == "" {
		i.log.Warn("resolve command outside a thread ignored", "sender", msg.Sender)
		return nil
	}

	rec, err := i.store.FindByRootMessageID(ctx, msg.ThreadRootID)
	if errors.Is(err, ErrNotFound) {
		i.log.Warn("resolve command in untracked thread ignored",
			"sender", msg.Sender, "thread_root", msg.ThreadRootID)
		return nil
	}
	if err != nil {
		i.log.Error("store lookup failed", "op", "resolve_command", "thread_root", msg.ThreadRootID, "err", err)
		return err
	}

	if cmd.Comment != "" {
		if err := i.issues.PostComment(ctx, rec.IssueID, cmd.Comment); err != nil {
			i.log.Error("comment failed", "issue_id", rec.IssueID, "err", err)
			return err
		}
		i.log.Info("comment added", "issue_id", rec.IssueID, "sender", msg.Sender)
	}
	if err := i.issues.MarkResolved(ctx, rec.IssueID); err != nil {
		i.log.Error("resolve failed", "issue_id", rec.IssueID, "err", err)
		return err
	}
	i.log.Info("issue resolved via command", "issue_id", rec.IssueID, "sender", msg.Sender)

	plain := fmt.Sprintf("Issue %d resolved", rec.IssueID)
	formatted := "<b>" + html.EscapeString(plain) + "</b>"
	if _, err := i.chat.SendThreadReply(ctx, rec.RootMessageID, plain, formatted); err != nil {
		i.log.Error("confirmation reply failed", "issue_id", rec.IssueID, "err", err)
		return err
	}
	if i.activity != nil {
		i.activity.Publish(ActivityEvent{Type: "command_resolve", IssueID: rec.IssueID, Detail: msg.Sender})
	}
	return nil
}
