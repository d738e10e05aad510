package bridge

// NotificationKind classifies an inbound tracker notification.
type NotificationKind string

const (
	KindIssueCreated  NotificationKind = "issue_created"
	KindIssueComment  NotificationKind = "issue_comment"
	KindIssueResolved NotificationKind = "issue_resolved"
	KindOther         NotificationKind = "other"
)

// Notification is a parsed tracker event. IssueID is zero for KindOther.
type Notification struct {
	Kind        NotificationKind
	IssueID     int64
	Subject     string
	Message     string
	ReportedBy  string
	Comment     string
	CommentedBy string
	ImageURL    string
}

// KindFromNotificationType maps the webhook's notification_type enum onto a
// kind. Unknown values become KindOther so new upstream types degrade to
// plain broadcasts instead of being rejected.
func KindFromNotificationType(notificationType string) NotificationKind {
	switch notificationType {
	case "ISSUE_CREATED":
		return KindIssueCreated
	case "ISSUE_COMMENT":
		return KindIssueComment
	case "ISSUE_RESOLVED":
		return KindIssueResolved
	default:
		return KindOther
	}
}
