package notification

// NoticeType represents a type of notification (e.g. "password_reset")
type NoticeType string

const (
	PasswordResetNotice NoticeType = "password_reset"
	WelcomeNotice       NoticeType = "welcome"
)

// NoticeTemplate holds the subject and body templates for a notice.
// Bodies are text/template strings executed against NotificationData.Data.
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

// NotificationData carries the recipient and template data for one send
type NotificationData struct {
	To   string            // Recipient identifier (email address)
	Data map[string]string // Template data
}

// Notifier delivers a rendered notice over one channel
type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
