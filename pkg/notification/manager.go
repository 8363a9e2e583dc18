package notification

import (
	"fmt"
)

// Manager routes notices to a notifier using registered templates.
// Delivery is best-effort from the caller's point of view: callers decide
// whether a send failure is fatal.
type Manager struct {
	notifier Notifier
	registry map[NoticeType]NoticeTemplate

	// BaseUrl is the public base URL used to build links in notice bodies
	BaseUrl string
}

// NewManager creates a manager with the default notice templates registered
func NewManager(notifier Notifier, baseURL string) *Manager {
	m := &Manager{
		notifier: notifier,
		registry: make(map[NoticeType]NoticeTemplate),
		BaseUrl:  baseURL,
	}

	m.RegisterNotice(PasswordResetNotice, NoticeTemplate{
		Subject: "Reset your password",
		Text:    "A password reset was requested for your account. Follow this link to choose a new password: {{.Link}}\n\nIf you did not request this, you can ignore this message.",
	})
	m.RegisterNotice(WelcomeNotice, NoticeTemplate{
		Subject: "Welcome",
		Text:    "Hi {{.DisplayName}}, your account has been created.",
	})

	return m
}

// RegisterNotice adds or replaces the template for a notice type
func (m *Manager) RegisterNotice(noticeType NoticeType, template NoticeTemplate) {
	m.registry[noticeType] = template
}

// Send delivers a notice of the given type
func (m *Manager) Send(noticeType NoticeType, notification NotificationData) error {
	template, ok := m.registry[noticeType]
	if !ok {
		return fmt.Errorf("no template registered for notice type: %s", noticeType)
	}
	return m.notifier.Send(noticeType, notification, template)
}
