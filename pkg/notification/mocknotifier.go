package notification

// MockNotifier records sends instead of delivering them. Used in tests and
// as the fallback channel when no SMTP server is configured.
type MockNotifier struct {
	SentNotifications []NotificationData
}

func (m *MockNotifier) Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error {
	m.SentNotifications = append(m.SentNotifications, notification)
	return nil
}
