// Package notification delivers user-facing notices such as password reset
// links. Templates are registered per notice type on a Manager, which
// renders and hands them to a Notifier. EmailNotifier sends over SMTP;
// MockNotifier captures sends for tests and SMTP-less environments.
package notification
