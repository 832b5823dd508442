// Package notify delivers account emails: verification codes, password reset
// codes and the welcome message.
package notify

import (
	"context"
	"log/slog"
)

// Message subjects.
const (
	SubjectWelcome      = "Welcome to our Platform"
	SubjectVerification = "Email Verification"
	SubjectReset        = "Password Reset OTP"
)

// Notifier sends account emails. Implementations must not retain the codes
// they are given.
type Notifier interface {
	SendVerification(ctx context.Context, email, code string) error
	SendPasswordReset(ctx context.Context, email, code string) error
	SendWelcome(ctx context.Context, email, name string) error
}

// LogNotifier records that a message would have been sent without
// delivering it. Codes are never written to the log.
type LogNotifier struct {
	logger *slog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier returns a LogNotifier writing to logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With(slog.String("component", "notify"))}
}

func (n *LogNotifier) SendVerification(ctx context.Context, email, _ string) error {
	n.logger.InfoContext(ctx, "email suppressed", slog.String("subject", SubjectVerification), slog.String("to", email))
	return nil
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, email, _ string) error {
	n.logger.InfoContext(ctx, "email suppressed", slog.String("subject", SubjectReset), slog.String("to", email))
	return nil
}

func (n *LogNotifier) SendWelcome(ctx context.Context, email, _ string) error {
	n.logger.InfoContext(ctx, "email suppressed", slog.String("subject", SubjectWelcome), slog.String("to", email))
	return nil
}
