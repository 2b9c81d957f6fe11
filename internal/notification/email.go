package notification

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/jordan-wright/email"

	"github.com/frahmantamala/dental-credit/internal"
	"github.com/frahmantamala/dental-credit/internal/core/events"
)

// AddressBook resolves the email address of a user.
type AddressBook interface {
	EmailFor(ctx context.Context, userID int64) (string, error)
}

// Mailer delivers a composed message.
type Mailer interface {
	Send(e *email.Email) error
}

type smtpMailer struct {
	addr string
	auth smtp.Auth
}

func (m smtpMailer) Send(e *email.Email) error {
	return e.Send(m.addr, m.auth)
}

func NewSMTPMailer(cfg internal.EmailConfig) Mailer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPHost)
	}
	return smtpMailer{addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort), auth: auth}
}

// EmailNotifier mails every created notification to its recipient.
type EmailNotifier struct {
	sender string
	book   AddressBook
	mailer Mailer
	logger *slog.Logger
}

func NewEmailNotifier(sender string, book AddressBook, mailer Mailer, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{sender: sender, book: book, mailer: mailer, logger: logger}
}

// Register subscribes the notifier to notification.created.
func (n *EmailNotifier) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeNotificationCreated, n.Handle)
}

func (n *EmailNotifier) Handle(ctx context.Context, event events.Event) error {
	created, ok := event.(*events.NotificationCreatedEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	to, err := n.book.EmailFor(ctx, created.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient %d: %w", created.UserID, err)
	}
	if to == "" {
		n.logger.Debug("recipient has no email address", "user_id", created.UserID)
		return nil
	}

	e := email.NewEmail()
	e.From = n.sender
	e.To = []string{to}
	e.Subject = created.Title
	e.Text = []byte(fmt.Sprintf("%s\n\nDental Credit", created.Message))

	if err := n.mailer.Send(e); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("notification emailed", "notification_id", created.NotificationID, "user_id", created.UserID)
	return nil
}
