package notification_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jordan-wright/email"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/dental-credit/internal/core/events"
	"github.com/frahmantamala/dental-credit/internal/notification"
)

type staticAddressBook map[int64]string

func (b staticAddressBook) EmailFor(_ context.Context, userID int64) (string, error) {
	addr, ok := b[userID]
	if !ok {
		return "", fmt.Errorf("user %d not found", userID)
	}
	return addr, nil
}

type capturingMailer struct {
	sent []*email.Email
	err  error
}

func (m *capturingMailer) Send(e *email.Email) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, e)
	return nil
}

var _ = Describe("EmailNotifier", func() {
	var (
		mailer   *capturingMailer
		notifier *notification.EmailNotifier
	)

	BeforeEach(func() {
		mailer = &capturingMailer{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		notifier = notification.NewEmailNotifier("noreply@dental.test", staticAddressBook{
			7: "carla@patient.test",
			9: "",
		}, mailer, logger)
	})

	It("emails the recipient with the notification title as subject", func() {
		evt := events.NewNotificationCreatedEvent(1, 7, "Credit Approved!", "Your credit request was approved!")
		Expect(notifier.Handle(context.Background(), evt)).To(Succeed())

		Expect(mailer.sent).To(HaveLen(1))
		Expect(mailer.sent[0].To).To(Equal([]string{"carla@patient.test"}))
		Expect(mailer.sent[0].From).To(Equal("noreply@dental.test"))
		Expect(mailer.sent[0].Subject).To(Equal("Credit Approved!"))
		Expect(string(mailer.sent[0].Text)).To(ContainSubstring("Your credit request was approved!"))
	})

	It("skips recipients without an address", func() {
		evt := events.NewNotificationCreatedEvent(2, 9, "t", "m")
		Expect(notifier.Handle(context.Background(), evt)).To(Succeed())
		Expect(mailer.sent).To(BeEmpty())
	})

	It("fails when the recipient cannot be resolved", func() {
		evt := events.NewNotificationCreatedEvent(3, 42, "t", "m")
		Expect(notifier.Handle(context.Background(), evt)).ToNot(Succeed())
	})

	It("rejects other event types", func() {
		evt := events.NewPaymentFailedEvent(1, 1, "pi_1", "declined")
		Expect(notifier.Handle(context.Background(), evt)).ToNot(Succeed())
	})

	It("surfaces delivery failures", func() {
		mailer.err = fmt.Errorf("smtp down")
		evt := events.NewNotificationCreatedEvent(1, 7, "t", "m")
		Expect(notifier.Handle(context.Background(), evt)).To(MatchError(ContainSubstring("smtp down")))
	})
})
