package notification_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errors "github.com/frahmantamala/dental-credit/internal"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/notification"
	"github.com/frahmantamala/dental-credit/internal/core/events"
	"github.com/frahmantamala/dental-credit/internal/core/user"
	"github.com/frahmantamala/dental-credit/internal/notification"
)

type mockRepository struct {
	rows      map[int64]*datamodel.Notification
	nextID    int64
	createErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{rows: map[int64]*datamodel.Notification{}, nextID: 1}
}

func (m *mockRepository) CreateBatch(_ context.Context, rows []*datamodel.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, r := range rows {
		r.ID = m.nextID
		r.CreatedAt = time.Now()
		m.nextID++
		m.rows[r.ID] = r
	}
	return nil
}

func (m *mockRepository) ListByUser(_ context.Context, userID int64, unreadOnly bool) ([]*datamodel.Notification, error) {
	var out []*datamodel.Notification
	for id := int64(1); id < m.nextID; id++ {
		r, ok := m.rows[id]
		if !ok || r.UserID != userID || (unreadOnly && r.Read) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *mockRepository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	rows, _ := m.ListByUser(ctx, userID, true)
	return int64(len(rows)), nil
}

func (m *mockRepository) GetByID(_ context.Context, id int64) (*datamodel.Notification, error) {
	r, ok := m.rows[id]
	if !ok {
		return nil, notification.ErrNotificationNotFound
	}
	return r, nil
}

func (m *mockRepository) MarkRead(_ context.Context, id int64) error {
	m.rows[id].Read = true
	return nil
}

func (m *mockRepository) MarkAllRead(_ context.Context, userID int64) (int64, error) {
	var n int64
	for _, r := range m.rows {
		if r.UserID == userID && !r.Read {
			r.Read = true
			n++
		}
	}
	return n, nil
}

func (m *mockRepository) Delete(_ context.Context, id int64) error {
	delete(m.rows, id)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

var _ = Describe("Service", func() {
	var (
		repo      *mockRepository
		publisher *recordingPublisher
		svc       *notification.Service
		ctx       context.Context
		patient   user.Actor
		other     user.Actor
	)

	BeforeEach(func() {
		repo = newMockRepository()
		publisher = &recordingPublisher{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		svc = notification.NewService(repo, publisher, logger)
		ctx = context.Background()
		patient = user.Actor{ID: 7, Role: user.RolePatient}
		other = user.Actor{ID: 8, Role: user.RolePatient}
	})

	Describe("Record and Announce", func() {
		It("stores every draft and publishes after the caller announces", func() {
			rows, err := svc.Record(ctx,
				notification.ClinicDecisionForPatient(7, 1, notification.OutcomeApproved, "ok"),
				notification.PaymentConfirmed(7, 1, 120.5),
			)
			Expect(err).ToNot(HaveOccurred())
			Expect(rows).To(HaveLen(2))
			Expect(publisher.types()).To(BeEmpty())

			svc.Announce(ctx, rows)
			Expect(publisher.types()).To(Equal([]string{
				events.EventTypeNotificationCreated, events.EventTypeRecordChanged,
				events.EventTypeNotificationCreated, events.EventTypeRecordChanged,
			}))
		})

		It("is a no-op without drafts", func() {
			rows, err := svc.Record(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(rows).To(BeEmpty())
		})

		It("wraps store failures as internal errors", func() {
			repo.createErr = context.DeadlineExceeded
			_, err := svc.Record(ctx, notification.OffersSentToPatient(7, 1, 2))
			appErr, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(errors.ErrorTypeInternal))
		})
	})

	Describe("recipient operations", func() {
		var id int64

		BeforeEach(func() {
			rows, err := svc.Record(ctx,
				notification.OffersSentToPatient(7, 1, 3),
				notification.OffersSentToPatient(7, 2, 1),
				notification.OffersSentToPatient(8, 3, 1),
			)
			Expect(err).ToNot(HaveOccurred())
			id = rows[0].ID
		})

		It("lists only the caller's notifications", func() {
			items, err := svc.List(ctx, patient, false)
			Expect(err).ToNot(HaveOccurred())
			Expect(items).To(HaveLen(2))
			for _, n := range items {
				Expect(n.UserID).To(Equal(int64(7)))
			}
		})

		It("marks one as read and updates the unread count", func() {
			Expect(svc.MarkRead(ctx, patient, id)).To(Succeed())
			count, err := svc.UnreadCount(ctx, patient)
			Expect(err).ToNot(HaveOccurred())
			Expect(count).To(Equal(int64(1)))

			unread, err := svc.List(ctx, patient, true)
			Expect(err).ToNot(HaveOccurred())
			Expect(unread).To(HaveLen(1))
		})

		It("marks all as read", func() {
			n, err := svc.MarkAllRead(ctx, patient)
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(int64(2)))
		})

		It("refuses to touch someone else's notification", func() {
			Expect(svc.MarkRead(ctx, other, id)).To(MatchError(errors.ErrUnauthorizedAccess))
			Expect(svc.Delete(ctx, other, id)).To(MatchError(errors.ErrUnauthorizedAccess))
			Expect(repo.rows).To(HaveKey(id))
		})

		It("deletes for the recipient", func() {
			Expect(svc.Delete(ctx, patient, id)).To(Succeed())
			Expect(repo.rows).ToNot(HaveKey(id))
			Expect(publisher.types()).To(ContainElement(events.EventTypeRecordChanged))
		})

		It("returns not found for unknown ids", func() {
			Expect(svc.MarkRead(ctx, patient, 999)).To(MatchError(notification.ErrNotificationNotFound))
		})
	})
})
