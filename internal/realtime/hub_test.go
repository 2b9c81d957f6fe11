package realtime_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/dental-credit/internal/core/events"
	"github.com/frahmantamala/dental-credit/internal/realtime"
)

func change(table string, id int64, record map[string]interface{}) realtime.ChangeEvent {
	return realtime.ChangeEvent{Table: table, Type: events.OpUpdate, RecordID: id, Record: record, UpdatedAt: time.Now()}
}

var _ = Describe("Hub", func() {
	var hub *realtime.Hub

	BeforeEach(func() {
		hub = realtime.NewHub(2, testLogger())
	})

	It("delivers only events matching a filter", func() {
		clinic := hub.Subscribe(realtime.Filter{Table: realtime.TableCreditRequests, Column: "clinic_id", Value: int64(3)})
		inbox := hub.Subscribe(realtime.Filter{Table: realtime.TableNotifications, Column: "user_id", Value: int64(7)})

		Expect(hub.Broadcast(change(realtime.TableCreditRequests, 1, map[string]interface{}{"clinic_id": int64(3)}))).To(Equal(1))
		Expect(hub.Broadcast(change(realtime.TableCreditRequests, 2, map[string]interface{}{"clinic_id": int64(4)}))).To(Equal(0))
		Expect(hub.Broadcast(change(realtime.TableNotifications, 9, map[string]interface{}{"user_id": int64(7)}))).To(Equal(1))

		Expect(clinic.C()).To(Receive(HaveField("RecordID", int64(1))))
		Expect(clinic.C()).ToNot(Receive())
		Expect(inbox.C()).To(Receive(HaveField("RecordID", int64(9))))
	})

	It("matches numbers regardless of their decoded type", func() {
		f := realtime.Filter{Table: realtime.TableCreditOffers, Column: "credit_request_id", Value: int64(12)}
		Expect(f.Matches(change(realtime.TableCreditOffers, 1, map[string]interface{}{"credit_request_id": float64(12)}))).To(BeTrue())
		Expect(f.Matches(change(realtime.TableCreditOffers, 1, map[string]interface{}{}))).To(BeFalse())
	})

	It("drops events for a slow subscriber instead of blocking", func() {
		sub := hub.Subscribe(realtime.Filter{Table: realtime.TableCreditPayments})
		for i := int64(1); i <= 5; i++ {
			hub.Broadcast(change(realtime.TableCreditPayments, i, nil))
		}
		Expect(sub.Dropped()).To(Equal(int64(3)))
		Expect(sub.C()).To(Receive(HaveField("RecordID", int64(1))))
		Expect(sub.C()).To(Receive(HaveField("RecordID", int64(2))))
	})

	It("closes channels on unsubscribe and close", func() {
		a := hub.Subscribe(realtime.Filter{Table: realtime.TableCreditRequests})
		b := hub.Subscribe(realtime.Filter{Table: realtime.TableCreditRequests})
		hub.Unsubscribe(a)
		hub.Unsubscribe(a)
		Expect(a.C()).To(BeClosed())
		Expect(hub.Len()).To(Equal(1))

		hub.Close()
		Expect(b.C()).To(BeClosed())
		Expect(hub.Subscribe().C()).To(BeClosed())
	})

	It("feeds record changes from the event bus", func() {
		bus := events.NewEventBus(testLogger())
		bus.Subscribe(events.EventTypeRecordChanged, hub.Handle)
		sub := hub.Subscribe(realtime.Filter{Table: realtime.TableCreditDocuments})

		Expect(bus.PublishSync(context.Background(),
			events.NewRecordChangedEvent(realtime.TableCreditDocuments, events.OpInsert, 5, map[string]interface{}{"id": int64(5)}, time.Now()))).To(Succeed())
		Expect(bus.PublishSync(context.Background(),
			events.NewPaymentFailedEvent(1, 2, "pi_1", "declined"))).To(Succeed())

		var ev realtime.ChangeEvent
		Expect(sub.C()).To(Receive(&ev))
		Expect(ev.Type).To(Equal(events.OpInsert))
		Expect(ev.ID).ToNot(BeEmpty())
	})
})
