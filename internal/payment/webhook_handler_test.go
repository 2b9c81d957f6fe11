package payment_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/dental-credit/internal/core/user"
	"github.com/frahmantamala/dental-credit/internal/payment"
)

type stubService struct {
	processorID string
	status      string
	reason      string
	err         error
}

func (s *stubService) Dispatch(context.Context, user.Actor, int64) (*payment.DispatchResult, error) {
	return nil, nil
}

func (s *stubService) GetPayments(context.Context, user.Actor, int64) ([]*payment.Payment, error) {
	return nil, nil
}

func (s *stubService) CancelSubscription(context.Context, user.Actor, int64) (*payment.Payment, error) {
	return nil, nil
}

func (s *stubService) UpdatePaymentStatus(_ context.Context, processorID, status, reason string, _ []byte) (*payment.Payment, error) {
	s.processorID, s.status, s.reason = processorID, status, reason
	if s.err != nil {
		return nil, s.err
	}
	return &payment.Payment{ID: 1, Status: status}, nil
}

var _ = Describe("WebhookHandler", func() {
	var (
		svc *stubService
		h   *payment.WebhookHandler
	)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.HandlePaymentCallback(rec, req)
		return rec
	}

	BeforeEach(func() {
		svc = &stubService{}
		h = payment.NewWebhookHandler(svc, testLogger())
	})

	It("maps the processor status before updating", func() {
		rec := post(`{"processor_id":"pi_9","status":"succeeded"}`)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(svc.processorID).To(Equal("pi_9"))
		Expect(svc.status).To(Equal(payment.StatusCompleted))
	})

	It("passes the failure reason through", func() {
		rec := post(`{"processor_id":"pi_9","status":"failed","failure_reason":"insufficient_funds"}`)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(svc.status).To(Equal(payment.StatusFailed))
		Expect(svc.reason).To(Equal("insufficient_funds"))
	})

	It("rejects a missing processor id", func() {
		Expect(post(`{"status":"succeeded"}`).Code).To(Equal(http.StatusBadRequest))
	})

	It("rejects unknown statuses", func() {
		Expect(post(`{"processor_id":"pi_9","status":"exploded"}`).Code).To(Equal(http.StatusBadRequest))
		Expect(svc.processorID).To(BeEmpty())
	})

	It("answers 404 for unknown payments", func() {
		svc.err = payment.ErrPaymentNotFound
		Expect(post(`{"processor_id":"pi_x","status":"succeeded"}`).Code).To(Equal(http.StatusNotFound))
	})
})
