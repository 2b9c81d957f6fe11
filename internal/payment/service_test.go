package payment_test

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errors "github.com/frahmantamala/dental-credit/internal"
	"github.com/frahmantamala/dental-credit/internal/auth"
	creditdm "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/payment"
	"github.com/frahmantamala/dental-credit/internal/core/events"
	"github.com/frahmantamala/dental-credit/internal/core/user"
	"github.com/frahmantamala/dental-credit/internal/credit"
	"github.com/frahmantamala/dental-credit/internal/payment"
)

const (
	patientID int64 = 7
	clinicID  int64 = 3
	adminID   int64 = 1
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

var _ = Describe("Service", func() {
	var (
		repo      *memoryRepository
		processor *fakeProcessor
		requests  requestStore
		notifier  *mockNotifier
		publisher *recordingPublisher
		svc       *payment.Service
		ctx       context.Context
		now       time.Time
	)

	approved := func(id int64, amount float64, installments int) *creditdm.CreditRequest {
		r := &creditdm.CreditRequest{
			ID:                   id,
			PatientID:            patientID,
			ClinicID:             clinicID,
			RequestedAmount:      amount,
			Installments:         installments,
			TreatmentDescription: "implant",
			Status:               string(credit.StatusAdminApproved),
			UpdatedAt:            now.Add(-time.Hour),
		}
		requests[id] = r
		return r
	}

	BeforeEach(func() {
		now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
		repo = &memoryRepository{}
		processor = &fakeProcessor{}
		requests = requestStore{}
		notifier = &mockNotifier{}
		publisher = &recordingPublisher{}
		ctx = context.Background()
		svc = payment.NewService(payment.Deps{
			Repo:      repo,
			Requests:  requests,
			Processor: processor,
			Tx:        directTx{},
			Notifier:  notifier,
			Publisher: publisher,
			Clock:     fixedClock{now: now},
			Logger:    testLogger(),
		})
	})

	Describe("ProcessApprovedCreditPayment", func() {
		It("takes the intent branch for a single installment", func() {
			approved(10, 1250.50, 1)

			res, err := svc.ProcessApprovedCreditPayment(ctx, 10)
			Expect(err).ToNot(HaveOccurred())
			Expect(res.PaymentType).To(Equal(payment.TypeSingle))
			Expect(res.PaymentURL).To(Equal("/payment/" + res.ProcessorID))
			Expect(res.ClientSecret).ToNot(BeEmpty())

			Expect(processor.intents).To(HaveLen(1))
			Expect(processor.plans).To(BeEmpty())
			sent := processor.intents[0]
			Expect(sent.Amount).To(Equal(int64(125050)))
			Expect(sent.Currency).To(Equal("brl"))
			Expect(sent.Description).To(Equal("credit payment - implant"))
			Expect(sent.Metadata).To(HaveKeyWithValue("credit_request_id", "10"))
			Expect(sent.Metadata).To(HaveKeyWithValue("patient_id", "7"))
			Expect(sent.Metadata).To(HaveKeyWithValue("clinic_id", "3"))
		})

		It("creates an installment plan when installments > 1", func() {
			approved(11, 5000, 12)

			res, err := svc.ProcessApprovedCreditPayment(ctx, 11)
			Expect(err).ToNot(HaveOccurred())
			Expect(res.PaymentType).To(Equal(payment.TypeInstallment))
			Expect(res.PaymentURL).To(Equal("/payment/subscription/" + res.ProcessorID))

			Expect(processor.plans).To(HaveLen(1))
			plan := processor.plans[0]
			Expect(plan.CreditRequestID).To(Equal(int64(11)))
			Expect(plan.TotalAmount).To(Equal(int64(500000)))
			Expect(plan.Installments).To(Equal(12))
			Expect(plan.InstallmentAmount).To(Equal(int64(41666)))
			Expect(plan.FinalInstallmentAmount).To(Equal(int64(41674)))
			Expect(plan.StartDate).To(Equal(now))
			Expect(plan.Validate()).To(Succeed())

			rows, _ := repo.ListByRequest(ctx, 11)
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].InstallmentAmount).To(Equal(416.66))
			Expect(rows[0].Status).To(Equal(payment.StatusPending))
		})

		It("charges the remainder cent on the last installment", func() {
			approved(13, 1000, 3)

			_, err := svc.ProcessApprovedCreditPayment(ctx, 13)
			Expect(err).ToNot(HaveOccurred())

			plan := processor.plans[0]
			Expect(plan.InstallmentAmount).To(Equal(int64(33333)))
			Expect(plan.FinalInstallmentAmount).To(Equal(int64(33334)))
			Expect(plan.InstallmentAmount*2 + plan.FinalInstallmentAmount).To(Equal(plan.TotalAmount))
		})

		It("returns the same reference on a second dispatch without calling the processor", func() {
			approved(12, 900, 3)

			first, err := svc.ProcessApprovedCreditPayment(ctx, 12)
			Expect(err).ToNot(HaveOccurred())
			second, err := svc.ProcessApprovedCreditPayment(ctx, 12)
			Expect(err).ToNot(HaveOccurred())

			Expect(second.PaymentID).To(Equal(first.PaymentID))
			Expect(second.PaymentURL).To(Equal(first.PaymentURL))
			Expect(processor.calls()).To(Equal(1))
			Expect(repo.count()).To(Equal(1))
		})

		It("answers a lost insert race with the winning row", func() {
			approved(13, 900, 3)
			winnerID := "sub_winner"
			repo.beforeCreate = func() {
				repo.insert(&datamodel.CreditPayment{
					CreditRequestID:         13,
					ProcessorSubscriptionID: &winnerID,
					PaymentType:             payment.TypeInstallment,
					Status:                  payment.StatusPending,
				})
			}

			res, err := svc.ProcessApprovedCreditPayment(ctx, 13)
			Expect(err).ToNot(HaveOccurred())
			Expect(res.ProcessorID).To(Equal(winnerID))
			Expect(repo.count()).To(Equal(1))
			Expect(processor.cancelled).To(ConsistOf("sub_1"))
		})

		It("creates no row when the processor fails", func() {
			approved(14, 900, 1)
			processor.failWith = stderrors.New("gateway timeout")

			_, err := svc.ProcessApprovedCreditPayment(ctx, 14)
			appErr, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(errors.ErrorTypeExternal))
			Expect(appErr.Code).To(Equal(errors.ErrCodeProcessorFailed))
			Expect(repo.count()).To(BeZero())
		})

		It("rejects requests that are not admin approved", func() {
			r := approved(15, 900, 1)
			r.Status = string(credit.StatusSentToPatient)

			_, err := svc.ProcessApprovedCreditPayment(ctx, 15)
			Expect(err).To(MatchError(payment.ErrNotDispatchable))
			Expect(processor.calls()).To(BeZero())
		})

		It("reports unknown requests as not found", func() {
			_, err := svc.ProcessApprovedCreditPayment(ctx, 404)
			Expect(err).To(MatchError(credit.ErrRequestNotFound))
		})
	})

	Describe("Dispatch", func() {
		It("refuses clinic staff", func() {
			approved(20, 900, 1)
			clinic := user.Actor{ID: 30, Role: user.RoleClinic, ClinicIDs: []int64{clinicID}}

			_, err := svc.Dispatch(ctx, clinic, 20)
			Expect(err).To(MatchError(errors.ErrUnauthorizedAccess))
		})

		It("lets the owning patient pay", func() {
			approved(21, 900, 1)
			res, err := svc.Dispatch(ctx, user.Actor{ID: patientID, Role: user.RolePatient}, 21)
			Expect(err).ToNot(HaveOccurred())
			Expect(res.PaymentID).ToNot(BeZero())
		})

		It("lets payment operators dispatch for the patient", func() {
			approved(22, 900, 1)
			operator := user.Actor{ID: 31, Role: user.RoleClinic, Permissions: []string{auth.PermDispatchPayments}}
			_, err := svc.Dispatch(ctx, operator, 22)
			Expect(err).ToNot(HaveOccurred())
		})
	})

	Describe("UpdatePaymentStatus", func() {
		var res *payment.DispatchResult

		BeforeEach(func() {
			approved(30, 2000, 1)
			var err error
			res, err = svc.ProcessApprovedCreditPayment(ctx, 30)
			Expect(err).ToNot(HaveOccurred())
			publisher.types = nil
		})

		It("confirms the payment and notifies the patient", func() {
			p, err := svc.UpdatePaymentStatus(ctx, res.ProcessorID, payment.StatusCompleted, "", []byte(`{"status":"succeeded"}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusCompleted))

			Expect(notifier.recorded).To(HaveLen(1))
			Expect(notifier.recorded[0].UserID).To(Equal(patientID))
			Expect(notifier.recorded[0].Title).To(Equal("Payment Confirmed"))
			Expect(notifier.announced).To(Equal(1))
			Expect(publisher.seen()).To(ContainElements(events.EventTypePaymentCompleted, events.EventTypeRecordChanged))
		})

		It("does not notify twice for a repeated webhook", func() {
			_, err := svc.UpdatePaymentStatus(ctx, res.ProcessorID, payment.StatusCompleted, "", nil)
			Expect(err).ToNot(HaveOccurred())
			_, err = svc.UpdatePaymentStatus(ctx, res.ProcessorID, payment.StatusCompleted, "", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(notifier.recorded).To(HaveLen(1))
		})

		It("stores the failure reason", func() {
			p, err := svc.UpdatePaymentStatus(ctx, res.ProcessorID, payment.StatusFailed, "card_declined", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(p.FailureReason).To(HaveValue(Equal("card_declined")))
			Expect(notifier.recorded).To(BeEmpty())
			Expect(publisher.seen()).To(ContainElement(events.EventTypePaymentFailed))
		})

		It("reports unknown processor ids as not found", func() {
			_, err := svc.UpdatePaymentStatus(ctx, "pi_unknown", payment.StatusCompleted, "", nil)
			Expect(err).To(MatchError(payment.ErrPaymentNotFound))
		})

		It("rejects statuses it does not know", func() {
			_, err := svc.UpdatePaymentStatus(ctx, res.ProcessorID, "succeeded", "", nil)
			appErr, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(errors.ErrorTypeValidation))
		})
	})

	Describe("CancelSubscription", func() {
		It("cancels an open installment plan", func() {
			approved(40, 3000, 6)
			res, err := svc.ProcessApprovedCreditPayment(ctx, 40)
			Expect(err).ToNot(HaveOccurred())

			p, err := svc.CancelSubscription(ctx, user.Actor{ID: adminID, Role: user.RoleAdmin}, res.PaymentID)
			Expect(err).ToNot(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusCancelled))
			Expect(processor.cancelled).To(ConsistOf(res.ProcessorID))
		})

		It("refuses single payments", func() {
			approved(41, 3000, 1)
			res, err := svc.ProcessApprovedCreditPayment(ctx, 41)
			Expect(err).ToNot(HaveOccurred())

			_, err = svc.CancelSubscription(ctx, user.Actor{ID: patientID, Role: user.RolePatient}, res.PaymentID)
			Expect(err).To(MatchError(payment.ErrNotCancelable))
			Expect(processor.cancelled).To(BeEmpty())
		})
	})

	Describe("GetPayments", func() {
		It("hides payments from other patients", func() {
			approved(50, 3000, 1)
			_, err := svc.GetPayments(ctx, user.Actor{ID: 99, Role: user.RolePatient}, 50)
			Expect(err).To(MatchError(errors.ErrUnauthorizedAccess))
		})
	})
})

var _ = Describe("MapProcessorStatus", func() {
	DescribeTable("maps processor strings",
		func(in, want string) {
			Expect(payment.MapProcessorStatus(in)).To(Equal(want))
		},
		Entry("stripe success", "succeeded", payment.StatusCompleted),
		Entry("mercado pago approval", "approved", payment.StatusCompleted),
		Entry("paid plan installment", "paid", payment.StatusCompleted),
		Entry("active subscription without a paid installment", "active", payment.StatusProcessing),
		Entry("authorized preapproval", "authorized", payment.StatusProcessing),
		Entry("incomplete subscription", "incomplete", payment.StatusPending),
		Entry("in process", "in_process", payment.StatusProcessing),
		Entry("awaiting method", "requires_payment_method", payment.StatusPending),
		Entry("rejected", "rejected", payment.StatusFailed),
		Entry("canceled", "canceled", payment.StatusCancelled),
		Entry("unknown", "weird", ""),
	)
})
