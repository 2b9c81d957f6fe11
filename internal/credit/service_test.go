package credit_test

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errors "github.com/frahmantamala/dental-credit/internal"
	"github.com/frahmantamala/dental-credit/internal/auth"
	"github.com/frahmantamala/dental-credit/internal/cache"
	"github.com/frahmantamala/dental-credit/internal/core/database"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
	ndatamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/notification"
	"github.com/frahmantamala/dental-credit/internal/core/events"
	"github.com/frahmantamala/dental-credit/internal/core/user"
	"github.com/frahmantamala/dental-credit/internal/credit"
	"github.com/frahmantamala/dental-credit/internal/notification"
)

type mockRepository struct {
	requests    map[int64]*datamodel.CreditRequest
	analyses    []*datamodel.CreditAnalysis
	nextID      int64
	getCalls    int
	staleUpdate bool
}

func newMockRepository() *mockRepository {
	return &mockRepository{requests: map[int64]*datamodel.CreditRequest{}, nextID: 1}
}

func (m *mockRepository) Create(_ context.Context, req *datamodel.CreditRequest) error {
	req.ID = m.nextID
	m.nextID++
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *mockRepository) GetByID(_ context.Context, id int64) (*datamodel.CreditRequest, error) {
	m.getCalls++
	r, ok := m.requests[id]
	if !ok {
		return nil, credit.ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepository) List(_ context.Context, f credit.ListFilter) ([]*datamodel.CreditRequest, error) {
	var out []*datamodel.CreditRequest
	for _, r := range m.requests {
		if f.PatientID != 0 && r.PatientID != f.PatientID {
			continue
		}
		if f.ClinicID != 0 && r.ClinicID != f.ClinicID {
			continue
		}
		if f.ClinicIDs != nil && !contains(f.ClinicIDs, r.ClinicID) {
			continue
		}
		if f.Status != "" && r.Status != string(f.Status) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRepository) UpdateStatus(_ context.Context, id int64, from, to credit.Status, _ *string, at time.Time) (int64, error) {
	r, ok := m.requests[id]
	if !ok || r.Status != string(from) || m.staleUpdate {
		return 0, nil
	}
	r.Status = string(to)
	r.UpdatedAt = at
	return 1, nil
}

func (m *mockRepository) CreateAnalysis(_ context.Context, a *datamodel.CreditAnalysis) error {
	a.ID = int64(len(m.analyses) + 1)
	m.analyses = append(m.analyses, a)
	return nil
}

func (m *mockRepository) ListAnalyses(_ context.Context, requestID int64) ([]*datamodel.CreditAnalysis, error) {
	var out []*datamodel.CreditAnalysis
	for _, a := range m.analyses {
		if a.CreditRequestID == requestID {
			out = append(out, a)
		}
	}
	return out, nil
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// snapshotTx restores the repository when fn fails, like a rollback.
type snapshotTx struct {
	repo *mockRepository
	note *mockNotifier
}

func (t *snapshotTx) Begin(ctx context.Context, fn database.TransactionalFn) error {
	saved := map[int64]datamodel.CreditRequest{}
	for id, r := range t.repo.requests {
		saved[id] = *r
	}
	analyses := len(t.repo.analyses)
	drafts := len(t.note.recorded)

	if err := fn(ctx); err != nil {
		for id, r := range saved {
			cp := r
			t.repo.requests[id] = &cp
		}
		t.repo.analyses = t.repo.analyses[:analyses]
		t.note.recorded = t.note.recorded[:drafts]
		return err
	}
	return nil
}

type mockNotifier struct {
	recorded  []notification.Draft
	announced int
	failWith  error
}

func (m *mockNotifier) Record(_ context.Context, drafts ...notification.Draft) ([]*ndatamodel.Notification, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.recorded = append(m.recorded, drafts...)
	rows := make([]*ndatamodel.Notification, 0, len(drafts))
	for _, d := range drafts {
		rows = append(rows, &ndatamodel.Notification{UserID: d.UserID, Title: d.Title, Message: d.Message})
	}
	return rows, nil
}

func (m *mockNotifier) Announce(_ context.Context, rows []*ndatamodel.Notification) {
	m.announced += len(rows)
}

func (m *mockNotifier) titlesFor(userID int64) []string {
	var out []string
	for _, d := range m.recorded {
		if d.UserID == userID {
			out = append(out, d.Title)
		}
	}
	return out
}

type staticDirectory struct {
	clinicUsers map[int64][]int64
	names       map[int64]string
}

func (d staticDirectory) DisplayName(_ context.Context, id int64) (string, error) {
	return d.names[id], nil
}

func (d staticDirectory) ClinicUserIDs(_ context.Context, clinicID int64) ([]int64, error) {
	return d.clinicUsers[clinicID], nil
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

func (p *recordingPublisher) statusChanges() []*events.CreditStatusChangedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*events.CreditStatusChangedEvent
	for _, e := range p.events {
		if sc, ok := e.(*events.CreditStatusChangedEvent); ok {
			out = append(out, sc)
		}
	}
	return out
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

const (
	patientID   int64 = 100
	clinicID    int64 = 10
	clinicUser1 int64 = 20
	clinicUser2 int64 = 21
	adminID     int64 = 1
)

var _ = Describe("Service", func() {
	var (
		repo      *mockRepository
		notifier  *mockNotifier
		publisher *recordingPublisher
		memCache  *cache.MemoryCache
		clock     *fixedClock
		svc       *credit.Service
		ctx       context.Context

		patient user.Actor
		clinic  user.Actor
		admin   user.Actor
		outside user.Actor
	)

	seed := func(status credit.Status) int64 {
		created := clock.now.Add(-time.Hour)
		r := &datamodel.CreditRequest{
			PatientID:            patientID,
			ClinicID:             clinicID,
			RequestedAmount:      5000,
			Installments:         12,
			TreatmentDescription: "implant",
			Status:               string(status),
			CreatedAt:            created,
			UpdatedAt:            created,
		}
		Expect(repo.Create(ctx, r)).To(Succeed())
		return r.ID
	}

	BeforeEach(func() {
		repo = newMockRepository()
		notifier = &mockNotifier{}
		publisher = &recordingPublisher{}
		clock = &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
		memCache = cache.NewMemoryCache(clock)
		ctx = context.Background()

		svc = credit.NewService(credit.Deps{
			Repo:     repo,
			Tx:       &snapshotTx{repo: repo, note: notifier},
			Notifier: notifier,
			Directory: staticDirectory{
				clinicUsers: map[int64][]int64{clinicID: {clinicUser1, clinicUser2}},
				names:       map[int64]string{patientID: "Carla"},
			},
			Cache:     memCache,
			CacheTTL:  time.Minute,
			Publisher: publisher,
			Clock:     clock,
			Logger:    slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
		})

		patient = user.Actor{ID: patientID, Role: user.RolePatient}
		clinic = user.Actor{ID: clinicUser1, Role: user.RoleClinic, ClinicIDs: []int64{clinicID}}
		admin = user.Actor{ID: adminID, Role: user.RoleAdmin}
		outside = user.Actor{ID: 55, Role: user.RoleClinic, ClinicIDs: []int64{99}}
	})

	Describe("CreateRequest", func() {
		It("creates a pending request for a clinic member", func() {
			req, err := svc.CreateRequest(ctx, clinic, &credit.CreateRequestDTO{
				PatientID: patientID, ClinicID: clinicID, RequestedAmount: 3000, Installments: 6,
				TreatmentDescription: "  braces  ",
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(req.Status).To(Equal(credit.StatusPending))
			Expect(req.TreatmentDescription).To(Equal("braces"))
			Expect(req.CreatedAt).To(Equal(req.UpdatedAt))
		})

		It("lets a patient request credit for themselves", func() {
			req, err := svc.CreateRequest(ctx, patient, &credit.CreateRequestDTO{
				ClinicID: clinicID, RequestedAmount: 1000, Installments: 1, TreatmentDescription: "cleaning",
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(req.PatientID).To(Equal(patientID))
		})

		DescribeTable("rejects invalid input",
			func(dto credit.CreateRequestDTO, code errors.ErrorCode) {
				dto.PatientID = patientID
				dto.ClinicID = clinicID
				_, err := svc.CreateRequest(ctx, clinic, &dto)
				appErr, ok := errors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Type).To(Equal(errors.ErrorTypeValidation))
				Expect(appErr.Code).To(Equal(code))
				Expect(repo.requests).To(BeEmpty())
			},
			Entry("zero amount", credit.CreateRequestDTO{Installments: 1, TreatmentDescription: "x"}, errors.ErrCodeInvalidAmount),
			Entry("negative amount", credit.CreateRequestDTO{RequestedAmount: -1, Installments: 1, TreatmentDescription: "x"}, errors.ErrCodeInvalidAmount),
			Entry("zero installments", credit.CreateRequestDTO{RequestedAmount: 10, TreatmentDescription: "x"}, errors.ErrCodeInvalidInstallment),
			Entry("blank description", credit.CreateRequestDTO{RequestedAmount: 10, Installments: 1, TreatmentDescription: "   "}, errors.ErrCodeInvalidDescription),
		)

		It("refuses staff of another clinic", func() {
			_, err := svc.CreateRequest(ctx, outside, &credit.CreateRequestDTO{
				PatientID: patientID, ClinicID: clinicID, RequestedAmount: 10, Installments: 1, TreatmentDescription: "x",
			})
			Expect(err).To(MatchError(errors.ErrUnauthorizedAccess))
		})
	})

	Describe("GetRequest", func() {
		It("reads through the cache", func() {
			id := seed(credit.StatusPending)
			_, err := svc.GetRequest(ctx, patient, id)
			Expect(err).ToNot(HaveOccurred())
			_, err = svc.GetRequest(ctx, clinic, id)
			Expect(err).ToNot(HaveOccurred())
			Expect(repo.getCalls).To(Equal(1))
		})

		It("hides the request from unrelated users", func() {
			id := seed(credit.StatusPending)
			_, err := svc.GetRequest(ctx, outside, id)
			Expect(err).To(MatchError(errors.ErrUnauthorizedAccess))
		})

		It("returns not found", func() {
			_, err := svc.GetRequest(ctx, admin, 404)
			Expect(err).To(MatchError(credit.ErrRequestNotFound))
		})
	})

	Describe("ListRequests", func() {
		BeforeEach(func() {
			seed(credit.StatusPending)
			Expect(repo.Create(ctx, &datamodel.CreditRequest{PatientID: 200, ClinicID: 99, Status: "pending"})).To(Succeed())
		})

		It("scopes patients to their own requests", func() {
			items, err := svc.ListRequests(ctx, patient, credit.ListFilter{})
			Expect(err).ToNot(HaveOccurred())
			Expect(items).To(HaveLen(1))
		})

		It("scopes clinic staff to their clinics", func() {
			items, err := svc.ListRequests(ctx, outside, credit.ListFilter{})
			Expect(err).ToNot(HaveOccurred())
			Expect(items).To(HaveLen(1))
			Expect(items[0].ClinicID).To(Equal(int64(99)))

			_, err = svc.ListRequests(ctx, outside, credit.ListFilter{ClinicID: clinicID})
			Expect(err).To(MatchError(errors.ErrUnauthorizedAccess))
		})

		It("shows everything to admins", func() {
			items, err := svc.ListRequests(ctx, admin, credit.ListFilter{})
			Expect(err).ToNot(HaveOccurred())
			Expect(items).To(HaveLen(2))
		})
	})

	Describe("ClinicDecision", func() {
		It("approves, records one analysis row and notifies the patient", func() {
			id := seed(credit.StatusPending)
			req, err := svc.ClinicDecision(ctx, clinic, id, credit.DecisionDTO{Decision: credit.DecisionApproved, Comments: "documents ok"})
			Expect(err).ToNot(HaveOccurred())
			Expect(req.Status).To(Equal(credit.StatusClinicApproved))
			Expect(req.UpdatedAt).To(Equal(clock.now))

			Expect(repo.analyses).To(HaveLen(1))
			Expect(repo.analyses[0].AnalysisType).To(Equal(credit.AnalysisClinic))
			Expect(repo.analyses[0].Decision).To(Equal(credit.DecisionApproved))
			Expect(repo.analyses[0].AnalystID).To(Equal(clinicUser1))

			Expect(notifier.titlesFor(patientID)).To(Equal([]string{"Request Approved by Clinic"}))
			Expect(notifier.recorded).To(HaveLen(1))
			Expect(notifier.announced).To(Equal(1))

			changes := publisher.statusChanges()
			Expect(changes).To(HaveLen(1))
			Expect(changes[0].From).To(Equal("pending"))
			Expect(changes[0].To).To(Equal("clinic_approved"))
		})

		It("includes the reason when rejecting", func() {
			id := seed(credit.StatusPending)
			_, err := svc.ClinicDecision(ctx, clinic, id, credit.DecisionDTO{Decision: credit.DecisionRejected, Comments: "missing income proof"})
			Expect(err).ToNot(HaveOccurred())
			Expect(notifier.recorded[0].Message).To(ContainSubstring("missing income proof"))
		})

		It("rejects blank comments before any write", func() {
			id := seed(credit.StatusPending)
			_, err := svc.ClinicDecision(ctx, clinic, id, credit.DecisionDTO{Decision: credit.DecisionApproved, Comments: "   "})
			appErr, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(errors.ErrCodeCommentRequired))
			Expect(repo.requests[id].Status).To(Equal("pending"))
			Expect(repo.analyses).To(BeEmpty())
			Expect(notifier.recorded).To(BeEmpty())
		})

		It("only accepts members of the request's clinic", func() {
			id := seed(credit.StatusPending)
			_, err := svc.ClinicDecision(ctx, outside, id, credit.DecisionDTO{Decision: credit.DecisionApproved, Comments: "ok"})
			Expect(err).To(MatchError(errors.ErrUnauthorizedAccess))
		})

		It("invalidates the cached request", func() {
			id := seed(credit.StatusPending)
			_, err := svc.GetRequest(ctx, patient, id)
			Expect(err).ToNot(HaveOccurred())

			_, err = svc.ClinicDecision(ctx, clinic, id, credit.DecisionDTO{Decision: credit.DecisionApproved, Comments: "ok"})
			Expect(err).ToNot(HaveOccurred())

			req, err := svc.GetRequest(ctx, patient, id)
			Expect(err).ToNot(HaveOccurred())
			Expect(req.Status).To(Equal(credit.StatusClinicApproved))
		})
	})

	Describe("AdminDecision", func() {
		It("refuses to approve a pending request", func() {
			id := seed(credit.StatusPending)
			_, err := svc.AdminDecision(ctx, admin, id, credit.DecisionDTO{Decision: credit.DecisionApproved, Comments: "fine"})
			appErr, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(errors.ErrCodeInvalidStatusTransition))
			Expect(repo.requests[id].Status).To(Equal("pending"))
			Expect(repo.analyses).To(BeEmpty())
			Expect(publisher.statusChanges()).To(BeEmpty())
		})

		It("notifies the patient and every clinic user", func() {
			id := seed(credit.StatusAdminAnalyzing)
			req, err := svc.AdminDecision(ctx, admin, id, credit.DecisionDTO{Decision: credit.DecisionRejected, Comments: "score too low"})
			Expect(err).ToNot(HaveOccurred())
			Expect(req.Status).To(Equal(credit.StatusAdminRejected))

			Expect(repo.analyses).To(HaveLen(1))
			Expect(repo.analyses[0].AnalysisType).To(Equal(credit.AnalysisAdmin))
			Expect(notifier.titlesFor(patientID)).To(Equal([]string{"Credit Rejected"}))
			Expect(notifier.titlesFor(clinicUser1)).To(Equal([]string{"Request Rejected by Admin"}))
			Expect(notifier.titlesFor(clinicUser2)).To(Equal([]string{"Request Rejected by Admin"}))
			Expect(notifier.recorded[1].Message).To(ContainSubstring("Carla"))
		})

		It("is admin only", func() {
			id := seed(credit.StatusClinicApproved)
			_, err := svc.AdminDecision(ctx, clinic, id, credit.DecisionDTO{Decision: credit.DecisionApproved, Comments: "ok"})
			Expect(err).To(MatchError(errors.ErrUnauthorizedAccess))
		})

		It("aborts everything when a concurrent writer moved the request", func() {
			id := seed(credit.StatusClinicApproved)
			repo.staleUpdate = true
			_, err := svc.AdminDecision(ctx, admin, id, credit.DecisionDTO{Decision: credit.DecisionApproved, Comments: "ok"})
			Expect(err).To(MatchError(credit.ErrStatusChanged))
			Expect(repo.analyses).To(BeEmpty())
			Expect(notifier.recorded).To(BeEmpty())
			Expect(publisher.statusChanges()).To(BeEmpty())
		})

		It("rolls back the status and the analysis when notifications fail", func() {
			id := seed(credit.StatusClinicApproved)
			notifier.failWith = errors.NewInternalError("failed to create notifications", context.DeadlineExceeded)
			_, err := svc.AdminDecision(ctx, admin, id, credit.DecisionDTO{Decision: credit.DecisionApproved, Comments: "ok"})
			Expect(err).To(HaveOccurred())
			Expect(repo.requests[id].Status).To(Equal("clinic_approved"))
			Expect(repo.analyses).To(BeEmpty())
		})
	})

	Describe("StartAdminAnalysis", func() {
		It("moves to analyzing without an analysis row and notifies everyone", func() {
			id := seed(credit.StatusClinicApproved)
			req, err := svc.StartAdminAnalysis(ctx, admin, id)
			Expect(err).ToNot(HaveOccurred())
			Expect(req.Status).To(Equal(credit.StatusAdminAnalyzing))
			Expect(repo.analyses).To(BeEmpty())
			Expect(notifier.recorded).To(HaveLen(3))
			Expect(notifier.titlesFor(patientID)).To(Equal([]string{"Request Under Review"}))
		})

		It("admits analysts holding the decision permission", func() {
			id := seed(credit.StatusClinicApproved)
			analyst := user.Actor{ID: 77, Role: user.RoleClinic, Permissions: []string{auth.PermAdminDecision}}
			req, err := svc.StartAdminAnalysis(ctx, analyst, id)
			Expect(err).ToNot(HaveOccurred())
			Expect(req.Status).To(Equal(credit.StatusAdminAnalyzing))
		})

		It("refuses clinic staff without it", func() {
			id := seed(credit.StatusClinicApproved)
			_, err := svc.StartAdminAnalysis(ctx, clinic, id)
			Expect(err).To(MatchError(errors.ErrUnauthorizedAccess))
		})
	})

	Describe("PatientDecision", func() {
		It("lets the owning patient accept sent offers", func() {
			id := seed(credit.StatusSentToPatient)
			req, err := svc.PatientDecision(ctx, patient, id, credit.PatientDecisionDTO{Accept: true})
			Expect(err).ToNot(HaveOccurred())
			Expect(req.Status).To(Equal(credit.StatusPatientAccepted))
			Expect(notifier.titlesFor(clinicUser1)).To(Equal([]string{"Patient Responded to Offer"}))
		})

		It("refuses other users", func() {
			id := seed(credit.StatusSentToPatient)
			_, err := svc.PatientDecision(ctx, admin, id, credit.PatientDecisionDTO{Accept: true})
			Expect(err).To(MatchError(errors.ErrUnauthorizedAccess))
		})
	})

	Describe("ListAnalyses", func() {
		It("returns the audit trail in order", func() {
			id := seed(credit.StatusPending)
			_, err := svc.ClinicDecision(ctx, clinic, id, credit.DecisionDTO{Decision: credit.DecisionApproved, Comments: "ok"})
			Expect(err).ToNot(HaveOccurred())
			_, err = svc.AdminDecision(ctx, admin, id, credit.DecisionDTO{Decision: credit.DecisionApproved, Comments: "good"})
			Expect(err).ToNot(HaveOccurred())

			items, err := svc.ListAnalyses(ctx, patient, id)
			Expect(err).ToNot(HaveOccurred())
			Expect(items).To(HaveLen(2))
			Expect(items[0].AnalysisType).To(Equal(credit.AnalysisClinic))
			Expect(items[1].AnalysisType).To(Equal(credit.AnalysisAdmin))
		})
	})
})
