package document_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errors "github.com/frahmantamala/dental-credit/internal"
	"github.com/frahmantamala/dental-credit/internal/auth"
	creditdm "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
	"github.com/frahmantamala/dental-credit/internal/core/events"
	"github.com/frahmantamala/dental-credit/internal/core/user"
	"github.com/frahmantamala/dental-credit/internal/credit"
	"github.com/frahmantamala/dental-credit/internal/document"
)

type memoryRepository struct {
	mu     sync.Mutex
	rows   map[int64]*creditdm.CreditDocument
	nextID int64
	fail   error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{rows: map[int64]*creditdm.CreditDocument{}}
}

func (m *memoryRepository) Create(_ context.Context, d *creditdm.CreditDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.nextID++
	d.ID = m.nextID
	cp := *d
	m.rows[d.ID] = &cp
	return nil
}

func (m *memoryRepository) GetByID(_ context.Context, id int64) (*creditdm.CreditDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return nil, document.ErrDocumentNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memoryRepository) ListByRequest(_ context.Context, requestID int64) ([]*creditdm.CreditDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*creditdm.CreditDocument
	for _, d := range m.rows {
		if d.CreditRequestID == requestID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryRepository) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return document.ErrDocumentNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memoryRepository) MarkVerified(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return document.ErrDocumentNotFound
	}
	d.Verified = true
	return nil
}

type requestStore map[int64]*creditdm.CreditRequest

func (s requestStore) GetByID(_ context.Context, id int64) (*creditdm.CreditRequest, error) {
	r, ok := s[id]
	if !ok {
		return nil, credit.ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
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

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func countFiles(dir string) int {
	n := 0
	_ = filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			n++
		}
		return nil
	})
	return n
}

var _ = Describe("Document Service", func() {
	var (
		repo      *memoryRepository
		storage   *document.LocalStorage
		publisher *recordingPublisher
		svc       *document.Service
		ctx       context.Context
		dir       string

		patient = user.Actor{ID: 7, Role: user.RolePatient}
		staff   = user.Actor{ID: 20, Role: user.RoleClinic, ClinicIDs: []int64{3}}
		other   = user.Actor{ID: 99, Role: user.RolePatient}
		admin   = user.Actor{ID: 1, Role: user.RoleAdmin}
		checker = user.Actor{ID: 30, Role: user.RoleClinic, Permissions: []string{auth.PermVerifyDocuments}}
	)

	dto := func(size int64) document.UploadDTO {
		return document.UploadDTO{DocumentType: "CPF ", FileName: "scan.PDF", MimeType: "application/pdf", Size: size}
	}

	BeforeEach(func() {
		var err error
		dir = GinkgoT().TempDir()
		storage, err = document.NewLocalStorage(dir, "http://localhost:8080/files/")
		Expect(err).ToNot(HaveOccurred())

		repo = newMemoryRepository()
		publisher = &recordingPublisher{}
		requests := requestStore{10: {ID: 10, PatientID: 7, ClinicID: 3, Status: string(credit.StatusPending)}}
		clock := fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
		svc = document.NewService(repo, requests, storage, 16, publisher, clock, slog.New(slog.NewTextHandler(io.Discard, nil)))
		ctx = context.Background()
	})

	Describe("Upload", func() {
		It("stores the body and records metadata", func() {
			doc, err := svc.Upload(ctx, patient, 10, dto(5), strings.NewReader("hello"))
			Expect(err).ToNot(HaveOccurred())
			Expect(doc.ID).To(Equal(int64(1)))
			Expect(doc.DocumentType).To(Equal(document.TypeCPF))
			Expect(doc.FileSize).To(Equal(int64(5)))
			Expect(doc.UploadedBy).To(Equal(int64(7)))
			Expect(doc.FileURL).To(HavePrefix("http://localhost:8080/files/credit-requests/10/"))
			Expect(doc.FileURL).To(HaveSuffix(".pdf"))

			key := strings.TrimPrefix(doc.FileURL, "http://localhost:8080/files/")
			body, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
			Expect(err).ToNot(HaveOccurred())
			Expect(string(body)).To(Equal("hello"))
			Expect(publisher.types()).To(Equal([]string{events.EventTypeRecordChanged}))
		})

		It("allows clinic staff of the request's clinic", func() {
			_, err := svc.Upload(ctx, staff, 10, dto(3), strings.NewReader("abc"))
			Expect(err).ToNot(HaveOccurred())
		})

		It("rejects unrelated users", func() {
			_, err := svc.Upload(ctx, other, 10, dto(3), strings.NewReader("abc"))
			Expect(err).To(MatchError(errors.ErrUnauthorizedAccess))
			Expect(countFiles(dir)).To(Equal(0))
		})

		It("rejects unknown document types", func() {
			in := dto(3)
			in.DocumentType = "passport"
			_, err := svc.Upload(ctx, patient, 10, in, strings.NewReader("abc"))
			appErr, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(errors.ErrorTypeValidation))
		})

		It("rejects a declared size over the limit", func() {
			_, err := svc.Upload(ctx, patient, 10, dto(17), strings.NewReader("abc"))
			Expect(err).To(HaveOccurred())
			Expect(countFiles(dir)).To(Equal(0))
		})

		It("discards a body that outgrows its declared size", func() {
			_, err := svc.Upload(ctx, patient, 10, dto(4), strings.NewReader(strings.Repeat("x", 40)))
			appErr, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(errors.ErrorTypeValidation))
			Expect(countFiles(dir)).To(Equal(0))
			Expect(repo.rows).To(BeEmpty())
		})

		It("discards the body when the row cannot be saved", func() {
			repo.fail = context.DeadlineExceeded
			_, err := svc.Upload(ctx, patient, 10, dto(3), strings.NewReader("abc"))
			Expect(err).To(HaveOccurred())
			Expect(countFiles(dir)).To(Equal(0))
		})

		It("returns not found for unknown requests", func() {
			_, err := svc.Upload(ctx, patient, 404, dto(3), strings.NewReader("abc"))
			Expect(err).To(MatchError(credit.ErrRequestNotFound))
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			_, err := svc.Upload(ctx, patient, 10, dto(3), strings.NewReader("abc"))
			Expect(err).ToNot(HaveOccurred())
		})

		It("lists for viewers", func() {
			for _, a := range []user.Actor{patient, staff, admin} {
				docs, err := svc.List(ctx, a, 10)
				Expect(err).ToNot(HaveOccurred())
				Expect(docs).To(HaveLen(1))
			}
		})

		It("hides documents from others", func() {
			_, err := svc.List(ctx, other, 10)
			Expect(err).To(MatchError(errors.ErrUnauthorizedAccess))
		})
	})

	Describe("Delete", func() {
		var doc *document.Document

		BeforeEach(func() {
			var err error
			doc, err = svc.Upload(ctx, patient, 10, dto(3), strings.NewReader("abc"))
			Expect(err).ToNot(HaveOccurred())
		})

		It("removes the row and the stored body", func() {
			Expect(svc.Delete(ctx, patient, doc.ID)).To(Succeed())
			Expect(repo.rows).To(BeEmpty())
			Expect(countFiles(dir)).To(Equal(0))
			Expect(publisher.types()).To(HaveLen(2))
		})

		It("is limited to the owning patient", func() {
			Expect(svc.Delete(ctx, staff, doc.ID)).To(MatchError(errors.ErrUnauthorizedAccess))
			Expect(svc.Delete(ctx, admin, doc.ID)).To(MatchError(errors.ErrUnauthorizedAccess))
			Expect(countFiles(dir)).To(Equal(1))
		})

		It("returns not found for unknown documents", func() {
			Expect(svc.Delete(ctx, patient, 999)).To(MatchError(document.ErrDocumentNotFound))
		})
	})

	Describe("Verify", func() {
		var doc *document.Document

		BeforeEach(func() {
			var err error
			doc, err = svc.Upload(ctx, patient, 10, dto(3), strings.NewReader("abc"))
			Expect(err).ToNot(HaveOccurred())
		})

		It("marks the document verified for admins and verifiers", func() {
			for _, a := range []user.Actor{admin, checker} {
				out, err := svc.Verify(ctx, a, doc.ID)
				Expect(err).ToNot(HaveOccurred())
				Expect(out.Verified).To(BeTrue())
			}
		})

		It("rejects callers without the permission", func() {
			_, err := svc.Verify(ctx, staff, doc.ID)
			Expect(err).To(MatchError(errors.ErrUnauthorizedAccess))
		})
	})
})

var _ = Describe("Document Handler", func() {
	var (
		svc    *document.Service
		router chi.Router
		dir    string
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		storage, err := document.NewLocalStorage(dir, "/files")
		Expect(err).ToNot(HaveOccurred())
		requests := requestStore{10: {ID: 10, PatientID: 7, ClinicID: 3}}
		lg := slog.New(slog.NewTextHandler(io.Discard, nil))
		svc = document.NewService(newMemoryRepository(), requests, storage, 1024, nil, nil, lg)
		h := document.NewHandler(svc, lg)

		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), &auth.User{ID: 7, Role: user.RolePatient})))
			})
		})
		router.Post("/credit-requests/{id}/documents", h.Upload)
		router.Get("/credit-requests/{id}/documents", h.List)
	})

	upload := func(docType string, withFile bool) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		Expect(mw.WriteField("document_type", docType)).To(Succeed())
		if withFile {
			part, err := mw.CreateFormFile("file", "proof.png")
			Expect(err).ToNot(HaveOccurred())
			_, err = part.Write([]byte("png-bytes"))
			Expect(err).ToNot(HaveOccurred())
		}
		Expect(mw.Close()).To(Succeed())

		req := httptest.NewRequest(http.MethodPost, "/credit-requests/10/documents", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("accepts a multipart upload", func() {
		rec := upload("photo", true)
		Expect(rec.Code).To(Equal(http.StatusCreated))
		Expect(rec.Body.String()).To(ContainSubstring(`"document_type":"photo"`))
		Expect(countFiles(dir)).To(Equal(1))

		list := httptest.NewRecorder()
		router.ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/credit-requests/10/documents", nil))
		Expect(list.Code).To(Equal(http.StatusOK))
		Expect(list.Body.String()).To(ContainSubstring(`"documents"`))
	})

	It("requires a file part", func() {
		rec := upload("photo", false)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("maps validation failures to 400", func() {
		rec := upload("selfie", true)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(countFiles(dir)).To(Equal(0))
	})
})
