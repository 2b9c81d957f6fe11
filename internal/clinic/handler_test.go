package clinic_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/frahmantamala/dental-credit/internal/auth"
	"github.com/frahmantamala/dental-credit/internal/clinic"
	clinicpg "github.com/frahmantamala/dental-credit/internal/clinic/postgres"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
	userdatamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/user"
	"github.com/frahmantamala/dental-credit/internal/core/user"
)

var _ = Describe("Clinic Handler Integration", func() {
	var (
		db      *gorm.DB
		router  *chi.Mux
		current *auth.User
	)

	do := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(&datamodel.Clinic{}, &datamodel.ClinicUser{}, &userdatamodel.User{})).To(Succeed())

		Expect(db.Create(&[]userdatamodel.User{
			{ID: 1, Email: "admin@x.dev", Name: "Admin", PasswordHash: "h", Role: user.RoleAdmin},
			{ID: 3, Email: "staff@x.dev", Name: "Staff", PasswordHash: "h", Role: user.RoleClinic},
		}).Error).To(Succeed())
		Expect(db.Create(&datamodel.Clinic{Name: "Sorriso", City: "Campinas", State: "SP", IsActive: true}).Error).To(Succeed())

		lg := slog.New(slog.NewTextHandler(io.Discard, nil))
		h := clinic.NewHandler(clinic.NewService(clinicpg.NewClinicRepository(db), nil, lg), lg)

		current = &auth.User{ID: 2, Role: user.RolePatient}
		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), current)))
			})
		})
		router.Get("/clinics", h.List)
		router.Post("/clinics", h.Create)
		router.Get("/clinics/{id}", h.Get)
		router.Post("/clinics/{id}/deactivate", h.Deactivate)
		router.Get("/clinics/{id}/members", h.Members)
		router.Post("/clinics/{id}/members", h.AddMember)
		router.Delete("/clinics/{id}/members/{userID}", h.RemoveMember)
	})

	It("should handle GET /clinics request successfully", func() {
		w := do(http.MethodGet, "/clinics", nil)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get("Content-Type")).To(ContainSubstring("application/json"))

		var response clinic.ClinicsResponse
		Expect(json.NewDecoder(w.Body).Decode(&response)).To(Succeed())
		Expect(response.Clinics).To(HaveLen(1))
		Expect(response.Clinics[0].City).To(Equal("Campinas"))
	})

	It("drops deactivated clinics from the patient directory", func() {
		current = &auth.User{ID: 1, Role: user.RoleAdmin}
		Expect(do(http.MethodPost, "/clinics/1/deactivate", nil).Code).To(Equal(http.StatusOK))

		current = &auth.User{ID: 2, Role: user.RolePatient}
		var response clinic.ClinicsResponse
		Expect(json.NewDecoder(do(http.MethodGet, "/clinics", nil).Body).Decode(&response)).To(Succeed())
		Expect(response.Clinics).To(BeEmpty())
		Expect(do(http.MethodGet, "/clinics/1", nil).Code).To(Equal(http.StatusNotFound))
	})

	It("lets admins create clinics and refuses patients", func() {
		Expect(do(http.MethodPost, "/clinics", map[string]string{"name": "Arcada"}).Code).To(Equal(http.StatusForbidden))

		current = &auth.User{ID: 1, Role: user.RoleAdmin}
		w := do(http.MethodPost, "/clinics", map[string]string{"name": "Arcada", "state": "rj"})
		Expect(w.Code).To(Equal(http.StatusCreated))

		var created clinic.Clinic
		Expect(json.NewDecoder(w.Body).Decode(&created)).To(Succeed())
		Expect(created.ID).To(BeNumerically(">", 1))
		Expect(created.State).To(Equal("RJ"))
	})

	It("manages the clinic roster", func() {
		current = &auth.User{ID: 1, Role: user.RoleAdmin}
		Expect(do(http.MethodPost, "/clinics/1/members", map[string]int64{"user_id": 3}).Code).To(Equal(http.StatusNoContent))
		Expect(do(http.MethodPost, "/clinics/1/members", map[string]int64{"user_id": 3}).Code).To(Equal(http.StatusNoContent))
		Expect(do(http.MethodPost, "/clinics/1/members", map[string]int64{"user_id": 1}).Code).To(Equal(http.StatusBadRequest))

		var roster struct {
			UserIDs []int64 `json:"user_ids"`
		}
		Expect(json.NewDecoder(do(http.MethodGet, "/clinics/1/members", nil).Body).Decode(&roster)).To(Succeed())
		Expect(roster.UserIDs).To(Equal([]int64{3}))

		Expect(do(http.MethodDelete, "/clinics/1/members/3", nil).Code).To(Equal(http.StatusNoContent))
		Expect(do(http.MethodDelete, "/clinics/1/members/3", nil).Code).To(Equal(http.StatusNotFound))
	})

	It("rejects malformed ids", func() {
		Expect(do(http.MethodGet, "/clinics/abc", nil).Code).To(Equal(http.StatusBadRequest))
	})
})
