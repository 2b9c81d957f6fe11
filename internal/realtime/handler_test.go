package realtime_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errors "github.com/frahmantamala/dental-credit/internal"
	"github.com/frahmantamala/dental-credit/internal/auth"
	"github.com/frahmantamala/dental-credit/internal/core/events"
	"github.com/frahmantamala/dental-credit/internal/core/user"
	"github.com/frahmantamala/dental-credit/internal/credit"
	"github.com/frahmantamala/dental-credit/internal/realtime"
)

type viewer map[int64]int64

func (v viewer) GetRequest(_ context.Context, actor user.Actor, id int64) (*credit.CreditRequest, error) {
	patientID, ok := v[id]
	if !ok {
		return nil, credit.ErrRequestNotFound
	}
	if !actor.CanView(patientID, 0) {
		return nil, errors.ErrUnauthorizedAccess
	}
	return &credit.CreditRequest{ID: id, PatientID: patientID}, nil
}

var _ = Describe("Stream handler", func() {
	var (
		hub    *realtime.Hub
		server *httptest.Server
		caller *auth.User
	)

	BeforeEach(func() {
		hub = realtime.NewHub(8, testLogger())
		h := realtime.NewHandler(hub, viewer{10: 7}, testLogger())
		caller = &auth.User{ID: 7, Role: user.RolePatient}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.Stream(w, r.WithContext(auth.WithUser(r.Context(), caller)))
		}))
		DeferCleanup(func() {
			hub.Close()
			server.Close()
		})
	})

	get := func(query string) *http.Response {
		res, err := http.Get(server.URL + "/realtime?" + query)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(res.Body.Close)
		return res
	}

	It("rejects unknown tables", func() {
		Expect(get("table=users").StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("requires a credit request for child tables", func() {
		Expect(get("table=credit_offers").StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("refuses requests the caller cannot view", func() {
		caller = &auth.User{ID: 99, Role: user.RolePatient}
		Expect(get("table=credit_offers&credit_request_id=10").StatusCode).To(Equal(http.StatusForbidden))
		Expect(get("table=credit_offers&credit_request_id=11").StatusCode).To(Equal(http.StatusNotFound))
	})

	It("streams the caller's own changes as server-sent events", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/realtime?table=credit_requests", nil)
		Expect(err).ToNot(HaveOccurred())
		res, err := http.DefaultClient.Do(req)
		Expect(err).ToNot(HaveOccurred())
		defer res.Body.Close()
		Expect(res.StatusCode).To(Equal(http.StatusOK))
		Expect(res.Header.Get("Content-Type")).To(Equal("text/event-stream"))

		Eventually(hub.Len).Should(Equal(1))
		hub.Broadcast(realtime.ChangeEvent{ID: "e1", Table: realtime.TableCreditRequests, Type: events.OpUpdate, RecordID: 2,
			Record: map[string]interface{}{"patient_id": int64(8)}})
		hub.Broadcast(realtime.ChangeEvent{ID: "e2", Table: realtime.TableCreditRequests, Type: events.OpUpdate, RecordID: 10,
			Record: map[string]interface{}{"patient_id": int64(7), "status": "pending"}})

		reader := bufio.NewReader(res.Body)
		var lines []string
		for len(lines) < 3 {
			line, err := reader.ReadString('\n')
			Expect(err).ToNot(HaveOccurred())
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
		Expect(lines[0]).To(Equal("id: e2"))
		Expect(lines[1]).To(Equal("event: credit_requests"))
		Expect(lines[2]).To(ContainSubstring(`"record_id":10`))

		cancel()
		Eventually(hub.Len).Should(Equal(0))
	})
})
