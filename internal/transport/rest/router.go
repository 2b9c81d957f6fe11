package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/dental-credit/internal"
	"github.com/frahmantamala/dental-credit/internal/auth"
	"github.com/frahmantamala/dental-credit/internal/clinic"
	"github.com/frahmantamala/dental-credit/internal/credit"
	"github.com/frahmantamala/dental-credit/internal/document"
	"github.com/frahmantamala/dental-credit/internal/notification"
	"github.com/frahmantamala/dental-credit/internal/offer"
	"github.com/frahmantamala/dental-credit/internal/payment"
	"github.com/frahmantamala/dental-credit/internal/realtime"
	"github.com/frahmantamala/dental-credit/internal/transport/middleware"
	"github.com/frahmantamala/dental-credit/internal/transport/swagger"
	"github.com/frahmantamala/dental-credit/internal/user"
)

// Handlers groups everything RegisterAllRoutes mounts. Nil handlers leave their routes unregistered.
type Handlers struct {
	Health       *HealthHandler
	Auth         *auth.Handler
	User         *user.Handler
	Clinic       *clinic.Handler
	Credit       *credit.Handler
	Offer        *offer.Handler
	Document     *document.Handler
	Payment      *payment.Handler
	Webhook      *payment.WebhookHandler
	Notification *notification.Handler
	Realtime     *realtime.Handler

	RBAC         *auth.RBACAuthorization
	AccessPolicy *auth.RequestAccessPolicy
	Spec         *swagger.Spec

	// FilesDir is served under /files for locally stored documents.
	FilesDir string
}

func RegisterAllRoutes(router chi.Router, h Handlers, cfg internal.ServerConfig, logger *slog.Logger) {
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	if h.Spec != nil {
		router.Method(http.MethodGet, "/openapi.yml", h.Spec)
		router.Handle("/swagger/*", swagger.Handler("/openapi.yml"))
	}
	if h.FilesDir != "" {
		router.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(h.FilesDir))))
	}

	router.Route("/api/v1", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.Health)
			r.Get("/ping", h.Health.Ping)
		}

		if h.Webhook != nil {
			r.Post("/payments/webhook", h.Webhook.HandlePaymentCallback)
		}

		if h.Auth == nil {
			return
		}
		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", h.Auth.Login)
			sr.Post("/refresh", h.Auth.RefreshToken)
			sr.Post("/logout", h.Auth.Logout)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			if h.User != nil {
				pr.Get("/users/me", h.User.GetCurrentUser)
			}
			if h.Clinic != nil {
				registerClinicRoutes(pr, h)
			}
			if h.Realtime != nil {
				pr.Get("/realtime", h.Realtime.Stream)
			}
			if h.Offer != nil {
				pr.Post("/offers/preview", h.Offer.Preview)
			}
			if h.Notification != nil {
				pr.Route("/notifications", func(nr chi.Router) {
					nr.Get("/", h.Notification.List)
					nr.Get("/unread-count", h.Notification.UnreadCount)
					nr.Patch("/read-all", h.Notification.MarkAllRead)
					nr.Patch("/{id}/read", h.Notification.MarkRead)
					nr.Delete("/{id}", h.Notification.Delete)
				})
			}
			if h.Document != nil {
				pr.Delete("/documents/{id}", h.Document.Delete)
				pr.Patch("/documents/{id}/verify", h.Document.Verify)
			}
			if h.Payment != nil {
				pr.Post("/payments/{id}/cancel", h.Payment.CancelSubscription)
			}

			if h.Credit != nil {
				pr.Post("/credit-requests", h.Credit.CreateRequest)
				pr.Get("/credit-requests", h.Credit.ListRequests)
			}
			pr.Route("/credit-requests/{id}", func(cr chi.Router) {
				if h.AccessPolicy != nil {
					cr.Use(h.AccessPolicy.Middleware)
				}
				registerRequestRoutes(cr, h)
			})
		})
	})
}

func registerClinicRoutes(r chi.Router, h Handlers) {
	admin := func(next http.HandlerFunc) http.Handler {
		if h.RBAC == nil {
			return next
		}
		return h.RBAC.RequireAdmin()(next)
	}

	r.Route("/clinics", func(cr chi.Router) {
		cr.Get("/", h.Clinic.List)
		cr.Method(http.MethodPost, "/", admin(h.Clinic.Create))
		cr.Get("/{id}", h.Clinic.Get)
		cr.Method(http.MethodPost, "/{id}/activate", admin(h.Clinic.Activate))
		cr.Method(http.MethodPost, "/{id}/deactivate", admin(h.Clinic.Deactivate))
		cr.Get("/{id}/members", h.Clinic.Members)
		cr.Method(http.MethodPost, "/{id}/members", admin(h.Clinic.AddMember))
		cr.Method(http.MethodDelete, "/{id}/members/{userID}", admin(h.Clinic.RemoveMember))
	})
}

func registerRequestRoutes(cr chi.Router, h Handlers) {
	clinicStaff := func(next http.HandlerFunc) http.Handler {
		if h.RBAC == nil {
			return next
		}
		return h.RBAC.RequireClinicStaff()(next)
	}
	permitted := func(permission string, next http.HandlerFunc) http.Handler {
		if h.RBAC == nil {
			return next
		}
		return h.RBAC.RequirePermission(permission)(next)
	}

	if h.Credit != nil {
		cr.Get("/", h.Credit.GetRequest)
		cr.Method(http.MethodPost, "/clinic-decision", clinicStaff(h.Credit.ClinicDecision))
		cr.Method(http.MethodPost, "/admin-analysis", permitted(auth.PermAdminDecision, h.Credit.StartAdminAnalysis))
		cr.Method(http.MethodPost, "/admin-decision", permitted(auth.PermAdminDecision, h.Credit.AdminDecision))
		cr.Post("/patient-decision", h.Credit.PatientDecision)
		cr.Get("/analyses", h.Credit.ListAnalyses)
	}
	if h.Offer != nil {
		cr.Method(http.MethodPost, "/offers", permitted(auth.PermSubmitOffers, h.Offer.SubmitOffers))
		cr.Get("/offers", h.Offer.ListOffers)
		cr.Get("/offers/best", h.Offer.BestOffer)
		cr.Get("/offers/summary", h.Offer.Summary)
		cr.Post("/offers/{offerId}/select", h.Offer.SelectOffer)
		cr.Post("/send-to-patient", h.Offer.SendToPatient)
	}
	if h.Document != nil {
		cr.Post("/documents", h.Document.Upload)
		cr.Get("/documents", h.Document.List)
	}
	if h.Payment != nil {
		cr.Post("/payments", h.Payment.Dispatch)
		cr.Get("/payments", h.Payment.ListPayments)
	}
}
