package router

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-booking/internal/booking"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/http/respond"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/triage"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	SlotHandler        *schedule.Handler
	BookingHandler     *booking.Handler
	TriageHandler      *triage.Handler
	MetricsHandler     http.Handler
	AuthSecret         string
	CORSAllowedOrigins []string
	// WriteLimiter throttles booking and slot mutations when set.
	WriteLimiter *httpmiddleware.RateLimiter
	HealthChecks map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(httpmiddleware.CallerJWT(cfg.AuthSecret))

		writes := func(h http.HandlerFunc) http.Handler {
			if cfg.WriteLimiter == nil {
				return h
			}
			return httpmiddleware.RateLimit(cfg.WriteLimiter)(h)
		}

		if cfg.TriageHandler != nil {
			v1.Post("/triage/classify", cfg.TriageHandler.Classify)
		}

		v1.Route("/doctors/{doctorID}", func(doc chi.Router) {
			if cfg.SlotHandler != nil {
				doc.Get("/slots", cfg.SlotHandler.ListSlots)
				doc.Method(http.MethodPost, "/slots", writes(cfg.SlotHandler.AddSlot))
				doc.Method(http.MethodDelete, "/slots/{index}", writes(cfg.SlotHandler.RemoveSlotAt))
				doc.Method(http.MethodDelete, "/slots/id/{slotID}", writes(cfg.SlotHandler.RemoveSlotByID))
			}
			if cfg.BookingHandler != nil {
				doc.Method(http.MethodPost, "/slots/reserve", writes(cfg.BookingHandler.ReserveSlot))
				doc.Method(http.MethodPost, "/slots/release", writes(cfg.BookingHandler.ReleaseSlot))
				doc.Get("/appointments", cfg.BookingHandler.DoctorQueue)
			}
		})

		if cfg.BookingHandler != nil {
			v1.Route("/appointments", func(appts chi.Router) {
				appts.Method(http.MethodPost, "/", writes(cfg.BookingHandler.Book))
				appts.Get("/", cfg.BookingHandler.List)
				appts.Get("/{appointmentID}", cfg.BookingHandler.Get)
				appts.Method(http.MethodPost, "/{appointmentID}/cancel", writes(cfg.BookingHandler.Cancel))
				appts.Method(http.MethodPost, "/{appointmentID}/complete", writes(cfg.BookingHandler.Complete))
			})
		}
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			for _, name := range names {
				if err := checks[name](ctx); err != nil {
					resp.Checks[name] = err.Error()
					resp.Status = "degraded"
					status = http.StatusServiceUnavailable
					continue
				}
				resp.Checks[name] = "ok"
			}
		}
		respond.JSON(w, status, resp)
	}
}
