package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/floor-ops-backend/internal/auth"
	"github.com/DoyleJ11/floor-ops-backend/internal/engine"
	"github.com/DoyleJ11/floor-ops-backend/internal/hub"
	"github.com/DoyleJ11/floor-ops-backend/internal/metrics"
	"github.com/DoyleJ11/floor-ops-backend/internal/presence"
	"github.com/DoyleJ11/floor-ops-backend/internal/store"
	"github.com/DoyleJ11/floor-ops-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Deps struct {
	Auth     *auth.Authenticator
	Engine   *engine.Engine
	Hub      *hub.Hub
	Presence *presence.Tracker
	Store    store.Store
	Log      *zap.Logger

	// Socket is passed through to ws.Handler; its shared fields are filled from Deps.
	Socket ws.Deps
}

func SetupRoutes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	a := &api{deps: d, log: d.Log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", a.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	sock := d.Socket
	sock.Auth, sock.Engine, sock.Hub, sock.Presence = d.Auth, d.Engine, d.Hub, d.Presence
	if sock.Log == nil {
		sock.Log = d.Log.Named("ws")
	}
	r.Get("/ws", ws.Handler(sock))

	// Member routes
	r.Group(func(r chi.Router) {
		r.Use(authenticate(d.Auth, d.Log))

		r.Route("/emergencies", func(r chi.Router) {
			r.Post("/", a.createEmergency)
			r.Get("/", a.listEmergencies)
			r.Get("/active", a.activeEmergencies)
			r.Get("/history", a.emergencyHistory)
			r.Get("/stats/overview", a.emergencyStats)
			r.Put("/{id}", a.updateEmergency)
			r.Delete("/{id}", a.deleteEmergency)
		})

		r.Route("/production", func(r chi.Router) {
			r.Get("/status", a.productionStatus)
			r.Put("/status", a.updateProductionStatus)
			r.Patch("/mode", a.setProductionMode)
			r.Get("/metrics/realtime", a.realtimeMetrics)
		})

		r.Route("/teams", func(r chi.Router) {
			r.Patch("/members/{id}/status", a.updateMemberStatus)
			r.Get("/stats/members", a.teamStats)
			r.Get("/online/members", a.onlineMembers)
		})

		r.Get("/checklists/stats/templates", a.templateStats)
	})
	return r
}
