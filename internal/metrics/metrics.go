package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const prefix = "floorops_"

var (
	registerOnce sync.Once

	emergenciesCreated *prometheus.CounterVec
	modeTransitions    *prometheus.CounterVec
	eventsPublished    *prometheus.CounterVec
	sessionsDropped    prometheus.Counter
	presenceOnline     prometheus.Gauge
	presenceExpired    prometheus.Counter
	cacheErrors        *prometheus.CounterVec
)

// Init registers every collector on the default registry. Safe to call repeatedly.
func Init() {
	registerOnce.Do(func() {
		emergenciesCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "emergencies_created_total",
			Help: "Emergencies created by severity",
		}, []string{"severity"})
		modeTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "production_mode_transitions_total",
			Help: "Production mode transitions by target mode and cause",
		}, []string{"mode", "cause"})
		eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "events_published_total",
			Help: "Events published to rooms by event name",
		}, []string{"event"})
		sessionsDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "sessions_dropped_total",
			Help: "Sessions dropped because their outbox was full",
		})
		presenceOnline = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "presence_sessions",
			Help: "Sessions currently tracked as online on this node",
		})
		presenceExpired = prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "presence_expired_total",
			Help: "Sessions removed by the liveness sweep",
		})
		cacheErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "cache_errors_total",
			Help: "Cache operation failures by operation",
		}, []string{"op"})

		prometheus.MustRegister(
			emergenciesCreated, modeTransitions, eventsPublished,
			sessionsDropped, presenceOnline, presenceExpired, cacheErrors,
		)
	})
}

func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

func EmergencyCreated(severity string) {
	Init()
	emergenciesCreated.WithLabelValues(severity).Inc()
}

func ModeTransition(mode, cause string) {
	Init()
	modeTransitions.WithLabelValues(mode, cause).Inc()
}

func EventPublished(event string) {
	Init()
	eventsPublished.WithLabelValues(event).Inc()
}

func SessionDropped() {
	Init()
	sessionsDropped.Inc()
}

func PresenceConnected() {
	Init()
	presenceOnline.Inc()
}

func PresenceDisconnected(expired bool) {
	Init()
	presenceOnline.Dec()
	if expired {
		presenceExpired.Inc()
	}
}

func CacheError(op string) {
	Init()
	cacheErrors.WithLabelValues(op).Inc()
}
