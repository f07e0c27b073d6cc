package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Métricas de provisioning. Viven en un registry propio (no el default) porque
// el CLI es de corta vida: se vuelcan a un textfile al terminar.

// Result values for the reconcile counter.
const (
	ResultOK      = "ok"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

type Metrics struct {
	Registry *prometheus.Registry

	ReconcileTotal      *prometheus.CounterVec
	ReconcileDuration   *prometheus.HistogramVec
	GroupSkips          prometheus.Counter
	CacheWriteFailures  prometheus.Counter
	AdminRequestsTotal  *prometheus.CounterVec
	LastSuccessUnixTime *prometheus.GaugeVec
}

// New crea las métricas y las registra en un registry nuevo.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ReconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "totpsync_reconcile_total",
			Help: "Corridas de reconciliación por estrategia y resultado",
		}, []string{"strategy", "result"}),
		ReconcileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "totpsync_reconcile_duration_seconds",
			Help:    "Duración de una reconciliación completa",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"strategy"}),
		GroupSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "totpsync_group_assignments_skipped_total",
			Help: "Grupos omitidos (inexistentes o con error al asignar)",
		}),
		CacheWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "totpsync_cache_write_failures_total",
			Help: "Escrituras fallidas del cache de secretos (no fatales)",
		}),
		AdminRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "totpsync_admin_requests_total",
			Help: "Llamadas al Admin API del IdP por operación y clase de status",
		}, []string{"op", "code"}),
		LastSuccessUnixTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "totpsync_last_success_timestamp_seconds",
			Help: "Última reconciliación exitosa por usuario y entorno",
		}, []string{"username", "environment"}),
	}
	_ = Register(m.Registry, m.collectors()...)
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ReconcileTotal, m.ReconcileDuration, m.GroupSkips,
		m.CacheWriteFailures, m.AdminRequestsTotal, m.LastSuccessUnixTime,
	}
}

// Register registra collectors ignorando los ya registrados (o en el default si reg es nil).
func Register(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// ObserveRun registra el resultado de una corrida. Nil-safe.
func (m *Metrics) ObserveRun(strategy, result, username, env string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ReconcileTotal.WithLabelValues(strategy, result).Inc()
	if result == ResultSkipped {
		return
	}
	m.ReconcileDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	if result == ResultOK {
		m.LastSuccessUnixTime.WithLabelValues(username, env).SetToCurrentTime()
	}
}

// ObserveAdminRequest cuenta una llamada al Admin API. Nil-safe.
func (m *Metrics) ObserveAdminRequest(op string, status int) {
	if m == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status/100) + "xx"
	}
	m.AdminRequestsTotal.WithLabelValues(op, code).Inc()
}

// IncGroupSkips suma n grupos omitidos. Nil-safe.
func (m *Metrics) IncGroupSkips(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.GroupSkips.Add(float64(n))
}

// IncCacheWriteFailures cuenta un fallo de escritura del cache. Nil-safe.
func (m *Metrics) IncCacheWriteFailures() {
	if m == nil {
		return
	}
	m.CacheWriteFailures.Inc()
}

// WriteTextfile vuelca el registry en path (formato texto de Prometheus).
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
