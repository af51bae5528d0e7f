// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/sudokuarena/logger"
)

// Metrics 指标集合；nil *Metrics 的所有方法都是 no-op
type Metrics struct {
	registry *prometheus.Registry

	OnlinePlayers     prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	MessagesReceived  prometheus.Counter
	MessageLatency    *prometheus.HistogramVec
	AdmissionsDenied  *prometheus.CounterVec
	RoundsEnded       *prometheus.CounterVec
	PersistenceErrors *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of connected players",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of rooms with at least one subscriber on this instance",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received",
		}),
		MessageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}, []string{"message"}),
		AdmissionsDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_denied_total",
			Help:      "Join attempts refused by room validation",
		}, []string{"reason"}),
		RoundsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_ended_total",
			Help:      "Finished rounds by end cause",
		}, []string{"cause"}),
		PersistenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      "Store failures that were logged and swallowed",
		}, []string{"op"}),
	}

	m.registry.MustRegister(
		m.OnlinePlayers,
		m.ActiveRooms,
		m.MessagesReceived,
		m.MessageLatency,
		m.AdmissionsDenied,
		m.RoundsEnded,
		m.PersistenceErrors,
	)

	return m
}

// Handler exposes the metrics in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer is used by tests to read back collected values.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) PlayerOnline() {
	if m != nil {
		m.OnlinePlayers.Inc()
	}
}

func (m *Metrics) PlayerOffline() {
	if m != nil {
		m.OnlinePlayers.Dec()
	}
}

func (m *Metrics) RoomOpened() {
	if m != nil {
		m.ActiveRooms.Inc()
	}
}

func (m *Metrics) RoomClosed() {
	if m != nil {
		m.ActiveRooms.Dec()
	}
}

func (m *Metrics) MessageReceived() {
	if m != nil {
		m.MessagesReceived.Inc()
	}
}

func (m *Metrics) ObserveLatency(message string, d time.Duration) {
	if m != nil {
		m.MessageLatency.WithLabelValues(message).Observe(d.Seconds())
	}
}

func (m *Metrics) AdmissionRejected(reason string) {
	if m != nil {
		m.AdmissionsDenied.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) RoundEnded(cause string) {
	if m != nil {
		m.RoundsEnded.WithLabelValues(cause).Inc()
	}
}

func (m *Metrics) PersistenceFailed(op string) {
	if m != nil {
		m.PersistenceErrors.WithLabelValues(op).Inc()
	}
}

// Monitor 指标 HTTP 服务
type Monitor struct {
	metrics      *Metrics
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
	server       *http.Server
}

func NewMonitor(namespace string) *Monitor {
	return &Monitor{
		metrics:   NewMetrics(namespace),
		startTime: time.Now(),
	}
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// CountRequest 统计网关处理的请求数，供 expvar 输出
func (m *Monitor) CountRequest() {
	m.metrics.MessageReceived()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) StartServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.metrics.Handler())
	mux.Handle("/debug/vars", expvar.Handler())

	// 添加expvar指标
	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("requests", expvar.Func(func() interface{} {
			m.mutex.Lock()
			defer m.mutex.Unlock()
			return m.requestCount
		}))
	})

	m.server = &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Errorf("metrics server stopped: %v", err)
		}
	}()
}

func (m *Monitor) Close() error {
	if m.server == nil {
		return nil
	}
	return m.server.Close()
}

// expvar.Publish panics on duplicate names
var publishOnce sync.Once
