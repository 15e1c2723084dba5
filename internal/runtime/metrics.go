package runtime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons recorded on faultline_reports_dropped_total.
const (
	DropQueueFull = "queue_full"
	DropClosed    = "closed"
	DropFiltered  = "filtered"
)

// ReportMetrics tracks report delivery statistics. A nil *ReportMetrics is
// valid and records nothing.
type ReportMetrics struct {
	mu sync.Mutex

	captured         *prometheus.CounterVec
	sent             prometheus.Counter
	dropped          *prometheus.CounterVec
	failed           prometheus.Counter
	sendSeconds      prometheus.Histogram
	softTimeouts     prometheus.Counter
	reconfigurations prometheus.Counter

	counts struct {
		captured, sent, dropped, failed, softTimeouts, reconfigurations atomic.Uint64
	}

	registerer prometheus.Registerer
	registered bool
}

// MetricsSnapshot is a point-in-time view of the counters.
type MetricsSnapshot struct {
	Captured         uint64    `json:"captured"`
	Sent             uint64    `json:"sent"`
	Dropped          uint64    `json:"dropped"`
	Failed           uint64    `json:"failed"`
	SoftTimeouts     uint64    `json:"soft_timeouts"`
	Reconfigurations uint64    `json:"reconfigurations"`
	CollectedAt      time.Time `json:"collected_at"`
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faultline",
		Name:      name,
		Help:      help,
	}, labels)
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "faultline",
		Name:      name,
		Help:      help,
	})
}

// NewReportMetrics creates the collectors. Call Register to expose them; a
// nil registerer means prometheus.DefaultRegisterer.
func NewReportMetrics(registerer prometheus.Registerer) *ReportMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &ReportMetrics{
		registerer: registerer,
		captured:   newCounterVec("reports_captured_total", "Reports captured by the client", []string{"kind", "level"}),
		sent:       newCounter("reports_sent_total", "Reports delivered to the transport"),
		dropped:    newCounterVec("reports_dropped_total", "Reports dropped before delivery", []string{"reason"}),
		failed:     newCounter("reports_failed_total", "Reports the transport failed to deliver"),
		sendSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "faultline",
			Name:      "report_send_seconds",
			Help:      "Time spent handing a report to the transport",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		softTimeouts:     newCounter("soft_timeouts_total", "Requests whose response started after the soft timeout"),
		reconfigurations: newCounter("client_reconfigurations_total", "Explicit client reconfigurations"),
	}
}

// Register registers the collectors. Safe to call multiple times; when an
// identical collector is already registered it is adopted.
func (m *ReportMetrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}

	var err error
	if m.captured, err = adopt(m.registerer, m.captured); err != nil {
		return err
	}
	if m.sent, err = adopt(m.registerer, m.sent); err != nil {
		return err
	}
	if m.dropped, err = adopt(m.registerer, m.dropped); err != nil {
		return err
	}
	if m.failed, err = adopt(m.registerer, m.failed); err != nil {
		return err
	}
	if m.sendSeconds, err = adopt(m.registerer, m.sendSeconds); err != nil {
		return err
	}
	if m.softTimeouts, err = adopt(m.registerer, m.softTimeouts); err != nil {
		return err
	}
	if m.reconfigurations, err = adopt(m.registerer, m.reconfigurations); err != nil {
		return err
	}
	m.registered = true
	return nil
}

func adopt[T prometheus.Collector](registerer prometheus.Registerer, c T) (T, error) {
	err := registerer.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return c, err
}

func (m *ReportMetrics) RecordCaptured(kind, level string) {
	if m == nil {
		return
	}
	m.counts.captured.Add(1)
	m.captured.WithLabelValues(kind, level).Inc()
}

func (m *ReportMetrics) RecordSent(d time.Duration) {
	if m == nil {
		return
	}
	m.counts.sent.Add(1)
	m.sent.Inc()
	m.sendSeconds.Observe(d.Seconds())
}

func (m *ReportMetrics) RecordFailed(d time.Duration) {
	if m == nil {
		return
	}
	m.counts.failed.Add(1)
	m.failed.Inc()
	m.sendSeconds.Observe(d.Seconds())
}

func (m *ReportMetrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.counts.dropped.Add(1)
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *ReportMetrics) RecordSoftTimeout() {
	if m == nil {
		return
	}
	m.counts.softTimeouts.Add(1)
	m.softTimeouts.Inc()
}

func (m *ReportMetrics) RecordReconfiguration() {
	if m == nil {
		return
	}
	m.counts.reconfigurations.Add(1)
	m.reconfigurations.Inc()
}

// Snapshot returns the current counter values.
func (m *ReportMetrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{CollectedAt: time.Now().UTC()}
	if m == nil {
		return snap
	}
	snap.Captured = m.counts.captured.Load()
	snap.Sent = m.counts.sent.Load()
	snap.Dropped = m.counts.dropped.Load()
	snap.Failed = m.counts.failed.Load()
	snap.SoftTimeouts = m.counts.softTimeouts.Load()
	snap.Reconfigurations = m.counts.reconfigurations.Load()
	return snap
}
