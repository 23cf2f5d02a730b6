package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

const namespace = "tally"

type Prometheus struct {
	voteWrites        *prometheus.CounterVec
	conflictRetry     prometheus.Counter
	publishFailed     prometheus.Counter
	subscriberEvicted prometheus.Counter
	streamsOpen       prometheus.Gauge
	streamsOpened     prometheus.Counter
}

var _ ports.Metrics = (*Prometheus)(nil)

func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	m := &Prometheus{
		voteWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_writes_total",
			Help:      "Vote writes by identity kind and outcome.",
		}, []string{"kind", "outcome"}),
		conflictRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_write_conflict_retries_total",
			Help:      "First-insert races retried as updates.",
		}),
		publishFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_publish_failures_total",
			Help:      "Fanout publishes that failed after a committed write.",
		}),
		subscriberEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_evictions_total",
			Help:      "Subscribers closed because their buffer was full.",
		}),
		streamsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_open",
			Help:      "Currently connected stream viewers.",
		}),
		streamsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_opened_total",
			Help:      "Stream sessions started.",
		}),
	}

	collectors := []prometheus.Collector{
		m.voteWrites,
		m.conflictRetry,
		m.publishFailed,
		m.subscriberEvicted,
		m.streamsOpen,
		m.streamsOpened,
	}
	var errs []error
	for _, c := range collectors {
		errs = append(errs, reg.Register(c))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Prometheus) VoteWritten(kind domain.IdentityKind, outcome string) {
	m.voteWrites.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Prometheus) WriteConflictRetried() { m.conflictRetry.Inc() }
func (m *Prometheus) PublishFailed()        { m.publishFailed.Inc() }
func (m *Prometheus) SubscriberEvicted()    { m.subscriberEvicted.Inc() }

func (m *Prometheus) StreamOpened() {
	m.streamsOpen.Inc()
	m.streamsOpened.Inc()
}

func (m *Prometheus) StreamClosed() { m.streamsOpen.Dec() }
