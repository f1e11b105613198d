package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github/chapool/embedded-wallet/internal/protocol"
)

const namespace = "embedded_wallet"

// Channel labels.
const (
	ChannelFrame  = "frame"
	ChannelWorker = "worker"
)

// Lock reasons.
const (
	LockReasonManual = "manual"
	LockReasonAuto   = "auto"
)

// Service owns the prometheus registry and the wallet collectors. All
// methods are safe on a nil receiver so components can run uninstrumented.
type Service struct {
	Registry *prometheus.Registry

	requests *prometheus.CounterVec
	timeouts *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	pending  *prometheus.GaugeVec
	locks    *prometheus.CounterVec
}

// New creates the registry and registers every collector.
func New() (*Service, error) {
	reg := prometheus.NewRegistry()

	s := &Service{
		Registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled, by channel, request type and outcome code.",
		}, []string{"channel", "type", "outcome"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_timeouts_total",
			Help:      "Pending requests that expired without a response.",
		}, []string{"channel"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_messages_total",
			Help:      "Inbound messages dropped before routing, by reason.",
		}, []string{"channel", "reason"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Requests currently awaiting a response.",
		}, []string{"channel"}),
		locks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "custody_locks_total",
			Help:      "Custody lock transitions, by reason.",
		}, []string{"reason"}),
	}

	for _, c := range []prometheus.Collector{
		s.requests,
		s.timeouts,
		s.dropped,
		s.pending,
		s.locks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// ObserveRequest counts a handled request with the error code as outcome.
func (s *Service) ObserveRequest(channel string, typ string, err error) {
	if s == nil {
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = string(protocol.ToWire(err).Code)
	}
	s.requests.WithLabelValues(channel, typ, outcome).Inc()
}

// ObserveTimeout counts an expired pending request.
func (s *Service) ObserveTimeout(channel string) {
	if s == nil {
		return
	}
	s.timeouts.WithLabelValues(channel).Inc()
}

// ObserveDropped counts a dropped inbound message.
func (s *Service) ObserveDropped(channel string, reason string) {
	if s == nil {
		return
	}
	s.dropped.WithLabelValues(channel, reason).Inc()
}

// SetPending reports the current pending table size.
func (s *Service) SetPending(channel string, n int) {
	if s == nil {
		return
	}
	s.pending.WithLabelValues(channel).Set(float64(n))
}

// ObserveLock counts a custody lock.
func (s *Service) ObserveLock(reason string) {
	if s == nil {
		return
	}
	s.locks.WithLabelValues(reason).Inc()
}

// Handler exposes the registry in the prometheus text format.
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{Registry: s.Registry})
}
