package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Set wraps the prometheus gauges/counters exported alongside the Snapshot
// report. NewChronikCache registers one against a private registry unless
// the caller supplies its own.
type Set struct {
	registry *prometheus.Registry

	subjectsByState   *prometheus.GaugeVec
	durableBytes      *prometheus.GaugeVec
	memCacheEntries   prometheus.Gauge
	buildQueueLength  prometheus.Gauge
	repairQueueLength prometheus.Gauge
	attachTotal       prometheus.Counter
	evictTotal        prometheus.Counter
	repairTotal       prometheus.Counter
}

// NewSet creates a metrics Set and registers its collectors against reg,
// or a fresh private registry if reg is nil.
func NewSet(reg *prometheus.Registry) *Set {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &Set{
		registry: reg,
		subjectsByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chronikcache", Name: "subjects_by_state",
			Help: "Number of subjects currently in each derived cache state.",
		}, []string{"state"}),
		durableBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chronikcache", Name: "durable_bytes",
			Help: "Durable store bytes by key-prefix classification.",
		}, []string{"class"}),
		memCacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chronikcache", Name: "mem_cache_entries",
			Help: "Entries currently held in the front memory cache.",
		}),
		buildQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chronikcache", Name: "build_queue_length",
			Help: "Tasks admitted to the build worker pool but not yet started.",
		}),
		repairQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chronikcache", Name: "repair_queue_length",
			Help: "Tasks admitted to the repair worker pool but not yet started.",
		}),
		attachTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chronikcache", Name: "attach_total",
			Help: "Notification subscriptions attached.",
		}),
		evictTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chronikcache", Name: "evict_total",
			Help: "Notification subscriptions evicted (capacity or reconnect failure).",
		}),
		repairTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chronikcache", Name: "repair_total",
			Help: "Per-tx repair refetches completed.",
		}),
	}
	s.registry.MustRegister(
		s.subjectsByState, s.durableBytes, s.memCacheEntries,
		s.buildQueueLength, s.repairQueueLength,
		s.attachTotal, s.evictTotal, s.repairTotal,
	)
	return s
}

// Observe updates every gauge from a fresh Snapshot.
func (s *Set) Observe(snap Snapshot) {
	s.subjectsByState.Reset()
	for name, b := range snap.ByState {
		s.subjectsByState.WithLabelValues(name).Set(float64(b.Count))
	}
	s.durableBytes.WithLabelValues("transactions").Set(float64(snap.Size.Transactions))
	s.durableBytes.WithLabelValues("metadata").Set(float64(snap.Size.Metadata))
	s.durableBytes.WithLabelValues("other").Set(float64(snap.Size.Other))
	s.memCacheEntries.Set(float64(snap.MemCacheEntries))
	s.buildQueueLength.Set(float64(snap.BuildQueueLength))
	s.repairQueueLength.Set(float64(snap.RepairQueueLength))
}

func (s *Set) IncAttach() { s.attachTotal.Inc() }
func (s *Set) IncEvict()  { s.evictTotal.Inc() }
func (s *Set) IncRepair() { s.repairTotal.Inc() }

// Gather returns the current metric families, for an embedding program
// that serves its own /metrics endpoint.
func (s *Set) Gather() ([]*dto.MetricFamily, error) {
	return s.registry.Gather()
}
