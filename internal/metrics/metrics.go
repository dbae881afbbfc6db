// Package metrics exposes delivery counters over Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"newsbot/internal/queue"
)

const namespace = "newsbot"

// Collector implements queue.Observer on top of a private registry.
type Collector struct {
	reg *prometheus.Registry

	fetched      prometheus.Counter
	queued       prometheus.Counter
	outcomes     *prometheus.CounterVec
	translations prometheus.Counter
	queueLen     prometheus.Gauge
	lastDelivery prometheus.Gauge
}

var _ queue.Observer = (*Collector)(nil)

func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		fetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_fetched_total",
			Help:      "Articles returned by the news API",
		}),
		queued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_queued_total",
			Help:      "Articles accepted into the delivery queue",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_outcomes_total",
			Help:      "Drain results by outcome",
		}, []string{"outcome"}),
		translations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_fallbacks_total",
			Help:      "Fields published untranslated after a translation failure",
		}),
		queueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Articles waiting in the delivery queue",
		}),
		lastDelivery: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_delivery_timestamp_seconds",
			Help:      "Unix time of the last successful delivery",
		}),
	}
	c.reg.MustRegister(
		c.fetched, c.queued, c.outcomes, c.translations, c.queueLen, c.lastDelivery,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	// Pre-create every outcome series so dashboards see zeros.
	for o := queue.OutcomeIdle; o <= queue.OutcomeUnrecorded; o++ {
		c.outcomes.WithLabelValues(o.String())
	}
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Fetched(n int) { c.fetched.Add(float64(n)) }
func (c *Collector) Queued(n int)  { c.queued.Add(float64(n)) }

func (c *Collector) Outcome(o queue.Outcome) {
	c.outcomes.WithLabelValues(o.String()).Inc()
	if o == queue.OutcomeDelivered || o == queue.OutcomeUnrecorded {
		c.lastDelivery.SetToCurrentTime()
	}
}

func (c *Collector) TranslationFallbacks(n int) { c.translations.Add(float64(n)) }
func (c *Collector) QueueLength(n int)          { c.queueLen.Set(float64(n)) }
