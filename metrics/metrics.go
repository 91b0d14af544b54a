// Package metrics exposes the controller's Prometheus metrics.
package metrics

import (
	"github.com/go-errors/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"strconv"
	"time"
)

// Collector bundles the controller metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Cycles           prometheus.Counter
	Triggers         *prometheus.CounterVec
	Distance         *prometheus.GaugeVec
	Dispatches       *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
	LinkOnline       prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}

	cycles, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poled_cycles_total",
		Help: "Completed sensor polling cycles.",
	}))
	if err != nil {
		return nil, err
	}
	c.Cycles = cycles

	triggers, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poled_triggers_total",
		Help: "Cycles in which a sensor was below the trigger threshold, by sensor.",
	}, []string{"sensor"}))
	if err != nil {
		return nil, err
	}
	c.Triggers = triggers

	distance, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "poled_distance_millimeters",
		Help: "Last distance read from each sensor.",
	}, []string{"sensor"}))
	if err != nil {
		return nil, err
	}
	c.Distance = distance

	dispatches, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poled_dispatches_total",
		Help: "Axle commands dispatched, by axle, requested state and outcome.",
	}, []string{"axle", "state", "outcome"}))
	if err != nil {
		return nil, err
	}
	c.Dispatches = dispatches

	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "poled_dispatch_duration_seconds",
		Help:    "Time from sending an axle command to its reply or abandonment.",
		Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}))
	if err != nil {
		return nil, err
	}
	c.DispatchDuration = duration

	link, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "poled_actuation_link_online",
		Help: "1 while the actuation service channel is ready.",
	}))
	if err != nil {
		return nil, err
	}
	c.LinkOnline = link

	return c, nil
}

// register adds col to reg, reusing an identical collector that is already
// registered.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			var zero T
			return zero, errors.Errorf("Could not register metric: %v", err)
		}

		existing, ok := are.ExistingCollector.(T)
		if !ok {
			var zero T
			return zero, errors.Errorf("Metric registered with a different type: %v", err)
		}

		return existing, nil
	}

	return col, nil
}

func (c *Collector) ObserveCycle() {
	if c == nil {
		return
	}
	c.Cycles.Inc()
}

func (c *Collector) ObserveDistance(sensor string, mm float64) {
	if c == nil {
		return
	}
	c.Distance.WithLabelValues(sensor).Set(mm)
}

func (c *Collector) ObserveTrigger(sensor string) {
	if c == nil {
		return
	}
	c.Triggers.WithLabelValues(sensor).Inc()
}

func (c *Collector) ObserveDispatch(axle uint8, state, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Dispatches.WithLabelValues(strconv.Itoa(int(axle)), state, outcome).Inc()
	c.DispatchDuration.Observe(elapsed.Seconds())
}

func (c *Collector) SetLinkOnline(online bool) {
	if c == nil {
		return
	}
	if online {
		c.LinkOnline.Set(1)
	} else {
		c.LinkOnline.Set(0)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
