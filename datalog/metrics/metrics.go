// Package metrics exports planner annotations as Prometheus metrics.
package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wbrown/janus-reasoner/datalog/annotations"
)

const namespace = "reasoner"

// Plan request outcomes
const (
	OutcomeComputed = "computed"
	OutcomeCached   = "cached"
	OutcomeFailed   = "failed"
)

// Metrics turns annotation events into counters and histograms. Register it
// with a planner through Options.Annotations = m.Handle.
type Metrics struct {
	requests       *prometheus.CounterVec
	planDuration   prometheus.Histogram
	orderings      prometheus.Histogram
	choices        prometheus.Histogram
	completions    prometheus.Histogram
	committed      prometheus.Counter
	internalErrors prometheus.Counter
	statsLoaded    prometheus.Counter
}

// New creates the planner metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_requests_total",
			Help:      "Plan requests by outcome.",
		}, []string{"outcome"}),
		planDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plan_duration_seconds",
			Help:      "Time to answer a plan request, cache hits included.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		orderings: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "orderings_per_call_mode",
			Help:      "Orderings produced by the ordering search for one call mode.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		choices: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "choices_per_call_mode",
			Help:      "Ordering choices kept for one call mode.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		completions: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "subgraph_completions",
			Help:      "Complete assignments examined by one subgraph search.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		committed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_committed_total",
			Help:      "Call mode plans committed to the session cache.",
		}),
		internalErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "planner_internal_errors_total",
			Help:      "Planning sessions aborted by an internal error.",
		}),
		statsLoaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_loads_total",
			Help:      "Statistics snapshots loaded.",
		}),
	}
}

// Handle implements annotations.Handler
func (m *Metrics) Handle(event annotations.Event) {
	switch event.Name {
	case annotations.PlanCached:
		m.requests.WithLabelValues(OutcomeCached).Inc()
		m.planDuration.Observe(event.Latency.Seconds())
	case annotations.PlanComplete:
		if ok, _ := event.Data["success"].(bool); ok {
			m.requests.WithLabelValues(OutcomeComputed).Inc()
		} else {
			m.requests.WithLabelValues(OutcomeFailed).Inc()
		}
		m.planDuration.Observe(event.Latency.Seconds())
	case annotations.OrderingsGenerated:
		m.orderings.Observe(number(event.Data["orderings.count"]))
		m.choices.Observe(number(event.Data["choices.count"]))
	case annotations.SubgraphPlanned:
		m.completions.Observe(number(event.Data["completions.count"]))
	case annotations.PlanCommitted:
		m.committed.Inc()
	case annotations.ErrorPlannerInternal:
		m.internalErrors.Inc()
	case annotations.StatsLoaded:
		m.statsLoaded.Inc()
	}
}

func number(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

// Summary renders the counters and histogram totals gathered from g, one
// metric per line, sorted by name.
func Summary(g prometheus.Gatherer) (string, error) {
	families, err := g.Gather()
	if err != nil {
		return "", err
	}
	var lines []string
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), namespace+"_") {
			continue
		}
		for _, metric := range mf.GetMetric() {
			name := mf.GetName()
			var labels []string
			for _, lp := range metric.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case metric.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, metric.GetCounter().GetValue()))
			case metric.GetHistogram() != nil:
				h := metric.GetHistogram()
				lines = append(lines, fmt.Sprintf("%s count=%d sum=%g", name, h.GetSampleCount(), h.GetSampleSum()))
			}
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n"), nil
}
