// Package metrics exports scheduler activity and resource levels to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/me/amaos/pkg/model"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Source supplies the live values behind the gauges.
type Source interface {
	Resources() model.Resources
	QueueLen() int
	QueueCap() int
}

// Exporter counts lifecycle events and samples queue and pool levels.
// It implements kernel.Recorder.
type Exporter struct {
	eventsTotal   *prom.CounterVec
	rejectedTotal *prom.CounterVec
}

// NewExporter creates and registers the collectors. If reg is nil the
// default registerer is used.
func NewExporter(namespace string, reg prom.Registerer, src Source) (*Exporter, error) {
	if namespace == "" {
		namespace = "amaos"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	eventsVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_events_total",
		Help:      "Task lifecycle events by type and kind.",
	}, []string{"type", "kind"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Rejected admissions by reason.",
	}, []string{"reason"})

	var err error
	if eventsVec, err = registerCollector(reg, eventsVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}

	if src != nil {
		gauges := []prom.GaugeFunc{
			prom.NewGaugeFunc(prom.GaugeOpts{Namespace: namespace, Name: "queue_depth", Help: "Tasks in the ready queue."},
				func() float64 { return float64(src.QueueLen()) }),
			prom.NewGaugeFunc(prom.GaugeOpts{Namespace: namespace, Name: "queue_capacity", Help: "Ready queue capacity."},
				func() float64 { return float64(src.QueueCap()) }),
			prom.NewGaugeFunc(prom.GaugeOpts{Namespace: namespace, Name: "ram_available_mib", Help: "Unreserved RAM."},
				func() float64 { return float64(src.Resources().AvailableRAM) }),
			prom.NewGaugeFunc(prom.GaugeOpts{Namespace: namespace, Name: "storage_available_mib", Help: "Unreserved storage."},
				func() float64 { return float64(src.Resources().AvailableStorage) }),
		}
		for _, g := range gauges {
			if _, err := registerCollector(reg, g); err != nil {
				return nil, err
			}
		}
	}

	return &Exporter{eventsTotal: eventsVec, rejectedTotal: rejectedVec}, nil
}

// Record counts ev.
func (e *Exporter) Record(_ context.Context, ev model.Event) error {
	if e == nil {
		return nil
	}
	e.eventsTotal.WithLabelValues(ev.Type.String(), normalizeLabel(ev.Kind.String(), "none")).Inc()
	if ev.Type == model.EventRejected {
		e.rejectedTotal.WithLabelValues(normalizeLabel(ev.Detail, "unknown")).Inc()
	}
	return nil
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
