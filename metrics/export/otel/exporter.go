package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goBankAuth "github.com/MrEthical07/goBankAuth"
	"github.com/MrEthical07/goBankAuth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

const (
	outcomeKey = attribute.Key("outcome")
	leKey      = attribute.Key("le")
)

type metricsSource interface {
	MetricsSnapshot() goBankAuth.MetricsSnapshot
	AuditDropped() uint64
}

// series is one engine counter inside a family instrument.
type series struct {
	id   goBankAuth.MetricID
	opts []metric.ObserveOption
}

type family struct {
	instrument metric.Int64ObservableCounter
	series     []series
}

// latency publishes one histogram as a gauge keyed by bucket bound.
type latency struct {
	id         goBankAuth.MetricID
	instrument metric.Int64ObservableGauge
	bounds     []metric.ObserveOption
}

// Exporter keeps the callback registration alive until Close.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	families     []*family
	latencies    []latency
	auditDropped metric.Int64ObservableCounter
}

func NewExporter(meter metric.Meter, engine *goBankAuth.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource registers one instrument per metric family on meter
// and observes source on every collection.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &Exporter{source: source}
	var observables []metric.Observable

	byName := make(map[string]*family)
	for _, def := range internaldefs.CounterDefs {
		f, ok := byName[def.Family]
		if !ok {
			ins, err := meter.Int64ObservableCounter(
				def.Family,
				metric.WithDescription(internaldefs.FamilyHelp[def.Family]),
				metric.WithUnit("{event}"),
			)
			if err != nil {
				return nil, fmt.Errorf("create counter %s: %w", def.Family, err)
			}
			f = &family{instrument: ins}
			byName[def.Family] = f
			exporter.families = append(exporter.families, f)
			observables = append(observables, ins)
		}
		s := series{id: def.ID}
		if def.Outcome != "" {
			s.opts = []metric.ObserveOption{metric.WithAttributes(outcomeKey.String(def.Outcome))}
		}
		f.series = append(f.series, s)
	}

	for _, def := range internaldefs.HistogramDefs {
		ins, err := meter.Int64ObservableGauge(
			def.Family,
			metric.WithDescription(internaldefs.FamilyHelp[def.Family]),
			metric.WithUnit("{login}"),
		)
		if err != nil {
			return nil, fmt.Errorf("create gauge %s: %w", def.Family, err)
		}
		l := latency{id: def.ID, instrument: ins}
		for _, bound := range internaldefs.HistogramUpperBounds {
			le := strconv.FormatFloat(bound, 'g', -1, 64)
			l.bounds = append(l.bounds, metric.WithAttributes(leKey.String(le)))
		}
		l.bounds = append(l.bounds, metric.WithAttributes(leKey.String("+Inf")))
		exporter.latencies = append(exporter.latencies, l)
		observables = append(observables, ins)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		"gobankauth.audit.dropped",
		metric.WithDescription("Audit events lost to a full buffer, a cancelled caller or the flush timeout."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	exporter.registration = registration
	return exporter, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, f := range e.families {
		for _, s := range f.series {
			observer.ObserveInt64(f.instrument, int64(snapshot.Counters[s.id]), s.opts...)
		}
	}
	for _, l := range e.latencies {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[l.id]))
		for i, opt := range l.bounds {
			observer.ObserveInt64(l.instrument, int64(cumulative[i]), opt)
		}
	}
	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
