package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/srpflow"
	"github.com/MrEthical07/srpflow/metrics/export/internaldefs"
	"github.com/MrEthical07/srpflow/states/authn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// EngineStateMetric reports 1 for the engine's current root state, with the
// state type as the "state" attribute.
const EngineStateMetric = "srpflow_engine_state"

// Source is what the exporter reads on every collection. *srpflow.Engine
// implements it.
type Source interface {
	MetricsSnapshot() srpflow.MetricsSnapshot
	AuditDropped() uint64
	State() authn.State
}

type latencyGauges struct {
	id      srpflow.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter publishes engine metrics as observable instruments.
type Exporter struct {
	source       Source
	registration metric.Registration

	counters     map[srpflow.MetricID]metric.Int64ObservableCounter
	latency      []latencyGauges
	auditDropped metric.Int64ObservableCounter
	state        metric.Int64ObservableGauge

	observables []metric.Observable
}

// New registers instruments for engine on meter.
func New(meter metric.Meter, engine *srpflow.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewFromSource(meter, engine)
}

// NewFromSource registers instruments for any Source.
func NewFromSource(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		counters: make(map[srpflow.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	if err := e.addCounters(meter); err != nil {
		return nil, err
	}
	if err := e.addLatency(meter); err != nil {
		return nil, err
	}
	if err := e.addEngineGauges(meter); err != nil {
		return nil, err
	}

	reg, err := meter.RegisterCallback(e.observe, e.observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) addCounters(meter metric.Meter) error {
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = ins
		e.observables = append(e.observables, ins)
	}
	return nil
}

func (e *Exporter) addLatency(meter metric.Meter) error {
	for _, def := range internaldefs.HistogramDefs {
		g := latencyGauges{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name,
				metric.WithDescription(def.Help+" Cumulative count at le="+internaldefs.HistogramBounds[i]+"."))
			if err != nil {
				return fmt.Errorf("bucket gauge %s: %w", name, err)
			}
			g.buckets[i] = ins
			e.observables = append(e.observables, ins)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help+" Sample count."))
		if err != nil {
			return fmt.Errorf("count gauge %s: %w", def.Name, err)
		}
		g.count = count
		e.observables = append(e.observables, count)
		e.latency = append(e.latency, g)
	}
	return nil
}

func (e *Exporter) addEngineGauges(meter metric.Meter) error {
	dropped, err := meter.Int64ObservableCounter("srpflow_audit_dropped_total",
		metric.WithDescription("Audit events dropped because the dispatcher buffer was full."))
	if err != nil {
		return fmt.Errorf("audit dropped counter: %w", err)
	}
	state, err := meter.Int64ObservableGauge(EngineStateMetric,
		metric.WithDescription("Current root state of the sign-in engine."))
	if err != nil {
		return fmt.Errorf("engine state gauge: %w", err)
	}
	e.auditDropped, e.state = dropped, state
	e.observables = append(e.observables, dropped, state)
	return nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for id, ins := range e.counters {
		o.ObserveInt64(ins, int64(snap.Counters[id]))
	}
	for _, g := range e.latency {
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[g.id]))
		for i := range cum {
			o.ObserveInt64(g.buckets[i], int64(cum[i]))
		}
		o.ObserveInt64(g.count, int64(cum[len(cum)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	if st := e.source.State(); st != nil {
		o.ObserveInt64(e.state, 1, metric.WithAttributes(attribute.String("state", st.Type())))
	}
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
