package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/civicpulse/tokenguard"
	"github.com/civicpulse/tokenguard/metrics/export/internaldefs"
)

var (
	// ErrNilMeter is returned when no meter is supplied.
	ErrNilMeter = errors.New("otel: nil meter")
	// ErrNilSource is returned when no snapshot source is supplied.
	ErrNilSource = errors.New("otel: nil metrics source")
)

// BucketBoundKey is the attribute carrying a bucket's upper bound on _bucket series.
const BucketBoundKey = "le"

type metricsSource interface {
	MetricsSnapshot() tokenguard.MetricsSnapshot
	AuditDropped() uint64
}

// observeFunc records one definition's value from a snapshot.
type observeFunc func(snap tokenguard.MetricsSnapshot, o metric.Observer)

// OTelExporter publishes engine snapshots through observable instruments. Every
// definition in internaldefs yields its instruments and an observeFunc, so the
// exported set always matches the engine's metric table.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	observers    []observeFunc
}

// NewOTelExporter registers instruments on meter that read from engine.
func NewOTelExporter(meter metric.Meter, engine *tokenguard.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers instruments on meter that read from source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var instruments []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel: counter %s: %w", def.Name, err)
		}
		id := def.ID
		instruments = append(instruments, ins)
		e.observers = append(e.observers, func(snap tokenguard.MetricsSnapshot, o metric.Observer) {
			o.ObserveInt64(ins, int64(snap.Counters[id]))
		})
	}

	for _, def := range internaldefs.HistogramDefs {
		fn, ins, err := histogramObserver(meter, def)
		if err != nil {
			return nil, err
		}
		instruments = append(instruments, ins...)
		e.observers = append(e.observers, fn)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription("Audit events that never reached the sink."))
	if err != nil {
		return nil, fmt.Errorf("otel: counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	instruments = append(instruments, dropped)

	e.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		snap := e.source.MetricsSnapshot()
		for _, observe := range e.observers {
			observe(snap, o)
		}
		o.ObserveInt64(dropped, int64(e.source.AuditDropped()))
		return nil
	}, instruments...)
	if err != nil {
		return nil, fmt.Errorf("otel: register callback: %w", err)
	}
	return e, nil
}

// histogramObserver exports a latency histogram as a cumulative _bucket counter
// with one "le" attribute set per bound, plus a _count counter. Nothing is
// observed while the snapshot lacks the histogram.
func histogramObserver(meter metric.Meter, def internaldefs.HistogramDef) (observeFunc, []metric.Observable, error) {
	bucketName, countName := def.Name+"_bucket", def.Name+"_count"

	buckets, err := meter.Int64ObservableCounter(bucketName, metric.WithDescription(def.Help))
	if err != nil {
		return nil, nil, fmt.Errorf("otel: counter %s: %w", bucketName, err)
	}
	count, err := meter.Int64ObservableCounter(countName, metric.WithDescription(def.Help))
	if err != nil {
		return nil, nil, fmt.Errorf("otel: counter %s: %w", countName, err)
	}

	bounds := make([]metric.ObserveOption, len(internaldefs.HistogramBounds))
	for i, le := range internaldefs.HistogramBounds {
		bounds[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String(BucketBoundKey, le)))
	}

	id := def.ID
	fn := func(snap tokenguard.MetricsSnapshot, o metric.Observer) {
		raw, ok := snap.Histograms[id]
		if !ok {
			return
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, opt := range bounds {
			o.ObserveInt64(buckets, int64(cumulative[i]), opt)
		}
		o.ObserveInt64(count, int64(cumulative[len(cumulative)-1]))
	}
	return fn, []metric.Observable{buckets, count}, nil
}

// Close unregisters the callback. Instruments stay defined on the meter.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
