package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"enrich/internal/badrow"
	"enrich/internal/config"
	"enrich/internal/constants"
	"enrich/internal/decoder"
	"enrich/internal/enrichment"
	"enrich/internal/logger"
	"enrich/internal/model"
	"enrich/internal/registry"
	"enrich/internal/sourcesink"
	pkgerrors "enrich/pkg/errors"
	"enrich/pkg/logging"
	"enrich/pkg/metrics"
	"enrich/pkg/tracing"
)

// Runtime wires source -> decoder -> pipeline -> sinks. Backpressure
// is structural: workSem bounds how many events are admitted past the
// decoder at once (concurrency.enrich), sinkSem bounds concurrent
// sink writes (concurrency.sink). A record's checkpoint fires only
// once every event derived from it has gone through a sink, in
// arrival order per partition, via partitionSequencer.
type Runtime struct {
	source       sourcesink.RecordSource
	checkpointer sourcesink.Checkpointer
	decoder      *decoder.Decoder
	pipeline     *enrichment.Pipeline
	registry     *registry.EnrichmentRegistry
	gate         *registry.PauseGate

	goodSink sourcesink.AttributedSink
	piiSink  sourcesink.AttributedSink
	badSink  sourcesink.ByteSink

	flags config.FeatureFlagsConfig

	workSem chan struct{}
	sinkSem chan struct{}

	sequencersMu sync.Mutex
	sequencers   map[string]*partitionSequencer

	inFlight sync.WaitGroup
	badRows  *badrow.Builder

	logger logger.Logger

	// fatal latches the first terminal sink-write error and cancel
	// stops Run from admitting further records once one occurs.
	fatal  atomic.Pointer[error]
	cancel context.CancelFunc
}

type Sinks struct {
	Good sourcesink.AttributedSink
	Pii  sourcesink.AttributedSink
	Bad  sourcesink.ByteSink
}

func New(
	source sourcesink.RecordSource,
	checkpointer sourcesink.Checkpointer,
	dec *decoder.Decoder,
	pipeline *enrichment.Pipeline,
	reg *registry.EnrichmentRegistry,
	gate *registry.PauseGate,
	sinks Sinks,
	concurrency config.ConcurrencyConfig,
	flags config.FeatureFlagsConfig,
	log logger.Logger,
) *Runtime {
	enrichN := concurrency.Enrich
	if enrichN <= 0 {
		enrichN = constants.DefaultConcurrencyEnrich
	}
	sinkN := concurrency.Sink
	if sinkN <= 0 {
		sinkN = constants.DefaultConcurrencySink
	}

	return &Runtime{
		source:       source,
		checkpointer: checkpointer,
		decoder:      dec,
		pipeline:     pipeline,
		registry:     reg,
		gate:         gate,
		goodSink:     sinks.Good,
		piiSink:      sinks.Pii,
		badSink:      sinks.Bad,
		flags:        flags,
		workSem:      make(chan struct{}, enrichN),
		sinkSem:      make(chan struct{}, sinkN),
		sequencers:   make(map[string]*partitionSequencer),
		badRows:      badrow.NewBuilder("enrich", "0.1.0"),
		logger:       log,
	}
}

// Run pulls records until the source is exhausted or ctx is
// cancelled. It returns nil on either of those; an unrecoverable
// source error, or a terminal sink-write failure surfaced by
// failFatal, propagates instead.
func (r *Runtime) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	defer cancel()

	for {
		rec, err := r.source.Next(runCtx)
		if err != nil {
			// A genuinely exhausted (finite) source has no more admit
			// calls left to observe a fatal failure recorded by
			// in-flight work, so wait for that work to finish before
			// deciding whether this run actually succeeded.
			streamClosed := errors.Is(err, sourcesink.ErrStreamClosed)
			if streamClosed {
				r.inFlight.Wait()
			}
			if fatal := r.fatalError(); fatal != nil {
				return fatal
			}
			if streamClosed {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := r.admit(runCtx, rec); err != nil {
			if fatal := r.fatalError(); fatal != nil {
				return fatal
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// failFatal records the first terminal sink-write failure and cancels
// the run so admitUnit stops accepting new work and Run unwinds with
// this error instead of nil.
func (r *Runtime) failFatal(err error) {
	if r.fatal.CompareAndSwap(nil, &err) && r.cancel != nil {
		r.cancel()
	}
}

func (r *Runtime) fatalError() error {
	if e := r.fatal.Load(); e != nil {
		return *e
	}
	return nil
}

// Drain satisfies registry.DrainFunc: it blocks until every event
// already admitted has finished its pipeline run and sink write, or
// ctx expires first.
func (r *Runtime) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown implements the cooperative shutdown sequence: stop has
// already happened by the caller cancelling Run's context; this
// drains in-flight work, flushes sinks, and releases them. It does
// not touch the registry or any shared DB/HTTP pools — those are
// process-lifetime resources the caller (cmd/enrich) owns and closes
// after every Runtime it drives has stopped.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if err := r.Drain(ctx); err != nil {
		return err
	}

	var errs []error
	if err := r.goodSink.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.piiSink != nil {
		if err := r.piiSink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.badSink.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (r *Runtime) sequencerFor(partitionID string) *partitionSequencer {
	r.sequencersMu.Lock()
	defer r.sequencersMu.Unlock()

	s, ok := r.sequencers[partitionID]
	if !ok {
		s = newPartitionSequencer()
		r.sequencers[partitionID] = s
	}
	return s
}

func (r *Runtime) admit(ctx context.Context, rec model.Record) error {
	ctx = logging.WithPartitionID(ctx, rec.PartitionID)
	seq := r.sequencerFor(rec.PartitionID).Assign()

	events, bad := r.decoder.Decode(rec.Bytes, rec.PartitionID)

	if bad == nil && len(events) == 0 {
		return r.admitUnit(ctx, func() {
			r.sequencerFor(rec.PartitionID).CommitWhenReady(seq, func() { r.commit(ctx, rec) })
		})
	}

	if bad != nil {
		return r.admitUnit(ctx, func() {
			if err := r.routeBad(ctx, bad); err != nil {
				r.failFatal(err)
				return
			}
			r.sequencerFor(rec.PartitionID).CommitWhenReady(seq, func() { r.commit(ctx, rec) })
		})
	}

	remaining := int64(len(events))
	var failed atomic.Bool
	for _, ev := range events {
		ev := ev
		err := r.admitUnit(ctx, func() {
			if evErr := r.processEvent(ctx, ev); evErr != nil {
				failed.Store(true)
				r.failFatal(evErr)
			}
			if atomic.AddInt64(&remaining, -1) == 0 && !failed.Load() {
				r.sequencerFor(rec.PartitionID).CommitWhenReady(seq, func() { r.commit(ctx, rec) })
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// admitUnit blocks until a work-queue slot is free, then runs work in
// its own goroutine, releasing the slot and the in-flight count when
// it finishes. This is the structural backpressure point: once
// concurrency.enrich units are in flight, admit (and therefore Run's
// source pull) blocks.
func (r *Runtime) admitUnit(ctx context.Context, work func()) error {
	select {
	case r.workSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.inFlight.Add(1)
	metrics.SetWorkQueueDepth(len(r.workSem))
	go func() {
		defer func() {
			<-r.workSem
			r.inFlight.Done()
			metrics.SetWorkQueueDepth(len(r.workSem))
		}()
		work()
	}()
	return nil
}

// processEvent returns a non-nil error only for a terminal sink-write
// failure; the caller treats that as fatal and skips the record's
// checkpoint. A cancelled gate wait drops the event without writing
// anywhere, but is not itself a sink failure, so it reports success. A
// missing registry snapshot routes a generic bad row for the event.
func (r *Runtime) processEvent(ctx context.Context, raw model.RawEvent) error {
	ctx, span := tracing.GetTracer("runtime").Start(ctx, "runtime.process_event")
	defer span.End()

	if err := r.gate.Wait(ctx); err != nil {
		return nil
	}

	snapshot := r.registry.Snapshot()
	if snapshot == nil {
		return r.routeBad(ctx, r.badRows.Generic([]string{"registry has no active snapshot"}))
	}

	started := time.Now()
	outcome := r.pipeline.Run(ctx, raw, snapshot.Enrichments, r.flags)
	return r.routeOutcome(ctx, outcome, started)
}

func (r *Runtime) routeOutcome(ctx context.Context, outcome *enrichment.Outcome, started time.Time) error {
	switch {
	case outcome.Good != nil:
		metrics.ObservePipelineDuration("good", time.Since(started))
		if err := r.writeGood(ctx, outcome.Good); err != nil {
			return err
		}
		if outcome.Pii != nil && r.piiSink != nil {
			if err := r.writePii(ctx, outcome.Pii); err != nil {
				return err
			}
		}
	case outcome.Bad != nil:
		metrics.ObservePipelineDuration("bad", time.Since(started))
		if err := r.routeBad(ctx, outcome.Bad); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runtime) writeGood(ctx context.Context, e *model.EnrichedEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		r.logger.ErrorwCtx(ctx, "failed to marshal enriched event", "error", err)
		return nil
	}
	return r.writeAttributed(ctx, r.goodSink, "good", data, eventAttributes(e))
}

func (r *Runtime) writePii(ctx context.Context, e *model.EnrichedEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		r.logger.ErrorwCtx(ctx, "failed to marshal pii twin", "error", err)
		return nil
	}
	return r.writeAttributed(ctx, r.piiSink, "pii", data, eventAttributes(e))
}

// routeBad returns a non-nil error only when the bad sink write
// itself fails after retries; a marshal failure is logged and dropped
// since there is nothing left to retry.
func (r *Runtime) routeBad(ctx context.Context, row *model.BadRow) error {
	data, err := row.MarshalBytes()
	if err != nil {
		r.logger.ErrorwCtx(ctx, "failed to marshal bad row", "error", err)
		return nil
	}

	r.sinkSem <- struct{}{}
	defer func() { <-r.sinkSem }()

	if err := r.badSink.Write(ctx, data); err != nil {
		fatalErr := pkgerrors.ErrServiceUnavailable.WithCause(err).WithDetail("sink", "bad").AsFatal()
		r.logger.ErrorwCtx(ctx, "bad sink write failed", "error", fatalErr)
		return fatalErr
	}
	metrics.IncEventsProcessed("bad")
	return nil
}

// writeAttributed returns the sink's error, already final: every
// AttributedSink driver (KafkaAttributedSink included) retries
// internally, so an error here means retries are exhausted. The
// returned error is marked fatal so failFatal's caller never mistakes
// it for something retry.Policy could still absorb.
func (r *Runtime) writeAttributed(ctx context.Context, sink sourcesink.AttributedSink, outcome string, data []byte, attrs map[string]string) error {
	r.sinkSem <- struct{}{}
	defer func() { <-r.sinkSem }()

	if err := sink.Write(ctx, data, attrs); err != nil {
		fatalErr := pkgerrors.ErrServiceUnavailable.WithCause(err).WithDetail("sink", outcome).AsFatal()
		r.logger.ErrorwCtx(ctx, "sink write failed", "outcome", outcome, "error", fatalErr)
		return fatalErr
	}
	metrics.IncEventsProcessed(outcome)
	return nil
}

func (r *Runtime) commit(ctx context.Context, rec model.Record) {
	if err := r.checkpointer.Checkpoint(ctx, rec); err != nil {
		r.logger.ErrorwCtx(ctx, "checkpoint failed", "partition", rec.PartitionID, "error", err)
	}
}

func eventAttributes(e *model.EnrichedEvent) map[string]string {
	return map[string]string{
		"event_id":  e.EventID,
		"app_id":    e.AppID,
		"collector": e.CollectorTstamp.Format(time.RFC3339),
	}
}
