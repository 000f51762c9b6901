package mirror

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/studiodesk/pkg/async"
	"github.com/platinummonkey/studiodesk/pkg/audit"
	"github.com/platinummonkey/studiodesk/pkg/auth"
	"github.com/platinummonkey/studiodesk/pkg/observability"
)

// DispatcherConfig sizes the background mirror workers
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds one whole mirror attempt
	Timeout time.Duration
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Dispatcher implements audit.Syncer by handing records to a worker pool.
// Sync never blocks: when the queue is full the record is dropped.
type Dispatcher struct {
	sink    Sink
	pool    *async.WorkerPool
	logger  *observability.Logger
	metrics *observability.Metrics
}

var _ audit.Syncer = (*Dispatcher)(nil)

// NewDispatcher starts workers for sink. A nil sink yields a dispatcher
// that skips every record.
func NewDispatcher(ctx context.Context, sink Sink, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}

	d := &Dispatcher{
		sink:    sink,
		logger:  cfg.Logger.WithField("component", "sheet_mirror"),
		metrics: cfg.Metrics,
	}
	if sink != nil {
		d.pool = async.NewWorkerPool(ctx, async.PoolConfig{
			Workers:   cfg.Workers,
			QueueSize: cfg.QueueSize,
			TaskName:  "sheet mirror",
			Timeout:   cfg.Timeout,
			Logger:    cfg.Logger,
		})
	}
	return d
}

// Sync implements audit.Syncer
func (d *Dispatcher) Sync(record audit.Record, role auth.Role) {
	if d.sink == nil {
		d.count(observability.MirrorOutcomeSkipped)
		return
	}

	err := d.pool.TrySubmit(func(ctx context.Context) error {
		d.mirror(ctx, record, role)
		return nil
	})
	if err != nil {
		d.count(observability.MirrorOutcomeDropped)
		d.logger.WithError(err).WithField("record_id", record.ID).Warn("audit record not mirrored")
	}
}

func (d *Dispatcher) mirror(ctx context.Context, record audit.Record, role auth.Role) {
	start := time.Now()
	err := d.sink.Mirror(ctx, record, role)
	if d.metrics != nil {
		d.metrics.MirrorDuration.Observe(time.Since(start).Seconds())
	}

	outcome := outcomeFor(err)
	d.count(outcome)
	if err != nil {
		d.logger.WithError(err).
			WithField("record_id", record.ID).
			WithField("outcome", outcome).
			Warn("audit record mirror failed")
	}
}

// Close waits for queued records to be mirrored or ctx to expire
func (d *Dispatcher) Close(ctx context.Context) error {
	if d.pool == nil {
		return nil
	}
	return d.pool.Shutdown(ctx)
}

func (d *Dispatcher) count(outcome string) {
	if d.metrics != nil {
		d.metrics.MirrorTotal.WithLabelValues(outcome).Inc()
	}
}

func outcomeFor(err error) string {
	if err == nil {
		return observability.MirrorOutcomeSuccess
	}
	var merr *Error
	if errors.As(err, &merr) {
		switch merr.Stage {
		case StageSign:
			return observability.MirrorOutcomeSignErr
		case StageToken:
			return observability.MirrorOutcomeTokenErr
		}
	}
	return observability.MirrorOutcomeSinkErr
}
