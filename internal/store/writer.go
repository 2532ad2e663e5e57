package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/pool"
)

// BatchSender is the slice of pgxpool.Pool the writer uses.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// EventWriter receives channel events and writes them to the channel_events
// table in batches. It implements pool.Sink.
type EventWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Database
	db BatchSender

	// Inbound events. Notify never waits on this channel; overflow is
	// counted in Dropped.
	input chan eventRow

	// Batching
	batch       []eventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker
	closed      bool

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewEventWriter creates a new EventWriter.
func NewEventWriter(cfg WriterConfig, db BatchSender, logger *slog.Logger) *EventWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultWriterConfig().BatchSize
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultWriterConfig().BufferSize
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = DefaultWriterConfig().FlushInterval
	}
	return &EventWriter{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan eventRow, cfg.BufferSize),
		batch:  make([]eventRow, 0, cfg.BatchSize),
	}
}

// Start begins the consume and periodic flush loops.
func (w *EventWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("event writer started",
		"batch_size", w.cfg.BatchSize,
		"buffer_size", w.cfg.BufferSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains buffered events and shuts the writer down. Events arriving
// after Stop are dropped.
func (w *EventWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping event writer")

	w.batchMu.Lock()
	w.closed = true
	w.batchMu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("event writer stopped")
	case <-ctx.Done():
		w.logger.Warn("event writer stop timed out")
	}

	// Move anything still buffered into the batch, then do the final flush
	// with the caller's context; w.ctx is already cancelled.
	w.drainInput()
	w.flushWith(ctx)

	return nil
}

// Notify implements pool.Sink. It hands the event to the consume goroutine;
// the database is never touched on the caller's goroutine. Events that do
// not fit in the buffer are dropped.
func (w *EventWriter) Notify(category pool.Category, tenantID string, ev pool.Event) {
	row := transform(category, tenantID, ev)

	w.batchMu.Lock()
	if w.closed {
		w.metrics.Dropped++
		w.batchMu.Unlock()
		return
	}
	w.batchMu.Unlock()

	select {
	case w.input <- row:
	default:
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
	}
}

// Stats returns current metrics.
func (w *EventWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads buffered events and accumulates batches.
func (w *EventWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case row := <-w.input:
			w.batchMu.Lock()
			w.batch = append(w.batch, row)
			shouldFlush := len(w.batch) >= w.cfg.BatchSize
			w.batchMu.Unlock()
			if shouldFlush {
				w.flush()
			}
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *EventWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// drainInput moves events still sitting in the buffer into the batch.
func (w *EventWriter) drainInput() {
	for {
		select {
		case row := <-w.input:
			w.batchMu.Lock()
			w.batch = append(w.batch, row)
			w.batchMu.Unlock()
		default:
			return
		}
	}
}

// transform converts a pool event to an eventRow.
func transform(category pool.Category, tenantID string, ev pool.Event) eventRow {
	row := eventRow{
		ChannelID:  ev.ChannelID.String(),
		Category:   string(category),
		TenantID:   tenantID,
		Kind:       string(ev.Kind),
		OccurredAt: ev.At.UnixMicro(),
	}
	if ev.Message != nil {
		row.MessageType = ev.Message.Type
		row.Payload = ev.Message.Payload
	}
	if ev.Err != nil {
		row.Detail = ev.Err.Error()
	}
	return row
}

func (w *EventWriter) flush() {
	w.flushWith(w.ctx)
}

// flushWith writes the current batch to the database.
func (w *EventWriter) flushWith(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchInsert(ctx, batch); err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed channel events",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch.
func (w *EventWriter) batchInsert(ctx context.Context, rows []eventRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO channel_events (channel_id, category, tenant_id, kind, occurred_at, message_type, payload, detail)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, r.ChannelID, r.Category, r.TenantID, r.Kind, r.OccurredAt, nullable(r.MessageType), r.Payload, nullable(r.Detail))
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}

// nullable maps empty strings to NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
