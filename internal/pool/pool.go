package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/codec"
	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/transport"
)

// Pool multiplexes a bounded set of transport channels across categories.
// All methods are safe for concurrent use; a single mutex serializes every
// mutation of the channel index, channel state, and wait queues.
type Pool struct {
	cfg     Config
	factory transport.Factory
	codec   codec.Codec
	sink    Sink
	logger  *slog.Logger
	clock   clock.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	channels map[uuid.UUID]*channel
	waiters  *waitQueue
	// pending counts channels being dialed per category, so the category cap
	// holds across concurrent acquires while the dial happens off-lock.
	pending map[Category]int
	created int64
	closed  bool
}

// New creates a pool. The policy table is validated eagerly; unknown
// categories are rejected here, not at first use.
func New(cfg Config, factory transport.Factory, c codec.Codec, sink Sink, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("pool config: %w", err)
	}
	if factory == nil {
		return nil, errors.New("transport factory is required")
	}
	if c == nil {
		c = codec.JSON{}
	}

	return &Pool{
		cfg:      cfg,
		factory:  factory,
		codec:    c,
		sink:     sink,
		logger:   logger,
		clock:    clock.New(),
		channels: make(map[uuid.UUID]*channel),
		waiters:  newWaitQueue(),
		pending:  make(map[Category]int),
	}, nil
}

// Start launches the health monitor and idle reaper.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.ctx != nil {
		p.mu.Unlock()
		return errors.New("pool already started")
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.wg.Add(2)
	go p.monitorLoop()
	go p.reapLoop()

	p.logger.Info("channel pool started",
		"categories", len(p.cfg.Policies),
		"acquire_timeout", p.cfg.AcquireTimeout,
	)
	return nil
}

// Stop rejects pending waiters, drains background goroutines, and closes
// every live channel.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.waiters.drain(ErrPoolClosed)
	p.mu.Unlock()

	p.logger.Info("stopping channel pool")

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("pool shutdown timeout, forcing close")
	}

	p.mu.Lock()
	victims := make([]*channel, 0, len(p.channels))
	for _, ch := range p.channels {
		victims = append(victims, ch)
	}
	for _, ch := range victims {
		p.evictLocked(ch)
	}
	p.mu.Unlock()

	for _, ch := range victims {
		if ch.raw != nil {
			ch.raw.Close()
		}
	}

	p.logger.Info("channel pool stopped", "closed_channels", len(victims))
	return nil
}

// Acquire returns a channel for the given category and caller context.
// Preference order: a matching idle channel (oldest activity first), a new
// channel while the category is under its limit, otherwise the caller queues
// until a matching channel is released or the wait deadline elapses
// (ErrTimeout).
func (p *Pool) Acquire(ctx context.Context, category Category, actx AcquireContext) (ChannelInfo, error) {
	policy, ok := p.cfg.Policies[category]
	if !ok {
		return ChannelInfo{}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	key := waitKey{category: category, tenantID: actx.TenantID, role: actx.RequesterRole}

	p.mu.Lock()
	if p.closed || p.ctx == nil {
		p.mu.Unlock()
		return ChannelInfo{}, ErrPoolClosed
	}

	// (a) reuse the oldest matching unassigned channel.
	if ch := p.matchIdleLocked(key); ch != nil {
		ch.status = StatusActive
		ch.lastActivity = p.clock.Now()
		info := ch.snapshot()
		p.mu.Unlock()
		p.logger.Debug("channel reused",
			"channel_id", info.ID,
			"category", category,
			"tenant_id", actx.TenantID,
		)
		return info, nil
	}

	// (b) create while the category is under its limit.
	if p.categoryCountLocked(category)+p.pending[category] < policy.MaxChannels {
		p.pending[category]++
		p.mu.Unlock()
		return p.createChannel(ctx, category, actx, policy)
	}

	// (c) queue the caller.
	timeout := p.cfg.AcquireTimeout
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); until < timeout {
			timeout = until
		}
	}

	now := p.clock.Now()
	w := &waiter{
		key:        key,
		enqueuedAt: now,
		deadline:   now.Add(timeout),
		resume:     make(chan waitResult, 1),
	}
	p.waiters.enqueue(w)
	p.mu.Unlock()

	p.logger.Debug("caller queued for channel",
		"category", category,
		"tenant_id", actx.TenantID,
		"role", actx.RequesterRole,
		"timeout", timeout,
	)

	timer := p.clock.Timer(timeout)
	defer timer.Stop()

	var cause error
	select {
	case res := <-w.resume:
		return res.info, res.err
	case <-timer.C:
		cause = ErrTimeout
	case <-ctx.Done():
		cause = ctx.Err()
	case <-p.ctx.Done():
		cause = ErrPoolClosed
	}

	p.mu.Lock()
	removed := p.waiters.remove(w)
	p.mu.Unlock()

	if !removed {
		// A hand-off raced the deadline; the result is already buffered.
		res := <-w.resume
		return res.info, res.err
	}

	if errors.Is(cause, ErrTimeout) {
		p.logger.Debug("acquire timed out",
			"category", category,
			"tenant_id", actx.TenantID,
			"waited", timeout,
		)
	}
	return ChannelInfo{}, cause
}

// Release returns a channel to the pool. If a caller is queued on the same
// (category, tenant, role) key, the oldest one resumes with this channel
// before it ever goes idle. Transport health is re-checked at hand-off; a
// dead channel routes to the error path and the waiter stays queued.
func (p *Pool) Release(id uuid.UUID) {
	p.mu.Lock()
	ch, ok := p.channels[id]
	if !ok {
		p.mu.Unlock()
		p.logger.Warn("release of unknown channel", "channel_id", id)
		return
	}

	ch.trimSession(p.cfg.SessionStateLimit)

	if ch.raw == nil || !ch.raw.IsOpen() {
		p.mu.Unlock()
		p.fail(ch, ch.raw, fmt.Errorf("%w: stale transport at release", ErrTransport))
		return
	}

	if w := p.waiters.dequeue(ch.key()); w != nil {
		ch.status = StatusActive
		ch.lastActivity = p.clock.Now()
		w.resume <- waitResult{info: ch.snapshot()}
		p.mu.Unlock()
		p.logger.Debug("released channel handed to queued caller",
			"channel_id", id,
			"category", ch.category,
		)
		return
	}

	ch.status = StatusIdle
	ch.lastActivity = p.clock.Now()
	p.mu.Unlock()

	p.logger.Debug("channel released", "channel_id", id, "category", ch.category)
}

// Close terminates a channel and removes it from the pool. Idempotent; safe
// to call during an in-progress reconnection.
func (p *Pool) Close(id uuid.UUID) {
	p.mu.Lock()
	ch, ok := p.channels[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	p.evictLocked(ch)
	raw := ch.raw
	cat, tenant := ch.category, ch.tenantID
	p.mu.Unlock()

	if raw != nil {
		raw.Close()
	}

	p.notify(cat, tenant, Event{Kind: EventClosed, ChannelID: id, At: p.clock.Now()})
	p.logger.Info("channel closed", "channel_id", id, "category", cat, "cause", "close")
}

// Send encodes and writes one message on a channel. The channel must be
// connected or active; transport failures trigger reconnection and surface
// as ErrTransport.
func (p *Pool) Send(id uuid.UUID, msg codec.Message) error {
	p.mu.Lock()
	ch, ok := p.channels[id]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownChannel, id)
	}
	if ch.status != StatusConnected && ch.status != StatusActive {
		status := ch.status
		p.mu.Unlock()
		return fmt.Errorf("%w: status %s", ErrNotReady, status)
	}
	raw := ch.raw
	p.mu.Unlock()

	data, err := p.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	if err := raw.Send(data); err != nil {
		p.fail(ch, raw, err)
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	p.mu.Lock()
	if ch.raw == raw && !ch.cancelled {
		ch.messageCount++
		ch.metrics.BytesSent += int64(len(data))
		ch.metrics.MessagesHandled++
		ch.lastActivity = p.clock.Now()
		ch.recordFrame(data, p.cfg.SessionStateLimit)
	}
	p.mu.Unlock()

	return nil
}

// Info returns a snapshot of one channel.
func (p *Pool) Info(id uuid.UUID) (ChannelInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[id]
	if !ok {
		return ChannelInfo{}, false
	}
	return ch.snapshot(), true
}

// Snapshot aggregates pool metrics. Pure read; safe to call concurrently
// with mutation.
func (p *Pool) Snapshot() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := PoolMetrics{
		TotalChannels:   len(p.channels),
		WaitingCallers:  p.waiters.depth(),
		CreatedChannels: p.created,
	}

	var latencySum time.Duration
	var samples int
	for _, ch := range p.channels {
		switch ch.status {
		case StatusActive:
			m.ActiveChannels++
		case StatusIdle:
			m.IdleChannels++
		case StatusError:
			m.ErrorChannels++
		}
		m.TotalMessages += ch.metrics.MessagesHandled
		if ch.metrics.AverageLatency > 0 {
			latencySum += ch.metrics.AverageLatency
			samples++
		}
		if ch.messageCount > 1 {
			m.ReusedChannels++
		}
	}

	if samples > 0 {
		m.MeanLatency = latencySum / time.Duration(samples)
	}
	if m.TotalChannels > 0 {
		m.Utilization = float64(m.ActiveChannels) / float64(m.TotalChannels)
	}
	return m
}

// matchIdleLocked returns the unassigned channel matching the key with the
// oldest activity, or nil. Caller holds p.mu.
func (p *Pool) matchIdleLocked(key waitKey) *channel {
	var best *channel
	for _, ch := range p.channels {
		if ch.category != key.category || ch.tenantID != key.tenantID || ch.role != key.role {
			continue
		}
		// Connected means reconnected and not yet reassigned.
		if ch.status != StatusIdle && ch.status != StatusConnected {
			continue
		}
		if best == nil || ch.lastActivity.Before(best.lastActivity) {
			best = ch
		}
	}
	return best
}

// categoryCountLocked counts live channels in a category. Caller holds p.mu.
func (p *Pool) categoryCountLocked(category Category) int {
	n := 0
	for _, ch := range p.channels {
		if ch.category == category {
			n++
		}
	}
	return n
}

// createChannel dials a new transport outside the pool mutex and registers
// the channel already assigned to its acquirer. The caller has reserved a
// pending slot for the category.
func (p *Pool) createChannel(ctx context.Context, category Category, actx AcquireContext, policy CategoryPolicy) (ChannelInfo, error) {
	id := uuid.New()

	priority := policy.Priority
	if actx.Priority != "" {
		priority = actx.Priority
	}

	p.logger.Debug("opening channel", "channel_id", id, "category", category)

	// The channel only enters the index once the transport is up, so the
	// connecting and connected states are private to this goroutine.
	ch := &channel{
		id:       id,
		category: category,
		tenantID: actx.TenantID,
		role:     actx.RequesterRole,
		priority: priority,
		status:   StatusConnecting,
	}

	raw, err := p.factory.Open(ctx)
	if err != nil {
		p.mu.Lock()
		p.pending[category]--
		p.mu.Unlock()
		p.logger.Warn("channel open failed", "category", category, "error", err)
		return ChannelInfo{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	now := p.clock.Now()
	ch.raw = raw
	ch.status = StatusConnected
	ch.lastActivity = now

	p.mu.Lock()
	p.pending[category]--
	if p.closed {
		p.mu.Unlock()
		raw.Close()
		return ChannelInfo{}, ErrPoolClosed
	}
	ch.status = StatusActive
	p.channels[id] = ch
	p.created++
	info := ch.snapshot()
	// Registered under the same lock that Stop uses to set closed, so the
	// Add is ordered before Stop's Wait.
	p.wg.Add(1)
	p.mu.Unlock()

	go p.pump(ch, raw)

	p.notify(category, actx.TenantID, Event{Kind: EventEstablished, ChannelID: id, At: now})
	p.logger.Info("channel established",
		"channel_id", id,
		"category", category,
		"tenant_id", actx.TenantID,
		"role", actx.RequesterRole,
	)
	return info, nil
}

// pump routes one transport's inbound frames and failures into the pool.
func (p *Pool) pump(ch *channel, raw transport.RawChannel) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case err, ok := <-raw.Errors():
			if !ok {
				return
			}
			p.fail(ch, raw, err)
			return
		case frame, ok := <-raw.Frames():
			if !ok {
				// Frame channel closed; pick up a buffered error if one
				// arrived with it, otherwise treat as a clean close.
				err := error(transport.ErrClosed)
				select {
				case e, ok := <-raw.Errors():
					if ok {
						err = e
					}
				default:
				}
				p.fail(ch, raw, err)
				return
			}
			p.handleFrame(ch, raw, frame)
		}
	}
}

// handleFrame decodes one inbound frame, updates channel accounting, and
// notifies the category's consumer. Malformed frames are logged and dropped.
func (p *Pool) handleFrame(ch *channel, raw transport.RawChannel, frame transport.Frame) {
	msg, err := p.codec.Decode(frame.Data)
	if err != nil {
		p.logger.Warn("dropping undecodable frame",
			"channel_id", ch.id,
			"category", ch.category,
			"error", err,
		)
		return
	}

	p.mu.Lock()
	if ch.raw != raw || ch.cancelled {
		p.mu.Unlock()
		return
	}
	ch.messageCount++
	ch.metrics.BytesReceived += int64(len(frame.Data))
	ch.metrics.MessagesHandled++
	ch.lastActivity = p.clock.Now()
	ch.recordFrame(frame.Data, p.cfg.SessionStateLimit)
	cat, tenant := ch.category, ch.tenantID
	p.mu.Unlock()

	p.notify(cat, tenant, Event{Kind: EventMessage, ChannelID: ch.id, At: frame.ReceivedAt, Message: &msg})
}

// fail routes a transport failure into the error transition and the
// reconnection policy. raw identifies the failed transport so stale pumps
// are ignored; nil skips that check (dial failures).
func (p *Pool) fail(ch *channel, raw transport.RawChannel, cause error) {
	clean := errors.Is(cause, transport.ErrClosed)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if _, live := p.channels[ch.id]; !live || ch.cancelled {
		p.mu.Unlock()
		return
	}
	if raw != nil && ch.raw != raw {
		p.mu.Unlock()
		return
	}

	ch.metrics.Errors++
	ch.status = StatusError

	if ch.reconnecting {
		p.mu.Unlock()
		return
	}

	policy := p.cfg.Policies[ch.category]
	id, cat, tenant := ch.id, ch.category, ch.tenantID

	// Give up on a clean close unless the channel is critical-priority;
	// critical channels retry on any unexpected close. The attempt cap
	// always wins.
	capExceeded := ch.reconnectAttempts >= policy.MaxReconnectAttempts
	if capExceeded || (clean && ch.priority != PriorityCritical) {
		p.evictLocked(ch)
		oldRaw := ch.raw
		p.mu.Unlock()

		if oldRaw != nil {
			oldRaw.Close()
		}

		if capExceeded {
			p.notify(cat, tenant, Event{
				Kind:      EventPermanentFailure,
				ChannelID: id,
				At:        p.clock.Now(),
				Err:       ErrPermanentFailure,
			})
			p.logger.Error("channel permanently failed",
				"channel_id", id,
				"category", cat,
				"attempts", policy.MaxReconnectAttempts,
				"cause", cause,
			)
		} else {
			p.notify(cat, tenant, Event{Kind: EventClosed, ChannelID: id, At: p.clock.Now()})
			p.logger.Info("channel closed by peer",
				"channel_id", id,
				"category", cat,
				"cause", cause,
			)
		}
		return
	}

	ch.reconnectAttempts++
	ch.reconnecting = true
	attempt := ch.reconnectAttempts
	p.wg.Add(1)
	p.mu.Unlock()

	p.notify(cat, tenant, Event{Kind: EventError, ChannelID: id, At: p.clock.Now(), Err: cause})
	p.logger.Warn("channel transport failure",
		"channel_id", id,
		"category", cat,
		"attempt", attempt,
		"error", cause,
	)

	go p.reconnect(ch, attempt)
}

// reconnect waits out the backoff delay and re-establishes the transport.
// Attempts for one channel are strictly sequential; a Close during the
// attempt discards the dialed transport.
func (p *Pool) reconnect(ch *channel, attempt int) {
	defer p.wg.Done()

	delay := p.cfg.Backoff.Delay(attempt)
	timer := p.clock.Timer(delay)
	defer timer.Stop()

	select {
	case <-p.ctx.Done():
		p.mu.Lock()
		ch.reconnecting = false
		p.mu.Unlock()
		return
	case <-timer.C:
	}

	p.mu.Lock()
	if ch.cancelled {
		ch.reconnecting = false
		p.mu.Unlock()
		return
	}
	ch.status = StatusConnecting
	id, cat, tenant := ch.id, ch.category, ch.tenantID
	p.mu.Unlock()

	p.logger.Info("reconnecting channel",
		"channel_id", id,
		"category", cat,
		"attempt", attempt,
		"delay", delay,
	)

	raw, err := p.factory.Open(p.ctx)

	p.mu.Lock()
	ch.reconnecting = false
	if ch.cancelled {
		p.mu.Unlock()
		if raw != nil {
			raw.Close()
		}
		return
	}
	if err != nil {
		p.mu.Unlock()
		p.fail(ch, nil, fmt.Errorf("%w: %v", ErrTransport, err))
		return
	}

	old := ch.raw
	ch.raw = raw
	ch.status = StatusConnected
	ch.lastActivity = p.clock.Now()
	p.wg.Add(1)
	p.mu.Unlock()

	if old != nil {
		old.Close()
	}

	go p.pump(ch, raw)

	p.notify(cat, tenant, Event{Kind: EventReconnected, ChannelID: id, At: p.clock.Now()})
	p.logger.Info("channel reconnected", "channel_id", id, "category", cat, "attempt", attempt)
}

// evictLocked removes a channel from the live index. Caller holds p.mu and
// closes the transport after releasing the lock.
func (p *Pool) evictLocked(ch *channel) {
	delete(p.channels, ch.id)
	ch.cancelled = true
	ch.status = StatusDisconnected
}

func (p *Pool) notify(category Category, tenantID string, ev Event) {
	if p.sink != nil {
		p.sink.Notify(category, tenantID, ev)
	}
}
