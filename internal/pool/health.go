package pool

import (
	"fmt"
	"time"

	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/transport"
)

// monitorLoop probes liveness of every usable channel on a fixed tick.
func (p *Pool) monitorLoop() {
	defer p.wg.Done()

	ticker := p.clock.Ticker(p.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.probeAll()
		}
	}
}

type probeTarget struct {
	ch  *channel
	raw transport.RawChannel
}

// probeAll pings channels in {connected, active, idle}, honoring each
// category's heartbeat interval. The channel list is snapshotted under the
// mutex; the probes themselves run outside it.
func (p *Pool) probeAll() {
	now := p.clock.Now()

	p.mu.Lock()
	targets := make([]probeTarget, 0, len(p.channels))
	for _, ch := range p.channels {
		switch ch.status {
		case StatusConnected, StatusActive, StatusIdle:
		default:
			continue
		}
		policy := p.cfg.Policies[ch.category]
		if policy.HeartbeatInterval > 0 && now.Sub(ch.lastProbe) < policy.HeartbeatInterval {
			continue
		}
		ch.lastProbe = now
		targets = append(targets, probeTarget{ch: ch, raw: ch.raw})
	}
	p.mu.Unlock()

	for _, t := range targets {
		if t.raw == nil {
			p.fail(t.ch, nil, fmt.Errorf("%w: no transport", ErrTransport))
			continue
		}

		start := p.clock.Now()
		if err := t.raw.Ping(time.Now().Add(p.cfg.PingWriteTimeout)); err != nil {
			p.fail(t.ch, t.raw, fmt.Errorf("%w: liveness probe: %v", ErrTransport, err))
			continue
		}
		rtt := p.clock.Since(start)

		p.mu.Lock()
		if t.ch.raw == t.raw && rtt > 0 {
			t.ch.recordLatency(rtt)
		}
		p.mu.Unlock()
	}
}

// reapLoop evicts idle channels past their category's idle timeout.
func (p *Pool) reapLoop() {
	defer p.wg.Done()

	ticker := p.clock.Ticker(p.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

// reapIdle closes every idle channel whose inactivity exceeds its category's
// idle timeout, bounding the pool's steady-state footprint. Channels handed
// to waiters at release are active by then and never seen here.
func (p *Pool) reapIdle() {
	now := p.clock.Now()

	p.mu.Lock()
	var victims []*channel
	for _, ch := range p.channels {
		if ch.status != StatusIdle {
			continue
		}
		policy := p.cfg.Policies[ch.category]
		if now.Sub(ch.lastActivity) > policy.IdleTimeout {
			victims = append(victims, ch)
		}
	}
	for _, ch := range victims {
		p.evictLocked(ch)
	}
	p.mu.Unlock()

	for _, ch := range victims {
		if ch.raw != nil {
			ch.raw.Close()
		}
		p.notify(ch.category, ch.tenantID, Event{Kind: EventClosed, ChannelID: ch.id, At: now})
		p.logger.Info("idle channel reaped",
			"channel_id", ch.id,
			"category", ch.category,
			"idle", now.Sub(ch.lastActivity),
		)
	}
}
