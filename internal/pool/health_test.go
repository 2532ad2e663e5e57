package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/codec"
	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/transport"
)

// newMockClockPool builds a started pool driven by a mock clock.
func newMockClockPool(t *testing.T, cfg Config, factory transport.Factory, sink Sink) (*Pool, *clock.Mock) {
	t.Helper()
	p, err := New(cfg, factory, codec.JSON{}, sink, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	mock := clock.NewMock()
	p.clock = mock
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		p.Stop(ctx)
	})
	// Let the monitor and reaper register their tickers before any advance.
	time.Sleep(20 * time.Millisecond)
	return p, mock
}

func TestReaper_ClosesStaleIdleOnly(t *testing.T) {
	factory := &fakeFactory{}
	sink := &recordingSink{}

	cfg := testConfig()
	cfg.HealthInterval = time.Minute
	cfg.ReapInterval = 30 * time.Second
	policies := testPolicies()
	chat := policies[CategoryChat]
	chat.IdleTimeout = 2 * time.Minute
	policies[CategoryChat] = chat
	cfg.Policies = policies

	p, mock := newMockClockPool(t, cfg, factory, sink)

	actx := AcquireContext{TenantID: "t", RequesterRole: "r"}
	stale, err := p.Acquire(context.Background(), CategoryChat, actx)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	p.Release(stale.ID)

	// 90s idle is within the 2m timeout: the reaper must leave it alone.
	mock.Add(90 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if _, ok := p.Info(stale.ID); !ok {
		t.Fatal("reaper closed a channel within its idle timeout")
	}

	// A second channel released now stays fresh while the first goes stale.
	fresh, err := p.Acquire(context.Background(), CategoryChat, AcquireContext{TenantID: "t2", RequesterRole: "r"})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	p.Release(fresh.ID)

	// Past the timeout for the first channel only.
	mock.Add(60 * time.Second)

	waitForCondition(t, time.Second, "stale channel reaped", func() bool {
		_, ok := p.Info(stale.ID)
		return !ok
	})
	if _, ok := p.Info(fresh.ID); !ok {
		t.Error("reaper closed a fresh idle channel")
	}
	if sink.count(EventClosed) == 0 {
		t.Error("reaped channel produced no closed event")
	}
	if total := p.Snapshot().TotalChannels; total != 1 {
		t.Errorf("TotalChannels = %d after reap, want 1", total)
	}
}

func TestReaper_IgnoresActiveChannels(t *testing.T) {
	factory := &fakeFactory{}

	cfg := testConfig()
	cfg.ReapInterval = 30 * time.Second
	cfg.HealthInterval = time.Hour

	p, mock := newMockClockPool(t, cfg, factory, nil)

	info, err := p.Acquire(context.Background(), CategoryChat, AcquireContext{TenantID: "t", RequesterRole: "r"})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// Held channels are never reaped no matter how long they sit.
	mock.Add(time.Hour)
	time.Sleep(20 * time.Millisecond)

	if _, ok := p.Info(info.ID); !ok {
		t.Error("reaper closed an active channel")
	}
}

func TestMonitor_ProbeFailureEvictsWhenNoRetriesAllowed(t *testing.T) {
	factory := &fakeFactory{}
	sink := &recordingSink{}

	cfg := testConfig()
	cfg.HealthInterval = 10 * time.Second
	cfg.ReapInterval = time.Hour
	policies := testPolicies()
	chat := policies[CategoryChat]
	chat.MaxReconnectAttempts = 0
	policies[CategoryChat] = chat
	cfg.Policies = policies

	p, mock := newMockClockPool(t, cfg, factory, sink)

	info, err := p.Acquire(context.Background(), CategoryChat, AcquireContext{TenantID: "t", RequesterRole: "r"})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	factory.raw(0).setPingErr(errors.New("no pong"))
	mock.Add(10 * time.Second)

	sink.waitFor(t, EventPermanentFailure, time.Second)
	waitForCondition(t, time.Second, "probed-out channel evicted", func() bool {
		_, ok := p.Info(info.ID)
		return !ok
	})
}

func TestMonitor_ProbeFailureRoutesToReconnect(t *testing.T) {
	factory := &fakeFactory{}
	sink := &recordingSink{}

	cfg := testConfig()
	cfg.HealthInterval = 10 * time.Second
	cfg.ReapInterval = time.Hour

	p, mock := newMockClockPool(t, cfg, factory, sink)

	if _, err := p.Acquire(context.Background(), CategoryChat, AcquireContext{TenantID: "t", RequesterRole: "r"}); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	factory.raw(0).setPingErr(errors.New("no pong"))
	mock.Add(10 * time.Second)

	sink.waitFor(t, EventError, time.Second)

	// Backoff is on the mock clock too.
	time.Sleep(20 * time.Millisecond)
	mock.Add(time.Millisecond)

	sink.waitFor(t, EventReconnected, time.Second)
}

func TestMonitor_RecordsProbeLatency(t *testing.T) {
	factory := &fakeFactory{}

	// Real clock: probe round-trips need a nonzero duration.
	cfg := testConfig()
	cfg.HealthInterval = 10 * time.Millisecond
	cfg.ReapInterval = time.Hour

	p := newTestPool(t, cfg, factory, nil)

	if _, err := p.Acquire(context.Background(), CategoryChat, AcquireContext{TenantID: "t", RequesterRole: "r"}); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	waitForCondition(t, time.Second, "latency sample recorded", func() bool {
		return p.Snapshot().MeanLatency > 0
	})
}
