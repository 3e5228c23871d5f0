package vtgateserver

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/dreamware/vshard/internal/rpcpb"
)

// ShardHealth tracks the health status of one tablet: shards are marked
// unhealthy after repeated failures, and recovered after a successful
// check. Adapted from internal/coordinator/health_monitor.go's
// NodeHealth — generalized from a node id to a (keyspace, shard) key,
// and from a raw GET /health call to TabletClient.Health's rpcpb round
// trip.
type ShardHealth struct {
	Key              string
	Healthy          bool
	LastCheck        time.Time
	LastHealthy      time.Time
	ConsecutiveFails int
	Detail           string
}

// ShardHealthMonitor periodically polls every tablet a StaticResolver
// knows about and keeps a cached health snapshot, so a STATUS/HEALTH
// request doesn't have to wait on a live fan-out to every shard.
type ShardHealthMonitor struct {
	resolver    *StaticResolver
	interval    time.Duration
	maxFailures int

	mu     sync.RWMutex
	health map[string]*ShardHealth

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewShardHealthMonitor builds a monitor over resolver's known tablets,
// polling at interval and marking a shard unhealthy after 3 consecutive
// failures by default.
func NewShardHealthMonitor(resolver *StaticResolver, interval time.Duration) *ShardHealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &ShardHealthMonitor{
		resolver:    resolver,
		interval:    interval,
		maxFailures: 3,
		health:      make(map[string]*ShardHealth),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start runs the polling loop until ctx or the monitor's own Stop is
// triggered. Meant to be run in a goroutine.
func (m *ShardHealthMonitor) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.checkAll(ctx)
	for {
		select {
		case <-ticker.C:
			m.checkAll(ctx)
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		}
	}
}

// Stop cancels the polling loop and waits for it to exit.
func (m *ShardHealthMonitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *ShardHealthMonitor) checkAll(ctx context.Context) {
	for key, client := range m.resolver.All() {
		m.checkOne(ctx, key, client)
	}
}

func (m *ShardHealthMonitor) checkOne(ctx context.Context, key string, client *TabletClient) {
	m.mu.Lock()
	h, ok := m.health[key]
	if !ok {
		h = &ShardHealth{Key: key, LastHealthy: time.Now()}
		m.health[key] = h
	}
	m.mu.Unlock()

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	wire, err := client.Health(checkCtx)

	m.mu.Lock()
	defer m.mu.Unlock()
	h.LastCheck = time.Now()

	if err != nil || !wire.Healthy {
		h.ConsecutiveFails++
		detail := wire.Detail
		if err != nil {
			detail = err.Error()
		}
		h.Detail = detail
		if h.ConsecutiveFails >= m.maxFailures && h.Healthy {
			glog.Warningf("vtgateserver: shard %s marked unhealthy after %d consecutive failures: %s", key, h.ConsecutiveFails, detail)
		}
		if h.ConsecutiveFails >= m.maxFailures {
			h.Healthy = false
		}
		return
	}

	if !h.Healthy && h.ConsecutiveFails >= m.maxFailures {
		glog.Infof("vtgateserver: shard %s recovered", key)
	}
	h.Healthy = true
	h.ConsecutiveFails = 0
	h.Detail = ""
	h.LastHealthy = time.Now()
}

// Snapshot returns the cached ShardHealth as a ClusterStatus payload.
func (m *ShardHealthMonitor) Snapshot() []rpcpb.ShardHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]rpcpb.ShardHealth, 0, len(m.health))
	for key, h := range m.health {
		out = append(out, rpcpb.ShardHealth{Shard: key, Healthy: h.Healthy, Detail: h.Detail})
	}
	return out
}
