package vtgateserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dreamware/vshard/internal/storage/sqliteadapter"
	"github.com/dreamware/vshard/internal/tablet"
)

func TestShardHealthMonitorTracksHealthySnapshot(t *testing.T) {
	adapter := sqliteadapter.New(sqliteadapter.Options{URL: "file::memory:?cache=shared"})
	tabletSrv := tablet.NewServer("-", adapter)
	if err := tabletSrv.Init(context.Background()); err != nil {
		t.Fatalf("init tablet: %v", err)
	}
	httpSrv := httptest.NewServer(tabletSrv.Handler())
	defer httpSrv.Close()
	defer tabletSrv.Close(context.Background())

	resolver := NewStaticResolver(map[string]string{"widgets/-": httpSrv.URL}, http.DefaultClient)
	monitor := NewShardHealthMonitor(resolver, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitor.checkAll(ctx)

	snapshot := monitor.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 shard in snapshot, got %+v", snapshot)
	}
	if snapshot[0].Shard != "widgets/-" || !snapshot[0].Healthy {
		t.Fatalf("expected widgets/- healthy, got %+v", snapshot[0])
	}
}

func TestShardHealthMonitorMarksUnreachableTabletUnhealthy(t *testing.T) {
	resolver := NewStaticResolver(map[string]string{"widgets/-": "http://127.0.0.1:1"}, &http.Client{Timeout: 200 * time.Millisecond})
	monitor := NewShardHealthMonitor(resolver, time.Hour)
	monitor.maxFailures = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitor.checkAll(ctx)

	snapshot := monitor.Snapshot()
	if len(snapshot) != 1 || snapshot[0].Healthy {
		t.Fatalf("expected widgets/- unhealthy, got %+v", snapshot)
	}
}
