package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	SetBuildInfo("1.0.0", "abc", "2024-01-01")
	RecordRPC("tools/call", true)
	RecordRPC("tools/call", false)
	ObserveRPCDuration("tools/call", 100*time.Millisecond)
	SetProcessUp(true)
	IncProcessRestart()
	SetActiveSessions(3)
	RecordStreamDelivery("sse")

	if v := testutil.ToFloat64(rpcRequests.WithLabelValues("tools/call", "success")); v != 1 {
		t.Fatalf("rpc success: %v", v)
	}
	if v := testutil.ToFloat64(rpcRequests.WithLabelValues("tools/call", "error")); v != 1 {
		t.Fatalf("rpc error: %v", v)
	}
	if v := testutil.ToFloat64(processUp); v != 1 {
		t.Fatalf("process up: %v", v)
	}
	if v := testutil.ToFloat64(processRestarts); v != 1 {
		t.Fatalf("restarts: %v", v)
	}
	if v := testutil.ToFloat64(sessionsActive); v != 3 {
		t.Fatalf("sessions: %v", v)
	}
	if v := testutil.ToFloat64(streamDeliveries.WithLabelValues("sse")); v != 1 {
		t.Fatalf("stream deliveries: %v", v)
	}
	if v := testutil.ToFloat64(buildInfo.WithLabelValues("2024-01-01", "abc", "1.0.0")); v != 1 {
		t.Fatalf("build info: %v", v)
	}
	if n := testutil.CollectAndCount(rpcDuration); n != 1 {
		t.Fatalf("duration series: %d", n)
	}
}
