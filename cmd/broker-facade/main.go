// Command broker-facade wires the event bus, the tick order matcher (via
// an in-memory simulator adapter), a SEP overlay sub-account, and the
// data-manager persistence port into one runnable demo process.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"

	"github.com/ktrader-tech/broker-facade/internal/datamgr/memory"
	"github.com/ktrader-tech/broker-facade/internal/facade/simadapter"
	"github.com/ktrader-tech/broker-facade/internal/obs"
	"github.com/ktrader-tech/broker-facade/internal/ops"
	"github.com/ktrader-tech/broker-facade/internal/schema"
	"github.com/ktrader-tech/broker-facade/internal/sep"
)

// runtimeConfig holds the hot-reloadable ops.Loaded behind an atomic
// pointer so watchConfig can swap it without a lock on the read path.
type runtimeConfig struct {
	v atomic.Value
}

func newRuntimeConfig(loaded ops.Loaded) *runtimeConfig {
	var rc runtimeConfig
	rc.v.Store(loaded)
	return &rc
}

func (r *runtimeConfig) Load() ops.Loaded { return r.v.Load().(ops.Loaded) }
func (r *runtimeConfig) Update(loaded ops.Loaded) {
	r.v.Store(loaded)
	logs.Infof("broker-facade: config reloaded securities=%d", len(loaded.Securities))
}

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Config reload interval (0=disable)")
	account := flag.String("account", "DEMO", "Parent account id")
	subAccount := flag.String("sub-account", "alpha", "SEP overlay sub-account id")
	profilingAddr := flag.String("pyroscope-addr", "", "Pyroscope server address (empty disables profiling)")
	flag.Parse()

	loaded := ops.Loaded{Order: ops.OrderLimits{MaxOrderVolume: 1_000_000}}
	if *configPath != "" {
		l, err := ops.Load(*configPath)
		if err != nil {
			log.Fatalf("config load failed: %v", err)
		}
		loaded = l
	}
	runtime := newRuntimeConfig(loaded)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *configPath != "" && *configReload > 0 {
		go ops.Watch(ctx, *configPath, *configReload, runtime.Update)
	}

	if *profilingAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "broker-facade",
			ServerAddress:   *profilingAddr,
		})
		if err != nil {
			logs.Errorf("broker-facade: pyroscope start failed: %+v", err)
		} else {
			defer profiler.Stop()
		}
	}

	metrics := obs.NewMetrics()
	traceGen := obs.NewTraceGenerator(0)

	securities := runtime.Load().Securities
	if len(securities) == 0 {
		securities = []schema.Security{{Code: "DEMO", Exchange: "SIM", Name: "Demo Contract", Multiplier: decimal.NewFromInt(1), PriceTick: decimal.NewFromInt(1)}}
	}

	adapter := simadapter.NewSimAdapter(*account, *account, securities...)
	adapter.SetMetrics(metrics)
	if err := adapter.Connect(ctx, nil); err != nil {
		log.Fatalf("adapter connect failed: %v", err)
	}
	defer adapter.Close(ctx)

	store := memory.New()
	overlay, err := sep.NewOverlay(adapter, *subAccount, store, false)
	if err != nil {
		log.Fatalf("overlay construction failed: %v", err)
	}
	overlay.SetMetrics(metrics)
	if err := overlay.Connect(ctx, nil); err != nil {
		log.Fatalf("overlay connect failed: %v", err)
	}
	defer overlay.Close(ctx)

	logs.Infof("broker-facade: running account=%s sub-account=%s trace-seed=%d", *account, overlay.Account(), traceGen.Next())

	<-ctx.Done()
	logs.Info("broker-facade: shutting down")

	snapshot := metrics.Snapshot()
	logs.Infof("broker-facade: final metrics orders_sent=%d orders_failed=%d events=%d order_flow_avg=%s assets_refresh_avg=%s",
		snapshot.OrdersSent, snapshot.OrdersFailed, len(snapshot.EventCounts),
		snapshot.OrderFlowLatency.Avg, snapshot.AssetsRefreshLatency.Avg)
}
