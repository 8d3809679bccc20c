package metrics

import (
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Keys
var (
	Command, _ = tag.NewKey("command")
)

// Measures
var (
	RPCLatency = stats.Float64("object/rpc_latency", "Time spent on a single RPC to the daemon", stats.UnitMilliseconds)
	RPCErrors  = stats.Int64("object/rpc_errors", "Number of RPCs that failed", stats.UnitDimensionless)

	CacheHits   = stats.Int64("object/blockcache/hits", "Number of block cache hits", stats.UnitDimensionless)
	CacheMisses = stats.Int64("object/blockcache/misses", "Number of block cache misses", stats.UnitDimensionless)
	CacheWrites = stats.Int64("object/blockcache/writes", "Number of blocks written to the cache", stats.UnitDimensionless)
)

// Views
var (
	rpcLatencyView = &view.View{
		Measure:     RPCLatency,
		Aggregation: view.Distribution(0, 1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10_000, 30_000),
		TagKeys:     []tag.Key{Command},
	}
	rpcErrorsView = &view.View{
		Measure:     RPCErrors,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Command},
	}
	cacheHitsView = &view.View{
		Measure:     CacheHits,
		Aggregation: view.Count(),
	}
	cacheMissesView = &view.View{
		Measure:     CacheMisses,
		Aggregation: view.Count(),
	}
	cacheWritesView = &view.View{
		Measure:     CacheWrites,
		Aggregation: view.Count(),
	}
)

// DefaultViews with all views in it.
var DefaultViews = []*view.View{
	rpcLatencyView,
	rpcErrorsView,
	cacheHitsView,
	cacheMissesView,
	cacheWritesView,
}

func MsecSince(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}
