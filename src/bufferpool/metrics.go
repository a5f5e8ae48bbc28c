package bufferpool

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/relstore/relstore/src/pkg/utils"
)

// poolMetrics counts cache traffic through the global meter provider.
// Unless the host process installs one, these are no-ops.
type poolMetrics struct {
	hits      metric.Int64Counter
	misses    metric.Int64Counter
	evictions metric.Int64Counter
}

func newPoolMetrics() *poolMetrics {
	meter := otel.Meter("github.com/relstore/relstore/src/bufferpool")

	return &poolMetrics{
		hits:      utils.Must(meter.Int64Counter("relstore.bufferpool.hits")),
		misses:    utils.Must(meter.Int64Counter("relstore.bufferpool.misses")),
		evictions: utils.Must(meter.Int64Counter("relstore.bufferpool.evictions")),
	}
}

func (m *poolMetrics) hit()      { m.hits.Add(context.Background(), 1) }
func (m *poolMetrics) miss()     { m.misses.Add(context.Background(), 1) }
func (m *poolMetrics) eviction() { m.evictions.Add(context.Background(), 1) }
