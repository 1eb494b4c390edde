package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/taleweave/fable/pkg/types"
)

type fakeStats struct {
	stats map[string]int64
	err   error
}

func (f *fakeStats) Statistics(ctx context.Context) (map[string]int64, error) {
	return f.stats, f.err
}

type fakeWorkers struct {
	workers []types.WorkerInfo
	err     error
}

func (f *fakeWorkers) List(ctx context.Context) ([]types.WorkerInfo, error) {
	return f.workers, f.err
}

func TestCollectorSamplesGauges(t *testing.T) {
	stats := &fakeStats{stats: map[string]int64{
		"pending":    3,
		"processing": 2,
		"completed":  7,
		"total":      12,
	}}
	workers := &fakeWorkers{workers: []types.WorkerInfo{
		{WorkerID: "worker-1", Status: types.WorkerStateActive},
		{WorkerID: "worker-2", Status: types.WorkerStateActive},
	}}

	c := NewCollector(stats, workers)
	c.collect()

	assert.Equal(t, 3.0, testutil.ToFloat64(TasksTotal.WithLabelValues("pending")))
	assert.Equal(t, 2.0, testutil.ToFloat64(TasksTotal.WithLabelValues("processing")))
	assert.Equal(t, 7.0, testutil.ToFloat64(TasksTotal.WithLabelValues("completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(WorkersActive))
}

func TestCollectorKeepsValuesOnError(t *testing.T) {
	stats := &fakeStats{stats: map[string]int64{"pending": 5}}
	workers := &fakeWorkers{workers: []types.WorkerInfo{{WorkerID: "worker-1"}}}

	c := NewCollector(stats, workers)
	c.collect()

	// Sources fail on the next cycle; gauges keep their last sample.
	stats.err = errors.New("store down")
	workers.err = errors.New("store down")
	c.collect()

	assert.Equal(t, 5.0, testutil.ToFloat64(TasksTotal.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(WorkersActive))
}
