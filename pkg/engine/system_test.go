package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemMetricsSample(t *testing.T) {
	sample, err := SystemMetrics{}.Sample()
	require.NoError(t, err)

	assert.Greater(t, sample.MemoryPercent, 0.0)
	assert.LessOrEqual(t, sample.MemoryPercent, 100.0)
	assert.Greater(t, sample.MemoryAvailableGB, 0.0)
	assert.GreaterOrEqual(t, sample.CPUPercent, 0.0)
}
