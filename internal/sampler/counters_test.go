package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRate(t *testing.T) {
	assert.Equal(t, 100.0, Rate(0, 100, 1.0))
	assert.Equal(t, 50.0, Rate(100, 200, 2.0))
}

func TestRateCounterWraparound(t *testing.T) {
	// 回绕/重置：delta为负必须归零，不能出现负速率
	assert.Equal(t, 0.0, Rate(1000, 10, 1.0))
	assert.Equal(t, 0.0, Rate(1, 0, 1.0))
}

func TestRateZeroInterval(t *testing.T) {
	assert.Equal(t, 0.0, Rate(0, 100, 0))
	assert.Equal(t, 0.0, Rate(0, 100, -1.0))
}

func TestCPUPercent(t *testing.T) {
	// idle增量50 / total增量100 -> 50%
	assert.Equal(t, 50.0, CPUPercent(100, 50))
	assert.Equal(t, 0.0, CPUPercent(100, 100))
	assert.Equal(t, 100.0, CPUPercent(100, 0))
}

func TestCPUPercentClamped(t *testing.T) {
	assert.Equal(t, 0.0, CPUPercent(0, 0))
	assert.Equal(t, 0.0, CPUPercent(-10, 5))
	// idle倒退（读数抖动）时也不能超过100
	assert.Equal(t, 100.0, CPUPercent(100, -20))
}
