package qos

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func TestArbitrateVolumeFallback(t *testing.T) {
	// tc 本 tick 没有任何计数器：用消息流量估算
	// 1秒窗口 alert=125000B -> 1.0Mbps, telem=250000B -> 2.0Mbps
	win := VolumeWindow{AlertBytes: 125000, TelemetryBytes: 250000}
	split := Arbitrate(ClassRates{}, win, 5.0, 1.0)

	assert.Equal(t, SourceVolume, split.Source)
	assert.InDelta(t, 1.0, split.HiMbps, 0.001)
	assert.InDelta(t, 2.0, split.MedMbps, 0.001)
	assert.InDelta(t, 2.0, split.LowMbps, 0.001)
}

func TestArbitrateVolumeLowClamped(t *testing.T) {
	// 估算超过实测总量：低优先级截断为0，不出负数
	win := VolumeWindow{AlertBytes: 500000, TelemetryBytes: 500000}
	split := Arbitrate(ClassRates{}, win, 1.0, 1.0)

	assert.Equal(t, SourceVolume, split.Source)
	assert.Equal(t, 0.0, split.LowMbps)
	assert.GreaterOrEqual(t, split.HiMbps+split.MedMbps+split.LowMbps, 0.0)
}

func TestArbitrateShaperAuthoritative(t *testing.T) {
	// tc 任一类可见即以 tc 为准，即使消息窗口里有流量
	win := VolumeWindow{AlertBytes: 999999, TelemetryBytes: 999999}
	split := Arbitrate(ClassRates{Hi: f(3.0), Med: f(1.0), Low: f(0.5)}, win, 5.0, 1.0)

	assert.Equal(t, SourceShaper, split.Source)
	assert.Equal(t, 3.0, split.HiMbps)
	assert.Equal(t, 1.0, split.MedMbps)
	assert.Equal(t, 0.5, split.LowMbps)
}

func TestArbitrateShaperMissingClassesZero(t *testing.T) {
	// 只有高优先级可见：其余类为0，低类由差值兜底
	split := Arbitrate(ClassRates{Hi: f(2.0)}, VolumeWindow{}, 5.0, 1.0)

	assert.Equal(t, SourceShaper, split.Source)
	assert.Equal(t, 2.0, split.HiMbps)
	assert.Equal(t, 0.0, split.MedMbps)
	assert.InDelta(t, 3.0, split.LowMbps, 0.001)
}

func TestArbitrateShaperLowClamped(t *testing.T) {
	// 差值为负时截断为0
	split := Arbitrate(ClassRates{Hi: f(4.0), Med: f(3.0)}, VolumeWindow{}, 5.0, 1.0)

	assert.Equal(t, SourceShaper, split.Source)
	assert.Equal(t, 0.0, split.LowMbps)
}

func TestArbitrateShaperLowVisibleNotDerived(t *testing.T) {
	// 低类自己的计数器可见时用实测值，不做差值推导
	split := Arbitrate(ClassRates{Hi: f(1.0), Low: f(0.2)}, VolumeWindow{}, 10.0, 1.0)

	assert.Equal(t, 0.2, split.LowMbps)
}

func TestBytesToMbps(t *testing.T) {
	assert.InDelta(t, 1.0, BytesToMbps(125000, 1.0), 0.0001)
	assert.Equal(t, 0.0, BytesToMbps(125000, 0))
	assert.Equal(t, 0.0, BytesToMbps(-1, 1.0))
}

func TestVolumeAccumulatorTakeResets(t *testing.T) {
	acc := NewVolumeAccumulator()
	acc.AddAlert(100)
	acc.AddTelemetry(200)
	acc.AddStatus(10)

	win := acc.TakeWindow()
	assert.Equal(t, int64(100), win.AlertBytes)
	assert.Equal(t, int64(200), win.TelemetryBytes)
	assert.Equal(t, int64(10), win.StatusBytes)

	// 窗口滑动不重叠：取走即清零
	win = acc.TakeWindow()
	assert.Equal(t, VolumeWindow{}, win)
}

func TestVolumeAccumulatorConcurrent(t *testing.T) {
	acc := NewVolumeAccumulator()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				acc.AddTelemetry(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10000), acc.TakeWindow().TelemetryBytes)
}
