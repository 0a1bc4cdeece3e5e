package sampler

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DaniXM02/safegrid/internal/database"
	"github.com/DaniXM02/safegrid/internal/ingest"
	"github.com/DaniXM02/safegrid/internal/mqtt"
	"github.com/DaniXM02/safegrid/internal/qos"
	"github.com/DaniXM02/safegrid/internal/shaper"
)

// fakeCounters 逐tick回放的假计数器
type fakeCounters struct {
	i     int
	total []float64
	idle  []float64
	rx    []uint64
	tx    []uint64
}

func (f *fakeCounters) CPUTicks() (float64, float64, error) {
	t, id := f.total[f.i], f.idle[f.i]
	return t, id, nil
}
func (f *fakeCounters) MemoryGB() (float64, float64, error) { return 1.5, 4.0, nil }
func (f *fakeCounters) TemperatureC() float64               { return 48.2 }
func (f *fakeCounters) UptimeS() int64                      { return 3600 }
func (f *fakeCounters) NetBytes(string) (uint64, uint64, error) {
	rx, tx := f.rx[f.i], f.tx[f.i]
	f.i++ // NetBytes 是每tick最后一个计数器读取
	return rx, tx, nil
}

// flakyCounters 指定tick读取失败的假计数器
type flakyCounters struct {
	i     int
	fail  []bool
	total []float64
	idle  []float64
	rx    []uint64
	tx    []uint64
}

func (f *flakyCounters) CPUTicks() (float64, float64, error) {
	if f.fail[f.i] {
		return 0, 0, errors.New("读取失败")
	}
	return f.total[f.i], f.idle[f.i], nil
}
func (f *flakyCounters) MemoryGB() (float64, float64, error) { return 1.5, 4.0, nil }
func (f *flakyCounters) TemperatureC() float64               { return 48.2 }
func (f *flakyCounters) UptimeS() int64                      { return 3600 }
func (f *flakyCounters) NetBytes(string) (uint64, uint64, error) {
	i := f.i
	f.i++
	if f.fail[i] {
		return 0, 0, errors.New("读取失败")
	}
	return f.rx[i], f.tx[i], nil
}

type fakeClients struct{}

func (fakeClients) Clients(max int) []string { return []string{"sensor-01", "MAC-ab12"} }

// fakePublisher 记录发布的消息
type fakePublisher struct {
	mu       sync.Mutex
	messages map[string][]interface{}
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{messages: map[string][]interface{}{}}
}
func (f *fakePublisher) Connect() error    { return nil }
func (f *fakePublisher) Disconnect() error { return nil }
func (f *fakePublisher) IsConnected() bool { return true }
func (f *fakePublisher) Publish(topic string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[topic] = append(f.messages[topic], message)
	return nil
}
func (f *fakePublisher) Subscribe(string, mqtt.MessageHandler) error { return nil }

type emptyShaperSource struct{}

func (emptyShaperSource) ClassBytes() map[string]int64 { return map[string]int64{} }

func newTestSampler(t *testing.T, counters HostCounters, acc *qos.VolumeAccumulator) (*Sampler, *database.Store, *fakePublisher) {
	store, err := database.InitDB(filepath.Join(t.TempDir(), "safegrid.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pub := newFakePublisher()
	s := New(store, pub, acc, ingest.NewTracker(),
		shaper.NewTracker(emptyShaperSource{}, "1:10", "1:20", "1:30"),
		counters, fakeClients{},
		Options{Interval: 1 * time.Second, Iface: "wlan1", CapMbps: 20.0, MaxClients: 9})
	return s, store, pub
}

func TestTickCPUPercentFromDeltas(t *testing.T) {
	// t=0 -> t=1: total增量100, idle增量50 -> 50%
	counters := &fakeCounters{
		total: []float64{1000, 1100},
		idle:  []float64{400, 450},
		rx:    []uint64{0, 0},
		tx:    []uint64{0, 0},
	}
	s, store, _ := newTestSampler(t, counters, qos.NewVolumeAccumulator())

	s.tick()
	s.tick()

	pi, err := store.LatestPi()
	require.NoError(t, err)
	require.NotNil(t, pi)
	assert.Equal(t, 50.0, pi.CPUPct)
	assert.Equal(t, 1.5, pi.RAMUsedGB)
	assert.Equal(t, int64(3600), pi.UptimeS)
}

func TestFirstTickEmitsNothing(t *testing.T) {
	counters := &fakeCounters{
		total: []float64{1000},
		idle:  []float64{400},
		rx:    []uint64{0},
		tx:    []uint64{0},
	}
	s, store, pub := newTestSampler(t, counters, qos.NewVolumeAccumulator())

	// 首个tick没有前驱：只记基线，不落库不上报
	s.tick()

	pi, err := store.LatestPi()
	require.NoError(t, err)
	assert.Nil(t, pi)
	assert.Empty(t, pub.messages)
}

func TestTickVolumeFallbackSplit(t *testing.T) {
	counters := &fakeCounters{
		total: []float64{1000, 1100},
		idle:  []float64{400, 450},
		// 1秒窗口线路总量 625000B -> 5 Mbps
		rx: []uint64{0, 500000},
		tx: []uint64{0, 125000},
	}
	acc := qos.NewVolumeAccumulator()
	s, store, pub := newTestSampler(t, counters, acc)

	s.tick()
	acc.AddAlert(125000)
	acc.AddTelemetry(250000)
	s.tick()

	net, err := store.LatestNet()
	require.NoError(t, err)
	require.NotNil(t, net)

	assert.Equal(t, qos.SourceVolume, net.QoSSrc)
	assert.InDelta(t, 1.0, net.HiMbps, 0.001)
	assert.InDelta(t, 2.0, net.MedMbps, 0.001)
	assert.InDelta(t, 2.0, net.LowMbps, 0.001)
	assert.Equal(t, 20.0, net.CapMbps)
	assert.Equal(t, []string{"sensor-01", "MAC-ab12"}, net.Clients)

	// 两个固定主题各发布一条
	assert.Len(t, pub.messages[TopicHost], 1)
	assert.Len(t, pub.messages[TopicNet], 1)

	np, ok := pub.messages[TopicNet][0].(*netPayload)
	require.True(t, ok)
	assert.Equal(t, qos.SourceVolume, np.QoSSrc)
	assert.InDelta(t, 2.0, np.Toma1.RatesMbps.TelemMbps, 0.001)
	assert.InDelta(t, 1.0, np.Toma1.RatesMbps.AlertMbps, 0.001)
}

func TestTickNetCounterWraparound(t *testing.T) {
	counters := &fakeCounters{
		total: []float64{1000, 1100},
		idle:  []float64{400, 450},
		// 网卡计数器回绕：速率归零，不出负数
		rx: []uint64{900000, 100},
		tx: []uint64{900000, 100},
	}
	s, store, _ := newTestSampler(t, counters, qos.NewVolumeAccumulator())

	s.tick()
	s.tick()

	net, err := store.LatestNet()
	require.NoError(t, err)
	require.NotNil(t, net)
	assert.Equal(t, 0.0, net.HiMbps+net.MedMbps+net.LowMbps)
}

func TestTickCounterErrorRebuildsBaseline(t *testing.T) {
	// 首tick读取失败，次tick累计计数巨大：没有真实前驱，速率必须为0
	counters := &flakyCounters{
		fail:  []bool{true, false, false},
		total: []float64{0, 1000, 1100},
		idle:  []float64{0, 400, 450},
		rx:    []uint64{0, 5_000_000_000, 5_000_100_000},
		tx:    []uint64{0, 0, 0},
	}
	s, store, _ := newTestSampler(t, counters, qos.NewVolumeAccumulator())

	s.tick()
	s.tick()

	net, err := store.LatestNet()
	require.NoError(t, err)
	require.NotNil(t, net)
	assert.Equal(t, 0.0, net.HiMbps+net.MedMbps+net.LowMbps)

	pi, err := store.LatestPi()
	require.NoError(t, err)
	require.NotNil(t, pi)
	assert.Equal(t, 0.0, pi.CPUPct)

	// 重新建基线后恢复正常速率：100000B/s -> 0.8 Mbps
	s.tick()
	net, err = store.LatestNet()
	require.NoError(t, err)
	assert.InDelta(t, 0.8, net.LowMbps, 0.001)

	pi, err = store.LatestPi()
	require.NoError(t, err)
	assert.Equal(t, 50.0, pi.CPUPct)
}

func TestTickMidRunCounterErrorEmitsZero(t *testing.T) {
	// 中途某tick失败：旧基线作废，下一成功tick不得用跨周期增量算速率
	counters := &flakyCounters{
		fail:  []bool{false, true, false},
		total: []float64{1000, 0, 1200},
		idle:  []float64{400, 0, 500},
		rx:    []uint64{0, 0, 2_000_000},
		tx:    []uint64{0, 0, 0},
	}
	s, store, _ := newTestSampler(t, counters, qos.NewVolumeAccumulator())

	s.tick()
	s.tick()
	s.tick()

	net, err := store.LatestNet()
	require.NoError(t, err)
	require.NotNil(t, net)
	assert.Equal(t, 0.0, net.HiMbps+net.MedMbps+net.LowMbps)
}

func TestTickWindowReset(t *testing.T) {
	counters := &fakeCounters{
		total: []float64{1000, 1100, 1200},
		idle:  []float64{400, 450, 500},
		rx:    []uint64{0, 0, 0},
		tx:    []uint64{0, 0, 0},
	}
	acc := qos.NewVolumeAccumulator()
	s, store, _ := newTestSampler(t, counters, acc)

	s.tick()
	acc.AddAlert(125000)
	s.tick()
	// 窗口已清零：下一tick不应重复计数
	s.tick()

	net, err := store.LatestNet()
	require.NoError(t, err)
	require.NotNil(t, net)
	assert.Equal(t, 0.0, net.HiMbps)
}
