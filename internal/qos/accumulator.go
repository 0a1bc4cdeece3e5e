package qos

import "sync"

// VolumeWindow 一个采样窗口内按优先级类累计的消息字节数
type VolumeWindow struct {
	AlertBytes     int64
	TelemetryBytes int64
	StatusBytes    int64
}

// VolumeAccumulator 消息流量累加器
// MQTT回调线程 Add，采样循环 TakeWindow；两边都走同一把锁，
// 避免丢计数或跨窗口重复计数
type VolumeAccumulator struct {
	mu  sync.Mutex
	cur VolumeWindow
}

// NewVolumeAccumulator 创建累加器
func NewVolumeAccumulator() *VolumeAccumulator {
	return &VolumeAccumulator{}
}

// AddAlert 累加一条告警消息的字节数
func (a *VolumeAccumulator) AddAlert(n int) {
	a.mu.Lock()
	a.cur.AlertBytes += int64(n)
	a.mu.Unlock()
}

// AddTelemetry 累加一条遥测消息的字节数
func (a *VolumeAccumulator) AddTelemetry(n int) {
	a.mu.Lock()
	a.cur.TelemetryBytes += int64(n)
	a.mu.Unlock()
}

// AddStatus 累加一条状态消息的字节数
func (a *VolumeAccumulator) AddStatus(n int) {
	a.mu.Lock()
	a.cur.StatusBytes += int64(n)
	a.mu.Unlock()
}

// TakeWindow 读取并清零当前窗口（滑动、不重叠）
func (a *VolumeAccumulator) TakeWindow() VolumeWindow {
	a.mu.Lock()
	w := a.cur
	a.cur = VolumeWindow{}
	a.mu.Unlock()
	return w
}
