package sampler

import (
	"context"
	"math"
	"time"

	"github.com/DaniXM02/safegrid/internal/database"
	"github.com/DaniXM02/safegrid/internal/ingest"
	"github.com/DaniXM02/safegrid/internal/logger"
	"github.com/DaniXM02/safegrid/internal/mqtt"
	"github.com/DaniXM02/safegrid/internal/qos"
	"github.com/DaniXM02/safegrid/internal/shaper"
)

// 上报主题（原 dashboard 依赖的固定主题）
const (
	TopicHost = "safegrid/pi/telemetry"
	TopicNet  = "safegrid/ap/net"
)

// 保留窗口：主机/网络样本 30 分钟，插座/告警样本 24 小时
const (
	hostNetRetention   = 30 * time.Minute
	tomaAlertRetention = 24 * time.Hour
)

// Options 采样循环参数
type Options struct {
	Interval   time.Duration
	Iface      string
	CapMbps    float64
	MaxClients int
}

// Sampler 周期采样循环：计数器 -> 速率 -> QoS仲裁 -> 落库 + 上报
type Sampler struct {
	store    *database.Store
	client   mqtt.Client
	acc      *qos.VolumeAccumulator
	tracker  *ingest.Tracker
	shaper   *shaper.Tracker
	counters HostCounters
	clients  ClientLister
	opts     Options

	// 上一 tick 的计数器（单goroutine访问,不需要锁）
	// CPU 与网卡各带一个基线有效位：某侧读取失败后重新建基线，
	// 避免跨 tick 的增量被算成单周期速率
	primed    bool
	cpuInited bool
	netInited bool
	prevTotal float64
	prevIdle  float64
	prevRx    uint64
	prevTx    uint64
}

// New 创建采样器
func New(store *database.Store, client mqtt.Client, acc *qos.VolumeAccumulator,
	tracker *ingest.Tracker, shaperTracker *shaper.Tracker,
	counters HostCounters, clients ClientLister, opts Options) *Sampler {

	if opts.Interval <= 0 {
		opts.Interval = 1 * time.Second
	}
	if opts.MaxClients <= 0 {
		opts.MaxClients = 9
	}
	return &Sampler{
		store:    store,
		client:   client,
		acc:      acc,
		tracker:  tracker,
		shaper:   shaperTracker,
		counters: counters,
		clients:  clients,
		opts:     opts,
	}
}

// Run 启动采样循环；ctx 取消后做完当前 tick 退出
func (s *Sampler) Run(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()

		// 启动先采一轮基线（首个 tick 没有前驱，只记录不产出速率）
		s.tick()

		for {
			select {
			case <-ctx.Done():
				logger.Info("采样循环退出")
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// tick 单次采样，自包含，不在中途挂起
func (s *Sampler) tick() {
	now := time.Now()
	intervalSec := s.opts.Interval.Seconds()

	// CPU：idle/total tick 增量
	cpuPct := 0.0
	total, idle, err := s.counters.CPUTicks()
	if err != nil {
		logger.Debug("读取CPU计数器失败: %v", err)
		s.cpuInited = false
	} else {
		if s.cpuInited {
			cpuPct = CPUPercent(total-s.prevTotal, idle-s.prevIdle)
		}
		s.prevTotal, s.prevIdle = total, idle
		s.cpuInited = true
	}

	// RAM / 温度 / uptime（瞬时值，读不到给 0 继续）
	ramUsed, ramTotal, err := s.counters.MemoryGB()
	if err != nil {
		logger.Debug("读取内存信息失败: %v", err)
	}
	tempC := s.counters.TemperatureC()
	uptime := s.counters.UptimeS()

	// 网卡总吞吐
	downMbps, upMbps := 0.0, 0.0
	rx, tx, err := s.counters.NetBytes(s.opts.Iface)
	if err != nil {
		logger.Debug("读取网卡计数器失败: iface=%s err=%v", s.opts.Iface, err)
		s.netInited = false
	} else {
		if s.netInited {
			downMbps = Rate(float64(s.prevRx), float64(rx), intervalSec) * 8.0 / 1e6
			upMbps = Rate(float64(s.prevTx), float64(tx), intervalSec) * 8.0 / 1e6
		}
		s.prevRx, s.prevTx = rx, tx
		s.netInited = true
	}
	totalMbps := downMbps + upMbps

	firstTick := !s.primed
	s.primed = true

	// 流控侧速率 + 消息流量窗口，逐 tick 仲裁
	shaperRates := s.shaper.SampleRates(intervalSec)
	win := s.acc.TakeWindow()
	split := qos.Arbitrate(shaperRates, win, totalMbps, intervalSec)

	if firstTick {
		// 基线 tick 不产出样本
		return
	}

	clients := s.clients.Clients(s.opts.MaxClients)
	ts := now.Unix()

	// 落库
	pi := &database.PiSample{
		TS:         ts,
		CPUPct:     cpuPct,
		RAMUsedGB:  ramUsed,
		RAMTotalGB: ramTotal,
		TempC:      tempC,
		UptimeS:    uptime,
	}
	if err := s.store.InsertPiSample(pi); err != nil {
		logger.Error("写入主机样本失败: %v", err)
	}

	net := &database.NetSample{
		TS:      ts,
		HiMbps:  split.HiMbps,
		MedMbps: split.MedMbps,
		LowMbps: split.LowMbps,
		CapMbps: s.opts.CapMbps,
		QoSSrc:  split.Source,
		Clients: clients,
	}
	if err := s.store.InsertNetSample(net); err != nil {
		logger.Error("写入网络样本失败: %v", err)
	}

	// 上报（尽力而为,断线丢 tick 无所谓）
	s.publish(now, pi, net, win, intervalSec)

	// 保留窗口清理
	if err := s.store.PurgeHostNet(ts - int64(hostNetRetention.Seconds())); err != nil {
		logger.Error("清理主机/网络样本失败: %v", err)
	}
	if err := s.store.PurgeTomaAlert(ts - int64(tomaAlertRetention.Seconds())); err != nil {
		logger.Error("清理插座/告警样本失败: %v", err)
	}
}

// hostPayload safegrid/pi/telemetry 的消息体
type hostPayload struct {
	TempC      float64 `json:"temp_c"`
	CPUPct     float64 `json:"cpu_pct"`
	RAMUsedGB  float64 `json:"ram_used_gb"`
	RAMTotalGB float64 `json:"ram_total_gb"`
	UptimeS    int64   `json:"uptime_s"`
}

// netPayload safegrid/ap/net 的消息体
type netPayload struct {
	CapMbps     float64         `json:"cap_mbps"`
	HiMbps      float64         `json:"hi_mbps"`
	MedMbps     float64         `json:"med_mbps"`
	LowMbps     float64         `json:"low_mbps"`
	QoSSrc      string          `json:"qos_src"`
	ClientsList []string        `json:"clients_list"`
	Toma1       *ingest.Summary `json:"toma1"`
}

func (s *Sampler) publish(now time.Time, pi *database.PiSample, net *database.NetSample,
	win qos.VolumeWindow, intervalSec float64) {

	if s.client == nil || !s.client.IsConnected() {
		return
	}

	hp := &hostPayload{
		TempC:      round(pi.TempC, 2),
		CPUPct:     round(pi.CPUPct, 1),
		RAMUsedGB:  round(pi.RAMUsedGB, 2),
		RAMTotalGB: round(pi.RAMTotalGB, 2),
		UptimeS:    pi.UptimeS,
	}
	if err := s.client.Publish(TopicHost, hp); err != nil {
		logger.Debug("上报主机指标失败: %v", err)
	}

	summary := s.tracker.Summary(now)
	summary.RatesMbps = ingest.RatesSummary{
		TelemMbps: round(qos.BytesToMbps(win.TelemetryBytes, intervalSec), 4),
		AlertMbps: round(qos.BytesToMbps(win.AlertBytes, intervalSec), 4),
	}

	np := &netPayload{
		CapMbps:     net.CapMbps,
		HiMbps:      round(net.HiMbps, 4),
		MedMbps:     round(net.MedMbps, 4),
		LowMbps:     round(net.LowMbps, 4),
		QoSSrc:      net.QoSSrc,
		ClientsList: net.Clients,
		Toma1:       summary,
	}
	if err := s.client.Publish(TopicNet, np); err != nil {
		logger.Debug("上报网络指标失败: %v", err)
	}
}

func round(v float64, digits int) float64 {
	p := math.Pow10(digits)
	return math.Round(v*p) / p
}
