package ingest

import (
	"math"
	"sync"
	"time"
)

// Tracker 内存中的“最近一条”状态
// MQTT回调线程写，采样循环读（拼进 ap/net 上报的 toma1 摘要）
type Tracker struct {
	mu     sync.Mutex
	telem  *TelemetryMessage
	alert  *AlertMessage
	status string
	ts     time.Time
}

// NewTracker 创建状态跟踪器
func NewTracker() *Tracker {
	return &Tracker{}
}

// SetTelemetry 记录最近一条遥测
func (t *Tracker) SetTelemetry(m *TelemetryMessage) {
	t.mu.Lock()
	t.telem = m
	t.ts = time.Now()
	t.mu.Unlock()
}

// SetAlert 记录最近一条告警
func (t *Tracker) SetAlert(m *AlertMessage) {
	t.mu.Lock()
	t.alert = m
	t.ts = time.Now()
	t.mu.Unlock()
}

// SetStatus 记录最近一条状态文本（online/offline）
func (t *Tracker) SetStatus(status string) {
	t.mu.Lock()
	t.status = status
	t.ts = time.Now()
	t.mu.Unlock()
}

// TelemetrySummary 摘要里的遥测字段（与原 dashboard 的 JSON 键保持一致）
type TelemetrySummary struct {
	ID        *string  `json:"id"`
	Toma      *string  `json:"toma"`
	On        *bool    `json:"on"`
	Seq       *int64   `json:"seq"`
	MS        *int64   `json:"ms"`
	Amperaje  *float64 `json:"amperaje"`
	PotenciaW *float64 `json:"potencia_w"`
	Estado    *string  `json:"estado"`
	RSSI      *int64   `json:"rssi"`
	Sim       *int64   `json:"sim"`
}

// AlertSummary 摘要里的告警字段
type AlertSummary struct {
	TelemetrySummary
	Reason *string `json:"reason"`
}

// RatesSummary 当前窗口的消息速率
type RatesSummary struct {
	TelemMbps float64 `json:"telem_mbps"`
	AlertMbps float64 `json:"alert_mbps"`
}

// Summary 插座侧的调试摘要，随 ap/net 一起上报
type Summary struct {
	AgeS      *float64         `json:"age_s"`
	Status    *string          `json:"status"`
	Telem     TelemetrySummary `json:"telem"`
	Alert     AlertSummary     `json:"alert"`
	RatesMbps RatesSummary     `json:"rates_mbps"`
}

// Summary 生成当前摘要；age 相对 now，保留1位小数
func (t *Tracker) Summary(now time.Time) *Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := &Summary{}
	if !t.ts.IsZero() {
		age := math.Round(now.Sub(t.ts).Seconds()*10) / 10
		out.AgeS = &age
	}
	if t.status != "" {
		st := t.status
		out.Status = &st
	}
	if t.telem != nil {
		out.Telem = TelemetrySummary{
			ID: t.telem.ID, Toma: t.telem.Toma, On: t.telem.On,
			Seq: t.telem.Seq, MS: t.telem.MS,
			Amperaje: t.telem.Amperaje, PotenciaW: t.telem.PotenciaW,
			Estado: t.telem.Estado, RSSI: t.telem.RSSI, Sim: t.telem.Sim,
		}
	}
	if t.alert != nil {
		out.Alert = AlertSummary{
			TelemetrySummary: TelemetrySummary{
				ID: t.alert.ID, Toma: t.alert.Toma, On: t.alert.On,
				Seq: t.alert.Seq, MS: t.alert.MS,
				Amperaje: t.alert.Amperaje, PotenciaW: t.alert.PotenciaW,
				Estado: t.alert.Estado, RSSI: t.alert.RSSI, Sim: t.alert.Sim,
			},
			Reason: t.alert.Reason,
		}
	}
	return out
}
