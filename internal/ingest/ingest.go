package ingest

import (
	"strings"
	"sync"
	"time"

	"github.com/DaniXM02/safegrid/internal/database"
	"github.com/DaniXM02/safegrid/internal/logger"
	"github.com/DaniXM02/safegrid/internal/mqtt"
	"github.com/DaniXM02/safegrid/internal/qos"
)

// 订阅的通配主题
const (
	TopicTelemetry = "safegrid/+/telemetry"
	TopicAlert     = "safegrid/+/alert"
	TopicStatus    = "safegrid/+/status"
)

const printEvery = 8 * time.Second

// Ingestor 消息接入：MQTT -> SQLite
// 同时给 QoS 仲裁喂每类消息的字节量
type Ingestor struct {
	store   *database.Store
	acc     *qos.VolumeAccumulator
	tracker *Tracker

	// 在固定保留集之外额外拒收的标识符，典型是本进程自己的
	// MQTT client id：它的遗嘱/在线状态也发在 safegrid/<id>/status 上
	extraReserved map[string]bool

	mu        sync.Mutex
	lastPrint time.Time
	accepted  int64
}

// NewIngestor 创建消息接入器；extraReserved 追加保留标识符（如自身 client id）
func NewIngestor(store *database.Store, acc *qos.VolumeAccumulator, tracker *Tracker, extraReserved ...string) *Ingestor {
	extra := make(map[string]bool, len(extraReserved))
	for _, id := range extraReserved {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			extra[id] = true
		}
	}
	return &Ingestor{store: store, acc: acc, tracker: tracker, extraReserved: extra}
}

// rejected 固定保留集 + 实例级追加集
func (in *Ingestor) rejected(id string) bool {
	return IsReservedID(id) || in.extraReserved[strings.ToLower(strings.TrimSpace(id))]
}

// Subscribe 订阅三类通配主题
func (in *Ingestor) Subscribe(client mqtt.Client) error {
	if err := client.Subscribe(TopicTelemetry, in.handleTelemetry); err != nil {
		return err
	}
	if err := client.Subscribe(TopicAlert, in.handleAlert); err != nil {
		return err
	}
	return client.Subscribe(TopicStatus, in.handleStatus)
}

// handleTelemetry 遥测消息回调
func (in *Ingestor) handleTelemetry(topic string, payload []byte) {
	// 字节计数先于一切过滤：带宽估算要的是线路流量，不是入库行数
	in.acc.AddTelemetry(len(payload))

	m, err := DecodeTelemetry(payload)
	if err != nil {
		// 不静默丢弃：记一条日志，保留原文供排查
		logger.Warn("遥测payload解析失败: topic=%s err=%v raw=%s", topic, err, truncate(payload, 200))
		return
	}

	toma := m.EntityID(TopicEntityID(topic))
	if toma == "" {
		return
	}
	if in.rejected(toma) {
		// pi/ap/display/自身 的遥测不是插座数据，拒收
		return
	}

	in.tracker.SetTelemetry(m)

	if err := in.store.InsertTomaSample(m.ToRow(time.Now().Unix(), toma)); err != nil {
		logger.Error("写入遥测样本失败: toma=%s err=%v", toma, err)
		return
	}
	in.countAccepted("telem", toma)
}

// handleAlert 告警消息回调
func (in *Ingestor) handleAlert(topic string, payload []byte) {
	in.acc.AddAlert(len(payload))

	m, err := DecodeAlert(payload)
	if err != nil {
		logger.Warn("告警payload解析失败: topic=%s err=%v raw=%s", topic, err, truncate(payload, 200))
		return
	}

	toma := m.EntityID(TopicEntityID(topic))
	if toma == "" || in.rejected(toma) {
		return
	}

	in.tracker.SetAlert(m)

	if err := in.store.InsertAlertSample(m.ToRow(time.Now().Unix(), toma)); err != nil {
		logger.Error("写入告警样本失败: toma=%s err=%v", toma, err)
		return
	}
	in.countAccepted("alert", toma)
}

// handleStatus 状态消息回调（纯文本 online/offline，不落库）
func (in *Ingestor) handleStatus(topic string, payload []byte) {
	in.acc.AddStatus(len(payload))

	id := TopicEntityID(topic)
	if id == "" || in.rejected(id) {
		return
	}
	in.tracker.SetStatus(strings.TrimSpace(string(payload)))
}

// countAccepted 周期性状态打印（尽力而为，不属于契约）
func (in *Ingestor) countAccepted(kind, toma string) {
	in.mu.Lock()
	in.accepted++
	n := in.accepted
	due := time.Since(in.lastPrint) >= printEvery
	if due {
		in.lastPrint = time.Now()
	}
	in.mu.Unlock()

	if due {
		logger.Info("消息接入: 累计入库 %d 条, 最近 %s toma=%s", n, kind, toma)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
