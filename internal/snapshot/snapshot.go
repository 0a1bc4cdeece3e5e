package snapshot

import (
	"os"
	"time"

	"github.com/DaniXM02/safegrid/config"
	"github.com/DaniXM02/safegrid/internal/database"
	"github.com/DaniXM02/safegrid/internal/logger"
)

// 告警统计的固定回看窗口
const alertWindow = 120 * time.Second

// NeverSeenAge 从未见过的插座的年龄哨兵值（秒）
const NeverSeenAge = int64(1e9)

// Liveness 按 TTL 推导的插座在线状态
type Liveness struct {
	TS        int64    `json:"ts"`
	AgeSec    int64    `json:"age_sec"`
	Online    bool     `json:"online"`
	Amperaje  *float64 `json:"amperaje"`
	PotenciaW *float64 `json:"potencia_w"`
	Estado    *string  `json:"estado"`
	RSSI      *int64   `json:"rssi"`
}

// Alerts 最近窗口的告警统计
type Alerts struct {
	Count120s int64                 `json:"count_120s"`
	Series    []database.AlertPoint `json:"series"`
}

// Snapshot 某一时刻的一致读视图
// 所有推导字段共用同一个 NowTS，哪怕底层表由多个进程并发写
type Snapshot struct {
	NowTS  int64 `json:"now_ts"`
	TTLSec int   `json:"ttl_sec"`

	Pi        *database.PiSample   `json:"pi"`
	Net       *database.NetSample  `json:"net"`
	NetSeries []database.NetSample `json:"net_series"`

	LatestPerToma map[string]*database.TomaSample   `json:"latest_per_toma"`
	SeriesPerToma map[string][]database.TomaSample  `json:"series_per_toma"`
	TomasByTTL    map[string]Liveness               `json:"tomas_by_ttl"`

	Alerts Alerts `json:"alerts"`
}

// Liveness 查任一插座的在线状态；从未见过的插座返回 offline + 哨兵年龄而不是报错
func (s *Snapshot) Liveness(toma string) Liveness {
	if lv, ok := s.TomasByTTL[toma]; ok {
		return lv
	}
	return Liveness{AgeSec: NeverSeenAge, Online: false}
}

// Builder 快照构建器（只读消费方，不持有写句柄）
type Builder struct {
	dbPath string
}

// NewBuilder 创建构建器
func NewBuilder(dbPath string) *Builder {
	return &Builder{dbPath: dbPath}
}

// Build 组装一份快照
// 库文件还不存在时返回结构完整的空快照：下游不用区分“没数据”和“刚启动”
func (b *Builder) Build(maxRows, historyPoints, ttlSec int) (*Snapshot, error) {
	now := time.Now().Unix()
	out := emptySnapshot(now, ttlSec)

	if _, err := os.Stat(b.dbPath); err != nil {
		return out, nil
	}

	store, err := database.OpenReadOnly(b.dbPath)
	if err != nil {
		logger.Warn("快照打开数据库失败: %v", err)
		return out, nil
	}
	defer store.Close()

	return b.fill(store, now, maxRows, historyPoints, ttlSec), nil
}

// BuildFrom 用已打开的句柄组装快照（进程内查询接口）
func (b *Builder) BuildFrom(store *database.Store, maxRows, historyPoints, ttlSec int) (*Snapshot, error) {
	now := time.Now().Unix()
	return b.fill(store, now, maxRows, historyPoints, ttlSec), nil
}

// BuildConfigured 按配置键（ttl_sec/history_rows/history_points）组装快照
func (b *Builder) BuildConfigured(cfg config.SnapshotConfig) (*Snapshot, error) {
	return b.Build(cfg.HistoryRows, cfg.HistoryPoints, cfg.TTLSec)
}

// BuildFromConfigured 按配置键用已打开的句柄组装快照
func (b *Builder) BuildFromConfigured(store *database.Store, cfg config.SnapshotConfig) (*Snapshot, error) {
	return b.BuildFrom(store, cfg.HistoryRows, cfg.HistoryPoints, cfg.TTLSec)
}

// fill 查询失败（如库文件存在但还没建表）退化为空快照，不把半成品交给下游
func (b *Builder) fill(store *database.Store, now int64,
	maxRows, historyPoints, ttlSec int) *Snapshot {

	snap, err := b.query(store, emptySnapshot(now, ttlSec), now, maxRows, historyPoints, ttlSec)
	if err != nil {
		logger.Warn("快照查询失败,返回空快照: %v", err)
		return emptySnapshot(now, ttlSec)
	}
	return snap
}

func emptySnapshot(now int64, ttlSec int) *Snapshot {
	return &Snapshot{
		NowTS:         now,
		TTLSec:        ttlSec,
		NetSeries:     []database.NetSample{},
		LatestPerToma: map[string]*database.TomaSample{},
		SeriesPerToma: map[string][]database.TomaSample{},
		TomasByTTL:    map[string]Liveness{},
		Alerts:        Alerts{Count120s: 0, Series: []database.AlertPoint{}},
	}
}

func (b *Builder) query(store *database.Store, out *Snapshot, now int64,
	maxRows, historyPoints, ttlSec int) (*Snapshot, error) {

	// 主机/网络最新行
	pi, err := store.LatestPi()
	if err != nil {
		return out, err
	}
	out.Pi = pi

	netSeries, err := store.NetSeries(maxRows)
	if err != nil {
		return out, err
	}
	out.NetSeries = netSeries
	if len(netSeries) > 0 {
		last := netSeries[len(netSeries)-1]
		out.Net = &last
	}

	// 每个插座：最新行 + 历史窗口 + TTL在线推导
	tomas, err := store.TomaIDs()
	if err != nil {
		return out, err
	}
	for _, toma := range tomas {
		series, err := store.TomaSeries(toma, historyPoints)
		if err != nil {
			return out, err
		}
		if len(series) == 0 {
			continue
		}
		out.SeriesPerToma[toma] = series

		latest := series[len(series)-1]
		out.LatestPerToma[toma] = &latest

		age := now - latest.TS
		if latest.TS == 0 {
			age = NeverSeenAge
		}
		out.TomasByTTL[toma] = Liveness{
			TS:        latest.TS,
			AgeSec:    age,
			Online:    age <= int64(ttlSec),
			Amperaje:  latest.Amperaje,
			PotenciaW: latest.PotenciaW,
			Estado:    latest.Estado,
			RSSI:      latest.RSSI,
		}
	}

	// 告警：窗口计数 + 每秒序列
	since := now - int64(alertWindow.Seconds())
	count, err := store.AlertCountSince(since)
	if err != nil {
		return out, err
	}
	series, err := store.AlertSeriesSince(since)
	if err != nil {
		return out, err
	}
	out.Alerts = Alerts{Count120s: count, Series: series}

	return out, nil
}
