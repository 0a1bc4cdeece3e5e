package database

// PiSample 主机指标样本（pi_samples 的一行）
type PiSample struct {
	TS         int64   `json:"ts"`
	CPUPct     float64 `json:"cpu_pct"`
	RAMUsedGB  float64 `json:"ram_used_gb"`
	RAMTotalGB float64 `json:"ram_total_gb"`
	TempC      float64 `json:"temp_c"`
	UptimeS    int64   `json:"uptime_s"`
}

// NetSample 网络指标样本（net_samples 的一行）
type NetSample struct {
	TS      int64    `json:"ts"`
	HiMbps  float64  `json:"hi_mbps"`
	MedMbps float64  `json:"med_mbps"`
	LowMbps float64  `json:"low_mbps"`
	CapMbps float64  `json:"cap_mbps"`
	QoSSrc  string   `json:"qos_src"` // "tc" 或 "mqtt"
	Clients []string `json:"clients_list"`
}

// TomaSample 插座遥测样本（toma_samples 的一行）
// 可选字段用指针表示：payload 缺字段时存 NULL，不猜默认值
type TomaSample struct {
	TS        int64    `json:"ts"`
	Toma      string   `json:"toma"`
	Seq       *int64   `json:"seq"`
	MS        *int64   `json:"ms"`
	Sim       *int64   `json:"sim"`
	IsOn      *int64   `json:"is_on"`
	Amperaje  *float64 `json:"amperaje"`
	PotenciaW *float64 `json:"potencia_w"`
	Estado    *string  `json:"estado"`
	RSSI      *int64   `json:"rssi"`
}

// AlertSample 插座告警样本（alert_samples 的一行）
type AlertSample struct {
	TomaSample
	Reason *string `json:"reason"`
}

// AlertPoint 每秒告警计数（快照 series 用）
type AlertPoint struct {
	TS int64 `json:"ts"`
	N  int64 `json:"n"`
}
