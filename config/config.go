package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Config 应用配置
type Config struct {
	MQTT     MQTTConfig     `json:"mqtt"`
	Sampler  SamplerConfig  `json:"sampler"`
	QoS      QoSConfig      `json:"qos"`
	Snapshot SnapshotConfig `json:"snapshot"`
	Database DatabaseConfig `json:"database"`
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	ClientID string `json:"client_id"`
}

// SamplerConfig 采样器配置
type SamplerConfig struct {
	Interface  string  `json:"interface"`   // 无线AP网卡，如 wlan1
	IntervalMS int     `json:"interval_ms"` // 采样周期（毫秒）
	CapMbps    float64 `json:"cap_mbps"`    // 带宽容量（用于百分比展示）
	MaxClients int     `json:"max_clients"` // clients_list 最多条数
}

// QoSConfig 流控（tc/htb）配置
type QoSConfig struct {
	Device    string `json:"device"`     // tc 设备名，默认与采样网卡一致
	ClassHigh string `json:"class_high"` // 如 1:10
	ClassMed  string `json:"class_med"`  // 如 1:20
	ClassLow  string `json:"class_low"`  // 如 1:30
}

// SnapshotConfig 快照查询配置
type SnapshotConfig struct {
	TTLSec        int `json:"ttl_sec"`        // 在线判定TTL（秒）
	HistoryRows   int `json:"history_rows"`   // net 历史窗口行数
	HistoryPoints int `json:"history_points"` // 每个toma的历史点数
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Path string `json:"path"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Host:     "192.168.4.1",
			Port:     1883,
			Username: "control",
			Password: "user1234",
			ClientID: "safegrid-monitor",
		},
		Sampler: SamplerConfig{
			Interface:  "wlan1",
			IntervalMS: 1000,
			CapMbps:    20.0,
			MaxClients: 9,
		},
		QoS: QoSConfig{
			ClassHigh: "1:10",
			ClassMed:  "1:20",
			ClassLow:  "1:30",
		},
		Snapshot: SnapshotConfig{
			TTLSec:        10,
			HistoryRows:   60,
			HistoryPoints: 60,
		},
		Database: DatabaseConfig{
			Path: defaultDBPath(),
		},
	}
}

func defaultConfigPath() string {
	// Linux 设备侧保持 /etc；本地开发默认落到工作目录，方便调试
	if runtime.GOOS == "linux" {
		return "/etc/safegrid/config.json"
	}
	if wd, err := os.Getwd(); err == nil && strings.TrimSpace(wd) != "" {
		return filepath.Join(wd, "config.json")
	}
	return filepath.Join(os.TempDir(), "safegrid", "config.json")
}

func defaultDBPath() string {
	if runtime.GOOS == "linux" {
		return "/var/lib/safegrid/safegrid.db"
	}
	if wd, err := os.Getwd(); err == nil && strings.TrimSpace(wd) != "" {
		return filepath.Join(wd, "data", "safegrid.db")
	}
	return filepath.Join(os.TempDir(), "safegrid", "safegrid.db")
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	configPath := os.Getenv("SAFEGRID_CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath()
	}
	return configPath
}

// LoadConfig 加载配置
func LoadConfig() (*Config, error) {
	configPath := GetConfigPath()

	// 如果配置文件不存在，返回默认配置（不强制落盘，设备可能只用环境变量）
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnv()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// 兼容补全：旧配置文件缺字段时保留默认值
	if cfg.Sampler.IntervalMS <= 0 {
		cfg.Sampler.IntervalMS = 1000
	}
	if cfg.Sampler.MaxClients <= 0 {
		cfg.Sampler.MaxClients = 9
	}
	if cfg.Snapshot.TTLSec <= 0 {
		cfg.Snapshot.TTLSec = 10
	}
	if cfg.Snapshot.HistoryRows <= 0 {
		cfg.Snapshot.HistoryRows = 60
	}
	if cfg.Snapshot.HistoryPoints <= 0 {
		cfg.Snapshot.HistoryPoints = 60
	}
	if strings.TrimSpace(cfg.Database.Path) == "" {
		cfg.Database.Path = defaultDBPath()
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save 保存配置
func (c *Config) Save() error {
	configPath := GetConfigPath()
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0644)
}

// applyEnv 环境变量覆盖（与旧部署脚本保持同一组 SAFEGRID_* 键）
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("SAFEGRID_DB_PATH")); v != "" {
		c.Database.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("SAFEGRID_MQTT_HOST")); v != "" {
		c.MQTT.Host = v
	}
	if v := envInt("SAFEGRID_MQTT_PORT"); v > 0 {
		c.MQTT.Port = v
	}
	if v := strings.TrimSpace(os.Getenv("SAFEGRID_MQTT_USER")); v != "" {
		c.MQTT.Username = v
	}
	if v := strings.TrimSpace(os.Getenv("SAFEGRID_MQTT_PASS")); v != "" {
		c.MQTT.Password = v
	}
	if v := strings.TrimSpace(os.Getenv("SAFEGRID_WLAN_IFACE")); v != "" {
		c.Sampler.Interface = v
	}
	if v := envFloat("SAFEGRID_CAP_MBPS"); v > 0 {
		c.Sampler.CapMbps = v
	}
	if v := strings.TrimSpace(os.Getenv("SAFEGRID_TC_DEV")); v != "" {
		c.QoS.Device = v
	}
	if v := strings.TrimSpace(os.Getenv("SAFEGRID_CLASS_HIGH")); v != "" {
		c.QoS.ClassHigh = v
	}
	if v := strings.TrimSpace(os.Getenv("SAFEGRID_CLASS_MED")); v != "" {
		c.QoS.ClassMed = v
	}
	if v := strings.TrimSpace(os.Getenv("SAFEGRID_CLASS_LOW")); v != "" {
		c.QoS.ClassLow = v
	}
	if v := envInt("SAFEGRID_TTL_SEC"); v > 0 {
		c.Snapshot.TTLSec = v
	}
	if v := envInt("SAFEGRID_HISTORY_ROWS"); v > 0 {
		c.Snapshot.HistoryRows = v
	}
	if v := envInt("SAFEGRID_HISTORY_POINTS"); v > 0 {
		c.Snapshot.HistoryPoints = v
	}

	// tc 设备默认跟随采样网卡
	if strings.TrimSpace(c.QoS.Device) == "" {
		c.QoS.Device = c.Sampler.Interface
	}
}

func envInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envFloat(key string) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
