package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Store 时序存储句柄
// 写入方（采样循环、MQTT回调）共用一个句柄并在 mu 下串行写；
// 读取方（快照）走 WAL 并发读，不会被写阻塞
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// InitDB 打开（或创建）数据库并确保 schema
func InitDB(dbPath string) (*Store, error) {
	// 创建数据库目录
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		// 如果无权限（如开发机），自动降级到临时目录
		fallback := filepath.Join(os.TempDir(), "safegrid", filepath.Base(dbPath))
		fallbackDir := filepath.Dir(fallback)
		if err2 := os.MkdirAll(fallbackDir, 0755); err2 != nil {
			return nil, err
		}
		dbPath = fallback
	}

	// WAL + NORMAL：读不阻塞写；busy_timeout 兜底偶发锁冲突
	dsn := dbPath + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.EnsureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenReadOnly 只读打开已有库（快照端使用，不建表）
// 文件不存在时返回 os.ErrNotExist，调用方据此给出空快照
func OpenReadOnly(dbPath string) (*Store, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, err
	}
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&mode=ro"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// EnsureSchema 建表 + 轻量迁移，多次调用幂等
func (s *Store) EnsureSchema() error {
	piTable := `
	CREATE TABLE IF NOT EXISTS pi_samples (
		ts INTEGER NOT NULL,
		cpu_pct REAL,
		ram_used_gb REAL,
		ram_total_gb REAL,
		temp_c REAL,
		uptime_s INTEGER
	);`

	netTable := `
	CREATE TABLE IF NOT EXISTS net_samples (
		ts INTEGER NOT NULL,
		hi_mbps REAL,
		med_mbps REAL,
		low_mbps REAL,
		cap_mbps REAL,
		qos_src TEXT,
		clients TEXT
	);`

	tomaTable := `
	CREATE TABLE IF NOT EXISTS toma_samples (
		ts INTEGER NOT NULL,
		toma TEXT NOT NULL,
		seq INTEGER,
		ms INTEGER,
		sim INTEGER,
		is_on INTEGER,
		amperaje REAL,
		potencia_w REAL,
		estado TEXT,
		rssi INTEGER
	);`

	alertTable := `
	CREATE TABLE IF NOT EXISTS alert_samples (
		ts INTEGER NOT NULL,
		toma TEXT NOT NULL,
		seq INTEGER,
		ms INTEGER,
		sim INTEGER,
		is_on INTEGER,
		amperaje REAL,
		potencia_w REAL,
		estado TEXT,
		rssi INTEGER,
		reason TEXT
	);`

	tables := []string{piTable, netTable, tomaTable, alertTable}
	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("创建表失败: %v", err)
		}
	}

	// 轻量迁移：旧库补字段（只增不删）
	migrations := []struct {
		table, col, colType string
	}{
		{"net_samples", "clients", "TEXT"},
		{"toma_samples", "seq", "INTEGER"},
		{"toma_samples", "ms", "INTEGER"},
		{"toma_samples", "sim", "INTEGER"},
		{"toma_samples", "is_on", "INTEGER"},
		{"toma_samples", "amperaje", "REAL"},
		{"toma_samples", "potencia_w", "REAL"},
		{"toma_samples", "estado", "TEXT"},
		{"toma_samples", "rssi", "INTEGER"},
		{"alert_samples", "seq", "INTEGER"},
		{"alert_samples", "ms", "INTEGER"},
		{"alert_samples", "sim", "INTEGER"},
		{"alert_samples", "is_on", "INTEGER"},
		{"alert_samples", "amperaje", "REAL"},
		{"alert_samples", "potencia_w", "REAL"},
		{"alert_samples", "estado", "TEXT"},
		{"alert_samples", "rssi", "INTEGER"},
		{"alert_samples", "reason", "TEXT"},
	}
	for _, m := range migrations {
		if err := s.ensureColumn(m.table, m.col, m.colType); err != nil {
			return err
		}
	}

	// 索引（加速“每个toma最新一条”与时间窗口查询）
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_pi_ts ON pi_samples(ts);",
		"CREATE INDEX IF NOT EXISTS idx_net_ts ON net_samples(ts);",
		"CREATE INDEX IF NOT EXISTS idx_toma_ts ON toma_samples(toma, ts);",
		"CREATE INDEX IF NOT EXISTS idx_alert_ts ON alert_samples(ts);",
		"CREATE INDEX IF NOT EXISTS idx_alert_toma_ts ON alert_samples(toma, ts);",
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("创建索引失败: %v", err)
		}
	}

	return nil
}

func (s *Store) ensureColumn(table, col, colType string) error {
	// 检查是否存在该列
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if strings.EqualFold(name, col) {
			return nil
		}
	}
	// 列名加引号，避免保留字（历史教训：'on'）
	_, err = s.db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN "%s" %s`, table, col, colType))
	if err != nil {
		return fmt.Errorf("迁移失败: %s.%s: %v", table, col, err)
	}
	return nil
}

// DB 暴露底层连接（测试用）
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
