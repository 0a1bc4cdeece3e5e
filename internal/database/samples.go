package database

import (
	"database/sql"
	"encoding/json"
)

// InsertPiSample 追加一条主机样本
func (s *Store) InsertPiSample(p *PiSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		"INSERT INTO pi_samples(ts,cpu_pct,ram_used_gb,ram_total_gb,temp_c,uptime_s) VALUES (?,?,?,?,?,?)",
		p.TS, p.CPUPct, p.RAMUsedGB, p.RAMTotalGB, p.TempC, p.UptimeS,
	)
	return err
}

// InsertNetSample 追加一条网络样本
func (s *Store) InsertNetSample(n *NetSample) error {
	clients := ""
	if len(n.Clients) > 0 {
		if b, err := json.Marshal(n.Clients); err == nil {
			clients = string(b)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		"INSERT INTO net_samples(ts,hi_mbps,med_mbps,low_mbps,cap_mbps,qos_src,clients) VALUES (?,?,?,?,?,?,?)",
		n.TS, n.HiMbps, n.MedMbps, n.LowMbps, n.CapMbps, n.QoSSrc, clients,
	)
	return err
}

// InsertTomaSample 追加一条插座遥测样本
func (s *Store) InsertTomaSample(t *TomaSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO toma_samples(ts,toma,seq,ms,sim,is_on,amperaje,potencia_w,estado,rssi)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.TS, t.Toma, t.Seq, t.MS, t.Sim, t.IsOn, t.Amperaje, t.PotenciaW, t.Estado, t.RSSI,
	)
	return err
}

// InsertAlertSample 追加一条插座告警样本
func (s *Store) InsertAlertSample(a *AlertSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO alert_samples(ts,toma,seq,ms,sim,is_on,amperaje,potencia_w,estado,rssi,reason)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		a.TS, a.Toma, a.Seq, a.MS, a.Sim, a.IsOn, a.Amperaje, a.PotenciaW, a.Estado, a.RSSI, a.Reason,
	)
	return err
}

// LatestPi 最新主机样本；没有数据时返回 nil
func (s *Store) LatestPi() (*PiSample, error) {
	row := s.db.QueryRow(
		"SELECT ts,cpu_pct,ram_used_gb,ram_total_gb,temp_c,uptime_s FROM pi_samples ORDER BY ts DESC LIMIT 1")
	p := &PiSample{}
	err := row.Scan(&p.TS, &p.CPUPct, &p.RAMUsedGB, &p.RAMTotalGB, &p.TempC, &p.UptimeS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// LatestNet 最新网络样本；没有数据时返回 nil
func (s *Store) LatestNet() (*NetSample, error) {
	rows, err := s.NetSeries(1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[len(rows)-1], nil
}

// NetSeries 最近 limit 条网络样本，按时间升序返回
func (s *Store) NetSeries(limit int) ([]NetSample, error) {
	rows, err := s.db.Query(
		"SELECT ts,hi_mbps,med_mbps,low_mbps,cap_mbps,qos_src,clients FROM net_samples ORDER BY ts DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []NetSample{}
	for rows.Next() {
		var n NetSample
		var qosSrc, clients sql.NullString
		if err := rows.Scan(&n.TS, &n.HiMbps, &n.MedMbps, &n.LowMbps, &n.CapMbps, &qosSrc, &clients); err != nil {
			continue
		}
		n.QoSSrc = qosSrc.String
		if clients.Valid && clients.String != "" {
			_ = json.Unmarshal([]byte(clients.String), &n.Clients)
		}
		out = append(out, n)
	}

	// DESC 取窗口，翻转成升序
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// TomaIDs 出现过的插座 id（去重、升序）
func (s *Store) TomaIDs() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT toma FROM toma_samples ORDER BY toma ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var toma string
		if err := rows.Scan(&toma); err != nil {
			continue
		}
		if toma != "" {
			out = append(out, toma)
		}
	}
	return out, rows.Err()
}

// LatestToma 指定插座的最新样本；没有数据时返回 nil
func (s *Store) LatestToma(toma string) (*TomaSample, error) {
	rows, err := s.TomaSeries(toma, 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[len(rows)-1], nil
}

// TomaSeries 指定插座最近 limit 条样本，按时间升序返回
func (s *Store) TomaSeries(toma string, limit int) ([]TomaSample, error) {
	rows, err := s.db.Query(
		`SELECT ts,toma,seq,ms,sim,is_on,amperaje,potencia_w,estado,rssi
		 FROM toma_samples WHERE toma = ? ORDER BY ts DESC LIMIT ?`,
		toma, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []TomaSample{}
	for rows.Next() {
		var t TomaSample
		if err := rows.Scan(&t.TS, &t.Toma, &t.Seq, &t.MS, &t.Sim, &t.IsOn,
			&t.Amperaje, &t.PotenciaW, &t.Estado, &t.RSSI); err != nil {
			continue
		}
		out = append(out, t)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// AlertCountSince 自 since 以来的告警条数
func (s *Store) AlertCountSince(since int64) (int64, error) {
	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM alert_samples WHERE ts >= ?", since).Scan(&n)
	return n, err
}

// AlertSeriesSince 自 since 以来按秒聚合的告警计数，升序
func (s *Store) AlertSeriesSince(since int64) ([]AlertPoint, error) {
	rows, err := s.db.Query(
		"SELECT ts, COUNT(*) AS n FROM alert_samples WHERE ts >= ? GROUP BY ts ORDER BY ts ASC",
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []AlertPoint{}
	for rows.Next() {
		var p AlertPoint
		if err := rows.Scan(&p.TS, &p.N); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PurgeHostNet 清理 cutoff 之前的主机/网络样本
func (s *Store) PurgeHostNet(cutoff int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM pi_samples WHERE ts < ?", cutoff); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM net_samples WHERE ts < ?", cutoff)
	return err
}

// PurgeTomaAlert 清理 cutoff 之前的插座/告警样本（保留期比主机指标长）
func (s *Store) PurgeTomaAlert(cutoff int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM toma_samples WHERE ts < ?", cutoff); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM alert_samples WHERE ts < ?", cutoff)
	return err
}
