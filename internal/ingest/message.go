package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/DaniXM02/safegrid/internal/database"
)

// 保留标识符：系统节点的消息不能落进插座表
var reservedIDs = map[string]bool{
	"pi":        true,
	"ap":        true,
	"display":   true,
	"dashboard": true,
}

// IsReservedID 判断是否为保留标识符
func IsReservedID(id string) bool {
	return reservedIDs[strings.ToLower(strings.TrimSpace(id))]
}

// TelemetryMessage 插座遥测消息
// 可选字段用指针表示，逐字段解码，单个坏字段不拖垮整条消息
type TelemetryMessage struct {
	ID        *string  `json:"id"`
	Toma      *string  `json:"toma"`
	On        *bool    `json:"on"`
	IsOn      *int64   `json:"is_on"`
	Seq       *int64   `json:"seq"`
	MS        *int64   `json:"ms"`
	Sim       *int64   `json:"sim"`
	Amperaje  *float64 `json:"amperaje"`
	PotenciaW *float64 `json:"potencia_w"`
	Estado    *string  `json:"estado"`
	RSSI      *int64   `json:"rssi"`
}

// AlertMessage 插座告警消息：遥测字段 + 告警原因
type AlertMessage struct {
	TelemetryMessage
	Reason *string `json:"reason"`
}

// DecodeTelemetry 解析遥测 payload
func DecodeTelemetry(payload []byte) (*TelemetryMessage, error) {
	fields, err := objectFields(payload)
	if err != nil {
		return nil, err
	}
	return telemetryFromFields(fields), nil
}

// DecodeAlert 解析告警 payload
func DecodeAlert(payload []byte) (*AlertMessage, error) {
	fields, err := objectFields(payload)
	if err != nil {
		return nil, err
	}
	m := &AlertMessage{TelemetryMessage: *telemetryFromFields(fields)}
	m.Reason = fieldString(fields, "reason")
	return m, nil
}

func objectFields(payload []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("payload 不是JSON对象: %v", err)
	}
	return fields, nil
}

func telemetryFromFields(fields map[string]json.RawMessage) *TelemetryMessage {
	return &TelemetryMessage{
		ID:        fieldString(fields, "id"),
		Toma:      fieldString(fields, "toma"),
		On:        fieldBool(fields, "on"),
		IsOn:      fieldInt(fields, "is_on"),
		Seq:       fieldInt(fields, "seq"),
		MS:        fieldInt(fields, "ms"),
		Sim:       fieldInt(fields, "sim"),
		Amperaje:  fieldFloat(fields, "amperaje"),
		PotenciaW: fieldFloat(fields, "potencia_w"),
		Estado:    fieldString(fields, "estado"),
		RSSI:      fieldInt(fields, "rssi"),
	}
}

// fieldString 取字符串字段；数字也转成字符串（固件侧字段类型不稳定）
func fieldString(fields map[string]json.RawMessage, key string) *string {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		s = strconv.FormatFloat(f, 'f', -1, 64)
		return &s
	}
	return nil
}

// fieldFloat 取浮点字段；字符串形式的数字也接受
func fieldFloat(fields map[string]json.RawMessage, key string) *float64 {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err2 := strconv.ParseFloat(strings.TrimSpace(s), 64); err2 == nil {
			return &v
		}
	}
	return nil
}

// fieldInt 取整数字段；浮点/字符串形式也接受
func fieldInt(fields map[string]json.RawMessage, key string) *int64 {
	f := fieldFloat(fields, key)
	if f == nil {
		return nil
	}
	n := int64(*f)
	return &n
}

// fieldBool 取布尔字段；0/1 也接受
func fieldBool(fields map[string]json.RawMessage, key string) *bool {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return &b
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		b = f != 0
		return &b
	}
	return nil
}

// EntityID 解析消息归属的实体id：payload 字段优先于主题段，统一小写去空白
func (m *TelemetryMessage) EntityID(topicID string) string {
	id := topicID
	if m.Toma != nil && strings.TrimSpace(*m.Toma) != "" {
		id = *m.Toma
	} else if m.ID != nil && strings.TrimSpace(*m.ID) != "" {
		id = *m.ID
	}
	return strings.ToLower(strings.TrimSpace(id))
}

// TopicEntityID 从主题 safegrid/<id>/<class> 中取实体id；不匹配返回空串
func TopicEntityID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 3 && parts[0] == "safegrid" {
		return strings.ToLower(strings.TrimSpace(parts[1]))
	}
	return ""
}

// isOnValue 统一 on/is_on 两种写法
func isOnValue(on *bool, isOn *int64) *int64 {
	if on != nil {
		v := int64(0)
		if *on {
			v = 1
		}
		return &v
	}
	return isOn
}

// ToRow 转为待落库的遥测行
func (m *TelemetryMessage) ToRow(ts int64, toma string) *database.TomaSample {
	return &database.TomaSample{
		TS:        ts,
		Toma:      toma,
		Seq:       m.Seq,
		MS:        m.MS,
		Sim:       m.Sim,
		IsOn:      isOnValue(m.On, m.IsOn),
		Amperaje:  m.Amperaje,
		PotenciaW: m.PotenciaW,
		Estado:    m.Estado,
		RSSI:      m.RSSI,
	}
}

// ToRow 转为待落库的告警行
func (m *AlertMessage) ToRow(ts int64, toma string) *database.AlertSample {
	return &database.AlertSample{
		TomaSample: *m.TelemetryMessage.ToRow(ts, toma),
		Reason:     m.Reason,
	}
}
