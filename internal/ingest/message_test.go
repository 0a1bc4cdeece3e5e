package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTelemetry(t *testing.T) {
	payload := []byte(`{"id":"xiao-1","toma":"toma1","on":true,"seq":42,"ms":123456,
		"amperaje":1.25,"potencia_w":150.5,"estado":"normal","rssi":-61,"sim":0}`)

	m, err := DecodeTelemetry(payload)
	require.NoError(t, err)

	require.NotNil(t, m.Toma)
	assert.Equal(t, "toma1", *m.Toma)
	require.NotNil(t, m.On)
	assert.True(t, *m.On)
	require.NotNil(t, m.Seq)
	assert.Equal(t, int64(42), *m.Seq)
	require.NotNil(t, m.Amperaje)
	assert.Equal(t, 1.25, *m.Amperaje)
	require.NotNil(t, m.RSSI)
	assert.Equal(t, int64(-61), *m.RSSI)
}

func TestDecodeTelemetryMissingFieldsNil(t *testing.T) {
	m, err := DecodeTelemetry([]byte(`{"toma":"toma1"}`))
	require.NoError(t, err)

	assert.Nil(t, m.Seq)
	assert.Nil(t, m.Amperaje)
	assert.Nil(t, m.Estado)
	assert.Nil(t, m.On)
}

func TestDecodeTelemetryFieldCoercion(t *testing.T) {
	// 固件侧类型不稳定：字符串数字、0/1布尔都要能收
	m, err := DecodeTelemetry([]byte(`{"amperaje":"1.5","seq":"7","on":1,"id":3}`))
	require.NoError(t, err)

	require.NotNil(t, m.Amperaje)
	assert.Equal(t, 1.5, *m.Amperaje)
	require.NotNil(t, m.Seq)
	assert.Equal(t, int64(7), *m.Seq)
	require.NotNil(t, m.On)
	assert.True(t, *m.On)
	require.NotNil(t, m.ID)
	assert.Equal(t, "3", *m.ID)
}

func TestDecodeTelemetrySingleBadField(t *testing.T) {
	// 单个坏字段只丢该字段，不拖垮整条消息
	m, err := DecodeTelemetry([]byte(`{"toma":"toma1","amperaje":{"x":1},"seq":9}`))
	require.NoError(t, err)

	assert.Nil(t, m.Amperaje)
	require.NotNil(t, m.Seq)
	assert.Equal(t, int64(9), *m.Seq)
}

func TestDecodeTelemetryNotObject(t *testing.T) {
	_, err := DecodeTelemetry([]byte(`hola`))
	assert.Error(t, err)

	_, err = DecodeTelemetry([]byte(`[1,2,3]`))
	assert.Error(t, err)
}

func TestDecodeAlertReason(t *testing.T) {
	m, err := DecodeAlert([]byte(`{"toma":"toma1","reason":"sobrecarga","potencia_w":900}`))
	require.NoError(t, err)

	require.NotNil(t, m.Reason)
	assert.Equal(t, "sobrecarga", *m.Reason)
	require.NotNil(t, m.PotenciaW)
	assert.Equal(t, 900.0, *m.PotenciaW)
}

func TestEntityIDPayloadWins(t *testing.T) {
	m, err := DecodeTelemetry([]byte(`{"toma":" Toma2 "}`))
	require.NoError(t, err)

	// payload 字段优先于主题段，并统一小写去空白
	assert.Equal(t, "toma2", m.EntityID("toma9"))
}

func TestEntityIDFallbacks(t *testing.T) {
	m, err := DecodeTelemetry([]byte(`{"id":"Toma3"}`))
	require.NoError(t, err)
	assert.Equal(t, "toma3", m.EntityID("toma9"))

	m, err = DecodeTelemetry([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "toma9", m.EntityID("toma9"))
}

func TestTopicEntityID(t *testing.T) {
	assert.Equal(t, "toma1", TopicEntityID("safegrid/toma1/telemetry"))
	assert.Equal(t, "display", TopicEntityID("safegrid/display/status"))
	assert.Equal(t, "", TopicEntityID("otra/toma1/telemetry"))
	assert.Equal(t, "", TopicEntityID("safegrid/toma1"))
}

func TestIsReservedID(t *testing.T) {
	assert.True(t, IsReservedID("pi"))
	assert.True(t, IsReservedID("AP"))
	assert.True(t, IsReservedID(" display "))
	assert.True(t, IsReservedID("dashboard"))
	assert.False(t, IsReservedID("toma1"))
}

func TestToRowIsOnNormalization(t *testing.T) {
	m, err := DecodeTelemetry([]byte(`{"on":true}`))
	require.NoError(t, err)
	row := m.ToRow(100, "toma1")
	require.NotNil(t, row.IsOn)
	assert.Equal(t, int64(1), *row.IsOn)

	m, err = DecodeTelemetry([]byte(`{"is_on":0}`))
	require.NoError(t, err)
	row = m.ToRow(100, "toma1")
	require.NotNil(t, row.IsOn)
	assert.Equal(t, int64(0), *row.IsOn)

	m, err = DecodeTelemetry([]byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, m.ToRow(100, "toma1").IsOn)
}
