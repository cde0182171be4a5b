package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInboundDefaults(t *testing.T) {
	m, err := ParseInbound([]byte(`{"type":"sensor","clientId":null}`))
	require.NoError(t, err)

	assert.Equal(t, "sensor", m.Type())
	assert.Equal(t, UnknownClient, m.ClientID())
	assert.Equal(t, NoMessage, m.Message())
	assert.Equal(t, NoValue, m.Value())
	assert.Equal(t, UnknownTimestamp, m.Timestamp())
	assert.NotNil(t, m.Data())
	assert.Empty(t, m.Data())
}

func TestParseInboundFields(t *testing.T) {
	m, err := ParseInbound([]byte(`{"clientId":"esp-1","message":"step","value":7,"timestamp":1700000000000,"data":{"heel":12.5,"toe":3}}`))
	require.NoError(t, err)

	assert.Equal(t, "esp-1", m.ClientID())
	assert.Equal(t, "step", m.Message())
	assert.Equal(t, float64(7), m.Value())
	assert.Equal(t, float64(1700000000000), m.Timestamp())
	assert.Equal(t, map[string]any{"heel": 12.5, "toe": float64(3)}, m.Data())
}

func TestParseInboundRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{``, `[1,2]`, `"text"`, `42`} {
		_, err := ParseInbound([]byte(raw))
		assert.ErrorIs(t, err, ErrNotObject, "input %q", raw)
	}

	_, err := ParseInbound([]byte(`{"broken":`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotObject)
}

func TestDataIgnoresNonObjectPayload(t *testing.T) {
	m := NewInbound(map[string]any{"data": []any{1.0, 2.0}})
	assert.Empty(t, m.Data())
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "ok", FormatValue("ok"))
	assert.Equal(t, "14", FormatValue(float64(14)))
	assert.Equal(t, "2.5", FormatValue(2.5))
	assert.Equal(t, "3", FormatValue(3))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, `{"a":1}`, FormatValue(map[string]any{"a": 1}))
}

func TestNewRegisterFrame(t *testing.T) {
	assert.Equal(t, RegisterFrame{Type: "register", Role: "processor"}, NewRegisterFrame(""))
	assert.Equal(t, RegisterFrame{Type: "register", Role: "dashboard"}, NewRegisterFrame("dashboard"))
}
