package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

var ErrNotObject = errors.New("frame is not a JSON object")

// InboundMessage is a loosely structured frame relayed from a sensor peer.
// Every accessor takes a fallback; missing or null fields never fail.
type InboundMessage struct {
	fields map[string]any
}

func ParseInbound(raw []byte) (InboundMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return InboundMessage{}, ErrNotObject
	}
	var m map[string]any
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return InboundMessage{}, errors.Wrap(err, "decode frame")
	}
	return InboundMessage{fields: m}, nil
}

func NewInbound(fields map[string]any) InboundMessage {
	return InboundMessage{fields: fields}
}

func (m InboundMessage) Get(key string, fallback any) any {
	if v, ok := m.fields[key]; ok && v != nil {
		return v
	}
	return fallback
}

func (m InboundMessage) Text(key, fallback string) string {
	return FormatValue(m.Get(key, fallback))
}

func (m InboundMessage) Type() string     { return m.Text("type", "") }
func (m InboundMessage) ClientID() string { return m.Text("clientId", UnknownClient) }
func (m InboundMessage) Message() string  { return m.Text("message", NoMessage) }
func (m InboundMessage) Value() any       { return m.Get("value", NoValue) }
func (m InboundMessage) Timestamp() any   { return m.Get("timestamp", UnknownTimestamp) }

// Data returns the sensor map, or an empty map when absent or not an object.
func (m InboundMessage) Data() map[string]any {
	if d, ok := m.fields["data"].(map[string]any); ok {
		return d
	}
	return map[string]any{}
}

// FormatValue renders a decoded JSON value as it would appear in a spreadsheet cell.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x)
	case json.Number:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	}
}
