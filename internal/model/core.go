package model

import "time"

const (
	FrameRegister  = "register"
	FrameProcessed = "processed"

	RoleProcessor = "processor"

	StatusProcessed   = "processed"
	StatusStored      = "stored"
	StatusStoreFailed = "store_failed"
)

// Placeholders used when an inbound field is missing or null.
const (
	UnknownClient    = "unknown"
	NoMessage        = "No message"
	NoValue          = "No value"
	UnknownTimestamp = "unknown"
)

type RegisterFrame struct {
	Type string `json:"type"`
	Role string `json:"role"`
}

func NewRegisterFrame(role string) RegisterFrame {
	if role == "" {
		role = RoleProcessor
	}
	return RegisterFrame{Type: FrameRegister, Role: role}
}

// ProcessedFrame is the reply the recorder sends back for every reading.
type ProcessedFrame struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	OriginalValue  any    `json:"originalValue"`
	ProcessedValue any    `json:"processedValue"`
}

// AckFrame is the acknowledgement the processor sends after handing a record to storage.
type AckFrame struct {
	Type               string `json:"type"`
	Status             string `json:"status"`
	OriginalTimestamp  any    `json:"original_timestamp"`
	ProcessedTimestamp string `json:"processed_timestamp"`
	Stats              Stats  `json:"stats"`
}

type Stats struct {
	Average float64 `json:"average" bson:"average"`
	Max     float64 `json:"max" bson:"max"`
	Min     float64 `json:"min" bson:"min"`
}

type RecordMetadata struct {
	EventID        string    `json:"event_id" bson:"event_id"`
	ClientID       string    `json:"client_id" bson:"client_id"`
	ReceivedAt     time.Time `json:"received_at" bson:"received_at"`
	ProcessingNote string    `json:"processing_note" bson:"processing_note"`
}

// ProcessedRecord is built once per inbound reading, stored, then dropped.
type ProcessedRecord struct {
	Metadata          RecordMetadata `json:"metadata" bson:"metadata"`
	Sensors           map[string]any `json:"sensors" bson:"sensors"`
	OriginalTimestamp any            `json:"original_timestamp" bson:"original_timestamp"`
	Status            string         `json:"status" bson:"status"`
	Stats             Stats          `json:"stats" bson:"stats"`
}
