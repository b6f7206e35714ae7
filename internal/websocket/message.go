package websocket

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	TypeConflictDetected     MessageType = "conflict_detected"
	TypeConflictResolved     MessageType = "conflict_resolved"
	TypeRevaluationCompleted MessageType = "revaluation_completed"
	TypeAck                  MessageType = "ack"
	TypePing                 MessageType = "ping"
	TypePong                 MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ConflictPayload is pushed when a concurrent edit is captured or a
// conflict is resolved, so other devices can refresh the entity.
type ConflictPayload struct {
	ConflictID string          `json:"conflict_id"`
	EntityID   string          `json:"entity_id"`
	EntityType string          `json:"entity_type"`
	Status     string          `json:"status"`
	Strategy   string          `json:"strategy,omitempty"`
	Conflict   json.RawMessage `json:"conflict,omitempty"`
}

type RevaluationPayload struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	TargetCurrency string `json:"target_currency"`
	UpdatedCount   int    `json:"updated_count"`
	ErrorCount     int    `json:"error_count"`
	ProcessedCount int    `json:"processed_count"`
}

type AckPayload struct {
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
