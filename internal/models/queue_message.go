package models

import (
	"encoding/json"
	"fmt"
)

// QueueMessage is the structure stored in the queue. Keep it simple - just
// enough to route the job to an executor.
type QueueMessage struct {
	JobID string `json:"job_id"` // References the job record
	Type  string `json:"type"`   // Message type for executor routing
}

// MessageTypeAnalyze routes a message to the analysis executor.
const MessageTypeAnalyze = "analyze"

// ToJSON serializes the message for queue storage.
func (m *QueueMessage) ToJSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue message: %w", err)
	}
	return data, nil
}

// QueueMessageFromJSON deserializes a message from queue storage.
func QueueMessageFromJSON(data []byte) (*QueueMessage, error) {
	var msg QueueMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue message: %w", err)
	}
	return &msg, nil
}
