package messages

import (
	amessages "github.com/airenas/async-api/pkg/messages"
)

const (
	st = "SPARROW/"
	// Work queue name - all workflow jobs
	Work = st + "Work"
	// Batch job name - parent workflow entry, routed to the work queue
	Batch = Work + ":batch"
	// Inform queue name
	Inform = st + "Inform"
)

// BatchMessage starts the parent workflow for one uploaded batch
type BatchMessage struct {
	amessages.QueueMessage
	RequestID string `json:"requestID,omitempty"`
}

// FileMessage starts the per-file pipeline workflow
type FileMessage struct {
	amessages.QueueMessage
	BatchID   string `json:"batchID"`
	FileName  string `json:"fileName"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// NewMessageFrom creates a copy of a message
func NewMessageFrom(m *FileMessage) *FileMessage {
	return &FileMessage{QueueMessage: m.QueueMessage, BatchID: m.BatchID, FileName: m.FileName}
}
